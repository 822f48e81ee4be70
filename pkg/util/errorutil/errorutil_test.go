package errorutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDomainError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"domain error passes through", fmt.Errorf("wrapped: %w", NewInvalidState("resolved", nil)), CodeInvalidState, http.StatusConflict},
		{"no rows", pgx.ErrNoRows, CodeNotFound, http.StatusNotFound},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), CodeDependencyFailure, http.StatusServiceUnavailable},
		{"anything else", errors.New("boom"), CodeInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			de := ToDomainError(tc.err)
			require.NotNil(t, de)
			assert.Equal(t, tc.code, de.Code)
			assert.Equal(t, tc.status, de.HTTPStatus)
		})
	}
	assert.Nil(t, ToDomainError(nil))
	assert.NoError(t, MapError(nil))
}

func TestDependencyFailureUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewDependencyFailure("escalation rules", cause)
	assert.ErrorIs(t, err, cause)
	assert.True(t, HasCode(err, CodeDependencyFailure))
	assert.False(t, HasCode(cause, CodeDependencyFailure))
	assert.Equal(t, "escalation rules unavailable", ToDomainError(err).Message)
}
