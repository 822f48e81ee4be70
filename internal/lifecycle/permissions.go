package lifecycle

import (
	"fmt"

	"github.com/sst-resolve/resolve-service/internal/domain"
	apperrors "github.com/sst-resolve/resolve-service/pkg/util/errorutil"
)

// Action names a ticket operation subject to authorization.
type Action string

const (
	ActionAcknowledge Action = "acknowledge"
	ActionComment     Action = "comment"
	ActionEscalate    Action = "escalate"
	ActionReassign    Action = "reassign"
	ActionResolve     Action = "resolve"
	ActionReopen      Action = "reopen"
	ActionRate        Action = "rate"
	ActionExtendTAT   Action = "extend_tat"
	ActionView        Action = "view"
	ActionSLABreach   Action = "sla_breach"
)

type grant uint8

const (
	deny grant = iota
	allowAny
	allowCreator
)

// permissions is the single table mapping (action, role, ownership) to allow/deny.
// Roles missing from an action's row are denied.
var permissions = map[Action]map[domain.Role]grant{
	ActionAcknowledge: {
		domain.RoleAdmin:      allowAny,
		domain.RoleSuperAdmin: allowAny,
	},
	ActionComment: {
		domain.RoleStudent:    allowCreator,
		domain.RoleAdmin:      allowAny,
		domain.RoleSuperAdmin: allowAny,
	},
	ActionEscalate: {
		domain.RoleStudent:    allowCreator,
		domain.RoleAdmin:      allowAny,
		domain.RoleSuperAdmin: allowAny,
		domain.RoleSystem:     allowAny,
	},
	ActionReassign: {
		domain.RoleAdmin:      allowAny,
		domain.RoleSuperAdmin: allowAny,
	},
	ActionResolve: {
		domain.RoleAdmin:      allowAny,
		domain.RoleSuperAdmin: allowAny,
	},
	ActionReopen: {
		domain.RoleStudent:    allowCreator,
		domain.RoleAdmin:      allowAny,
		domain.RoleSuperAdmin: allowAny,
	},
	ActionRate: {
		domain.RoleStudent: allowCreator,
	},
	ActionExtendTAT: {
		domain.RoleAdmin:      allowAny,
		domain.RoleSuperAdmin: allowAny,
	},
	ActionView: {
		domain.RoleStudent:    allowCreator,
		domain.RoleAdmin:      allowAny,
		domain.RoleSuperAdmin: allowAny,
		domain.RoleCommittee:  allowAny,
	},
}

// Authorize checks whether actor may perform action on ticket.
func Authorize(action Action, actor domain.Actor, ticket *domain.Ticket) error {
	if actor.UserID == "" || actor.Role == "" {
		return apperrors.NewUnauthorized("authentication required")
	}
	details := map[string]any{"action": string(action), "role": string(actor.Role)}
	switch permissions[action][actor.Role] {
	case allowAny:
		return nil
	case allowCreator:
		if ticket != nil && ticket.IsCreator(actor.UserID) {
			return nil
		}
		return apperrors.NewForbidden(fmt.Sprintf("only the ticket creator may %s this ticket", verb(action)), details)
	default:
		return apperrors.NewForbidden(deniedMessage(action, actor.Role), details)
	}
}

// Allowed is Authorize without the error detail.
func Allowed(action Action, actor domain.Actor, ticket *domain.Ticket) bool {
	return Authorize(action, actor, ticket) == nil
}

func deniedMessage(action Action, role domain.Role) string {
	if role == domain.RoleCommittee && action == ActionEscalate {
		return "committee members cannot escalate tickets"
	}
	switch action {
	case ActionAcknowledge, ActionResolve, ActionReassign, ActionExtendTAT:
		return fmt.Sprintf("only admins may %s tickets", verb(action))
	case ActionRate:
		return "only the ticket creator may rate a ticket"
	}
	return fmt.Sprintf("role %s may not %s tickets", role, verb(action))
}

func verb(action Action) string {
	if action == ActionExtendTAT {
		return "extend the TAT of"
	}
	return string(action)
}
