package lifecycle

import "github.com/sst-resolve/resolve-service/internal/domain"

var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusOpen: {
		domain.TicketStatusInProgress,
		domain.TicketStatusAwaitingStudent,
		domain.TicketStatusEscalated,
		domain.TicketStatusResolved,
	},
	domain.TicketStatusInProgress: {
		domain.TicketStatusAwaitingStudent,
		domain.TicketStatusEscalated,
		domain.TicketStatusResolved,
	},
	domain.TicketStatusAwaitingStudent: {
		domain.TicketStatusInProgress,
		domain.TicketStatusEscalated,
		domain.TicketStatusResolved,
	},
	domain.TicketStatusReopened: {
		domain.TicketStatusInProgress,
		domain.TicketStatusAwaitingStudent,
		domain.TicketStatusEscalated,
		domain.TicketStatusResolved,
	},
	domain.TicketStatusEscalated: {
		domain.TicketStatusEscalated,
		domain.TicketStatusInProgress,
		domain.TicketStatusAwaitingStudent,
		domain.TicketStatusResolved,
	},
	domain.TicketStatusResolved: {
		domain.TicketStatusReopened,
	},
}

// CanTransition reports whether the status graph has an edge from -> to.
func CanTransition(from, to domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}
