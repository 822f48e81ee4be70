package domain

// SystemUserID identifies automated transitions such as SLA sweeps.
const SystemUserID = "system"

// Actor is the authenticated party triggering an operation.
type Actor struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// SystemActor returns the actor used by background jobs.
func SystemActor() Actor {
	return Actor{UserID: SystemUserID, Role: RoleSystem}
}

// IsSystem reports whether the actor is a background job.
func (a Actor) IsSystem() bool {
	return a.Role == RoleSystem
}
