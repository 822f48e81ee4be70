package domain

import "time"

// Role is the coarse permission class of a user.
type Role string

const (
	RoleStudent    Role = "STUDENT"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleCommittee  Role = "COMMITTEE"
	RoleSystem     Role = "SYSTEM"
)

// IsAdminTier reports whether the role may work tickets as staff.
func (r Role) IsAdminTier() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// SeesInternal reports whether the role may read internal notes and history.
func (r Role) SeesInternal() bool {
	return r.IsAdminTier() || r == RoleCommittee
}

// Valid reports whether r can be assigned to a stored user.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleAdmin, RoleSuperAdmin, RoleCommittee:
		return true
	}
	return false
}

// User is a person known to the helpdesk (students and staff alike).
type User struct {
	ID         string
	ExternalID string
	Name       string
	Email      string
	Role       Role
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Identity is the contactable form of a responsible party.
type Identity struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

// Identity projects the user into its contactable form.
func (u *User) Identity() Identity {
	return Identity{UserID: u.ID, Name: u.Name, Email: u.Email}
}

// Contactable reports whether the identity can receive notifications.
func (i Identity) Contactable() bool {
	return i.UserID != "" && i.Email != ""
}
