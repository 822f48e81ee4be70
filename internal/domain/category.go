package domain

import "time"

// Category is a ticket domain such as "Hostel" or "College".
type Category struct {
	ID          int64
	Name        string
	Slug        string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Scope is a location inside a category, used to pick a narrower escalation chain.
type Scope struct {
	ID         int64
	CategoryID int64
	Name       string
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
