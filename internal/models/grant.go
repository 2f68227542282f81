package models

import (
	"database/sql"
	"fmt"
	"time"
)

// ShareGrant is the authorization edge from an owner to a viewer. A viewer
// may read the owner's availability windows only while IsActive is true.
// At most one active grant exists per (owner, viewer) pair.
type ShareGrant struct {
	ID       string       `json:"id"`
	OwnerID  string       `json:"owner_id"`
	ViewerID string       `json:"viewer_id"`
	IsActive bool         `json:"is_active"`
	SharedAt time.Time    `json:"shared_at"`
	ViewedAt sql.NullTime `json:"viewed_at"`
}

// Validate checks the grant invariants
func (g *ShareGrant) Validate() error {
	if g.OwnerID == "" {
		return fmt.Errorf("owner id is required")
	}
	if g.ViewerID == "" {
		return fmt.Errorf("viewer id is required")
	}
	if g.OwnerID == g.ViewerID {
		return fmt.Errorf("owner cannot share with themselves")
	}
	return nil
}

// GrantWithProfile pairs a grant with the resolved profile of its viewer,
// for the owner-facing "who can see my calendar" listing.
type GrantWithProfile struct {
	Grant   ShareGrant      `json:"grant"`
	Profile ProfileSnapshot `json:"profile"`
}
