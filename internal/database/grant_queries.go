package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Maken-HQ-Team/meetmate/internal/models"
)

const (
	OpGrantsFetch = "grants.fetch"
	OpGrantsWrite = "grants.write"
	OpGrantsTouch = "grants.touch"
)

// GetActiveGrantsForViewer returns every active grant authorizing the
// viewer to read an owner's windows
func (db *DB) GetActiveGrantsForViewer(ctx context.Context, viewerID string) ([]models.ShareGrant, error) {
	if err := db.wait(ctx, OpGrantsFetch); err != nil {
		return nil, err
	}

	query := `
		SELECT id, owner_id, viewer_id, is_active, shared_at, viewed_at
		FROM share_grants
		WHERE viewer_id = $1 AND is_active
		ORDER BY shared_at
	`

	rows, err := db.QueryContext(ctx, query, viewerID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch grants for viewer: %w", err)
	}
	defer rows.Close()

	var grants []models.ShareGrant
	for rows.Next() {
		var g models.ShareGrant
		if err := rows.Scan(&g.ID, &g.OwnerID, &g.ViewerID, &g.IsActive, &g.SharedAt, &g.ViewedAt); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating grants: %w", err)
	}

	return grants, nil
}

// GetGrantsForOwner returns the grants an owner has issued, pending and
// active alike, for the "who can see my calendar" view
func (db *DB) GetGrantsForOwner(ctx context.Context, ownerID string) ([]models.ShareGrant, error) {
	if err := db.wait(ctx, OpGrantsFetch); err != nil {
		return nil, err
	}

	query := `
		SELECT id, owner_id, viewer_id, is_active, shared_at, viewed_at
		FROM share_grants
		WHERE owner_id = $1
		ORDER BY shared_at
	`

	rows, err := db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch grants for owner: %w", err)
	}
	defer rows.Close()

	var grants []models.ShareGrant
	for rows.Next() {
		var g models.ShareGrant
		if err := rows.Scan(&g.ID, &g.OwnerID, &g.ViewerID, &g.IsActive, &g.SharedAt, &g.ViewedAt); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating grants: %w", err)
	}

	return grants, nil
}

// CreateGrant creates a pending share from owner to viewer; the viewer
// activates it by accepting
func (db *DB) CreateGrant(ctx context.Context, ownerID, viewerID string) (models.ShareGrant, error) {
	g := models.ShareGrant{
		ID:       uuid.NewString(),
		OwnerID:  ownerID,
		ViewerID: viewerID,
	}
	if err := g.Validate(); err != nil {
		return models.ShareGrant{}, fmt.Errorf("invalid grant: %w", err)
	}
	if err := db.wait(ctx, OpGrantsWrite); err != nil {
		return models.ShareGrant{}, err
	}

	query := `
		INSERT INTO share_grants (id, owner_id, viewer_id, is_active)
		VALUES ($1, $2, $3, FALSE)
		RETURNING shared_at
	`

	if err := db.QueryRowContext(ctx, query, g.ID, g.OwnerID, g.ViewerID).Scan(&g.SharedAt); err != nil {
		return models.ShareGrant{}, fmt.Errorf("failed to create grant: %w", err)
	}

	return g, nil
}

// ActivateGrant flips a pending grant active, scoped to the accepting viewer
func (db *DB) ActivateGrant(ctx context.Context, grantID, viewerID string) error {
	if err := db.wait(ctx, OpGrantsWrite); err != nil {
		return err
	}

	result, err := db.ExecContext(ctx,
		`UPDATE share_grants SET is_active = TRUE WHERE id = $1 AND viewer_id = $2 AND NOT is_active`,
		grantID, viewerID,
	)
	if err != nil {
		return fmt.Errorf("failed to activate grant: %w", err)
	}

	return requireRowAffected(result, "grant")
}

// DeleteGrant removes a grant; either party may revoke
func (db *DB) DeleteGrant(ctx context.Context, grantID, partyID string) error {
	if err := db.wait(ctx, OpGrantsWrite); err != nil {
		return err
	}

	result, err := db.ExecContext(ctx,
		`DELETE FROM share_grants WHERE id = $1 AND (owner_id = $2 OR viewer_id = $2)`,
		grantID, partyID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete grant: %w", err)
	}

	return requireRowAffected(result, "grant")
}

// TouchGrants stamps viewed_at on every active grant held by the viewer.
// Called fire-and-forget at the end of a sync cycle; a failure here never
// fails the cycle.
func (db *DB) TouchGrants(ctx context.Context, viewerID string) error {
	if err := db.wait(ctx, OpGrantsTouch); err != nil {
		return err
	}

	_, err := db.ExecContext(ctx,
		`UPDATE share_grants SET viewed_at = NOW() WHERE viewer_id = $1 AND is_active`,
		viewerID,
	)
	if err != nil {
		return fmt.Errorf("failed to touch grants: %w", err)
	}

	return nil
}
