package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Maken-HQ-Team/meetmate/internal/models"
)

// operation names used for rate limiting and metrics
const (
	OpWindowsFetch  = "windows.fetch"
	OpWindowsJoined = "windows.fetch_joined"
	OpWindowsWrite  = "windows.write"
)

// GetWindowsForOwners fetches availability windows for a set of owners,
// ordered by (day_of_week, start_time). This is the fallback path; profiles
// are resolved separately through the cache.
func (db *DB) GetWindowsForOwners(ctx context.Context, ownerIDs []string) ([]models.AvailabilityWindow, error) {
	if len(ownerIDs) == 0 {
		return nil, nil
	}
	if err := db.wait(ctx, OpWindowsFetch); err != nil {
		return nil, err
	}

	query := `
		SELECT id, owner_id, day_of_week, start_time, end_time, status, timezone, created_at, updated_at
		FROM availability_windows
		WHERE owner_id = ANY($1)
		ORDER BY day_of_week, start_time
	`

	rows, err := db.QueryContext(ctx, query, pq.Array(ownerIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch windows: %w", err)
	}
	defer rows.Close()

	return scanWindows(rows)
}

// GetWindowsWithProfiles is the optimized single-query path: windows joined
// with their owners' profiles, ordered by (day_of_week, start_time). A
// relationship-class error here means the caller must fall back to
// GetWindowsForOwners plus a batch profile fetch.
func (db *DB) GetWindowsWithProfiles(ctx context.Context, ownerIDs []string) ([]models.AvailabilityWindow, []models.Profile, error) {
	if len(ownerIDs) == 0 {
		return nil, nil, nil
	}
	if err := db.wait(ctx, OpWindowsJoined); err != nil {
		return nil, nil, err
	}

	query := `
		SELECT w.id, w.owner_id, w.day_of_week, w.start_time, w.end_time, w.status, w.timezone,
		       w.created_at, w.updated_at,
		       p.user_id, p.name, p.email, p.country, p.bio, p.avatar_url, p.timezone
		FROM availability_windows w
		JOIN profiles p ON p.user_id = w.owner_id
		WHERE w.owner_id = ANY($1)
		ORDER BY w.day_of_week, w.start_time
	`

	rows, err := db.QueryContext(ctx, query, pq.Array(ownerIDs))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch joined windows: %w", err)
	}
	defer rows.Close()

	var windows []models.AvailabilityWindow
	seen := make(map[string]bool)
	var profiles []models.Profile

	for rows.Next() {
		var w models.AvailabilityWindow
		var p models.Profile
		err := rows.Scan(
			&w.ID, &w.OwnerID, &w.DayOfWeek, &w.StartTime, &w.EndTime, &w.Status, &w.Timezone,
			&w.CreatedAt, &w.UpdatedAt,
			&p.UserID, &p.Name, &p.Email, &p.Country, &p.Bio, &p.AvatarURL, &p.Timezone,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan joined window: %w", err)
		}

		w.StartTime = models.NormalizeClock(w.StartTime)
		w.EndTime = models.NormalizeClock(w.EndTime)
		windows = append(windows, w)

		if !seen[p.UserID] {
			seen[p.UserID] = true
			profiles = append(profiles, p)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating joined windows: %w", err)
	}

	return windows, profiles, nil
}

// CreateWindow inserts a window owned by its OwnerID and returns it with
// generated fields populated
func (db *DB) CreateWindow(ctx context.Context, w models.AvailabilityWindow) (models.AvailabilityWindow, error) {
	if err := w.Validate(); err != nil {
		return models.AvailabilityWindow{}, fmt.Errorf("invalid window: %w", err)
	}
	if err := db.wait(ctx, OpWindowsWrite); err != nil {
		return models.AvailabilityWindow{}, err
	}

	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	w.StartTime = models.NormalizeClock(w.StartTime)
	w.EndTime = models.NormalizeClock(w.EndTime)

	query := `
		INSERT INTO availability_windows (id, owner_id, day_of_week, start_time, end_time, status, timezone)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err := db.QueryRowContext(ctx, query,
		w.ID, w.OwnerID, w.DayOfWeek, w.StartTime, w.EndTime, w.Status, w.Timezone,
	).Scan(&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return models.AvailabilityWindow{}, fmt.Errorf("failed to create window: %w", err)
	}

	return w, nil
}

// UpdateWindow mutates a window, scoped to its owner: a viewer holding only
// a share grant can never touch the row
func (db *DB) UpdateWindow(ctx context.Context, w models.AvailabilityWindow) error {
	if err := w.Validate(); err != nil {
		return fmt.Errorf("invalid window: %w", err)
	}
	if err := db.wait(ctx, OpWindowsWrite); err != nil {
		return err
	}

	query := `
		UPDATE availability_windows
		SET day_of_week = $3, start_time = $4, end_time = $5, status = $6, timezone = $7, updated_at = NOW()
		WHERE id = $1 AND owner_id = $2
	`

	result, err := db.ExecContext(ctx, query,
		w.ID, w.OwnerID, w.DayOfWeek,
		models.NormalizeClock(w.StartTime), models.NormalizeClock(w.EndTime),
		w.Status, w.Timezone,
	)
	if err != nil {
		return fmt.Errorf("failed to update window: %w", err)
	}

	return requireRowAffected(result, "window")
}

// DeleteWindow removes a window, scoped to its owner
func (db *DB) DeleteWindow(ctx context.Context, windowID, ownerID string) error {
	if err := db.wait(ctx, OpWindowsWrite); err != nil {
		return err
	}

	result, err := db.ExecContext(ctx,
		`DELETE FROM availability_windows WHERE id = $1 AND owner_id = $2`,
		windowID, ownerID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete window: %w", err)
	}

	return requireRowAffected(result, "window")
}

// ErrNotFound marks mutations that matched no row (wrong id or not owner)
var ErrNotFound = errors.New("not found")

func requireRowAffected(result sql.Result, entity string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", entity, ErrNotFound)
	}
	return nil
}

func scanWindows(rows *sql.Rows) ([]models.AvailabilityWindow, error) {
	var windows []models.AvailabilityWindow
	for rows.Next() {
		var w models.AvailabilityWindow
		err := rows.Scan(
			&w.ID, &w.OwnerID, &w.DayOfWeek, &w.StartTime, &w.EndTime,
			&w.Status, &w.Timezone, &w.CreatedAt, &w.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan window: %w", err)
		}
		w.StartTime = models.NormalizeClock(w.StartTime)
		w.EndTime = models.NormalizeClock(w.EndTime)
		windows = append(windows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating windows: %w", err)
	}
	return windows, nil
}
