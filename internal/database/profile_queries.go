package database

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/Maken-HQ-Team/meetmate/internal/models"
)

const (
	OpProfilesBatch = "profiles.batch"
	OpProfilesWrite = "profiles.write"
)

// GetProfilesByIDs batch-fetches profiles. IDs absent from the table are
// simply missing from the result; callers synthesize placeholders.
func (db *DB) GetProfilesByIDs(ctx context.Context, ids []string) ([]models.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if err := db.wait(ctx, OpProfilesBatch); err != nil {
		return nil, err
	}

	query := `
		SELECT user_id, name, email, country, bio, avatar_url, timezone
		FROM profiles
		WHERE user_id = ANY($1)
	`

	rows, err := db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profiles: %w", err)
	}
	defer rows.Close()

	var profiles []models.Profile
	for rows.Next() {
		var p models.Profile
		if err := rows.Scan(&p.UserID, &p.Name, &p.Email, &p.Country, &p.Bio, &p.AvatarURL, &p.Timezone); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profiles: %w", err)
	}

	return profiles, nil
}

// UpsertProfile inserts or refreshes a profile row keyed by user id
func (db *DB) UpsertProfile(ctx context.Context, p models.Profile) error {
	if err := db.wait(ctx, OpProfilesWrite); err != nil {
		return err
	}

	query := `
		INSERT INTO profiles (user_id, name, email, country, bio, avatar_url, timezone)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			country = EXCLUDED.country,
			bio = EXCLUDED.bio,
			avatar_url = EXCLUDED.avatar_url,
			timezone = EXCLUDED.timezone,
			updated_at = NOW()
	`

	if _, err := db.ExecContext(ctx, query, p.UserID, p.Name, p.Email, p.Country, p.Bio, p.AvatarURL, p.Timezone); err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}

	return nil
}
