package database

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Maken-HQ-Team/meetmate/internal/models"
)

// ============================================================================
// Helper Functions
// ============================================================================

func generateProfile(name string) models.Profile {
	return models.Profile{
		UserID:   uuid.NewString(),
		Name:     name,
		Email:    name + "@example.com",
		Country:  "de",
		Timezone: "Europe/Berlin",
	}
}

func seedProfile(t *testing.T, ctx context.Context, db *DB, name string) models.Profile {
	t.Helper()
	p := generateProfile(name)
	require.NoError(t, db.UpsertProfile(ctx, p))
	return p
}

func generateWindow(ownerID string, day int, start, end string) models.AvailabilityWindow {
	return models.AvailabilityWindow{
		OwnerID:   ownerID,
		DayOfWeek: day,
		StartTime: start,
		EndTime:   end,
		Status:    models.StatusAvailable,
		Timezone:  "Europe/Berlin",
	}
}

func seedWindow(t *testing.T, ctx context.Context, db *DB, ownerID string, day int, start, end string) models.AvailabilityWindow {
	t.Helper()
	w, err := db.CreateWindow(ctx, generateWindow(ownerID, day, start, end))
	require.NoError(t, err)
	return w
}
