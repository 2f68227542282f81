package testutil

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/Maken-HQ-Team/meetmate/internal/models"
)

// GenerateProfile creates a test profile with a fresh user id
func GenerateProfile(name string) models.Profile {
	return models.Profile{
		UserID:   uuid.NewString(),
		Name:     name,
		Email:    fmt.Sprintf("%s@test.com", name),
		Country:  "de",
		Timezone: "Europe/Berlin",
	}
}

// GenerateProfileWithZone creates a test profile pinned to a timezone
func GenerateProfileWithZone(name, zone string) models.Profile {
	p := GenerateProfile(name)
	p.Timezone = zone
	return p
}

// GenerateWindow creates a test availability window owned by ownerID
func GenerateWindow(ownerID string, day int, start, end string) models.AvailabilityWindow {
	return models.AvailabilityWindow{
		OwnerID:   ownerID,
		DayOfWeek: day,
		StartTime: start,
		EndTime:   end,
		Status:    models.StatusAvailable,
		Timezone:  "Europe/Berlin",
	}
}
