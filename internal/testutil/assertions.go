package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Maken-HQ-Team/meetmate/internal/models"
)

// AssertWindowEqual compares two windows ignoring timestamps, which may
// differ between write and read
func AssertWindowEqual(t *testing.T, expected, actual models.AvailabilityWindow) {
	t.Helper()

	assert.Equal(t, expected.ID, actual.ID, "ID should match")
	assert.Equal(t, expected.OwnerID, actual.OwnerID, "OwnerID should match")
	assert.Equal(t, expected.DayOfWeek, actual.DayOfWeek, "DayOfWeek should match")
	assert.Equal(t, expected.StartTime, actual.StartTime, "StartTime should match")
	assert.Equal(t, expected.EndTime, actual.EndTime, "EndTime should match")
	assert.Equal(t, expected.Status, actual.Status, "Status should match")
	assert.Equal(t, expected.Timezone, actual.Timezone, "Timezone should match")
}

// AssertSnapshotResolved asserts that a profile snapshot came from a real
// profile rather than a placeholder
func AssertSnapshotResolved(t *testing.T, snap models.ProfileSnapshot, displayName string) {
	t.Helper()

	assert.False(t, snap.Placeholder, "snapshot should not be a placeholder")
	assert.Equal(t, displayName, snap.DisplayName, "DisplayName should match")
}

// AssertTimeAlmostEqual asserts two times are within the given tolerance
func AssertTimeAlmostEqual(t *testing.T, expected, actual time.Time, tolerance time.Duration) {
	t.Helper()

	diff := expected.Sub(actual)
	if diff < 0 {
		diff = -diff
	}
	assert.LessOrEqual(t, diff, tolerance,
		"times differ by %v, tolerance %v", diff, tolerance)
}
