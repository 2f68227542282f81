package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateGrant_StartsPending(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	owner := seedProfile(t, ctx, db, "alice")
	viewer := seedProfile(t, ctx, db, "bob")

	g, err := db.CreateGrant(ctx, owner.UserID, viewer.UserID)

	require.NoError(t, err)
	assert.False(t, g.IsActive)
	assert.WithinDuration(t, time.Now(), g.SharedAt, 2*time.Second)

	// pending grants are invisible to the viewer's sync path
	grants, err := db.GetActiveGrantsForViewer(ctx, viewer.UserID)
	require.NoError(t, err)
	assert.Empty(t, grants)
}

func TestCreateGrant_SelfShareRejected(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	owner := seedProfile(t, ctx, db, "alice")

	_, err = db.CreateGrant(ctx, owner.UserID, owner.UserID)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid grant")
}

func TestActivateGrant_MakesVisible(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	owner := seedProfile(t, ctx, db, "alice")
	viewer := seedProfile(t, ctx, db, "bob")

	g, err := db.CreateGrant(ctx, owner.UserID, viewer.UserID)
	require.NoError(t, err)

	require.NoError(t, db.ActivateGrant(ctx, g.ID, viewer.UserID))

	grants, err := db.GetActiveGrantsForViewer(ctx, viewer.UserID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, owner.UserID, grants[0].OwnerID)
	assert.True(t, grants[0].IsActive)
	assert.False(t, grants[0].ViewedAt.Valid)
}

func TestActivateGrant_WrongViewer(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	owner := seedProfile(t, ctx, db, "alice")
	viewer := seedProfile(t, ctx, db, "bob")
	mallory := seedProfile(t, ctx, db, "mallory")

	g, err := db.CreateGrant(ctx, owner.UserID, viewer.UserID)
	require.NoError(t, err)

	err = db.ActivateGrant(ctx, g.ID, mallory.UserID)

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestActiveGrantPair_Unique(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	owner := seedProfile(t, ctx, db, "alice")
	viewer := seedProfile(t, ctx, db, "bob")

	g1, err := db.CreateGrant(ctx, owner.UserID, viewer.UserID)
	require.NoError(t, err)
	require.NoError(t, db.ActivateGrant(ctx, g1.ID, viewer.UserID))

	// a second pending grant may exist, but activating it hits the
	// partial unique index
	g2, err := db.CreateGrant(ctx, owner.UserID, viewer.UserID)
	require.NoError(t, err)

	err = db.ActivateGrant(ctx, g2.ID, viewer.UserID)

	assert.Error(t, err)
}

func TestDeleteGrant_EitherParty(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	owner := seedProfile(t, ctx, db, "alice")
	viewer := seedProfile(t, ctx, db, "bob")
	mallory := seedProfile(t, ctx, db, "mallory")

	g, err := db.CreateGrant(ctx, owner.UserID, viewer.UserID)
	require.NoError(t, err)

	// a stranger cannot revoke
	err = db.DeleteGrant(ctx, g.ID, mallory.UserID)
	assert.ErrorIs(t, err, ErrNotFound)

	// the viewer can
	require.NoError(t, db.DeleteGrant(ctx, g.ID, viewer.UserID))

	grants, err := db.GetGrantsForOwner(ctx, owner.UserID)
	require.NoError(t, err)
	assert.Empty(t, grants)
}

func TestTouchGrants_StampsViewedAt(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	alice := seedProfile(t, ctx, db, "alice")
	bob := seedProfile(t, ctx, db, "bob")
	viewer := seedProfile(t, ctx, db, "carol")

	g1, err := db.CreateGrant(ctx, alice.UserID, viewer.UserID)
	require.NoError(t, err)
	require.NoError(t, db.ActivateGrant(ctx, g1.ID, viewer.UserID))

	// pending grant stays untouched
	_, err = db.CreateGrant(ctx, bob.UserID, viewer.UserID)
	require.NoError(t, err)

	require.NoError(t, db.TouchGrants(ctx, viewer.UserID))

	grants, err := db.GetActiveGrantsForViewer(ctx, viewer.UserID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.True(t, grants[0].ViewedAt.Valid)
	assert.WithinDuration(t, time.Now(), grants[0].ViewedAt.Time, 2*time.Second)

	pending, err := db.GetGrantsForOwner(ctx, bob.UserID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.False(t, pending[0].ViewedAt.Valid)
}

func TestGetProfilesByIDs_MissingAreOmitted(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	alice := seedProfile(t, ctx, db, "alice")

	profiles, err := db.GetProfilesByIDs(ctx, []string{alice.UserID, "11111111-1111-1111-1111-111111111111"})

	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "alice", profiles[0].Name)
	assert.Equal(t, "Europe/Berlin", profiles[0].Timezone)
}

func TestUpsertProfile_Refreshes(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	p := seedProfile(t, ctx, db, "alice")

	p.Name = "Alice Renamed"
	p.Timezone = "America/New_York"
	require.NoError(t, db.UpsertProfile(ctx, p))

	profiles, err := db.GetProfilesByIDs(ctx, []string{p.UserID})
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "Alice Renamed", profiles[0].Name)
	assert.Equal(t, "America/New_York", profiles[0].Timezone)
}
