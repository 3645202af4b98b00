package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinegate/internal/access"
)

func TestAddEntitlement(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.InsertUser(ctx, access.User{ID: "u1", Email: "u1@example.com", Role: access.RoleViewer}))

	require.NoError(t, s.AddEntitlement(ctx, "u1", "m1"))
	require.NoError(t, s.AddEntitlement(ctx, "u1", "m1"))
	require.NoError(t, s.AddEntitlement(ctx, "u1", "m2"))

	u, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, u.Entitlements)

	assert.ErrorIs(t, s.AddEntitlement(ctx, "ghost", "m1"), access.ErrNotFound)
}

func TestGetUserReturnsCopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.InsertUser(ctx, access.User{ID: "u1", Email: "u1@example.com", Entitlements: []string{"m1"}}))

	u, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	u.Entitlements[0] = "tampered"

	again, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, again.Entitlements)
}

func TestInsertUserEmailUnique(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.InsertUser(ctx, access.User{ID: "u1", Email: "a@example.com"}))
	assert.ErrorIs(t, s.InsertUser(ctx, access.User{ID: "u2", Email: "A@example.com"}), access.ErrEmailTaken)

	_, err := s.UserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, access.ErrNotFound)
}

func TestRequestQueries(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	reqs := []access.AccessRequest{
		{ID: "r1", UserID: "u1", Target: access.MovieTarget{MovieID: "m1"}, Status: access.StatusPending, CreatedAt: now},
		{ID: "r2", UserID: "u1", Target: access.MovieTarget{MovieID: "m2"}, Status: access.StatusApproved, CreatedAt: now},
		{ID: "r3", UserID: "u2", Target: access.MovieTarget{MovieID: "m1"}, Status: access.StatusApproved, CreatedAt: now},
		{ID: "r4", UserID: "u1", Target: access.CatalogTarget{Title: "Heat"}, Status: access.StatusApproved, CreatedAt: now},
	}
	for _, r := range reqs {
		require.NoError(t, s.InsertRequest(ctx, r))
	}

	got, err := s.RequestsForMovie(ctx, "u1", "m1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0].ID)

	mine, err := s.ListRequestsByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, mine, 3)

	approved, err := s.ApprovedMovieRequests(ctx)
	require.NoError(t, err)
	require.Len(t, approved, 2)
	assert.ElementsMatch(t, []string{"r2", "r3"}, []string{approved[0].ID, approved[1].ID})

	at := now.Add(time.Minute)
	require.NoError(t, s.UpdateDecision(ctx, "r1", access.StatusRejected, "no", at))
	r1, err := s.GetRequest(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, access.StatusRejected, r1.Status)
	assert.Equal(t, "no", r1.AdminResponse)
	assert.Equal(t, at, r1.UpdatedAt)

	assert.ErrorIs(t, s.UpdateDecision(ctx, "missing", access.StatusApproved, "", at), access.ErrNotFound)
	_, err = s.GetRequest(ctx, "missing")
	assert.ErrorIs(t, err, access.ErrNotFound)
}
