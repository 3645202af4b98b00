//go:build integration

package pgstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"cinegate/internal/access"
	pgdb "cinegate/pkg/db"
)

func startPostgres(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "cinegate",
				"POSTGRES_PASSWORD": "cinegate",
				"POSTGRES_DB":       "cinegate",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	url := fmt.Sprintf("postgres://cinegate:cinegate@%s:%s/cinegate?sslmode=disable", host, port.Port())
	pool, err := pgdb.Connect(ctx, url, 4)
	require.NoError(t, err)
	st := New(pool)
	t.Cleanup(st.Close)
	require.NoError(t, st.Migrate(ctx))
	return st
}

func TestStore_Postgres(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, st.InsertUser(ctx, access.User{ID: "u1", Email: "u1@example.com", Username: "u1", PasswordHash: "h1", Role: access.RoleViewer, MustChangePassword: true, CreatedAt: now}))
	assert.ErrorIs(t, st.InsertUser(ctx, access.User{ID: "u2", Email: "u1@example.com", Role: access.RoleViewer, CreatedAt: now}), access.ErrEmailTaken)

	byEmail, err := st.UserByEmail(ctx, "U1@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", byEmail.ID)
	assert.Empty(t, byEmail.Entitlements)

	require.NoError(t, st.AddEntitlement(ctx, "u1", "m1"))
	require.NoError(t, st.AddEntitlement(ctx, "u1", "m1"))
	require.NoError(t, st.AddEntitlement(ctx, "u1", "m2"))
	assert.ErrorIs(t, st.AddEntitlement(ctx, "ghost", "m1"), access.ErrNotFound)
	u, err := st.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, u.Entitlements)

	require.NoError(t, st.UpdatePassword(ctx, "u1", "h2"))
	assert.ErrorIs(t, st.UpdatePassword(ctx, "ghost", "h2"), access.ErrNotFound)
	u, err = st.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "h2", u.PasswordHash)
	assert.False(t, u.MustChangePassword)

	movie := access.AccessRequest{ID: "r1", UserID: "u1", Target: access.MovieTarget{MovieID: "m9"}, Status: access.StatusPending, CreatedAt: now}
	catalog := access.AccessRequest{ID: "r2", UserID: "u1", Target: access.CatalogTarget{Title: "Heat", Description: "Michael Mann"}, Status: access.StatusPending, CreatedAt: now.Add(time.Second)}
	require.NoError(t, st.InsertRequest(ctx, movie))
	require.NoError(t, st.InsertRequest(ctx, catalog))

	got, err := st.GetRequest(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, access.CatalogTarget{Title: "Heat", Description: "Michael Mann"}, got.Target)
	assert.True(t, got.UpdatedAt.IsZero())

	history, err := st.RequestsForMovie(ctx, "u1", "m9")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "r1", history[0].ID)

	require.NoError(t, st.UpdateDecision(ctx, "r1", access.StatusApproved, "enjoy", now.Add(time.Minute)))
	assert.ErrorIs(t, st.UpdateDecision(ctx, "missing", access.StatusApproved, "", now), access.ErrNotFound)

	approved, err := st.ApprovedMovieRequests(ctx)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, "enjoy", approved[0].AdminResponse)

	all, err := st.ListRequests(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "r2", all[0].ID)

	_, err = st.GetRequest(ctx, "missing")
	assert.ErrorIs(t, err, access.ErrNotFound)
}
