package access_test

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"cinegate/internal/access"
	"cinegate/internal/memstore"
)

func newAccounts() (*memstore.Store, *access.Accounts) {
	store := memstore.New()
	return store, access.NewAccounts(store, zerolog.Nop()).WithHashCost(bcrypt.MinCost)
}

func TestEnsureAdmin(t *testing.T) {
	store, accounts := newAccounts()
	ctx := context.Background()

	require.NoError(t, accounts.EnsureAdmin(ctx, "root@example.com", "s3cret-pass"))
	u, err := store.UserByEmail(ctx, "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, access.RoleAdmin, u.Role)
	assert.True(t, u.MustChangePassword)
	assert.Equal(t, "root", u.Username)
	assert.NotEqual(t, "s3cret-pass", u.PasswordHash)

	// A second call is a no-op.
	require.NoError(t, accounts.EnsureAdmin(ctx, "root@example.com", "other-pass"))
	again, err := store.UserByEmail(ctx, "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)
}

func TestAuthenticate(t *testing.T) {
	_, accounts := newAccounts()
	ctx := context.Background()
	require.NoError(t, accounts.EnsureAdmin(ctx, "root@example.com", "s3cret-pass"))

	u, err := accounts.Authenticate(ctx, " root@example.com ", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, access.RoleAdmin, u.Role)

	_, err = accounts.Authenticate(ctx, "root@example.com", "wrong-pass")
	assert.ErrorIs(t, err, access.ErrInvalidCredentials)
	_, err = accounts.Authenticate(ctx, "nobody@example.com", "s3cret-pass")
	assert.ErrorIs(t, err, access.ErrInvalidCredentials)
}

func TestCreateUser(t *testing.T) {
	store, accounts := newAccounts()
	ctx := context.Background()

	u, err := accounts.CreateUser(ctx, admin, "viewer@example.com", "", "password1", access.RoleViewer)
	require.NoError(t, err)
	assert.Equal(t, access.RoleViewer, u.Role)
	assert.Equal(t, "viewer", u.Username)
	assert.Empty(t, u.Entitlements)
	assert.False(t, u.MustChangePassword)

	stored, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "viewer@example.com", stored.Email)

	_, err = accounts.CreateUser(ctx, admin, "VIEWER@example.com", "", "password1", access.RoleViewer)
	assert.ErrorIs(t, err, access.ErrEmailTaken)
}

func TestCreateUser_Refusals(t *testing.T) {
	_, accounts := newAccounts()
	ctx := context.Background()

	_, err := accounts.CreateUser(ctx, nil, "a@example.com", "", "password1", access.RoleViewer)
	assert.ErrorIs(t, err, access.ErrUnauthenticated)

	_, err = accounts.CreateUser(ctx, viewer, "a@example.com", "", "password1", access.RoleViewer)
	assert.ErrorIs(t, err, access.ErrForbidden)

	tests := []struct {
		name     string
		email    string
		password string
		role     access.Role
		field    string
	}{
		{"bad email", "not-an-email", "password1", access.RoleViewer, "email"},
		{"short password", "a@example.com", "short", access.RoleViewer, "password"},
		{"password over bcrypt limit", "a@example.com", strings.Repeat("p", 73), access.RoleViewer, "password"},
		{"multibyte password over bcrypt limit", "a@example.com", strings.Repeat("é", 40), access.RoleViewer, "password"},
		{"unknown role", "a@example.com", "password1", "owner", "role"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := accounts.CreateUser(ctx, admin, tt.email, "", tt.password, tt.role)
			var ve *access.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestChangePassword(t *testing.T) {
	store, accounts := newAccounts()
	ctx := context.Background()
	require.NoError(t, accounts.EnsureAdmin(ctx, "root@example.com", "s3cret-pass"))
	root, err := store.UserByEmail(ctx, "root@example.com")
	require.NoError(t, err)
	require.True(t, root.MustChangePassword)
	caller := &access.Principal{ID: root.ID, Role: access.RoleAdmin}

	u, err := accounts.ChangePassword(ctx, caller, "s3cret-pass", "brand-new-pass")
	require.NoError(t, err)
	assert.False(t, u.MustChangePassword)

	stored, err := store.GetUser(ctx, root.ID)
	require.NoError(t, err)
	assert.False(t, stored.MustChangePassword)

	_, err = accounts.Authenticate(ctx, "root@example.com", "s3cret-pass")
	assert.ErrorIs(t, err, access.ErrInvalidCredentials)
	_, err = accounts.Authenticate(ctx, "root@example.com", "brand-new-pass")
	assert.NoError(t, err)
}

func TestChangePassword_Refusals(t *testing.T) {
	store, accounts := newAccounts()
	ctx := context.Background()
	require.NoError(t, accounts.EnsureAdmin(ctx, "root@example.com", "s3cret-pass"))
	root, err := store.UserByEmail(ctx, "root@example.com")
	require.NoError(t, err)
	caller := &access.Principal{ID: root.ID, Role: access.RoleAdmin}

	_, err = accounts.ChangePassword(ctx, nil, "s3cret-pass", "brand-new-pass")
	assert.ErrorIs(t, err, access.ErrUnauthenticated)

	_, err = accounts.ChangePassword(ctx, caller, "wrong-pass", "brand-new-pass")
	assert.ErrorIs(t, err, access.ErrInvalidCredentials)

	for _, pw := range []string{"short", strings.Repeat("p", 73)} {
		_, err = accounts.ChangePassword(ctx, caller, "s3cret-pass", pw)
		var ve *access.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "new_password", ve.Field)
	}

	_, err = accounts.ChangePassword(ctx, &access.Principal{ID: "ghost", Role: access.RoleViewer}, "x", "brand-new-pass")
	assert.ErrorIs(t, err, access.ErrNotFound)

	stored, err := store.GetUser(ctx, root.ID)
	require.NoError(t, err)
	assert.True(t, stored.MustChangePassword, "refused changes leave the flag set")
}
