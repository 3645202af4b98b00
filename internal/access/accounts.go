package access

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"cinegate/internal/validation"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
)

// Accounts manages user records and password checks.
type Accounts struct {
	users Users
	log   zerolog.Logger
	now   func() time.Time
	cost  int
}

func NewAccounts(users Users, log zerolog.Logger) *Accounts {
	return &Accounts{
		users: users,
		log:   log.With().Str("component", "accounts").Logger(),
		now:   time.Now,
		cost:  bcrypt.DefaultCost,
	}
}

// WithHashCost returns a copy using the given bcrypt cost. Tests use
// bcrypt.MinCost.
func (a *Accounts) WithHashCost(cost int) *Accounts {
	c := *a
	c.cost = cost
	return &c
}

type newUserForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// bcrypt rejects passwords longer than 72 bytes.
type passwordForm struct {
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}

// CreateUser adds a user. Only administrators may call it.
func (a *Accounts) CreateUser(ctx context.Context, caller *Principal, email, username, password string, role Role) (User, error) {
	if caller == nil {
		return User{}, ErrUnauthenticated
	}
	if !isAdmin(caller) {
		return User{}, ErrForbidden
	}
	return a.create(ctx, email, username, password, role, false)
}

// EnsureAdmin creates the bootstrap administrator unless a user with that
// email already exists.
func (a *Accounts) EnsureAdmin(ctx context.Context, email, password string) error {
	_, err := a.users.UserByEmail(ctx, normalizeEmail(email))
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	u, err := a.create(ctx, email, "", password, RoleAdmin, true)
	if err != nil {
		return err
	}
	a.log.Info().Str("user", u.ID).Str("email", u.Email).Msg("bootstrap admin created")
	return nil
}

// Authenticate checks an email and password pair.
func (a *Accounts) Authenticate(ctx context.Context, email, password string) (User, error) {
	u, err := a.users.UserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		a.log.Error().Err(err).Msg("load user for login")
		return User{}, persistence("load user", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// ChangePassword replaces the caller's password after checking the current
// one, and clears the must-change flag.
func (a *Accounts) ChangePassword(ctx context.Context, caller *Principal, oldPassword, newPassword string) (User, error) {
	if caller == nil {
		return User{}, ErrUnauthenticated
	}
	form := passwordForm{NewPassword: newPassword}
	if fe := validation.Struct(&form); fe != nil {
		return User{}, &ValidationError{Field: fe.Field, Message: fe.Message()}
	}
	u, err := a.users.GetUser(ctx, caller.ID)
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, persistence("load user", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(oldPassword)) != nil {
		return User{}, ErrInvalidCredentials
	}
	hash, err := a.hash(newPassword, "new_password")
	if err != nil {
		return User{}, err
	}
	if err := a.users.UpdatePassword(ctx, u.ID, string(hash)); err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrNotFound
		}
		a.log.Error().Err(err).Str("user", u.ID).Msg("update password")
		return User{}, persistence("update password", err)
	}
	u.PasswordHash = string(hash)
	u.MustChangePassword = false
	a.log.Info().Str("user", u.ID).Msg("password changed")
	return u, nil
}

func (a *Accounts) create(ctx context.Context, email, username, password string, role Role, mustChange bool) (User, error) {
	email = normalizeEmail(email)
	form := newUserForm{Email: email, Password: password}
	if fe := validation.Struct(&form); fe != nil {
		return User{}, &ValidationError{Field: fe.Field, Message: fe.Message()}
	}
	if _, ok := ParseRole(string(role)); !ok {
		return User{}, &ValidationError{Field: "role", Message: "role must be viewer or admin"}
	}
	if _, err := a.users.UserByEmail(ctx, email); err == nil {
		return User{}, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return User{}, persistence("check email", err)
	}
	hash, err := a.hash(password, "password")
	if err != nil {
		return User{}, err
	}
	u := User{
		ID:                 uuid.NewString(),
		Email:              email,
		Username:           normalizeUsername(email, username),
		PasswordHash:       string(hash),
		Role:               role,
		MustChangePassword: mustChange,
		Entitlements:       []string{},
		CreatedAt:          a.now().UTC(),
	}
	if err := a.users.InsertUser(ctx, u); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return User{}, ErrEmailTaken
		}
		a.log.Error().Err(err).Str("email", email).Msg("insert user")
		return User{}, persistence("insert user", err)
	}
	return u, nil
}

// hash runs bcrypt. The form checks length in characters; bcrypt's limit is
// in bytes, so multibyte passwords can still be too long here.
func (a *Accounts) hash(password, field string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, &ValidationError{Field: field, Message: field + " must be at most 72 bytes"}
	}
	return hash, err
}

// normalizeEmail lowercases addresses so lookups match on every store.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeUsername(email, username string) string {
	name := strings.TrimSpace(username)
	if name != "" {
		return name
	}
	clean := strings.TrimSpace(email)
	if clean != "" {
		if at := strings.Index(clean, "@"); at > 0 {
			return clean[:at]
		}
		return clean
	}
	return "user"
}
