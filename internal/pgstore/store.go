// Package pgstore is the PostgreSQL access.Store.
package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"cinegate/internal/access"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            text PRIMARY KEY,
	email         text NOT NULL UNIQUE,
	username      text NOT NULL DEFAULT '',
	password_hash text NOT NULL DEFAULT '',
	role          text NOT NULL DEFAULT 'viewer',
	must_change   boolean NOT NULL DEFAULT false,
	entitlements  text[] NOT NULL DEFAULT '{}',
	created_at    timestamptz NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS access_requests (
	id             text PRIMARY KEY,
	user_id        text NOT NULL REFERENCES users(id),
	kind           text NOT NULL,
	title          text NOT NULL DEFAULT '',
	description    text NOT NULL DEFAULT '',
	movie_id       text NOT NULL DEFAULT '',
	status         text NOT NULL DEFAULT 'pending',
	admin_response text NOT NULL DEFAULT '',
	created_at     timestamptz NOT NULL DEFAULT now(),
	updated_at     timestamptz
);
CREATE INDEX IF NOT EXISTS access_requests_user_movie_idx ON access_requests (user_id, movie_id);
CREATE INDEX IF NOT EXISTS access_requests_status_idx ON access_requests (status);
`

const requestColumns = `id,user_id,kind,title,description,movie_id,status,admin_response,created_at,updated_at`

const userColumns = `id,email,username,password_hash,role,must_change,entitlements,created_at`

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) InsertRequest(ctx context.Context, req access.AccessRequest) error {
	kind, title, description, movieID := access.RecordFromTarget(req.Target)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO access_requests (`+requestColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		req.ID, req.UserID, string(kind), title, description, movieID,
		string(req.Status), req.AdminResponse, req.CreatedAt, nullTime(req.UpdatedAt))
	return err
}

func (s *Store) GetRequest(ctx context.Context, id string) (access.AccessRequest, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+requestColumns+` FROM access_requests WHERE id=$1`, id)
	if err != nil {
		return access.AccessRequest{}, err
	}
	reqs, err := collectRequests(rows)
	if err != nil {
		return access.AccessRequest{}, err
	}
	if len(reqs) == 0 {
		return access.AccessRequest{}, access.ErrNotFound
	}
	return reqs[0], nil
}

func (s *Store) ListRequests(ctx context.Context) ([]access.AccessRequest, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+requestColumns+` FROM access_requests ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return collectRequests(rows)
}

func (s *Store) ListRequestsByUser(ctx context.Context, userID string) ([]access.AccessRequest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+requestColumns+` FROM access_requests
		WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return collectRequests(rows)
}

func (s *Store) RequestsForMovie(ctx context.Context, userID, movieID string) ([]access.AccessRequest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+requestColumns+` FROM access_requests
		WHERE user_id=$1 AND kind=$2 AND movie_id=$3`, userID, string(access.KindMovie), movieID)
	if err != nil {
		return nil, err
	}
	return collectRequests(rows)
}

func (s *Store) ApprovedMovieRequests(ctx context.Context) ([]access.AccessRequest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+requestColumns+` FROM access_requests
		WHERE status=$1 AND kind=$2`, string(access.StatusApproved), string(access.KindMovie))
	if err != nil {
		return nil, err
	}
	return collectRequests(rows)
}

func (s *Store) UpdateDecision(ctx context.Context, id string, status access.Status, adminResponse string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE access_requests
		SET status=$1, admin_response=$2, updated_at=$3
		WHERE id=$4`, string(status), adminResponse, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return access.ErrNotFound
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (access.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
}

func (s *Store) UserByEmail(ctx context.Context, email string) (access.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email)=lower($1)`, email))
}

func (s *Store) InsertUser(ctx context.Context, u access.User) error {
	ents := u.Entitlements
	if ents == nil {
		ents = []string{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		u.ID, u.Email, u.Username, u.PasswordHash, string(u.Role), u.MustChangePassword, ents, u.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return access.ErrEmailTaken
	}
	return err
}

// AddEntitlement appends movieID unless the array already holds it. The
// check and the append happen in one row update.
func (s *Store) AddEntitlement(ctx context.Context, userID, movieID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET entitlements = CASE
			WHEN $2::text = ANY(entitlements) THEN entitlements
			ELSE array_append(entitlements, $2::text)
		END
		WHERE id=$1`, userID, movieID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return access.ErrNotFound
	}
	return nil
}

func (s *Store) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET password_hash=$2, must_change=false
		WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return access.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (access.User, error) {
	var (
		u    access.User
		role string
	)
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &role, &u.MustChangePassword, &u.Entitlements, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return access.User{}, access.ErrNotFound
	}
	if err != nil {
		return access.User{}, err
	}
	u.Role, _ = access.ParseRole(role)
	if u.Entitlements == nil {
		u.Entitlements = []string{}
	}
	return u, nil
}

func collectRequests(rows pgx.Rows) ([]access.AccessRequest, error) {
	defer rows.Close()
	out := make([]access.AccessRequest, 0)
	for rows.Next() {
		var (
			id, userID, kind, title, description string
			movieID, status, adminResponse       string
			createdAt                            time.Time
			updatedAt                            *time.Time
		)
		if err := rows.Scan(&id, &userID, &kind, &title, &description, &movieID, &status, &adminResponse, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		st, ok := access.ParseStatus(status)
		if !ok {
			st = access.StatusPending
		}
		req := access.AccessRequest{
			ID:            id,
			UserID:        userID,
			Target:        access.TargetFromRecord(kind, title, description, movieID),
			Status:        st,
			AdminResponse: adminResponse,
			CreatedAt:     createdAt,
		}
		if updatedAt != nil {
			req.UpdatedAt = *updatedAt
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
