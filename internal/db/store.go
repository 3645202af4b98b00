package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"cinegate/internal/access"
)

const requestColumns = `id,user_id,kind,title,description,movie_id,status,admin_response,created_at,updated_at`

const userColumns = `id,email,username,password_hash,role,must_change,entitlements,created_at`

// Store is the ScyllaDB access.Store. Entitlements are a CQL set, so adding
// a movie id is a set union and repeats are harmless.
type Store struct {
	session  *gocql.Session
	keyspace string
}

func NewStore(session *gocql.Session, keyspace string) *Store {
	return &Store{session: session, keyspace: keyspace}
}

func (s *Store) Close() { s.session.Close() }

func (s *Store) q(ctx context.Context, stmt string, args ...interface{}) *gocql.Query {
	return s.session.Query(fmt.Sprintf(stmt, s.keyspace), args...).WithContext(ctx)
}

func (s *Store) InsertRequest(ctx context.Context, req access.AccessRequest) error {
	id, err := gocql.ParseUUID(req.ID)
	if err != nil {
		return fmt.Errorf("request id: %w", err)
	}
	userID, err := gocql.ParseUUID(req.UserID)
	if err != nil {
		return fmt.Errorf("user id: %w", err)
	}
	kind, title, description, movieID := access.RecordFromTarget(req.Target)
	return s.q(ctx, `INSERT INTO %s.access_requests (`+requestColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		id, userID, string(kind), title, description, movieID, string(req.Status), req.AdminResponse, req.CreatedAt, nullTime(req.UpdatedAt)).
		Exec()
}

func (s *Store) GetRequest(ctx context.Context, id string) (access.AccessRequest, error) {
	uid, err := gocql.ParseUUID(id)
	if err != nil {
		return access.AccessRequest{}, access.ErrNotFound
	}
	var r requestRow
	err = s.q(ctx, `SELECT `+requestColumns+` FROM %s.access_requests WHERE id=?`, uid).Scan(r.dest()...)
	if errors.Is(err, gocql.ErrNotFound) {
		return access.AccessRequest{}, access.ErrNotFound
	}
	if err != nil {
		return access.AccessRequest{}, err
	}
	return r.request(), nil
}

func (s *Store) ListRequests(ctx context.Context) ([]access.AccessRequest, error) {
	return s.collect(s.q(ctx, `SELECT `+requestColumns+` FROM %s.access_requests`), nil)
}

func (s *Store) ListRequestsByUser(ctx context.Context, userID string) ([]access.AccessRequest, error) {
	uid, err := gocql.ParseUUID(userID)
	if err != nil {
		return []access.AccessRequest{}, nil
	}
	return s.collect(s.q(ctx, `SELECT `+requestColumns+` FROM %s.access_requests WHERE user_id=?`, uid), nil)
}

func (s *Store) RequestsForMovie(ctx context.Context, userID, movieID string) ([]access.AccessRequest, error) {
	uid, err := gocql.ParseUUID(userID)
	if err != nil {
		return []access.AccessRequest{}, nil
	}
	return s.collect(s.q(ctx, `SELECT `+requestColumns+` FROM %s.access_requests WHERE user_id=?`, uid),
		func(r access.AccessRequest) bool {
			id, ok := r.MovieID()
			return ok && id == movieID
		})
}

func (s *Store) ApprovedMovieRequests(ctx context.Context) ([]access.AccessRequest, error) {
	return s.collect(s.q(ctx, `SELECT `+requestColumns+` FROM %s.access_requests WHERE status=?`, string(access.StatusApproved)),
		func(r access.AccessRequest) bool {
			_, ok := r.MovieID()
			return ok
		})
}

func (s *Store) UpdateDecision(ctx context.Context, id string, status access.Status, adminResponse string, at time.Time) error {
	uid, err := gocql.ParseUUID(id)
	if err != nil {
		return access.ErrNotFound
	}
	applied, err := s.q(ctx, `UPDATE %s.access_requests SET status=?, admin_response=?, updated_at=? WHERE id=? IF EXISTS`,
		string(status), adminResponse, at, uid).ScanCAS()
	if err != nil {
		return err
	}
	if !applied {
		return access.ErrNotFound
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (access.User, error) {
	uid, err := gocql.ParseUUID(id)
	if err != nil {
		return access.User{}, access.ErrNotFound
	}
	return s.scanUser(s.q(ctx, `SELECT `+userColumns+` FROM %s.users WHERE id=?`, uid))
}

func (s *Store) UserByEmail(ctx context.Context, email string) (access.User, error) {
	return s.scanUser(s.q(ctx, `SELECT `+userColumns+` FROM %s.users WHERE email=? LIMIT 1`, email))
}

func (s *Store) InsertUser(ctx context.Context, u access.User) error {
	id, err := gocql.ParseUUID(u.ID)
	if err != nil {
		return fmt.Errorf("user id: %w", err)
	}
	return s.q(ctx, `INSERT INTO %s.users (`+userColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		id, u.Email, u.Username, u.PasswordHash, string(u.Role), u.MustChangePassword, u.Entitlements, u.CreatedAt).
		Exec()
}

func (s *Store) AddEntitlement(ctx context.Context, userID, movieID string) error {
	uid, err := gocql.ParseUUID(userID)
	if err != nil {
		return access.ErrNotFound
	}
	var existing gocql.UUID
	err = s.q(ctx, `SELECT id FROM %s.users WHERE id=?`, uid).Scan(&existing)
	if errors.Is(err, gocql.ErrNotFound) {
		return access.ErrNotFound
	}
	if err != nil {
		return err
	}
	return s.q(ctx, `UPDATE %s.users SET entitlements = entitlements + ? WHERE id=?`, []string{movieID}, uid).Exec()
}

func (s *Store) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	uid, err := gocql.ParseUUID(userID)
	if err != nil {
		return access.ErrNotFound
	}
	applied, err := s.q(ctx, `UPDATE %s.users SET password_hash=?, must_change=false WHERE id=? IF EXISTS`,
		passwordHash, uid).ScanCAS()
	if err != nil {
		return err
	}
	if !applied {
		return access.ErrNotFound
	}
	return nil
}

func (s *Store) scanUser(q *gocql.Query) (access.User, error) {
	var (
		u    access.User
		id   gocql.UUID
		role string
	)
	err := q.Scan(&id, &u.Email, &u.Username, &u.PasswordHash, &role, &u.MustChangePassword, &u.Entitlements, &u.CreatedAt)
	if errors.Is(err, gocql.ErrNotFound) {
		return access.User{}, access.ErrNotFound
	}
	if err != nil {
		return access.User{}, err
	}
	u.ID = id.String()
	u.Role, _ = access.ParseRole(role)
	if u.Entitlements == nil {
		u.Entitlements = []string{}
	}
	return u, nil
}

func (s *Store) collect(q *gocql.Query, keep func(access.AccessRequest) bool) ([]access.AccessRequest, error) {
	out := make([]access.AccessRequest, 0)
	iter := q.Iter()
	var r requestRow
	for iter.Scan(r.dest()...) {
		req := r.request()
		if keep == nil || keep(req) {
			out = append(out, req)
		}
		r = requestRow{}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

type requestRow struct {
	id            gocql.UUID
	userID        gocql.UUID
	kind          string
	title         string
	description   string
	movieID       string
	status        string
	adminResponse string
	createdAt     time.Time
	updatedAt     time.Time
}

func (r *requestRow) dest() []interface{} {
	return []interface{}{&r.id, &r.userID, &r.kind, &r.title, &r.description, &r.movieID, &r.status, &r.adminResponse, &r.createdAt, &r.updatedAt}
}

func (r *requestRow) request() access.AccessRequest {
	status, ok := access.ParseStatus(r.status)
	if !ok {
		status = access.StatusPending
	}
	return access.AccessRequest{
		ID:            r.id.String(),
		UserID:        r.userID.String(),
		Target:        access.TargetFromRecord(r.kind, r.title, r.description, r.movieID),
		Status:        status,
		AdminResponse: r.adminResponse,
		CreatedAt:     r.createdAt,
		UpdatedAt:     r.updatedAt,
	}
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
