// Package memstore is an in-process access.Store used for local runs and
// tests. Data is lost when the process exits.
package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"cinegate/internal/access"
)

type Store struct {
	mu       sync.Mutex
	users    map[string]access.User
	requests map[string]access.AccessRequest
}

func New() *Store {
	return &Store{
		users:    make(map[string]access.User),
		requests: make(map[string]access.AccessRequest),
	}
}

func (s *Store) Close() {}

func (s *Store) InsertRequest(_ context.Context, req access.AccessRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req.Requester = nil
	s.requests[req.ID] = req
	return nil
}

func (s *Store) GetRequest(_ context.Context, id string) (access.AccessRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return access.AccessRequest{}, access.ErrNotFound
	}
	return req, nil
}

func (s *Store) ListRequests(_ context.Context) ([]access.AccessRequest, error) {
	return s.filter(func(access.AccessRequest) bool { return true }), nil
}

func (s *Store) ListRequestsByUser(_ context.Context, userID string) ([]access.AccessRequest, error) {
	return s.filter(func(r access.AccessRequest) bool { return r.UserID == userID }), nil
}

func (s *Store) RequestsForMovie(_ context.Context, userID, movieID string) ([]access.AccessRequest, error) {
	return s.filter(func(r access.AccessRequest) bool {
		id, ok := r.MovieID()
		return ok && id == movieID && r.UserID == userID
	}), nil
}

func (s *Store) ApprovedMovieRequests(_ context.Context) ([]access.AccessRequest, error) {
	return s.filter(func(r access.AccessRequest) bool {
		_, ok := r.MovieID()
		return ok && r.Status == access.StatusApproved
	}), nil
}

func (s *Store) UpdateDecision(_ context.Context, id string, status access.Status, adminResponse string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return access.ErrNotFound
	}
	req.Status = status
	req.AdminResponse = adminResponse
	req.UpdatedAt = at
	s.requests[id] = req
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (access.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return access.User{}, access.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (access.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return access.User{}, access.ErrNotFound
}

func (s *Store) InsertUser(_ context.Context, u access.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.users {
		if id != u.ID && strings.EqualFold(existing.Email, u.Email) {
			return access.ErrEmailTaken
		}
	}
	s.users[u.ID] = cloneUser(u)
	return nil
}

func (s *Store) AddEntitlement(_ context.Context, userID, movieID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return access.ErrNotFound
	}
	if u.Entitled(movieID) {
		return nil
	}
	u.Entitlements = append(u.Entitlements, movieID)
	s.users[userID] = u
	return nil
}

func (s *Store) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return access.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.MustChangePassword = false
	s.users[userID] = u
	return nil
}

func (s *Store) filter(keep func(access.AccessRequest) bool) []access.AccessRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]access.AccessRequest, 0, len(s.requests))
	for _, r := range s.requests {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func cloneUser(u access.User) access.User {
	ents := make([]string, len(u.Entitlements))
	copy(ents, u.Entitlements)
	u.Entitlements = ents
	return u
}
