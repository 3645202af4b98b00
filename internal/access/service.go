package access

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"cinegate/internal/metrics"
	"cinegate/internal/validation"
)

// RetryPolicy bounds the retries of the entitlement merge that follows an
// approval.
type RetryPolicy struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 4, Initial: 100 * time.Millisecond, Max: 2 * time.Second}
}

// Service is the request workflow controller. It is safe for concurrent use;
// all state lives in the store.
type Service struct {
	store Store
	log   zerolog.Logger
	now   func() time.Time
	newID func() string
	retry RetryPolicy
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *Service) { s.retry = p }
}

func NewService(store Store, log zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store: store,
		log:   log.With().Str("component", "access").Logger(),
		now:   time.Now,
		newID: uuid.NewString,
		retry: DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type catalogForm struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description" validate:"min=10"`
}

// SubmitCatalogRequest records a request to add a new title to the catalog.
func (s *Service) SubmitCatalogRequest(ctx context.Context, caller *Principal, title, description string) (AccessRequest, error) {
	if caller == nil {
		return AccessRequest{}, ErrUnauthenticated
	}
	// Only the title is trimmed for validation; description length counts
	// what the user typed.
	form := catalogForm{
		Title:       strings.TrimSpace(title),
		Description: description,
	}
	if fe := validation.Struct(&form); fe != nil {
		metrics.RequestsRefused.WithLabelValues("validation").Inc()
		msg := fe.Message()
		switch fe.Field {
		case "title":
			msg = "title is required"
		case "description":
			msg = "please provide more details about the movie (at least 10 characters)"
		}
		return AccessRequest{}, &ValidationError{Field: fe.Field, Message: msg}
	}
	req := AccessRequest{
		ID:        s.newID(),
		UserID:    caller.ID,
		Target:    CatalogTarget{Title: form.Title, Description: strings.TrimSpace(description)},
		Status:    StatusPending,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.InsertRequest(ctx, req); err != nil {
		return AccessRequest{}, s.storeFailure("insert catalog request", err)
	}
	metrics.RequestsSubmitted.WithLabelValues(string(KindCatalog)).Inc()
	s.log.Info().Str("request", req.ID).Str("user", caller.ID).Msg("catalog request submitted")
	return req, nil
}

// SubmitAccessRequest records a request for access to movieID, unless the
// caller's history for that movie already holds a pending or approved entry.
func (s *Service) SubmitAccessRequest(ctx context.Context, caller *Principal, movieID string) (AccessRequest, error) {
	if caller == nil {
		return AccessRequest{}, ErrUnauthenticated
	}
	movieID = strings.TrimSpace(movieID)
	if movieID == "" {
		metrics.RequestsRefused.WithLabelValues("validation").Inc()
		return AccessRequest{}, &ValidationError{Field: "movie_id", Message: "movie_id is required"}
	}
	history, err := s.store.RequestsForMovie(ctx, caller.ID, movieID)
	if err != nil {
		return AccessRequest{}, s.storeFailure("load request history", err)
	}
	if err := CanSubmitAccessRequest(history); err != nil {
		reason := "duplicate_pending"
		if errors.Is(err, ErrAlreadyApproved) {
			reason = "already_approved"
		}
		metrics.RequestsRefused.WithLabelValues(reason).Inc()
		return AccessRequest{}, err
	}
	req := AccessRequest{
		ID:        s.newID(),
		UserID:    caller.ID,
		Target:    MovieTarget{MovieID: movieID},
		Status:    StatusPending,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.InsertRequest(ctx, req); err != nil {
		return AccessRequest{}, s.storeFailure("insert access request", err)
	}
	metrics.RequestsSubmitted.WithLabelValues(string(KindMovie)).Inc()
	s.log.Info().Str("request", req.ID).Str("user", caller.ID).Str("movie", movieID).Msg("access request submitted")
	return req, nil
}

// ListRequests returns every request, newest first, with requester details.
func (s *Service) ListRequests(ctx context.Context, caller *Principal) ([]AccessRequest, error) {
	if caller == nil {
		return nil, ErrUnauthenticated
	}
	if !isAdmin(caller) {
		return nil, ErrForbidden
	}
	reqs, err := s.store.ListRequests(ctx)
	if err != nil {
		return nil, s.storeFailure("list requests", err)
	}
	if err := s.resolveRequesters(ctx, reqs); err != nil {
		return nil, err
	}
	sortNewestFirst(reqs)
	return reqs, nil
}

// ListMine returns the caller's own requests, newest first.
func (s *Service) ListMine(ctx context.Context, caller *Principal) ([]AccessRequest, error) {
	if caller == nil {
		return nil, ErrUnauthenticated
	}
	reqs, err := s.store.ListRequestsByUser(ctx, caller.ID)
	if err != nil {
		return nil, s.storeFailure("list own requests", err)
	}
	sortNewestFirst(reqs)
	return reqs, nil
}

// Decide records an administrator decision. Approving a movie request also
// merges the movie into the requester's entitlements; repeating an approval
// is safe and re-applies the merge.
func (s *Service) Decide(ctx context.Context, caller *Principal, requestID string, status Status, adminResponse string) (AccessRequest, error) {
	if caller == nil {
		return AccessRequest{}, ErrUnauthenticated
	}
	if !isAdmin(caller) {
		return AccessRequest{}, ErrForbidden
	}
	if status != StatusApproved && status != StatusRejected {
		return AccessRequest{}, &ValidationError{Field: "status", Message: "status must be approved or rejected"}
	}
	req, err := s.store.GetRequest(ctx, requestID)
	if errors.Is(err, ErrNotFound) {
		return AccessRequest{}, ErrNotFound
	}
	if err != nil {
		return AccessRequest{}, s.storeFailure("load request", err)
	}

	movieID, isMovie := req.MovieID()
	grant := status == StatusApproved && isMovie
	if grant {
		if _, err := s.store.GetUser(ctx, req.UserID); err != nil {
			return AccessRequest{}, s.storeFailure("load requester", err)
		}
	}

	now := s.now().UTC()
	if err := s.store.UpdateDecision(ctx, requestID, status, adminResponse, now); err != nil {
		if errors.Is(err, ErrNotFound) {
			return AccessRequest{}, ErrNotFound
		}
		return AccessRequest{}, s.storeFailure("update decision", err)
	}
	req.Status = status
	req.AdminResponse = adminResponse
	req.UpdatedAt = now
	metrics.Decisions.WithLabelValues(string(status)).Inc()

	if grant {
		if err := s.grant(ctx, req.UserID, movieID); err != nil {
			metrics.EntitlementWriteFailures.Inc()
			s.log.Error().Err(err).
				Str("request", req.ID).
				Str("user", req.UserID).
				Str("movie", movieID).
				Msg("request approved but entitlement write failed; left for reconciliation")
			return req, persistence("add entitlement", err)
		}
	}
	s.log.Info().
		Str("request", req.ID).
		Str("status", string(status)).
		Str("admin", caller.ID).
		Bool("granted", grant).
		Msg("request decided")
	return req, nil
}

// CheckAccess reports whether the caller may watch movieID. Every failure
// reads as no access.
func (s *Service) CheckAccess(ctx context.Context, caller *Principal, movieID string) bool {
	if caller == nil {
		return false
	}
	u, err := s.store.GetUser(ctx, caller.ID)
	if err != nil {
		s.log.Debug().Err(err).Str("user", caller.ID).Msg("access check could not resolve user")
		return false
	}
	return CanView(&u, movieID)
}

// Profile returns the caller's user record.
func (s *Service) Profile(ctx context.Context, caller *Principal) (User, error) {
	if caller == nil {
		return User{}, ErrUnauthenticated
	}
	u, err := s.store.GetUser(ctx, caller.ID)
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, s.storeFailure("load profile", err)
	}
	return u, nil
}

func (s *Service) grant(ctx context.Context, userID, movieID string) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.retry.Initial
	if s.retry.Max > 0 {
		eb.MaxInterval = s.retry.Max
	}
	eb.MaxElapsedTime = 0
	attempts := s.retry.Attempts
	if attempts < 0 {
		attempts = 0
	}
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts)), ctx)
	return backoff.Retry(func() error {
		err := s.store.AddEntitlement(ctx, userID, movieID)
		if errors.Is(err, ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}

func (s *Service) resolveRequesters(ctx context.Context, reqs []AccessRequest) error {
	seen := make(map[string]*Requester)
	for i := range reqs {
		id := reqs[i].UserID
		r, ok := seen[id]
		if !ok {
			u, err := s.store.GetUser(ctx, id)
			switch {
			case errors.Is(err, ErrNotFound):
				r = &Requester{ID: id}
			case err != nil:
				return s.storeFailure("resolve requester", err)
			default:
				r = &Requester{ID: u.ID, Username: u.Username, Email: u.Email}
			}
			seen[id] = r
		}
		reqs[i].Requester = r
	}
	return nil
}

func (s *Service) storeFailure(op string, err error) error {
	s.log.Error().Err(err).Str("op", op).Msg("store operation failed")
	return persistence(op, err)
}

func sortNewestFirst(reqs []AccessRequest) {
	sort.SliceStable(reqs, func(i, j int) bool {
		return reqs[i].CreatedAt.After(reqs[j].CreatedAt)
	})
}
