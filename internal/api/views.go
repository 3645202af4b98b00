package api

import (
	"time"

	"cinegate/internal/access"
)

type requestView struct {
	ID            string            `json:"id"`
	UserID        string            `json:"user_id"`
	Kind          access.Kind       `json:"kind"`
	Title         string            `json:"title,omitempty"`
	Description   string            `json:"description,omitempty"`
	MovieID       string            `json:"movie_id,omitempty"`
	Status        access.Status     `json:"status"`
	AdminResponse string            `json:"admin_response"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     *time.Time        `json:"updated_at"`
	User          *access.Requester `json:"user,omitempty"`
}

func newRequestView(r access.AccessRequest) requestView {
	kind, title, description, movieID := access.RecordFromTarget(r.Target)
	v := requestView{
		ID:            r.ID,
		UserID:        r.UserID,
		Kind:          kind,
		Title:         title,
		Description:   description,
		MovieID:       movieID,
		Status:        r.Status,
		AdminResponse: r.AdminResponse,
		CreatedAt:     r.CreatedAt,
		User:          r.Requester,
	}
	if !r.UpdatedAt.IsZero() {
		t := r.UpdatedAt
		v.UpdatedAt = &t
	}
	return v
}

func newRequestViews(reqs []access.AccessRequest) []requestView {
	out := make([]requestView, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, newRequestView(r))
	}
	return out
}

type accessView struct {
	MovieID   string `json:"movie_id"`
	HasAccess bool   `json:"has_access"`
}

type tokenView struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	MustChange   bool   `json:"must_change"`
}
