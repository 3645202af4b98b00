package access

import (
	"strings"
	"time"
)

// Role is the authorization role carried by a user. There are exactly two.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleAdmin  Role = "admin"
)

// ParseRole maps a stored or submitted role string to a Role. Unknown values
// are rejected rather than defaulted so a typo never grants admin.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleViewer:
		return RoleViewer, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func ParseStatus(raw string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusPending:
		return StatusPending, true
	case StatusApproved:
		return StatusApproved, true
	case StatusRejected:
		return StatusRejected, true
	default:
		return "", false
	}
}

// Principal is the authenticated caller of an operation.
type Principal struct {
	ID   string
	Role Role
}

type User struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	Username           string    `json:"username"`
	PasswordHash       string    `json:"-"`
	Role               Role      `json:"role"`
	MustChangePassword bool      `json:"must_change"`
	Entitlements       []string  `json:"entitlements"`
	CreatedAt          time.Time `json:"created_at"`
}

// Entitled reports whether movieID is in the user's entitlement set.
func (u User) Entitled(movieID string) bool {
	for _, id := range u.Entitlements {
		if id == movieID {
			return true
		}
	}
	return false
}

// Requester is the public view of a user attached to a listed request.
type Requester struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Kind names the variant of a request target as stored.
type Kind string

const (
	KindCatalog Kind = "catalog"
	KindMovie   Kind = "movie"
)

// Target is what a request asks for: either a catalog addition or access to
// an existing movie. The unexported method seals the set of variants.
type Target interface {
	Kind() Kind
	isTarget()
}

// CatalogTarget asks for a new title to be added to the catalog.
type CatalogTarget struct {
	Title       string
	Description string
}

func (CatalogTarget) Kind() Kind { return KindCatalog }
func (CatalogTarget) isTarget()  {}

// MovieTarget asks for access to an existing movie.
type MovieTarget struct {
	MovieID string
}

func (MovieTarget) Kind() Kind { return KindMovie }
func (MovieTarget) isTarget()  {}

// TargetFromRecord rebuilds a Target from the flat columns used by the
// storage adapters.
func TargetFromRecord(kind, title, description, movieID string) Target {
	if Kind(kind) == KindMovie || (kind == "" && movieID != "") {
		return MovieTarget{MovieID: movieID}
	}
	return CatalogTarget{Title: title, Description: description}
}

// RecordFromTarget flattens a Target for storage. Exactly one side is
// populated.
func RecordFromTarget(t Target) (kind Kind, title, description, movieID string) {
	switch v := t.(type) {
	case MovieTarget:
		return KindMovie, "", "", v.MovieID
	case CatalogTarget:
		return KindCatalog, v.Title, v.Description, ""
	default:
		return "", "", "", ""
	}
}

type AccessRequest struct {
	ID            string
	UserID        string
	Target        Target
	Status        Status
	AdminResponse string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Requester     *Requester
}

// MovieID returns the requested movie and true when the target is a movie.
func (r AccessRequest) MovieID() (string, bool) {
	if t, ok := r.Target.(MovieTarget); ok {
		return t.MovieID, true
	}
	return "", false
}
