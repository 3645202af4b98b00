package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"cinegate/internal/access"
)

const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	UserID           string
	Role             access.Role
	MustChangePasswd bool
}

type jwtClaims struct {
	UserID           string `json:"uid"`
	Role             string `json:"role"`
	MustChangePasswd bool   `json:"must_change"`
	Type             string `json:"typ"`
	jwt.RegisteredClaims
}

type Service struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewService(secret string, accessTTL, refreshTTL time.Duration) *Service {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &Service{secret: []byte(secret), accessTTL: accessTTL, refreshTTL: refreshTTL, now: time.Now}
}

func (s *Service) GenerateTokens(userID string, role access.Role, mustChange bool) (string, string, error) {
	now := s.now()
	accessToken, err := s.sign(jwtClaims{
		UserID:           userID,
		Role:             string(role),
		MustChangePasswd: mustChange,
		Type:             tokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	})
	if err != nil {
		return "", "", err
	}
	refreshToken, err := s.sign(jwtClaims{
		UserID: userID,
		Role:   string(role),
		Type:   tokenRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	})
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

func (s *Service) sign(c jwtClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

func (s *Service) parseToken(tokenStr, wantType string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &jwtClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	c, ok := token.Claims.(*jwtClaims)
	if !ok || c.Type != wantType || c.UserID == "" {
		return nil, ErrInvalidToken
	}
	role, ok := access.ParseRole(c.Role)
	if !ok {
		return nil, ErrInvalidToken
	}
	return &Claims{UserID: c.UserID, Role: role, MustChangePasswd: c.MustChangePasswd}, nil
}

func (s *Service) ParseToken(tokenStr string) (*Claims, error) {
	return s.parseToken(tokenStr, tokenAccess)
}

func (s *Service) Refresh(refreshToken string) (string, string, error) {
	claims, err := s.parseToken(refreshToken, tokenRefresh)
	if err != nil {
		return "", "", err
	}
	return s.GenerateTokens(claims.UserID, claims.Role, claims.MustChangePasswd)
}

type ctxKey string

const principalKey ctxKey = "principal"

// WithPrincipal stores the caller in ctx.
func WithPrincipal(ctx context.Context, p *access.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the authenticated caller, or nil.
func PrincipalFromContext(ctx context.Context) *access.Principal {
	val, ok := ctx.Value(principalKey).(*access.Principal)
	if !ok {
		return nil
	}
	return val
}

// Authenticate attaches the caller to the request context when a valid
// bearer token is present. It never rejects: missing or bad tokens leave the
// request anonymous and the operations decide what that means.
func (s *Service) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token != "" {
			if claims, err := s.ParseToken(token); err == nil {
				p := &access.Principal{ID: claims.UserID, Role: claims.Role}
				r = r.WithContext(WithPrincipal(r.Context(), p))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if authz == "" {
		return ""
	}
	parts := strings.SplitN(authz, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
