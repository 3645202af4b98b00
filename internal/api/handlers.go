package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"cinegate/internal/access"
	"cinegate/internal/auth"
)

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decode(r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid body")
		return
	}
	user, err := h.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		fail(w, err, nil)
		return
	}
	accessToken, refreshToken, err := h.tokens.GenerateTokens(user.ID, user.Role, user.MustChangePassword)
	if err != nil {
		h.log.Error().Err(err).Str("user", user.ID).Msg("sign tokens")
		errorJSON(w, http.StatusInternalServerError, "token error")
		return
	}
	ok(w, http.StatusOK, tokenView{AccessToken: accessToken, RefreshToken: refreshToken, MustChange: user.MustChangePassword})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decode(r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid body")
		return
	}
	accessToken, refreshToken, err := h.tokens.Refresh(req.RefreshToken)
	if err != nil {
		errorJSON(w, http.StatusUnauthorized, "invalid token")
		return
	}
	ok(w, http.StatusOK, tokenView{AccessToken: accessToken, RefreshToken: refreshToken})
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Old string `json:"old_password"`
		New string `json:"new_password"`
	}
	if err := decode(r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid body")
		return
	}
	user, err := h.accounts.ChangePassword(r.Context(), auth.PrincipalFromContext(r.Context()), req.Old, req.New)
	if err != nil {
		fail(w, err, nil)
		return
	}
	accessToken, refreshToken, err := h.tokens.GenerateTokens(user.ID, user.Role, false)
	if err != nil {
		h.log.Error().Err(err).Str("user", user.ID).Msg("sign tokens")
		errorJSON(w, http.StatusInternalServerError, "token error")
		return
	}
	ok(w, http.StatusOK, tokenView{AccessToken: accessToken, RefreshToken: refreshToken})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := h.requests.Profile(r.Context(), auth.PrincipalFromContext(r.Context()))
	if err != nil {
		fail(w, err, nil)
		return
	}
	ok(w, http.StatusOK, u)
}

type catalogBody struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (h *Handler) handleSubmitCatalog(w http.ResponseWriter, r *http.Request) {
	var body catalogBody
	if err := decode(r, &body); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid body")
		return
	}
	req, err := h.requests.SubmitCatalogRequest(r.Context(), auth.PrincipalFromContext(r.Context()), body.Title, body.Description)
	if err != nil {
		fail(w, err, body)
		return
	}
	ok(w, http.StatusCreated, newRequestView(req))
}

type accessBody struct {
	MovieID string `json:"movie_id"`
}

func (h *Handler) handleSubmitAccess(w http.ResponseWriter, r *http.Request) {
	var body accessBody
	if err := decode(r, &body); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid body")
		return
	}
	req, err := h.requests.SubmitAccessRequest(r.Context(), auth.PrincipalFromContext(r.Context()), body.MovieID)
	if err != nil {
		fail(w, err, body)
		return
	}
	ok(w, http.StatusCreated, newRequestView(req))
}

func (h *Handler) handleListMine(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.requests.ListMine(r.Context(), auth.PrincipalFromContext(r.Context()))
	if err != nil {
		fail(w, err, nil)
		return
	}
	ok(w, http.StatusOK, newRequestViews(reqs))
}

func (h *Handler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.requests.ListRequests(r.Context(), auth.PrincipalFromContext(r.Context()))
	if err != nil {
		fail(w, err, nil)
		return
	}
	ok(w, http.StatusOK, newRequestViews(reqs))
}

func (h *Handler) handleDecide(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status        string `json:"status"`
		AdminResponse string `json:"admin_response"`
	}
	if err := decode(r, &body); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid body")
		return
	}
	status, known := access.ParseStatus(body.Status)
	if !known {
		status = access.Status(body.Status)
	}
	req, err := h.requests.Decide(r.Context(), auth.PrincipalFromContext(r.Context()),
		chi.URLParam(r, "id"), status, strings.TrimSpace(body.AdminResponse))
	if err != nil {
		fail(w, err, nil)
		return
	}
	ok(w, http.StatusOK, newRequestView(req))
}

func (h *Handler) handleCheckAccess(w http.ResponseWriter, r *http.Request) {
	movieID := chi.URLParam(r, "id")
	allowed := h.requests.CheckAccess(r.Context(), auth.PrincipalFromContext(r.Context()), movieID)
	ok(w, http.StatusOK, accessView{MovieID: movieID, HasAccess: allowed})
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := decode(r, &body); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid body")
		return
	}
	role := access.RoleViewer
	if strings.TrimSpace(body.Role) != "" {
		parsed, known := access.ParseRole(body.Role)
		if !known {
			parsed = access.Role(body.Role)
		}
		role = parsed
	}
	u, err := h.accounts.CreateUser(r.Context(), auth.PrincipalFromContext(r.Context()), body.Email, body.Username, body.Password, role)
	if err != nil {
		fail(w, err, nil)
		return
	}
	ok(w, http.StatusCreated, u)
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if h.reconciler == nil {
		errorJSON(w, http.StatusServiceUnavailable, "reconciler not configured")
		return
	}
	n, err := h.reconciler.RunOnce(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("on-demand reconcile failed")
		errorJSON(w, http.StatusInternalServerError, "reconcile failed")
		return
	}
	ok(w, http.StatusOK, map[string]int{"repaired": n})
}
