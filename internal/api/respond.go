package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"cinegate/internal/access"
)

const maxBodyBytes = 1 << 20

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func ok(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func errorJSON(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: msg})
}

// fail maps an operation error to its status code. form, when non-nil, is
// echoed back on validation failures so the client keeps what was typed.
func fail(w http.ResponseWriter, err error, form interface{}) {
	var ve *access.ValidationError
	if errors.As(err, &ve) {
		data := map[string]interface{}{"field": ve.Field}
		if form != nil {
			data["form"] = form
		}
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: ve.Message, Data: data})
		return
	}
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError && !errors.Is(err, access.ErrPersistence) {
		msg = "internal error"
	}
	errorJSON(w, status, msg)
}

func statusFor(err error) int {
	var ve *access.ValidationError
	switch {
	case errors.Is(err, access.ErrPersistence):
		return http.StatusInternalServerError
	case errors.Is(err, access.ErrUnauthenticated), errors.Is(err, access.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, access.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, access.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, access.ErrDuplicatePending),
		errors.Is(err, access.ErrAlreadyApproved),
		errors.Is(err, access.ErrEmailTaken):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into dst. An empty body leaves dst untouched.
func decode(r *http.Request, dst interface{}) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
