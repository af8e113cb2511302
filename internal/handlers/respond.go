// internal/handlers/respond.go
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/jason-s-yu/battles/internal/auth"
	"github.com/jason-s-yu/battles/internal/battle"
	"github.com/sirupsen/logrus"
)

// envelope is the body of every JSON response.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Success: false, Error: msg})
}

// statusFor maps a service error onto an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, battle.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, battle.ErrNotHost),
		errors.Is(err, battle.ErrNotMember),
		errors.Is(err, battle.ErrNotLeader),
		errors.Is(err, battle.ErrBlocked):
		return http.StatusForbidden
	case errors.Is(err, battle.ErrLobbyFull),
		errors.Is(err, battle.ErrAlreadyMember),
		errors.Is(err, battle.ErrInvitationExpired),
		errors.Is(err, battle.ErrDurationMismatch),
		errors.Is(err, battle.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, battle.ErrInvalidFormat),
		errors.Is(err, battle.ErrInvalidDuration),
		errors.Is(err, battle.ErrInvalidAmount),
		errors.Is(err, battle.ErrInvalidTeam):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError sends err in the failure envelope. Internal errors are logged and hidden.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		a.log.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
		writeFailure(w, status, "internal error")
		return
	}
	writeFailure(w, status, err.Error())
}

// decodeBody reads a JSON body into dst. An empty body leaves dst untouched.
func decodeBody(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// pathID parses the {id} wildcard of the matched route.
func pathID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	return id, err == nil
}

// authedHandler is a handler that runs for an authenticated user.
type authedHandler func(w http.ResponseWriter, r *http.Request, userID uuid.UUID)

// withUser authenticates the request before calling h.
func withUser(h authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := auth.UserFromRequest(r)
		if err != nil {
			writeFailure(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		h(w, r, userID)
	}
}

// withID authenticates the request and parses the {id} wildcard.
func withID(h func(w http.ResponseWriter, r *http.Request, userID, id uuid.UUID)) http.HandlerFunc {
	return withUser(func(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
		id, ok := pathID(r)
		if !ok {
			writeFailure(w, http.StatusBadRequest, "invalid id")
			return
		}
		h(w, r, userID, id)
	})
}
