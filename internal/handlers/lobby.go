// internal/handlers/lobby.go
package handlers

import (
	"net/http"

	"github.com/google/uuid"
)

type createLobbyRequest struct {
	Format             string  `json:"format"`
	ReturnToSoloStream bool    `json:"return_to_solo_stream"`
	OriginalStreamID   *string `json:"original_stream_id"`
}

func (a *API) createLobby(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	var req createLobbyRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "bad lobby request payload")
		return
	}
	lobby, err := a.svc.CreateLobby(r.Context(), userID, req.Format, req.ReturnToSoloStream, req.OriginalStreamID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, lobby)
}

func (a *API) getLobby(w http.ResponseWriter, r *http.Request, _, lobbyID uuid.UUID) {
	lobby, err := a.svc.GetLobby(r.Context(), lobbyID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lobby)
}

type invitationRequest struct {
	InviteeID uuid.UUID `json:"invitee_id"`
}

func (a *API) sendInvitation(w http.ResponseWriter, r *http.Request, userID, lobbyID uuid.UUID) {
	var req invitationRequest
	if err := decodeBody(r, &req); err != nil || req.InviteeID == uuid.Nil {
		writeFailure(w, http.StatusBadRequest, "invitee_id is required")
		return
	}
	inv, err := a.svc.SendInvitation(r.Context(), lobbyID, userID, req.InviteeID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (a *API) leaveLobby(w http.ResponseWriter, r *http.Request, userID, lobbyID uuid.UUID) {
	lobby, err := a.svc.LeaveLobby(r.Context(), lobbyID, userID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lobby)
}

func (a *API) enterMatchmaking(w http.ResponseWriter, r *http.Request, userID, lobbyID uuid.UUID) {
	match, err := a.svc.EnterMatchmaking(r.Context(), lobbyID, userID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"matched": match != nil,
		"match":   match,
	})
}

func (a *API) leaveMatchmaking(w http.ResponseWriter, r *http.Request, userID, lobbyID uuid.UUID) {
	lobby, err := a.svc.LeaveMatchmaking(r.Context(), lobbyID, userID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lobby)
}

func (a *API) listInvitations(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	invs, err := a.svc.PendingInvitations(r.Context(), userID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invs)
}

func (a *API) acceptInvitation(w http.ResponseWriter, r *http.Request, userID, invitationID uuid.UUID) {
	lobby, err := a.svc.AcceptInvitation(r.Context(), invitationID, userID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lobby)
}

func (a *API) declineInvitation(w http.ResponseWriter, r *http.Request, userID, invitationID uuid.UUID) {
	inv, err := a.svc.DeclineInvitation(r.Context(), invitationID, userID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}
