// internal/handlers/api.go
package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/jason-s-yu/battles/internal/battle"
	"github.com/jason-s-yu/battles/internal/metrics"
	"github.com/sirupsen/logrus"
)

// Notifications streams messages published on a channel. cache.Publisher implements it.
type Notifications interface {
	Stream(ctx context.Context, channels ...string) (<-chan []byte, error)
}

// API serves the battle HTTP surface.
type API struct {
	svc    *battle.Service
	notify Notifications
	log    *logrus.Logger
}

// NewAPI builds the API. notify may be nil, in which case the websocket route answers 503.
func NewAPI(svc *battle.Service, notify Notifications, logger *logrus.Logger) *API {
	return &API{svc: svc, notify: notify, log: logger}
}

// Routes registers every battle route on mux.
func (a *API) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /battle/lobbies", withUser(a.createLobby))
	mux.HandleFunc("GET /battle/lobbies/{id}", withID(a.getLobby))
	mux.HandleFunc("POST /battle/lobbies/{id}/invitations", withID(a.sendInvitation))
	mux.HandleFunc("POST /battle/lobbies/{id}/leave", withID(a.leaveLobby))
	mux.HandleFunc("POST /battle/lobbies/{id}/matchmaking", withID(a.enterMatchmaking))
	mux.HandleFunc("DELETE /battle/lobbies/{id}/matchmaking", withID(a.leaveMatchmaking))

	mux.HandleFunc("GET /battle/invitations", withUser(a.listInvitations))
	mux.HandleFunc("POST /battle/invitations/{id}/accept", withID(a.acceptInvitation))
	mux.HandleFunc("POST /battle/invitations/{id}/decline", withID(a.declineInvitation))

	mux.HandleFunc("GET /battle/matches/{id}", withID(a.getMatch))
	mux.HandleFunc("GET /battle/matches/{id}/rewards", withID(a.matchRewards))
	mux.HandleFunc("GET /battle/matches/{id}/gifts", withID(a.matchGifts))
	mux.HandleFunc("POST /battle/matches/{id}/accept", withID(a.acceptMatch))
	mux.HandleFunc("POST /battle/matches/{id}/decline", withID(a.declineMatch))
	mux.HandleFunc("POST /battle/matches/{id}/duration", withID(a.submitDuration))
	mux.HandleFunc("POST /battle/matches/{id}/gifts", withID(a.sendGift))
	mux.HandleFunc("POST /battle/matches/{id}/end", withID(a.endMatch))
	mux.HandleFunc("POST /battle/matches/{id}/rematch", withID(a.requestRematch))
	mux.HandleFunc("POST /battle/matches/{id}/finish", withID(a.finishBattle))

	mux.HandleFunc("GET /battle/blocked", withUser(a.blocked))
	mux.HandleFunc("GET /battle/ws", a.NotificationsWSHandler)

	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

func (a *API) blocked(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	blocked, err := a.svc.IsUserBlocked(r.Context(), userID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"blocked": blocked})
}
