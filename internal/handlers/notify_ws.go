// internal/handlers/notify_ws.go
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/battles/internal/auth"
	"github.com/jason-s-yu/battles/internal/events"
	"github.com/jason-s-yu/battles/internal/middleware"
	"github.com/sirupsen/logrus"
)

const wsSubprotocol = "battle"

// wsScope is a broadcast channel a socket may follow besides the caller's user channel. It
// needs membership in the lobby or match it names.
type wsScope struct {
	param   string
	check   func(ctx context.Context, id, userID uuid.UUID) error
	channel func(uuid.UUID) string
}

func (a *API) scopes() []wsScope {
	return []wsScope{
		{"lobby", a.svc.CheckLobbyMember, events.LobbyChannel},
		{"match", a.svc.CheckMatchMember, events.MatchChannel},
	}
}

// NotificationsWSHandler upgrades the request and forwards every message published on the
// caller's user channel, plus the lobby and match channels named by ?lobby= and ?match=, until
// either side goes away.
func (a *API) NotificationsWSHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserFromRequest(r)
	if err != nil {
		writeFailure(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if a.notify == nil {
		writeFailure(w, http.StatusServiceUnavailable, "notifications unavailable")
		return
	}

	channels := []string{events.UserChannel(userID)}
	query := r.URL.Query()
	for _, sc := range a.scopes() {
		v := query.Get(sc.param)
		if v == "" {
			continue
		}
		id, err := uuid.Parse(v)
		if err != nil {
			writeFailure(w, http.StatusBadRequest, "invalid "+sc.param+" id")
			return
		}
		if err := sc.check(r.Context(), id, userID); err != nil {
			a.writeError(w, r, err)
			return
		}
		channels = append(channels, sc.channel(id))
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{wsSubprotocol},
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		a.log.Warnf("websocket accept error: %v", err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "handler finished")

	if c.Subprotocol() != wsSubprotocol {
		c.Close(BadSubprotocolError, "client must speak the battle subprotocol")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	msgs, err := a.notify.Stream(ctx, channels...)
	if err != nil {
		a.log.WithError(err).WithField("user_id", userID).Error("failed to subscribe notifications")
		c.Close(SubscribeFailedError, "could not subscribe to notifications")
		return
	}

	middleware.LogWebSocketConnect(a.log, r.RemoteAddr, r.URL.Path)

	// The socket is write-only; CloseRead handles control frames and cancels on client close.
	ctx = c.CloseRead(ctx)
	err = writePump(ctx, c, msgs, a.log.WithField("user_id", userID))
	middleware.LogWebSocketDisconnect(a.log, r.RemoteAddr, r.URL.Path, err)
	if err == nil {
		c.Close(websocket.StatusNormalClosure, "")
	}
}

// writePump copies msgs to the socket and pings it periodically. It returns nil when the
// context ends or msgs is closed.
func writePump(ctx context.Context, c *websocket.Conn, msgs <-chan []byte, log *logrus.Entry) error {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := c.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				log.WithError(err).Warn("failed to write notification")
				return err
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
