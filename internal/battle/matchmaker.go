// internal/battle/matchmaker.go
package battle

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jason-s-yu/battles/internal/events"
	"github.com/jason-s-yu/battles/internal/metrics"
	"github.com/jason-s-yu/battles/internal/models"
	"github.com/jason-s-yu/battles/internal/store"
	"github.com/sirupsen/logrus"
)

// EnterMatchmaking queues the host's lobby and immediately tries to pair it.
// It returns the new match, or nil when the lobby is left waiting in the queue.
func (s *Service) EnterMatchmaking(ctx context.Context, lobbyID, userID uuid.UUID) (*models.Match, error) {
	lobby, err := s.getLobby(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	if lobby.HostID != userID {
		return nil, ErrNotHost
	}

	blocks, err := s.blockedPlayers(ctx, lobby.TeamAPlayers)
	if err != nil {
		return nil, err
	}
	if len(blocks) > 0 {
		return nil, fmt.Errorf("%w until %s", ErrBlocked, blocks[0].BlockedUntil.Format("15:04:05"))
	}

	if lobby.Status != models.LobbySearching {
		ok, err := s.moveLobby(ctx, lobbyID, models.LobbySearching, store.LobbyPatch{}, models.LobbyWaiting)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, invalidState("lobby", lobby.Status)
		}
	}
	if err := s.enqueue(ctx, lobby); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"lobby_id": lobbyID, "format": lobby.Format}).Info("lobby entered matchmaking")
	return s.FindMatch(ctx, lobbyID, lobby.Format)
}

// LeaveMatchmaking takes a searching lobby out of the queue and back to waiting.
func (s *Service) LeaveMatchmaking(ctx context.Context, lobbyID, userID uuid.UUID) (*models.Lobby, error) {
	lobby, err := s.getLobby(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	if lobby.HostID != userID {
		return nil, ErrNotHost
	}
	ok, err := s.moveLobby(ctx, lobbyID, models.LobbyWaiting, store.LobbyPatch{}, models.LobbySearching)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, invalidState("lobby", lobby.Status)
	}
	if err := s.store.DeleteQueueEntries(ctx, lobbyID); err != nil {
		return nil, fmt.Errorf("failed to leave queue: %w", err)
	}
	lobby.Status = models.LobbyWaiting
	return lobby, nil
}

func (s *Service) enqueue(ctx context.Context, lobby *models.Lobby) error {
	err := s.store.UpsertQueueEntry(ctx, &models.QueueEntry{
		LobbyID:      lobby.ID,
		Format:       lobby.Format,
		PlayersCount: lobby.CurrentPlayersCount,
		CreatedAt:    s.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue lobby %s: %w", lobby.ID, err)
	}
	return nil
}

// FindMatch pairs the lobby with the oldest queued lobby of the same format. It returns nil
// without error when no eligible opponent is queued.
func (s *Service) FindMatch(ctx context.Context, lobbyID uuid.UUID, format string) (*models.Match, error) {
	var box events.Outbox
	m, err := s.findMatch(ctx, lobbyID, format, &box)
	s.flush(ctx, &box)
	return m, err
}

func (s *Service) findMatch(ctx context.Context, lobbyID uuid.UUID, format string, box *events.Outbox) (*models.Match, error) {
	entry := s.log.WithFields(logrus.Fields{"lobby_id": lobbyID, "format": format})

	lobby, err := s.getLobby(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	if lobby.Status != models.LobbySearching {
		entry.WithField("status", lobby.Status).Debug("lobby no longer searching")
		return nil, nil
	}
	if blocks, err := s.blockedPlayers(ctx, lobby.TeamAPlayers); err != nil {
		return nil, err
	} else if len(blocks) > 0 {
		entry.Info("lobby has a blocked player, waiting in queue")
		return nil, nil
	}

	queue, err := s.store.ListQueueEntries(ctx, format)
	if err != nil {
		return nil, fmt.Errorf("failed to read matchmaking queue: %w", err)
	}

	for _, e := range queue {
		if e.LobbyID == lobbyID {
			continue
		}
		opponent, err := s.store.GetLobby(ctx, e.LobbyID)
		if errors.Is(err, store.ErrNotFound) {
			_ = s.store.DeleteQueueEntries(ctx, e.LobbyID)
			continue
		}
		if err != nil {
			return nil, loadErr("lobby", err)
		}
		if opponent.Status != models.LobbySearching {
			continue
		}
		blocks, err := s.blockedPlayers(ctx, opponent.TeamAPlayers)
		if err != nil {
			return nil, err
		}
		if len(blocks) > 0 {
			continue
		}

		m, err := s.pair(ctx, lobby, opponent, box)
		if err != nil {
			return nil, err
		}
		if m != nil {
			return m, nil
		}
	}

	entry.Info("no opponent available, waiting")
	return nil, nil
}

// pair claims both lobbies and creates the match. It returns nil, nil when the opponent was
// claimed by a concurrent matcher first.
func (s *Service) pair(ctx context.Context, lobby, opponent *models.Lobby, box *events.Outbox) (*models.Match, error) {
	now := s.now()
	found := store.LobbyPatch{MatchFoundAt: &now}

	ok, err := s.moveLobby(ctx, opponent.ID, models.LobbyMatched, found, models.LobbySearching)
	if err != nil || !ok {
		return nil, err
	}
	ok, err = s.moveLobby(ctx, lobby.ID, models.LobbyMatched, found, models.LobbySearching)
	if err != nil || !ok {
		s.releaseLobby(ctx, opponent.ID)
		return nil, err
	}

	id := uuid.New()
	m := &models.Match{
		ID:            id,
		LobbyAID:      lobby.ID,
		LobbyBID:      opponent.ID,
		Format:        lobby.Format,
		StreamID:      "battle_" + id.String(),
		Status:        models.MatchPendingAccept,
		TeamAAccepted: []uuid.UUID{},
		TeamBAccepted: []uuid.UUID{},
		CreatedAt:     now,
	}
	if err := s.store.InsertMatch(ctx, m); err != nil {
		s.releaseLobby(ctx, opponent.ID)
		s.releaseLobby(ctx, lobby.ID)
		return nil, fmt.Errorf("failed to create match: %w", err)
	}
	if err := s.store.DeleteQueueEntries(ctx, lobby.ID, opponent.ID); err != nil {
		s.log.WithError(err).WithField("match_id", m.ID).Warn("failed to clear queue entries")
	}
	metrics.MatchCreated(m.Format, "matchmaking")

	players := append(append([]uuid.UUID{}, lobby.TeamAPlayers...), opponent.TeamAPlayers...)
	box.NotifyUsers(events.MatchFound, players, map[string]interface{}{
		"match_id":   m.ID.String(),
		"lobby_a_id": m.LobbyAID.String(),
		"lobby_b_id": m.LobbyBID.String(),
		"format":     m.Format,
	})

	s.log.WithFields(logrus.Fields{
		"match_id":   m.ID,
		"lobby_a_id": m.LobbyAID,
		"lobby_b_id": m.LobbyBID,
	}).Info("match found")
	return m, nil
}

// releaseLobby rolls a claimed lobby back to searching.
func (s *Service) releaseLobby(ctx context.Context, lobbyID uuid.UUID) {
	if _, err := s.moveLobby(ctx, lobbyID, models.LobbySearching, store.LobbyPatch{}, models.LobbyMatched); err != nil {
		s.log.WithError(err).WithField("lobby_id", lobbyID).Error("failed to release lobby")
	}
}

// RetryQueuedMatchmaking walks the queue oldest first and tries to pair every lobby.
// It returns how many matches were created.
func (s *Service) RetryQueuedMatchmaking(ctx context.Context) (int, error) {
	queue, err := s.store.ListQueueEntries(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("failed to read matchmaking queue: %w", err)
	}

	var box events.Outbox
	defer s.flush(ctx, &box)

	paired := make(map[uuid.UUID]bool)
	created := 0
	for _, e := range queue {
		if paired[e.LobbyID] {
			continue
		}
		m, err := s.findMatch(ctx, e.LobbyID, e.Format, &box)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				_ = s.store.DeleteQueueEntries(ctx, e.LobbyID)
				continue
			}
			return created, err
		}
		if m != nil {
			paired[m.LobbyAID], paired[m.LobbyBID] = true, true
			created++
		}
	}
	return created, nil
}
