// internal/battle/lobby.go
package battle

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jason-s-yu/battles/internal/events"
	"github.com/jason-s-yu/battles/internal/models"
	"github.com/jason-s-yu/battles/internal/store"
	"github.com/sirupsen/logrus"
)

// CreateLobby opens a waiting lobby with the caller as host and sole member.
func (s *Service) CreateLobby(ctx context.Context, userID uuid.UUID, format string, returnToSolo bool, originalStreamID *string) (*models.Lobby, error) {
	size, err := models.TeamSizeFromFormat(format)
	if err != nil {
		return nil, err
	}

	lobby := &models.Lobby{
		ID:                  uuid.New(),
		HostID:              userID,
		Format:              format,
		Status:              models.LobbyWaiting,
		TeamAPlayers:        []uuid.UUID{userID},
		MaxPlayersPerTeam:   size,
		CurrentPlayersCount: 1,
		ReturnToSoloStream:  returnToSolo,
		OriginalStreamID:    originalStreamID,
		CreatedAt:           s.now(),
	}
	if err := s.store.InsertLobby(ctx, lobby); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Error("failed to create lobby")
		return nil, fmt.Errorf("failed to create lobby: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"lobby_id": lobby.ID,
		"host_id":  userID,
		"format":   format,
	}).Info("lobby created")
	return lobby, nil
}

// SendInvitation invites inviteeID into the lobby and notifies them on their user channel.
// A live pending invitation for the same lobby and invitee is returned instead of duplicated.
func (s *Service) SendInvitation(ctx context.Context, lobbyID, inviterID, inviteeID uuid.UUID) (*models.Invitation, error) {
	lobby, err := s.getLobby(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	if !lobby.HasPlayer(inviterID) {
		return nil, ErrNotMember
	}
	if inviteeID == inviterID || lobby.HasPlayer(inviteeID) {
		return nil, ErrAlreadyMember
	}
	if lobby.Status != models.LobbyWaiting && lobby.Status != models.LobbySearching {
		return nil, invalidState("lobby", lobby.Status)
	}
	if lobby.IsFull() {
		return nil, ErrLobbyFull
	}

	now := s.now()
	existing, err := s.store.FindPendingInvitation(ctx, lobbyID, inviteeID, now)
	switch {
	case err == nil:
		return existing, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("failed to check existing invitations: %w", err)
	}

	inv := &models.Invitation{
		ID:        uuid.New(),
		LobbyID:   lobbyID,
		InviterID: inviterID,
		InviteeID: inviteeID,
		Status:    models.InvitationPending,
		ExpiresAt: now.Add(s.cfg.InvitationTTL),
		CreatedAt: now,
	}
	if err := s.store.InsertInvitation(ctx, inv); err != nil {
		s.log.WithError(err).WithField("lobby_id", lobbyID).Error("failed to send invitation")
		return nil, fmt.Errorf("failed to send invitation: %w", err)
	}

	var box events.Outbox
	box.Notify(events.InvitationSent, events.UserChannel(inviteeID), map[string]interface{}{
		"invitation_id": inv.ID.String(),
		"lobby_id":      lobbyID.String(),
		"inviter_id":    inviterID.String(),
		"format":        lobby.Format,
		"expires_at":    inv.ExpiresAt,
	})
	s.flush(ctx, &box)

	s.log.WithFields(logrus.Fields{
		"lobby_id":   lobbyID,
		"inviter_id": inviterID,
		"invitee_id": inviteeID,
	}).Info("invitation sent")
	return inv, nil
}

// AcceptInvitation adds the invitee to the lobby roster. Only the invitee of a pending,
// unexpired invitation may accept it.
func (s *Service) AcceptInvitation(ctx context.Context, invitationID, userID uuid.UUID) (*models.Lobby, error) {
	inv, err := s.store.GetInvitation(ctx, invitationID)
	if err != nil {
		return nil, loadErr("invitation", err)
	}
	if inv.InviteeID != userID || inv.Status != models.InvitationPending {
		return nil, fmt.Errorf("pending invitation %w", ErrNotFound)
	}

	now := s.now()
	if !inv.ExpiresAt.After(now) {
		if _, err := s.store.RespondInvitation(ctx, inv.ID, userID, models.InvitationExpired, now); err != nil {
			s.log.WithError(err).WithField("invitation_id", inv.ID).Warn("failed to mark invitation expired")
		}
		return nil, ErrInvitationExpired
	}

	lobby, err := s.getLobby(ctx, inv.LobbyID)
	if err != nil {
		return nil, err
	}
	if lobby.Status != models.LobbyWaiting && lobby.Status != models.LobbySearching {
		return nil, invalidState("lobby", lobby.Status)
	}

	lobby, err = s.store.AddLobbyPlayer(ctx, lobby.ID, userID)
	switch {
	case errors.Is(err, store.ErrLobbyFull), errors.Is(err, store.ErrAlreadyMember):
		return nil, err
	case errors.Is(err, store.ErrLobbyClosed):
		// matched between the status read above and the locked roster write
		return nil, fmt.Errorf("%w: %w", ErrInvalidTransition, err)
	case err != nil:
		return nil, fmt.Errorf("failed to join lobby: %w", err)
	}
	if _, err := s.store.RespondInvitation(ctx, inv.ID, userID, models.InvitationAccepted, now); err != nil {
		// the roster write already happened; the invitation will age out via the sweeper
		s.log.WithError(err).WithField("invitation_id", inv.ID).Warn("failed to mark invitation accepted")
	}

	var box events.Outbox
	box.Notify(events.LobbyPlayerJoined, events.LobbyChannel(lobby.ID), map[string]interface{}{
		"lobby_id":              lobby.ID.String(),
		"user_id":               userID.String(),
		"current_players_count": lobby.CurrentPlayersCount,
	})
	s.flush(ctx, &box)

	s.log.WithFields(logrus.Fields{
		"lobby_id": lobby.ID,
		"user_id":  userID,
		"players":  lobby.CurrentPlayersCount,
	}).Info("invitation accepted")
	return lobby, nil
}

// DeclineInvitation marks a pending invitation declined.
func (s *Service) DeclineInvitation(ctx context.Context, invitationID, userID uuid.UUID) (*models.Invitation, error) {
	inv, err := s.store.RespondInvitation(ctx, invitationID, userID, models.InvitationDeclined, s.now())
	if err != nil {
		return nil, loadErr("pending invitation", err)
	}
	return inv, nil
}

// PendingInvitations lists the unexpired invitations addressed to userID.
func (s *Service) PendingInvitations(ctx context.Context, userID uuid.UUID) ([]models.Invitation, error) {
	invs, err := s.store.ListPendingInvitations(ctx, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	return invs, nil
}

// LeaveLobby removes userID from the lobby. When the host leaves, the lobby is cancelled and
// pulled from the matchmaking queue.
func (s *Service) LeaveLobby(ctx context.Context, lobbyID, userID uuid.UUID) (*models.Lobby, error) {
	lobby, err := s.getLobby(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	if !lobby.HasPlayer(userID) {
		return nil, ErrNotMember
	}

	var box events.Outbox
	if userID == lobby.HostID {
		ok, err := s.moveLobby(ctx, lobbyID, models.LobbyCancelled, store.LobbyPatch{})
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, invalidState("lobby", lobby.Status)
		}
		if err := s.store.DeleteQueueEntries(ctx, lobbyID); err != nil {
			s.log.WithError(err).WithField("lobby_id", lobbyID).Warn("failed to remove cancelled lobby from queue")
		}
		lobby.Status = models.LobbyCancelled
		box.NotifyUsers(events.LobbyCancelled, lobby.TeamAPlayers, map[string]interface{}{
			"lobby_id": lobbyID.String(),
		})
		s.flush(ctx, &box)
		s.log.WithField("lobby_id", lobbyID).Info("host left, lobby cancelled")
		return lobby, nil
	}

	if lobby.Status == models.LobbyMatched || lobby.Status == models.LobbyInBattle {
		return nil, invalidState("lobby", lobby.Status)
	}
	lobby, err = s.store.RemoveLobbyPlayer(ctx, lobbyID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to leave lobby: %w", err)
	}
	box.Notify(events.LobbyPlayerLeft, events.LobbyChannel(lobbyID), map[string]interface{}{
		"lobby_id":              lobbyID.String(),
		"user_id":               userID.String(),
		"current_players_count": lobby.CurrentPlayersCount,
	})
	s.flush(ctx, &box)
	return lobby, nil
}
