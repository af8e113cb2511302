// internal/battle/gifts.go
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

// SendBattleGift appends a gift to the match ledger and credits the receiving team's score
// and gift total in the same store transaction.
func (s *Service) SendBattleGift(ctx context.Context, matchID, senderID uuid.UUID, receiverTeam models.Team, giftID string, amountSEK int64) (*models.GiftTransaction, *models.Match, error) {
	if amountSEK <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	if !receiverTeam.Valid() {
		return nil, nil, ErrInvalidTeam
	}

	gift := &models.GiftTransaction{
		ID:           uuid.New(),
		MatchID:      matchID,
		SenderID:     senderID,
		ReceiverTeam: receiverTeam,
		GiftID:       giftID,
		AmountSEK:    amountSEK,
		CreatedAt:    s.now(),
	}
	m, err := s.store.RecordGift(ctx, gift)
	if errors.Is(err, store.ErrNotFound) {
		// either no such match or it is not live
		current, lerr := s.getMatch(ctx, matchID)
		if lerr != nil {
			return nil, nil, lerr
		}
		return nil, nil, invalidState("match", current.Status)
	}
	if err != nil {
		s.log.WithError(err).WithField("match_id", matchID).Error("failed to record gift")
		return nil, nil, fmt.Errorf("failed to record gift: %w", err)
	}
	metrics.GiftRecorded(string(receiverTeam), amountSEK)

	var box events.Outbox
	box.Notify(events.GiftReceived, events.MatchChannel(matchID), map[string]interface{}{
		"match_id":      matchID.String(),
		"sender_id":     senderID.String(),
		"receiver_team": receiverTeam,
		"gift_id":       giftID,
		"amount_sek":    amountSEK,
		"team_a_score":  m.TeamAScore,
		"team_b_score":  m.TeamBScore,
	})
	s.flush(ctx, &box)

	s.log.WithFields(logrus.Fields{
		"match_id": matchID,
		"team":     receiverTeam,
		"amount":   amountSEK,
	}).Debug("gift recorded")
	return gift, m, nil
}

// MatchGifts lists the gift ledger of a match.
func (s *Service) MatchGifts(ctx context.Context, matchID uuid.UUID) ([]models.GiftTransaction, error) {
	gifts, err := s.store.ListGifts(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list gifts: %w", err)
	}
	return gifts, nil
}
