// internal/battle/duration.go
package battle

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jason-s-yu/battles/internal/events"
	"github.com/jason-s-yu/battles/internal/models"
	"github.com/jason-s-yu/battles/internal/store"
	"github.com/sirupsen/logrus"
)

// DurationResult reports the state of the duration negotiation after a selection.
type DurationResult struct {
	BothAgreed      bool `json:"bothAgreed"`
	DurationMinutes int  `json:"durationMinutes,omitempty"`
}

// SubmitDurationSelection records a leader's proposed match length. When both leaders have
// proposed the same value it is committed; differing values clear both proposals and return
// ErrDurationMismatch.
func (s *Service) SubmitDurationSelection(ctx context.Context, matchID, userID uuid.UUID, minutes int) (DurationResult, error) {
	if !slices.Contains(s.cfg.AllowedDurations, minutes) {
		return DurationResult{}, fmt.Errorf("%w: %d minutes", ErrInvalidDuration, minutes)
	}
	m, err := s.getMatch(ctx, matchID)
	if err != nil {
		return DurationResult{}, err
	}
	team, ok := m.LeaderTeam(userID)
	if !ok {
		return DurationResult{}, ErrNotLeader
	}
	if m.Status != models.MatchLive {
		return DurationResult{}, invalidState("match", m.Status)
	}
	if m.DurationMinutes != nil {
		return DurationResult{BothAgreed: true, DurationMinutes: *m.DurationMinutes}, nil
	}

	m, err = s.store.SetDurationSelection(ctx, matchID, team, userID, minutes)
	if err != nil {
		return DurationResult{}, fmt.Errorf("failed to save duration selection: %w", err)
	}
	entry := s.log.WithFields(logrus.Fields{"match_id": matchID, "team": team, "minutes": minutes})

	if m.SelectedDurationA == nil || m.SelectedDurationB == nil {
		entry.Info("duration selected, waiting for other leader")
		return DurationResult{}, nil
	}

	var box events.Outbox
	defer s.flush(ctx, &box)

	a, b := *m.SelectedDurationA, *m.SelectedDurationB
	if a != b {
		if err := s.store.ClearDurationSelections(ctx, matchID); err != nil {
			return DurationResult{}, fmt.Errorf("failed to reset duration selections: %w", err)
		}
		box.Notify(events.DurationMismatch, events.MatchChannel(matchID), map[string]interface{}{
			"match_id":            matchID.String(),
			"selected_duration_a": a,
			"selected_duration_b": b,
		})
		entry.WithFields(logrus.Fields{"team_a": a, "team_b": b}).Info("duration mismatch, selections reset")
		return DurationResult{}, fmt.Errorf("%w (%d vs %d)", ErrDurationMismatch, a, b)
	}

	if err := s.store.UpdateMatch(ctx, matchID, store.MatchPatch{DurationMinutes: &a}); err != nil {
		return DurationResult{}, fmt.Errorf("failed to commit duration: %w", err)
	}
	box.Notify(events.DurationAgreed, events.MatchChannel(matchID), map[string]interface{}{
		"match_id":         matchID.String(),
		"duration_minutes": a,
	})
	entry.Info("duration agreed")
	return DurationResult{BothAgreed: true, DurationMinutes: a}, nil
}
