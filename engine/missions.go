package engine

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"

	"hanziquest/core"
)

// ClaimResult is the outcome of claiming a mission reward.
type ClaimResult struct {
	MissionID string `json:"mission_id"`
	XPAwarded int64  `json:"xp_awarded"`
	Outcome
}

// ClaimRequest names the mission to claim. Timezone picks the learner's
// calendar day, as for EventRequest; empty means the engine default.
type ClaimRequest struct {
	LearnerID core.LearnerID
	MissionID string
	Timezone  string
}

// ClaimMission grants a completed mission's reward exactly once per window.
func (e *Engine) ClaimMission(ctx context.Context, req ClaimRequest) (ClaimResult, error) {
	learner, err := core.NormalizeLearnerID(req.LearnerID)
	if err != nil {
		return ClaimResult{}, err
	}
	m, ok := e.catalog.Mission(req.MissionID)
	if !ok {
		return ClaimResult{}, fmt.Errorf("%w: %q", core.ErrMissionNotFound, req.MissionID)
	}
	today, err := e.todayIn(req.Timezone)
	if err != nil {
		return ClaimResult{}, err
	}
	res := ClaimResult{MissionID: m.ID}
	u, err := e.update(ctx, learner, func(tx Tx, u *unit) error {
		stored, err := tx.MissionProgress(ctx)
		if err != nil {
			return err
		}
		claimed, err := stored[m.ID].Current(m, learner, today).Claim(u.now)
		if err != nil {
			return fmt.Errorf("mission %s: %w", m.ID, err)
		}
		if err := tx.SaveMissionProgress(ctx, claimed); err != nil {
			return err
		}
		xp := m.XPReward()
		meta := map[string]any{"mission_id": m.ID, "cadence": string(m.Cadence)}
		if err := u.append(ctx, tx, core.KindMissionComplete, xp, meta); err != nil {
			return err
		}
		res.XPAwarded = xp
		u.events = append(u.events, core.NewMissionClaimed(learner, m.ID, xp, u.now))
		return nil
	})
	if err != nil {
		return ClaimResult{}, err
	}
	res.Outcome = u.outcome()
	return res, nil
}

// MissionStatus is a mission as seen by a learner today.
type MissionStatus struct {
	Mission     core.Mission `json:"mission"`
	XPReward    int64        `json:"xp_reward"`
	Count       int          `json:"count"`
	Completed   bool         `json:"completed"`
	Claimed     bool         `json:"claimed"`
	WindowStart civil.Date   `json:"window_start"`
	WindowEnd   *civil.Date  `json:"window_end,omitempty"`
}

// MissionBoard lists every mission with the learner's progress in the current
// window of the learner's day in timezone (empty means the engine default).
func (e *Engine) MissionBoard(ctx context.Context, learner core.LearnerID, timezone string) ([]MissionStatus, error) {
	learner, err := core.NormalizeLearnerID(learner)
	if err != nil {
		return nil, err
	}
	today, err := e.todayIn(timezone)
	if err != nil {
		return nil, err
	}
	var stored map[string]core.MissionProgress
	if err := e.view(ctx, learner, func(tx Tx) error {
		var err error
		stored, err = tx.MissionProgress(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	missions := e.catalog.Missions()
	out := make([]MissionStatus, 0, len(missions))
	for _, m := range missions {
		cur := stored[m.ID].Current(m, learner, today)
		out = append(out, MissionStatus{
			Mission:     m,
			XPReward:    m.XPReward(),
			Count:       cur.Count,
			Completed:   cur.Completed,
			Claimed:     cur.Claimed,
			WindowStart: cur.WindowStart,
			WindowEnd:   core.WindowEnd(m.Cadence, cur.WindowStart),
		})
	}
	return out, nil
}
