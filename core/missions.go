package core

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// lifetimeWindow is the single window newbie and special missions live in.
var lifetimeWindow = civil.Date{Year: 1970, Month: time.January, Day: 1}

// Mission is a bounded task with a claimable reward.
type Mission struct {
	ID       string    `json:"id" yaml:"id"`
	Title    string    `json:"title" yaml:"title"`
	Cadence  Cadence   `json:"cadence" yaml:"cadence"`
	Activity EventKind `json:"activity" yaml:"activity"`
	Target   int       `json:"target" yaml:"target"`
}

// XPReward is the mission_complete price of the mission's cadence.
func (m Mission) XPReward() int64 { return MissionXP(m.Cadence) }

func (m Mission) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("mission id is required")
	}
	if !m.Cadence.Valid() {
		return fmt.Errorf("mission %s: unknown cadence %q", m.ID, m.Cadence)
	}
	if !m.Activity.Public() {
		return fmt.Errorf("mission %s: activity %q is not a learner activity", m.ID, m.Activity)
	}
	if m.Activity == KindMissionComplete {
		return fmt.Errorf("mission %s: missions cannot count mission completions", m.ID)
	}
	if m.Target <= 0 {
		return fmt.Errorf("mission %s: target must be positive", m.ID)
	}
	return nil
}

// WindowStart returns the first day of the window containing today.
// Weekly windows follow ISO weeks and start on Monday.
func WindowStart(c Cadence, today civil.Date) civil.Date {
	switch c {
	case CadenceDaily:
		return today
	case CadenceWeekly:
		offset := (int(today.In(time.UTC).Weekday()) + 6) % 7
		return today.AddDays(-offset)
	default:
		return lifetimeWindow
	}
}

// WindowEnd returns the first day after the window containing today, or nil for lifetime windows.
func WindowEnd(c Cadence, today civil.Date) *civil.Date {
	var end civil.Date
	switch c {
	case CadenceDaily:
		end = today.AddDays(1)
	case CadenceWeekly:
		end = WindowStart(c, today).AddDays(7)
	default:
		return nil
	}
	return &end
}

// MissionProgress is a learner's count toward a mission within one window.
// Claimed implies Completed, and Count never exceeds the mission target.
type MissionProgress struct {
	LearnerID   LearnerID  `json:"learner_id"`
	MissionID   string     `json:"mission_id"`
	WindowStart civil.Date `json:"window_start"`
	Count       int        `json:"count"`
	Completed   bool       `json:"completed"`
	Claimed     bool       `json:"claimed"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Current returns the progress as seen on today, resetting it only when today
// has moved past the stored window. A stored window that starts after today's
// is returned unchanged. Resets are computed lazily; nothing is scheduled.
func (p MissionProgress) Current(m Mission, learner LearnerID, today civil.Date) MissionProgress {
	start := WindowStart(m.Cadence, today)
	if p.MissionID == m.ID && !p.WindowStart.Before(start) {
		return p
	}
	return MissionProgress{LearnerID: learner, MissionID: m.ID, WindowStart: start}
}

// Behind reports whether day falls in a window older than the stored one.
// Activity on such a day must not replace the newer window.
func (p MissionProgress) Behind(m Mission, day civil.Date) bool {
	return p.MissionID == m.ID && WindowStart(m.Cadence, day).Before(p.WindowStart)
}

// Advance adds by to the count, capped at the target. It reports whether this call completed the mission.
func (p MissionProgress) Advance(m Mission, by int, now time.Time) (MissionProgress, bool) {
	if p.Completed || by <= 0 {
		return p, false
	}
	p.Count = min(p.Count+by, m.Target)
	p.UpdatedAt = now
	if p.Count >= m.Target {
		p.Completed = true
		return p, true
	}
	return p, false
}

// Claim marks a completed mission as claimed.
func (p MissionProgress) Claim(now time.Time) (MissionProgress, error) {
	if !p.Completed {
		return p, fmt.Errorf("%w: %d of target done", ErrMissionNotCompleted, p.Count)
	}
	if p.Claimed {
		return p, ErrMissionAlreadyClaimed
	}
	p.Claimed = true
	p.UpdatedAt = now
	return p, nil
}
