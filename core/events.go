package core

import "time"

// EventType enumerates domain events published after a unit of work commits.
type EventType string

const (
	EventXPAwarded           EventType = "xp_awarded"
	EventLevelUp             EventType = "level_up"
	EventStreakUpdated       EventType = "streak_updated"
	EventAchievementUnlocked EventType = "achievement_unlocked"
	EventMissionCompleted    EventType = "mission_completed"
	EventMissionClaimed      EventType = "mission_claimed"
	EventRewardGranted       EventType = "reward_granted"
)

// EventTypes lists every domain event type.
var EventTypes = []EventType{
	EventXPAwarded,
	EventLevelUp,
	EventStreakUpdated,
	EventAchievementUnlocked,
	EventMissionCompleted,
	EventMissionClaimed,
	EventRewardGranted,
}

// Event represents an immutable domain event.
type Event struct {
	Type        EventType      `json:"type"`
	Time        time.Time      `json:"time"`
	LearnerID   LearnerID      `json:"learner_id"`
	Kind        EventKind      `json:"event_kind,omitempty"`
	Delta       int64          `json:"delta,omitempty"`
	Total       int64          `json:"total,omitempty"`
	Level       int            `json:"level,omitempty"`
	Streak      int            `json:"streak,omitempty"`
	Achievement string         `json:"achievement,omitempty"`
	Mission     string         `json:"mission,omitempty"`
	Rarity      Rarity         `json:"rarity,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func NewXPAwarded(learner LearnerID, kind EventKind, delta, total int64, at time.Time) Event {
	return Event{Type: EventXPAwarded, Time: at, LearnerID: learner, Kind: kind, Delta: delta, Total: total}
}

func NewLevelUp(learner LearnerID, level int, total int64, at time.Time) Event {
	return Event{Type: EventLevelUp, Time: at, LearnerID: learner, Level: level, Total: total}
}

func NewStreakUpdated(learner LearnerID, u StreakUpdate, at time.Time) Event {
	return Event{Type: EventStreakUpdated, Time: at, LearnerID: learner, Streak: u.CurrentStreak,
		Metadata: map[string]any{"longest": u.LongestStreak, "extended": u.StreakExtended, "broken": u.StreakBroken}}
}

func NewAchievementUnlocked(learner LearnerID, a Achievement, at time.Time) Event {
	return Event{Type: EventAchievementUnlocked, Time: at, LearnerID: learner, Achievement: a.ID, Delta: a.BonusXP,
		Metadata: map[string]any{"name": a.Name, "tier": string(a.Tier)}}
}

func NewMissionCompleted(learner LearnerID, missionID string, at time.Time) Event {
	return Event{Type: EventMissionCompleted, Time: at, LearnerID: learner, Mission: missionID}
}

func NewMissionClaimed(learner LearnerID, missionID string, xp int64, at time.Time) Event {
	return Event{Type: EventMissionClaimed, Time: at, LearnerID: learner, Mission: missionID, Delta: xp}
}

func NewRewardGranted(learner LearnerID, source Source, rarity Rarity, item string, at time.Time) Event {
	return Event{Type: EventRewardGranted, Time: at, LearnerID: learner, Rarity: rarity,
		Metadata: map[string]any{"source": string(source), "item": item}}
}
