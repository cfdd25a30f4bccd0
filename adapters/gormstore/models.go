package gormstore

import "time"

type progressModel struct {
	LearnerID        string    `gorm:"primaryKey;size:128"`
	TotalXP          int64     `gorm:"not null;default:0"`
	Level            int       `gorm:"not null;default:1"`
	CurrentStreak    int       `gorm:"not null;default:0"`
	LongestStreak    int       `gorm:"not null;default:0"`
	LastActivityDate *string   `gorm:"size:10"`
	Spins            int       `gorm:"not null;default:0"`
	CreatedAt        time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime:false"`
}

func (progressModel) TableName() string { return "learner_progress" }

type eventModel struct {
	Seq       uint64    `gorm:"primaryKey;autoIncrement"`
	ID        string    `gorm:"size:36;uniqueIndex;not null"`
	LearnerID string    `gorm:"size:128;not null;index:idx_xp_events_learner_kind"`
	EventKind string    `gorm:"size:64;not null;index:idx_xp_events_learner_kind"`
	XPAwarded int64     `gorm:"column:xp_awarded;not null"`
	Metadata  *string   `gorm:"type:text"`
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
}

func (eventModel) TableName() string { return "xp_events" }

type unlockModel struct {
	LearnerID     string    `gorm:"primaryKey;size:128"`
	AchievementID string    `gorm:"primaryKey;size:128"`
	UnlockedAt    time.Time `gorm:"not null"`
}

func (unlockModel) TableName() string { return "achievement_unlocks" }

type missionModel struct {
	LearnerID     string    `gorm:"primaryKey;size:128"`
	MissionID     string    `gorm:"primaryKey;size:128"`
	WindowStart   string    `gorm:"size:10;not null"`
	ProgressCount int       `gorm:"not null"`
	Completed     bool      `gorm:"not null"`
	Claimed       bool      `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime:false"`
}

func (missionModel) TableName() string { return "mission_progress" }

type cardModel struct {
	Seq        uint64    `gorm:"primaryKey;autoIncrement"`
	ID         string    `gorm:"size:36;uniqueIndex;not null"`
	LearnerID  string    `gorm:"size:128;not null;index:idx_card_collection_learner_card"`
	CardID     string    `gorm:"size:128;not null;index:idx_card_collection_learner_card"`
	Source     string    `gorm:"size:64;not null"`
	ObtainedAt time.Time `gorm:"not null"`
}

func (cardModel) TableName() string { return "card_collection" }

func models() []any {
	return []any{&progressModel{}, &eventModel{}, &unlockModel{}, &missionModel{}, &cardModel{}}
}
