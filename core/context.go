package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// EventContext is the validated, kind-specific payload of a learning event.
// There is one concrete type per EventKind.
type EventContext interface {
	Kind() EventKind
	Validate() error
}

// QuizComplete carries the raw score of a finished quiz.
type QuizComplete struct {
	Score *int `json:"score"`
	Total *int `json:"total"`
}

func (QuizComplete) Kind() EventKind { return KindQuizComplete }

func (c QuizComplete) Validate() error {
	if c.Score == nil || c.Total == nil {
		return missing(KindQuizComplete, "score and total are required")
	}
	if *c.Total <= 0 {
		return missing(KindQuizComplete, "total must be positive")
	}
	if *c.Score < 0 || *c.Score > *c.Total {
		return missing(KindQuizComplete, "score must be between 0 and total")
	}
	return nil
}

// LessonComplete has no required fields.
type LessonComplete struct {
	LessonID string `json:"lesson_id,omitempty"`
}

func (LessonComplete) Kind() EventKind { return KindLessonComplete }
func (LessonComplete) Validate() error { return nil }

// BossWin carries the defeated boss's difficulty and the reward pack size.
type BossWin struct {
	Difficulty *int `json:"difficulty"`
	PackSize   int  `json:"pack_size,omitempty"`
}

func (BossWin) Kind() EventKind { return KindBossWin }

func (c BossWin) Validate() error {
	if c.Difficulty == nil {
		return missing(KindBossWin, "difficulty is required")
	}
	if *c.Difficulty < 1 || *c.Difficulty > MaxBossDifficulty {
		return missing(KindBossWin, fmt.Sprintf("difficulty must be between 1 and %d", MaxBossDifficulty))
	}
	if c.PackSize < 0 {
		return missing(KindBossWin, "pack_size cannot be negative")
	}
	return nil
}

// MissionComplete prices a mission reward by cadence.
type MissionComplete struct {
	Cadence   Cadence `json:"cadence"`
	MissionID string  `json:"mission_id,omitempty"`
}

func (MissionComplete) Kind() EventKind { return KindMissionComplete }

func (c MissionComplete) Validate() error {
	if !c.Cadence.Valid() {
		return missing(KindMissionComplete, "cadence must be daily, weekly, newbie or special")
	}
	return nil
}

// DailyLogin has no payload; the activity date comes from the request.
type DailyLogin struct{}

func (DailyLogin) Kind() EventKind { return KindDailyLogin }
func (DailyLogin) Validate() error { return nil }

// StreakMilestone prices a streak length.
type StreakMilestone struct {
	Streak *int `json:"streak"`
}

func (StreakMilestone) Kind() EventKind { return KindStreakMilestone }

func (c StreakMilestone) Validate() error {
	if c.Streak == nil || *c.Streak < 1 {
		return missing(KindStreakMilestone, "streak must be a positive integer")
	}
	return nil
}

// PronunciationPractice carries an accuracy percentage in [0, 100].
type PronunciationPractice struct {
	Accuracy *float64 `json:"accuracy"`
}

func (PronunciationPractice) Kind() EventKind { return KindPronunciationPractice }

func (c PronunciationPractice) Validate() error {
	if c.Accuracy == nil {
		return missing(KindPronunciationPractice, "accuracy is required")
	}
	if *c.Accuracy < 0 || *c.Accuracy > 100 {
		return missing(KindPronunciationPractice, "accuracy must be between 0 and 100")
	}
	return nil
}

// CardCollected names a catalog card obtained outside a pack.
type CardCollected struct {
	CardID string `json:"card_id"`
}

func (CardCollected) Kind() EventKind { return KindCardCollected }

func (c CardCollected) Validate() error {
	if strings.TrimSpace(c.CardID) == "" {
		return missing(KindCardCollected, "card_id is required")
	}
	return nil
}

// VocabularyMastered optionally names the mastered word.
type VocabularyMastered struct {
	Word string `json:"word,omitempty"`
}

func (VocabularyMastered) Kind() EventKind { return KindVocabularyMastered }
func (VocabularyMastered) Validate() error { return nil }

func missing(kind EventKind, msg string) error {
	return fmt.Errorf("%w: %s: %s", ErrMissingMetadata, kind, msg)
}

// DecodeContext parses raw JSON metadata into the variant for kind and validates it.
// Unknown fields are rejected so typos surface as validation errors.
func DecodeContext(kind EventKind, raw json.RawMessage) (EventContext, error) {
	if !kind.Public() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventKind, kind)
	}
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		raw = json.RawMessage("{}")
	}
	var (
		ec  EventContext
		err error
	)
	switch kind {
	case KindQuizComplete:
		ec, err = decodeInto[QuizComplete](raw)
	case KindLessonComplete:
		ec, err = decodeInto[LessonComplete](raw)
	case KindBossWin:
		ec, err = decodeInto[BossWin](raw)
	case KindMissionComplete:
		ec, err = decodeInto[MissionComplete](raw)
	case KindDailyLogin:
		ec, err = decodeInto[DailyLogin](raw)
	case KindStreakMilestone:
		ec, err = decodeInto[StreakMilestone](raw)
	case KindPronunciationPractice:
		ec, err = decodeInto[PronunciationPractice](raw)
	case KindCardCollected:
		ec, err = decodeInto[CardCollected](raw)
	case KindVocabularyMastered:
		ec, err = decodeInto[VocabularyMastered](raw)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingMetadata, kind, err)
	}
	if err := ec.Validate(); err != nil {
		return nil, err
	}
	return ec, nil
}

func decodeInto[T EventContext](raw json.RawMessage) (EventContext, error) {
	var v T
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// MetadataOf flattens a context into the free-form map stored on ledger entries.
func MetadataOf(ec EventContext) map[string]any {
	if ec == nil {
		return nil
	}
	b, err := json.Marshal(ec)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil || len(m) == 0 {
		return nil
	}
	return m
}

// IntPtr and FloatPtr build contexts in code.
func IntPtr(v int) *int { return &v }

func FloatPtr(v float64) *float64 { return &v }
