package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hanziquest/core"
)

type gormTx struct {
	db       *gorm.DB
	learner  string
	readOnly bool
	now      func() time.Time
}

func (t *gormTx) scoped(ctx context.Context) *gorm.DB {
	return t.db.WithContext(ctx)
}

func (t *gormTx) mine(ctx context.Context, model any) *gorm.DB {
	return t.scoped(ctx).Model(model).Where("learner_id = ?", t.learner)
}

func toProgress(m progressModel) (core.LearnerProgress, error) {
	p := core.LearnerProgress{
		LearnerID:     core.LearnerID(m.LearnerID),
		TotalXP:       m.TotalXP,
		Level:         m.Level,
		CurrentStreak: m.CurrentStreak,
		LongestStreak: m.LongestStreak,
		Spins:         m.Spins,
		CreatedAt:     m.CreatedAt.UTC(),
		UpdatedAt:     m.UpdatedAt.UTC(),
	}
	if m.LastActivityDate != nil {
		d, err := civil.ParseDate(*m.LastActivityDate)
		if err != nil {
			return p, fmt.Errorf("bad last_activity_date %q: %w", *m.LastActivityDate, err)
		}
		p.LastActivity = &d
	}
	return p, nil
}

func (t *gormTx) EnsureProgress(ctx context.Context) (core.LearnerProgress, error) {
	if t.readOnly {
		p, ok, err := t.Progress(ctx)
		if err != nil || ok {
			return p, err
		}
		return core.NewLearnerProgress(core.LearnerID(t.learner), t.now().UTC()), nil
	}
	now := t.now().UTC()
	row := progressModel{LearnerID: t.learner, Level: 1, CreatedAt: now, UpdatedAt: now}
	if err := t.scoped(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return core.LearnerProgress{}, fmt.Errorf("create progress: %w", err)
	}
	var locked progressModel
	err := t.scoped(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("learner_id = ?", t.learner).
		Take(&locked).Error
	if err != nil {
		return core.LearnerProgress{}, fmt.Errorf("lock progress: %w", err)
	}
	return toProgress(locked)
}

func (t *gormTx) Progress(ctx context.Context) (core.LearnerProgress, bool, error) {
	var row progressModel
	err := t.scoped(ctx).Where("learner_id = ?", t.learner).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.LearnerProgress{}, false, nil
	}
	if err != nil {
		return core.LearnerProgress{}, false, err
	}
	p, err := toProgress(row)
	return p, err == nil, err
}

func (t *gormTx) AppendEvent(ctx context.Context, ev core.XPEvent) (int64, error) {
	row := eventModel{
		ID:        ev.ID,
		LearnerID: t.learner,
		EventKind: string(ev.Kind),
		XPAwarded: ev.XP,
		CreatedAt: ev.CreatedAt.UTC(),
	}
	if len(ev.Metadata) > 0 {
		b, err := json.Marshal(ev.Metadata)
		if err != nil {
			return 0, fmt.Errorf("encode metadata: %w", err)
		}
		s := string(b)
		row.Metadata = &s
	}
	if err := t.scoped(ctx).Create(&row).Error; err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	err := t.mine(ctx, &progressModel{}).Updates(map[string]any{
		"total_xp":   gorm.Expr("total_xp + ?", ev.XP),
		"updated_at": ev.CreatedAt.UTC(),
	}).Error
	if err != nil {
		return 0, fmt.Errorf("add xp: %w", err)
	}
	var p progressModel
	if err := t.scoped(ctx).Select("total_xp").Where("learner_id = ?", t.learner).Take(&p).Error; err != nil {
		return 0, fmt.Errorf("read total: %w", err)
	}
	return p.TotalXP, nil
}

func (t *gormTx) SaveProgress(ctx context.Context, p core.LearnerProgress) error {
	var last *string
	if p.LastActivity != nil {
		s := p.LastActivity.String()
		last = &s
	}
	err := t.mine(ctx, &progressModel{}).Updates(map[string]any{
		"level":              p.Level,
		"current_streak":     p.CurrentStreak,
		"longest_streak":     p.LongestStreak,
		"last_activity_date": last,
		"updated_at":         p.UpdatedAt.UTC(),
	}).Error
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

func (t *gormTx) AdjustSpins(ctx context.Context, delta int) (int, error) {
	res := t.scoped(ctx).Model(&progressModel{}).
		Where("learner_id = ? AND spins + ? >= 0", t.learner, delta).
		UpdateColumn("spins", gorm.Expr("spins + ?", delta))
	if res.Error != nil {
		return 0, fmt.Errorf("adjust spins: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, core.ErrNoSpins
	}
	var p progressModel
	if err := t.scoped(ctx).Select("spins").Where("learner_id = ?", t.learner).Take(&p).Error; err != nil {
		return 0, fmt.Errorf("read spins: %w", err)
	}
	return p.Spins, nil
}

func (t *gormTx) Unlocks(ctx context.Context) ([]core.Unlock, error) {
	var rows []unlockModel
	if err := t.mine(ctx, &unlockModel{}).Order("unlocked_at, achievement_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list unlocks: %w", err)
	}
	out := make([]core.Unlock, 0, len(rows))
	for _, r := range rows {
		out = append(out, core.Unlock{LearnerID: core.LearnerID(r.LearnerID), AchievementID: r.AchievementID, UnlockedAt: r.UnlockedAt.UTC()})
	}
	return out, nil
}

func (t *gormTx) InsertUnlock(ctx context.Context, u core.Unlock) (bool, error) {
	row := unlockModel{LearnerID: t.learner, AchievementID: u.AchievementID, UnlockedAt: u.UnlockedAt.UTC()}
	res := t.scoped(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("insert unlock: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (t *gormTx) CountEvents(ctx context.Context, kinds []core.EventKind) (map[core.EventKind]int64, error) {
	out := make(map[core.EventKind]int64, len(kinds))
	if len(kinds) == 0 {
		return out, nil
	}
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
		out[k] = 0
	}
	var rows []struct {
		EventKind string
		N         int64
	}
	err := t.mine(ctx, &eventModel{}).
		Select("event_kind, COUNT(*) AS n").
		Where("event_kind IN ?", names).
		Group("event_kind").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	for _, r := range rows {
		out[core.EventKind(r.EventKind)] = r.N
	}
	return out, nil
}

func (t *gormTx) RecentEvents(ctx context.Context, limit int) ([]core.XPEvent, error) {
	var rows []eventModel
	if err := t.mine(ctx, &eventModel{}).Order("seq DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	out := make([]core.XPEvent, 0, len(rows))
	for _, r := range rows {
		ev := core.XPEvent{
			ID:        r.ID,
			LearnerID: core.LearnerID(r.LearnerID),
			Kind:      core.EventKind(r.EventKind),
			XP:        r.XPAwarded,
			CreatedAt: r.CreatedAt.UTC(),
		}
		if r.Metadata != nil {
			if err := json.Unmarshal([]byte(*r.Metadata), &ev.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of %s: %w", r.ID, err)
			}
		}
		out = append(out, ev)
	}
	return out, nil
}

func (t *gormTx) MissionProgress(ctx context.Context) (map[string]core.MissionProgress, error) {
	var rows []missionModel
	if err := t.mine(ctx, &missionModel{}).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list missions: %w", err)
	}
	out := make(map[string]core.MissionProgress, len(rows))
	for _, r := range rows {
		start, err := civil.ParseDate(r.WindowStart)
		if err != nil {
			return nil, fmt.Errorf("bad window_start for %s: %w", r.MissionID, err)
		}
		out[r.MissionID] = core.MissionProgress{
			LearnerID:   core.LearnerID(r.LearnerID),
			MissionID:   r.MissionID,
			WindowStart: start,
			Count:       r.ProgressCount,
			Completed:   r.Completed,
			Claimed:     r.Claimed,
			UpdatedAt:   r.UpdatedAt.UTC(),
		}
	}
	return out, nil
}

func (t *gormTx) SaveMissionProgress(ctx context.Context, p core.MissionProgress) error {
	row := missionModel{
		LearnerID:     t.learner,
		MissionID:     p.MissionID,
		WindowStart:   p.WindowStart.String(),
		ProgressCount: p.Count,
		Completed:     p.Completed,
		Claimed:       p.Claimed,
		UpdatedAt:     p.UpdatedAt.UTC(),
	}
	err := t.scoped(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "learner_id"}, {Name: "mission_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"window_start", "progress_count", "completed", "claimed", "updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save mission %s: %w", p.MissionID, err)
	}
	return nil
}

func (t *gormTx) Cards(ctx context.Context) ([]core.CardEntry, error) {
	var rows []cardModel
	if err := t.mine(ctx, &cardModel{}).Order("seq").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	out := make([]core.CardEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, core.CardEntry{
			ID:         r.ID,
			LearnerID:  core.LearnerID(r.LearnerID),
			CardID:     r.CardID,
			Source:     r.Source,
			ObtainedAt: r.ObtainedAt.UTC(),
		})
	}
	return out, nil
}

func (t *gormTx) OwnsCard(ctx context.Context, cardID string) (bool, error) {
	var n int64
	if err := t.mine(ctx, &cardModel{}).Where("card_id = ?", cardID).Count(&n).Error; err != nil {
		return false, fmt.Errorf("owns card: %w", err)
	}
	return n > 0, nil
}

func (t *gormTx) AddCard(ctx context.Context, e core.CardEntry) error {
	row := cardModel{ID: e.ID, LearnerID: t.learner, CardID: e.CardID, Source: e.Source, ObtainedAt: e.ObtainedAt.UTC()}
	if err := t.scoped(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("add card: %w", err)
	}
	return nil
}

func (t *gormTx) DistinctCards(ctx context.Context) (int64, error) {
	var n int64
	if err := t.mine(ctx, &cardModel{}).Distinct("card_id").Count(&n).Error; err != nil {
		return 0, fmt.Errorf("distinct cards: %w", err)
	}
	return n, nil
}
