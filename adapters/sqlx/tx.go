package sqlx

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	libsqlx "github.com/jmoiron/sqlx"

	"hanziquest/core"
)

type sqlTx struct {
	tx       *libsqlx.Tx
	learner  core.LearnerID
	driver   Driver
	readOnly bool
	now      func() time.Time
}

type progressRow struct {
	LearnerID     string         `db:"learner_id"`
	TotalXP       int64          `db:"total_xp"`
	Level         int            `db:"level"`
	CurrentStreak int            `db:"current_streak"`
	LongestStreak int            `db:"longest_streak"`
	LastActivity  sql.NullString `db:"last_activity_date"`
	Spins         int            `db:"spins"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r progressRow) toCore() (core.LearnerProgress, error) {
	p := core.LearnerProgress{
		LearnerID:     core.LearnerID(r.LearnerID),
		TotalXP:       r.TotalXP,
		Level:         r.Level,
		CurrentStreak: r.CurrentStreak,
		LongestStreak: r.LongestStreak,
		Spins:         r.Spins,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
	if r.LastActivity.Valid {
		d, err := civil.ParseDate(r.LastActivity.String)
		if err != nil {
			return p, fmt.Errorf("bad last_activity_date %q: %w", r.LastActivity.String, err)
		}
		p.LastActivity = &d
	}
	return p, nil
}

const selectProgress = `SELECT learner_id, total_xp, level, current_streak, longest_streak,
	last_activity_date, spins, created_at, updated_at FROM learner_progress WHERE learner_id = ?`

func (t *sqlTx) q(query string) string { return t.tx.Rebind(query) }

func (t *sqlTx) EnsureProgress(ctx context.Context) (core.LearnerProgress, error) {
	if t.readOnly {
		p, ok, err := t.Progress(ctx)
		if err != nil || ok {
			return p, err
		}
		return core.NewLearnerProgress(t.learner, t.now().UTC()), nil
	}
	now := t.now().UTC()
	insert := `INSERT INTO learner_progress (learner_id, level, created_at, updated_at)
		VALUES (?, 1, ?, ?) ON CONFLICT (learner_id) DO NOTHING`
	if t.driver == DriverMySQL {
		insert = `INSERT IGNORE INTO learner_progress (learner_id, level, created_at, updated_at)
		VALUES (?, 1, ?, ?)`
	}
	if _, err := t.tx.ExecContext(ctx, t.q(insert), string(t.learner), now, now); err != nil {
		return core.LearnerProgress{}, fmt.Errorf("create progress: %w", err)
	}
	var row progressRow
	if err := t.tx.GetContext(ctx, &row, t.q(selectProgress+" FOR UPDATE"), string(t.learner)); err != nil {
		return core.LearnerProgress{}, fmt.Errorf("lock progress: %w", err)
	}
	return row.toCore()
}

func (t *sqlTx) Progress(ctx context.Context) (core.LearnerProgress, bool, error) {
	var row progressRow
	err := t.tx.GetContext(ctx, &row, t.q(selectProgress), string(t.learner))
	if errors.Is(err, sql.ErrNoRows) {
		return core.LearnerProgress{}, false, nil
	}
	if err != nil {
		return core.LearnerProgress{}, false, err
	}
	p, err := row.toCore()
	return p, err == nil, err
}

func (t *sqlTx) AppendEvent(ctx context.Context, ev core.XPEvent) (int64, error) {
	meta, err := encodeMetadata(ev.Metadata)
	if err != nil {
		return 0, err
	}
	if _, err := t.tx.ExecContext(ctx, t.q(`INSERT INTO xp_events
		(id, learner_id, event_kind, xp_awarded, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		ev.ID, string(t.learner), string(ev.Kind), ev.XP, meta, ev.CreatedAt.UTC()); err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, t.q(`UPDATE learner_progress
		SET total_xp = total_xp + ?, updated_at = ? WHERE learner_id = ?`),
		ev.XP, ev.CreatedAt.UTC(), string(t.learner)); err != nil {
		return 0, fmt.Errorf("add xp: %w", err)
	}
	var total int64
	if err := t.tx.GetContext(ctx, &total, t.q(`SELECT total_xp FROM learner_progress WHERE learner_id = ?`), string(t.learner)); err != nil {
		return 0, fmt.Errorf("read total: %w", err)
	}
	return total, nil
}

func (t *sqlTx) SaveProgress(ctx context.Context, p core.LearnerProgress) error {
	var last sql.NullString
	if p.LastActivity != nil {
		last = sql.NullString{String: p.LastActivity.String(), Valid: true}
	}
	_, err := t.tx.ExecContext(ctx, t.q(`UPDATE learner_progress
		SET level = ?, current_streak = ?, longest_streak = ?, last_activity_date = ?, updated_at = ?
		WHERE learner_id = ?`),
		p.Level, p.CurrentStreak, p.LongestStreak, last, p.UpdatedAt.UTC(), string(t.learner))
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

func (t *sqlTx) AdjustSpins(ctx context.Context, delta int) (int, error) {
	res, err := t.tx.ExecContext(ctx, t.q(`UPDATE learner_progress
		SET spins = spins + ? WHERE learner_id = ? AND spins + ? >= 0`),
		delta, string(t.learner), delta)
	if err != nil {
		return 0, fmt.Errorf("adjust spins: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, core.ErrNoSpins
	}
	var spins int
	if err := t.tx.GetContext(ctx, &spins, t.q(`SELECT spins FROM learner_progress WHERE learner_id = ?`), string(t.learner)); err != nil {
		return 0, fmt.Errorf("read spins: %w", err)
	}
	return spins, nil
}

func (t *sqlTx) Unlocks(ctx context.Context) ([]core.Unlock, error) {
	var rows []struct {
		AchievementID string    `db:"achievement_id"`
		UnlockedAt    time.Time `db:"unlocked_at"`
	}
	if err := t.tx.SelectContext(ctx, &rows, t.q(`SELECT achievement_id, unlocked_at FROM achievement_unlocks
		WHERE learner_id = ? ORDER BY unlocked_at, achievement_id`), string(t.learner)); err != nil {
		return nil, fmt.Errorf("list unlocks: %w", err)
	}
	out := make([]core.Unlock, 0, len(rows))
	for _, r := range rows {
		out = append(out, core.Unlock{LearnerID: t.learner, AchievementID: r.AchievementID, UnlockedAt: r.UnlockedAt.UTC()})
	}
	return out, nil
}

func (t *sqlTx) InsertUnlock(ctx context.Context, u core.Unlock) (bool, error) {
	query := `INSERT INTO achievement_unlocks (learner_id, achievement_id, unlocked_at)
		VALUES (?, ?, ?) ON CONFLICT (learner_id, achievement_id) DO NOTHING`
	if t.driver == DriverMySQL {
		query = `INSERT IGNORE INTO achievement_unlocks (learner_id, achievement_id, unlocked_at) VALUES (?, ?, ?)`
	}
	res, err := t.tx.ExecContext(ctx, t.q(query), string(t.learner), u.AchievementID, u.UnlockedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("insert unlock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (t *sqlTx) CountEvents(ctx context.Context, kinds []core.EventKind) (map[core.EventKind]int64, error) {
	out := make(map[core.EventKind]int64, len(kinds))
	if len(kinds) == 0 {
		return out, nil
	}
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
		out[k] = 0
	}
	query, args, err := libsqlx.In(`SELECT event_kind, COUNT(*) AS n FROM xp_events
		WHERE learner_id = ? AND event_kind IN (?) GROUP BY event_kind`, string(t.learner), names)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Kind string `db:"event_kind"`
		N    int64  `db:"n"`
	}
	if err := t.tx.SelectContext(ctx, &rows, t.q(query), args...); err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	for _, r := range rows {
		out[core.EventKind(r.Kind)] = r.N
	}
	return out, nil
}

type eventRow struct {
	ID        string         `db:"id"`
	Kind      string         `db:"event_kind"`
	XP        int64          `db:"xp_awarded"`
	Metadata  sql.NullString `db:"metadata"`
	CreatedAt time.Time      `db:"created_at"`
}

func (t *sqlTx) RecentEvents(ctx context.Context, limit int) ([]core.XPEvent, error) {
	var rows []eventRow
	if err := t.tx.SelectContext(ctx, &rows, t.q(`SELECT id, event_kind, xp_awarded, metadata, created_at
		FROM xp_events WHERE learner_id = ? ORDER BY seq DESC LIMIT ?`), string(t.learner), limit); err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	out := make([]core.XPEvent, 0, len(rows))
	for _, r := range rows {
		ev := core.XPEvent{
			ID:        r.ID,
			LearnerID: t.learner,
			Kind:      core.EventKind(r.Kind),
			XP:        r.XP,
			CreatedAt: r.CreatedAt.UTC(),
		}
		if r.Metadata.Valid && r.Metadata.String != "" {
			if err := json.Unmarshal([]byte(r.Metadata.String), &ev.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of %s: %w", r.ID, err)
			}
		}
		out = append(out, ev)
	}
	return out, nil
}

func (t *sqlTx) MissionProgress(ctx context.Context) (map[string]core.MissionProgress, error) {
	var rows []struct {
		MissionID   string    `db:"mission_id"`
		WindowStart string    `db:"window_start"`
		Count       int       `db:"progress_count"`
		Completed   bool      `db:"completed"`
		Claimed     bool      `db:"claimed"`
		UpdatedAt   time.Time `db:"updated_at"`
	}
	if err := t.tx.SelectContext(ctx, &rows, t.q(`SELECT mission_id, window_start, progress_count, completed, claimed, updated_at
		FROM mission_progress WHERE learner_id = ?`), string(t.learner)); err != nil {
		return nil, fmt.Errorf("list missions: %w", err)
	}
	out := make(map[string]core.MissionProgress, len(rows))
	for _, r := range rows {
		start, err := civil.ParseDate(r.WindowStart)
		if err != nil {
			return nil, fmt.Errorf("bad window_start for %s: %w", r.MissionID, err)
		}
		out[r.MissionID] = core.MissionProgress{
			LearnerID:   t.learner,
			MissionID:   r.MissionID,
			WindowStart: start,
			Count:       r.Count,
			Completed:   r.Completed,
			Claimed:     r.Claimed,
			UpdatedAt:   r.UpdatedAt.UTC(),
		}
	}
	return out, nil
}

func (t *sqlTx) SaveMissionProgress(ctx context.Context, p core.MissionProgress) error {
	query := `INSERT INTO mission_progress
		(learner_id, mission_id, window_start, progress_count, completed, claimed, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (learner_id, mission_id) DO UPDATE SET
			window_start = EXCLUDED.window_start,
			progress_count = EXCLUDED.progress_count,
			completed = EXCLUDED.completed,
			claimed = EXCLUDED.claimed,
			updated_at = EXCLUDED.updated_at`
	if t.driver == DriverMySQL {
		query = `INSERT INTO mission_progress
		(learner_id, mission_id, window_start, progress_count, completed, claimed, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			window_start = VALUES(window_start),
			progress_count = VALUES(progress_count),
			completed = VALUES(completed),
			claimed = VALUES(claimed),
			updated_at = VALUES(updated_at)`
	}
	_, err := t.tx.ExecContext(ctx, t.q(query), string(t.learner), p.MissionID, p.WindowStart.String(),
		p.Count, p.Completed, p.Claimed, p.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("save mission %s: %w", p.MissionID, err)
	}
	return nil
}

func (t *sqlTx) Cards(ctx context.Context) ([]core.CardEntry, error) {
	var rows []struct {
		ID         string    `db:"id"`
		CardID     string    `db:"card_id"`
		Source     string    `db:"source"`
		ObtainedAt time.Time `db:"obtained_at"`
	}
	if err := t.tx.SelectContext(ctx, &rows, t.q(`SELECT id, card_id, source, obtained_at
		FROM card_collection WHERE learner_id = ? ORDER BY seq`), string(t.learner)); err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	out := make([]core.CardEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, core.CardEntry{ID: r.ID, LearnerID: t.learner, CardID: r.CardID, Source: r.Source, ObtainedAt: r.ObtainedAt.UTC()})
	}
	return out, nil
}

func (t *sqlTx) OwnsCard(ctx context.Context, cardID string) (bool, error) {
	var n int64
	if err := t.tx.GetContext(ctx, &n, t.q(`SELECT COUNT(*) FROM card_collection
		WHERE learner_id = ? AND card_id = ?`), string(t.learner), cardID); err != nil {
		return false, fmt.Errorf("owns card: %w", err)
	}
	return n > 0, nil
}

func (t *sqlTx) AddCard(ctx context.Context, e core.CardEntry) error {
	_, err := t.tx.ExecContext(ctx, t.q(`INSERT INTO card_collection (id, learner_id, card_id, source, obtained_at)
		VALUES (?, ?, ?, ?, ?)`), e.ID, string(t.learner), e.CardID, e.Source, e.ObtainedAt.UTC())
	if err != nil {
		return fmt.Errorf("add card: %w", err)
	}
	return nil
}

func (t *sqlTx) DistinctCards(ctx context.Context) (int64, error) {
	var n int64
	if err := t.tx.GetContext(ctx, &n, t.q(`SELECT COUNT(DISTINCT card_id) FROM card_collection WHERE learner_id = ?`), string(t.learner)); err != nil {
		return 0, fmt.Errorf("distinct cards: %w", err)
	}
	return n, nil
}

func encodeMetadata(m map[string]any) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode metadata: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
