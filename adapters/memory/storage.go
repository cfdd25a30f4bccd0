package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"hanziquest/core"
	"hanziquest/engine"
)

// Store is a concurrent in-memory engine.Store. Each learner has its own lock;
// a unit of work runs on a copy that replaces the stored data only on success.
type Store struct {
	learners sync.Map // map[core.LearnerID]*learnerRecord
	onCommit CommitHook
	now      func() time.Time
}

// CommitHook runs while the learner is still locked, before the new data is
// installed. Returning an error aborts the commit.
type CommitHook func(learner core.LearnerID, data *LearnerData) error

type Option func(*Store)

func WithCommitHook(h CommitHook) Option { return func(s *Store) { s.onCommit = h } }

// LearnerData is everything stored for one learner.
type LearnerData struct {
	Progress *core.LearnerProgress           `json:"progress,omitempty"`
	Events   []core.XPEvent                  `json:"events,omitempty"`
	Unlocks  map[string]core.Unlock          `json:"unlocks,omitempty"`
	Missions map[string]core.MissionProgress `json:"missions,omitempty"`
	Cards    []core.CardEntry                `json:"cards,omitempty"`
}

func (d *LearnerData) clone() *LearnerData {
	cp := &LearnerData{
		Events:   append([]core.XPEvent(nil), d.Events...),
		Cards:    append([]core.CardEntry(nil), d.Cards...),
		Unlocks:  make(map[string]core.Unlock, len(d.Unlocks)),
		Missions: make(map[string]core.MissionProgress, len(d.Missions)),
	}
	if d.Progress != nil {
		p := d.Progress.Clone()
		cp.Progress = &p
	}
	for k, v := range d.Unlocks {
		cp.Unlocks[k] = v
	}
	for k, v := range d.Missions {
		cp.Missions[k] = v
	}
	return cp
}

type learnerRecord struct {
	mu   sync.Mutex
	data *LearnerData
}

func New(opts ...Option) *Store {
	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore installs previously saved learner data.
func (s *Store) Restore(data map[core.LearnerID]*LearnerData) {
	for id, d := range data {
		if d == nil {
			continue
		}
		s.learners.Store(id, &learnerRecord{data: d.clone()})
	}
}

func (s *Store) getOrCreate(learner core.LearnerID) *learnerRecord {
	if v, ok := s.learners.Load(learner); ok {
		return v.(*learnerRecord)
	}
	rec := &learnerRecord{data: &LearnerData{}}
	actual, _ := s.learners.LoadOrStore(learner, rec)
	return actual.(*learnerRecord)
}

func (s *Store) Update(ctx context.Context, learner core.LearnerID, fn func(engine.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec := s.getOrCreate(learner)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	work := rec.data.clone()
	if err := fn(&tx{learner: learner, data: work, now: s.now}); err != nil {
		return err
	}
	if s.onCommit != nil {
		if err := s.onCommit(learner, work); err != nil {
			return err
		}
	}
	rec.data = work
	return nil
}

// View runs fn on a copy; anything it writes is discarded.
func (s *Store) View(ctx context.Context, learner core.LearnerID, fn func(engine.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v, ok := s.learners.Load(learner)
	if !ok {
		return fn(&tx{learner: learner, data: &LearnerData{}, now: s.now})
	}
	rec := v.(*learnerRecord)
	rec.mu.Lock()
	snapshot := rec.data.clone()
	rec.mu.Unlock()
	return fn(&tx{learner: learner, data: snapshot, now: s.now})
}

func (s *Store) Ping(context.Context) error { return nil }

type tx struct {
	learner core.LearnerID
	data    *LearnerData
	now     func() time.Time
}

func (t *tx) ensure() *core.LearnerProgress {
	if t.data.Progress == nil {
		p := core.NewLearnerProgress(t.learner, t.now().UTC())
		t.data.Progress = &p
	}
	return t.data.Progress
}

func (t *tx) EnsureProgress(context.Context) (core.LearnerProgress, error) {
	return t.ensure().Clone(), nil
}

func (t *tx) Progress(context.Context) (core.LearnerProgress, bool, error) {
	if t.data.Progress == nil {
		return core.LearnerProgress{}, false, nil
	}
	return t.data.Progress.Clone(), true, nil
}

func (t *tx) AppendEvent(_ context.Context, ev core.XPEvent) (int64, error) {
	p := t.ensure()
	next, err := core.AddSafe(p.TotalXP, ev.XP)
	if err != nil {
		return 0, err
	}
	p.TotalXP = next
	p.UpdatedAt = ev.CreatedAt
	t.data.Events = append(t.data.Events, ev)
	return next, nil
}

func (t *tx) SaveProgress(_ context.Context, in core.LearnerProgress) error {
	p := t.ensure()
	in = in.Clone()
	p.Level = in.Level
	p.CurrentStreak = in.CurrentStreak
	p.LongestStreak = in.LongestStreak
	p.LastActivity = in.LastActivity
	p.UpdatedAt = in.UpdatedAt
	return nil
}

func (t *tx) AdjustSpins(_ context.Context, delta int) (int, error) {
	p := t.ensure()
	if p.Spins+delta < 0 {
		return p.Spins, core.ErrNoSpins
	}
	p.Spins += delta
	return p.Spins, nil
}

func (t *tx) Unlocks(context.Context) ([]core.Unlock, error) {
	out := make([]core.Unlock, 0, len(t.data.Unlocks))
	for _, u := range t.data.Unlocks {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UnlockedAt.Equal(out[j].UnlockedAt) {
			return out[i].UnlockedAt.Before(out[j].UnlockedAt)
		}
		return out[i].AchievementID < out[j].AchievementID
	})
	return out, nil
}

func (t *tx) InsertUnlock(_ context.Context, u core.Unlock) (bool, error) {
	if _, ok := t.data.Unlocks[u.AchievementID]; ok {
		return false, nil
	}
	if t.data.Unlocks == nil {
		t.data.Unlocks = map[string]core.Unlock{}
	}
	t.data.Unlocks[u.AchievementID] = u
	return true, nil
}

func (t *tx) CountEvents(_ context.Context, kinds []core.EventKind) (map[core.EventKind]int64, error) {
	out := make(map[core.EventKind]int64, len(kinds))
	want := make(map[core.EventKind]bool, len(kinds))
	for _, k := range kinds {
		out[k] = 0
		want[k] = true
	}
	for _, ev := range t.data.Events {
		if want[ev.Kind] {
			out[ev.Kind]++
		}
	}
	return out, nil
}

func (t *tx) RecentEvents(_ context.Context, limit int) ([]core.XPEvent, error) {
	n := len(t.data.Events)
	if limit > n {
		limit = n
	}
	out := make([]core.XPEvent, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, t.data.Events[i])
	}
	return out, nil
}

func (t *tx) MissionProgress(context.Context) (map[string]core.MissionProgress, error) {
	out := make(map[string]core.MissionProgress, len(t.data.Missions))
	for k, v := range t.data.Missions {
		out[k] = v
	}
	return out, nil
}

func (t *tx) SaveMissionProgress(_ context.Context, p core.MissionProgress) error {
	if t.data.Missions == nil {
		t.data.Missions = map[string]core.MissionProgress{}
	}
	t.data.Missions[p.MissionID] = p
	return nil
}

func (t *tx) Cards(context.Context) ([]core.CardEntry, error) {
	return append([]core.CardEntry(nil), t.data.Cards...), nil
}

func (t *tx) OwnsCard(_ context.Context, cardID string) (bool, error) {
	for _, c := range t.data.Cards {
		if c.CardID == cardID {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) AddCard(_ context.Context, e core.CardEntry) error {
	t.data.Cards = append(t.data.Cards, e)
	return nil
}

func (t *tx) DistinctCards(context.Context) (int64, error) {
	return int64(core.UniqueCards(t.data.Cards)), nil
}

var _ engine.Store = (*Store)(nil)
