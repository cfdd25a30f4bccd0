package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	mem "hanziquest/adapters/memory"
	"hanziquest/catalog"
	"hanziquest/core"
	"hanziquest/engine"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fixedRand always draws the lowest value, so every draw lands on common and
// the first item of a pool.
type fixedRand struct{ f float64 }

func (r fixedRand) Float64() float64 { return r.f }
func (fixedRand) IntN(int) int       { return 0 }

type bogusContext struct{}

func (bogusContext) Kind() core.EventKind { return "dance_party" }
func (bogusContext) Validate() error      { return nil }

func testData() catalog.Data {
	return catalog.Data{
		Levels: []core.LevelThreshold{
			{Level: 1, MinXP: 0}, {Level: 2, MinXP: 100}, {Level: 3, MinXP: 250}, {Level: 4, MinXP: 500}, {Level: 5, MinXP: 1000},
		},
		Missions: []core.Mission{
			{ID: "daily_quiz_2", Title: "Two quizzes", Cadence: core.CadenceDaily, Activity: core.KindQuizComplete, Target: 2},
		},
		Cards: []core.Card{
			{ID: "c1", Hanzi: "你", Rarity: core.RarityCommon},
			{ID: "c2", Hanzi: "好", Rarity: core.RarityCommon},
			{ID: "r1", Hanzi: "学", Rarity: core.RarityRare},
			{ID: "e1", Hanzi: "龍", Rarity: core.RarityEpic},
			{ID: "l1", Hanzi: "鳳", Rarity: core.RarityLegendary},
		},
		WheelRewards: []core.WheelReward{
			{ID: "xp_25", Label: "+25 XP", Kind: core.WheelXPBonus, Rarity: core.RarityCommon, Amount: 25},
			{ID: "card_rare", Label: "Rare card", Kind: core.WheelCard, Rarity: core.RarityRare},
		},
	}
}

type fixture struct {
	eng   *engine.Engine
	bus   *engine.EventBus
	clock *clock
}

func newFixture(t *testing.T, mutate func(*catalog.Data), opts ...engine.Option) fixture {
	t.Helper()
	d := testData()
	if mutate != nil {
		mutate(&d)
	}
	cat, err := catalog.New(d)
	require.NoError(t, err)
	clk := &clock{t: time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)}
	bus := engine.NewEventBus(engine.DispatchSync)
	base := []engine.Option{engine.WithClock(clk.Now), engine.WithRand(fixedRand{})}
	eng := engine.New(mem.New(), cat, bus, append(base, opts...)...)
	t.Cleanup(eng.Close)
	return fixture{eng: eng, bus: bus, clock: clk}
}

func quiz(learner string, score, total int) engine.EventRequest {
	return engine.EventRequest{
		LearnerID: core.LearnerID(learner),
		Context:   core.QuizComplete{Score: core.IntPtr(score), Total: core.IntPtr(total)},
	}
}

func claim(learner, mission string) engine.ClaimRequest {
	return engine.ClaimRequest{LearnerID: core.LearnerID(learner), MissionID: mission}
}

func login(learner string, day civil.Date) engine.EventRequest {
	return engine.EventRequest{
		LearnerID:  core.LearnerID(learner),
		Context:    core.DailyLogin{},
		OccurredAt: day.In(time.UTC).Add(8 * time.Hour),
	}
}

func withAchievement(a core.Achievement) func(*catalog.Data) {
	return func(d *catalog.Data) { d.Achievements = append(d.Achievements, a) }
}

func TestEndToEndQuizScenario(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	var levelUps []core.Event
	f.eng.Subscribe(core.EventLevelUp, func(_ context.Context, e core.Event) { levelUps = append(levelUps, e) })

	res, err := f.eng.RecordEvent(ctx, quiz("learner-1", 9, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(80), res.XPAwarded)
	assert.Equal(t, int64(80), res.NewTotalXP)
	assert.False(t, res.LevelUp)
	assert.Empty(t, res.NewlyUnlockedAchievements)

	res, err = f.eng.RecordEvent(ctx, quiz("learner-1", 9, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(160), res.NewTotalXP)
	assert.True(t, res.LevelUp)
	assert.Equal(t, 2, res.NewLevel)
	assert.Equal(t, 1, res.SpinsGranted, "each level gained grants a spin")
	assert.Equal(t, []string{"daily_quiz_2"}, res.CompletedMissions)

	require.Len(t, levelUps, 1)
	assert.Equal(t, 2, levelUps[0].Level)

	view, err := f.eng.GetProgress(ctx, "learner-1")
	require.NoError(t, err)
	assert.True(t, view.Started)
	assert.Equal(t, int64(160), view.TotalXP)
	assert.Equal(t, 2, view.Level)
	assert.Equal(t, 3, view.NextLevel)
	assert.Equal(t, int64(250), view.NextLevelXP)
}

func TestQuizPricingExtremes(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	res, err := f.eng.RecordEvent(ctx, quiz("a", 10, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(100), res.XPAwarded)
	res, err = f.eng.RecordEvent(ctx, quiz("b", 0, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(50), res.XPAwarded)
}

func TestMultiLevelJumpReportsFinalLevel(t *testing.T) {
	f := newFixture(t, nil)
	var levels []int
	f.eng.Subscribe(core.EventLevelUp, func(_ context.Context, e core.Event) { levels = append(levels, e.Level) })
	res, err := f.eng.RecordEvent(context.Background(), engine.EventRequest{
		LearnerID: "u", Context: core.BossWin{Difficulty: core.IntPtr(8)},
	})
	require.NoError(t, err)
	// 100 + 50*8 plus a first common card
	assert.Equal(t, int64(510), res.NewTotalXP)
	assert.Equal(t, 4, res.NewLevel)
	assert.Equal(t, []int{4}, levels)
	assert.Equal(t, 3, res.SpinsAvailable)
}

func TestValidationLeavesNoState(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.eng.RecordEvent(ctx, engine.EventRequest{LearnerID: "u", Context: bogusContext{}})
	require.ErrorIs(t, err, core.ErrUnknownEventKind)
	require.ErrorIs(t, err, core.ErrValidation)

	_, err = f.eng.RecordEvent(ctx, engine.EventRequest{LearnerID: "u", Context: core.QuizComplete{Score: core.IntPtr(9)}})
	require.ErrorIs(t, err, core.ErrMissingMetadata)

	_, err = f.eng.RecordEvent(ctx, engine.EventRequest{LearnerID: "u", Context: core.LessonComplete{}, Timezone: "Mars/Olympus"})
	require.ErrorIs(t, err, core.ErrInvalidTimezone)

	_, err = f.eng.RecordEvent(ctx, engine.EventRequest{LearnerID: "  ", Context: core.LessonComplete{}})
	require.ErrorIs(t, err, core.ErrValidation)

	view, err := f.eng.GetProgress(ctx, "u")
	require.NoError(t, err)
	assert.False(t, view.Started)
	assert.Equal(t, 1, view.Level)
	assert.Zero(t, view.TotalXP)
	events, err := f.eng.RecentEvents(ctx, "u", 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestDailyLoginIsIdempotentPerDay(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	d := civil.Date{Year: 2025, Month: time.March, Day: 3}

	first, err := f.eng.RecordEvent(ctx, login("u", d))
	require.NoError(t, err)
	assert.Equal(t, int64(20), first.XPAwarded)
	require.NotNil(t, first.StreakUpdated)
	assert.Equal(t, 1, first.StreakUpdated.CurrentStreak)
	assert.Equal(t, 1, first.SpinsGranted)

	second, err := f.eng.RecordEvent(ctx, login("u", d))
	require.NoError(t, err)
	assert.Zero(t, second.XPAwarded)
	assert.Zero(t, second.SpinsGranted)
	assert.Equal(t, int64(20), second.NewTotalXP)
	require.NotNil(t, second.StreakUpdated)
	assert.True(t, second.StreakUpdated.SameDay)
	assert.Equal(t, 1, second.StreakUpdated.CurrentStreak)

	events, err := f.eng.RecentEvents(ctx, "u", 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestStreakContinueBreakAndOrder(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	d := civil.Date{Year: 2025, Month: time.March, Day: 3}

	_, err := f.eng.RecordEvent(ctx, login("u", d))
	require.NoError(t, err)
	res, err := f.eng.RecordEvent(ctx, login("u", d.AddDays(1)))
	require.NoError(t, err)
	assert.Equal(t, 2, res.StreakUpdated.CurrentStreak)
	assert.True(t, res.StreakUpdated.StreakExtended)

	res, err = f.eng.RecordEvent(ctx, login("u", d.AddDays(4)))
	require.NoError(t, err)
	assert.Equal(t, 1, res.StreakUpdated.CurrentStreak)
	assert.Equal(t, 2, res.StreakUpdated.LongestStreak)
	assert.True(t, res.StreakUpdated.StreakBroken)

	_, err = f.eng.RecordEvent(ctx, login("u", d.AddDays(2)))
	require.ErrorIs(t, err, core.ErrOutOfOrderActivity)

	view, err := f.eng.GetProgress(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 1, view.CurrentStreak)
	assert.Equal(t, 2, view.LongestStreak)
	assert.Equal(t, d.AddDays(4), *view.LastActivity)
	assert.Equal(t, int64(60), view.TotalXP)
}

func TestLoginDayFollowsTimezone(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	// 23:30 UTC on the 3rd is already the 4th in Ho Chi Minh City
	at := time.Date(2025, time.March, 3, 23, 30, 0, 0, time.UTC)
	_, err := f.eng.RecordEvent(ctx, engine.EventRequest{LearnerID: "u", Context: core.DailyLogin{}, OccurredAt: at, Timezone: "Asia/Ho_Chi_Minh"})
	require.NoError(t, err)
	view, err := f.eng.GetProgress(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, civil.Date{Year: 2025, Month: time.March, Day: 4}, *view.LastActivity)
}

func TestSevenDayStreakPaysMilestone(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	d := civil.Date{Year: 2025, Month: time.March, Day: 3}
	var last engine.EventResult
	for i := 0; i < 7; i++ {
		var err error
		last, err = f.eng.RecordEvent(ctx, login("u", d.AddDays(i)))
		require.NoError(t, err)
		if i < 6 {
			assert.Zero(t, last.MilestoneXP)
		}
	}
	assert.Equal(t, int64(100), last.MilestoneXP)
	assert.Equal(t, int64(7*20+100), last.NewTotalXP)
}

func TestAchievementUnlocksExactlyOnce(t *testing.T) {
	f := newFixture(t, withAchievement(core.Achievement{
		ID: "xp_1000", Name: "Thousand", Category: "xp", Tier: core.TierSilver,
		Requirement: core.Requirement{Kind: core.RequireTotalXP, Value: 1000}, BonusXP: 50,
	}))
	ctx := context.Background()
	lesson := engine.EventRequest{LearnerID: "u", Context: core.LessonComplete{}}

	var unlocked []string
	for i := 0; i < 12; i++ {
		res, err := f.eng.RecordEvent(ctx, lesson)
		require.NoError(t, err)
		for _, a := range res.NewlyUnlockedAchievements {
			unlocked = append(unlocked, a.ID)
		}
		if i == 9 {
			assert.Equal(t, int64(1050), res.NewTotalXP)
			assert.Equal(t, int64(50), res.BonusXP)
		}
	}
	assert.Equal(t, []string{"xp_1000"}, unlocked)

	view, err := f.eng.GetProgress(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, int64(12*100+50), view.TotalXP)

	board, err := f.eng.AchievementBoard(ctx, "u")
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.True(t, board[0].Unlocked)
	assert.NotNil(t, board[0].UnlockedAt)
}

func TestAchievementBonusDoesNotCascade(t *testing.T) {
	f := newFixture(t, func(d *catalog.Data) {
		d.Achievements = []core.Achievement{
			{ID: "a100", Tier: core.TierBronze, Requirement: core.Requirement{Kind: core.RequireTotalXP, Value: 100}, BonusXP: 100},
			{ID: "a200", Tier: core.TierSilver, Requirement: core.Requirement{Kind: core.RequireTotalXP, Value: 200}, BonusXP: 10},
		}
	})
	ctx := context.Background()
	res, err := f.eng.RecordEvent(ctx, engine.EventRequest{LearnerID: "u", Context: core.LessonComplete{}})
	require.NoError(t, err)
	require.Len(t, res.NewlyUnlockedAchievements, 1)
	assert.Equal(t, "a100", res.NewlyUnlockedAchievements[0].ID)
	assert.Equal(t, int64(200), res.NewTotalXP)

	// the next external event picks up the threshold the bonus crossed
	res, err = f.eng.RecordEvent(ctx, engine.EventRequest{LearnerID: "u", Context: core.VocabularyMastered{}})
	require.NoError(t, err)
	require.Len(t, res.NewlyUnlockedAchievements, 1)
	assert.Equal(t, "a200", res.NewlyUnlockedAchievements[0].ID)
}

func TestActivityCountAchievement(t *testing.T) {
	f := newFixture(t, withAchievement(core.Achievement{
		ID: "quiz_2", Tier: core.TierBronze,
		Requirement: core.Requirement{Kind: core.RequireActivityCount, Activity: core.KindQuizComplete, Value: 2},
	}))
	ctx := context.Background()
	res, err := f.eng.RecordEvent(ctx, quiz("u", 1, 10))
	require.NoError(t, err)
	assert.Empty(t, res.NewlyUnlockedAchievements)
	res, err = f.eng.RecordEvent(ctx, quiz("u", 1, 10))
	require.NoError(t, err)
	require.Len(t, res.NewlyUnlockedAchievements, 1)
	assert.Zero(t, res.BonusXP)
}

func TestConcurrentEventsLoseNothing(t *testing.T) {
	f := newFixture(t, withAchievement(core.Achievement{
		ID: "xp_500", Tier: core.TierBronze,
		Requirement: core.Requirement{Kind: core.RequireTotalXP, Value: 500}, BonusXP: 25,
	}))
	ctx := context.Background()
	var unlocks sync.Map
	f.eng.Subscribe(core.EventAchievementUnlocked, func(_ context.Context, e core.Event) {
		n, _ := unlocks.LoadOrStore(e.Achievement, new(int))
		*n.(*int)++
	})

	var g errgroup.Group
	const n = 40
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := f.eng.RecordEvent(ctx, engine.EventRequest{LearnerID: "u", Context: core.VocabularyMastered{}})
			return err
		})
	}
	require.NoError(t, g.Wait())

	view, err := f.eng.GetProgress(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, int64(n*15+25), view.TotalXP)
	v, ok := unlocks.Load("xp_500")
	require.True(t, ok)
	assert.Equal(t, 1, *v.(*int))
}

func TestMissionClaimGuard(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.eng.ClaimMission(ctx, claim("u", "nope"))
	require.ErrorIs(t, err, core.ErrMissionNotFound)

	_, err = f.eng.RecordEvent(ctx, quiz("u", 1, 10))
	require.NoError(t, err)
	_, err = f.eng.ClaimMission(ctx, claim("u", "daily_quiz_2"))
	require.ErrorIs(t, err, core.ErrMissionNotCompleted)

	_, err = f.eng.RecordEvent(ctx, quiz("u", 1, 10))
	require.NoError(t, err)
	claimed, err := f.eng.ClaimMission(ctx, claim("u", "daily_quiz_2"))
	require.NoError(t, err)
	assert.Equal(t, int64(50), claimed.XPAwarded)
	assert.Equal(t, int64(150), claimed.NewTotalXP)

	_, err = f.eng.ClaimMission(ctx, claim("u", "daily_quiz_2"))
	require.ErrorIs(t, err, core.ErrMissionAlreadyClaimed)

	view, err := f.eng.GetProgress(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, int64(150), view.TotalXP, "second claim grants nothing")
}

func TestMissionCountCapsAndResetsNextDay(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.eng.RecordEvent(ctx, quiz("u", 1, 10))
		require.NoError(t, err)
	}
	board, err := f.eng.MissionBoard(ctx, "u", "")
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, 2, board[0].Count)
	assert.True(t, board[0].Completed)
	assert.False(t, board[0].Claimed)

	f.clock.Advance(24 * time.Hour)
	board, err = f.eng.MissionBoard(ctx, "u", "")
	require.NoError(t, err)
	assert.Zero(t, board[0].Count)
	assert.False(t, board[0].Completed)

	_, err = f.eng.ClaimMission(ctx, claim("u", "daily_quiz_2"))
	require.ErrorIs(t, err, core.ErrMissionNotCompleted, "yesterday's completion expired unclaimed")
}

func TestMissionsFollowLearnerTimezone(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	// 12:00 UTC on 3 March is already 02:00 on 4 March in Kiritimati
	f.clock.Advance(3 * time.Hour)
	const tz = "Pacific/Kiritimati"

	var res engine.EventResult
	for i := 0; i < 2; i++ {
		req := quiz("u", 1, 10)
		req.Timezone = tz
		var err error
		res, err = f.eng.RecordEvent(ctx, req)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"daily_quiz_2"}, res.CompletedMissions)

	board, err := f.eng.MissionBoard(ctx, "u", tz)
	require.NoError(t, err)
	assert.Equal(t, 2, board[0].Count)
	assert.True(t, board[0].Completed)
	assert.Equal(t, civil.Date{Year: 2025, Month: time.March, Day: 4}, board[0].WindowStart)
	assert.Equal(t, civil.Date{Year: 2025, Month: time.March, Day: 5}, *board[0].WindowEnd)

	// the engine's own day is still 3 March; the learner's window is not reset
	board, err = f.eng.MissionBoard(ctx, "u", "")
	require.NoError(t, err)
	assert.True(t, board[0].Completed)

	req := claim("u", "daily_quiz_2")
	req.Timezone = tz
	claimed, err := f.eng.ClaimMission(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(50), claimed.XPAwarded)

	req.Timezone = "Mars/Olympus"
	_, err = f.eng.ClaimMission(ctx, req)
	require.ErrorIs(t, err, core.ErrInvalidTimezone)
	_, err = f.eng.MissionBoard(ctx, "u", "Mars/Olympus")
	require.ErrorIs(t, err, core.ErrInvalidTimezone)
}

func TestBackdatedActivityKeepsCurrentMissionWindow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.eng.RecordEvent(ctx, quiz("u", 1, 10))
	require.NoError(t, err)

	yesterday := quiz("u", 1, 10)
	yesterday.OccurredAt = f.clock.Now().Add(-24 * time.Hour)
	res, err := f.eng.RecordEvent(ctx, yesterday)
	require.NoError(t, err)
	assert.Equal(t, int64(50), res.XPAwarded, "the activity still earns XP")
	assert.Empty(t, res.CompletedMissions)

	board, err := f.eng.MissionBoard(ctx, "u", "")
	require.NoError(t, err)
	assert.Equal(t, 1, board[0].Count, "today's progress survives")
	assert.Equal(t, civil.Date{Year: 2025, Month: time.March, Day: 3}, board[0].WindowStart)

	res, err = f.eng.RecordEvent(ctx, quiz("u", 1, 10))
	require.NoError(t, err)
	assert.Equal(t, []string{"daily_quiz_2"}, res.CompletedMissions)

	_, err = f.eng.ClaimMission(ctx, claim("u", "daily_quiz_2"))
	require.NoError(t, err)
}

func TestSpinWheel(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.eng.SpinWheel(ctx, "u")
	require.ErrorIs(t, err, core.ErrNoSpins)

	_, err = f.eng.RecordEvent(ctx, login("u", civil.Date{Year: 2025, Month: time.March, Day: 3}))
	require.NoError(t, err)

	res, err := f.eng.SpinWheel(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, "xp_25", res.Reward.ID)
	assert.Equal(t, core.RarityCommon, res.Rarity)
	assert.Equal(t, int64(25), res.XPAwarded)
	assert.Equal(t, int64(45), res.NewTotalXP)
	assert.Zero(t, res.SpinsAvailable)

	_, err = f.eng.SpinWheel(ctx, "u")
	require.ErrorIs(t, err, core.ErrNoSpins)
}

func TestSpinWheelCardSlot(t *testing.T) {
	// 0.6 of the wheel_spin total lands on rare
	f := newFixture(t, nil, engine.WithRand(fixedRand{f: 0.6}))
	ctx := context.Background()
	_, err := f.eng.RecordEvent(ctx, login("u", civil.Date{Year: 2025, Month: time.March, Day: 3}))
	require.NoError(t, err)

	res, err := f.eng.SpinWheel(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, "card_rare", res.Reward.ID)
	require.NotNil(t, res.Card)
	assert.Equal(t, "r1", res.Card.Card.ID)
	assert.True(t, res.Card.New)
	assert.Equal(t, int64(25), res.XPAwarded)
}

func TestSpinWheelEmptyPoolKeepsSpin(t *testing.T) {
	f := newFixture(t, func(d *catalog.Data) { d.WheelRewards = nil })
	ctx := context.Background()
	_, err := f.eng.RecordEvent(ctx, login("u", civil.Date{Year: 2025, Month: time.March, Day: 3}))
	require.NoError(t, err)

	_, err = f.eng.SpinWheel(ctx, "u")
	require.ErrorIs(t, err, core.ErrNoInventory)
	assert.NotErrorIs(t, err, core.ErrNoSpins)

	view, err := f.eng.GetProgress(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 1, view.Spins)
}

func TestOpenCardPack(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.eng.OpenCardPack(ctx, engine.PackRequest{LearnerID: "u", Source: "lottery", PackSize: 1})
	require.ErrorIs(t, err, core.ErrUnknownSource)
	_, err = f.eng.OpenCardPack(ctx, engine.PackRequest{LearnerID: "u", Source: "quiz_reward", PackSize: 0})
	require.ErrorIs(t, err, core.ErrInvalidPackSize)
	_, err = f.eng.OpenCardPack(ctx, engine.PackRequest{LearnerID: "u", Source: "quiz_reward", PackSize: engine.DefaultMaxPackSize + 1})
	require.ErrorIs(t, err, core.ErrInvalidPackSize)

	res, err := f.eng.OpenCardPack(ctx, engine.PackRequest{LearnerID: "u", Source: "boss_win", PackSize: 3})
	require.NoError(t, err)
	require.Len(t, res.Cards, 3)
	assert.True(t, res.Cards[0].New)
	assert.Equal(t, int64(10), res.Cards[0].XPAwarded)
	for _, c := range res.Cards[1:] {
		assert.False(t, c.New)
		assert.Zero(t, c.XPAwarded)
	}
	assert.Equal(t, int64(10), res.NewTotalXP)

	col, err := f.eng.Collection(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 1, col.Unique)
	assert.Equal(t, 3, col.TotalCards)
	require.Len(t, col.Cards, 1)
	assert.Equal(t, 3, col.Cards[0].Copies)
}

func TestCardPackFallsBackToCommon(t *testing.T) {
	f := newFixture(t, func(d *catalog.Data) {
		d.Cards = []core.Card{{ID: "c1", Rarity: core.RarityCommon}}
	}, engine.WithRand(fixedRand{f: 0.99}))
	res, err := f.eng.OpenCardPack(context.Background(), engine.PackRequest{LearnerID: "u", Source: "level_up", PackSize: 1})
	require.NoError(t, err)
	assert.Equal(t, core.RarityLegendary, res.Cards[0].Rarity)
	assert.Equal(t, "c1", res.Cards[0].Card.ID)
}

func TestBossWinIsAtomicWithItsPack(t *testing.T) {
	f := newFixture(t, func(d *catalog.Data) { d.Cards = nil })
	ctx := context.Background()
	_, err := f.eng.RecordEvent(ctx, engine.EventRequest{LearnerID: "u", Context: core.BossWin{Difficulty: core.IntPtr(2), PackSize: 2}})
	require.ErrorIs(t, err, core.ErrNoInventory)

	view, err := f.eng.GetProgress(ctx, "u")
	require.NoError(t, err)
	assert.False(t, view.Started, "no XP without the pack")
}

func TestBossWinAwardsXPAndPack(t *testing.T) {
	f := newFixture(t, nil)
	res, err := f.eng.RecordEvent(context.Background(), engine.EventRequest{LearnerID: "u", Context: core.BossWin{Difficulty: core.IntPtr(2), PackSize: 2}})
	require.NoError(t, err)
	assert.Equal(t, int64(200), res.XPAwarded)
	require.Len(t, res.Cards, 2)
	assert.Equal(t, int64(210), res.NewTotalXP)

	_, err = f.eng.RecordEvent(context.Background(), engine.EventRequest{LearnerID: "u", Context: core.BossWin{Difficulty: core.IntPtr(2), PackSize: 99}})
	require.ErrorIs(t, err, core.ErrInvalidPackSize)
}

func TestCardCollected(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.eng.RecordEvent(ctx, engine.EventRequest{LearnerID: "u", Context: core.CardCollected{CardID: "zz"}})
	require.ErrorIs(t, err, core.ErrUnknownCard)

	res, err := f.eng.RecordEvent(ctx, engine.EventRequest{LearnerID: "u", Context: core.CardCollected{CardID: "r1"}})
	require.NoError(t, err)
	assert.Equal(t, int64(25), res.XPAwarded)

	res, err = f.eng.RecordEvent(ctx, engine.EventRequest{LearnerID: "u", Context: core.CardCollected{CardID: "r1"}})
	require.NoError(t, err)
	assert.Zero(t, res.XPAwarded)
	assert.Equal(t, int64(25), res.NewTotalXP)
}

type recordingCache struct {
	mu          sync.Mutex
	invalidated []core.LearnerID
	stored      map[core.LearnerID]core.LearnerProgress
	gens        map[core.LearnerID]uint64
	beforeFill  func()
}

func (c *recordingCache) Get(_ context.Context, l core.LearnerID) (core.LearnerProgress, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.stored[l]
	return p, ok, nil
}

func (c *recordingCache) Generation(_ context.Context, l core.LearnerID) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[l], nil
}

func (c *recordingCache) Fill(_ context.Context, p core.LearnerProgress, gen uint64) error {
	if c.beforeFill != nil {
		hook := c.beforeFill
		c.beforeFill = nil
		hook()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[p.LearnerID] != gen {
		return nil
	}
	if c.stored == nil {
		c.stored = map[core.LearnerID]core.LearnerProgress{}
	}
	c.stored[p.LearnerID] = p
	return nil
}

func (c *recordingCache) Invalidate(_ context.Context, l core.LearnerID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, l)
	delete(c.stored, l)
	if c.gens == nil {
		c.gens = map[core.LearnerID]uint64{}
	}
	c.gens[l]++
	return nil
}

func TestProgressCacheIsInvalidatedOnWrite(t *testing.T) {
	cache := &recordingCache{}
	f := newFixture(t, nil, engine.WithCache(cache))
	ctx := context.Background()

	_, err := f.eng.RecordEvent(ctx, engine.EventRequest{LearnerID: "u", Context: core.LessonComplete{}})
	require.NoError(t, err)
	view, err := f.eng.GetProgress(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, int64(100), view.TotalXP)
	_, cached, _ := cache.Get(ctx, "u")
	assert.True(t, cached)

	_, err = f.eng.RecordEvent(ctx, engine.EventRequest{LearnerID: "u", Context: core.LessonComplete{}})
	require.NoError(t, err)
	assert.Equal(t, []core.LearnerID{"u", "u"}, cache.invalidated)
	view, err = f.eng.GetProgress(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, int64(200), view.TotalXP)
}

func TestProgressCacheSkipsSnapshotOlderThanWrite(t *testing.T) {
	cache := &recordingCache{}
	f := newFixture(t, nil, engine.WithCache(cache))
	ctx := context.Background()

	_, err := f.eng.RecordEvent(ctx, engine.EventRequest{LearnerID: "u", Context: core.LessonComplete{}})
	require.NoError(t, err)

	// a write commits after the read loaded the store but before it fills the cache
	cache.beforeFill = func() {
		_, err := f.eng.RecordEvent(ctx, engine.EventRequest{LearnerID: "u", Context: core.LessonComplete{}})
		require.NoError(t, err)
	}
	view, err := f.eng.GetProgress(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, int64(100), view.TotalXP)
	_, cached, _ := cache.Get(ctx, "u")
	assert.False(t, cached, "snapshot read before the write must not be cached")

	view, err = f.eng.GetProgress(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, int64(200), view.TotalXP)
	got, cached, _ := cache.Get(ctx, "u")
	require.True(t, cached)
	assert.Equal(t, int64(200), got.TotalXP)
}

func TestNoEventsPublishedOnFailure(t *testing.T) {
	f := newFixture(t, nil)
	published := 0
	f.bus.SubscribeAll(func(context.Context, core.Event) { published++ })
	_, err := f.eng.SpinWheel(context.Background(), "u")
	require.Error(t, err)
	assert.Zero(t, published)

	_, err = f.eng.RecordEvent(context.Background(), engine.EventRequest{LearnerID: "u", Context: core.LessonComplete{}})
	require.NoError(t, err)
	assert.Equal(t, 2, published, "xp_awarded and level_up")
}
