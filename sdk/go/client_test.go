package sdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mem "hanziquest/adapters/memory"
	"hanziquest/api/httpapi"
	"hanziquest/catalog"
	"hanziquest/core"
	"hanziquest/engine"
	"hanziquest/leaderboard"
	"hanziquest/realtime"
)

// newTestServer serves the real API over an in-memory engine.
func newTestServer(t *testing.T, opts httpapi.Options) *httptest.Server {
	t.Helper()
	eng := engine.New(mem.New(), catalog.Default(), engine.NewEventBus(engine.DispatchSync))
	hub := realtime.NewHub()
	hub.Follow(eng)
	board := leaderboard.NewSkipList()
	leaderboard.Follow(eng, board, nil)
	opts.Leaderboard = board
	srv := httptest.NewServer(httpapi.NewMux(eng, hub, opts))
	t.Cleanup(func() {
		srv.Close()
		eng.Close()
	})
	return srv
}

func TestClient_LearnerFlow(t *testing.T) {
	srv := newTestServer(t, httpapi.Options{PathPrefix: "/api", APIKeys: []string{"k1"}})

	client, err := NewClient(srv.URL+"/api", WithAPIKey("k1"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	res, err := client.RecordEvent(ctx, "alice", Event{
		Kind:     core.KindQuizComplete,
		Metadata: core.QuizComplete{Score: core.IntPtr(10), Total: core.IntPtr(10)},
	})
	if err != nil || res.XPAwarded != 100 {
		t.Fatalf("record event got %+v err=%v", res, err)
	}

	view, err := client.Progress(ctx, "alice")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if !view.Started || view.TotalXP != 100 {
		t.Fatalf("unexpected progress: %+v", view)
	}

	if _, err := client.RecordEvent(ctx, "alice", Event{Kind: core.KindDailyLogin}); err != nil {
		t.Fatalf("login: %v", err)
	}
	spin, err := client.SpinWheel(ctx, "alice")
	if err != nil || !spin.Rarity.Valid() {
		t.Fatalf("spin got %+v err=%v", spin, err)
	}

	pack, err := client.OpenCardPack(ctx, "alice", "quiz_reward", 2)
	if err != nil || len(pack.Cards) != 2 {
		t.Fatalf("pack got %+v err=%v", pack, err)
	}
	coll, err := client.Collection(ctx, "alice")
	if err != nil || coll.TotalCards < 2 {
		t.Fatalf("collection got %+v err=%v", coll, err)
	}

	missions, err := client.Missions(ctx, "alice")
	if err != nil || len(missions) == 0 {
		t.Fatalf("missions got %d err=%v", len(missions), err)
	}
	if _, err := client.ClaimMission(ctx, "alice", "daily_login"); err != nil {
		t.Fatalf("claim daily_login: %v", err)
	}

	achievements, err := client.Achievements(ctx, "alice")
	if err != nil || len(achievements) == 0 {
		t.Fatalf("achievements got %d err=%v", len(achievements), err)
	}
	events, err := client.RecentEvents(ctx, "alice", 2)
	if err != nil || len(events) != 2 {
		t.Fatalf("recent events got %d err=%v", len(events), err)
	}
	top, err := client.Leaderboard(ctx, 5)
	if err != nil || len(top) != 1 || top[0].Learner != "alice" {
		t.Fatalf("leaderboard got %+v err=%v", top, err)
	}

	health, err := client.Health(ctx)
	if err != nil || health.Status != "healthy" {
		t.Fatalf("health: %+v err=%v", health, err)
	}
}

func TestClient_ErrorsMatchCoreSentinels(t *testing.T) {
	srv := newTestServer(t, httpapi.Options{})
	client, _ := NewClient(srv.URL)
	ctx := context.Background()

	_, err := client.SpinWheel(ctx, "bob")
	if !errors.Is(err, core.ErrNoSpins) {
		t.Fatalf("expected ErrNoSpins, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusConflict || apiErr.Code != "no_spins" {
		t.Fatalf("unexpected api error: %#v", err)
	}

	_, err = client.ClaimMission(ctx, "bob", "nope")
	if !errors.Is(err, core.ErrMissionNotFound) {
		t.Fatalf("expected ErrMissionNotFound, got %v", err)
	}
	_, err = client.RecordEvent(ctx, "bob", Event{Kind: "dance_party"})
	if !errors.Is(err, core.ErrUnknownEventKind) || !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected unknown event kind validation error, got %v", err)
	}
	if _, err := client.Progress(ctx, " "); !errors.Is(err, ErrEmptyLearnerID) {
		t.Fatalf("expected ErrEmptyLearnerID, got %v", err)
	}

	unauth := newTestServer(t, httpapi.Options{APIKeys: []string{"right"}})
	client, _ = NewClient(unauth.URL, WithAuthToken("wrong"))
	if _, err := client.Progress(ctx, "bob"); !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestClient_TimezoneFollowsMissionCalls(t *testing.T) {
	srv := newTestServer(t, httpapi.Options{})
	ctx := context.Background()

	client, _ := NewClient(srv.URL, WithTimezone("Asia/Ho_Chi_Minh"))
	if _, err := client.RecordEvent(ctx, "lan", Event{Kind: core.KindDailyLogin}); err != nil {
		t.Fatalf("login: %v", err)
	}
	missions, err := client.Missions(ctx, "lan")
	if err != nil {
		t.Fatalf("missions: %v", err)
	}
	for _, m := range missions {
		if m.Mission.ID == "daily_login" && !m.Completed {
			t.Fatalf("expected daily_login completed, got %+v", m)
		}
	}
	if _, err := client.ClaimMission(ctx, "lan", "daily_login"); err != nil {
		t.Fatalf("claim daily_login: %v", err)
	}

	bad, _ := NewClient(srv.URL, WithTimezone("Mars/Olympus"))
	if _, err := bad.Missions(ctx, "lan"); !errors.Is(err, core.ErrInvalidTimezone) {
		t.Fatalf("expected ErrInvalidTimezone from missions, got %v", err)
	}
	if _, err := bad.ClaimMission(ctx, "lan", "daily_login"); !errors.Is(err, core.ErrInvalidTimezone) {
		t.Fatalf("expected ErrInvalidTimezone from claim, got %v", err)
	}
	if _, err := bad.RecordEvent(ctx, "lan", Event{Kind: core.KindDailyLogin}); !errors.Is(err, core.ErrInvalidTimezone) {
		t.Fatalf("expected ErrInvalidTimezone from record, got %v", err)
	}
}

func TestClient_SubscribeEvents(t *testing.T) {
	srv := newTestServer(t, httpapi.Options{PathPrefix: "/api"})

	client, err := NewClient(srv.URL + "/api")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, err := client.SubscribeEvents(ctx, "alice")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// the hub subscription is registered after the upgrade; retry until it sees traffic
	deadline := time.After(time.Second)
	for {
		if _, err := client.RecordEvent(ctx, "bob", Event{Kind: core.KindLessonComplete}); err != nil {
			t.Fatalf("record bob: %v", err)
		}
		if _, err := client.RecordEvent(ctx, "alice", Event{Kind: core.KindVocabularyMastered}); err != nil {
			t.Fatalf("record alice: %v", err)
		}
		select {
		case evt := <-events:
			if evt.LearnerID != "alice" {
				t.Fatalf("stream not filtered: %+v", evt)
			}
			return
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestDeriveWSURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8080/api":  "ws://localhost:8080/api/ws",
		"https://quest.example/api/": "wss://quest.example/api/ws",
	}
	for in, want := range cases {
		if got := deriveWSURL(in); got != want {
			t.Fatalf("deriveWSURL(%q) = %q, want %q", in, got, want)
		}
	}
}
