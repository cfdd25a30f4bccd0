// Command demo-server runs an in-memory hanziquest API seeded with a few
// learners, for trying the REST routes and the WebSocket stream locally.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"hanziquest/analytics"
	"hanziquest/api/httpapi"
	"hanziquest/core"
	"hanziquest/engine"
	"hanziquest/gamify"
	"hanziquest/leaderboard"
	"hanziquest/realtime"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	seed := flag.Bool("seed", true, "record sample activity for a few learners")
	flag.Parse()

	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := realtime.NewHub()
	board := leaderboard.NewSkipList()
	eng := gamify.New(
		gamify.WithDispatchMode(engine.DispatchSync),
		gamify.WithRealtime(hub),
		gamify.WithLeaderboard(board),
		gamify.WithLogger(log),
	)
	defer eng.Close()
	stats := analytics.NewService(eng, nil, analytics.WithLogger(log))
	defer stats.Close()

	if *seed {
		if err := seedLearners(ctx, eng); err != nil {
			log.Fatal("seeding demo learners", zap.Error(err))
		}
		log.Info("seeded demo learners", zap.Strings("learners", []string{"minh", "lan", "huy"}))
	}

	srv := &http.Server{
		Addr: *addr,
		Handler: httpapi.NewMux(eng, hub, httpapi.Options{
			AllowCORSOrigin: "*",
			Leaderboard:     board,
			Analytics:       stats,
			Logger:          log,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("starting demo server", zap.String("address", *addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("demo server crashed", zap.Error(err))
		os.Exit(1)
	}
}

// seedLearners gives each demo learner a different amount of history.
func seedLearners(ctx context.Context, eng *engine.Engine) error {
	activity := map[core.LearnerID][]core.EventContext{
		"minh": {
			core.DailyLogin{},
			core.LessonComplete{LessonID: "hsk1-greetings"},
			core.QuizComplete{Score: core.IntPtr(10), Total: core.IntPtr(10)},
			core.BossWin{Difficulty: core.IntPtr(3)},
		},
		"lan": {
			core.DailyLogin{},
			core.LessonComplete{LessonID: "cantonese-numbers"},
			core.QuizComplete{Score: core.IntPtr(7), Total: core.IntPtr(10)},
		},
		"huy": {
			core.LessonComplete{LessonID: "hsk1-greetings"},
		},
	}
	for learner, events := range activity {
		for _, ec := range events {
			if _, err := eng.RecordEvent(ctx, engine.EventRequest{LearnerID: learner, Context: ec}); err != nil {
				return err
			}
		}
	}
	return nil
}
