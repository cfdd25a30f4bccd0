package main

import (
	"context"
	"testing"

	"hanziquest/engine"
	"hanziquest/gamify"
	"hanziquest/leaderboard"
)

func TestSeedLearners(t *testing.T) {
	board := leaderboard.NewSkipList()
	eng := gamify.New(gamify.WithDispatchMode(engine.DispatchSync), gamify.WithLeaderboard(board))
	defer eng.Close()

	if err := seedLearners(context.Background(), eng); err != nil {
		t.Fatalf("seed: %v", err)
	}
	top, err := board.Top(context.Background(), 3)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 3 {
		t.Fatalf("expected 3 learners on the board, got %d", len(top))
	}
	if top[0].Learner != "minh" {
		t.Fatalf("expected minh to lead, got %s", top[0].Learner)
	}
}
