package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"hanziquest/core"
)

func TestEventBusSync(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	count := 0
	bus.Subscribe(core.EventXPAwarded, func(ctx context.Context, e core.Event) { count++ })
	bus.Publish(context.Background(), core.NewXPAwarded("u", core.KindLessonComplete, 100, 100, time.Now()))
	if count != 1 {
		t.Fatalf("want 1 got %d", count)
	}
}

func TestEventBusAsync(t *testing.T) {
	bus := NewEventBus(DispatchAsync)
	defer bus.Close()
	ch := make(chan struct{})
	bus.Subscribe(core.EventXPAwarded, func(ctx context.Context, e core.Event) { close(ch) })
	bus.Publish(context.Background(), core.NewXPAwarded("u", core.KindLessonComplete, 100, 100, time.Now()))
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	count := 0
	unsub := bus.Subscribe(core.EventLevelUp, func(context.Context, core.Event) { count++ })
	unsub()
	bus.Publish(context.Background(), core.NewLevelUp("u", 2, 100, time.Now()))
	if count != 0 {
		t.Fatalf("handler ran after unsubscribe")
	}
}

func TestEventBusSurvivesPanickingHandler(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	var ok atomic.Int32
	bus.Subscribe(core.EventLevelUp, func(context.Context, core.Event) { panic("boom") })
	bus.Subscribe(core.EventLevelUp, func(context.Context, core.Event) { ok.Add(1) })
	bus.Publish(context.Background(), core.NewLevelUp("u", 2, 100, time.Now()))
	if ok.Load() != 1 {
		t.Fatal("second handler should still run")
	}
}

func TestEventBusCloseDrainsQueue(t *testing.T) {
	bus := NewEventBus(DispatchAsync, WithWorkers(1), WithQueueSize(16))
	var n atomic.Int32
	bus.SubscribeAll(func(context.Context, core.Event) { n.Add(1) })
	for i := 0; i < 10; i++ {
		bus.Publish(context.Background(), core.NewMissionCompleted("u", "m", time.Now()))
	}
	bus.Close()
	bus.Close()
	if n.Load() != 10 {
		t.Fatalf("want 10 got %d", n.Load())
	}
}
