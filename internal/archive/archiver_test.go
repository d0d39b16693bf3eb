package archive

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEvent(kind Kind, user string) Event {
	return Event{
		At:               time.Now(),
		SessionID:        "s1",
		SessionType:      "dotgame",
		Kind:             kind,
		UserID:           user,
		ParticipantCount: 1,
	}
}

func waitForReceived(t *testing.T, a *Archiver, want int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a.Stats().Received >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Received = %d, want at least %d", a.Stats().Received, want)
}

func TestArchiver_Lifecycle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FlushInterval = 10 * time.Millisecond

	// Nil pool: batching runs, writes are skipped.
	a := New(cfg, nil, testLogger())
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	a.Record(testEvent(KindRoomCreated, ""))
	a.Record(testEvent(KindUserJoined, "alice"))
	waitForReceived(t, a, 2)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	stats := a.Stats()
	if stats.Received != 2 {
		t.Errorf("Received = %d, want 2", stats.Received)
	}
	if stats.Dropped != 0 {
		t.Errorf("Dropped = %d, want 0", stats.Dropped)
	}
}

func TestArchiver_BatchTriggersFlush(t *testing.T) {
	cfg := Config{
		BatchSize:     3,
		FlushInterval: time.Hour, // only the size threshold may flush
		BufferSize:    16,
	}
	a := New(cfg, nil, testLogger())
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		a.Stop(ctx)
	}()

	for i := 0; i < 3; i++ {
		a.Record(testEvent(KindUserJoined, "alice"))
	}
	waitForReceived(t, a, 3)

	// The size-triggered flush drains the batch even without a pool.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		a.batchMu.Lock()
		n := len(a.batch)
		a.batchMu.Unlock()
		if n == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("batch not flushed after reaching the size threshold")
}

func TestArchiver_RecordNeverBlocks(t *testing.T) {
	cfg := Config{
		BatchSize:     100,
		FlushInterval: time.Hour,
		BufferSize:    2,
	}
	// Not started: nothing consumes the input channel.
	a := New(cfg, nil, testLogger())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			a.Record(testEvent(KindUserJoined, "alice"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked under backpressure")
	}

	stats := a.Stats()
	if stats.Dropped != 8 {
		t.Errorf("Dropped = %d, want 8", stats.Dropped)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.BatchSize <= 0 || cfg.BufferSize <= 0 || cfg.FlushInterval <= 0 {
		t.Errorf("DefaultConfig has non-positive fields: %+v", cfg)
	}
}
