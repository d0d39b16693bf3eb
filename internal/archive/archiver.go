package archive

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Kind classifies a room lifecycle event.
type Kind string

const (
	KindRoomCreated   Kind = "room_created"
	KindUserJoined    Kind = "user_joined"
	KindUserLeft      Kind = "user_left"
	KindRoomDestroyed Kind = "room_destroyed"
)

// Event is one room lifecycle occurrence.
type Event struct {
	At               time.Time
	SessionID        string
	SessionType      string
	Kind             Kind
	UserID           string // empty for room_created/room_destroyed
	ParticipantCount int
}

// Config configures the Archiver.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	BufferSize    int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    5000,
	}
}

// Metrics holds archiver counters.
type Metrics struct {
	Received    int64
	Written     int64
	Dropped     int64
	FlushErrors int64
}

// Archiver consumes room events and writes them to Postgres in batches.
type Archiver struct {
	cfg    Config
	logger *slog.Logger

	db    *pgxpool.Pool
	input chan Event

	// Batching
	batch       []Event
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

// New creates an Archiver writing to db.
func New(cfg Config, db *pgxpool.Pool, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		cfg:    cfg,
		logger: logger,
		db:     db,
		input:  make(chan Event, cfg.BufferSize),
		batch:  make([]Event, 0, cfg.BatchSize),
	}
}

// Record enqueues one event. It never blocks; under backpressure the
// event is counted as dropped.
func (a *Archiver) Record(ev Event) {
	select {
	case a.input <- ev:
	default:
		a.batchMu.Lock()
		a.metrics.Dropped++
		a.batchMu.Unlock()
		a.logger.Warn("archive buffer full, dropping event", "kind", ev.Kind, "session", ev.SessionID)
	}
}

// Start begins consuming events and writing batches.
func (a *Archiver) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.flushTicker = time.NewTicker(a.cfg.FlushInterval)

	a.wg.Add(1)
	go a.consumeLoop()

	a.wg.Add(1)
	go a.flushLoop()

	a.logger.Info("archiver started",
		"batch_size", a.cfg.BatchSize,
		"flush_interval", a.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the archiver and flushes the final batch.
func (a *Archiver) Stop(ctx context.Context) error {
	a.logger.Info("stopping archiver")

	if a.cancel != nil {
		a.cancel()
	}
	if a.flushTicker != nil {
		a.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.logger.Info("archiver stopped")
	case <-ctx.Done():
		a.logger.Warn("archiver stop timed out")
	}

	a.flush()

	return nil
}

// Stats returns current metrics.
func (a *Archiver) Stats() Metrics {
	a.batchMu.Lock()
	defer a.batchMu.Unlock()
	return a.metrics
}

// consumeLoop reads events and accumulates batches.
func (a *Archiver) consumeLoop() {
	defer a.wg.Done()

	for {
		select {
		case <-a.ctx.Done():
			return
		case ev := <-a.input:
			a.handleEvent(ev)
		}
	}
}

// flushLoop periodically flushes the batch.
func (a *Archiver) flushLoop() {
	defer a.wg.Done()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-a.flushTicker.C:
			a.flush()
		}
	}
}

// handleEvent adds an event to the batch, flushing when full.
func (a *Archiver) handleEvent(ev Event) {
	a.batchMu.Lock()
	a.metrics.Received++
	a.batch = append(a.batch, ev)
	full := len(a.batch) >= a.cfg.BatchSize
	a.batchMu.Unlock()

	if full {
		a.flush()
	}
}

// flush writes the current batch to the room_events table.
func (a *Archiver) flush() {
	a.batchMu.Lock()
	if len(a.batch) == 0 {
		a.batchMu.Unlock()
		return
	}
	batch := a.batch
	a.batch = make([]Event, 0, a.cfg.BatchSize)
	a.batchMu.Unlock()

	if a.db == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rows := make([][]any, len(batch))
	for i, ev := range batch {
		rows[i] = []any{
			ev.At.UTC(),
			ev.SessionID,
			ev.SessionType,
			string(ev.Kind),
			ev.UserID,
			ev.ParticipantCount,
		}
	}

	_, err := a.db.CopyFrom(
		ctx,
		pgx.Identifier{"room_events"},
		[]string{"at", "session_id", "session_type", "kind", "user_id", "participant_count"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		a.batchMu.Lock()
		a.metrics.FlushErrors++
		a.batchMu.Unlock()
		a.logger.Error("flush failed", "rows", len(batch), "error", err)
		return
	}

	a.batchMu.Lock()
	a.metrics.Written += int64(len(batch))
	a.batchMu.Unlock()

	a.logger.Debug("flushed room events", "rows", len(batch))
}
