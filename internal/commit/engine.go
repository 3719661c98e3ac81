package commit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dentexa/import-cli/internal/model"
	"github.com/dentexa/import-cli/internal/resilience"
	"github.com/dentexa/import-cli/internal/store"
)

// Config bounds the engine's concurrency and retry behavior.
type Config struct {
	BatchSize   int
	Concurrency int
	MaxRounds   int
	RoundPause  time.Duration
	Retry       resilience.Policy
}

// DefaultConfig matches the store API's comfortable write throughput.
func DefaultConfig() Config {
	return Config{
		BatchSize:   50,
		Concurrency: 8,
		MaxRounds:   3,
		RoundPause:  2 * time.Second,
		Retry:       resilience.DefaultPolicy(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.MaxRounds <= 0 {
		c.MaxRounds = d.MaxRounds
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry = d.Retry
	}
	return c
}

// Result tallies one engine run.
type Result struct {
	Created   int
	Updated   int
	Failures  []model.RowFailure
	Cancelled bool
}

// Engine drains planned operations against the store in bounded
// concurrent batches. Updates run before creates so fill-in writes land
// ahead of new records referencing the same numbers.
type Engine struct {
	st     store.RecordStore
	entity store.Entity
	cfg    Config
	log    *zap.Logger

	completed atomic.Int64
	total     atomic.Int64

	mu     sync.Mutex
	result Result
}

func NewEngine(st store.RecordStore, entity store.Entity, cfg Config) *Engine {
	return &Engine{st: st, entity: entity, cfg: cfg.withDefaults(), log: zap.L().Named("commit")}
}

// Progress reports completed and total operation counts. Completed only
// grows, so a poller never sees the bar move backwards.
func (e *Engine) Progress() (completed, total int) {
	return int(e.completed.Load()), int(e.total.Load())
}

// Run executes the planned operations. Cancellation is cooperative:
// operations already dispatched finish, and the engine stops picking up
// new batches afterwards.
func (e *Engine) Run(ctx context.Context, updates, creates []Op) Result {
	e.total.Store(int64(len(updates) + len(creates)))
	e.completed.Store(0)
	e.mu.Lock()
	e.result = Result{}
	e.mu.Unlock()

	e.runPhase(ctx, "update", updates)
	e.runPhase(ctx, "create", creates)

	e.mu.Lock()
	defer e.mu.Unlock()
	if ctx.Err() != nil {
		e.result.Cancelled = true
	}
	return e.result
}

func (e *Engine) runPhase(ctx context.Context, phase string, ops []Op) {
	if len(ops) == 0 {
		return
	}
	pending := ops
	for round := 1; round <= e.cfg.MaxRounds && len(pending) > 0; round++ {
		if ctx.Err() != nil {
			e.abandon(phase, pending)
			return
		}
		if round > 1 {
			e.log.Info("retry round",
				zap.String("phase", phase),
				zap.Int("round", round),
				zap.Int("pending", len(pending)))
			if !e.pause(ctx) {
				e.abandon(phase, pending)
				return
			}
		}
		pending = e.runRound(ctx, phase, pending)
	}
	for _, op := range pending {
		e.fail(op, phase, eris.New("retry rounds exhausted"))
		e.completed.Add(1)
	}
}

// runRound drains ops in sequential batches and returns the ops that
// failed with a retryable error.
func (e *Engine) runRound(ctx context.Context, phase string, ops []Op) []Op {
	var retry []Op
	var retryMu sync.Mutex

	for start := 0; start < len(ops); start += e.cfg.BatchSize {
		if ctx.Err() != nil {
			e.abandon(phase, ops[start:])
			return retry
		}
		end := start + e.cfg.BatchSize
		if end > len(ops) {
			end = len(ops)
		}

		g := new(errgroup.Group)
		g.SetLimit(e.cfg.Concurrency)
		for _, op := range ops[start:end] {
			op := op
			g.Go(func() error {
				err := e.execute(ctx, op)
				if err == nil {
					e.completed.Add(1)
					e.record(op)
					return nil
				}
				if resilience.Retryable(err) {
					retryMu.Lock()
					retry = append(retry, op)
					retryMu.Unlock()
					return nil
				}
				e.completed.Add(1)
				e.fail(op, phase, err)
				// keep the batch going on individual failures
				return nil
			})
		}
		_ = g.Wait()
	}
	return retry
}

// execute performs a single operation with per-op retries. The op runs
// on a detached context so an in-flight write is never torn mid-request;
// cancellation takes effect at batch boundaries.
func (e *Engine) execute(ctx context.Context, op Op) error {
	if op.Update && len(op.Fields) == 0 {
		return nil
	}
	opCtx := context.WithoutCancel(ctx)
	return resilience.Do(opCtx, e.cfg.Retry, func(c context.Context) error {
		if op.Update {
			_, err := e.st.Update(c, e.entity, op.RecordID, op.Fields)
			return err
		}
		_, err := e.st.Create(c, e.entity, op.Fields)
		return err
	})
}

func (e *Engine) record(op Op) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if op.Update {
		e.result.Updated++
	} else {
		e.result.Created++
	}
}

func (e *Engine) fail(op Op, phase string, err error) {
	e.log.Warn("operation failed",
		zap.String("phase", phase),
		zap.Int("row", op.Row.Index),
		zap.Error(err))
	e.mu.Lock()
	defer e.mu.Unlock()
	e.result.Failures = append(e.result.Failures, model.RowFailure{
		Index: op.Row.Index,
		Phase: phase,
		Error: eris.ToString(err, false),
	})
}

// abandon marks ops never attempted after cancellation.
func (e *Engine) abandon(phase string, ops []Op) {
	for _, op := range ops {
		e.fail(op, phase, eris.New("cancelled before dispatch"))
		e.completed.Add(1)
	}
}

func (e *Engine) pause(ctx context.Context) bool {
	if e.cfg.RoundPause <= 0 {
		return true
	}
	t := time.NewTimer(e.cfg.RoundPause)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
