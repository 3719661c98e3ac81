package commit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentexa/import-cli/internal/model"
	"github.com/dentexa/import-cli/internal/resilience"
	"github.com/dentexa/import-cli/internal/store"
)

func testConfig() Config {
	return Config{
		BatchSize:   10,
		Concurrency: 4,
		MaxRounds:   2,
		Retry:       resilience.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}
}

func createOpFor(index int, name string) Op {
	return Op{
		Row:    &model.Row{Index: index},
		Fields: store.Fields{"name": name, "client_number": index},
	}
}

func updateOpFor(index int, id string, fields store.Fields) Op {
	return Op{
		Row:      &model.Row{Index: index},
		Update:   true,
		RecordID: id,
		Fields:   fields,
	}
}

func TestEngine_CreatesAndUpdates(t *testing.T) {
	mem := store.NewMemory()
	mem.Seed(store.EntityClients, store.Record{ID: "rec-1", Fields: store.Fields{"name": "Dana Levi"}})

	eng := NewEngine(mem, store.EntityClients, testConfig())
	res := eng.Run(context.Background(),
		[]Op{updateOpFor(1, "rec-1", store.Fields{"city": "Tel Aviv"})},
		[]Op{createOpFor(2, "Moshe Cohen"), createOpFor(3, "Rina Bar")},
	)

	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 2, res.Created)
	assert.Empty(t, res.Failures)
	assert.False(t, res.Cancelled)

	rec, ok := mem.Get(store.EntityClients, "rec-1")
	require.True(t, ok)
	assert.Equal(t, "Tel Aviv", rec.Fields.Str("city"))
	assert.Equal(t, 3, mem.Count(store.EntityClients))

	completed, total := eng.Progress()
	assert.Equal(t, 3, completed)
	assert.Equal(t, 3, total)
}

func TestEngine_UpdatesRunBeforeCreates(t *testing.T) {
	mem := store.NewMemory()
	mem.Seed(store.EntityClients, store.Record{ID: "rec-1"})

	var mu sync.Mutex
	var order []string
	mem.FailUpdate = func(store.Entity, string) error {
		mu.Lock()
		order = append(order, "update")
		mu.Unlock()
		return nil
	}
	mem.FailCreate = func(store.Entity, store.Fields) error {
		mu.Lock()
		order = append(order, "create")
		mu.Unlock()
		return nil
	}

	eng := NewEngine(mem, store.EntityClients, testConfig())
	res := eng.Run(context.Background(),
		[]Op{updateOpFor(1, "rec-1", store.Fields{"city": "Haifa"})},
		[]Op{createOpFor(2, "Moshe Cohen")},
	)

	require.Empty(t, res.Failures)
	assert.Equal(t, []string{"update", "create"}, order)
}

func TestEngine_EmptyUpdateSucceedsWithoutStoreCall(t *testing.T) {
	mem := store.NewMemory()
	mem.FailUpdate = func(store.Entity, string) error {
		return eris.New("store must not be called")
	}

	eng := NewEngine(mem, store.EntityClients, testConfig())
	res := eng.Run(context.Background(),
		[]Op{updateOpFor(1, "rec-1", store.Fields{})},
		nil,
	)

	assert.Equal(t, 1, res.Updated)
	assert.Empty(t, res.Failures)
}

func TestEngine_PermanentFailureDoesNotAbortBatch(t *testing.T) {
	mem := store.NewMemory()
	mem.FailCreate = func(_ store.Entity, fields store.Fields) error {
		if fields.Str("name") == "bad" {
			return eris.New("validation rejected")
		}
		return nil
	}

	eng := NewEngine(mem, store.EntityClients, testConfig())
	res := eng.Run(context.Background(), nil, []Op{
		createOpFor(1, "good"),
		createOpFor(2, "bad"),
		createOpFor(3, "good"),
	})

	assert.Equal(t, 2, res.Created)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, 2, res.Failures[0].Index)
	assert.Equal(t, "create", res.Failures[0].Phase)
	assert.Contains(t, res.Failures[0].Error, "validation rejected")
}

func TestEngine_TransientFailureRetriesWithinOperation(t *testing.T) {
	var calls atomic.Int64
	mem := store.NewMemory()
	mem.FailCreate = func(store.Entity, store.Fields) error {
		if calls.Add(1) == 1 {
			return resilience.MarkTransient(eris.New("throttled"), 429)
		}
		return nil
	}

	eng := NewEngine(mem, store.EntityClients, testConfig())
	res := eng.Run(context.Background(), nil, []Op{createOpFor(1, "Dana Levi")})

	assert.Equal(t, 1, res.Created)
	assert.Empty(t, res.Failures)
	assert.Equal(t, int64(2), calls.Load())
}

func TestEngine_TransientFailureRequeuedForNextRound(t *testing.T) {
	var calls atomic.Int64
	mem := store.NewMemory()
	mem.FailCreate = func(store.Entity, store.Fields) error {
		// fail every attempt of round one (two with the test retry policy)
		if calls.Add(1) <= 2 {
			return resilience.MarkTransient(eris.New("server busy"), 503)
		}
		return nil
	}

	eng := NewEngine(mem, store.EntityClients, testConfig())
	res := eng.Run(context.Background(), nil, []Op{createOpFor(1, "Dana Levi")})

	assert.Equal(t, 1, res.Created)
	assert.Empty(t, res.Failures)
	assert.Equal(t, int64(3), calls.Load())
}

func TestEngine_RoundsExhausted(t *testing.T) {
	mem := store.NewMemory()
	mem.FailCreate = func(store.Entity, store.Fields) error {
		return resilience.MarkTransient(eris.New("still down"), 503)
	}

	eng := NewEngine(mem, store.EntityClients, testConfig())
	res := eng.Run(context.Background(), nil, []Op{createOpFor(1, "Dana Levi")})

	assert.Zero(t, res.Created)
	require.Len(t, res.Failures, 1)
	assert.Contains(t, res.Failures[0].Error, "retry rounds exhausted")

	completed, total := eng.Progress()
	assert.Equal(t, total, completed)
}

func TestEngine_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eng := NewEngine(store.NewMemory(), store.EntityClients, testConfig())
	res := eng.Run(ctx, nil, []Op{createOpFor(1, "Dana Levi"), createOpFor(2, "Moshe Cohen")})

	assert.True(t, res.Cancelled)
	assert.Zero(t, res.Created)
	assert.Len(t, res.Failures, 2)
}

func TestEngine_CancelStopsAtBatchBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int64
	mem := store.NewMemory()
	mem.FailCreate = func(store.Entity, store.Fields) error {
		if calls.Add(1) == 1 {
			cancel()
		}
		return nil
	}

	cfg := testConfig()
	cfg.BatchSize = 1
	cfg.Concurrency = 1
	eng := NewEngine(mem, store.EntityClients, cfg)
	res := eng.Run(ctx, nil, []Op{
		createOpFor(1, "a"),
		createOpFor(2, "b"),
		createOpFor(3, "c"),
	})

	// the in-flight op finishes, the rest are never dispatched
	assert.True(t, res.Cancelled)
	assert.Equal(t, 1, res.Created)
	assert.Len(t, res.Failures, 2)

	completed, total := eng.Progress()
	assert.Equal(t, 3, total)
	assert.Equal(t, total, completed)
}

func TestEngine_ProgressCoversBothPhases(t *testing.T) {
	mem := store.NewMemory()
	mem.Seed(store.EntityClients, store.Record{ID: "rec-1"})

	eng := NewEngine(mem, store.EntityClients, testConfig())
	eng.Run(context.Background(),
		[]Op{updateOpFor(1, "rec-1", store.Fields{"city": "Haifa"})},
		[]Op{createOpFor(2, "a"), createOpFor(3, "b"), createOpFor(4, "c")},
	)

	completed, total := eng.Progress()
	assert.Equal(t, 4, total)
	assert.Equal(t, 4, completed)
}
