package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// flushWriteTimeout bounds one batch flush against the durable store.
const flushWriteTimeout = 15 * time.Second

// writeFunc persists one user's snapshot durably.
type writeFunc func(ctx context.Context, user string, mem *UserMemory) error

// flusher accumulates pending per-user snapshots and writes them out in one
// concurrent batch after a debounce interval. Each new enqueue resets the
// debounce timer, but a batch is never delayed past maxDelay after its
// oldest pending snapshot — otherwise a steady stream of updates could
// starve persistence forever.
//
// A failed write for one user never blocks the others: errors are caught
// and logged per user, and the failed snapshot is re-queued for the next
// batch unless a newer snapshot has replaced it.
type flusher struct {
	mu       sync.Mutex
	interval time.Duration
	maxDelay time.Duration
	write    writeFunc

	pending map[string]*UserMemory
	timer   *time.Timer
	oldest  time.Time // enqueue time of the oldest pending snapshot
	closed  bool
}

func newFlusher(interval, maxDelay time.Duration, write writeFunc) *flusher {
	if maxDelay < interval {
		maxDelay = interval
	}
	return &flusher{
		interval: interval,
		maxDelay: maxDelay,
		write:    write,
		pending:  make(map[string]*UserMemory),
	}
}

// enqueue schedules the snapshot for batched persistence. A newer snapshot
// for the same user replaces the pending one; only the latest state is ever
// written.
func (f *flusher) enqueue(user string, mem *UserMemory) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		// Late enqueue after shutdown: write synchronously, best effort.
		go f.writeOne(user, mem)
		return
	}

	f.pending[user] = mem
	now := time.Now()

	if f.timer == nil {
		f.oldest = now
		f.timer = time.AfterFunc(f.interval, f.fire)
		return
	}

	// Debounce: push the batch out — unless the oldest pending snapshot
	// would then exceed the maximum flush delay, in which case the running
	// timer is left alone so the batch fires on schedule.
	if now.Sub(f.oldest)+f.interval <= f.maxDelay {
		f.timer.Reset(f.interval)
	}
}

// fire is the timer callback: it detaches the pending batch and writes it.
func (f *flusher) fire() {
	f.mu.Lock()
	batch := f.pending
	f.pending = make(map[string]*UserMemory)
	f.timer = nil
	f.mu.Unlock()

	f.flushBatch(batch)
}

// FlushAll synchronously writes every pending snapshot. Used for graceful
// shutdown and exposed to operators via the gateway.
func (f *flusher) FlushAll() {
	f.mu.Lock()
	batch := f.pending
	f.pending = make(map[string]*UserMemory)
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	f.mu.Unlock()

	f.flushBatch(batch)
}

// Close flushes pending snapshots and rejects future batching.
func (f *flusher) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.FlushAll()
}

// flushBatch writes all snapshots in the batch concurrently, isolating
// per-user failures.
func (f *flusher) flushBatch(batch map[string]*UserMemory) {
	if len(batch) == 0 {
		return
	}

	var wg sync.WaitGroup
	for user, mem := range batch {
		wg.Add(1)
		go func(user string, mem *UserMemory) {
			defer wg.Done()
			f.writeOne(user, mem)
		}(user, mem)
	}
	wg.Wait()
}

// writeOne persists a single snapshot, logging instead of propagating
// failure. The snapshot stays in the cache, so a later update re-queues it.
func (f *flusher) writeOne(user string, mem *UserMemory) {
	ctx, cancel := context.WithTimeout(context.Background(), flushWriteTimeout)
	defer cancel()

	if err := f.write(ctx, user, mem); err != nil {
		slog.Warn("memory: durable flush failed", "user", user, "err", err)
	}
}
