package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/mailwright/mailwright/internal/logging"
)

// Lock serializes sequences that share the output tree. Every Trigger of
// one pipeline must share the same Lock.
type Lock struct {
	mu sync.Mutex
}

// Trigger runs a sequence in response to change notifications.
//
// Fire never blocks. If the sequence is idle it starts a run. If it is
// already running, the trigger records one pending rerun; any further Fire
// calls before that rerun starts are coalesced into it. Runs from different
// triggers sharing a Lock never overlap.
type Trigger struct {
	seq    *Sequence
	lock   *Lock
	logger logging.Logger

	mu      sync.Mutex
	running bool
	pending bool
	wg      sync.WaitGroup

	runs      atomic.Int64
	coalesced atomic.Int64

	// OnResult, when set, is called after every run with its outcome.
	OnResult func(err error)
}

// NewTrigger binds seq to lock.
func NewTrigger(seq *Sequence, lock *Lock, logger logging.Logger) *Trigger {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Trigger{
		seq:    seq,
		lock:   lock,
		logger: logger.WithComponent("trigger").With("sequence", seq.Name),
	}
}

// Fire requests a run of the sequence.
func (t *Trigger) Fire(ctx context.Context) {
	t.mu.Lock()
	if t.running {
		if t.pending {
			t.coalesced.Add(1)
		}
		t.pending = true
		t.mu.Unlock()
		return
	}
	t.running = true
	t.wg.Add(1)
	t.mu.Unlock()

	go t.loop(ctx)
}

// Wait blocks until no run is in progress or pending.
func (t *Trigger) Wait() {
	t.wg.Wait()
}

// Runs reports how many times the sequence has been run.
func (t *Trigger) Runs() int64 { return t.runs.Load() }

// Coalesced reports how many Fire calls were folded into an already
// pending rerun.
func (t *Trigger) Coalesced() int64 { return t.coalesced.Load() }

func (t *Trigger) loop(ctx context.Context) {
	defer t.wg.Done()

	for {
		err := t.runOnce(ctx)
		if t.OnResult != nil {
			t.OnResult(err)
		}

		t.mu.Lock()
		if !t.pending || ctx.Err() != nil {
			t.running = false
			t.pending = false
			t.mu.Unlock()
			return
		}
		t.pending = false
		t.mu.Unlock()
	}
}

func (t *Trigger) runOnce(ctx context.Context) error {
	t.lock.mu.Lock()
	defer t.lock.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	t.runs.Add(1)
	err := t.seq.Run(ctx)
	if err != nil {
		t.logger.Error(ctx, err, "Sequence failed; waiting for the next change")
	}
	return err
}

// RunLocked runs seq under lock synchronously. The initial build uses it so
// that it cannot interleave with watch-triggered runs.
func RunLocked(ctx context.Context, lock *Lock, seq *Sequence) error {
	lock.mu.Lock()
	defer lock.mu.Unlock()
	return seq.Run(ctx)
}
