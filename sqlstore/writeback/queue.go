package writeback

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/shadowridgedev/atomspace/atom"
	"github.com/shadowridgedev/atomspace/sqlstore/metrics"
)

var errClosed = errors.New("writeback: queue is closed")

// StoreFunc is the synchronous store path a Queue dispatches entities to --
// in practice (*sqlstore/store.Store).StoreAtom called with synchronous=true.
type StoreFunc func(ctx context.Context, h atom.Entity) error

// Queue is the multi-producer / multi-consumer write-back queue of spec
// §4.8. pending counts items that have been accepted but whose store call
// has not yet returned, so Barrier can report "queue empty AND workers
// idle AND all worker-visible writes flushed" -- closing the race §9 flags
// against a barrier that returns merely when the FIFO looks empty.
type Queue struct {
	storeFn StoreFunc

	mu      sync.Mutex
	cond    *sync.Cond
	items   []atom.Entity
	pending int
	closed  bool

	failures int64

	eg     *errgroup.Group
	cancel context.CancelFunc
}

// New starts workerCount worker goroutines, managed by an errgroup so that
// Close can wait for every worker to actually exit rather than merely
// signaling them to stop.
func New(ctx context.Context, workerCount int, storeFn StoreFunc) *Queue {
	cancelCtx, cancel := context.WithCancel(ctx)
	eg, workerCtx := errgroup.WithContext(cancelCtx)

	q := &Queue{storeFn: storeFn, cancel: cancel}
	q.cond = sync.NewCond(&q.mu)

	for i := 0; i < workerCount; i++ {
		eg.Go(func() error {
			q.worker(workerCtx)
			return nil
		})
	}
	q.eg = eg
	return q
}

// Enqueue accepts h for asynchronous storage. It is O(1) and never blocks
// beyond the queue's short internal mutex.
func (q *Queue) Enqueue(h atom.Entity) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errClosed
	}
	q.items = append(q.items, h)
	q.pending++
	depth := len(q.items)
	q.mu.Unlock()

	metrics.QueueDepth.Set(float64(depth))
	q.cond.Broadcast()
	return nil
}

func (q *Queue) worker(ctx context.Context) {
	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.items) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		h := q.items[0]
		q.items = q.items[1:]
		metrics.QueueDepth.Set(float64(len(q.items)))
		q.mu.Unlock()

		// Workers invoke the synchronous store path; a failure is recorded
		// but never halts the queue, per spec §4.8.
		if err := q.storeFn(ctx, h); err != nil {
			atomic.AddInt64(&q.failures, 1)
			metrics.StoreFailureTotal.Inc()
			log.WithError(err).WithField("is_node", h.IsNode()).Warn("write-back store failed")
		}

		q.mu.Lock()
		q.pending--
		if q.pending == 0 {
			q.cond.Broadcast()
		}
		q.mu.Unlock()
	}
}

// Barrier blocks until the queue is empty, every worker is idle, and every
// accepted store's SQL write has completed -- not merely been dequeued.
func (q *Queue) Barrier() {
	timer := prometheus.NewTimer(metrics.QueueBarrierDurationSeconds)
	defer timer.ObserveDuration()

	q.mu.Lock()
	defer q.mu.Unlock()
	for q.pending > 0 {
		q.cond.Wait()
	}
}

// FailureCount returns the number of store attempts that have failed since
// the queue started.
func (q *Queue) FailureCount() int64 {
	return atomic.LoadInt64(&q.failures)
}

// Close drains the queue (via Barrier), signals every worker to exit, and
// waits for them to do so.
func (q *Queue) Close() error {
	q.Barrier()

	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()

	err := q.eg.Wait()
	q.cancel()
	return err
}
