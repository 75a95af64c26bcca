package pool

import (
	"context"
	"runtime"
	"sync"

	"github.com/pkg/errors"

	"github.com/shadowridgedev/atomspace/sqlstore/driver"
)

// Size returns the pool size prescribed by spec §4.2: enough connections
// for every hardware thread (or at least 8) to read concurrently, plus one
// per write-back worker so stores and loads never contend for the same
// slots.
func Size(workerCount int) int {
	n := runtime.NumCPU()
	if n < 8 {
		n = 8
	}
	return n + workerCount
}

// Pool is a bounded LIFO stack of *driver.Connection, guarded by a mutex
// and condition variable. Acquire blocks while the pool is empty; Release
// never blocks.
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	conns   []*driver.Connection
	closed  bool
}

// New opens size connections against db and returns a ready Pool.
func New(ctx context.Context, db *driver.DB, size int) (*Pool, error) {
	p := &Pool{conns: make([]*driver.Connection, 0, size)}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < size; i++ {
		c, err := db.Connect(ctx)
		if err != nil {
			p.closeAll()
			return nil, errors.WithMessagef(err, "opening pool connection %d/%d", i+1, size)
		}
		p.conns = append(p.conns, c)
	}
	return p, nil
}

// Acquire blocks until a connection is available or ctx is done, and pops
// one off the top of the LIFO stack.
func (p *Pool) Acquire(ctx context.Context) (*driver.Connection, error) {
	done := make(chan struct{})
	var cancelOnce sync.Once
	stopWaiting := func() { cancelOnce.Do(func() { close(done) }) }

	// Wake the condition wait if the context is canceled while we're
	// blocked with no connections available.
	go func() {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.cond.Broadcast()
			p.mu.Unlock()
		case <-done:
		}
	}()
	defer stopWaiting()

	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.conns) == 0 && !p.closed {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p.cond.Wait()
	}
	if p.closed {
		return nil, errors.New("pool is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	last := len(p.conns) - 1
	c := p.conns[last]
	p.conns = p.conns[:last]
	return c, nil
}

// Release returns c to the top of the stack and wakes one waiter. It never
// blocks.
func (p *Pool) Release(c *driver.Connection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		c.Close()
		return
	}
	p.conns = append(p.conns, c)
	p.cond.Signal()
}

// WithConn is the scoped-acquisition helper: it acquires a connection,
// invokes fn, and guarantees the connection's return to the pool on every
// exit path, including a panic inside fn.
func WithConn(ctx context.Context, p *Pool, fn func(*driver.Connection) error) error {
	c, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(c)
	return fn(c)
}

// Close closes every connection currently parked in the pool and marks it
// closed; any blocked or future Acquire returns an error. Connections
// currently checked out are closed as they are Released.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	err := p.closeAllLocked()
	p.mu.Unlock()
	return err
}

func (p *Pool) closeAll() {
	p.mu.Lock()
	p.closeAllLocked()
	p.mu.Unlock()
}

func (p *Pool) closeAllLocked() error {
	var firstErr error
	for _, c := range p.conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.conns = nil
	return firstErr
}
