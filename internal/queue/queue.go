// Package queue runs background memory work on a bounded worker pool
// while keeping per-owner submission order.
package queue

import (
	"errors"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("queue closed")

type chain struct {
	tasks   []func()
	running bool
}

// Queue executes tasks on a shared bounded pool. Tasks submitted for
// the same owner run strictly in submission order; tasks for different
// owners run concurrently up to the pool size. This replaces
// thread-per-message fan-out while preserving the per-user ordering
// guarantee.
type Queue struct {
	pool *ants.Pool

	mu     sync.Mutex
	chains map[string]*chain
	closed bool
	wg     sync.WaitGroup
}

// New creates a queue backed by a pool of the given size.
func New(workers int) (*Queue, error) {
	if workers <= 0 {
		workers = 4
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, err
	}
	return &Queue{
		pool:   pool,
		chains: make(map[string]*chain),
	}, nil
}

// Submit enqueues a task for the owner. It never blocks on task
// execution; ordering is guaranteed per owner only.
func (q *Queue) Submit(owner string, task func()) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}

	c, ok := q.chains[owner]
	if !ok {
		c = &chain{}
		q.chains[owner] = c
	}
	c.tasks = append(c.tasks, task)
	idx := len(c.tasks) - 1
	q.wg.Add(1)

	start := !c.running
	if start {
		c.running = true
	}
	q.mu.Unlock()

	if start {
		if err := q.pool.Submit(func() { q.run(owner) }); err != nil {
			// Pool rejected the runner; unwind our own task and the
			// chain state so a later Submit can restart it. Concurrent
			// Submits only append behind idx while running is set, so
			// the position is still ours.
			q.mu.Lock()
			c.running = false
			c.tasks = append(c.tasks[:idx], c.tasks[idx+1:]...)
			q.mu.Unlock()
			q.wg.Done()
			return err
		}
	}
	return nil
}

// run drains one owner's chain serially.
func (q *Queue) run(owner string) {
	for {
		q.mu.Lock()
		c := q.chains[owner]
		if len(c.tasks) == 0 {
			c.running = false
			q.mu.Unlock()
			return
		}
		task := c.tasks[0]
		c.tasks = c.tasks[1:]
		q.mu.Unlock()

		task()
		q.wg.Done()
	}
}

// Drain blocks until every submitted task has finished.
func (q *Queue) Drain() {
	q.wg.Wait()
}

// Close drains the queue and releases the pool.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.wg.Wait()
	q.pool.Release()
}
