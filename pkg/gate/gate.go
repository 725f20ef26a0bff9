// Package gate provides a single-worker task queue. Every task posted to a
// Gate runs on the same goroutine, one at a time, in submission order.
package gate

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrClosed is returned when a task is submitted to a closed gate.
var ErrClosed = errors.New("gate closed")

const queueLength = 16

// Gate serializes state-mutating work for one owner. A task must not
// submit to its own gate with Run; use Post instead.
type Gate struct {
	name string

	reqCh  chan func()
	stopCh chan struct{}
	done   chan struct{}

	stopOnce sync.Once
}

// New starts the worker goroutine.
func New(name string) *Gate {
	g := &Gate{
		name:   name,
		reqCh:  make(chan func(), queueLength),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go g.worker()
	return g
}

func (g *Gate) worker() {
	defer close(g.done)

	logrus.WithField("gate", g.name).Trace("gate worker started")

	for {
		select {
		case <-g.stopCh:
			logrus.WithField("gate", g.name).Trace("gate worker stopped")
			return
		case fn := <-g.reqCh:
			fn()
		}
	}
}

// Post queues fn without waiting for it to run.
func (g *Gate) Post(fn func()) error {
	select {
	case <-g.stopCh:
		return ErrClosed
	default:
	}

	select {
	case g.reqCh <- fn:
		return nil
	case <-g.stopCh:
		return ErrClosed
	}
}

// Run queues fn and waits until it has finished. If ctx ends first, Run
// returns ctx.Err() and fn may still run later.
func (g *Gate) Run(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	err := g.Post(func() {
		defer close(finished)
		fn()
	})
	if err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-g.stopCh:
		// The worker may have picked fn up right before stopping.
		select {
		case <-finished:
			return nil
		case <-g.done:
			select {
			case <-finished:
				return nil
			default:
				return ErrClosed
			}
		}
	}
}

// Close stops the worker after the task in progress, if any. Queued tasks
// are dropped. Close waits for the worker to exit and is safe to call more
// than once, but not from inside a task.
func (g *Gate) Close() {
	g.stopOnce.Do(func() {
		close(g.stopCh)
	})
	<-g.done
}
