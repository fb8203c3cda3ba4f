// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package session

import (
	"context"
	"sync"
	"time"
)

// DefaultPollInterval is the pause between two engine steps.
const DefaultPollInterval = 10 * time.Millisecond

// worker calls engine.Run until cancelled. It references the engine but
// does not own it.
type worker struct {
	engine   Engine
	interval time.Duration
	onPanic  func(r interface{})

	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	exited  bool
	release func()
}

func startWorker(engine Engine, interval time.Duration, onPanic func(r interface{})) *worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &worker{
		engine:   engine,
		interval: interval,
		onPanic:  onPanic,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go w.run(ctx)
	return w
}

func (w *worker) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil && w.onPanic != nil {
			w.onPanic(r)
		}
		w.mu.Lock()
		w.exited = true
		release := w.release
		w.mu.Unlock()
		// done closes only after an abandoned engine and transport are released
		if release != nil {
			release()
		}
		close(w.done)
	}()

	timer := time.NewTimer(w.interval)
	defer timer.Stop()
	for {
		// cancellation is observed between steps only
		if ctx.Err() != nil {
			return
		}
		w.engine.Run()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			timer.Reset(w.interval)
		}
	}
}

// stop cancels the worker and waits up to timeout for it to exit.
func (w *worker) stop(timeout time.Duration) bool {
	w.cancel()
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-w.done:
		return true
	case <-t.C:
		return false
	}
}

// abandon hands the release of the engine resources to the worker, which
// calls release once it exits. It returns false when the worker has exited
// already; the caller then releases them itself.
func (w *worker) abandon(release func()) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.exited {
		return false
	}
	w.release = release
	return true
}
