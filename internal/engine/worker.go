package engine

import (
	"sync"
	"time"
)

// worker runs a cycle function repeatedly with a rest interval between
// iterations, supporting cooperative pause. Pausing never interrupts an
// iteration mid-flight: WaitUntilPaused returns only once the current
// iteration has finished and the worker is parked, which is the
// quiescence point the command manager relies on before mutating
// shared buffers.
type worker struct {
	name     string
	interval time.Duration
	cycleFn  func()

	mu             sync.Mutex
	cond           *sync.Cond
	started        bool
	pauseRequested bool
	paused         bool
	stopping       bool

	wakeCh chan struct{}
	done   chan struct{}
}

func newWorker(name string, interval time.Duration, cycleFn func()) *worker {
	w := &worker{
		name:     name,
		interval: interval,
		cycleFn:  cycleFn,
		wakeCh:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Start launches the worker loop.
func (w *worker) Start() {
	w.mu.Lock()
	if w.started || w.stopping {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.loop()
}

func (w *worker) loop() {
	defer close(w.done)
	for {
		w.mu.Lock()
		for w.pauseRequested && !w.stopping {
			w.paused = true
			w.cond.Broadcast()
			w.cond.Wait()
		}
		w.paused = false
		stopping := w.stopping
		w.mu.Unlock()
		if stopping {
			return
		}

		w.cycleFn()
		w.rest()
	}
}

// rest sleeps between iterations, waking early on pause or stop requests
// so quiescence does not wait out the full interval.
func (w *worker) rest() {
	t := time.NewTimer(w.interval)
	defer t.Stop()
	select {
	case <-t.C:
	case <-w.wakeCh:
	}
}

func (w *worker) wake() {
	select {
	case w.wakeCh <- struct{}{}:
	default:
	}
}

// RequestPause asks the worker to park after its current iteration.
func (w *worker) RequestPause() {
	w.mu.Lock()
	w.pauseRequested = true
	w.mu.Unlock()
	w.wake()
}

// WaitUntilPaused blocks until the worker has parked (or stopped).
func (w *worker) WaitUntilPaused() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for !w.paused && !w.stopping {
		w.cond.Wait()
	}
}

// Resume lets a paused worker run again.
func (w *worker) Resume() {
	w.mu.Lock()
	w.pauseRequested = false
	w.cond.Broadcast()
	w.mu.Unlock()
}

// IsPaused reports whether the worker is parked.
func (w *worker) IsPaused() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.paused
}

// Stop terminates the loop after the current iteration and waits for it
// to exit.
func (w *worker) Stop() {
	w.mu.Lock()
	if !w.started {
		w.stopping = true
		w.mu.Unlock()
		return
	}
	if w.stopping {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.stopping = true
	w.pauseRequested = false
	w.cond.Broadcast()
	w.mu.Unlock()
	w.wake()
	<-w.done
}
