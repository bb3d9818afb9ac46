package engine

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/lmoreau/ripple/internal/container"
	"github.com/lmoreau/ripple/internal/media"
)

// workerSet groups the three pipeline workers of one session.
type workerSet struct {
	reading   *worker
	decoding  *worker
	rendering *worker
}

func (s *workerSet) all() []*worker {
	return []*worker{s.reading, s.decoding, s.rendering}
}

func (s *workerSet) startAll() {
	for _, w := range s.all() {
		w.Start()
	}
}

func (s *workerSet) stopAll() {
	for _, w := range s.all() {
		w.Stop()
	}
}

// pauseAll establishes a quiescence point: every worker has finished its
// current iteration and is parked. Requests are issued to all workers
// before waiting so the pipeline drains in parallel.
func (s *workerSet) pauseAll() {
	for _, w := range s.all() {
		w.RequestPause()
	}
	for _, w := range s.all() {
		w.WaitUntilPaused()
	}
}

func (s *workerSet) resumeAll() {
	for _, w := range s.all() {
		w.Resume()
	}
}

// blockCapacity derives a buffer's block capacity from the target
// buffering duration and the expected block duration of the media type.
func blockCapacity(t media.Type, bufferDuration time.Duration) int {
	var expected time.Duration
	switch t {
	case media.TypeVideo:
		expected = 40 * time.Millisecond
	case media.TypeSubtitle:
		expected = time.Second
	default:
		expected = 100 * time.Millisecond
	}
	n := int(bufferDuration / expected)
	if n < 8 {
		n = 8
	}
	return n
}

// runOpen executes the Open direct command.
func (e *Engine) runOpen(uri string) error {
	if e.Status() != StatusClosed {
		return ErrMediaAlreadyOpen
	}
	e.setStatus(StatusOpening)

	c, err := e.opts.Opener(uri)
	if err != nil {
		e.setStatus(StatusClosed)
		e.emitError("open", err)
		return fmt.Errorf("open %s: %w", uri, err)
	}

	// Publish the container before the prefill loop so a concurrent
	// Close can interrupt it via SignalAbortReads.
	e.sessionMu.Lock()
	e.container = c
	e.blocks = make(map[media.Type]*media.BlockBuffer)
	e.renderers = make(map[media.Type]Renderer)
	for _, t := range c.Components().MediaTypes() {
		e.blocks[t] = media.NewBlockBuffer(t, blockCapacity(t, e.opts.BufferDuration))
		r := e.opts.RendererFactory(t, c)
		if r == nil {
			r = NewNullRenderer(t)
		}
		e.renderers[t] = r
	}
	e.sessionMu.Unlock()

	if err := e.prefill(c); err != nil {
		e.teardownSession()
		e.setStatus(StatusClosed)
		return err
	}

	e.clock.Reset()
	e.clock.SetSpeedRatio(1.0)
	e.lastRendered = make(map[media.Type]time.Duration)
	e.endFired = false

	ws := &workerSet{
		reading:   newWorker("packet-reading", e.opts.WorkerInterval, e.readingCycle),
		decoding:  newWorker("frame-decoding", e.opts.WorkerInterval, e.decodingCycle),
		rendering: newWorker("block-rendering", e.opts.WorkerInterval, e.renderingCycle),
	}
	e.sessionMu.Lock()
	e.workers = ws
	e.sessionMu.Unlock()
	ws.startAll()
	e.cmds.startCycle()

	e.setStatus(StatusStopped)
	e.emitOpened(MediaOpen{URI: uri, Duration: c.Duration()})
	e.emitPosition(0)
	e.log.Info("media opened", "uri", uri, "duration", c.Duration())
	return nil
}

// prefill reads packets until the main buffer is half full, so playback
// can start immediately after open.
func (e *Engine) prefill(c container.Container) error {
	mainBuf := e.mainBuffer()
	if mainBuf == nil {
		return fmt.Errorf("open %s: no media components", c.URI())
	}
	for mainBuf.Count() < mainBuf.Capacity()/2 && !c.IsAtEndOfStream() {
		_, err := c.Read()
		switch {
		case errors.Is(err, container.ErrReadAborted):
			return ErrOpenAborted
		case errors.Is(err, io.EOF):
			e.moveFramesToBuffers(false)
			return nil
		case err != nil:
			e.emitError("read", err)
			return fmt.Errorf("prefill: %w", err)
		}
		e.moveFramesToBuffers(false)
	}
	return nil
}

// runClose executes the Close direct command. Idempotent.
func (e *Engine) runClose() error {
	e.cmds.stopCycle()
	e.cmds.forceCompletePending()

	e.sessionMu.RLock()
	ws := e.workers
	e.sessionMu.RUnlock()
	if ws != nil {
		ws.stopAll()
	}

	if e.currentContainer() == nil {
		e.setStatus(StatusClosed)
		return nil
	}

	e.teardownSession()
	e.clock.Reset()
	e.setStatus(StatusClosed)
	e.emitClosed()
	e.log.Info("media closed")
	return nil
}

// teardownSession releases renderers and the container and clears the
// per-session pipeline state. Faults are logged, never propagated: the
// teardown always completes.
func (e *Engine) teardownSession() {
	e.sessionMu.Lock()
	c := e.container
	renderers := e.renderers
	e.container = nil
	e.blocks = nil
	e.renderers = nil
	e.workers = nil
	e.sessionMu.Unlock()

	for _, r := range renderers {
		r.OnClose()
	}
	if c != nil {
		if err := c.Close(); err != nil {
			e.log.Warn("container close failed", "err", err)
		}
	}
	e.lastRendered = make(map[media.Type]time.Duration)
	e.endFired = false
}

// runChange executes the Change direct command: buffers and renderers
// are rebuilt for the container's current components and the pipeline is
// repopulated at the current position.
func (e *Engine) runChange() error {
	c := e.currentContainer()
	if c == nil {
		return ErrNoMedia
	}

	// Drain the command cycle so an in-flight seek or transport command
	// finishes before the pipeline is rebuilt. No two command categories
	// may mutate pipeline state at once; pausing the workers alone does
	// not cover the cycle goroutine.
	e.cmds.stopCycle()
	defer e.cmds.startCycle()

	e.sessionMu.RLock()
	ws := e.workers
	e.sessionMu.RUnlock()
	if ws != nil {
		ws.pauseAll()
		defer ws.resumeAll()
	}

	pos := e.clock.Position()

	e.sessionMu.Lock()
	oldRenderers := e.renderers
	e.blocks = make(map[media.Type]*media.BlockBuffer)
	e.renderers = make(map[media.Type]Renderer)
	for _, t := range c.Components().MediaTypes() {
		e.blocks[t] = media.NewBlockBuffer(t, blockCapacity(t, e.opts.BufferDuration))
		r := e.opts.RendererFactory(t, c)
		if r == nil {
			r = NewNullRenderer(t)
		}
		e.renderers[t] = r
	}
	e.sessionMu.Unlock()

	for _, r := range oldRenderers {
		r.OnClose()
	}
	e.lastRendered = make(map[media.Type]time.Duration)
	e.endFired = false

	res := e.cmds.seekCore(newSeekOperation(pos, seekNormal))
	e.clock.SetPosition(res.Position)
	return nil
}

// moveFramesToBuffers dequeues decoded frames from the container
// components into the block buffers. With slide set, a full buffer keeps
// accepting frames (evicting oldest) once the clock has advanced past
// the middle of its range, so the window follows playback.
func (e *Engine) moveFramesToBuffers(slide bool) int {
	c := e.currentContainer()
	if c == nil {
		return 0
	}

	moved := 0
	for _, t := range c.Components().MediaTypes() {
		buf := e.blockBuffer(t)
		comp := c.Components().Get(t)
		if buf == nil || comp == nil {
			continue
		}
		for {
			if buf.IsFull() {
				if !slide {
					break
				}
				mid := buf.RangeStartTime() + buf.RangeDuration()/2
				if e.clock.Position() <= mid {
					break
				}
			}
			f := comp.ReceiveNextFrame()
			if f == nil {
				break
			}
			buf.Add(f)
			moved++
		}
	}
	return moved
}
