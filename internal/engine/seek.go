package engine

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/lmoreau/ripple/internal/container"
	"github.com/lmoreau/ripple/internal/media"
)

// seekMode selects how a seek target is interpreted.
type seekMode int

const (
	// seekNormal jumps to an absolute target position.
	seekNormal seekMode = iota
	// seekStop targets the beginning of the stream.
	seekStop
	// seekStepForward targets the next block boundary.
	seekStepForward
	// seekStepBackward targets the previous block boundary.
	seekStepBackward
)

// String returns the seek mode name.
func (m seekMode) String() string {
	switch m {
	case seekNormal:
		return "Normal"
	case seekStop:
		return "Stop"
	case seekStepForward:
		return "StepForward"
	case seekStepBackward:
		return "StepBackward"
	default:
		return "Unknown"
	}
}

// seekOperation is the single queued seek slot. A burst of seek requests
// (e.g. a scrubber drag) updates target and mode in place, so at most
// one seek beyond the one in flight ever executes.
type seekOperation struct {
	mu      sync.Mutex
	target  time.Duration
	mode    seekMode
	promise *Promise
}

func newSeekOperation(target time.Duration, mode seekMode) *seekOperation {
	return &seekOperation{target: target, mode: mode, promise: newPromise()}
}

func (op *seekOperation) update(target time.Duration, mode seekMode) {
	op.mu.Lock()
	defer op.mu.Unlock()
	op.target = target
	op.mode = mode
}

func (op *seekOperation) snapshot() (time.Duration, seekMode) {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.target, op.mode
}

// executeSeek runs one dequeued seek operation. The first seek of a
// burst pauses the clock and the pipeline workers; they stay quiesced
// until the queue drains and finalizeSeek restores them. Completion is
// always signaled, whatever path the seek takes.
func (m *commandManager) executeSeek(op *seekOperation) {
	e := m.e

	m.mu.Lock()
	first := !m.isSeeking
	if first {
		m.isSeeking = true
		m.playAfterSeek = e.clock.IsRunning()
	}
	m.mu.Unlock()

	if first {
		e.emitSeekingStarted()
		e.clock.Pause()
		if ws := e.workerSet(); ws != nil {
			ws.pauseAll()
		}
	}

	var res SeekResult
	defer func() { op.promise.completeSeek(res, nil) }()
	res = m.seekCore(op)
}

// seekCore is the seek algorithm proper. Callers must have the pipeline
// workers quiesced before invoking it (except for the fast path, which
// only touches the clock).
func (m *commandManager) seekCore(op *seekOperation) SeekResult {
	e := m.e
	target, mode := op.snapshot()

	mainBuf := e.mainBuffer()
	c := e.currentContainer()
	if mainBuf == nil || c == nil {
		return SeekResult{Position: e.clock.Position()}
	}

	pos := e.clock.Position()

	// Stepping modes resolve to a concrete target from the main buffer.
	switch mode {
	case seekStepForward, seekStepBackward:
		target = resolveStepTarget(mainBuf, pos, mode)
	case seekStop:
		target = 0
	}
	if target < 0 {
		target = 0
	}
	snap := mode == seekStepForward || mode == seekStepBackward

	// Fast path: the target is already buffered. Reposition the clock
	// and leave the decoder alone.
	if mainBuf.IsInRange(target) {
		final := target
		if snap {
			if blk := mainBuf.At(target); blk != nil {
				final = blk.StartTime()
			}
		}
		e.clock.SetPosition(final)
		e.emitPosition(final)
		return SeekResult{Position: final, ReachedTarget: true}
	}

	// Slow path: reposition the decoder and repopulate the buffers.
	// Under monotonic ordering, skew the decoder target backward by half
	// the buffer's span so blocks before the target get pre-filled.
	seekTarget := target
	if !e.opts.DisableSeekSkew && mainBuf.IsMonotonic() && mainBuf.Count() > 0 {
		seekTarget -= mainBuf.RangeDuration() / 2
		if seekTarget < 0 {
			seekTarget = 0
		}
	}

	firstFrame, err := c.Seek(seekTarget)
	if err != nil {
		e.log.Warn("container seek failed", "target", seekTarget, "err", err)
		e.emitError("seek", err)
		return SeekResult{Position: e.clock.Position(), ReachedTarget: false}
	}

	c.Components().ClearAll()
	e.clearAllBuffers()
	for _, r := range e.renderersSnapshot() {
		r.OnSeek()
	}

	if firstFrame != nil {
		if buf := e.blockBuffer(firstFrame.Type); buf != nil {
			buf.Add(firstFrame)
		}
	}

	// Keep reading and decoding until the main buffer covers the target
	// or the container runs out of packets.
	for !mainBuf.IsInRange(target) && !c.IsAtEndOfStream() {
		_, rerr := c.Read()
		if rerr != nil && !errors.Is(rerr, io.EOF) {
			if !errors.Is(rerr, container.ErrReadAborted) {
				e.log.Warn("seek repopulation read failed", "err", rerr)
				e.emitError("seek", rerr)
			}
			break
		}
		e.drainComponentsUnbounded()
	}
	e.drainComponentsUnbounded()

	// Push the clock as soon as the target is covered so dependent
	// renderers can react with minimal latency. This first-available-
	// frame signal precedes the command's final completion.
	if mainBuf.IsInRange(target) {
		final := target
		if snap {
			if blk := mainBuf.At(target); blk != nil {
				final = blk.StartTime()
			}
		}
		e.clock.SetPosition(final)
		e.emitPosition(final)
		return SeekResult{Position: final, ReachedTarget: true}
	}

	// The target was not reachable (e.g. past end of stream): clamp to
	// the nearest available boundary and report the discrepancy.
	final := e.clock.Position()
	if mainBuf.Count() > 0 {
		switch {
		case target >= mainBuf.RangeEndTime():
			final = mainBuf.RangeEndTime()
		case target <= mainBuf.RangeStartTime():
			final = mainBuf.RangeStartTime()
		}
	}
	e.clock.SetPosition(final)
	e.emitPosition(final)
	e.log.Warn("seek target out of range", "target", target, "clamped", final)
	return SeekResult{Position: final, ReachedTarget: false}
}

// resolveStepTarget computes the absolute target of a step seek from the
// block neighbors at the current position, falling back to synthesized
// offsets when no neighbor exists yet.
func resolveStepTarget(mainBuf *media.BlockBuffer, pos time.Duration, mode seekMode) time.Duration {
	prev, cur, next := mainBuf.Neighbors(pos)
	avg := mainBuf.AverageBlockDuration()

	if mode == seekStepForward {
		if next != nil {
			return next.StartTime()
		}
		if avg > 0 {
			return pos + avg*3/2
		}
		return pos + 500*time.Millisecond
	}

	if prev != nil {
		return prev.StartTime()
	}
	if cur != nil && cur.StartTime() < pos {
		return cur.StartTime()
	}
	if avg > 0 {
		return pos - avg*4/5
	}
	return pos - 500*time.Millisecond
}
