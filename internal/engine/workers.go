package engine

import (
	"errors"
	"io"
	"time"

	"github.com/lmoreau/ripple/internal/container"
)

// readingCycle is one iteration of the packet-reading worker: pull the
// next packet off the container unless the downstream queues are already
// saturated.
func (e *Engine) readingCycle() {
	c := e.currentContainer()
	if c == nil || c.IsAtEndOfStream() {
		return
	}
	if !e.shouldReadMore(c) {
		return
	}

	_, err := c.Read()
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
	case errors.Is(err, container.ErrReadAborted):
	default:
		e.log.Warn("packet read failed", "err", err)
		e.emitError("read", err)
	}
}

// shouldReadMore gates demuxing on the main component's decoded frame
// backlog so memory stays bounded when decoding stalls.
func (e *Engine) shouldReadMore(c container.Container) bool {
	mainBuf := e.mainBuffer()
	if mainBuf == nil {
		return false
	}
	return c.Components().Main().BufferedCount() < mainBuf.Capacity()
}

// decodingCycle is one iteration of the frame-decoding worker: move
// decoded frames into the block buffers, sliding the buffered window
// forward as playback consumes it.
func (e *Engine) decodingCycle() {
	e.moveFramesToBuffers(true)
}

// renderingCycle is one iteration of the block-rendering worker: hand
// each renderer the block covering the clock position, report the
// position, and detect the end of media.
func (e *Engine) renderingCycle() {
	c := e.currentContainer()
	if c == nil {
		return
	}
	pos := e.clock.Position()

	e.sessionMu.RLock()
	blocks := e.blocks
	renderers := e.renderers
	e.sessionMu.RUnlock()

	for t, buf := range blocks {
		if buf.Count() == 0 {
			continue
		}
		blk := buf.At(pos)
		if blk == nil {
			continue
		}
		if last, ok := e.lastRendered[t]; ok && last == blk.StartTime() {
			continue
		}
		if r := renderers[t]; r != nil {
			r.Render(blk, pos)
		}
		e.lastRendered[t] = blk.StartTime()
	}

	e.emitPosition(pos)
	e.detectMediaEnd(c, pos)
}

// detectMediaEnd fires once when playback has consumed everything the
// exhausted container produced.
func (e *Engine) detectMediaEnd(c container.Container, pos time.Duration) {
	if e.endFired || e.Status() != StatusPlaying {
		return
	}
	if !c.IsAtEndOfStream() || c.Components().Main().BufferedCount() > 0 {
		return
	}
	mainBuf := e.mainBuffer()
	if mainBuf == nil || mainBuf.Count() == 0 || pos < mainBuf.RangeEndTime() {
		return
	}

	e.endFired = true
	e.clock.Pause()
	e.clock.SetPosition(mainBuf.RangeEndTime())
	e.setStatus(StatusStopped)
	e.emitMediaEnded()
	e.log.Info("media ended", "position", mainBuf.RangeEndTime())
}
