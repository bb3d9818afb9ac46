// Package engine implements the media playback core: a command-serialized
// pipeline of three cooperating workers (packet reading, frame decoding,
// block rendering) feeding per-media-type block buffers, governed by a
// speed-adjustable clock. Transport commands (open, close, change, play,
// pause, stop, seek, step, speed) are classified and sequenced by the
// command manager so the pipeline is never torn down or rendered into
// concurrently with a structural operation.
package engine

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lmoreau/ripple/internal/clock"
	"github.com/lmoreau/ripple/internal/container"
	"github.com/lmoreau/ripple/internal/media"
)

// Opener creates a container for a media URI. The default opener handles
// local audio files.
type Opener func(uri string) (container.Container, error)

// RendererFactory creates the sink for one media type of an open
// container. Returning nil selects the NullRenderer.
type RendererFactory func(t media.Type, c container.Container) Renderer

// Options tunes the engine. Zero values select defaults.
type Options struct {
	// Opener creates containers. Defaults to the local audio file opener.
	Opener Opener

	// RendererFactory creates per-type sinks. Defaults to NullRenderer.
	RendererFactory RendererFactory

	// BufferDuration is the target buffered time span per media type,
	// from which each buffer's block capacity is derived. Default 3s.
	BufferDuration time.Duration

	// WorkerInterval is the rest period between worker iterations.
	// Default 10ms.
	WorkerInterval time.Duration

	// CommandInterval is the command manager's cycle period. Default 25ms.
	CommandInterval time.Duration

	// DisableSeekSkew turns off the backward skew heuristic that
	// pre-fills blocks before a slow-path seek target.
	DisableSeekSkew bool

	// Logger receives pipeline diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.Opener == nil {
		o.Opener = func(uri string) (container.Container, error) {
			return container.OpenAudioFile(uri, 0)
		}
	}
	if o.RendererFactory == nil {
		o.RendererFactory = func(t media.Type, _ container.Container) Renderer {
			return NewNullRenderer(t)
		}
	}
	if o.BufferDuration <= 0 {
		o.BufferDuration = 3 * time.Second
	}
	if o.WorkerInterval <= 0 {
		o.WorkerInterval = 10 * time.Millisecond
	}
	if o.CommandInterval <= 0 {
		o.CommandInterval = 25 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Engine coordinates one open-media session at a time. The clock, block
// buffers and renderers live for the duration of a session; the command
// manager persists across sessions.
type Engine struct {
	opts Options
	log  *slog.Logger

	clock *clock.Clock
	cmds  *commandManager

	// sessionMu guards the per-session pipeline state below.
	sessionMu sync.RWMutex
	container container.Container
	blocks    map[media.Type]*media.BlockBuffer
	renderers map[media.Type]Renderer
	workers   *workerSet

	statusMu sync.RWMutex
	status   Status

	// lastRendered and endFired are touched only by the rendering worker
	// and by code paths holding it quiesced.
	lastRendered map[media.Type]time.Duration
	endFired     bool

	disposed atomic.Bool

	subsMu sync.RWMutex
	subs   []*Subscription
}

// New creates an engine with no media open.
func New(opts Options) *Engine {
	opts.applyDefaults()
	e := &Engine{
		opts:         opts,
		log:          opts.Logger,
		clock:        clock.New(),
		status:       StatusClosed,
		lastRendered: make(map[media.Type]time.Duration),
	}
	e.cmds = newCommandManager(e)
	return e
}

// Open opens the media source at uri. Direct command: rejected while
// another structural command is pending.
func (e *Engine) Open(uri string) *Promise {
	return e.cmds.submitDirect(cmdOpen, func() error { return e.runOpen(uri) })
}

// Close tears down the current session. It is the one command allowed to
// preempt: a pending Open is interrupted by signaling the container to
// abort reads.
func (e *Engine) Close() *Promise {
	return e.cmds.submitClose()
}

// Change rebuilds buffers and renderers after a component change,
// keeping the playback position.
func (e *Engine) Change() *Promise {
	return e.cmds.submitDirect(cmdChange, e.runChange)
}

// Play starts or resumes playback. Priority command: coalesced into a
// single pending slot where the latest request wins.
func (e *Engine) Play() *Promise { return e.cmds.submitPriority(cmdPlay) }

// Pause pauses playback, snapping the position to the current block.
func (e *Engine) Pause() *Promise { return e.cmds.submitPriority(cmdPause) }

// Stop pauses playback and seeks back to the beginning of the stream.
func (e *Engine) Stop() *Promise { return e.cmds.submitPriority(cmdStop) }

// Seek requests a jump to target. Queued command: a burst of seeks
// coalesces into at most one pending operation whose target is the
// latest requested.
func (e *Engine) Seek(target time.Duration) *Promise {
	return e.cmds.submitSeek(target, seekNormal)
}

// StepForward seeks to the next block boundary.
func (e *Engine) StepForward() *Promise {
	return e.cmds.submitSeek(0, seekStepForward)
}

// StepBackward seeks to the previous block boundary.
func (e *Engine) StepBackward() *Promise {
	return e.cmds.submitSeek(0, seekStepBackward)
}

// SetSpeedRatio requests a playback speed change. Queued and coalesced
// like Seek; values below 0 are clamped to 0.
func (e *Engine) SetSpeedRatio(ratio float64) *Promise {
	return e.cmds.submitSpeedRatio(ratio)
}

// Status returns the current playback status.
func (e *Engine) Status() Status {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	return e.status
}

func (e *Engine) setStatus(s Status) {
	e.statusMu.Lock()
	prev := e.status
	e.status = s
	e.statusMu.Unlock()
	if prev != s {
		e.emitState(StateChange{Previous: prev, Current: s})
	}
}

// Position returns the clock's current playback position.
func (e *Engine) Position() time.Duration { return e.clock.Position() }

// Duration returns the open media's duration, or 0 when closed.
func (e *Engine) Duration() time.Duration {
	if c := e.currentContainer(); c != nil {
		return c.Duration()
	}
	return 0
}

// SpeedRatio returns the clock's current speed ratio.
func (e *Engine) SpeedRatio() float64 { return e.clock.SpeedRatio() }

// IsSeeking reports whether a seek burst is in progress.
func (e *Engine) IsSeeking() bool { return e.cmds.isSeekingNow() }

// URI returns the open media's source location, or "".
func (e *Engine) URI() string {
	if c := e.currentContainer(); c != nil {
		return c.URI()
	}
	return ""
}

// Subscribe creates a new event subscription.
func (e *Engine) Subscribe() *Subscription {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	sub := newSubscription()
	e.subs = append(e.subs, sub)
	return sub
}

// Shutdown force-completes outstanding commands, synchronously closes
// the session and releases all subscriptions. It never panics and always
// completes cleanup; pipeline faults on the way down are logged.
func (e *Engine) Shutdown() error {
	if !e.cmds.markDisposed() {
		return nil
	}

	// An in-flight direct command owns the pipeline; wait it out.
	// Interrupt a pending open so the wait is bounded.
	for e.cmds.isDirectPending() {
		if c := e.currentContainer(); c != nil {
			c.SignalAbortReads(true)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := e.runClose(); err != nil {
		e.log.Warn("shutdown: close failed", "err", err)
	}

	e.subsMu.Lock()
	for _, sub := range e.subs {
		sub.close()
	}
	e.subs = nil
	e.subsMu.Unlock()
	return nil
}

// Session state accessors

func (e *Engine) currentContainer() container.Container {
	e.sessionMu.RLock()
	defer e.sessionMu.RUnlock()
	return e.container
}

func (e *Engine) blockBuffer(t media.Type) *media.BlockBuffer {
	e.sessionMu.RLock()
	defer e.sessionMu.RUnlock()
	return e.blocks[t]
}

// mainBuffer returns the buffer of the main component, or nil when closed.
func (e *Engine) mainBuffer() *media.BlockBuffer {
	e.sessionMu.RLock()
	defer e.sessionMu.RUnlock()
	if e.container == nil {
		return nil
	}
	return e.blocks[e.container.Components().MainType()]
}

func (e *Engine) workerSet() *workerSet {
	e.sessionMu.RLock()
	defer e.sessionMu.RUnlock()
	return e.workers
}

func (e *Engine) renderersSnapshot() []Renderer {
	e.sessionMu.RLock()
	defer e.sessionMu.RUnlock()
	out := make([]Renderer, 0, len(e.renderers))
	for _, r := range e.renderers {
		out = append(out, r)
	}
	return out
}

// clearAllBuffers empties every block buffer and the rendered-block
// tracking. Callers must hold the workers quiesced.
func (e *Engine) clearAllBuffers() {
	e.sessionMu.RLock()
	blocks := e.blocks
	e.sessionMu.RUnlock()
	for _, buf := range blocks {
		buf.Clear()
	}
	e.lastRendered = make(map[media.Type]time.Duration)
}

// drainComponentsUnbounded moves every queued decoded frame into its
// block buffer, letting full buffers evict oldest blocks. Used while
// repopulating after a decoder seek, where the window must march toward
// the target.
func (e *Engine) drainComponentsUnbounded() {
	c := e.currentContainer()
	if c == nil {
		return
	}
	for _, t := range c.Components().MediaTypes() {
		buf := e.blockBuffer(t)
		comp := c.Components().Get(t)
		if buf == nil || comp == nil {
			continue
		}
		for f := comp.ReceiveNextFrame(); f != nil; f = comp.ReceiveNextFrame() {
			buf.Add(f)
		}
	}
}

// Event emission

func (e *Engine) emitState(ev StateChange) {
	e.subsMu.RLock()
	defer e.subsMu.RUnlock()
	for _, sub := range e.subs {
		sub.sendState(ev)
	}
}

func (e *Engine) emitOpened(ev MediaOpen) {
	e.subsMu.RLock()
	defer e.subsMu.RUnlock()
	for _, sub := range e.subs {
		sub.sendOpened(ev)
	}
}

func (e *Engine) emitClosed() {
	e.subsMu.RLock()
	defer e.subsMu.RUnlock()
	for _, sub := range e.subs {
		sub.sendClosed()
	}
}

func (e *Engine) emitPosition(pos time.Duration) {
	e.subsMu.RLock()
	defer e.subsMu.RUnlock()
	for _, sub := range e.subs {
		sub.sendPosition(pos)
	}
}

func (e *Engine) emitSeekingStarted() {
	e.subsMu.RLock()
	defer e.subsMu.RUnlock()
	for _, sub := range e.subs {
		sub.sendSeekingStarted()
	}
}

func (e *Engine) emitSeekingEnded() {
	e.subsMu.RLock()
	defer e.subsMu.RUnlock()
	for _, sub := range e.subs {
		sub.sendSeekingEnded()
	}
}

func (e *Engine) emitMediaEnded() {
	e.subsMu.RLock()
	defer e.subsMu.RUnlock()
	for _, sub := range e.subs {
		sub.sendMediaEnded()
	}
}

func (e *Engine) emitError(op string, err error) {
	e.subsMu.RLock()
	defer e.subsMu.RUnlock()
	for _, sub := range e.subs {
		sub.sendError(ErrorEvent{Op: op, Err: err})
	}
}
