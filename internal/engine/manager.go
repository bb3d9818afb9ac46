package engine

import (
	"sync"
	"time"
)

// priorityCommand is the single-slot pending transport command. At most
// one is outstanding: a newer Play/Pause/Stop overwrites the kind in
// place and shares the pending promise, so a burst collapses to one
// executed command and one pipeline pause/resume cycle.
type priorityCommand struct {
	kind    commandType
	promise *Promise
}

// speedRequest is the single-slot pending speed-ratio change.
type speedRequest struct {
	ratio   float64
	promise *Promise
}

// commandManager serializes transport commands against the pipeline.
// Direct commands (Open/Close/Change) run exclusively on their own
// goroutine; priority commands (Play/Pause/Stop) and queued commands
// (Seek/Step/SpeedRatio) are held in single-slot fields drained by the
// periodic cycle. The single-slot fields are the central invariant: no
// two exclusive command categories ever mutate pipeline state at once.
type commandManager struct {
	e *Engine

	mu            sync.Mutex
	directPending bool
	directKind    commandType
	priority      *priorityCommand
	seek          *seekOperation
	speed         *speedRequest
	isSeeking     bool
	playAfterSeek bool

	cycleMu   sync.Mutex
	running   bool
	stopCh    chan struct{}
	cycleDone chan struct{}
}

func newCommandManager(e *Engine) *commandManager {
	return &commandManager{e: e}
}

// submitDirect runs fn exclusively. A second direct command while one is
// pending is rejected; Close uses submitClose for its preemption path.
func (m *commandManager) submitDirect(kind commandType, fn func() error) *Promise {
	// The disposed check must happen under the same lock that claims the
	// slot, or a command could slip in between Shutdown flipping the flag
	// and draining the pending state.
	m.mu.Lock()
	if m.e.disposed.Load() || m.directPending {
		m.mu.Unlock()
		return completedPromise(ErrCommandRejected)
	}
	m.directPending = true
	m.directKind = kind
	m.mu.Unlock()

	p := newPromise()
	go func() {
		err := fn()
		m.mu.Lock()
		m.directPending = false
		m.mu.Unlock()
		p.complete(err)
	}()
	return p
}

// submitClose is the one preemption path in the system: when an Open is
// in flight, Close signals the container to abort reads, polls until the
// open completes, then runs the close logic itself.
func (m *commandManager) submitClose() *Promise {
	m.mu.Lock()
	if m.e.disposed.Load() {
		m.mu.Unlock()
		return completedPromise(ErrCommandRejected)
	}
	if !m.directPending {
		m.directPending = true
		m.directKind = cmdClose
		m.mu.Unlock()
		return m.runDirect(m.e.runClose)
	}
	if m.directKind != cmdOpen {
		m.mu.Unlock()
		return completedPromise(ErrCommandRejected)
	}
	m.mu.Unlock()

	p := newPromise()
	go func() {
		for {
			// Re-signal each poll: the container may not exist yet when
			// the interruption starts.
			if c := m.e.currentContainer(); c != nil {
				c.SignalAbortReads(true)
			}
			m.mu.Lock()
			if !m.directPending {
				m.directPending = true
				m.directKind = cmdClose
				m.mu.Unlock()
				break
			}
			m.mu.Unlock()
			time.Sleep(5 * time.Millisecond)
		}
		err := m.e.runClose()
		m.mu.Lock()
		m.directPending = false
		m.mu.Unlock()
		p.complete(err)
	}()
	return p
}

// runDirect executes fn for a caller that already claimed the direct slot.
func (m *commandManager) runDirect(fn func() error) *Promise {
	p := newPromise()
	go func() {
		err := fn()
		m.mu.Lock()
		m.directPending = false
		m.mu.Unlock()
		p.complete(err)
	}()
	return p
}

// markDisposed flips the engine's disposed flag under the slot lock, so
// the flag and the pending slots are observed atomically: once it
// returns true, no further command can claim a slot. Returns false when
// the engine was already disposed.
func (m *commandManager) markDisposed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.e.disposed.Load() {
		return false
	}
	m.e.disposed.Store(true)
	return true
}

func (m *commandManager) isDirectPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.directPending
}

// submitPriority coalesces Play/Pause/Stop into the single pending slot.
func (m *commandManager) submitPriority(kind commandType) *Promise {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.e.disposed.Load() {
		return completedPromise(ErrCommandRejected)
	}
	if !m.e.Status().IsOpen() {
		return completedPromise(ErrNoMedia)
	}
	if m.priority != nil {
		m.priority.kind = kind
		return m.priority.promise
	}
	m.priority = &priorityCommand{kind: kind, promise: newPromise()}
	return m.priority.promise
}

// submitSeek coalesces seek requests: a queued operation has its target
// and mode updated in place and the caller shares the pending promise.
func (m *commandManager) submitSeek(target time.Duration, mode seekMode) *Promise {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.e.disposed.Load() {
		return completedPromise(ErrCommandRejected)
	}
	if !m.e.Status().IsOpen() {
		return completedPromise(ErrNoMedia)
	}
	if m.seek != nil {
		m.seek.update(target, mode)
		return m.seek.promise
	}
	op := newSeekOperation(target, mode)
	m.seek = op
	return op.promise
}

// submitSpeedRatio coalesces speed changes like seeks: latest ratio wins.
func (m *commandManager) submitSpeedRatio(ratio float64) *Promise {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.e.disposed.Load() {
		return completedPromise(ErrCommandRejected)
	}
	if !m.e.Status().IsOpen() {
		return completedPromise(ErrNoMedia)
	}
	if m.speed != nil {
		m.speed.ratio = ratio
		return m.speed.promise
	}
	m.speed = &speedRequest{ratio: ratio, promise: newPromise()}
	return m.speed.promise
}

func (m *commandManager) isSeekingNow() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isSeeking || m.seek != nil
}

// Cycle control

func (m *commandManager) startCycle() {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.cycleDone = make(chan struct{})
	go m.run(m.stopCh, m.cycleDone)
}

func (m *commandManager) stopCycle() {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()
	if !m.running {
		return
	}
	close(m.stopCh)
	<-m.cycleDone
	m.running = false
}

func (m *commandManager) run(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.e.opts.CommandInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.cycle()
		}
	}
}

// cycle is one tick of the command manager: drain the priority slot
// first (full exclusivity), otherwise execute the queued seek, and once
// no seek remains queued finalize the seek bookkeeping. Speed changes
// drain last.
func (m *commandManager) cycle() {
	m.mu.Lock()
	pc := m.priority
	m.priority = nil
	m.mu.Unlock()
	if pc != nil {
		m.executePriority(pc)
		return
	}

	m.mu.Lock()
	op := m.seek
	m.seek = nil
	seeking := m.isSeeking
	m.mu.Unlock()
	if op != nil {
		m.executeSeek(op)
		return
	}
	if seeking {
		m.finalizeSeek()
	}

	m.drainSpeedRatio()
}

// executePriority runs a Play/Pause/Stop with the whole pipeline
// quiesced. Any pending or in-flight seek burst is superseded.
func (m *commandManager) executePriority(pc *priorityCommand) {
	e := m.e
	ws := e.workerSet()
	if ws != nil {
		ws.pauseAll()
		defer ws.resumeAll()
	}

	m.clearSeekState()

	var err error
	switch pc.kind {
	case cmdPlay:
		err = m.doPlay()
	case cmdPause:
		err = m.doPause()
	case cmdStop:
		err = m.doStop()
	default:
		err = ErrCommandRejected
	}
	pc.promise.complete(err)
}

// clearSeekState drops any queued seek and closes an in-flight seek
// burst, completing the orphaned promise at the current position.
func (m *commandManager) clearSeekState() {
	e := m.e
	m.mu.Lock()
	op := m.seek
	m.seek = nil
	wasSeeking := m.isSeeking
	m.isSeeking = false
	m.mu.Unlock()

	if op != nil {
		op.promise.completeSeek(SeekResult{Position: e.clock.Position()}, nil)
	}
	if wasSeeking {
		e.emitSeekingEnded()
	}
}

func (m *commandManager) doPlay() error {
	e := m.e
	if e.Status() == StatusPlaying {
		return nil
	}
	// Replay from the start when the previous playback ran to the end.
	if e.endFired {
		res := m.seekCore(newSeekOperation(0, seekStop))
		e.clock.SetPosition(res.Position)
		e.endFired = false
	}
	e.clock.Play()
	for _, r := range e.renderersSnapshot() {
		r.OnPlay()
	}
	e.setStatus(StatusPlaying)
	e.emitPosition(e.clock.Position())
	return nil
}

func (m *commandManager) doPause() error {
	e := m.e
	if e.Status() != StatusPlaying {
		return nil
	}
	e.clock.Pause()

	// Snap the reported position to the covering block's boundary.
	if mainBuf := e.mainBuffer(); mainBuf != nil {
		pos := e.clock.Position()
		if blk := mainBuf.At(pos); blk != nil && blk.Contains(pos) {
			e.clock.SetPosition(blk.StartTime())
		}
	}
	for _, r := range e.renderersSnapshot() {
		r.OnPause()
	}
	e.setStatus(StatusPaused)
	e.emitPosition(e.clock.Position())
	return nil
}

func (m *commandManager) doStop() error {
	e := m.e
	e.clock.Pause()
	res := m.seekCore(newSeekOperation(0, seekStop))
	e.clock.SetPosition(res.Position)
	e.endFired = false
	for _, r := range e.renderersSnapshot() {
		r.OnStop()
	}
	e.setStatus(StatusStopped)
	e.emitPosition(e.clock.Position())
	return nil
}

// finalizeSeek runs once the seek queue has drained: resume the paused
// workers, restore the play/pause state captured at the start of the
// burst, and fire the seeking-ended notification.
func (m *commandManager) finalizeSeek() {
	e := m.e

	m.mu.Lock()
	if m.seek != nil {
		// Another seek arrived between cycles; keep the burst open.
		m.mu.Unlock()
		return
	}
	m.isSeeking = false
	play := m.playAfterSeek
	m.mu.Unlock()

	if ws := e.workerSet(); ws != nil {
		ws.resumeAll()
	}
	if play {
		e.clock.Play()
	}
	e.emitSeekingEnded()
	e.emitPosition(e.clock.Position())
}

func (m *commandManager) drainSpeedRatio() {
	m.mu.Lock()
	sp := m.speed
	m.speed = nil
	m.mu.Unlock()
	if sp == nil {
		return
	}
	m.e.clock.SetSpeedRatio(sp.ratio)
	sp.promise.complete(nil)
}

// forceCompletePending completes all outstanding slot state. Called on
// close and shutdown so no caller is left waiting on a promise.
func (m *commandManager) forceCompletePending() {
	e := m.e
	m.mu.Lock()
	pc := m.priority
	m.priority = nil
	op := m.seek
	m.seek = nil
	sp := m.speed
	m.speed = nil
	wasSeeking := m.isSeeking
	m.isSeeking = false
	m.mu.Unlock()

	if pc != nil {
		pc.promise.complete(ErrCommandRejected)
	}
	if op != nil {
		op.promise.completeSeek(SeekResult{Position: e.clock.Position()}, ErrCommandRejected)
	}
	if sp != nil {
		sp.promise.complete(ErrCommandRejected)
	}
	if wasSeeking {
		e.emitSeekingEnded()
	}
}
