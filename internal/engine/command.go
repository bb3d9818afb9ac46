package engine

import (
	"errors"
	"sync"
	"time"
)

// Rejection sentinels. Commands never queue behind a conflicting
// exclusive operation: they fail fast with one of these.
var (
	// ErrCommandRejected is returned when a conflicting exclusive
	// command is already active, or the engine is shutting down.
	ErrCommandRejected = errors.New("engine: command rejected")

	// ErrNoMedia is returned for transport commands when no media is open.
	ErrNoMedia = errors.New("engine: no media open")

	// ErrMediaAlreadyOpen is returned by Open when media is already open.
	ErrMediaAlreadyOpen = errors.New("engine: media already open")

	// ErrOpenAborted is returned by Open when it was interrupted by Close.
	ErrOpenAborted = errors.New("engine: open aborted")
)

// commandType identifies a transport command. The set is closed: the
// command manager dispatches on it with a single switch.
type commandType int

const (
	cmdOpen commandType = iota
	cmdClose
	cmdChange
	cmdPlay
	cmdPause
	cmdStop
	cmdSeek
	cmdStepForward
	cmdStepBackward
	cmdSpeedRatio
)

// String returns the command name.
func (t commandType) String() string {
	switch t {
	case cmdOpen:
		return "Open"
	case cmdClose:
		return "Close"
	case cmdChange:
		return "Change"
	case cmdPlay:
		return "Play"
	case cmdPause:
		return "Pause"
	case cmdStop:
		return "Stop"
	case cmdSeek:
		return "Seek"
	case cmdStepForward:
		return "StepForward"
	case cmdStepBackward:
		return "StepBackward"
	case cmdSpeedRatio:
		return "SpeedRatio"
	default:
		return "Unknown"
	}
}

// SeekResult reports where a seek actually landed. Recoverable seek
// faults (target past end of stream, read errors while repopulating)
// clamp the position instead of failing the command.
type SeekResult struct {
	Position      time.Duration
	ReachedTarget bool
}

// Promise is the completion future returned by every engine command.
// Submission is asynchronous: the command manager's cycle (or a direct
// command goroutine) completes the promise once the command has run.
type Promise struct {
	once sync.Once
	done chan struct{}
	err  error
	seek *SeekResult
}

func newPromise() *Promise {
	return &Promise{done: make(chan struct{})}
}

// completedPromise returns an already-completed promise, used for
// immediate rejections.
func completedPromise(err error) *Promise {
	p := newPromise()
	p.complete(err)
	return p
}

func (p *Promise) complete(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

func (p *Promise) completeSeek(result SeekResult, err error) {
	p.once.Do(func() {
		p.seek = &result
		p.err = err
		close(p.done)
	})
}

// Done returns a channel closed when the command has completed.
func (p *Promise) Done() <-chan struct{} { return p.done }

// Wait blocks until the command completes and returns its error.
func (p *Promise) Wait() error {
	<-p.done
	return p.err
}

// Err returns the command's error without blocking. Only meaningful
// after Done is closed.
func (p *Promise) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// SeekResult returns where a seek command landed, or nil for non-seek
// commands or seeks that have not completed yet.
func (p *Promise) SeekResult() *SeekResult {
	select {
	case <-p.done:
		return p.seek
	default:
		return nil
	}
}
