package engine

import "time"

const eventBufferSize = 16

// Subscription provides event channels for a subscriber. Events are
// dropped rather than blocking the pipeline when a subscriber lags.
type Subscription struct {
	StateChanged    <-chan StateChange
	Opened          <-chan MediaOpen
	Closed          <-chan struct{}
	PositionChanged <-chan PositionChange
	SeekingStarted  <-chan struct{}
	SeekingEnded    <-chan struct{}
	MediaEnded      <-chan struct{}
	Error           <-chan ErrorEvent
	Done            <-chan struct{}

	// Internal write channels
	stateCh    chan StateChange
	openedCh   chan MediaOpen
	closedCh   chan struct{}
	positionCh chan PositionChange
	seekStart  chan struct{}
	seekEnd    chan struct{}
	endedCh    chan struct{}
	errorCh    chan ErrorEvent
	doneCh     chan struct{}
}

// newSubscription creates a new subscription with buffered channels.
func newSubscription() *Subscription {
	s := &Subscription{
		stateCh:    make(chan StateChange, eventBufferSize),
		openedCh:   make(chan MediaOpen, eventBufferSize),
		closedCh:   make(chan struct{}, eventBufferSize),
		positionCh: make(chan PositionChange, eventBufferSize),
		seekStart:  make(chan struct{}, eventBufferSize),
		seekEnd:    make(chan struct{}, eventBufferSize),
		endedCh:    make(chan struct{}, eventBufferSize),
		errorCh:    make(chan ErrorEvent, eventBufferSize),
		doneCh:     make(chan struct{}),
	}
	s.StateChanged = s.stateCh
	s.Opened = s.openedCh
	s.Closed = s.closedCh
	s.PositionChanged = s.positionCh
	s.SeekingStarted = s.seekStart
	s.SeekingEnded = s.seekEnd
	s.MediaEnded = s.endedCh
	s.Error = s.errorCh
	s.Done = s.doneCh
	return s
}

// close signals subscribers to stop by closing doneCh.
func (s *Subscription) close() {
	close(s.doneCh)
}

func (s *Subscription) sendState(e StateChange) {
	select {
	case s.stateCh <- e:
	default:
		// Drop if buffer full
	}
}

func (s *Subscription) sendOpened(e MediaOpen) {
	select {
	case s.openedCh <- e:
	default:
	}
}

func (s *Subscription) sendClosed() {
	select {
	case s.closedCh <- struct{}{}:
	default:
	}
}

func (s *Subscription) sendPosition(pos time.Duration) {
	select {
	case s.positionCh <- PositionChange{Position: pos}:
	default:
	}
}

func (s *Subscription) sendSeekingStarted() {
	select {
	case s.seekStart <- struct{}{}:
	default:
	}
}

func (s *Subscription) sendSeekingEnded() {
	select {
	case s.seekEnd <- struct{}{}:
	default:
	}
}

func (s *Subscription) sendMediaEnded() {
	select {
	case s.endedCh <- struct{}{}:
	default:
	}
}

func (s *Subscription) sendError(e ErrorEvent) {
	select {
	case s.errorCh <- e:
	default:
	}
}
