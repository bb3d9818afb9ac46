package container

import (
	"io"
	"sync"
	"time"

	"github.com/lmoreau/ripple/internal/media"
)

// Mock is a test double for Container backed by a synthetic timeline of
// fixed-duration frames.
type Mock struct {
	mu         sync.Mutex
	uri        string
	frameDur   time.Duration
	duration   time.Duration
	components *ComponentSet

	position  time.Duration
	aborted   bool
	closed    bool
	seekCalls []time.Duration
	readCalls int

	// When set, Read blocks until SignalAbortReads(true) is called.
	// Simulates a stalled network source for open-interruption tests.
	blockReads bool
	abortCh    chan struct{}

	// When set, Seek blocks until released via HoldSeeks. Simulates a
	// slow demuxer repositioning for command-exclusivity tests.
	seekGate    chan struct{}
	seekEntered chan struct{}
}

// Verify Mock implements Container at compile time.
var _ Container = (*Mock)(nil)

// NewMock creates a mock audio container producing duration/frameDur
// sequential frames.
func NewMock(uri string, duration, frameDur time.Duration) *Mock {
	return &Mock{
		uri:        uri,
		frameDur:   frameDur,
		duration:   duration,
		components: NewComponentSet(media.TypeAudio),
		abortCh:    make(chan struct{}),
	}
}

func (m *Mock) URI() string               { return m.uri }
func (m *Mock) Duration() time.Duration   { return m.duration }
func (m *Mock) Components() *ComponentSet { return m.components }

func (m *Mock) Read() (media.Type, error) {
	m.mu.Lock()
	if m.aborted {
		m.mu.Unlock()
		return media.TypeNone, ErrReadAborted
	}
	if m.blockReads {
		ch := m.abortCh
		m.mu.Unlock()
		<-ch
		return media.TypeNone, ErrReadAborted
	}
	defer m.mu.Unlock()

	m.readCalls++
	if m.position >= m.duration {
		return media.TypeNone, io.EOF
	}
	f := &media.Frame{
		Type:      media.TypeAudio,
		StartTime: m.position,
		Duration:  m.frameDur,
	}
	m.position += m.frameDur
	m.components.Get(media.TypeAudio).EnqueueFrame(f)
	return media.TypeAudio, nil
}

func (m *Mock) Seek(target time.Duration) (*media.Frame, error) {
	m.mu.Lock()
	gate, entered := m.seekGate, m.seekEntered
	m.mu.Unlock()
	if gate != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.seekCalls = append(m.seekCalls, target)
	target = max(target, 0)
	target = min(target, m.duration-m.frameDur)
	// Snap to the frame grid like a real demuxer lands on packet bounds.
	m.position = target - target%m.frameDur
	f := &media.Frame{
		Type:      media.TypeAudio,
		StartTime: m.position,
		Duration:  m.frameDur,
	}
	m.position += m.frameDur
	return f, nil
}

func (m *Mock) SignalAbortReads(abort bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aborted = abort
	if abort {
		select {
		case <-m.abortCh:
		default:
			close(m.abortCh)
		}
	} else {
		m.abortCh = make(chan struct{})
	}
}

func (m *Mock) IsAtEndOfStream() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position >= m.duration
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Test helpers

// SetBlockReads makes Read block until reads are aborted.
func (m *Mock) SetBlockReads(block bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blockReads = block
}

// HoldSeeks makes subsequent Seek calls block until release is called.
// The entered channel receives once a held Seek has reached the
// container. release is idempotent.
func (m *Mock) HoldSeeks() (entered <-chan struct{}, release func()) {
	gate := make(chan struct{})
	ent := make(chan struct{}, 1)
	m.mu.Lock()
	m.seekGate = gate
	m.seekEntered = ent
	m.mu.Unlock()

	var once sync.Once
	return ent, func() {
		once.Do(func() {
			m.mu.Lock()
			if m.seekGate == gate {
				m.seekGate = nil
			}
			m.mu.Unlock()
			close(gate)
		})
	}
}

// SeekCalls returns the targets passed to Seek.
func (m *Mock) SeekCalls() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.seekCalls...)
}

// ReadCalls returns the number of Read invocations.
func (m *Mock) ReadCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readCalls
}

// IsClosed reports whether Close was called.
func (m *Mock) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
