// Package container abstracts the demuxer/decoder feeding the playback
// engine. A container demultiplexes packets on Read, decodes them into
// frames queued on per-media-type components, and supports seeking and
// cooperative read aborting.
package container

import (
	"errors"
	"sync"
	"time"

	"github.com/lmoreau/ripple/internal/media"
)

// ErrReadAborted is returned by Read after SignalAbortReads(true).
var ErrReadAborted = errors.New("container: read aborted")

// Container is the demuxer/decoder contract consumed by the engine.
type Container interface {
	// URI returns the media source location.
	URI() string

	// Duration returns the total media duration, or 0 when unknown.
	Duration() time.Duration

	// Components returns the per-media-type decoded frame queues.
	Components() *ComponentSet

	// Read demultiplexes and decodes the next packet, enqueueing the
	// resulting frame on its component. It returns the media type the
	// packet belonged to, io.EOF at end of stream, or ErrReadAborted
	// after SignalAbortReads(true).
	Read() (media.Type, error)

	// Seek repositions the demuxer near target and returns the first
	// frame decoded at the new position, or nil when none is available.
	Seek(target time.Duration) (*media.Frame, error)

	// SignalAbortReads makes in-flight and subsequent Read calls return
	// ErrReadAborted until cleared. Cooperative cancellation only.
	SignalAbortReads(abort bool)

	// IsAtEndOfStream reports whether the demuxer has exhausted packets.
	IsAtEndOfStream() bool

	// Close releases the underlying resources.
	Close() error
}

// Component buffers decoded frames for one media type between the
// packet-reading and frame-decoding workers.
type Component struct {
	mediaType media.Type
	mu        sync.Mutex
	frames    []*media.Frame
}

// NewComponent creates an empty component for the given media type.
func NewComponent(t media.Type) *Component {
	return &Component{mediaType: t}
}

// MediaType returns the component's stream kind.
func (c *Component) MediaType() media.Type { return c.mediaType }

// EnqueueFrame appends a decoded frame to the component queue.
func (c *Component) EnqueueFrame(f *media.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
}

// ReceiveNextFrame dequeues the oldest decoded frame, or nil when the
// queue is empty.
func (c *Component) ReceiveNextFrame() *media.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 {
		return nil
	}
	f := c.frames[0]
	c.frames = c.frames[1:]
	return f
}

// BufferedCount returns the number of queued frames.
func (c *Component) BufferedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

// Clear drops all queued frames.
func (c *Component) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

// ComponentSet holds the container's components indexed by media type.
// The main component governs buffering and seeking decisions: video when
// present, else audio, else the first available type.
type ComponentSet struct {
	components map[media.Type]*Component
	mainType   media.Type
}

// NewComponentSet creates components for the given media types.
func NewComponentSet(types ...media.Type) *ComponentSet {
	s := &ComponentSet{components: make(map[media.Type]*Component, len(types))}
	for _, t := range types {
		s.components[t] = NewComponent(t)
	}
	switch {
	case s.components[media.TypeVideo] != nil:
		s.mainType = media.TypeVideo
	case s.components[media.TypeAudio] != nil:
		s.mainType = media.TypeAudio
	default:
		for _, t := range types {
			s.mainType = t
			break
		}
	}
	return s
}

// MediaTypes returns the available media types.
func (s *ComponentSet) MediaTypes() []media.Type {
	types := make([]media.Type, 0, len(s.components))
	for _, t := range []media.Type{media.TypeVideo, media.TypeAudio, media.TypeSubtitle} {
		if _, ok := s.components[t]; ok {
			types = append(types, t)
		}
	}
	return types
}

// MainType returns the media type of the main component.
func (s *ComponentSet) MainType() media.Type { return s.mainType }

// Main returns the main component.
func (s *ComponentSet) Main() *Component { return s.components[s.mainType] }

// Get returns the component for the given media type, or nil.
func (s *ComponentSet) Get(t media.Type) *Component { return s.components[t] }

// ClearAll drops the queued frames of every component.
func (s *ComponentSet) ClearAll() {
	for _, c := range s.components {
		c.Clear()
	}
}
