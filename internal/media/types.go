// Package media defines the decoded media units flowing through the
// playback pipeline: frames handed back by the container and the
// time-ordered block buffers the engine renders from.
package media

import "time"

// Type identifies a media stream kind.
type Type int

const (
	TypeNone Type = iota
	TypeAudio
	TypeVideo
	TypeSubtitle
)

// String returns the media type name.
func (t Type) String() string {
	switch t {
	case TypeAudio:
		return "Audio"
	case TypeVideo:
		return "Video"
	case TypeSubtitle:
		return "Subtitle"
	case TypeNone:
		return "None"
	default:
		return "Unknown"
	}
}

// Frame is one decoded unit handed back by a container component.
// Audio frames carry PCM samples; other types carry an opaque payload.
type Frame struct {
	Type      Type
	StartTime time.Duration
	Duration  time.Duration

	// Samples holds decoded stereo PCM for audio frames.
	Samples [][2]float64

	// Data holds the payload for non-audio frames.
	Data []byte
}

// EndTime returns the presentation end time of the frame.
func (f *Frame) EndTime() time.Duration {
	return f.StartTime + f.Duration
}
