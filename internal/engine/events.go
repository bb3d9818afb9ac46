package engine

import "time"

// StateChange is emitted when the playback status changes.
type StateChange struct {
	Previous Status
	Current  Status
}

// MediaOpen is emitted when a media source finishes opening.
type MediaOpen struct {
	URI      string
	Duration time.Duration
}

// PositionChange is emitted by the rendering worker as the clock advances
// and immediately after a seek lands on its first available block.
type PositionChange struct {
	Position time.Duration
}

// ErrorEvent is emitted when a recoverable fault occurs in the pipeline.
// Fatal open failures surface on the command's promise instead.
type ErrorEvent struct {
	Op  string // e.g. "read", "seek"
	Err error
}
