package engine

// Status represents the engine's playback state.
//
// Valid transitions:
//   - Closed  → Opening (via Open)
//   - Opening → Stopped (open succeeded)
//   - Opening → Closed  (open failed or was interrupted by Close)
//   - Stopped → Playing (via Play)
//   - Playing → Paused  (via Pause)
//   - Playing → Stopped (via Stop, or end of media)
//   - Paused  → Playing (via Play)
//   - Paused  → Stopped (via Stop)
//   - any     → Closed  (via Close/Shutdown)
//
// Seeking is not a status: it is tracked separately so the play/pause
// state can be restored once the seek queue drains.
type Status int

const (
	StatusClosed Status = iota
	StatusOpening
	StatusStopped
	StatusPlaying
	StatusPaused
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusClosed:
		return "Closed"
	case StatusOpening:
		return "Opening"
	case StatusStopped:
		return "Stopped"
	case StatusPlaying:
		return "Playing"
	case StatusPaused:
		return "Paused"
	default:
		return "Unknown"
	}
}

// IsOpen reports whether media is open (any status past Opening).
func (s Status) IsOpen() bool {
	return s == StatusStopped || s == StatusPlaying || s == StatusPaused
}
