package media

import "time"

// Block is one decoded, time-stamped unit of media ready for rendering.
// Blocks are immutable once added to a BlockBuffer and live until the
// buffer evicts or clears them.
type Block struct {
	mediaType Type
	startTime time.Duration
	duration  time.Duration
	samples   [][2]float64
	data      []byte
}

func newBlock(f *Frame) *Block {
	return &Block{
		mediaType: f.Type,
		startTime: f.StartTime,
		duration:  f.Duration,
		samples:   f.Samples,
		data:      f.Data,
	}
}

// MediaType returns the block's stream kind.
func (b *Block) MediaType() Type { return b.mediaType }

// StartTime returns the presentation start time.
func (b *Block) StartTime() time.Duration { return b.startTime }

// Duration returns the presentation duration.
func (b *Block) Duration() time.Duration { return b.duration }

// EndTime returns the presentation end time.
func (b *Block) EndTime() time.Duration { return b.startTime + b.duration }

// Samples returns the decoded PCM payload (audio blocks).
func (b *Block) Samples() [][2]float64 { return b.samples }

// Data returns the opaque payload (non-audio blocks).
func (b *Block) Data() []byte { return b.data }

// Contains reports whether t falls within [StartTime, EndTime).
func (b *Block) Contains(t time.Duration) bool {
	return t >= b.startTime && t < b.EndTime()
}
