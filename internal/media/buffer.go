package media

import (
	"sort"
	"sync"
	"time"
)

// BlockBuffer is a fixed-capacity, time-ordered collection of blocks for
// one media type. Frames are converted to blocks on Add; when the buffer
// is full the oldest block is evicted first. Under normal (non-seek)
// playback blocks arrive in non-decreasing start-time order, which the
// buffer tracks via IsMonotonic.
type BlockBuffer struct {
	mu        sync.RWMutex
	mediaType Type
	capacity  int
	blocks    []*Block

	monotonic bool
	lastStart time.Duration
	hasBlocks bool
}

// NewBlockBuffer creates a buffer holding at most capacity blocks.
func NewBlockBuffer(mediaType Type, capacity int) *BlockBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &BlockBuffer{
		mediaType: mediaType,
		capacity:  capacity,
		blocks:    make([]*Block, 0, capacity),
		monotonic: true,
	}
}

// MediaType returns the buffer's stream kind.
func (b *BlockBuffer) MediaType() Type { return b.mediaType }

// Capacity returns the maximum number of blocks the buffer holds.
func (b *BlockBuffer) Capacity() int { return b.capacity }

// Add converts a decoded frame to a block and appends it, evicting the
// oldest block when at capacity. Returns the added block.
func (b *BlockBuffer) Add(f *Frame) *Block {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.hasBlocks && f.StartTime < b.lastStart {
		b.monotonic = false
	}
	b.lastStart = f.StartTime
	b.hasBlocks = true

	block := newBlock(f)
	if len(b.blocks) >= b.capacity {
		// Evict oldest first.
		copy(b.blocks, b.blocks[1:])
		b.blocks[len(b.blocks)-1] = block
	} else {
		b.blocks = append(b.blocks, block)
	}

	// Keep the collection ordered by start time even if a frame arrived
	// out of order (e.g. right after a seek).
	if !b.monotonic {
		sort.SliceStable(b.blocks, func(i, j int) bool {
			return b.blocks[i].startTime < b.blocks[j].startTime
		})
	}
	return block
}

// Clear removes all blocks and resets the monotonic tracking.
func (b *BlockBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blocks = b.blocks[:0]
	b.monotonic = true
	b.hasBlocks = false
	b.lastStart = 0
}

// Count returns the number of buffered blocks.
func (b *BlockBuffer) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.blocks)
}

// IsFull reports whether the buffer holds capacity blocks.
func (b *BlockBuffer) IsFull() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.blocks) >= b.capacity
}

// IsMonotonic reports whether all blocks were inserted in non-decreasing
// start-time order since the last Clear. Seek heuristics that assume a
// contiguous buffer only apply when this holds.
func (b *BlockBuffer) IsMonotonic() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.monotonic
}

// RangeStartTime returns the start time of the oldest block, or 0 when empty.
func (b *BlockBuffer) RangeStartTime() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.blocks) == 0 {
		return 0
	}
	return b.blocks[0].startTime
}

// RangeEndTime returns the end time of the newest block, or 0 when empty.
func (b *BlockBuffer) RangeEndTime() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.blocks) == 0 {
		return 0
	}
	return b.blocks[len(b.blocks)-1].EndTime()
}

// RangeDuration returns the time span covered by the buffered blocks.
func (b *BlockBuffer) RangeDuration() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.blocks) == 0 {
		return 0
	}
	return b.blocks[len(b.blocks)-1].EndTime() - b.blocks[0].startTime
}

// AverageBlockDuration returns the mean duration of the buffered blocks.
func (b *BlockBuffer) AverageBlockDuration() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.blocks) == 0 {
		return 0
	}
	var total time.Duration
	for _, blk := range b.blocks {
		total += blk.duration
	}
	return total / time.Duration(len(b.blocks))
}

// MonotonicDuration returns the common block duration when every buffered
// block has the same duration, and 0 otherwise.
func (b *BlockBuffer) MonotonicDuration() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.blocks) == 0 {
		return 0
	}
	d := b.blocks[0].duration
	for _, blk := range b.blocks[1:] {
		if blk.duration != d {
			return 0
		}
	}
	return d
}

// IsInRange reports whether t falls within the buffered time span.
func (b *BlockBuffer) IsInRange(t time.Duration) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.blocks) == 0 {
		return false
	}
	return t >= b.blocks[0].startTime && t < b.blocks[len(b.blocks)-1].EndTime()
}

// IndexOf returns the index of the block covering t, or the nearest block
// when no block covers it. Returns -1 when the buffer is empty.
func (b *BlockBuffer) IndexOf(t time.Duration) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.indexOfLocked(t)
}

func (b *BlockBuffer) indexOfLocked(t time.Duration) int {
	n := len(b.blocks)
	if n == 0 {
		return -1
	}
	if t < b.blocks[0].startTime {
		return 0
	}
	if t >= b.blocks[n-1].startTime {
		return n - 1
	}
	// Greatest index whose start time is <= t.
	i := sort.Search(n, func(i int) bool {
		return b.blocks[i].startTime > t
	})
	return i - 1
}

// At returns the block covering t, or the nearest block when none covers
// it. Returns nil when the buffer is empty.
func (b *BlockBuffer) At(t time.Duration) *Block {
	b.mu.RLock()
	defer b.mu.RUnlock()
	i := b.indexOfLocked(t)
	if i < 0 {
		return nil
	}
	return b.blocks[i]
}

// Neighbors returns the blocks around t: the block strictly before it,
// the block covering it (nil when t falls in a gap) and the block
// strictly after it. Used by step-seeking to pick a discrete target.
func (b *BlockBuffer) Neighbors(t time.Duration) (previous, current, next *Block) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, blk := range b.blocks {
		if blk.EndTime() <= t {
			previous = blk
			continue
		}
		if blk.Contains(t) {
			current = blk
			continue
		}
		if blk.startTime > t {
			next = blk
			break
		}
	}
	return previous, current, next
}
