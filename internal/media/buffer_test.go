package media

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func frameAt(start, dur time.Duration) *Frame {
	return &Frame{Type: TypeAudio, StartTime: start, Duration: dur}
}

// fill adds count blocks of dur each, starting at 0.
func fill(b *BlockBuffer, count int, dur time.Duration) {
	for i := range count {
		b.Add(frameAt(time.Duration(i)*dur, dur))
	}
}

func TestBlockBuffer_AddAndCount(t *testing.T) {
	b := NewBlockBuffer(TypeAudio, 4)

	assert.Equal(t, 0, b.Count())
	assert.False(t, b.IsFull())

	fill(b, 3, 100*time.Millisecond)

	assert.Equal(t, 3, b.Count())
	assert.False(t, b.IsFull())

	b.Add(frameAt(300*time.Millisecond, 100*time.Millisecond))
	assert.True(t, b.IsFull())
}

func TestBlockBuffer_EvictsOldestWhenFull(t *testing.T) {
	b := NewBlockBuffer(TypeAudio, 3)
	fill(b, 3, 100*time.Millisecond)

	b.Add(frameAt(300*time.Millisecond, 100*time.Millisecond))

	assert.Equal(t, 3, b.Count())
	assert.Equal(t, 100*time.Millisecond, b.RangeStartTime(), "oldest block should be evicted")
	assert.Equal(t, 400*time.Millisecond, b.RangeEndTime())
}

func TestBlockBuffer_Ranges(t *testing.T) {
	b := NewBlockBuffer(TypeAudio, 10)

	assert.Equal(t, time.Duration(0), b.RangeStartTime())
	assert.Equal(t, time.Duration(0), b.RangeEndTime())
	assert.Equal(t, time.Duration(0), b.RangeDuration())

	fill(b, 5, 100*time.Millisecond)

	assert.Equal(t, time.Duration(0), b.RangeStartTime())
	assert.Equal(t, 500*time.Millisecond, b.RangeEndTime())
	assert.Equal(t, 500*time.Millisecond, b.RangeDuration())
}

func TestBlockBuffer_IsInRange(t *testing.T) {
	b := NewBlockBuffer(TypeAudio, 10)
	assert.False(t, b.IsInRange(0), "empty buffer covers nothing")

	fill(b, 5, 100*time.Millisecond)

	assert.True(t, b.IsInRange(0))
	assert.True(t, b.IsInRange(250*time.Millisecond))
	assert.True(t, b.IsInRange(499*time.Millisecond))
	assert.False(t, b.IsInRange(500*time.Millisecond), "range end is exclusive")
	assert.False(t, b.IsInRange(-time.Millisecond))
}

func TestBlockBuffer_Monotonic(t *testing.T) {
	b := NewBlockBuffer(TypeAudio, 10)
	assert.True(t, b.IsMonotonic())

	fill(b, 3, 100*time.Millisecond)
	assert.True(t, b.IsMonotonic())

	// Out-of-order insert breaks monotonicity and triggers a re-sort.
	b.Add(frameAt(50*time.Millisecond, 100*time.Millisecond))
	assert.False(t, b.IsMonotonic())
	assert.Equal(t, time.Duration(0), b.RangeStartTime(), "blocks stay sorted")

	// Clear restores it.
	b.Clear()
	assert.True(t, b.IsMonotonic())
	assert.Equal(t, 0, b.Count())
}

func TestBlockBuffer_IndexOfAndAt(t *testing.T) {
	b := NewBlockBuffer(TypeAudio, 10)
	assert.Equal(t, -1, b.IndexOf(0))
	assert.Nil(t, b.At(0))

	fill(b, 5, 100*time.Millisecond)

	tests := []struct {
		pos  time.Duration
		want int
	}{
		{0, 0},
		{99 * time.Millisecond, 0},
		{100 * time.Millisecond, 1},
		{250 * time.Millisecond, 2},
		{450 * time.Millisecond, 4},
		// Out-of-range positions clamp to the nearest block.
		{-time.Second, 0},
		{time.Hour, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.IndexOf(tt.pos), "IndexOf(%v)", tt.pos)
		blk := b.At(tt.pos)
		if assert.NotNil(t, blk) {
			assert.Equal(t, time.Duration(tt.want)*100*time.Millisecond, blk.StartTime())
		}
	}
}

func TestBlockBuffer_Neighbors(t *testing.T) {
	b := NewBlockBuffer(TypeAudio, 10)
	fill(b, 3, 100*time.Millisecond)

	prev, cur, next := b.Neighbors(150 * time.Millisecond)
	if assert.NotNil(t, prev) {
		assert.Equal(t, time.Duration(0), prev.StartTime())
	}
	if assert.NotNil(t, cur) {
		assert.Equal(t, 100*time.Millisecond, cur.StartTime())
	}
	if assert.NotNil(t, next) {
		assert.Equal(t, 200*time.Millisecond, next.StartTime())
	}

	// At the very start there is no previous block.
	prev, cur, next = b.Neighbors(0)
	assert.Nil(t, prev)
	if assert.NotNil(t, cur) {
		assert.Equal(t, time.Duration(0), cur.StartTime())
	}
	if assert.NotNil(t, next) {
		assert.Equal(t, 100*time.Millisecond, next.StartTime())
	}

	// Past the end there is no current or next block.
	prev, cur, next = b.Neighbors(time.Hour)
	if assert.NotNil(t, prev) {
		assert.Equal(t, 200*time.Millisecond, prev.StartTime())
	}
	assert.Nil(t, cur)
	assert.Nil(t, next)
}

func TestBlockBuffer_NeighborsGap(t *testing.T) {
	b := NewBlockBuffer(TypeAudio, 10)
	b.Add(frameAt(0, 100*time.Millisecond))
	b.Add(frameAt(500*time.Millisecond, 100*time.Millisecond))

	prev, cur, next := b.Neighbors(300 * time.Millisecond)
	if assert.NotNil(t, prev) {
		assert.Equal(t, time.Duration(0), prev.StartTime())
	}
	assert.Nil(t, cur, "a position in a gap has no covering block")
	if assert.NotNil(t, next) {
		assert.Equal(t, 500*time.Millisecond, next.StartTime())
	}
}

func TestBlockBuffer_AverageBlockDuration(t *testing.T) {
	b := NewBlockBuffer(TypeAudio, 10)
	assert.Equal(t, time.Duration(0), b.AverageBlockDuration())

	b.Add(frameAt(0, 100*time.Millisecond))
	b.Add(frameAt(100*time.Millisecond, 200*time.Millisecond))

	assert.Equal(t, 150*time.Millisecond, b.AverageBlockDuration())
}

func TestBlockBuffer_MonotonicDuration(t *testing.T) {
	b := NewBlockBuffer(TypeAudio, 10)
	assert.Equal(t, time.Duration(0), b.MonotonicDuration())

	fill(b, 3, 100*time.Millisecond)
	assert.Equal(t, 100*time.Millisecond, b.MonotonicDuration())

	b.Add(frameAt(300*time.Millisecond, 50*time.Millisecond))
	assert.Equal(t, time.Duration(0), b.MonotonicDuration(), "mixed durations yield 0")
}

func TestBlock_Contains(t *testing.T) {
	b := NewBlockBuffer(TypeAudio, 4)
	blk := b.Add(frameAt(time.Second, 100*time.Millisecond))

	assert.True(t, blk.Contains(time.Second))
	assert.True(t, blk.Contains(time.Second+99*time.Millisecond))
	assert.False(t, blk.Contains(time.Second+100*time.Millisecond))
	assert.False(t, blk.Contains(999*time.Millisecond))
}
