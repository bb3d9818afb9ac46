// Package clock provides the speed-adjustable, pausable virtual time
// source representing the current playback position.
package clock

import (
	"sync"
	"time"
)

// Clock maps elapsed wall time times a speed ratio onto a playback
// position. All mutations and the position read share one lock so a
// concurrent pause or speed change can never produce a torn read.
type Clock struct {
	mu         sync.Mutex
	isRunning  bool
	offset     time.Duration
	startedAt  time.Time
	speedRatio float64
}

// New creates a stopped clock at position zero with speed ratio 1.
func New() *Clock {
	return &Clock{speedRatio: 1.0}
}

// Play resumes the clock if paused.
func (c *Clock) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isRunning {
		return
	}
	c.startedAt = time.Now()
	c.isRunning = true
}

// Pause stops the clock from elapsing, preserving the current position.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isRunning {
		return
	}
	c.offset = c.positionLocked()
	c.isRunning = false
}

// Reset returns the clock to position zero, paused.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = 0
	c.isRunning = false
}

// IsRunning reports whether the clock is elapsing.
func (c *Clock) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isRunning
}

// Position returns the current playback position.
func (c *Clock) Position() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positionLocked()
}

func (c *Clock) positionLocked() time.Duration {
	if !c.isRunning {
		return c.offset
	}
	elapsed := time.Since(c.startedAt)
	return c.offset + time.Duration(float64(elapsed)*c.speedRatio)
}

// SetPosition moves the clock to the given position. A running clock
// stays running: the wall-clock base is rebased and elapsing continues
// from the new position.
func (c *Clock) SetPosition(pos time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = pos
	if c.isRunning {
		c.startedAt = time.Now()
	}
}

// SpeedRatio returns the current speed ratio.
func (c *Clock) SpeedRatio() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speedRatio
}

// SetSpeedRatio changes the playback speed. Values below 0 are clamped
// to 0, not rejected. The position is rebased first so already-elapsed
// time keeps the old ratio.
func (c *Clock) SetSpeedRatio(ratio float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ratio < 0 {
		ratio = 0
	}
	c.offset = c.positionLocked()
	c.startedAt = time.Now()
	c.speedRatio = ratio
}
