package engine

import (
	"testing"
	"time"
)

func seekAndWait(t *testing.T, e *Engine, target time.Duration) SeekResult {
	t.Helper()
	p := e.Seek(target)
	e.cmds.cycle()
	if err := p.Wait(); err != nil {
		t.Fatalf("Seek(%v) error = %v", target, err)
	}
	res := p.SeekResult()
	if res == nil {
		t.Fatalf("Seek(%v) completed without a result", target)
	}
	return *res
}

func TestSeek_FastPath(t *testing.T) {
	e, mock := newTestEngine(t, 10*time.Second, 100*time.Millisecond)
	mustOpen(t, e, "mock://test")

	// The prefilled buffer covers the target: no container repositioning.
	res := seekAndWait(t, e, 200*time.Millisecond)

	if !res.ReachedTarget {
		t.Error("ReachedTarget = false, want true")
	}
	if res.Position != 200*time.Millisecond {
		t.Errorf("Position = %v, want 200ms", res.Position)
	}
	if calls := mock.SeekCalls(); len(calls) != 0 {
		t.Errorf("container seek calls = %v, want none on the fast path", calls)
	}
	if got := e.Position(); got != 200*time.Millisecond {
		t.Errorf("engine Position() = %v, want 200ms", got)
	}
}

func TestSeek_SlowPathWithSkew(t *testing.T) {
	e, mock := newTestEngine(t, 10*time.Second, 100*time.Millisecond)
	mustOpen(t, e, "mock://test")

	res := seekAndWait(t, e, 5*time.Second)

	if !res.ReachedTarget {
		t.Error("ReachedTarget = false, want true")
	}
	if res.Position != 5*time.Second {
		t.Errorf("Position = %v, want 5s", res.Position)
	}

	calls := mock.SeekCalls()
	if len(calls) != 1 {
		t.Fatalf("container seek calls = %d, want 1", len(calls))
	}
	// The decoder target is skewed back by half the buffered span so
	// blocks before the requested position get pre-filled.
	if calls[0] >= 5*time.Second {
		t.Errorf("container seek target = %v, want < 5s (skewed back)", calls[0])
	}

	mainBuf := e.mainBuffer()
	if !mainBuf.IsInRange(5 * time.Second) {
		t.Errorf("buffer range [%v, %v) does not cover the target",
			mainBuf.RangeStartTime(), mainBuf.RangeEndTime())
	}
	if mainBuf.RangeStartTime() >= 5*time.Second {
		t.Errorf("RangeStartTime() = %v, want < 5s (blocks before target)", mainBuf.RangeStartTime())
	}
}

func TestSeek_SlowPathSkewDisabled(t *testing.T) {
	e, mock := newTestEngine(t, 10*time.Second, 100*time.Millisecond)
	e.opts.DisableSeekSkew = true
	mustOpen(t, e, "mock://test")

	res := seekAndWait(t, e, 5*time.Second)

	if res.Position != 5*time.Second {
		t.Errorf("Position = %v, want 5s", res.Position)
	}
	calls := mock.SeekCalls()
	if len(calls) != 1 || calls[0] != 5*time.Second {
		t.Errorf("container seek calls = %v, want [5s]", calls)
	}
}

func TestSeek_Coalescing(t *testing.T) {
	e, mock := newTestEngine(t, 10*time.Second, 100*time.Millisecond)
	mustOpen(t, e, "mock://test")

	// A scrubber burst: three requests before the next cycle collapse
	// into one operation targeting the latest position.
	p1 := e.Seek(3 * time.Second)
	p2 := e.Seek(5 * time.Second)
	p3 := e.Seek(7 * time.Second)
	if p1 != p2 || p2 != p3 {
		t.Fatal("coalesced seeks should share one promise")
	}

	e.cmds.cycle()
	if err := p3.Wait(); err != nil {
		t.Fatalf("Seek() error = %v", err)
	}

	if calls := mock.SeekCalls(); len(calls) != 1 {
		t.Errorf("container seek calls = %d, want 1 for the whole burst", len(calls))
	}
	if res := p3.SeekResult(); res.Position != 7*time.Second {
		t.Errorf("Position = %v, want 7s (latest target wins)", res.Position)
	}
}

func TestSeek_ClampsPastEndOfStream(t *testing.T) {
	e, _ := newTestEngine(t, 10*time.Second, 100*time.Millisecond)
	mustOpen(t, e, "mock://test")

	res := seekAndWait(t, e, 20*time.Second)

	if res.ReachedTarget {
		t.Error("ReachedTarget = true, want false for a target past the end")
	}
	if res.Position != 10*time.Second {
		t.Errorf("Position = %v, want 10s (clamped to stream end)", res.Position)
	}
	if got := e.Position(); got != 10*time.Second {
		t.Errorf("engine Position() = %v, want 10s", got)
	}
}

func TestSeek_NegativeTargetClampsToZero(t *testing.T) {
	e, _ := newTestEngine(t, 10*time.Second, 100*time.Millisecond)
	mustOpen(t, e, "mock://test")

	res := seekAndWait(t, e, -5*time.Second)

	if res.Position != 0 {
		t.Errorf("Position = %v, want 0", res.Position)
	}
	if !res.ReachedTarget {
		t.Error("ReachedTarget = false, want true (0 is buffered)")
	}
}

func TestSeek_RestoresPlaybackAfterBurst(t *testing.T) {
	e, _ := newTestEngine(t, 10*time.Second, 100*time.Millisecond)
	mustOpen(t, e, "mock://test")

	p := e.Play()
	e.cmds.cycle()
	if err := p.Wait(); err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	seekAndWait(t, e, 5*time.Second)

	// The clock stays paused while the burst is open.
	if e.clock.IsRunning() {
		t.Error("clock should be paused during a seek burst")
	}
	if !e.IsSeeking() {
		t.Error("IsSeeking() = false, want true before finalization")
	}

	// The empty cycle finalizes the burst and restores playback.
	e.cmds.cycle()
	if e.IsSeeking() {
		t.Error("IsSeeking() = true, want false after finalization")
	}
	if !e.clock.IsRunning() {
		t.Error("clock should resume after the burst (was playing)")
	}
	if got := e.Status(); got != StatusPlaying {
		t.Errorf("Status() = %v, want Playing", got)
	}
}

func TestSeek_SingleSeekingEventPairPerBurst(t *testing.T) {
	e, _ := newTestEngine(t, 10*time.Second, 100*time.Millisecond)
	mustOpen(t, e, "mock://test")
	sub := e.Subscribe()

	seekAndWait(t, e, 4*time.Second)
	seekAndWait(t, e, 6*time.Second)
	e.cmds.cycle() // finalize

	started, ended := 0, 0
	for {
		select {
		case <-sub.SeekingStarted:
			started++
			continue
		case <-sub.SeekingEnded:
			ended++
			continue
		default:
		}
		break
	}
	if started != 1 {
		t.Errorf("SeekingStarted events = %d, want 1 for the whole burst", started)
	}
	if ended != 1 {
		t.Errorf("SeekingEnded events = %d, want 1 for the whole burst", ended)
	}
}

func TestStepForward(t *testing.T) {
	e, _ := newTestEngine(t, 10*time.Second, 100*time.Millisecond)
	mustOpen(t, e, "mock://test")

	p := e.StepForward()
	e.cmds.cycle()
	if err := p.Wait(); err != nil {
		t.Fatalf("StepForward() error = %v", err)
	}

	if got := p.SeekResult().Position; got != 100*time.Millisecond {
		t.Errorf("Position = %v, want 100ms (next block boundary)", got)
	}
}

func TestStepBackward(t *testing.T) {
	e, _ := newTestEngine(t, 10*time.Second, 100*time.Millisecond)
	mustOpen(t, e, "mock://test")

	e.clock.SetPosition(250 * time.Millisecond)

	p := e.StepBackward()
	e.cmds.cycle()
	if err := p.Wait(); err != nil {
		t.Fatalf("StepBackward() error = %v", err)
	}

	if got := p.SeekResult().Position; got != 100*time.Millisecond {
		t.Errorf("Position = %v, want 100ms (previous block boundary)", got)
	}
}

func TestPriorityCommand_SupersedesQueuedSeek(t *testing.T) {
	e, _ := newTestEngine(t, 10*time.Second, 100*time.Millisecond)
	mustOpen(t, e, "mock://test")

	seekP := e.Seek(5 * time.Second)
	stopP := e.Stop()

	// The priority command wins the cycle; the queued seek is dropped
	// and its promise completed at the resulting position.
	e.cmds.cycle()
	if err := stopP.Wait(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := seekP.Wait(); err != nil {
		t.Fatalf("superseded Seek() error = %v", err)
	}
	if got := e.Status(); got != StatusStopped {
		t.Errorf("Status() = %v, want Stopped", got)
	}
	if calls := e.cmds; calls.isSeekingNow() {
		t.Error("seek state should be cleared by the priority command")
	}
}
