package engine

import (
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/lmoreau/ripple/internal/container"
)

// newTestEngine builds an engine over a mock container with the periodic
// cycles effectively disabled, so tests drive the command manager by
// calling cycle() directly.
func newTestEngine(t *testing.T, duration, frameDur time.Duration) (*Engine, *container.Mock) {
	t.Helper()
	mock := container.NewMock("mock://test", duration, frameDur)
	e := New(Options{
		Opener: func(string) (container.Container, error) {
			return mock, nil
		},
		BufferDuration:  time.Second,
		WorkerInterval:  time.Hour,
		CommandInterval: time.Hour,
		Logger:          slog.New(slog.DiscardHandler),
	})
	t.Cleanup(func() { _ = e.Shutdown() })
	return e, mock
}

func mustOpen(t *testing.T, e *Engine, uri string) {
	t.Helper()
	if err := e.Open(uri).Wait(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
}

func TestOpen(t *testing.T) {
	e, _ := newTestEngine(t, 10*time.Second, 100*time.Millisecond)
	mustOpen(t, e, "mock://test")

	if got := e.Status(); got != StatusStopped {
		t.Errorf("Status() = %v, want Stopped", got)
	}
	if got := e.Duration(); got != 10*time.Second {
		t.Errorf("Duration() = %v, want 10s", got)
	}
	if got := e.URI(); got != "mock://test" {
		t.Errorf("URI() = %q, want %q", got, "mock://test")
	}
	if got := e.Position(); got != 0 {
		t.Errorf("Position() = %v, want 0", got)
	}

	// Prefill covers at least half the main buffer before Open resolves.
	mainBuf := e.mainBuffer()
	if mainBuf == nil {
		t.Fatal("mainBuffer() = nil after open")
	}
	if mainBuf.Count() < mainBuf.Capacity()/2 {
		t.Errorf("buffered blocks = %d, want >= %d", mainBuf.Count(), mainBuf.Capacity()/2)
	}
	if got := mainBuf.RangeStartTime(); got != 0 {
		t.Errorf("RangeStartTime() = %v, want 0", got)
	}
}

func TestOpen_RejectedWhenAlreadyOpen(t *testing.T) {
	e, _ := newTestEngine(t, 10*time.Second, 100*time.Millisecond)
	mustOpen(t, e, "mock://test")

	err := e.Open("mock://test").Wait()
	if !errors.Is(err, ErrMediaAlreadyOpen) {
		t.Errorf("second Open() error = %v, want ErrMediaAlreadyOpen", err)
	}
}

func TestOpen_OpenerFailure(t *testing.T) {
	openErr := errors.New("no such file")
	e := New(Options{
		Opener: func(string) (container.Container, error) {
			return nil, openErr
		},
		WorkerInterval:  time.Hour,
		CommandInterval: time.Hour,
		Logger:          slog.New(slog.DiscardHandler),
	})
	t.Cleanup(func() { _ = e.Shutdown() })

	err := e.Open("mock://missing").Wait()
	if !errors.Is(err, openErr) {
		t.Errorf("Open() error = %v, want %v", err, openErr)
	}
	if got := e.Status(); got != StatusClosed {
		t.Errorf("Status() = %v, want Closed after failed open", got)
	}
}

func TestClose(t *testing.T) {
	e, mock := newTestEngine(t, 10*time.Second, 100*time.Millisecond)
	mustOpen(t, e, "mock://test")

	if err := e.Close().Wait(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := e.Status(); got != StatusClosed {
		t.Errorf("Status() = %v, want Closed", got)
	}
	if !mock.IsClosed() {
		t.Error("container was not closed")
	}
	if got := e.URI(); got != "" {
		t.Errorf("URI() = %q, want empty after close", got)
	}
	if got := e.Duration(); got != 0 {
		t.Errorf("Duration() = %v, want 0 after close", got)
	}
}

func TestClose_IdempotentWhenNothingOpen(t *testing.T) {
	e, _ := newTestEngine(t, 10*time.Second, 100*time.Millisecond)

	if err := e.Close().Wait(); err != nil {
		t.Errorf("Close() with nothing open error = %v, want nil", err)
	}
	if got := e.Status(); got != StatusClosed {
		t.Errorf("Status() = %v, want Closed", got)
	}
}

func TestPriorityCommands_RequireOpenMedia(t *testing.T) {
	e, _ := newTestEngine(t, 10*time.Second, 100*time.Millisecond)

	if err := e.Play().Wait(); !errors.Is(err, ErrNoMedia) {
		t.Errorf("Play() error = %v, want ErrNoMedia", err)
	}
	if err := e.Seek(time.Second).Wait(); !errors.Is(err, ErrNoMedia) {
		t.Errorf("Seek() error = %v, want ErrNoMedia", err)
	}
	if err := e.SetSpeedRatio(2).Wait(); !errors.Is(err, ErrNoMedia) {
		t.Errorf("SetSpeedRatio() error = %v, want ErrNoMedia", err)
	}
}

func TestSubscribe_OpenEvents(t *testing.T) {
	e, _ := newTestEngine(t, 10*time.Second, 100*time.Millisecond)
	sub := e.Subscribe()

	mustOpen(t, e, "mock://test")

	select {
	case ev := <-sub.Opened:
		if ev.URI != "mock://test" {
			t.Errorf("Opened.URI = %q, want %q", ev.URI, "mock://test")
		}
		if ev.Duration != 10*time.Second {
			t.Errorf("Opened.Duration = %v, want 10s", ev.Duration)
		}
	case <-time.After(time.Second):
		t.Fatal("no Opened event received")
	}

	// Closed -> Opening -> Stopped
	wantStates := []Status{StatusOpening, StatusStopped}
	for _, want := range wantStates {
		select {
		case ev := <-sub.StateChanged:
			if ev.Current != want {
				t.Errorf("StateChanged.Current = %v, want %v", ev.Current, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("no StateChanged event for %v", want)
		}
	}
}

func TestShutdown(t *testing.T) {
	e, mock := newTestEngine(t, 10*time.Second, 100*time.Millisecond)
	sub := e.Subscribe()
	mustOpen(t, e, "mock://test")

	if err := e.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	if got := e.Status(); got != StatusClosed {
		t.Errorf("Status() = %v, want Closed", got)
	}
	if !mock.IsClosed() {
		t.Error("container was not closed")
	}

	select {
	case <-sub.Done:
	case <-time.After(time.Second):
		t.Fatal("subscription was not released")
	}

	// Commands after shutdown are rejected outright.
	if err := e.Open("mock://test").Wait(); !errors.Is(err, ErrCommandRejected) {
		t.Errorf("Open() after Shutdown error = %v, want ErrCommandRejected", err)
	}
	if err := e.Close().Wait(); !errors.Is(err, ErrCommandRejected) {
		t.Errorf("Close() after Shutdown error = %v, want ErrCommandRejected", err)
	}

	// A second Shutdown is a no-op.
	if err := e.Shutdown(); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}

func TestChange_RebuildsAtCurrentPosition(t *testing.T) {
	e, mock := newTestEngine(t, 10*time.Second, 100*time.Millisecond)
	mustOpen(t, e, "mock://test")

	e.clock.SetPosition(2 * time.Second)

	if err := e.Change().Wait(); err != nil {
		t.Fatalf("Change() error = %v", err)
	}

	// Buffers are rebuilt and repopulated around the kept position.
	mainBuf := e.mainBuffer()
	if mainBuf == nil || mainBuf.Count() == 0 {
		t.Fatal("main buffer empty after Change")
	}
	if !mainBuf.IsInRange(2 * time.Second) {
		t.Errorf("buffer range [%v, %v) does not cover kept position 2s",
			mainBuf.RangeStartTime(), mainBuf.RangeEndTime())
	}
	if got := e.Position(); got != 2*time.Second {
		t.Errorf("Position() = %v, want 2s", got)
	}
	if len(mock.SeekCalls()) == 0 {
		t.Error("Change should reposition the container")
	}
}

func TestChange_WaitsForInFlightSeek(t *testing.T) {
	mock := container.NewMock("mock://test", 10*time.Second, 100*time.Millisecond)
	e := New(Options{
		Opener: func(string) (container.Container, error) {
			return mock, nil
		},
		BufferDuration:  time.Second,
		WorkerInterval:  time.Hour,
		CommandInterval: time.Millisecond,
		Logger:          slog.New(slog.DiscardHandler),
	})
	t.Cleanup(func() { _ = e.Shutdown() })
	mustOpen(t, e, "mock://test")

	entered, release := mock.HoldSeeks()
	defer release()

	// An uncovered target forces the slow path; the manager's cycle
	// goroutine blocks inside the container seek.
	seekP := e.Seek(5 * time.Second)
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("seek never reached the container")
	}

	// Change must not rebuild the pipeline under the executing seek.
	changeP := e.Change()
	select {
	case <-changeP.Done():
		t.Fatal("Change completed while a seek was still executing")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	if err := changeP.Wait(); err != nil {
		t.Fatalf("Change() error = %v", err)
	}
	select {
	case <-seekP.Done():
	default:
		t.Error("in-flight seek should complete before the rebuild")
	}
}

func TestShutdown_RacingOpenNeverLeaksContainer(t *testing.T) {
	for i := 0; i < 25; i++ {
		mock := container.NewMock("mock://race", 10*time.Second, 100*time.Millisecond)
		e := New(Options{
			Opener: func(string) (container.Container, error) {
				return mock, nil
			},
			BufferDuration:  time.Second,
			WorkerInterval:  time.Hour,
			CommandInterval: time.Hour,
			Logger:          slog.New(slog.DiscardHandler),
		})

		// Whichever side wins, a disposed engine must end Closed with no
		// live container behind it.
		var wg sync.WaitGroup
		wg.Add(2)
		var openP *Promise
		go func() {
			defer wg.Done()
			openP = e.Open("mock://race")
		}()
		go func() {
			defer wg.Done()
			_ = e.Shutdown()
		}()
		wg.Wait()

		_ = openP.Wait()
		if got := e.Status(); got != StatusClosed {
			t.Fatalf("Status() = %v, want Closed after shutdown", got)
		}
		if openP.Err() == nil && !mock.IsClosed() {
			t.Fatal("open won the race but its container was never closed")
		}
	}
}

func TestChange_RequiresOpenMedia(t *testing.T) {
	e, _ := newTestEngine(t, 10*time.Second, 100*time.Millisecond)

	if err := e.Change().Wait(); !errors.Is(err, ErrNoMedia) {
		t.Errorf("Change() error = %v, want ErrNoMedia", err)
	}
}
