// Package render provides block renderers for the playback engine. The
// audio renderer feeds decoded PCM blocks to the system audio device.
package render

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"

	"github.com/lmoreau/ripple/internal/container"
	"github.com/lmoreau/ripple/internal/engine"
	"github.com/lmoreau/ripple/internal/media"
)

var (
	speakerInitialized bool
	speakerSampleRate  beep.SampleRate
)

// Audio renders audio blocks through the beep speaker. Blocks handed to
// Render are queued as raw samples; the speaker drains the queue in real
// time and plays silence when it runs dry.
type Audio struct {
	mu     sync.Mutex
	queue  [][2]float64
	paused bool

	format beep.Format
	ctrl   *beep.Ctrl
}

// Verify Audio implements engine.Renderer at compile time.
var _ engine.Renderer = (*Audio)(nil)

// NewAudio creates an audio renderer for the given stream format. The
// speaker is initialized once, at the first renderer's sample rate;
// later streams with a different rate are resampled.
func NewAudio(format beep.Format) (*Audio, error) {
	if !speakerInitialized {
		speakerSampleRate = format.SampleRate
		if err := speaker.Init(speakerSampleRate, speakerSampleRate.N(time.Second/10)); err != nil {
			return nil, err
		}
		speakerInitialized = true
	}

	r := &Audio{format: format, paused: true}

	var streamer beep.Streamer = beep.StreamerFunc(r.stream)
	if format.SampleRate != speakerSampleRate {
		streamer = beep.Resample(4, format.SampleRate, speakerSampleRate, streamer)
	}
	r.ctrl = &beep.Ctrl{Streamer: streamer, Paused: true}
	speaker.Play(r.ctrl)
	return r, nil
}

// newAudio is replaced in tests to exercise device failure paths.
var newAudio = NewAudio

// NewFactory returns an engine.RendererFactory wiring Audio for audio
// components whose container exposes a stream format. Other media types
// fall back to the NullRenderer. A failed device initialization is
// logged and degrades to silent rendering instead of failing the open.
func NewFactory(log *slog.Logger) engine.RendererFactory {
	if log == nil {
		log = slog.Default()
	}
	return func(t media.Type, c container.Container) engine.Renderer {
		if t != media.TypeAudio {
			return nil
		}
		fp, ok := c.(interface{ Format() beep.Format })
		if !ok {
			return nil
		}
		r, err := newAudio(fp.Format())
		if err != nil {
			log.Warn("audio output unavailable, rendering silently", "err", err)
			return nil
		}
		return r
	}
}

// stream feeds the speaker from the block queue, zero-filling when no
// samples are buffered so the stream never terminates.
func (r *Audio) stream(samples [][2]float64) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := copy(samples, r.queue)
	r.queue = r.queue[n:]
	for i := n; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}
	return len(samples), true
}

// MediaType returns media.TypeAudio.
func (r *Audio) MediaType() media.Type { return media.TypeAudio }

// Render queues the block's samples for playback.
func (r *Audio) Render(block *media.Block, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.paused {
		return
	}
	r.queue = append(r.queue, block.Samples()...)
}

// OnPlay unpauses the speaker stream.
func (r *Audio) OnPlay() {
	r.mu.Lock()
	r.paused = false
	r.mu.Unlock()
	speaker.Lock()
	r.ctrl.Paused = false
	speaker.Unlock()
}

// OnPause pauses the speaker stream, keeping queued samples.
func (r *Audio) OnPause() {
	r.mu.Lock()
	r.paused = true
	r.mu.Unlock()
	speaker.Lock()
	r.ctrl.Paused = true
	speaker.Unlock()
}

// OnStop pauses the stream and drops queued samples.
func (r *Audio) OnStop() {
	r.OnPause()
	r.flush()
}

// OnSeek drops queued samples so stale audio is not played at the new
// position.
func (r *Audio) OnSeek() {
	r.flush()
}

// OnClose detaches the renderer from the speaker.
func (r *Audio) OnClose() {
	speaker.Lock()
	r.ctrl.Paused = true
	speaker.Unlock()
	r.flush()
}

func (r *Audio) flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = nil
}
