package engine

import (
	"time"

	"github.com/lmoreau/ripple/internal/media"
)

// Renderer is the per-media-type sink consuming blocks: an audio device,
// a bitmap back-buffer, a caption overlay. Renderers only read pipeline
// state; all transport callbacks arrive from the command manager with
// the workers quiesced.
type Renderer interface {
	// MediaType returns the stream kind this renderer consumes.
	MediaType() media.Type

	// Render hands the renderer the block covering the clock position.
	// Called from the block-rendering worker, once per block.
	Render(block *media.Block, clockPosition time.Duration)

	// OnPlay signals that the transport entered the playing state.
	OnPlay()

	// OnPause signals that the transport was paused.
	OnPause()

	// OnStop signals that playback stopped and position reset.
	OnStop()

	// OnSeek signals that the buffers were cleared for a seek; any
	// internally queued media must be flushed.
	OnSeek()

	// OnClose releases the renderer's resources.
	OnClose()
}

// NullRenderer discards everything. Used for media types without a
// configured sink.
type NullRenderer struct {
	mediaType media.Type
}

// NewNullRenderer creates a discarding renderer for the given type.
func NewNullRenderer(t media.Type) *NullRenderer {
	return &NullRenderer{mediaType: t}
}

func (r *NullRenderer) MediaType() media.Type              { return r.mediaType }
func (r *NullRenderer) Render(*media.Block, time.Duration) {}
func (r *NullRenderer) OnPlay()                            {}
func (r *NullRenderer) OnPause()                           {}
func (r *NullRenderer) OnStop()                            {}
func (r *NullRenderer) OnSeek()                            {}
func (r *NullRenderer) OnClose()                           {}

// Verify NullRenderer implements Renderer at compile time.
var _ Renderer = (*NullRenderer)(nil)
