package container

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"

	"github.com/lmoreau/ripple/internal/media"
)

const defaultFrameDuration = 100 * time.Millisecond

// AudioFile is the reference container implementation: a single-component
// audio demuxer/decoder over a local file, producing fixed-duration PCM
// frames. Video/subtitle containers plug in behind the same interface.
type AudioFile struct {
	uri    string
	file   *os.File
	format beep.Format

	mu       sync.Mutex
	streamer beep.StreamSeekCloser

	components *ComponentSet
	frameDur   time.Duration

	abort atomic.Bool
	eos   atomic.Bool
}

// Verify AudioFile implements Container at compile time.
var _ Container = (*AudioFile)(nil)

// OpenAudioFile opens a local audio file (mp3, flac, wav, ogg) and
// prepares it for demuxing. frameDur is the presentation duration of
// each decoded frame; 0 selects the default of 100ms.
func OpenAudioFile(uri string, frameDur time.Duration) (*AudioFile, error) {
	if frameDur <= 0 {
		frameDur = defaultFrameDuration
	}

	ext := strings.ToLower(filepath.Ext(uri))
	f, err := os.Open(uri)
	if err != nil {
		return nil, err
	}

	var streamer beep.StreamSeekCloser
	var format beep.Format

	switch ext {
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	case ".flac":
		// Skip ID3v2 tag if present (some taggers add it to FLAC files)
		if err := skipID3v2(f); err != nil {
			f.Close()
			return nil, err
		}
		streamer, format, err = flac.Decode(f)
	case ".wav":
		streamer, format, err = wav.Decode(f)
	case ".ogg", ".oga":
		streamer, format, err = vorbis.Decode(f)
	default:
		f.Close()
		return nil, fmt.Errorf("container: unsupported format: %s", ext)
	}
	if err != nil {
		f.Close()
		return nil, err
	}

	return &AudioFile{
		uri:        uri,
		file:       f,
		streamer:   streamer,
		format:     format,
		components: NewComponentSet(media.TypeAudio),
		frameDur:   frameDur,
	}, nil
}

// URI returns the path of the open file.
func (a *AudioFile) URI() string { return a.uri }

// Format returns the decoded stream format.
func (a *AudioFile) Format() beep.Format { return a.format }

// Duration returns the total media duration.
func (a *AudioFile) Duration() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.streamer == nil {
		return 0
	}
	return a.format.SampleRate.D(a.streamer.Len())
}

// Components returns the component set (audio only).
func (a *AudioFile) Components() *ComponentSet { return a.components }

// Read decodes the next chunk of samples into a frame and enqueues it on
// the audio component.
func (a *AudioFile) Read() (media.Type, error) {
	if a.abort.Load() {
		return media.TypeNone, ErrReadAborted
	}
	frame, err := a.readFrame()
	if err != nil {
		return media.TypeNone, err
	}
	a.components.Get(media.TypeAudio).EnqueueFrame(frame)
	return media.TypeAudio, nil
}

// readFrame pulls one frame worth of samples off the streamer.
func (a *AudioFile) readFrame() (*media.Frame, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.streamer == nil {
		return nil, io.EOF
	}

	startSample := a.streamer.Position()
	want := a.format.SampleRate.N(a.frameDur)
	buf := make([][2]float64, want)

	read := 0
	for read < want {
		n, ok := a.streamer.Stream(buf[read:])
		read += n
		if !ok {
			break
		}
	}
	if read == 0 {
		a.eos.Store(true)
		return nil, io.EOF
	}
	if a.streamer.Position() >= a.streamer.Len() {
		a.eos.Store(true)
	}

	return &media.Frame{
		Type:      media.TypeAudio,
		StartTime: a.format.SampleRate.D(startSample),
		Duration:  a.format.SampleRate.D(read),
		Samples:   buf[:read],
	}, nil
}

// Seek repositions the decoder to the sample nearest target and returns
// the first frame decoded there.
func (a *AudioFile) Seek(target time.Duration) (*media.Frame, error) {
	a.mu.Lock()
	if a.streamer == nil {
		a.mu.Unlock()
		return nil, io.EOF
	}
	pos := a.format.SampleRate.N(target)
	pos = max(pos, 0)
	pos = min(pos, a.streamer.Len()-1)
	err := a.streamer.Seek(pos)
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}
	a.eos.Store(false)
	return a.readFrame()
}

// SignalAbortReads toggles cooperative read aborting.
func (a *AudioFile) SignalAbortReads(abort bool) {
	a.abort.Store(abort)
}

// IsAtEndOfStream reports whether the decoder has run out of samples.
func (a *AudioFile) IsAtEndOfStream() bool {
	return a.eos.Load()
}

// Close releases the streamer and the underlying file.
func (a *AudioFile) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var err error
	if a.streamer != nil {
		err = a.streamer.Close()
		a.streamer = nil
	}
	if a.file != nil {
		if cerr := a.file.Close(); err == nil {
			err = cerr
		}
		a.file = nil
	}
	return err
}

// skipID3v2 skips an ID3v2 tag if present at the beginning of the file.
// Some FLAC files have ID3v2 tags prepended, which the FLAC decoder
// doesn't handle.
func skipID3v2(r io.ReadSeeker) error {
	header := make([]byte, 10)
	n, err := r.Read(header)
	if err != nil {
		return err
	}
	if n < 10 || string(header[0:3]) != "ID3" {
		_, err = r.Seek(0, io.SeekStart)
		return err
	}

	// ID3v2 size is stored as a syncsafe integer in bytes 6-9
	size := int64(header[6])<<21 | int64(header[7])<<14 | int64(header[8])<<7 | int64(header[9])
	_, err = r.Seek(10+size, io.SeekStart)
	return err
}
