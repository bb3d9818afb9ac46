// Package mediainfo reads tag metadata from media files.
package mediainfo

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
)

// Info is the tag metadata of a media file.
type Info struct {
	Path        string
	Title       string
	Artist      string
	AlbumArtist string
	Album       string
	Year        int
	Track       int
	Genre       string
	SizeBytes   int64
}

// Probe reads tag metadata for path. Files without readable tags still
// produce an Info with the filename as title.
func Probe(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info := &Info{
		Path:  path,
		Title: filepath.Base(path),
	}
	if st, err := f.Stat(); err == nil {
		info.SizeBytes = st.Size()
	}

	m, err := tag.ReadFrom(f)
	if err != nil {
		return info, nil
	}

	if title := m.Title(); title != "" {
		info.Title = title
	}
	info.Artist = m.Artist()
	info.AlbumArtist = m.AlbumArtist()
	if info.AlbumArtist == "" {
		info.AlbumArtist = m.Artist()
	}
	info.Album = m.Album()
	info.Year = m.Year()
	info.Track, _ = m.Track()
	info.Genre = m.Genre()
	return info, nil
}

// IsMediaFile reports whether path has a playable extension.
func IsMediaFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3", ".flac", ".wav", ".ogg":
		return true
	}
	return false
}
