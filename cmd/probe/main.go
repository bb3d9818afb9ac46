// Diagnostic tool: prints tag metadata and decode statistics for media
// files so container issues can be reproduced outside the player.
package main

import (
	"errors"
	"io"
	"log"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lmoreau/ripple/internal/container"
	"github.com/lmoreau/ripple/internal/media"
	"github.com/lmoreau/ripple/internal/mediainfo"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("usage: %s <media-file>...", os.Args[0])
	}

	for _, path := range os.Args[1:] {
		probe(path)
	}
}

func probe(path string) {
	log.Printf("== %s", path)

	info, err := mediainfo.Probe(path)
	if err != nil {
		log.Printf("  tag read failed: %v", err)
	} else {
		log.Printf("  title:  %s", info.Title)
		if info.Artist != "" {
			log.Printf("  artist: %s", info.Artist)
		}
		if info.Album != "" {
			log.Printf("  album:  %s", info.Album)
		}
		log.Printf("  size:   %s", humanize.Bytes(uint64(info.SizeBytes)))
	}

	c, err := container.OpenAudioFile(path, 0)
	if err != nil {
		log.Printf("  open failed: %v", err)
		return
	}
	defer c.Close()

	log.Printf("  duration: %s", c.Duration().Round(time.Millisecond))
	log.Printf("  main component: %s", c.Components().MainType())

	// Decode the whole stream, counting frames per media type.
	counts := map[media.Type]int{}
	for !c.IsAtEndOfStream() {
		t, err := c.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Printf("  read failed: %v", err)
			return
		}
		counts[t]++
		if comp := c.Components().Get(t); comp != nil {
			comp.Clear()
		}
	}
	for t, n := range counts {
		log.Printf("  %s frames: %d", t, n)
	}
}
