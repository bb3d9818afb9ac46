package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lmoreau/ripple/internal/config"
	"github.com/lmoreau/ripple/internal/container"
	"github.com/lmoreau/ripple/internal/engine"
	"github.com/lmoreau/ripple/internal/mediainfo"
	"github.com/lmoreau/ripple/internal/render"
	"github.com/lmoreau/ripple/internal/resume"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <media-file>\n", os.Args[0])
		os.Exit(2)
	}
	path := os.Args[1]
	if !mediainfo.IsMediaFile(path) {
		return fmt.Errorf("unsupported file type: %s", path)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := resume.Open()
	if err != nil {
		return fmt.Errorf("opening resume store: %w", err)
	}
	defer store.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	eng := engine.New(engine.Options{
		Opener: func(uri string) (container.Container, error) {
			return container.OpenAudioFile(uri, cfg.FrameDuration())
		},
		RendererFactory: render.NewFactory(logger),
		BufferDuration:  cfg.BufferDuration(),
		WorkerInterval:  cfg.WorkerInterval(),
		CommandInterval: cfg.CommandInterval(),
		DisableSeekSkew: cfg.Engine.DisableSeekSkew,
		Logger:          logger,
	})
	defer eng.Shutdown()

	printInfo(path)

	if err := eng.Open(path).Wait(); err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}

	if cfg.ShouldResume() {
		if pos, err := store.Position(path); err == nil && pos > 0 {
			fmt.Printf("Resuming at %s\n", formatDuration(pos))
			eng.Seek(pos)
		}
	}

	go watchEvents(eng, store)

	if err := eng.Play().Wait(); err != nil {
		return err
	}

	repl(eng, store)
	return nil
}

func printInfo(path string) {
	info, err := mediainfo.Probe(path)
	if err != nil {
		return
	}
	if info.Artist != "" {
		fmt.Printf("%s - %s", info.Artist, info.Title)
	} else {
		fmt.Printf("%s", info.Title)
	}
	if info.Album != "" {
		fmt.Printf(" [%s]", info.Album)
	}
	fmt.Printf(" (%s)\n", humanize.Bytes(uint64(info.SizeBytes)))
}

// watchEvents mirrors engine notifications to the terminal and feeds the
// resume store with position updates.
func watchEvents(eng *engine.Engine, store *resume.Store) {
	sub := eng.Subscribe()
	for {
		select {
		case <-sub.Done:
			return
		case ev := <-sub.StateChanged:
			fmt.Printf("[%s]\n", ev.Current)
		case ev := <-sub.PositionChanged:
			if uri := eng.URI(); uri != "" {
				store.SavePosition(uri, ev.Position)
			}
		case <-sub.MediaEnded:
			fmt.Println("End of media")
			if uri := eng.URI(); uri != "" {
				_ = store.Forget(uri)
			}
		case ev := <-sub.Error:
			fmt.Printf("Error (%s): %v\n", ev.Op, ev.Err)
		case <-sub.SeekingStarted:
		case <-sub.SeekingEnded:
		case <-sub.Opened:
		case <-sub.Closed:
		}
	}
}

func repl(eng *engine.Engine, store *resume.Store) {
	fmt.Println("Commands: play pause stop seek <s> step fwd|back speed <ratio> pos quit")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "play":
			report(eng.Play().Wait())
		case "pause":
			report(eng.Pause().Wait())
		case "stop":
			report(eng.Stop().Wait())
		case "seek":
			if len(fields) < 2 {
				fmt.Println("usage: seek <seconds>")
				continue
			}
			secs, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				fmt.Println("usage: seek <seconds>")
				continue
			}
			p := eng.Seek(time.Duration(secs * float64(time.Second)))
			if err := p.Wait(); err != nil {
				report(err)
				continue
			}
			res := p.SeekResult()
			fmt.Printf("at %s", formatDuration(res.Position))
			if !res.ReachedTarget {
				fmt.Print(" (target unreachable)")
			}
			fmt.Println()
		case "step":
			if len(fields) > 1 && fields[1] == "back" {
				report(eng.StepBackward().Wait())
			} else {
				report(eng.StepForward().Wait())
			}
		case "speed":
			if len(fields) < 2 {
				fmt.Println("usage: speed <ratio>")
				continue
			}
			ratio, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				fmt.Println("usage: speed <ratio>")
				continue
			}
			report(eng.SetSpeedRatio(ratio).Wait())
		case "pos":
			fmt.Printf("%s / %s (x%.2f)\n",
				formatDuration(eng.Position()),
				formatDuration(eng.Duration()),
				eng.SpeedRatio())
		case "quit", "q":
			if uri := eng.URI(); uri != "" {
				store.SavePosition(uri, eng.Position())
			}
			report(eng.Close().Wait())
			return
		default:
			fmt.Printf("unknown command: %s\n", fields[0])
		}
	}
}

func report(err error) {
	if err != nil {
		fmt.Printf("error: %v\n", err)
	}
}

func formatDuration(d time.Duration) string {
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%d:%02d", m, s)
}
