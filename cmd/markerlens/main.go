package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/markerlens/internal/config"
	"github.com/banshee-data/markerlens/internal/marker/l1frames"
	"github.com/banshee-data/markerlens/internal/marker/l2detection"
	"github.com/banshee-data/markerlens/internal/marker/l4tracking"
	"github.com/banshee-data/markerlens/internal/marker/l5playback"
	"github.com/banshee-data/markerlens/internal/marker/monitor"
	"github.com/banshee-data/markerlens/internal/marker/pipeline"
	"github.com/banshee-data/markerlens/internal/marker/storage/sqlite"
	"github.com/banshee-data/markerlens/internal/version"
)

var (
	configPath    = flag.String("config", "", "Path to tuning JSON (defaults to config/tuning.defaults.json)")
	framesDir     = flag.String("frames", "", "Directory of still images to replay as the camera (synthetic camera if empty)")
	loopFrames    = flag.Bool("loop-frames", true, "Restart the image sequence after the last frame")
	dbPath        = flag.String("db", "markerlens.db", "SQLite event log path (empty disables storage)")
	listen        = flag.String("listen", ":8090", "Monitor listen address (empty disables the monitor)")
	video         = flag.String("video", "", "Video source played on the anchor while the marker is tracked")
	fallbackVideo = flag.String("fallback-video", "", "Video source used when -video fails to load")
	ticks         = flag.Uint64("ticks", 0, "Stop after N ticks (0 runs until signalled)")
	logOps        = flag.String("log-ops", "stderr", "Ops log destination: stderr, stdout, a file path, or empty to disable")
	logDiag       = flag.String("log-diag", "", "Diag log destination")
	logTrace      = flag.String("log-trace", "", "Trace log destination")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

// pruneInterval is how often old acquisitions are removed from the event log.
const pruneInterval = time.Hour

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if err := run(); err != nil {
		log.Printf("markerlens: %v", err)
		os.Exit(1)
	}
}

func run() error {
	closeLogs, err := configureLogging(*logOps, *logDiag, *logTrace)
	if err != nil {
		return err
	}
	defer closeLogs()

	tuning, err := loadTuning(*configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var subscribers []l4tracking.Subscriber
	var store *sqlite.Store
	if *dbPath != "" {
		store, err = sqlite.Open(*dbPath)
		if err != nil {
			return fmt.Errorf("open event log: %w", err)
		}
		defer store.Close()
		if err := store.MigrateUp(); err != nil {
			return fmt.Errorf("migrate event log: %w", err)
		}
		subscribers = append(subscribers, store)
	}

	stats := monitor.NewStats(monitor.DefaultStatsCapacity)
	loop, err := pipeline.Bootstrap(ctx, pipeline.BootstrapConfig{
		Tuning:        tuning,
		Camera:        newCamera(*framesDir, *loopFrames),
		Decoder:       &l5playback.SimulatedDecoder{RequireMutedAutoplay: true},
		Video:         *video,
		FallbackVideo: *fallbackVideo,
		Stats:         stats,
		Subscribers:   subscribers,
	})
	if err != nil {
		if pipeline.IsFatal(err) {
			return fmt.Errorf("fatal: %w", err)
		}
		return err
	}
	defer loop.Close()
	loop.MaxTicks = *ticks

	var wg sync.WaitGroup
	if *listen != "" {
		cfg := monitor.WebServerConfig{Address: *listen, Stats: stats, Status: loop}
		if store != nil {
			cfg.Events = store
			cfg.Admin = store
		}
		ws, err := monitor.NewWebServer(cfg)
		if err != nil {
			return fmt.Errorf("monitor: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ws.Start(ctx); err != nil {
				log.Printf("monitor server: %v", err)
			}
		}()
	}

	if store != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pruneLoop(ctx, store, tuning.GetEventRetention())
		}()
	}

	err = loop.Run(ctx)
	// Run also returns when MaxTicks is reached; stop the background routines.
	stop()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	sum := stats.Summary()
	log.Printf("markerlens stopped after %d ticks: found %.1f%% of samples, %d errors",
		loop.Ticks(), 100*sum.FoundRatio, sum.Errors)
	return nil
}

func loadTuning(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.MustLoadDefaultConfig(), nil
	}
	cfg, err := config.LoadTuningConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load tuning config: %w", err)
	}
	return cfg, nil
}

func newCamera(dir string, loop bool) l1frames.Camera {
	if dir == "" {
		return l1frames.NewSyntheticCamera()
	}
	return &l1frames.ImageSequenceCamera{Dir: dir, Loop: loop}
}

func pruneLoop(ctx context.Context, store *sqlite.Store, retention time.Duration) {
	t := time.NewTicker(pruneInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := store.PruneEvents(now.Add(-retention))
			if err != nil {
				log.Printf("prune event log: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("pruned %d acquisitions older than %v", n, retention)
			}
		}
	}
}

// configureLogging routes the three log streams of every layer package.
// The returned func closes any files that were opened.
func configureLogging(ops, diag, trace string) (func(), error) {
	var files []*os.File
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}

	open := func(dest string) (io.Writer, error) {
		switch dest {
		case "":
			return nil, nil
		case "stderr":
			return os.Stderr, nil
		case "stdout":
			return os.Stdout, nil
		}
		f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log %s: %w", dest, err)
		}
		files = append(files, f)
		return f, nil
	}

	var writers [3]io.Writer
	for i, dest := range []string{ops, diag, trace} {
		w, err := open(dest)
		if err != nil {
			closeAll()
			return func() {}, err
		}
		writers[i] = w
	}

	for _, set := range []func(ops, diag, trace io.Writer){
		l2detection.SetLogWriters,
		l4tracking.SetLogWriters,
		l5playback.SetLogWriters,
		monitor.SetLogWriters,
		pipeline.SetLogWriters,
		sqlite.SetLogWriters,
	} {
		set(writers[0], writers[1], writers[2])
	}
	return closeAll, nil
}
