package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/lgt-tracker/config"
	"github.com/banshee-data/lgt-tracker/optimize"
	"github.com/banshee-data/lgt-tracker/patchset"
	"github.com/banshee-data/lgt-tracker/persist"
	"github.com/banshee-data/lgt-tracker/tracker"
	"github.com/banshee-data/lgt-tracker/tracker/debugreport"
	"github.com/banshee-data/lgt-tracker/tracker/observerstream"
	"github.com/banshee-data/lgt-tracker/videosource"
)

var (
	configFile   = flag.String("C", "", "Path to JSON tuning configuration file")
	inlineConfig = flag.String("c", "", "Inline JSON tuning configuration (applied over -C)")
	initFile     = flag.String("I", "", "Path to initial-region file (one x,y,w,h line)")
	outputFile   = flag.String("o", "", "Path to per-frame output file (one x,y,w,h line per frame)")
	seedFlag     = flag.Int64("S", -1, "PRNG seed override (>= 0 overrides the configured seed)")
	silentMode   = flag.Bool("s", false, "Silent: suppress per-frame output on stdout")
	streamMode   = flag.Bool("g", false, "Serve stage events over gRPC for an external visualiser")
	debugMode    = flag.Bool("d", false, "Debug: collect per-frame history and write report files")
)

func usageErr(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "lgttrack: "+format+"\n", args...)
	flag.Usage()
	os.Exit(255)
}

// parseRectLine parses one "x,y,w,h" integer line.
func parseRectLine(line string) (patchset.Rect, error) {
	var x, y, w, h int
	if _, err := fmt.Sscanf(strings.TrimSpace(line), "%d,%d,%d,%d", &x, &y, &w, &h); err != nil {
		return patchset.Rect{}, fmt.Errorf("parse region %q: %w", line, err)
	}
	if w < 1 || h < 1 {
		return patchset.Rect{}, fmt.Errorf("degenerate region %q", line)
	}
	return patchset.Rect{X: float32(x), Y: float32(y), Width: float32(w), Height: float32(h)}, nil
}

func loadConfig() (*config.TuningConfig, error) {
	cfg := config.EmptyTuningConfig()
	if *configFile != "" {
		loaded, err := config.LoadTuningConfig(*configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if *inlineConfig != "" {
		if err := json.Unmarshal([]byte(*inlineConfig), cfg); err != nil {
			return nil, fmt.Errorf("inline config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("inline config: %w", err)
		}
	}
	if *seedFlag >= 0 {
		seed := *seedFlag
		cfg.Seed = &seed
	}
	return cfg, nil
}

func run() error {
	if flag.NArg() != 1 {
		usageErr("expected exactly one source argument, got %d", flag.NArg())
	}
	if *initFile == "" {
		usageErr("an initial-region file (-I) is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	initData, err := os.ReadFile(*initFile)
	if err != nil {
		return fmt.Errorf("read init file: %w", err)
	}
	region, err := parseRectLine(strings.SplitN(string(initData), "\n", 2)[0])
	if err != nil {
		return err
	}

	source, err := videosource.NewFileSource(flag.Arg(0))
	if err != nil {
		return err
	}
	defer source.Close()

	trk, err := tracker.New(cfg)
	if err != nil {
		return err
	}

	var collector *debugreport.Collector
	if *debugMode {
		collector = debugreport.NewCollector()
		trk.AddObserver(collector)
		tracker.SetLogWriters(os.Stderr, os.Stderr)
		optimize.SetLogWriter(os.Stderr)
	}
	if *streamMode {
		publisher := observerstream.NewPublisher(observerstream.DefaultConfig())
		if err := publisher.Start(); err != nil {
			return err
		}
		defer publisher.Stop()
		trk.AddObserver(publisher)
	}

	var out *os.File
	if *outputFile != "" {
		out, err = os.Create(*outputFile)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer out.Close()
	}

	view, ok, err := source.Capture()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("source %q produced no frames", flag.Arg(0))
	}
	if err := trk.Initialize(view, region); err != nil {
		return err
	}

	emit := func(rect patchset.Rect, tracking bool) error {
		line := persist.FormatLine(rect, tracking)
		if !*silentMode {
			fmt.Println(line)
		}
		if out != nil {
			if _, err := fmt.Fprintln(out, line); err != nil {
				return err
			}
		}
		return nil
	}
	if err := emit(trk.Region(), trk.IsTracking()); err != nil {
		return err
	}

	for {
		view, ok, err := source.Capture()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if trk.IsTracking() {
			if err := trk.Update(view); err != nil {
				return err
			}
		}
		if err := emit(trk.Region(), trk.IsTracking()); err != nil {
			return err
		}
	}

	if collector != nil {
		base := "lgttrack-report"
		if *outputFile != "" {
			base = strings.TrimSuffix(*outputFile, filepath.Ext(*outputFile))
		}
		if err := collector.RenderTrails(base + ".png"); err != nil {
			return err
		}
		dash, err := os.Create(base + ".html")
		if err != nil {
			return err
		}
		defer dash.Close()
		if err := collector.RenderDashboard(dash); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatalf("lgttrack: %v", err)
	}
}
