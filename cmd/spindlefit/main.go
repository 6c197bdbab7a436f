package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"spindlefit/internal/log"
	"spindlefit/internal/models"
	"spindlefit/pkg/batch"
	"spindlefit/pkg/config"
	"spindlefit/pkg/export"
	"spindlefit/pkg/session"
	"spindlefit/pkg/stack"
	"spindlefit/pkg/threshold"
	"spindlefit/pkg/visualization"
)

func main() {
	// Parse command line arguments
	inputDir := flag.String("input", "", "Directory containing one image per frame")
	configPath := flag.String("config", "spindlefit.yaml", "YAML configuration file")
	initConfig := flag.Bool("init-config", false, "Write a default configuration file to -config and exit")
	outputFile := flag.String("output", "", "Text file receiving the measurements (overrides config)")
	dbPath := flag.String("db", "", "SQLite database receiving the measurements (overrides config)")
	numCores := flag.Int("cores", 0, "Number of frames fitted in parallel (overrides config)")
	fromFrame := flag.Int("from", 0, "First frame to process")
	overwriteManual := flag.Bool("overwrite-manual", false, "Refit frames that were set manually")
	saveIntermediary := flag.Bool("save-intermediary", false, "Save frames, masks and overlays as PNG")
	intermediaryDir := flag.String("intermediary-dir", "", "Directory to save intermediary results (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	// Validate inputs
	if *inputDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Flags given on the command line win over the config file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "output":
			cfg.Output.TextFile = *outputFile
		case "db":
			cfg.Output.Database = *dbPath
		case "cores":
			cfg.Processing.NumCores = *numCores
		case "overwrite-manual":
			cfg.Processing.OverwriteManual = *overwriteManual
		case "save-intermediary":
			cfg.Output.SaveIntermediaryResults = *saveIntermediary
		case "intermediary-dir":
			cfg.Output.IntermediaryDir = *intermediaryDir
		case "debug":
			cfg.Output.Verbose = *debug
		}
	})

	if err := log.Init(cfg.Output.Verbose); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, *inputDir, *fromFrame); err != nil {
		log.Errorf("spindlefit failed: %v", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, inputDir string, fromFrame int) error {
	fmt.Println("================================")
	fmt.Println("SPINDLE POLE DETECTION AND MEASUREMENT")
	fmt.Println("================================")

	tp, err := cfg.ThresholdParams()
	if err != nil {
		return err
	}
	fp, err := cfg.FitParams()
	if err != nil {
		return err
	}

	frames, err := stack.LoadDir(inputDir)
	if err != nil {
		return err
	}
	if fromFrame < 0 || fromFrame >= len(frames) {
		return fmt.Errorf("first frame %d outside the stack of %d frames", fromFrame, len(frames))
	}
	if msg := cutoffWarning(tp, frames[0]); msg != "" {
		fmt.Println("Warning:", msg)
		log.Warnw("threshold cutoff out of range", "cutoff", tp.Cutoff, "bitDepth", frames[0].BitDepth)
	}

	s, err := session.New(frames, session.Params{Threshold: tp, Fitting: fp})
	if err != nil {
		return err
	}
	log.Infow("session created", "session", s.ID, "frames", s.Len(), "input", inputDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runner := batch.NewRunner(cfg.Processing.NumCores)
	runner.Progress = batch.ConsoleProgress(os.Stdout)

	fmt.Printf("Fitting frames %d-%d with %s threshold %.1f...\n", fromFrame, s.Len()-1, tp.Method, tp.Cutoff)
	startTime := time.Now()
	summary, err := runner.RunRange(ctx, s, fromFrame, s.Len(), cfg.Processing.OverwriteManual)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	processingTime := time.Since(startTime)

	applyCorrections(cfg, s)

	fmt.Printf("\nProcessed %d frames in %.2f seconds\n", summary.Processed(), processingTime.Seconds())
	fmt.Printf("- Succeeded: %d\n", summary.Succeeded)
	fmt.Printf("- Failed:    %d\n", summary.Failed)
	fmt.Printf("- Skipped:   %d\n", summary.Skipped)
	if len(summary.FailedFrames) > 0 {
		fmt.Printf("Frames needing manual attention: %v\n", summary.FailedFrames)
	}
	if summary.Canceled {
		fmt.Println("Run canceled; frames not reached are left unprocessed")
	}

	records := s.Store().Iterate()
	if cfg.Output.TextFile != "" {
		if err := export.SaveText(cfg.Output.TextFile, records); err != nil {
			return err
		}
		fmt.Printf("Measurements saved to: %s\n", cfg.Output.TextFile)
	}

	if cfg.Output.Database != "" {
		if err := saveDatabase(cfg.Output.Database, s, filepath.Base(inputDir), records); err != nil {
			return err
		}
		fmt.Printf("Measurements stored in: %s (session %s)\n", cfg.Output.Database, s.ID)
	}

	// Print information about intermediary results if saved
	if cfg.Output.SaveIntermediaryResults {
		viewer := visualization.NewViewer(cfg.Output.IntermediaryDir)
		if err := viewer.SaveSequence(s); err != nil {
			log.Warnf("Failed to save intermediary results: %v", err)
		} else {
			fmt.Println("\nIntermediary results saved to:")
			fmt.Printf("%s\n", cfg.Output.IntermediaryDir)
			fmt.Println("The following stages were saved:")
			fmt.Printf("- %s: Contrast-stretched input frames\n", visualization.StageFrames)
			fmt.Printf("- %s: Threshold masks\n", visualization.StageMasks)
			fmt.Printf("- %s: Masks and fitted poles over the frames\n", visualization.StageOverlays)
		}
	}

	return nil
}

// applyCorrections applies the manual poles and excluded frames of the config
func applyCorrections(cfg *config.Config, s *session.Session) {
	for _, m := range cfg.Manual.Poles {
		a := models.Point{X: m.PoleA[0], Y: m.PoleA[1]}
		b := models.Point{X: m.PoleB[0], Y: m.PoleB[1]}
		if _, err := session.ApplyManual(s, m.Frame, a, b); err != nil {
			log.Warnw("manual poles rejected", "frame", m.Frame, "error", err)
			continue
		}
		log.Debugw("manual poles applied", "frame", m.Frame, "poleA", a, "poleB", b)
	}

	for _, i := range cfg.Manual.Excluded {
		if _, err := s.Store().SetExcluded(i, true); err != nil {
			log.Warnw("frame cannot be excluded", "frame", i, "error", err)
		}
	}
}

func saveDatabase(path string, s *session.Session, source string, records []models.FrameRecord) error {
	exporter, err := export.OpenSQLite(path)
	if err != nil {
		return err
	}
	defer exporter.Close()

	return exporter.SaveSession(context.Background(), s.ID, source, records)
}

// cutoffWarning describes a fixed cutoff that no pixel of the stack can
// reach, or returns "" when the cutoff is usable
func cutoffWarning(tp threshold.Params, frame *models.Frame) string {
	if tp.Method != threshold.Fixed || tp.Cutoff <= frame.MaxIntensity() {
		return ""
	}
	return fmt.Sprintf("fixed cutoff %.0f exceeds the %d-bit maximum %.0f; every frame will fail to threshold",
		tp.Cutoff, frame.BitDepth, frame.MaxIntensity())
}
