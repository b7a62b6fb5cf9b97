package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/astroward/nightwatch/internal/astro"
	"github.com/astroward/nightwatch/internal/config"
	"github.com/astroward/nightwatch/internal/engine"
	"github.com/astroward/nightwatch/internal/hardware"
	"github.com/astroward/nightwatch/internal/horizon"
	"github.com/astroward/nightwatch/internal/safety"
	"github.com/astroward/nightwatch/internal/scheduler"
	"github.com/astroward/nightwatch/internal/store"
	"github.com/astroward/nightwatch/internal/telemetry"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the observing loop",
	Long: "Run connects the simulated hardware and drives the state machine\n" +
		"until the session ends or a signal arrives.",
	RunE: runRun,
}

func init() {
	runCmd.Flags().Bool("run-once", false, "end the session after a single park cycle")
	runCmd.Flags().Bool("exit-when-done", false, "exit once every observation is finished")
	runCmd.Flags().StringSlice("simulator", nil, "safety checks to simulate (power, weather, night, space)")
	runCmd.Flags().String("fields", "", "override the target catalog path")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlagOverrides(cmd, &cfg)

	logger := newLogger(cfg.Verbose)

	ctrl, cleanup, err := buildController(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := setupSignalContext(logger)
	defer cancel()

	logger.Info("starting session",
		"site", cfg.Site.Name,
		"fields_file", cfg.Scheduler.FieldsFile,
		"simulators", cfg.Simulators)
	return ctrl.Run(ctx)
}

// applyFlagOverrides applies CLI flag values to the loaded config.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetBool("run-once"); v {
		cfg.Engine.RunOnce = true
	}
	if v, _ := cmd.Flags().GetBool("exit-when-done"); v {
		cfg.Engine.ExitWhenDone = true
	}
	if v, _ := cmd.Flags().GetStringSlice("simulator"); len(v) > 0 {
		cfg.Simulators = v
	}
	if v, _ := cmd.Flags().GetString("fields"); v != "" {
		cfg.Scheduler.FieldsFile = v
	}
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		cfg.Verbose = true
	}
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// buildController assembles every subsystem from config and returns a
// ready Controller plus a cleanup closing the store, telemetry, and
// catalog watcher.
func buildController(ctx context.Context, cfg config.Config, logger *slog.Logger) (*engine.Controller, func(), error) {
	site := astro.Site{
		Latitude:  cfg.Site.Latitude,
		Longitude: cfg.Site.Longitude,
		Elevation: cfg.Site.Elevation,
	}

	var profile *horizon.Profile
	if cfg.HorizonProfile != "" {
		p, err := horizon.LoadProfile(cfg.HorizonProfile)
		if err != nil {
			return nil, nil, fmt.Errorf("load horizon profile: %w", err)
		}
		profile = p
	}

	constraints, err := buildConstraints(cfg.Scheduler)
	if err != nil {
		return nil, nil, err
	}

	sched, err := scheduler.New(scheduler.Options{
		Site:              site,
		Horizon:           profile,
		Constraints:       constraints,
		FieldsFile:        cfg.Scheduler.FieldsFile,
		AlwaysCheckFields: cfg.Scheduler.AlwaysCheckFields,
		SunHorizon:        cfg.Safety.ObserveHorizon,
		Logger:            logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build scheduler: %w", err)
	}

	var watcher *scheduler.Watcher
	if cfg.Scheduler.FieldsFile != "" {
		watcher, err = scheduler.NewWatcher(sched)
		if err != nil {
			return nil, nil, fmt.Errorf("watch catalog: %w", err)
		}
		if err := watcher.Start(); err != nil {
			return nil, nil, fmt.Errorf("watch catalog: %w", err)
		}
	}

	db, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	emitter, err := telemetry.NewEmitter(cfg.TelemetryPath)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("open telemetry: %w", err)
	}

	monitor := safety.NewMonitor(safety.Options{
		Store:             db,
		Site:              site,
		ObserveHorizon:    cfg.Safety.ObserveHorizon,
		FlatHorizon:       cfg.Safety.FlatHorizon,
		FocusHorizon:      cfg.Safety.FocusHorizon,
		PowerStaleAfter:   cfg.Safety.PowerStale,
		WeatherStaleAfter: cfg.Safety.WeatherStale,
		ImageDir:          cfg.ImageDir,
		RequiredSpace:     cfg.Safety.RequiredSpaceBytes(),
		Simulated:         cfg.Simulators,
		Logger:            logger,
	})

	var table *engine.Table
	if cfg.Engine.StateTable != "" {
		table, err = engine.LoadTable(cfg.Engine.StateTable)
		if err != nil {
			db.Close()
			emitter.Close()
			return nil, nil, fmt.Errorf("load state table: %w", err)
		}
	}

	mount := hardware.NewSimMount(2*time.Second, logger)
	cameras := make([]hardware.Camera, 0, cfg.Cameras)
	for i := range cfg.Cameras {
		id := fmt.Sprintf("cam%02d", i)
		cameras = append(cameras, hardware.NewSimCamera(id, i == 0, cfg.ImageDir, logger))
	}

	ctrl := engine.New(engine.Options{
		Scheduler:    sched,
		Monitor:      monitor,
		Mount:        mount,
		Cameras:      cameras,
		Dome:         hardware.NewSimDome(),
		Store:        db,
		Telemetry:    emitter,
		Logger:       logger,
		Table:        table,
		Delay:        cfg.Engine.Delay,
		SlewTimeout:  cfg.Engine.SlewTimeout,
		CameraGrace:  cfg.Engine.CameraGrace,
		RunOnce:      cfg.Engine.RunOnce,
		ExitWhenDone: cfg.Engine.ExitWhenDone,
		RereadFields: cfg.Scheduler.AlwaysCheckFields,
	})

	cleanup := func() {
		if watcher != nil {
			watcher.Stop()
		}
		emitter.Close()
		db.Close()
	}
	return ctrl, cleanup, nil
}

// buildConstraints translates configured weights into the constraint chain
// used for every selection.
func buildConstraints(cfg config.SchedulerConfig) ([]scheduler.Constraint, error) {
	altitude, err := scheduler.NewAltitude(cfg.AltitudeWeight)
	if err != nil {
		return nil, fmt.Errorf("altitude constraint: %w", err)
	}
	duration, err := scheduler.NewDuration(cfg.DurationWeight)
	if err != nil {
		return nil, fmt.Errorf("duration constraint: %w", err)
	}
	moon, err := scheduler.NewMoonAvoidance(cfg.MoonWeight, cfg.MoonMinSeparation)
	if err != nil {
		return nil, fmt.Errorf("moon constraint: %w", err)
	}
	visited, err := scheduler.NewAlreadyVisited(cfg.VisitedWeight)
	if err != nil {
		return nil, fmt.Errorf("visited constraint: %w", err)
	}
	return []scheduler.Constraint{altitude, duration, moon, visited}, nil
}

// setupSignalContext returns a context that is canceled on SIGINT or
// SIGTERM; the engine parks before Run returns.
func setupSignalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("signal received, parking and shutting down")
		cancel()
	}()
	return ctx, cancel
}
