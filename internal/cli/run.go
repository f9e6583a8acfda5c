package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gatewatch/sentinel/internal/config"
	"github.com/gatewatch/sentinel/internal/supervisor"
	"github.com/gatewatch/sentinel/internal/telemetry"
)

// runEngine is the default mode: load and validate configuration, then
// run the supervisor, the telemetry sidecar, and the control socket
// together until a shutdown signal arrives.
func runEngine(cmd *cobra.Command, o *rootOptions) error {
	if _, err := loadAndValidate(o); err != nil {
		return err
	}
	if o.logLevel != "" {
		lvl, lvlErr := zerolog.ParseLevel(o.logLevel)
		if lvlErr != nil {
			return &ExitError{code: ExitInvalidConfig, message: fmt.Sprintf("invalid --log-level %q: %v", o.logLevel, lvlErr)}
		}
		zerolog.SetGlobalLevel(lvl)
	}

	collector := telemetry.New()
	defer collector.Close()

	sup := supervisor.New(supervisor.Options{
		ConfigPath: o.configPath,
		ConfigDir:  o.configDir,
		DryRun:     o.dryRun,
		NoWatch:    o.noWatch,
		Metrics:    collector,
	})

	telemetrySrv := telemetry.NewServer(collector, o.telemetryAddr, sup.Runtime())

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 3)
	go func() { errCh <- sup.Run(ctx) }()
	go func() { errCh <- telemetrySrv.Run(ctx) }()
	go func() { errCh <- serveControlSocket(ctx, sup, collector) }()

	var runErr error
	for i := 0; i < 3; i++ {
		if err := <-errCh; err != nil && runErr == nil {
			runErr = err
			cancel()
		}
	}
	if runErr != nil {
		return &ExitError{code: ExitFatal, message: runErr.Error()}
	}
	return nil
}

// loadAndValidate loads configuration up front so a bad config file
// fails fast with exit code 2, before any source or the telemetry
// sidecar starts.
func loadAndValidate(o *rootOptions) (*config.Config, error) {
	if o.configPath == "" && o.configDir == "" {
		return nil, &ExitError{code: ExitInvalidConfig, message: "one of --config or --config-dir is required"}
	}
	if o.configPath != "" && o.configDir != "" {
		return nil, &ExitError{code: ExitInvalidConfig, message: "--config and --config-dir are mutually exclusive"}
	}

	var cfg *config.Config
	var err error
	if o.configDir != "" {
		cfg, err = config.LoadDir(o.configDir)
	} else {
		cfg, err = config.Load(o.configPath)
	}
	if err != nil {
		return nil, &ExitError{code: ExitInvalidConfig, message: fmt.Sprintf("loading config: %v", err)}
	}

	if errs := config.Validate(cfg); len(errs) > 0 {
		return nil, &ExitError{code: ExitInvalidConfig, message: fmt.Sprintf("invalid config: %v", errs[0])}
	}
	return cfg, nil
}
