package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/oneclick/internal/config"
	"github.com/oshokin/oneclick/internal/logger"
	"github.com/oshokin/oneclick/internal/service/launcher"
	"github.com/oshokin/oneclick/internal/service/orchestrator"
	"github.com/oshokin/oneclick/internal/version"
)

// rootCmd installs, updates and launches the application. Flags are not
// parsed: everything except --update is forwarded to the server.
var rootCmd = &cobra.Command{
	Use:   "oneclick [--update] [server flags...]",
	Short: "Install, update and launch the web UI in an isolated conda environment",
	Long: "oneclick installs the web UI into an isolated conda environment on first run,\n" +
		"updates it with --update, and launches the server with the remaining flags.\n\n" +
		"Environment: GPU_CHOICE, USE_CUDA118, INSTALL_EXTENSIONS, LAUNCH_AFTER_INSTALL,\n" +
		"ONECLICK_CONFIG, ONECLICK_LOG_LEVEL.",
	Args:               cobra.ArbitraryArgs,
	DisableFlagParsing: true,
	SilenceErrors:      true,
	SilenceUsage:       true,
	RunE: func(_ *cobra.Command, args []string) error {
		// Setup graceful shutdown handling.
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		rc, err := newRunContext(args, os.LookupEnv)
		if err != nil {
			return err
		}

		return orchestrator.Run(ctx, rc)
	},
}

// Execute runs the oneclick CLI and exits with the status of the run.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	err := rootCmd.Execute()
	if code := exitCode(err); code != 0 {
		var exitErr *launcher.ExitError
		if !errors.As(err, &exitErr) {
			logger.ErrorKV(context.Background(), "Run failed", "error", err)
		}

		logger.Sync()
		os.Exit(code)
	}

	logger.Sync()
}

// newRunContext loads the settings and the optional dotenv file and builds the RunContext.
func newRunContext(args []string, lookup config.LookupFunc) (*config.RunContext, error) {
	if value, ok := lookup(config.EnvLogLevel); ok {
		if level, valid := logger.ParseLogLevel(value); valid {
			logger.SetLevel(level)
		} else {
			logger.WarnKV(context.Background(), "Unknown log level, using info", "value", value)
		}
	}

	configPath, _ := lookup(config.EnvConfigPath)

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}

	rootDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}

	rc := config.NewRunContext(cfg, rootDir, runtime.GOOS, args, lookup)

	if cfg.EnvFile == "" {
		return rc, nil
	}

	if err = config.LoadEnvFile(rc.Path(cfg.EnvFile)); err != nil {
		return nil, err
	}

	// Rebuild so variables from the dotenv file are visible.
	return config.NewRunContext(cfg, rootDir, runtime.GOOS, args, lookup), nil
}

// exitCode maps the run error to the process exit status: 0 on success or
// interruption, the server's status when it failed, 1 otherwise.
func exitCode(err error) int {
	var exitErr *launcher.ExitError

	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return 0
	case errors.As(err, &exitErr):
		return exitErr.Code
	default:
		return 1
	}
}
