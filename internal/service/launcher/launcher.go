package launcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oshokin/oneclick/internal/banner"
	"github.com/oshokin/oneclick/internal/config"
	"github.com/oshokin/oneclick/internal/logger"
	"github.com/oshokin/oneclick/internal/shell"
)

// ExitError carries the non-zero exit status of the server process.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("server exited with status %d", e.Code)
}

// Controller prepares and starts the application server.
type Controller struct {
	rc     *config.RunContext
	runner shell.Runner
	out    *banner.Printer
}

// New creates a Controller.
func New(rc *config.RunContext, runner shell.Runner, out *banner.Printer) *Controller {
	return &Controller{rc: rc, runner: runner, out: out}
}

// Flags returns the forwarded arguments followed by the flags file content.
func (c *Controller) Flags() (string, error) {
	return BuildFlags(c.rc.ServerArgs, c.rc.Path(c.rc.Config.FlagsFile))
}

// EnsureCPUFlag persists CPUFlag in the flags file.
func (c *Controller) EnsureCPUFlag(ctx context.Context) error {
	changed, err := EnsureCPUFlag(c.rc.Path(c.rc.Config.FlagsFile), config.DefaultFilePermissions)
	if err != nil {
		return err
	}

	if changed {
		logger.InfoKV(ctx, "Persisted CPU flag", "file", c.rc.Config.FlagsFile)
		c.out.Print(fmt.Sprintf("Adding the %s flag to %s.", CPUFlag, c.rc.Config.FlagsFile))
	}

	return nil
}

// AdviseModels prints a notice when the model directory named by flags is empty.
func (c *Controller) AdviseModels(flags string) {
	if HasModels(c.rc.Path(ModelDir(flags))) {
		return
	}

	c.out.Print("WARNING: You haven't downloaded any model yet.\n" +
		"Once the web UI launches, head over to the \"Model\" tab and download one.")
}

// Launch runs the server inside the environment and waits for it. A
// non-zero exit status is returned as *ExitError.
func (c *Controller) Launch(ctx context.Context, flags string) error {
	if err := os.MkdirAll(filepath.Join(c.rc.EnvDir, "bin"), 0o755); err != nil {
		return fmt.Errorf("prepare environment: %w", err)
	}

	command := "python " + c.rc.Config.ServerScript
	if flags != "" {
		command += " " + flags
	}

	logger.InfoKV(ctx, "Launching server", "command", command)

	result, err := c.runner.Run(ctx, command, shell.Options{Environment: true})
	if err != nil {
		return err
	}

	if result.Failed() {
		return &ExitError{Code: result.ExitStatus}
	}

	return nil
}
