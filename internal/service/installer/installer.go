package installer

import (
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/oneclick/internal/banner"
	"github.com/oshokin/oneclick/internal/config"
	"github.com/oshokin/oneclick/internal/domain/host"
	"github.com/oshokin/oneclick/internal/logger"
	"github.com/oshokin/oneclick/internal/service/selection"
	"github.com/oshokin/oneclick/internal/shell"
)

const (
	baseToolsCommand = "conda install -y -k ninja git"
	cpuInfoCommand   = "python -m pip install py-cpuinfo==9.0.0"
)

var errNoPlan = errors.New("install plan is empty")

// BuildDetector reports the framework build present in the environment.
type BuildDetector interface {
	DetectBuild(ctx context.Context) (host.BuildInfo, error)
}

// Driver executes installation steps in the isolated environment.
type Driver struct {
	rc      *config.RunContext
	runner  shell.Runner
	builds  BuildDetector
	profile host.Profile
	out     *banner.Printer
}

// New creates a Driver for the host described by profile.
func New(rc *config.RunContext, runner shell.Runner, builds BuildDetector, profile host.Profile, out *banner.Printer) *Driver {
	return &Driver{
		rc:      rc,
		runner:  runner,
		builds:  builds,
		profile: profile,
		out:     out,
	}
}

// step is one command of the installation loop.
type step struct {
	// notice is printed as a banner before the command when set.
	notice  string
	command string
	opts    shell.Options
}

// InstallBaseTools installs the build tools and the version-control client into the environment.
func (d *Driver) InstallBaseTools(ctx context.Context) error {
	return d.runSteps(ctx, []step{{
		notice:  "Installing base tools.",
		command: baseToolsCommand,
		opts:    shell.Options{Environment: true, Required: true},
	}})
}

// Execute installs the framework described by plan, its runtime and the
// requirements matching the framework build that ends up installed.
func (d *Driver) Execute(ctx context.Context, plan *selection.InstallPlan, installExtensions bool) error {
	if plan == nil {
		return errNoPlan
	}

	ctx = logger.WithName(ctx, "installer")

	defer d.clearCacheUnlessCanceled(ctx)

	logger.InfoKV(ctx, "Installing framework", "gpu", plan.GPU, "cuda118", plan.CUDA118)

	steps := []step{{
		notice:  "Installing PyTorch.",
		command: plan.FrameworkCommand,
		opts:    shell.Options{Environment: true, Required: true},
	}}

	for i, runtimeCommand := range plan.RuntimeCommands {
		s := step{
			command: runtimeCommand.Line,
			opts:    shell.Options{Environment: true, Required: runtimeCommand.Required},
		}

		if i == 0 && plan.RuntimeDescription != "" {
			s.notice = fmt.Sprintf("Installing the %s.", plan.RuntimeDescription)
		}

		steps = append(steps, s)
	}

	steps = append(steps, step{
		command: cpuInfoCommand,
		opts:    shell.Options{Environment: true, Required: true},
	})

	if err := d.runSteps(ctx, steps); err != nil {
		return err
	}

	return d.installRequirements(ctx, installExtensions)
}

// runSteps runs steps in order and stops at the first failed required step.
func (d *Driver) runSteps(ctx context.Context, steps []step) error {
	for _, s := range steps {
		if s.notice != "" {
			d.out.Print(s.notice)
		}

		result, err := d.runner.Run(ctx, s.command, s.opts)
		if err != nil {
			return err
		}

		if result.Failed() {
			logger.WarnKV(ctx, "Optional step failed, continuing",
				"command", result.Command, "status", result.ExitStatus)
		}
	}

	return nil
}
