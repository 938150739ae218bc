package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/oshokin/oneclick/internal/banner"
	"github.com/oshokin/oneclick/internal/config"
	"github.com/oshokin/oneclick/internal/domain/host"
	"github.com/oshokin/oneclick/internal/logger"
	"github.com/oshokin/oneclick/internal/repository/runlock"
	"github.com/oshokin/oneclick/internal/service/installer"
	"github.com/oshokin/oneclick/internal/service/launcher"
	"github.com/oshokin/oneclick/internal/service/probe"
	"github.com/oshokin/oneclick/internal/service/prompt"
	"github.com/oshokin/oneclick/internal/service/selection"
	"github.com/oshokin/oneclick/internal/service/syncer"
	"github.com/oshokin/oneclick/internal/shell"
	"github.com/oshokin/oneclick/internal/version"
)

var (
	// ErrNoPackageManager is returned when conda cannot be run in the environment.
	ErrNoPackageManager = errors.New("conda is not installed")
	// ErrBaseEnvironment is returned when the active conda environment is base.
	ErrBaseEnvironment = errors.New("create an environment for this project and activate it, the base environment is active")
)

// baseEnvironment is the conda root environment, which must never receive the packages.
const baseEnvironment = "base"

// Orchestrator wires the components for one run.
type Orchestrator struct {
	rc       *config.RunContext
	runner   shell.Runner
	in       io.Reader
	out      io.Writer
	features probe.FeatureDetector
	lockOpts runlock.Options

	// executable is the running binary, guarded like the tracked files when it lives in the checkout.
	executable string
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithRunner replaces the command runner.
func WithRunner(runner shell.Runner) Option {
	return func(o *Orchestrator) {
		if runner != nil {
			o.runner = runner
		}
	}
}

// WithInput sets the stream answers are read from.
func WithInput(in io.Reader) Option {
	return func(o *Orchestrator) {
		o.in = in
	}
}

// WithOutput sets the stream banners and prompts are written to.
func WithOutput(out io.Writer) Option {
	return func(o *Orchestrator) {
		o.out = out
	}
}

// WithFeatureDetector replaces CPU feature detection.
func WithFeatureDetector(detect probe.FeatureDetector) Option {
	return func(o *Orchestrator) {
		o.features = detect
	}
}

// WithLockOptions tunes the run lock holder check.
func WithLockOptions(opts runlock.Options) Option {
	return func(o *Orchestrator) {
		o.lockOpts = opts
	}
}

// WithExecutable sets the path of the running binary. An empty path tracks none.
func WithExecutable(path string) Option {
	return func(o *Orchestrator) {
		o.executable = path
	}
}

// New creates an orchestrator bound to the process stdio.
func New(rc *config.RunContext, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		rc:         rc,
		in:         os.Stdin,
		out:        os.Stdout,
		features:   probe.DetectCPUFeatures,
		executable: currentExecutable(),
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.runner == nil {
		o.runner = shell.NewExecRunner(rc).WithOutput(o.out, os.Stderr)
	}

	return o
}

// Run executes a run for rc with the given options.
func Run(ctx context.Context, rc *config.RunContext, opts ...Option) error {
	return New(rc, opts...).Run(ctx)
}

// Run executes the update flow when requested and the install-and-launch flow otherwise.
func (o *Orchestrator) Run(ctx context.Context) error {
	runID := uuid.NewString()
	ctx = logger.WithKV(logger.WithName(ctx, "orchestrator"), "run_id", runID)

	logger.InfoKV(ctx, "Starting run", "version", version.Short(), "update", o.rc.Update)

	if err := o.checkEnvironment(ctx); err != nil {
		return err
	}

	out := banner.New(o.out)
	prober := probe.New(o.rc, o.runner).WithFeatureDetector(o.features)
	launch := launcher.New(o.rc, o.runner, out)

	if err := o.withLock(ctx, runID, func() error {
		return o.prepare(ctx, out, prober, launch)
	}); err != nil {
		return err
	}

	if o.rc.Update {
		return nil
	}

	if o.rc.SkipLaunch {
		out.Print("Install finished successfully and will now exit due to LAUNCH_AFTER_INSTALL.")
		return nil
	}

	flags, err := launch.Flags()
	if err != nil {
		return err
	}

	launch.AdviseModels(flags)

	return launch.Launch(ctx, flags)
}

// prepare updates an existing installation or installs a new one.
func (o *Orchestrator) prepare(ctx context.Context, out *banner.Printer, prober *probe.Prober, launch *launcher.Controller) error {
	profile := prober.DetectHost(ctx)
	sync := syncer.New(o.rc, o.runner, out)

	if o.rc.Update {
		logger.Info(ctx, "Updating the installation")

		if err := sync.SyncAndGuard(ctx, o.rc.TrackedFiles(o.executable)); err != nil {
			return err
		}

		return installer.New(o.rc, o.runner, prober, profile, out).
			InstallRequirements(ctx, o.rc.InstallExtensions.Resolve(false))
	}

	if prober.IsInstalled() {
		logger.Debug(ctx, "Already installed, skipping installation")
		return nil
	}

	return o.install(ctx, out, profile, prober, sync, launch)
}

// install resolves the user's choices, plans the framework install and runs it.
func (o *Orchestrator) install(
	ctx context.Context,
	out *banner.Printer,
	profile host.Profile,
	prober *probe.Prober,
	sync *syncer.Controller,
	launch *launcher.Controller,
) error {
	questions := prompt.New(o.in, out)

	gpu, err := questions.ResolveGPU(ctx, o.rc)
	if err != nil {
		return err
	}

	profile = profile.WithGPU(gpu)

	var legacyCUDA bool

	switch {
	case gpu == host.GPUNone:
		if err = launch.EnsureCPUFlag(ctx); err != nil {
			return err
		}
	case gpu == host.GPUNvidia && (profile.OS == host.OSLinux || profile.OS == host.OSWindows):
		if legacyCUDA, err = questions.ResolveLegacyCUDA(ctx, o.rc); err != nil {
			return err
		}
	}

	plan, err := selection.BuildPlan(profile, legacyCUDA)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Installing", "profile", profile.String())

	driver := installer.New(o.rc, o.runner, prober, profile, out)

	if err = driver.InstallBaseTools(ctx); err != nil {
		return err
	}

	if err = sync.SyncAndGuard(ctx, o.rc.TrackedFiles(o.executable)); err != nil {
		return err
	}

	return driver.Execute(ctx, plan, o.rc.InstallExtensions.Resolve(true))
}

// currentExecutable resolves the running binary, or returns "" when it cannot.
func currentExecutable() string {
	path, err := os.Executable()
	if err != nil {
		return ""
	}

	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}

	return path
}

// checkEnvironment verifies that conda works and a dedicated environment is active.
func (o *Orchestrator) checkEnvironment(ctx context.Context) error {
	result, err := o.runner.Run(ctx, "conda", shell.Options{Environment: true, CaptureOutput: true})
	if err != nil {
		return fmt.Errorf("check conda: %w", err)
	}

	if result.Failed() {
		return ErrNoPackageManager
	}

	if o.rc.CondaDefaultEnv == baseEnvironment {
		return ErrBaseEnvironment
	}

	return nil
}

// withLock runs fn while holding the run lock of the application directory.
func (o *Orchestrator) withLock(ctx context.Context, runID string, fn func() error) (err error) {
	repo := runlock.NewFileRepository(o.rc.Path(runlock.Filename))

	lock, err := runlock.Acquire(ctx, repo, runID, o.lockOpts)
	if err != nil {
		return err
	}

	defer func() {
		if releaseErr := lock.Release(ctx); releaseErr != nil && err == nil {
			err = releaseErr
		}
	}()

	return fn()
}
