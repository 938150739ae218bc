// Package syncer pulls the latest checkout and refuses to continue when the
// pull rewrote the orchestration files that are currently running.
package syncer

import (
	"context"
	"fmt"
	"os"

	"github.com/oshokin/oneclick/internal/banner"
	"github.com/oshokin/oneclick/internal/config"
	"github.com/oshokin/oneclick/internal/logger"
	"github.com/oshokin/oneclick/internal/service/fingerprint"
	"github.com/oshokin/oneclick/internal/shell"
)

const pullCommand = "git pull --autostash"

// StaleCodeError reports a tracked file changed by the pull.
type StaleCodeError struct {
	File string
}

func (e *StaleCodeError) Error() string {
	return fmt.Sprintf("file '%s' was updated during 'git pull', run the script again", e.File)
}

// Controller synchronizes the checkout with the remote repository.
type Controller struct {
	rc     *config.RunContext
	runner shell.Runner
	out    *banner.Printer
}

// New creates a Controller.
func New(rc *config.RunContext, runner shell.Runner, out *banner.Printer) *Controller {
	return &Controller{rc: rc, runner: runner, out: out}
}

// SyncAndGuard initializes the repository when needed, pulls, and returns a
// *StaleCodeError naming the first tracked file whose content changed.
func (c *Controller) SyncAndGuard(ctx context.Context, trackedFiles []string) error {
	ctx = logger.WithName(ctx, "syncer")

	if _, err := os.Stat(c.rc.Path(".git")); err != nil {
		logger.InfoKV(ctx, "No repository found, initializing", "remote", c.rc.Config.RemoteURL)

		if _, err = c.runner.Run(ctx, c.initCommand(), shell.Options{Environment: true, Required: true}); err != nil {
			return fmt.Errorf("initialize repository: %w", err)
		}
	}

	before, err := fingerprint.Snapshot(c.rc.RootDir, trackedFiles)
	if err != nil {
		return err
	}

	if _, err = c.runner.Run(ctx, pullCommand, shell.Options{Environment: true, Required: true}); err != nil {
		return fmt.Errorf("pull: %w", err)
	}

	after, err := fingerprint.Snapshot(c.rc.RootDir, trackedFiles)
	if err != nil {
		return err
	}

	if changed := fingerprint.Changed(trackedFiles, before, after); len(changed) > 0 {
		name := changed[0]

		logger.WarnKV(ctx, "Tracked file changed by pull", "file", name, "changed", len(changed))
		c.out.Print(fmt.Sprintf("File '%s' was updated during 'git pull'. Please run the script again.", name))

		return &StaleCodeError{File: name}
	}

	logger.Debug(ctx, "Tracked files unchanged")

	return nil
}

func (c *Controller) initCommand() string {
	branch := c.rc.Config.Branch

	return fmt.Sprintf("git init -b %[1]s && git remote add origin %[2]s && git fetch && "+
		"git symbolic-ref refs/remotes/origin/HEAD refs/remotes/origin/%[1]s && "+
		"git reset --hard origin/%[1]s && git branch --set-upstream-to=origin/%[1]s",
		branch, c.rc.Config.RemoteURL)
}
