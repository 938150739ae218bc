package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/oshokin/oneclick/internal/config"
	"github.com/oshokin/oneclick/internal/domain/host"
	"github.com/oshokin/oneclick/internal/logger"
)

// Options control a single command invocation.
type Options struct {
	// Environment activates the isolated conda environment first.
	Environment bool
	// CaptureOutput collects stdout and stderr into Result.Output instead of streaming them.
	CaptureOutput bool
	// Required makes a non-zero exit status fatal.
	Required bool
}

// Result is the outcome of one command.
type Result struct {
	// Command is the line that was run, before environment activation.
	Command string
	// ExitStatus is the exit code of the shell.
	ExitStatus int
	// Required mirrors Options.Required.
	Required bool
	// Output holds combined output when CaptureOutput was set.
	Output []byte
}

// Failed reports a non-zero exit status.
func (r *Result) Failed() bool {
	return r.ExitStatus != 0
}

// Err returns a *CommandError for a failed required command and nil otherwise.
func (r *Result) Err() error {
	if r.Required && r.Failed() {
		return &CommandError{Command: r.Command, ExitStatus: r.ExitStatus}
	}

	return nil
}

// CommandError reports a required command that exited with a non-zero status.
type CommandError struct {
	Command    string
	ExitStatus int
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command '%s' failed with exit status code '%d'", e.Command, e.ExitStatus)
}

// Runner executes shell command lines.
type Runner interface {
	// Run executes command and waits for it. The error is non-nil when the
	// command could not be started, the context was canceled, or a required
	// command failed; the Result is returned whenever the command ran.
	Run(ctx context.Context, command string, opts Options) (*Result, error)
}

// ExecRunner runs commands with os/exec through the platform shell.
type ExecRunner struct {
	os       host.OSFamily
	dir      string
	condaDir string
	envDir   string
	stdin    io.Reader
	stdout   io.Writer
	stderr   io.Writer
}

// NewExecRunner creates a runner rooted at the RunContext directory and wired to the process stdio.
func NewExecRunner(rc *config.RunContext) *ExecRunner {
	return &ExecRunner{
		os:       rc.OS,
		dir:      rc.RootDir,
		condaDir: rc.CondaDir,
		envDir:   rc.EnvDir,
		stdin:    os.Stdin,
		stdout:   os.Stdout,
		stderr:   os.Stderr,
	}
}

// WithOutput returns a copy of the runner streaming to the given writers.
func (r *ExecRunner) WithOutput(stdout, stderr io.Writer) *ExecRunner {
	clone := *r
	clone.stdout = stdout
	clone.stderr = stderr

	return &clone
}

// Activate prefixes command with the conda activation of the isolated environment.
func (r *ExecRunner) Activate(command string) string {
	if r.os == host.OSWindows {
		condaBat := filepath.Join(r.condaDir, "condabin", "conda.bat")
		return fmt.Sprintf(`"%s" activate "%s" >nul && %s`, condaBat, r.envDir, command)
	}

	condaSh := filepath.Join(r.condaDir, "etc", "profile.d", "conda.sh")

	return fmt.Sprintf(`. "%s" && conda activate "%s" && %s`, condaSh, r.envDir, command)
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, command string, opts Options) (*Result, error) {
	line := command
	if opts.Environment {
		line = r.Activate(command)
	}

	logger.DebugKV(ctx, "Running command", "command", command, "required", opts.Required)

	cmd := shellCommand(ctx, line)
	cmd.Dir = r.dir
	cmd.Stdin = r.stdin

	var output bytes.Buffer

	if opts.CaptureOutput {
		cmd.Stdout = &output
		cmd.Stderr = &output
	} else {
		cmd.Stdout = r.stdout
		cmd.Stderr = r.stderr
	}

	runErr := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	result := &Result{
		Command:  command,
		Required: opts.Required,
		Output:   output.Bytes(),
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("start %q: %w", command, runErr)
		}

		result.ExitStatus = exitErr.ExitCode()
	}

	if result.Failed() {
		logger.DebugKV(ctx, "Command exited with non-zero status", "command", command, "status", result.ExitStatus)
	}

	return result, result.Err()
}
