// Package shelltest provides a recording shell.Runner for tests.
package shelltest

import (
	"context"
	"strings"
	"sync"

	"github.com/oshokin/oneclick/internal/shell"
)

// Call is one recorded invocation.
type Call struct {
	Command string
	Options shell.Options
}

// response is returned for commands containing match.
type response struct {
	match  string
	status int
	output string
}

// Recorder records commands instead of running them. Commands exit with
// status 0 unless a response registered with Fail or Respond matches.
type Recorder struct {
	mu        sync.Mutex
	calls     []Call
	responses []response

	// OnRun, when set, is invoked before the result is produced. Tests use it
	// to emulate side effects such as a pull rewriting files.
	OnRun func(command string)
}

// New returns an empty recorder.
func New() *Recorder {
	return new(Recorder)
}

// Fail makes commands containing match exit with status.
func (r *Recorder) Fail(match string, status int) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.responses = append(r.responses, response{match: match, status: status})

	return r
}

// Respond makes commands containing match succeed with the given captured output.
func (r *Recorder) Respond(match, output string) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.responses = append(r.responses, response{match: match, output: output})

	return r
}

// Run implements shell.Runner.
func (r *Recorder) Run(ctx context.Context, command string, opts shell.Options) (*shell.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.calls = append(r.calls, Call{Command: command, Options: opts})

	result := &shell.Result{Command: command, Required: opts.Required}

	for i := len(r.responses) - 1; i >= 0; i-- {
		if strings.Contains(command, r.responses[i].match) {
			result.ExitStatus = r.responses[i].status
			if opts.CaptureOutput {
				result.Output = []byte(r.responses[i].output)
			}

			break
		}
	}

	onRun := r.OnRun
	r.mu.Unlock()

	if onRun != nil {
		onRun(command)
	}

	return result, result.Err()
}

// Calls returns a copy of the recorded invocations.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Call(nil), r.calls...)
}

// Commands returns the recorded command lines in order.
func (r *Recorder) Commands() []string {
	calls := r.Calls()

	commands := make([]string, 0, len(calls))
	for _, call := range calls {
		commands = append(commands, call.Command)
	}

	return commands
}

// CommandsContaining returns the recorded command lines containing substr.
func (r *Recorder) CommandsContaining(substr string) []string {
	var matched []string

	for _, command := range r.Commands() {
		if strings.Contains(command, substr) {
			matched = append(matched, command)
		}
	}

	return matched
}
