// Package shell runs the external commands of the orchestrator (conda, pip,
// git, the server) through the platform shell, optionally inside the
// isolated conda environment.
//
// Every invocation yields a Result carrying the exit status and whether the
// step was required. Callers decide nothing ad hoc: Result.Err turns a failed
// required step into a *CommandError and leaves best-effort failures alone.
package shell
