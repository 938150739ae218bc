// Package orchestrator runs one invocation end to end: it checks the conda
// environment, takes the run lock, installs or updates the application and
// finally launches the server.
package orchestrator
