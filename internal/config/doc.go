// Package config loads the orchestrator settings and builds the RunContext.
//
// Settings live in an optional oneclick.yaml (or .toml) file next to the
// start scripts; every field has a default so a fresh checkout runs without
// one. The RunContext is assembled once at startup from the settings, the
// command line and the process environment, and is passed explicitly to
// every component instead of being read from globals.
package config
