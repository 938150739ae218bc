// Package logger wraps zap for the orchestrator:
//   - a global sugared logger writing console-encoded lines to stderr,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing for ONECLICK_LOG_LEVEL,
//   - leveled helpers (Infof, WarnKV, etc.) that pull the logger from a context.
//
// Banners and prompts meant for the person running the installer go to
// stdout through package banner; this package only carries operational logs.
package logger
