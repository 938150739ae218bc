// Package installer runs the package-manager commands of an installation:
// base tools, the framework build chosen by the selection engine, its
// accelerator runtime, and the application and extension requirements.
//
// Each step is a shell.Result with an exit status and a Required flag. A
// failed required step aborts the run; a failed best-effort step is logged
// and skipped. Package caches are cleaned after the requirements phase even
// when it fails.
package installer
