package config

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/oshokin/oneclick/internal/domain/host"
)

// UpdateFlag switches the run to update-only mode. It is never passed to the server.
const UpdateFlag = "--update"

// RunContext is built once at startup and passed to every component.
// Treat it as read-only.
type RunContext struct {
	// RootDir is the directory holding the checkout and start scripts.
	RootDir string
	// InstallerDir is the absolute path of Config.InstallerDir.
	InstallerDir string
	// CondaDir is the conda installation used for environment activation.
	CondaDir string
	// EnvDir is the isolated conda environment.
	EnvDir string
	// OS is the host OS family.
	OS host.OSFamily
	// Update selects update-only mode.
	Update bool
	// ServerArgs are the command line arguments forwarded to the server.
	ServerArgs []string
	// GPUChoice is the raw GPU_CHOICE value; empty when unset.
	GPUChoice string
	// UseCUDA118 mirrors USE_CUDA118.
	UseCUDA118 Toggle
	// InstallExtensions mirrors INSTALL_EXTENSIONS.
	InstallExtensions Toggle
	// SkipLaunch is set when LAUNCH_AFTER_INSTALL is falsy.
	SkipLaunch bool
	// CondaDefaultEnv is the name of the active conda environment.
	CondaDefaultEnv string
	// Config holds the loaded settings.
	Config Config
}

// NewRunContext assembles the RunContext from settings, arguments and environment.
func NewRunContext(cfg *Config, rootDir, goos string, args []string, lookup LookupFunc) *RunContext {
	installerDir := resolvePath(rootDir, cfg.InstallerDir)

	rc := &RunContext{
		RootDir:           rootDir,
		InstallerDir:      installerDir,
		CondaDir:          filepath.Join(installerDir, "conda"),
		EnvDir:            filepath.Join(installerDir, "env"),
		OS:                host.OSFromGOOS(goos),
		UseCUDA118:        toggleFromEnv(lookup, EnvUseCUDA118),
		InstallExtensions: toggleFromEnv(lookup, EnvInstallExtensions),
		Config:            *cfg,
	}

	for _, arg := range args {
		if arg == UpdateFlag {
			rc.Update = true
			continue
		}

		rc.ServerArgs = append(rc.ServerArgs, arg)
	}

	if value, ok := lookup(EnvGPUChoice); ok {
		rc.GPUChoice = value
	}

	if value, ok := lookup(EnvLaunchAfterInstall); ok {
		rc.SkipLaunch = IsFalsy(value)
	}

	rc.CondaDefaultEnv, _ = lookup(EnvCondaDefaultEnv)

	return rc
}

// Path resolves a path relative to RootDir; absolute paths are returned unchanged.
func (rc *RunContext) Path(name string) string {
	return resolvePath(rc.RootDir, name)
}

// TrackedFiles returns Config.TrackedFiles plus executable, relative to RootDir,
// when the executable lives inside the checkout and is not listed yet.
func (rc *RunContext) TrackedFiles(executable string) []string {
	files := slices.Clone(rc.Config.TrackedFiles)
	if executable == "" {
		return files
	}

	rel, err := filepath.Rel(rc.RootDir, executable)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return files
	}

	if !slices.Contains(files, rel) {
		files = append(files, rel)
	}

	return files
}

func resolvePath(rootDir, name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}

	return filepath.Join(rootDir, name)
}
