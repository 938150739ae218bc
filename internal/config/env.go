package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables recognized by the orchestrator.
const (
	EnvGPUChoice          = "GPU_CHOICE"
	EnvUseCUDA118         = "USE_CUDA118"
	EnvInstallExtensions  = "INSTALL_EXTENSIONS"
	EnvLaunchAfterInstall = "LAUNCH_AFTER_INSTALL"
	EnvCondaDefaultEnv    = "CONDA_DEFAULT_ENV"
	EnvConfigPath         = "ONECLICK_CONFIG"
	EnvLogLevel           = "ONECLICK_LOG_LEVEL"
)

// LookupFunc reads an environment variable; os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Toggle is a yes/no setting that may be left unset.
type Toggle int

// Toggle states.
const (
	ToggleUnset Toggle = iota
	ToggleOn
	ToggleOff
)

// Resolve returns the toggle value, or fallback when unset.
func (t Toggle) Resolve(fallback bool) bool {
	switch t {
	case ToggleOn:
		return true
	case ToggleOff:
		return false
	default:
		return fallback
	}
}

// IsSet reports whether the toggle was given explicitly.
func (t Toggle) IsSet() bool {
	return t != ToggleUnset
}

// IsTruthy reports whether s is one of yes, y, true, 1, t, on (any case).
func IsTruthy(s string) bool {
	return slices.Contains([]string{"yes", "y", "true", "1", "t", "on"}, strings.ToLower(strings.TrimSpace(s)))
}

// IsFalsy reports whether s is one of no, n, false, 0, f, off (any case).
func IsFalsy(s string) bool {
	return slices.Contains([]string{"no", "n", "false", "0", "f", "off"}, strings.ToLower(strings.TrimSpace(s)))
}

// toggleFromEnv turns a present variable into ToggleOn when truthy and ToggleOff otherwise.
func toggleFromEnv(lookup LookupFunc, key string) Toggle {
	value, ok := lookup(key)
	if !ok {
		return ToggleUnset
	}

	if IsTruthy(value) {
		return ToggleOn
	}

	return ToggleOff
}

// LoadEnvFile loads variables from a dotenv file into the process environment.
// Variables already set win over the file; a missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}

	return nil
}
