package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds the settings that describe the managed checkout.
type Config struct {
	// RemoteURL is the canonical repository the checkout tracks.
	RemoteURL string `yaml:"remote_url" toml:"remote_url" validate:"required,url"`
	// Branch is the default branch of RemoteURL.
	Branch string `yaml:"branch" toml:"branch" validate:"required"`
	// TrackedFiles are the orchestration files guarded against change during a pull.
	TrackedFiles []string `yaml:"tracked_files" toml:"tracked_files" validate:"min=1,dive,required"`
	// InstallerDir holds the conda installation and the isolated environment.
	InstallerDir string `yaml:"installer_dir" toml:"installer_dir" validate:"required"`
	// FlagsFile stores persisted server flags, one per line.
	FlagsFile string `yaml:"flags_file" toml:"flags_file" validate:"required"`
	// ExtensionsDir contains one directory per extension.
	ExtensionsDir string `yaml:"extensions_dir" toml:"extensions_dir" validate:"required"`
	// SkipExtensions lists extensions whose requirements are known not to install.
	SkipExtensions []string `yaml:"skip_extensions" toml:"skip_extensions"`
	// ServerScript is the application entry point started by the launcher.
	ServerScript string `yaml:"server_script" toml:"server_script" validate:"required"`
	// EnvFile is an optional dotenv file with GPU_CHOICE and friends.
	EnvFile string `yaml:"env_file" toml:"env_file"`
}

const (
	// DefaultConfigFilename is looked up in the working directory when ONECLICK_CONFIG is unset.
	DefaultConfigFilename = "oneclick.yaml"

	// DefaultRemoteURL is the repository cloned into a bare directory.
	DefaultRemoteURL = "https://github.com/oobabooga/text-generation-webui"

	// DefaultBranch is the branch tracked by the checkout.
	DefaultBranch = "main"

	// DefaultInstallerDir is relative to the root directory.
	DefaultInstallerDir = "installer_files"

	// DefaultFlagsFile is relative to the root directory.
	DefaultFlagsFile = "CMD_FLAGS.txt"

	// DefaultExtensionsDir is relative to the root directory.
	DefaultExtensionsDir = "extensions"

	// DefaultServerScript is relative to the root directory.
	DefaultServerScript = "server.py"

	// DefaultEnvFile is relative to the root directory.
	DefaultEnvFile = "oneclick.env"

	// DefaultFilePermissions is used for files the orchestrator writes.
	DefaultFilePermissions = 0o644
)

var (
	// ErrUnsupportedFormat is returned for a config file with an unknown extension.
	ErrUnsupportedFormat = errors.New("unsupported config format")

	//nolint:gochecknoglobals // validator caches struct metadata; one instance is enough.
	validate = validator.New(validator.WithRequiredStructEnabled())
)

// DefaultTrackedFiles returns the start/update scripts and the orchestrator itself.
func DefaultTrackedFiles() []string {
	return []string{
		"start_linux.sh", "start_macos.sh", "start_windows.bat", "start_wsl.bat",
		"update_linux.sh", "update_macos.sh", "update_windows.bat", "update_wsl.bat",
		"oneclick", "oneclick.exe",
	}
}

// DefaultSkipExtensions returns the extensions that fail to install on Windows.
func DefaultSkipExtensions() []string {
	return []string{"superbooga", "superboogav2", "coqui_tts"}
}

// Default returns settings with every field set to its default.
func Default() *Config {
	cfg := new(Config)
	applyDefaults(cfg)

	return cfg
}

// Load reads settings from path, fills missing fields with defaults and validates them.
// The format follows the extension: .yaml/.yml or .toml.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(contents, &cfg)
	case ".toml":
		err = toml.Unmarshal(contents, &cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	if err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	applyDefaults(&cfg)

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadOrDefault loads path when set. With an empty path it loads
// DefaultConfigFilename if that file exists and falls back to Default otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}

	if _, err := os.Stat(DefaultConfigFilename); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}

	return Load(DefaultConfigFilename)
}

// Validate checks required fields and formats.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.RemoteURL == "" {
		cfg.RemoteURL = DefaultRemoteURL
	}

	if cfg.Branch == "" {
		cfg.Branch = DefaultBranch
	}

	if len(cfg.TrackedFiles) == 0 {
		cfg.TrackedFiles = DefaultTrackedFiles()
	}

	if cfg.InstallerDir == "" {
		cfg.InstallerDir = DefaultInstallerDir
	}

	if cfg.FlagsFile == "" {
		cfg.FlagsFile = DefaultFlagsFile
	}

	if cfg.ExtensionsDir == "" {
		cfg.ExtensionsDir = DefaultExtensionsDir
	}

	if cfg.SkipExtensions == nil {
		cfg.SkipExtensions = DefaultSkipExtensions()
	}

	if cfg.ServerScript == "" {
		cfg.ServerScript = DefaultServerScript
	}

	if cfg.EnvFile == "" {
		cfg.EnvFile = DefaultEnvFile
	}
}
