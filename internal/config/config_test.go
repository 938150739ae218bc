package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestDefaultIsValid ensures the built-in defaults pass validation.
func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, Validate(cfg))
	require.Equal(t, DefaultRemoteURL, cfg.RemoteURL)
	require.Contains(t, cfg.TrackedFiles, "update_linux.sh")
	require.Equal(t, DefaultSkipExtensions(), cfg.SkipExtensions)
}

// TestValidate rejects a malformed remote and empty tracked file names.
func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.RemoteURL = "not a url"
	require.Error(t, Validate(cfg))

	cfg = Default()
	cfg.TrackedFiles = []string{"start_linux.sh", ""}
	require.Error(t, Validate(cfg))

	cfg = Default()
	cfg.Branch = ""
	require.Error(t, Validate(cfg))
}

// TestLoadYAML reads a partial YAML file and fills the rest with defaults.
func TestLoadYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "oneclick.yaml")
	contents := "remote_url: https://example.com/fork.git\nbranch: dev\nskip_extensions: []\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), DefaultFilePermissions))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "https://example.com/fork.git", cfg.RemoteURL)
	require.Equal(t, "dev", cfg.Branch)
	require.Empty(t, cfg.SkipExtensions)
	require.Equal(t, DefaultFlagsFile, cfg.FlagsFile)
	require.Equal(t, DefaultTrackedFiles(), cfg.TrackedFiles)
}

// TestLoadTOML reads the same settings from TOML.
func TestLoadTOML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "oneclick.toml")
	contents := "branch = \"release\"\ntracked_files = [\"oneclick\"]\nserver_script = \"app.py\"\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), DefaultFilePermissions))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "release", cfg.Branch)
	require.Equal(t, []string{"oneclick"}, cfg.TrackedFiles)
	require.Equal(t, "app.py", cfg.ServerScript)
	require.Equal(t, DefaultRemoteURL, cfg.RemoteURL)
}

// TestLoadErrors covers a missing file, an unknown extension and an invalid value.
func TestLoadErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	jsonPath := filepath.Join(dir, "oneclick.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte("{}"), DefaultFilePermissions))

	_, err = Load(jsonPath)
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	badPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badPath, []byte("remote_url: ftp//nope\n"), DefaultFilePermissions))

	_, err = Load(badPath)
	require.Error(t, err)
}

// TestLoadOrDefault falls back to defaults when no file is present in the working directory.
func TestLoadOrDefault(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := LoadOrDefault("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)

	require.NoError(t, os.WriteFile(DefaultConfigFilename, []byte("branch: next\n"), DefaultFilePermissions))

	cfg, err = LoadOrDefault("")
	require.NoError(t, err)
	require.Equal(t, "next", cfg.Branch)
}
