package installer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/oneclick/internal/config"
	"github.com/oshokin/oneclick/internal/logger"
	"github.com/oshokin/oneclick/internal/service/fingerprint"
	"github.com/oshokin/oneclick/internal/service/selection"
	"github.com/oshokin/oneclick/internal/shell"
)

const (
	// TempRequirementsFile holds the patched requirements while they are installed.
	TempRequirementsFile = "temp_requirements.txt"

	// RepositoriesDir receives source checkouts of accelerated loaders.
	RepositoriesDir = "repositories"

	// requirementsFilename is the per-extension requirements file.
	requirementsFilename = "requirements.txt"

	// apiExtension always gets its requirements installed when present.
	apiExtension = "openai"

	// acceleratedCondaPackage marks CUDA environments created by older installers.
	acceleratedCondaPackage = "conda list -f pytorch-cuda | grep pytorch-cuda"

	// grepNoMatch is the status grep exits with when nothing matched.
	grepNoMatch = 1
)

// InstallRequirements installs the requirements for the framework build
// found in the environment. It is the whole installation on update runs.
func (d *Driver) InstallRequirements(ctx context.Context, installExtensions bool) error {
	ctx = logger.WithName(ctx, "installer")

	defer d.clearCacheUnlessCanceled(ctx)

	return d.installRequirements(ctx, installExtensions)
}

func (d *Driver) installRequirements(ctx context.Context, installExtensions bool) (err error) {
	if installExtensions {
		if err = d.installExtensionRequirements(ctx); err != nil {
			return err
		}
	}

	build, err := d.builds.DetectBuild(ctx)
	if err != nil {
		return fmt.Errorf("detect framework build: %w", err)
	}

	requirementsFile := selection.SelectRequirementsFile(build, d.profile)

	d.out.Print("Installing application requirements from file: " + requirementsFile)
	d.out.Printf("TORCH: %s\n\n", build.Version)

	lines, err := readLines(d.rc.Path(requirementsFile))
	if err != nil {
		return fmt.Errorf("read requirements: %w", err)
	}

	lines = selection.PatchRequirements(lines, d.rc.OS, build.IsCUDA118)

	tempPath := d.rc.Path(TempRequirementsFile)
	if err = writeVerified(tempPath, []byte(strings.Join(lines, "\n"))); err != nil {
		return fmt.Errorf("write %s: %w", TempRequirementsFile, err)
	}

	defer func() {
		if removeErr := os.Remove(tempPath); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			logger.WarnKV(ctx, "Unable to remove temporary requirements", "error", removeErr)
		}
	}()

	var steps []step

	for _, name := range selection.GitRequirementPackages(lines) {
		steps = append(steps, step{
			command: "python -m pip uninstall -y " + name,
			opts:    shell.Options{Environment: true},
		})
	}

	apiRequirements := filepath.Join(d.rc.Config.ExtensionsDir, apiExtension, requirementsFilename)
	if fileExists(d.rc.Path(apiRequirements)) {
		steps = append(steps, step{
			command: pipInstallRequirements(apiRequirements),
			opts:    shell.Options{Environment: true},
		})
	}

	steps = append(steps, step{
		command: pipInstallRequirements(TempRequirementsFile),
		opts:    shell.Options{Environment: true, Required: true},
	})

	if err = d.runSteps(ctx, steps); err != nil {
		return err
	}

	return d.ensureRepositoriesDir(ctx, build.IsAccelerated())
}

// installExtensionRequirements installs every extension's requirements
// except the configured skip list. Failures are tolerated.
func (d *Driver) installExtensionRequirements(ctx context.Context) error {
	extensions, err := d.listExtensions()
	if err != nil {
		return err
	}

	d.out.Print("Installing extensions requirements.\n" +
		"Some of these may fail on Windows.\n" +
		"Don't worry if you see error messages, as they will not affect the main program.")

	for i, name := range extensions {
		d.out.Printf("\n\n--- [%d/%d]: %s\n\n\n", i+1, len(extensions), name)

		command := pipInstallRequirements(filepath.Join(d.rc.Config.ExtensionsDir, name, requirementsFilename))

		result, runErr := d.runner.Run(ctx, command, shell.Options{Environment: true})
		if runErr != nil {
			return runErr
		}

		if result.Failed() {
			logger.WarnKV(ctx, "Extension requirements failed", "extension", name, "status", result.ExitStatus)
		}
	}

	return nil
}

// listExtensions returns the extensions that carry a requirements file, in directory order.
func (d *Driver) listExtensions() ([]string, error) {
	entries, err := os.ReadDir(d.rc.Path(d.rc.Config.ExtensionsDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("list extensions: %w", err)
	}

	var extensions []string

	for _, entry := range entries {
		name := entry.Name()
		if slices.Contains(d.rc.Config.SkipExtensions, name) {
			continue
		}

		if fileExists(d.rc.Path(filepath.Join(d.rc.Config.ExtensionsDir, name, requirementsFilename))) {
			extensions = append(extensions, name)
		}
	}

	return extensions, nil
}

// ensureRepositoriesDir creates RepositoriesDir for CUDA or ROCm environments.
func (d *Driver) ensureRepositoriesDir(ctx context.Context, accelerated bool) error {
	if !accelerated {
		result, err := d.runner.Run(ctx, acceleratedCondaPackage, shell.Options{Environment: true, CaptureOutput: true})
		if err != nil {
			return err
		}

		if result.ExitStatus == grepNoMatch {
			return nil
		}
	}

	if err := os.MkdirAll(d.rc.Path(RepositoriesDir), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", RepositoriesDir, err)
	}

	return nil
}

// clearCacheUnlessCanceled purges the package caches unless the run was interrupted.
func (d *Driver) clearCacheUnlessCanceled(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	d.clearCache(ctx)
}

// clearCache purges the package caches. Failures are only logged.
func (d *Driver) clearCache(ctx context.Context) {
	for _, command := range []string{"conda clean -a -y", "python -m pip cache purge"} {
		result, err := d.runner.Run(ctx, command, shell.Options{Environment: true})
		if err != nil {
			logger.WarnKV(ctx, "Cache cleanup failed", "command", command, "error", err)
			continue
		}

		if result.Failed() {
			logger.DebugKV(ctx, "Cache cleanup exited with non-zero status", "command", command, "status", result.ExitStatus)
		}
	}
}

func pipInstallRequirements(path string) string {
	return "python -m pip install -r " + path + " --upgrade"
}

// writeVerified replaces path with data through go-update, which checks the
// written bytes against their checksum before swapping the file in.
func writeVerified(path string, data []byte) error {
	checksum, err := fingerprint.Checksum(data)
	if err != nil {
		return err
	}

	if _, err = os.Stat(path); err != nil && os.IsNotExist(err) {
		var file *os.File
		if file, err = os.Create(filepath.Clean(path)); err != nil {
			return err
		}

		_ = file.Close()
	}

	options := goupdate.Options{
		TargetPath: path,
		TargetMode: config.DefaultFilePermissions,
		Checksum:   checksum,
		Hash:       fingerprint.DefaultChecksumFunction,
	}

	if err = goupdate.Apply(bytes.NewReader(data), options); err != nil {
		return err
	}

	oldPath := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".old")
	if _, err = os.Stat(oldPath); err == nil {
		_ = os.Remove(oldPath)
	}

	return nil
}

// readLines splits a file into lines without line terminators.
func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	var lines []string

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), len(data)+1)

	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	return lines, scanner.Err()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
