package probe

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/oshokin/oneclick/internal/config"
	"github.com/oshokin/oneclick/internal/domain/host"
	"github.com/oshokin/oneclick/internal/logger"
	"github.com/oshokin/oneclick/internal/shell"
)

// ErrFrameworkNotInstalled is returned when no framework build can be found.
var ErrFrameworkNotInstalled = errors.New("framework is not installed")

// errNoVersionLine is returned when version.py carries no __version__ assignment.
var errNoVersionLine = errors.New("no __version__ line")

const (
	// frameworkPackage is the site-packages directory of the framework.
	frameworkPackage = "torch"

	// introspectCommand prints the version of an importable framework build.
	introspectCommand = `python -c "import torch; print(torch.__version__)"`
)

// Prober inspects the host and the isolated environment.
type Prober struct {
	rc       *config.RunContext
	runner   shell.Runner
	features FeatureDetector
	goarch   string
}

// New creates a Prober using x/sys/cpu for feature detection.
func New(rc *config.RunContext, runner shell.Runner) *Prober {
	return &Prober{
		rc:       rc,
		runner:   runner,
		features: DetectCPUFeatures,
		goarch:   runtime.GOARCH,
	}
}

// WithFeatureDetector replaces the CPU feature source.
func (p *Prober) WithFeatureDetector(detect FeatureDetector) *Prober {
	p.features = detect
	return p
}

// DetectHost returns the host profile with an unresolved GPU vendor.
func (p *Prober) DetectHost(ctx context.Context) host.Profile {
	features, err := failOpen(p.features)
	if err != nil {
		logger.DebugKV(ctx, "CPU feature detection failed, assuming features are present", "error", err)
	}

	profile := host.Profile{
		OS:      p.rc.OS,
		Arch:    host.ArchFromGOARCH(p.goarch),
		HasAVX2: features.AVX2,
		HasAMX:  features.AMX,
	}

	logger.DebugKV(ctx, "Detected host", "profile", profile.String())

	return profile
}

// SitePackages returns the site-packages directory of the isolated environment, if any.
func (p *Prober) SitePackages() (string, bool) {
	patterns := []string{
		filepath.Join(p.rc.EnvDir, "lib", "python*", "site-packages"),
		filepath.Join(p.rc.EnvDir, "Lib", "site-packages"),
	}

	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil || len(matches) == 0 {
			continue
		}

		// Prefer the highest python version when several exist.
		sort.Sort(sort.Reverse(sort.StringSlice(matches)))

		for _, match := range matches {
			if info, statErr := os.Stat(match); statErr == nil && info.IsDir() {
				return match, true
			}
		}
	}

	return "", false
}

// IsInstalled reports whether the framework is present in the environment.
// Without a site-packages directory the environment directory itself decides.
func (p *Prober) IsInstalled() bool {
	if sitePackages, ok := p.SitePackages(); ok {
		return fileExists(filepath.Join(sitePackages, frameworkPackage, "__init__.py"))
	}

	info, err := os.Stat(p.rc.EnvDir)

	return err == nil && info.IsDir()
}

// DetectBuild returns the installed framework build.
func (p *Prober) DetectBuild(ctx context.Context) (host.BuildInfo, error) {
	if sitePackages, ok := p.SitePackages(); ok {
		version, err := readVersionFile(filepath.Join(sitePackages, frameworkPackage, "version.py"))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return host.BuildInfo{}, ErrFrameworkNotInstalled
			}

			return host.BuildInfo{}, fmt.Errorf("read framework version: %w", err)
		}

		return host.ClassifyBuild(version), nil
	}

	result, err := p.runner.Run(ctx, introspectCommand, shell.Options{Environment: true, CaptureOutput: true})
	if err != nil {
		return host.BuildInfo{}, fmt.Errorf("introspect framework: %w", err)
	}

	version := lastLine(string(result.Output))
	if result.Failed() || version == "" {
		return host.BuildInfo{}, ErrFrameworkNotInstalled
	}

	return host.ClassifyBuild(version), nil
}

// readVersionFile extracts the value of `__version__ = '...'` from version.py.
func readVersionFile(path string) (string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", err
	}

	defer func() {
		_ = f.Close()
	}()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "__version__") {
			continue
		}

		_, value, found := strings.Cut(line, "__version__ = ")
		if !found {
			continue
		}

		return strings.Trim(strings.TrimSpace(value), `'"`), nil
	}

	if err = scanner.Err(); err != nil {
		return "", err
	}

	return "", fmt.Errorf("%s: %w", path, errNoVersionLine)
}

func lastLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
