package selection

import (
	"strings"

	"github.com/oshokin/oneclick/internal/domain/host"
)

const (
	// legacyCUDASuffix replaces newer CUDA local version suffixes.
	legacyCUDASuffix = "+cu118"

	// flashAttentionSource has no CUDA 11.8 wheels for Windows.
	flashAttentionSource = "jllllll/flash-attention"

	// gitRequirementPrefix marks requirements installed from a VCS URL.
	gitRequirementPrefix = "git+"
)

// newerCUDASuffixes are rewritten to legacyCUDASuffix on legacy CUDA hosts.
//
//nolint:gochecknoglobals // Static lookup table.
var newerCUDASuffixes = []string{"+cu121", "+cu122"}

// SelectRequirementsFile returns the requirements file for the installed
// build. The checks form a flat priority list: ROCm, then CPU-only or
// Intel, then macOS, then the default. "_noavx2" is appended without AVX2
// except for the Apple files.
func SelectRequirementsFile(build host.BuildInfo, profile host.Profile) string {
	noAVX2 := ""
	if !profile.HasAVX2 {
		noAVX2 = "_noavx2"
	}

	switch {
	case build.IsROCm:
		return "requirements_amd" + noAVX2 + ".txt"
	case build.IsCPUOnly || build.IsIntelXPU:
		return "requirements_cpu_only" + noAVX2 + ".txt"
	case profile.OS == host.OSMacOS:
		if profile.Arch == host.ArchX86_64 {
			return "requirements_apple_intel.txt"
		}

		return "requirements_apple_silicon.txt"
	default:
		return "requirements" + noAVX2 + ".txt"
	}
}

// PatchRequirements rewrites requirement lines for the installed build.
// With legacyCUDA every "+cu121"/"+cu122" becomes "+cu118", and on Windows
// lines pulling flash-attention are dropped. The input is not modified.
func PatchRequirements(lines []string, osFamily host.OSFamily, legacyCUDA bool) []string {
	patched := make([]string, 0, len(lines))

	for _, line := range lines {
		if legacyCUDA {
			for _, suffix := range newerCUDASuffixes {
				line = strings.ReplaceAll(line, suffix, legacyCUDASuffix)
			}

			if osFamily == host.OSWindows && strings.Contains(line, flashAttentionSource) {
				continue
			}
		}

		patched = append(patched, line)
	}

	return patched
}

// GitRequirementPackages returns the package names of requirements sourced
// from a VCS URL, e.g. "git+https://github.com/org/pkg.git@v1" yields "pkg".
func GitRequirementPackages(lines []string) []string {
	var packages []string

	for _, line := range lines {
		if !strings.HasPrefix(line, gitRequirementPrefix) {
			continue
		}

		url := strings.TrimPrefix(strings.TrimSpace(line), gitRequirementPrefix)
		url = strings.TrimRight(url, "/")
		name := url[strings.LastIndex(url, "/")+1:]
		name, _, _ = strings.Cut(name, "@")
		name = strings.TrimSuffix(name, ".git")

		if name != "" {
			packages = append(packages, name)
		}
	}

	return packages
}
