package probe

import (
	"errors"
	"runtime"

	"golang.org/x/sys/cpu"
)

// errFeatureDetectionUnavailable is returned when CPU flags cannot be queried.
var errFeatureDetectionUnavailable = errors.New("cpu feature detection unavailable")

// Features are the CPU flags relevant for wheel selection.
type Features struct {
	AVX2 bool
	AMX  bool
}

// FeatureDetector reports CPU features or an error when detection is unavailable.
type FeatureDetector func() (Features, error)

// DetectCPUFeatures queries x86 CPUID through golang.org/x/sys/cpu.
func DetectCPUFeatures() (Features, error) {
	return featuresFor(runtime.GOARCH, cpu.Initialized, Features{
		AVX2: cpu.X86.HasAVX2,
		AMX:  cpu.X86.HasAMXTile,
	})
}

// featuresFor reports x86 flags on x86 and no flags on other architectures.
func featuresFor(goarch string, initialized bool, x86 Features) (Features, error) {
	if !initialized {
		return Features{}, errFeatureDetectionUnavailable
	}

	switch goarch {
	case "amd64", "386":
		return x86, nil
	default:
		return Features{}, nil
	}
}

// failOpen returns every feature as present when detect fails.
func failOpen(detect FeatureDetector) (Features, error) {
	features, err := detect()
	if err != nil {
		return Features{AVX2: true, AMX: true}, err
	}

	return features, nil
}
