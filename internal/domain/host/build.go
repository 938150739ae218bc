package host

import "strings"

// BuildInfo describes the installed framework build, inferred from the
// local suffix of its version string (for example "2.1.0+cu121").
type BuildInfo struct {
	// Version is the raw version string.
	Version string
	// IsCUDA is set for any CUDA build.
	IsCUDA bool
	// IsCUDA118 is set for CUDA 11.8 builds.
	IsCUDA118 bool
	// IsROCm is set for AMD ROCm builds.
	IsROCm bool
	// IsIntelXPU is set for Intel extension builds.
	IsIntelXPU bool
	// IsCPUOnly is set for "+cpu" builds.
	IsCPUOnly bool
}

// buildMarker maps a version substring to the flags it sets.
type buildMarker struct {
	substring string
	apply     func(*BuildInfo)
}

// buildMarkers is the declared substring → variant table. Every matching
// marker applies, so "+cu118" sets both IsCUDA and IsCUDA118.
//
//nolint:gochecknoglobals // Static lookup table.
var buildMarkers = []buildMarker{
	// 2.1.0+cu121
	{substring: "+cu", apply: func(b *BuildInfo) { b.IsCUDA = true }},
	// 2.1.0+cu118
	{substring: "+cu118", apply: func(b *BuildInfo) { b.IsCUDA118 = true }},
	// 2.0.1+rocm5.4.2
	{substring: "+rocm", apply: func(b *BuildInfo) { b.IsROCm = true }},
	// 2.0.1a0+cxx11.abi
	{substring: "+cxx11", apply: func(b *BuildInfo) { b.IsIntelXPU = true }},
	// 2.0.1+cpu
	{substring: "+cpu", apply: func(b *BuildInfo) { b.IsCPUOnly = true }},
}

// ClassifyBuild derives BuildInfo from a framework version string.
// A version without a local suffix (the default channel, e.g. on macOS)
// sets no variant flag.
func ClassifyBuild(version string) BuildInfo {
	info := BuildInfo{Version: strings.TrimSpace(version)}

	for _, marker := range buildMarkers {
		if strings.Contains(info.Version, marker.substring) {
			marker.apply(&info)
		}
	}

	return info
}

// IsAccelerated reports whether the build targets CUDA or ROCm.
func (b BuildInfo) IsAccelerated() bool {
	return b.IsCUDA || b.IsROCm
}
