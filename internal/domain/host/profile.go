package host

import (
	"errors"
	"fmt"
	"strings"
)

// OSFamily is the operating system family of the host.
type OSFamily string

// Supported OS families. OSOther covers platforms without a dedicated branch.
const (
	OSLinux   OSFamily = "linux"
	OSWindows OSFamily = "windows"
	OSMacOS   OSFamily = "macos"
	OSOther   OSFamily = "other"
)

// OSFromGOOS maps a runtime.GOOS value to an OS family.
func OSFromGOOS(goos string) OSFamily {
	switch goos {
	case "linux":
		return OSLinux
	case "windows":
		return OSWindows
	case "darwin":
		return OSMacOS
	default:
		return OSOther
	}
}

// Arch is the CPU architecture class relevant for wheel selection.
type Arch string

// Architectures distinguished by requirement selection.
const (
	ArchX86_64 Arch = "x86_64"
	ArchOther  Arch = "other"
)

// ArchFromGOARCH maps a runtime.GOARCH value to an architecture class.
func ArchFromGOARCH(goarch string) Arch {
	if goarch == "amd64" {
		return ArchX86_64
	}

	return ArchOther
}

// GPUVendor identifies the accelerator the framework build must target.
// The zero value means the vendor was not resolved (update-only runs).
type GPUVendor string

// GPU vendors offered in the selection menu.
const (
	GPUUnresolved GPUVendor = ""
	GPUNvidia     GPUVendor = "NVIDIA"
	GPUAMD        GPUVendor = "AMD"
	GPUApple      GPUVendor = "APPLE"
	GPUIntel      GPUVendor = "INTEL"
	GPUNone       GPUVendor = "NONE"
)

// ErrInvalidGPUChoice is returned for a menu letter or vendor name that is not recognized.
var ErrInvalidGPUChoice = errors.New("invalid GPU choice")

// MenuOption is one line of the GPU selection menu.
type MenuOption struct {
	// Letter is typed by the user to pick the option.
	Letter string
	// Vendor is the vendor the letter resolves to.
	Vendor GPUVendor
	// Label is shown next to the letter.
	Label string
}

// GPUMenu returns the GPU selection menu in display order.
func GPUMenu() []MenuOption {
	return []MenuOption{
		{Letter: "A", Vendor: GPUNvidia, Label: "NVIDIA"},
		{Letter: "B", Vendor: GPUAMD, Label: "AMD (Linux/MacOS only. Requires ROCm SDK 5.6 on Linux)"},
		{Letter: "C", Vendor: GPUApple, Label: "Apple M Series"},
		{Letter: "D", Vendor: GPUIntel, Label: "Intel Arc (IPEX)"},
		{Letter: "N", Vendor: GPUNone, Label: "None (I want to run models in CPU mode)"},
	}
}

// ParseGPUChoice accepts either a menu letter or a vendor name, case-insensitively.
func ParseGPUChoice(s string) (GPUVendor, error) {
	choice := strings.ToUpper(strings.Trim(strings.TrimSpace(s), `"'`))
	if choice == "" {
		return GPUUnresolved, fmt.Errorf("%w: empty input", ErrInvalidGPUChoice)
	}

	for _, option := range GPUMenu() {
		if choice == option.Letter || choice == string(option.Vendor) {
			return option.Vendor, nil
		}
	}

	return GPUUnresolved, fmt.Errorf("%w: %q", ErrInvalidGPUChoice, s)
}

// Profile describes the host. It is a value type: build it once per run and
// derive modified copies with the With* methods.
type Profile struct {
	// OS is the operating system family.
	OS OSFamily
	// Arch is the CPU architecture class.
	Arch Arch
	// HasAVX2 reports AVX2 support (fail-open, see probe).
	HasAVX2 bool
	// HasAMX reports AMX tile support (fail-open, see probe).
	HasAMX bool
	// GPU is the accelerator vendor chosen for this machine.
	GPU GPUVendor
}

// WithGPU returns a copy of the profile with the GPU vendor set.
func (p Profile) WithGPU(vendor GPUVendor) Profile {
	p.GPU = vendor
	return p
}

// String renders the profile for logs.
func (p Profile) String() string {
	gpu := string(p.GPU)
	if gpu == "" {
		gpu = "unresolved"
	}

	return fmt.Sprintf("os=%s arch=%s avx2=%t amx=%t gpu=%s", p.OS, p.Arch, p.HasAVX2, p.HasAMX, gpu)
}
