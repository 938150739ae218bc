package selection

import (
	"errors"
	"fmt"

	"github.com/oshokin/oneclick/internal/domain/host"
)

const (
	// frameworkPackages pins the framework and its companion packages.
	frameworkPackages = "torch==2.1.* torchvision==0.16.* torchaudio==2.1.*"

	// pipInstall prefixes every framework install command.
	pipInstall = "python -m pip install "

	// wheelIndex hosts accelerator-specific framework builds.
	wheelIndex = "https://download.pytorch.org/whl/"

	// intelFrameworkCommand installs the Intel XPU builds from the extension channel.
	intelFrameworkCommand = "python -m pip install torch==2.1.0a0 torchvision==0.16.0a0 torchaudio==2.1.0a0 " +
		"intel-extension-for-pytorch==2.1.10 --extra-index-url https://pytorch-extension.intel.com/release-whl/stable/xpu/us/"
)

// Accelerator index names.
const (
	IndexCUDA121 = "cu121"
	IndexCUDA118 = "cu118"
	IndexROCm    = "rocm5.6"
	IndexCPU     = "cpu"
)

var (
	// ErrUnsupportedConfiguration is returned for GPU/OS pairs without an install path.
	ErrUnsupportedConfiguration = errors.New("unsupported GPU/OS combination")
	// ErrGPUUnresolved is returned when the plan is requested before the GPU vendor was chosen.
	ErrGPUUnresolved = errors.New("GPU vendor is not resolved")
)

// Command is one package-manager invocation of the plan.
type Command struct {
	// Line is the command line run inside the isolated environment.
	Line string
	// Required aborts the run when the command fails.
	Required bool
}

// InstallPlan is the framework part of an installation, computed once per run.
type InstallPlan struct {
	// GPU is the vendor the plan was built for.
	GPU host.GPUVendor
	// FrameworkCommand installs the framework build.
	FrameworkCommand string
	// RuntimeCommands install accelerator runtimes, in order.
	RuntimeCommands []Command
	// RuntimeDescription names the runtime for progress banners; empty without runtime commands.
	RuntimeDescription string
	// CUDA118 is set when the CUDA 11.8 index was chosen.
	CUDA118 bool
}

// BuildPlan selects the framework install for profile. The first matching
// rule wins:
//  1. NVIDIA on Linux or Windows: CUDA 12.1 index, or 11.8 with useLegacyCUDA, plus the CUDA runtime.
//  2. AMD on Linux: ROCm index. AMD anywhere else is unsupported.
//  3. Apple or None on Linux: CPU-only index.
//  4. Intel: Intel extension channel plus oneAPI runtime packages.
//  5. Anything else: the default channel.
func BuildPlan(profile host.Profile, useLegacyCUDA bool) (*InstallPlan, error) {
	plan := &InstallPlan{GPU: profile.GPU}

	isLinux := profile.OS == host.OSLinux

	switch {
	case profile.GPU == host.GPUUnresolved:
		return nil, ErrGPUUnresolved
	case profile.GPU == host.GPUNvidia && (isLinux || profile.OS == host.OSWindows):
		index, runtimeLabel := IndexCUDA121, "cuda-12.1.1"
		if useLegacyCUDA {
			index, runtimeLabel = IndexCUDA118, "cuda-11.8.0"
		}

		plan.CUDA118 = useLegacyCUDA
		plan.FrameworkCommand = indexedInstall(index)
		plan.RuntimeDescription = "CUDA runtime libraries"
		plan.RuntimeCommands = []Command{{
			Line:     fmt.Sprintf(`conda install -y -c "nvidia/label/%s" cuda-runtime`, runtimeLabel),
			Required: true,
		}}
	case profile.GPU == host.GPUAMD:
		if !isLinux {
			return nil, fmt.Errorf("%w: AMD GPUs are only supported on Linux, got %s", ErrUnsupportedConfiguration, profile.OS)
		}

		plan.FrameworkCommand = indexedInstall(IndexROCm)
	case isLinux && (profile.GPU == host.GPUApple || profile.GPU == host.GPUNone):
		plan.FrameworkCommand = indexedInstall(IndexCPU)
	case profile.GPU == host.GPUIntel:
		plan.FrameworkCommand = intelFrameworkCommand
		plan.RuntimeDescription = "Intel oneAPI runtime libraries"
		plan.RuntimeCommands = []Command{
			{Line: "conda install -y -c intel dpcpp-cpp-rt=2024.0 mkl-dpcpp=2024.0"},
			{Line: "conda install -y libuv"},
		}
	default:
		plan.FrameworkCommand = pipInstall + frameworkPackages
	}

	return plan, nil
}

func indexedInstall(index string) string {
	return pipInstall + frameworkPackages + " --index-url " + wheelIndex + index
}
