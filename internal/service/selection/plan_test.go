package selection

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/oneclick/internal/domain/host"
)

func profile(osFamily host.OSFamily, gpu host.GPUVendor) host.Profile {
	return host.Profile{OS: osFamily, Arch: host.ArchX86_64, HasAVX2: true, GPU: gpu}
}

// TestBuildPlanDecisionTable walks every rule of the framework decision table.
func TestBuildPlanDecisionTable(t *testing.T) {
	t.Parallel()

	cudaRuntime121 := []Command{{Line: `conda install -y -c "nvidia/label/cuda-12.1.1" cuda-runtime`, Required: true}}
	cudaRuntime118 := []Command{{Line: `conda install -y -c "nvidia/label/cuda-11.8.0" cuda-runtime`, Required: true}}

	cases := []struct {
		name    string
		profile host.Profile
		legacy  bool
		want    *InstallPlan
	}{
		{
			name:    "nvidia linux",
			profile: profile(host.OSLinux, host.GPUNvidia),
			want: &InstallPlan{
				GPU:                host.GPUNvidia,
				FrameworkCommand:   "python -m pip install torch==2.1.* torchvision==0.16.* torchaudio==2.1.* --index-url https://download.pytorch.org/whl/cu121",
				RuntimeCommands:    cudaRuntime121,
				RuntimeDescription: "CUDA runtime libraries",
			},
		},
		{
			name:    "nvidia windows legacy",
			profile: profile(host.OSWindows, host.GPUNvidia),
			legacy:  true,
			want: &InstallPlan{
				GPU:                host.GPUNvidia,
				FrameworkCommand:   "python -m pip install torch==2.1.* torchvision==0.16.* torchaudio==2.1.* --index-url https://download.pytorch.org/whl/cu118",
				RuntimeCommands:    cudaRuntime118,
				RuntimeDescription: "CUDA runtime libraries",
				CUDA118:            true,
			},
		},
		{
			name:    "amd linux",
			profile: profile(host.OSLinux, host.GPUAMD),
			want: &InstallPlan{
				GPU:              host.GPUAMD,
				FrameworkCommand: "python -m pip install torch==2.1.* torchvision==0.16.* torchaudio==2.1.* --index-url https://download.pytorch.org/whl/rocm5.6",
			},
		},
		{
			name:    "apple linux",
			profile: profile(host.OSLinux, host.GPUApple),
			want: &InstallPlan{
				GPU:              host.GPUApple,
				FrameworkCommand: "python -m pip install torch==2.1.* torchvision==0.16.* torchaudio==2.1.* --index-url https://download.pytorch.org/whl/cpu",
			},
		},
		{
			name:    "none linux",
			profile: profile(host.OSLinux, host.GPUNone),
			want: &InstallPlan{
				GPU:              host.GPUNone,
				FrameworkCommand: "python -m pip install torch==2.1.* torchvision==0.16.* torchaudio==2.1.* --index-url https://download.pytorch.org/whl/cpu",
			},
		},
		{
			name:    "intel windows",
			profile: profile(host.OSWindows, host.GPUIntel),
			want: &InstallPlan{
				GPU:                host.GPUIntel,
				FrameworkCommand:   intelFrameworkCommand,
				RuntimeDescription: "Intel oneAPI runtime libraries",
				RuntimeCommands: []Command{
					{Line: "conda install -y -c intel dpcpp-cpp-rt=2024.0 mkl-dpcpp=2024.0"},
					{Line: "conda install -y libuv"},
				},
			},
		},
		{
			name:    "apple macos",
			profile: profile(host.OSMacOS, host.GPUApple),
			want: &InstallPlan{
				GPU:              host.GPUApple,
				FrameworkCommand: "python -m pip install torch==2.1.* torchvision==0.16.* torchaudio==2.1.*",
			},
		},
		{
			name:    "none windows",
			profile: profile(host.OSWindows, host.GPUNone),
			want: &InstallPlan{
				GPU:              host.GPUNone,
				FrameworkCommand: "python -m pip install torch==2.1.* torchvision==0.16.* torchaudio==2.1.*",
			},
		},
		{
			name:    "nvidia macos falls through",
			profile: profile(host.OSMacOS, host.GPUNvidia),
			legacy:  true,
			want: &InstallPlan{
				GPU:              host.GPUNvidia,
				FrameworkCommand: "python -m pip install torch==2.1.* torchvision==0.16.* torchaudio==2.1.*",
			},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := BuildPlan(tc.profile, tc.legacy)
			require.NoError(t, err)

			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("plan mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// TestBuildPlanAMDOutsideLinux rejects AMD on every other OS.
func TestBuildPlanAMDOutsideLinux(t *testing.T) {
	t.Parallel()

	for _, osFamily := range []host.OSFamily{host.OSWindows, host.OSMacOS, host.OSOther} {
		plan, err := BuildPlan(profile(osFamily, host.GPUAMD), false)
		require.ErrorIs(t, err, ErrUnsupportedConfiguration, osFamily)
		require.Nil(t, plan)
	}
}

// TestBuildPlanUnresolvedGPU refuses to plan without a GPU choice.
func TestBuildPlanUnresolvedGPU(t *testing.T) {
	t.Parallel()

	_, err := BuildPlan(profile(host.OSLinux, host.GPUUnresolved), false)
	require.ErrorIs(t, err, ErrGPUUnresolved)
}

// TestBuildPlanRequiredRuntime only marks the CUDA runtime as required.
func TestBuildPlanRequiredRuntime(t *testing.T) {
	t.Parallel()

	for _, gpu := range []host.GPUVendor{host.GPUNvidia, host.GPUAMD, host.GPUApple, host.GPUIntel, host.GPUNone} {
		plan, err := BuildPlan(profile(host.OSLinux, gpu), false)
		require.NoError(t, err)

		for _, command := range plan.RuntimeCommands {
			require.Equal(t, gpu == host.GPUNvidia, command.Required, command.Line)
		}
	}
}
