package installer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/oneclick/internal/banner"
	"github.com/oshokin/oneclick/internal/config"
	"github.com/oshokin/oneclick/internal/domain/host"
	"github.com/oshokin/oneclick/internal/service/selection"
	"github.com/oshokin/oneclick/internal/shell"
	"github.com/oshokin/oneclick/internal/shell/shelltest"
)

type fakeBuilds struct {
	version string
	err     error
}

func (f fakeBuilds) DetectBuild(context.Context) (host.BuildInfo, error) {
	if f.err != nil {
		return host.BuildInfo{}, f.err
	}

	return host.ClassifyBuild(f.version), nil
}

type fixture struct {
	rc       *config.RunContext
	recorder *shelltest.Recorder
	driver   *Driver
	out      *bytes.Buffer
}

func newFixture(t *testing.T, goos, version string, profile host.Profile) *fixture {
	t.Helper()

	rc := config.NewRunContext(config.Default(), t.TempDir(), goos, nil, func(string) (string, bool) { return "", false })
	recorder := shelltest.New()

	var out bytes.Buffer

	return &fixture{
		rc:       rc,
		recorder: recorder,
		driver:   New(rc, recorder, fakeBuilds{version: version}, profile, banner.New(&out)),
		out:      &out,
	}
}

func (f *fixture) write(t *testing.T, name, content string) {
	t.Helper()

	path := f.rc.Path(name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

var linuxAVX2 = host.Profile{OS: host.OSLinux, Arch: host.ArchX86_64, HasAVX2: true}

// TestExecuteNvidia runs the full step sequence for a current CUDA host.
func TestExecuteNvidia(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "linux", "2.1.0+cu121", linuxAVX2.WithGPU(host.GPUNvidia))
	f.write(t, "requirements.txt", "accelerate==0.25.*\nexllamav2-0.0.11+cu121.whl\n")

	plan, err := selection.BuildPlan(linuxAVX2.WithGPU(host.GPUNvidia), false)
	require.NoError(t, err)

	require.NoError(t, f.driver.Execute(context.Background(), plan, false))
	require.Equal(t, []string{
		plan.FrameworkCommand,
		plan.RuntimeCommands[0].Line,
		cpuInfoCommand,
		"python -m pip install -r temp_requirements.txt --upgrade",
		"conda clean -a -y",
		"python -m pip cache purge",
	}, f.recorder.Commands())

	require.DirExists(t, f.rc.Path(RepositoriesDir))
	require.NoFileExists(t, f.rc.Path(TempRequirementsFile))

	output := f.out.String()
	require.Contains(t, output, "Installing PyTorch.")
	require.Contains(t, output, "Installing the CUDA runtime libraries.")
	require.Contains(t, output, "Installing application requirements from file: requirements.txt")
	require.Contains(t, output, "TORCH: 2.1.0+cu121")
}

// TestExecuteFrameworkFailure aborts the install but still purges the caches.
func TestExecuteFrameworkFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "linux", "2.1.0+cpu", linuxAVX2.WithGPU(host.GPUNone))
	f.recorder.Fail("torch==2.1", 1)

	plan, err := selection.BuildPlan(linuxAVX2.WithGPU(host.GPUNone), false)
	require.NoError(t, err)

	err = f.driver.Execute(context.Background(), plan, false)

	var commandErr *shell.CommandError
	require.ErrorAs(t, err, &commandErr)
	require.Equal(t, plan.FrameworkCommand, commandErr.Command)
	require.Equal(t, []string{
		plan.FrameworkCommand,
		"conda clean -a -y",
		"python -m pip cache purge",
	}, f.recorder.Commands())
}

// TestExecuteRuntimeFailureCleansUp purges the caches once when the required CUDA runtime fails.
func TestExecuteRuntimeFailureCleansUp(t *testing.T) {
	t.Parallel()

	profile := linuxAVX2.WithGPU(host.GPUNvidia)
	f := newFixture(t, "linux", "2.1.0+cu121", profile)

	plan, err := selection.BuildPlan(profile, false)
	require.NoError(t, err)

	f.recorder.Fail(plan.RuntimeCommands[0].Line, 1)

	err = f.driver.Execute(context.Background(), plan, false)

	var commandErr *shell.CommandError
	require.ErrorAs(t, err, &commandErr)
	require.Empty(t, f.recorder.CommandsContaining(cpuInfoCommand))
	require.Len(t, f.recorder.CommandsContaining("conda clean -a -y"), 1)
	require.Len(t, f.recorder.CommandsContaining("pip cache purge"), 1)
}

// TestExecuteCanceledSkipsCleanup leaves the caches alone after an interrupt.
func TestExecuteCanceledSkipsCleanup(t *testing.T) {
	t.Parallel()

	profile := linuxAVX2.WithGPU(host.GPUNone)
	f := newFixture(t, "linux", "2.1.0+cpu", profile)

	plan, err := selection.BuildPlan(profile, false)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	f.recorder.OnRun = func(command string) {
		if strings.Contains(command, "torch==2.1") {
			cancel()
		}
	}
	f.recorder.Fail("torch==2.1", 1)

	defer cancel()

	require.Error(t, f.driver.Execute(ctx, plan, false))
	require.Empty(t, f.recorder.CommandsContaining("conda clean"))
}

// TestExecuteIntelRuntimeBestEffort continues past failing oneAPI packages.
func TestExecuteIntelRuntimeBestEffort(t *testing.T) {
	t.Parallel()

	profile := linuxAVX2.WithGPU(host.GPUIntel)
	f := newFixture(t, "linux", "2.1.0a0+cxx11.abi", profile)
	f.write(t, "requirements_cpu_only.txt", "numpy\n")
	f.recorder.Fail("dpcpp-cpp-rt", 1).Fail("libuv", 1)

	plan, err := selection.BuildPlan(profile, false)
	require.NoError(t, err)

	require.NoError(t, f.driver.Execute(context.Background(), plan, false))
	require.Len(t, f.recorder.CommandsContaining("temp_requirements.txt"), 1)
	require.Contains(t, f.out.String(), "Installing the Intel oneAPI runtime libraries.")
}

// TestExecuteNilPlan refuses to run without a plan.
func TestExecuteNilPlan(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "linux", "2.1.0+cpu", linuxAVX2)
	require.ErrorIs(t, f.driver.Execute(context.Background(), nil, false), errNoPlan)
	require.Empty(t, f.recorder.Commands())
}

// TestInstallBaseTools installs build tools as a required step.
func TestInstallBaseTools(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "linux", "", linuxAVX2)
	require.NoError(t, f.driver.InstallBaseTools(context.Background()))

	calls := f.recorder.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, baseToolsCommand, calls[0].Command)
	require.True(t, calls[0].Options.Required)
	require.True(t, calls[0].Options.Environment)
}

// TestRequirementsLegacyCUDAWindows installs patched requirements on a CUDA 11.8 Windows host.
func TestRequirementsLegacyCUDAWindows(t *testing.T) {
	t.Parallel()

	profile := host.Profile{OS: host.OSWindows, Arch: host.ArchX86_64, HasAVX2: true, GPU: host.GPUNvidia}
	f := newFixture(t, "windows", "2.1.0+cu118", profile)
	f.write(t, "requirements.txt", strings.Join([]string{
		"accelerate==0.25.*",
		"https://github.com/jllllll/flash-attention/releases/download/v2.3.4/flash_attn-2.3.4+cu122-cp311-cp311-win_amd64.whl",
		"https://example.org/exllamav2-0.0.11+cu121-cp311-cp311-win_amd64.whl",
	}, "\r\n"))

	var installed string

	f.recorder.OnRun = func(command string) {
		if strings.Contains(command, TempRequirementsFile) {
			data, err := os.ReadFile(f.rc.Path(TempRequirementsFile))
			if err == nil {
				installed = string(data)
			}
		}
	}

	require.NoError(t, f.driver.InstallRequirements(context.Background(), false))
	require.Equal(t, "accelerate==0.25.*\nhttps://example.org/exllamav2-0.0.11+cu118-cp311-cp311-win_amd64.whl", installed)
	require.NoFileExists(t, f.rc.Path(TempRequirementsFile))
}

// TestRequirementsAuxiliarySteps uninstalls git requirements and installs the API extension first.
func TestRequirementsAuxiliarySteps(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "linux", "2.1.0+rocm5.6", linuxAVX2)
	f.write(t, "requirements_amd.txt", "git+https://github.com/oobabooga/torch-grammar.git\nnumpy\n")
	f.write(t, "extensions/openai/requirements.txt", "sse-starlette\n")

	require.NoError(t, f.driver.InstallRequirements(context.Background(), false))
	require.Equal(t, []string{
		"python -m pip uninstall -y torch-grammar",
		"python -m pip install -r extensions/openai/requirements.txt --upgrade",
		"python -m pip install -r temp_requirements.txt --upgrade",
		"conda clean -a -y",
		"python -m pip cache purge",
	}, f.recorder.Commands())
}

// TestRequirementsExtensions installs extension requirements best-effort and skips the deny-list.
func TestRequirementsExtensions(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "linux", "2.1.0+cpu", linuxAVX2)
	f.write(t, "requirements_cpu_only.txt", "numpy\n")
	f.write(t, "extensions/gallery/requirements.txt", "pillow\n")
	f.write(t, "extensions/superbooga/requirements.txt", "chromadb\n")
	f.write(t, "extensions/whisper_stt/requirements.txt", "openai-whisper\n")
	f.write(t, "extensions/no_requirements/script.py", "")
	f.recorder.Fail("extensions/gallery", 1)

	require.NoError(t, f.driver.InstallRequirements(context.Background(), true))

	require.Equal(t, []string{
		"python -m pip install -r extensions/gallery/requirements.txt --upgrade",
		"python -m pip install -r extensions/whisper_stt/requirements.txt --upgrade",
	}, f.recorder.CommandsContaining("extensions/"))

	output := f.out.String()
	require.Contains(t, output, "--- [1/2]: gallery")
	require.Contains(t, output, "--- [2/2]: whisper_stt")
	require.NotContains(t, output, "superbooga")
}

// TestRequirementsRepositoriesDir depends on the installed build and the legacy conda package.
func TestRequirementsRepositoriesDir(t *testing.T) {
	t.Parallel()

	t.Run("cpu without conda package", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, "linux", "2.1.0+cpu", linuxAVX2)
		f.write(t, "requirements_cpu_only.txt", "numpy\n")
		f.recorder.Fail("conda list -f pytorch-cuda", 1)

		require.NoError(t, f.driver.InstallRequirements(context.Background(), false))
		require.NoDirExists(t, f.rc.Path(RepositoriesDir))
		require.Len(t, f.recorder.CommandsContaining("conda clean"), 1)
	})

	t.Run("cpu with conda package", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, "linux", "2.1.0+cpu", linuxAVX2)
		f.write(t, "requirements_cpu_only.txt", "numpy\n")
		f.recorder.Respond("conda list -f pytorch-cuda", "pytorch-cuda 11.7\n")

		require.NoError(t, f.driver.InstallRequirements(context.Background(), false))
		require.DirExists(t, f.rc.Path(RepositoriesDir))
	})
}

// TestRequirementsFailureStillCleansUp runs cache cleanup and removes the temporary file after a failed install.
func TestRequirementsFailureStillCleansUp(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "linux", "2.1.0+cu121", linuxAVX2)
	f.write(t, "requirements.txt", "numpy\n")
	f.recorder.Fail("temp_requirements.txt", 2)

	var commandErr *shell.CommandError
	require.ErrorAs(t, f.driver.InstallRequirements(context.Background(), false), &commandErr)
	require.Equal(t, 2, commandErr.ExitStatus)

	require.NoFileExists(t, f.rc.Path(TempRequirementsFile))
	require.Len(t, f.recorder.CommandsContaining("conda clean -a -y"), 1)
	require.Len(t, f.recorder.CommandsContaining("pip cache purge"), 1)
}

// TestRequirementsBuildDetectionFailure reports a missing framework.
func TestRequirementsBuildDetectionFailure(t *testing.T) {
	t.Parallel()

	rc := config.NewRunContext(config.Default(), t.TempDir(), "linux", nil, func(string) (string, bool) { return "", false })
	recorder := shelltest.New()
	missing := errors.New("no framework")
	driver := New(rc, recorder, fakeBuilds{err: missing}, linuxAVX2, banner.New(new(bytes.Buffer)))

	require.ErrorIs(t, driver.InstallRequirements(context.Background(), false), missing)
	require.Len(t, recorder.CommandsContaining("conda clean"), 1)
}

// TestRequirementsMissingFile fails when the selected requirements file is absent.
func TestRequirementsMissingFile(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "linux", "2.1.0+cu121", linuxAVX2)

	err := f.driver.InstallRequirements(context.Background(), false)
	require.ErrorIs(t, err, os.ErrNotExist)
	require.Empty(t, f.recorder.CommandsContaining("pip install -r"))
}

// TestWriteVerifiedReplacesContent writes new files and overwrites existing ones.
func TestWriteVerifiedReplacesContent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), TempRequirementsFile)

	require.NoError(t, writeVerified(path, []byte("first")))
	require.NoError(t, writeVerified(path, []byte("second")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "second", string(data))
	require.NoFileExists(t, filepath.Join(filepath.Dir(path), "."+TempRequirementsFile+".old"))
}
