// Package selection is the pure decision engine of the orchestrator.
//
// BuildPlan maps a host profile to the framework install command and the
// accelerator runtime commands. SelectRequirementsFile picks the
// requirements file for the framework build actually installed, and
// PatchRequirements rewrites its lines for legacy CUDA hosts. Nothing here
// touches the filesystem or runs commands.
package selection
