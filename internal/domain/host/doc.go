// Package host contains the domain types describing the machine being
// provisioned: its Profile (OS, CPU, GPU vendor) and the BuildInfo of the
// deep-learning framework already installed in the isolated environment.
package host
