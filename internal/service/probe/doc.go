// Package probe inspects the host: OS family, CPU architecture and feature
// flags, and the build of the deep-learning framework installed in the
// isolated environment.
//
// CPU feature detection fails open. When the detection facility is not
// available the feature is reported present, so an ancillary check never
// blocks an installation.
package probe
