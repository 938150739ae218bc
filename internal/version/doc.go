// Package version exposes build metadata of the oneclick binary.
//
// Version, Commit and BuildTime are injected through -ldflags -X at release
// time; local builds keep the defaults below.
package version
