// Package fingerprint hashes the orchestration files so a pull that
// rewrites them can be detected before any of the new code is trusted.
package fingerprint

import (
	"crypto"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	// Ensure SHA256 available for checksum calculation.
	_ "crypto/sha256"
)

// DefaultChecksumFunction hashes tracked and generated files.
const DefaultChecksumFunction crypto.Hash = crypto.SHA256

var errHashUnavailable = errors.New("hash function unavailable")

// Set maps a tracked filename to its hex digest. A missing file maps to "".
type Set map[string]string

// FileChecksum returns the DefaultChecksumFunction digest of the file at path.
func FileChecksum(path string) ([]byte, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	return Checksum(contents)
}

// Checksum returns the DefaultChecksumFunction digest of data.
func Checksum(data []byte) ([]byte, error) {
	if !DefaultChecksumFunction.Available() {
		return nil, fmt.Errorf("checksum calculation not possible: %w", errHashUnavailable)
	}

	hasher := DefaultChecksumFunction.New()
	if _, err := hasher.Write(data); err != nil {
		return nil, fmt.Errorf("calculate checksum: %w", err)
	}

	return hasher.Sum(nil), nil
}

// Snapshot fingerprints files relative to rootDir. Names that are not
// regular files get the "" sentinel; a failure to read a regular file is returned.
func Snapshot(rootDir string, files []string) (Set, error) {
	set := make(Set, len(files))

	for _, name := range files {
		path := filepath.Join(rootDir, name)

		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			set[name] = ""
			continue
		}

		sum, err := FileChecksum(path)
		if err != nil {
			return nil, fmt.Errorf("fingerprint %s: %w", name, err)
		}

		set[name] = hex.EncodeToString(sum)
	}

	return set, nil
}

// Changed returns the names from files whose digest differs between before
// and after, in the order of files. A name missing from a set reads as "".
func Changed(files []string, before, after Set) []string {
	var changed []string

	for _, name := range files {
		if before[name] != after[name] {
			changed = append(changed, name)
		}
	}

	return changed
}
