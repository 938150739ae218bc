// Package launcher assembles the server flags and starts the application server.
package launcher

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DefaultModelDir is used when the flags do not name a model directory.
	DefaultModelDir = "models"

	// CPUFlag forces CPU inference in the server.
	CPUFlag = "--cpu"

	modelDirFlag = "--model-dir"
)

// BuildFlags joins the forwarded command line arguments and the content of
// the flags file. A missing flags file contributes nothing.
func BuildFlags(args []string, flagsFile string) (string, error) {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, args...)

	data, err := os.ReadFile(filepath.Clean(flagsFile))
	switch {
	case err == nil:
		if persisted := ParseFlagsFile(string(data)); persisted != "" {
			parts = append(parts, persisted)
		}
	case !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("read flags file: %w", err)
	}

	return strings.Join(parts, " "), nil
}

// ParseFlagsFile joins the non-comment lines of a flags file with spaces.
// Trailing line-continuation backslashes are dropped.
func ParseFlagsFile(content string) string {
	var flags []string

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}

		line = strings.TrimSpace(strings.TrimRight(line, `\`))
		if line != "" {
			flags = append(flags, line)
		}
	}

	return strings.Join(flags, " ")
}

// ModelDir returns the value of --model-dir in flags, or DefaultModelDir.
// Flags are split on spaces outside double quotes and on '='.
func ModelDir(flags string) string {
	tokens := tokenize(flags)

	for i, token := range tokens {
		if token == modelDirFlag && i+1 < len(tokens) {
			if dir := strings.Trim(tokens[i+1], `"'`); dir != "" {
				return dir
			}
		}
	}

	return DefaultModelDir
}

func tokenize(flags string) []string {
	var (
		tokens   []string
		current  strings.Builder
		inQuotes bool
	)

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for _, r := range flags {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			current.WriteRune(r)
		case r == '=', r == ' ' && !inQuotes:
			flush()
		default:
			current.WriteRune(r)
		}
	}

	flush()

	return tokens
}

// HasModels reports whether dir holds anything besides .txt and .yaml files.
// Hidden entries are ignored.
func HasModels(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".txt") || strings.HasSuffix(name, ".yaml") {
			continue
		}

		return true
	}

	return false
}

// EnsureCPUFlag appends CPUFlag to the flags file unless it already contains
// it. It reports whether the file was changed.
func EnsureCPUFlag(flagsFile string, perm os.FileMode) (bool, error) {
	data, err := os.ReadFile(filepath.Clean(flagsFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("read flags file: %w", err)
	}

	if strings.Contains(string(data), CPUFlag) {
		return false, nil
	}

	file, err := os.OpenFile(filepath.Clean(flagsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, perm)
	if err != nil {
		return false, fmt.Errorf("open flags file: %w", err)
	}

	if _, err = file.WriteString("\n" + CPUFlag + "\n"); err != nil {
		_ = file.Close()
		return false, fmt.Errorf("write flags file: %w", err)
	}

	return true, file.Close()
}
