//go:build !windows

package shell

import (
	"context"
	"os/exec"
)

// shellCommand runs line with /bin/sh, the way the start scripts do.
func shellCommand(ctx context.Context, line string) *exec.Cmd {
	return exec.CommandContext(ctx, "/bin/sh", "-c", line)
}
