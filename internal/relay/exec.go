package relay

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandExecutor runs a command the way the operator typed it. With Shell
// empty the line is split on whitespace and run directly; otherwise it is
// handed to Shell -c.
type CommandExecutor struct {
	Shell string
}

// Execute returns combined stdout and stderr. A failed run still returns
// its partial output, followed by the error text.
func (e CommandExecutor) Execute(ctx context.Context, command string) []byte {
	var cmd *exec.Cmd
	if e.Shell != "" {
		cmd = exec.CommandContext(ctx, e.Shell, "-c", command)
	} else {
		fields := strings.Fields(command)
		if len(fields) == 0 {
			return []byte("empty command\n")
		}
		cmd = exec.CommandContext(ctx, fields[0], fields[1:]...)
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		out = append(out, fmt.Sprintf("%v\n", err)...)
	}
	return out
}
