package command

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

type Command interface {
	Message() string
	Execute() (string, error)
	// DryRun returns the shell equivalent of Execute.
	DryRun() string
}

func DryRun(w io.Writer, cmds []Command) {
	for _, cmd := range cmds {
		fmt.Fprintf(w, "--\n%s\n%s\n", cmd.Message(), cmd.DryRun())
	}
}

// RunCmds executes cmds in order and stops at the first failure.
func RunCmds(logger *slog.Logger, cmds []Command) error {
	for i, cmd := range cmds {
		logger.Info(cmd.Message(), "step", i+1, "of", len(cmds))
		out, err := cmd.Execute()
		if strings.TrimSpace(out) != "" {
			logger.Debug("command output", "step", i+1, "output", strings.TrimSpace(out))
		}
		if err != nil {
			return fmt.Errorf("%s: %w", cmd.Message(), err)
		}
	}
	return nil
}

func ShellScript(cmds []Command) string {
	var b strings.Builder
	b.WriteString("#!/usr/bin/env bash\n")
	b.WriteString("set -euo pipefail\n")
	for _, cmd := range cmds {
		fmt.Fprintf(&b, "\n# %s\n%s\n", cmd.Message(), cmd.DryRun())
	}
	return b.String()
}
