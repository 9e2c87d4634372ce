// Package manage runs healthchecks' manage.py as the service account with
// the service environment loaded.
package manage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"syscall"

	"github.com/Meerschwein/nixos-healthchecks/pkg/configuration"
)

type Invocation struct {
	Argv []string
	Env  []string
}

// Command builds the manage.py invocation. When currentUser is not the
// service user the call goes through sudo, keeping the environment.
func Command(conf configuration.Conf, vars map[string]string, baseEnv []string, currentUser string, args []string) Invocation {
	var argv []string
	if currentUser != conf.User {
		argv = append(argv, "sudo", "-u", conf.User, "--preserve-env", "--preserve-env=PYTHONPATH")
	}
	argv = append(argv, conf.ManagePy())
	argv = append(argv, args...)

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := append([]string{}, baseEnv...)
	for _, k := range keys {
		env = append(env, k+"="+vars[k])
	}

	return Invocation{Argv: argv, Env: env}
}

type Stdio struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// Run executes inv and returns the exit code of the child, 128+n when it
// was killed by signal n. err is only set when the child could not be
// started. Cancelling ctx interrupts the child like Ctrl-C would and Run
// keeps waiting for it to exit.
func Run(ctx context.Context, inv Invocation, stdio Stdio) (int, error) {
	if len(inv.Argv) == 0 {
		return 127, errors.New("empty command")
	}

	cmd := exec.CommandContext(ctx, inv.Argv[0], inv.Argv[1:]...)
	cmd.Env = inv.Env
	cmd.Stdin = stdio.In
	cmd.Stdout = stdio.Out
	cmd.Stderr = stdio.Err
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}

	if err := cmd.Start(); err != nil {
		return 127, fmt.Errorf("run %s: %w", inv.Argv[0], err)
	}

	// After a cancel Wait reports ctx.Err() even for a clean exit, the
	// process state is the source of truth.
	err := cmd.Wait()
	if cmd.ProcessState != nil {
		return exitCode(cmd.ProcessState), nil
	}
	return 127, fmt.Errorf("wait for %s: %w", inv.Argv[0], err)
}

func exitCode(state *os.ProcessState) int {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return state.ExitCode()
}
