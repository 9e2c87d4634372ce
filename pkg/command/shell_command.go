package command

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"

	"github.com/Meerschwein/nixos-healthchecks/pkg/util"
)

type ShellCommand struct {
	Label string
	Cmd   string
}

func (c ShellCommand) Message() string {
	return c.Label
}

func (c ShellCommand) Execute() (string, error) {
	var out bytes.Buffer
	cmd := exec.Command("bash", "-c", c.Cmd)
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	return out.String(), err
}

func (c ShellCommand) DryRun() string {
	return c.Cmd
}

func CreateDir(dir, owner, group, mode string) []Command {
	return []Command{
		ShellCommand{
			Label: fmt.Sprintf("Create %s if it doesn't already exist", dir),
			Cmd:   "mkdir -p " + util.ShellQuote(dir),
		},
		ShellCommand{
			Label: fmt.Sprintf("Hand %s to %s:%s", dir, owner, group),
			Cmd: fmt.Sprintf("chown %s %s && chmod %s %s",
				util.ShellQuote(owner+":"+group), util.ShellQuote(dir),
				mode, util.ShellQuote(dir)),
		},
	}
}

func Systemctl(label string, args ...string) Command {
	quoted := make([]string, 0, len(args))
	for _, a := range args {
		quoted = append(quoted, util.ShellQuote(a))
	}
	return ShellCommand{
		Label: label,
		Cmd:   "systemctl " + strings.Join(quoted, " "),
	}
}
