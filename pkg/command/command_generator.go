package command

import (
	"fmt"
	"path/filepath"

	"github.com/Meerschwein/nixos-healthchecks/pkg/configuration"
	"github.com/Meerschwein/nixos-healthchecks/pkg/topology"
	"github.com/Meerschwein/nixos-healthchecks/pkg/unit"
	"github.com/Meerschwein/nixos-healthchecks/pkg/util"
)

const DefaultUnitDir = "/etc/systemd/system"

// knownUnits lists every unit a topology can contain, so units dropped from
// the configuration are cleaned up.
var knownUnits = []string{
	topology.MigrationName,
	topology.PrimaryName,
	topology.AlertsName,
	topology.ReportsName,
	topology.TargetName,
}

// Plan is what the generators turn into commands.
type Plan struct {
	Conf     configuration.Conf
	Topology topology.Topology
	UnitDir  string
}

func (p Plan) unitPath(name string) string {
	dir := p.UnitDir
	if dir == "" {
		dir = DefaultUnitDir
	}
	return filepath.Join(dir, name)
}

type CommandGenerator func(Plan) []Command

func MakeCommandGenerators(plan Plan) (gens []CommandGenerator) {
	if plan.Topology.Empty() {
		return []CommandGenerator{
			StopUnits(knownUnits),
			RemoveUnits(knownUnits),
			Stable(Systemctl("Reload systemd", "daemon-reload")),
			StaleEnvironmentFiles,
		}
	}

	gens = append(gens, Principals)

	if !plan.Conf.ManagesStateDirectory() {
		gens = append(gens, DataDir)
	}

	gens = append(gens,
		EnvironmentFile,
		UnitFiles,
		StaleUnits,
		Stable(Systemctl("Reload systemd", "daemon-reload")),
		Activate,
		StaleEnvironmentFiles,
	)

	return
}

func Stable(cmd ...Command) CommandGenerator {
	return func(Plan) []Command {
		return cmd
	}
}

func GenerateCommands(plan Plan, generators []CommandGenerator) (cmds []Command) {
	for _, gen := range generators {
		cmds = append(cmds, gen(plan)...)
	}
	return
}

// Commands is MakeCommandGenerators followed by GenerateCommands.
func Commands(plan Plan) []Command {
	return GenerateCommands(plan, MakeCommandGenerators(plan))
}

// Principals creates the generated group and user if they are missing and
// checks that externally owned ones exist.
func Principals(plan Plan) (cmds []Command) {
	p := plan.Topology.Principals
	conf := plan.Conf

	if g := p.Group; g != nil {
		cmds = append(cmds, ShellCommand{
			Label: fmt.Sprintf("Create group %s if it doesn't already exist", g.Name),
			Cmd: fmt.Sprintf("getent group %s >/dev/null || groupadd --system %s",
				util.ShellQuote(g.Name), util.ShellQuote(g.Name)),
		})
	} else {
		cmds = append(cmds, RequireGroup(conf.Group))
	}

	if u := p.User; u != nil {
		cmds = append(cmds, ShellCommand{
			Label: fmt.Sprintf("Create user %s if it doesn't already exist", u.Name),
			Cmd: fmt.Sprintf("id -u %s >/dev/null 2>&1 || useradd --system --gid %s --home-dir %s --no-create-home --comment \"%s\" %s",
				util.ShellQuote(u.Name),
				util.ShellQuote(u.Group),
				util.ShellQuote(u.Home),
				util.EscapeBashDoubleQuotes(u.Description),
				util.ShellQuote(u.Name)),
		})
	} else {
		cmds = append(cmds, RequireUser(conf.User))
	}

	if g := p.Group; g != nil {
		for _, m := range g.Members {
			cmds = append(cmds, ShellCommand{
				Label: fmt.Sprintf("Add %s to group %s", m, g.Name),
				Cmd:   fmt.Sprintf("usermod -a -G %s %s", util.ShellQuote(g.Name), util.ShellQuote(m)),
			})
		}
	}

	return
}

// DataDir prepares a data directory that systemd does not manage itself.
func DataDir(plan Plan) []Command {
	c := plan.Conf
	return CreateDir(c.DataDir, c.User, c.Group, "0750")
}

func EnvironmentFile(plan Plan) []Command {
	env := plan.Topology.Environment
	return []Command{
		WriteFile("Write environment file "+env.Path, env.Path, env.File.Content(), 0o644),
	}
}

func UnitFiles(plan Plan) (cmds []Command) {
	for _, u := range plan.Topology.Units {
		path := plan.unitPath(u.Name)
		cmds = append(cmds, WriteFile("Write unit "+path, path, []byte(unit.Render(u)), 0o644))
	}
	return
}

// StaleUnits stops and removes known units the topology no longer contains.
func StaleUnits(plan Plan) []Command {
	var stale []string
	for _, name := range knownUnits {
		if _, ok := plan.Topology.Unit(name); !ok {
			stale = append(stale, name)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	return append(StopUnits(stale)(plan), RemoveUnits(stale)(plan)...)
}

// StopUnits stops and disables each unit on its own, so a unit that was
// never installed does not keep the others running.
func StopUnits(names []string) CommandGenerator {
	return func(Plan) (cmds []Command) {
		for _, name := range names {
			cmd := Systemctl("Stop and disable "+name, "disable", "--now", name).(ShellCommand)
			cmd.Cmd += " || true"
			cmds = append(cmds, cmd)
		}
		return
	}
}

func RemoveUnits(names []string) CommandGenerator {
	return func(plan Plan) (cmds []Command) {
		for _, name := range names {
			path := plan.unitPath(name)
			cmds = append(cmds, RemoveFile("Remove unit "+path, path))
		}
		return
	}
}

// StaleEnvironmentFiles removes environment files left behind by earlier
// settings. It runs once the units point at the current file.
func StaleEnvironmentFiles(plan Plan) []Command {
	dir := plan.Conf.EnvironmentDir
	if dir == "" {
		return nil
	}
	keep := ""
	if env := plan.Topology.Environment; env != nil {
		keep = env.Path
	}
	return []Command{
		RemoveStaleFiles("Remove stale environment files in "+dir, dir, "*-"+topology.EnvironmentFileName, keep),
	}
}

// Activate enables every unit and (re)starts the services in dependency
// order.
func Activate(plan Plan) []Command {
	names := plan.Topology.Names()

	var services []string
	for _, u := range plan.Topology.Units {
		if u.IsService() {
			services = append(services, u.Name)
		}
	}

	return []Command{
		Systemctl("Enable units", append([]string{"enable"}, names...)...),
		Systemctl("Restart services", append([]string{"restart"}, services...)...),
		Systemctl("Start "+topology.TargetName, "start", topology.TargetName),
	}
}
