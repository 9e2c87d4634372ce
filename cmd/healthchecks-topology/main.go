package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Meerschwein/nixos-healthchecks/pkg/command"
	"github.com/Meerschwein/nixos-healthchecks/pkg/configuration"
	"github.com/Meerschwein/nixos-healthchecks/pkg/selection"
	"github.com/Meerschwein/nixos-healthchecks/pkg/topology"
	"github.com/Meerschwein/nixos-healthchecks/pkg/unit"
	"github.com/Meerschwein/nixos-healthchecks/pkg/util"
)

type options struct {
	configPath string
	dryRun     bool
	toScript   bool
	scriptName string
	apply      bool
	nix        bool
	env        bool
	init       bool
	unitDir    string
	logLevel   string
	logFormat  string
}

func main() {
	util.ExitIfErr(run(os.Args[1:], os.Stdout, os.Stderr))
}

func parse(args []string, outW io.Writer) (opts options, err error) {
	flagSet := flag.NewFlagSet("healthchecks-topology", flag.ContinueOnError)
	flagSet.SetOutput(outW)
	flagSet.Usage = func() {
		fmt.Fprint(outW, `
healthchecks-topology - derive and install the systemd units of a healthchecks instance.

Usage:
  healthchecks-topology [options] CONFIG

Arguments:
  CONFIG
    Path to a .hcl or .yaml configuration file.

Without a mode flag the rendered unit files are printed.

Options:
`)
		flagSet.PrintDefaults()
	}

	flagSet.BoolVar(&opts.dryRun, "dry-run", false, "print the commands that -apply would run")
	flagSet.BoolVar(&opts.toScript, "to-script", false, "write the commands as a shell script")
	flagSet.StringVar(&opts.scriptName, "script-name", "healthchecks-install.sh", "script name")
	flagSet.BoolVar(&opts.apply, "apply", false, "install the units on this host (requires root)")
	flagSet.BoolVar(&opts.nix, "nix", false, "print a NixOS module instead of unit files")
	flagSet.BoolVar(&opts.env, "env", false, "print the environment file")
	flagSet.BoolVar(&opts.init, "init", false, "interactively create CONFIG")
	flagSet.StringVar(&opts.unitDir, "unit-dir", command.DefaultUnitDir, "directory receiving unit files")
	flagSet.StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")
	flagSet.StringVar(&opts.logFormat, "log-format", "text", "text or json")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return opts, err
		}
		return opts, &util.ExitError{Code: 2, Message: err.Error()}
	}

	if flagSet.NArg() != 1 {
		flagSet.Usage()
		return opts, &util.ExitError{Code: 2, Message: "exactly one CONFIG argument is required"}
	}
	opts.configPath = flagSet.Arg(0)

	modes := 0
	for _, m := range []bool{opts.dryRun, opts.toScript, opts.apply, opts.nix, opts.env, opts.init} {
		if m {
			modes++
		}
	}
	if modes > 1 {
		return opts, &util.ExitError{Code: 2, Message: "the mode flags are mutually exclusive"}
	}

	switch opts.logFormat {
	case "text", "json":
	default:
		return opts, &util.ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	return opts, nil
}

func run(args []string, outW, errW io.Writer) error {
	opts, err := parse(args, outW)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	logger := util.NewLogger(opts.logLevel, opts.logFormat, errW)

	if opts.init {
		return initConfig(opts.configPath, outW)
	}

	conf, err := configuration.Load(opts.configPath)
	if err != nil {
		return &util.ExitError{Code: 2, Message: err.Error()}
	}
	logger.Debug("configuration loaded", "path", opts.configPath, "enabled", conf.Enabled)

	topo, err := topology.Generate(conf)
	if err != nil {
		return &util.ExitError{Code: 2, Message: fmt.Sprintf("invalid configuration %s: %v", opts.configPath, err)}
	}
	logger.Debug("topology generated", "units", len(topo.Units), "empty", topo.Empty())

	plan := command.Plan{Conf: conf, Topology: topo, UnitDir: opts.unitDir}

	switch {
	case opts.nix:
		if _, err := fmt.Fprint(outW, command.NixOSConfiguration(plan)); err != nil {
			return fmt.Errorf("write NixOS module: %w", err)
		}
	case opts.env:
		if topo.Environment != nil {
			if _, err := outW.Write(topo.Environment.File.Content()); err != nil {
				return fmt.Errorf("write environment file: %w", err)
			}
		}
	case opts.dryRun:
		command.DryRun(outW, command.Commands(plan))
	case opts.toScript:
		script := command.ShellScript(command.Commands(plan))
		if err := os.WriteFile(opts.scriptName, []byte(script), 0o755); err != nil {
			return fmt.Errorf("write script: %w", err)
		}
		logger.Info("script written", "path", opts.scriptName)
	case opts.apply:
		return apply(logger, plan)
	default:
		printUnits(outW, topo)
	}

	return nil
}

func apply(logger *slog.Logger, plan command.Plan) error {
	if !util.WasRunAsRoot() {
		return fmt.Errorf("run as root")
	}
	if !util.DoesDirExist(plan.UnitDir) {
		return fmt.Errorf("unit directory %s does not exist", plan.UnitDir)
	}

	cmds := command.Commands(plan)
	logger.Info("applying topology", "units", len(plan.Topology.Units), "commands", len(cmds))
	return command.RunCmds(logger, cmds)
}

func printUnits(w io.Writer, topo topology.Topology) {
	if topo.Empty() {
		fmt.Fprintln(w, "# healthchecks is disabled, no units")
		return
	}
	for i, u := range topo.Units {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "# %s\n%s", u.Name, unit.Render(u))
	}
}

func initConfig(path string, outW io.Writer) error {
	conf := configuration.Default()
	conf.Enabled = true

	conf, err := selection.GetSelections(conf, selection.DefaultSteps())
	if err != nil {
		return err
	}

	fmt.Fprintf(outW, "Your Selection so far:\n%v\n", conf)

	if !selection.ConfirmationDialog("Write " + path) {
		fmt.Fprintln(outW, "Aborting...")
		return nil
	}

	return configuration.WriteYAML(path, conf)
}
