package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Meerschwein/nixos-healthchecks/pkg/configuration"
	"github.com/Meerschwein/nixos-healthchecks/pkg/envfile"
	"github.com/Meerschwein/nixos-healthchecks/pkg/manage"
	"github.com/Meerschwein/nixos-healthchecks/pkg/topology"
	"github.com/Meerschwein/nixos-healthchecks/pkg/util"
)

func main() {
	configPath := flag.String("config", "/etc/healthchecks/healthchecks.yaml", "path to the healthchecks configuration")
	envPath := flag.String("env-file", "", "read this environment file instead of deriving it from the configuration")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [options] [--] MANAGE_ARGS...\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	conf, err := configuration.Load(*configPath)
	util.ExitIfErr(err)

	var vars map[string]string
	if *envPath != "" {
		vars, err = envfile.ParseFile(*envPath)
		util.ExitIfErr(err)
	} else {
		topo, err := topology.Generate(conf)
		util.ExitIfErr(err)
		if topo.Environment == nil {
			util.ExitIfErr(fmt.Errorf("healthchecks is not enabled in %s", *configPath))
		}
		vars, err = topo.Environment.File.Environment()
		util.ExitIfErr(err)
	}

	inv := manage.Command(conf, vars, os.Environ(), util.CurrentUsername(), flag.Args())

	// The terminal delivers Ctrl-C to manage.py itself, the wrapper only has
	// to survive it. A SIGTERM aimed at the wrapper interrupts manage.py.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		for sig := range sigs {
			if sig == syscall.SIGTERM {
				cancel()
			}
		}
	}()

	code, err := manage.Run(ctx, inv, manage.Stdio{In: os.Stdin, Out: os.Stdout, Err: os.Stderr})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(code)
}
