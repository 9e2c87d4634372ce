// Package topology derives the systemd units, the shared environment file
// and the service accounts for a healthchecks configuration.
//
// Generate is pure: it reads nothing from the host and writes nothing. The
// same configuration always yields the same Topology, so callers can diff a
// new result against what is installed and reconcile.
package topology

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Meerschwein/nixos-healthchecks/pkg/configuration"
	"github.com/Meerschwein/nixos-healthchecks/pkg/envfile"
	"github.com/Meerschwein/nixos-healthchecks/pkg/graph"
	"github.com/Meerschwein/nixos-healthchecks/pkg/unit"
)

const (
	TargetName    = "healthchecks.target"
	MigrationName = "healthchecks-migration.service"
	PrimaryName   = "healthchecks.service"
	AlertsName    = "healthchecks-sendalerts.service"
	ReportsName   = "healthchecks-sendreports.service"

	EnvironmentFileName = "healthchecks-environment"

	stateDirectory     = "healthchecks"
	stateDirectoryMode = "0750"
)

var (
	networkOnlineTarget = "network-online.target"
	networkTargets      = []string{"network.target", networkOnlineTarget}
	systemTarget        = "multi-user.target"
)

// Topology is the complete set of managed units for one configuration. The
// zero value is the empty topology of a disabled configuration.
type Topology struct {
	// Units are in dependency order.
	Units      []unit.Descriptor
	Principals configuration.Principals
	// Environment is nil for an empty topology.
	Environment *EnvironmentFile
}

type EnvironmentFile struct {
	Path string
	File envfile.File
}

func (t Topology) Empty() bool {
	return len(t.Units) == 0 && t.Principals.Empty() && t.Environment == nil
}

func (t Topology) Unit(name string) (unit.Descriptor, bool) {
	for _, u := range t.Units {
		if u.Name == name {
			return u, true
		}
	}
	return unit.Descriptor{}, false
}

func (t Topology) Names() []string {
	names := make([]string, 0, len(t.Units))
	for _, u := range t.Units {
		names = append(names, u.Name)
	}
	return names
}

// TransitiveAfter returns every managed unit that name is ordered after, sorted.
func (t Topology) TransitiveAfter(name string) ([]string, error) {
	g, err := buildGraph(t.Units)
	if err != nil {
		return nil, err
	}
	return g.Ancestors(name)
}

// Generate validates conf and derives its topology. On error no units are
// returned.
func Generate(conf configuration.Conf) (Topology, error) {
	if !conf.Enabled {
		return Topology{}, nil
	}
	if err := conf.Validate(); err != nil {
		return Topology{}, err
	}

	env := Environment(conf)
	envFile := &EnvironmentFile{
		Path: env.PathIn(conf.EnvironmentDir, EnvironmentFileName),
		File: env,
	}

	units := []unit.Descriptor{
		targetUnit(),
		migrationUnit(conf, envFile.Path),
		primaryUnit(conf, envFile.Path),
	}
	if conf.SendAlerts {
		units = append(units, auxiliaryUnit(conf, envFile.Path, AlertsName,
			"Healthchecks Alert Service", conf.ManagePy()+" sendalerts"))
	}
	if conf.SendReports {
		units = append(units, auxiliaryUnit(conf, envFile.Path, ReportsName,
			"Healthchecks Reporting Service", conf.ManagePy()+" sendreports --loop"))
	}

	ordered, err := order(units)
	if err != nil {
		return Topology{}, err
	}

	return Topology{
		Units:       ordered,
		Principals:  conf.Principals(),
		Environment: envFile,
	}, nil
}

// Environment flattens the settings into the shared environment file.
// Secrets are referenced by path only.
func Environment(conf configuration.Conf) envfile.File {
	vars := map[string]string{}
	for k, v := range conf.Settings.Additional {
		vars[k] = v
	}

	s := conf.Settings
	vars["ALLOWED_HOSTS"] = strings.Join(s.AllowedHosts, ",")
	vars["SECRET_KEY_FILE"] = s.SecretKeyFile
	vars["DEBUG"] = configuration.PythonBool(s.Debug)
	vars["REGISTRATION_OPEN"] = configuration.PythonBool(s.RegistrationOpen)
	vars["DB"] = string(s.DB)
	vars["DB_NAME"] = conf.EffectiveDBName()
	if s.EmailHostPasswordFile != "" {
		vars["EMAIL_HOST_PASSWORD_FILE"] = s.EmailHostPasswordFile
	}

	vars["PYTHONPATH"] = conf.EffectivePythonPath()
	vars["STATIC_ROOT"] = conf.StaticRoot()

	return envfile.New(vars)
}

func targetUnit() unit.Descriptor {
	return unit.Descriptor{
		Name:        TargetName,
		Description: "Target for all Healthchecks services",
		Kind:        unit.Target,
		Restart:     unit.RestartNone,
		After:       append([]string{}, networkTargets...),
		Wants:       []string{networkOnlineTarget},
		WantedBy:    []string{systemTarget},
	}
}

// common returns the service fields shared by every healthchecks service.
func common(conf configuration.Conf, envPath string) unit.Descriptor {
	d := unit.Descriptor{
		User:             conf.User,
		Group:            conf.Group,
		WorkingDirectory: conf.DataDir,
		EnvironmentFile:  envPath,
		WantedBy:         []string{TargetName},
	}
	if conf.ManagesStateDirectory() {
		d.StateDirectory = stateDirectory
		d.StateDirectoryMode = stateDirectoryMode
	}
	return d
}

func migrationUnit(conf configuration.Conf, envPath string) unit.Descriptor {
	d := common(conf, envPath)
	d.Name = MigrationName
	d.Description = "Healthchecks migrations"
	d.Kind = unit.Oneshot
	d.Restart = unit.RestartOnFailure
	d.ExecStart = conf.ManagePy() + " migrate"
	return d
}

func primaryUnit(conf configuration.Conf, envPath string) unit.Descriptor {
	d := common(conf, envPath)
	d.Name = PrimaryName
	d.Description = "Healthchecks WSGI Service"
	d.Kind = unit.LongRunning
	d.Restart = unit.RestartAlways
	d.After = []string{MigrationName}
	d.ExecStartPre = []string{
		conf.ManagePy() + " collectstatic --no-input",
		conf.ManagePy() + " remove_stale_contenttypes --no-input",
		conf.ManagePy() + " compress",
	}
	d.ExecStart = fmt.Sprintf("%s/bin/gunicorn hc.wsgi --bind %s --chdir %s",
		conf.EffectivePythonEnv(),
		bindAddress(conf.ListenAddress, conf.Port),
		conf.AppDir(),
	)
	return d
}

func auxiliaryUnit(conf configuration.Conf, envPath, name, description, exec string) unit.Descriptor {
	d := common(conf, envPath)
	d.Name = name
	d.Description = description
	d.Kind = unit.LongRunning
	d.Restart = unit.RestartAlways
	d.After = []string{PrimaryName}
	if conf.AuxiliaryPolicy == configuration.Bound {
		d.Requires = []string{PrimaryName}
		d.BindsTo = []string{PrimaryName}
	}
	d.ExecStart = exec
	return d
}

func bindAddress(host string, port int) string {
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	return host + ":" + strconv.Itoa(port)
}

func buildGraph(units []unit.Descriptor) (*graph.Graph, error) {
	g := graph.New()
	managed := map[string]bool{}
	for _, u := range units {
		if g.Has(u.Name) {
			return nil, fmt.Errorf("duplicate unit %s", u.Name)
		}
		managed[u.Name] = true
		g.AddNode(u.Name)
	}
	for _, u := range units {
		for _, dep := range u.DependsOn(managed) {
			if err := g.AddEdge(dep, u.Name); err != nil {
				return nil, err
			}
		}
		// A target is reached once the units it wants are up, as systemd
		// orders targets after their wanted units.
		for _, w := range u.WantedBy {
			if managed[w] && unit.Suffix(w) == "target" {
				if err := g.AddEdge(u.Name, w); err != nil {
					return nil, err
				}
			}
		}
	}
	if err := g.DetectCycles(); err != nil {
		return nil, err
	}
	return g, nil
}

func order(units []unit.Descriptor) ([]unit.Descriptor, error) {
	g, err := buildGraph(units)
	if err != nil {
		return nil, err
	}
	names, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	byName := make(map[string]unit.Descriptor, len(units))
	for _, u := range units {
		byName[u.Name] = u
	}
	ordered := make([]unit.Descriptor, 0, len(units))
	for _, n := range names {
		ordered = append(ordered, byName[n])
	}
	return ordered, nil
}
