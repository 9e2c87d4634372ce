package configuration

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// DefaultUser is the sentinel user name. When Conf.User equals it the
	// account is created alongside the services.
	DefaultUser = "healthchecks"
	// DefaultGroup is the sentinel group name, see DefaultUser.
	DefaultGroup = "healthchecks"

	DefaultDataDir        = "/var/lib/healthchecks"
	DefaultPackage        = "/run/current-system/sw"
	DefaultEnvironmentDir = "/etc/healthchecks"
	DefaultListenAddress  = "localhost"
	DefaultPort           = 8000

	sqliteFileName = "healthchecks.sqlite"
	remoteDBName   = "hc"
)

type Conf struct {
	Enabled bool

	User          string
	Group         string
	ListenAddress string
	Port          int
	DataDir       string

	Package        string
	PythonEnv      string
	PythonPath     string
	EnvironmentDir string

	SendAlerts      bool
	SendReports     bool
	AuxiliaryPolicy AuxiliaryPolicy

	Settings Settings
}

type Settings struct {
	AllowedHosts          []string
	SecretKeyFile         string
	Debug                 bool
	RegistrationOpen      bool
	DB                    DB
	DBName                string
	EmailHostPasswordFile string

	// Additional keys are passed to the environment file verbatim. Typed
	// fields win on collision.
	Additional map[string]string
}

func Default() Conf {
	return Conf{
		User:            DefaultUser,
		Group:           DefaultGroup,
		ListenAddress:   DefaultListenAddress,
		Port:            DefaultPort,
		DataDir:         DefaultDataDir,
		Package:         DefaultPackage,
		EnvironmentDir:  DefaultEnvironmentDir,
		SendAlerts:      true,
		SendReports:     true,
		AuxiliaryPolicy: Independent,
		Settings: Settings{
			AllowedHosts: []string{"*"},
			DB:           SQLite,
		},
	}
}

// EffectiveDBName is derived on every call so it follows DB and DataDir.
func (c Conf) EffectiveDBName() string {
	if c.Settings.DBName != "" {
		return c.Settings.DBName
	}
	if c.Settings.DB == SQLite {
		return filepath.Join(c.DataDir, sqliteFileName)
	}
	return remoteDBName
}

func (c Conf) ManagePy() string {
	return filepath.Join(c.Package, "opt", "healthchecks", "manage.py")
}

func (c Conf) AppDir() string {
	return filepath.Join(c.Package, "opt", "healthchecks")
}

func (c Conf) StaticRoot() string {
	return filepath.Join(c.DataDir, "static")
}

func (c Conf) EffectivePythonEnv() string {
	if c.PythonEnv != "" {
		return c.PythonEnv
	}
	return c.Package
}

func (c Conf) EffectivePythonPath() string {
	if c.PythonPath != "" {
		return c.PythonPath
	}
	return c.AppDir()
}

// ManagesStateDirectory reports whether systemd can own DataDir through
// StateDirectory=, which only covers /var/lib/<name>.
func (c Conf) ManagesStateDirectory() bool {
	return filepath.Clean(c.DataDir) == DefaultDataDir
}

func (c Conf) String() string {
	keys := make([]string, 0, len(c.Settings.Additional))
	for k := range c.Settings.Additional {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return fmt.Sprintf(`
Enabled:        %v
User:           %s
Group:          %s
Listen:         %s:%d
Data dir:       %s
Package:        %s
Database:       %s (%s)
Allowed hosts:  %s
Secret key:     %s
Registration:   %v
Alerts/Reports: %v/%v (%s)
Extra settings: %s`,
		c.Enabled,
		c.User,
		c.Group,
		c.ListenAddress, c.Port,
		c.DataDir,
		c.Package,
		c.Settings.DB, c.EffectiveDBName(),
		strings.Join(c.Settings.AllowedHosts, ","),
		c.Settings.SecretKeyFile,
		c.Settings.RegistrationOpen,
		c.SendAlerts, c.SendReports, c.AuxiliaryPolicy,
		strings.Join(keys, ","),
	)
}
