package unit

import "strings"

type Kind string

const (
	Target      Kind = "target"
	Oneshot     Kind = "oneshot"
	LongRunning Kind = "long-running"
)

type RestartPolicy string

const (
	RestartAlways    RestartPolicy = "always"
	RestartOnFailure RestartPolicy = "on-failure"
	RestartNone      RestartPolicy = "none"
)

// Descriptor is one systemd unit as it will be written to disk.
type Descriptor struct {
	Name        string
	Description string
	Kind        Kind
	Restart     RestartPolicy

	After    []string
	// Wants pulls units in without ordering against them.
	Wants    []string
	Requires []string
	BindsTo  []string
	WantedBy []string

	User               string
	Group              string
	WorkingDirectory   string
	EnvironmentFile    string
	StateDirectory     string
	StateDirectoryMode string

	// ExecStartPre runs in order; the first failing command aborts the start.
	ExecStartPre []string
	ExecStart    string
}

func (d Descriptor) IsService() bool {
	return d.Kind != Target
}

// DependsOn returns the entries of After that are in managed.
func (d Descriptor) DependsOn(managed map[string]bool) []string {
	deps := []string{}
	for _, a := range d.After {
		if managed[a] {
			deps = append(deps, a)
		}
	}
	return deps
}

// ServiceType maps Kind to the systemd Type= value.
func (d Descriptor) ServiceType() string {
	switch d.Kind {
	case Oneshot:
		return "oneshot"
	case LongRunning:
		return "simple"
	default:
		return ""
	}
}

// Suffix returns the unit type suffix of name, e.g. "service".
func Suffix(name string) string {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return ""
	}
	return name[i+1:]
}
