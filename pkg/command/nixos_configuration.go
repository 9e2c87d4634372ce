package command

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/Meerschwein/nixos-healthchecks/pkg/unit"
	"github.com/Meerschwein/nixos-healthchecks/pkg/util"
)

type nixUnit struct {
	unit.Descriptor
	AttrName string
}

type replacement struct {
	Targets     []nixUnit
	Services    []nixUnit
	User        *nixPrincipal
	Group       *nixPrincipal
	Environment string
}

type nixPrincipal struct {
	Name        string
	Group       string
	Description string
	Home        string
	Members     []string
}

var nixTemplate = template.Must(template.New("NixOS healthchecks module").Funcs(template.FuncMap{
	"str":  nixString,
	"list": nixList,
}).Parse(`{ pkgs, ... }:

let
  environmentFile = pkgs.writeText "healthchecks-environment" ''
{{ .Environment }}  '';
in
{
{{- range .Targets }}
  systemd.targets.{{ str .AttrName }} = {
    description = {{ str .Description }};
    after = {{ list .After }};
{{- with .Wants }}
    wants = {{ list . }};
{{- end }}
    wantedBy = {{ list .WantedBy }};
  };
{{ end }}
{{- range .Services }}
  systemd.services.{{ str .AttrName }} = {
    description = {{ str .Description }};
    after = {{ list .After }};
{{- with .Requires }}
    requires = {{ list . }};
{{- end }}
{{- with .BindsTo }}
    bindsTo = {{ list . }};
{{- end }}
    wantedBy = {{ list .WantedBy }};
    serviceConfig = {
      Type = {{ str .ServiceType }};
{{- if ne .Restart "none" }}
      Restart = {{ str (print .Restart) }};
{{- end }}
      User = {{ str .User }};
      Group = {{ str .Group }};
      WorkingDirectory = {{ str .WorkingDirectory }};
      EnvironmentFile = [ environmentFile ];
{{- with .StateDirectory }}
      StateDirectory = {{ str . }};
{{- end }}
{{- with .StateDirectoryMode }}
      StateDirectoryMode = {{ str . }};
{{- end }}
{{- with .ExecStartPre }}
      ExecStartPre = {{ list . }};
{{- end }}
      ExecStart = {{ str .ExecStart }};
    };
  };
{{ end }}
{{- with .User }}
  users.users.{{ str .Name }} = {
    description = {{ str .Description }};
    isSystemUser = true;
    group = {{ str .Group }};
    home = {{ str .Home }};
  };
{{ end }}
{{- with .Group }}
  users.groups.{{ str .Name }} = {
    members = {{ list .Members }};
  };
{{ end -}}
}
`))

// NixOSConfiguration renders the plan as a NixOS module, for hosts that are
// managed declaratively instead of through the apply commands.
func NixOSConfiguration(plan Plan) string {
	topo := plan.Topology
	r := replacement{}

	for _, u := range topo.Units {
		n := nixUnit{Descriptor: u, AttrName: strings.TrimSuffix(u.Name, "."+unit.Suffix(u.Name))}
		if u.IsService() {
			r.Services = append(r.Services, n)
		} else {
			r.Targets = append(r.Targets, n)
		}
	}

	if u := topo.Principals.User; u != nil {
		r.User = &nixPrincipal{Name: u.Name, Group: u.Group, Description: u.Description, Home: u.Home}
	}
	if g := topo.Principals.Group; g != nil {
		r.Group = &nixPrincipal{Name: g.Name, Members: g.Members}
	}

	if topo.Environment != nil {
		var env strings.Builder
		for _, e := range topo.Environment.File.Entries() {
			env.WriteString("    ")
			env.WriteString(util.EscapeNixIndentedString(e.Key + "=" + e.Value))
			env.WriteString("\n")
		}
		r.Environment = env.String()
	}

	var data bytes.Buffer
	if err := nixTemplate.Execute(&data, r); err != nil {
		panic(err)
	}
	return data.String()
}

func nixString(s string) string {
	return `"` + util.EscapeNixString(s) + `"`
}

func nixList(items []string) string {
	if len(items) == 0 {
		return "[ ]"
	}
	quoted := make([]string, 0, len(items))
	for _, i := range items {
		quoted = append(quoted, nixString(i))
	}
	return "[ " + strings.Join(quoted, " ") + " ]"
}
