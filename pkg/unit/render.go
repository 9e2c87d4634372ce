package unit

import (
	"bytes"
	"strings"
	"text/template"
)

var unitTemplate = template.Must(template.New("systemd unit").Funcs(template.FuncMap{
	"join": func(s []string) string { return strings.Join(s, " ") },
}).Parse(`[Unit]
{{- with .Description }}
Description={{ . }}
{{- end }}
{{- with .After }}
After={{ join . }}
{{- end }}
{{- with .Wants }}
Wants={{ join . }}
{{- end }}
{{- with .Requires }}
Requires={{ join . }}
{{- end }}
{{- with .BindsTo }}
BindsTo={{ join . }}
{{- end }}
{{- if .IsService }}

[Service]
Type={{ .ServiceType }}
{{- if ne .Restart "none" }}{{ with .Restart }}
Restart={{ . }}
{{- end }}{{ end }}
{{- with .User }}
User={{ . }}
{{- end }}
{{- with .Group }}
Group={{ . }}
{{- end }}
{{- with .WorkingDirectory }}
WorkingDirectory={{ . }}
{{- end }}
{{- with .EnvironmentFile }}
EnvironmentFile={{ . }}
{{- end }}
{{- with .StateDirectory }}
StateDirectory={{ . }}
{{- end }}
{{- with .StateDirectoryMode }}
StateDirectoryMode={{ . }}
{{- end }}
{{- range .ExecStartPre }}
ExecStartPre={{ . }}
{{- end }}
{{- with .ExecStart }}
ExecStart={{ . }}
{{- end }}
{{- end }}
{{- with .WantedBy }}

[Install]
WantedBy={{ join . }}
{{- end }}
`))

// Render produces the unit file text for d.
func Render(d Descriptor) string {
	var data bytes.Buffer
	// The template only reads fields of a value type, it cannot fail.
	if err := unitTemplate.Execute(&data, d); err != nil {
		panic(err)
	}
	return data.String()
}
