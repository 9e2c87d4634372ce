package generators

import (
	"github.com/Meerschwein/nixos-healthchecks/pkg/configuration"
	"pgregory.net/rapid"
)

func String(t *rapid.T, label string) string {
	return rapid.String().Draw(t, label).(string)
}

func Bool(t *rapid.T, label string) bool {
	return rapid.Bool().Draw(t, label).(bool)
}

func AbsPath(t *rapid.T, label string) string {
	return rapid.StringMatching(`(/[a-z0-9_.-]{1,10}){1,4}`).Draw(t, label).(string)
}

func Principal(t *rapid.T, label string) string {
	return rapid.OneOf(
		rapid.Just(configuration.DefaultUser),
		rapid.StringMatching(`[a-z_][a-z0-9_-]{0,15}`),
	).Draw(t, label).(string)
}

func DBGen() *rapid.Generator {
	return rapid.SampledFrom(configuration.DBs())
}

func HostsGen() *rapid.Generator {
	return rapid.SliceOfN(rapid.StringMatching(`[a-z0-9]{1,8}(\.[a-z]{2,5}){0,2}`), 1, 4)
}

func AdditionalGen() *rapid.Generator {
	return rapid.MapOfN(
		rapid.StringMatching(`[A-Z][A-Z0-9_]{0,12}`),
		rapid.StringMatching(`[a-zA-Z0-9 ./:@-]{0,16}`),
		0, 4,
	)
}

// ConfGen draws enabled configurations that pass validation.
func ConfGen() *rapid.Generator {
	return rapid.Custom(func(t *rapid.T) configuration.Conf {
		conf := configuration.Default()
		conf.Enabled = true
		conf.User = Principal(t, "User")
		conf.Group = Principal(t, "Group")
		conf.ListenAddress = rapid.SampledFrom([]string{"localhost", "127.0.0.1", "0.0.0.0", "::1"}).Draw(t, "ListenAddress").(string)
		conf.Port = rapid.IntRange(0, 65535).Draw(t, "Port").(int)
		conf.DataDir = rapid.OneOf(rapid.Just(configuration.DefaultDataDir), rapid.StringMatching(`/srv/[a-z]{1,8}`)).Draw(t, "DataDir").(string)
		conf.Package = AbsPath(t, "Package")
		conf.EnvironmentDir = AbsPath(t, "EnvironmentDir")
		conf.SendAlerts = Bool(t, "SendAlerts")
		conf.SendReports = Bool(t, "SendReports")
		conf.AuxiliaryPolicy = rapid.SampledFrom(configuration.AuxiliaryPolicies()).Draw(t, "AuxiliaryPolicy").(configuration.AuxiliaryPolicy)

		conf.Settings.AllowedHosts = HostsGen().Draw(t, "AllowedHosts").([]string)
		conf.Settings.SecretKeyFile = AbsPath(t, "SecretKeyFile")
		conf.Settings.Debug = Bool(t, "Debug")
		conf.Settings.RegistrationOpen = Bool(t, "RegistrationOpen")
		conf.Settings.DB = DBGen().Draw(t, "DB").(configuration.DB)
		if Bool(t, "WithEmailPassword") {
			conf.Settings.EmailHostPasswordFile = AbsPath(t, "EmailHostPasswordFile")
		}
		conf.Settings.Additional = AdditionalGen().Draw(t, "Additional").(map[string]string)

		return conf
	})
}
