package topology_test

import (
	"testing"

	"github.com/Meerschwein/nixos-healthchecks/pkg/configuration"
	"github.com/Meerschwein/nixos-healthchecks/pkg/topology"
	"github.com/Meerschwein/nixos-healthchecks/pkg/unit"
	"github.com/Meerschwein/nixos-healthchecks/test/generators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func baseConf() configuration.Conf {
	conf := configuration.Default()
	conf.Enabled = true
	conf.Package = "/nix/store/abc-healthchecks"
	conf.Settings.SecretKeyFile = "/run/secrets/healthchecks"
	return conf
}

func TestGenerate_Default(t *testing.T) {
	topo, err := topology.Generate(baseConf())
	require.NoError(t, err)

	assert.Equal(t, []string{
		topology.MigrationName,
		topology.PrimaryName,
		topology.AlertsName,
		topology.ReportsName,
		topology.TargetName,
	}, topo.Names())

	target, ok := topo.Unit(topology.TargetName)
	require.True(t, ok)
	assert.Equal(t, unit.Target, target.Kind)
	assert.Equal(t, []string{"network.target", "network-online.target"}, target.After)
	assert.Equal(t, []string{"network-online.target"}, target.Wants)
	assert.Equal(t, []string{"multi-user.target"}, target.WantedBy)

	migration, ok := topo.Unit(topology.MigrationName)
	require.True(t, ok)
	assert.Equal(t, unit.Oneshot, migration.Kind)
	assert.Equal(t, unit.RestartOnFailure, migration.Restart)
	assert.Empty(t, migration.After)
	assert.Equal(t, []string{topology.TargetName}, migration.WantedBy)
	assert.Equal(t, "/nix/store/abc-healthchecks/opt/healthchecks/manage.py migrate", migration.ExecStart)

	primary, ok := topo.Unit(topology.PrimaryName)
	require.True(t, ok)
	assert.Equal(t, unit.LongRunning, primary.Kind)
	assert.Equal(t, unit.RestartAlways, primary.Restart)
	assert.Equal(t, []string{topology.MigrationName}, primary.After)
	assert.Equal(t, []string{
		"/nix/store/abc-healthchecks/opt/healthchecks/manage.py collectstatic --no-input",
		"/nix/store/abc-healthchecks/opt/healthchecks/manage.py remove_stale_contenttypes --no-input",
		"/nix/store/abc-healthchecks/opt/healthchecks/manage.py compress",
	}, primary.ExecStartPre)
	assert.Equal(t,
		"/nix/store/abc-healthchecks/bin/gunicorn hc.wsgi --bind localhost:8000 --chdir /nix/store/abc-healthchecks/opt/healthchecks",
		primary.ExecStart)

	for _, name := range []string{topology.AlertsName, topology.ReportsName} {
		aux, ok := topo.Unit(name)
		require.True(t, ok, name)
		assert.Equal(t, unit.RestartAlways, aux.Restart)
		assert.Equal(t, []string{topology.PrimaryName}, aux.After)
		assert.Empty(t, aux.BindsTo)
	}

	for _, u := range topo.Units {
		if !u.IsService() {
			continue
		}
		assert.Equal(t, configuration.DefaultDataDir, u.WorkingDirectory, u.Name)
		assert.Equal(t, topo.Environment.Path, u.EnvironmentFile, u.Name)
		assert.Equal(t, "healthchecks", u.User, u.Name)
		assert.Equal(t, "healthchecks", u.Group, u.Name)
		assert.Equal(t, "healthchecks", u.StateDirectory, u.Name)
		assert.Equal(t, "0750", u.StateDirectoryMode, u.Name)
	}
}

func TestGenerate_Environment(t *testing.T) {
	conf := baseConf()
	conf.Settings.AllowedHosts = []string{"a.example", "b.example"}
	conf.Settings.Debug = true
	conf.Settings.Additional = map[string]string{
		"SITE_NAME": "Mychecks",
		"DEBUG":     "ignored",
	}

	topo, err := topology.Generate(conf)
	require.NoError(t, err)
	require.NotNil(t, topo.Environment)

	assert.Equal(t, "ALLOWED_HOSTS=a.example,b.example\n"+
		"DB=sqlite\n"+
		"DB_NAME=/var/lib/healthchecks/healthchecks.sqlite\n"+
		"DEBUG=True\n"+
		"PYTHONPATH=/nix/store/abc-healthchecks/opt/healthchecks\n"+
		"REGISTRATION_OPEN=False\n"+
		"SECRET_KEY_FILE=/run/secrets/healthchecks\n"+
		"SITE_NAME=Mychecks\n"+
		"STATIC_ROOT=/var/lib/healthchecks/static\n",
		string(topo.Environment.File.Content()))

	assert.Contains(t, topo.Environment.Path, "/etc/healthchecks/")
	assert.Contains(t, topo.Environment.Path, "-healthchecks-environment")
}

func TestGenerate_CustomDataDir(t *testing.T) {
	conf := baseConf()
	conf.DataDir = "/srv/hc"

	topo, err := topology.Generate(conf)
	require.NoError(t, err)

	for _, u := range topo.Units {
		if !u.IsService() {
			continue
		}
		assert.Equal(t, "/srv/hc", u.WorkingDirectory)
		assert.Empty(t, u.StateDirectory, "systemd only manages /var/lib state directories")
	}
	dbName, _ := topo.Environment.File.Get("DB_NAME")
	assert.Equal(t, "/srv/hc/healthchecks.sqlite", dbName)
}

func TestGenerate_Errors(t *testing.T) {
	testcases := []struct {
		name   string
		modify func(*configuration.Conf)
		err    error
	}{
		{"missing secret key", func(c *configuration.Conf) { c.Settings.SecretKeyFile = "" }, configuration.ErrMissingRequiredSetting},
		{"unknown database", func(c *configuration.Conf) { c.Settings.DB = "oracle" }, configuration.ErrInvalidEnumValue},
		{"port too large", func(c *configuration.Conf) { c.Port = 70000 }, configuration.ErrInvalidEnumValue},
		{"negative port", func(c *configuration.Conf) { c.Port = -1 }, configuration.ErrInvalidEnumValue},
		{"unknown policy", func(c *configuration.Conf) { c.AuxiliaryPolicy = "sometimes" }, configuration.ErrInvalidEnumValue},
		{"relative data dir", func(c *configuration.Conf) { c.DataDir = "var/lib/hc" }, configuration.ErrInvalidSetting},
		{"empty user", func(c *configuration.Conf) { c.User = "" }, configuration.ErrInvalidSetting},
		{"bad extension key", func(c *configuration.Conf) { c.Settings.Additional = map[string]string{"NOT-OK": "x"} }, configuration.ErrInvalidSetting},
		{"multi-line value", func(c *configuration.Conf) { c.Settings.Additional = map[string]string{"OK": "a\nb"} }, configuration.ErrInvalidSetting},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			conf := baseConf()
			tc.modify(&conf)

			topo, err := topology.Generate(conf)
			require.ErrorIs(t, err, tc.err)
			assert.Empty(t, topo.Units)
			assert.True(t, topo.Empty())
		})
	}
}

func TestGenerate_BoundPolicy(t *testing.T) {
	conf := baseConf()
	conf.AuxiliaryPolicy = configuration.Bound
	conf.SendReports = false

	topo, err := topology.Generate(conf)
	require.NoError(t, err)

	_, ok := topo.Unit(topology.ReportsName)
	assert.False(t, ok)

	alerts, ok := topo.Unit(topology.AlertsName)
	require.True(t, ok)
	assert.Equal(t, []string{topology.PrimaryName}, alerts.Requires)
	assert.Equal(t, []string{topology.PrimaryName}, alerts.BindsTo)
}

func TestGenerate_DisabledIsEmpty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		conf := generators.ConfGen().Draw(t, "Conf").(configuration.Conf)
		conf.Enabled = false
		if generators.Bool(t, "Break secret") {
			conf.Settings.SecretKeyFile = ""
		}

		topo, err := topology.Generate(conf)
		require.NoError(t, err)
		require.True(t, topo.Empty())
		require.Nil(t, topo.Environment)
	})
}

func TestGenerate_MigrationPrecedesServices(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		conf := generators.ConfGen().Draw(t, "Conf").(configuration.Conf)

		topo, err := topology.Generate(conf)
		require.NoError(t, err)

		for _, u := range topo.Units {
			if !u.IsService() || u.Name == topology.MigrationName {
				continue
			}
			after, err := topo.TransitiveAfter(u.Name)
			require.NoError(t, err)
			require.Contains(t, after, topology.MigrationName, u.Name)
		}
	})
}

func TestGenerate_Idempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		conf := generators.ConfGen().Draw(t, "Conf").(configuration.Conf)

		first, err := topology.Generate(conf)
		require.NoError(t, err)
		second, err := topology.Generate(conf)
		require.NoError(t, err)

		require.Equal(t, first, second)
		require.Equal(t, first.Environment.File.Content(), second.Environment.File.Content())
		require.Equal(t, first.Environment.Path, second.Environment.Path)
	})
}

func TestGenerate_DBNameFollowsDB(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		conf := generators.ConfGen().Draw(t, "Conf").(configuration.Conf)
		conf.Settings.DB = configuration.SQLite
		conf.Settings.DBName = ""

		sqlite, err := topology.Generate(conf)
		require.NoError(t, err)

		conf.Settings.DB = configuration.Postgres
		postgres, err := topology.Generate(conf)
		require.NoError(t, err)

		before := map[string]string{}
		for _, e := range sqlite.Environment.File.Entries() {
			before[e.Key] = e.Value
		}
		after := map[string]string{}
		for _, e := range postgres.Environment.File.Entries() {
			after[e.Key] = e.Value
		}

		require.Equal(t, conf.DataDir+"/healthchecks.sqlite", before["DB_NAME"])
		require.Equal(t, "hc", after["DB_NAME"])
		require.Equal(t, "postgres", after["DB"])

		for _, k := range []string{"DB", "DB_NAME"} {
			delete(before, k)
			delete(after, k)
		}
		require.Equal(t, before, after, "only DB and DB_NAME change")
	})
}

func TestGenerate_Principals(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		conf := generators.ConfGen().Draw(t, "Conf").(configuration.Conf)

		topo, err := topology.Generate(conf)
		require.NoError(t, err)
		p := topo.Principals

		if conf.User == configuration.DefaultUser {
			require.NotNil(t, p.User)
			require.Equal(t, conf.User, p.User.Name)
		} else {
			require.Nil(t, p.User)
		}

		if conf.Group == configuration.DefaultGroup {
			require.NotNil(t, p.Group)
			if p.User != nil {
				require.Equal(t, []string{conf.User}, p.Group.Members)
			}
		} else {
			require.Nil(t, p.Group)
		}
	})
}

func TestGenerate_SecretsOnlyByPath(t *testing.T) {
	conf := baseConf()
	conf.Settings.EmailHostPasswordFile = "/run/secrets/smtp"

	topo, err := topology.Generate(conf)
	require.NoError(t, err)

	v, ok := topo.Environment.File.Get("EMAIL_HOST_PASSWORD_FILE")
	require.True(t, ok)
	assert.Equal(t, "/run/secrets/smtp", v)
	_, ok = topo.Environment.File.Get("SECRET_KEY")
	assert.False(t, ok)
}

func TestTransitiveAfter_DuplicateUnit(t *testing.T) {
	topo := topology.Topology{Units: []unit.Descriptor{
		{Name: topology.PrimaryName, Kind: unit.LongRunning},
		{Name: topology.PrimaryName, Kind: unit.LongRunning},
	}}

	_, err := topo.TransitiveAfter(topology.PrimaryName)
	assert.ErrorContains(t, err, "duplicate unit healthchecks.service")
}
