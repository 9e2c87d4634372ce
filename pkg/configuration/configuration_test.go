package configuration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func validConf() Conf {
	c := Default()
	c.Enabled = true
	c.Settings.SecretKeyFile = "/run/secrets/hc-key"
	return c
}

func TestDefault(t *testing.T) {
	c := Default()

	assert.False(t, c.Enabled)
	assert.Equal(t, "healthchecks", c.User)
	assert.Equal(t, "healthchecks", c.Group)
	assert.Equal(t, "localhost", c.ListenAddress)
	assert.Equal(t, 8000, c.Port)
	assert.Equal(t, "/var/lib/healthchecks", c.DataDir)
	assert.Equal(t, []string{"*"}, c.Settings.AllowedHosts)
	assert.Equal(t, SQLite, c.Settings.DB)
	assert.Equal(t, Independent, c.AuxiliaryPolicy)
	assert.True(t, c.SendAlerts)
	assert.True(t, c.SendReports)
	assert.True(t, c.ManagesStateDirectory())
}

func TestEffectiveDBName(t *testing.T) {
	c := Default()
	assert.Equal(t, "/var/lib/healthchecks/healthchecks.sqlite", c.EffectiveDBName())

	c.DataDir = "/srv/hc"
	assert.Equal(t, "/srv/hc/healthchecks.sqlite", c.EffectiveDBName())

	c.Settings.DB = Postgres
	assert.Equal(t, "hc", c.EffectiveDBName())

	c.Settings.DBName = "monitoring"
	assert.Equal(t, "monitoring", c.EffectiveDBName())
}

func TestEffectiveDBNameFollowsDB(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := Default()
		c.Settings.DB = rapid.SampledFrom(DBs()).Draw(t, "DB").(DB)
		c.DataDir = rapid.StringMatching(`/[a-z]{1,8}(/[a-z]{1,8})?`).Draw(t, "Data dir").(string)

		if c.Settings.DB == SQLite {
			require.Equal(t, c.DataDir+"/healthchecks.sqlite", c.EffectiveDBName())
		} else {
			require.Equal(t, "hc", c.EffectiveDBName())
		}
	})
}

func TestDerivedPaths(t *testing.T) {
	c := Default()
	c.Package = "/nix/store/abc-healthchecks"

	assert.Equal(t, "/nix/store/abc-healthchecks/opt/healthchecks/manage.py", c.ManagePy())
	assert.Equal(t, "/nix/store/abc-healthchecks/opt/healthchecks", c.AppDir())
	assert.Equal(t, "/nix/store/abc-healthchecks", c.EffectivePythonEnv())
	assert.Equal(t, c.AppDir(), c.EffectivePythonPath())
	assert.Equal(t, "/var/lib/healthchecks/static", c.StaticRoot())

	c.PythonEnv = "/nix/store/def-python"
	c.PythonPath = "/nix/store/def-python/lib"
	assert.Equal(t, "/nix/store/def-python", c.EffectivePythonEnv())
	assert.Equal(t, "/nix/store/def-python/lib", c.EffectivePythonPath())

	c.DataDir = "/var/lib/healthchecks/"
	assert.True(t, c.ManagesStateDirectory())
	c.DataDir = "/srv/healthchecks"
	assert.False(t, c.ManagesStateDirectory())
}

func TestParseEnums(t *testing.T) {
	db, err := ParseDB("mysql")
	require.NoError(t, err)
	assert.Equal(t, MySQL, db)

	_, err = ParseDB("oracle")
	assert.ErrorIs(t, err, ErrInvalidEnumValue)

	p, err := ParseAuxiliaryPolicy("bound")
	require.NoError(t, err)
	assert.Equal(t, Bound, p)

	_, err = ParseAuxiliaryPolicy("")
	assert.ErrorIs(t, err, ErrInvalidEnumValue)
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConf().Validate())

	disabled := Default()
	disabled.Port = -1
	require.NoError(t, disabled.Validate())

	testcases := []struct {
		name   string
		modify func(*Conf)
		target error
	}{
		{"missing secret key", func(c *Conf) { c.Settings.SecretKeyFile = "" }, ErrMissingRequiredSetting},
		{"relative secret key", func(c *Conf) { c.Settings.SecretKeyFile = "key" }, ErrInvalidSetting},
		{"port too large", func(c *Conf) { c.Port = 65536 }, ErrInvalidEnumValue},
		{"negative port", func(c *Conf) { c.Port = -1 }, ErrInvalidEnumValue},
		{"bad db", func(c *Conf) { c.Settings.DB = "oracle" }, ErrInvalidEnumValue},
		{"bad policy", func(c *Conf) { c.AuxiliaryPolicy = "loose" }, ErrInvalidEnumValue},
		{"bad user", func(c *Conf) { c.User = "Root User" }, ErrInvalidSetting},
		{"bad group", func(c *Conf) { c.Group = "" }, ErrInvalidSetting},
		{"relative data dir", func(c *Conf) { c.DataDir = "var/lib/hc" }, ErrInvalidSetting},
		{"empty listen address", func(c *Conf) { c.ListenAddress = "" }, ErrInvalidSetting},
		{"host with comma", func(c *Conf) { c.Settings.AllowedHosts = []string{"a,b"} }, ErrInvalidSetting},
		{"bad setting key", func(c *Conf) { c.Settings.Additional = map[string]string{"1X": "v"} }, ErrInvalidSetting},
		{"multi-line setting", func(c *Conf) { c.Settings.Additional = map[string]string{"X": "a\nb"} }, ErrInvalidSetting},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			c := validConf()
			tc.modify(&c)
			assert.ErrorIs(t, c.Validate(), tc.target)
		})
	}
}

func TestPrincipals(t *testing.T) {
	c := validConf()
	p := c.Principals()
	require.NotNil(t, p.User)
	require.NotNil(t, p.Group)
	assert.Equal(t, "healthchecks", p.User.Name)
	assert.Equal(t, "healthchecks", p.User.Group)
	assert.Equal(t, "/var/lib/healthchecks", p.User.Home)
	assert.True(t, p.User.System)
	assert.Equal(t, []string{"healthchecks"}, p.Group.Members)

	c.User = "monitor"
	p = c.Principals()
	assert.Nil(t, p.User)
	require.NotNil(t, p.Group)
	assert.Empty(t, p.Group.Members)

	c.Group = "monitor"
	assert.True(t, c.Principals().Empty())

	c.User = "healthchecks"
	p = c.Principals()
	require.NotNil(t, p.User)
	assert.Equal(t, "monitor", p.User.Group)
	assert.Nil(t, p.Group)
}
