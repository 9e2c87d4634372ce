package configuration

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	validPrincipal = regexp.MustCompile(`^[a-z_][a-z0-9_-]*[$]?$`)
	validEnvKey    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

func ValidPrincipalName(s string) bool {
	return len(s) <= 32 && validPrincipal.MatchString(s)
}

func ValidEnvKey(s string) bool {
	return validEnvKey.MatchString(s)
}

// Validate checks the whole configuration and returns the first problem.
// A disabled configuration is not validated.
func (c Conf) Validate() error {
	if !c.Enabled {
		return nil
	}

	if !ValidPrincipalName(c.User) {
		return fmt.Errorf("%w: user %q", ErrInvalidSetting, c.User)
	}
	if !ValidPrincipalName(c.Group) {
		return fmt.Errorf("%w: group %q", ErrInvalidSetting, c.Group)
	}
	if c.ListenAddress == "" || strings.ContainsAny(c.ListenAddress, " \t\r\n") {
		return fmt.Errorf("%w: listen address %q", ErrInvalidSetting, c.ListenAddress)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range [0,65535]", ErrInvalidEnumValue, c.Port)
	}

	paths := []struct {
		name     string
		value    string
		optional bool
	}{
		{"dataDir", c.DataDir, false},
		{"package", c.Package, false},
		{"environmentDir", c.EnvironmentDir, false},
		{"pythonEnv", c.PythonEnv, true},
		{"EMAIL_HOST_PASSWORD_FILE", c.Settings.EmailHostPasswordFile, true},
	}
	for _, p := range paths {
		if p.optional && p.value == "" {
			continue
		}
		if err := checkPath(p.name, p.value); err != nil {
			return err
		}
	}

	if c.Settings.SecretKeyFile == "" {
		return fmt.Errorf("%w: SECRET_KEY_FILE", ErrMissingRequiredSetting)
	}
	if err := checkPath("SECRET_KEY_FILE", c.Settings.SecretKeyFile); err != nil {
		return err
	}

	if _, err := ParseDB(string(c.Settings.DB)); err != nil {
		return err
	}
	if _, err := ParseAuxiliaryPolicy(string(c.AuxiliaryPolicy)); err != nil {
		return err
	}

	for _, h := range c.Settings.AllowedHosts {
		if h == "" || strings.ContainsAny(h, ", \t\r\n") {
			return fmt.Errorf("%w: ALLOWED_HOSTS entry %q", ErrInvalidSetting, h)
		}
	}
	if strings.ContainsAny(c.Settings.DBName, "\r\n") {
		return fmt.Errorf("%w: DB_NAME must be a single line", ErrInvalidSetting)
	}

	for k, v := range c.Settings.Additional {
		if !ValidEnvKey(k) {
			return fmt.Errorf("%w: setting name %q", ErrInvalidSetting, k)
		}
		if strings.ContainsAny(v, "\r\n") {
			return fmt.Errorf("%w: setting %s must be a single line", ErrInvalidSetting, k)
		}
	}

	return nil
}

func checkPath(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is empty", ErrInvalidSetting, name)
	}
	if !filepath.IsAbs(value) {
		return fmt.Errorf("%w: %s %q is not absolute", ErrInvalidSetting, name, value)
	}
	if strings.ContainsAny(value, "\r\n") {
		return fmt.Errorf("%w: %s contains a line break", ErrInvalidSetting, name)
	}
	return nil
}
