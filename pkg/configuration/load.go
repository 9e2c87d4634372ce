package configuration

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"
)

// fileConf is the on-disk shape shared by the HCL and YAML loaders. Unset
// fields keep the value from Default().
type fileConf struct {
	Enabled         *bool         `hcl:"enable,optional" yaml:"enable,omitempty"`
	User            *string       `hcl:"user,optional" yaml:"user,omitempty"`
	Group           *string       `hcl:"group,optional" yaml:"group,omitempty"`
	ListenAddress   *string       `hcl:"listen_address,optional" yaml:"listen_address,omitempty"`
	Port            *int          `hcl:"port,optional" yaml:"port,omitempty"`
	DataDir         *string       `hcl:"data_dir,optional" yaml:"data_dir,omitempty"`
	Package         *string       `hcl:"package,optional" yaml:"package,omitempty"`
	PythonEnv       *string       `hcl:"python_env,optional" yaml:"python_env,omitempty"`
	PythonPath      *string       `hcl:"python_path,optional" yaml:"python_path,omitempty"`
	EnvironmentDir  *string       `hcl:"environment_dir,optional" yaml:"environment_dir,omitempty"`
	SendAlerts      *bool         `hcl:"send_alerts,optional" yaml:"send_alerts,omitempty"`
	SendReports     *bool         `hcl:"send_reports,optional" yaml:"send_reports,omitempty"`
	AuxiliaryPolicy *string       `hcl:"auxiliary_policy,optional" yaml:"auxiliary_policy,omitempty"`
	Settings        *fileSettings `hcl:"settings,block" yaml:"settings,omitempty"`
}

type fileSettings struct {
	AllowedHosts          []string `hcl:"ALLOWED_HOSTS,optional" yaml:"ALLOWED_HOSTS,omitempty"`
	SecretKeyFile         *string  `hcl:"SECRET_KEY_FILE,optional" yaml:"SECRET_KEY_FILE,omitempty"`
	Debug                 *bool    `hcl:"DEBUG,optional" yaml:"DEBUG,omitempty"`
	RegistrationOpen      *bool    `hcl:"REGISTRATION_OPEN,optional" yaml:"REGISTRATION_OPEN,omitempty"`
	DB                    *string  `hcl:"DB,optional" yaml:"DB,omitempty"`
	DBName                *string  `hcl:"DB_NAME,optional" yaml:"DB_NAME,omitempty"`
	EmailHostPasswordFile *string  `hcl:"EMAIL_HOST_PASSWORD_FILE,optional" yaml:"EMAIL_HOST_PASSWORD_FILE,omitempty"`

	Remain     hcl.Body               `hcl:",remain" yaml:"-"`
	Additional map[string]interface{} `yaml:",inline"`
}

// Load reads a configuration file. The format is picked from the extension:
// .hcl for HCL, .yaml/.yml for YAML.
func Load(path string) (Conf, error) {
	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Conf{}, fmt.Errorf("config %s does not exist", path)
	}
	if err != nil {
		return Conf{}, fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".hcl":
		return ParseHCL(content, path)
	case ".yaml", ".yml":
		return ParseYAML(content)
	default:
		return Conf{}, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
}

func ParseHCL(src []byte, filename string) (Conf, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return Conf{}, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}

	var fc fileConf
	diags = gohcl.DecodeBody(file.Body, nil, &fc)
	if diags.HasErrors() {
		return Conf{}, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	if fc.Settings != nil && fc.Settings.Remain != nil {
		attrs, diags := fc.Settings.Remain.JustAttributes()
		if diags.HasErrors() {
			return Conf{}, fmt.Errorf("failed to decode settings in %s: %w", filename, diags)
		}

		fc.Settings.Additional = map[string]interface{}{}
		for name, attr := range attrs {
			val, diags := attr.Expr.Value(nil)
			if diags.HasErrors() {
				return Conf{}, fmt.Errorf("failed to evaluate setting %s in %s: %w", name, filename, diags)
			}
			if val.IsNull() {
				continue
			}
			s, err := settingFromCty(name, val)
			if err != nil {
				return Conf{}, err
			}
			fc.Settings.Additional[name] = s
		}
	}

	return fc.apply(Default())
}

func ParseYAML(src []byte) (Conf, error) {
	var fc fileConf
	if err := yaml.Unmarshal(src, &fc); err != nil {
		return Conf{}, fmt.Errorf("parse config: %w", err)
	}
	return fc.apply(Default())
}

// WriteYAML stores conf in the format ParseYAML reads back.
func WriteYAML(path string, conf Conf) error {
	fc := fileConf{
		Enabled:         &conf.Enabled,
		User:            &conf.User,
		Group:           &conf.Group,
		ListenAddress:   &conf.ListenAddress,
		Port:            &conf.Port,
		DataDir:         &conf.DataDir,
		Package:         &conf.Package,
		EnvironmentDir:  &conf.EnvironmentDir,
		SendAlerts:      &conf.SendAlerts,
		SendReports:     &conf.SendReports,
		AuxiliaryPolicy: (*string)(&conf.AuxiliaryPolicy),
		Settings: &fileSettings{
			AllowedHosts:     conf.Settings.AllowedHosts,
			SecretKeyFile:    &conf.Settings.SecretKeyFile,
			Debug:            &conf.Settings.Debug,
			RegistrationOpen: &conf.Settings.RegistrationOpen,
			DB:               (*string)(&conf.Settings.DB),
		},
	}
	if conf.PythonEnv != "" {
		fc.PythonEnv = &conf.PythonEnv
	}
	if conf.PythonPath != "" {
		fc.PythonPath = &conf.PythonPath
	}
	if conf.Settings.DBName != "" {
		fc.Settings.DBName = &conf.Settings.DBName
	}
	if conf.Settings.EmailHostPasswordFile != "" {
		fc.Settings.EmailHostPasswordFile = &conf.Settings.EmailHostPasswordFile
	}
	if len(conf.Settings.Additional) > 0 {
		fc.Settings.Additional = map[string]interface{}{}
		for k, v := range conf.Settings.Additional {
			fc.Settings.Additional[k] = v
		}
	}

	out, err := yaml.Marshal(fc)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (fc fileConf) apply(c Conf) (Conf, error) {
	setBool(&c.Enabled, fc.Enabled)
	setString(&c.User, fc.User)
	setString(&c.Group, fc.Group)
	setString(&c.ListenAddress, fc.ListenAddress)
	if fc.Port != nil {
		c.Port = *fc.Port
	}
	setString(&c.DataDir, fc.DataDir)
	setString(&c.Package, fc.Package)
	setString(&c.PythonEnv, fc.PythonEnv)
	setString(&c.PythonPath, fc.PythonPath)
	setString(&c.EnvironmentDir, fc.EnvironmentDir)
	setBool(&c.SendAlerts, fc.SendAlerts)
	setBool(&c.SendReports, fc.SendReports)
	if fc.AuxiliaryPolicy != nil {
		p, err := ParseAuxiliaryPolicy(*fc.AuxiliaryPolicy)
		if err != nil {
			return Conf{}, err
		}
		c.AuxiliaryPolicy = p
	}

	s := fc.Settings
	if s == nil {
		return c, nil
	}

	if s.AllowedHosts != nil {
		c.Settings.AllowedHosts = append([]string{}, s.AllowedHosts...)
	}
	setString(&c.Settings.SecretKeyFile, s.SecretKeyFile)
	setBool(&c.Settings.Debug, s.Debug)
	setBool(&c.Settings.RegistrationOpen, s.RegistrationOpen)
	if s.DB != nil {
		db, err := ParseDB(*s.DB)
		if err != nil {
			return Conf{}, err
		}
		c.Settings.DB = db
	}
	setString(&c.Settings.DBName, s.DBName)
	setString(&c.Settings.EmailHostPasswordFile, s.EmailHostPasswordFile)

	if len(s.Additional) > 0 {
		c.Settings.Additional = map[string]string{}
		keys := make([]string, 0, len(s.Additional))
		for k := range s.Additional {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s.Additional[k] == nil {
				continue
			}
			v, err := settingFromPlain(k, s.Additional[k])
			if err != nil {
				return Conf{}, err
			}
			c.Settings.Additional[k] = v
		}
	}

	return c, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

// PythonBool renders b the way Python spells boolean literals.
func PythonBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func settingFromCty(key string, v cty.Value) (string, error) {
	if !v.IsWhollyKnown() || v.IsNull() {
		return "", fmt.Errorf("%w: setting %s has no value", ErrInvalidSetting, key)
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil
	case ty == cty.Bool:
		return PythonBool(v.True()), nil
	case ty == cty.Number:
		return v.AsBigFloat().Text('f', -1), nil
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		parts := []string{}
		it := v.ElementIterator()
		for it.Next() {
			_, ev := it.Element()
			s, err := settingFromCty(key, ev)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), nil
	default:
		return "", fmt.Errorf("%w: setting %s has unsupported type %s", ErrInvalidSetting, key, ty.FriendlyName())
	}
}

func settingFromPlain(key string, v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case bool:
		return PythonBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case uint64:
		return strconv.FormatUint(t, 10), nil
	case float64:
		return big.NewFloat(t).Text('f', -1), nil
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			s, err := settingFromPlain(key, e)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), nil
	default:
		return "", fmt.Errorf("%w: setting %s has unsupported type %T", ErrInvalidSetting, key, v)
	}
}
