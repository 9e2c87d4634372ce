package selection

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Meerschwein/nixos-healthchecks/pkg/configuration"
	"github.com/Meerschwein/nixos-healthchecks/pkg/util"
	"github.com/manifoldco/promptui"
)

type SelectionStep func(before configuration.Conf) (after configuration.Conf, err error)

// DefaultSteps asks for everything a first deployment needs.
func DefaultSteps() []SelectionStep {
	return []SelectionStep{
		Principal,
		ListenAddress,
		Port,
		DataDir,
		Database,
		SecretKeyFile,
		AllowedHosts,
		Registration,
	}
}

func ValidUsername(s string) error {
	if !configuration.ValidPrincipalName(s) {
		return fmt.Errorf("invalid name")
	}
	return nil
}

func ValidPort(s string) error {
	p, err := strconv.Atoi(s)
	if err != nil || p < 0 || p > 65535 {
		return fmt.Errorf("port must be a number between 0 and 65535")
	}
	return nil
}

func ValidAbsPath(s string) error {
	if !filepath.IsAbs(s) {
		return fmt.Errorf("path must be absolute")
	}
	return nil
}

func ValidHosts(s string) error {
	for _, h := range splitHosts(s) {
		if strings.ContainsAny(h, " \t") {
			return fmt.Errorf("hosts are separated by commas")
		}
	}
	if len(splitHosts(s)) == 0 {
		return fmt.Errorf("at least one host is required")
	}
	return nil
}

func splitHosts(s string) (hosts []string) {
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return
}

func text(label, def string, validate promptui.ValidateFunc) (string, error) {
	prompt := promptui.Prompt{
		Label:    label,
		Default:  def,
		Validate: validate,
	}
	out, err := prompt.Run()
	return util.RemoveLinebreaks(strings.TrimSpace(out)), err
}

func Principal(conf configuration.Conf) (configuration.Conf, error) {
	useDefault := YesNoDialog(fmt.Sprintf("Run as the generated %s user and group?", configuration.DefaultUser))
	if useDefault {
		conf.User = configuration.DefaultUser
		conf.Group = configuration.DefaultGroup
		return conf, nil
	}

	u, err := text("Existing user", conf.User, ValidUsername)
	if err != nil {
		return configuration.Conf{}, SelectionStepError("User", err)
	}
	g, err := text("Existing group", u, ValidUsername)
	if err != nil {
		return configuration.Conf{}, SelectionStepError("Group", err)
	}

	conf.User = u
	conf.Group = g

	return conf, nil
}

func ListenAddress(conf configuration.Conf) (configuration.Conf, error) {
	addr, err := text("Listen address", conf.ListenAddress, func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("listen address is required")
		}
		return nil
	})
	if err != nil {
		return configuration.Conf{}, SelectionStepError("Listen address", err)
	}

	conf.ListenAddress = addr

	return conf, nil
}

func Port(conf configuration.Conf) (configuration.Conf, error) {
	s, err := text("Port", strconv.Itoa(conf.Port), ValidPort)
	if err != nil {
		return configuration.Conf{}, SelectionStepError("Port", err)
	}

	conf.Port, _ = strconv.Atoi(s)

	return conf, nil
}

func DataDir(conf configuration.Conf) (configuration.Conf, error) {
	dir, err := text("Data directory", conf.DataDir, ValidAbsPath)
	if err != nil {
		return configuration.Conf{}, SelectionStepError("Data directory", err)
	}

	conf.DataDir = filepath.Clean(dir)

	return conf, nil
}

func Database(conf configuration.Conf) (configuration.Conf, error) {
	dbs := configuration.DBs()

	prompt := promptui.Select{
		Label: "Select the database backend",
		Items: dbs,
		Size:  len(dbs),
	}

	i, _, err := prompt.Run()
	if err != nil {
		return configuration.Conf{}, SelectionStepError("Database", err)
	}

	conf.Settings.DB = dbs[i]

	return conf, nil
}

func SecretKeyFile(conf configuration.Conf) (configuration.Conf, error) {
	path, err := text("Path of the file holding SECRET_KEY", conf.Settings.SecretKeyFile, ValidAbsPath)
	if err != nil {
		return configuration.Conf{}, SelectionStepError("Secret key file", err)
	}

	conf.Settings.SecretKeyFile = path

	return conf, nil
}

func AllowedHosts(conf configuration.Conf) (configuration.Conf, error) {
	s, err := text("Allowed hosts (comma separated)", strings.Join(conf.Settings.AllowedHosts, ","), ValidHosts)
	if err != nil {
		return configuration.Conf{}, SelectionStepError("Allowed hosts", err)
	}

	conf.Settings.AllowedHosts = splitHosts(s)

	return conf, nil
}

func Registration(conf configuration.Conf) (configuration.Conf, error) {
	conf.Settings.RegistrationOpen = YesNoDialog("Allow new users to sign up?")
	return conf, nil
}

func GetSelections(c configuration.Conf, steps []SelectionStep) (conf configuration.Conf, err error) {
	conf = c
	for _, step := range steps {
		conf, err = step(conf)
		if err != nil {
			return
		}
	}
	return
}

func SelectionStepError(step string, err error) error {
	return fmt.Errorf("an error occured during %s: %w", step, err)
}
