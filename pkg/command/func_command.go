package command

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/Meerschwein/nixos-healthchecks/pkg/configuration"
	"github.com/Meerschwein/nixos-healthchecks/pkg/envfile"
	"github.com/Meerschwein/nixos-healthchecks/pkg/util"
)

// heredocMarker terminates embedded file content in generated scripts.
const heredocMarker = "HEALTHCHECKS_EOF"

type FunctionCommand struct {
	Label string
	Func  func() (string, error)
	Shell string
}

func (c FunctionCommand) Message() string {
	return c.Label
}

func (c FunctionCommand) Execute() (string, error) {
	return c.Func()
}

func (c FunctionCommand) DryRun() string {
	if c.Shell == "" {
		return "Ran a function"
	}
	return c.Shell
}

// WriteFile replaces path atomically with content.
func WriteFile(label, path string, content []byte, perm os.FileMode) Command {
	tmp := path + ".tmp"
	return FunctionCommand{
		Label: label,
		Func: func() (string, error) {
			return "", envfile.WriteAtomic(path, content, perm)
		},
		Shell: fmt.Sprintf("mkdir -p %s\ncat > %s <<'%s'\n%s%s\nchmod %04o %s && mv -f %s %s",
			util.ShellQuote(filepath.Dir(path)),
			util.ShellQuote(tmp), heredocMarker,
			content, heredocMarker,
			perm, util.ShellQuote(tmp), util.ShellQuote(tmp), util.ShellQuote(path)),
	}
}

// RemoveStaleFiles deletes the regular files in dir matching the glob
// pattern, except keep.
func RemoveStaleFiles(label, dir, pattern, keep string) Command {
	find := fmt.Sprintf("find %s -maxdepth 1 -type f -name %s", util.ShellQuote(dir), util.ShellQuote(pattern))
	if keep != "" {
		find += " ! -path " + util.ShellQuote(keep)
	}
	return FunctionCommand{
		Label: label,
		Func: func() (string, error) {
			matches, err := filepath.Glob(filepath.Join(dir, pattern))
			if err != nil {
				return "", err
			}
			var removed []string
			for _, m := range matches {
				if m == keep {
					continue
				}
				info, err := os.Lstat(m)
				if err != nil || !info.Mode().IsRegular() {
					continue
				}
				if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
					return "", err
				}
				removed = append(removed, m)
			}
			return strings.Join(removed, "\n"), nil
		},
		Shell: fmt.Sprintf("if [ -d %s ]; then %s -delete; fi", util.ShellQuote(dir), find),
	}
}

func RemoveFile(label, path string) Command {
	return FunctionCommand{
		Label: label,
		Func: func() (string, error) {
			err := os.Remove(path)
			if os.IsNotExist(err) {
				return "already absent", nil
			}
			return "", err
		},
		Shell: "rm -f " + util.ShellQuote(path),
	}
}

// RequireUser fails with ErrPrincipalConflict if name is not a known account.
func RequireUser(name string) Command {
	return FunctionCommand{
		Label: fmt.Sprintf("Check that user %s exists", name),
		Func: func() (string, error) {
			if _, err := user.Lookup(name); err != nil {
				return "", fmt.Errorf("%w: user %s: %v", configuration.ErrPrincipalConflict, name, err)
			}
			return "", nil
		},
		Shell: fmt.Sprintf("getent passwd %s >/dev/null || { echo \"principal conflict: user %s does not exist\" >&2; exit 1; }",
			util.ShellQuote(name), util.EscapeBashDoubleQuotes(name)),
	}
}

// RequireGroup fails with ErrPrincipalConflict if name is not a known group.
func RequireGroup(name string) Command {
	return FunctionCommand{
		Label: fmt.Sprintf("Check that group %s exists", name),
		Func: func() (string, error) {
			if _, err := user.LookupGroup(name); err != nil {
				return "", fmt.Errorf("%w: group %s: %v", configuration.ErrPrincipalConflict, name, err)
			}
			return "", nil
		},
		Shell: fmt.Sprintf("getent group %s >/dev/null || { echo \"principal conflict: group %s does not exist\" >&2; exit 1; }",
			util.ShellQuote(name), util.EscapeBashDoubleQuotes(name)),
	}
}
