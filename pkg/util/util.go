package util

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"regexp"
	"strings"
)

// https://www.gnu.org/software/bash/manual/html_node/Double-Quotes.html
func EscapeBashDoubleQuotes(s string) string {
	replacements := []string{"\\", "$", "`", "\""}

	for _, rep := range replacements {
		s = strings.ReplaceAll(s, rep, "\\"+rep)
	}

	return s
}

var shellSafe = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

// ShellQuote wraps s in single quotes so bash takes it literally.
func ShellQuote(s string) string {
	if shellSafe.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// https://nixos.org/manual/nix/stable/language/values.html#type-string
func EscapeNixString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "${", `\${`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return s
}

func EscapeNixIndentedString(s string) string {
	s = strings.ReplaceAll(s, "''", "'''")
	s = strings.ReplaceAll(s, "${", "''${")
	return s
}

func RemoveLinebreaks(s string) string {
	re := regexp.MustCompile(`\x{000D}\x{000A}|[\x{000A}\x{000B}\x{000C}\x{000D}\x{0085}\x{2028}\x{2029}]`)
	return re.ReplaceAllString(s, ``)
}

// ExitError carries the exit code a command line tool should end with.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

func ExitIfErr(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err.Error())
	if strings.HasSuffix(err.Error(), "^C") {
		fmt.Fprintln(os.Stderr, "User Interruption")
		os.Exit(0)
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.Code)
	}
	os.Exit(1)
}

func DoesDirExist(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	return info.IsDir()
}

func WasRunAsRoot() bool {
	return os.Geteuid() == 0
}

func CurrentUsername() string {
	currentUser, err := user.Current()
	if err != nil {
		return os.Getenv("USER")
	}
	return currentUser.Username
}
