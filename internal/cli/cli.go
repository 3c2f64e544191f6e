// Package cli implements the quasselcore-usermanager and quasselcore-config
// commands. Both entry points take their arguments and standard streams
// explicitly and return the process exit code.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/shalteor/quassel-tools/internal/logging"
)

const version = "1.1.0"

const (
	exitOK   = 0
	exitFail = 1
)

// test seams for the terminal
var (
	readPassword = term.ReadPassword
	terminalFd   = func(r io.Reader) (int, bool) {
		f, ok := r.(*os.File)
		if !ok || !term.IsTerminal(int(f.Fd())) {
			return 0, false
		}
		return int(f.Fd()), true
	}
)

// promptPassword asks for a password without echo when stdin is a
// terminal. It returns "" when there is no terminal to ask.
func promptPassword(stdin io.Reader, w io.Writer) (string, error) {
	fd, ok := terminalFd(stdin)
	if !ok {
		return "", nil
	}

	fmt.Fprint(w, "Enter password: ")
	pw, err := readPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(pw), nil
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SortFlags = false
	return fs
}

func newLogger(w io.Writer, debug bool, tool string) *zap.Logger {
	return logging.WithRun(logging.New(w, debug), tool)
}

// inputError prints the usage line followed by msg and returns the failure code
func inputError(w io.Writer, usage func(io.Writer), msg string) int {
	usage(w)
	fmt.Fprintf(w, "%s\n\n", msg)
	return exitFail
}
