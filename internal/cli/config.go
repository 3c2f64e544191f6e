package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/shalteor/quassel-tools/internal/coreconfig"
)

const (
	configName     = "quasselcore-config"
	configFileName = "quasselcore.conf"
)

func configFlags() *pflag.FlagSet {
	fs := newFlagSet(configName)
	fs.BoolP("help", "h", false, "print detailed help screen")
	fs.BoolP("version", "V", false, "print version information")
	fs.StringP("file", "f", "", "config file (default $QUASSEL_CONFIG_DIR/"+configFileName+")")
	fs.BoolP("dump", "d", false, "dump the auth and storage settings of the config file")
	fs.StringP("output", "o", "text", "dump format: text, json or yaml")
	fs.Bool("debug", false, "enable debug logging")
	return fs
}

func configUsage(w io.Writer) {
	fmt.Fprintf(w, "\nUsage:\n %s [--file <config file>] [--dump [--output text|json|yaml]]\n\n", configName)
}

func configHelp(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintf(w, "\n%s v%s\n\nwrite a quassel core config file\n", configName, version)
	fmt.Fprintln(w, "reads the following environment variables to write an LDAP configuration:")
	for _, name := range coreconfig.LDAPEnv {
		fmt.Fprintf(w, "  - %s\n", name)
	}
	configUsage(w)
	fmt.Fprintf(w, "Options:\n%s\n", fs.FlagUsages())
}

// RunConfig runs quasselcore-config with args (without the program name)
// and returns the exit code.
func RunConfig(_ context.Context, args []string, stdout, stderr io.Writer) int {
	fs := configFlags()
	if err := fs.Parse(args); err != nil {
		return inputError(stderr, configUsage, err.Error())
	}

	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		fmt.Fprintf(stderr, "failed to bind flags: %v\n", err)
		return exitFail
	}
	_ = v.BindEnv("config_dir", "QUASSEL_CONFIG_DIR")

	if v.GetBool("help") {
		configHelp(stdout, fs)
		return exitOK
	}
	if v.GetBool("version") {
		fmt.Fprintf(stdout, "%s v%s\n", configName, version)
		return exitOK
	}
	if fs.NArg() > 0 {
		return inputError(stderr, configUsage, fmt.Sprintf("unexpected argument: %s", fs.Arg(0)))
	}

	path := v.GetString("file")
	if path == "" && v.GetString("config_dir") != "" {
		path = filepath.Join(v.GetString("config_dir"), configFileName)
	}
	if path == "" {
		return inputError(stderr, configUsage, "we need a config file.")
	}

	output := v.GetString("output")
	switch output {
	case "text", "json", "yaml":
	default:
		return inputError(stderr, configUsage, fmt.Sprintf("unknown output format %q.", output))
	}

	logger := newLogger(stderr, v.GetBool("debug"), configName)
	defer func() { _ = logger.Sync() }()

	file, err := coreconfig.Open(path, logger)
	if errors.Is(err, coreconfig.ErrConfigMissing) {
		return inputError(stderr, configUsage, fmt.Sprintf("The configuration file %s does not exist.", path))
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFail
	}

	if v.GetBool("dump") {
		return dumpConfig(file, output, stdout, stderr)
	}
	return writeLDAP(file, v, stdout, stderr, logger)
}

func writeLDAP(file *coreconfig.File, v *viper.Viper, stdout, stderr io.Writer, logger *zap.Logger) int {
	settings, missing := coreconfig.LDAPSettingsFromEnv(v)
	if len(missing) > 0 {
		logger.Warn("LDAP configuration incomplete", zap.Strings("missing", missing))

		fmt.Fprintln(stderr, "\nWARNING:")
		fmt.Fprintln(stderr, "The LDAP configuration was not written because not all required environment variables were set.")
		for _, name := range missing {
			fmt.Fprintf(stderr, " - %s missing\n", name)
		}
		fmt.Fprintln(stderr)
		return exitFail
	}

	if err := file.ApplyLDAP(settings); err != nil {
		fmt.Fprintln(stderr, err)
		return exitFail
	}
	if err := file.Save(); err != nil {
		fmt.Fprintln(stderr, err)
		return exitFail
	}

	fmt.Fprintf(stdout, "LDAP authentication written to %s\n", file.Path())
	return exitOK
}

func dumpConfig(file *coreconfig.File, output string, stdout, stderr io.Writer) int {
	dump, err := file.Dump()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFail
	}

	switch output {
	case "json":
		err = writeJSON(stdout, dump, "  ")
	case "yaml":
		enc := yaml.NewEncoder(stdout)
		enc.SetIndent(2)
		if err = enc.Encode(dump); err == nil {
			err = enc.Close()
		}
	default:
		err = writeDumpText(stdout, dump)
	}

	if err != nil {
		fmt.Fprintf(stderr, "failed to render config: %v\n", err)
		return exitFail
	}
	return exitOK
}

func writeDumpText(w io.Writer, dump coreconfig.Dump) error {
	auth, err := compactJSON(dump.AuthSettings)
	if err != nil {
		return err
	}
	storage, err := compactJSON(dump.StorageSettings)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\nconfig file : %s\n\n", dump.File)
	fmt.Fprintf(w, "config version: %d\n", dump.ConfigVersion)
	fmt.Fprintf(w, "Core AuthSettings: %s\n", auth)
	fmt.Fprintf(w, "Core StorageSettings: %s\n\n", storage)
	return nil
}

func compactJSON(v any) (string, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, v, ""); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// writeJSON encodes v without HTML escaping, LDAP filters are full of '&'
func writeJSON(w io.Writer, v any, indent string) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(v)
}
