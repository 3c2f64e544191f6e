// Package coreconfig reads and writes the Quassel core configuration file,
// an INI file in QSettings format.
package coreconfig

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/ini.v1"

	"github.com/shalteor/quassel-tools/internal/models"
	"github.com/shalteor/quassel-tools/internal/qsettings"
)

const (
	KeyVersion         = "Config/Version"
	KeyAuthSettings    = "Core/AuthSettings"
	KeyStorageSettings = "Core/StorageSettings"

	// QSettings keeps keys without a group in [General]
	generalSection = "General"
)

var ErrConfigMissing = errors.New("config file does not exist")

func init() {
	// QSettings writes key=value without alignment padding
	ini.PrettyFormat = false
}

var loadOptions = ini.LoadOptions{
	IgnoreInlineComment:     true,
	IgnoreContinuation:      true,
	PreserveSurroundedQuote: true,
	KeyValueDelimiters:      "=",
}

// File is a loaded core configuration file
type File struct {
	path   string
	mode   os.FileMode
	cfg    *ini.File
	logger *zap.Logger
}

// Open loads the configuration file at path. The file must exist.
func Open(path string, logger *zap.Logger) (*File, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigMissing, path)
		}
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg, err := ini.LoadSources(loadOptions, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}

	logger = logger.With(zap.String("config", path))
	logger.Debug("config file loaded", zap.Int("sections", len(cfg.Sections())))

	return &File{
		path:   path,
		mode:   info.Mode().Perm(),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Path returns the file the configuration was loaded from
func (f *File) Path() string {
	return f.path
}

// splitKey maps a QSettings key such as "Core/AuthSettings" to its INI
// section and key name.
func splitKey(key string) (section, name string) {
	section, name, ok := strings.Cut(key, "/")
	if !ok {
		return generalSection, key
	}
	return section, name
}

// Value returns the decoded value stored under key, nil if it is unset
func (f *File) Value(key string) (any, error) {
	section, name := splitKey(key)

	sec, err := f.cfg.GetSection(section)
	if err != nil {
		return nil, nil
	}
	if !sec.HasKey(name) {
		return nil, nil
	}

	v, err := qsettings.DecodeValue(sec.Key(name).String())
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return v, nil
}

// SetValue encodes v and stores it under key. Nothing is written to disk
// until Save.
func (f *File) SetValue(key string, v any) error {
	raw, err := qsettings.EncodeValue(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	section, name := splitKey(key)
	f.cfg.Section(section).Key(name).SetValue(raw)
	return nil
}

// Version returns Config/Version. Unset or non-numeric values count as 0.
func (f *File) Version() uint64 {
	v, err := f.Value(KeyVersion)
	if err != nil {
		return 0
	}
	return toUint(v)
}

// EnsureVersion sets Config/Version to 1 when it is unset or 0 and
// reports whether it changed anything.
func (f *File) EnsureVersion() (bool, error) {
	if f.Version() != 0 {
		return false, nil
	}
	if err := f.SetValue(KeyVersion, 1); err != nil {
		return false, err
	}
	f.logger.Debug("config version initialized", zap.Int("version", 1))
	return true, nil
}

// SetAuthSettings stores the authenticator descriptor under Core/AuthSettings
func (f *File) SetAuthSettings(settings models.AuthSettings) error {
	if err := f.SetValue(KeyAuthSettings, settings.Variant()); err != nil {
		return err
	}
	f.logger.Debug("auth settings set", zap.String("authenticator", settings.Authenticator))
	return nil
}

// ApplyLDAP switches the core to the LDAP authenticator and initializes the
// version marker.
func (f *File) ApplyLDAP(settings models.LDAPSettings) error {
	err := f.SetAuthSettings(models.AuthSettings{
		Authenticator:  models.AuthenticatorLDAP,
		AuthProperties: settings.Properties(),
	})
	if err != nil {
		return err
	}
	_, err = f.EnsureVersion()
	return err
}

// Save writes the configuration back to its file, replacing it atomically
func (f *File) Save() error {
	// values read from the file may still hold raw backticks
	for _, sec := range f.cfg.Sections() {
		for _, key := range sec.Keys() {
			key.SetValue(qsettings.EscapeBackticks(key.Value()))
		}
	}

	var buf bytes.Buffer
	if _, err := f.cfg.WriteTo(&buf); err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := writeFileAtomic(f.path, buf.Bytes(), f.mode, f.logger); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", f.path, err)
	}

	f.logger.Info("config file written")
	return nil
}

// toUint converts a settings value the way QVariant::toUInt does, 0 on failure
func toUint(v any) uint64 {
	switch x := v.(type) {
	case string:
		n, err := strconv.ParseUint(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0
		}
		return n
	case int:
		if x < 0 {
			return 0
		}
		return uint64(x)
	case int64:
		if x < 0 {
			return 0
		}
		return uint64(x)
	case uint:
		return uint64(x)
	case uint64:
		return x
	case bool:
		if x {
			return 1
		}
	}
	return 0
}
