package coreconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shalteor/quassel-tools/internal/models"
	"github.com/shalteor/quassel-tools/internal/qsettings"
)

var testLDAP = models.LDAPSettings{
	BaseDN:       "dc=example,dc=org",
	BindDN:       "cn=admin,dc=example,dc=org",
	BindPassword: "s3cr3t;#",
	Filter:       "(objectClass=person)",
	Hostname:     "ldap://ldap.example.org",
	Port:         "389",
	UidAttribute: "uid",
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quasselcore.conf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func storageSettings(t *testing.T) (map[string]any, string) {
	t.Helper()
	settings := map[string]any{
		"Backend":              "SQLite",
		"ConnectionProperties": map[string]any{},
	}
	raw, err := qsettings.EncodeValue(settings)
	require.NoError(t, err)
	return settings, raw
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.conf"), zap.NewNop())
	require.ErrorIs(t, err, ErrConfigMissing)
}

func TestApplyLDAPAndSave(t *testing.T) {
	storage, raw := storageSettings(t)
	path := writeConfig(t, "[Config]\nVersion=0\n\n[Core]\nStorageSettings="+raw+"\n\n[General]\nfoo=bar\n")

	f, err := Open(path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, f.ApplyLDAP(testLDAP))
	require.NoError(t, f.Save())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Version=1")
	assert.Contains(t, string(data), "@Variant(")

	reloaded, err := Open(path, nil)
	require.NoError(t, err)

	auth, err := reloaded.Value(KeyAuthSettings)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"Authenticator":  "LDAP",
		"AuthProperties": testLDAP.Properties(),
	}, auth)
	assert.Equal(t, uint64(1), reloaded.Version())

	got, err := reloaded.Value(KeyStorageSettings)
	require.NoError(t, err)
	assert.Equal(t, storage, got)

	foo, err := reloaded.Value("foo")
	require.NoError(t, err)
	assert.Equal(t, "bar", foo)
}

func TestSaveKeepsBackticksReadable(t *testing.T) {
	path := writeConfig(t, "[General]\nfoo=\"a`b,c\"\nbar=x`1\n")

	f, err := Open(path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, f.ApplyLDAP(testLDAP))
	require.NoError(t, f.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "`")
	assert.NotContains(t, string(data), `"""`)

	raw := map[string]string{}
	for _, line := range strings.Split(string(data), "\n") {
		if key, value, ok := strings.Cut(line, "="); ok {
			raw[key] = value
		}
	}
	require.Contains(t, raw, "foo")
	require.Contains(t, raw, "bar")

	foo, err := qsettings.DecodeValue(raw["foo"])
	require.NoError(t, err)
	assert.Equal(t, "a`b,c", foo)

	bar, err := qsettings.DecodeValue(raw["bar"])
	require.NoError(t, err)
	assert.Equal(t, "x`1", bar)
}

func TestEnsureVersion(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantChanged bool
		wantVersion uint64
	}{
		{"unset", "[Core]\n", true, 1},
		{"zero", "[Config]\nVersion=0\n", true, 1},
		{"not a number", "[Config]\nVersion=abc\n", true, 1},
		{"kept", "[Config]\nVersion=5\n", false, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Open(writeConfig(t, tt.content), zap.NewNop())
			require.NoError(t, err)

			changed, err := f.EnsureVersion()
			require.NoError(t, err)
			assert.Equal(t, tt.wantChanged, changed)
			assert.Equal(t, tt.wantVersion, f.Version())
		})
	}
}

func TestUnsavedChangesLeaveFileAlone(t *testing.T) {
	content := "[Config]\nVersion=0\n"
	path := writeConfig(t, content)

	f, err := Open(path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, f.ApplyLDAP(testLDAP))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestDump(t *testing.T) {
	storage, raw := storageSettings(t)
	auth, err := qsettings.EncodeValue(models.AuthSettings{
		Authenticator:  models.AuthenticatorDatabase,
		AuthProperties: map[string]any{},
	}.Variant())
	require.NoError(t, err)

	path := writeConfig(t, "[Config]\nVersion=1\n\n[Core]\nAuthSettings="+auth+"\nStorageSettings="+raw+"\n")
	f, err := Open(path, zap.NewNop())
	require.NoError(t, err)

	dump, err := f.Dump()
	require.NoError(t, err)
	assert.Equal(t, path, dump.File)
	assert.Equal(t, uint64(1), dump.ConfigVersion)
	assert.Equal(t, "Database", dump.AuthSettings["Authenticator"])
	assert.Equal(t, storage, dump.StorageSettings)
}

func TestDumpNonMapSettings(t *testing.T) {
	path := writeConfig(t, "[Core]\nStorageSettings=plain\n")
	f, err := Open(path, zap.NewNop())
	require.NoError(t, err)

	dump, err := f.Dump()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), dump.ConfigVersion)
	assert.Empty(t, dump.AuthSettings)
	assert.NotNil(t, dump.AuthSettings)
	assert.Empty(t, dump.StorageSettings)
}

func TestLDAPSettingsFromEnv(t *testing.T) {
	t.Setenv("LDAP_BASE_DN", testLDAP.BaseDN)
	t.Setenv("LDAP_BIND_DN", testLDAP.BindDN)
	t.Setenv("LDAP_BIND_PASSWORD", testLDAP.BindPassword)
	t.Setenv("LDAP_FILTER", testLDAP.Filter)
	t.Setenv("LDAP_HOSTNAME", testLDAP.Hostname)
	t.Setenv("LDAP_PORT", testLDAP.Port)
	t.Setenv("LDAP_UID_ATTR", testLDAP.UidAttribute)

	settings, missing := LDAPSettingsFromEnv(viper.New())
	assert.Empty(t, missing)
	assert.Equal(t, testLDAP, settings)
}

func TestLDAPSettingsFromEnvMissing(t *testing.T) {
	for _, name := range LDAPEnv {
		t.Setenv(name, "x")
	}
	t.Setenv("LDAP_UID_ATTR", "")
	t.Setenv("LDAP_BASE_DN", "")

	_, missing := LDAPSettingsFromEnv(viper.New())
	assert.Equal(t, []string{"LDAP_BASE_DN", "LDAP_UID_ATTR"}, missing)
}
