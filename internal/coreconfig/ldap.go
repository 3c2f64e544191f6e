package coreconfig

import (
	"github.com/spf13/viper"

	"github.com/shalteor/quassel-tools/internal/models"
)

// LDAPEnv lists the environment variables describing the LDAP backend, in
// the order missing ones are reported.
var LDAPEnv = []string{
	"LDAP_BASE_DN",
	"LDAP_BIND_DN",
	"LDAP_BIND_PASSWORD",
	"LDAP_FILTER",
	"LDAP_HOSTNAME",
	"LDAP_PORT",
	"LDAP_UID_ATTR",
}

// LDAPSettingsFromEnv reads the LDAP settings through v's environment
// binding. Empty variables count as missing; their names are returned and
// the settings must not be used unless the list is empty.
func LDAPSettingsFromEnv(v *viper.Viper) (models.LDAPSettings, []string) {
	values := make(map[string]string, len(LDAPEnv))
	var missing []string

	for _, name := range LDAPEnv {
		_ = v.BindEnv(name, name)
		value := v.GetString(name)
		if value == "" {
			missing = append(missing, name)
			continue
		}
		values[name] = value
	}

	return models.LDAPSettings{
		BaseDN:       values["LDAP_BASE_DN"],
		BindDN:       values["LDAP_BIND_DN"],
		BindPassword: values["LDAP_BIND_PASSWORD"],
		Filter:       values["LDAP_FILTER"],
		Hostname:     values["LDAP_HOSTNAME"],
		Port:         values["LDAP_PORT"],
		UidAttribute: values["LDAP_UID_ATTR"],
	}, missing
}
