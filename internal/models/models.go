package models

// HashVersion identifies the scheme that produced a stored password hash
type HashVersion int

const (
	HashSha1     HashVersion = 0 // unsalted sha1 hex digest, pre-0.13 cores
	HashSha2_512 HashVersion = 1 // salted sha512, "hash:salt"
	HashLatest               = HashSha2_512
)

// Authenticator tags naming the backend that validates a user
const (
	AuthenticatorDatabase = "Database"
	AuthenticatorLDAP     = "LDAP"
)

// User represents a row of the quasseluser table
type User struct {
	ID            int64       `json:"id"`
	Username      string      `json:"username"`
	PasswordHash  string      `json:"-"`
	HashVersion   HashVersion `json:"-"`
	Authenticator string      `json:"authenticator"`
}

// LDAPSettings holds the properties of the LDAP authenticator
type LDAPSettings struct {
	BaseDN       string
	BindDN       string
	BindPassword string
	Filter       string
	Hostname     string
	Port         string
	UidAttribute string
}

// Properties returns the settings keyed the way the core reads AuthProperties
func (s LDAPSettings) Properties() map[string]any {
	return map[string]any{
		"BaseDN":       s.BaseDN,
		"BindDN":       s.BindDN,
		"BindPassword": s.BindPassword,
		"Filter":       s.Filter,
		"Hostname":     s.Hostname,
		"Port":         s.Port,
		"UidAttribute": s.UidAttribute,
	}
}

// AuthSettings is the authenticator descriptor stored under Core/AuthSettings
type AuthSettings struct {
	Authenticator  string
	AuthProperties map[string]any
}

// Variant returns the descriptor as the nested map stored in the config file
func (a AuthSettings) Variant() map[string]any {
	props := a.AuthProperties
	if props == nil {
		props = map[string]any{}
	}
	return map[string]any{
		"Authenticator":  a.Authenticator,
		"AuthProperties": props,
	}
}
