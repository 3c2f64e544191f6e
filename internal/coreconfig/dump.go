package coreconfig

// Dump is the read-only view printed by --dump
type Dump struct {
	File            string         `json:"file" yaml:"file"`
	ConfigVersion   uint64         `json:"config_version" yaml:"config_version"`
	AuthSettings    map[string]any `json:"auth_settings" yaml:"auth_settings"`
	StorageSettings map[string]any `json:"storage_settings" yaml:"storage_settings"`
}

// Dump collects the version marker with the auth and storage settings.
// Settings that are unset or not a map render as empty objects.
func (f *File) Dump() (Dump, error) {
	auth, err := f.Value(KeyAuthSettings)
	if err != nil {
		return Dump{}, err
	}
	storage, err := f.Value(KeyStorageSettings)
	if err != nil {
		return Dump{}, err
	}

	return Dump{
		File:            f.path,
		ConfigVersion:   f.Version(),
		AuthSettings:    asObject(auth),
		StorageSettings: asObject(storage),
	}, nil
}

func asObject(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}
