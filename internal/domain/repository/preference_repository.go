package repository

import "context"

// PreferenceRepository is a small key-value store for user settings.
type PreferenceRepository interface {
	// GetPreference returns the stored value for key.
	// Returns domain.ErrNotFound if the key was never set.
	GetPreference(ctx context.Context, key string) (string, error)

	// SetPreference stores value under key, replacing any previous value.
	SetPreference(ctx context.Context, key, value string) error

	// ListPreferences returns every stored preference.
	ListPreferences(ctx context.Context) (map[string]string, error)
}
