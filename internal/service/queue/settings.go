package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/otaupdater/ota-download-manager/internal/domain"
	"github.com/otaupdater/ota-download-manager/internal/domain/repository"
	"github.com/otaupdater/ota-download-manager/internal/domain/service"
)

// Preference keys for the network settings
const (
	PrefWifiOnly       = "wifi_only"
	PrefMobileMaxBytes = "mobile_max_bytes"
)

// LoadNetworkSettings overlays stored preferences on defaults.
func LoadNetworkSettings(ctx context.Context, prefs repository.PreferenceRepository, defaults service.NetworkSettings) (service.NetworkSettings, error) {
	s := defaults

	v, err := prefs.GetPreference(ctx, PrefWifiOnly)
	switch {
	case err == nil:
		if s.WifiOnly, err = strconv.ParseBool(v); err != nil {
			return defaults, fmt.Errorf("invalid %s preference %q: %w", PrefWifiOnly, v, err)
		}
	case !errors.Is(err, domain.ErrNotFound):
		return defaults, err
	}

	v, err = prefs.GetPreference(ctx, PrefMobileMaxBytes)
	switch {
	case err == nil:
		if s.MobileMaxBytes, err = strconv.ParseInt(v, 10, 64); err != nil {
			return defaults, fmt.Errorf("invalid %s preference %q: %w", PrefMobileMaxBytes, v, err)
		}
	case !errors.Is(err, domain.ErrNotFound):
		return defaults, err
	}

	return s, nil
}

// SaveNetworkSettings stores s as preferences.
func SaveNetworkSettings(ctx context.Context, prefs repository.PreferenceRepository, s service.NetworkSettings) error {
	if s.MobileMaxBytes < 0 {
		return fmt.Errorf("%w: mobile_max_bytes must not be negative", domain.ErrInvalidInput)
	}
	if err := prefs.SetPreference(ctx, PrefWifiOnly, strconv.FormatBool(s.WifiOnly)); err != nil {
		return err
	}
	return prefs.SetPreference(ctx, PrefMobileMaxBytes, strconv.FormatInt(s.MobileMaxBytes, 10))
}
