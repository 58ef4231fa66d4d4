package storage

import (
	"fmt"

	"github.com/valter-silva-au/knc/pkg/models"
	"gopkg.in/yaml.v3"
)

// SettingsKey is the storage key holding operator-level settings.
const SettingsKey = "kn_global_settings"

// SettingsStore reads and writes the operator's GlobalSettings.
type SettingsStore interface {
	Settings() (models.GlobalSettings, error)
	Save(settings models.GlobalSettings) error
}

type kvSettingsStore struct {
	kv KVStore
}

// NewSettingsStore creates a SettingsStore persisting YAML under SettingsKey.
func NewSettingsStore(kv KVStore) SettingsStore {
	return &kvSettingsStore{kv: kv}
}

// Settings returns the stored settings, or zero settings when none were saved.
func (s *kvSettingsStore) Settings() (models.GlobalSettings, error) {
	var settings models.GlobalSettings
	raw, ok, err := s.kv.Get(SettingsKey)
	if err != nil {
		return settings, fmt.Errorf("reading settings: %w", err)
	}
	if !ok {
		return settings, nil
	}
	if err := yaml.Unmarshal([]byte(raw), &settings); err != nil {
		return settings, fmt.Errorf("parsing settings: %w", err)
	}
	return settings, nil
}

func (s *kvSettingsStore) Save(settings models.GlobalSettings) error {
	if settings.ProbeTimeoutSeconds < 0 {
		return fmt.Errorf("probe timeout must be non-negative, got %d", settings.ProbeTimeoutSeconds)
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshalling settings: %w", err)
	}
	if err := s.kv.Set(SettingsKey, string(data)); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	return nil
}
