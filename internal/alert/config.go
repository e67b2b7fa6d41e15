package alert

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Event types an alert config can subscribe to.
const (
	// EventProviderFailure fires when an identity query failed during a
	// resolution and was counted as not granted.
	EventProviderFailure = "provider_failure"
	// EventReloadFailed fires when a changed facts file could not be loaded.
	EventReloadFailed = "reload_failed"
	// EventDeviceGrant fires when a non-system caller resolves to DEVICE.
	EventDeviceGrant = "device_grant"
)

// AlertConfig defines a webhook alert destination.
type AlertConfig struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"`
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// AlertEvent is the payload sent to webhook endpoints.
type AlertEvent struct {
	Timestamp string   `json:"timestamp"`
	RequestID string   `json:"request_id,omitempty"`
	Type      string   `json:"type"`
	CallerUID int      `json:"caller_uid"`
	Package   string   `json:"package,omitempty"`
	Level     string   `json:"level,omitempty"`
	Rule      string   `json:"rule,omitempty"`
	Failed    []string `json:"failed,omitempty"`
	Reason    string   `json:"reason,omitempty"`
	FactsHash string   `json:"facts_hash,omitempty"`
}

type file struct {
	Alerts []AlertConfig `yaml:"alerts"`
}

// LoadConfigs reads webhook destinations from the "alerts" list of a YAML
// file. Empty path yields no destinations.
func LoadConfigs(path string) ([]AlertConfig, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read alerts file: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse alerts file: %w", err)
	}
	for i, c := range f.Alerts {
		if c.URL == "" {
			return nil, fmt.Errorf("alerts[%d]: url is required", i)
		}
	}
	return f.Alerts, nil
}
