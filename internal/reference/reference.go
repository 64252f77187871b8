// Package reference holds the static catalogues shown by the app: tariff
// plans, emergency contacts and emotion tags.
package reference

import (
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed data.yaml
var rawData []byte

var knownTariffs = map[string]bool{"free": true, "basic": true, "pro": true, "premium": true}

type TariffPlan struct {
	ID        string   `yaml:"id" json:"id"`
	Name      string   `yaml:"name" json:"name"`
	Price     string   `yaml:"price" json:"price"`
	Features  []string `yaml:"features" json:"features"`
	Exclusive []string `yaml:"exclusive" json:"exclusive"`
	Color     string   `yaml:"color" json:"color"`
}

type EmergencyContact struct {
	Name        string `yaml:"name" json:"name"`
	Phone       string `yaml:"phone" json:"phone"`
	Description string `yaml:"description" json:"description"`
}

type Data struct {
	Tariffs           []TariffPlan       `yaml:"tariffs"`
	EmergencyContacts []EmergencyContact `yaml:"emergency_contacts"`
	BreathingTip      string             `yaml:"breathing_tip"`
	Emotions          []string           `yaml:"emotions"`
}

// Load parses the embedded catalogue.
func Load() (*Data, error) {
	return Parse(rawData)
}

func Parse(raw []byte) (*Data, error) {
	var d Data
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("failed to parse reference data: %w", err)
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (d *Data) validate() error {
	var errs []error
	seen := make(map[string]bool)
	for _, t := range d.Tariffs {
		if !knownTariffs[t.ID] {
			errs = append(errs, fmt.Errorf("unknown tariff id %q", t.ID))
		}
		if seen[t.ID] {
			errs = append(errs, fmt.Errorf("duplicate tariff id %q", t.ID))
		}
		seen[t.ID] = true
	}
	if len(d.EmergencyContacts) == 0 {
		errs = append(errs, errors.New("no emergency contacts"))
	}
	for _, c := range d.EmergencyContacts {
		if c.Phone == "" {
			errs = append(errs, fmt.Errorf("emergency contact %q has no phone", c.Name))
		}
	}
	return errors.Join(errs...)
}
