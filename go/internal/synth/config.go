package synth

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config carries the cosmetic tuning knobs for the synthesizer: the bidder
// name pool and the per-title price-jump ceilings. This is the only place
// per-item tuning is allowed.
type Config struct {
	BidderNames        []string       `yaml:"bidder_names"`
	DefaultCeiling     int            `yaml:"default_ceiling"`
	MultiplierCeilings map[string]int `yaml:"multiplier_ceilings"`
}

// DefaultConfig returns the built-in tuning used when no config file is
// supplied: a ten-name masked pool and a jump ceiling of 3.
func DefaultConfig() Config {
	return Config{
		BidderNames: []string{
			"王*明", "林*慧", "陳*宏", "張*婷", "李*傑",
			"黃*琪", "吳*翰", "劉*芸", "蔡*倫", "楊*真",
		},
		DefaultCeiling:     3,
		MultiplierCeilings: map[string]int{},
	}
}

// LoadConfig reads a YAML tuning file and fills gaps with defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read synth config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse synth config: %w", err)
	}
	if len(cfg.BidderNames) == 0 {
		cfg.BidderNames = DefaultConfig().BidderNames
	}
	if cfg.DefaultCeiling <= 0 {
		cfg.DefaultCeiling = 3
	}
	if cfg.MultiplierCeilings == nil {
		cfg.MultiplierCeilings = map[string]int{}
	}
	return cfg, nil
}
