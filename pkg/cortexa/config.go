package cortexa

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML representation of the admission configuration.
// Allowances are policy data, not structural requirements, so deployments
// override them without a rebuild.
type FileConfig struct {
	DefaultTier string                    `yaml:"default_tier"`
	FailClosed  bool                      `yaml:"fail_closed"`
	Tiers       map[string]FileTierPolicy `yaml:"tiers"`
}

// FileTierPolicy is the YAML representation of one tier's policy.
type FileTierPolicy struct {
	DailyMessages          int  `yaml:"daily_messages"`
	DailyImages            int  `yaml:"daily_images"`
	DailySearches          int  `yaml:"daily_searches"`
	AttachmentsAllowed     bool `yaml:"attachments_allowed"`
	AugmentedSearchAllowed bool `yaml:"augmented_search_allowed"`
}

// LoadConfig reads and parses a YAML admission config file. Environment
// variables in the format ${VAR} are expanded before parsing. The returned
// Config carries no logger or metrics; set those before use.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cortexa: read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var fc FileConfig
	if err := yaml.Unmarshal([]byte(expanded), &fc); err != nil {
		return Config{}, fmt.Errorf("cortexa: parse config: %w", err)
	}

	return fc.toConfig()
}

func (fc FileConfig) toConfig() (Config, error) {
	cfg := Config{
		DefaultTier: Tier(fc.DefaultTier),
		FailClosed:  fc.FailClosed,
	}

	if len(fc.Tiers) == 0 {
		cfg.Tiers = DefaultTierPolicies()
	} else {
		cfg.Tiers = make(TierPolicyTable, len(fc.Tiers))
		for name, p := range fc.Tiers {
			cfg.Tiers[Tier(name)] = TierPolicy{
				Name:                   Tier(name),
				DailyMessages:          p.DailyMessages,
				DailyImages:            p.DailyImages,
				DailySearches:          p.DailySearches,
				AttachmentsAllowed:     p.AttachmentsAllowed,
				AugmentedSearchAllowed: p.AugmentedSearchAllowed,
			}
		}
	}

	if err := cfg.Tiers.Validate(); err != nil {
		return Config{}, fmt.Errorf("cortexa: config: %w", err)
	}
	if cfg.DefaultTier != "" {
		if _, ok := cfg.Tiers[cfg.DefaultTier]; !ok {
			return Config{}, fmt.Errorf("cortexa: config: %w: default tier %q not defined", ErrInvalidTier, cfg.DefaultTier)
		}
	}

	return cfg, nil
}
