package routing

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultLengthThreshold is the text length at which a request escalates to
// the standard path.
const DefaultLengthThreshold = 200

// DefaultLexicon returns the built-in intent keywords implying the user
// wants sourced or current information, pricing, or download links.
func DefaultLexicon() []string {
	return []string{
		"price", "pricing", "cost", "buy", "purchase",
		"download", "link", "url", "website",
		"latest", "current", "today", "news", "release",
		"source", "sources", "cite", "citation", "reference",
		"datasheet", "schematic", "firmware", "driver",
	}
}

// Config holds the routing heuristics. The threshold and keyword list are
// policy data, not structural requirements; override them per deployment.
type Config struct {
	// LengthThreshold escalates requests at or above this many characters
	// (default: DefaultLengthThreshold)
	LengthThreshold int `yaml:"length_threshold"`

	// Lexicon is the intent keyword list (default: DefaultLexicon)
	Lexicon []string `yaml:"lexicon"`
}

// LoadConfig reads and parses a YAML routing config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("routing: read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("routing: parse config: %w", err)
	}

	if cfg.LengthThreshold < 0 {
		return Config{}, fmt.Errorf("routing: config: length_threshold must be non-negative")
	}

	return cfg, nil
}
