package match

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Config holds the matcher's tunables. All fields are overridable from a YAML
// file so rebrands and new legal forms don't require a code change.
type Config struct {
	Threshold float64             `yaml:"threshold"`
	Suffixes  []string            `yaml:"suffixes"`
	Aliases   map[string][]string `yaml:"aliases"`
}

// DefaultConfig returns the built-in threshold, suffix table and alias groups.
func DefaultConfig() Config {
	return Config{
		Threshold: 0.85,
		// Multi-word forms come before their single-word tails so
		// "Pvt. Ltd." is stripped whole rather than as a bare "Ltd".
		Suffixes: []string{
			"pvt ltd", "private limited",
			"inc", "llc", "ltd", "corp", "corporation", "co", "company",
			"limited", "gmbh", "ag", "sa", "plc",
			"technologies", "technology", "solutions", "solution", "software",
			"group", "holdings", "holding",
		},
		Aliases: map[string][]string{
			"meta":     {"facebook", "meta platforms"},
			"alphabet": {"google", "alphabet inc"},
			"x":        {"twitter", "x corp"},
		},
	}
}

// LoadConfig reads matcher overrides from a YAML file. Fields left unset in
// the file keep their defaults; alias groups from the file are merged over
// the built-ins.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, eris.Wrapf(err, "match: read config %s", path)
	}

	var wrapper struct {
		Match struct {
			Threshold float64             `yaml:"threshold"`
			Suffixes  []string            `yaml:"suffixes"`
			Aliases   map[string][]string `yaml:"aliases"`
		} `yaml:"match"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return cfg, eris.Wrap(err, "match: parse config")
	}

	if wrapper.Match.Threshold > 0 {
		cfg.Threshold = wrapper.Match.Threshold
	}
	if len(wrapper.Match.Suffixes) > 0 {
		cfg.Suffixes = wrapper.Match.Suffixes
	}
	for canonical, aliases := range wrapper.Match.Aliases {
		cfg.Aliases[canonical] = aliases
	}

	return cfg, nil
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Threshold <= 0 {
		c.Threshold = def.Threshold
	}
	if len(c.Suffixes) == 0 {
		c.Suffixes = def.Suffixes
	}
	if c.Aliases == nil {
		c.Aliases = def.Aliases
	}
	return c
}
