package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/titanics/rxpse"
)

// yamlPattern is one pattern entry in a patterns YAML file. Exactly one of
// pattern or hex must be set; subset groups patterns into instances and
// defaults to 1.
type yamlPattern struct {
	Pattern string `yaml:"pattern,omitempty"`
	Hex     string `yaml:"hex,omitempty"`
	Subset  int    `yaml:"subset,omitempty"`
	NoCase  bool   `yaml:"nocase,omitempty"`
	Negated bool   `yaml:"negated,omitempty"`
}

// yamlPatternsFile is the top-level structure of a patterns YAML file.
type yamlPatternsFile struct {
	Patterns []yamlPattern `yaml:"patterns"`
}

// loadPatterns reads a patterns YAML file and registers every entry on the
// engine, creating instances on demand so that entry N of subset S lands in
// the S-th constructed instance.
func loadPatterns(engine *rxpse.Engine, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading patterns file: %w", err)
	}

	var file yamlPatternsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing patterns file: %w", err)
	}
	if len(file.Patterns) == 0 {
		return fmt.Errorf("patterns file %s contains no patterns", path)
	}

	var instances []*rxpse.Instance
	for i, p := range file.Patterns {
		raw, err := patternBytes(p)
		if err != nil {
			return fmt.Errorf("pattern %d: %w", i+1, err)
		}

		subset := p.Subset
		if subset <= 0 {
			subset = 1
		}
		for len(instances) < subset {
			instances = append(instances, engine.NewInstance(nil))
		}

		desc := rxpse.Descriptor{NoCase: p.NoCase, Negated: p.Negated}
		if err := instances[subset-1].AddPattern(raw, desc, displayName(p)); err != nil {
			return fmt.Errorf("pattern %d: %w", i+1, err)
		}
	}

	for _, in := range instances {
		if err := in.PrepPatterns(); err != nil {
			return err
		}
	}
	return nil
}

// displayName is the user context registered for a pattern; the scan
// command prints it for each match.
func displayName(p yamlPattern) string {
	if p.Pattern != "" {
		return p.Pattern
	}
	return "0x" + p.Hex
}

func patternBytes(p yamlPattern) ([]byte, error) {
	switch {
	case p.Pattern != "" && p.Hex != "":
		return nil, fmt.Errorf("pattern and hex are mutually exclusive")
	case p.Pattern != "":
		return []byte(p.Pattern), nil
	case p.Hex != "":
		raw, err := hex.DecodeString(p.Hex)
		if err != nil {
			return nil, fmt.Errorf("decoding hex: %w", err)
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("pattern or hex is required")
	}
}
