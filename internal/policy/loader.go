package policy

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultPolicyFile is read from the working directory when no policy path
// is given.
const DefaultPolicyFile = "cdoc-policy.yaml"

func LoadPolicy(path string) (*PolicyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg PolicyConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse policy %s: %w", path, err)
	}

	if cfg.Version != 1 {
		return nil, errors.New("unsupported policy version")
	}

	if cfg.Categories == nil {
		cfg.Categories = make(map[string]CategoryConfig)
	}

	if cfg.Rules == nil {
		cfg.Rules = make(map[string]RuleConfig)
	}

	return &cfg, nil
}

// LoadOptional loads path, or DefaultPolicyFile when path is empty. A
// missing default file is not an error and yields a nil config; a missing
// explicit path is.
func LoadOptional(path string) (*PolicyConfig, error) {
	if path != "" {
		return LoadPolicy(path)
	}
	cfg, err := LoadPolicy(DefaultPolicyFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return cfg, err
}
