package policy

// PolicyConfig is the parsed cdoc-policy.yaml.
type PolicyConfig struct {
	Version     int                       `yaml:"version"`
	Categories  map[string]CategoryConfig `yaml:"categories"`
	Rules       map[string]RuleConfig     `yaml:"rules"`
	Weights     WeightsConfig             `yaml:"weights"`
	Enforcement EnforcementConfig         `yaml:"enforcement"`
}

// CategoryConfig toggles a whole category and sets its weight in the
// overall score.
type CategoryConfig struct {
	Enabled *bool   `yaml:"enabled,omitempty"`
	Weight  float64 `yaml:"weight,omitempty"`
}

type RuleConfig struct {
	Enabled  *bool              `yaml:"enabled,omitempty"`
	Severity string             `yaml:"severity,omitempty"`
	Params   map[string]float64 `yaml:"params,omitempty"`
}

// WeightsConfig overrides the severity weight table.
type WeightsConfig struct {
	Severity map[string]float64 `yaml:"severity,omitempty"`
}

type EnforcementConfig struct {
	FailOnSeverity string `yaml:"fail_on_severity,omitempty"`
}
