package policy

import (
	"strings"

	"github.com/ksj/cloud-doctor/internal/aggregate"
	"github.com/ksj/cloud-doctor/internal/models"
)

// Weights returns the scoring weights: defaults overlaid with the policy's
// severity and category weights.
func Weights(cfg *PolicyConfig) aggregate.Weights {
	w := aggregate.DefaultWeights()
	if cfg == nil {
		return w
	}
	override := aggregate.Weights{
		Severity: make(map[models.Severity]float64),
		Category: make(map[models.Category]float64),
	}
	for name, v := range cfg.Weights.Severity {
		override.Severity[models.Severity(strings.ToUpper(name))] = v
	}
	for name, cc := range cfg.Categories {
		if c, err := models.ParseCategory(name); err == nil {
			override.Category[c] = cc.Weight
		}
	}
	return w.Merge(override)
}
