// Package rulepacks assembles the built-in rule catalogue.
//
// Convention: every rule pack lives in internal/rulepacks/<category>/pack.go
// and exposes a single New() func returning []rules.Rule.
package rulepacks

import (
	"github.com/ksj/cloud-doctor/internal/rulepacks/account"
	"github.com/ksj/cloud-doctor/internal/rulepacks/deployment"
	"github.com/ksj/cloud-doctor/internal/rulepacks/encryption"
	"github.com/ksj/cloud-doctor/internal/rulepacks/logging"
	"github.com/ksj/cloud-doctor/internal/rulepacks/monitoring"
	"github.com/ksj/cloud-doctor/internal/rulepacks/network"
	"github.com/ksj/cloud-doctor/internal/rulepacks/storage"
	"github.com/ksj/cloud-doctor/internal/rules"
)

// All returns every built-in rule in checklist order.
func All() []rules.Rule {
	var all []rules.Rule
	for _, pack := range [][]rules.Rule{
		account.New(),
		storage.New(),
		network.New(),
		logging.New(),
		encryption.New(),
		monitoring.New(),
		deployment.New(),
	} {
		all = append(all, pack...)
	}
	return all
}

// NewRegistry returns a registry loaded with the built-in catalogue.
func NewRegistry() *rules.DefaultRuleRegistry {
	return rules.NewRegistryFrom(All())
}
