package rules

import (
	"fmt"
	"sync"
)

// DefaultRuleRegistry is a simple, ordered, in-memory registry.
// Rules are evaluated in registration order.
// Register panics on duplicate rule IDs to catch wiring mistakes at startup.
type DefaultRuleRegistry struct {
	mu      sync.RWMutex
	rules   []Rule
	index   map[string]int
	retired map[string]Rule
}

// NewDefaultRuleRegistry returns an empty registry ready for rule registration.
func NewDefaultRuleRegistry() *DefaultRuleRegistry {
	return &DefaultRuleRegistry{
		index:   make(map[string]int),
		retired: make(map[string]Rule),
	}
}

// NewRegistryFrom registers every rule in order.
func NewRegistryFrom(rules ...[]Rule) *DefaultRuleRegistry {
	reg := NewDefaultRuleRegistry()
	for _, pack := range rules {
		for _, r := range pack {
			reg.Register(r)
		}
	}
	return reg
}

// Register adds rule to the registry. Panics if the same ID is registered
// twice, including an ID that has been retired.
func (r *DefaultRuleRegistry) Register(rule Rule) {
	if err := rule.Validate(); err != nil {
		panic(fmt.Sprintf("invalid rule: %v", err))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.index[rule.ID]; exists {
		panic(fmt.Sprintf("duplicate rule ID: %q", rule.ID))
	}
	if _, exists := r.retired[rule.ID]; exists {
		panic(fmt.Sprintf("rule ID %q was retired and cannot be reused", rule.ID))
	}
	r.index[rule.ID] = len(r.rules)
	r.rules = append(r.rules, rule)
}

// All returns all active rules in registration order.
func (r *DefaultRuleRegistry) All() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Lookup returns the rule with id, active or retired.
func (r *DefaultRuleRegistry) Lookup(id string) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i, ok := r.index[id]; ok {
		return r.rules[i], true
	}
	rule, ok := r.retired[id]
	return rule, ok
}

// Retire moves id out of the active set. Unknown ids are ignored.
func (r *DefaultRuleRegistry) Retire(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[id]
	if !ok {
		return
	}
	r.retired[id] = r.rules[i]
	r.rules = append(r.rules[:i:i], r.rules[i+1:]...)
	delete(r.index, id)
	for j := i; j < len(r.rules); j++ {
		r.index[r.rules[j].ID] = j
	}
}

// Known reports whether id is active or retired.
func (r *DefaultRuleRegistry) Known(id string) bool {
	_, ok := r.Lookup(id)
	return ok
}

// IDs returns the ids of all active rules in registration order.
func (r *DefaultRuleRegistry) IDs() []string {
	rules := r.All()
	ids := make([]string, len(rules))
	for i, rule := range rules {
		ids[i] = rule.ID
	}
	return ids
}
