package formserver

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Rules constrains which keys a decoded form may carry.
//
// Rules are usually loaded from a file:
//
//	rules, err := config.LoadFromFile[formserver.Rules]("rules.yaml")
type Rules struct {
	// Required keys must be present.
	Required []string `json:"required"`

	// Allowed, when non-empty, is the complete set of permitted keys.
	Allowed []string `json:"allowed"`
}

// RuleError reports the keys that broke a Rules check.
type RuleError struct {
	Missing    []string
	Disallowed []string
}

func (e *RuleError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required keys: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Disallowed) > 0 {
		parts = append(parts, "keys not allowed: "+strings.Join(e.Disallowed, ", "))
	}
	return strings.Join(parts, "; ")
}

// Check returns a *RuleError if form breaks the rules. A nil *Rules accepts
// every form.
func (r *Rules) Check(form map[string]string) error {
	if r == nil {
		return nil
	}

	ruleErr := &RuleError{}
	for _, key := range r.Required {
		if _, ok := form[key]; !ok {
			ruleErr.Missing = append(ruleErr.Missing, key)
		}
	}
	if len(r.Allowed) > 0 {
		for _, key := range sortedKeys(form) {
			if !slices.Contains(r.Allowed, key) {
				ruleErr.Disallowed = append(ruleErr.Disallowed, key)
			}
		}
	}

	if len(ruleErr.Missing) == 0 && len(ruleErr.Disallowed) == 0 {
		return nil
	}
	return ruleErr
}

// Validate reports rules that can never pass.
func (r *Rules) Validate() error {
	if r == nil || len(r.Allowed) == 0 {
		return nil
	}
	for _, key := range r.Required {
		if !slices.Contains(r.Allowed, key) {
			return fmt.Errorf("required key %q is not in allowed", key)
		}
	}
	return nil
}

func sortedKeys(form map[string]string) []string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
