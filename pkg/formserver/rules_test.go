package formserver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRules_Check(t *testing.T) {
	rules := &Rules{
		Required: []string{"name", "email"},
		Allowed:  []string{"name", "email", "comment"},
	}

	require.NoError(t, rules.Check(map[string]string{"name": "a", "email": "b"}))
	require.NoError(t, rules.Check(map[string]string{"name": "a", "email": "b", "comment": ""}))

	err := rules.Check(map[string]string{"name": "a", "zeta": "z", "alpha": "x"})
	var ruleErr *RuleError
	require.True(t, errors.As(err, &ruleErr))
	assert.Equal(t, []string{"email"}, ruleErr.Missing)
	assert.Equal(t, []string{"alpha", "zeta"}, ruleErr.Disallowed)
	assert.Equal(t, "missing required keys: email; keys not allowed: alpha, zeta", err.Error())
}

func TestRules_EmptyAllowedPermitsAnyKey(t *testing.T) {
	rules := &Rules{Required: []string{"token"}}
	require.NoError(t, rules.Check(map[string]string{"token": "t", "extra": "x"}))
}

func TestRules_NilAcceptsEverything(t *testing.T) {
	var rules *Rules
	require.NoError(t, rules.Check(map[string]string{"anything": "goes"}))
	require.NoError(t, rules.Check(map[string]string{}))
	require.NoError(t, rules.Validate())
}

func TestRules_Validate(t *testing.T) {
	require.NoError(t, (&Rules{Required: []string{"a"}}).Validate())
	require.NoError(t, (&Rules{Required: []string{"a"}, Allowed: []string{"a", "b"}}).Validate())
	require.Error(t, (&Rules{Required: []string{"c"}, Allowed: []string{"a", "b"}}).Validate())
}
