package org

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, expr string) TriggerExpr {
	t.Helper()
	parsed, err := ParseTrigger(expr)
	require.NoError(t, err)
	return parsed
}

func TestParseTriggerComparison(t *testing.T) {
	expr := mustParse(t, "consecutive_tool_failures >= 5")

	assert.True(t, expr.Eval(Metrics{ConsecutiveToolFailures: 5}))
	assert.True(t, expr.Eval(Metrics{ConsecutiveToolFailures: 9}))
	assert.False(t, expr.Eval(Metrics{ConsecutiveToolFailures: 4}))
}

func TestParseTriggerOperators(t *testing.T) {
	cases := []struct {
		expr string
		m    Metrics
		want bool
	}{
		{"turns_without_progress > 3", Metrics{TurnsWithoutProgress: 4}, true},
		{"turns_without_progress > 3", Metrics{TurnsWithoutProgress: 3}, false},
		{"turns_without_progress < 3", Metrics{TurnsWithoutProgress: 2}, true},
		{"turns_without_progress <= 3", Metrics{TurnsWithoutProgress: 3}, true},
		{"turns_without_progress == 3", Metrics{TurnsWithoutProgress: 3}, true},
		{"turns_without_progress == 3", Metrics{TurnsWithoutProgress: 2}, false},
		{"context_fill >= 0.9", Metrics{ContextFill: 0.95}, true},
		{"context_fill >= 0.9", Metrics{ContextFill: 0.5}, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, mustParse(t, tc.expr).Eval(tc.m), tc.expr)
	}
}

func TestParseTriggerOrChain(t *testing.T) {
	expr := mustParse(t, "consecutive_tool_failures >= 5 or context_fill > 0.9 OR total_tool_failures >= 20")

	assert.True(t, expr.Eval(Metrics{ConsecutiveToolFailures: 5}))
	assert.True(t, expr.Eval(Metrics{ContextFill: 0.95}))
	assert.True(t, expr.Eval(Metrics{TotalToolFailures: 20}))
	assert.False(t, expr.Eval(Metrics{ConsecutiveToolFailures: 4, ContextFill: 0.5, TotalToolFailures: 19}))
}

func TestParseTriggerMultiplication(t *testing.T) {
	expr := mustParse(t, "turns_without_progress > max * 1.5")

	assert.True(t, expr.Eval(Metrics{TurnsWithoutProgress: 16, MaxTurns: 10}))
	assert.False(t, expr.Eval(Metrics{TurnsWithoutProgress: 15, MaxTurns: 10}),
		"the boundary is strict")

	// max_turns is an alias for max.
	alias := mustParse(t, "turns_without_progress > max_turns * 1.5")
	assert.True(t, alias.Eval(Metrics{TurnsWithoutProgress: 16, MaxTurns: 10}))
}

func TestParseTriggerBareFlag(t *testing.T) {
	expr := mustParse(t, "unrecoverable_error")

	assert.True(t, expr.Eval(Metrics{UnrecoverableError: true}))
	assert.False(t, expr.Eval(Metrics{}))

	// An unknown bare identifier parses but never fires.
	unknown := mustParse(t, "mystery_flag")
	assert.False(t, unknown.Eval(Metrics{UnrecoverableError: true}))
}

func TestParseTriggerIdentifiersAreCaseInsensitive(t *testing.T) {
	expr := mustParse(t, "Context_Fill > 0.5")
	assert.True(t, expr.Eval(Metrics{ContextFill: 0.6}))
}

func TestParseTriggerEmptyNeverFires(t *testing.T) {
	expr := mustParse(t, "   ")
	assert.False(t, expr.Eval(Metrics{
		ConsecutiveToolFailures: 100,
		TurnsWithoutProgress:    100,
		UnrecoverableError:      true,
	}))
}

func TestParseTriggerUnknownMetricComparisonIsFalse(t *testing.T) {
	expr := mustParse(t, "bogus_metric > 1")
	assert.False(t, expr.Eval(Metrics{ConsecutiveToolFailures: 100}))
}

func TestParseTriggerErrors(t *testing.T) {
	_, err := ParseTrigger("consecutive_tool_failures = 5")
	require.Error(t, err, "single '=' is rejected")
	assert.Contains(t, err.Error(), "==")

	_, err = ParseTrigger("consecutive_tool_failures ! 5")
	require.Error(t, err)

	_, err = ParseTrigger("max 5")
	require.Error(t, err, "a dangling token after a flag is an error")

	_, err = ParseTrigger("consecutive_tool_failures >=")
	require.Error(t, err)

	_, err = ParseTrigger("1.2.3 > 1")
	require.Error(t, err)
}

func TestReferences(t *testing.T) {
	assert.True(t, References("unrecoverable_error OR consecutive_tool_failures >= 8", "unrecoverable_error"))
	assert.True(t, References("Unrecoverable_Error", "unrecoverable_error"), "lookup is case-folded")
	assert.False(t, References("consecutive_tool_failures >= 8", "unrecoverable_error"))
	assert.False(t, References("!!!", "unrecoverable_error"), "a broken expression references nothing")
}
