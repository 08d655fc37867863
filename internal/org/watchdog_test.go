package org

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWatchdogEmptyPromptIsZero(t *testing.T) {
	watchdog := NewContextWatchdog(1000, nil)
	assert.Equal(t, 0.0, watchdog.Check(""))
}

func TestWatchdogUtilizationScalesWithPrompt(t *testing.T) {
	watchdog := NewContextWatchdog(1000, nil)

	small := watchdog.Check("a short prompt")
	large := watchdog.Check(strings.Repeat("the quick brown fox jumps over the lazy dog ", 200))

	assert.Greater(t, small, 0.0)
	assert.Greater(t, large, small)
}

func TestWatchdogDefaultsWindowSize(t *testing.T) {
	watchdog := NewContextWatchdog(0, nil)
	assert.Equal(t, defaultContextWindow, watchdog.windowSize)

	negative := NewContextWatchdog(-5, nil)
	assert.Equal(t, defaultContextWindow, negative.windowSize)
}
