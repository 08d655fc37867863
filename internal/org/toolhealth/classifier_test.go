package toolhealth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyKinds(t *testing.T) {
	cases := []struct {
		message string
		want    string
	}{
		{"operation timed out after 30s", KindTimeout},
		{"context deadline exceeded", KindTimeout},
		{"bash: flurp: command not found", KindNotFound},
		{"open /etc/shadow: permission denied", KindPermission},
		{"HTTP 403 Forbidden", KindPermission},
		{"syntax error near unexpected token `)'", KindSyntax},
		{"dial tcp: connection refused", KindNetwork},
		{"could not resolve host example.org", KindNetwork},
		{"write /tmp/out: no space left on device", KindResource},
		{"ModuleNotFoundError: No module named requests", KindDependency},
		{"Traceback (most recent call last):", KindExecution},
		{"all files processed", ""},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.message), tc.message)
	}
}

func TestClassifyFirstPatternWins(t *testing.T) {
	// Mentions both a timeout and a generic error; timeout is tried first.
	assert.Equal(t, KindTimeout, Classify("error: request timed out"))
	// not_found outranks the generic execution bucket.
	assert.Equal(t, KindNotFound, Classify("failed: no such file or directory"))
}

func TestTrackerConsecutiveResetsOnSuccess(t *testing.T) {
	tracker := NewTracker()

	assert.Equal(t, KindTimeout, tracker.Record("browser_tool", "request timed out"))
	assert.Equal(t, KindTimeout, tracker.Record("browser_tool", "request timed out"))
	assert.Equal(t, 2, tracker.Consecutive("browser_tool"))

	assert.Equal(t, "", tracker.Record("browser_tool", "page loaded"))
	assert.Equal(t, 0, tracker.Consecutive("browser_tool"))
	assert.Equal(t, 2, tracker.Total(), "history survives the reset")
}

func TestTrackerMaxConsecutiveAcrossTools(t *testing.T) {
	tracker := NewTracker()
	tracker.Record("a_tool", "parse error")
	tracker.Record("b_tool", "parse error")
	tracker.Record("b_tool", "parse error")
	tracker.Record("b_tool", "parse error")

	assert.Equal(t, 3, tracker.MaxConsecutive())
}

func TestTrackerHistoryBoundedAndPreviewTruncated(t *testing.T) {
	tracker := NewTracker()
	long := strings.Repeat("x", previewLen+50) + " error"
	for i := 0; i < maxHistory+5; i++ {
		tracker.Record("noisy_tool", long)
	}

	assert.Equal(t, maxHistory, tracker.Total())
	assert.Equal(t, KindExecution, tracker.LastKind("noisy_tool"))
}

func TestTrackerLastKindPerTool(t *testing.T) {
	tracker := NewTracker()
	tracker.Record("a_tool", "request timed out")
	tracker.Record("b_tool", "permission denied")
	tracker.Record("a_tool", "parse error")

	assert.Equal(t, KindSyntax, tracker.LastKind("a_tool"))
	assert.Equal(t, KindPermission, tracker.LastKind("b_tool"))
	assert.Equal(t, "", tracker.LastKind("c_tool"))
}

func TestTrackerRecentFailures(t *testing.T) {
	tracker := NewTracker()
	assert.Equal(t, 0, tracker.RecentFailures(5))

	tracker.Record("a_tool", "parse error")
	tracker.Record("a_tool", "parse error")
	assert.Equal(t, 2, tracker.RecentFailures(5))

	for i := 0; i < 10; i++ {
		tracker.Record("a_tool", "parse error")
	}
	assert.Equal(t, 5, tracker.RecentFailures(5))
}
