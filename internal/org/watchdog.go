package org

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"aegis/internal/logging"
)

// Default context window when the model does not declare one.
const defaultContextWindow = 100000

// Warning thresholds as fraction of the window.
const (
	warnThreshold     = 0.70
	criticalThreshold = 0.85
)

// ContextWatchdog estimates prompt utilization against the model's context
// window and feeds the context_fill PACE metric.
type ContextWatchdog struct {
	windowSize int
	logger     logging.Logger

	once    sync.Once
	encoder *tiktoken.Tiktoken
}

// NewContextWatchdog returns a watchdog for the given window size; zero or
// negative selects the default.
func NewContextWatchdog(windowSize int, logger logging.Logger) *ContextWatchdog {
	if windowSize <= 0 {
		windowSize = defaultContextWindow
	}
	return &ContextWatchdog{windowSize: windowSize, logger: logging.OrNop(logger)}
}

// Check tokenizes the assembled prompt and returns its utilization in [0, 1].
// Crossing the warn or critical threshold logs; the caller decides what to do
// with the number.
func (w *ContextWatchdog) Check(prompt string) float64 {
	tokens := w.countTokens(prompt)
	if tokens == 0 {
		return 0
	}
	utilization := float64(tokens) / float64(w.windowSize)

	switch {
	case utilization >= criticalThreshold:
		w.logger.Warn("context critical: %d / %d tokens (%.0f%%), responses may degrade",
			tokens, w.windowSize, utilization*100)
	case utilization >= warnThreshold:
		w.logger.Warn("context filling: %d / %d tokens (%.0f%%)",
			tokens, w.windowSize, utilization*100)
	}
	return utilization
}

func (w *ContextWatchdog) countTokens(prompt string) int {
	w.once.Do(func() {
		encoder, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			w.logger.Warn("tiktoken unavailable, using byte estimate: %v", err)
			return
		}
		w.encoder = encoder
	})
	if w.encoder == nil {
		// Rough fallback: ~4 bytes per token.
		return len(prompt) / 4
	}
	return len(w.encoder.Encode(prompt, nil, nil))
}
