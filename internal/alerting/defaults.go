package alerting

import (
	"errors"
	"fmt"
	"slices"
)

// Engine defaults.
const (
	DefaultThreshold            = 10.0
	DefaultWindowSeconds        = 120
	DefaultSummaryWindowSeconds = 10
)

// ErrInvalidConfig is returned for a threshold or window the engine cannot
// evaluate.
var ErrInvalidConfig = errors.New("invalid alert engine config")

// DefaultInterestingMetrics are the name fragments summarised when the
// caller names none.
func DefaultInterestingMetrics() []string {
	return []string{"404", "500"}
}

// EngineConfig holds the alert engine tunables.
type EngineConfig struct {
	// Threshold is the average events per second at or above which traffic
	// counts as elevated.
	Threshold float64
	// WindowSeconds is the span the average is computed over.
	WindowSeconds int
	// SummaryWindowSeconds is the span each summary covers.
	SummaryWindowSeconds int
	// InterestingMetrics are name fragments reported on in summaries.
	// Empty means summaries report a configuration error line.
	InterestingMetrics []string
}

// DefaultEngineConfig returns the engine defaults: 10 req/s over 120s,
// 10s summaries of 404 and 500 responses.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Threshold:            DefaultThreshold,
		WindowSeconds:        DefaultWindowSeconds,
		SummaryWindowSeconds: DefaultSummaryWindowSeconds,
		InterestingMetrics:   DefaultInterestingMetrics(),
	}
}

// Validate reports whether the config can drive an engine.
func (c EngineConfig) Validate() error {
	if c.Threshold <= 0 {
		return fmt.Errorf("%w: threshold must be positive, got %v", ErrInvalidConfig, c.Threshold)
	}
	if c.WindowSeconds < 1 {
		return fmt.Errorf("%w: alert window must be at least 1s, got %d", ErrInvalidConfig, c.WindowSeconds)
	}
	if c.SummaryWindowSeconds < 1 {
		return fmt.Errorf("%w: summary window must be at least 1s, got %d", ErrInvalidConfig, c.SummaryWindowSeconds)
	}
	return nil
}

func (c EngineConfig) clone() EngineConfig {
	c.InterestingMetrics = slices.Clone(c.InterestingMetrics)
	return c
}
