// Package alerting provides the traffic alert engine and the fan-out of its
// transitions and summaries to notification sinks.
package alerting

// Event kinds published on the alert bus.
const (
	KindTrafficElevated  = "traffic.elevated"
	KindTrafficRecovered = "traffic.recovered"
	KindTrafficSummary   = "traffic.summary"
)

// Output line formats.
const (
	alertFormat        = "High traffic generated an alert - hits = %.2f, triggered at %s"
	recoveryFormat     = "Traffic is no longer elevated. Recovered at %s (hits = %.2f)"
	sectionHighest     = "Section with the most hits in the last %d seconds: %s (%d)"
	metricHighest      = "Metric with the most hits in the last %d seconds: %s (%d)"
	noTrafficFormat    = "No traffic recorded in the last %d seconds"
	interestingFormat  = "Requests matching %s in the last %d seconds: %d total"
	summaryHeader      = "Summary for %s to %s"
	noInterestingError = "Error: no interesting metrics configured for summary"
)

// TimestampLayout is the layout used for every timestamp printed by the engine.
const TimestampLayout = "2006-01-02 15:04:05"

// Template variables understood by the action dispatcher.
const (
	VarKind      = "{{kind}}"
	VarMessage   = "{{message}}"
	VarRate      = "{{rate}}"
	VarThreshold = "{{threshold}}"
	VarTime      = "{{time}}"
)
