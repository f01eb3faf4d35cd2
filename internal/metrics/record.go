// Package metrics keeps the registry of counter series built from access-log
// records and answers windowed aggregate queries over it.
package metrics

import "time"

// Label keys captured from each record.
const (
	LabelRemoteHost = "remotehost"
	LabelSection    = "section"
	LabelEndpoint   = "endpoint"
	LabelVerb       = "http_verb"
	LabelStatus     = "status"
)

// Record is one parsed access-log entry. Timestamp must already be decoded;
// records whose timestamp could not be decoded never reach the store.
type Record struct {
	RemoteHost string
	Section    string
	Endpoint   string
	Verb       string
	Status     string
	Timestamp  time.Time
}

// Labels returns the descriptive attributes stored on the series.
func (r Record) Labels() map[string]string {
	return map[string]string{
		LabelRemoteHost: r.RemoteHost,
		LabelSection:    r.Section,
		LabelEndpoint:   r.Endpoint,
		LabelVerb:       r.Verb,
		LabelStatus:     r.Status,
	}
}

// MetricName builds the conventional "{section}.{status}" series name.
func MetricName(section, status string) string {
	return section + "." + status
}
