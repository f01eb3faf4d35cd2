// Package parser turns CSV access-log rows into metric names and records.
package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/tphakala/logwatch/internal/metrics"
)

// Header field names.
const (
	FieldRemoteHost = "remotehost"
	FieldRFC931     = "rfc931"
	FieldAuthUser   = "authuser"
	FieldDate       = "date"
	FieldRequest    = "request"
	FieldStatus     = "status"
	FieldBytes      = "bytes"
)

// maxUnixSeconds is 9999-12-31T23:59:59Z.
const maxUnixSeconds = 253402300799

// maxCachedRequests bounds the request memo. Query strings make the set of
// distinct requests unbounded, so the memo is flushed when it fills.
const maxCachedRequests = 4096

var (
	// ErrMalformedLine is returned for rows that cannot be turned into a record.
	ErrMalformedLine = errors.New("malformed log line")
	// ErrInvalidTimestamp is returned for dates that are not epoch seconds in range.
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	// ErrInvalidHeader is returned when the header lacks a required field.
	ErrInvalidHeader = errors.New("invalid log header")
)

// DefaultFields is the header of the access logs this tool reads.
func DefaultFields() []string {
	return []string{FieldRemoteHost, FieldRFC931, FieldAuthUser, FieldDate, FieldRequest, FieldStatus, FieldBytes}
}

var requiredFields = []string{FieldRemoteHost, FieldDate, FieldRequest, FieldStatus}

// Request is the decomposed request column.
type Request struct {
	Verb     string
	Endpoint string
	Section  string
	Version  string
}

// Parser maps rows laid out per a header to records. It is not safe for
// concurrent use by multiple goroutines.
type Parser struct {
	fields   []string
	index    map[string]int
	requests *cache.Cache
}

// NewParser creates a parser for rows with the given header fields.
func NewParser(fields []string) (*Parser, error) {
	index := make(map[string]int, len(fields))
	for i, f := range fields {
		index[strings.TrimSpace(f)] = i
	}
	for _, f := range requiredFields {
		if _, ok := index[f]; !ok {
			return nil, fmt.Errorf("%w: missing field %q", ErrInvalidHeader, f)
		}
	}
	return &Parser{
		fields:   append([]string(nil), fields...),
		index:    index,
		// no expiry and no janitor goroutine; size is bounded in ParseRequest
		requests: cache.New(cache.NoExpiration, 0),
	}, nil
}

// Fields returns the header the parser was built with.
func (p *Parser) Fields() []string {
	return append([]string(nil), p.fields...)
}

// ParseLogLine returns the metric name and record for one row. The row must
// have exactly one value per header field.
func (p *Parser) ParseLogLine(row []string) (string, metrics.Record, error) {
	if len(row) != len(p.fields) {
		return "", metrics.Record{}, fmt.Errorf("%w: expected %d fields, got %d", ErrMalformedLine, len(p.fields), len(row))
	}

	req, err := p.ParseRequest(p.value(row, FieldRequest))
	if err != nil {
		return "", metrics.Record{}, err
	}

	status := p.value(row, FieldStatus)
	if !validStatus(status) {
		return "", metrics.Record{}, fmt.Errorf("%w: bad status %q", ErrMalformedLine, status)
	}

	ts, err := ParseTimestamp(p.value(row, FieldDate))
	if err != nil {
		return "", metrics.Record{}, err
	}

	rec := metrics.Record{
		RemoteHost: p.value(row, FieldRemoteHost),
		Section:    req.Section,
		Endpoint:   req.Endpoint,
		Verb:       req.Verb,
		Status:     status,
		Timestamp:  ts,
	}
	return metrics.MetricName(req.Section, status), rec, nil
}

func (p *Parser) value(row []string, field string) string {
	return strings.TrimSpace(row[p.index[field]])
}

// ParseRequest splits a "VERB /path HTTP/x" request line. The section is
// the first path segment with its leading slash, e.g. "/api" for
// "/api/user". Results are memoised since logs repeat the same requests.
func (p *Parser) ParseRequest(request string) (Request, error) {
	if cached, ok := p.requests.Get(request); ok {
		if req, ok := cached.(Request); ok {
			return req, nil
		}
	}

	req, err := parseRequest(request)
	if err != nil {
		return Request{}, err
	}
	if p.requests.ItemCount() >= maxCachedRequests {
		p.requests.Flush()
	}
	p.requests.Set(request, req, cache.NoExpiration)
	return req, nil
}

func parseRequest(request string) (Request, error) {
	parts := strings.Split(request, " ")
	if len(parts) != 3 {
		return Request{}, fmt.Errorf("%w: request %q is not \"VERB /path VERSION\"", ErrMalformedLine, request)
	}
	verb, endpoint, version := parts[0], parts[1], parts[2]
	if verb == "" || version == "" || !strings.HasPrefix(endpoint, "/") {
		return Request{}, fmt.Errorf("%w: request %q is not \"VERB /path VERSION\"", ErrMalformedLine, request)
	}

	path, _, _ := strings.Cut(endpoint, "?")
	first, _, _ := strings.Cut(path[1:], "/")
	return Request{
		Verb:     verb,
		Endpoint: endpoint,
		Section:  "/" + first,
		Version:  version,
	}, nil
}

func validStatus(status string) bool {
	if len(status) != 3 {
		return false
	}
	code, err := strconv.Atoi(status)
	return err == nil && code >= 100 && code <= 599
}

// ParseTimestamp decodes integer epoch seconds. Values that are not integers
// or fall outside years 1970 to 9999 are rejected with ErrInvalidTimestamp.
func ParseTimestamp(raw string) (time.Time, error) {
	sec, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, raw)
	}
	if sec < 0 || sec > maxUnixSeconds {
		return time.Time{}, fmt.Errorf("%w: %d out of range", ErrInvalidTimestamp, sec)
	}
	return time.Unix(sec, 0).UTC(), nil
}
