package parser

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// TestMain also guards against the request memo starting a janitor goroutine.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func wellFormedRow() []string {
	return []string{"10.0.0.3", "-", "apache", "1549574330", "POST /api/user HTTP/1.0", "200", "1234"}
}

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	p, err := NewParser(DefaultFields())
	require.NoError(t, err)
	return p
}

func TestNewParser_RequiresFields(t *testing.T) {
	t.Parallel()

	_, err := NewParser([]string{"remotehost", "date", "status"})
	require.ErrorIs(t, err, ErrInvalidHeader)
	assert.Contains(t, err.Error(), "request")

	p, err := NewParser([]string{" status", "request ", "date", "remotehost"})
	require.NoError(t, err, "surrounding whitespace in header names is ignored")
	assert.Len(t, p.Fields(), 4)
}

func TestParser_ParsesWellFormedLine(t *testing.T) {
	t.Parallel()

	p := newTestParser(t)
	name, rec, err := p.ParseLogLine(wellFormedRow())
	require.NoError(t, err)

	assert.Equal(t, "/api.200", name)
	assert.Equal(t, "10.0.0.3", rec.RemoteHost)
	assert.Equal(t, "/api", rec.Section)
	assert.Equal(t, "/api/user", rec.Endpoint)
	assert.Equal(t, "POST", rec.Verb)
	assert.Equal(t, "200", rec.Status)
	assert.Equal(t, time.Date(2019, 2, 7, 21, 18, 50, 0, time.UTC), rec.Timestamp)
}

func TestParser_RejectsMalformedLines(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		row  []string
	}{
		{
			name: "missing columns",
			row:  []string{"10.0.0.5", "-", "", "", "", ""},
		},
		{
			name: "empty request",
			row:  []string{"10.0.0.5", "-", "", "1549574330", "", "200", "12"},
		},
		{
			// A row shifted one column left, as seen in real logs.
			name: "shifted columns",
			row:  []string{"apache", "1549574191", "GET /report HTTP/1.0", "200", "1234", "", ""},
		},
		{
			name: "request without version",
			row:  []string{"10.0.0.5", "-", "apache", "1549574330", "GET /report", "200", "12"},
		},
		{
			name: "relative endpoint",
			row:  []string{"10.0.0.5", "-", "apache", "1549574330", "GET report HTTP/1.0", "200", "12"},
		},
		{
			name: "non numeric status",
			row:  []string{"10.0.0.5", "-", "apache", "1549574330", "GET /report HTTP/1.0", "OK", "12"},
		},
		{
			name: "status out of range",
			row:  []string{"10.0.0.5", "-", "apache", "1549574330", "GET /report HTTP/1.0", "999", "12"},
		},
	}

	p := newTestParser(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := p.ParseLogLine(tt.row)
			require.ErrorIs(t, err, ErrMalformedLine)
		})
	}
}

func TestParser_RejectsInvalidTimestamp(t *testing.T) {
	t.Parallel()

	p := newTestParser(t)
	for _, raw := range []string{"1111111111111111111", "33333333333333333", "yesterday", "-5"} {
		row := wellFormedRow()
		row[3] = raw
		_, _, err := p.ParseLogLine(row)
		require.ErrorIs(t, err, ErrInvalidTimestamp, raw)
	}
}

func TestParser_ParsesRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		request string
		want    Request
	}{
		{"POST /api/user HTTP/1.0", Request{Verb: "POST", Endpoint: "/api/user", Section: "/api", Version: "HTTP/1.0"}},
		{"GET /report HTTP/1.0", Request{Verb: "GET", Endpoint: "/report", Section: "/report", Version: "HTTP/1.0"}},
		{"GET / HTTP/1.1", Request{Verb: "GET", Endpoint: "/", Section: "/", Version: "HTTP/1.1"}},
		{"GET /help?q=a/b HTTP/1.1", Request{Verb: "GET", Endpoint: "/help?q=a/b", Section: "/help", Version: "HTTP/1.1"}},
	}

	p := newTestParser(t)
	for _, tt := range tests {
		t.Run(tt.request, func(t *testing.T) {
			got, err := p.ParseRequest(tt.request)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			cached, err := p.ParseRequest(tt.request)
			require.NoError(t, err)
			assert.Equal(t, got, cached)
		})
	}
}

func TestParser_FailedRequestsAreNotCached(t *testing.T) {
	t.Parallel()

	p := newTestParser(t)
	_, err := p.ParseRequest("garbage")
	require.ErrorIs(t, err, ErrMalformedLine)
	assert.Zero(t, p.requests.ItemCount())

	_, err = p.ParseRequest("GET /api HTTP/1.0")
	require.NoError(t, err)
	assert.Equal(t, 1, p.requests.ItemCount())
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	ts, err := ParseTimestamp("1549573860")
	require.NoError(t, err)
	assert.Equal(t, int64(1549573860), ts.Unix())
	assert.Equal(t, time.UTC, ts.Location())

	ts, err = ParseTimestamp("253402300799")
	require.NoError(t, err)
	assert.Equal(t, 9999, ts.Year())

	_, err = ParseTimestamp("253402300800")
	require.ErrorIs(t, err, ErrInvalidTimestamp)
}

func TestParser_RequestMemoIsBounded(t *testing.T) {
	t.Parallel()

	p := newTestParser(t)
	for i := range maxCachedRequests + 10 {
		_, err := p.ParseRequest(fmt.Sprintf("GET /search?q=%d HTTP/1.1", i))
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, p.requests.ItemCount(), maxCachedRequests)
	assert.Positive(t, p.requests.ItemCount())

	req, err := p.ParseRequest("GET /search?q=7 HTTP/1.1")
	require.NoError(t, err)
	assert.Equal(t, "/search", req.Section)
}
