package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/logwatch/internal/alerting"
	"github.com/tphakala/logwatch/internal/conf"
	"github.com/tphakala/logwatch/internal/datastore"
	"github.com/tphakala/logwatch/internal/datastore/repository"
	"github.com/tphakala/logwatch/internal/logger"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// base is 2019-02-07 21:11:00 UTC.
const base = 1549573860

func row(offset int, request string, status int) string {
	return fmt.Sprintf(`"10.0.0.1","-","apache",%d,"%s",%d,1234`, base+offset, request, status)
}

// accessLog crosses a 2 req/s threshold over a 2s window at +1s, recovers
// at +10s and is due for its first summary at +10s.
var accessLog = strings.Join([]string{
	`"remotehost","rfc931","authuser","date","request","status","bytes"`,
	row(0, "GET /api/user HTTP/1.0", 200),
	row(0, "GET /api/user HTTP/1.0", 200),
	row(0, "GET /api/user HTTP/1.0", 200),
	row(1, "GET /api/user HTTP/1.0", 200),
	row(1, "GET /api/user HTTP/1.0", 200),
	row(1, "GET /api/help HTTP/1.0", 200),
	row(10, "GET /report HTTP/1.0", 404),
}, "\n") + "\n"

var wantOutput = strings.Join([]string{
	"High traffic generated an alert - hits = 2.00, triggered at 2019-02-07 21:11:01",
	"Traffic is no longer elevated. Recovered at 2019-02-07 21:11:10 (hits = 0.50)",
	"Summary for 2019-02-07 21:11:00 to 2019-02-07 21:11:10",
	"Section with the most hits in the last 10 seconds: /api (3)",
	"Requests matching 404 in the last 10 seconds: 1 total",
}, "\n") + "\n"

// isolate keeps config discovery away from the developer's own files.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", t.TempDir())
	return dir
}

func execute(t *testing.T, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := RootCmd(strings.NewReader(stdin), &out, &errOut)
	cmd.SetArgs(args)
	err = cmd.ExecuteContext(t.Context())
	return out.String(), errOut.String(), err
}

func TestRun_StdinToStdout(t *testing.T) {
	isolate(t)

	stdout, stderr, err := execute(t, accessLog, "--threshold", "2", "--alert-window", "2s")
	require.NoError(t, err)
	assert.Equal(t, wantOutput, stdout)
	assert.Contains(t, stderr, "logwatch started")
	assert.Contains(t, stderr, "records_ingested=7")
}

func TestRun_FileInputAndOutputFile(t *testing.T) {
	dir := isolate(t)
	input := filepath.Join(dir, "access.log")
	output := filepath.Join(dir, "alerts.txt")
	require.NoError(t, os.WriteFile(input, []byte(accessLog), 0o600))

	stdout, _, err := execute(t, "", "--threshold=2", "--alert-window=2s", "--output", output, input)
	require.NoError(t, err)
	assert.Empty(t, stdout)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, wantOutput, string(data))
}

func TestRun_ConfigFileAndEnvironment(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "logwatch.yaml"), []byte(`
alert:
  threshold: 2
log:
  format: json
`), 0o600))
	t.Setenv("LOGWATCH_ALERT_WINDOW", "2s")

	stdout, stderr, err := execute(t, accessLog)
	require.NoError(t, err)
	assert.Equal(t, wantOutput, stdout)
	assert.Contains(t, stderr, `"msg":"logwatch started"`)
}

func TestRun_AlertHistoryIsJournaled(t *testing.T) {
	dir := isolate(t)
	dsn := filepath.Join(dir, "history.db")

	// the second run prunes on startup and must keep the 2019 entries
	for range 2 {
		_, _, err := execute(t, accessLog, "--threshold=2", "--alert-window=2s", "--history-db", dsn)
		require.NoError(t, err)
	}

	db, err := datastore.Open(conf.DriverSQLite, dsn, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	items, total, err := db.HistoryRepository().ListHistory(t.Context(), repository.AlertHistoryFilter{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(6), total)

	kinds := make([]string, 0, len(items))
	for _, item := range items {
		kinds = append(kinds, item.Kind)
	}
	assert.ElementsMatch(t, []string{
		alerting.KindTrafficElevated, alerting.KindTrafficElevated,
		alerting.KindTrafficRecovered, alerting.KindTrafficRecovered,
		alerting.KindTrafficSummary, alerting.KindTrafficSummary,
	}, kinds)
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr error
		wantMsg string
	}{
		{name: "invalid threshold", args: []string{"--threshold=-1"}, wantErr: conf.ErrInvalidSettings},
		{name: "fractional window", args: []string{"--alert-window=1500ms"}, wantErr: conf.ErrInvalidSettings},
		{name: "missing config file", args: []string{"--config", "nope.yaml"}, wantErr: conf.ErrConfigFile},
		{name: "missing input", args: []string{"nope.log"}, wantMsg: "failed to open input"},
		{name: "bad notify url", args: []string{"--notify-url", "carrierpigeon://coop"}, wantMsg: "carrierpigeon"},
		{name: "too many args", args: []string{"a.log", "b.log"}, wantMsg: "accepts at most 1 arg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			stdout, _, err := execute(t, accessLog, tt.args...)
			require.Error(t, err)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
			assert.Empty(t, stdout)
		})
	}
}

func TestConfigCmd(t *testing.T) {
	isolate(t)
	t.Setenv("LOGWATCH_MQTT_PASSWORD", "hunter2")

	stdout, _, err := execute(t, "", "config", "--threshold", "3", "--interesting", "500,503")
	require.NoError(t, err)

	assert.Contains(t, stdout, "threshold: 3")
	assert.Contains(t, stdout, "- \"503\"")
	assert.Contains(t, stdout, redacted)
	assert.NotContains(t, stdout, "hunter2")

	// the printed settings load back unchanged
	path := filepath.Join(t.TempDir(), "logwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.ReplaceAll(stdout, redacted, "")), 0o600))
	s, err := conf.Load(conf.NewViper(), path)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, s.Alert.Threshold, 1e-9)
	assert.Equal(t, []string{"500", "503"}, s.Summary.Interesting)
}

func TestVersionCmd(t *testing.T) {
	isolate(t)

	stdout, _, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "logwatch "+Version+"\n", stdout)
}
