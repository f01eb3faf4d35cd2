package parser

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLog = `"remotehost","rfc931","authuser","date","request","status","bytes"
"10.0.0.2","-","apache",1549573860,"GET /api/user HTTP/1.0",200,1234
"10.0.0.4","-","apache",1549573860,"GET /api/user HTTP/1.0",200,1234
"10.0.0.5","-",
"10.0.0.1","-","apache",1549573861,"POST /report HTTP/1.0",404,1307
`

func readAll(t *testing.T, r *Reader) ([]Row, []error) {
	t.Helper()
	var rows []Row
	var errs []error
	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			return rows, errs
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rows = append(rows, row)
	}
}

func TestReader_ReadsRowsWithLineNumbers(t *testing.T) {
	t.Parallel()

	r, err := NewReader(strings.NewReader(sampleLog))
	require.NoError(t, err)
	assert.Equal(t, DefaultFields(), r.Parser().Fields())

	rows, errs := readAll(t, r)
	assert.Empty(t, errs)
	require.Len(t, rows, 4)
	assert.Equal(t, []int{2, 3, 4, 5}, []int{rows[0].Line, rows[1].Line, rows[2].Line, rows[3].Line})

	// The short row reads fine at the CSV layer and is rejected by the parser.
	_, _, err = r.Parser().ParseLogLine(rows[2].Fields)
	require.ErrorIs(t, err, ErrMalformedLine)

	name, rec, err := r.Parser().ParseLogLine(rows[3].Fields)
	require.NoError(t, err)
	assert.Equal(t, "/report.404", name)
	assert.Equal(t, "POST", rec.Verb)
}

func TestReader_CSVErrorsAreMalformedLines(t *testing.T) {
	t.Parallel()

	input := `"remotehost","rfc931","authuser","date","request","status","bytes"
"10.0.0.2","-","apache",1549573860,"GET /api/user HTTP/1.0",200,1234
10.0.0.3,"-",ap"ache,1549573860,"GET /api HTTP/1.0",200,1
"10.0.0.1","-","apache",1549573861,"POST /report HTTP/1.0",404,1307
`
	r, err := NewReader(strings.NewReader(input))
	require.NoError(t, err)

	rows, errs := readAll(t, r)
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], ErrMalformedLine)
	require.Len(t, rows, 2)
	assert.Equal(t, 4, rows[1].Line)
}

func TestNewReader_HeaderErrors(t *testing.T) {
	t.Parallel()

	_, err := NewReader(strings.NewReader(""))
	require.ErrorIs(t, err, ErrInvalidHeader)

	_, err = NewReader(strings.NewReader("a,b,c\n1,2,3\n"))
	require.ErrorIs(t, err, ErrInvalidHeader)
}
