package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// Row is one CSV record and the input line it started on.
type Row struct {
	Line   int
	Fields []string
}

// Reader reads an access log with a header row.
type Reader struct {
	csv    *csv.Reader
	parser *Parser
}

// NewReader consumes the header from r and returns a reader for the rows
// that follow, along with a parser for that header.
func NewReader(r io.Reader) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty input", ErrInvalidHeader)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}

	p, err := NewParser(header)
	if err != nil {
		return nil, err
	}
	return &Reader{csv: cr, parser: p}, nil
}

// Parser returns the parser built from the header.
func (r *Reader) Parser() *Parser {
	return r.parser
}

// Next returns the next row. It returns io.EOF at end of input. A row the
// CSV layer cannot read yields ErrMalformedLine with the row's line number
// set, and reading may continue.
func (r *Reader) Next() (Row, error) {
	fields, err := r.csv.Read()
	if err != nil {
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			return Row{Line: perr.StartLine}, fmt.Errorf("%w: %w", ErrMalformedLine, err)
		}
		return Row{}, err
	}
	line, _ := r.csv.FieldPos(0)
	return Row{Line: line, Fields: fields}, nil
}
