package core

// csv.go writes export reports as CSV.
//
// encoding/csv only quotes fields that need it, which lets spreadsheet tools
// turn long numeric ids into floats. Every field written here is quoted, so
// "42" stays text. Lines end in CRLF (RFC 4180).

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrHeaderWritten is returned when WriteHeader is called twice.
	ErrHeaderWritten = errors.New("csv header already written")
	// ErrNoHeader is returned when a row is written before the header.
	ErrNoHeader = errors.New("csv header not written")
)

// CSVWriter writes fully quoted CSV records.
type CSVWriter struct {
	w       *bufio.Writer
	columns int
}

// NewCSVWriter returns a writer that buffers output to w. Call Flush when done.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: bufio.NewWriter(w)}
}

// WriteHeader writes the header row. It must be called exactly once, before
// any row.
func (c *CSVWriter) WriteHeader(columns []string) error {
	if c.columns > 0 {
		return ErrHeaderWritten
	}
	if len(columns) == 0 {
		return errors.New("csv header has no columns")
	}
	c.columns = len(columns)
	return c.writeRecord(columns)
}

// WriteRow writes one record. It must have as many fields as the header.
func (c *CSVWriter) WriteRow(fields []string) error {
	if c.columns == 0 {
		return ErrNoHeader
	}
	if len(fields) != c.columns {
		return fmt.Errorf("csv row has %d fields, header has %d", len(fields), c.columns)
	}
	return c.writeRecord(fields)
}

// Flush writes any buffered data to the underlying writer.
func (c *CSVWriter) Flush() error {
	return c.w.Flush()
}

func (c *CSVWriter) writeRecord(fields []string) error {
	for i, f := range fields {
		if i > 0 {
			if err := c.w.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := c.w.WriteString(quoteField(f)); err != nil {
			return err
		}
	}
	_, err := c.w.WriteString("\r\n")
	return err
}

func quoteField(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// EncodeReport writes the header and every row of r to w.
func EncodeReport(w io.Writer, r *Report) error {
	cw := NewCSVWriter(w)
	if err := cw.WriteHeader(r.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i, row := range r.Rows {
		if err := cw.WriteRow(row.Values(r.Kind)); err != nil {
			return fmt.Errorf("write csv row %d: %w", i+1, err)
		}
	}
	return cw.Flush()
}
