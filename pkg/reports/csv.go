package reports

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
)

// csvReport buffers a CSV document row by row.
type csvReport struct {
	buf    *bytes.Buffer
	writer *csv.Writer
}

func newCSVReport(headers []string) (*csvReport, error) {
	buf := &bytes.Buffer{}
	r := &csvReport{buf: buf, writer: csv.NewWriter(buf)}
	if err := r.writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}
	return r, nil
}

func (r *csvReport) write(row []string) error {
	if err := r.writer.Write(row); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	return nil
}

func (r *csvReport) finish() (io.Reader, error) {
	r.writer.Flush()
	if err := r.writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush writer: %w", err)
	}
	return r.buf, nil
}
