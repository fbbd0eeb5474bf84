package dataset

import (
	"bytes"
	"encoding/csv"
	"io"

	"github.com/pkg/errors"
)

var (
	ErrEmptyTable    = errors.New("table has no header")
	ErrMissingColumn = errors.New("missing column")
)

// Table is a CSV table kept as strings. Rows keep the column order of Header.
type Table struct {
	Header []string
	Rows   [][]string
}

// ReadCSV reads a table with a header row.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyTable
	}
	if err != nil {
		return nil, errors.Wrap(err, "unable to read header")
	}

	t := &Table{Header: header}
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return t, nil
		}
		if err != nil {
			return nil, errors.Wrapf(err, "unable to read row %d", len(t.Rows)+1)
		}
		t.Rows = append(t.Rows, row)
	}
}

// ParseCSV is ReadCSV over a blob.
func ParseCSV(blob []byte) (*Table, error) {
	return ReadCSV(bytes.NewReader(blob))
}

// WriteCSV writes the header then every row.
func (t *Table) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	err := writer.Write(t.Header)
	if err != nil {
		return errors.Wrap(err, "unable to write header")
	}
	err = writer.WriteAll(t.Rows)
	if err != nil {
		return errors.Wrap(err, "unable to write rows")
	}

	return nil
}

// Bytes renders the table as CSV.
func (t *Table) Bytes() ([]byte, error) {
	buf := &bytes.Buffer{}
	err := t.WriteCSV(buf)
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (t *Table) Len() int {
	return len(t.Rows)
}

// Index returns the position of the column, or -1.
func (t *Table) Index(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}

	return -1
}

// Column returns a copy of the named column.
func (t *Table) Column(name string) ([]string, error) {
	idx := t.Index(name)
	if idx < 0 {
		return nil, errors.Wrapf(ErrMissingColumn, "%q", name)
	}

	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		if idx < len(row) {
			out[i] = row[idx]
		}
	}

	return out, nil
}

// Drop returns a table without the named columns. Unknown names are ignored.
func (t *Table) Drop(names ...string) *Table {
	drop := make(map[int]struct{}, len(names))
	for _, name := range names {
		if idx := t.Index(name); idx >= 0 {
			drop[idx] = struct{}{}
		}
	}

	keep := func(row []string) []string {
		out := make([]string, 0, len(row))
		for i, cell := range row {
			if _, ok := drop[i]; !ok {
				out = append(out, cell)
			}
		}

		return out
	}

	out := &Table{Header: keep(t.Header), Rows: make([][]string, len(t.Rows))}
	for i, row := range t.Rows {
		out.Rows[i] = keep(row)
	}

	return out
}
