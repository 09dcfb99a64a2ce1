/*
PURPOSE:
  Writes report tables to CSV files.
  Ensures data integrity by flushing writes immediately.

REQUIREMENTS:
  User-specified:
  - Headline tables as CSV, one file per table plus a combined file.

  Implementation-discovered:
  - Rows are maps so the combined table can take the union of columns;
    missing cells are written empty.
  - Tables without rows produce no file.

ARCHITECTURE INTEGRATION:
  - Called by: internal/output/report.go

ERROR HANDLING:
  - Returns error on file creation or write failure.

IMPLEMENTATION RULES:
  - Use encoding/csv.
  - Flush() after every write.

USAGE:
  w, err := output.NewCSVWriter("table.csv", columns)
  w.Write(row)
  w.Close()

RELATED FILES:
  - internal/output/report.go
*/

package output

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Table is a named set of rows with a fixed column order.
type Table struct {
	Name    string
	Columns []string
	Rows    []map[string]string
}

// Union returns a table holding the rows of every table under the sorted
// union of their columns.
func Union(name string, tables ...Table) Table {
	seen := map[string]bool{}
	out := Table{Name: name}
	for _, t := range tables {
		for _, row := range t.Rows {
			for col := range row {
				seen[col] = true
			}
		}
		out.Rows = append(out.Rows, t.Rows...)
	}
	for col := range seen {
		out.Columns = append(out.Columns, col)
	}
	sort.Strings(out.Columns)
	return out
}

// CSVWriter writes rows of one table to a CSV file.
type CSVWriter struct {
	file    *os.File
	writer  *csv.Writer
	columns []string
	mu      sync.Mutex
}

// NewCSVWriter creates a new CSVWriter and writes the header.
// It overwrites the file if it exists.
func NewCSVWriter(path string, columns []string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		f.Close()
		return nil, err
	}
	w.Flush()

	return &CSVWriter{
		file:    f,
		writer:  w,
		columns: columns,
	}, nil
}

// Write writes a single row; columns absent from row are left empty.
// It is thread-safe.
func (cw *CSVWriter) Write(row map[string]string) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	record := make([]string, len(cw.columns))
	for i, col := range cw.columns {
		record[i] = row[col]
	}
	if err := cw.writer.Write(record); err != nil {
		return err
	}
	cw.writer.Flush()
	return cw.writer.Error()
}

// Close closes the underlying file.
func (cw *CSVWriter) Close() error {
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		cw.file.Close()
		return err
	}
	return cw.file.Close()
}

// WriteTable writes t to path. It reports false without touching the
// filesystem when t has no rows.
func WriteTable(path string, t Table) (bool, error) {
	if len(t.Rows) == 0 {
		return false, nil
	}
	w, err := NewCSVWriter(path, t.Columns)
	if err != nil {
		return false, err
	}
	for _, row := range t.Rows {
		if err := w.Write(row); err != nil {
			w.Close()
			return false, err
		}
	}
	return true, w.Close()
}
