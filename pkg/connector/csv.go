package connector

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/systemstart/many-etl/pkg/batch"
)

const utf8BOM = "\uFEFF"

// CSV is a connector over a directory of CSV files. A table name is a file
// name relative to the directory; ".csv" is appended when it has no
// extension. The first record holds the column names and empty cells are
// read as null. Cells are read as strings.
type CSV struct {
	dir string
}

// OpenCSV returns a connector for the files in dir.
func OpenCSV(dir string) (*CSV, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("csv: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("csv: %s is not a directory", dir)
	}
	return &CSV{dir: dir}, nil
}

func (c *CSV) path(table string) (string, error) {
	if isQuery(table) {
		return "", fmt.Errorf("csv: queries are not supported: %q", table)
	}
	if !filepath.IsLocal(table) {
		return "", fmt.Errorf("csv: table %q must be a path inside %s", table, c.dir)
	}
	if filepath.Ext(table) == "" {
		table += ".csv"
	}
	return filepath.Join(c.dir, table), nil
}

// Read implements Source.
func (c *CSV) Read(ctx context.Context, table string, limit int) (*batch.Batch, error) {
	path, err := c.path(table)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("csv: %s is empty", path)
	}
	if err != nil {
		return nil, fmt.Errorf("csv: reading header of %s: %w", path, err)
	}
	header[0] = strings.TrimPrefix(header[0], utf8BOM)
	r.FieldsPerRecord = len(header)

	var rows [][]any
	for limit <= 0 || len(rows) < limit {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: %s: %w", path, err)
		}
		row := make([]any, len(record))
		for j, cell := range record {
			if cell != "" {
				row[j] = cell
			}
		}
		rows = append(rows, row)
	}
	return batch.New(header, rows)
}

// Write implements Target. A new file gets a header record. Rows appended to
// an existing file must have the same columns as its header.
func (c *CSV) Write(ctx context.Context, b *batch.Batch, table string) (n int64, err error) {
	path, err := c.path(table)
	if err != nil {
		return 0, err
	}

	writeHeader := true
	if _, statErr := os.Stat(path); statErr == nil {
		header, err := readHeader(path)
		if err != nil {
			return 0, err
		}
		if header != nil {
			if !slices.Equal(header, b.Columns()) {
				return 0, fmt.Errorf("csv: %s has columns %v, batch has %v", path, header, b.Columns())
			}
			writeHeader = false
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("csv: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("csv: closing %s: %w", path, cerr)
		}
	}()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(b.Columns()); err != nil {
			return 0, fmt.Errorf("csv: writing header: %w", err)
		}
	}
	record := make([]string, b.Width())
	for i := range b.Len() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		for j, v := range b.Row(i) {
			record[j] = batch.Format(v)
		}
		if err := w.Write(record); err != nil {
			return n, fmt.Errorf("csv: writing row %d: %w", i, err)
		}
		n++
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return n, fmt.Errorf("csv: flush: %w", err)
	}
	return n, nil
}

// Close implements Connector.
func (c *CSV) Close() error { return nil }

func readHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv: %w", err)
	}
	defer f.Close()
	header, err := csv.NewReader(f).Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("csv: reading header of %s: %w", path, err)
	}
	header[0] = strings.TrimPrefix(header[0], utf8BOM)
	return header, nil
}
