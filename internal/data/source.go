// Package data feeds rows from CSV or JSON files into request templates, so
// a phase can hit known keys instead of random ones.
package data

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"maps"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
)

// Mode defines how rows are picked.
type Mode string

const (
	// ModeSequential walks the rows in order, wrapping around.
	ModeSequential Mode = "sequential"
	// ModeRandom picks a random row each time.
	ModeRandom Mode = "random"
)

// Row is one record, keyed by column name.
type Row map[string]string

// Source hands out rows to concurrent operations.
type Source struct {
	rows    []Row
	mode    Mode
	counter atomic.Uint64
	mu      sync.Mutex
	rng     *rand.Rand
}

// NewSource creates a source over rows.
func NewSource(rows []Row, mode Mode) *Source {
	if mode == "" {
		mode = ModeSequential
	}
	return &Source{
		rows: rows,
		mode: mode,
		rng:  rand.New(rand.NewSource(rand.Int63())),
	}
}

// Len returns the number of rows.
func (s *Source) Len() int {
	return len(s.rows)
}

// Next returns a copy of the next row. Safe for concurrent use.
func (s *Source) Next() Row {
	if len(s.rows) == 0 {
		return nil
	}

	var idx int
	switch s.mode {
	case ModeRandom:
		s.mu.Lock()
		idx = s.rng.Intn(len(s.rows))
		s.mu.Unlock()
	default:
		n := s.counter.Add(1) - 1
		idx = int(n % uint64(len(s.rows)))
	}
	return maps.Clone(s.rows[idx])
}

// Columns returns the column names of the first row.
func (s *Source) Columns() []string {
	if len(s.rows) == 0 {
		return nil
	}
	cols := make([]string, 0, len(s.rows[0]))
	for k := range s.rows[0] {
		cols = append(cols, k)
	}
	return cols
}

// LoadFile loads a .csv or .json file. Relative paths are resolved against
// baseDir.
func LoadFile(path string, mode Mode, baseDir string) (*Source, error) {
	switch mode {
	case "", ModeSequential, ModeRandom:
	default:
		return nil, fmt.Errorf("unknown data mode %q", mode)
	}
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}

	var (
		rows []Row
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		rows, err = loadCSV(path)
	case ".json":
		rows, err = loadJSON(path)
	default:
		return nil, fmt.Errorf("unsupported file format %q (use .csv or .json)", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("data file %s is empty", path)
	}

	return NewSource(rows, mode), nil
}

// loadCSV reads a header row followed by data rows.
func loadCSV(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("CSV must have header row and at least one data row")
	}

	headers := records[0]
	rows := make([]Row, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(Row, len(headers))
		for i, header := range headers {
			if i < len(record) {
				row[header] = record[i]
			} else {
				row[header] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// loadJSON reads an array of flat objects. Non-string values are formatted
// with fmt.
func loadJSON(path string) ([]Row, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var objs []map[string]any
	if err := json.Unmarshal(raw, &objs); err != nil {
		return nil, fmt.Errorf("JSON must be an array of objects: %w", err)
	}

	rows := make([]Row, 0, len(objs))
	for _, obj := range objs {
		row := make(Row, len(obj))
		for k, v := range obj {
			switch v := v.(type) {
			case string:
				row[k] = v
			case nil:
				row[k] = ""
			default:
				row[k] = fmt.Sprint(v)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
