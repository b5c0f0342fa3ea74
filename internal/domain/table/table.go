// Package table holds the small CSV table every input and the history log
// are decoded into. Header names are folded on read so lookups are
// case- and width-insensitive.
package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrEmpty is returned when the input has no header row.
	ErrEmpty = errors.New("table has no header")
	// ErrMalformed is returned when the CSV cannot be decoded.
	ErrMalformed = errors.New("malformed csv")
)

const utf8BOM = "\ufeff"

var folder = cases.Fold()

// Table is a decoded CSV: folded header names and string cells. Every row
// has exactly len(Header) cells.
type Table struct {
	Header []string
	Rows   [][]string
}

// FoldName canonicalizes a column or user name: NFKC, Unicode case fold,
// surrounding space trimmed.
func FoldName(s string) string {
	return strings.TrimSpace(folder.String(norm.NFKC.String(strings.TrimSpace(s))))
}

// Parse decodes CSV from r. Ragged rows are padded or truncated to the
// header width. A leading byte order mark is ignored.
func Parse(r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return Table{}, ErrEmpty
	}
	if err != nil {
		return Table{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}

	t := Table{Header: make([]string, len(header))}
	for i, h := range header {
		t.Header[i] = FoldName(h)
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		if blank(rec) {
			continue
		}
		t.Rows = append(t.Rows, fit(rec, len(t.Header)))
	}
	return t, nil
}

// ParseBytes is Parse over an in-memory buffer.
func ParseBytes(b []byte) (Table, error) {
	return Parse(bytes.NewReader(b))
}

// New returns an empty table with the given header.
func New(header ...string) Table {
	return Table{Header: append([]string(nil), header...)}
}

// Index returns the position of the folded column name, or -1.
func (t Table) Index(name string) int {
	name = FoldName(name)
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Has reports whether the column exists.
func (t Table) Has(name string) bool { return t.Index(name) >= 0 }

// Rename renames the first column matching any alias to name, unless name
// already exists. It reports whether a rename happened.
func (t *Table) Rename(name string, aliases ...string) bool {
	if t.Has(name) {
		return false
	}
	for _, a := range aliases {
		if i := t.Index(a); i >= 0 {
			t.Header[i] = FoldName(name)
			return true
		}
	}
	return false
}

// Ensure appends any missing columns, back-filling existing rows with empty
// cells.
func (t *Table) Ensure(columns ...string) {
	for _, c := range columns {
		if t.Has(c) {
			continue
		}
		t.Header = append(t.Header, FoldName(c))
		for i := range t.Rows {
			t.Rows[i] = append(t.Rows[i], "")
		}
	}
}

// Append adds a row given as column -> value. Unknown columns are ignored;
// columns not in values are left empty.
func (t *Table) Append(values map[string]string) {
	row := make([]string, len(t.Header))
	for k, v := range values {
		if i := t.Index(k); i >= 0 {
			row[i] = v
		}
	}
	t.Rows = append(t.Rows, row)
}

// Get returns the cell at row r for column index c, or "" when c < 0.
func (t Table) Get(r, c int) string {
	if c < 0 || r < 0 || r >= len(t.Rows) || c >= len(t.Rows[r]) {
		return ""
	}
	return t.Rows[r][c]
}

// Encode writes the table back to CSV.
func (t Table) Encode() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Header); err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return nil, fmt.Errorf("encode rows: %w", err)
	}
	return buf.Bytes(), nil
}

var nullTokens = map[string]struct{}{
	"":     {},
	"na":   {},
	"nan":  {},
	"null": {},
	"none": {},
	"n/a":  {},
	"<na>": {},
}

// IsNull reports whether a cell should be read as missing.
func IsNull(s string) bool {
	_, ok := nullTokens[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func fit(rec []string, n int) []string {
	switch {
	case len(rec) == n:
		return rec
	case len(rec) > n:
		return rec[:n]
	default:
		out := make([]string, n)
		copy(out, rec)
		return out
	}
}
