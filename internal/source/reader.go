// Package source reads raw extract files and writes processed table exports.
package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/JonMunkholm/shortages/internal/core"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// MaxHeaderSearchRows bounds how far into a file the header row is looked for.
// Some extracts carry a title or export banner above the header.
const MaxHeaderSearchRows = 10

// Extract is the parsed content of one raw extract file.
type Extract struct {
	Path    string
	Kind    core.DatasetKind
	Headers []string // lowercased, cleaned
	Rows    []core.RawRow
}

// ReadFile opens and parses an extract file.
// A missing file wraps core.ErrMissingInput; a file that cannot be parsed
// wraps core.ErrUnreadableInput.
func ReadFile(path string, kind core.DatasetKind) (*Extract, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s extract %s: %w", kind, path, core.ErrMissingInput)
		}
		return nil, fmt.Errorf("%s extract %s: %v: %w", kind, path, err, core.ErrUnreadableInput)
	}
	defer f.Close()

	ext, err := Read(f, kind)
	if err != nil {
		return nil, fmt.Errorf("%s extract %s: %w", kind, path, err)
	}
	ext.Path = path
	return ext, nil
}

// Read parses an extract from r.
//
// A leading UTF-8 BOM is dropped and invalid UTF-8 is replaced with U+FFFD.
// Rows may be ragged: missing trailing cells are absent from RawRow.Values and
// extra cells are ignored. Blank lines are skipped.
func Read(r io.Reader, kind core.DatasetKind) (*Extract, error) {
	decoded := transform.NewReader(r, unicode.UTF8BOM.NewDecoder())

	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	headerRow, headerLine, err := findHeader(cr, kind)
	if err != nil {
		return nil, err
	}

	headers := make([]string, len(headerRow))
	for i, h := range headerRow {
		headers[i] = strings.ToLower(core.CleanCell(h))
	}

	ext := &Extract{Kind: kind, Headers: headers}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse: %v: %w", err, core.ErrUnreadableInput)
		}
		if isBlank(record) {
			continue
		}

		line, _ := cr.FieldPos(0)
		if line <= headerLine {
			line = headerLine + 1
		}
		ext.Rows = append(ext.Rows, toRawRow(line, headers, record))
	}

	return ext, nil
}

// findHeader returns the first row that names an anchor column; see
// anchorHeaders.
func findHeader(cr *csv.Reader, kind core.DatasetKind) ([]string, int, error) {
	anchors := anchorHeaders(kind)

	for i := 0; i < MaxHeaderSearchRows; i++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("parse header: %v: %w", err, core.ErrUnreadableInput)
		}
		for _, cell := range record {
			if _, ok := anchors[strings.ToLower(core.CleanCell(cell))]; ok {
				line, _ := cr.FieldPos(0)
				return record, line, nil
			}
		}
	}

	return nil, 0, fmt.Errorf("no %s header row in the first %d rows: %w",
		kind, MaxHeaderSearchRows, core.ErrUnreadableInput)
}

// anchorHeaders lists the header names that identify a header row. A
// registry row is useless without its product code, so only that column
// anchors it. Shortage feeds may omit the identifier entirely (every event
// is then unjoinable), so any declared shortage column anchors them.
func anchorHeaders(kind core.DatasetKind) map[string]struct{} {
	set := make(map[string]struct{})
	for _, spec := range core.Fields(kind) {
		if kind == core.DatasetRegistry && spec.Name != core.FieldProductCode {
			continue
		}
		for _, h := range spec.Headers() {
			set[h] = struct{}{}
		}
	}
	return set
}

// toRawRow keys a record by header. The first occurrence of a repeated
// header wins.
func toRawRow(line int, headers, record []string) core.RawRow {
	values := make(map[string]string, len(headers))
	for i, h := range headers {
		if i >= len(record) {
			break
		}
		if h == "" {
			continue
		}
		if _, dup := values[h]; dup {
			continue
		}
		values[h] = record[i]
	}
	return core.RawRow{Line: line, Values: values}
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
