package pipeline

import (
	"encoding/csv"
	"fmt"
	"mime"
	"path"
	"strings"
)

// RawRow is one data line of a bulk file keyed by header column. It exists
// only between parsing and normalization.
type RawRow struct {
	Line   int // 1-based line number in the original input
	Values map[string]string
}

// Get returns the raw value for column and whether the column exists.
func (r RawRow) Get(column string) (string, bool) {
	v, ok := r.Values[column]
	return v, ok
}

// ParsedFile is the output of ParseDelimited.
type ParsedFile struct {
	Header    []string
	Delimiter rune
	Rows      []RawRow

	// DataLines counts every non-blank line after the header.
	DataLines int

	// Dropped counts lines skipped because their field count did not match
	// the header (or they could not be split at all).
	Dropped int
}

// CheckFormat rejects uploads that are neither named *.csv nor sent as CSV.
func CheckFormat(filename, contentType string) error {
	if strings.EqualFold(path.Ext(filename), ".csv") {
		return nil
	}
	if contentType != "" {
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
			switch strings.ToLower(mediaType) {
			case "text/csv", "application/csv":
				return nil
			}
		}
	}
	return &FormatError{Filename: filename, ContentType: contentType}
}

// ParseDelimited splits raw text into header and rows.
//
// Blank lines are ignored. The delimiter is a comma when the header contains
// one, otherwise a tab. Every data line is split with the same delimiter; a
// line whose field count differs from the header is dropped, which is the
// documented policy for truncated or malformed lines rather than an error.
// A header missing any of required fails the whole batch with SchemaError.
func ParseDelimited(data []byte, required []string) (*ParsedFile, error) {
	lines, lineNos := nonBlankLines(string(data))
	if len(lines) == 0 {
		return nil, &EmptyInputError{}
	}

	delim := detectDelimiter(lines[0])
	header, err := splitLine(lines[0], delim)
	if err != nil {
		return nil, fmt.Errorf("ParseDelimited: reading header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	if missing := missingColumns(required, header); len(missing) > 0 {
		return nil, &SchemaError{Missing: missing}
	}

	parsed := &ParsedFile{
		Header:    header,
		Delimiter: delim,
		Rows:      make([]RawRow, 0, len(lines)-1),
		DataLines: len(lines) - 1,
	}

	for i := 1; i < len(lines); i++ {
		fields, err := splitLine(lines[i], delim)
		if err != nil || len(fields) != len(header) {
			parsed.Dropped++
			continue
		}

		values := make(map[string]string, len(header))
		for j, col := range header {
			values[col] = fields[j]
		}
		parsed.Rows = append(parsed.Rows, RawRow{Line: lineNos[i], Values: values})
	}

	return parsed, nil
}

// nonBlankLines returns the non-blank lines of s together with their 1-based
// line numbers. A leading UTF-8 byte order mark is stripped.
func nonBlankLines(s string) ([]string, []int) {
	s = strings.TrimPrefix(s, "\ufeff")

	var lines []string
	var numbers []int
	for i, line := range strings.Split(s, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
		numbers = append(numbers, i+1)
	}
	return lines, numbers
}

func detectDelimiter(header string) rune {
	if strings.Contains(header, ",") {
		return ','
	}
	return '\t'
}

// splitLine splits one line honouring CSV quoting, so merchant names such as
// "Rippin, Kub and Mann" stay in one field.
func splitLine(line string, delim rune) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.Read()
}

// missingColumns returns the entries of required absent from columns, in
// required order.
func missingColumns(required, columns []string) []string {
	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		present[c] = true
	}

	var missing []string
	for _, c := range required {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	return missing
}
