// Package output turns the text printed by a relaxation program into
// ordered records.
//
// The grammar is fixed: a delimiter line introduces the result section, each
// following non-empty line is one record, and fields are separated by
// whitespace. Fields stay strings; numeric interpretation is left to the
// equivalence policies.
package output

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedOutput is matched by errors.Is for output without a delimiter.
var ErrMalformedOutput = errors.New("malformed output")

type MalformedOutputError struct {
	Delimiter string
	Excerpt   string
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("malformed output: delimiter %q not found (output starts %q)", e.Delimiter, e.Excerpt)
}

func (e *MalformedOutputError) Is(target error) bool {
	return target == ErrMalformedOutput
}

// Record is the whitespace-separated fields of one output line.
type Record []string

func (r Record) String() string {
	return strings.Join(r, " ")
}

// Contains reports whether any field equals tok exactly.
func (r Record) Contains(tok string) bool {
	for _, f := range r {
		if f == tok {
			return true
		}
	}
	return false
}

// Section is the text following one delimiter occurrence, up to the next.
type Section struct {
	Text    string
	Records []Record
}

// Grammar describes how a program's stdout is laid out.
type Grammar struct {
	Delimiter string
	// Sections is set when the delimiter repeats once per worker.
	Sections bool
}

// Parse returns the records after the first occurrence of delimiter.
func Parse(raw, delimiter string) ([]Record, error) {
	idx := strings.Index(raw, delimiter)
	if delimiter == "" || idx < 0 {
		return nil, malformed(raw, delimiter)
	}
	return splitRecords(raw[idx+len(delimiter):]), nil
}

// ParseSections splits raw on every occurrence of delimiter and parses each
// section. Text before the first occurrence is not a section.
func ParseSections(raw, delimiter string) ([]Section, error) {
	if delimiter == "" || !strings.Contains(raw, delimiter) {
		return nil, malformed(raw, delimiter)
	}
	parts := strings.Split(raw, delimiter)[1:]
	sections := make([]Section, len(parts))
	for i, p := range parts {
		sections[i] = Section{Text: p, Records: splitRecords(p)}
	}
	return sections, nil
}

func splitRecords(text string) []Record {
	var records []Record
	for _, line := range strings.Split(text, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		records = append(records, Record(fields))
	}
	return records
}

func malformed(raw, delimiter string) error {
	excerpt := strings.TrimSpace(raw)
	if len(excerpt) > 80 {
		excerpt = excerpt[:80] + "..."
	}
	return &MalformedOutputError{Delimiter: delimiter, Excerpt: excerpt}
}

// Baseline parses a single-worker run: every record after the first
// delimiter.
func (g Grammar) Baseline(raw string) ([]Record, error) {
	return Parse(raw, g.Delimiter)
}

// Candidate parses a run under test. Without Sections the whole result is
// returned as a single section.
func (g Grammar) Candidate(raw string) ([]Section, error) {
	if g.Sections {
		return ParseSections(raw, g.Delimiter)
	}
	records, err := Parse(raw, g.Delimiter)
	if err != nil {
		return nil, err
	}
	text := raw[strings.Index(raw, g.Delimiter)+len(g.Delimiter):]
	return []Section{{Text: text, Records: records}}, nil
}
