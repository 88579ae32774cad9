// Package equivalence decides whether a candidate run reproduces the
// baseline run of the same configuration.
//
// Two protocols exist and stay separate. Exact compares every paired field
// as text, so formatting must be byte-identical. Tolerance only compares
// records flagged by a convergence marker, numerically, within the cell's
// precision.
package equivalence

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/signalnine/relaxcheck/internal/config"
	"github.com/signalnine/relaxcheck/internal/output"
)

// LengthPolicy decides what happens when paired sequences differ in length.
type LengthPolicy int

const (
	// Truncate pairs up to the shorter sequence and ignores the rest.
	Truncate LengthPolicy = iota
	// Strict treats any record or field count difference as a mismatch.
	Strict
)

type Mismatch struct {
	Section   int
	Record    int
	Field     int
	Candidate string
	Baseline  string
	Reason    string
}

func (m *Mismatch) String() string {
	if m.Field < 0 {
		return fmt.Sprintf("section %d record %d: %s (candidate %s, baseline %s)",
			m.Section, m.Record, m.Reason, m.Candidate, m.Baseline)
	}
	return fmt.Sprintf("section %d record %d field %d: candidate %q baseline %q: %s",
		m.Section, m.Record, m.Field, m.Candidate, m.Baseline, m.Reason)
}

type Result struct {
	Equivalent bool
	Mismatch   *Mismatch
}

func pass() Result {
	return Result{Equivalent: true}
}

func fail(m *Mismatch) Result {
	return Result{Mismatch: m}
}

// BypassNone in the configuration disables the bypass rule so every
// section is checked.
const BypassNone = "none"

// Policy parses runs with its grammar and applies its comparison.
type Policy interface {
	Name() string
	Grammar() output.Grammar
	// Check parses a candidate's raw output and compares it with the parsed
	// baseline. Errors are reserved for malformed output.
	Check(raw string, baseline []output.Record, precision float64) (Result, error)
}

// ForProtocol builds the policy named in the configuration.
func ForProtocol(p config.Protocol) (Policy, error) {
	length := Truncate
	if p.LengthPolicy == config.LengthStrict {
		length = Strict
	}
	switch p.Name {
	case config.ProtocolExact:
		return &ExactPolicy{Delimiter: p.Delimiter, Length: length}, nil
	case config.ProtocolTolerance:
		bypass := p.Bypass
		if bypass == BypassNone {
			bypass = ""
		}
		return &TolerancePolicy{
			Delimiter:       p.Delimiter,
			Marker:          p.Marker,
			Bypass:          bypass,
			LowerBoundSlack: p.LowerBoundSlack,
			Length:          length,
		}, nil
	default:
		return nil, fmt.Errorf("unknown protocol %q", p.Name)
	}
}

// Exact compares paired fields as strings.
func Exact(candidate, baseline []output.Record, length LengthPolicy) Result {
	if length == Strict && len(candidate) != len(baseline) {
		return fail(countMismatch(0, -1, len(candidate), len(baseline), "record count differs"))
	}
	n := min(len(candidate), len(baseline))
	for i := 0; i < n; i++ {
		cand, base := candidate[i], baseline[i]
		if length == Strict && len(cand) != len(base) {
			return fail(countMismatch(0, i, len(cand), len(base), "field count differs"))
		}
		for j := 0; j < min(len(cand), len(base)); j++ {
			if cand[j] != base[j] {
				return fail(&Mismatch{Record: i, Field: j, Candidate: cand[j], Baseline: base[j], Reason: "text differs"})
			}
		}
	}
	return pass()
}

// ToleranceOpts configures Tolerance.
type ToleranceOpts struct {
	Precision       float64
	Marker          string
	Bypass          string
	LowerBoundSlack float64
	Length          LengthPolicy
}

// Tolerance checks every candidate section against the baseline records.
// A section whose text lacks the bypass word is accepted as is. Otherwise
// each candidate record holding the marker field is compared numerically,
// field by field: it may not fall below baseline - slack, and may not
// differ from the baseline by more than the precision.
func Tolerance(sections []output.Section, baseline []output.Record, opts ToleranceOpts) Result {
	for s, sec := range sections {
		if opts.Bypass != "" && !strings.Contains(sec.Text, opts.Bypass) {
			continue
		}
		if res := toleranceSection(s, sec.Records, baseline, opts); !res.Equivalent {
			return res
		}
	}
	return pass()
}

func toleranceSection(s int, candidate, baseline []output.Record, opts ToleranceOpts) Result {
	if opts.Length == Strict && len(candidate) != len(baseline) {
		return fail(countMismatch(s, -1, len(candidate), len(baseline), "record count differs"))
	}
	n := min(len(candidate), len(baseline))
	for i := 0; i < n; i++ {
		cand, base := candidate[i], baseline[i]
		if !cand.Contains(opts.Marker) {
			continue
		}
		if opts.Length == Strict && len(cand) != len(base) {
			return fail(countMismatch(s, i, len(cand), len(base), "field count differs"))
		}
		for j := 0; j < min(len(cand), len(base)); j++ {
			if m := compareNumeric(cand[j], base[j], opts); m != nil {
				m.Section, m.Record, m.Field = s, i, j
				return fail(m)
			}
		}
	}
	return pass()
}

func compareNumeric(cand, base string, opts ToleranceOpts) *Mismatch {
	c, err := strconv.ParseFloat(cand, 64)
	if err != nil {
		return &Mismatch{Candidate: cand, Baseline: base, Reason: "candidate field is not numeric"}
	}
	b, err := strconv.ParseFloat(base, 64)
	if err != nil {
		return &Mismatch{Candidate: cand, Baseline: base, Reason: "baseline field is not numeric"}
	}
	if c < b-opts.LowerBoundSlack {
		return &Mismatch{Candidate: cand, Baseline: base, Reason: fmt.Sprintf("below baseline by more than %g", opts.LowerBoundSlack)}
	}
	if math.Abs(c-b) > opts.Precision {
		return &Mismatch{Candidate: cand, Baseline: base, Reason: fmt.Sprintf("differs by %g, precision %g", math.Abs(c-b), opts.Precision)}
	}
	return nil
}

func countMismatch(section, record, cand, base int, reason string) *Mismatch {
	return &Mismatch{
		Section:   section,
		Record:    record,
		Field:     -1,
		Candidate: strconv.Itoa(cand),
		Baseline:  strconv.Itoa(base),
		Reason:    reason,
	}
}
