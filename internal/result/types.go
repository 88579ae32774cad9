package result

import (
	"fmt"
	"strconv"
)

// Outcome is the aggregated state of one configuration cell.
type Outcome string

const (
	OutcomeOK      Outcome = "OK"
	OutcomeError   Outcome = "ERROR"
	OutcomeTimeout Outcome = "TIMEOUT"
)

// Role selects which program a request is built for.
type Role string

const (
	RoleBaseline  Role = "baseline"
	RoleCandidate Role = "candidate"
)

// Cell is one point of the precision x array size x workers sweep.
// Index is the cell's position in sweep order.
type Cell struct {
	Index     int     `json:"index"`
	Precision float64 `json:"precision"`
	ArraySize int     `json:"array_size"`
	Workers   int     `json:"workers"`
	Trials    int     `json:"trials"`
}

// PairKey identifies the baseline shared by every worker count of a
// (precision, array size) pair.
func (c Cell) PairKey() string {
	return fmt.Sprintf("p%s-a%d", FormatPrecision(c.Precision), c.ArraySize)
}

// Slug is a filesystem-safe name for the cell.
func (c Cell) Slug() string {
	return fmt.Sprintf("%s-w%d", c.PairKey(), c.Workers)
}

type Verdict struct {
	Cell      Cell    `json:"cell"`
	Trials    int     `json:"trials"`
	Failures  int     `json:"failures"`
	Timeouts  int     `json:"timeouts"`
	Outcome   Outcome `json:"outcome"`
	Mismatch  string  `json:"mismatch,omitempty"`
	DurationS float64 `json:"duration_s"`
}

// Row renders the verdict as a report row:
// array size, workers, precision, trials, outcome.
func (v Verdict) Row() []string {
	return []string{
		strconv.Itoa(v.Cell.ArraySize),
		strconv.Itoa(v.Cell.Workers),
		FormatPrecision(v.Cell.Precision),
		strconv.Itoa(v.Trials),
		string(v.Outcome),
	}
}

// Header is the fixed report header row.
var Header = []string{"Array size", "Number of workers", "Precision", "Number of tests", "Test outcome"}

// FormatPrecision renders a precision with the shortest exact decimal form,
// so 0.01 stays "0.01" on the command line and in reports.
func FormatPrecision(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}
