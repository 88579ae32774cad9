package equivalence

import (
	"github.com/signalnine/relaxcheck/internal/config"
	"github.com/signalnine/relaxcheck/internal/output"
)

// ExactPolicy is the distributed-memory protocol: one result section per
// run, compared as text.
type ExactPolicy struct {
	Delimiter string
	Length    LengthPolicy
}

func (p *ExactPolicy) Name() string { return config.ProtocolExact }

func (p *ExactPolicy) Grammar() output.Grammar {
	return output.Grammar{Delimiter: p.Delimiter}
}

func (p *ExactPolicy) Check(raw string, baseline []output.Record, _ float64) (Result, error) {
	records, err := output.Parse(raw, p.Delimiter)
	if err != nil {
		return Result{}, err
	}
	return Exact(records, baseline, p.Length), nil
}

// TolerancePolicy is the shared-memory protocol: one section per worker,
// marker-gated numeric comparison.
type TolerancePolicy struct {
	Delimiter       string
	Marker          string
	Bypass          string
	LowerBoundSlack float64
	Length          LengthPolicy
}

func (p *TolerancePolicy) Name() string { return config.ProtocolTolerance }

func (p *TolerancePolicy) Grammar() output.Grammar {
	return output.Grammar{Delimiter: p.Delimiter, Sections: true}
}

func (p *TolerancePolicy) Check(raw string, baseline []output.Record, precision float64) (Result, error) {
	sections, err := p.Grammar().Candidate(raw)
	if err != nil {
		return Result{}, err
	}
	return Tolerance(sections, baseline, ToleranceOpts{
		Precision:       precision,
		Marker:          p.Marker,
		Bypass:          p.Bypass,
		LowerBoundSlack: p.LowerBoundSlack,
		Length:          p.Length,
	}), nil
}
