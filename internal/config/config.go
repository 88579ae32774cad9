package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalnine/relaxcheck/internal/result"
)

const (
	ProtocolExact     = "exact"
	ProtocolTolerance = "tolerance"

	LengthTruncate = "truncate"
	LengthStrict   = "strict"

	ModeAppend    = "append"
	ModeOverwrite = "overwrite"
)

type Config struct {
	Sweep     Sweep     `yaml:"sweep"`
	Baseline  Program   `yaml:"baseline"`
	Candidate Program   `yaml:"candidate"`
	Protocol  Protocol  `yaml:"protocol"`
	Execution Execution `yaml:"execution"`
	Report    Report    `yaml:"report"`
	Results   Results   `yaml:"results"`
	History   History   `yaml:"history"`
}

type Sweep struct {
	Precisions []float64 `yaml:"precisions"`
	ArraySizes []int     `yaml:"array_sizes"`
	Workers    []int     `yaml:"workers"`
	Trials     int       `yaml:"trials"`
}

// Program is a command template. Args may contain the placeholders
// {precision}, {array_size} and {workers}.
type Program struct {
	Path string            `yaml:"path"`
	Args []string          `yaml:"args"`
	Dir  string            `yaml:"dir,omitempty"`
	Env  map[string]string `yaml:"env,omitempty"`
}

type Protocol struct {
	Name            string  `yaml:"name"`
	Delimiter       string  `yaml:"delimiter"`
	Marker          string  `yaml:"marker,omitempty"`
	Bypass          string  `yaml:"bypass,omitempty"`
	LowerBoundSlack float64 `yaml:"lower_bound_slack,omitempty"`
	LengthPolicy    string  `yaml:"length_policy"`
}

type Execution struct {
	TimeoutSeconds int       `yaml:"timeout_seconds"`
	Parallel       int       `yaml:"parallel"`
	Container      Container `yaml:"container,omitempty"`
}

type Container struct {
	Image       string  `yaml:"image,omitempty"`
	CPULimit    float64 `yaml:"cpu_limit,omitempty"`
	MemoryLimit int64   `yaml:"memory_limit,omitempty"`
}

type Report struct {
	Path string `yaml:"path"`
	Mode string `yaml:"mode"`
}

type Results struct {
	Dir     string `yaml:"dir"`
	Archive bool   `yaml:"archive"`
}

type History struct {
	DB string `yaml:"db,omitempty"`
}

func (e Execution) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return data, nil
}

// Validate checks cfg and fills protocol, report and execution defaults.
// It is called by Load and must be called again after CLI overrides.
func Validate(cfg *Config) error {
	if err := validateSweep(&cfg.Sweep); err != nil {
		return err
	}
	if cfg.Baseline.Path == "" {
		return fmt.Errorf("baseline: path is required")
	}
	if cfg.Candidate.Path == "" {
		return fmt.Errorf("candidate: path is required")
	}
	if err := ValidateProtocol(&cfg.Protocol); err != nil {
		return err
	}
	if cfg.Execution.Parallel < 1 {
		cfg.Execution.Parallel = 1
	}
	if cfg.Execution.TimeoutSeconds < 0 {
		return fmt.Errorf("execution: timeout_seconds must not be negative")
	}
	if cfg.Report.Path == "" {
		cfg.Report.Path = "test_output.csv"
	}
	switch cfg.Report.Mode {
	case "":
		cfg.Report.Mode = ModeAppend
	case ModeAppend, ModeOverwrite:
	default:
		return fmt.Errorf("report: unknown mode %q", cfg.Report.Mode)
	}
	if cfg.Results.Dir == "" {
		cfg.Results.Dir = "results"
	}
	return nil
}

func validateSweep(s *Sweep) error {
	if len(s.Precisions) == 0 {
		return fmt.Errorf("sweep: no precisions defined")
	}
	for _, p := range s.Precisions {
		if p <= 0 || p > 1 {
			return fmt.Errorf("sweep: precision %v out of range (0, 1]", p)
		}
	}
	if len(s.ArraySizes) == 0 {
		return fmt.Errorf("sweep: no array sizes defined")
	}
	for _, n := range s.ArraySizes {
		if n < 3 {
			return fmt.Errorf("sweep: array size %d must be at least 3", n)
		}
	}
	if len(s.Workers) == 0 {
		return fmt.Errorf("sweep: no worker counts defined")
	}
	for _, w := range s.Workers {
		if w < 1 {
			return fmt.Errorf("sweep: worker count %d must be at least 1", w)
		}
	}
	if s.Trials < 1 {
		return fmt.Errorf("sweep: trials must be at least 1")
	}
	return nil
}

// ValidateProtocol fills protocol defaults for the named protocol and
// rejects unknown names and length policies.
func ValidateProtocol(p *Protocol) error {
	switch p.Name {
	case "", ProtocolExact:
		p.Name = ProtocolExact
		if p.Delimiter == "" {
			p.Delimiter = "Result:"
		}
	case ProtocolTolerance:
		if p.Delimiter == "" {
			p.Delimiter = "Thread"
		}
		if p.Marker == "" {
			p.Marker = "1.000000"
		}
		if p.Bypass == "" {
			p.Bypass = "Set"
		}
		if p.LowerBoundSlack == 0 {
			p.LowerBoundSlack = 0.001
		}
		if p.LowerBoundSlack < 0 {
			return fmt.Errorf("protocol: lower_bound_slack must not be negative")
		}
	default:
		return fmt.Errorf("protocol: unknown name %q", p.Name)
	}
	switch p.LengthPolicy {
	case "":
		p.LengthPolicy = LengthTruncate
	case LengthTruncate, LengthStrict:
	default:
		return fmt.Errorf("protocol: unknown length_policy %q", p.LengthPolicy)
	}
	return nil
}

// Cells expands the sweep into its Cartesian product: precision outer,
// array size middle, workers inner.
func (s Sweep) Cells() []result.Cell {
	cells := make([]result.Cell, 0, len(s.Precisions)*len(s.ArraySizes)*len(s.Workers))
	for _, p := range s.Precisions {
		for _, n := range s.ArraySizes {
			for _, w := range s.Workers {
				cells = append(cells, result.Cell{
					Index:     len(cells),
					Precision: p,
					ArraySize: n,
					Workers:   w,
					Trials:    s.Trials,
				})
			}
		}
	}
	return cells
}
