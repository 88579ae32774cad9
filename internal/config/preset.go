package config

import (
	"fmt"
	"sort"
)

// Presets reproduce the two original test setups: the MPI build compared
// against a sequential binary, and the pthread build compared against its
// own single-worker run.
var presets = map[string]func() *Config{
	"distributed": func() *Config {
		return &Config{
			Sweep: Sweep{
				Precisions: []float64{0.01, 0.001},
				ArraySizes: []int{5000, 10000},
				Workers:    []int{4, 6, 10},
				Trials:     25,
			},
			Baseline: Program{
				Path: "./sequential.o",
				Args: []string{"-p", "{precision}", "-a", "{array_size}"},
			},
			Candidate: Program{
				Path: "mpirun",
				Args: []string{"-np", "{workers}", "distributed-memory.o", "-p", "{precision}", "-a", "{array_size}"},
			},
			Protocol: Protocol{Name: ProtocolExact, Delimiter: "Result:", LengthPolicy: LengthTruncate},
			Report:   Report{Path: "test_output.csv", Mode: ModeAppend},
		}
	},
	"shared": func() *Config {
		prog := Program{
			Path: "./shared-memory.o",
			Args: []string{"-p", "{precision}", "-w", "{workers}", "-a", "{array_size}"},
		}
		return &Config{
			Sweep: Sweep{
				Precisions: []float64{0.01},
				ArraySizes: []int{5},
				Workers:    []int{2},
				Trials:     1,
			},
			Baseline:  prog,
			Candidate: prog,
			Protocol: Protocol{
				Name:            ProtocolTolerance,
				Delimiter:       "Thread",
				Marker:          "1.000000",
				Bypass:          "Set",
				LowerBoundSlack: 0.001,
				LengthPolicy:    LengthTruncate,
			},
			Report: Report{Path: "test_output.csv", Mode: ModeOverwrite},
		}
	},
}

// Preset returns a validated copy of the named preset.
func Preset(name string) (*Config, error) {
	build, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("unknown preset %q (available: %v)", name, PresetNames())
	}
	cfg := build()
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("preset %s: %w", name, err)
	}
	return cfg, nil
}

func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
