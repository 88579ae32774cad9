package result

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CreateRunDir creates runs/<timestamp>-<id> under baseDir and points the
// "latest" symlink at it.
func CreateRunDir(baseDir, runID string) (string, error) {
	runsDir := filepath.Join(baseDir, "runs")
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05")
	name := stamp
	if runID != "" {
		name = stamp + "-" + shortID(runID)
	}
	runDir, err := filepath.Abs(filepath.Join(runsDir, name))
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}
	latest := filepath.Join(baseDir, "latest")
	os.Remove(latest)
	if err := os.Symlink(runDir, latest); err != nil {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return runDir, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[len(id)-8:]
	}
	return id
}

func CellDir(runDir string, cell Cell) string {
	return filepath.Join(runDir, "cells", fmt.Sprintf("%03d-%s", cell.Index, cell.Slug()))
}

func BaselineDir(runDir string, cell Cell) string {
	return filepath.Join(runDir, "baselines", cell.PairKey())
}

// WriteOutput stores one captured stdout under dir/name.txt.
func WriteOutput(dir, name, raw string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, name+".txt"), []byte(raw), 0o644)
}

func TrialName(trial int) string {
	return fmt.Sprintf("trial-%d", trial)
}

func WriteVerdict(cellDir string, v *Verdict) error {
	if err := os.MkdirAll(cellDir, 0o755); err != nil {
		return fmt.Errorf("creating cell dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling verdict: %w", err)
	}
	return os.WriteFile(filepath.Join(cellDir, "meta.json"), data, 0o644)
}

func ReadVerdict(path string) (*Verdict, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading verdict: %w", err)
	}
	var v Verdict
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parsing verdict: %w", err)
	}
	return &v, nil
}
