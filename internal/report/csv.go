package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/signalnine/relaxcheck/internal/config"
	"github.com/signalnine/relaxcheck/internal/result"
)

// WriteCSV writes the header and one row per verdict to path.
//
// In append mode prior contents are kept and the header is written again
// before this sweep's rows, so every invocation leaves a self-describing
// block. Overwrite mode replaces the file atomically. Both hold an advisory
// lock on path.lock while writing.
func WriteCSV(verdicts []result.Verdict, path, mode string) error {
	data, err := encodeCSV(verdicts)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report dir: %w", err)
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking %s: %w", path, err)
	}
	defer lock.Unlock()

	switch mode {
	case config.ModeAppend, "":
		return appendFile(path, data)
	case config.ModeOverwrite:
		return atomicWrite(path, data)
	default:
		return fmt.Errorf("unknown report mode %q", mode)
	}
}

func encodeCSV(verdicts []result.Verdict) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(result.Header); err != nil {
		return nil, fmt.Errorf("encoding report header: %w", err)
	}
	for _, v := range verdicts {
		if err := w.Write(v.Row()); err != nil {
			return nil, fmt.Errorf("encoding report row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encoding report: %w", err)
	}
	return buf.Bytes(), nil
}

func appendFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening report: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("appending report: %w", err)
	}
	return f.Close()
}

// atomicWrite replaces path with data via a temp file in the same directory.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".report-*")
	if err != nil {
		return fmt.Errorf("creating temp report: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp report: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp report: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("setting report permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
