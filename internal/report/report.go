package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/signalnine/relaxcheck/internal/result"
)

// Formats lists the names accepted by Render.
var Formats = []string{"table", "markdown", "json", "csv", "html"}

type Summary struct {
	Cells    int `json:"cells"`
	OK       int `json:"ok"`
	Errors   int `json:"errors"`
	Timeouts int `json:"timeouts"`
}

func (s Summary) String() string {
	return fmt.Sprintf("%d cells: %d OK, %d ERROR, %d TIMEOUT", s.Cells, s.OK, s.Errors, s.Timeouts)
}

// Passed reports whether every cell came out OK.
func (s Summary) Passed() bool {
	return s.OK == s.Cells
}

func Summarize(verdicts []result.Verdict) Summary {
	s := Summary{Cells: len(verdicts)}
	for _, v := range verdicts {
		switch v.Outcome {
		case result.OutcomeOK:
			s.OK++
		case result.OutcomeError:
			s.Errors++
		case result.OutcomeTimeout:
			s.Timeouts++
		}
	}
	return s
}

// Generate reads the verdicts archived in runDir and renders them.
func Generate(runDir, format string, w io.Writer) error {
	verdicts, err := Collect(runDir)
	if err != nil {
		return err
	}
	return Render(verdicts, format, w)
}

// Collect loads every cell's meta.json under runDir in sweep order.
func Collect(runDir string) ([]result.Verdict, error) {
	var verdicts []result.Verdict
	err := filepath.Walk(filepath.Join(runDir, "cells"), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Name() == "meta.json" {
			v, err := result.ReadVerdict(path)
			if err != nil {
				return err
			}
			verdicts = append(verdicts, *v)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collecting verdicts: %w", err)
	}
	if len(verdicts) == 0 {
		return nil, fmt.Errorf("no verdicts found in %s", runDir)
	}
	sort.Slice(verdicts, func(i, j int) bool {
		return verdicts[i].Cell.Index < verdicts[j].Cell.Index
	})
	return verdicts, nil
}

func Render(verdicts []result.Verdict, format string, w io.Writer) error {
	switch format {
	case "table", "":
		return writeTable(verdicts, w)
	case "markdown":
		return writeMarkdown(verdicts, w)
	case "json":
		return writeJSON(verdicts, w)
	case "csv":
		data, err := encodeCSV(verdicts)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case "html":
		return writeHTML(verdicts, w)
	default:
		return fmt.Errorf("unknown report format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
}

func writeTable(verdicts []result.Verdict, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ARRAY SIZE\tWORKERS\tPRECISION\tTRIALS\tFAILURES\tTIMEOUTS\tOUTCOME")
	fmt.Fprintln(tw, strings.Repeat("-", 72))
	for _, v := range verdicts {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%d\t%d\t%d\t%s\n",
			v.Cell.ArraySize, v.Cell.Workers, result.FormatPrecision(v.Cell.Precision),
			v.Trials, v.Failures, v.Timeouts, v.Outcome)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%s\n", Summarize(verdicts))
	return err
}

func writeMarkdown(verdicts []result.Verdict, w io.Writer) error {
	fmt.Fprintln(w, "| Array size | Workers | Precision | Trials | Outcome | First mismatch |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|")
	for _, v := range verdicts {
		fmt.Fprintf(w, "| %d | %d | %s | %d | %s | %s |\n",
			v.Cell.ArraySize, v.Cell.Workers, result.FormatPrecision(v.Cell.Precision),
			v.Trials, v.Outcome, escapeCell(v.Mismatch))
	}
	_, err := fmt.Fprintf(w, "\n%s\n", Summarize(verdicts))
	return err
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func writeJSON(verdicts []result.Verdict, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Summary  Summary          `json:"summary"`
		Verdicts []result.Verdict `json:"verdicts"`
	}{Summarize(verdicts), verdicts})
}

func writeHTML(verdicts []result.Verdict, w io.Writer) error {
	var md bytes.Buffer
	if err := writeMarkdown(verdicts, &md); err != nil {
		return err
	}
	gm := goldmark.New(goldmark.WithExtensions(extension.Table))
	if err := gm.Convert(md.Bytes(), w); err != nil {
		return fmt.Errorf("rendering html: %w", err)
	}
	return nil
}
