package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/velemoonkon/sonar/pkg/scanner"
)

// ReportWriter writes the summary of a detection run in "json" or
// "markdown" format
type ReportWriter struct {
	file   *os.File
	writer *bufio.Writer
	format string
}

// NewReportWriter creates a report writer to the specified file
// Use "-" for stdout
func NewReportWriter(filename, format string) (*ReportWriter, error) {
	format = strings.ToLower(format)
	if format != "json" && format != "markdown" {
		return nil, fmt.Errorf("unsupported report format %q", format)
	}

	file := os.Stdout
	if filename != "-" && filename != "" {
		var err error
		file, err = os.Create(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to create report file: %w", err)
		}
	}

	return &ReportWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, 8*1024),
		format: format,
	}, nil
}

// NewReportWriterFromWriter creates a report writer from an existing io.Writer
func NewReportWriterFromWriter(w io.Writer, format string) *ReportWriter {
	return &ReportWriter{
		writer: bufio.NewWriterSize(w, 8*1024),
		format: strings.ToLower(format),
	}
}

// WriteReport renders r and flushes it
func (rw *ReportWriter) WriteReport(r *scanner.Report) error {
	var err error
	if rw.format == "markdown" {
		err = rw.writeMarkdown(r)
	} else {
		err = rw.writeJSON(r)
	}
	if err != nil {
		return err
	}
	return rw.writer.Flush()
}

// Close flushes and closes the report file
func (rw *ReportWriter) Close() error {
	if err := rw.writer.Flush(); err != nil {
		return err
	}
	if rw.file != nil && rw.file != os.Stdout {
		return rw.file.Close()
	}
	return nil
}

type reportJSON struct {
	Started   string      `json:"started"`
	Duration  string      `json:"duration"`
	Targets   int         `json:"targets"`
	States    []string    `json:"states"`
	Phases    []phaseJSON `json:"phases"`
	Alive     []string    `json:"alive"`
	Remaining []string    `json:"remaining"`
}

type phaseJSON struct {
	scanner.PhaseStats
	Duration string `json:"duration"`
}

func (rw *ReportWriter) writeJSON(r *scanner.Report) error {
	out := reportJSON{
		Started:   r.Started.Format(time.RFC3339),
		Duration:  r.Duration.Round(time.Millisecond).String(),
		Targets:   r.Targets,
		States:    make([]string, 0, len(r.States)),
		Phases:    make([]phaseJSON, 0, len(r.Phases)),
		Alive:     nonNil(r.Alive),
		Remaining: nonNil(r.Remaining),
	}
	for _, s := range r.States {
		out.States = append(out.States, s.String())
	}
	for _, p := range r.Phases {
		out.Phases = append(out.Phases, phaseJSON{PhaseStats: p, Duration: p.Duration.Round(time.Millisecond).String()})
	}

	enc := json.NewEncoder(rw.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func (rw *ReportWriter) writeMarkdown(r *scanner.Report) error {
	w := rw.writer
	fmt.Fprintf(w, "# Sonar Report\n\n")
	fmt.Fprintf(w, "**Started:** %s\n\n", r.Started.Format(time.RFC3339))
	fmt.Fprintf(w, "**Targets:** %d, **alive:** %d\n\n", r.Targets, len(r.Alive))

	fmt.Fprintf(w, "| phase | targets | probes | failed | skipped | confirmed | duration |\n")
	fmt.Fprintf(w, "|-------|---------|--------|--------|---------|-----------|----------|\n")
	for _, p := range r.Phases {
		fmt.Fprintf(w, "| %s | %d | %d | %d | %d | %d | %s |\n",
			p.Name, p.Targets, p.Probes, p.Failed, p.Skipped, p.Confirmed, p.Duration.Round(time.Millisecond))
	}

	for _, p := range r.Phases {
		if p.CaptureError != "" {
			fmt.Fprintf(w, "\n> %s capture failed: %s\n", p.Name, p.CaptureError)
		}
	}

	if len(r.Alive) > 0 {
		fmt.Fprintf(w, "\n## Alive\n\n")
		for _, ip := range r.Alive {
			fmt.Fprintf(w, "- %s\n", ip)
		}
	}

	_, err := fmt.Fprintf(w, "\n**Duration:** %s\n", r.Duration.Round(time.Millisecond))
	return err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
