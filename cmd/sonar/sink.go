package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/velemoonkon/sonar/pkg/output"
	"github.com/velemoonkon/sonar/pkg/scanner"
)

// named is implemented by hosts that remember the name they were resolved
// from.
type named interface {
	Name() string
}

func createOutputWriter(filename, format string) (output.RecordWriter, error) {
	switch strings.ToLower(format) {
	case "parquet":
		if filename == "-" || filename == "" {
			return nil, fmt.Errorf("parquet cannot write to stdout, use -o alive.parquet")
		}
		pw, err := output.NewParquetWriter(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to create parquet writer: %w", err)
		}
		return pw, nil

	case "jsonl", "":
		jw, err := output.NewJSONLWriter(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to create writer: %w", err)
		}
		return jw, nil

	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}

// drainAlive writes every alive host taken from c until the finish
// sentinel, and returns how many were written.
func drainAlive(ctx context.Context, c *scanner.Consumer, w output.RecordWriter, session int, timeout time.Duration) (int, error) {
	for {
		h, err := c.Next(ctx, timeout)
		switch {
		case errors.Is(err, scanner.ErrFinished):
			return w.Count(), nil
		case errors.Is(err, scanner.ErrNoHost):
			slog.Debug("no alive host yet, detection still running")
			continue
		case err != nil:
			return w.Count(), err
		}

		rec := &output.Record{
			Seq:        w.Count() + 1,
			IP:         h.String(),
			Session:    session,
			DetectedAt: time.Now().UTC(),
		}
		if n, ok := h.(named); ok {
			rec.Hostname = n.Name()
		}
		if err := w.Write(rec); err != nil {
			return w.Count(), fmt.Errorf("failed to write alive host: %w", err)
		}
		slog.Debug("alive", "ip", rec.IP)
	}
}
