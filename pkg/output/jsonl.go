package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// JSONLWriter streams alive hosts as JSON Lines. Every record is flushed
// as soon as it is written, so `tail -f` on the file or a pipe into jq sees
// hosts while detection is still running.
type JSONLWriter struct {
	buf    *bufio.Writer
	enc    *json.Encoder
	closer io.Closer // nil for stdout and caller-owned writers
	count  int
}

// NewJSONLWriter opens filename for writing; "-" or "" means stdout.
func NewJSONLWriter(filename string) (*JSONLWriter, error) {
	if filename == "-" || filename == "" {
		return NewJSONLWriterTo(os.Stdout), nil
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	w := NewJSONLWriterTo(f)
	w.closer = f
	return w, nil
}

// NewJSONLWriterTo writes to w, which stays open on Close.
func NewJSONLWriterTo(w io.Writer) *JSONLWriter {
	buf := bufio.NewWriter(w)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return &JSONLWriter{buf: buf, enc: enc}
}

func (w *JSONLWriter) Write(rec *Record) error {
	// Encode terminates each value with a newline.
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to encode record %s: %w", rec.IP, err)
	}
	w.count++
	return w.buf.Flush()
}

func (w *JSONLWriter) Flush() error {
	return w.buf.Flush()
}

func (w *JSONLWriter) Close() error {
	if err := w.buf.Flush(); err != nil {
		return err
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}

func (w *JSONLWriter) Count() int {
	return w.count
}
