package output

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

// ParquetRow is the flat Parquet schema of a Record
type ParquetRow struct {
	Seq          int64  `parquet:"seq"`
	IP           string `parquet:"ip,zstd"`
	Hostname     string `parquet:"hostname,zstd"`
	Session      int32  `parquet:"session"`
	DetectedAtMs int64  `parquet:"detected_at_ms"`
}

// ParquetWriter writes alive hosts to a Parquet file
type ParquetWriter struct {
	file   *os.File
	writer *parquet.GenericWriter[ParquetRow]
	count  int
}

// NewParquetWriter creates a Parquet writer with zstd compression
func NewParquetWriter(filename string) (*ParquetWriter, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet file: %w", err)
	}

	writer := parquet.NewGenericWriter[ParquetRow](file,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedDefault}),
		parquet.CreatedBy("sonar", "1.0.0", "go"),
	)

	return &ParquetWriter{
		file:   file,
		writer: writer,
	}, nil
}

// Write converts a Record to a ParquetRow and writes it
func (w *ParquetWriter) Write(rec *Record) error {
	if _, err := w.writer.Write([]ParquetRow{recordToParquetRow(rec)}); err != nil {
		return fmt.Errorf("failed to write parquet row: %w", err)
	}

	w.count++
	return nil
}

// Flush forces buffered data to be written
func (w *ParquetWriter) Flush() error {
	return w.writer.Flush()
}

// Close finalizes and closes the Parquet file
func (w *ParquetWriter) Close() error {
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return w.file.Close()
}

// Count returns the number of rows written
func (w *ParquetWriter) Count() int {
	return w.count
}

func recordToParquetRow(r *Record) ParquetRow {
	row := ParquetRow{
		Seq:      int64(r.Seq),
		IP:       r.IP,
		Hostname: r.Hostname,
		Session:  int32(r.Session),
	}
	if !r.DetectedAt.IsZero() {
		row.DetectedAtMs = r.DetectedAt.UnixMilli()
	}
	return row
}
