package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
	"github.com/xtxerr/gemrate/internal/types"
)

// Options configures the archive writer.
type Options struct {
	// Compression algorithm
	Compression CompressionType
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// DefaultOptions returns default archive options.
func DefaultOptions() Options {
	return Options{
		Compression: CompressionZstd,
	}
}

// ParseCompressionType parses a compression type string.
func ParseCompressionType(s string) (CompressionType, error) {
	switch s {
	case "snappy":
		return CompressionSnappy, nil
	case "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	case "gzip":
		return CompressionGzip, nil
	case "none", "":
		return CompressionNone, nil
	default:
		return CompressionZstd, fmt.Errorf("unknown compression %q", s)
	}
}

// getCompression returns the parquet-go compression codec.
func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// TickRow is one archived tick.
type TickRow struct {
	Timestamp int64 `parquet:"timestamp,delta"`
	Rate      int64 `parquet:"rate"`
}

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = fmt.Errorf("archive writer is closed")

// Writer archives tick batches. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	dir    string
	opts   Options
	closed bool

	stats WriterStats
}

// WriterStats holds archive writer statistics.
type WriterStats struct {
	FilesWritten int64
	RowsWritten  int64
	Errors       int64
}

// NewWriter creates an archive writer rooted at dir.
func NewWriter(dir string, opts Options) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &Writer{dir: dir, opts: opts}, nil
}

// Dir returns the archive root directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Write archives one batch of ticks for kind. Empty batches are ignored.
func (w *Writer) Write(kind types.Kind, ticks []types.Tick) error {
	if len(ticks) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	path := filepath.Join(w.dir, kind.String(),
		fmt.Sprintf("%d-%d.parquet", ticks[0].Timestamp, ticks[len(ticks)-1].Timestamp))

	if err := w.writeFile(path, ticks); err != nil {
		w.stats.Errors++
		return err
	}

	w.stats.FilesWritten++
	w.stats.RowsWritten += int64(len(ticks))
	return nil
}

// writeFile writes to a temporary file and renames it into place so
// readers never observe a partial file.
func (w *Writer) writeFile(path string, ticks []types.Tick) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	rows := make([]TickRow, len(ticks))
	for i, t := range ticks {
		rows[i] = TickRow{Timestamp: t.Timestamp, Rate: t.Rate}
	}

	pw := parquet.NewGenericWriter[TickRow](f, parquet.Compression(getCompression(w.opts.Compression)))
	if _, err := pw.Write(rows); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("close writer: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// Stats returns writer statistics.
func (w *Writer) Stats() WriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Close closes the writer.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}
