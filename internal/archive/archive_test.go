package archive

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/xtxerr/gemrate/internal/types"
)

func TestWriteAndReadFile(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWriter(dir, DefaultOptions())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	ticks := []types.Tick{
		{Timestamp: 1700000000, Rate: 2500},
		{Timestamp: 1700000300, Rate: 2510},
		{Timestamp: 1700000600, Rate: 2490},
	}
	if err := w.Write(types.KindGemToGold, ticks); err != nil {
		t.Fatalf("Write: %v", err)
	}

	path := filepath.Join(dir, "gem_to_gold", "1700000000-1700000600.parquet")
	stat, err := os.Stat(path)
	if err != nil {
		t.Fatalf("file should exist: %v", err)
	}
	if stat.Size() == 0 {
		t.Error("file should not be empty")
	}

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !reflect.DeepEqual(got, ticks) {
		t.Errorf("ReadFile = %v, want %v", got, ticks)
	}

	stats := w.Stats()
	if stats.FilesWritten != 1 || stats.RowsWritten != 3 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestReadFileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "1-2.parquet")
	if err := os.WriteFile(path, []byte("not a parquet file"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFile(path); err == nil {
		t.Error("expected error for a file without parquet footer")
	}
	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.parquet")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestReadAllMergesBatches(t *testing.T) {
	dir := t.TempDir()

	for _, ct := range []string{"snappy", "gzip", "none"} {
		t.Run(ct, func(t *testing.T) {
			compression, err := ParseCompressionType(ct)
			if err != nil {
				t.Fatalf("ParseCompressionType: %v", err)
			}
			w, err := NewWriter(filepath.Join(dir, ct), Options{Compression: compression})
			if err != nil {
				t.Fatalf("NewWriter: %v", err)
			}

			// Written out of order and overlapping on purpose.
			batches := [][]types.Tick{
				{{Timestamp: 300, Rate: 3}, {Timestamp: 400, Rate: 4}},
				{{Timestamp: 100, Rate: 1}, {Timestamp: 200, Rate: 2}},
				{{Timestamp: 400, Rate: 4}, {Timestamp: 500, Rate: 5}},
			}
			for _, b := range batches {
				if err := w.Write(types.KindGoldToGem, b); err != nil {
					t.Fatalf("Write: %v", err)
				}
			}
			if err := w.Write(types.KindGoldToGem, nil); err != nil {
				t.Fatalf("Write(nil): %v", err)
			}

			all, err := ReadAll(w.Dir(), types.KindGoldToGem, nil)
			if err != nil {
				t.Fatalf("ReadAll: %v", err)
			}
			if len(all) != 5 {
				t.Fatalf("expected 5 unique ticks, got %v", all)
			}
			for i := 1; i < len(all); i++ {
				if all[i].Timestamp <= all[i-1].Timestamp {
					t.Fatalf("not ascending: %v", all)
				}
			}

			cursor := int64(200)
			after, err := ReadAll(w.Dir(), types.KindGoldToGem, &cursor)
			if err != nil {
				t.Fatalf("ReadAll after: %v", err)
			}
			if len(after) != 3 || after[0].Timestamp != 300 {
				t.Errorf("ReadAll after 200 = %v", after)
			}

			other, err := ReadAll(w.Dir(), types.KindGemToGold, nil)
			if err != nil || len(other) != 0 {
				t.Errorf("other kind should be empty: %v, %v", other, err)
			}
		})
	}
}

func TestWriterClosed(t *testing.T) {
	w, err := NewWriter(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	w.Close()

	err = w.Write(types.KindGemToGold, []types.Tick{{Timestamp: 1, Rate: 1}})
	if err != ErrWriterClosed {
		t.Errorf("expected ErrWriterClosed, got %v", err)
	}
}

func TestParseCompressionType(t *testing.T) {
	tests := map[string]CompressionType{
		"":       CompressionNone,
		"none":   CompressionNone,
		"snappy": CompressionSnappy,
		"zstd":   CompressionZstd,
		"lz4":    CompressionLZ4,
		"gzip":   CompressionGzip,
	}
	for in, want := range tests {
		got, err := ParseCompressionType(in)
		if err != nil || got != want {
			t.Errorf("ParseCompressionType(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseCompressionType("brotli"); err == nil {
		t.Error("expected error for unknown codec")
	}
}
