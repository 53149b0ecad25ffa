package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/xtxerr/gemrate/internal/types"
)

// ReadFile reads all ticks from one archive file.
func ReadFile(path string) ([]types.Tick, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	pf, err := parquet.OpenFile(f, info.Size(), parquet.ReadBufferSize(1024*1024))
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[TickRow](pf)
	defer reader.Close()

	rows := make([]TickRow, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read rows: %w", err)
	}

	ticks := make([]types.Tick, n)
	for i := 0; i < n; i++ {
		ticks[i] = types.Tick{Timestamp: rows[i].Timestamp, Rate: rows[i].Rate}
	}
	return ticks, nil
}

// Files lists the archive files of kind in timestamp order.
func Files(dir string, kind types.Kind) ([]string, error) {
	kindDir := filepath.Join(dir, kind.String())
	entries, err := os.ReadDir(kindDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list archive: %w", err)
	}

	type file struct {
		first int64
		path  string
	}
	var files []file
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".parquet") {
			continue
		}
		var first, last int64
		if _, err := fmt.Sscanf(e.Name(), "%d-%d.parquet", &first, &last); err != nil {
			continue
		}
		files = append(files, file{first: first, path: filepath.Join(kindDir, e.Name())})
	}

	slices.SortFunc(files, func(a, b file) int {
		switch {
		case a.first < b.first:
			return -1
		case a.first > b.first:
			return 1
		default:
			return strings.Compare(a.path, b.path)
		}
	})

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.path
	}
	return paths, nil
}

// ReadAll reads every archived tick of kind strictly after the cursor
// (all ticks when after is nil), sorted by timestamp with duplicate
// timestamps removed.
func ReadAll(dir string, kind types.Kind, after *int64) ([]types.Tick, error) {
	paths, err := Files(dir, kind)
	if err != nil {
		return nil, err
	}

	var ticks []types.Tick
	for _, path := range paths {
		batch, err := ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
		for _, t := range batch {
			if after == nil || t.Timestamp > *after {
				ticks = append(ticks, t)
			}
		}
	}

	slices.SortStableFunc(ticks, func(a, b types.Tick) int {
		switch {
		case a.Timestamp < b.Timestamp:
			return -1
		case a.Timestamp > b.Timestamp:
			return 1
		default:
			return 0
		}
	})
	return slices.CompactFunc(ticks, func(a, b types.Tick) bool {
		return a.Timestamp == b.Timestamp
	}), nil
}
