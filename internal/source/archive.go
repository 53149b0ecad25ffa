package source

import (
	"context"

	"github.com/xtxerr/gemrate/internal/archive"
	"github.com/xtxerr/gemrate/internal/types"
)

// ArchiveSource replays ticks from a Parquet archive directory, e.g. one
// written by a dataset's archiver on another host.
type ArchiveSource struct {
	dir string
}

// NewArchive returns a source reading from dir.
func NewArchive(dir string) *ArchiveSource {
	return &ArchiveSource{dir: dir}
}

// Name returns "archive".
func (s *ArchiveSource) Name() string {
	return "archive"
}

// FetchTicksSince implements Source.
func (s *ArchiveSource) FetchTicksSince(ctx context.Context, kind types.Kind, cursor *int64) ([]types.Tick, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify(err, s.Name())
	}
	ticks, err := archive.ReadAll(s.dir, kind, cursor)
	if err != nil {
		return nil, classify(err, s.Name())
	}
	return ticks, nil
}

// Close is a no-op.
func (s *ArchiveSource) Close() error {
	return nil
}
