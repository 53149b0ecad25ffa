// Package snapshot persists the durable state of each dataset so a
// restart resumes from the last cursor instead of refetching all history.
//
// File format (little-endian), one file per kind:
//   - Header: 8 bytes magic + 4 bytes version
//   - Record: [4 bytes length][4 bytes crc32][payload]
//
// The payload is protobuf wire format, see encoding.go. Files are replaced
// atomically, so a crash mid-save leaves the previous snapshot intact.
package snapshot

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xtxerr/gemrate/internal/errors"
	"github.com/xtxerr/gemrate/internal/series"
	"github.com/xtxerr/gemrate/internal/types"
)

const (
	snapshotMagic    = 0x47454D534E415001 // "GEMSNAP" + version 1
	snapshotVersion  = 1
	headerSize       = 12 // 8 bytes magic + 4 bytes version
	recordHeaderSize = 8  // 4 bytes length + 4 bytes crc

	// maxRecordSize bounds the payload length read from disk.
	maxRecordSize = 256 * 1024 * 1024
)

// Store reads and writes snapshot files in a directory.
type Store struct {
	mu  sync.Mutex
	dir string

	stats StoreStats
}

// StoreStats holds snapshot store statistics.
type StoreStats struct {
	Saves        int64
	Loads        int64
	BytesWritten int64
	Errors       int64
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Path returns the snapshot file path of kind.
func (s *Store) Path(kind types.Kind) string {
	return filepath.Join(s.dir, kind.String()+".snap")
}

// Save writes the state of kind.
func (s *Store) Save(kind types.Kind, st series.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload := encode(&Snapshot{Kind: kind, SavedAt: time.Now().Unix(), State: st})

	n, err := s.writeFile(s.Path(kind), payload)
	if err != nil {
		s.stats.Errors++
		return fmt.Errorf("save %s snapshot: %w", kind, err)
	}

	s.stats.Saves++
	s.stats.BytesWritten += n
	return nil
}

func (s *Store) writeFile(path string, payload []byte) (int64, error) {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("create: %w", err)
	}

	w := bufio.NewWriterSize(f, 64*1024)

	var header [headerSize]byte
	binary.LittleEndian.PutUint64(header[0:8], snapshotMagic)
	binary.LittleEndian.PutUint32(header[8:12], snapshotVersion)

	var rec [recordHeaderSize]byte
	binary.LittleEndian.PutUint32(rec[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(rec[4:8], crc32.ChecksumIEEE(payload))

	_, err = w.Write(header[:])
	if err == nil {
		_, err = w.Write(rec[:])
	}
	if err == nil {
		_, err = w.Write(payload)
	}
	if err == nil {
		err = w.Flush()
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("write: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("rename: %w", err)
	}
	return int64(headerSize + recordHeaderSize + len(payload)), nil
}

// Load reads the snapshot of kind. It returns false without error when no
// snapshot exists.
func (s *Store) Load(kind types.Kind) (*Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := ReadFile(s.Path(kind))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		s.stats.Errors++
		return nil, false, fmt.Errorf("load %s snapshot: %w", kind, err)
	}
	if snap.Kind != kind {
		s.stats.Errors++
		return nil, false, fmt.Errorf("load %s snapshot: holds %s: %w", kind, snap.Kind, errors.ErrCorruptSnapshot)
	}

	s.stats.Loads++
	return snap, true, nil
}

// Remove deletes the snapshot of kind if present.
func (s *Store) Remove(kind types.Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.Path(kind)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Stats returns store statistics.
func (s *Store) Stats() StoreStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// ReadFile reads and verifies one snapshot file.
func ReadFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)

	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read header: %w: %w", errors.ErrCorruptSnapshot, err)
	}
	if magic := binary.LittleEndian.Uint64(header[0:8]); magic != snapshotMagic {
		return nil, fmt.Errorf("invalid magic %x: %w", magic, errors.ErrCorruptSnapshot)
	}
	if version := binary.LittleEndian.Uint32(header[8:12]); version != snapshotVersion {
		return nil, fmt.Errorf("unsupported version %d: %w", version, errors.ErrCorruptSnapshot)
	}

	var rec [recordHeaderSize]byte
	if _, err := io.ReadFull(r, rec[:]); err != nil {
		return nil, fmt.Errorf("read record header: %w: %w", errors.ErrCorruptSnapshot, err)
	}
	length := binary.LittleEndian.Uint32(rec[0:4])
	expectedCRC := binary.LittleEndian.Uint32(rec[4:8])

	if length > maxRecordSize {
		return nil, fmt.Errorf("record too large (%d bytes): %w", length, errors.ErrCorruptSnapshot)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read payload: %w: %w", errors.ErrCorruptSnapshot, err)
	}
	if actual := crc32.ChecksumIEEE(payload); actual != expectedCRC {
		return nil, fmt.Errorf("CRC mismatch: expected %x, got %x: %w", expectedCRC, actual, errors.ErrCorruptSnapshot)
	}

	snap, err := decode(payload)
	if err != nil {
		return nil, fmt.Errorf("decode: %w: %w", errors.ErrCorruptSnapshot, err)
	}
	return snap, nil
}
