package swap

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/lightningnetwork/lnswap/swaperrors"
)

// Store is the sanctioned way to move a TradeRecord into and out of
// the state machine (spec §4.5 — loads and stores are the only
// sanctioned way to move state into and out of C6).
type Store interface {
	Load(id uuid.UUID) (*TradeRecord, error)
	Save(rec *TradeRecord) error
	List() ([]uuid.UUID, error)
	Delete(id uuid.UUID) error
}

// FileStore persists one JSON file per swap-id under a wallet data
// directory, per spec §6 ("Persisted state: one file per swap-id...").
// Every mutation is an atomic replace: writes land in a temp file in
// the same directory, are fsync'd, then renamed over the final path,
// the standard crash-safe blob-replace idiom.
type FileStore struct {
	dir string
}

// NewFileStore opens (creating if necessary) a FileStore rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindFatal, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) pathFor(id uuid.UUID) string {
	return filepath.Join(s.dir, fmt.Sprintf("swap-%s.json", id))
}

// Load reads and decodes the record for id.
func (s *FileStore) Load(id uuid.UUID) (*TradeRecord, error) {
	data, err := os.ReadFile(s.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, swaperrors.New(swaperrors.KindInvalidArgument, "no swap record for %s", id)
		}
		return nil, swaperrors.Wrap(swaperrors.KindChainFailure, err)
	}

	var rec TradeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindFatal, err)
	}
	return &rec, nil
}

// Save atomically replaces the on-disk record, bumping Revision and
// rejecting stale writes with swaperrors.ErrStateConflict (spec §4.5).
func (s *FileStore) Save(rec *TradeRecord) error {
	path := s.pathFor(rec.SwapID)

	if existing, err := os.ReadFile(path); err == nil {
		var onDisk TradeRecord
		if err := json.Unmarshal(existing, &onDisk); err == nil {
			if rec.Revision != 0 && rec.Revision != onDisk.Revision {
				return swaperrors.ErrStateConflict
			}
		}
	}

	rec.Revision++

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return swaperrors.Wrap(swaperrors.KindFatal, err)
	}

	tmp, err := os.CreateTemp(s.dir, "swap-*.tmp")
	if err != nil {
		return swaperrors.Wrap(swaperrors.KindFatal, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return swaperrors.Wrap(swaperrors.KindFatal, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return swaperrors.Wrap(swaperrors.KindFatal, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return swaperrors.Wrap(swaperrors.KindFatal, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return swaperrors.Wrap(swaperrors.KindFatal, err)
	}

	return nil
}

// List enumerates every swap-id with a record on disk.
func (s *FileStore) List() ([]uuid.UUID, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindChainFailure, err)
	}

	var ids []uuid.UUID
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "swap-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		idStr := strings.TrimSuffix(strings.TrimPrefix(name, "swap-"), ".json")
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

// Delete removes the on-disk record for id. Callers are expected to
// only delete archivable (terminal-state) trades (spec §3 Lifecycle).
func (s *FileStore) Delete(id uuid.UUID) error {
	if err := os.Remove(s.pathFor(id)); err != nil && !os.IsNotExist(err) {
		return swaperrors.Wrap(swaperrors.KindChainFailure, err)
	}
	return nil
}
