package metacache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"spoticord/internal/core"
)

// Snapshot is the full persisted cache.
type Snapshot struct {
	Tracks  map[string]core.TrackInfo  `yaml:"tracks"`
	Artists map[string]core.ArtistInfo `yaml:"artists"`
}

func newSnapshot() *Snapshot {
	return &Snapshot{
		Tracks:  make(map[string]core.TrackInfo),
		Artists: make(map[string]core.ArtistInfo),
	}
}

// Store persists the whole cache at once.
type Store interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
}

// FileStore keeps the cache in a single YAML document that is rewritten on every save.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load returns an empty snapshot when the file does not exist yet.
func (s *FileStore) Load(_ context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return newSnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	snap := newSnapshot()
	if err := yaml.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("corrupt cache file %s: %w", s.path, err)
	}
	if snap.Tracks == nil {
		snap.Tracks = make(map[string]core.TrackInfo)
	}
	if snap.Artists == nil {
		snap.Artists = make(map[string]core.ArtistInfo)
	}
	return snap, nil
}

// Save writes to a temporary file and renames it over the old one.
func (s *FileStore) Save(_ context.Context, snap *Snapshot) error {
	data, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode cache: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".cache-*.yml")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cache: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	return nil
}
