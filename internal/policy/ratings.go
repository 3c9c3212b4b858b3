package policy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Ratings is the moderated artist table ("the list"). A rating is the
// probability, in [0, 1], that a track by that artist is turned away.
type Ratings struct {
	path string

	mutex   sync.RWMutex
	ratings map[string]float64
}

// LoadRatings reads the table at path. A missing file is an empty table.
func LoadRatings(path string) (*Ratings, error) {
	r := &Ratings{path: path, ratings: make(map[string]float64)}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ratings: %w", err)
	}
	if err := yaml.Unmarshal(data, &r.ratings); err != nil {
		return nil, fmt.Errorf("corrupt ratings file %s: %w", path, err)
	}
	if r.ratings == nil {
		r.ratings = make(map[string]float64)
	}
	// older tables hold unbounded values; the gate treats them like the bounds
	for id, v := range r.ratings {
		r.ratings[id] = min(max(v, 0), 1)
	}
	return r, nil
}

// Get returns the rating for one artist.
func (r *Ratings) Get(artistID string) (float64, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	v, ok := r.ratings[artistID]
	return v, ok
}

// Max returns the highest rating among artistIDs, 0 when none is listed.
func (r *Ratings) Max(artistIDs []string) float64 {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	highest := 0.0
	for _, id := range artistIDs {
		if v, ok := r.ratings[id]; ok && v > highest {
			highest = v
		}
	}
	return highest
}

// Set stores a rating and rewrites the whole file.
func (r *Ratings) Set(artistID string, rating float64) error {
	if rating < 0 || rating > 1 {
		return fmt.Errorf("rating must be between 0 and 1, got %v", rating)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	previous, existed := r.ratings[artistID]
	r.ratings[artistID] = rating
	if err := r.save(); err != nil {
		if existed {
			r.ratings[artistID] = previous
		} else {
			delete(r.ratings, artistID)
		}
		return err
	}
	return nil
}

// IDs returns every listed artist id, sorted.
func (r *Ratings) IDs() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	ids := make([]string, 0, len(r.ratings))
	for id := range r.ratings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Ratings) save() error {
	data, err := yaml.Marshal(r.ratings)
	if err != nil {
		return fmt.Errorf("failed to encode ratings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("failed to create ratings directory: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write ratings: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("failed to replace ratings: %w", err)
	}
	return nil
}
