// Package metacache memoizes catalog metadata for tracks and artists and keeps it
// across restarts. Entries are written once and never expire.
package metacache

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"spoticord/internal/core"
)

// Fetcher is the part of the catalog the cache reads from.
type Fetcher interface {
	GetTrack(ctx context.Context, trackID string) (*core.TrackInfo, error)
	GetArtist(ctx context.Context, artistID string) (*core.ArtistInfo, error)
}

// Stats are cumulative lookup counters.
type Stats struct {
	Hits        uint64
	Misses      uint64
	RemoteCalls uint64
	Tracks      int
	Artists     int
}

// Cache is safe for concurrent use. The mutex guards the maps and persistence
// and is never held across a remote call.
type Cache struct {
	fetcher Fetcher
	store   Store
	timeout time.Duration
	logger  *zap.Logger

	mutex   sync.Mutex
	tracks  map[string]core.TrackInfo
	artists map[string]core.ArtistInfo

	group singleflight.Group

	hits        atomic.Uint64
	misses      atomic.Uint64
	remoteCalls atomic.Uint64
}

// New creates an empty cache. Call Load before use to restore persisted entries.
func New(fetcher Fetcher, store Store, timeout time.Duration, logger *zap.Logger) *Cache {
	return &Cache{
		fetcher: fetcher,
		store:   store,
		timeout: timeout,
		logger:  logger,
		tracks:  make(map[string]core.TrackInfo),
		artists: make(map[string]core.ArtistInfo),
	}
}

// Load replaces the in-memory cache with the persisted snapshot.
func (c *Cache) Load(ctx context.Context) error {
	snap, err := c.store.Load(ctx)
	if err != nil {
		return err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.tracks = snap.Tracks
	c.artists = snap.Artists

	c.logger.Info("Loaded metadata cache",
		zap.Int("tracks", len(c.tracks)),
		zap.Int("artists", len(c.artists)))
	return nil
}

// Lookup returns the track and its primary artist, fetching and persisting
// whatever is missing. Nothing is stored unless every fetch succeeds.
func (c *Cache) Lookup(ctx context.Context, trackID string) (core.TrackInfo, core.ArtistInfo, error) {
	if track, artist, ok := c.cachedPair(trackID); ok {
		c.hits.Add(1)
		return track, artist, nil
	}
	c.misses.Add(1)

	_, err, _ := c.group.Do("track:"+trackID, func() (any, error) {
		return nil, c.fillTrack(ctx, trackID)
	})
	if err != nil {
		return core.TrackInfo{}, core.ArtistInfo{}, err
	}

	track, artist, ok := c.cachedPair(trackID)
	if !ok {
		return core.TrackInfo{}, core.ArtistInfo{}, fmt.Errorf("track %s missing after fill", trackID)
	}
	return track, artist, nil
}

// LookupArtist returns a single artist, fetching and persisting it on a miss.
func (c *Cache) LookupArtist(ctx context.Context, artistID string) (core.ArtistInfo, error) {
	if artist, ok := c.CachedArtist(artistID); ok {
		c.hits.Add(1)
		return artist, nil
	}
	c.misses.Add(1)

	_, err, _ := c.group.Do("artist:"+artistID, func() (any, error) {
		if _, ok := c.CachedArtist(artistID); ok {
			return nil, nil
		}
		artist, err := c.fetchArtist(ctx, artistID)
		if err != nil {
			return nil, err
		}
		return nil, c.commit(ctx, nil, artist)
	})
	if err != nil {
		return core.ArtistInfo{}, err
	}

	artist, ok := c.CachedArtist(artistID)
	if !ok {
		return core.ArtistInfo{}, fmt.Errorf("artist %s missing after fill", artistID)
	}
	return artist, nil
}

// CachedTrack returns a track only if it is already cached.
func (c *Cache) CachedTrack(trackID string) (core.TrackInfo, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	t, ok := c.tracks[trackID]
	return cloneTrack(t), ok
}

// CachedArtist returns an artist only if it is already cached.
func (c *Cache) CachedArtist(artistID string) (core.ArtistInfo, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	a, ok := c.artists[artistID]
	return cloneArtist(a), ok
}

// Stats returns the current counters and sizes.
func (c *Cache) Stats() Stats {
	c.mutex.Lock()
	tracks, artists := len(c.tracks), len(c.artists)
	c.mutex.Unlock()

	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		RemoteCalls: c.remoteCalls.Load(),
		Tracks:      tracks,
		Artists:     artists,
	}
}

func (c *Cache) cachedPair(trackID string) (core.TrackInfo, core.ArtistInfo, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	track, ok := c.tracks[trackID]
	if !ok {
		return core.TrackInfo{}, core.ArtistInfo{}, false
	}
	artistID := track.PrimaryArtistID()
	if artistID == "" {
		return cloneTrack(track), core.ArtistInfo{}, true
	}
	artist, ok := c.artists[artistID]
	if !ok {
		return core.TrackInfo{}, core.ArtistInfo{}, false
	}
	return cloneTrack(track), cloneArtist(artist), true
}

func (c *Cache) fillTrack(ctx context.Context, trackID string) error {
	track, cached := c.CachedTrack(trackID)
	if !cached {
		fetched, err := c.fetchTrack(ctx, trackID)
		if err != nil {
			return err
		}
		track = *fetched
	}

	var artist *core.ArtistInfo
	if artistID := track.PrimaryArtistID(); artistID != "" {
		if _, ok := c.CachedArtist(artistID); !ok {
			fetched, err := c.fetchArtist(ctx, artistID)
			if err != nil {
				return err
			}
			artist = fetched
		}
	}

	if cached {
		return c.commit(ctx, nil, artist)
	}
	return c.commit(ctx, &track, artist)
}

func (c *Cache) fetchTrack(ctx context.Context, trackID string) (*core.TrackInfo, error) {
	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.remoteCalls.Add(1)
	track, err := c.fetcher.GetTrack(rctx, trackID)
	if err != nil {
		c.logger.Warn("Track lookup failed", zap.String("trackID", trackID), zap.Error(err))
		return nil, core.NewRemoteError("get track "+trackID, err)
	}

	stripped := cloneTrack(*track)
	stripped.Album.Markets = nil
	// relinked tracks come back under a different id; key by what was asked for
	stripped.ID = trackID
	return &stripped, nil
}

func (c *Cache) fetchArtist(ctx context.Context, artistID string) (*core.ArtistInfo, error) {
	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.remoteCalls.Add(1)
	artist, err := c.fetcher.GetArtist(rctx, artistID)
	if err != nil {
		c.logger.Warn("Artist lookup failed", zap.String("artistID", artistID), zap.Error(err))
		return nil, core.NewRemoteError("get artist "+artistID, err)
	}
	a := cloneArtist(*artist)
	return &a, nil
}

// commit inserts absent entries and persists. On a persist failure the
// inserted entries are removed again so memory matches the store.
func (c *Cache) commit(ctx context.Context, track *core.TrackInfo, artist *core.ArtistInfo) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var insertedTrack, insertedArtist string
	if track != nil {
		if _, ok := c.tracks[track.ID]; !ok {
			c.tracks[track.ID] = *track
			insertedTrack = track.ID
		}
	}
	if artist != nil {
		if _, ok := c.artists[artist.ID]; !ok {
			c.artists[artist.ID] = *artist
			insertedArtist = artist.ID
		}
	}
	if insertedTrack == "" && insertedArtist == "" {
		return nil
	}

	snap := &Snapshot{Tracks: c.tracks, Artists: c.artists}
	if err := c.store.Save(ctx, snap); err != nil {
		if insertedTrack != "" {
			delete(c.tracks, insertedTrack)
		}
		if insertedArtist != "" {
			delete(c.artists, insertedArtist)
		}
		return fmt.Errorf("failed to persist metadata cache: %w", err)
	}

	c.logger.Debug("Persisted metadata cache",
		zap.String("trackID", insertedTrack),
		zap.String("artistID", insertedArtist))
	return nil
}

func cloneTrack(t core.TrackInfo) core.TrackInfo {
	t.Markets = slices.Clone(t.Markets)
	t.Artists = slices.Clone(t.Artists)
	t.Album.Markets = slices.Clone(t.Album.Markets)
	return t
}

func cloneArtist(a core.ArtistInfo) core.ArtistInfo {
	a.Genres = slices.Clone(a.Genres)
	return a
}
