// Package stats computes the leaderboards behind the !stats command. Every
// figure is derived from successful history entries, enriched with cached
// catalog metadata where needed.
package stats

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"spoticord/internal/core"
	"spoticord/internal/history"
)

// Kind names one leaderboard.
type Kind string

const (
	KindPosters    Kind = "posters"
	KindArtists    Kind = "artists"
	KindDuration   Kind = "duration"
	KindMainstream Kind = "mainstream"
	KindPopularity Kind = "popularity"
	KindGenres     Kind = "genres"
	KindBlames     Kind = "blames"
)

// TopCount is how many rows a ranked board shows before ties are appended.
const TopCount = 5

// Kinds lists every leaderboard in display order.
func Kinds() []Kind {
	return []Kind{KindPosters, KindArtists, KindDuration, KindMainstream, KindPopularity, KindGenres, KindBlames}
}

// ParseKind finds the first known kind mentioned in text.
func ParseKind(text string) (Kind, bool) {
	for _, word := range strings.Fields(text) {
		for _, k := range Kinds() {
			if strings.EqualFold(word, string(k)) {
				return k, true
			}
		}
	}
	return "", false
}

// Options tune a board. Boards rank highest first unless Reverse is set.
type Options struct {
	Reverse bool
	// Followers ranks artists by follower count instead of popularity.
	Followers bool
}

// ParseOptions reads the "reverse" and "follower" flags from a command.
func ParseOptions(text string) Options {
	lower := strings.ToLower(text)
	return Options{
		Reverse:   strings.Contains(lower, "reverse"),
		Followers: strings.Contains(lower, "follower"),
	}
}

// Row is one leaderboard line.
type Row struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

func (r Row) String() string {
	if r.Value == math.Trunc(r.Value) {
		return fmt.Sprintf("%s: %d", r.Label, int64(r.Value))
	}
	return fmt.Sprintf("%s: %.2f", r.Label, r.Value)
}

// Report is a titled leaderboard.
type Report struct {
	Kind Kind  `json:"kind"`
	Rows []Row `json:"rows"`
}

// Lines renders the rows one per line.
func (r Report) Lines() string {
	lines := make([]string, 0, len(r.Rows))
	for _, row := range r.Rows {
		lines = append(lines, row.String())
	}
	return strings.Join(lines, "\n")
}

// Metadata resolves the catalog details behind a track.
type Metadata interface {
	Lookup(ctx context.Context, trackID string) (core.TrackInfo, core.ArtistInfo, error)
}

// Calculator builds reports from a snapshot of history entries.
type Calculator struct {
	metadata Metadata
	logger   *zap.Logger
}

func NewCalculator(metadata Metadata, logger *zap.Logger) *Calculator {
	return &Calculator{metadata: metadata, logger: logger}
}

// Compute dispatches to the board named by kind.
func (c *Calculator) Compute(ctx context.Context, kind Kind, entries []history.Entry, opts Options) (Report, error) {
	var rows []Row
	var err error
	switch kind {
	case KindPosters:
		rows = Posters(entries)
	case KindArtists:
		rows = Artists(entries, opts)
	case KindDuration:
		rows, err = c.Duration(ctx, entries, opts)
	case KindMainstream:
		rows, err = c.Mainstream(ctx, entries, opts)
	case KindPopularity:
		rows, err = c.Popularity(ctx, entries, opts)
	case KindGenres:
		rows, err = c.Genres(ctx, entries, opts)
	case KindBlames:
		rows = Blames(entries)
	default:
		return Report{}, fmt.Errorf("unknown stats kind %q", kind)
	}
	if err != nil {
		return Report{}, err
	}
	return Report{Kind: kind, Rows: rows}, nil
}

func successful(entries []history.Entry) []history.Entry {
	out := make([]history.Entry, 0, len(entries))
	for _, e := range entries {
		if e.WasSuccessful() {
			out = append(out, e)
		}
	}
	return out
}

// Posters counts successful additions per user, most first.
func Posters(entries []history.Entry) []Row {
	counts := make(map[string]float64)
	for _, e := range successful(entries) {
		counts[e.User]++
	}
	return rank(counts, false)
}

// Artists counts successful additions per artist.
func Artists(entries []history.Entry, opts Options) []Row {
	counts := make(map[string]float64)
	for _, e := range successful(entries) {
		counts[e.Artist]++
	}
	return topWithTies(rank(counts, opts.Reverse), TopCount)
}

// Blames counts blame annotations against each adder.
func Blames(entries []history.Entry) []Row {
	counts := make(map[string]float64)
	for _, e := range entries {
		if e.Annotation == core.AnnotationBlame {
			counts[e.User]++
		}
	}
	return rank(counts, false)
}

// Duration lists the longest tracks, or the shortest with Reverse, in seconds.
func (c *Calculator) Duration(ctx context.Context, entries []history.Entry, opts Options) ([]Row, error) {
	var rows []Row
	err := c.each(ctx, successful(entries), func(e history.Entry, track core.TrackInfo, _ core.ArtistInfo) {
		rows = append(rows, Row{
			Label: e.TrackName + " - " + e.Artist,
			Value: track.Duration().Seconds(),
		})
	})
	if err != nil {
		return nil, err
	}

	sortRows(rows, opts.Reverse)
	if len(rows) > TopCount {
		rows = rows[:TopCount]
	}
	return rows, nil
}

// Mainstream averages the artist popularity (or followers) of each user's additions.
func (c *Calculator) Mainstream(ctx context.Context, entries []history.Entry, opts Options) ([]Row, error) {
	totals := make(map[string]float64)
	counts := make(map[string]float64)
	err := c.each(ctx, successful(entries), func(e history.Entry, _ core.TrackInfo, artist core.ArtistInfo) {
		totals[e.User] += artistScore(artist, opts)
		counts[e.User]++
	})
	if err != nil {
		return nil, err
	}

	averages := make(map[string]float64, len(totals))
	for user, total := range totals {
		averages[user] = math.Round(total/counts[user]*100) / 100
	}
	return rank(averages, opts.Reverse), nil
}

// Popularity ranks the artists that made it onto the playlist.
func (c *Calculator) Popularity(ctx context.Context, entries []history.Entry, opts Options) ([]Row, error) {
	scores := make(map[string]float64)
	err := c.each(ctx, successful(entries), func(_ history.Entry, _ core.TrackInfo, artist core.ArtistInfo) {
		if _, seen := scores[artist.Name]; !seen {
			scores[artist.Name] = artistScore(artist, opts)
		}
	})
	if err != nil {
		return nil, err
	}
	return topWithTies(rank(scores, opts.Reverse), TopCount), nil
}

// Genres counts genre tags across additions, ignoring one-offs.
func (c *Calculator) Genres(ctx context.Context, entries []history.Entry, opts Options) ([]Row, error) {
	counts := make(map[string]float64)
	err := c.each(ctx, successful(entries), func(_ history.Entry, _ core.TrackInfo, artist core.ArtistInfo) {
		for _, g := range artist.Genres {
			counts[g]++
		}
	})
	if err != nil {
		return nil, err
	}
	for g, n := range counts {
		if n <= 1 {
			delete(counts, g)
		}
	}
	return topWithTies(rank(counts, opts.Reverse), TopCount), nil
}

// each resolves metadata for every entry. Entries whose metadata cannot be
// fetched are skipped; a cancelled context aborts.
func (c *Calculator) each(ctx context.Context, entries []history.Entry,
	fn func(history.Entry, core.TrackInfo, core.ArtistInfo)) error {
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		track, artist, err := c.metadata.Lookup(ctx, e.TrackID)
		if err != nil {
			c.logger.Debug("Skipping entry without metadata",
				zap.String("trackID", e.TrackID),
				zap.Error(err))
			continue
		}
		fn(e, track, artist)
	}
	return nil
}

func artistScore(artist core.ArtistInfo, opts Options) float64 {
	if opts.Followers {
		return float64(artist.Followers)
	}
	return float64(artist.Popularity)
}

func rank(values map[string]float64, ascending bool) []Row {
	rows := make([]Row, 0, len(values))
	for label, v := range values {
		rows = append(rows, Row{Label: label, Value: v})
	}
	sortRows(rows, ascending)
	return rows
}

// sortRows orders by value, breaking ties by label so output is stable.
func sortRows(rows []Row, ascending bool) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Value != rows[j].Value {
			if ascending {
				return rows[i].Value < rows[j].Value
			}
			return rows[i].Value > rows[j].Value
		}
		return rows[i].Label < rows[j].Label
	})
}

// topWithTies keeps the first n rows plus any rows tied with the n-th,
// never more than 2n.
func topWithTies(rows []Row, n int) []Row {
	if len(rows) <= n {
		return rows
	}
	cut := rows[n-1].Value
	end := n
	for end < len(rows) && end < 2*n && rows[end].Value == cut {
		end++
	}
	return rows[:end]
}
