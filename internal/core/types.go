package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Verdict is the outcome of a single intake attempt for one candidate track.
type Verdict int

const (
	// VerdictAdded means the track passed every check and was appended to the playlist
	VerdictAdded Verdict = iota + 1
	// VerdictForceAdded means a moderator bypassed the checks and the append succeeded
	VerdictForceAdded
	// VerdictDuplicate means the track was already successfully added before
	VerdictDuplicate
	// VerdictRegionBlocked means the track is not playable in the required region
	VerdictRegionBlocked
	// VerdictContentBlocked means the artist rating gate rejected the track
	VerdictContentBlocked
	// VerdictRemoteFailure means a catalog or playlist call failed or timed out
	VerdictRemoteFailure
	// VerdictUnparseableLink means the message looked like a link but no id could be extracted
	VerdictUnparseableLink
)

// Labels written to the history file. They match the files produced by earlier releases.
var verdictLabels = map[Verdict]string{
	VerdictAdded:           "Added",
	VerdictForceAdded:      "Forcefully Added",
	VerdictDuplicate:       "Repeat",
	VerdictRegionBlocked:   "Wrong Market",
	VerdictContentBlocked:  "Failed Vibes",
	VerdictRemoteFailure:   "Failed",
	VerdictUnparseableLink: "Failed Regex",
}

var verdictMetricLabels = map[Verdict]string{
	VerdictAdded:           "added",
	VerdictForceAdded:      "force_added",
	VerdictDuplicate:       "duplicate",
	VerdictRegionBlocked:   "region_blocked",
	VerdictContentBlocked:  "content_blocked",
	VerdictRemoteFailure:   "remote_failure",
	VerdictUnparseableLink: "unparseable_link",
}

// AllVerdicts lists every verdict in declaration order.
func AllVerdicts() []Verdict {
	return []Verdict{
		VerdictAdded,
		VerdictForceAdded,
		VerdictDuplicate,
		VerdictRegionBlocked,
		VerdictContentBlocked,
		VerdictRemoteFailure,
		VerdictUnparseableLink,
	}
}

// WasSuccessful reports whether the track ended up in the playlist.
func (v Verdict) WasSuccessful() bool {
	return v == VerdictAdded || v == VerdictForceAdded
}

// Valid reports whether v is one of the declared verdicts.
func (v Verdict) Valid() bool {
	_, ok := verdictLabels[v]
	return ok
}

func (v Verdict) String() string {
	if label, ok := verdictLabels[v]; ok {
		return label
	}
	return fmt.Sprintf("Verdict(%d)", int(v))
}

// MetricLabel returns a snake_case label suitable for Prometheus.
func (v Verdict) MetricLabel() string {
	if label, ok := verdictMetricLabels[v]; ok {
		return label
	}
	return "unknown"
}

// ParseVerdict maps a stored label back to its verdict.
func ParseVerdict(label string) (Verdict, error) {
	for v, l := range verdictLabels {
		if l == label {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown verdict %q", label)
}

// Annotation is a correction entry that points at an earlier history entry.
type Annotation int

const (
	// AnnotationBlame records that someone blamed the original adder
	AnnotationBlame Annotation = iota + 1
	// AnnotationPraise records that someone praised the original adder
	AnnotationPraise
)

func (a Annotation) String() string {
	switch a {
	case AnnotationBlame:
		return "Blamed"
	case AnnotationPraise:
		return "Praised"
	default:
		return fmt.Sprintf("Annotation(%d)", int(a))
	}
}

// ParseAnnotation maps a stored label back to its annotation kind.
func ParseAnnotation(label string) (Annotation, error) {
	switch label {
	case "Blamed":
		return AnnotationBlame, nil
	case "Praised":
		return AnnotationPraise, nil
	default:
		return 0, fmt.Errorf("unknown annotation %q", label)
	}
}

// ArtistRef is the minimal artist reference carried on a track.
type ArtistRef struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// AlbumInfo keeps the album fields the bot reports on.
type AlbumInfo struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	ReleaseDate string `yaml:"release_date" json:"release_date"`
	// Markets is dropped before a track is cached.
	Markets []string `yaml:"markets,omitempty" json:"markets,omitempty"`
}

// TrackInfo is the cached snapshot of a catalog track.
type TrackInfo struct {
	ID          string      `yaml:"id" json:"id"`
	Name        string      `yaml:"name" json:"name"`
	URI         string      `yaml:"uri" json:"uri"`
	URL         string      `yaml:"url,omitempty" json:"url,omitempty"`
	DurationMS  int         `yaml:"duration_ms" json:"duration_ms"`
	Popularity  int         `yaml:"popularity" json:"popularity"`
	Explicit    bool        `yaml:"explicit" json:"explicit"`
	Markets     []string    `yaml:"markets,omitempty" json:"markets,omitempty"`
	Album       AlbumInfo   `yaml:"album" json:"album"`
	Artists     []ArtistRef `yaml:"artists" json:"artists"`
}

// PrimaryArtistID returns the id of the first credited artist, if any.
func (t TrackInfo) PrimaryArtistID() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0].ID
}

// ArtistIDs returns every credited artist id in credit order.
func (t TrackInfo) ArtistIDs() []string {
	ids := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		ids = append(ids, a.ID)
	}
	return ids
}

// Duration converts DurationMS to a time.Duration.
func (t TrackInfo) Duration() time.Duration {
	return time.Duration(t.DurationMS) * time.Millisecond
}

// ArtistInfo is the cached snapshot of a catalog artist.
type ArtistInfo struct {
	ID         string   `yaml:"id" json:"id"`
	Name       string   `yaml:"name" json:"name"`
	URI        string   `yaml:"uri,omitempty" json:"uri,omitempty"`
	Popularity int      `yaml:"popularity" json:"popularity"`
	Followers  int      `yaml:"followers" json:"followers"`
	Genres     []string `yaml:"genres,omitempty" json:"genres,omitempty"`
}

// CandidateTrack is the per-message view of a track under admission.
type CandidateTrack struct {
	TrackID    string
	Title      string
	ArtistName string
	URI        string
	Markets    []string
	ArtistIDs  []string
}

// NewCandidate builds a candidate from cached metadata.
func NewCandidate(track TrackInfo, artist ArtistInfo) CandidateTrack {
	name := artist.Name
	if name == "" && len(track.Artists) > 0 {
		name = track.Artists[0].Name
	}
	return CandidateTrack{
		TrackID:    track.ID,
		Title:      track.Name,
		ArtistName: name,
		URI:        track.URI,
		Markets:    track.Markets,
		ArtistIDs:  track.ArtistIDs(),
	}
}

// PlaylistItem is a track currently present in a remote playlist.
type PlaylistItem struct {
	TrackID string
	Name    string
	Artist  string
	AddedAt time.Time
}

// Catalog is the remote music catalog the bot reads from and writes to.
type Catalog interface {
	GetTrack(ctx context.Context, trackID string) (*TrackInfo, error)
	GetArtist(ctx context.Context, artistID string) (*ArtistInfo, error)
	AddToPlaylist(ctx context.Context, playlistID, trackID string) error
	GetPlaylistTracks(ctx context.Context, playlistID string) ([]PlaylistItem, error)
}

// ErrRemote marks failures of the catalog or playlist service, including timeouts.
var ErrRemote = errors.New("remote call failed")

// RemoteError wraps a failed remote operation.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() []error {
	return []error{ErrRemote, e.Err}
}

// NewRemoteError wraps err unless it is nil or already a RemoteError.
func NewRemoteError(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return err
	}
	return &RemoteError{Op: op, Err: err}
}

// IsRemote reports whether err came from a remote call.
func IsRemote(err error) bool {
	return errors.Is(err, ErrRemote)
}
