package intake

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"spoticord/internal/core"
)

// Extractor pulls catalog ids out of free chat text.
type Extractor struct {
	track  *regexp.Regexp
	artist *regexp.Regexp
	loose  *regexp.Regexp
}

// NewExtractor compiles the configured patterns. The track and artist patterns
// must capture the id in a group.
func NewExtractor(patterns core.PatternConfig) (*Extractor, error) {
	track, err := regexp.Compile(patterns.Track)
	if err != nil {
		return nil, fmt.Errorf("invalid track pattern: %w", err)
	}
	artist, err := regexp.Compile(patterns.Artist)
	if err != nil {
		return nil, fmt.Errorf("invalid artist pattern: %w", err)
	}
	loose, err := regexp.Compile(patterns.Loose)
	if err != nil {
		return nil, fmt.Errorf("invalid loose pattern: %w", err)
	}
	return &Extractor{track: track, artist: artist, loose: loose}, nil
}

// Normalize folds compatibility characters so lookalike glyphs still match.
func (x *Extractor) Normalize(text string) string {
	return strings.TrimSpace(norm.NFKC.String(text))
}

// TrackIDs returns every track id in order of appearance, repeats included.
func (x *Extractor) TrackIDs(text string) []string {
	return captures(x.track, x.Normalize(text))
}

// ArtistIDs returns every artist id in order of appearance.
func (x *Extractor) ArtistIDs(text string) []string {
	return captures(x.artist, x.Normalize(text))
}

// LooksLikeLink reports whether text resembles a track link even if no id was found.
func (x *Extractor) LooksLikeLink(text string) bool {
	return x.loose.MatchString(x.Normalize(text))
}

func captures(re *regexp.Regexp, text string) []string {
	var ids []string
	for _, match := range re.FindAllStringSubmatch(text, -1) {
		for _, group := range match[1:] {
			if group != "" {
				ids = append(ids, group)
				break
			}
		}
	}
	return ids
}
