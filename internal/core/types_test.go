package core

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestVerdictWasSuccessful(t *testing.T) {
	tests := []struct {
		verdict  Verdict
		expected bool
	}{
		{VerdictAdded, true},
		{VerdictForceAdded, true},
		{VerdictDuplicate, false},
		{VerdictRegionBlocked, false},
		{VerdictContentBlocked, false},
		{VerdictRemoteFailure, false},
		{VerdictUnparseableLink, false},
		{Verdict(0), false},
	}

	for _, tt := range tests {
		t.Run(tt.verdict.String(), func(t *testing.T) {
			if got := tt.verdict.WasSuccessful(); got != tt.expected {
				t.Errorf("WasSuccessful() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseVerdictRoundTrip(t *testing.T) {
	for _, v := range AllVerdicts() {
		parsed, err := ParseVerdict(v.String())
		if err != nil {
			t.Fatalf("ParseVerdict(%q) returned error: %v", v.String(), err)
		}
		if parsed != v {
			t.Errorf("ParseVerdict(%q) = %v, want %v", v.String(), parsed, v)
		}
		if v.MetricLabel() == "unknown" {
			t.Errorf("verdict %v has no metric label", v)
		}
	}

	if _, err := ParseVerdict("Exploded"); err == nil {
		t.Error("expected error for unknown verdict label")
	}
}

func TestParseVerdictLegacyLabels(t *testing.T) {
	legacy := map[string]Verdict{
		"Added":            VerdictAdded,
		"Forcefully Added": VerdictForceAdded,
		"Repeat":           VerdictDuplicate,
		"Wrong Market":     VerdictRegionBlocked,
		"Failed Vibes":     VerdictContentBlocked,
		"Failed":           VerdictRemoteFailure,
		"Failed Regex":     VerdictUnparseableLink,
	}
	for label, want := range legacy {
		got, err := ParseVerdict(label)
		if err != nil || got != want {
			t.Errorf("ParseVerdict(%q) = %v, %v; want %v", label, got, err, want)
		}
	}
}

func TestParseAnnotation(t *testing.T) {
	for _, a := range []Annotation{AnnotationBlame, AnnotationPraise} {
		got, err := ParseAnnotation(a.String())
		if err != nil || got != a {
			t.Errorf("ParseAnnotation(%q) = %v, %v", a.String(), got, err)
		}
	}
	if _, err := ParseAnnotation("Shamed"); err == nil {
		t.Error("expected error for unknown annotation")
	}
}

func TestNewCandidate(t *testing.T) {
	track := TrackInfo{
		ID:         "4uLU6hMCjMI75M1A2tKUQC",
		Name:       "Never Gonna Give You Up",
		URI:        "spotify:track:4uLU6hMCjMI75M1A2tKUQC",
		DurationMS: 213000,
		Markets:    []string{"GB", "US"},
		Artists: []ArtistRef{
			{ID: "0gxyHStUsqpMadRV0Di1Qt", Name: "Rick Astley"},
			{ID: "1234567890123456789012", Name: "Someone Else"},
		},
	}
	artist := ArtistInfo{ID: "0gxyHStUsqpMadRV0Di1Qt", Name: "Rick Astley"}

	c := NewCandidate(track, artist)

	if c.TrackID != track.ID || c.Title != track.Name || c.URI != track.URI {
		t.Errorf("unexpected candidate identity: %+v", c)
	}
	if c.ArtistName != "Rick Astley" {
		t.Errorf("ArtistName = %q", c.ArtistName)
	}
	if len(c.ArtistIDs) != 2 || c.ArtistIDs[1] != "1234567890123456789012" {
		t.Errorf("ArtistIDs = %v", c.ArtistIDs)
	}
	if track.Duration() != 213*time.Second {
		t.Errorf("Duration() = %v", track.Duration())
	}
	if track.PrimaryArtistID() != "0gxyHStUsqpMadRV0Di1Qt" {
		t.Errorf("PrimaryArtistID() = %q", track.PrimaryArtistID())
	}
}

func TestNewCandidateFallsBackToTrackArtistName(t *testing.T) {
	track := TrackInfo{ID: "x", Artists: []ArtistRef{{ID: "a", Name: "From Track"}}}
	c := NewCandidate(track, ArtistInfo{})
	if c.ArtistName != "From Track" {
		t.Errorf("ArtistName = %q, want From Track", c.ArtistName)
	}
}

func TestRemoteError(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewRemoteError("get track", cause)

	if !IsRemote(err) {
		t.Error("expected IsRemote to be true")
	}
	if !errors.Is(err, cause) {
		t.Error("expected the cause to be reachable")
	}

	wrapped := fmt.Errorf("lookup failed: %w", err)
	if !IsRemote(wrapped) {
		t.Error("expected IsRemote through fmt.Errorf wrapping")
	}
	if again := NewRemoteError("other", wrapped); again != wrapped {
		t.Error("expected an existing RemoteError to be returned unchanged")
	}

	if NewRemoteError("noop", nil) != nil {
		t.Error("expected nil for nil cause")
	}
	if IsRemote(cause) {
		t.Error("plain errors must not be remote")
	}
}
