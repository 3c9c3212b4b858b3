// Package policy decides whether a candidate track may enter the playlist.
package policy

import (
	"context"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"spoticord/internal/core"
	"spoticord/internal/history"
)

// HistoryReader answers whether a track was already added.
type HistoryReader interface {
	FirstSuccessful(trackID string) (history.Entry, bool)
}

// RatingSource gives the highest rating among a track's artists.
type RatingSource interface {
	Max(artistIDs []string) float64
}

// Mutator appends a track to a playlist.
type Mutator interface {
	Append(ctx context.Context, trackID, playlistID string, isTest bool) error
}

// RandomSource yields floats in [0, 1). *rand.Rand satisfies it.
type RandomSource interface {
	Float64() float64
}

// Decision is the engine's answer for one candidate.
type Decision struct {
	Verdict core.Verdict
	// PriorAdder and PriorEntryID identify the original entry of a duplicate.
	PriorAdder   string
	PriorEntryID string
	// Rating is the artist rating consulted by the content gate.
	Rating float64
	// Err is the remote error behind a RemoteFailure.
	Err error
}

type Engine struct {
	config  core.PolicyConfig
	ratings RatingSource
	mutator Mutator
	logger  *zap.Logger

	rngMutex sync.Mutex
	rng      RandomSource
}

func NewEngine(config core.PolicyConfig, ratings RatingSource, mutator Mutator, rng RandomSource, logger *zap.Logger) *Engine {
	return &Engine{
		config:  config,
		ratings: ratings,
		mutator: mutator,
		rng:     rng,
		logger:  logger,
	}
}

// Evaluate runs the duplicate, region and content checks in that order and
// reports the first rejection. It has no side effects on the playlist.
func (e *Engine) Evaluate(cand core.CandidateTrack, hist HistoryReader) (Decision, bool) {
	if prior, ok := hist.FirstSuccessful(cand.TrackID); ok {
		return Decision{
			Verdict:      core.VerdictDuplicate,
			PriorAdder:   prior.User,
			PriorEntryID: prior.ID,
		}, true
	}

	if e.config.RegionCheck && !availableIn(cand.Markets, e.config.Region) {
		return Decision{Verdict: core.VerdictRegionBlocked}, true
	}

	rating := e.ratings.Max(cand.ArtistIDs)
	if e.contentBlocked(rating) {
		return Decision{Verdict: core.VerdictContentBlocked, Rating: rating}, true
	}

	return Decision{Rating: rating}, false
}

// Admit evaluates the candidate and appends it to the playlist when every check passes.
func (e *Engine) Admit(ctx context.Context, cand core.CandidateTrack, playlistID string, isTest bool, hist HistoryReader) Decision {
	decision, blocked := e.Evaluate(cand, hist)
	if blocked {
		e.logger.Info("Candidate rejected",
			zap.String("trackID", cand.TrackID),
			zap.String("verdict", decision.Verdict.String()),
			zap.Float64("rating", decision.Rating))
		return decision
	}

	return e.mutate(ctx, cand, playlistID, isTest, core.VerdictAdded, decision)
}

// Force skips every check and appends the candidate.
func (e *Engine) Force(ctx context.Context, cand core.CandidateTrack, playlistID string, isTest bool) Decision {
	e.logger.Info("Force adding candidate", zap.String("trackID", cand.TrackID))
	return e.mutate(ctx, cand, playlistID, isTest, core.VerdictForceAdded, Decision{})
}

func (e *Engine) mutate(ctx context.Context, cand core.CandidateTrack, playlistID string, isTest bool,
	success core.Verdict, decision Decision) Decision {
	if err := e.mutator.Append(ctx, cand.TrackID, playlistID, isTest); err != nil {
		e.logger.Warn("Playlist append failed",
			zap.String("trackID", cand.TrackID),
			zap.String("playlistID", playlistID),
			zap.Error(err))
		decision.Verdict = core.VerdictRemoteFailure
		decision.Err = err
		return decision
	}
	decision.Verdict = success
	return decision
}

func (e *Engine) contentBlocked(rating float64) bool {
	if rating <= 0 {
		return false
	}
	if e.config.ContentGate == core.ContentGateThreshold {
		return rating >= e.config.ContentThreshold
	}
	if rating >= 1 {
		return true
	}

	e.rngMutex.Lock()
	draw := e.rng.Float64()
	e.rngMutex.Unlock()
	return draw < rating
}

// An empty market list means the catalog did not restrict the track.
func availableIn(markets []string, region string) bool {
	if len(markets) == 0 {
		return true
	}
	return slices.ContainsFunc(markets, func(m string) bool {
		return strings.EqualFold(m, region)
	})
}
