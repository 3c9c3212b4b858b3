// Package intake turns a chat message into admission attempts: extract ids,
// resolve metadata, ask the policy engine, log every attempt and compose a reply.
package intake

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"spoticord/internal/core"
	"spoticord/internal/history"
	"spoticord/internal/i18n"
	"spoticord/internal/policy"
)

// MetadataLookup resolves a track and its primary artist.
type MetadataLookup interface {
	Lookup(ctx context.Context, trackID string) (core.TrackInfo, core.ArtistInfo, error)
}

// Admitter is the policy engine as seen by the pipeline.
type Admitter interface {
	Admit(ctx context.Context, cand core.CandidateTrack, playlistID string, isTest bool, hist policy.HistoryReader) policy.Decision
	Force(ctx context.Context, cand core.CandidateTrack, playlistID string, isTest bool) policy.Decision
}

// HistoryLog is the log the attempt is checked against and recorded in.
type HistoryLog interface {
	policy.HistoryReader
	Append(e history.Entry) (history.Entry, error)
}

// Submission is one chat message offered for intake.
type Submission struct {
	MessageID  string
	User       string
	Text       string
	PlaylistID string
	IsTest     bool
	Force      bool
}

// Outcome is the logged result of one candidate and the reply it earned.
// An empty Response means nothing should be said.
type Outcome struct {
	Entry    history.Entry
	Decision policy.Decision
	Track    core.TrackInfo
	Response string
}

type Pipeline struct {
	extractor *Extractor
	metadata  MetadataLookup
	admitter  Admitter
	localizer *i18n.Localizer
	region    string
	now       func() time.Time
	logger    *zap.Logger
}

func NewPipeline(extractor *Extractor, metadata MetadataLookup, admitter Admitter,
	localizer *i18n.Localizer, region string, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		extractor: extractor,
		metadata:  metadata,
		admitter:  admitter,
		localizer: localizer,
		region:    region,
		now:       time.Now,
		logger:    logger,
	}
}

// SetClock replaces the time source used for entry timestamps.
func (p *Pipeline) SetClock(now func() time.Time) {
	p.now = now
}

// Process handles every candidate in the message, in order. Each candidate
// produces exactly one history entry. The only error is a failed append.
func (p *Pipeline) Process(ctx context.Context, sub Submission, log HistoryLog) ([]Outcome, error) {
	attempt := uuid.NewString()
	logger := p.logger.With(
		zap.String("attempt", attempt),
		zap.String("messageID", sub.MessageID),
		zap.String("user", sub.User),
		zap.Bool("test", sub.IsTest),
		zap.Bool("force", sub.Force))

	ids := p.extractor.TrackIDs(sub.Text)
	if len(ids) == 0 {
		if !p.extractor.LooksLikeLink(sub.Text) {
			return nil, nil
		}
		logger.Info("Link-like message without a track id")
		outcome, err := p.record(log, p.unparseable(sub))
		if err != nil {
			return nil, err
		}
		return []Outcome{outcome}, nil
	}

	outcomes := make([]Outcome, 0, len(ids))
	for _, id := range ids {
		outcome := p.attempt(ctx, sub, id, log, logger)
		stored, err := p.record(log, outcome)
		if err != nil {
			return outcomes, err
		}
		logger.Info("Intake attempt finished",
			zap.String("trackID", id),
			zap.String("verdict", stored.Entry.Verdict.String()),
			zap.String("entryID", stored.Entry.ID))
		outcomes = append(outcomes, stored)
	}
	return outcomes, nil
}

func (p *Pipeline) attempt(ctx context.Context, sub Submission, trackID string, log HistoryLog, logger *zap.Logger) Outcome {
	entry := history.Entry{
		Time:    p.now(),
		User:    sub.User,
		TrackID: trackID,
	}

	track, artist, err := p.metadata.Lookup(ctx, trackID)
	if err != nil {
		logger.Warn("Metadata lookup failed", zap.String("trackID", trackID), zap.Error(err))
		entry.Verdict = core.VerdictRemoteFailure
		entry.Note = "metadata: " + singleLine(err.Error())
		return Outcome{
			Entry:    entry,
			Decision: policy.Decision{Verdict: core.VerdictRemoteFailure, Err: err},
			Response: p.respond(core.VerdictRemoteFailure, policy.Decision{}, core.CandidateTrack{}, sub.IsTest),
		}
	}

	cand := core.NewCandidate(track, artist)
	entry.TrackName = cand.Title
	entry.Artist = cand.ArtistName
	entry.URI = cand.URI

	var decision policy.Decision
	if sub.Force {
		decision = p.admitter.Force(ctx, cand, sub.PlaylistID, sub.IsTest)
	} else {
		decision = p.admitter.Admit(ctx, cand, sub.PlaylistID, sub.IsTest, log)
	}

	entry.Verdict = decision.Verdict
	switch decision.Verdict {
	case core.VerdictDuplicate:
		entry.Ref = decision.PriorEntryID
	case core.VerdictContentBlocked:
		entry.Note = "rating " + strconv.FormatFloat(decision.Rating, 'f', 2, 64)
	case core.VerdictRemoteFailure:
		if decision.Err != nil {
			entry.Note = "playlist: " + singleLine(decision.Err.Error())
		}
	}

	return Outcome{
		Entry:    entry,
		Decision: decision,
		Track:    track,
		Response: p.respond(decision.Verdict, decision, cand, sub.IsTest),
	}
}

func (p *Pipeline) unparseable(sub Submission) Outcome {
	return Outcome{
		Entry: history.Entry{
			Time:    p.now(),
			User:    sub.User,
			Verdict: core.VerdictUnparseableLink,
			Note:    singleLine(sub.Text),
		},
		Decision: policy.Decision{Verdict: core.VerdictUnparseableLink},
		Response: p.respond(core.VerdictUnparseableLink, policy.Decision{}, core.CandidateTrack{}, sub.IsTest),
	}
}

func (p *Pipeline) record(log HistoryLog, outcome Outcome) (Outcome, error) {
	stored, err := log.Append(outcome.Entry)
	if err != nil {
		return outcome, fmt.Errorf("failed to record intake attempt: %w", err)
	}
	outcome.Entry = stored
	return outcome, nil
}

// respond maps a verdict to its reply. It never changes what was logged.
func (p *Pipeline) respond(v core.Verdict, d policy.Decision, cand core.CandidateTrack, isTest bool) string {
	switch v {
	case core.VerdictAdded:
		return ""
	case core.VerdictForceAdded:
		return p.localizer.T("verdict.force_added")
	case core.VerdictDuplicate:
		if isTest {
			return p.localizer.T("verdict.duplicate_test", d.PriorAdder)
		}
		return p.localizer.T("verdict.duplicate", d.PriorAdder)
	case core.VerdictRegionBlocked:
		return p.localizer.T("verdict.region_blocked", p.region)
	case core.VerdictContentBlocked:
		return p.localizer.T("verdict.content_blocked", cand.ArtistName)
	case core.VerdictRemoteFailure:
		return p.localizer.T("verdict.remote_failure")
	case core.VerdictUnparseableLink:
		return p.localizer.T("verdict.unparseable")
	default:
		return p.localizer.T("error.generic")
	}
}

func singleLine(s string) string {
	s = strings.ReplaceAll(s, "\r", `\r`)
	return strings.ReplaceAll(s, "\n", `\n`)
}
