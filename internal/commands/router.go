// Package commands implements the "!" chat commands: blame and praise
// annotations, artist moderation, statistics and operator controls.
package commands

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"spoticord/internal/chat"
	"spoticord/internal/core"
	"spoticord/internal/history"
	"spoticord/internal/i18n"
	"spoticord/internal/intake"
	"spoticord/internal/stats"
)

// Prefix starts every command.
const Prefix = "!"

// SampleSize is how many tracks !playlist shows.
const SampleSize = 10

// Shutdown is an operator request to stop the process.
type Shutdown string

const (
	ShutdownKill    Shutdown = "kill"
	ShutdownRefresh Shutdown = "refresh"
)

// Metadata resolves catalog details through the cache.
type Metadata interface {
	Lookup(ctx context.Context, trackID string) (core.TrackInfo, core.ArtistInfo, error)
	LookupArtist(ctx context.Context, artistID string) (core.ArtistInfo, error)
}

// RatingStore is the moderation list of artist ratings.
type RatingStore interface {
	Get(artistID string) (float64, bool)
	Set(artistID string, rating float64) error
}

// PlaylistReader lists the tracks currently in a remote playlist.
type PlaylistReader interface {
	GetPlaylistTracks(ctx context.Context, playlistID string) ([]core.PlaylistItem, error)
}

// HistoryLog is the production log commands read and annotate.
type HistoryLog interface {
	Entries() []history.Entry
	QuerySuccessful() []history.Entry
	SuccessfulFor(trackID string) []history.Entry
	SuccessCount() int
	Append(e history.Entry) (history.Entry, error)
	WriteTo(w io.Writer) (int64, error)
	Path() string
}

// Rand picks sample positions. *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
}

// Request is one command message and the frontend it arrived on.
type Request struct {
	Message  *chat.Message
	Frontend chat.Frontend
	// PlaylistID is empty when the chat has no playlist mapping.
	PlaylistID string
}

// Deps are the components commands operate on.
type Deps struct {
	Config        *core.Config
	Extractor     *intake.Extractor
	Metadata      Metadata
	Ratings       RatingStore
	Playlists     PlaylistReader
	History       HistoryLog
	Stats         *stats.Calculator
	Localizer     *i18n.Localizer
	Rand          Rand
	Shutdown      func(Shutdown)
	RemoteTimeout time.Duration
}

type handlerFunc func(ctx context.Context, req *Request) error

type command struct {
	name      string
	pattern   *regexp.Regexp
	moderator bool
	run       handlerFunc
}

// Router matches a message against the command table, first match wins.
type Router struct {
	deps     Deps
	now      func() time.Time
	logger   *zap.Logger
	commands []command
}

func NewRouter(deps Deps, logger *zap.Logger) *Router {
	r := &Router{
		deps:   deps,
		now:    time.Now,
		logger: logger,
	}
	r.commands = []command{
		r.newCommand("blame", false, r.blame),
		r.newCommand("praise", false, r.praise),
		r.newCommand("checkArtist", false, r.checkArtist),
		r.newCommand("validate", false, r.validate),
		r.newCommand("commands", false, r.listCommands),
		r.newCommand("data", false, r.data),
		r.newCommand("kill", true, r.kill),
		r.newCommand("onTheList", true, r.onTheList),
		r.newCommand("refresh", true, r.refresh),
		r.newCommand("stats", false, r.stats),
		r.newCommand("playlist", false, r.playlist),
	}
	return r
}

func (r *Router) newCommand(name string, moderator bool, run handlerFunc) command {
	return command{
		name:      name,
		pattern:   regexp.MustCompile(`(?i)^` + regexp.QuoteMeta(Prefix+name)),
		moderator: moderator,
		run:       run,
	}
}

// SetClock replaces the time source used for annotation timestamps.
func (r *Router) SetClock(now func() time.Time) {
	r.now = now
}

// Names lists the command names in table order.
func (r *Router) Names() []string {
	names := make([]string, 0, len(r.commands))
	for _, c := range r.commands {
		names = append(names, c.name)
	}
	return names
}

// IsCommand reports whether text should be routed here.
func IsCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), Prefix)
}

// Handle runs the first matching command and reports whether one matched.
// Unknown commands get a hint unless the message is a force request.
func (r *Router) Handle(ctx context.Context, req *Request) bool {
	text := strings.TrimSpace(req.Message.Text)
	logger := r.logger.With(
		zap.String("messageID", req.Message.ID),
		zap.String("chatID", req.Message.ChatID),
		zap.String("sender", req.Message.SenderName))

	for _, c := range r.commands {
		if !c.pattern.MatchString(text) {
			continue
		}

		if c.moderator && !r.deps.Config.IsModerator(req.Message.SenderID, req.Message.SenderName) {
			logger.Info("Rejected moderator command", zap.String("command", c.name))
			r.reply(ctx, req, r.deps.Localizer.T("bot.not_moderator"))
			return true
		}

		logger.Info("Running command", zap.String("command", c.name))
		if err := c.run(ctx, req); err != nil {
			logger.Error("Command failed", zap.String("command", c.name), zap.Error(err))
			if errors.Is(err, core.ErrRemote) {
				r.reply(ctx, req, r.deps.Localizer.T("error.remote"))
			} else {
				r.reply(ctx, req, r.deps.Localizer.T("error.generic"))
			}
		}
		return true
	}

	if !strings.Contains(text, Prefix+"force") {
		r.reply(ctx, req, r.deps.Localizer.T("bot.unknown_command"))
	}
	return false
}

func (r *Router) reply(ctx context.Context, req *Request, text string) {
	if text == "" {
		return
	}
	if _, err := req.Frontend.SendText(ctx, req.Message.ChatID, req.Message.ID, text); err != nil {
		r.logger.Warn("Failed to send command reply",
			zap.String("chatID", req.Message.ChatID),
			zap.Error(err))
	}
}

// remote bounds a catalog call made on behalf of a command.
func (r *Router) remote(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.deps.RemoteTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.deps.RemoteTimeout)
}
