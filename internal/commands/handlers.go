package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"spoticord/internal/chat"
	"spoticord/internal/core"
	"spoticord/internal/history"
	"spoticord/internal/stats"
)

// DefaultRating is stored when !onTheList is given no usable rating.
const DefaultRating = 1.0

var ratingPattern = regexp.MustCompile(`^\s+([0-9.]+)`)

func (r *Router) blame(ctx context.Context, req *Request) error {
	return r.annotate(ctx, req, core.AnnotationBlame)
}

func (r *Router) praise(ctx context.Context, req *Request) error {
	return r.annotate(ctx, req, core.AnnotationPraise)
}

// annotate credits every successful addition of each linked track. A self
// blame is logged twice; a self praise is refused.
func (r *Router) annotate(ctx context.Context, req *Request, kind core.Annotation) error {
	l := r.deps.Localizer
	author := req.Message.SenderName

	ids := r.deps.Extractor.TrackIDs(req.Message.Text)
	if len(ids) == 0 {
		r.reply(ctx, req, l.T("command.need_track"))
		return nil
	}

	for _, id := range ids {
		entries := r.deps.History.SuccessfulFor(id)
		if len(entries) == 0 {
			if kind == core.AnnotationBlame {
				r.reply(ctx, req, l.T("command.blame_none"))
			} else {
				r.reply(ctx, req, l.T("command.praise_none"))
			}
			continue
		}

		for _, original := range entries {
			self := original.User == author
			copies := 1
			switch {
			case kind == core.AnnotationPraise && self:
				r.reply(ctx, req, l.T("command.praise_self"))
				continue
			case kind == core.AnnotationPraise:
				r.reply(ctx, req, l.T("command.praise", original.User, original.TrackName, original.Artist))
			case self:
				r.reply(ctx, req, l.T("command.blame_self", original.TrackName, original.Artist))
				copies = 2
			default:
				r.reply(ctx, req, l.T("command.blame", original.User, original.TrackName, original.Artist))
			}

			for i := 0; i < copies; i++ {
				if _, err := r.deps.History.Append(annotation(original, kind, author, r.now)); err != nil {
					return fmt.Errorf("failed to record %s: %w", strings.ToLower(kind.String()), err)
				}
			}
		}
	}
	return nil
}

func annotation(original history.Entry, kind core.Annotation, author string, now func() time.Time) history.Entry {
	verb := "Blame"
	if kind == core.AnnotationPraise {
		verb = "Praise"
	}
	return history.Entry{
		Time:       now(),
		User:       original.User,
		Annotation: kind,
		TrackID:    original.TrackID,
		TrackName:  original.TrackName,
		Artist:     original.Artist,
		URI:        original.URI,
		Note:       verb + " from " + author,
		Ref:        original.ID,
	}
}

// onTheList rates each artist in the message. A number after an id is its
// rating; without one the artist gets DefaultRating.
func (r *Router) onTheList(ctx context.Context, req *Request) error {
	l := r.deps.Localizer
	text := r.deps.Extractor.Normalize(req.Message.Text)

	ids := r.deps.Extractor.ArtistIDs(text)
	if len(ids) == 0 {
		r.reply(ctx, req, l.T("command.list_usage"))
		return nil
	}

	for _, id := range ids {
		name := r.artistName(ctx, id)

		if current, ok := r.deps.Ratings.Get(id); ok {
			r.reply(ctx, req, l.T("command.list_existing", name, formatRating(current)))
			continue
		}

		rating, defaulted := parseRating(text, id)
		if rating < 0 || rating > 1 {
			r.reply(ctx, req, l.T("command.list_usage"))
			continue
		}
		if err := r.deps.Ratings.Set(id, rating); err != nil {
			return fmt.Errorf("failed to store rating: %w", err)
		}

		suffix := ""
		if defaulted {
			suffix = l.T("command.list_defaulted")
		}
		r.reply(ctx, req, l.T("command.list_added", name, formatRating(rating), suffix))
	}
	return nil
}

func parseRating(text, artistID string) (float64, bool) {
	i := strings.Index(text, artistID)
	if i < 0 {
		return DefaultRating, true
	}
	m := ratingPattern.FindStringSubmatch(text[i+len(artistID):])
	if m == nil {
		return DefaultRating, true
	}
	rating, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return DefaultRating, true
	}
	return rating, false
}

func formatRating(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// artistName falls back to the id when the catalog cannot name the artist.
func (r *Router) artistName(ctx context.Context, artistID string) string {
	artist, err := r.deps.Metadata.LookupArtist(ctx, artistID)
	if err != nil || artist.Name == "" {
		r.logger.Debug("Could not resolve artist name", zap.String("artistID", artistID), zap.Error(err))
		return artistID
	}
	return artist.Name
}

func (r *Router) checkArtist(ctx context.Context, req *Request) error {
	l := r.deps.Localizer

	ids := r.deps.Extractor.ArtistIDs(req.Message.Text)
	if len(ids) == 0 {
		r.reply(ctx, req, l.T("command.no_artist"))
		return nil
	}

	for _, id := range ids {
		artist, err := r.deps.Metadata.LookupArtist(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to look up artist %s: %w", id, err)
		}
		r.reply(ctx, req, l.T("command.check_artist",
			artist.Name, artist.Followers, artist.Popularity, strings.Join(artist.Genres, ", ")))
		if rating, ok := r.deps.Ratings.Get(id); ok {
			r.reply(ctx, req, l.T("command.check_artist_on", artist.Name, formatRating(rating)))
		}
	}
	return nil
}

func (r *Router) stats(ctx context.Context, req *Request) error {
	l := r.deps.Localizer
	text := strings.TrimSpace(req.Message.Text)
	args := strings.TrimSpace(text[len(Prefix+"stats"):])

	kind, ok := stats.ParseKind(args)
	if !ok {
		names := make([]string, 0, len(stats.Kinds()))
		for _, k := range stats.Kinds() {
			names = append(names, string(k))
		}
		r.reply(ctx, req, l.T("stats.usage", strings.Join(names, "|")))
		return nil
	}

	report, err := r.deps.Stats.Compute(ctx, kind, r.deps.History.Entries(), stats.ParseOptions(args))
	if err != nil {
		return fmt.Errorf("failed to compute %s stats: %w", kind, err)
	}
	if len(report.Rows) == 0 {
		r.reply(ctx, req, l.T("stats.empty"))
		return nil
	}
	r.reply(ctx, req, l.T("stats.header", string(kind))+"\n"+report.Lines())
	return nil
}

// data uploads the production history. Frontends without file support get a
// pointer to the HTTP download instead.
func (r *Router) data(ctx context.Context, req *Request) error {
	var buf bytes.Buffer
	if _, err := r.deps.History.WriteTo(&buf); err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}

	count := len(r.deps.History.Entries())
	err := req.Frontend.SendFile(ctx, req.Message.ChatID, filepath.Base(r.deps.History.Path()), &buf,
		r.deps.Localizer.T("command.data_caption", count))
	if errors.Is(err, chat.ErrUnsupported) {
		r.reply(ctx, req, r.deps.Localizer.T("command.data_unsupported", count))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to send history: %w", err)
	}
	return nil
}

// playlist replies with a random sample of successful additions.
func (r *Router) playlist(ctx context.Context, req *Request) error {
	entries := r.deps.History.QuerySuccessful()
	if len(entries) == 0 {
		r.reply(ctx, req, r.deps.Localizer.T("command.playlist_empty"))
		return nil
	}

	n := min(SampleSize, len(entries))
	// partial Fisher-Yates: the first n positions end up a uniform sample
	for i := 0; i < n; i++ {
		j := i + r.deps.Rand.IntN(len(entries)-i)
		entries[i], entries[j] = entries[j], entries[i]
	}

	lines := make([]string, 0, n)
	for _, e := range entries[:n] {
		lines = append(lines, " - "+e.TrackName+" - "+e.Artist)
	}
	r.reply(ctx, req, r.deps.Localizer.T("command.playlist_sample", strings.Join(lines, "\n")))
	return nil
}

// validate lists playlist tracks that no successful history entry accounts for.
func (r *Router) validate(ctx context.Context, req *Request) error {
	l := r.deps.Localizer
	if req.PlaylistID == "" {
		r.reply(ctx, req, l.T("command.no_playlist"))
		return nil
	}

	callCtx, cancel := r.remote(ctx)
	defer cancel()

	items, err := r.deps.Playlists.GetPlaylistTracks(callCtx, req.PlaylistID)
	if err != nil {
		return &core.RemoteError{Op: "get playlist tracks", Err: err}
	}

	var missing []string
	for _, item := range items {
		if len(r.deps.History.SuccessfulFor(item.TrackID)) == 0 {
			missing = append(missing, fmt.Sprintf(" - %s - %s (%s, %s)",
				item.Name, item.Artist, item.TrackID, item.AddedAt.Format("2006-01-02")))
		}
	}

	r.logger.Info("Validated playlist",
		zap.String("playlistID", req.PlaylistID),
		zap.Int("tracks", len(items)),
		zap.Int("missing", len(missing)))

	if len(missing) == 0 {
		r.reply(ctx, req, l.T("command.validate_ok", len(items)))
		return nil
	}
	r.reply(ctx, req, l.T("command.validate_missing", len(missing), strings.Join(missing, "\n")))
	return nil
}

func (r *Router) listCommands(ctx context.Context, req *Request) error {
	names := make([]string, 0, len(r.commands))
	for _, name := range r.Names() {
		names = append(names, Prefix+name)
	}
	r.reply(ctx, req, r.deps.Localizer.T("command.commands", strings.Join(names, ", ")))
	return nil
}

func (r *Router) refresh(ctx context.Context, req *Request) error {
	r.reply(ctx, req, r.deps.Localizer.T("command.refresh"))
	r.requestShutdown(ShutdownRefresh)
	return nil
}

func (r *Router) kill(ctx context.Context, req *Request) error {
	r.reply(ctx, req, r.deps.Localizer.T("command.kill"))
	r.requestShutdown(ShutdownKill)
	return nil
}

func (r *Router) requestShutdown(reason Shutdown) {
	r.logger.Info("Shutdown requested", zap.String("reason", string(reason)))
	if r.deps.Shutdown != nil {
		r.deps.Shutdown(reason)
	}
}
