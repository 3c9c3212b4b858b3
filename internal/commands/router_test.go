package commands

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"spoticord/internal/chat"
	"spoticord/internal/core"
	"spoticord/internal/history"
	"spoticord/internal/i18n"
	"spoticord/internal/intake"
	"spoticord/internal/policy"
	"spoticord/internal/stats"
)

const (
	trackOne  = "4uLU6hMCjMI75M1A2tKUQC"
	trackTwo  = "7GhIk7Il098yCjg4BQjzvb"
	artistOne = "0gxyHStUsqpMadRV0Di1Qt"
	artistTwo = "1dfeR4HaWDbWqFHLkxsg1d"
)

func link(id string) string {
	return "https://open.spotify.com/track/" + id + "?si=abc"
}

type sentFile struct {
	name    string
	data    string
	caption string
}

type fakeFrontend struct {
	mu          sync.Mutex
	texts       []string
	files       []sentFile
	unsupported bool
}

func (f *fakeFrontend) Name() string { return "fake" }

func (f *fakeFrontend) Start(context.Context) error { return nil }

func (f *fakeFrontend) Listen(context.Context, func(*chat.Message)) error { return nil }

func (f *fakeFrontend) SendText(_ context.Context, _, _, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return "reply", nil
}

func (f *fakeFrontend) SendFile(_ context.Context, _, filename string, data io.Reader, caption string) error {
	if f.unsupported {
		return chat.ErrUnsupported
	}
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files = append(f.files, sentFile{name: filename, data: string(body), caption: caption})
	return nil
}

func (f *fakeFrontend) React(context.Context, string, string, chat.Reaction) error { return nil }

func (f *fakeFrontend) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type fakeMetadata struct {
	tracks  map[string]core.TrackInfo
	artists map[string]core.ArtistInfo
}

func (m *fakeMetadata) Lookup(_ context.Context, id string) (core.TrackInfo, core.ArtistInfo, error) {
	t, ok := m.tracks[id]
	if !ok {
		return core.TrackInfo{}, core.ArtistInfo{}, &core.RemoteError{Op: "get track", Err: errors.New("not found")}
	}
	return t, m.artists[t.PrimaryArtistID()], nil
}

func (m *fakeMetadata) LookupArtist(_ context.Context, id string) (core.ArtistInfo, error) {
	a, ok := m.artists[id]
	if !ok {
		return core.ArtistInfo{}, &core.RemoteError{Op: "get artist", Err: errors.New("not found")}
	}
	return a, nil
}

type fakePlaylists struct {
	items []core.PlaylistItem
	err   error
}

func (p *fakePlaylists) GetPlaylistTracks(context.Context, string) ([]core.PlaylistItem, error) {
	return p.items, p.err
}

// firstRand always picks the lowest remaining position.
type firstRand struct{}

func (firstRand) IntN(int) int { return 0 }

type harness struct {
	router    *Router
	frontend  *fakeFrontend
	log       *history.Log
	ratings   *policy.Ratings
	playlists *fakePlaylists
	config    *core.Config
	shutdowns []Shutdown
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()

	log, err := history.Open(filepath.Join(dir, "user_data.csv"), zap.NewNop())
	require.NoError(t, err)
	ratings, err := policy.LoadRatings(filepath.Join(dir, "ratings.yml"))
	require.NoError(t, err)
	extractor, err := intake.NewExtractor(core.DefaultConfig().Patterns)
	require.NoError(t, err)

	meta := &fakeMetadata{
		tracks: map[string]core.TrackInfo{
			trackOne: {ID: trackOne, Name: "Never Gonna Give You Up", DurationMS: 213000,
				Artists: []core.ArtistRef{{ID: artistOne, Name: "Rick Astley"}}},
		},
		artists: map[string]core.ArtistInfo{
			artistOne: {ID: artistOne, Name: "Rick Astley", Popularity: 77, Followers: 4000000, Genres: []string{"dance pop", "new wave pop"}},
			artistTwo: {ID: artistTwo, Name: "Nickelback", Popularity: 60},
		},
	}

	h := &harness{
		frontend:  &fakeFrontend{},
		log:       log,
		ratings:   ratings,
		playlists: &fakePlaylists{},
		config:    core.DefaultConfig(),
	}
	h.router = NewRouter(Deps{
		Config:    h.config,
		Extractor: extractor,
		Metadata:  meta,
		Ratings:   ratings,
		Playlists: h.playlists,
		History:   log,
		Stats:     stats.NewCalculator(meta, zap.NewNop()),
		Localizer: i18n.NewLocalizer("en"),
		Rand:      firstRand{},
		Shutdown:  func(s Shutdown) { h.shutdowns = append(h.shutdowns, s) },
	}, zap.NewNop())
	h.router.SetClock(func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) })
	return h
}

func (h *harness) add(t *testing.T, user, trackID string) history.Entry {
	t.Helper()
	e, err := h.log.Append(history.Entry{
		Time:      time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC),
		User:      user,
		Verdict:   core.VerdictAdded,
		TrackID:   trackID,
		TrackName: "Never Gonna Give You Up",
		Artist:    "Rick Astley",
		URI:       "spotify:track:" + trackID,
	})
	require.NoError(t, err)
	return e
}

func (h *harness) run(t *testing.T, sender, text string) bool {
	t.Helper()
	return h.router.Handle(context.Background(), &Request{
		Message: &chat.Message{
			ID:         "m1",
			ChatID:     "c1",
			ChatName:   "music",
			SenderID:   sender + "-id",
			SenderName: sender,
			Text:       text,
		},
		Frontend:   h.frontend,
		PlaylistID: "playlist",
	})
}

func TestBlameAppendsAnnotation(t *testing.T) {
	h := newHarness(t)
	original := h.add(t, "alice", trackOne)

	require.True(t, h.run(t, "bob", "!blame "+link(trackOne)))
	assert.Equal(t, []string{"You can blame alice for Never Gonna Give You Up - Rick Astley"}, h.frontend.sent())

	entries := h.log.Entries()
	require.Len(t, entries, 2)
	blame := entries[1]
	assert.Equal(t, core.AnnotationBlame, blame.Annotation)
	assert.Equal(t, "alice", blame.User)
	assert.Equal(t, "Blame from bob", blame.Note)
	assert.Equal(t, original.ID, blame.Ref)
	assert.Equal(t, trackOne, blame.TrackID)

	// annotations never count as additions
	assert.Equal(t, 1, h.log.SuccessCount())
}

func TestSelfBlameIsDoubled(t *testing.T) {
	h := newHarness(t)
	h.add(t, "alice", trackOne)

	h.run(t, "alice", "!blame "+link(trackOne))
	assert.Contains(t, h.frontend.sent()[0], "double blame")
	assert.Len(t, h.log.Entries(), 3)
}

func TestBlameWithoutAdder(t *testing.T) {
	h := newHarness(t)

	h.run(t, "bob", "!blame "+link(trackTwo))
	assert.Equal(t, []string{"Nobody added that one, nobody to blame"}, h.frontend.sent())
	assert.Empty(t, h.log.Entries())

	h.run(t, "bob", "!blame nothing here")
	assert.Equal(t, "Link a track for that to work", h.frontend.sent()[1])
}

func TestPraise(t *testing.T) {
	h := newHarness(t)
	h.add(t, "alice", trackOne)

	h.run(t, "alice", "!praise "+link(trackOne))
	assert.Equal(t, []string{"No praising yourself"}, h.frontend.sent())
	assert.Len(t, h.log.Entries(), 1)

	h.run(t, "bob", "!praise "+link(trackOne))
	assert.Contains(t, h.frontend.sent()[1], "Praise be to alice")
	entries := h.log.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, core.AnnotationPraise, entries[1].Annotation)
	assert.Equal(t, "Praise from bob", entries[1].Note)
}

func TestOnTheList(t *testing.T) {
	h := newHarness(t)

	h.run(t, "mod", "!onTheList https://open.spotify.com/artist/"+artistTwo+" 0.75")
	assert.Equal(t, []string{"Nickelback is now on the list with 0.75"}, h.frontend.sent())
	rating, ok := h.ratings.Get(artistTwo)
	require.True(t, ok)
	assert.InDelta(t, 0.75, rating, 1e-9)

	h.run(t, "mod", "!onTheList "+artistTwo+" 0.1")
	assert.Equal(t, "Nickelback is already on the list with 0.75", h.frontend.sent()[1])

	h.run(t, "mod", "!onTheList "+artistOne)
	assert.Equal(t, "Rick Astley is now on the list with 1 (defaulted)", h.frontend.sent()[2])

	// persisted wholesale
	reloaded, err := policy.LoadRatings(filepath.Join(filepath.Dir(h.log.Path()), "ratings.yml"))
	require.NoError(t, err)
	assert.Equal(t, []string{artistOne, artistTwo}, reloaded.IDs())
}

func TestOnTheListRejectsOutOfRange(t *testing.T) {
	h := newHarness(t)

	h.run(t, "mod", "!onTheList "+artistTwo+" 7")
	assert.Contains(t, h.frontend.sent()[0], "Usage: !onTheList")
	_, ok := h.ratings.Get(artistTwo)
	assert.False(t, ok)
}

func TestModeratorCommands(t *testing.T) {
	h := newHarness(t)
	h.config.App.Moderators = []string{"boss"}

	assert.True(t, h.run(t, "alice", "!kill"))
	assert.Equal(t, []string{"Only moderators can do that."}, h.frontend.sent())
	assert.Empty(t, h.shutdowns)

	h.run(t, "boss", "!kill")
	assert.Equal(t, []Shutdown{ShutdownKill}, h.shutdowns)

	h.run(t, "boss", "!refresh")
	assert.Equal(t, []Shutdown{ShutdownKill, ShutdownRefresh}, h.shutdowns)
}

func TestCheckArtist(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ratings.Set(artistOne, 0.5))

	h.run(t, "alice", "!checkArtist https://open.spotify.com/artist/"+artistOne)
	assert.Equal(t, []string{
		"Rick Astley: 4000000 followers, popularity 77, genres: dance pop, new wave pop",
		"Rick Astley is on the list with 0.5",
	}, h.frontend.sent())
}

func TestCheckArtistRemoteFailure(t *testing.T) {
	h := newHarness(t)

	h.run(t, "alice", "!checkArtist 0000000000000000000000")
	assert.Equal(t, []string{"Spotify isn't answering right now, try again later."}, h.frontend.sent())
}

func TestStats(t *testing.T) {
	h := newHarness(t)
	h.add(t, "alice", trackOne)
	h.add(t, "bob", trackTwo)
	h.add(t, "alice", trackTwo)

	h.run(t, "alice", "!stats posters")
	assert.Equal(t, []string{"Top posters:\nalice: 2\nbob: 1"}, h.frontend.sent())

	h.run(t, "alice", "!stats")
	assert.Contains(t, h.frontend.sent()[1], "Usage: !stats <posters|artists|")

	h.run(t, "alice", "!stats genres")
	assert.Equal(t, "No data yet", h.frontend.sent()[2])
}

func TestData(t *testing.T) {
	h := newHarness(t)
	h.add(t, "alice", trackOne)

	h.run(t, "alice", "!data")
	require.Len(t, h.frontend.files, 1)
	file := h.frontend.files[0]
	assert.Equal(t, "user_data.csv", file.name)
	assert.True(t, strings.HasPrefix(file.data, history.Header))
	assert.Equal(t, "Everything so far, 1 entries", file.caption)

	h.frontend.unsupported = true
	h.run(t, "alice", "!data")
	assert.Contains(t, h.frontend.sent()[0], "Can't send files here")
}

func TestPlaylistSample(t *testing.T) {
	h := newHarness(t)

	h.run(t, "alice", "!playlist")
	assert.Equal(t, []string{"Nothing in the playlist yet"}, h.frontend.sent())

	h.add(t, "alice", trackOne)
	h.run(t, "alice", "!playlist")
	assert.Equal(t, "Some picks from the playlist:\n - Never Gonna Give You Up - Rick Astley", h.frontend.sent()[1])
}

func TestValidate(t *testing.T) {
	h := newHarness(t)
	h.add(t, "alice", trackOne)
	h.playlists.items = []core.PlaylistItem{
		{TrackID: trackOne, Name: "Never Gonna Give You Up", Artist: "Rick Astley"},
		{TrackID: trackTwo, Name: "Photograph", Artist: "Nickelback", AddedAt: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)},
	}

	h.run(t, "alice", "!validate")
	assert.Equal(t, []string{
		"1 playlist tracks were never logged:\n - Photograph - Nickelback (" + trackTwo + ", 2024-03-02)",
	}, h.frontend.sent())

	h.add(t, "bob", trackTwo)
	h.run(t, "alice", "!validate")
	assert.Equal(t, "Playlist and history agree on all 2 tracks", h.frontend.sent()[1])

	h.playlists.err = errors.New("boom")
	h.run(t, "alice", "!validate")
	assert.Equal(t, "Spotify isn't answering right now, try again later.", h.frontend.sent()[2])
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t)

	assert.False(t, h.run(t, "alice", "!dance"))
	assert.Equal(t, []string{"I think that was supposed to be a command, try !commands"}, h.frontend.sent())

	assert.False(t, h.run(t, "alice", "!force "+link(trackOne)))
	assert.Len(t, h.frontend.sent(), 1)
}

func TestCommandsListing(t *testing.T) {
	h := newHarness(t)

	h.run(t, "alice", "!COMMANDS")
	reply := h.frontend.sent()[0]
	for _, name := range h.router.Names() {
		assert.Contains(t, reply, "!"+name)
	}
}

func TestIsCommand(t *testing.T) {
	assert.True(t, IsCommand("  !stats"))
	assert.False(t, IsCommand("hello !stats"))
}
