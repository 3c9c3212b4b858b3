// Package spotify provides the Spotify Web API catalog: track and artist
// metadata reads and playlist appends.
package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"spoticord/internal/core"
)

const (
	// FilePermission is the permission for token files
	FilePermission = 0600
	// SpotifyIDLength is the expected length of a Spotify track/artist/album ID
	SpotifyIDLength = 22
	// PlaylistPageSize is the largest page the playlist items endpoint returns
	PlaylistPageSize = 100
)

var _ core.Catalog = (*Client)(nil)

type Client struct {
	config *core.SpotifyConfig
	logger *zap.Logger
	client *spotify.Client
	auth   *spotifyauth.Authenticator
}

type TokenData struct {
	Token *oauth2.Token `json:"token"`
}

func NewClient(config *core.SpotifyConfig, logger *zap.Logger) *Client {
	auth := spotifyauth.New(
		spotifyauth.WithRedirectURL(config.RedirectURL),
		spotifyauth.WithScopes(
			spotifyauth.ScopePlaylistModifyPublic,
			spotifyauth.ScopePlaylistModifyPrivate,
			spotifyauth.ScopePlaylistReadPrivate,
		),
		spotifyauth.WithClientID(config.ClientID),
		spotifyauth.WithClientSecret(config.ClientSecret),
	)

	return &Client{
		config: config,
		logger: logger,
		auth:   auth,
	}
}

func (c *Client) Authenticate(ctx context.Context) error {
	token, err := c.loadToken()
	if err != nil {
		c.logger.Info("No saved token found, starting OAuth flow")
		return c.startOAuthFlow(ctx)
	}

	client := spotify.New(c.auth.Client(ctx, token))
	c.client = client

	user, err := client.CurrentUser(ctx)
	if err != nil {
		c.logger.Warn("Saved token invalid, starting OAuth flow", zap.Error(err))
		return c.startOAuthFlow(ctx)
	}

	c.logger.Info("Authenticated successfully", zap.String("user", user.DisplayName))
	return nil
}

// GetTrack fetches one track. Both the track and album market lists are
// returned; callers decide what to keep.
func (c *Client) GetTrack(ctx context.Context, trackID string) (*core.TrackInfo, error) {
	if c.client == nil {
		return nil, fmt.Errorf("client not authenticated")
	}

	track, err := c.client.GetTrack(ctx, spotify.ID(trackID))
	if err != nil {
		return nil, fmt.Errorf("failed to get track %s: %w", trackID, err)
	}

	info := convertTrack(track)
	return &info, nil
}

func (c *Client) GetArtist(ctx context.Context, artistID string) (*core.ArtistInfo, error) {
	if c.client == nil {
		return nil, fmt.Errorf("client not authenticated")
	}

	artist, err := c.client.GetArtist(ctx, spotify.ID(artistID))
	if err != nil {
		return nil, fmt.Errorf("failed to get artist %s: %w", artistID, err)
	}

	return &core.ArtistInfo{
		ID:         string(artist.ID),
		Name:       artist.Name,
		URI:        string(artist.URI),
		Popularity: int(artist.Popularity),
		Followers:  int(artist.Followers.Count),
		Genres:     artist.Genres,
	}, nil
}

// AddToPlaylist appends trackID to the end of playlistID.
func (c *Client) AddToPlaylist(ctx context.Context, playlistID, trackID string) error {
	if c.client == nil {
		return fmt.Errorf("client not authenticated")
	}

	_, err := c.client.AddTracksToPlaylist(ctx, spotify.ID(playlistID), spotify.ID(trackID))
	if err != nil {
		return fmt.Errorf("failed to add track to playlist: %w", err)
	}

	c.logger.Debug("Spotify accepted playlist append",
		zap.String("trackID", trackID),
		zap.String("playlistID", playlistID))
	return nil
}

// GetPlaylistTracks pages through the whole playlist. Episodes and removed
// tracks are skipped.
func (c *Client) GetPlaylistTracks(ctx context.Context, playlistID string) ([]core.PlaylistItem, error) {
	if c.client == nil {
		return nil, fmt.Errorf("client not authenticated")
	}

	spotifyPlaylistID := spotify.ID(playlistID)
	var all []core.PlaylistItem
	offset := 0

	for {
		items, err := c.client.GetPlaylistItems(ctx, spotifyPlaylistID,
			spotify.Limit(PlaylistPageSize), spotify.Offset(offset))
		if err != nil {
			return nil, fmt.Errorf("failed to get playlist items: %w", err)
		}

		for i := range items.Items {
			track := items.Items[i].Track.Track
			if track == nil {
				continue
			}
			item := core.PlaylistItem{
				TrackID: string(track.ID),
				Name:    track.Name,
			}
			if len(track.Artists) > 0 {
				item.Artist = track.Artists[0].Name
			}
			if added, err := time.Parse(time.RFC3339, items.Items[i].AddedAt); err == nil {
				item.AddedAt = added
			}
			all = append(all, item)
		}

		if len(items.Items) < PlaylistPageSize {
			break
		}

		offset += PlaylistPageSize
	}

	c.logger.Info("Retrieved playlist tracks",
		zap.String("playlistID", playlistID),
		zap.Int("count", len(all)))

	return all, nil
}

func convertTrack(track *spotify.FullTrack) core.TrackInfo {
	artists := make([]core.ArtistRef, 0, len(track.Artists))
	for _, artist := range track.Artists {
		artists = append(artists, core.ArtistRef{ID: string(artist.ID), Name: artist.Name})
	}

	return core.TrackInfo{
		ID:         string(track.ID),
		Name:       track.Name,
		URI:        string(track.URI),
		URL:        track.ExternalURLs["spotify"],
		DurationMS: int(track.Duration),
		Popularity: int(track.Popularity),
		Explicit:   track.Explicit,
		Markets:    track.AvailableMarkets,
		Album: core.AlbumInfo{
			ID:          string(track.Album.ID),
			Name:        track.Album.Name,
			ReleaseDate: track.Album.ReleaseDate,
			Markets:     track.Album.AvailableMarkets,
		},
		Artists: artists,
	}
}

func (c *Client) startOAuthFlow(ctx context.Context) error {
	state := "spoticord-auth-state"
	authURL := c.auth.AuthURL(state)

	fmt.Printf("Please visit the following URL to authorize the application:\n%s\n", authURL)
	fmt.Print("Enter the authorization code: ")

	var code string
	if _, err := fmt.Scanln(&code); err != nil {
		return fmt.Errorf("failed to read authorization code: %w", err)
	}

	token, err := c.auth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange code for token: %w", err)
	}

	if saveErr := c.saveToken(token); saveErr != nil {
		c.logger.Warn("Failed to save token", zap.Error(saveErr))
	}

	client := spotify.New(c.auth.Client(ctx, token))
	c.client = client

	user, err := client.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current user: %w", err)
	}

	c.logger.Info("OAuth flow completed successfully", zap.String("user", user.DisplayName))
	return nil
}

func (c *Client) loadToken() (*oauth2.Token, error) {
	file, err := os.Open(c.config.TokenPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}

	var tokenData TokenData
	if err := json.Unmarshal(data, &tokenData); err != nil {
		return nil, err
	}

	return tokenData.Token, nil
}

func (c *Client) saveToken(token *oauth2.Token) error {
	tokenData := TokenData{Token: token}

	data, err := json.MarshalIndent(tokenData, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(c.config.TokenPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(c.config.TokenPath, data, FilePermission)
}
