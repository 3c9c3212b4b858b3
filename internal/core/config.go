package core

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	// DefaultServerPort is the default HTTP port for health and metrics
	DefaultServerPort = 8080
	// DefaultFloodLimitPerMinute caps messages per user per chat per minute
	DefaultFloodLimitPerMinute = 6
	// DefaultUpdateInterval announces every Nth playlist entry
	DefaultUpdateInterval = 25
	// DefaultRemoteTimeout bounds every catalog and playlist call
	DefaultRemoteTimeout = 10 * time.Second
	// DefaultQueueSize is the inbound message buffer between frontend and worker
	DefaultQueueSize = 64
	// DefaultContentThreshold is the cut-off used by the threshold gate
	DefaultContentThreshold = 0.5

	// ContentGateProbabilistic blocks with probability equal to the artist rating
	ContentGateProbabilistic = "probabilistic"
	// ContentGateThreshold blocks when the artist rating reaches the threshold
	ContentGateThreshold = "threshold"

	// CacheBackendFile keeps the metadata cache in a YAML document
	CacheBackendFile = "file"
	// CacheBackendRedis keeps the metadata cache in Redis hashes
	CacheBackendRedis = "redis"
)

// Default extraction patterns. The first capture group must be the id.
const (
	DefaultTrackPattern  = `(?:open\.spotify\.com/(?:intl-[a-zA-Z]{2}/)?track/|spotify:track:)([a-zA-Z0-9]{22})`
	DefaultArtistPattern = `(?:open\.spotify\.com/(?:intl-[a-zA-Z]{2}/)?artist/|spotify:artist:)?\b([a-zA-Z0-9]{22})\b`
	DefaultLoosePattern  = `open\.spotify|spotify\.link|spotify:track`
)

type Config struct {
	Telegram TelegramConfig
	WhatsApp WhatsAppConfig
	Spotify  SpotifyConfig
	Policy   PolicyConfig
	Patterns PatternConfig
	Storage  StorageConfig
	Server   ServerConfig
	Log      LogConfig
	App      AppConfig

	// Channels maps a chat id to the playlist its links are added to.
	Channels map[string]string
}

type TelegramConfig struct {
	Enabled      bool
	BotToken     string
	AllowedChats []string
}

type WhatsAppConfig struct {
	Enabled      bool
	DeviceName   string
	SessionPath  string
	AllowedChats []string
}

type SpotifyConfig struct {
	ClientID      string
	ClientSecret  string
	RedirectURL   string
	TokenPath     string
	RemoteTimeout time.Duration
}

type PolicyConfig struct {
	RegionCheck      bool
	Region           string
	ContentGate      string
	ContentThreshold float64
}

type PatternConfig struct {
	Track  string
	Artist string
	Loose  string
}

type StorageConfig struct {
	HistoryPath     string
	TestHistoryPath string
	CachePath       string
	RatingsPath     string
	CacheBackend    string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	RedisPrefix     string
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type AppConfig struct {
	Language            string
	UpdateInterval      int
	FloodLimitPerMinute int
	QueueSize           int
	Moderators          []string
	TestChats           []string
	TestChatMarker      string
	AnnounceChat        string
}

func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			Enabled: true,
		},
		WhatsApp: WhatsAppConfig{
			DeviceName:  "Spoticord",
			SessionPath: "./data/whatsapp_session.db",
		},
		Spotify: SpotifyConfig{
			RedirectURL:   "http://127.0.0.1:8080/callback",
			TokenPath:     "./data/spotify_token.json",
			RemoteTimeout: DefaultRemoteTimeout,
		},
		Policy: PolicyConfig{
			RegionCheck:      false,
			Region:           "GB",
			ContentGate:      ContentGateProbabilistic,
			ContentThreshold: DefaultContentThreshold,
		},
		Patterns: PatternConfig{
			Track:  DefaultTrackPattern,
			Artist: DefaultArtistPattern,
			Loose:  DefaultLoosePattern,
		},
		Storage: StorageConfig{
			HistoryPath:     "./data/user_data.csv",
			TestHistoryPath: "./data/user_data_test.csv",
			CachePath:       "./data/cache.yml",
			RatingsPath:     "./data/ratings.yml",
			CacheBackend:    CacheBackendFile,
			RedisAddr:       "localhost:6379",
			RedisPrefix:     "spoticord",
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         DefaultServerPort,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		App: AppConfig{
			Language:            "en",
			UpdateInterval:      DefaultUpdateInterval,
			FloodLimitPerMinute: DefaultFloodLimitPerMinute,
			QueueSize:           DefaultQueueSize,
			TestChatMarker:      "test",
		},
		Channels: map[string]string{},
	}
}

// Validate rejects configurations the bot cannot run with.
func (c *Config) Validate() error {
	if !c.Telegram.Enabled && !c.WhatsApp.Enabled {
		return fmt.Errorf("at least one chat frontend must be enabled (telegram or whatsapp)")
	}
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram bot token is required when telegram is enabled")
	}
	if c.WhatsApp.Enabled && c.WhatsApp.SessionPath == "" {
		return fmt.Errorf("whatsapp session path is required when whatsapp is enabled")
	}

	if c.Spotify.ClientID == "" {
		return fmt.Errorf("spotify client ID is required")
	}
	if c.Spotify.ClientSecret == "" {
		return fmt.Errorf("spotify client secret is required")
	}
	if c.Spotify.RemoteTimeout <= 0 {
		return fmt.Errorf("spotify remote timeout must be positive, got %s", c.Spotify.RemoteTimeout)
	}

	if len(c.Channels) == 0 {
		return fmt.Errorf("at least one channel to playlist mapping is required")
	}
	for chatID, playlistID := range c.Channels {
		if strings.TrimSpace(chatID) == "" || strings.TrimSpace(playlistID) == "" {
			return fmt.Errorf("channel mapping %q -> %q must name both chat and playlist", chatID, playlistID)
		}
	}

	if err := c.Policy.validate(); err != nil {
		return err
	}
	if err := c.Patterns.validate(); err != nil {
		return err
	}
	if err := c.Storage.validate(); err != nil {
		return err
	}

	if c.App.UpdateInterval <= 0 {
		return fmt.Errorf("update interval must be positive, got %d", c.App.UpdateInterval)
	}
	if c.App.FloodLimitPerMinute <= 0 {
		return fmt.Errorf("flood limit per minute must be positive, got %d", c.App.FloodLimitPerMinute)
	}
	if c.App.QueueSize <= 0 {
		return fmt.Errorf("queue size must be positive, got %d", c.App.QueueSize)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}

	return nil
}

func (p PolicyConfig) validate() error {
	if p.RegionCheck && len(p.Region) != 2 {
		return fmt.Errorf("region check needs a two letter region code, got %q", p.Region)
	}
	switch p.ContentGate {
	case ContentGateProbabilistic:
	case ContentGateThreshold:
		if p.ContentThreshold <= 0 || p.ContentThreshold > 1 {
			return fmt.Errorf("content threshold must be in (0, 1], got %v", p.ContentThreshold)
		}
	default:
		return fmt.Errorf("unknown content gate %q (want %s or %s)",
			p.ContentGate, ContentGateProbabilistic, ContentGateThreshold)
	}
	return nil
}

func (p PatternConfig) validate() error {
	for name, expr := range map[string]string{"track": p.Track, "artist": p.Artist, "loose": p.Loose} {
		re, err := regexp.Compile(expr)
		if err != nil {
			return fmt.Errorf("invalid %s pattern: %w", name, err)
		}
		if name != "loose" && re.NumSubexp() < 1 {
			return fmt.Errorf("%s pattern must capture the id in a group", name)
		}
	}
	return nil
}

func (s StorageConfig) validate() error {
	if s.HistoryPath == "" {
		return fmt.Errorf("history path is required")
	}
	if s.TestHistoryPath == "" || s.TestHistoryPath == s.HistoryPath {
		return fmt.Errorf("test history path must be set and differ from the history path")
	}
	if s.RatingsPath == "" {
		return fmt.Errorf("ratings path is required")
	}
	switch s.CacheBackend {
	case CacheBackendFile:
		if s.CachePath == "" {
			return fmt.Errorf("cache path is required for the file cache backend")
		}
	case CacheBackendRedis:
		if s.RedisAddr == "" {
			return fmt.Errorf("redis address is required for the redis cache backend")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", s.CacheBackend)
	}
	return nil
}

// IsModerator reports whether the sender may run moderator commands.
// An empty moderator list lets everyone moderate.
func (c *Config) IsModerator(senderID, senderName string) bool {
	if len(c.App.Moderators) == 0 {
		return true
	}
	for _, m := range c.App.Moderators {
		if m == senderID || strings.EqualFold(m, senderName) {
			return true
		}
	}
	return false
}

// IsTestChat reports whether attempts in this chat should be dry runs.
func (c *Config) IsTestChat(chatID, chatName string) bool {
	for _, id := range c.App.TestChats {
		if id == chatID {
			return true
		}
	}
	marker := strings.ToLower(c.App.TestChatMarker)
	return marker != "" && strings.Contains(strings.ToLower(chatName), marker)
}
