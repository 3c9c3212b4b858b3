// Package main provides the spoticord CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"spoticord/internal/bot"
	"spoticord/internal/chat"
	"spoticord/internal/chat/telegram"
	"spoticord/internal/chat/whatsapp"
	"spoticord/internal/commands"
	"spoticord/internal/core"
	"spoticord/internal/flood"
	"spoticord/internal/history"
	httpserver "spoticord/internal/http"
	"spoticord/internal/i18n"
	"spoticord/internal/intake"
	"spoticord/internal/metacache"
	"spoticord/internal/playlist"
	"spoticord/internal/policy"
	"spoticord/internal/spotify"
	"spoticord/internal/stats"
)

const (
	defaultConfigPath = "data/conf.yml"
	defaultCachePath  = "data/cache.yml"
	envPrefix         = "SPOTICORD"
)

var (
	config *core.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "spoticord [config-file [memory-file]]",
	Short: "spoticord - chat links → Spotify playlist",
	Long: `spoticord watches group chats (Telegram/WhatsApp) for Spotify track links and adds
them to the playlist mapped to each chat, logging every attempt to an append-only history.`,
	Args:          cobra.RangeArgs(0, 2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runSpoticord,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func initConfig(args []string) error {
	if err := gotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
	}

	configPath := defaultConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// the default path is optional when everything comes from the environment
		if len(args) > 0 || !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to read config %s: %w", configPath, err)
		}
		fmt.Fprintf(os.Stderr, "No config file at %s, using environment only\n", configPath)
	}

	config = buildConfig()
	config.Storage.CachePath = defaultCachePath
	if len(args) > 1 {
		config.Storage.CachePath = args[1]
	} else if viper.IsSet("storage.cache_path") {
		config.Storage.CachePath = viper.GetString("storage.cache_path")
	}

	logger = buildLogger(config.Log.Level, config.Log.Format)
	return nil
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	configureTelegram(cfg)
	configureWhatsApp(cfg)
	configureSpotify(cfg)
	configurePolicy(cfg)
	configurePatterns(cfg)
	configureStorage(cfg)
	configureServer(cfg)
	configureApp(cfg)

	if viper.IsSet("channels") {
		cfg.Channels = viper.GetStringMapString("channels")
	}

	return cfg
}

// The set* helpers only override a default when the key is present in the
// file or the environment.

func setString(dst *string, key string) {
	if viper.IsSet(key) {
		*dst = viper.GetString(key)
	}
}

func setBool(dst *bool, key string) {
	if viper.IsSet(key) {
		*dst = viper.GetBool(key)
	}
}

func setInt(dst *int, key string) {
	if viper.IsSet(key) {
		*dst = viper.GetInt(key)
	}
}

func setFloat(dst *float64, key string) {
	if viper.IsSet(key) {
		*dst = viper.GetFloat64(key)
	}
}

func setStrings(dst *[]string, key string) {
	if viper.IsSet(key) {
		*dst = viper.GetStringSlice(key)
	}
}

func configureTelegram(cfg *core.Config) {
	setBool(&cfg.Telegram.Enabled, "telegram.enabled")
	setString(&cfg.Telegram.BotToken, "telegram.bot_token")
	setStrings(&cfg.Telegram.AllowedChats, "telegram.allowed_chats")
}

func configureWhatsApp(cfg *core.Config) {
	setBool(&cfg.WhatsApp.Enabled, "whatsapp.enabled")
	setString(&cfg.WhatsApp.DeviceName, "whatsapp.device_name")
	setString(&cfg.WhatsApp.SessionPath, "whatsapp.session_path")
	setStrings(&cfg.WhatsApp.AllowedChats, "whatsapp.allowed_chats")
}

func configureSpotify(cfg *core.Config) {
	setString(&cfg.Spotify.ClientID, "spotify.client_id")
	setString(&cfg.Spotify.ClientSecret, "spotify.client_secret")
	setString(&cfg.Spotify.RedirectURL, "spotify.redirect_url")
	setString(&cfg.Spotify.TokenPath, "spotify.token_path")
	if viper.IsSet("spotify.remote_timeout") {
		cfg.Spotify.RemoteTimeout = viper.GetDuration("spotify.remote_timeout")
	}
}

func configurePolicy(cfg *core.Config) {
	setBool(&cfg.Policy.RegionCheck, "policy.region_check")
	setString(&cfg.Policy.Region, "policy.region")
	setString(&cfg.Policy.ContentGate, "policy.content_gate")
	setFloat(&cfg.Policy.ContentThreshold, "policy.content_threshold")
}

func configurePatterns(cfg *core.Config) {
	setString(&cfg.Patterns.Track, "patterns.track")
	setString(&cfg.Patterns.Artist, "patterns.artist")
	setString(&cfg.Patterns.Loose, "patterns.loose")
}

func configureStorage(cfg *core.Config) {
	setString(&cfg.Storage.HistoryPath, "storage.history_path")
	setString(&cfg.Storage.TestHistoryPath, "storage.test_history_path")
	setString(&cfg.Storage.RatingsPath, "storage.ratings_path")
	setString(&cfg.Storage.CacheBackend, "storage.cache_backend")
	setString(&cfg.Storage.RedisAddr, "storage.redis_addr")
	setString(&cfg.Storage.RedisPassword, "storage.redis_password")
	setInt(&cfg.Storage.RedisDB, "storage.redis_db")
	setString(&cfg.Storage.RedisPrefix, "storage.redis_prefix")
}

func configureServer(cfg *core.Config) {
	setString(&cfg.Server.Host, "server.host")
	setInt(&cfg.Server.Port, "server.port")
	if viper.IsSet("server.read_timeout") {
		cfg.Server.ReadTimeout = viper.GetDuration("server.read_timeout")
	}
	if viper.IsSet("server.write_timeout") {
		cfg.Server.WriteTimeout = viper.GetDuration("server.write_timeout")
	}
	setString(&cfg.Log.Level, "log.level")
	setString(&cfg.Log.Format, "log.format")
}

func configureApp(cfg *core.Config) {
	setString(&cfg.App.Language, "app.language")
	if !i18n.IsSupported(cfg.App.Language) {
		fmt.Fprintf(os.Stderr, "Unsupported language %q, falling back to %s\n", cfg.App.Language, i18n.DefaultLanguage)
		cfg.App.Language = i18n.DefaultLanguage
	}
	setInt(&cfg.App.UpdateInterval, "app.update_interval")
	setInt(&cfg.App.FloodLimitPerMinute, "app.flood_limit_per_minute")
	setInt(&cfg.App.QueueSize, "app.queue_size")
	setStrings(&cfg.App.Moderators, "app.moderators")
	setStrings(&cfg.App.TestChats, "app.test_chats")
	setString(&cfg.App.TestChatMarker, "app.test_chat_marker")
	setString(&cfg.App.AnnounceChat, "app.announce_chat")
}

func buildLogger(level, format string) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	if format == "console" {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	builtLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return builtLogger
}

func runSpoticord(_ *cobra.Command, args []string) error {
	if err := initConfig(args); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("Starting spoticord",
		zap.Int("channels", len(config.Channels)),
		zap.Bool("telegram_enabled", config.Telegram.Enabled),
		zap.Bool("whatsapp_enabled", config.WhatsApp.Enabled),
		zap.String("cache_backend", config.Storage.CacheBackend),
		zap.Bool("region_check", config.Policy.RegionCheck),
		zap.String("content_gate", config.Policy.ContentGate))

	if err := config.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	svcs, err := initializeServices(ctx)
	if err != nil {
		return err
	}
	defer svcs.close()

	return runServices(ctx, svcs)
}

type services struct {
	spotify    *spotify.Client
	cache      *metacache.Cache
	production *history.Log
	test       *history.Log
	floodgate  *flood.Floodgate
	httpServer *httpserver.Server
	dispatcher *bot.Dispatcher
	shutdown   chan commands.Shutdown
	redis      *redis.Client
}

func (s *services) close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			logger.Debug("Failed to close redis client", zap.Error(err))
		}
	}
}

func initializeServices(ctx context.Context) (*services, error) {
	svcs := &services{shutdown: make(chan commands.Shutdown, 1)}

	svcs.spotify = spotify.NewClient(&config.Spotify, logger.Named("spotify"))
	if err := svcs.spotify.Authenticate(ctx); err != nil {
		return nil, fmt.Errorf("failed to authenticate with Spotify: %w", err)
	}

	store, err := createCacheStore(ctx, svcs)
	if err != nil {
		return nil, err
	}
	svcs.cache = metacache.New(svcs.spotify, store, config.Spotify.RemoteTimeout, logger.Named("cache"))
	if err := svcs.cache.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load metadata cache: %w", err)
	}

	if svcs.production, err = history.Open(config.Storage.HistoryPath, logger.Named("history")); err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	if svcs.test, err = history.Open(config.Storage.TestHistoryPath, logger.Named("history").With(zap.Bool("test", true))); err != nil {
		return nil, fmt.Errorf("failed to open test history: %w", err)
	}

	ratings, err := policy.LoadRatings(config.Storage.RatingsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load ratings: %w", err)
	}

	extractor, err := intake.NewExtractor(config.Patterns)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	localizer := i18n.NewLocalizer(config.App.Language)
	mutator := playlist.NewMutator(svcs.spotify, config.Spotify.RemoteTimeout, logger.Named("playlist"))
	engine := policy.NewEngine(config.Policy, ratings, mutator, rng, logger.Named("policy"))
	pipeline := intake.NewPipeline(extractor, svcs.cache, engine, localizer, config.Policy.Region, logger.Named("intake"))

	router := commands.NewRouter(commands.Deps{
		Config:        config,
		Extractor:     extractor,
		Metadata:      svcs.cache,
		Ratings:       ratings,
		Playlists:     svcs.spotify,
		History:       svcs.production,
		Stats:         stats.NewCalculator(svcs.cache, logger.Named("stats")),
		Localizer:     localizer,
		Rand:          rng,
		Shutdown:      svcs.requestShutdown,
		RemoteTimeout: config.Spotify.RemoteTimeout,
	}, logger.Named("commands"))

	svcs.floodgate = flood.New(config.App.FloodLimitPerMinute)

	svcs.httpServer = httpserver.NewServer(&config.Server, httpserver.Deps{
		History:    svcs.production,
		Ready:      svcs.ready,
		CacheStats: svcs.cache.Stats,
		FloodStats: svcs.floodgate.Stats,
	}, logger.Named("http"))

	svcs.dispatcher, err = bot.NewDispatcher(config, createChatFrontends(), pipeline, router,
		svcs.production, svcs.test, svcs.floodgate, svcs.httpServer, logger.Named("dispatcher"))
	if err != nil {
		return nil, err
	}

	return svcs, nil
}

func (s *services) ready() bool {
	return s.dispatcher != nil && s.dispatcher.Ready()
}

func (s *services) requestShutdown(reason commands.Shutdown) {
	select {
	case s.shutdown <- reason:
	default:
	}
}

func createCacheStore(ctx context.Context, svcs *services) (metacache.Store, error) {
	switch config.Storage.CacheBackend {
	case core.CacheBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     config.Storage.RedisAddr,
			Password: config.Storage.RedisPassword,
			DB:       config.Storage.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", config.Storage.RedisAddr, err)
		}
		svcs.redis = client
		logger.Info("Using redis metadata cache",
			zap.String("addr", config.Storage.RedisAddr),
			zap.String("prefix", config.Storage.RedisPrefix))
		return metacache.NewRedisStore(client, config.Storage.RedisPrefix), nil
	default:
		logger.Info("Using file metadata cache", zap.String("path", config.Storage.CachePath))
		return metacache.NewFileStore(config.Storage.CachePath), nil
	}
}

func createChatFrontends() []chat.Frontend {
	var frontends []chat.Frontend

	if config.Telegram.Enabled {
		frontends = append(frontends, telegram.NewFrontend(&telegram.Config{
			BotToken:     config.Telegram.BotToken,
			Enabled:      config.Telegram.Enabled,
			AllowedChats: config.Telegram.AllowedChats,
		}, logger.Named("telegram")))
		logger.Info("Telegram frontend enabled", zap.Strings("allowed_chats", config.Telegram.AllowedChats))
	}

	if config.WhatsApp.Enabled {
		frontends = append(frontends, whatsapp.NewFrontend(&whatsapp.Config{
			DeviceName:   config.WhatsApp.DeviceName,
			SessionPath:  config.WhatsApp.SessionPath,
			Enabled:      config.WhatsApp.Enabled,
			AllowedChats: config.WhatsApp.AllowedChats,
		}, logger.Named("whatsapp")))
		logger.Info("WhatsApp frontend enabled", zap.Strings("allowed_chats", config.WhatsApp.AllowedChats))
	}

	return frontends
}

func runServices(ctx context.Context, svcs *services) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svcs.httpServer.Start(gCtx)
	})

	g.Go(func() error {
		return svcs.floodgate.Run(gCtx)
	})

	g.Go(func() error {
		return svcs.dispatcher.Start(gCtx)
	})

	g.Go(func() error {
		select {
		case reason := <-svcs.shutdown:
			logger.Info("Operator requested shutdown", zap.String("reason", string(reason)))
			stop()
		case <-gCtx.Done():
		}
		return nil
	})

	logger.Info("spoticord started successfully",
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)))

	if err := g.Wait(); err != nil {
		logger.Error("spoticord stopped with error", zap.Error(err))
		return err
	}

	logger.Info("spoticord stopped gracefully")
	return nil
}
