package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gdg-garage/achievement-atlas-api/internal/archive"
	"github.com/gdg-garage/achievement-atlas-api/internal/auth"
	"github.com/gdg-garage/achievement-atlas-api/internal/blizzard"
	"github.com/gdg-garage/achievement-atlas-api/internal/config"
	"github.com/gdg-garage/achievement-atlas-api/internal/database"
	"github.com/gdg-garage/achievement-atlas-api/internal/handlers"
	"github.com/gdg-garage/achievement-atlas-api/internal/help"
	"github.com/gdg-garage/achievement-atlas-api/internal/manifest"
	"github.com/gdg-garage/achievement-atlas-api/internal/merge"
	"github.com/gdg-garage/achievement-atlas-api/internal/notifier"
	"github.com/gdg-garage/achievement-atlas-api/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const purgeInterval = time.Hour

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load Configuration
	cfg := config.LoadConfig()
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	// Connect to Database
	db := database.Connect(cfg)
	kv := store.NewGormStore(db)

	ctx := context.Background()
	go purgeLoop(ctx, kv)

	// Upstream clients
	tokens := blizzard.NewTokenCache(
		blizzard.ClientCredentials(cfg.BnetClientID, cfg.BnetClientSecret, cfg.OAuthTokenURL, cfg.UpstreamTimeout),
		cfg.TokenSafetyMargin,
	)
	opts := blizzard.Options{Region: cfg.Region, Locale: cfg.Locale, Timeout: cfg.UpstreamTimeout}
	gameData := blizzard.NewGameData(cfg.BlizzardAPIHost, tokens, opts)
	profile := blizzard.NewProfile(cfg.ProfileAPIHost, tokens, opts)

	builder := manifest.NewBuilder(gameData, kv, manifest.Options{
		BatchSize:      cfg.ManifestBatchSize,
		MediaBatchSize: cfg.ManifestMediaBatchSize,
		ManifestTTL:    cfg.ManifestTTL,
		StateTTL:       cfg.BuildStateTTL,
		LeaseTTL:       cfg.BuildLeaseTTL,
	})

	if cfg.DiscordBotToken != "" && cfg.DiscordNotificationsChannelID != "" {
		session, err := discordgo.New("Bot " + cfg.DiscordBotToken)
		if err != nil {
			log.Warn().Err(err).Msg("Discord notifier not initialized")
		} else {
			builder.WithNotifier(notifier.NewDiscordNotifier(session, cfg.DiscordNotificationsChannelID))
		}
	}

	if cfg.ArchiveBucket != "" {
		archiver, err := archive.NewGCSArchiver(ctx, cfg.ArchiveBucket)
		if err != nil {
			log.Warn().Err(err).Str("bucket", cfg.ArchiveBucket).Msg("manifest archive not initialized")
		} else {
			defer archiver.Close()
			builder.WithArchiver(archiver)
			restoreManifest(ctx, builder, archiver)
		}
	}

	var strategy []help.Provider
	curated, err := help.LoadCurated(cfg.HelpCuratedDir)
	if err != nil {
		log.Warn().Err(err).Str("dir", cfg.HelpCuratedDir).Msg("curated guides not loaded")
	} else {
		strategy = append(strategy, curated)
	}
	helpService := help.NewService(strategy, []help.Provider{
		help.NewWowheadProvider("https://www.wowhead.com", cfg.HelpTimeout),
	})

	// Initialize Handlers
	authHandler := auth.NewAuthHandler(cfg, db, kv)
	h := handlers.Handlers{
		Auth:        authHandler,
		Manifest:    handlers.NewManifestHandler(builder, authHandler),
		Character:   handlers.NewCharacterHandler(profile, merge.NewEngine(profile, cfg.MergeMaxCharacters, cfg.MergeBatchSize), authHandler),
		Achievement: handlers.NewAchievementHandler(gameData, helpService),
	}

	// Initialize Router
	r := chi.NewRouter()
	handlers.RegisterRoutes(r, cfg, h)

	// Start Server
	log.Info().Str("port", cfg.Port).Msg("starting server")
	if err := http.ListenAndServe(fmt.Sprintf(":%s", cfg.Port), r); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}
}

// restoreManifest seeds an empty cache from the newest archived manifest so a
// fresh instance can serve before its first build completes.
func restoreManifest(ctx context.Context, builder *manifest.Builder, archiver *archive.GCSArchiver) {
	m, err := archiver.Latest(ctx)
	if err != nil {
		log.Info().Err(err).Msg("no archived manifest to restore")
		return
	}
	seeded, err := builder.Seed(ctx, m)
	if err != nil {
		log.Warn().Err(err).Msg("failed to seed manifest from archive")
		return
	}
	if seeded {
		log.Info().Time("built_at", m.BuiltAt).Msg("manifest restored from archive")
	}
}

func purgeLoop(ctx context.Context, kv *store.GormStore) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := kv.PurgeExpired(ctx)
			if err != nil {
				log.Error().Err(err).Msg("failed to purge expired entries")
				continue
			}
			if n > 0 {
				log.Debug().Int64("purged", n).Msg("purged expired entries")
			}
		}
	}
}
