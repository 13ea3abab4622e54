// Command buildmanifest drives the manifest build to completion from the
// command line, one checkpointed step at a time. It shares the database with
// the server, so an interrupted run resumes where it stopped.
package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/gdg-garage/achievement-atlas-api/internal/apperr"
	"github.com/gdg-garage/achievement-atlas-api/internal/blizzard"
	"github.com/gdg-garage/achievement-atlas-api/internal/config"
	"github.com/gdg-garage/achievement-atlas-api/internal/database"
	"github.com/gdg-garage/achievement-atlas-api/internal/manifest"
	"github.com/gdg-garage/achievement-atlas-api/internal/store"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"
)

func main() {
	reset := flag.Bool("reset", false, "clear the checkpoint and cached manifest before building")
	maxSteps := flag.Int("max-steps", 500, "give up after this many steps")
	interval := flag.Duration("interval", time.Second, "pause between steps")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg := config.LoadConfig()
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	db := database.Connect(cfg)
	tokens := blizzard.NewTokenCache(
		blizzard.ClientCredentials(cfg.BnetClientID, cfg.BnetClientSecret, cfg.OAuthTokenURL, cfg.UpstreamTimeout),
		cfg.TokenSafetyMargin,
	)
	gameData := blizzard.NewGameData(cfg.BlizzardAPIHost, tokens, blizzard.Options{
		Region:  cfg.Region,
		Locale:  cfg.Locale,
		Timeout: cfg.UpstreamTimeout,
	})
	builder := manifest.NewBuilder(gameData, store.NewGormStore(db), manifest.Options{
		BatchSize:      cfg.ManifestBatchSize,
		MediaBatchSize: cfg.ManifestMediaBatchSize,
		ManifestTTL:    cfg.ManifestTTL,
		StateTTL:       cfg.BuildStateTTL,
		LeaseTTL:       cfg.BuildLeaseTTL,
	})

	if *reset {
		if err := builder.Reset(ctx); err != nil {
			log.Fatal().Err(err).Msg("reset failed")
		}
		log.Info().Msg("build state and manifest cleared")
	}

	if err := run(ctx, builder, *maxSteps, *interval); err != nil {
		log.Fatal().Err(err).Msg("manifest build failed")
	}
}

func run(ctx context.Context, builder *manifest.Builder, maxSteps int, interval time.Duration) error {
	for step := 1; step <= maxSteps; step++ {
		progress, err := builder.Step(ctx)
		if err != nil {
			// Another builder holds the lease; wait for it rather than fail.
			if apperr.CodeOf(err) != apperr.CodeBuildInProgress {
				return err
			}
			log.Warn().Int("step", step).Msg("build lease held elsewhere, waiting")
		} else {
			log.Info().Int("step", step).Str("phase", string(progress.Phase)).Msg(progress.Progress)
			if progress.Done {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return apperr.Internal("build did not finish within the step limit")
}
