package config

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Port         string `mapstructure:"PORT"`
	DatabasePath string `mapstructure:"DATABASE_PATH"`
	AppOrigin    string `mapstructure:"APP_ORIGIN"`
	EnableCORS   bool   `mapstructure:"ENABLE_CORS"`
	LogLevel     string `mapstructure:"LOG_LEVEL"`

	Region            string        `mapstructure:"BNET_REGION"`
	Locale            string        `mapstructure:"BNET_LOCALE"`
	BnetClientID      string        `mapstructure:"BNET_CLIENT_ID"`
	BnetClientSecret  string        `mapstructure:"BNET_CLIENT_SECRET"`
	OAuthAuthorizeURL string        `mapstructure:"BATTLE_NET_OAUTH_AUTHORIZE"`
	OAuthTokenURL     string        `mapstructure:"BATTLE_NET_OAUTH_TOKEN"`
	OAuthUserInfoURL  string        `mapstructure:"BATTLE_NET_USERINFO"`
	OAuthRedirectURL  string        `mapstructure:"OAUTH_REDIRECT_URL"`
	BlizzardAPIHost   string        `mapstructure:"BLIZZARD_API_HOST"`
	ProfileAPIHost    string        `mapstructure:"PROFILE_API_HOST"`
	UpstreamTimeout   time.Duration `mapstructure:"UPSTREAM_TIMEOUT"`
	TokenSafetyMargin time.Duration `mapstructure:"TOKEN_SAFETY_MARGIN"`

	JWTSecret  string `mapstructure:"JWT_SECRET"`
	AdminToken string `mapstructure:"ADMIN_TOKEN"`

	ManifestBatchSize      int           `mapstructure:"MANIFEST_BATCH_SIZE"`
	ManifestMediaBatchSize int           `mapstructure:"MANIFEST_MEDIA_BATCH_SIZE"`
	ManifestTTL            time.Duration `mapstructure:"MANIFEST_TTL"`
	BuildStateTTL          time.Duration `mapstructure:"BUILD_STATE_TTL"`
	BuildLeaseTTL          time.Duration `mapstructure:"BUILD_LEASE_TTL"`

	MergeMaxCharacters int `mapstructure:"MERGE_MAX_CHARACTERS"`
	MergeBatchSize     int `mapstructure:"MERGE_BATCH_SIZE"`

	HelpTimeout    time.Duration `mapstructure:"HELP_TIMEOUT"`
	HelpCuratedDir string        `mapstructure:"HELP_CURATED_DIR"`

	DiscordBotToken               string `mapstructure:"DISCORD_BOT_TOKEN"`
	DiscordNotificationsChannelID string `mapstructure:"DISCORD_NOTIFICATIONS_CHANNEL_ID"`
	ArchiveBucket                 string `mapstructure:"ARCHIVE_BUCKET"`
}

func LoadConfig() *Config {
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("DATABASE_PATH", "achievements.db")
	viper.SetDefault("APP_ORIGIN", "http://127.0.0.1:5173")
	viper.SetDefault("ENABLE_CORS", true)
	viper.SetDefault("LOG_LEVEL", "info")

	viper.SetDefault("BNET_REGION", "eu")
	viper.SetDefault("BNET_LOCALE", "en_GB")
	viper.SetDefault("BATTLE_NET_OAUTH_AUTHORIZE", "https://oauth.battle.net/authorize")
	viper.SetDefault("BATTLE_NET_OAUTH_TOKEN", "https://oauth.battle.net/token")
	viper.SetDefault("BATTLE_NET_USERINFO", "https://oauth.battle.net/userinfo")
	viper.SetDefault("OAUTH_REDIRECT_URL", "http://127.0.0.1:8080/auth/callback")
	viper.SetDefault("BLIZZARD_API_HOST", "https://eu.api.blizzard.com")
	viper.SetDefault("PROFILE_API_HOST", "https://eu.api.blizzard.com")
	viper.SetDefault("UPSTREAM_TIMEOUT", 10*time.Second)
	viper.SetDefault("TOKEN_SAFETY_MARGIN", time.Minute)

	viper.SetDefault("MANIFEST_BATCH_SIZE", 40)
	viper.SetDefault("MANIFEST_MEDIA_BATCH_SIZE", 20)
	viper.SetDefault("MANIFEST_TTL", 24*time.Hour)
	viper.SetDefault("BUILD_STATE_TTL", time.Hour)
	viper.SetDefault("BUILD_LEASE_TTL", 2*time.Minute)

	viper.SetDefault("MERGE_MAX_CHARACTERS", 10)
	viper.SetDefault("MERGE_BATCH_SIZE", 3)

	viper.SetDefault("HELP_TIMEOUT", 8*time.Second)

	viper.BindEnv("BNET_CLIENT_ID")
	viper.BindEnv("BNET_CLIENT_SECRET")
	viper.BindEnv("JWT_SECRET")
	viper.BindEnv("ADMIN_TOKEN")
	viper.BindEnv("HELP_CURATED_DIR")
	viper.BindEnv("DISCORD_BOT_TOKEN")
	viper.BindEnv("DISCORD_NOTIFICATIONS_CHANNEL_ID")
	viper.BindEnv("ARCHIVE_BUCKET")

	viper.AutomaticEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatal().Err(err).Msg("unable to decode config")
	}

	return &config
}
