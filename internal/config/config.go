package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the client runtime configuration, loaded from the
// environment.
type Config struct {
	// Server settings
	Port        string `envconfig:"SERVER_PORT" default:"8090"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`

	// Content backend
	StoryAPIBaseURL string        `envconfig:"STORY_API_BASE_URL" required:"true"`
	StoryAPITimeout time.Duration `envconfig:"STORY_API_TIMEOUT" default:"30s"`

	// Content polling
	PollInterval           time.Duration `envconfig:"POLL_INTERVAL" default:"3s"`
	MaxPollAttempts        uint64        `envconfig:"MAX_POLL_ATTEMPTS" default:"100"`
	EndingInitialWait      time.Duration `envconfig:"ENDING_INITIAL_WAIT" default:"20s"`
	RequireChapterApproval bool          `envconfig:"REQUIRE_CHAPTER_APPROVAL" default:"true"`

	// Playback
	AdvanceDebounce     time.Duration `envconfig:"ADVANCE_DEBOUNCE" default:"150ms"`
	AutoAdvanceInterval time.Duration `envconfig:"AUTO_ADVANCE_INTERVAL" default:"2s"`

	// Save storage: "api" keeps slots on the backend save API, "redis"
	// keeps them in a local Redis.
	SaveBackend    string `envconfig:"SAVE_BACKEND" default:"api"`
	SaveAPIBaseURL string `envconfig:"SAVE_API_BASE_URL"`
	RedisAddr      string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword  string `envconfig:"REDIS_PASSWORD"`
	RedisDB        int    `envconfig:"REDIS_DB" default:"0"`

	// CORS
	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.SaveBackend != "api" && cfg.SaveBackend != "redis" {
		return nil, fmt.Errorf("invalid SAVE_BACKEND %q: must be api or redis", cfg.SaveBackend)
	}
	if cfg.SaveAPIBaseURL == "" {
		cfg.SaveAPIBaseURL = cfg.StoryAPIBaseURL
	}
	return &cfg, nil
}
