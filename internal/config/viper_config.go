package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration using Viper
// Priority order: Environment variables > Config file > Defaults
func LoadConfig(configPath string) (*ServerConfig, error) {
	v := viper.New()

	// Set config file details
	v.SetConfigName("server")
	v.SetConfigType("yaml")

	// Add config paths
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/memebattle")
	}

	// Enable environment variable binding
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Bind the deploy-critical variables to their conventional names
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.host", "HOST")
	v.BindEnv("server.loglevel", "LOG_LEVEL")
	v.BindEnv("server.logformat", "LOG_FORMAT")
	v.BindEnv("server.ratelimit", "RATE_LIMIT")
	v.BindEnv("server.ratelimitburst", "RATE_LIMIT_BURST")
	v.BindEnv("server.maxrequestsize", "MAX_REQUEST_SIZE")
	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("database.maxconns", "DATABASE_MAX_CONNS")
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")
	v.BindEnv("auth.jwtsecret", "JWT_SECRET")
	v.BindEnv("ai.endpoint", "AI_ENDPOINT")
	v.BindEnv("ai.language", "AI_LANGUAGE")

	// Defaults mirror DefaultConfig so a bare binary runs
	def := DefaultConfig()

	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("server.host", def.Server.Host)
	v.SetDefault("server.readtimeout", "15s")
	v.SetDefault("server.writetimeout", "15s")
	v.SetDefault("server.idletimeout", "0s") // 0 keeps websockets open
	v.SetDefault("server.shutdowntimeout", "30s")
	v.SetDefault("server.requesttimeout", "60s")
	v.SetDefault("server.ratelimit", def.Server.RateLimit)
	v.SetDefault("server.ratelimitburst", def.Server.RateLimitBurst)
	v.SetDefault("server.maxrequestsize", def.Server.MaxRequestSize)
	v.SetDefault("server.loglevel", def.Server.LogLevel)
	v.SetDefault("server.logformat", def.Server.LogFormat)

	v.SetDefault("game.selectionseconds", def.Game.SelectionSeconds)
	v.SetDefault("game.votingtimeout", "180s")
	v.SetDefault("game.resultsdisplay", "5s")
	v.SetDefault("game.maxrounds", def.Game.MaxRounds)
	v.SetDefault("game.minplayersperroom", def.Game.MinPlayersPerRoom)
	v.SetDefault("game.maxplayersperroom", def.Game.MaxPlayersPerRoom)
	v.SetDefault("game.roomcodelength", def.Game.RoomCodeLength)
	v.SetDefault("game.roomcodealphabet", def.Game.RoomCodeAlphabet)

	v.SetDefault("presence.inactivitytimeout", "30s")
	v.SetDefault("presence.maxdisconnects", def.Presence.MaxDisconnects)
	v.SetDefault("presence.maxmissedactions", def.Presence.MaxMissedActions)
	v.SetDefault("presence.scaninterval", "10s")

	v.SetDefault("database.url", def.Database.URL)
	v.SetDefault("database.maxconns", def.Database.MaxConns)

	v.SetDefault("redis.addr", def.Redis.Addr)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.tokenttl", "168h")

	v.SetDefault("ai.endpoint", "")
	v.SetDefault("ai.language", def.AI.Language)
	v.SetDefault("ai.queuename", def.AI.QueueName)
	v.SetDefault("ai.requesttimeout", "20s")
	v.SetDefault("ai.workers", def.AI.Workers)

	// Try to read config file (it's optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if strings.Contains(err.Error(), "no such file or directory") {
				// File doesn't exist, continue with defaults
			} else {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
		// Config file not found; continue with env vars and defaults
	}

	cfg := &ServerConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
