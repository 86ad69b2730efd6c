package config

import (
	"fmt"
	"time"
)

// This file defines the configuration structures used by viper_config.go
// The actual loading is handled by viper in viper_config.go

// ServerConfig is the root configuration for the service
type ServerConfig struct {
	Server   ServerSettings   `yaml:"server"`
	Game     GameSettings     `yaml:"game"`
	Presence PresenceSettings `yaml:"presence"`
	Database DatabaseSettings `yaml:"database"`
	Redis    RedisSettings    `yaml:"redis"`
	Auth     AuthSettings     `yaml:"auth"`
	AI       AISettings       `yaml:"ai"`
}

// ServerSettings contains server-wide settings
type ServerSettings struct {
	Port            string        `yaml:"port"`
	Host            string        `yaml:"host"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"` // 0 keeps websockets open
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"` // middleware timeout for plain HTTP

	// Rate limiting (using golang.org/x/time/rate)
	RateLimit      float64 `yaml:"rateLimit"`      // requests per second per client
	RateLimitBurst int     `yaml:"rateLimitBurst"` // burst size

	// Request limits
	MaxRequestSize int64 `yaml:"maxRequestSize"`

	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"` // "json" or "console"
}

// GameSettings holds the round timing schedule and room shape limits.
type GameSettings struct {
	// SelectionSeconds is indexed by round number - 1. Rounds past the
	// end of the slice reuse the last entry.
	SelectionSeconds []int         `yaml:"selectionSeconds"`
	VotingTimeout    time.Duration `yaml:"votingTimeout"`
	ResultsDisplay   time.Duration `yaml:"resultsDisplay"`
	MaxRounds        int           `yaml:"maxRounds"`

	MinPlayersPerRoom int `yaml:"minPlayersPerRoom"`
	MaxPlayersPerRoom int `yaml:"maxPlayersPerRoom"`

	RoomCodeLength   int    `yaml:"roomCodeLength"`
	RoomCodeAlphabet string `yaml:"roomCodeAlphabet"`
}

// SelectionDuration returns the card-selection window for a round.
func (g GameSettings) SelectionDuration(round int) time.Duration {
	if len(g.SelectionSeconds) == 0 {
		return 50 * time.Second
	}
	idx := round - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(g.SelectionSeconds) {
		idx = len(g.SelectionSeconds) - 1
	}
	return time.Duration(g.SelectionSeconds[idx]) * time.Second
}

// PresenceSettings tunes the liveness thresholds.
type PresenceSettings struct {
	InactivityTimeout time.Duration `yaml:"inactivityTimeout"`
	MaxDisconnects    int           `yaml:"maxDisconnects"`
	MaxMissedActions  int           `yaml:"maxMissedActions"`
	ScanInterval      time.Duration `yaml:"scanInterval"`
}

// DatabaseSettings configures the Postgres pool.
type DatabaseSettings struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"maxConns"`
}

// RedisSettings configures the bus and job queue connection.
type RedisSettings struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AuthSettings configures bearer-token verification.
type AuthSettings struct {
	JWTSecret string        `yaml:"jwtSecret"`
	TokenTTL  time.Duration `yaml:"tokenTTL"`
}

// AISettings configures the situation generator collaborator.
type AISettings struct {
	Endpoint       string        `yaml:"endpoint"` // empty disables remote generation
	Language       string        `yaml:"language"`
	QueueName      string        `yaml:"queueName"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	Workers        int           `yaml:"workers"`
}

// DefaultConfig returns a configuration a bare binary can run with.
func DefaultConfig() *ServerConfig {
	return &ServerConfig{
		Server: ServerSettings{
			Port:            "8080",
			Host:            "0.0.0.0",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     0, // 0 keeps websockets open
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  60 * time.Second,
			RateLimit:       20,
			RateLimitBurst:  40,
			MaxRequestSize:  1048576, // 1MB
			LogLevel:        "info",
			LogFormat:       "json",
		},
		Game: GameSettings{
			SelectionSeconds:  []int{50, 45, 40, 35, 30, 30, 30},
			VotingTimeout:     180 * time.Second,
			ResultsDisplay:    5 * time.Second,
			MaxRounds:         7,
			MinPlayersPerRoom: 3,
			MaxPlayersPerRoom: 8,
			RoomCodeLength:    6,
			RoomCodeAlphabet:  "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789",
		},
		Presence: PresenceSettings{
			InactivityTimeout: 30 * time.Second,
			MaxDisconnects:    3,
			MaxMissedActions:  2,
			ScanInterval:      10 * time.Second,
		},
		Database: DatabaseSettings{
			URL:      "postgres://localhost:5432/memebattle?sslmode=disable",
			MaxConns: 10,
		},
		Redis: RedisSettings{
			Addr: "localhost:6379",
		},
		Auth: AuthSettings{
			JWTSecret: "",
			TokenTTL:  168 * time.Hour,
		},
		AI: AISettings{
			Language:       "en",
			QueueName:      "memebattle:situation_jobs",
			RequestTimeout: 20 * time.Second,
			Workers:        2,
		},
	}
}

// Validate checks if the configuration is valid
func (c *ServerConfig) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port must be set")
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host must be set")
	}

	if c.Game.MaxRounds < 1 {
		return fmt.Errorf("maxRounds must be at least 1")
	}
	if len(c.Game.SelectionSeconds) == 0 {
		return fmt.Errorf("selectionSeconds schedule must not be empty")
	}
	for i, s := range c.Game.SelectionSeconds {
		if s <= 0 {
			return fmt.Errorf("selectionSeconds[%d] must be positive", i)
		}
	}
	if c.Game.VotingTimeout <= 0 {
		return fmt.Errorf("votingTimeout must be positive")
	}
	if c.Game.ResultsDisplay <= 0 {
		return fmt.Errorf("resultsDisplay must be positive")
	}
	if c.Game.MinPlayersPerRoom < 2 {
		return fmt.Errorf("minPlayersPerRoom must be at least 2")
	}
	if c.Game.MinPlayersPerRoom > c.Game.MaxPlayersPerRoom {
		return fmt.Errorf("minPlayersPerRoom cannot be greater than maxPlayersPerRoom")
	}
	if c.Game.RoomCodeLength < 4 {
		return fmt.Errorf("roomCodeLength must be at least 4")
	}
	if len(c.Game.RoomCodeAlphabet) < 10 {
		return fmt.Errorf("roomCodeAlphabet is too small to generate unique codes")
	}

	if c.Presence.InactivityTimeout <= 0 {
		return fmt.Errorf("inactivityTimeout must be positive")
	}
	if c.Presence.MaxDisconnects < 1 {
		return fmt.Errorf("maxDisconnects must be at least 1")
	}
	if c.Presence.MaxMissedActions < 1 {
		return fmt.Errorf("maxMissedActions must be at least 1")
	}
	if c.Presence.ScanInterval <= 0 {
		return fmt.Errorf("scanInterval must be positive")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("database url must be set")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis addr must be set")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("tokenTTL must be positive")
	}
	if c.AI.Workers < 1 {
		return fmt.Errorf("ai workers must be at least 1")
	}

	return nil
}
