// Package config provides Viper-based configuration loading for the turf server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// WebSocketConfig holds the WebSocket acceptor settings.
type WebSocketConfig struct {
	// Host is the bind address for the HTTP listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the HTTP listener.
	Port int `mapstructure:"port"`
	// Path is the URL path clients connect to.
	Path string `mapstructure:"path"`
	// WriteTimeout is the per-message write deadline.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// PongTimeout is how long a connection may go without a pong before it is dropped.
	PongTimeout time.Duration `mapstructure:"pong_timeout"`
	// SendBuffer is the per-session outbound event buffer size.
	SendBuffer int `mapstructure:"send_buffer"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (w WebSocketConfig) Addr() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}

// AuthConfig holds connect-time authentication settings.
type AuthConfig struct {
	// JWTSecret is the HMAC secret for handshake tokens. Empty disables
	// token verification; clients must then pass a plain user identity.
	JWTSecret string `mapstructure:"jwt_secret"`
	// AllowPlainIdentity permits the "user" query parameter as an identity
	// source when no token is presented. Intended for development.
	AllowPlainIdentity bool `mapstructure:"allow_plain_identity"`
}

// GameConfig holds gameplay settings.
type GameConfig struct {
	// DefaultGame is the game joined when the handshake names none.
	DefaultGame string `mapstructure:"default_game"`
	// TickInterval is the elapsed-time ticker period.
	TickInterval time.Duration `mapstructure:"tick_interval"`
	// RegionsDir is the directory of county YAML data files.
	RegionsDir string `mapstructure:"regions_dir"`
	// IncomeScriptDir is the directory of Lua income scripts; empty uses the
	// built-in contribution formula.
	IncomeScriptDir string `mapstructure:"income_script_dir"`
	// ScriptInstructionLimit caps Lua opcodes per script call; 0 = default.
	ScriptInstructionLimit int `mapstructure:"script_instruction_limit"`
	// StartingMoney is the balance granted when a player joins a game.
	StartingMoney int64 `mapstructure:"starting_money"`
	// PopulationCeiling is the population at which placement cost maxes out.
	PopulationCeiling int64 `mapstructure:"population_ceiling"`
	// MaxPlacementCost is the placement cost at the population ceiling.
	MaxPlacementCost int64 `mapstructure:"max_placement_cost"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Game      GameConfig      `mapstructure:"game"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateDatabase(c.Database); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateWebSocket(c.WebSocket); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateAuth(c.Auth); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateGame(c.Game); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateWebSocket(w WebSocketConfig) error {
	var errs []string
	if w.Port < 1 || w.Port > 65535 {
		errs = append(errs, fmt.Sprintf("websocket.port must be 1-65535, got %d", w.Port))
	}
	if !strings.HasPrefix(w.Path, "/") {
		errs = append(errs, fmt.Sprintf("websocket.path must start with '/', got %q", w.Path))
	}
	if w.WriteTimeout < 0 {
		errs = append(errs, "websocket.write_timeout must not be negative")
	}
	if w.PongTimeout < 0 {
		errs = append(errs, "websocket.pong_timeout must not be negative")
	}
	if w.SendBuffer < 1 {
		errs = append(errs, fmt.Sprintf("websocket.send_buffer must be >= 1, got %d", w.SendBuffer))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateAuth(a AuthConfig) error {
	if a.JWTSecret == "" && !a.AllowPlainIdentity {
		return errors.New("auth.jwt_secret must be set when auth.allow_plain_identity is false")
	}
	return nil
}

func validateGame(g GameConfig) error {
	var errs []string
	if g.DefaultGame == "" {
		errs = append(errs, "game.default_game must not be empty")
	}
	if g.TickInterval <= 0 {
		errs = append(errs, fmt.Sprintf("game.tick_interval must be > 0, got %s", g.TickInterval))
	}
	if g.RegionsDir == "" {
		errs = append(errs, "game.regions_dir must not be empty")
	}
	if g.ScriptInstructionLimit < 0 {
		errs = append(errs, fmt.Sprintf("game.script_instruction_limit must be >= 0, got %d", g.ScriptInstructionLimit))
	}
	if g.StartingMoney < 0 {
		errs = append(errs, fmt.Sprintf("game.starting_money must be >= 0, got %d", g.StartingMoney))
	}
	if g.PopulationCeiling < 1 {
		errs = append(errs, fmt.Sprintf("game.population_ceiling must be >= 1, got %d", g.PopulationCeiling))
	}
	if g.MaxPlacementCost < 0 {
		errs = append(errs, fmt.Sprintf("game.max_placement_cost must be >= 0, got %d", g.MaxPlacementCost))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with TURF_ prefix
	v.SetEnvPrefix("TURF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "turf")
	v.SetDefault("database.password", "turf")
	v.SetDefault("database.name", "turf")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("websocket.host", "0.0.0.0")
	v.SetDefault("websocket.port", 8080)
	v.SetDefault("websocket.path", "/ws")
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.pong_timeout", "60s")
	v.SetDefault("websocket.send_buffer", 64)

	v.SetDefault("auth.allow_plain_identity", true)

	v.SetDefault("game.default_game", "default")
	v.SetDefault("game.tick_interval", "10s")
	v.SetDefault("game.regions_dir", "content/regions")
	v.SetDefault("game.income_script_dir", "content/scripts/income")
	v.SetDefault("game.script_instruction_limit", 0)
	v.SetDefault("game.starting_money", 25000)
	v.SetDefault("game.population_ceiling", 250000)
	v.SetDefault("game.max_placement_cost", 10000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
