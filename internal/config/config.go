package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/encounter"
)

// Config holds all configuration for the application
type Config struct {
	Game    GameConfig    `mapstructure:"game"`
	AI      AIConfig      `mapstructure:"ai"`
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Events  EventsConfig  `mapstructure:"events"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// GameConfig holds the encounter defaults used when a roster has no config
type GameConfig struct {
	MapRadius         int                 `mapstructure:"map_radius"`
	TurnLimit         int                 `mapstructure:"turn_limit"`
	Seed              int64               `mapstructure:"seed"`
	VictoryConditions []string            `mapstructure:"victory_conditions"`
	OptionalRules     OptionalRulesConfig `mapstructure:"optional_rules"`
	TerrainDensity    float64             `mapstructure:"terrain_density"`
}

// OptionalRulesConfig toggles optional rules
type OptionalRulesConfig struct {
	HeatEffects bool `mapstructure:"heat_effects"`
	PilotDamage bool `mapstructure:"pilot_damage"`
}

// AIConfig holds AI turn runner settings
type AIConfig struct {
	HeatMargin        int     `mapstructure:"heat_margin"`
	MaxCallsPerUnit   int     `mapstructure:"max_calls_per_unit"`
	PhysicalThreshold float64 `mapstructure:"physical_threshold"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	GRPCServer GRPCServerConfig `mapstructure:"grpc_server"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// GRPCServerConfig holds gRPC server configuration
type GRPCServerConfig struct {
	Host                      string `mapstructure:"host"`
	Port                      int    `mapstructure:"port"`
	LogLevel                  string `mapstructure:"log_level"`
	MaxSessions               int    `mapstructure:"max_sessions"`
	EnableReflection          bool   `mapstructure:"enable_reflection"`
	GracefulShutdownDelay     int    `mapstructure:"graceful_shutdown_delay"`
	SessionTTLMinutes         int    `mapstructure:"session_ttl_minutes"`
	FinishedSessionTTLMinutes int    `mapstructure:"finished_session_ttl_minutes"`
}

// MetricsConfig holds the side HTTP server serving /metrics and /healthz
type MetricsConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// StorageConfig holds persistence settings
type StorageConfig struct {
	SQLite SQLiteConfig `mapstructure:"sqlite"`
	Redis  RedisConfig  `mapstructure:"redis"`
}

// SQLiteConfig holds the event journal settings
type SQLiteConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// RedisConfig holds the snapshot cache settings
type RedisConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Addr       string `mapstructure:"addr"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

// EventsConfig holds event bus subscriber settings
type EventsConfig struct {
	LogEnabled     bool   `mapstructure:"log_enabled"`
	DevMode        bool   `mapstructure:"dev_mode"`
	ForwardEnabled bool   `mapstructure:"forward_enabled"`
	Topic          string `mapstructure:"topic"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var (
	// Global config instance
	cfg *Config
	v   *viper.Viper
)

// setViperDefaults sets all default values using Viper's SetDefault
func setViperDefaults(v *viper.Viper) {
	// Encounter defaults
	v.SetDefault("game.map_radius", 8)
	v.SetDefault("game.turn_limit", 0)
	v.SetDefault("game.seed", 0)
	v.SetDefault("game.victory_conditions", []string{string(encounter.VictoryElimination)})
	v.SetDefault("game.optional_rules.heat_effects", true)
	v.SetDefault("game.optional_rules.pilot_damage", true)
	v.SetDefault("game.terrain_density", 0.0)

	// AI defaults
	v.SetDefault("ai.heat_margin", 4)
	v.SetDefault("ai.max_calls_per_unit", 3)
	v.SetDefault("ai.physical_threshold", 0.5)

	// gRPC server defaults
	v.SetDefault("server.grpc_server.host", "0.0.0.0")
	v.SetDefault("server.grpc_server.port", 50051)
	v.SetDefault("server.grpc_server.log_level", "info")
	v.SetDefault("server.grpc_server.max_sessions", 100)
	v.SetDefault("server.grpc_server.enable_reflection", true)
	v.SetDefault("server.grpc_server.graceful_shutdown_delay", 5)
	v.SetDefault("server.grpc_server.session_ttl_minutes", 30)
	v.SetDefault("server.grpc_server.finished_session_ttl_minutes", 5)

	// Metrics server defaults
	v.SetDefault("server.metrics.host", "0.0.0.0")
	v.SetDefault("server.metrics.port", 9090)

	// Storage defaults
	v.SetDefault("storage.sqlite.enabled", true)
	v.SetDefault("storage.sqlite.path", "mekencounter.db")
	v.SetDefault("storage.redis.enabled", false)
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.ttl_seconds", 3600)

	// Event subscriber defaults
	v.SetDefault("events.log_enabled", true)
	v.SetDefault("events.dev_mode", false)
	v.SetDefault("events.forward_enabled", false)
	v.SetDefault("events.topic", "mekencounter.events")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Init initializes the configuration
func Init(configPath string) error {
	v = viper.New()

	// Set defaults before loading any config
	setViperDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/mekencounter")
	}

	v.SetEnvPrefix("MEK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing explicit file falls back to defaults; for the default
		// locations only ConfigFileNotFoundError is ignored.
		if configPath == "" {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	cfg = &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	return nil
}

// Get returns the global config instance
func Get() *Config {
	if cfg == nil {
		if err := Init(""); err != nil {
			panic("failed to initialize config with defaults: " + err.Error())
		}
	}
	return cfg
}

// GetViper returns the viper instance for advanced usage
func GetViper() *viper.Viper {
	if v == nil {
		panic("config not initialized - call Init() first")
	}
	return v
}

// LoadEnvironmentConfig merges config.<env>.yaml over the loaded config
func LoadEnvironmentConfig(env string) error {
	if env == "" {
		return nil
	}

	envFile := fmt.Sprintf("config.%s.yaml", env)
	v.SetConfigFile(envFile)
	if err := v.MergeInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error merging environment config %s: %w", envFile, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unable to decode merged config into struct: %w", err)
	}
	return nil
}

// Set allows runtime config updates
func Set(key string, value interface{}) {
	v.Set(key, value)
	v.Unmarshal(cfg)
}

// GetString gets a string value from config
func GetString(key string) string {
	return v.GetString(key)
}

// GetInt gets an int value from config
func GetInt(key string) int {
	return v.GetInt(key)
}

// GetBool gets a bool value from config
func GetBool(key string) bool {
	return v.GetBool(key)
}

// GetFloat64 gets a float64 value from config
func GetFloat64(key string) float64 {
	return v.GetFloat64(key)
}

// ConfigFilePath returns the path of the loaded config file
func ConfigFilePath() string {
	return v.ConfigFileUsed()
}

// WatchConfig enables hot-reloading of config file
func WatchConfig(onChange func()) {
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		v.Unmarshal(cfg)
		if onChange != nil {
			onChange()
		}
	})
}

// EncounterDefaults converts the game section into an encounter config
func (c *Config) EncounterDefaults() encounter.Config {
	out := encounter.Config{
		MapRadius: c.Game.MapRadius,
		TurnLimit: c.Game.TurnLimit,
		Seed:      c.Game.Seed,
		OptionalRules: encounter.OptionalRules{
			HeatEffects: c.Game.OptionalRules.HeatEffects,
			PilotDamage: c.Game.OptionalRules.PilotDamage,
		},
		TerrainDensity: c.Game.TerrainDensity,
	}
	for _, vc := range c.Game.VictoryConditions {
		out.VictoryConditions = append(out.VictoryConditions, encounter.VictoryCondition(vc))
	}
	return out
}

// SessionTTL returns the idle and finished session lifetimes
func (c *Config) SessionTTL() (idle, finished time.Duration) {
	idle = time.Duration(c.Server.GRPCServer.SessionTTLMinutes) * time.Minute
	finished = time.Duration(c.Server.GRPCServer.FinishedSessionTTLMinutes) * time.Minute
	return idle, finished
}

// RedisTTL returns the snapshot lifetime; 0 keeps snapshots forever
func (c *Config) RedisTTL() time.Duration {
	return time.Duration(c.Storage.Redis.TTLSeconds) * time.Second
}

// Validate validates the configuration values
func Validate(c *Config) error {
	// Encounter defaults
	if c.Game.MapRadius < 1 || c.Game.MapRadius > 64 {
		return fmt.Errorf("game.map_radius must be between 1 and 64")
	}
	if c.Game.TurnLimit < 0 {
		return fmt.Errorf("game.turn_limit must be non-negative")
	}
	if len(c.Game.VictoryConditions) == 0 {
		return fmt.Errorf("game.victory_conditions must not be empty")
	}
	for _, vc := range c.Game.VictoryConditions {
		switch encounter.VictoryCondition(vc) {
		case encounter.VictoryElimination, encounter.VictoryTurnLimit:
		default:
			return fmt.Errorf("game.victory_conditions: unknown condition %q", vc)
		}
	}
	if c.Game.TerrainDensity < 0 || c.Game.TerrainDensity > 0.5 {
		return fmt.Errorf("game.terrain_density must be between 0 and 0.5")
	}

	// AI
	if c.AI.HeatMargin < 0 {
		return fmt.Errorf("ai.heat_margin must be non-negative")
	}
	if c.AI.MaxCallsPerUnit <= 0 {
		return fmt.Errorf("ai.max_calls_per_unit must be positive")
	}
	if c.AI.PhysicalThreshold < 0 || c.AI.PhysicalThreshold > 1 {
		return fmt.Errorf("ai.physical_threshold must be between 0 and 1")
	}

	// Servers
	if c.Server.GRPCServer.Port <= 0 || c.Server.GRPCServer.Port > 65535 {
		return fmt.Errorf("server.grpc_server.port must be between 1 and 65535")
	}
	if c.Server.GRPCServer.MaxSessions <= 0 {
		return fmt.Errorf("server.grpc_server.max_sessions must be positive")
	}
	if c.Server.GRPCServer.GracefulShutdownDelay < 0 {
		return fmt.Errorf("server.grpc_server.graceful_shutdown_delay must be non-negative")
	}
	if c.Server.GRPCServer.SessionTTLMinutes < 0 || c.Server.GRPCServer.FinishedSessionTTLMinutes < 0 {
		return fmt.Errorf("server.grpc_server session ttls must be non-negative")
	}
	if c.Server.Metrics.Port < 0 || c.Server.Metrics.Port > 65535 {
		return fmt.Errorf("server.metrics.port must be between 0 and 65535")
	}

	// Storage
	if c.Storage.SQLite.Enabled && strings.TrimSpace(c.Storage.SQLite.Path) == "" {
		return fmt.Errorf("storage.sqlite.path is required when sqlite is enabled")
	}
	if c.Storage.Redis.Enabled && c.Storage.Redis.Addr == "" {
		return fmt.Errorf("storage.redis.addr is required when redis is enabled")
	}
	if c.Storage.Redis.TTLSeconds < 0 {
		return fmt.Errorf("storage.redis.ttl_seconds must be non-negative")
	}

	// Logging
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json")
	}

	return nil
}
