package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the aggregator process.
type Config struct {
	// Tick cadence
	UITickMs           int  `yaml:"ui_tick_ms"`   // snapshot push interval (default 500, 1500 under LowPerformanceMode)
	PartyTickMs        int  `yaml:"party_tick_ms"` // party composition refresh interval (default 2000)
	LowPerformanceMode bool `yaml:"low_performance_mode"`

	// Encounter filtering
	BossOnlyDamage               bool  `yaml:"boss_only_damage"`
	MinBossHP                    int64 `yaml:"min_boss_hp"`
	CaptureDamagePacketTimeoutMs int   `yaml:"capture_damage_packet_timeout_ms"` // post-raid-end damage cooldown (default 10000)

	// DecryptKeyHex, when set, selects the blowfish-keyed damage decryptor
	// over the pass-through stub. Hex-encoded to keep it YAML-safe.
	DecryptKeyHex string `yaml:"decrypt_key_hex"`

	// ReplayFile, when set, runs the aggregator against a saved capture
	// (see capture.LoadReplayFile) instead of a live feed.
	ReplayFile string `yaml:"replay_file"`

	// StatsAPIBaseURL, when set, wires the remote inspect/raid-telemetry
	// client; left empty, the core runs with no stats collaborator.
	StatsAPIBaseURL string `yaml:"stats_api_base_url"`

	// Region is the text region code stamped onto every persisted
	// encounter row, mirroring the local current_region file.
	Region string `yaml:"region"`

	// LocalPlayersFile points at the character_id -> {name, count} cache
	// PartyInfo consults to recognize the local player across a
	// reconnect (see LoadLocalPlayers/SaveLocalPlayers).
	LocalPlayersFile string `yaml:"local_players_file"`

	// Logging
	LogLevel string `yaml:"log_level"` // debug, info, warn, error (default: info)

	// Persistence
	Database DatabaseConfig `yaml:"database"`

	// Local UI push transport
	EventsServer EventsServerConfig `yaml:"events_server"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`

	// Connection pool parameters (optional, defaults from pgxpool apply if not set)
	MaxConns          int32  `yaml:"max_conns"`
	MinConns          int32  `yaml:"min_conns"`
	MaxConnLifetime   string `yaml:"max_conn_lifetime"`
	MaxConnIdleTime   string `yaml:"max_conn_idle_time"`
	HealthCheckPeriod string `yaml:"health_check_period"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	base := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)

	var params []string
	if d.MaxConns > 0 {
		params = append(params, fmt.Sprintf("pool_max_conns=%d", d.MaxConns))
	}
	if d.MinConns > 0 {
		params = append(params, fmt.Sprintf("pool_min_conns=%d", d.MinConns))
	}
	if d.MaxConnLifetime != "" {
		params = append(params, fmt.Sprintf("pool_max_conn_lifetime=%s", d.MaxConnLifetime))
	}
	if d.MaxConnIdleTime != "" {
		params = append(params, fmt.Sprintf("pool_max_conn_idle_time=%s", d.MaxConnIdleTime))
	}
	if d.HealthCheckPeriod != "" {
		params = append(params, fmt.Sprintf("pool_health_check_period=%s", d.HealthCheckPeriod))
	}

	if len(params) > 0 {
		return base + "&" + strings.Join(params, "&")
	}
	return base
}

// EventsServerConfig holds the local snapshot-push HTTP/WS listener settings.
type EventsServerConfig struct {
	BindAddress  string   `yaml:"bind_address"`
	Port         int      `yaml:"port"`
	AllowOrigins []string `yaml:"allow_origins"`

	// RedisAddr, when non-empty, fans snapshots out over redis pub/sub in
	// addition to the local websocket transport.
	RedisAddr string `yaml:"redis_addr"`
}

// Default returns Config with sensible defaults.
func Default() Config {
	return Config{
		UITickMs:                     500,
		PartyTickMs:                  2000,
		LowPerformanceMode:           false,
		BossOnlyDamage:               false,
		MinBossHP:                    0,
		CaptureDamagePacketTimeoutMs: 10000,
		LogLevel:                     "info",
		LocalPlayersFile:             "local_players.json",
		Database: DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "meter",
			Password: "meter",
			DBName:   "meter",
			SSLMode:  "disable",
		},
		EventsServer: EventsServerConfig{
			BindAddress:  "127.0.0.1",
			Port:         6470,
			AllowOrigins: []string{"http://localhost:6470"},
		},
	}
}

// Load reads config from a YAML file. If the file doesn't exist, returns
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// TickMs returns the effective UI tick interval, widened under
// LowPerformanceMode.
func (c Config) TickMs() int {
	if c.LowPerformanceMode && c.UITickMs < 1500 {
		return 1500
	}
	return c.UITickMs
}
