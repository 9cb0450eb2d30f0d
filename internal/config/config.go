// Package config provides centralized configuration management.
// Every tunable of the server lives here; other packages receive values
// through their own Config structs built by cmd/server.
package config

import (
	"os"
	"strconv"
	"strings"
)

// =============================================================================
// SIMULATION HOST
// =============================================================================

// SimConfig holds settings for the engine host loop.
// Engine tunables themselves come from the params YAML (see params.go).
type SimConfig struct {
	Seed            uint32  // Construction seed, 0 is remapped by the engine
	TickRate        int     // Host loop wakeups per second
	StepsPerSecond  float64 // Simulated steps per real second (0 = surveyTickHz)
	MaxStepsPerTick int     // Catch-up cap after a stall
	ParamsFile      string  // Optional YAML overriding the embedded defaults
	EventLogPath    string  // JSONL event log ("" = keep in memory only)
}

// DefaultSim returns the default host loop configuration.
func DefaultSim() SimConfig {
	return SimConfig{
		Seed:            1,
		TickRate:        30,
		StepsPerSecond:  0,
		MaxStepsPerTick: 64,
		EventLogPath:    "",
	}
}

// SimFromEnv returns host loop configuration with environment variable overrides.
func SimFromEnv() SimConfig {
	cfg := DefaultSim()

	if v := os.Getenv("SIM_SEED"); v != "" {
		if seed, err := strconv.ParseUint(v, 0, 32); err == nil {
			cfg.Seed = uint32(seed)
		}
	}
	if tr := getEnvInt("SIM_TICK_RATE", 0); tr > 0 {
		cfg.TickRate = tr
	}
	if sps := getEnvFloat("SIM_STEPS_PER_SECOND", -1); sps >= 0 {
		cfg.StepsPerSecond = sps
	}
	if ms := getEnvInt("SIM_MAX_STEPS_PER_TICK", 0); ms > 0 {
		cfg.MaxStepsPerTick = ms
	}
	if f := os.Getenv("SIM_PARAMS_FILE"); f != "" {
		cfg.ParamsFile = f
	}
	if f := os.Getenv("SIM_EVENT_LOG"); f != "" {
		cfg.EventLogPath = f
	}

	return cfg
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               int
	CORSOrigins        []string // nil = localhost only
	MaxStepsPerRequest int      // Cap for POST /api/step
	MaxSpawnPerRequest int      // Cap for POST /api/spawn/stars
	MaxParamsStars     int      // Largest maxStars POST /api/params accepts
	MaxParamsCivs      int      // Largest maxCivs POST /api/params accepts
	RequestsPerSecond  float64  // Per-IP rate limit
	Burst              int
	TrustProxy         bool   // Honor X-Forwarded-For
	AdminToken         string // Guards POST routes; empty disables auth
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:               3000,
		MaxStepsPerRequest: 1000,
		MaxSpawnPerRequest: 10_000,
		MaxParamsStars:     1_000_000,
		MaxParamsCivs:      100_000,
		RequestsPerSecond:  20,
		Burst:              40,
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}
	if n := getEnvInt("MAX_STEPS_PER_REQUEST", 0); n > 0 {
		cfg.MaxStepsPerRequest = n
	}
	if n := getEnvInt("MAX_SPAWN_PER_REQUEST", 0); n > 0 {
		cfg.MaxSpawnPerRequest = n
	}
	if n := getEnvInt("MAX_PARAMS_STARS", 0); n > 0 {
		cfg.MaxParamsStars = n
	}
	if n := getEnvInt("MAX_PARAMS_CIVS", 0); n > 0 {
		cfg.MaxParamsCivs = n
	}
	if rps := getEnvFloat("RATE_LIMIT_RPS", 0); rps > 0 {
		cfg.RequestsPerSecond = rps
	}
	if b := getEnvInt("RATE_LIMIT_BURST", 0); b > 0 {
		cfg.Burst = b
	}
	cfg.TrustProxy = os.Getenv("TRUST_PROXY") == "true"
	cfg.AdminToken = os.Getenv("ADMIN_TOKEN")

	return cfg
}

// =============================================================================
// FRAME LIMITS
// =============================================================================

// FrameLimits bounds how much state one published frame or list response carries.
type FrameLimits struct {
	MaxFrameCivs  int // Civilizations per frame
	MaxFrameStars int // Stars per frame
	MaxMapPoints  int // Points on the minimap
	MinimapSize   int // Minimap edge in pixels
}

// DefaultLimits returns the default frame limits.
func DefaultLimits() FrameLimits {
	return FrameLimits{
		MaxFrameCivs:  4000,
		MaxFrameStars: 2000,
		MaxMapPoints:  800,
		MinimapSize:   256,
	}
}

// LimitsFromEnv returns frame limits with environment variable overrides.
func LimitsFromEnv() FrameLimits {
	cfg := DefaultLimits()

	if n := getEnvInt("FRAME_MAX_CIVS", 0); n > 0 {
		cfg.MaxFrameCivs = n
	}
	if n := getEnvInt("FRAME_MAX_STARS", -1); n >= 0 {
		cfg.MaxFrameStars = n
	}
	if n := getEnvInt("MINIMAP_POINTS", 0); n > 0 {
		cfg.MaxMapPoints = n
	}
	if n := getEnvInt("MINIMAP_SIZE", 0); n > 0 {
		cfg.MinimapSize = n
	}

	return cfg
}

// =============================================================================
// OBSERVABILITY
// =============================================================================

// ObservabilityConfig configures the localhost debug server.
type ObservabilityConfig struct {
	Enabled       bool
	ListenAddr    string
	BasicAuthUser string
	BasicAuthPass string
}

// DefaultObservability returns safe defaults (localhost only).
func DefaultObservability() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060",
	}
}

// ObservabilityFromEnv returns debug server configuration with environment overrides.
func ObservabilityFromEnv() ObservabilityConfig {
	cfg := DefaultObservability()

	if os.Getenv("DEBUG_SERVER") == "false" {
		cfg.Enabled = false
	}
	if addr := os.Getenv("DEBUG_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}
	cfg.BasicAuthUser = os.Getenv("DEBUG_USER")
	cfg.BasicAuthPass = os.Getenv("DEBUG_PASS")

	return cfg
}

// =============================================================================
// FRAME FEED
// =============================================================================

// FeedConfig configures the local socket feed for external viewers.
type FeedConfig struct {
	Enabled    bool
	SocketPath string // Unix socket path or Windows pipe name
	Hz         int    // Frames published per second
}

// DefaultFeed returns the default feed configuration.
func DefaultFeed() FeedConfig {
	return FeedConfig{
		Enabled:    true,
		SocketPath: "",
		Hz:         10,
	}
}

// FeedFromEnv returns feed configuration with environment variable overrides.
func FeedFromEnv() FeedConfig {
	cfg := DefaultFeed()

	if os.Getenv("FEED_ENABLED") == "false" {
		cfg.Enabled = false
	}
	if p := os.Getenv("FEED_SOCKET"); p != "" {
		cfg.SocketPath = p
	}
	if hz := getEnvInt("FEED_HZ", 0); hz > 0 {
		cfg.Hz = hz
	}

	return cfg
}

// =============================================================================
// RUN HISTORY
// =============================================================================

// HistoryConfig configures the SQLite run archive.
type HistoryConfig struct {
	Path        string // "" disables the archive
	SampleEvery int    // Record one sample every N steps
}

// DefaultHistory returns the default archive configuration.
func DefaultHistory() HistoryConfig {
	return HistoryConfig{
		Path:        "",
		SampleEvery: 20,
	}
}

// HistoryFromEnv returns archive configuration with environment variable overrides.
func HistoryFromEnv() HistoryConfig {
	cfg := DefaultHistory()

	if p := os.Getenv("HISTORY_DB"); p != "" {
		cfg.Path = p
	}
	if n := getEnvInt("HISTORY_SAMPLE_EVERY", 0); n > 0 {
		cfg.SampleEvery = n
	}

	return cfg
}

// =============================================================================
// REDIS RELAY
// =============================================================================

// RedisConfig configures the optional snapshot relay.
type RedisConfig struct {
	URL     string // "" disables the relay
	Channel string
}

// DefaultRedis returns the default relay configuration.
func DefaultRedis() RedisConfig {
	return RedisConfig{
		Channel: "darkforest:snapshot",
	}
}

// RedisFromEnv returns relay configuration with environment variable overrides.
func RedisFromEnv() RedisConfig {
	cfg := DefaultRedis()

	if u := os.Getenv("REDIS_URL"); u != "" {
		cfg.URL = u
	}
	if c := os.Getenv("REDIS_CHANNEL"); c != "" {
		cfg.Channel = c
	}

	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Sim           SimConfig
	Server        ServerConfig
	Limits        FrameLimits
	Observability ObservabilityConfig
	Feed          FeedConfig
	History       HistoryConfig
	Redis         RedisConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		Sim:           SimFromEnv(),
		Server:        ServerFromEnv(),
		Limits:        LimitsFromEnv(),
		Observability: ObservabilityFromEnv(),
		Feed:          FeedFromEnv(),
		History:       HistoryFromEnv(),
		Redis:         RedisFromEnv(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
