// Package config loads oskour settings from the environment, an optional .env file
// and an optional TOML file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Storage backends for persisted client state.
const (
	StoreFile      = "file"
	StoreSQLite    = "sqlite"
	StoreSurrealDB = "surrealdb"
	StoreMemory    = "memory"
)

// Config holds all configuration values.
type Config struct {
	// Backend API
	APIURL        string
	ClientTimeout time.Duration
	RateLimit     float64 // requests per second, 0 disables pacing
	KnowledgeBase string
	Model         string

	// Chat widget
	Source           string
	TrendingLimit    int
	TrendingInterval time.Duration
	TypingDelayMin   time.Duration
	TypingDelayMax   time.Duration

	// Dashboard
	StatsInterval time.Duration
	IncidentWarn  int
	IncidentCrit  int

	// Persisted state
	Store    string
	StateDir string

	// SurrealDB connection (Store == "surrealdb")
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Logging
	LogFile  string
	LogLevel slog.Level

	// Reference backend
	MockPort int
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first; variables already set win.
// When OSKOUR_CONFIG_FILE names a TOML file its values replace the built-in defaults.
func Load() Config {
	_ = godotenv.Load()

	var file map[string]string
	if path := os.Getenv("OSKOUR_CONFIG_FILE"); path != "" {
		var err error
		file, err = readFile(path)
		if err != nil {
			slog.Warn("ignoring config file", "path", path, "error", err)
		}
	}
	return build(file)
}

// LoadFile reads configuration from the environment with defaults from the TOML file at path.
func LoadFile(path string) (Config, error) {
	file, err := readFile(path)
	if err != nil {
		return Config{}, err
	}
	return build(file), nil
}

func build(file map[string]string) Config {
	get := func(key, defaultVal string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		if val, ok := file[key]; ok && val != "" {
			return val
		}
		return defaultVal
	}

	return Config{
		APIURL:        strings.TrimRight(get("OSKOUR_API_URL", "http://localhost:8091"), "/"),
		ClientTimeout: parseDuration(get("OSKOUR_CLIENT_TIMEOUT", ""), 60*time.Second),
		RateLimit:     parseFloat(get("OSKOUR_RATE_LIMIT", ""), 5),
		KnowledgeBase: get("OSKOUR_KNOWLEDGE_BASE", "helpdesk"),
		Model:         get("OSKOUR_MODEL", ""),

		Source:           get("OSKOUR_SOURCE", "user"),
		TrendingLimit:    parseInt(get("OSKOUR_TRENDING_LIMIT", ""), 5),
		TrendingInterval: parseDuration(get("OSKOUR_TRENDING_INTERVAL", ""), 5*time.Minute),
		TypingDelayMin:   parseDuration(get("OSKOUR_TYPING_DELAY_MIN", ""), 500*time.Millisecond),
		TypingDelayMax:   parseDuration(get("OSKOUR_TYPING_DELAY_MAX", ""), time.Second),

		StatsInterval: parseDuration(get("OSKOUR_STATS_INTERVAL", ""), 30*time.Second),
		IncidentWarn:  parseInt(get("OSKOUR_INCIDENT_WARN", ""), 5),
		IncidentCrit:  parseInt(get("OSKOUR_INCIDENT_CRIT", ""), 10),

		Store:    strings.ToLower(get("OSKOUR_STORE", StoreFile)),
		StateDir: get("OSKOUR_STATE_DIR", defaultStateDir()),

		SurrealDBURL:       get("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: get("SURREALDB_NAMESPACE", "oskour"),
		SurrealDBDatabase:  get("SURREALDB_DATABASE", "client"),
		SurrealDBUser:      get("SURREALDB_USER", "root"),
		SurrealDBPass:      get("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: get("SURREALDB_AUTH_LEVEL", "root"),

		LogFile:  get("OSKOUR_LOG_FILE", "/tmp/oskour.log"),
		LogLevel: parseLogLevel(get("OSKOUR_LOG_LEVEL", "INFO")),

		MockPort: parseInt(get("OSKOUR_MOCK_PORT", ""), 8091),
	}
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.Store {
	case StoreFile, StoreSQLite, StoreSurrealDB, StoreMemory:
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.TypingDelayMin < 0 || c.TypingDelayMax < c.TypingDelayMin {
		return fmt.Errorf("typing delay range [%s, %s] is invalid", c.TypingDelayMin, c.TypingDelayMax)
	}
	if c.TrendingInterval <= 0 || c.StatsInterval <= 0 {
		return fmt.Errorf("refresh intervals must be positive")
	}
	if c.IncidentCrit < c.IncidentWarn {
		return fmt.Errorf("critical threshold %d below warning threshold %d", c.IncidentCrit, c.IncidentWarn)
	}
	return nil
}

func defaultStateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "oskour")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "oskour")
	}
	return filepath.Join(home, ".local", "state", "oskour")
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// fileConfig mirrors the TOML layout.
type fileConfig struct {
	API struct {
		URL           string `toml:"url"`
		Timeout       string `toml:"timeout"`
		RateLimit     string `toml:"rate_limit"`
		KnowledgeBase string `toml:"knowledge_base"`
		Model         string `toml:"model"`
	} `toml:"api"`
	Chat struct {
		Source           string `toml:"source"`
		TrendingLimit    string `toml:"trending_limit"`
		TrendingInterval string `toml:"trending_interval"`
		TypingDelayMin   string `toml:"typing_delay_min"`
		TypingDelayMax   string `toml:"typing_delay_max"`
	} `toml:"chat"`
	Dashboard struct {
		StatsInterval string `toml:"stats_interval"`
		IncidentWarn  string `toml:"incident_warn"`
		IncidentCrit  string `toml:"incident_crit"`
	} `toml:"dashboard"`
	Store struct {
		Backend  string `toml:"backend"`
		StateDir string `toml:"state_dir"`
	} `toml:"store"`
	SurrealDB struct {
		URL       string `toml:"url"`
		Namespace string `toml:"namespace"`
		Database  string `toml:"database"`
		User      string `toml:"user"`
		Pass      string `toml:"pass"`
		AuthLevel string `toml:"auth_level"`
	} `toml:"surrealdb"`
	Log struct {
		File  string `toml:"file"`
		Level string `toml:"level"`
	} `toml:"log"`
}

// readFile decodes a TOML file into environment-keyed defaults.
func readFile(path string) (map[string]string, error) {
	var fc fileConfig
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		slog.Warn("unknown config keys", "path", path, "keys", undecoded)
	}

	return map[string]string{
		"OSKOUR_API_URL":           fc.API.URL,
		"OSKOUR_CLIENT_TIMEOUT":    fc.API.Timeout,
		"OSKOUR_RATE_LIMIT":        fc.API.RateLimit,
		"OSKOUR_KNOWLEDGE_BASE":    fc.API.KnowledgeBase,
		"OSKOUR_MODEL":             fc.API.Model,
		"OSKOUR_SOURCE":            fc.Chat.Source,
		"OSKOUR_TRENDING_LIMIT":    fc.Chat.TrendingLimit,
		"OSKOUR_TRENDING_INTERVAL": fc.Chat.TrendingInterval,
		"OSKOUR_TYPING_DELAY_MIN":  fc.Chat.TypingDelayMin,
		"OSKOUR_TYPING_DELAY_MAX":  fc.Chat.TypingDelayMax,
		"OSKOUR_STATS_INTERVAL":    fc.Dashboard.StatsInterval,
		"OSKOUR_INCIDENT_WARN":     fc.Dashboard.IncidentWarn,
		"OSKOUR_INCIDENT_CRIT":     fc.Dashboard.IncidentCrit,
		"OSKOUR_STORE":             fc.Store.Backend,
		"OSKOUR_STATE_DIR":         fc.Store.StateDir,
		"SURREALDB_URL":            fc.SurrealDB.URL,
		"SURREALDB_NAMESPACE":      fc.SurrealDB.Namespace,
		"SURREALDB_DATABASE":       fc.SurrealDB.Database,
		"SURREALDB_USER":           fc.SurrealDB.User,
		"SURREALDB_PASS":           fc.SurrealDB.Pass,
		"SURREALDB_AUTH_LEVEL":     fc.SurrealDB.AuthLevel,
		"OSKOUR_LOG_FILE":          fc.Log.File,
		"OSKOUR_LOG_LEVEL":         fc.Log.Level,
	}, nil
}
