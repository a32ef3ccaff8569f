package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/playlog/playlog/internal/paths"
	"github.com/playlog/playlog/internal/ui"
)

// Config holds playlog runtime configuration loaded from TOML.
type Config struct {
	Source     SourceConfig     `toml:"source"`
	Poll       PollConfig       `toml:"poll"`
	Store      StoreConfig      `toml:"store"`
	Server     ServerConfig     `toml:"server"`
	Scrobble   ScrobbleConfig   `toml:"scrobble"`
	Scrobblers []ScrobblerEntry `toml:"scrobblers"`
	Notify     NotifyConfig     `toml:"notify"`
	UI         UIConfig         `toml:"ui"`
	Log        LogConfig        `toml:"log"`
}

// SourceConfig selects where "now playing" comes from.
type SourceConfig struct {
	Type    string        `toml:"type"` // "spotify", "mpris", "mpv"
	Spotify SpotifyConfig `toml:"spotify"`
	MPRIS   MPRISConfig   `toml:"mpris"`
	MPV     MPVConfig     `toml:"mpv"`
}

type SpotifyConfig struct {
	ClientID        string `toml:"client_id"`
	ClientSecret    string `toml:"client_secret"`
	ClientSecretEnv string `toml:"client_secret_env"`
	// RefreshToken is optional; playlog -auth stores one in the database.
	RefreshToken    string `toml:"refresh_token"`
	RefreshTokenEnv string `toml:"refresh_token_env"`
	RedirectURL     string `toml:"redirect_url"`
	APIURL          string `toml:"api_url"`
	AccountsURL     string `toml:"accounts_url"`
}

type MPRISConfig struct {
	Player string `toml:"player"` // empty: first playing player
}

type MPVConfig struct {
	IPC       string `toml:"ipc"`
	ReadTags  *bool  `toml:"read_tags"`
	TimeoutMs int    `toml:"timeout_ms"`
}

type PollConfig struct {
	IntervalMs int `toml:"interval_ms"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

type ServerConfig struct {
	Enabled *bool  `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// ScrobbleConfig holds global scrobbling settings.
type ScrobbleConfig struct {
	Enabled bool `toml:"enabled"` // Master switch for all scrobblers
	// FlushIntervalMs is how often queued scrobbles are retried.
	FlushIntervalMs int `toml:"flush_interval_ms"`
}

// ScrobblerEntry defines a scrobbler configuration.
type ScrobblerEntry struct {
	ID       string         `toml:"id"`
	Type     string         `toml:"type"` // "lastfm", "listenbrainz"
	Enabled  bool           `toml:"enabled"`
	Settings map[string]any `toml:"settings"`
}

type NotifyConfig struct {
	Enabled bool `toml:"enabled"`
}

type UIConfig struct {
	Theme       string `toml:"theme"`
	NoColor     bool   `toml:"no_color"`
	RecentLimit int    `toml:"recent_limit"`
	RefreshMs   int    `toml:"refresh_ms"`
}

type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
	// File writes to a dated file in the state directory instead of stderr.
	File bool `toml:"file"`
}

// Load reads configuration from disk. If path is empty, the XDG config
// location is used.
func Load(path string) (*Config, string, error) {
	cfgPath := path
	if cfgPath == "" {
		var err error
		cfgPath, err = paths.ConfigFile()
		if err != nil {
			return nil, "", fmt.Errorf("resolve config path: %w", err)
		}
	}

	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, cfgPath, err
	}
	return cfg, cfgPath, nil
}

// Parse decodes, defaults and validates a TOML document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() Config {
	var cfg Config
	applyDefaults(&cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Source.Type == "" {
		cfg.Source.Type = "spotify"
	}
	sp := &cfg.Source.Spotify
	sp.ClientSecret = fromEnv(sp.ClientSecret, sp.ClientSecretEnv)
	sp.RefreshToken = fromEnv(sp.RefreshToken, sp.RefreshTokenEnv)
	if cfg.Source.MPV.ReadTags == nil {
		t := true
		cfg.Source.MPV.ReadTags = &t
	}
	if cfg.Source.MPV.TimeoutMs == 0 {
		cfg.Source.MPV.TimeoutMs = 2000
	}
	if cfg.Poll.IntervalMs == 0 {
		cfg.Poll.IntervalMs = 5000
	}
	if cfg.Server.Enabled == nil {
		t := true
		cfg.Server.Enabled = &t
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "127.0.0.1:8888"
	}
	if cfg.Scrobble.FlushIntervalMs == 0 {
		cfg.Scrobble.FlushIntervalMs = int((5 * time.Minute).Milliseconds())
	}
	for i := range cfg.Scrobblers {
		if cfg.Scrobblers[i].ID == "" {
			cfg.Scrobblers[i].ID = cfg.Scrobblers[i].Type
		}
	}
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = "default"
	}
	if cfg.UI.RecentLimit == 0 {
		cfg.UI.RecentLimit = 15
	}
	if cfg.UI.RefreshMs == 0 {
		cfg.UI.RefreshMs = 2000
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// Validate performs semantic validation of config.
func Validate(cfg Config) error {
	switch cfg.Source.Type {
	case "spotify":
		if cfg.Source.Spotify.ClientID == "" {
			return errors.New("source.spotify.client_id is required")
		}
		if cfg.Source.Spotify.ClientSecret == "" {
			return errors.New("source.spotify.client_secret (or client_secret_env) is required")
		}
	case "mpris", "mpv":
	default:
		return fmt.Errorf("unknown source type: %s", cfg.Source.Type)
	}

	if cfg.Poll.IntervalMs < 100 {
		return fmt.Errorf("poll.interval_ms must be at least 100, got %d", cfg.Poll.IntervalMs)
	}
	if !ui.ValidTheme(cfg.UI.Theme) {
		return fmt.Errorf("unknown ui.theme %q (available: %s)", cfg.UI.Theme, strings.Join(ui.ThemeNames(), ", "))
	}
	if cfg.UI.RecentLimit < 1 || cfg.UI.RecentLimit > 200 {
		return errors.New("ui.recent_limit must be 1-200")
	}
	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		return err
	}

	seen := map[string]bool{}
	for _, s := range cfg.Scrobblers {
		if seen[s.ID] {
			return fmt.Errorf("duplicate scrobbler id %q", s.ID)
		}
		seen[s.ID] = true
		if !s.Enabled {
			continue
		}
		switch s.Type {
		case "lastfm":
			if s.String("api_key") == "" || s.String("api_secret") == "" {
				return fmt.Errorf("scrobbler %q: api_key and api_secret are required", s.ID)
			}
		case "listenbrainz":
			if s.String("token") == "" {
				return fmt.Errorf("scrobbler %q: token is required", s.ID)
			}
		default:
			return fmt.Errorf("scrobbler %q: unknown type %q", s.ID, s.Type)
		}
	}
	return nil
}

// String returns a string setting, falling back to the environment
// variable named by key+"_env".
func (e ScrobblerEntry) String(key string) string {
	v, _ := e.Settings[key].(string)
	env, _ := e.Settings[key+"_env"].(string)
	return fromEnv(v, env)
}

func fromEnv(value, envName string) string {
	if value == "" && envName != "" {
		return os.Getenv(envName)
	}
	return value
}

// ParseLevel maps a log level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Poll.IntervalMs) * time.Millisecond
}

func (c Config) FlushInterval() time.Duration {
	return time.Duration(c.Scrobble.FlushIntervalMs) * time.Millisecond
}

func (c ServerConfig) IsEnabled() bool { return c.Enabled == nil || *c.Enabled }

func (c MPVConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// Example is a starting config written by playlog -doctor when none exists.
const Example = `# playlog configuration

[source]
type = "spotify" # spotify, mpris or mpv

[source.spotify]
client_id = ""
client_secret_env = "SPOTIFY_CLIENT_SECRET"
# redirect_url = "http://127.0.0.1:8889/callback"

[source.mpris]
# player = "spotify"

[source.mpv]
# ipc = "/tmp/mpv.sock"
read_tags = true

[poll]
interval_ms = 5000

[server]
enabled = true
addr = "127.0.0.1:8888"

[scrobble]
enabled = false

# [[scrobblers]]
# type = "lastfm"
# enabled = true
# [scrobblers.settings]
# api_key = ""
# api_secret_env = "LASTFM_API_SECRET"

# [[scrobblers]]
# type = "listenbrainz"
# enabled = true
# [scrobblers.settings]
# token_env = "LISTENBRAINZ_TOKEN"

[notify]
enabled = false

[ui]
theme = "default"

[log]
level = "info"
file = false
`
