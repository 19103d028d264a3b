package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"golang.org/x/term"
)

// ErrNoSink is returned when the configuration enables neither stdout nor
// file logging, which would make the logger observe events to no effect.
var ErrNoSink = errors.New("misconfigured: needs log_to_stdout, log_to_file or both set to true")

// Config is the immutable process configuration, constructed once at startup
// and passed explicitly to the components that need it.
type Config struct {
	APIID    int    `mapstructure:"api_id"`
	APIHash  string `mapstructure:"api_hash"`
	BotToken string `mapstructure:"bot_token"`

	// Chat filter. An empty enabled list means "all chats except disabled
	// ones": running the logger with a zero-chat allowlist has no value.
	EnabledChats  []int64 `mapstructure:"enabled_chats"`
	DisabledChats []int64 `mapstructure:"disabled_chats"`

	SaveMedia        bool `mapstructure:"save_media"`
	LogToFile        bool `mapstructure:"log_to_file"`
	LogToStdout      bool `mapstructure:"log_to_stdout"`
	LogSeparateFiles bool `mapstructure:"log_separate_files"`
	LogColors        bool `mapstructure:"log_colors"`

	DBPath      string `mapstructure:"db_path"`
	LogDir      string `mapstructure:"log_dir"`
	MediaDir    string `mapstructure:"media_dir"`
	MetricsAddr string `mapstructure:"metrics_addr"`
	LogLevel    string `mapstructure:"log_level"`
}

// Load reads the TOML config at path, applies defaults and env overrides
// (CHATLOG_ prefix), and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	v.SetDefault("save_media", true)
	v.SetDefault("log_to_file", false)
	v.SetDefault("log_to_stdout", true)
	v.SetDefault("log_separate_files", true)
	v.SetDefault("db_path", "data.sqlite3")
	v.SetDefault("log_dir", "logs")
	v.SetDefault("media_dir", "media")
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("CHATLOG")
	v.AutomaticEnv()
	// AutomaticEnv only surfaces keys viper already knows; the credential
	// keys have no defaults, so bind them explicitly.
	for _, key := range []string{"api_id", "api_hash", "bot_token"} {
		v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	// Default colors to "stdout is a terminal and no file log", unless the
	// file pins them either way.
	if !v.IsSet("log_colors") {
		cfg.LogColors = cfg.LogToStdout && !cfg.LogToFile && term.IsTerminal(int(os.Stdout.Fd()))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects contradictory settings. Called by Load; exposed for tests
// and for callers constructing a Config directly.
func (c *Config) Validate() error {
	if !c.LogToFile && !c.LogToStdout {
		return ErrNoSink
	}
	return nil
}

const defaultConfig = `# API ID and hash to authenticate the application (not the user).
api_id = 0
api_hash = ""

# Bot token for the platform adapter.
bot_token = ""

# Only enable in chats with the given IDs.
#
# If this is empty, it will be enabled in all chats except disabled_chats,
# because it makes no sense to run the logger with zero chats.
enabled_chats = []

# Disable in chats with the given IDs.
disabled_chats = []

# Whether to save received media.
save_media = true

# Whether to log to files.
log_to_file = false

# Separate log files per chat id.
log_separate_files = true

# Whether to log to stdout.
log_to_stdout = true

# Whether to use ANSI color codes for logs.
# If not specified, the default is to use colors only when logging to stdout
# and it is a tty.
#log_colors = true

db_path = "data.sqlite3"
log_dir = "logs"
media_dir = "media"

# Optional address to serve Prometheus metrics on, e.g. "127.0.0.1:9180".
metrics_addr = ""

log_level = "info"
`

// WriteDefault writes the commented default config to path, refusing to
// clobber an existing file. Written atomically via a temp file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename default config: %w", err)
	}
	return nil
}
