// Package config loads naisho settings from a TOML file.
//
// Every key is optional; absent keys keep the values from Default. Example:
//
//	ttl = "3m"
//	peer_read_only = true
//	debounce = "200ms"
//	ice_servers = ["stun:stun.l.google.com:19302"]
//	gather_timeout = "10s"
//	dictionary_path = "/usr/share/naisho/words.txt"
//	log_level = "debug"
package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pion/logging"

	"github.com/backkem/naisho/pkg/diceword"
	"github.com/backkem/naisho/pkg/textsync"
	"github.com/backkem/naisho/pkg/token"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("config: invalid")

// Config holds the settings shared by the CLI commands.
type Config struct {
	// TTL is the lifetime of generated offers.
	TTL time.Duration

	// PeerReadOnly is advertised in generated offers.
	PeerReadOnly bool

	// Debounce is the quiet period before an edit is sent.
	Debounce time.Duration

	// ICEServers for the WebRTC provider. Nil uses the provider default;
	// empty means host candidates only.
	ICEServers []string

	// GatherTimeout bounds ICE candidate gathering.
	GatherTimeout time.Duration

	// DictionaryPath loads the word list from a file.
	DictionaryPath string

	// DictionaryURL fetches the word list over HTTP. Ignored when
	// DictionaryPath is set.
	DictionaryURL string

	// LogLevel is one of disabled, error, warn, info, debug, trace.
	LogLevel string
}

type fileConfig struct {
	TTL            string   `toml:"ttl"`
	PeerReadOnly   bool     `toml:"peer_read_only"`
	Debounce       string   `toml:"debounce"`
	ICEServers     []string `toml:"ice_servers"`
	GatherTimeout  string   `toml:"gather_timeout"`
	DictionaryPath string   `toml:"dictionary_path"`
	DictionaryURL  string   `toml:"dictionary_url"`
	LogLevel       string   `toml:"log_level"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		TTL:           token.DefaultTTL,
		PeerReadOnly:  true,
		Debounce:      textsync.DefaultDebounce,
		GatherTimeout: 10 * time.Second,
		LogLevel:      "warn",
	}
}

// Load reads path and overlays it onto Default. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q", ErrInvalid, undecoded[0].String())
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"ttl", raw.TTL, &cfg.TTL},
		{"debounce", raw.Debounce, &cfg.Debounce},
		{"gather_timeout", raw.GatherTimeout, &cfg.GatherTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if meta.IsDefined("peer_read_only") {
		cfg.PeerReadOnly = raw.PeerReadOnly
	}

	if meta.IsDefined("ice_servers") {
		cfg.ICEServers = normalizeList(raw.ICEServers)
	}

	if meta.IsDefined("dictionary_path") {
		cfg.DictionaryPath = strings.TrimSpace(raw.DictionaryPath)
	}

	if meta.IsDefined("dictionary_url") {
		cfg.DictionaryURL = strings.TrimSpace(raw.DictionaryURL)
	}

	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	switch {
	case c.TTL < time.Second:
		return fmt.Errorf("%w: ttl must be at least 1s, got %v", ErrInvalid, c.TTL)
	case c.TTL/time.Second > math.MaxUint32:
		return fmt.Errorf("%w: ttl %v too large", ErrInvalid, c.TTL)
	case c.Debounce < 0:
		return fmt.Errorf("%w: debounce must not be negative", ErrInvalid)
	case c.GatherTimeout < 0:
		return fmt.Errorf("%w: gather_timeout must not be negative", ErrInvalid)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLogLevel maps a level name to a pion log level.
func ParseLogLevel(raw string) (logging.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "disabled", "off", "none":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "warn", "warning":
		return logging.LogLevelWarn, nil
	case "info":
		return logging.LogLevelInfo, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	default:
		return logging.LogLevelDisabled, fmt.Errorf("%w: unknown log level %q", ErrInvalid, raw)
	}
}

// LoggerFactory returns a factory writing to w at the configured level.
func (c Config) LoggerFactory(w io.Writer) (logging.LoggerFactory, error) {
	level, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	f := logging.NewDefaultLoggerFactory()
	f.Writer = w
	f.DefaultLogLevel = level
	return f, nil
}

// DictionaryLoader returns the configured word list source.
func (c Config) DictionaryLoader() diceword.Loader {
	switch {
	case c.DictionaryPath != "":
		return diceword.FileLoader(c.DictionaryPath)
	case c.DictionaryURL != "":
		return diceword.HTTPLoader(diceword.HTTPLoaderConfig{URL: c.DictionaryURL})
	default:
		return diceword.EmbeddedLoader()
	}
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
