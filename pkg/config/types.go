package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent mailroom configuration stored as
// config.toml in the .mailroom/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version int           `toml:"version"`
	Backend BackendConfig `toml:"backend"`
	Chat    ChatConfig    `toml:"chat"`
	Mock    MockConfig    `toml:"mock"`
}

// BackendConfig holds the settings for reaching the email assistant backend.
// Target is a full URL (scheme + host + port).
type BackendConfig struct {
	Target  string   `toml:"target,omitempty"`
	Timeout Duration `toml:"timeout,omitempty"`
}

// ChatConfig holds the generation parameters sent with every question.
// Unset values are left out of the request so the backend applies its own
// defaults.
type ChatConfig struct {
	TopK        uint     `toml:"top_k,omitempty"`
	Temperature *float64 `toml:"temperature,omitempty"`
	MaxTokens   uint     `toml:"max_tokens,omitempty"`
	IdleTimeout Duration `toml:"idle_timeout,omitempty"`
}

// MockConfig holds settings for "mailroom serve mock".
type MockConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// Duration is a time.Duration written to config.toml as a string such as "90s".
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"backend.target": {
		get: func(c *Config) string { return c.Backend.Target },
		set: func(c *Config, v string) error {
			if !strings.HasPrefix(v, "http://") && !strings.HasPrefix(v, "https://") {
				return fmt.Errorf("invalid value for backend.target: %q is not an http(s) URL", v)
			}
			c.Backend.Target = strings.TrimRight(v, "/")
			return nil
		},
	},
	"backend.timeout": {
		get: func(c *Config) string { return formatDuration(c.Backend.Timeout) },
		set: func(c *Config, v string) error {
			d, err := parseDuration("backend.timeout", v)
			if err != nil {
				return err
			}
			c.Backend.Timeout = d
			return nil
		},
	},
	"chat.top_k": {
		get: func(c *Config) string { return formatUint(c.Chat.TopK) },
		set: func(c *Config, v string) error {
			n, err := parseUint("chat.top_k", v)
			if err != nil {
				return err
			}
			c.Chat.TopK = n
			return nil
		},
	},
	"chat.temperature": {
		get: func(c *Config) string {
			if c.Chat.Temperature == nil {
				return ""
			}
			return strconv.FormatFloat(*c.Chat.Temperature, 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			if v == "" {
				c.Chat.Temperature = nil
				return nil
			}
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for chat.temperature: %w", err)
			}
			if f < 0 || f > 2 {
				return fmt.Errorf("invalid value for chat.temperature: %v is outside [0, 2]", f)
			}
			c.Chat.Temperature = &f
			return nil
		},
	},
	"chat.max_tokens": {
		get: func(c *Config) string { return formatUint(c.Chat.MaxTokens) },
		set: func(c *Config, v string) error {
			n, err := parseUint("chat.max_tokens", v)
			if err != nil {
				return err
			}
			c.Chat.MaxTokens = n
			return nil
		},
	},
	"chat.idle_timeout": {
		get: func(c *Config) string { return formatDuration(c.Chat.IdleTimeout) },
		set: func(c *Config, v string) error {
			d, err := parseDuration("chat.idle_timeout", v)
			if err != nil {
				return err
			}
			c.Chat.IdleTimeout = d
			return nil
		},
	},
	"mock.listen": {
		get: func(c *Config) string { return c.Mock.Listen },
		set: func(c *Config, v string) error { c.Mock.Listen = v; return nil },
	},
}

func formatUint(n uint) string {
	if n == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(n), 10)
}

func parseUint(key, v string) (uint, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return uint(n), nil
}

func formatDuration(d Duration) string {
	if d == 0 {
		return ""
	}
	return time.Duration(d).String()
}

func parseDuration(key, v string) (Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid value for %s: must not be negative", key)
	}
	return Duration(d), nil
}
