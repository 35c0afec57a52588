package config

import (
	"time"

	"github.com/spf13/viper"
)

// Settings is the resolved client configuration a command runs with.
type Settings struct {
	Target      string
	Timeout     time.Duration
	IdleTimeout time.Duration

	// Generation parameters. Nil means the backend default.
	TopK        *int
	Temperature *float64
	MaxTokens   *int
}

// ResolveSettings reads the client keys from v after flags are bound.
// Zero top_k and max_tokens count as unset; temperature counts as set
// whenever a flag, env var, or config entry provides it.
func ResolveSettings(v *viper.Viper) Settings {
	s := Settings{
		Target:      v.GetString("backend.target"),
		Timeout:     v.GetDuration("backend.timeout"),
		IdleTimeout: v.GetDuration("chat.idle_timeout"),
	}

	if n := v.GetInt("chat.top_k"); n > 0 {
		s.TopK = &n
	}
	if n := v.GetInt("chat.max_tokens"); n > 0 {
		s.MaxTokens = &n
	}
	if v.IsSet("chat.temperature") {
		t := v.GetFloat64("chat.temperature")
		s.Temperature = &t
	}

	return s
}
