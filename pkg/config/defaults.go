package config

import "time"

const (
	defaultBackendTarget  = "http://localhost:8000"
	defaultBackendTimeout = 2 * time.Minute

	defaultChatIdleTimeout = 60 * time.Second

	defaultMockListen = ":8000"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Backend: BackendConfig{
			Target:  defaultBackendTarget,
			Timeout: Duration(defaultBackendTimeout),
		},
		Chat: ChatConfig{
			IdleTimeout: Duration(defaultChatIdleTimeout),
		},
		Mock: MockConfig{
			Listen: defaultMockListen,
		},
	}
}
