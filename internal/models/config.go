package models

import "time"

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig
	HTTP     HTTPConfig
	Engine   EngineConfig
	Server   ServerConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// HTTPConfig holds the shared provider HTTP client settings
type HTTPConfig struct {
	RequestTimeout        time.Duration
	ResponseHeaderTimeout time.Duration
	DialTimeout           time.Duration
	IdleConnTimeout       time.Duration
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	// RateLimit is the sustained requests per second allowed per provider; zero disables limiting.
	RateLimit float64
	RateBurst int
}

// EngineConfig holds quote engine settings
type EngineConfig struct {
	ProvidersFile      string
	RulesFile          string
	RulesURL           string
	Platform           Platform
	ProviderTimeout    time.Duration
	QuoteSweepInterval time.Duration
	WarmupInterval     time.Duration
	ReturnURLBase      string
	MetricsEnabled     bool
}

// ServerConfig holds the HTTP API and deeplink receiver settings
type ServerConfig struct {
	ListenAddr      string
	PublicURL       string
	ShutdownTimeout time.Duration
}

// ProviderConfig is one entry of providers.yaml merged with secrets from the environment
type ProviderConfig struct {
	ID      string            `yaml:"id"`
	Enabled bool              `yaml:"enabled"`
	APIURL  string            `yaml:"api_url"`
	Options map[string]string `yaml:"options"`

	APIKey     string `yaml:"-"`
	Secret     string `yaml:"-"`
	PrivateKey string `yaml:"-"`
}

// Option returns a provider option or the fallback when unset.
func (p ProviderConfig) Option(key, fallback string) string {
	if v, ok := p.Options[key]; ok && v != "" {
		return v
	}
	return fallback
}
