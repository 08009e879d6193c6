// Package config provides configuration types for the downloader, bound to
// CLI flags and environment variables by cmd/veld via viper.
package config

import (
	"errors"
	"time"
)

// Common errors.
var (
	ErrMissingURL      = errors.New("URL is required")
	ErrInvalidFormat   = errors.New("invalid output format")
	ErrInvalidSelector = errors.New("invalid track selector")
	ErrInvalidThreads  = errors.New("threads must be between 1 and 16")
)

// Config holds all application configuration.
type Config struct {
	// Input
	BaseURL string `mapstructure:"base_url"`

	// Output
	Directory string `mapstructure:"directory"`
	Output    string `mapstructure:"output"`
	Format    string `mapstructure:"format"` // mp4, mkv, ts

	// Parse-only mode: dump normalized playlist as JSON and exit.
	Parse bool `mapstructure:"parse"`

	// Download settings
	Threads      int           `mapstructure:"threads"` // 1..16, default 5
	RetryCount   int           `mapstructure:"retry-count"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxBandwidth int64         `mapstructure:"max-bandwidth"` // bytes/sec, 0 = unlimited

	// HTTP settings
	Headers              map[string]string `mapstructure:"headers"`
	Cookies              string            `mapstructure:"cookie"`
	SetCookie            string            `mapstructure:"set-cookie"`
	NoCertificateChecks  bool              `mapstructure:"no-certificate-checks"`
	Proxy                string            `mapstructure:"proxy"`
	Query                string            `mapstructure:"query"`
	UserAgent            string            `mapstructure:"user-agent"`

	// Decryption
	Keys      []string `mapstructure:"keys"` // "KID:KEY" entries or a path to a 16-byte raw key file
	NoDecrypt bool     `mapstructure:"no-decrypt"`

	// Merge/mux
	NoMerge bool `mapstructure:"no-merge"`

	// Track selection
	Quality         string `mapstructure:"quality"`
	PreferAudioLang string `mapstructure:"prefer-audio-lang"`
	PreferSubsLang  string `mapstructure:"prefer-subs-lang"`
	RawPrompts      bool   `mapstructure:"raw-prompts"`
	SkipPrompts     bool   `mapstructure:"skip-prompts"`

	// Muxer backend
	MuxerBackend string `mapstructure:"muxer-backend"` // ffmpeg, binary, auto

	// UI/Logging
	NoProgress bool `mapstructure:"no-progress"`
	Verbose    bool `mapstructure:"verbose"`

	// SelectExpr is a library-only (non-CLI) override: a raw selector
	// expression ("best", "1080p", "v:1080p+a:en") understood by
	// internal/selector.ParseExpression, for callers embedding the
	// Downloader API directly rather than driving it through cmd/veld's
	// --quality/--prefer-*-lang flags.
	SelectExpr string `mapstructure:"-"`
}

// Default configuration values.
const (
	DefaultFormat        = "mp4"
	DefaultMuxerBackend  = "auto"
	DefaultThreads       = 5
	DefaultRetryCount    = 15
	DefaultTimeout       = 30 * time.Second
	DefaultQuality       = "highest"

	MaxThreads = 16
	MinThreads = 1
)

// New returns a Config with sensible defaults.
func New() *Config {
	return &Config{
		Threads:      DefaultThreads,
		Format:       DefaultFormat,
		MuxerBackend: DefaultMuxerBackend,
		RetryCount:   DefaultRetryCount,
		Timeout:      DefaultTimeout,
		Quality:      DefaultQuality,
		Headers:      make(map[string]string),
	}
}

// Validate checks if the configuration is valid and normalizes values.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrMissingURL
	}

	if c.Threads == 0 {
		c.Threads = DefaultThreads
	}
	if c.Threads < MinThreads || c.Threads > MaxThreads {
		return ErrInvalidThreads
	}

	if c.RetryCount <= 0 {
		c.RetryCount = DefaultRetryCount
	}

	if c.Headers == nil {
		c.Headers = make(map[string]string)
	}

	if c.RawPrompts && c.SkipPrompts {
		return errors.New("config: --raw-prompts and --skip-prompts are mutually exclusive")
	}

	return nil
}
