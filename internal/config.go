package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Source    SourceConfig      `yaml:"source"`
	Images    ImagesConfig      `yaml:"images"`
	Dashboard DashboardConfig   `yaml:"dashboard"`
	Encoder   EncoderConfig     `yaml:"encoder"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Source.Validate(); err != nil {
		return err
	}
	if err := c.Images.Validate(); err != nil {
		return err
	}
	if err := c.Dashboard.Validate(); err != nil {
		return err
	}
	return c.Encoder.Validate()
}

// ClientsURL returns the record source URL, defaulting to this server's
// own /clients endpoint.
func (c *Config) ClientsURL() string {
	if c.Source.ClientsURL != "" {
		return c.Source.ClientsURL
	}
	return c.App.HTTP.LocalURL() + "/clients"
}

// ImageBaseURL returns the URL encrypted blobs are fetched from, defaulting
// to this server's own /images directory.
func (c *Config) ImageBaseURL() string {
	if c.Images.BaseURL != "" {
		return strings.TrimRight(c.Images.BaseURL, "/")
	}
	return c.App.HTTP.LocalURL() + "/images"
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
	// SecureCookie marks the session cookie Secure; enable behind TLS.
	SecureCookie bool `yaml:"secure_cookie"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// LocalURL returns the loopback base URL of the HTTP server.
func (c *HTTPConfig) LocalURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SourceConfig points the dashboard at the record source.
type SourceConfig struct {
	// ClientsURL serves the JSON record list. Empty means this server's /clients.
	ClientsURL string        `yaml:"clients_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Validate validates the source configuration.
func (c *SourceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ClientsURL, validation.By(httpURL)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

// ImagesConfig holds the avatar directories.
//
// Dir holds the encrypted .enc blobs served under /images. InputDir holds the
// plaintext <phone>.png files the encoder picks up. BaseURL is where the
// dashboard fetches blobs from; empty means this server's /images.
type ImagesConfig struct {
	BaseURL  string `yaml:"base_url"`
	Dir      string `yaml:"dir"`
	InputDir string `yaml:"input_dir"`
}

// Validate validates the images configuration.
func (c *ImagesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.By(httpURL)),
		validation.Field(&c.Dir, validation.Required),
		validation.Field(&c.InputDir, validation.Required),
	)
}

var hexRe = regexp.MustCompile(`^[0-9a-fA-F]+$`)

// DashboardConfig holds the admin credential and the avatar key.
type DashboardConfig struct {
	// AdminPasswordHash is the hex SHA-256 digest of the admin password.
	AdminPasswordHash string `yaml:"admin_password_hash"`
	// HexKey is the AES-128/192/256 key for avatar blobs, hex encoded.
	HexKey string `yaml:"hex_key"`
}

// Validate validates the dashboard configuration.
func (c *DashboardConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.AdminPasswordHash,
			validation.Required,
			validation.Match(hexRe).Error("must be hex"),
			validation.Length(64, 64).Error("must be a SHA-256 hex digest"),
		),
		validation.Field(&c.HexKey,
			validation.Required,
			validation.Match(hexRe).Error("must be hex"),
			validation.By(aesKeyLength),
		),
	)
}

// EncoderConfig tunes the avatar encoder.
type EncoderConfig struct {
	Workers  int           `yaml:"workers"`
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the encoder configuration.
func (c *EncoderConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Workers, validation.Min(0), validation.Max(64)),
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
	)
}

func httpURL(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("must be an http(s) URL")
	}
	return nil
}

func aesKeyLength(value any) error {
	s, _ := value.(string)
	switch len(s) {
	case 32, 48, 64:
		return nil
	}
	return errors.New("must encode a 16, 24 or 32 byte key")
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./evolve.db",
		},
		Source: SourceConfig{
			Timeout: 10 * time.Second,
		},
		Images: ImagesConfig{
			Dir:      "./data/images",
			InputDir: "./data/avatars",
		},
		Encoder: EncoderConfig{
			Workers:  4,
			Debounce: 300 * time.Millisecond,
		},
	}
}
