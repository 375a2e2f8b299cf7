package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Files  FilesConfig       `yaml:"files"`
	Inbox  InboxConfig       `yaml:"inbox"`
	Auth   AuthConfig        `yaml:"auth"`
	MCP    MCPConfig         `yaml:"mcp"`
	Events EventsConfig      `yaml:"events"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		v    validation.Validatable
	}{
		{"app", &c.App},
		{"sqlite", &c.SQLite},
		{"files", &c.Files},
		{"inbox", &c.Inbox},
		{"auth", &c.Auth},
		{"mcp", &c.MCP},
		{"events", &c.Events},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
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
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
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

var urlPathRe = regexp.MustCompile(`^(/[A-Za-z0-9._~-]+)+$`)

// FilesConfig configures the store for uploaded document files.
type FilesConfig struct {
	Path        string `yaml:"path"`
	URLPrefix   string `yaml:"url_prefix"`
	MaxUploadMB int64  `yaml:"max_upload_mb"`
}

// MaxBytes returns the upload limit in bytes.
func (c *FilesConfig) MaxBytes() int64 {
	return c.MaxUploadMB << 20
}

// Validate validates the files configuration.
func (c *FilesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.URLPrefix, validation.Required,
			validation.Match(urlPathRe).Error("must be an absolute path without a trailing slash")),
		validation.Field(&c.MaxUploadMB, validation.Required, validation.Min(int64(1)), validation.Max(int64(1024))),
	)
}

// InboxConfig configures the Markdown import directory.
type InboxConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	UserID  string `yaml:"user_id"`
}

// Validate validates the inbox configuration. Path and user are only
// required when the inbox is enabled.
func (c *InboxConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.UserID, validation.When(c.Enabled, validation.Required)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how requests are attributed to users:
//   - "disabled" (default): every request acts as DefaultUser, suitable for a
//     single-user local install.
//   - "token": Bearer tokens map to users through Tokens; at least one is required.
type AuthConfig struct {
	Mode        string            `yaml:"mode"`
	DefaultUser string            `yaml:"default_user"`
	Tokens      map[string]string `yaml:"tokens"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
		validation.Field(&c.DefaultUser, validation.When(c.Mode == AuthModeDisabled, validation.Required)),
	); err != nil {
		return err
	}
	if c.Mode != AuthModeToken {
		return nil
	}
	if len(c.Tokens) == 0 {
		return fmt.Errorf("auth: mode is %q but no tokens are configured", AuthModeToken)
	}
	for token, user := range c.Tokens {
		if token == "" || user == "" {
			return errors.New("auth: tokens must map a non-empty token to a non-empty user")
		}
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// MCPConfig configures the stdio MCP server.
type MCPConfig struct {
	UserID string `yaml:"user_id"`
}

// Validate validates the MCP configuration.
func (c *MCPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.UserID, validation.Required),
	)
}

// EventsConfig configures the server-sent event stream.
type EventsConfig struct {
	StatsThrottle time.Duration `yaml:"stats_throttle"`
}

// Validate validates the events configuration.
func (c *EventsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.StatsThrottle, validation.Min(time.Duration(0))),
	)
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
			Path: "./stash.db",
		},
		Files: FilesConfig{
			Path:        "./files",
			URLPrefix:   "/files",
			MaxUploadMB: 25,
		},
		Inbox: InboxConfig{
			Path:   "./inbox",
			UserID: "local",
		},
		Auth: AuthConfig{
			Mode:        AuthModeDisabled,
			DefaultUser: "local",
		},
		MCP: MCPConfig{
			UserID: "local",
		},
		Events: EventsConfig{
			StatsThrottle: 2 * time.Second,
		},
	}
}
