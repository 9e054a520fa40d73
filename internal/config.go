package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/projectvak/contracthub/internal/index"
	"github.com/projectvak/contracthub/internal/matcher"
	"github.com/projectvak/contracthub/internal/push"
	"github.com/projectvak/contracthub/internal/scheduler"
	"github.com/projectvak/contracthub/internal/status"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	SQLite  SQLiteConfig      `yaml:"sqlite"`
	Catalog CatalogConfig     `yaml:"catalog"`
	Store   StoreConfig       `yaml:"store"`
	Matcher MatcherConfig     `yaml:"matcher"`
	Push    PushConfig        `yaml:"push"`
	CRM     CRMConfig         `yaml:"crm"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{&c.App, &c.SQLite, &c.Catalog, &c.Store, &c.Matcher, &c.Push, &c.CRM} {
		if err := v.Validate(); err != nil {
			return err
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

// SQLiteConfig holds the document index database location.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// CatalogConfig describes the directory of scanned source documents that
// feeds the document index.
type CatalogConfig struct {
	Path    string   `yaml:"path"`
	Include []string `yaml:"include"`
	Watch   bool     `yaml:"watch"`
}

// Validate validates the catalog configuration.
func (c *CatalogConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Include, validation.Each(validation.By(globPattern))),
	)
}

func globPattern(v any) error {
	s, _ := v.(string)
	if !doublestar.ValidatePattern(s) {
		return errors.New("invalid glob pattern")
	}
	return nil
}

// StoreConfig holds the contract record directory.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// MatcherConfig caps the index queries issued per matcher tier.
type MatcherConfig struct {
	Limit      int `yaml:"limit"`
	BroadLimit int `yaml:"broad_limit"`
}

// Validate validates the matcher configuration.
func (c *MatcherConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Limit, validation.Required, validation.Min(1), validation.Max(index.MaxSearchLimit)),
		validation.Field(&c.BroadLimit, validation.Required, validation.Min(c.Limit), validation.Max(index.MaxSearchLimit)),
	)
}

// PushConfig controls which contracts are ready and when sweeps run.
// An empty Schedule disables scheduled sweeps.
type PushConfig struct {
	ReadyThreshold  float64 `yaml:"ready_threshold"`
	ReviewThreshold float64 `yaml:"review_threshold"`
	Schedule        string  `yaml:"schedule"`
	Source          string  `yaml:"source"`
}

// Validate validates the push configuration.
func (c *PushConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ReadyThreshold, validation.Required, validation.Max(100.0)),
		validation.Field(&c.ReviewThreshold, validation.Required, validation.Max(c.ReadyThreshold)),
		validation.Field(&c.Schedule, validation.By(cronExpr)),
		validation.Field(&c.Source, validation.Required),
	)
}

// Thresholds returns the status thresholds.
func (c *PushConfig) Thresholds() status.Thresholds {
	return status.Thresholds{Ready: c.ReadyThreshold, Review: c.ReviewThreshold}
}

func cronExpr(v any) error {
	s, _ := v.(string)
	if s == "" {
		return nil
	}
	_, err := scheduler.Parse(s)
	return err
}

// CRMConfig holds the push target. An empty BaseURL is allowed; every push
// then fails as not configured.
type CRMConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// Validate validates the CRM configuration.
func (c *CRMConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.By(absoluteURL)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

// Configured reports whether a CRM endpoint is set.
func (c *CRMConfig) Configured() bool {
	return c.BaseURL != ""
}

func absoluteURL(v any) error {
	s, _ := v.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("must be an absolute URL")
	}
	return nil
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
			Path: "./contracthub.db",
		},
		Catalog: CatalogConfig{
			Path:    "./catalog",
			Include: []string{"**/*.pdf"},
			Watch:   true,
		},
		Store: StoreConfig{
			Path: "./contracts",
		},
		Matcher: MatcherConfig{
			Limit:      matcher.DefaultLimit,
			BroadLimit: matcher.DefaultBroadLimit,
		},
		Push: PushConfig{
			ReadyThreshold:  status.Default.Ready,
			ReviewThreshold: status.Default.Review,
			Source:          push.DefaultSource,
		},
		CRM: CRMConfig{
			Timeout: 30 * time.Second,
		},
	}
}
