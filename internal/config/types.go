// internal/config/types.go
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the root configuration for the pipeline.
type Config struct {
	Name       string           `yaml:"name" json:"name"`
	Evasion    EvasionConfig    `yaml:"evasion" json:"evasion"`
	Browser    BrowserConfig    `yaml:"browser" json:"browser"`
	Normalize  NormalizeConfig  `yaml:"normalize" json:"normalize"`
	Delivery   DeliveryConfig   `yaml:"delivery" json:"delivery"`
	Pipeline   PipelineConfig   `yaml:"pipeline" json:"pipeline"`
	Monitoring MonitoringConfig `yaml:"monitoring" json:"monitoring"`
}

// EvasionConfig controls per-request header generation and pre-fetch delays.
type EvasionConfig struct {
	UserAgents        []string      `yaml:"user_agents,omitempty" json:"user_agents,omitempty"`
	MinDelay          time.Duration `yaml:"min_delay" json:"min_delay"`
	MaxDelay          time.Duration `yaml:"max_delay" json:"max_delay"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// BrowserConfig controls the headless browsing sessions used for rendering.
type BrowserConfig struct {
	Headless       bool          `yaml:"headless" json:"headless"`
	NavTimeout     time.Duration `yaml:"nav_timeout" json:"nav_timeout"`
	SettleDelay    time.Duration `yaml:"settle_delay" json:"settle_delay"`
	WaitForElement string        `yaml:"wait_for_element,omitempty" json:"wait_for_element,omitempty"`
	ViewportWidth  int           `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight int           `yaml:"viewport_height" json:"viewport_height"`
	DisableImages  bool          `yaml:"disable_images" json:"disable_images"`
}

// NormalizeConfig controls currency defaults and the category vocabulary.
type NormalizeConfig struct {
	DefaultCurrency  string                       `yaml:"default_currency" json:"default_currency"`
	VendorCurrencies map[string]string            `yaml:"vendor_currencies,omitempty" json:"vendor_currencies,omitempty"`
	FallbackCategory string                       `yaml:"fallback_category" json:"fallback_category"`
	StrictCategories bool                         `yaml:"strict_categories" json:"strict_categories"`
	Categories       map[string]map[string]string `yaml:"categories,omitempty" json:"categories,omitempty"`
}

// DeliveryConfig controls the downstream API client and its retry policy.
type DeliveryConfig struct {
	Endpoint    string        `yaml:"endpoint" json:"endpoint"`
	APIKey      string        `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	BearerToken string        `yaml:"bearer_token,omitempty" json:"bearer_token,omitempty"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries  int           `yaml:"max_retries" json:"max_retries"`
	BackoffBase time.Duration `yaml:"backoff_base" json:"backoff_base"`
	BackoffMax  time.Duration `yaml:"backoff_max" json:"backoff_max"`
	Jitter      float64       `yaml:"jitter" json:"jitter"`
}

// PipelineConfig bounds concurrent units of work.
type PipelineConfig struct {
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency"`
}

// MonitoringConfig controls the optional metrics/health HTTP listener.
type MonitoringConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	ListenAddress string `yaml:"listen_address,omitempty" json:"listen_address,omitempty"`
	MetricsPath   string `yaml:"metrics_path,omitempty" json:"metrics_path,omitempty"`
}

// applyDefaults fills zero values with the documented defaults.
func applyDefaults(c *Config) {
	if c.Evasion.MinDelay == 0 {
		c.Evasion.MinDelay = 2 * time.Second
	}
	if c.Evasion.MaxDelay == 0 {
		c.Evasion.MaxDelay = 10 * time.Second
	}
	if c.Evasion.RequestsPerMinute == 0 {
		c.Evasion.RequestsPerMinute = 30
	}

	if c.Browser.NavTimeout == 0 {
		c.Browser.NavTimeout = 30 * time.Second
	}
	if c.Browser.ViewportWidth == 0 {
		c.Browser.ViewportWidth = 1920
	}
	if c.Browser.ViewportHeight == 0 {
		c.Browser.ViewportHeight = 1080
	}

	if c.Normalize.DefaultCurrency == "" {
		c.Normalize.DefaultCurrency = "USD"
	}
	if c.Normalize.FallbackCategory == "" {
		c.Normalize.FallbackCategory = "uncategorized"
	}

	if c.Delivery.Timeout == 0 {
		c.Delivery.Timeout = 30 * time.Second
	}
	if c.Delivery.MaxRetries == 0 {
		c.Delivery.MaxRetries = 3
	}
	if c.Delivery.BackoffBase == 0 {
		c.Delivery.BackoffBase = 500 * time.Millisecond
	}
	if c.Delivery.BackoffMax == 0 {
		c.Delivery.BackoffMax = 30 * time.Second
	}
	if c.Delivery.Jitter == 0 {
		c.Delivery.Jitter = 0.2
	}

	if c.Pipeline.MaxConcurrency == 0 {
		c.Pipeline.MaxConcurrency = 3
	}

	if c.Monitoring.ListenAddress == "" {
		c.Monitoring.ListenAddress = ":9090"
	}
	if c.Monitoring.MetricsPath == "" {
		c.Monitoring.MetricsPath = "/metrics"
	}
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Evasion.MinDelay < 0 || c.Evasion.MaxDelay < 0 {
		return fmt.Errorf("evasion delays cannot be negative")
	}
	if c.Evasion.MaxDelay < c.Evasion.MinDelay {
		return fmt.Errorf("evasion max_delay %v is less than min_delay %v", c.Evasion.MaxDelay, c.Evasion.MinDelay)
	}
	if c.Evasion.RequestsPerMinute < 1 {
		return fmt.Errorf("requests_per_minute must be at least 1")
	}

	if c.Browser.NavTimeout <= 0 {
		return fmt.Errorf("browser nav_timeout must be positive")
	}

	if len(c.Normalize.DefaultCurrency) != 3 {
		return fmt.Errorf("default_currency must be a three-letter ISO code, got %q", c.Normalize.DefaultCurrency)
	}
	for vendor, code := range c.Normalize.VendorCurrencies {
		if len(code) != 3 {
			return fmt.Errorf("vendor_currencies[%s] must be a three-letter ISO code, got %q", vendor, code)
		}
	}
	if strings.TrimSpace(c.Normalize.FallbackCategory) == "" {
		return fmt.Errorf("fallback_category cannot be blank")
	}

	if c.Delivery.Endpoint != "" {
		u, err := url.Parse(c.Delivery.Endpoint)
		if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("delivery endpoint must be an absolute http(s) URL: %q", c.Delivery.Endpoint)
		}
	}
	if c.Delivery.MaxRetries < 1 {
		return fmt.Errorf("delivery max_retries must be at least 1")
	}
	if c.Delivery.BackoffBase <= 0 {
		return fmt.Errorf("delivery backoff_base must be positive")
	}
	if c.Delivery.Jitter < 0 || c.Delivery.Jitter > 1 {
		return fmt.Errorf("delivery jitter must be within [0,1], got %v", c.Delivery.Jitter)
	}

	if c.Pipeline.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be at least 1")
	}

	return nil
}
