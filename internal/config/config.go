// internal/config/config.go
package config

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(filename string) (*Config, error) {
	if filename == "" {
		return nil, fmt.Errorf("configuration filename cannot be empty")
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes loads configuration from YAML bytes, expanding ${VAR}
// references from the environment before parsing.
func LoadFromBytes(data []byte) (*Config, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("configuration data cannot be empty")
	}

	expanded := expandEnvironmentVariables(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML configuration: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadFromReader loads configuration from an io.Reader.
func LoadFromReader(reader io.Reader) (*Config, error) {
	if reader == nil {
		return nil, fmt.Errorf("reader cannot be nil")
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read from reader: %w", err)
	}

	return LoadFromBytes(data)
}

// Default returns a configuration with all defaults applied, suitable for
// programmatic use without a YAML file.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvironmentVariables substitutes ${VAR} with the environment value.
// Unset variables expand to the empty string.
func expandEnvironmentVariables(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}

// GenerateTemplate returns a starter configuration for the template command.
func GenerateTemplate() *Config {
	cfg := Default()
	cfg.Name = "product-pipeline"
	cfg.Browser.Headless = true
	cfg.Browser.SettleDelay = 2 * time.Second
	cfg.Delivery.Endpoint = "https://api.example.com/products"
	cfg.Delivery.APIKey = "${API_KEY}"
	cfg.Normalize.VendorCurrencies = map[string]string{
		"shein": "USD",
		"temu":  "USD",
	}
	cfg.Normalize.Categories = map[string]map[string]string{
		"shein": {
			"dresses":       "apparel",
			"women clothes": "apparel",
			"shoes":         "footwear",
		},
		"temu": {
			"women's clothing": "apparel",
			"home & kitchen":   "home",
		},
	}
	return cfg
}
