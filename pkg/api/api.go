// pkg/api/api.go
package api

import (
	"context"
	"fmt"

	"github.com/boomscraper/boomscraper/internal/browser"
	"github.com/boomscraper/boomscraper/internal/config"
	"github.com/boomscraper/boomscraper/internal/pipeline"
	"github.com/boomscraper/boomscraper/pkg/types"
)

// Re-export configuration types for public consumers.
type Config = config.Config
type EvasionConfig = config.EvasionConfig
type BrowserConfig = config.BrowserConfig
type NormalizeConfig = config.NormalizeConfig
type DeliveryConfig = config.DeliveryConfig

// Job and Result mirror the pipeline's unit of work.
type Job = pipeline.Job
type Result = pipeline.Result

// Client is the high-level entry point: it owns a browser gateway and a
// pipeline built from one configuration.
type Client struct {
	cfg     *Config
	gateway browser.Gateway
	pipe    *pipeline.Pipeline
}

// NewClient launches a browser gateway from the configuration and wires the
// pipeline around it with default options.
func NewClient(cfg *Config) (*Client, error) {
	return NewClientWithOptions(cfg, pipeline.Options{})
}

// NewClientWithOptions is NewClient with caller-supplied pipeline options,
// the path for wiring an observer or a metrics set into the pipeline.
func NewClientWithOptions(cfg *Config, opts pipeline.Options) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	gateway, err := browser.NewChromeGateway(&browser.Config{
		Headless:       cfg.Browser.Headless,
		NavTimeout:     cfg.Browser.NavTimeout,
		SettleDelay:    cfg.Browser.SettleDelay,
		WaitForElement: cfg.Browser.WaitForElement,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
		DisableImages:  cfg.Browser.DisableImages,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start browser gateway: %w", err)
	}

	client, err := NewClientWithGateway(cfg, gateway, opts)
	if err != nil {
		gateway.Close()
		return nil, err
	}
	return client, nil
}

// NewClientWithGateway wires the pipeline around a caller-supplied gateway.
// The caller keeps ownership of the gateway's lifecycle.
func NewClientWithGateway(cfg *Config, gateway browser.Gateway, opts pipeline.Options) (*Client, error) {
	pipe, err := pipeline.New(cfg, gateway, opts)
	if err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, gateway: gateway, pipe: pipe}, nil
}

// Scrape runs one URL through the full pipeline and returns its terminal
// result.
func (c *Client) Scrape(ctx context.Context, url, vendor string) (Result, error) {
	v, err := types.ParseVendor(vendor)
	if err != nil {
		return Result{}, err
	}
	return c.pipe.Run(ctx, Job{URL: url, Vendor: v}), nil
}

// ScrapeBatch runs jobs concurrently bounded by the configured concurrency
// limit.
func (c *Client) ScrapeBatch(ctx context.Context, jobs []Job) []Result {
	return c.pipe.RunBatch(ctx, jobs, int64(c.cfg.Pipeline.MaxConcurrency))
}

// Close shuts down the browser gateway.
func (c *Client) Close() error {
	if c.gateway != nil {
		return c.gateway.Close()
	}
	return nil
}
