// cmd/boomscraper/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/boomscraper/boomscraper/internal/config"
	"github.com/boomscraper/boomscraper/internal/monitoring"
	"github.com/boomscraper/boomscraper/internal/pipeline"
	"github.com/boomscraper/boomscraper/internal/utils"
	"github.com/boomscraper/boomscraper/pkg/api"
	"github.com/boomscraper/boomscraper/pkg/types"
)

// Version information (set by build flags)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "template":
		err = templateCommand()
	case "version":
		fmt.Printf("boomscraper %s (built %s, commit %s)\n", version, buildTime, gitCommit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`boomscraper - product ingestion pipeline

Usage:
  boomscraper run -config <file> -url <url> -vendor <shein|temu> [-v]
  boomscraper validate -config <file>
  boomscraper template
  boomscraper version`)
}

// runCommand scrapes a single URL and delivers the normalized record.
func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configFile := fs.String("config", "", "path to YAML configuration")
	url := fs.String("url", "", "product URL to scrape")
	vendorTag := fs.String("vendor", "", "vendor tag (shein, temu)")
	verbose := fs.Bool("v", false, "verbose logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configFile == "" || *url == "" || *vendorTag == "" {
		return fmt.Errorf("run requires -config, -url and -vendor")
	}

	cfg, err := config.LoadFromFile(*configFile)
	if err != nil {
		return err
	}
	if _, err := types.ParseVendor(*vendorTag); err != nil {
		return err
	}

	level := utils.InfoLevel
	if *verbose {
		level = utils.DebugLevel
	}
	logger := utils.NewLoggerWithLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := monitoring.NewMetrics("boomscraper")
	if cfg.Monitoring.Enabled {
		server := monitoring.NewServer(cfg.Monitoring.ListenAddress, cfg.Monitoring.MetricsPath, metrics)
		go func() {
			if err := server.Start(); err != nil {
				logger.Errorf("monitoring server failed: %v", err)
			}
		}()
		defer server.Shutdown(context.Background())
	}

	client, err := api.NewClientWithOptions(cfg, pipeline.Options{Metrics: metrics})
	if err != nil {
		return err
	}
	defer client.Close()

	result, err := client.Scrape(ctx, *url, *vendorTag)
	if err != nil {
		return err
	}

	return reportResult(logger, result)
}

// reportResult logs the terminal state and maps it to the process outcome.
func reportResult(logger utils.Logger, result api.Result) error {
	if result.Err != nil {
		return fmt.Errorf("pipeline failed at stage %s: %w", result.Stage, result.Err)
	}

	switch result.Outcome.State {
	case types.StateDelivered:
		logger.WithFields(map[string]interface{}{
			"source_url": result.Job.URL,
			"status":     result.Outcome.StatusCode,
			"retries":    result.Outcome.Attempts,
		}).Info("record delivered")
		return nil
	case types.StateRejected:
		if len(result.Outcome.Diagnostics) > 0 {
			for _, d := range result.Outcome.Diagnostics {
				logger.WithField("source_url", result.Job.URL).Warnf("schema violation: %s", d)
			}
			return fmt.Errorf("record rejected by schema validation (%d violations)", len(result.Outcome.Diagnostics))
		}
		return fmt.Errorf("record rejected by endpoint with status %d", result.Outcome.StatusCode)
	case types.StateExhausted:
		return fmt.Errorf("delivery exhausted after %d retries: %w", result.Outcome.Attempts, result.Outcome.LastErr)
	default:
		return fmt.Errorf("unknown delivery state %v", result.Outcome.State)
	}
}

// validateCommand checks a configuration file without running anything.
func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "", "path to YAML configuration")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configFile == "" {
		return fmt.Errorf("validate requires -config")
	}

	if _, err := config.LoadFromFile(*configFile); err != nil {
		return err
	}
	fmt.Printf("configuration file %q is valid\n", *configFile)
	return nil
}

// templateCommand prints a starter configuration to stdout.
func templateCommand() error {
	data, err := yaml.Marshal(config.GenerateTemplate())
	if err != nil {
		return fmt.Errorf("failed to marshal template: %w", err)
	}
	fmt.Print(string(data))
	return nil
}
