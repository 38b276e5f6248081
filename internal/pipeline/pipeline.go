// internal/pipeline/pipeline.go

// Package pipeline runs one source URL through the full
// ingestion-normalization-delivery sequence. Stages within a unit are
// strictly sequential; units are independent and may run concurrently up to
// a caller-supplied bound.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/boomscraper/boomscraper/internal/browser"
	"github.com/boomscraper/boomscraper/internal/config"
	"github.com/boomscraper/boomscraper/internal/deliver"
	"github.com/boomscraper/boomscraper/internal/evasion"
	"github.com/boomscraper/boomscraper/internal/extract"
	"github.com/boomscraper/boomscraper/internal/monitoring"
	"github.com/boomscraper/boomscraper/internal/normalize"
	"github.com/boomscraper/boomscraper/internal/schema"
	"github.com/boomscraper/boomscraper/pkg/types"
)

// Job is one unit of work: a product URL plus the vendor that owns it.
type Job struct {
	URL    string
	Vendor types.Vendor
}

// Result is the terminal state of one unit. Err is set when a stage before
// delivery failed; Outcome is set once the unit reached the delivery
// decision (including schema rejection).
type Result struct {
	Job     Job
	Stage   Stage
	Outcome types.DeliveryOutcome
	Err     error
}

// StageError wraps a stage failure with the stage that produced it. Every
// stage returns either a typed success or a typed failure; nothing opaque
// crosses a stage boundary.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Pipeline wires the six stages together. Shared state across units is
// limited to the read-only evasion policy and the rate limiter.
type Pipeline struct {
	policy     *evasion.Policy
	limiter    *evasion.Limiter
	gateway    browser.Gateway
	normalizer *normalize.Normalizer
	deliverer  *deliver.Client
	observer   Observer
	metrics    *monitoring.Metrics
}

// Options override the default observer and metrics wiring.
type Options struct {
	Observer Observer
	Metrics  *monitoring.Metrics
}

// New builds a pipeline from configuration and a render gateway. The gateway
// is an external collaborator: the pipeline owns its calls, not its
// lifecycle.
func New(cfg *config.Config, gateway browser.Gateway, opts Options) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if gateway == nil {
		return nil, fmt.Errorf("gateway cannot be nil")
	}

	agents := cfg.Evasion.UserAgents
	if len(agents) == 0 {
		agents = evasion.DefaultUserAgents()
	}
	policy, err := evasion.NewPolicy(agents, cfg.Evasion.MinDelay, cfg.Evasion.MaxDelay)
	if err != nil {
		return nil, fmt.Errorf("invalid evasion configuration: %w", err)
	}

	limiter, err := evasion.NewLimiter(cfg.Evasion.RequestsPerMinute)
	if err != nil {
		return nil, fmt.Errorf("invalid evasion configuration: %w", err)
	}

	normalizer, err := normalize.New(normalizeOptions(&cfg.Normalize))
	if err != nil {
		return nil, fmt.Errorf("invalid normalize configuration: %w", err)
	}

	deliverer, err := deliver.NewClient(deliver.Options{
		Endpoint:    cfg.Delivery.Endpoint,
		APIKey:      cfg.Delivery.APIKey,
		BearerToken: cfg.Delivery.BearerToken,
		Timeout:     cfg.Delivery.Timeout,
		MaxRetries:  cfg.Delivery.MaxRetries,
		BackoffBase: cfg.Delivery.BackoffBase,
		BackoffMax:  cfg.Delivery.BackoffMax,
		Jitter:      cfg.Delivery.Jitter,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid delivery configuration: %w", err)
	}

	observer := opts.Observer
	if observer == nil {
		observer = NewLogObserver(nil)
	}

	return &Pipeline{
		policy:     policy,
		limiter:    limiter,
		gateway:    gateway,
		normalizer: normalizer,
		deliverer:  deliverer,
		observer:   observer,
		metrics:    opts.Metrics,
	}, nil
}

// Run processes one job through all stages, short-circuiting on the first
// stage failure. The record is either fully validated before any delivery
// attempt or not delivered at all.
func (p *Pipeline) Run(ctx context.Context, job Job) Result {
	p.metrics.UnitStarted()

	if !extract.Supported(job.Vendor) {
		err := &StageError{Stage: StageExtract, Err: fmt.Errorf("no extractor registered for vendor %q", job.Vendor)}
		p.emit(StageExtract, job.URL, err.Err)
		return Result{Job: job, Stage: StageExtract, Err: err}
	}

	// Evasion: cannot fail once the policy constructed.
	evCtx := p.policy.NextContext()
	p.emit(StageEvasion, job.URL, nil)

	if err := p.awaitSlot(ctx, evCtx.Delay); err != nil {
		stageErr := &StageError{Stage: StageFetch, Err: err}
		p.emit(StageFetch, job.URL, err)
		return Result{Job: job, Stage: StageFetch, Err: stageErr}
	}

	markup, err := timedStage(p, StageFetch, job.URL, func() (string, error) {
		return p.gateway.Fetch(ctx, job.URL, evCtx.Headers)
	})
	if err != nil {
		return Result{Job: job, Stage: StageFetch, Err: &StageError{Stage: StageFetch, Err: err}}
	}

	raw, err := timedStage(p, StageExtract, job.URL, func() (*types.RawExtraction, error) {
		return extract.Extract(markup, job.URL, job.Vendor)
	})
	if err != nil {
		return Result{Job: job, Stage: StageExtract, Err: &StageError{Stage: StageExtract, Err: err}}
	}

	product, err := timedStage(p, StageNormalize, job.URL, func() (*types.CanonicalProduct, error) {
		return p.normalizer.Normalize(raw)
	})
	if err != nil {
		return Result{Job: job, Stage: StageNormalize, Err: &StageError{Stage: StageNormalize, Err: err}}
	}

	if diags := schema.Validate(product); len(diags) > 0 {
		outcome := types.RejectedSchema(diags)
		p.emit(StageValidate, job.URL, fmt.Errorf("schema rejected: %v", diags))
		p.metrics.RecordOutcome(outcome.State.String(), 0)
		return Result{Job: job, Stage: StageValidate, Outcome: outcome}
	}
	p.emit(StageValidate, job.URL, nil)

	// The product is frozen from here: delivery owns it exclusively until
	// acknowledged or exhausted.
	start := time.Now()
	outcome := p.deliverer.Deliver(ctx, product)
	p.metrics.ObserveStage(string(StageDeliver), time.Since(start), outcome.State != types.StateDelivered)
	p.metrics.RecordOutcome(outcome.State.String(), outcome.Attempts)

	var deliverErr error
	if outcome.State == types.StateExhausted {
		deliverErr = outcome.LastErr
	}
	p.emit(StageDeliver, job.URL, deliverErr)

	return Result{Job: job, Stage: StageDeliver, Outcome: outcome}
}

// RunBatch runs jobs concurrently, bounded by limit. There is no ordering
// guarantee across units; results are returned in job order.
func (p *Pipeline) RunBatch(ctx context.Context, jobs []Job, limit int64) []Result {
	if limit < 1 {
		limit = 1
	}

	sem := semaphore.NewWeighted(limit)
	results := make([]Result, len(jobs))

	var wg sync.WaitGroup
	for i, job := range jobs {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = Result{Job: job, Stage: StageEvasion, Err: &StageError{Stage: StageEvasion, Err: err}}
			continue
		}

		wg.Add(1)
		go func(i int, job Job) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = p.Run(ctx, job)
		}(i, job)
	}
	wg.Wait()

	return results
}

// awaitSlot sleeps the evasion delay and waits on the shared rate limiter,
// both cancellable.
func (p *Pipeline) awaitSlot(ctx context.Context, delay time.Duration) error {
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if p.limiter != nil {
		return p.limiter.Wait(ctx)
	}
	return nil
}

// timedStage runs one stage body with metrics and event emission.
func timedStage[T any](p *Pipeline, stage Stage, url string, fn func() (T, error)) (T, error) {
	start := time.Now()
	value, err := fn()
	p.metrics.ObserveStage(string(stage), time.Since(start), err != nil)
	p.emit(stage, url, err)
	return value, err
}

func (p *Pipeline) emit(stage Stage, url string, err error) {
	event := Event{Stage: stage, SourceURL: url, Outcome: "ok"}
	if err != nil {
		event.Outcome = "error"
		event.Err = err
	}
	p.observer.Observe(event)
}

func normalizeOptions(cfg *config.NormalizeConfig) normalize.Options {
	vendorCurrencies := make(map[types.Vendor]string, len(cfg.VendorCurrencies))
	for vendor, code := range cfg.VendorCurrencies {
		vendorCurrencies[types.Vendor(vendor)] = code
	}

	categories := make(map[types.Vendor]map[string]string, len(cfg.Categories))
	for vendor, table := range cfg.Categories {
		categories[types.Vendor(vendor)] = table
	}

	return normalize.Options{
		DefaultCurrency:  cfg.DefaultCurrency,
		VendorCurrencies: vendorCurrencies,
		FallbackCategory: cfg.FallbackCategory,
		StrictCategories: cfg.StrictCategories,
		Categories:       categories,
	}
}
