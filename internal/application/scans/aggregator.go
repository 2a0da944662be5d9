package scans

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	domain "github.com/bryanwahyu/viruslens/internal/domain/scans"
)

// DefaultProviderTimeout bounds a single provider call.
const DefaultProviderTimeout = 20 * time.Second

// Aggregator fans an IOC out to every provider that supports its type and
// folds the answers into one AggregateResult.
// Safe for concurrent use; it holds no per-call state.
type Aggregator struct {
	providers []domain.Provider
	timeout   time.Duration
	logger    *slog.Logger

	calls    metric.Int64Counter
	failures metric.Int64Counter
	latency  metric.Float64Histogram
}

// NewAggregator keeps providers in the given (registration) order.
func NewAggregator(providers []domain.Provider, timeout time.Duration, logger *slog.Logger) *Aggregator {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	meter := otel.Meter("viruslens/aggregator")
	calls, _ := meter.Int64Counter("viruslens_provider_calls_total")
	failures, _ := meter.Int64Counter("viruslens_provider_failures_total")
	latency, _ := meter.Float64Histogram("viruslens_provider_latency_ms")

	ps := make([]domain.Provider, len(providers))
	copy(ps, providers)
	return &Aggregator{
		providers: ps,
		timeout:   timeout,
		logger:    logger,
		calls:     calls,
		failures:  failures,
		latency:   latency,
	}
}

// Providers returns the registered provider names in order.
func (a *Aggregator) Providers() []string {
	names := make([]string, 0, len(a.providers))
	for _, p := range a.providers {
		names = append(names, p.Name())
	}
	return names
}

// Aggregate never fails. Unknown types are classified first; if still unknown
// no provider is called and the result is Low with no engines.
func (a *Aggregator) Aggregate(ctx context.Context, ioc string, t domain.IOCType) domain.AggregateResult {
	if t == domain.TypeUnknown || t == "" {
		t = domain.Classify(ioc)
	}
	if t == domain.TypeUnknown {
		return domain.NewAggregateResult(domain.TypeUnknown, nil)
	}

	var selected []domain.Provider
	for _, p := range a.providers {
		if p.Supports(t) {
			selected = append(selected, p)
		}
	}

	results := make([]domain.EngineResult, len(selected))
	var g errgroup.Group
	for i, p := range selected {
		g.Go(func() error {
			results[i] = a.call(ctx, p, ioc, t)
			return nil
		})
	}
	_ = g.Wait()

	return domain.NewAggregateResult(t, results)
}

func (a *Aggregator) call(ctx context.Context, p domain.Provider, ioc string, t domain.IOCType) domain.EngineResult {
	name := p.Name()
	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	ch := make(chan domain.EngineResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- domain.ErrorResult(name, fmt.Sprintf("provider panic: %v", r))
			}
		}()
		ch <- p.Query(cctx, ioc, t)
	}()

	var res domain.EngineResult
	select {
	case res = <-ch:
	case <-cctx.Done():
		msg := "timeout"
		if errors.Is(cctx.Err(), context.Canceled) {
			msg = "canceled"
		}
		res = domain.ErrorResult(name, msg)
	}
	res = normalize(name, res)

	attrs := metric.WithAttributes(attribute.String("engine", name))
	a.calls.Add(ctx, 1, attrs)
	a.latency.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
	if res.Failed() {
		a.failures.Add(ctx, 1, attrs)
		a.logger.Warn("provider failed", "engine", name, "type", string(t), "error", res.ErrorMessage())
	} else {
		a.logger.Debug("provider answered", "engine", name, "type", string(t), "took", time.Since(start))
	}
	return res
}

// normalize guarantees the EngineResult shape whatever the adapter returned.
func normalize(name string, res domain.EngineResult) domain.EngineResult {
	if res.Engine == "" {
		res.Engine = name
	}
	if res.Summary == nil {
		res.Summary = map[string]any{}
	}
	if len(res.Raw) == 0 {
		res.Raw = map[string]any{}
		if _, ok := res.Summary["error"]; !ok {
			res.Summary = map[string]any{"error": "empty response"}
		}
	}
	return res
}
