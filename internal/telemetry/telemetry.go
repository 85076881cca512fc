package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"

	"github.com/otaupdater/ota-download-manager/internal/domain/event"
	"github.com/otaupdater/ota-download-manager/internal/port"
)

// Config holds telemetry configuration.
type Config struct {
	Enabled     bool
	ServiceName string
}

// Sources are read when metrics are scraped. Either may be nil.
type Sources struct {
	// ActiveTransfers returns the number of transfers with a run in progress
	ActiveTransfers func() int
	// DiskUsage reports the filesystem holding the download root
	DiskUsage func() (*port.DiskUsage, error)
}

// Telemetry records transfer metrics from domain events and serves them in
// the Prometheus text format.
type Telemetry struct {
	logger        *zap.Logger
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	registry      *promclient.Registry

	transfersQueued   metric.Int64Counter
	transfersStarted  metric.Int64Counter
	transfersPaused   metric.Int64Counter
	transfersFinished metric.Int64Counter
	bytesDownloaded   metric.Int64Counter
	runDuration       metric.Float64Histogram

	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	mu   sync.Mutex
	seen map[int64]int64
}

// New creates a telemetry instance. A disabled instance accepts every call
// and records nothing.
func New(cfg Config, sources Sources, logger *zap.Logger) (*Telemetry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Telemetry{logger: logger, seen: make(map[int64]int64)}
	if !cfg.Enabled {
		return t, nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "otadl"
	}

	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(
		prometheus.WithRegisterer(registry),
		prometheus.WithoutScopeInfo(),
		prometheus.WithoutTargetInfo(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	t.meterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(t.meterProvider)
	t.meter = t.meterProvider.Meter(cfg.ServiceName)
	t.registry = registry

	if err := t.initializeMetrics(sources); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	return t, nil
}

func (t *Telemetry) initializeMetrics(sources Sources) error {
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&t.transfersQueued, "otadl_transfers_queued", "Transfers that entered the pending queue", ""},
		{&t.transfersStarted, "otadl_transfers_started", "Transfer runs started", ""},
		{&t.transfersPaused, "otadl_transfers_paused", "Transfer runs that stopped in a resumable state", ""},
		{&t.transfersFinished, "otadl_transfers_finished", "Transfers that reached a finished event, by outcome", ""},
		{&t.bytesDownloaded, "otadl_downloaded", "Bytes written to destination files", "By"},
		{&t.httpRequestsTotal, "otadl_http_requests", "HTTP API requests", ""},
	}
	for _, c := range counters {
		opts := []metric.Int64CounterOption{metric.WithDescription(c.desc)}
		if c.unit != "" {
			opts = append(opts, metric.WithUnit(c.unit))
		}
		if *c.dst, err = t.meter.Int64Counter(c.name, opts...); err != nil {
			return fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
	}

	t.runDuration, err = t.meter.Float64Histogram(
		"otadl_transfer_run_duration",
		metric.WithDescription("Wall time of a transfer run"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create run duration histogram: %w", err)
	}

	t.httpRequestDuration, err = t.meter.Float64Histogram(
		"otadl_http_request_duration",
		metric.WithDescription("HTTP API request duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	if sources.ActiveTransfers != nil {
		_, err = t.meter.Int64ObservableGauge(
			"otadl_transfers_active",
			metric.WithDescription("Transfers with a run in progress"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(int64(sources.ActiveTransfers()))
				return nil
			}),
		)
		if err != nil {
			return fmt.Errorf("failed to create active transfers gauge: %w", err)
		}
	}

	if sources.DiskUsage != nil {
		free, err := t.meter.Int64ObservableGauge(
			"otadl_download_dir_free",
			metric.WithDescription("Free space under the download root"),
			metric.WithUnit("By"),
		)
		if err != nil {
			return fmt.Errorf("failed to create free space gauge: %w", err)
		}
		used, err := t.meter.Int64ObservableGauge(
			"otadl_download_dir_used",
			metric.WithDescription("Used space on the filesystem holding the download root"),
			metric.WithUnit("By"),
		)
		if err != nil {
			return fmt.Errorf("failed to create used space gauge: %w", err)
		}
		size, err := t.meter.Int64ObservableGauge(
			"otadl_download_dir_size",
			metric.WithDescription("Size of the filesystem holding the download root"),
			metric.WithUnit("By"),
		)
		if err != nil {
			return fmt.Errorf("failed to create filesystem size gauge: %w", err)
		}

		_, err = t.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
			usage, err := sources.DiskUsage()
			if err != nil {
				t.logger.Debug("failed to read disk usage", zap.Error(err))
				return nil
			}
			o.ObserveInt64(free, int64(usage.Free))
			o.ObserveInt64(used, int64(usage.Used))
			o.ObserveInt64(size, int64(usage.Total))
			return nil
		}, free, used, size)
		if err != nil {
			return fmt.Errorf("failed to register disk usage callback: %w", err)
		}
	}

	return nil
}

// Enabled reports whether metrics are being recorded.
func (t *Telemetry) Enabled() bool {
	return t != nil && t.meter != nil
}

// Handle implements event.EventHandler.
func (t *Telemetry) Handle(e event.DomainEvent) error {
	if !t.Enabled() {
		return nil
	}
	ctx := context.Background()

	switch ev := e.(type) {
	case event.TransferQueued:
		t.transfersQueued.Add(ctx, 1, kindAttr(ev.TransferView))
	case event.TransferStarted:
		t.mu.Lock()
		t.seen[ev.Record.ID] = ev.Record.DoneBytes
		t.mu.Unlock()
		t.transfersStarted.Add(ctx, 1, kindAttr(ev.TransferView))
	case event.TransferProgress:
		t.recordBytes(ctx, ev.TransferView, false)
	case event.TransferPaused:
		t.transfersPaused.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", ev.Record.Spec.Kind.String()),
			attribute.String("status", ev.Record.Status.String()),
		))
	case event.TransferFinished:
		t.recordBytes(ctx, ev.TransferView, true)
		attrs := metric.WithAttributes(
			attribute.String("kind", ev.Record.Spec.Kind.String()),
			attribute.String("outcome", ev.Outcome.String()),
		)
		t.transfersFinished.Add(ctx, 1, attrs)
		if ev.RunID != "" {
			t.runDuration.Record(ctx, ev.Duration.Seconds(), attrs)
		}
	}
	return nil
}

// HandledEvents implements event.EventHandler.
func (t *Telemetry) HandledEvents() []string {
	return []string{
		event.NameTransferQueued,
		event.NameTransferStarted,
		event.NameTransferProgress,
		event.NameTransferPaused,
		event.NameTransferFinished,
	}
}

// recordBytes adds the bytes written since the last event of the same run.
func (t *Telemetry) recordBytes(ctx context.Context, v event.TransferView, last bool) {
	t.mu.Lock()
	prev, ok := t.seen[v.Record.ID]
	if last {
		delete(t.seen, v.Record.ID)
	} else {
		t.seen[v.Record.ID] = v.Record.DoneBytes
	}
	t.mu.Unlock()

	if !ok {
		return
	}
	if delta := v.Record.DoneBytes - prev; delta > 0 {
		t.bytesDownloaded.Add(ctx, delta, kindAttr(v))
	}
}

func kindAttr(v event.TransferView) metric.AddOption {
	return metric.WithAttributes(attribute.String("kind", v.Record.Spec.Kind.String()))
}

// RecordHTTPRequest records one API request. route is the matched route
// pattern, not the raw path.
func (t *Telemetry) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if !t.Enabled() {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", statusClass(status)),
	)
	t.httpRequestsTotal.Add(context.Background(), 1, attrs)
	t.httpRequestDuration.Record(context.Background(), duration.Seconds(), attrs)
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// Handler returns the HTTP handler for the metrics endpoint.
func (t *Telemetry) Handler() http.Handler {
	if !t.Enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.meterProvider == nil {
		return nil
	}
	return t.meterProvider.Shutdown(ctx)
}
