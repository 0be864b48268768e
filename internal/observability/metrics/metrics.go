package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes the deposit-accounting instruments. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	recalculations    metric.Int64Counter
	subLedgerFallback metric.Int64Counter
	documents         metric.Int64Counter
	sequenceRetries   metric.Int64Counter
	transitions       metric.Int64Counter
	balanceDrift      metric.Int64Counter
	lockWait          metric.Float64Histogram
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return provider.Shutdown(ctx)
			},
		})
	}
	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}
	return provider, nil
}

func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "consigna"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	var err error
	if m.recalculations, err = meter.Int64Counter("consigna_balance_recalculations_total",
		metric.WithDescription("Balance recalculations by trigger and outcome.")); err != nil {
		return nil, err
	}
	if m.subLedgerFallback, err = meter.Int64Counter("consigna_balance_subledger_fallbacks_total",
		metric.WithDescription("Sub-ledger sums treated as zero during a recalculation.")); err != nil {
		return nil, err
	}
	if m.documents, err = meter.Int64Counter("consigna_ledger_documents_total",
		metric.WithDescription("Ledger documents created by kind.")); err != nil {
		return nil, err
	}
	if m.sequenceRetries, err = meter.Int64Counter("consigna_sequence_collisions_total",
		metric.WithDescription("Document number collisions retried on insert.")); err != nil {
		return nil, err
	}
	if m.transitions, err = meter.Int64Counter("consigna_validation_transitions_total",
		metric.WithDescription("Validation status transitions by kind.")); err != nil {
		return nil, err
	}
	if m.balanceDrift, err = meter.Int64Counter("consigna_balance_drift_total",
		metric.WithDescription("Stored balances corrected by reconciliation.")); err != nil {
		return nil, err
	}
	if m.lockWait, err = meter.Float64Histogram("consigna_balance_lock_wait_seconds",
		metric.WithDescription("Time spent waiting for the per-balance lock."),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) RecordRecalculation(ctx context.Context, trigger, outcome string) {
	if m == nil {
		return
	}
	m.recalculations.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("trigger", strings.TrimSpace(trigger)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)...))
}

func (m *Metrics) RecordSubLedgerFallback(ctx context.Context, ledger, reason string) {
	if m == nil {
		return
	}
	m.subLedgerFallback.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("ledger", ledger),
		attribute.String("reason", reason),
	)...))
}

func (m *Metrics) RecordDocument(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.documents.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("kind", kind))...))
}

func (m *Metrics) RecordSequenceCollision(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.sequenceRetries.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("kind", kind))...))
}

func (m *Metrics) RecordTransition(ctx context.Context, kind, from, to string) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("kind", kind),
		attribute.String("from", from),
		attribute.String("to", to),
	)...))
}

func (m *Metrics) RecordBalanceDrift(ctx context.Context, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.balanceDrift.Add(ctx, int64(count))
}

func (m *Metrics) ObserveLockWait(ctx context.Context, wait time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Record(ctx, wait.Seconds())
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// Client and site codes are unbounded and stay out of metric labels.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"kind":        {},
	"ledger":      {},
	"trigger":     {},
	"outcome":     {},
	"reason":      {},
	"from":        {},
	"to":          {},
	"status_code": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
