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

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	salesCommitted metric.Int64Counter
	salesRejected  metric.Int64Counter
	volumeSold     metric.Int64Counter
	refunds        metric.Int64Counter
	orderEvents    metric.Int64Counter
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
				if log != nil {
					log.Info("shutting down meter provider")
				}
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

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "quotaguard"
	}
	meter := provider.Meter(name)

	salesCommitted, err := meter.Int64Counter("quotaguard_sales_committed_total")
	if err != nil {
		return nil, err
	}
	salesRejected, err := meter.Int64Counter("quotaguard_sales_rejected_total")
	if err != nil {
		return nil, err
	}
	volumeSold, err := meter.Int64Counter("quotaguard_volume_sold_ml_total", metric.WithUnit("ml"))
	if err != nil {
		return nil, err
	}
	refunds, err := meter.Int64Counter("quotaguard_refunds_total")
	if err != nil {
		return nil, err
	}
	orderEvents, err := meter.Int64Counter("quotaguard_order_events_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		salesCommitted: salesCommitted,
		salesRejected:  salesRejected,
		volumeSold:     volumeSold,
		refunds:        refunds,
		orderEvents:    orderEvents,
	}, nil
}

// RecordSaleCommitted counts a committed sale and the volume it consumed.
func (m *Metrics) RecordSaleCommitted(ctx context.Context, channel, paymentMethod string, volumeML int64) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("channel", strings.TrimSpace(channel)),
		attribute.String("payment_method", strings.TrimSpace(paymentMethod)),
	)
	m.salesCommitted.Add(ctx, 1, metric.WithAttributes(attrs...))
	if volumeML > 0 {
		m.volumeSold.Add(ctx, volumeML, metric.WithAttributes(attrs...))
	}
}

// RecordSaleRejected counts a rejected billing attempt.
func (m *Metrics) RecordSaleRejected(ctx context.Context, channel, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("channel", strings.TrimSpace(channel)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.salesRejected.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordRefund(ctx context.Context, paymentMethod string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("payment_method", strings.TrimSpace(paymentMethod)))
	m.refunds.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordOrderEvent counts order lifecycle events such as created or cancelled.
func (m *Metrics) RecordOrderEvent(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("event_type", strings.TrimSpace(eventType)))
	m.orderEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
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

var allowedLabelKeys = map[attribute.Key]struct{}{
	"channel":        {},
	"payment_method": {},
	"event_type":     {},
	"reason":         {},
	"endpoint":       {},
	"status_code":    {},
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
