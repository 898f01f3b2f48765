package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx"

	"github.com/webitel/im-presence-service/config"
)

// TracerName is the instrumentation scope of every span the service starts.
const TracerName = "github.com/webitel/im-presence-service"

type Provider struct {
	trace.TracerProvider
	shutdown func(context.Context) error
}

// NewProvider builds OTLP/gRPC exporting tracer and logger providers when
// tracing is enabled, a no-op provider otherwise. Both are installed globally;
// the slog bridge in infra/logging picks the logger provider up from there.
func NewProvider(ctx context.Context, cfg config.TracingConfig, serviceName, version string) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{
			TracerProvider: noop.NewTracerProvider(),
			shutdown:       func(context.Context) error { return nil },
		}, nil
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: resource: %w", err)
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	logOpts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		logOpts = append(logOpts, otlploggrpc.WithInsecure())
	}
	logExp, err := otlploggrpc.New(ctx, logOpts...)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("telemetry: log exporter: %w", err)
	}

	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(lp)

	return &Provider{
		TracerProvider: tp,
		shutdown: func(ctx context.Context) error {
			return errors.Join(tp.Shutdown(ctx), lp.Shutdown(ctx))
		},
	}, nil
}

func (p *Provider) Tracer() trace.Tracer { return p.TracerProvider.Tracer(TracerName) }

func (p *Provider) Shutdown(ctx context.Context) error { return p.shutdown(ctx) }

type moduleParams struct {
	fx.In

	LC     fx.Lifecycle
	Config *config.Config
	Logger *slog.Logger
}

var Module = fx.Module("telemetry",
	fx.Provide(
		func(p moduleParams) (*Provider, error) {
			tp, err := NewProvider(context.Background(), p.Config.Tracing, "im-presence-service", "")
			if err != nil {
				return nil, err
			}
			p.LC.Append(fx.Hook{
				OnStop: func(ctx context.Context) error {
					if err := tp.Shutdown(ctx); err != nil {
						p.Logger.Warn("TRACER_SHUTDOWN_FAILED", "err", err)
					}
					return nil
				},
			})
			return tp, nil
		},
		func(p *Provider) trace.Tracer { return p.Tracer() },
	),
)
