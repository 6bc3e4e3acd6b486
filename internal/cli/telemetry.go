package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/unkn0wn-root/weave/otelaspect"
)

// telemetryOptions returns otelaspect options for the --telemetry flag and the
// shutdown functions of any providers it created.
//
// "none" keeps the global (no-op) providers. "stdout" exports spans as they
// end and metrics once, on shutdown, to w.
func (f wiringFlags) telemetryOptions(w io.Writer) (otelaspect.Options, []func(context.Context) error, error) {
	switch strings.ToLower(f.telemetry) {
	case "", "none":
		return otelaspect.Options{}, nil, nil
	case "stdout":
		spans, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return otelaspect.Options{}, nil, fmt.Errorf("stdout trace exporter: %w", err)
		}
		metrics, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
		if err != nil {
			return otelaspect.Options{}, nil, fmt.Errorf("stdout metric exporter: %w", err)
		}

		tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(spans))
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metrics)))

		opts := otelaspect.Options{
			Tracer:         tp.Tracer("weavedemo"),
			Meter:          mp.Meter("weavedemo"),
			SpanNamePrefix: "weavedemo/",
			RecordArgs:     true,
		}
		return opts, []func(context.Context) error{tp.Shutdown, mp.Shutdown}, nil
	default:
		return otelaspect.Options{}, nil, fmt.Errorf("unknown telemetry exporter %q", f.telemetry)
	}
}
