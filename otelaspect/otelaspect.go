// Package otelaspect traces and counts intercepted calls with OpenTelemetry.
//
// Register it before other aspects so its span covers them:
//
//	chain.Configure(otelaspect.Factory(otelaspect.Options{}))
//	chain.Configure(cache.Factory(opts, setup))
//
// Calls answered by an earlier aspect (a cache hit, for instance) are
// recorded with weave.main_disabled=true.
package otelaspect

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/unkn0wn-root/weave"
)

const instrumentationName = "github.com/unkn0wn-root/weave/otelaspect"

// Options configure the aspect. The zero value uses the global providers.
type Options struct {
	Tracer trace.Tracer // nil => otel.Tracer
	Meter  metric.Meter // nil => otel.Meter

	// SpanNamePrefix is prepended to "<Contract>.<Method>".
	SpanNamePrefix string

	// RecordArgs adds each argument as a span attribute, formatted with %v
	// and cut at MaxAttributeSize.
	RecordArgs       bool
	MaxAttributeSize int // default 256

	Logger weave.Logger
}

type Aspect struct {
	tracer   trace.Tracer
	calls    metric.Int64Counter
	errs     metric.Int64Counter
	duration metric.Float64Histogram
	opts     Options
	log      weave.Logger

	target   weave.Target
	contract string
}

var (
	_ weave.Aspect       = (*Aspect)(nil)
	_ weave.Configurable = (*Aspect)(nil)
)

func New(opts Options) (*Aspect, error) {
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(instrumentationName)
	}
	if opts.Meter == nil {
		opts.Meter = otel.Meter(instrumentationName)
	}
	if opts.MaxAttributeSize <= 0 {
		opts.MaxAttributeSize = 256
	}

	calls, err := opts.Meter.Int64Counter(
		"weave.calls",
		metric.WithDescription("Intercepted calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}
	errs, err := opts.Meter.Int64Counter(
		"weave.errors",
		metric.WithDescription("Intercepted calls that returned an error or panicked"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := opts.Meter.Float64Histogram(
		"weave.duration_ms",
		metric.WithDescription("Intercepted call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Aspect{
		tracer:   opts.Tracer,
		calls:    calls,
		errs:     errs,
		duration: duration,
		opts:     opts,
		log:      weave.LoggerOr(opts.Logger),
	}, nil
}

func Factory(opts Options) weave.Factory {
	return func() (weave.Aspect, error) {
		a, err := New(opts)
		if err != nil {
			return nil, err
		}
		return a, nil
	}
}

func (a *Aspect) Configure(t weave.Target) error {
	a.target = t
	a.contract = "unknown"
	if t.Contract != nil {
		a.contract = t.Contract.Name()
	}
	return nil
}

type stateKey struct{}

type callState struct {
	span  trace.Span
	start time.Time
}

func (a *Aspect) Before(call *weave.Call, ret any, mainDisabled bool) (any, weave.Signal) {
	ctx, span := a.tracer.Start(call.Context(), a.opts.SpanNamePrefix+a.contract+"."+call.Method.Name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("weave.target", a.target.String()),
			attribute.String("weave.method", call.Method.Name),
		),
	)
	if a.opts.RecordArgs {
		for i, p := range call.Method.Params {
			if i < len(call.Args) {
				span.SetAttributes(attribute.String("weave.arg."+p.Name, truncate(fmt.Sprint(call.Args[i]), a.opts.MaxAttributeSize)))
			}
		}
	}
	call.WithContext(context.WithValue(ctx, stateKey{}, &callState{span: span, start: time.Now()}))
	return ret, weave.Signal{}
}

func (a *Aspect) After(call *weave.Call, ret any, mainDisabled bool, mainErr error) any {
	st, ok := call.Context().Value(stateKey{}).(*callState)
	if !ok {
		a.log.Warn("otel aspect: no span on call", weave.Fields{"method": call.Method.Name})
		return ret
	}
	ctx := call.Context()
	span := st.span
	elapsed := time.Since(st.start)

	outcome := "ok"
	span.SetAttributes(attribute.Bool("weave.main_disabled", mainDisabled))
	if mainErr != nil {
		outcome = "error"
		var pe *weave.PanicError
		if errors.As(mainErr, &pe) {
			outcome = "panic"
			span.SetAttributes(attribute.Bool("weave.panic", true))
		}
		span.RecordError(mainErr)
		span.SetStatus(codes.Error, mainErr.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()

	attrs := metric.WithAttributes(
		attribute.String("weave.method", call.Method.Name),
		attribute.String("weave.contract", a.contract),
		attribute.String("weave.outcome", outcome),
		attribute.Bool("weave.main_disabled", mainDisabled),
	)
	a.calls.Add(ctx, 1, attrs)
	if mainErr != nil {
		a.errs.Add(ctx, 1, attrs)
	}
	a.duration.Record(ctx, float64(elapsed.Microseconds())/1000.0, attrs)
	return ret
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
