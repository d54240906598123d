package main

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// initTracing wires an stdout-backed OpenTelemetry tracer provider,
// matching the otel+sdk+stdouttrace stack the teacher declares but never
// wires up (cmd/nysus/main.go calls an observability.InitTracing that
// does not exist in the pack). It only installs the global provider; no
// package in this module starts spans of its own, so the exporter prints
// only spans a caller creates through otel.Tracer.
func initTracing(ctx context.Context) (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("tracing: create stdout exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
