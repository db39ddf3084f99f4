// Package telemetry wires OpenTelemetry tracing and metrics for checkin.
//
// Both the CLI and the changeset server call New with the telemetry
// section of the configuration. When enabled, spans and metrics are
// exported over OTLP (grpc or http/protobuf) and the providers are
// installed globally so instrumented packages pick them up:
//
//	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Telemetry, version),
//		telemetry.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	metrics, _ := orchestrator.NewMetrics(tel.Meter(orchestrator.InstrumentationName))
//
// Telemetry is disabled by default. A disabled or degraded instance hands
// out the global providers, which are no-ops unless something else
// installed real ones.
package telemetry
