// Package logging provides structured logging with OpenTelemetry integration.
//
// Logger wraps Zap with context-first methods:
//
//	logger, err := logging.NewLogger(cfg, nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithWorkspace(ctx, root)
//	logger.Info(ctx, "checkin submitted", zap.Int("changeset", id))
//
// Every entry picks up trace_id/span_id from the active span plus the
// workspace, checkin.id and request.id carried on the context.
//
// Console output goes to stderr by default so it never mixes with the
// "[ERROR] Policy:" diagnostics the CLI prints on stdout. When an OTEL
// LoggerProvider is passed to NewLogger and Output.OTEL is set, entries are
// also bridged through otelzap.
//
// Values matching the redaction patterns and fields with sensitive keys are
// masked by RedactingEncoder before they are written.
//
// Use TestLogger in tests:
//
//	tl := logging.NewTestLogger()
//	tl.AssertLogged(t, zapcore.WarnLevel, "policy override")
package logging
