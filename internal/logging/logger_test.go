package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/checkin/internal/config"
)

func newBufferLogger(t *testing.T, format string) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	cfg := NewDefaultConfig()
	cfg.Format = format
	cfg.Level = TraceLevel
	cfg.Output.Writer = &buf
	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)
	return logger, &buf
}

func TestNewLogger_WritesToConfiguredWriter(t *testing.T) {
	logger, buf := newBufferLogger(t, "json")

	logger.Info(context.Background(), "hello", zap.String("k", "v"))
	require.NoError(t, logger.Sync())

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "v", entry["k"])
	assert.Equal(t, "checkin", entry["service"])
	assert.Equal(t, "info", entry["level"])
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"
	_, err := NewLogger(cfg, nil)
	assert.Error(t, err)
}

func TestNewLogger_OTELOnlyWithoutProvider(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output.Console = false
	cfg.Output.OTEL = true
	_, err := NewLogger(cfg, nil)
	assert.Error(t, err)
}

func TestNewLogger_OTELBridge(t *testing.T) {
	var buf bytes.Buffer
	cfg := NewDefaultConfig()
	cfg.Output.Writer = &buf
	cfg.Output.OTEL = true

	logger, err := NewLogger(cfg, noop.NewLoggerProvider())
	require.NoError(t, err)
	logger.Info(context.Background(), "bridged")

	assert.Contains(t, buf.String(), "bridged")
}

func TestLogger_TraceLevelName(t *testing.T) {
	logger, buf := newBufferLogger(t, "json")

	logger.Trace(context.Background(), "deep")

	assert.Contains(t, buf.String(), `"level":"trace"`)
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	cfg := NewDefaultConfig()
	cfg.Level = zapcore.WarnLevel
	cfg.Output.Writer = &buf
	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)

	logger.Info(context.Background(), "quiet")
	logger.Warn(context.Background(), "loud")

	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")
	assert.False(t, logger.Enabled(zapcore.DebugLevel))
}

func TestLogger_WithAndNamed(t *testing.T) {
	tl := NewTestLogger()
	child := tl.Named("policy").With(zap.String("policy", "comment"))

	child.Info(context.Background(), "evaluated")

	entries := tl.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "policy", entries[0].LoggerName)
	tl.AssertField(t, "evaluated", "policy", "comment")
}

func TestContextFields(t *testing.T) {
	ctx := WithWorkspace(context.Background(), "/src/app")
	ctx = WithCheckinID(ctx, "abc")
	ctx = WithRequestID(ctx, "req-1")

	tl := NewTestLogger()
	tl.Info(ctx, "with context")

	tl.AssertField(t, "with context", "workspace", "/src/app")
	tl.AssertField(t, "with context", "checkin.id", "abc")
	tl.AssertField(t, "with context", "request.id", "req-1")
}

func TestContextFields_TraceCorrelation(t *testing.T) {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3},
		SpanID:     trace.SpanID{4, 5, 6},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	fields := ContextFields(ctx)

	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{"trace_id", "span_id"}, keys)
}

func TestContextFields_Empty(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	assert.Same(t, tl.Logger, FromContext(ctx))
}

func TestRedaction_SensitiveKey(t *testing.T) {
	logger, buf := newBufferLogger(t, "json")

	logger.Info(context.Background(), "auth", zap.String("token", "s3cr3t"))

	assert.NotContains(t, buf.String(), "s3cr3t")
	assert.Contains(t, buf.String(), `"token":"[REDACTED]"`)
}

func TestRedaction_PatternInValue(t *testing.T) {
	logger, buf := newBufferLogger(t, "console")

	logger.Info(context.Background(), "submitting", zap.String("comment", "fix login, password=hunter2"))

	out := buf.String()
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "fix login")
}

func TestRedaction_PatternInMessage(t *testing.T) {
	logger, buf := newBufferLogger(t, "json")

	logger.Info(context.Background(), "header Bearer abc.def.ghi")

	assert.NotContains(t, buf.String(), "abc.def.ghi")
}

func TestRedaction_WithFields(t *testing.T) {
	logger, buf := newBufferLogger(t, "json")

	logger.With(zap.String("secret", "xyz")).Info(context.Background(), "child")

	assert.NotContains(t, buf.String(), "xyz")
}

func TestRedaction_Disabled(t *testing.T) {
	var buf bytes.Buffer
	cfg := NewDefaultConfig()
	cfg.Redaction.Enabled = false
	cfg.Output.Writer = &buf
	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)

	logger.Info(context.Background(), "plain", zap.String("token", "visible"))

	assert.Contains(t, buf.String(), "visible")
}

func TestRedactedString(t *testing.T) {
	f := RedactedString("authorization", "Bearer xyz")
	assert.Equal(t, "[REDACTED:10]", f.String)
}

func TestSampling_ErrorsNeverDropped(t *testing.T) {
	var buf bytes.Buffer
	cfg := NewDefaultConfig()
	cfg.Output.Writer = &buf
	cfg.Sampling.Enabled = true
	cfg.Sampling.Initial = 1
	cfg.Sampling.Thereafter = 1000
	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		logger.Info(ctx, "repeated info")
		logger.Error(ctx, "repeated error")
	}

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "repeated info"))
	assert.Equal(t, 5, strings.Count(out, "repeated error"))
}

func TestFromAppConfig(t *testing.T) {
	cfg, err := FromAppConfig(config.LoggingConfig{Level: "trace", Format: "json"})
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, cfg.Level)
	assert.Equal(t, "json", cfg.Format)

	_, err = FromAppConfig(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"bad format", func(c *Config) { c.Format = "text" }, true},
		{"no outputs", func(c *Config) { c.Output.Console = false }, true},
		{"zero tick", func(c *Config) { c.Sampling.Enabled = true; c.Sampling.Tick = 0 }, true},
		{"bad pattern", func(c *Config) { c.Redaction.Patterns = []string{"("} }, true},
		{"empty field value", func(c *Config) { c.Fields["env"] = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTestLogger_Assertions(t *testing.T) {
	tl := NewTestLogger()
	tl.Warn(context.Background(), "policy override", zap.Int("failures", 2))

	tl.AssertLogged(t, zapcore.WarnLevel, "override")
	tl.AssertNotLogged(t, zapcore.ErrorLevel, "override")
	tl.AssertField(t, "override", "failures", int64(2))

	tl.Reset()
	assert.Empty(t, tl.All())
}
