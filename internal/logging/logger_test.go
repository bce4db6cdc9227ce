package logging

import (
	"fmt"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	zaplogrus "github.com/beliefcore/core/internal/logging/zaplogrus"
)

func setupTestLogger() (*StandardLogger, *observer.ObservedLogs) {
	core, observedLogs := observer.New(zap.InfoLevel)
	return &StandardLogger{logger: zap.New(core)}, observedLogs
}

func TestNewStandardLoggerBuildsAUsableLogger(t *testing.T) {
	logger := NewStandardLogger("info", "development")
	if logger == nil || logger.Logger() == nil {
		t.Fatal("NewStandardLogger() returned a logger with a nil zap.Logger")
	}
}

func TestGetZapLevel(t *testing.T) {
	tests := []struct {
		levelStr string
		want     zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"invalid", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := getZapLevel(tt.levelStr); got != tt.want {
			t.Errorf("getZapLevel(%q) = %v, want %v", tt.levelStr, got, tt.want)
		}
	}
}

func TestWithServiceAttachesServiceField(t *testing.T) {
	logger, logs := setupTestLogger()
	logger.WithService("new-service").Info("test message")

	if logs.Len() != 1 {
		t.Fatalf("logs.Len() = %d, want 1", logs.Len())
	}
	entry := logs.All()[0]
	if entry.Message != "test message" {
		t.Errorf("Message = %q, want %q", entry.Message, "test message")
	}
	if got := entry.ContextMap()["service"]; got != "new-service" {
		t.Errorf("service field = %v, want new-service", got)
	}
}

func TestWithComponentAttachesComponentField(t *testing.T) {
	logger, logs := setupTestLogger()
	logger.WithComponent("database").Info("test message")

	if got := logs.All()[0].ContextMap()["component"]; got != "database" {
		t.Errorf("component field = %v, want database", got)
	}
}

func TestWithOperationAttachesOperationField(t *testing.T) {
	logger, logs := setupTestLogger()
	logger.WithOperation("fetch_markets").Info("test message")

	if got := logs.All()[0].ContextMap()["operation"]; got != "fetch_markets" {
		t.Errorf("operation field = %v, want fetch_markets", got)
	}
}

func TestWithRequestIDAttachesRequestIDField(t *testing.T) {
	logger, logs := setupTestLogger()
	logger.WithRequestID("req-123").Info("test message")

	if got := logs.All()[0].ContextMap()["request_id"]; got != "req-123" {
		t.Errorf("request_id field = %v, want req-123", got)
	}
}

func TestWithUserIDAttachesUserIDField(t *testing.T) {
	logger, logs := setupTestLogger()
	logger.WithUserID("user-789").Info("test message")

	if got := logs.All()[0].ContextMap()["user_id"]; got != "user-789" {
		t.Errorf("user_id field = %v, want user-789", got)
	}
}

func TestWithExchangeAttachesExchangeField(t *testing.T) {
	logger, logs := setupTestLogger()
	logger.WithExchange("polymarket").Info("test message")

	if got := logs.All()[0].ContextMap()["exchange"]; got != "polymarket" {
		t.Errorf("exchange field = %v, want polymarket", got)
	}
}

func TestWithSymbolAttachesSymbolField(t *testing.T) {
	logger, logs := setupTestLogger()
	logger.WithSymbol("WILL-RATE-CUT-SEP").Info("test message")

	if got := logs.All()[0].ContextMap()["symbol"]; got != "WILL-RATE-CUT-SEP" {
		t.Errorf("symbol field = %v, want WILL-RATE-CUT-SEP", got)
	}
}

func TestWithErrorAttachesErrorField(t *testing.T) {
	logger, logs := setupTestLogger()
	logger.WithError(fmt.Errorf("mock error")).Info("test error message")

	entry := logs.All()[0]
	if entry.Message != "test error message" {
		t.Errorf("Message = %q, want %q", entry.Message, "test error message")
	}
	if got := entry.ContextMap()["error"]; got != "mock error" {
		t.Errorf("error field = %v, want %q", got, "mock error")
	}
}

func TestWithFieldsAttachesArbitraryFields(t *testing.T) {
	logger, logs := setupTestLogger()
	logger.WithFields(map[string]interface{}{
		"custom_key": "custom_value",
		"number":     42,
	}).Info("test message")

	fields := logs.All()[0].ContextMap()
	if fields["custom_key"] != "custom_value" {
		t.Errorf("custom_key = %v, want custom_value", fields["custom_key"])
	}
	if got, ok := fields["number"]; !ok {
		t.Error("number field missing")
	} else if got != int64(42) && got != float64(42) {
		t.Errorf("number = %v, want 42", got)
	}
}

func TestWithMetricsAttachesMetricsField(t *testing.T) {
	logger, logs := setupTestLogger()
	logger.WithMetrics(map[string]interface{}{"duration_ms": 150}).Info("test message")

	metrics, ok := logs.All()[0].ContextMap()["metrics"].(map[string]interface{})
	if !ok {
		t.Fatal("metrics field missing or wrong type")
	}
	// zap.Any stores the map as given, so the value keeps the caller's int type.
	if metrics["duration_ms"] != 150 {
		t.Errorf("duration_ms = %v, want 150", metrics["duration_ms"])
	}
}

func TestWithChainDoesNotMutateParentLogger(t *testing.T) {
	logger, logs := setupTestLogger()
	scoped := logger.WithService("svc")
	logger.Info("unscoped")
	scoped.Info("scoped")

	if logs.Len() != 2 {
		t.Fatalf("logs.Len() = %d, want 2", logs.Len())
	}
	if _, ok := logs.All()[0].ContextMap()["service"]; ok {
		t.Error("the unscoped call picked up a field from the scoped derivative logger")
	}
	if logs.All()[1].ContextMap()["service"] != "svc" {
		t.Error("the scoped call is missing its service field")
	}
}

func TestLogStartupEmitsStartupEvent(t *testing.T) {
	logger, logs := setupTestLogger()
	logger.LogStartup("core", "1.0.0", 8080)

	fields := logs.All()[0].ContextMap()
	if fields["service"] != "core" || fields["version"] != "1.0.0" || fields["event"] != "startup" {
		t.Errorf("fields = %+v, want service=core version=1.0.0 event=startup", fields)
	}
	if got, ok := fields["port"]; !ok || (got != int64(8080) && got != float64(8080)) {
		t.Errorf("port = %v, want 8080", got)
	}
}

func TestLogShutdownEmitsShutdownEvent(t *testing.T) {
	logger, logs := setupTestLogger()
	logger.LogShutdown("core", "graceful")

	fields := logs.All()[0].ContextMap()
	if fields["service"] != "core" || fields["reason"] != "graceful" || fields["event"] != "shutdown" {
		t.Errorf("fields = %+v, want service=core reason=graceful event=shutdown", fields)
	}
}

func TestLogAPIRequestEmitsRequestFields(t *testing.T) {
	logger, logs := setupTestLogger()
	logger.LogAPIRequest("POST", "/v1/tick", 200, 42, "operator-1")

	fields := logs.All()[0].ContextMap()
	if fields["method"] != "POST" || fields["path"] != "/v1/tick" || fields["user_id"] != "operator-1" {
		t.Errorf("fields = %+v, want method=POST path=/v1/tick user_id=operator-1", fields)
	}
}

func TestLogBusinessEventEmitsTypeAndDetails(t *testing.T) {
	logger, logs := setupTestLogger()
	logger.LogBusinessEvent("trade_opportunity", map[string]interface{}{
		"market_id": "m1",
		"edge":      7.5,
	})

	fields := logs.All()[0].ContextMap()
	if fields["event"] != "business_event" || fields["type"] != "trade_opportunity" {
		t.Errorf("fields = %+v, want event=business_event type=trade_opportunity", fields)
	}
	if fields["market_id"] != "m1" {
		t.Errorf("market_id = %v, want m1", fields["market_id"])
	}
}

func TestParseLogrusLevel(t *testing.T) {
	tests := []struct {
		levelStr string
		want     zaplogrus.Level
	}{
		{"debug", zaplogrus.DebugLevel},
		{"DEBUG", zaplogrus.DebugLevel},
		{"warn", zaplogrus.WarnLevel},
		{"warning", zaplogrus.WarnLevel},
		{"error", zaplogrus.ErrorLevel},
		{"info", zaplogrus.InfoLevel},
		{"INFO", zaplogrus.InfoLevel},
		{"invalid", zaplogrus.InfoLevel},
		{"", zaplogrus.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLogrusLevel(tt.levelStr); got != tt.want {
			t.Errorf("ParseLogrusLevel(%q) = %v, want %v", tt.levelStr, got, tt.want)
		}
	}
}
