// Package logging provides the structured logger used across the system:
// a zap-backed StandardLogger with the chainable With* accessors the
// teacher's services use to attach request/operation context before
// emitting a log line, plus a handful of named event helpers
// (LogStartup, LogShutdown, LogAPIRequest, LogBusinessEvent) for the
// events every long-running service logs the same way.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	zaplogrus "github.com/beliefcore/core/internal/logging/zaplogrus"
)

// StandardLogger is the production logger: a zap.Logger plus accumulated
// structured fields from a With* chain.
type StandardLogger struct {
	logger *zap.Logger
	fields []zap.Field
}

// NewStandardLogger builds a StandardLogger at the given level, using a
// console encoder in "development" and JSON otherwise.
func NewStandardLogger(level, env string) *StandardLogger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "time"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if env == "development" {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), getZapLevel(level))
	zl := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return &StandardLogger{logger: zl}
}

// getZapLevel parses a level name, defaulting to info on anything it
// doesn't recognize rather than failing startup over a typo'd config value.
func getZapLevel(levelStr string) zapcore.Level {
	switch levelStr {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger exposes the underlying zap.Logger for callers that need it raw
// (e.g. wiring into a gin middleware).
func (s *StandardLogger) Logger() *zap.Logger { return s.logger }

func (s *StandardLogger) with(field zap.Field) *StandardLogger {
	fields := make([]zap.Field, len(s.fields)+1)
	copy(fields, s.fields)
	fields[len(s.fields)] = field
	return &StandardLogger{logger: s.logger, fields: fields}
}

func (s *StandardLogger) WithService(service string) *StandardLogger {
	return s.with(zap.String("service", service))
}

func (s *StandardLogger) WithComponent(component string) *StandardLogger {
	return s.with(zap.String("component", component))
}

func (s *StandardLogger) WithOperation(operation string) *StandardLogger {
	return s.with(zap.String("operation", operation))
}

func (s *StandardLogger) WithRequestID(requestID string) *StandardLogger {
	return s.with(zap.String("request_id", requestID))
}

func (s *StandardLogger) WithUserID(userID string) *StandardLogger {
	return s.with(zap.String("user_id", userID))
}

func (s *StandardLogger) WithExchange(exchange string) *StandardLogger {
	return s.with(zap.String("exchange", exchange))
}

func (s *StandardLogger) WithSymbol(symbol string) *StandardLogger {
	return s.with(zap.String("symbol", symbol))
}

func (s *StandardLogger) WithError(err error) *StandardLogger {
	return s.with(zap.Error(err))
}

func (s *StandardLogger) WithFields(fields map[string]interface{}) *StandardLogger {
	newLogger := &StandardLogger{logger: s.logger, fields: append([]zap.Field{}, s.fields...)}
	for k, v := range fields {
		newLogger.fields = append(newLogger.fields, zap.Any(k, v))
	}
	return newLogger
}

func (s *StandardLogger) WithMetrics(metrics map[string]interface{}) *StandardLogger {
	return s.with(zap.Any("metrics", metrics))
}

func (s *StandardLogger) Debug(msg string) { s.logger.With(s.fields...).Debug(msg) }
func (s *StandardLogger) Info(msg string)  { s.logger.With(s.fields...).Info(msg) }
func (s *StandardLogger) Warn(msg string)  { s.logger.With(s.fields...).Warn(msg) }
func (s *StandardLogger) Error(msg string) { s.logger.With(s.fields...).Error(msg) }

// LogStartup emits the single line every service logs when it comes up.
func (s *StandardLogger) LogStartup(service, version string, port int) {
	s.logger.With(s.fields...).Info("service starting",
		zap.String("service", service),
		zap.String("version", version),
		zap.Int("port", port),
		zap.String("event", "startup"),
	)
}

// LogShutdown emits the single line every service logs on the way down.
func (s *StandardLogger) LogShutdown(service, reason string) {
	s.logger.With(s.fields...).Info("service shutting down",
		zap.String("service", service),
		zap.String("reason", reason),
		zap.String("event", "shutdown"),
	)
}

// LogAPIRequest emits one line per control-surface HTTP request.
func (s *StandardLogger) LogAPIRequest(method, path string, statusCode int, durationMs int64, userID string) {
	s.logger.With(s.fields...).Info("api request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status_code", statusCode),
		zap.Int64("duration_ms", durationMs),
		zap.String("user_id", userID),
		zap.String("event", "api_request"),
	)
}

// LogBusinessEvent emits a domain event (a trade opportunity, a halt, a
// calibration report) with its arbitrary detail payload attached.
func (s *StandardLogger) LogBusinessEvent(eventType string, details map[string]interface{}) {
	fields := append([]zap.Field{}, s.fields...)
	fields = append(fields,
		zap.String("event", "business_event"),
		zap.String("type", eventType),
	)
	for k, v := range details {
		fields = append(fields, zap.Any(k, v))
	}
	s.logger.Info("business event", fields...)
}

// ParseLogrusLevel maps a config-style level name onto the logrus-façade
// Level enum, for components that configure the zaplogrus logger rather
// than a StandardLogger directly.
func ParseLogrusLevel(levelStr string) zaplogrus.Level {
	switch levelStr {
	case "debug", "DEBUG":
		return zaplogrus.DebugLevel
	case "info", "INFO":
		return zaplogrus.InfoLevel
	case "warn", "WARN", "warning", "WARNING":
		return zaplogrus.WarnLevel
	case "error", "ERROR":
		return zaplogrus.ErrorLevel
	case "fatal", "FATAL":
		return zaplogrus.FatalLevel
	default:
		return zaplogrus.InfoLevel
	}
}
