// Package logging wraps zap to implement the proxy's three-level logging
// scheme (off, headers_only, full) on top of structured, leveled output.
package logging

import (
	"github.com/llmgatewayd/llmgatewayd/internal/secrets"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is the proxy's logging verbosity, independent of zap's own level
// scale: it additionally gates which fields get attached to a log entry.
type Level string

const (
	LevelOff         Level = "OFF"
	LevelHeadersOnly Level = "HEADERS_ONLY"
	LevelFull        Level = "FULL"
)

// ParseLevel normalizes a config string to a Level, defaulting to
// HEADERS_ONLY for anything unrecognized.
func ParseLevel(s string) Level {
	switch Level(s) {
	case LevelOff, LevelHeadersOnly, LevelFull:
		return Level(s)
	default:
		return LevelHeadersOnly
	}
}

// New builds the SugaredLogger used throughout the proxy. OFF installs a
// no-op core so call sites pay no formatting cost; HEADERS_ONLY and FULL both
// log through zap's production encoder, with FULL additionally enabled for
// Debug so body-field call sites emit.
func New(level Level) *zap.SugaredLogger {
	if level == LevelOff {
		return zap.NewNop().Sugar()
	}

	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	if level == LevelFull {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return logger.Sugar()
}

// LogRequestHeaders logs an inbound or outbound header set at Info, redacting
// sensitive values. A no-op under OFF (the logger itself discards).
func LogRequestHeaders(log *zap.SugaredLogger, direction, endpoint string, headers map[string][]string) {
	log.Infow("headers", "direction", direction, "endpoint", endpoint, "headers", secrets.SanitizeHeaders(headers))
}

// LogRequestBody logs a request or response body at Debug, only meaningful
// under FULL since HEADERS_ONLY's level floor is Info. The body is redacted
// before it reaches the log sink.
func LogRequestBody(log *zap.SugaredLogger, direction, endpoint string, body []byte) {
	log.Debugw("body", "direction", direction, "endpoint", endpoint, "body", string(secrets.MaskJSONSecrets(body)))
}

// LogSSEEvent logs a single relayed SSE event at Debug.
func LogSSEEvent(log *zap.SugaredLogger, direction, eventType, data string) {
	log.Debugw("sse", "direction", direction, "event", eventType, "data", secrets.RedactForLog(data))
}
