package http

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DebugLogger traces individual requests. A nil *DebugLogger logs nothing,
// so callers never need to check.
type DebugLogger struct {
	logger *zap.Logger
}

// NewDebugLogger returns a DebugLogger writing at debug level, or nil when
// logger is nil.
func NewDebugLogger(logger *zap.Logger) *DebugLogger {
	if logger == nil {
		return nil
	}
	return &DebugLogger{logger: logger.Named("http")}
}

func (d *DebugLogger) LogRequest(phase string, req *http.Request) {
	if d == nil {
		return
	}
	d.logger.Debug(">>> request",
		zap.String("phase", phase),
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.Int64("bytes", req.ContentLength),
		zap.Strings("headers", headerNames(req.Header)))
}

func (d *DebugLogger) LogResponse(phase string, resp *http.Response, duration time.Duration) {
	if d == nil {
		return
	}
	d.logger.Debug("<<< response",
		zap.String("phase", phase),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", duration.Round(time.Microsecond)),
		zap.String("content_type", resp.Header.Get("Content-Type")))
}

func (d *DebugLogger) LogError(phase string, err error, duration time.Duration) {
	if d == nil {
		return
	}
	d.logger.Debug("!!! error",
		zap.String("phase", phase),
		zap.Error(err),
		zap.Duration("duration", duration.Round(time.Microsecond)))
}

// headerNames lists header names only; values may hold the upload secret.
func headerNames(h http.Header) []string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, strings.ToLower(name))
	}
	sort.Strings(names)
	return names
}
