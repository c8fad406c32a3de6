package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/burstcam/internal/logging"
)

// quietSuffixes are polled endpoints logged at debug when they succeed.
var quietSuffixes = []string{"/preview.jpg", "/metrics", "/health"}

// HTTPLoggingMiddleware logs each request once it completes. Failures
// are logged at warn or error; polled endpoints and preflights at debug.
func HTTPLoggingMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	next(ctx)

	method := ctx.Method()
	path := ctx.URL().Path
	status := ctx.Status()

	attrs := []slog.Attr{
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Duration("duration", time.Since(start)),
		slog.String("remote_addr", ctx.RemoteAddr()),
	}
	if id := ctx.Param("camera_id"); id != "" {
		attrs = append(attrs, slog.String("camera", id))
	}
	if q := ctx.URL().RawQuery; q != "" {
		attrs = append(attrs, slog.String("query", q))
	}

	level := slog.LevelInfo
	switch {
	case status >= http.StatusInternalServerError:
		level = slog.LevelError
	case status >= http.StatusBadRequest:
		level = slog.LevelWarn
	case method == http.MethodOptions:
		level = slog.LevelDebug
	case method == http.MethodGet && hasQuietSuffix(path):
		level = slog.LevelDebug
	}
	logging.GetLogger("http").LogAttrs(ctx.Context(), level, "HTTP request completed", attrs...)
}

func hasQuietSuffix(path string) bool {
	for _, s := range quietSuffixes {
		if strings.HasSuffix(path, s) {
			return true
		}
	}
	return false
}
