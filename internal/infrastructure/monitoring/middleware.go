package monitoring

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

type HTTPMetricsMiddleware struct {
	next http.Handler
}

func NewHTTPMetricsMiddleware(next http.Handler) *HTTPMetricsMiddleware {
	return &HTTPMetricsMiddleware{
		next: next,
	}
}

func (m *HTTPMetricsMiddleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	wrapped := &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK, // default to 200
	}

	handlerName := extractHandlerName(r.URL.Path)

	m.next.ServeHTTP(wrapped, r)

	duration := time.Since(start).Seconds()
	statusCode := strconv.Itoa(wrapped.statusCode)

	HTTPRequestDuration.WithLabelValues(handlerName, r.Method, statusCode).Observe(duration)
	HTTPRequestsTotal.WithLabelValues(handlerName, r.Method, statusCode).Inc()
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// extractHandlerName collapses path parameters so token ids and buyer
// addresses never become label values.
func extractHandlerName(path string) string {
	path = strings.TrimPrefix(path, "/")

	switch {
	case path == "sales/end":
		return "end_sale"
	case strings.HasPrefix(path, "sales"):
		return "sales"
	case path == "tokens/mint":
		return "mint"
	case strings.HasPrefix(path, "tokens/owned"):
		return "owned_tokens"
	case strings.HasPrefix(path, "tokens"):
		return "tokens"
	case strings.HasPrefix(path, "purchases"):
		return "purchases"
	case strings.HasPrefix(path, "purchase"):
		return "purchase"
	case strings.HasPrefix(path, "refund"):
		return "refund"
	case strings.HasPrefix(path, "admin"):
		return "admin"
	case strings.HasPrefix(path, "config"):
		return "config"
	case strings.HasPrefix(path, "metrics"):
		return "metrics"
	case strings.HasPrefix(path, "health"):
		return "health"
	default:
		return "unknown"
	}
}
