package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusTeapot)
}

func TestRateLimitMiddleware(t *testing.T) {
	h := RateLimitMiddleware(1, zap.NewNop())(http.HandlerFunc(okHandler))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/items", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	if codes[0] != http.StatusTeapot {
		t.Errorf("first request should pass, got %d", codes[0])
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("burst should be limited, got %v", codes)
	}
}

func TestLoggingAndMetricsPreserveStatus(t *testing.T) {
	r := mux.NewRouter()
	r.Use(LoggingMiddleware(zap.NewNop()))
	r.Use(MetricsMiddleware)
	r.HandleFunc("/items/{id}", okHandler)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/42", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("expected status to pass through, got %d", rec.Code)
	}
}

func TestRouteTemplateUnmatched(t *testing.T) {
	if got := routeTemplate(httptest.NewRequest(http.MethodGet, "/x", nil)); got != "unmatched" {
		t.Errorf("expected unmatched, got %s", got)
	}
}
