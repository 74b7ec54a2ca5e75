package logging

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog/hlog"
)

func TestMiddleware(t *testing.T) {
	buf := captureGlobal(t, Config{Level: "debug"})

	handler := Middleware(NewLogger(ComponentServer))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hlog.FromRequest(r).Info().Str("upc", r.URL.Query().Get("upc")).Msg("Price lookup")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/price?upc=1&zip=2", nil)
	req.Header.Set("User-Agent", "priceGetter-mobile/1.0")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
	requestID := rec.Header().Get("X-Request-Id")
	if requestID == "" {
		t.Fatal("expected X-Request-Id response header")
	}

	lines := decodeLines(t, buf)
	if len(lines) != 2 {
		t.Fatalf("got %d log lines, want 2: %s", len(lines), buf.String())
	}

	handlerLine, accessLine := lines[0], lines[1]
	for i, line := range lines {
		if line["component"] != ComponentServer {
			t.Errorf("line %d component = %v, want %s", i, line["component"], ComponentServer)
		}
		if line["req_id"] != requestID {
			t.Errorf("line %d req_id = %v, want %s", i, line["req_id"], requestID)
		}
		if line["user_agent"] != "priceGetter-mobile/1.0" {
			t.Errorf("line %d user_agent = %v", i, line["user_agent"])
		}
	}

	if handlerLine["upc"] != "1" {
		t.Errorf("handler line upc = %v, want 1", handlerLine["upc"])
	}
	if accessLine["message"] != "Request handled" {
		t.Errorf("access line message = %v", accessLine["message"])
	}
	if accessLine["status_code"] != float64(http.StatusTeapot) || accessLine["size"] != float64(15) {
		t.Errorf("access line status/size = %v/%v", accessLine["status_code"], accessLine["size"])
	}
	if url, _ := accessLine["url"].(string); !strings.Contains(url, "/api/price?upc=1&zip=2") {
		t.Errorf("access line url = %v", accessLine["url"])
	}
}

func TestMiddleware_ServerErrorsAtWarn(t *testing.T) {
	buf := captureGlobal(t, Config{Level: "warn"})

	handler := Middleware(NewLogger(ComponentServer))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/price", nil))
	handler = Middleware(NewLogger(ComponentServer))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	lines := decodeLines(t, buf)
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want only the 502: %s", len(lines), buf.String())
	}
	if lines[0]["level"] != "warn" || lines[0]["status_code"] != float64(http.StatusBadGateway) {
		t.Errorf("unexpected access line: %v", lines[0])
	}
}
