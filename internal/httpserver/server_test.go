package httpserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/MandarSase/AI-3DMODEL-INPUT/internal/telephony"
)

func serve(srv *Server, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	srv.Echo.ServeHTTP(w, r)
	return w
}

func TestServer_Healthz(t *testing.T) {
	srv := New(Options{})
	w := serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "ok" {
		t.Fatalf("body = %q", w.Body.String())
	}
}

func TestAuthOK(t *testing.T) {
	// Missing expected -> accept
	if !authOK(nil, "") {
		t.Fatalf("expected true when expected empty")
	}
	r := httptest.NewRequest(http.MethodGet, "/?password=secret", nil)
	if !authOK(r, "secret") {
		t.Fatalf("expected true with query password")
	}
	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.Header.Set("X-Auth-Token", "tok")
	if !authOK(r2, "tok") {
		t.Fatalf("expected true with X-Auth-Token")
	}
	r3 := httptest.NewRequest(http.MethodGet, "/", nil)
	r3.Header.Set("Authorization", "Bearer abc")
	if !authOK(r3, "abc") {
		t.Fatalf("expected true with Authorization bearer")
	}
}

func TestAuthOK_BearerCaseInsensitivePrefix(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "bearer abc")
	if !authOK(r, "abc") {
		t.Fatalf("expected true with lowercase bearer prefix")
	}
}

func TestAuthOK_NegativeCases(t *testing.T) {
	r1 := httptest.NewRequest(http.MethodGet, "/?password=wrong", nil)
	if authOK(r1, "secret") {
		t.Fatalf("expected false with wrong query token")
	}
	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.Header.Set("X-Auth-Token", "nope")
	if authOK(r2, "secret") {
		t.Fatalf("expected false with wrong X-Auth-Token")
	}
	r3 := httptest.NewRequest(http.MethodGet, "/", nil)
	r3.Header.Set("Authorization", "Bearer nope")
	if authOK(r3, "secret") {
		t.Fatalf("expected false with wrong bearer token")
	}
}

func TestCall_MethodNotAllowed(t *testing.T) {
	srv := New(Options{})
	w := serve(srv, httptest.NewRequest(http.MethodGet, "/call", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestCall_BadJSON(t *testing.T) {
	srv := New(Options{})
	r := httptest.NewRequest(http.MethodPost, "/call", strings.NewReader("not-json"))
	r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	w := serve(srv, r)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCall_Unauthorized(t *testing.T) {
	srv := New(Options{AuthPassword: "secret"})

	r := httptest.NewRequest(http.MethodPost, "/call", strings.NewReader("{}"))
	r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if w := serve(srv, r); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	r2 := httptest.NewRequest(http.MethodPost, "/call?password=wrong", strings.NewReader("{}"))
	r2.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if w := serve(srv, r2); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestCall_WebRTCDisabled(t *testing.T) {
	srv := New(Options{})
	r := httptest.NewRequest(http.MethodPost, "/call", strings.NewReader(`{"type":"offer","sdp":"v=0"}`))
	r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	w := serve(srv, r)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestTwilioRoutesRegistered(t *testing.T) {
	svc := telephony.New("AC123", "token", "", nil, nil)
	srv := New(Options{Twilio: svc})

	// Unsigned webhook: the route exists but the signature middleware rejects it.
	r := httptest.NewRequest(http.MethodPost, "/twilio/voice", strings.NewReader("CallSid=CA1"))
	r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	w := serve(srv, r)
	if w.Code == http.StatusNotFound {
		t.Fatalf("twilio route not registered")
	}
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unsigned webhook, got %d", w.Code)
	}
}
