package stockx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// ============================================================================
// Origin resolution
// ============================================================================

func TestResolveOriginPrefersFirstResponder(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead.Close() // first candidate: reachable address, nothing listening

	live := newCatalogServer(t, func(w http.ResponseWriter, r *http.Request) {})

	client := newTestClient(dead.URL, WithOrigins(dead.URL, live.URL))
	if got := client.ResolveOrigin(context.Background()); got != live.URL {
		t.Fatalf("resolved %q, want the responding candidate %q", got, live.URL)
	}
}

func TestResolveOriginIsSticky(t *testing.T) {
	var probes int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ping" {
			atomic.AddInt32(&probes, 1)
			return
		}
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	client := newTestClient(srv.URL)
	for i := 0; i < 3; i++ {
		if got := client.ResolveOrigin(context.Background()); got != srv.URL {
			t.Fatalf("resolved %q, want %q", got, srv.URL)
		}
	}
	if _, err := client.do(context.Background(), "GET", "/api/v1/ignored", nil, nil); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&probes); got != 1 {
		t.Fatalf("origin must be probed once per process, saw %d probes", got)
	}
}

func TestResolveOriginFallsBackToLastCandidate(t *testing.T) {
	first := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	first.Close()
	second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	second.Close()

	client := newTestClient(first.URL, WithOrigins(first.URL, second.URL))
	if got := client.ResolveOrigin(context.Background()); got != second.URL {
		t.Fatalf("with no responders the last candidate wins, got %q want %q", got, second.URL)
	}
}

func TestResolveOriginRejectsServerError(t *testing.T) {
	broken := newCatalogServerStatus(t, http.StatusInternalServerError)
	healthy := newCatalogServer(t, func(w http.ResponseWriter, r *http.Request) {})

	client := newTestClient(broken.URL, WithOrigins(broken.URL, healthy.URL))
	if got := client.ResolveOrigin(context.Background()); got != healthy.URL {
		t.Fatalf("a 5xx ping is not alive; resolved %q, want %q", got, healthy.URL)
	}
}

// newCatalogServerStatus serves the given status for every request including
// /ping.
func newCatalogServerStatus(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// ============================================================================
// Request path
// ============================================================================

func TestBearerTokenAttached(t *testing.T) {
	var gotAuth atomic.Value
	srv := newCatalogServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		w.Write([]byte(`{}`))
	})

	client := newTestClient(srv.URL)
	token := mustSignToken(t, time.Now().Add(time.Hour))
	if err := client.Session().Login(token, "u-1"); err != nil {
		t.Fatal(err)
	}

	if _, err := client.do(context.Background(), "GET", "/api/v1/me", nil, nil); err != nil {
		t.Fatal(err)
	}
	if got := gotAuth.Load(); got != "Bearer "+token {
		t.Fatalf("Authorization = %q, want bearer token", got)
	}
}

func TestNoBearerWhenLoggedOut(t *testing.T) {
	var gotAuth atomic.Value
	srv := newCatalogServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		w.Write([]byte(`{}`))
	})

	client := newTestClient(srv.URL)
	if _, err := client.do(context.Background(), "GET", "/api/v1/products", nil, nil); err != nil {
		t.Fatal(err)
	}
	if got := gotAuth.Load(); got != "" {
		t.Fatalf("Authorization = %q for a logged-out client, want none", got)
	}
}

func TestStatusErrorCarriesBackendPayload(t *testing.T) {
	srv := newCatalogServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":{"code":"sku_taken","message":"SKU already exists"}}`))
	})
	client := newTestClient(srv.URL)

	_, err := client.do(context.Background(), "POST", "/api/v1/products", map[string]string{}, nil)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("StatusCode = %d", se.StatusCode)
	}
	if se.API == nil || se.API.Code != "sku_taken" {
		t.Fatalf("structured payload not parsed: %+v", se.API)
	}
}

func TestStatusErrorWithOpaqueBody(t *testing.T) {
	srv := newCatalogServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	})
	client := newTestClient(srv.URL)

	_, err := client.do(context.Background(), "GET", "/api/v1/products", nil, nil)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.API != nil {
		t.Fatalf("opaque body must not fake a structured error: %+v", se.API)
	}
	if string(se.Body) != "upstream exploded" {
		t.Fatalf("raw body lost: %q", se.Body)
	}
}

func TestOfflineTransportClassified(t *testing.T) {
	var notices []Notice
	client := newTestClient("http://127.0.0.1:0",
		WithConnectivity(StaticConnectivity(false)),
		WithNotifier(FuncNotifier(func(n Notice) { notices = append(notices, n) })),
	)

	_, err := client.do(context.Background(), "GET", "/api/v1/products", nil, nil)
	if !IsOffline(err) {
		t.Fatalf("expected offline classification, got %v", err)
	}
	if len(notices) != 1 || notices[0].Kind != NoticeError {
		t.Fatalf("expected one offline notice, got %+v", notices)
	}
}

func TestSessionExpiredHandlerFires(t *testing.T) {
	srv := newCatalogServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	fired := make(chan struct{})
	client := newTestClient(srv.URL, WithSessionExpiredHandler(func() { close(fired) }))
	if err := client.Session().Login(mustSignToken(t, time.Now().Add(time.Hour)), "u-1"); err != nil {
		t.Fatal(err)
	}

	data, err := client.do(context.Background(), "GET", "/api/v1/me", nil, nil)
	if data != nil || err != nil {
		t.Fatalf("auth rejection must return nil, nil; got %v, %v", data, err)
	}

	select {
	case <-fired:
	case <-time.After(redirectDelay + time.Second):
		t.Fatal("session-expired handler never fired")
	}
}
