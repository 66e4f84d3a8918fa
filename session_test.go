package stockx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// mustSignToken builds a signed HS256 token expiring at exp. The client never
// verifies signatures, so any signing key works.
func mustSignToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u-1",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func profileBody(t *testing.T, p Profile) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"data": map[string]any{"id": p.ID, "type": "user", "attributes": p},
	})
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func TestIsAuthenticated(t *testing.T) {
	cases := []struct {
		name  string
		token string
		want  bool
	}{
		{"no token", "", false},
		{"garbage token", "not.a.jwt", false},
		{"expired token", "", false},   // filled below
		{"valid token", "", true},      // filled below
		{"no expiry claim", "", false}, // filled below
	}
	cases[2].token = mustSignToken(t, time.Now().Add(-10*time.Second))
	cases[3].token = mustSignToken(t, time.Now().Add(time.Hour))

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u-1",
	}).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatal(err)
	}
	cases[4].token = noExp

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := NewClient()
			if tc.token != "" {
				if err := client.Session().Login(tc.token, "u-1"); err != nil {
					t.Fatal(err)
				}
			}
			if got := client.Session().IsAuthenticated(); got != tc.want {
				t.Fatalf("IsAuthenticated() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestUserIDRequiresToken(t *testing.T) {
	client := NewClient()
	// A lingering user id without a token must read as logged out.
	if err := client.creds.Set(KeyUserID, "u-9"); err != nil {
		t.Fatal(err)
	}
	if got := client.Session().UserID(); got != "" {
		t.Fatalf("UserID() = %q without a token, want empty", got)
	}

	if err := client.Session().Login(mustSignToken(t, time.Now().Add(time.Hour)), "u-9"); err != nil {
		t.Fatal(err)
	}
	if got := client.Session().UserID(); got != "u-9" {
		t.Fatalf("UserID() = %q, want u-9", got)
	}
}

func TestCurrentUserLive(t *testing.T) {
	want := Profile{ID: "u-1", Name: "Ada", Email: "ada@example.com"}
	srv := newCatalogServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/me" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write(profileBody(t, want))
	})
	client := newTestClient(srv.URL)

	got, err := client.Session().CurrentUser(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Ada" || got.ID != "u-1" {
		t.Fatalf("unexpected profile: %+v", got)
	}

	cached, _, ok := getJSON[Profile](client.cache, profileCacheKey, 0)
	if !ok || cached.Name != "Ada" {
		t.Fatal("profile should be cached after a live fetch")
	}
}

func TestCurrentUserOfflineFallback(t *testing.T) {
	client := newTestClient("http://127.0.0.1:0", WithConnectivity(StaticConnectivity(false)))
	putJSON(client.cache, profileCacheKey, Profile{ID: "u-1", Name: "Cached Ada"})

	got, err := client.Session().CurrentUser(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Cached Ada" {
		t.Fatalf("expected cached profile, got %+v", got)
	}
}

func TestCurrentUserNoCacheErrors(t *testing.T) {
	client := newTestClient("http://127.0.0.1:0", WithConnectivity(StaticConnectivity(false)))

	if _, err := client.Session().CurrentUser(context.Background()); err == nil {
		t.Fatal("with no live fetch and no cache there is nothing safe to return")
	}
}

func TestCurrentUserSingleFlight(t *testing.T) {
	var requests int32
	arrived := make(chan struct{})
	release := make(chan struct{})
	srv := newCatalogServer(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			close(arrived)
		}
		<-release
		w.Write(profileBody(t, Profile{ID: "u-1", Name: "Ada"}))
	})
	client := newTestClient(srv.URL)

	var wg sync.WaitGroup
	results := make([]*Profile, 4)
	errs := make([]error, 4)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = client.Session().CurrentUser(context.Background())
	}()
	<-arrived

	// Latecomers while the first fetch is held open.
	for i := 1; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = client.Session().CurrentUser(context.Background())
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&requests); got != 1 {
		t.Fatalf("expected a single in-flight fetch, saw %d requests", got)
	}
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("call %d failed: %v", i, errs[i])
		}
		if results[i] == nil || results[i].Name != "Ada" {
			t.Fatalf("call %d got %+v", i, results[i])
		}
	}
}

func TestCurrentUserWaitersInheritFetchError(t *testing.T) {
	var arriveOnce sync.Once
	arrived := make(chan struct{})
	release := make(chan struct{})
	srv := newCatalogServer(t, func(w http.ResponseWriter, r *http.Request) {
		arriveOnce.Do(func() { close(arrived) })
		<-release
		w.WriteHeader(http.StatusInternalServerError)
	})
	client := newTestClient(srv.URL)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[0] = client.Session().CurrentUser(context.Background())
	}()
	<-arrived

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[1] = client.Session().CurrentUser(context.Background())
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	// With no cached profile, the waiter inherits the fetch's real failure
	// instead of a generic missing-profile error.
	for i, err := range errs {
		var se *StatusError
		if !errors.As(err, &se) || se.StatusCode != http.StatusInternalServerError {
			t.Fatalf("call %d: want the fetch's status error, got %v", i, err)
		}
	}
}

func TestLogoutClearsProfileCache(t *testing.T) {
	client := NewClient()
	if err := client.Session().Login(mustSignToken(t, time.Now().Add(time.Hour)), "u-1"); err != nil {
		t.Fatal(err)
	}
	putJSON(client.cache, profileCacheKey, Profile{ID: "u-1", Name: "Ada"})

	if err := client.Session().Logout(); err != nil {
		t.Fatal(err)
	}
	if client.Session().IsAuthenticated() {
		t.Fatal("still authenticated after logout")
	}
	if _, _, ok := getJSON[Profile](client.cache, profileCacheKey, 0); ok {
		t.Fatal("profile cache should be cleared on logout")
	}
}

// Expiry boundary: a token expiring within clock skew of "now" flips exactly
// at its exp claim, no grace period in either direction.
func TestIsAuthenticatedBoundary(t *testing.T) {
	client := NewClient()
	session := client.Session()

	anchor := time.Now()
	session.now = func() time.Time { return anchor }

	if err := session.Login(mustSignToken(t, anchor.Add(10*time.Second)), "u-1"); err != nil {
		t.Fatal(err)
	}
	if !session.IsAuthenticated() {
		t.Fatal("token expiring 10s from now must still be valid")
	}

	session.now = func() time.Time { return anchor.Add(11 * time.Second) }
	if session.IsAuthenticated() {
		t.Fatal("token past its expiry must be invalid")
	}
}
