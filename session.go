package stockx

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credential keys. The token and user id are not independently valid: absence
// of the token means logged-out regardless of a lingering user id.
const (
	KeyAuthToken = "auth_token"
	KeyUserID    = "user_id"
)

// CredentialStore is an opaque secure key-value store for the session token
// and current user id. Implementations are expected to be durable across
// process restarts; the in-memory one exists for tests and tooling.
type CredentialStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// MemoryCredentials is a goroutine-safe in-memory CredentialStore.
type MemoryCredentials struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryCredentials creates an empty in-memory credential store.
func NewMemoryCredentials() *MemoryCredentials {
	return &MemoryCredentials{values: make(map[string]string)}
}

func (s *MemoryCredentials) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key], nil
}

func (s *MemoryCredentials) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *MemoryCredentials) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// ============================================================================
// Session manager
// ============================================================================

// Session answers "is there a currently valid session" and serves the current
// user profile with an offline fallback to the last cached copy.
type Session struct {
	c   *Client
	now func() time.Time

	mu         sync.Mutex
	refreshing bool
	waiters    []chan struct{}
	flightErr  error
}

func newSession(c *Client) *Session {
	return &Session{c: c, now: time.Now}
}

// Login stores the session token and user id.
func (s *Session) Login(token, userID string) error {
	if err := s.c.creds.Set(KeyAuthToken, token); err != nil {
		return err
	}
	return s.c.creds.Set(KeyUserID, userID)
}

// Logout clears the stored credentials and the cached profile.
func (s *Session) Logout() error {
	_ = s.c.cache.Delete(profileCacheKey)
	if err := s.c.creds.Delete(KeyAuthToken); err != nil {
		return err
	}
	return s.c.creds.Delete(KeyUserID)
}

// UserID returns the stored user id, empty when logged out.
func (s *Session) UserID() string {
	if token, err := s.c.creds.Get(KeyAuthToken); err != nil || token == "" {
		return ""
	}
	id, _ := s.c.creds.Get(KeyUserID)
	return id
}

// IsAuthenticated reports whether a stored token exists and its expiry claim
// is in the future. The token is decoded without signature verification (the
// backend verifies; the client only needs the expiry) and any decode failure
// counts as not authenticated. Fail closed, never open.
func (s *Session) IsAuthenticated() bool {
	token, err := s.c.creds.Get(KeyAuthToken)
	if err != nil || token == "" {
		return false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.After(s.now())
}

// CurrentUser fetches the current user's profile through the gateway. On
// success the profile is written to a single-slot cache; on failure the last
// cached profile is returned if one exists. With no cache the failure
// propagates: there is no safe "empty profile" default.
//
// Concurrent calls collapse into a single in-flight fetch; latecomers wait
// for it and then read the cache, or inherit the fetch's failure when there
// is nothing cached.
func (s *Session) CurrentUser(ctx context.Context) (*Profile, error) {
	s.mu.Lock()
	if s.refreshing {
		done := make(chan struct{})
		s.waiters = append(s.waiters, done)
		s.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if cached, err := s.cachedProfile(); err == nil {
			return cached, nil
		}
		s.mu.Lock()
		flightErr := s.flightErr
		s.mu.Unlock()
		if flightErr != nil {
			return nil, flightErr
		}
		return nil, ErrNoProfile
	}
	s.refreshing = true
	s.flightErr = nil
	s.mu.Unlock()

	finish := func(err error) {
		s.mu.Lock()
		s.refreshing = false
		s.flightErr = err
		for _, done := range s.waiters {
			close(done)
		}
		s.waiters = nil
		s.mu.Unlock()
	}

	profile, err := s.fetchProfile(ctx)
	if err == nil && profile != nil {
		putJSON(s.c.cache, profileCacheKey, profile)
		finish(nil)
		return profile, nil
	}

	if cached, cerr := s.cachedProfile(); cerr == nil {
		finish(nil)
		return cached, nil
	}
	finish(err)
	if err != nil {
		return nil, err
	}
	// Session expired mid-call: the gateway handled it, nothing to return.
	return nil, ErrNoProfile
}

func (s *Session) fetchProfile(ctx context.Context) (*Profile, error) {
	data, err := s.c.do(ctx, "GET", "/api/v1/me", nil, nil)
	if err != nil || data == nil {
		return nil, err
	}
	env, err := decodeJSON[singleEnvelope](data)
	if err != nil {
		return nil, err
	}
	profile, err := decodeAttributes[Profile](env.Data, func(p *Profile, id string) {
		if p.ID == "" {
			p.ID = id
		}
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (s *Session) cachedProfile() (*Profile, error) {
	profile, _, ok := getJSON[Profile](s.c.cache, profileCacheKey, 0)
	if !ok {
		return nil, ErrNoProfile
	}
	return &profile, nil
}
