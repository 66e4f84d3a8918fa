package stockx

import (
	"errors"
	"fmt"
)

var (
	// ErrNoToken is returned when an authenticated call is attempted with
	// no stored session token.
	ErrNoToken = errors.New("no session token stored")

	// ErrNoProfile is returned by CurrentUser when the live fetch failed
	// and no cached profile exists. A missing profile is a real error the
	// caller must handle, unlike an empty catalog page.
	ErrNoProfile = errors.New("no profile available")
)

// StatusError is a non-2xx HTTP response from the backend, excluding the
// authentication-rejected case which the gateway handles itself.
type StatusError struct {
	StatusCode int
	Body       []byte
	API        *APIError
}

func (e *StatusError) Error() string {
	if e.API != nil {
		return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.API.Error())
	}
	return fmt.Sprintf("backend returned %d", e.StatusCode)
}

// OfflineError wraps a transport failure that occurred while the device is
// (or appears) unreachable. Callers with a cache react to it by falling back;
// the original cause stays available via Unwrap.
type OfflineError struct {
	Err error
}

func (e *OfflineError) Error() string {
	return fmt.Sprintf("network unreachable: %v", e.Err)
}

func (e *OfflineError) Unwrap() error { return e.Err }

// IsOffline reports whether err is (or wraps) an OfflineError.
func IsOffline(err error) bool {
	var oe *OfflineError
	return errors.As(err, &oe)
}
