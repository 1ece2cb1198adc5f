// ABOUTME: Denial taxonomy for the verification decision procedure
// ABOUTME: Store failures are deliberately NOT part of this taxonomy

package verify

import "errors"

// Denial errors, in the order the engine checks them. Anything outside this
// set returned from Resolve or Verify is an internal failure (store outage,
// bookkeeping write failure) and must surface as such, never as a deny.
var (
	// ErrUnauthenticated: no usable credential was presented by a
	// non-interactive caller.
	ErrUnauthenticated = errors.New("no credential presented")

	// ErrInvalidKey: the presented secret matches no stored key.
	ErrInvalidKey = errors.New("invalid API key")

	// ErrKeyDisabled: the key exists but its active flag is off.
	ErrKeyDisabled = errors.New("API key is disabled")

	// ErrKeyExpired: the key's expiration timestamp is in the past.
	ErrKeyExpired = errors.New("API key has expired")

	// ErrScopeForbidden: the key's scope set covers neither the target
	// service nor the wildcard. Wrapped with the service name.
	ErrScopeForbidden = errors.New("API key does not have permission for service")
)

// Reason returns the stable reason code for a denial error, used for logs
// and metrics labels. Returns "error" for non-denial failures.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrInvalidKey):
		return "invalid_key"
	case errors.Is(err, ErrKeyDisabled):
		return "disabled"
	case errors.Is(err, ErrKeyExpired):
		return "expired"
	case errors.Is(err, ErrScopeForbidden):
		return "forbidden_scope"
	default:
		return "error"
	}
}

// IsDeny reports whether err belongs to the denial taxonomy.
func IsDeny(err error) bool {
	return Reason(err) != "error"
}
