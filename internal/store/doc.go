// Package store provides persistent storage for the gateway using SQLite.
//
// # Data Models
//
//   - Key: an issued API key with its scope set, active flag, and expiry
//   - User: a registered human account (bcrypt password hash)
//   - Session: a cookie-backed browser session with a hard expiry
//
// Keys are linked to users by Key.Principal == User.Username; a key's
// principal does not have to correspond to a registered account.
//
// # Interfaces
//
// SQLiteStore implements KeyStore, UserStore, and SessionStore in a single
// struct. Consumers depend on the narrow interface they need.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Timestamps are stored as RFC3339 TEXT. Scope sets are stored comma-joined;
// that encoding never leaves this package.
//
// # Error Handling
//
// Lookups for absent rows return the package's sentinel errors
// (ErrKeyNotFound, ErrUserNotFound, ErrSessionNotFound). Driver and
// connectivity failures are returned wrapped, never collapsed into a
// not-found sentinel.
package store
