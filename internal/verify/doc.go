// Package verify implements the credential-verification decision procedure.
//
// Two pieces collaborate, with data flowing one way:
//
//   - Resolver: from a request's presented authentication material, selects
//     the single candidate credential value (bearer token, dedicated API-key
//     header, or session cookie, in strict precedence order) and derives the
//     target service from the forwarded host name.
//
//   - Engine: runs the ordered validity checks for the candidate against the
//     key store (lookup, active flag, expiration, scope) and produces either
//     a Decision or a denial error from the package taxonomy.
//
// Requests with no usable credential are not automatically denied: the
// resolver applies a browser heuristic, and interactive callers get a
// login-redirect resolution instead of a bare 401.
//
// Store connectivity failures are never folded into the denial taxonomy;
// they propagate as wrapped errors so an outage cannot masquerade as an
// invalid credential.
package verify
