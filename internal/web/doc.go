// Package web serves the human side of the gateway: the login form that
// browser traffic is redirected to, registration, and an account page.
//
// A successful login stores a session row and sets the session cookie that
// the verification resolver later accepts as a credential carrier. The rd
// query parameter carries the originally requested URL through the form so
// the browser lands back where it started.
//
// Registration is open for the very first account and closed afterwards
// unless open registration is enabled in configuration.
package web
