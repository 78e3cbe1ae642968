// Package auth handles bearer tokens for the gateway connection.
//
// The console attaches tokens; it never verifies them. What this package
// adds is client-side JWT claim inspection, so an expired or soon-to-expire
// token produces a helpful message before the gateway rejects the request.
//
// Opaque (non-JWT) tokens are passed through untouched.
package auth
