// Package google handles OAuth2 credentials for the Google Calendar backend.
//
// Tokens are cached per account as JSON files under the user cache directory
// (calpilot/google-<account>.token). The TokenProvider interface lets the
// calendar store obtain tokens without knowing where they live.
package google
