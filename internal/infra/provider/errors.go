package provider

import "errors"

// Sentinel errors for provider fetches.
var (
	// ErrInvalidURL indicates a URL that is malformed or uses a scheme other than http(s).
	ErrInvalidURL = errors.New("invalid url")

	// ErrPrivateIP indicates a URL whose host resolves to a private, loopback or link-local address.
	ErrPrivateIP = errors.New("url resolves to a private address")

	// ErrTooManyRedirects indicates the redirect limit was exceeded.
	ErrTooManyRedirects = errors.New("too many redirects")
)
