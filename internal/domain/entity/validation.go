package entity

import (
	"fmt"
	"net/url"
	"strings"
)

// maxFeedURLLength bounds user-supplied feed URLs.
const maxFeedURLLength = 2048

// ValidateFeedURL checks that a user-supplied feed URL is well formed:
// http or https, a host, and a bounded length.
//
// Address checks (private ranges, redirects) happen at fetch time in the
// feed adapter, since DNS answers can change after the interest is saved.
func ValidateFeedURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return &ValidationError{Field: "url", Message: "URL is required"}
	}
	if len(rawURL) > maxFeedURLLength {
		return &ValidationError{
			Field:   "url",
			Message: fmt.Sprintf("url must not exceed %d characters", maxFeedURLLength),
		}
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return &ValidationError{Field: "url", Message: "URL must use http or https scheme"}
	}
	if parsed.Hostname() == "" {
		return &ValidationError{Field: "url", Message: "URL must have a valid host"}
	}
	return nil
}
