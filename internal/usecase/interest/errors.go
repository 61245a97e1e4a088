// Package interest provides use cases for managing interests: finding or
// creating them with strict de-duplication, deriving their subscriptions,
// resolving tag followers, and removing them with everything they own.
package interest

import "errors"

// Sentinel errors for interest use case operations.
var (
	// ErrInterestNotFound indicates that the requested interest does not exist.
	ErrInterestNotFound = errors.New("interest not found")

	// ErrItemNotFound indicates that the provider has no item with the given ID.
	ErrItemNotFound = errors.New("item not found at provider")

	// ErrUnknownItemType indicates an item type with no provider mapping.
	ErrUnknownItemType = errors.New("unknown item type")

	// ErrTagNotFollowable indicates a tag that is missing, private, or the caller's own.
	ErrTagNotFollowable = errors.New("tag cannot be followed")

	// ErrInvalidFeed indicates a feed URL that could not be fetched or parsed.
	ErrInvalidFeed = errors.New("invalid feed")
)
