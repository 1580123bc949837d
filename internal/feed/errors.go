package feed

import "errors"

var (
	// ErrNotFound is returned when a mutation or query references a
	// post, comment, or reply that does not exist. Never silently
	// swallowed by store APIs.
	ErrNotFound = errors.New("feed: target not found")

	// ErrInvalidParent is returned by AddReply when the parent id names
	// a reply. The hierarchy is capped at two levels.
	ErrInvalidParent = errors.New("feed: replies cannot receive replies")

	// ErrConsistency signals an internal invariant breach, e.g. an
	// action arriving with a round number lower than one already
	// recorded for the same user. Fatal for the session.
	ErrConsistency = errors.New("feed: consistency violation")
)
