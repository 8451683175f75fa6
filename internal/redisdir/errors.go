package redisdir

import "errors"

var (
	// ErrNotFound is returned when a directory entry has expired or was
	// never registered.
	ErrNotFound = errors.New("redisdir: entry not found")

	// ErrNoRelaysAvailable is returned when no relay has a live heartbeat.
	ErrNoRelaysAvailable = errors.New("redisdir: no relays available")
)
