package main

import "time"

const (
	// Reconnect backoff bounds for a lost probe link. The first retry
	// waits rxBackoffMin; each failure doubles the wait up to
	// rxBackoffMax.
	rxBackoffMin = 20 * time.Millisecond
	rxBackoffMax = 500 * time.Millisecond

	defaultRegBase = 0x40024000 // FlexCAN0 on the S32K1 parts
)
