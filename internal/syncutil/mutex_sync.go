//go:build !deadlock

// Package syncutil provides the mutex types used to guard the network map, the claimer and the
// connection. By default they are plain sync.Mutex/sync.RWMutex with zero overhead. Build with
// -tags=deadlock to swap in github.com/sasha-s/go-deadlock for debugging a lock-order mistake.
package syncutil

import "sync"

// Mutex wraps sync.Mutex. Build with -tags=deadlock for deadlock detection.
type Mutex struct {
	sync.Mutex
}

// RWMutex wraps sync.RWMutex. Build with -tags=deadlock for deadlock detection.
type RWMutex struct {
	sync.RWMutex
}
