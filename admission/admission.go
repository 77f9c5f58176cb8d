// Package admission enforces concurrent-connection ceilings before a
// WebSocket upgrade is allowed. An unauthenticated upgrade attempt is
// cheap for an attacker and expensive for the server, so this check runs
// before any per-connection state (tickets, player records) exists.
//
// Counters are process-local; under a multi-instance deployment the
// global ceiling is an approximation of limit-per-process, which is the
// documented bound.
package admission

import (
	"sync"
)

// Refusal reasons, distinguished so the two limits can be observed and
// tested independently
const (
	ReasonGlobalLimit    = "global limit"
	ReasonPerOriginLimit = "per-origin limit"
)

// Controller tracks live connection counts against configured ceilings
type Controller struct {
	mu        sync.Mutex
	total     int
	perOrigin map[string]int

	globalLimit    int
	perOriginLimit int
}

// NewController creates a controller with the given ceilings. Construct
// once per process and pass by reference to the connection path.
func NewController(globalLimit, perOriginLimit int) *Controller {
	return &Controller{
		perOrigin:      make(map[string]int),
		globalLimit:    globalLimit,
		perOriginLimit: perOriginLimit,
	}
}

// TryAdmit atomically checks both ceilings and claims a slot if both
// pass. On refusal the reason names which limit was hit.
func (c *Controller) TryAdmit(originKey string) (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.total >= c.globalLimit {
		return false, ReasonGlobalLimit
	}
	if c.perOrigin[originKey] >= c.perOriginLimit {
		return false, ReasonPerOriginLimit
	}

	c.total++
	c.perOrigin[originKey]++

	return true, ""
}

// Release returns an admitted connection's slot. Call exactly once per
// admitted connection on every exit path. A release with no matching
// admit is a no-op for both counters, so they can never drift apart or
// go below zero.
func (c *Controller) Release(originKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.perOrigin[originKey] == 0 {
		return
	}

	c.perOrigin[originKey]--
	if c.perOrigin[originKey] == 0 {
		delete(c.perOrigin, originKey)
	}
	if c.total > 0 {
		c.total--
	}
}

// Active returns the current global connection count
func (c *Controller) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}
