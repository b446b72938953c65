// Package session holds the state of the current hunt session shared between
// the bridge, the monitor and the journal.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lootquest/arengine/pkg/core"
)

// Hunt describes the hunt data currently applied to the engine
type Hunt struct {
	// Key is the placement content key of the descriptor set.
	Key         uint64        `json:"key"`
	Type        core.HuntType `json:"type"`
	Descriptors int           `json:"descriptors"`
	Applied     time.Time     `json:"applied"`
}

// Context holds the current session and hunt state
type Context struct {
	mu        sync.RWMutex
	id        uuid.UUID
	started   time.Time
	hunt      *Hunt
	reference *core.GeoCoord
	collected []string
}

// NewContext starts a new session with a fresh id
func NewContext() *Context {
	return &Context{
		id:      uuid.New(),
		started: time.Now(),
	}
}

// ID returns the session id
func (c *Context) ID() uuid.UUID {
	return c.id
}

// Started returns the session start time
func (c *Context) Started() time.Time {
	return c.started
}

// GetHunt returns the current hunt, or false when none was applied
func (c *Context) GetHunt() (Hunt, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.hunt == nil {
		return Hunt{}, false
	}
	return *c.hunt, true
}

// SetHunt records the hunt data just applied. A different key resets the
// collected list.
func (c *Context) SetHunt(h Hunt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hunt == nil || c.hunt.Key != h.Key {
		c.collected = nil
	}
	c.hunt = &h
}

// ClearHunt forgets the current hunt
func (c *Context) ClearHunt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hunt = nil
	c.collected = nil
}

// Reference returns the session reference point, if known
func (c *Context) Reference() (core.GeoCoord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.reference == nil {
		return core.GeoCoord{}, false
	}
	return *c.reference, true
}

// SetReference records the session reference point
func (c *Context) SetReference(ref core.GeoCoord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reference = &ref
}

// AddCollected appends a collected pin id
func (c *Context) AddCollected(pin string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.collected = append(c.collected, pin)
}

// Collected returns a copy of the pins collected for the current hunt, in order
func (c *Context) Collected() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.collected...)
}
