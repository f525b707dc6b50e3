// Package ids implements the wire id allocation policy shared by every
// endpoint: a monotonically bumped counter per range, backed by a
// free-list that only yields ids once their deletion has been
// acknowledged by the peer (P2 — no id is reused before the ack).
package ids

import "github.com/waylab/wlproxy/protoerr"

// ServerIDStart is the boundary the Wayland wire protocol reserves:
// ids below it belong to the client-created range, ids at or above it
// belong to the server-created range.
const ServerIDStart uint32 = 0xff000000

// Range selects which half of the id space an allocation draws from.
type Range int

const (
	// Low is the client-created object range, id < ServerIDStart.
	Low Range = iota
	// High is the server-created object range, id >= ServerIDStart.
	High
)

type counter struct {
	next uint32
	free []uint32
}

func (c *counter) alloc(bound func(uint32) bool) (uint32, error) {
	if n := len(c.free); n > 0 {
		id := c.free[n-1]
		c.free = c.free[:n-1]
		return id, nil
	}
	id := c.next
	if !bound(id) {
		return 0, protoerr.IDExhausted()
	}
	c.next++
	return id, nil
}

// release returns id to the free list. It must only be called once the
// peer has acknowledged the id's deletion (wl_display.delete_id); the
// allocator itself does not enforce that ordering, the caller (the
// endpoint's delete_id handling) does.
func (c *counter) release(id uint32) {
	c.free = append(c.free, id)
}

// Allocator is the per-endpoint id source for both ranges. Every
// Endpoint owns one; it is consulted whenever that endpoint needs to
// mint a fresh id for an object it did not itself originate (the twin
// id minted while forwarding a creation-carrying message).
type Allocator struct {
	low  counter
	high counter
}

// NewAllocator returns an Allocator with the low range starting at 2
// (id 1 is reserved for wl_display on every endpoint and is never
// handed out by the allocator) and the high range starting at
// ServerIDStart.
func NewAllocator() *Allocator {
	return &Allocator{
		low:  counter{next: 2},
		high: counter{next: ServerIDStart},
	}
}

// Alloc mints or recycles an id in the given range.
func (a *Allocator) Alloc(r Range) (uint32, error) {
	switch r {
	case Low:
		return a.low.alloc(func(id uint32) bool { return id < ServerIDStart })
	default:
		return a.high.alloc(func(id uint32) bool { return id >= ServerIDStart })
	}
}

// Release returns a previously destroyed, now-acknowledged id to the
// appropriate range's free list.
func (a *Allocator) Release(id uint32) {
	if id >= ServerIDStart {
		a.high.release(id)
	} else {
		a.low.release(id)
	}
}

// RangeOf reports which range an id belongs to.
func RangeOf(id uint32) Range {
	if id >= ServerIDStart {
		return High
	}
	return Low
}
