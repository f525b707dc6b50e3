// Package handler implements the single-slot, re-entrancy-detecting
// handler cell every protocol Object owns. The engine is single-task
// (§5 of the spec): nothing here needs to block another goroutine, it
// only needs to refuse a second, re-entrant dispatch while a handler
// method for the same object is already running — the same thing a
// Rust RefCell's try_borrow_mut gives the reference implementation for
// free. sync.Mutex.TryLock is the closest stdlib primitive to that
// "try, don't block" discipline, so it stands in for the borrow cell.
package handler

import (
	"sync"

	"github.com/waylab/wlproxy/protoerr"
)

// Cell holds an optional handler value (the per-interface handler
// vtable-equivalent, opaque to this package) behind an exclusive,
// non-blocking borrow.
type Cell struct {
	mu    sync.Mutex
	value any
}

// Set installs a new handler, replacing any previous one. Per §4.6, a
// handler cannot replace itself while its own method is executing, so
// Set uses the same non-blocking TryLock Dispatch/Borrow do: called
// from inside a borrowed dispatch it returns protoerr.HandlerBorrowed
// instead of hanging, and the caller is left to queue the replacement
// for after the dispatch returns rather than observe it mid-call.
func (c *Cell) Set(v any) *protoerr.Error {
	if !c.mu.TryLock() {
		return protoerr.HandlerBorrowed()
	}
	c.value = v
	c.mu.Unlock()
	return nil
}

func (c *Cell) Unset() *protoerr.Error {
	if !c.mu.TryLock() {
		return protoerr.HandlerBorrowed()
	}
	c.value = nil
	c.mu.Unlock()
	return nil
}

// Dispatch acquires the borrow for the duration of fn and calls fn
// with the installed handler (nil if none — the caller falls back to
// its default handler). It returns protoerr.HandlerBorrowed without
// calling fn if the cell is already borrowed (re-entrant dispatch,
// P8).
func (c *Cell) Dispatch(fn func(h any)) *protoerr.Error {
	if !c.mu.TryLock() {
		return protoerr.HandlerBorrowed()
	}
	defer c.mu.Unlock()
	fn(c.value)
	return nil
}

// Borrow is the external accessor used by get_handler_any: it
// distinguishes "nothing installed" from "currently borrowed by a
// dispatch in progress".
func (c *Cell) Borrow(fn func(h any)) *protoerr.Error {
	if !c.mu.TryLock() {
		return protoerr.AlreadyBorrowed()
	}
	defer c.mu.Unlock()
	if c.value == nil {
		return protoerr.NoHandler()
	}
	fn(c.value)
	return nil
}
