package core

import (
	"testing"

	"github.com/waylab/wlproxy/protoerr"
	"github.com/waylab/wlproxy/wire"
)

func testInterface() *Interface {
	return &Interface{Name: "wl_test", MaxVersion: 1}
}

// recordingDispatcher is a minimal Dispatcher stand-in for exercising
// Core's bookkeeping without any generated protocols/ type.
type recordingDispatcher struct{ core *Core }

func (r *recordingDispatcher) Core() *Core { return r.core }
func (r *recordingDispatcher) HandleRequest(uint32, []uint32, *wire.FDQueue) *protoerr.Error {
	return nil
}
func (r *recordingDispatcher) HandleEvent(uint32, []uint32, *wire.FDQueue) *protoerr.Error {
	return nil
}

func TestInertWithoutAnchors(t *testing.T) {
	st := NewState(Config{})
	c := NewCore(st, testInterface(), 1)
	if !c.Inert() {
		t.Fatal("a fresh core with no client endpoint and no server id should be inert")
	}
}

func TestBindClientDuplicateID(t *testing.T) {
	st := NewState(Config{})
	ep := newEndpoint(st, nil, 1)

	c1 := NewCore(st, testInterface(), 1)
	obj1 := &recordingDispatcher{core: c1}
	if err := c1.BindClient(ep, 2, obj1); err != nil {
		t.Fatalf("first bind: %v", err)
	}

	c2 := NewCore(st, testInterface(), 1)
	obj2 := &recordingDispatcher{core: c2}
	err := c2.BindClient(ep, 2, obj2)
	if !protoerr.Is(err, protoerr.KindDuplicateID) {
		t.Fatalf("expected duplicate id, got %v", err)
	}
}

func TestTombstoneBlocksReuseUntilReleased(t *testing.T) {
	st := NewState(Config{})
	ep := newEndpoint(st, nil, 1)

	c := NewCore(st, testInterface(), 1)
	obj := &recordingDispatcher{core: c}
	if err := c.BindClient(ep, 2, obj); err != nil {
		t.Fatalf("bind: %v", err)
	}

	// Client destructor observed: tombstoned, not freed.
	c.MarkClientDestroyed()
	if _, ok := ep.Lookup(2); ok {
		t.Fatal("tombstoned id should not resolve for dispatch")
	}

	// Before the ack, id 2 must still refuse a fresh install.
	other := NewCore(st, testInterface(), 1)
	otherObj := &recordingDispatcher{core: other}
	if err := other.BindClient(ep, 2, otherObj); !protoerr.Is(err, protoerr.KindDuplicateID) {
		t.Fatalf("expected duplicate id before ack, got %v", err)
	}

	// Ack arrives: release, and now reuse succeeds.
	c.ReleaseClientID()
	if err := other.BindClient(ep, 2, otherObj); err != nil {
		t.Fatalf("expected reuse to succeed after release, got %v", err)
	}
}

func TestMarkClientDestroyedIdempotent(t *testing.T) {
	st := NewState(Config{})
	ep := newEndpoint(st, nil, 1)
	c := NewCore(st, testInterface(), 1)
	obj := &recordingDispatcher{core: c}
	c.BindClient(ep, 2, obj)

	c.MarkClientDestroyed()
	c.MarkClientDestroyed() // must not panic or double-tombstone oddly

	if !c.ClientDestroyed {
		t.Fatal("expected ClientDestroyed to remain true")
	}
}

func TestGenerateServerIDBindsAndAllocates(t *testing.T) {
	st := NewState(Config{})
	serverEP := newEndpoint(st, nil, 1)

	c := NewCore(st, testInterface(), 1)
	obj := &recordingDispatcher{core: c}
	id, err := c.GenerateServerID(serverEP, obj)
	if err != nil {
		t.Fatalf("generate server id: %v", err)
	}
	if id < 2 {
		t.Fatalf("expected low-range id >= 2, got %d", id)
	}
	if got, ok := serverEP.Lookup(id); !ok || got != obj {
		t.Fatal("expected object installed at generated server id")
	}
	if c.ServerID == nil || *c.ServerID != id {
		t.Fatal("expected core.ServerID to be set")
	}
}
