package core

import (
	"github.com/waylab/wlproxy/handler"
	"github.com/waylab/wlproxy/ids"
	"github.com/waylab/wlproxy/protoerr"
	"github.com/waylab/wlproxy/wire"
)

// Dispatcher is the object-safe dynamic-dispatch root every generated
// protocols/ type implements. The engine never needs the concrete
// type back — it routes wire messages through this interface and
// keeps the shared bookkeeping in the embedded *Core (§9: "prefer a
// dynamic-dispatch root so the core can hold an object-safe handle").
type Dispatcher interface {
	// Core returns the shared per-object state every Object carries.
	Core() *Core

	// HandleRequest decodes and processes a request arriving from the
	// client endpoint. Default-forwarding, handler override, and
	// destructor bookkeeping are the generated type's responsibility;
	// Core only supplies the primitives they're built from.
	HandleRequest(opcode uint32, payload []uint32, fds *wire.FDQueue) *protoerr.Error

	// HandleEvent is the server-endpoint equivalent of HandleRequest.
	HandleEvent(opcode uint32, payload []uint32, fds *wire.FDQueue) *protoerr.Error
}

// Core is the shared, interface-independent state every protocol
// Object carries: its twin ids, the endpoints it is anchored to, the
// installed handler cell, and the forwarding/destruction flags §3
// and §4.3 describe. Generated protocols/ types embed a *Core and
// implement Dispatcher on top of it.
//
// The engine is single-task (§5): nothing here is safe for concurrent
// use from more than one goroutine, and nothing needs to be — nothing
// in this struct is ever touched from two goroutines at once.
type Core struct {
	Iface   *Interface
	Version uint32

	ClientID *uint32
	ServerID *uint32

	// ClientEndpoint is the Object's anchor on the client side. A
	// client-created object always has one; a server-created object
	// gets one once its new_id has been forwarded toward the client.
	ClientEndpoint *Endpoint

	// CreatedByClient records which side minted the object. It
	// decides which direction a delete_id ack is relayed (§9
	// Supplemental: wl_display.delete_id translation).
	CreatedByClient bool

	ForwardToServer bool
	ForwardToClient bool

	ServerDestroyed bool
	ClientDestroyed bool

	state   *State
	handler handler.Cell
}

// NewCore allocates the shared state for a fresh Object. Forwarding
// defaults to on in both directions (§3: "By default, every Object
// forwards...").
func NewCore(st *State, iface *Interface, version uint32) *Core {
	return &Core{
		Iface:           iface,
		Version:         version,
		ForwardToServer: true,
		ForwardToClient: true,
		state:           st,
	}
}

func (c *Core) State() *State { return c.state }

// Handler exposes the object's re-entrancy-guarded handler cell to
// the generated dispatch code.
func (c *Core) Handler() *handler.Cell { return &c.handler }

// Inert reports whether the object has lost both its anchors: no
// client endpoint to route client-bound traffic to, and no live
// server id to route server-bound traffic to. An inert object can
// still exist (Go's GC, not a refcount, decides when it's gone) but
// no message will ever reach it again.
func (c *Core) Inert() bool {
	return c.ClientEndpoint == nil && c.ServerID == nil
}

// BindClient installs the object at id on ep's client-side map,
// recording the anchor. Duplicate ids (P1 — "no two live objects on
// the same endpoint ever share an id") surface as protoerr.DuplicateID
// via ep.Install.
func (c *Core) BindClient(ep *Endpoint, id uint32, self Dispatcher) *protoerr.Error {
	if err := ep.Install(id, self); err != nil {
		return err
	}
	c.ClientID = &id
	c.ClientEndpoint = ep
	if st := c.state; st != nil && st.Metrics != nil {
		st.Metrics.ObjectCreated(c.Iface.Name)
	}
	return nil
}

// BindServer installs the object at id on the process-wide server
// endpoint's map.
func (c *Core) BindServer(ep *Endpoint, id uint32, self Dispatcher) *protoerr.Error {
	if err := ep.Install(id, self); err != nil {
		return err
	}
	c.ServerID = &id
	return nil
}

// GenerateServerID mints (or recycles, via the allocator's free-list)
// a fresh id in the server endpoint's client-created range and binds
// self to it. This is the twin-id half of forwarding a client new_id
// request toward the real compositor (§4.4, scenario 1).
func (c *Core) GenerateServerID(ep *Endpoint, self Dispatcher) (uint32, *protoerr.Error) {
	if ep == nil {
		return 0, protoerr.ReceiverNoServerID()
	}
	id, err := ep.Allocator.Alloc(ids.Low)
	if err != nil {
		return 0, protoerr.GenerateServerID(c.Iface.Name, err)
	}
	if berr := c.BindServer(ep, id, self); berr != nil {
		ep.Allocator.Release(id)
		return 0, berr
	}
	return id, nil
}

// GenerateClientID is GenerateServerID's mirror image: minting a
// twin id in a client endpoint's server-created range while
// forwarding a server-originated new_id event toward that client.
func (c *Core) GenerateClientID(ep *Endpoint, self Dispatcher) (uint32, *protoerr.Error) {
	if ep == nil {
		return 0, protoerr.ReceiverNoClient()
	}
	id, err := ep.Allocator.Alloc(ids.High)
	if err != nil {
		return 0, protoerr.GenerateServerID(c.Iface.Name, err)
	}
	if berr := c.BindClient(ep, id, self); berr != nil {
		ep.Allocator.Release(id)
		return 0, berr
	}
	return id, nil
}

// MarkClientDestroyed records that the object's client-side request
// stream is finished: its defined destructor request has been
// observed. Per scenario 2, the id is tombstoned rather than
// released outright — it keeps blocking new installs at that id
// until the compositor's delete_id ack frees it for real (P2).
// Idempotent: a second call is a no-op (P6 — destructors never fire
// twice).
func (c *Core) MarkClientDestroyed() {
	if c.ClientDestroyed {
		return
	}
	c.ClientDestroyed = true
	if c.ClientID != nil && c.ClientEndpoint != nil {
		c.ClientEndpoint.Tombstone(*c.ClientID)
	}
	// ObjectDestroyed fires once, in state.HandleDeleteID, when the
	// compositor's ack actually frees the id — not here, since the
	// same object's destruction is always acked via delete_id
	// regardless of which side initiated it (scenario 2).
}

// MarkServerDestroyed is MarkClientDestroyed's mirror: the
// destructor request has been forwarded toward the real compositor,
// so no further events targeting this server id should be treated as
// live until the ack arrives.
func (c *Core) MarkServerDestroyed(ep *Endpoint) {
	if c.ServerDestroyed {
		return
	}
	c.ServerDestroyed = true
	if c.ServerID != nil && ep != nil {
		ep.Tombstone(*c.ServerID)
	}
}

// ReleaseServerID is called once the compositor's wl_display.delete_id
// ack for this object's server id has been processed: the tombstone
// is removed for good and the id returned to the allocator's
// free-list (§9 Supplemental 2: the delete_id translation hook).
func (c *Core) ReleaseServerID(ep *Endpoint) {
	if c.ServerID == nil {
		return
	}
	ep.Forget(*c.ServerID)
	ep.Allocator.Release(*c.ServerID)
	c.ServerID = nil
}

// ReleaseClientID mirrors ReleaseServerID for the rare case where the
// engine itself minted the client-side id (a server-created object);
// client-created objects free their own id range themselves and never
// call this.
func (c *Core) ReleaseClientID() {
	if c.ClientID == nil || c.ClientEndpoint == nil {
		return
	}
	ep := c.ClientEndpoint
	ep.Forget(*c.ClientID)
	ep.Allocator.Release(*c.ClientID)
	c.ClientID = nil
}

// DeleteIDHandler lets a registered handler observe a delete_id ack
// for this specific object before the default free-and-forward
// behavior runs (§9 Supplemental 2: the hook is part of every
// interface's handler contract, not a bare free-list push — mirroring
// WlDisplayHandler::delete_id in the original implementation).
type DeleteIDHandler interface {
	HandleDeleteID(c *Core)
}

// OnDeleteID processes the compositor's delete_id ack for this
// object's server id (routed here by State.HandleDeleteID once it has
// resolved which object the id belongs to). A registered handler
// implementing DeleteIDHandler gets first look, the same
// Dispatch/fallback shape every other request and event uses; absent
// one, defaultOnDeleteID runs: free the tombstoned slot for real, and
// if this object was minted by the client's own new_id request,
// relay the deletion onward translated back to the id the client
// originally chose (scenario 2).
func (c *Core) OnDeleteID(ep *Endpoint) *protoerr.Error {
	return c.handler.Dispatch(func(h any) {
		if dh, ok := h.(DeleteIDHandler); ok {
			dh.HandleDeleteID(c)
			return
		}
		c.defaultOnDeleteID(ep)
	})
}

func (c *Core) defaultOnDeleteID(ep *Endpoint) {
	if c.ServerID == nil {
		return
	}
	id := *c.ServerID
	ep.Forget(id)
	ep.Allocator.Release(id)
	c.ServerID = nil

	if c.CreatedByClient && c.ClientID != nil && c.ClientEndpoint != nil {
		clientID := *c.ClientID
		cep := c.ClientEndpoint
		enc := cep.NewOutgoingEncoder()
		enc.Uint32(clientID)
		cep.QueueMessage(wlDisplayObjectID, wlDisplayEventDeleteID, enc)

		// The real client is now free to reuse clientID in a future
		// new_id request. Our own bookkeeping for that endpoint's map
		// must forget the tombstone too, or the next BindClient at this
		// id wrongly sees it as still occupied (scenario 2).
		cep.Forget(clientID)
		c.ClientID = nil
	}
}

// ForwardEventToClient re-encodes an event toward this object's
// client twin, honoring ForwardToClient and doing nothing if the
// object has no live client anchor. This is the default-forwarding
// primitive every generated event handler that doesn't need id
// translation builds on (§3: "by default, every Object forwards").
func (c *Core) ForwardEventToClient(opcode uint16, enc *wire.Encoder) {
	if !c.ForwardToClient || c.ClientEndpoint == nil || c.ClientID == nil {
		return
	}
	c.ClientEndpoint.QueueMessage(*c.ClientID, opcode, enc)
}

// ForwardRequestToServer is ForwardEventToClient's mirror for
// requests heading toward the real compositor.
func (c *Core) ForwardRequestToServer(opcode uint16, enc *wire.Encoder) {
	if !c.ForwardToServer || c.state == nil || c.state.Server == nil || c.ServerID == nil {
		return
	}
	c.state.Server.QueueMessage(*c.ServerID, opcode, enc)
}
