package core

import (
	"github.com/waylab/wlproxy/logging"
	"github.com/waylab/wlproxy/protoerr"
	"github.com/waylab/wlproxy/transport"
)

// Logger is the sink the engine reports protocol-level activity
// through — forwarded/dropped messages, handler errors, the
// server-error translation path. logging.Sink implements it with
// zerolog underneath; tests can supply a trivial stub.
type Logger interface {
	Logf(format string, args ...any)
}

// Tracer is the richer, optional capability a Logger may additionally
// implement: one formatted wire-trace line per successfully dispatched
// message, per §6. logging.Sink implements this; a Logger stub that
// only implements Logf is still a valid core.Logger, just a silent one
// on the trace front.
type Tracer interface {
	Trace(endpoint string, dir logging.Direction, iface string, objectID uint32, message string, args string)
}

// Metrics is the sink the engine reports counts through. metrics.Sink
// implements it with prometheus counters; nil is fine, every call
// site is a guarded no-op without one.
type Metrics interface {
	MessageForwarded(direction string)
	MessageDropped(direction string)
	ObjectCreated(iface string)
	ObjectDestroyed(iface string)
}

// Config carries the engine-level knobs; the richer, file-loaded
// settings in config.Settings get projected down to this at startup
// so core never has to know about YAML.
type Config struct {
	// ReplayServerErrors resolves the §9 open question: when the real
	// compositor sends wl_display.error for an object a client
	// reached through this proxy, should the proxy translate and
	// replay the error to that client (true, the default) or simply
	// terminate the connection (false)?
	ReplayServerErrors bool
}

const (
	wlDisplayObjectID      = 1
	wlDisplayEventError    = 0
	wlDisplayEventDeleteID = 1
)

// State is the process-wide root: the single upstream Endpoint (if
// connected), every client Endpoint currently attached, and the
// flush queue §4.7 describes — endpoints that queued an outgoing
// message since the last drain.
type State struct {
	Config  Config
	Logger  Logger
	Metrics Metrics

	Server *Endpoint

	clients       map[uint64]*Endpoint
	nextNumericID uint64

	flushQueue []*Endpoint
}

func NewState(cfg Config) *State {
	return &State{
		Config:        cfg,
		clients:       make(map[uint64]*Endpoint),
		nextNumericID: 1,
	}
}

func (st *State) allocNumericID() uint64 {
	id := st.nextNumericID
	st.nextNumericID++
	return id
}

// NewServerEndpoint wraps conn as the single upstream endpoint. A
// second call replaces the first — the caller (cmd/wlproxyd) only
// ever calls this once per process.
func (st *State) NewServerEndpoint(conn *transport.Conn) *Endpoint {
	ep := newEndpoint(st, conn, st.allocNumericID())
	st.Server = ep
	return ep
}

// NewClientEndpoint wraps an accepted client connection and tracks
// it for iteration (the read loop's fan-in) and removal on hangup.
func (st *State) NewClientEndpoint(conn *transport.Conn) *Endpoint {
	ep := newEndpoint(st, conn, st.allocNumericID())
	st.clients[ep.NumericID] = ep
	return ep
}

func (st *State) RemoveClient(ep *Endpoint) {
	delete(st.clients, ep.NumericID)
}

// Clients returns a snapshot slice of the currently attached client
// endpoints, safe for a caller to range over while mutating the map
// (e.g. removing one mid-iteration on hangup).
func (st *State) Clients() []*Endpoint {
	out := make([]*Endpoint, 0, len(st.clients))
	for _, ep := range st.clients {
		out = append(out, ep)
	}
	return out
}

func (st *State) scheduleFlush(ep *Endpoint) {
	st.flushQueue = append(st.flushQueue, ep)
}

// FlushAll drains every endpoint queued for output since the last
// call, in the order they queued. The first flush error is returned;
// the rest of the queue is still attempted, since one stalled client
// socket shouldn't starve the others.
func (st *State) FlushAll() error {
	q := st.flushQueue
	st.flushQueue = nil
	var firstErr error
	for _, ep := range q {
		if err := ep.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// HandleDeleteID processes a wl_display.delete_id event arriving
// from the real compositor on the server endpoint. It resolves the
// tombstoned object at id and routes to its own Core.OnDeleteID hook
// (§9 Supplemental 2: delete_id is object-scoped, not a bare
// free-list push) — which frees the id for real and, if the object
// was minted by a client's own new_id request, relays the deletion to
// that client translated back to the id it originally chose
// (scenario 2).
func (st *State) HandleDeleteID(id uint32) {
	if st.Server == nil {
		return
	}
	obj, ok := st.Server.LookupAny(id)
	if !ok {
		if st.Logger != nil {
			st.Logger.Logf("delete_id for unknown server id %d", id)
		}
		return
	}
	if st.Metrics != nil {
		st.Metrics.ObjectDestroyed(obj.Core().Iface.Name)
	}
	if err := obj.Core().OnDeleteID(st.Server); err != nil && st.Logger != nil {
		st.Logger.Logf("delete_id %d: %v", id, err)
	}
}

// HandleServerError processes a wl_display.error event from the real
// compositor. The compositor has already decided to terminate, so
// this is always fatal to the server endpoint (§7, §9: "the proxy
// honours that by closing") — the caller is expected to flush (so a
// queued replay actually reaches the client) and then close the
// server endpoint regardless of which branch ran. Per
// Config.ReplayServerErrors, before reporting that fatal error, it
// either translates the erroring object's server id back to the
// client's own id and queues a `wl_display.error` relay (the
// default), or closes without relay. Both paths log the typed
// ServerError.
func (st *State) HandleServerError(objectID, code uint32, message string) *protoerr.Error {
	ifaceName := "<unknown>"
	var clientEP *Endpoint
	var clientObjID uint32
	if obj, ok := st.Server.LookupAny(objectID); ok {
		c := obj.Core()
		ifaceName = c.Iface.Name
		if c.ClientID != nil {
			clientEP = c.ClientEndpoint
			clientObjID = *c.ClientID
		}
	}

	perr := protoerr.ServerError(ifaceName, objectID, code, message)
	if st.Logger != nil {
		st.Logger.Logf("server error: %s", perr.Error())
	}
	if st.Config.ReplayServerErrors && clientEP != nil {
		enc := clientEP.NewOutgoingEncoder()
		enc.Object(clientObjID)
		enc.Uint32(code)
		enc.String(message)
		clientEP.QueueMessage(wlDisplayObjectID, wlDisplayEventError, enc)
	}
	return perr
}
