package core

import (
	"errors"
	"fmt"

	"github.com/waylab/wlproxy/ids"
	"github.com/waylab/wlproxy/protoerr"
	"github.com/waylab/wlproxy/transport"
	"github.com/waylab/wlproxy/wire"
)

// ErrEndpointClosed is returned by Pump once the peer has closed its
// end of the socket.
var ErrEndpointClosed = errors.New("core: endpoint closed")

// entry is one slot of an Endpoint's id map. A tombstoned entry still
// occupies the slot — installing a new object at that id fails with
// protoerr.DuplicateID — but is no longer a valid dispatch target;
// scenario 2 in the spec is exactly this: reuse before the peer's
// delete_id ack must fail, reuse after it must succeed.
type entry struct {
	obj        Dispatcher
	tombstoned bool
}

// Endpoint is one side of the proxy's dual-namespace model: either
// the single socket to the real compositor, or one of the sockets to
// a connected client. It owns that socket's bytes and fds, the id
// map of every Object anchored to it, and the range of ids it is
// responsible for minting when forwarding creates a twin (§4.2, §4.4).
type Endpoint struct {
	Conn      *transport.Conn
	Allocator *ids.Allocator

	// NumericID is a monotonic, process-local tag used purely for log
	// correlation — never part of the wire protocol itself.
	NumericID uint64

	objects map[uint32]*entry

	incoming    []byte
	incomingFDs *wire.FDQueue

	outgoing    []byte
	outgoingFDs *wire.FDQueue
	flushQueued bool

	state *State
}

func newEndpoint(st *State, conn *transport.Conn, numericID uint64) *Endpoint {
	return &Endpoint{
		Conn:        conn,
		Allocator:   ids.NewAllocator(),
		NumericID:   numericID,
		objects:     make(map[uint32]*entry),
		incomingFDs: &wire.FDQueue{},
		outgoingFDs: &wire.FDQueue{},
		state:       st,
	}
}

// Install places obj at id, failing if the slot is occupied —
// live or tombstoned (P1).
func (e *Endpoint) Install(id uint32, obj Dispatcher) *protoerr.Error {
	if _, exists := e.objects[id]; exists {
		return protoerr.DuplicateID(id)
	}
	e.objects[id] = &entry{obj: obj}
	return nil
}

// Tombstone marks id as logically destroyed without freeing the
// slot. A no-op if id isn't installed.
func (e *Endpoint) Tombstone(id uint32) {
	if ent, ok := e.objects[id]; ok {
		ent.tombstoned = true
	}
}

// Forget removes id's slot outright. Callers are responsible for
// returning the id to the Allocator's free-list when appropriate —
// Forget itself doesn't, since ids this endpoint never minted (e.g. a
// client's own chosen ids) have nothing to release.
func (e *Endpoint) Forget(id uint32) {
	delete(e.objects, id)
}

// Lookup returns the live (non-tombstoned) object at id. This is
// what the read loop uses to resolve a message's target; a
// tombstoned or absent id is the same thing to it — NoObject.
func (e *Endpoint) Lookup(id uint32) (Dispatcher, bool) {
	ent, ok := e.objects[id]
	if !ok || ent.tombstoned {
		return nil, false
	}
	return ent.obj, true
}

// LookupAny returns the object at id regardless of tombstone state.
// Only the delete_id ack path needs this — it must find an object
// that was deliberately marked destroyed.
func (e *Endpoint) LookupAny(id uint32) (Dispatcher, bool) {
	ent, ok := e.objects[id]
	if !ok {
		return nil, false
	}
	return ent.obj, true
}

// Pump drains whatever the socket currently has buffered into the
// endpoint's incoming byte/fd queues without blocking. It returns nil
// once the socket has nothing more to offer this tick,
// ErrEndpointClosed once the peer hangs up, or a transport-level
// error for anything else.
func (e *Endpoint) Pump() error {
	buf := make([]byte, 4096)
	for {
		n, fds, err := e.Conn.Recv(buf)
		if err != nil {
			if errors.Is(err, transport.ErrWouldBlock) {
				return nil
			}
			return err
		}
		if n == 0 {
			return ErrEndpointClosed
		}
		e.incoming = append(e.incoming, buf[:n]...)
		for _, fd := range fds {
			e.incomingFDs.Push(wire.NewFD(fd))
		}
	}
}

// NextMessage pulls one complete message out of the incoming buffer,
// if one is fully buffered. objectID/opcode come from the header;
// payload is the message's argument words, still wire-encoded — the
// interface-specific dispatch code decodes them with a wire.Decoder
// sharing this endpoint's incomingFDs queue, since fds are not framed
// per-message and must be drained in arrival order.
func (e *Endpoint) NextMessage() (objectID uint32, opcode uint16, payload []uint32, ok bool, perr *protoerr.Error) {
	if len(e.incoming) < 8 {
		return 0, 0, nil, false, nil
	}
	objectID, opcode, size, err := wire.DecodeHeader(e.incoming)
	if err != nil {
		return 0, 0, nil, false, err
	}
	if size < 8 {
		return 0, 0, nil, false, protoerr.WrongMessageSize(size, 8)
	}
	if uint32(len(e.incoming)) < size {
		return 0, 0, nil, false, nil
	}
	body := e.incoming[8:size]
	if len(body)%4 != 0 {
		return 0, 0, nil, false, protoerr.WrongMessageSize(size, size-uint32(len(body)%4))
	}
	payload = make([]uint32, len(body)/4)
	for i := range payload {
		payload[i] = uint32(body[4*i]) | uint32(body[4*i+1])<<8 | uint32(body[4*i+2])<<16 | uint32(body[4*i+3])<<24
	}
	e.incoming = e.incoming[size:]
	return objectID, opcode, payload, true, nil
}

// IncomingFDs exposes the shared fd queue to the dispatch code
// building a wire.Decoder for a just-popped message.
func (e *Endpoint) IncomingFDs() *wire.FDQueue { return e.incomingFDs }

// NewOutgoingEncoder builds a wire.Encoder that appends any fd-typed
// arguments straight into this endpoint's outgoing fd queue, so
// callers building a message never have to shuttle fds separately
// from QueueMessage.
func (e *Endpoint) NewOutgoingEncoder() *wire.Encoder { return wire.NewEncoder(e.outgoingFDs) }

// QueueMessage appends an already-encoded message (header + payload
// words, built with NewOutgoingEncoder) to the endpoint's outgoing
// buffer, and registers the endpoint on the State's flush queue
// (§4.7) if it wasn't already pending.
func (e *Endpoint) QueueMessage(objectID uint32, opcode uint16, enc *wire.Encoder) {
	words := enc.Words()
	size := uint32(8 + 4*len(words))
	hdr := make([]byte, 8)
	wire.EncodeHeader(hdr, objectID, opcode, size)
	e.outgoing = append(e.outgoing, hdr...)
	for _, w := range words {
		e.outgoing = append(e.outgoing,
			byte(w), byte(w>>8), byte(w>>16), byte(w>>24))
	}
	if e.state != nil && !e.flushQueued {
		e.flushQueued = true
		e.state.scheduleFlush(e)
	}
}

// Flush writes the endpoint's buffered bytes and fds to the socket.
// Everything queued up to this point is flushed as one or more
// writes; a partial-write-then-error leaves the remainder buffered
// for the next attempt.
func (e *Endpoint) Flush() error {
	e.flushQueued = false
	if len(e.outgoing) == 0 {
		return nil
	}
	fds := e.outgoingFDs.Drain(e.outgoingFDs.Len())
	raw := make([]int, len(fds))
	for i, fd := range fds {
		raw[i] = fd.Raw()
	}
	if err := e.Conn.Send(e.outgoing, raw); err != nil {
		return fmt.Errorf("core: flush endpoint %d: %w", e.NumericID, err)
	}
	e.outgoing = e.outgoing[:0]
	return nil
}

// Close tears down the endpoint's socket. The State is responsible
// for removing the Endpoint from its bookkeeping and inerting every
// Object still anchored to it.
func (e *Endpoint) Close() error {
	return e.Conn.Close()
}
