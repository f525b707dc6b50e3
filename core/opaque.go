package core

import (
	"github.com/waylab/wlproxy/protoerr"
	"github.com/waylab/wlproxy/wire"
)

// OpaqueObject is the fallback Dispatcher for an interface the
// catalogue has no generated entry for (§9 Supplemental 6: the
// ~13 interfaces out of hand-authored scope are "catalogue-only",
// not silently dropped — a client can still bind them and traffic
// still flows).
//
// It forwards every request/event byte-for-byte without decoding
// arguments, which means it cannot translate object ids embedded in
// its own payload and cannot carry fd-typed arguments (there is no
// signature to tell it how many fds a given opcode consumes). Both
// are correct for the large majority of extension requests, which
// carry only plain scalars once past their own new_id, but a
// catalogue-only interface that passes another object or a fd as a
// non-constructor argument will misbehave — exactly the tradeoff a
// hand-authored dispatch table (protocols/wayland and friends) exists
// to avoid.
type OpaqueObject struct {
	core *Core
}

func NewOpaqueObject(st *State, ifaceName string, version uint32) *OpaqueObject {
	return &OpaqueObject{core: NewCore(st, &Interface{Name: ifaceName, MaxVersion: version}, version)}
}

func (o *OpaqueObject) Core() *Core { return o.core }

func (o *OpaqueObject) HandleRequest(opcode uint32, payload []uint32, fds *wire.FDQueue) *protoerr.Error {
	if !o.core.ForwardToServer {
		return nil
	}
	st := o.core.state
	if st == nil || st.Server == nil || o.core.ServerID == nil {
		return nil
	}
	enc := st.Server.NewOutgoingEncoder()
	for _, w := range payload {
		enc.Uint32(w)
	}
	st.Server.QueueMessage(*o.core.ServerID, uint16(opcode), enc)
	return nil
}

func (o *OpaqueObject) HandleEvent(opcode uint32, payload []uint32, fds *wire.FDQueue) *protoerr.Error {
	if !o.core.ForwardToClient || o.core.ClientEndpoint == nil || o.core.ClientID == nil {
		return nil
	}
	enc := o.core.ClientEndpoint.NewOutgoingEncoder()
	for _, w := range payload {
		enc.Uint32(w)
	}
	o.core.ClientEndpoint.QueueMessage(*o.core.ClientID, uint16(opcode), enc)
	return nil
}
