// Package wayland implements the core wayland.xml interfaces: the
// handful of objects every proxied session touches regardless of
// which extensions a client negotiates. Each file here plays the
// role the teacher's codegen would: a hand-authored dispatch table
// registered with the core catalogue at init time.
package wayland

import (
	"github.com/waylab/wlproxy/core"
	"github.com/waylab/wlproxy/protoerr"
	"github.com/waylab/wlproxy/wire"
)

const (
	displayReqSync        uint32 = 0
	displayReqGetRegistry uint32 = 1

	displayEvtError    uint32 = 0
	displayEvtDeleteID uint32 = 1
)

// Since when each message was introduced — advisory only, per §4.5;
// nothing in the engine enforces these against a negotiated version.
const (
	MsgDisplaySyncSince        = 1
	MsgDisplayGetRegistrySince = 1
	MsgDisplayErrorSince       = 1
	MsgDisplayDeleteIDSince    = 1
)

// DisplayError enumerates wl_display's global error codes.
type DisplayError uint32

const (
	DisplayErrorInvalidObject DisplayError = 0
	DisplayErrorInvalidMethod DisplayError = 1
	DisplayErrorNoMemory      DisplayError = 2
	DisplayErrorImplementation DisplayError = 3
)

var displayInterface = &core.Interface{
	Name:       "wl_display",
	MaxVersion: 1,
	Requests: []core.MessageSpec{
		{Name: "sync", Opcode: displayReqSync, Since: 1, Args: []core.ArgSpec{
			{Name: "callback", Kind: core.ArgNewID, WireInterface: "wl_callback"},
		}},
		{Name: "get_registry", Opcode: displayReqGetRegistry, Since: 1, Args: []core.ArgSpec{
			{Name: "registry", Kind: core.ArgNewID, WireInterface: "wl_registry"},
		}},
	},
	Events: []core.MessageSpec{
		{Name: "error", Opcode: displayEvtError, Since: 1, Args: []core.ArgSpec{
			{Name: "object_id", Kind: core.ArgObject},
			{Name: "code", Kind: core.ArgUint},
			{Name: "message", Kind: core.ArgString},
		}},
		{Name: "delete_id", Opcode: displayEvtDeleteID, Since: 1, Args: []core.ArgSpec{
			{Name: "id", Kind: core.ArgUint},
		}},
	},
}

func init() {
	core.RegisterInterface(displayInterface, func(st *core.State, version uint32) core.Dispatcher {
		return &WlDisplay{core: core.NewCore(st, displayInterface, version)}
	})
}

// DisplayHandler lets a caller observe or override wl_display
// traffic. A handler must implement both methods to be used: an
// installed value that does not satisfy the whole interface is
// ignored, and sync/get_registry fall through to default forwarding.
type DisplayHandler interface {
	HandleSync(d *WlDisplay, callback *WlCallback)
	HandleGetRegistry(d *WlDisplay, registry *WlRegistry)
}

// WlDisplay is the root object, always id 1 on every endpoint.
type WlDisplay struct {
	core *core.Core
}

func (d *WlDisplay) Core() *core.Core { return d.core }

func NewWlDisplay(st *core.State, version uint32) *WlDisplay {
	return &WlDisplay{core: core.NewCore(st, displayInterface, version)}
}

func (d *WlDisplay) HandleRequest(opcode uint32, payload []uint32, fds *wire.FDQueue) *protoerr.Error {
	dec := wire.NewDecoder(payload, fds)
	switch opcode {
	case displayReqSync:
		arg0ID, err := dec.NewID("callback")
		if err != nil {
			return err
		}
		if !dec.Done() {
			return protoerr.TrailingBytes()
		}
		callback := NewWlCallback(d.core.State(), d.core.Version)
		callback.core.CreatedByClient = true
		if berr := callback.core.BindClient(d.core.ClientEndpoint, arg0ID, callback); berr != nil {
			return berr
		}
		return d.core.Handler().Dispatch(func(h any) {
			if dh, ok := h.(DisplayHandler); ok {
				dh.HandleSync(d, callback)
				return
			}
			d.defaultHandleSync(callback)
		})
	case displayReqGetRegistry:
		arg0ID, err := dec.NewID("registry")
		if err != nil {
			return err
		}
		if !dec.Done() {
			return protoerr.TrailingBytes()
		}
		registry := NewWlRegistry(d.core.State(), d.core.Version)
		registry.core.CreatedByClient = true
		if berr := registry.core.BindClient(d.core.ClientEndpoint, arg0ID, registry); berr != nil {
			return berr
		}
		return d.core.Handler().Dispatch(func(h any) {
			if dh, ok := h.(DisplayHandler); ok {
				dh.HandleGetRegistry(d, registry)
				return
			}
			d.defaultHandleGetRegistry(registry)
		})
	default:
		return protoerr.UnknownMessageID(opcode)
	}
}

func (d *WlDisplay) defaultHandleSync(callback *WlCallback) {
	if !d.core.ForwardToServer {
		return
	}
	if err := d.trySendSync(callback); err != nil {
		if st := d.core.State(); st != nil && st.Logger != nil {
			st.Logger.Logf("wl_display.sync: %v", err)
		}
	}
}

func (d *WlDisplay) defaultHandleGetRegistry(registry *WlRegistry) {
	if !d.core.ForwardToServer {
		return
	}
	if err := d.trySendGetRegistry(registry); err != nil {
		if st := d.core.State(); st != nil && st.Logger != nil {
			st.Logger.Logf("wl_display.get_registry: %v", err)
		}
	}
}

// trySendSync forwards the sync request toward the real compositor,
// minting the callback's server-side twin id first.
func (d *WlDisplay) trySendSync(callback *WlCallback) *protoerr.Error {
	st := d.core.State()
	if st.Server == nil || d.core.ServerID == nil {
		return protoerr.ReceiverNoServerID()
	}
	if _, err := callback.core.GenerateServerID(st.Server, callback); err != nil {
		return protoerr.GenerateServerID("callback", err)
	}
	enc := st.Server.NewOutgoingEncoder()
	enc.NewID(*callback.core.ServerID)
	st.Server.QueueMessage(*d.core.ServerID, uint16(displayReqSync), enc)
	return nil
}

func (d *WlDisplay) trySendGetRegistry(registry *WlRegistry) *protoerr.Error {
	st := d.core.State()
	if st.Server == nil || d.core.ServerID == nil {
		return protoerr.ReceiverNoServerID()
	}
	if _, err := registry.core.GenerateServerID(st.Server, registry); err != nil {
		return protoerr.GenerateServerID("registry", err)
	}
	enc := st.Server.NewOutgoingEncoder()
	enc.NewID(*registry.core.ServerID)
	st.Server.QueueMessage(*d.core.ServerID, uint16(displayReqGetRegistry), enc)
	return nil
}

// HandleEvent processes events arriving on the server endpoint
// addressed to wl_display (always id 1 there too): error and
// delete_id are both intercepted here rather than forwarded
// pass-through, per the two-step translation the original source
// uses (§9 Supplemental 1 and 2).
func (d *WlDisplay) HandleEvent(opcode uint32, payload []uint32, fds *wire.FDQueue) *protoerr.Error {
	dec := wire.NewDecoder(payload, fds)
	switch opcode {
	case displayEvtError:
		objectID, err := dec.Object("object_id")
		if err != nil {
			return err
		}
		code, err := dec.Uint32("code")
		if err != nil {
			return err
		}
		message, err := dec.String("message")
		if err != nil {
			return err
		}
		if !dec.Done() {
			return protoerr.TrailingBytes()
		}
		return d.core.State().HandleServerError(objectID, code, message)
	case displayEvtDeleteID:
		id, err := dec.Uint32("id")
		if err != nil {
			return err
		}
		if !dec.Done() {
			return protoerr.TrailingBytes()
		}
		d.core.State().HandleDeleteID(id)
		return nil
	default:
		return protoerr.UnknownMessageID(opcode)
	}
}
