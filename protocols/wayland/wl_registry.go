package wayland

import (
	"github.com/waylab/wlproxy/core"
	"github.com/waylab/wlproxy/protoerr"
	"github.com/waylab/wlproxy/wire"
)

const registryReqBind uint32 = 0

const (
	registryEvtGlobal       uint32 = 0
	registryEvtGlobalRemove uint32 = 1
)

const (
	MsgRegistryBindSince         = 1
	MsgRegistryGlobalSince       = 1
	MsgRegistryGlobalRemoveSince = 1
)

var registryInterface = &core.Interface{
	Name:       "wl_registry",
	MaxVersion: 1,
	Requests: []core.MessageSpec{
		// bind's id argument is a dynamic new_id: the wire payload
		// carries the bound interface's name and version ahead of the
		// id itself, since wl_registry.xml declares no static
		// interface for it.
		{Name: "bind", Opcode: registryReqBind, Since: 1, Args: []core.ArgSpec{
			{Name: "name", Kind: core.ArgUint},
			{Name: "id", Kind: core.ArgNewID},
		}},
	},
	Events: []core.MessageSpec{
		{Name: "global", Opcode: registryEvtGlobal, Since: 1, Args: []core.ArgSpec{
			{Name: "name", Kind: core.ArgUint},
			{Name: "interface", Kind: core.ArgString},
			{Name: "version", Kind: core.ArgUint},
		}},
		{Name: "global_remove", Opcode: registryEvtGlobalRemove, Since: 1, Args: []core.ArgSpec{
			{Name: "name", Kind: core.ArgUint},
		}},
	},
}

func init() {
	core.RegisterInterface(registryInterface, func(st *core.State, version uint32) core.Dispatcher {
		return NewWlRegistry(st, version)
	})
}

// RegistryHandler lets a caller intercept bind and the global
// advertisement events — e.g. to hide a global from a specific
// client, or to redirect a bind to a locally-implemented object.
type RegistryHandler interface {
	HandleBind(r *WlRegistry, name uint32, ifaceName string, version, id uint32)
	HandleGlobal(r *WlRegistry, name uint32, ifaceName string, version uint32)
	HandleGlobalRemove(r *WlRegistry, name uint32)
}

type WlRegistry struct {
	core *core.Core
}

func NewWlRegistry(st *core.State, version uint32) *WlRegistry {
	return &WlRegistry{core: core.NewCore(st, registryInterface, version)}
}

func (r *WlRegistry) Core() *core.Core { return r.core }

func (r *WlRegistry) HandleRequest(opcode uint32, payload []uint32, fds *wire.FDQueue) *protoerr.Error {
	dec := wire.NewDecoder(payload, fds)
	switch opcode {
	case registryReqBind:
		name, err := dec.Uint32("name")
		if err != nil {
			return err
		}
		ifaceName, err := dec.String("interface")
		if err != nil {
			return err
		}
		version, err := dec.Uint32("version")
		if err != nil {
			return err
		}
		id, err := dec.NewID("id")
		if err != nil {
			return err
		}
		if !dec.Done() {
			return protoerr.TrailingBytes()
		}

		bound, ok := core.NewDispatcher(ifaceName, r.core.State(), version)
		if !ok {
			bound = core.NewOpaqueObject(r.core.State(), ifaceName, version)
		}
		bound.Core().CreatedByClient = true
		if berr := bound.Core().BindClient(r.core.ClientEndpoint, id, bound); berr != nil {
			return berr
		}

		return r.core.Handler().Dispatch(func(h any) {
			if rh, ok := h.(RegistryHandler); ok {
				rh.HandleBind(r, name, ifaceName, version, id)
				return
			}
			r.defaultHandleBind(bound, name, ifaceName)
		})
	default:
		return protoerr.UnknownMessageID(opcode)
	}
}

// defaultHandleBind forwards the bind request to the real
// compositor, minting the bound object's server-side twin id. name
// is the registry's global enumeration number — not an object id, so
// it is echoed back unmodified, exactly as the client sent it.
func (r *WlRegistry) defaultHandleBind(bound core.Dispatcher, name uint32, ifaceName string) {
	if !r.core.ForwardToServer {
		return
	}
	st := r.core.State()
	if st.Server == nil || r.core.ServerID == nil {
		return
	}
	if _, err := bound.Core().GenerateServerID(st.Server, bound); err != nil {
		if st.Logger != nil {
			st.Logger.Logf("bind %s: generate server id: %v", ifaceName, err)
		}
		return
	}
	enc := st.Server.NewOutgoingEncoder()
	enc.Uint32(name)
	enc.String(ifaceName)
	enc.Uint32(bound.Core().Version)
	enc.NewID(*bound.Core().ServerID)
	st.Server.QueueMessage(*r.core.ServerID, uint16(registryReqBind), enc)
}

func (r *WlRegistry) HandleEvent(opcode uint32, payload []uint32, fds *wire.FDQueue) *protoerr.Error {
	dec := wire.NewDecoder(payload, fds)
	switch opcode {
	case registryEvtGlobal:
		name, err := dec.Uint32("name")
		if err != nil {
			return err
		}
		ifaceName, err := dec.String("interface")
		if err != nil {
			return err
		}
		version, err := dec.Uint32("version")
		if err != nil {
			return err
		}
		if !dec.Done() {
			return protoerr.TrailingBytes()
		}
		return r.core.Handler().Dispatch(func(h any) {
			if rh, ok := h.(RegistryHandler); ok {
				rh.HandleGlobal(r, name, ifaceName, version)
				return
			}
			r.forwardGlobal(name, ifaceName, version)
		})
	case registryEvtGlobalRemove:
		name, err := dec.Uint32("name")
		if err != nil {
			return err
		}
		if !dec.Done() {
			return protoerr.TrailingBytes()
		}
		return r.core.Handler().Dispatch(func(h any) {
			if rh, ok := h.(RegistryHandler); ok {
				rh.HandleGlobalRemove(r, name)
				return
			}
			r.forwardGlobalRemove(name)
		})
	default:
		return protoerr.UnknownMessageID(opcode)
	}
}

func (r *WlRegistry) forwardGlobal(name uint32, ifaceName string, version uint32) {
	if r.core.ClientEndpoint == nil {
		return
	}
	enc := r.core.ClientEndpoint.NewOutgoingEncoder()
	enc.Uint32(name)
	enc.String(ifaceName)
	enc.Uint32(version)
	r.core.ForwardEventToClient(uint16(registryEvtGlobal), enc)
}

func (r *WlRegistry) forwardGlobalRemove(name uint32) {
	if r.core.ClientEndpoint == nil {
		return
	}
	enc := r.core.ClientEndpoint.NewOutgoingEncoder()
	enc.Uint32(name)
	r.core.ForwardEventToClient(uint16(registryEvtGlobalRemove), enc)
}
