package xdg_decoration

import (
	"github.com/waylab/wlproxy/core"
	"github.com/waylab/wlproxy/protoerr"
	"github.com/waylab/wlproxy/wire"
)

const (
	managerReqDestroy               uint32 = 0
	managerReqGetToplevelDecoration uint32 = 1
)

const (
	MsgManagerDestroySince               = 1
	MsgManagerGetToplevelDecorationSince = 1
)

// managerInterface is hand-authored purely as the factory that makes
// zxdg_toplevel_decoration_v1 reachable at all: xdg_toplevel is
// catalogue-only, so get_toplevel_decoration's toplevel argument is
// forwarded as an opaque object reference, but its own new_id must be
// bound to the real ZxdgToplevelDecorationV1 type for that interface's
// hand-authored dispatch to ever run (§9 Supplemental 6).
var managerInterface = &core.Interface{
	Name:       "zxdg_decoration_manager_v1",
	MaxVersion: 1,
	Requests: []core.MessageSpec{
		{Name: "destroy", Opcode: managerReqDestroy, Since: 1, Destructor: true},
		{Name: "get_toplevel_decoration", Opcode: managerReqGetToplevelDecoration, Since: 1, Args: []core.ArgSpec{
			{Name: "id", Kind: core.ArgNewID, WireInterface: "zxdg_toplevel_decoration_v1"},
			{Name: "toplevel", Kind: core.ArgObject, WireInterface: "xdg_toplevel"},
		}},
	},
}

func init() {
	core.RegisterInterface(managerInterface, func(st *core.State, version uint32) core.Dispatcher {
		return NewZxdgDecorationManagerV1(st, version)
	})
}

type ManagerHandler interface {
	HandleGetToplevelDecoration(m *ZxdgDecorationManagerV1, decoration *ZxdgToplevelDecorationV1, toplevelID uint32)
}

type ZxdgDecorationManagerV1 struct {
	core *core.Core
}

func NewZxdgDecorationManagerV1(st *core.State, version uint32) *ZxdgDecorationManagerV1 {
	return &ZxdgDecorationManagerV1{core: core.NewCore(st, managerInterface, version)}
}

func (m *ZxdgDecorationManagerV1) Core() *core.Core { return m.core }

func (m *ZxdgDecorationManagerV1) HandleRequest(opcode uint32, payload []uint32, fds *wire.FDQueue) *protoerr.Error {
	dec := wire.NewDecoder(payload, fds)
	switch opcode {
	case managerReqDestroy:
		if !dec.Done() {
			return protoerr.TrailingBytes()
		}
		m.core.MarkClientDestroyed()
		if m.core.ServerID != nil {
			enc := m.core.State().Server.NewOutgoingEncoder()
			m.core.ForwardRequestToServer(uint16(managerReqDestroy), enc)
			if st := m.core.State(); st != nil && st.Server != nil {
				m.core.MarkServerDestroyed(st.Server)
			}
		}
		return nil
	case managerReqGetToplevelDecoration:
		id, err := dec.NewID("id")
		if err != nil {
			return err
		}
		toplevelID, err := dec.Object("toplevel")
		if err != nil {
			return err
		}
		if !dec.Done() {
			return protoerr.TrailingBytes()
		}
		toplevelObj, ok := m.core.ClientEndpoint.Lookup(toplevelID)
		if !ok {
			return protoerr.NoObject(toplevelID)
		}
		if actual := toplevelObj.Core().Iface.Name; actual != "xdg_toplevel" {
			return protoerr.WrongObjectType("toplevel", actual, "xdg_toplevel")
		}

		decoration := NewZxdgToplevelDecorationV1(m.core.State(), m.core.Version)
		decoration.core.CreatedByClient = true
		if berr := decoration.core.BindClient(m.core.ClientEndpoint, id, decoration); berr != nil {
			return berr
		}
		return m.core.Handler().Dispatch(func(h any) {
			if mh, ok := h.(ManagerHandler); ok {
				mh.HandleGetToplevelDecoration(m, decoration, toplevelID)
				return
			}
			m.defaultGetToplevelDecoration(decoration, toplevelObj)
		})
	default:
		return protoerr.UnknownMessageID(opcode)
	}
}

func (m *ZxdgDecorationManagerV1) defaultGetToplevelDecoration(decoration *ZxdgToplevelDecorationV1, toplevelObj core.Dispatcher) {
	st := m.core.State()
	if !m.core.ForwardToServer || st.Server == nil || m.core.ServerID == nil {
		return
	}
	toplevelCore := toplevelObj.Core()
	if toplevelCore.ServerID == nil {
		if st.Logger != nil {
			st.Logger.Logf("zxdg_decoration_manager_v1.get_toplevel_decoration: toplevel has no server id")
		}
		return
	}
	decCore := decoration.core
	if _, err := decCore.GenerateServerID(st.Server, decoration); err != nil {
		if st.Logger != nil {
			st.Logger.Logf("get_toplevel_decoration: generate server id: %v", err)
		}
		return
	}
	enc := st.Server.NewOutgoingEncoder()
	enc.NewID(*decCore.ServerID)
	enc.Object(*toplevelCore.ServerID)
	st.Server.QueueMessage(*m.core.ServerID, uint16(managerReqGetToplevelDecoration), enc)
}

func (m *ZxdgDecorationManagerV1) HandleEvent(opcode uint32, payload []uint32, fds *wire.FDQueue) *protoerr.Error {
	return protoerr.UnknownMessageID(opcode)
}
