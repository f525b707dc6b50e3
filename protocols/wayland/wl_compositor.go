package wayland

import (
	"github.com/waylab/wlproxy/core"
	"github.com/waylab/wlproxy/protoerr"
	"github.com/waylab/wlproxy/wire"
)

const (
	compositorReqCreateSurface uint32 = 0
	compositorReqCreateRegion  uint32 = 1
)

const (
	MsgCompositorCreateSurfaceSince = 1
	MsgCompositorCreateRegionSince  = 1
)

var compositorInterface = &core.Interface{
	Name:       "wl_compositor",
	MaxVersion: 6,
	Requests: []core.MessageSpec{
		{Name: "create_surface", Opcode: compositorReqCreateSurface, Since: 1, Args: []core.ArgSpec{
			{Name: "id", Kind: core.ArgNewID, WireInterface: "wl_surface"},
		}},
		{Name: "create_region", Opcode: compositorReqCreateRegion, Since: 1, Args: []core.ArgSpec{
			{Name: "id", Kind: core.ArgNewID, WireInterface: "wl_region"},
		}},
	},
}

func init() {
	core.RegisterInterface(compositorInterface, func(st *core.State, version uint32) core.Dispatcher {
		return NewWlCompositor(st, version)
	})
}

type CompositorHandler interface {
	HandleCreateSurface(c *WlCompositor, surface *WlSurface)
}

// WlCompositor has no events; it exists purely as the factory global
// for surfaces (hand-authored) and regions (wl_region is
// catalogue-only — §9 Supplemental 6 — so create_region's result is
// an opaque pass-through object).
type WlCompositor struct {
	core *core.Core
}

func NewWlCompositor(st *core.State, version uint32) *WlCompositor {
	return &WlCompositor{core: core.NewCore(st, compositorInterface, version)}
}

func (c *WlCompositor) Core() *core.Core { return c.core }

func (c *WlCompositor) HandleRequest(opcode uint32, payload []uint32, fds *wire.FDQueue) *protoerr.Error {
	dec := wire.NewDecoder(payload, fds)
	switch opcode {
	case compositorReqCreateSurface:
		id, err := dec.NewID("id")
		if err != nil {
			return err
		}
		if !dec.Done() {
			return protoerr.TrailingBytes()
		}
		surface := NewWlSurface(c.core.State(), c.core.Version)
		surface.core.CreatedByClient = true
		if berr := surface.core.BindClient(c.core.ClientEndpoint, id, surface); berr != nil {
			return berr
		}
		return c.core.Handler().Dispatch(func(h any) {
			if ch, ok := h.(CompositorHandler); ok {
				ch.HandleCreateSurface(c, surface)
				return
			}
			c.forwardCreate(surface, compositorReqCreateSurface)
		})
	case compositorReqCreateRegion:
		id, err := dec.NewID("id")
		if err != nil {
			return err
		}
		if !dec.Done() {
			return protoerr.TrailingBytes()
		}
		region := core.NewOpaqueObject(c.core.State(), "wl_region", c.core.Version)
		region.Core().CreatedByClient = true
		if berr := region.Core().BindClient(c.core.ClientEndpoint, id, region); berr != nil {
			return berr
		}
		c.forwardCreate(region, compositorReqCreateRegion)
		return nil
	default:
		return protoerr.UnknownMessageID(opcode)
	}
}

func (c *WlCompositor) forwardCreate(child core.Dispatcher, opcode uint32) {
	if !c.core.ForwardToServer {
		return
	}
	st := c.core.State()
	if st.Server == nil || c.core.ServerID == nil {
		return
	}
	childCore := child.Core()
	if _, err := childCore.GenerateServerID(st.Server, child); err != nil {
		if st.Logger != nil {
			st.Logger.Logf("create child: generate server id: %v", err)
		}
		return
	}
	enc := st.Server.NewOutgoingEncoder()
	enc.NewID(*childCore.ServerID)
	st.Server.QueueMessage(*c.core.ServerID, uint16(opcode), enc)
}

func (c *WlCompositor) HandleEvent(opcode uint32, payload []uint32, fds *wire.FDQueue) *protoerr.Error {
	return protoerr.UnknownMessageID(opcode)
}
