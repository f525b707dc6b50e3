// Package presentation_time implements wp_presentation, one of the
// two extension interfaces SPEC_FULL.md hand-authors in full (chosen,
// per §9 Supplemental 6, for being small enough to fully decode while
// still showing the new_id-with-sibling-argument shape: feedback's
// callback new_id arrives alongside a plain object reference rather
// than alone, unlike wl_compositor.create_surface).
package presentation_time

import (
	"github.com/waylab/wlproxy/core"
	"github.com/waylab/wlproxy/protoerr"
	"github.com/waylab/wlproxy/wire"
)

const (
	presentationReqDestroy  uint32 = 0
	presentationReqFeedback uint32 = 1
)

const presentationEvtClockID uint32 = 0

const (
	MsgPresentationDestroySince  = 1
	MsgPresentationFeedbackSince = 1
	MsgPresentationClockIDSince  = 1
)

// WpPresentationError enumerates the fatal protocol errors the real
// compositor may raise against this interface.
type WpPresentationError uint32

const (
	WpPresentationErrorInvalidTimestamp WpPresentationError = 0
	WpPresentationErrorInvalidFlag      WpPresentationError = 1
)

var presentationInterface = &core.Interface{
	Name:       "wp_presentation",
	MaxVersion: 2,
	Requests: []core.MessageSpec{
		{Name: "destroy", Opcode: presentationReqDestroy, Since: 1, Destructor: true},
		{Name: "feedback", Opcode: presentationReqFeedback, Since: 1, Args: []core.ArgSpec{
			{Name: "surface", Kind: core.ArgObject, WireInterface: "wl_surface"},
			{Name: "callback", Kind: core.ArgNewID, WireInterface: "wp_presentation_feedback"},
		}},
	},
	Events: []core.MessageSpec{
		{Name: "clock_id", Opcode: presentationEvtClockID, Since: 1, Args: []core.ArgSpec{
			{Name: "clk_id", Kind: core.ArgUint},
		}},
	},
}

func init() {
	core.RegisterInterface(presentationInterface, func(st *core.State, version uint32) core.Dispatcher {
		return NewWpPresentation(st, version)
	})
}

// PresentationHandler lets a caller intercept feedback requests — e.g.
// to attribute presentation timing to a specific surface in metrics.
// An installed handler implementing it runs in place of the default
// forwarding, so the request is not forwarded.
type PresentationHandler interface {
	HandleFeedback(p *WpPresentation, surfaceID uint32, callback *core.OpaqueObject)
}

type WpPresentation struct {
	core *core.Core
}

func NewWpPresentation(st *core.State, version uint32) *WpPresentation {
	return &WpPresentation{core: core.NewCore(st, presentationInterface, version)}
}

func (p *WpPresentation) Core() *core.Core { return p.core }

func (p *WpPresentation) HandleRequest(opcode uint32, payload []uint32, fds *wire.FDQueue) *protoerr.Error {
	dec := wire.NewDecoder(payload, fds)
	switch opcode {
	case presentationReqDestroy:
		if !dec.Done() {
			return protoerr.TrailingBytes()
		}
		p.core.MarkClientDestroyed()
		if p.core.ServerID != nil {
			enc := p.core.State().Server.NewOutgoingEncoder()
			p.core.ForwardRequestToServer(uint16(presentationReqDestroy), enc)
			if st := p.core.State(); st != nil && st.Server != nil {
				p.core.MarkServerDestroyed(st.Server)
			}
		}
		return nil
	case presentationReqFeedback:
		// surface is looked up only to validate it resolves to a live
		// client object; the wire argument forwarded onward is the
		// surface's own server twin, found through its Core (§4.4).
		surfaceID, err := dec.Object("surface")
		if err != nil {
			return err
		}
		id, err := dec.NewID("callback")
		if err != nil {
			return err
		}
		if !dec.Done() {
			return protoerr.TrailingBytes()
		}
		surfaceObj, ok := p.core.ClientEndpoint.Lookup(surfaceID)
		if !ok {
			return protoerr.NoObject(surfaceID)
		}
		if actual := surfaceObj.Core().Iface.Name; actual != "wl_surface" {
			return protoerr.WrongObjectType("surface", actual, "wl_surface")
		}

		callback := core.NewOpaqueObject(p.core.State(), "wp_presentation_feedback", p.core.Version)
		callback.Core().CreatedByClient = true
		if berr := callback.Core().BindClient(p.core.ClientEndpoint, id, callback); berr != nil {
			return berr
		}
		return p.core.Handler().Dispatch(func(h any) {
			if ph, ok := h.(PresentationHandler); ok {
				ph.HandleFeedback(p, surfaceID, callback)
				return
			}
			p.defaultHandleFeedback(surfaceObj, callback)
		})
	default:
		return protoerr.UnknownMessageID(opcode)
	}
}

func (p *WpPresentation) defaultHandleFeedback(surfaceObj core.Dispatcher, callback *core.OpaqueObject) {
	st := p.core.State()
	if !p.core.ForwardToServer || st.Server == nil || p.core.ServerID == nil {
		return
	}
	surfaceCore := surfaceObj.Core()
	if surfaceCore.ServerID == nil {
		if st.Logger != nil {
			st.Logger.Logf("wp_presentation.feedback: surface has no server id")
		}
		return
	}
	cbCore := callback.Core()
	if _, err := cbCore.GenerateServerID(st.Server, callback); err != nil {
		if st.Logger != nil {
			st.Logger.Logf("wp_presentation.feedback: generate server id: %v", err)
		}
		return
	}
	enc := st.Server.NewOutgoingEncoder()
	enc.Object(*surfaceCore.ServerID)
	enc.NewID(*cbCore.ServerID)
	st.Server.QueueMessage(*p.core.ServerID, uint16(presentationReqFeedback), enc)
}

func (p *WpPresentation) HandleEvent(opcode uint32, payload []uint32, fds *wire.FDQueue) *protoerr.Error {
	dec := wire.NewDecoder(payload, fds)
	switch opcode {
	case presentationEvtClockID:
		clkID, err := dec.Uint32("clk_id")
		if err != nil {
			return err
		}
		if !dec.Done() {
			return protoerr.TrailingBytes()
		}
		enc := p.core.ClientEndpoint.NewOutgoingEncoder()
		enc.Uint32(clkID)
		p.core.ForwardEventToClient(uint16(presentationEvtClockID), enc)
		return nil
	default:
		return protoerr.UnknownMessageID(opcode)
	}
}
