// Package xdg_decoration implements zxdg_toplevel_decoration_v1, the
// second of the two extension interfaces SPEC_FULL.md hand-authors in
// full (§9 Supplemental 6) — chosen alongside wp_presentation for
// showing the plain request/event/enum shape with no embedded object
// ids or fds at all, the opposite end of the complexity spectrum from
// wl_surface's child-object-heavy requests.
package xdg_decoration

import (
	"github.com/waylab/wlproxy/core"
	"github.com/waylab/wlproxy/protoerr"
	"github.com/waylab/wlproxy/wire"
)

const (
	decorationReqDestroy   uint32 = 0
	decorationReqSetMode   uint32 = 1
	decorationReqUnsetMode uint32 = 2
)

const decorationEvtConfigure uint32 = 0

const (
	MsgDecorationDestroySince   = 1
	MsgDecorationSetModeSince   = 1
	MsgDecorationUnsetModeSince = 1
	MsgDecorationConfigureSince = 1
)

// ZxdgToplevelDecorationV1Error enumerates the fatal protocol errors
// the real compositor may raise against this interface.
type ZxdgToplevelDecorationV1Error uint32

const (
	DecorationErrorUnconfiguredBuffer ZxdgToplevelDecorationV1Error = 0
	DecorationErrorAlreadyConstructed ZxdgToplevelDecorationV1Error = 1
	DecorationErrorOrphaned           ZxdgToplevelDecorationV1Error = 2
	DecorationErrorInvalidMode        ZxdgToplevelDecorationV1Error = 3
)

// ZxdgToplevelDecorationV1Mode enumerates the decoration modes a
// client may request or a compositor may configure.
type ZxdgToplevelDecorationV1Mode uint32

const (
	DecorationModeClientSide ZxdgToplevelDecorationV1Mode = 1
	DecorationModeServerSide ZxdgToplevelDecorationV1Mode = 2
)

var decorationInterface = &core.Interface{
	Name:       "zxdg_toplevel_decoration_v1",
	MaxVersion: 1,
	Requests: []core.MessageSpec{
		{Name: "destroy", Opcode: decorationReqDestroy, Since: 1, Destructor: true},
		{Name: "set_mode", Opcode: decorationReqSetMode, Since: 1, Args: []core.ArgSpec{
			{Name: "mode", Kind: core.ArgUint},
		}},
		{Name: "unset_mode", Opcode: decorationReqUnsetMode, Since: 1},
	},
	Events: []core.MessageSpec{
		{Name: "configure", Opcode: decorationEvtConfigure, Since: 1, Args: []core.ArgSpec{
			{Name: "mode", Kind: core.ArgUint},
		}},
	},
}

func init() {
	core.RegisterInterface(decorationInterface, func(st *core.State, version uint32) core.Dispatcher {
		return NewZxdgToplevelDecorationV1(st, version)
	})
}

// DecorationHandler lets a caller observe a client's requested mode —
// e.g. to enforce a policy of always-server-side decorations. An
// installed handler implementing it runs in place of the default
// forwarding, so the request is not forwarded.
type DecorationHandler interface {
	HandleSetMode(d *ZxdgToplevelDecorationV1, mode ZxdgToplevelDecorationV1Mode)
	HandleUnsetMode(d *ZxdgToplevelDecorationV1)
}

type ZxdgToplevelDecorationV1 struct {
	core *core.Core
}

func NewZxdgToplevelDecorationV1(st *core.State, version uint32) *ZxdgToplevelDecorationV1 {
	return &ZxdgToplevelDecorationV1{core: core.NewCore(st, decorationInterface, version)}
}

func (d *ZxdgToplevelDecorationV1) Core() *core.Core { return d.core }

func (d *ZxdgToplevelDecorationV1) HandleRequest(opcode uint32, payload []uint32, fds *wire.FDQueue) *protoerr.Error {
	dec := wire.NewDecoder(payload, fds)
	switch opcode {
	case decorationReqDestroy:
		if !dec.Done() {
			return protoerr.TrailingBytes()
		}
		d.core.MarkClientDestroyed()
		if d.core.ServerID != nil {
			enc := d.core.State().Server.NewOutgoingEncoder()
			d.core.ForwardRequestToServer(uint16(decorationReqDestroy), enc)
			if st := d.core.State(); st != nil && st.Server != nil {
				d.core.MarkServerDestroyed(st.Server)
			}
		}
		return nil
	case decorationReqSetMode:
		mode, err := dec.Uint32("mode")
		if err != nil {
			return err
		}
		if !dec.Done() {
			return protoerr.TrailingBytes()
		}
		return d.core.Handler().Dispatch(func(h any) {
			if dh, ok := h.(DecorationHandler); ok {
				dh.HandleSetMode(d, ZxdgToplevelDecorationV1Mode(mode))
				return
			}
			d.forwardSetMode(mode)
		})
	case decorationReqUnsetMode:
		if !dec.Done() {
			return protoerr.TrailingBytes()
		}
		return d.core.Handler().Dispatch(func(h any) {
			if dh, ok := h.(DecorationHandler); ok {
				dh.HandleUnsetMode(d)
				return
			}
			d.forwardUnsetMode()
		})
	default:
		return protoerr.UnknownMessageID(opcode)
	}
}

func (d *ZxdgToplevelDecorationV1) forwardSetMode(mode uint32) {
	enc := d.core.State().Server.NewOutgoingEncoder()
	enc.Uint32(mode)
	d.core.ForwardRequestToServer(uint16(decorationReqSetMode), enc)
}

func (d *ZxdgToplevelDecorationV1) forwardUnsetMode() {
	enc := d.core.State().Server.NewOutgoingEncoder()
	d.core.ForwardRequestToServer(uint16(decorationReqUnsetMode), enc)
}

func (d *ZxdgToplevelDecorationV1) HandleEvent(opcode uint32, payload []uint32, fds *wire.FDQueue) *protoerr.Error {
	dec := wire.NewDecoder(payload, fds)
	switch opcode {
	case decorationEvtConfigure:
		mode, err := dec.Uint32("mode")
		if err != nil {
			return err
		}
		if !dec.Done() {
			return protoerr.TrailingBytes()
		}
		enc := d.core.ClientEndpoint.NewOutgoingEncoder()
		enc.Uint32(mode)
		d.core.ForwardEventToClient(uint16(decorationEvtConfigure), enc)
		return nil
	default:
		return protoerr.UnknownMessageID(opcode)
	}
}
