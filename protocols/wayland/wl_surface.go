package wayland

import (
	"github.com/waylab/wlproxy/core"
	"github.com/waylab/wlproxy/protoerr"
	"github.com/waylab/wlproxy/wire"
)

const (
	surfaceReqDestroy uint32 = 0
	surfaceReqAttach  uint32 = 1
	surfaceReqDamage  uint32 = 2
	surfaceReqFrame   uint32 = 3
	surfaceReqCommit  uint32 = 6
)

const (
	surfaceEvtEnter uint32 = 0
	surfaceEvtLeave uint32 = 1
)

const (
	MsgSurfaceDestroySince = 1
	MsgSurfaceAttachSince  = 1
	MsgSurfaceDamageSince  = 1
	MsgSurfaceFrameSince   = 1
	MsgSurfaceCommitSince  = 1
	MsgSurfaceEnterSince   = 1
	MsgSurfaceLeaveSince   = 1
)

// surfaceInterface covers the minimal request/event set a transparent
// proxy needs to keep a surface's lifecycle and frame callbacks
// correct (§9 Supplemental 6): the destroy, attach, damage, frame and
// commit requests and the enter/leave events. set_opaque_region,
// set_input_region, set_buffer_transform/scale, damage_buffer and
// offset are not in this table; HandleRequest rejects them with an
// UnknownMessageID error and forwards nothing.
var surfaceInterface = &core.Interface{
	Name:       "wl_surface",
	MaxVersion: 6,
	Requests: []core.MessageSpec{
		{Name: "destroy", Opcode: surfaceReqDestroy, Since: 1, Destructor: true},
		{Name: "attach", Opcode: surfaceReqAttach, Since: 1, Args: []core.ArgSpec{
			{Name: "buffer", Kind: core.ArgNullableObject, WireInterface: "wl_buffer"},
			{Name: "x", Kind: core.ArgInt},
			{Name: "y", Kind: core.ArgInt},
		}},
		{Name: "damage", Opcode: surfaceReqDamage, Since: 1, Args: []core.ArgSpec{
			{Name: "x", Kind: core.ArgInt},
			{Name: "y", Kind: core.ArgInt},
			{Name: "width", Kind: core.ArgInt},
			{Name: "height", Kind: core.ArgInt},
		}},
		{Name: "frame", Opcode: surfaceReqFrame, Since: 1, Args: []core.ArgSpec{
			{Name: "callback", Kind: core.ArgNewID, WireInterface: "wl_callback"},
		}},
		{Name: "commit", Opcode: surfaceReqCommit, Since: 1},
	},
	Events: []core.MessageSpec{
		{Name: "enter", Opcode: surfaceEvtEnter, Since: 1, Args: []core.ArgSpec{
			{Name: "output", Kind: core.ArgObject, WireInterface: "wl_output"},
		}},
		{Name: "leave", Opcode: surfaceEvtLeave, Since: 1, Args: []core.ArgSpec{
			{Name: "output", Kind: core.ArgObject, WireInterface: "wl_output"},
		}},
	},
}

func init() {
	core.RegisterInterface(surfaceInterface, func(st *core.State, version uint32) core.Dispatcher {
		return NewWlSurface(st, version)
	})
}

// SurfaceHandler lets a caller intercept the lifecycle-relevant
// requests; attach/damage/commit and the two output events are
// default-forwarded unless the embedding program needs to inspect or
// redirect them too — a future extension point, not exercised here.
type SurfaceHandler interface {
	HandleDestroy(s *WlSurface)
	HandleFrame(s *WlSurface, callback *WlCallback)
}

type WlSurface struct {
	core *core.Core
}

func NewWlSurface(st *core.State, version uint32) *WlSurface {
	return &WlSurface{core: core.NewCore(st, surfaceInterface, version)}
}

func (s *WlSurface) Core() *core.Core { return s.core }

func (s *WlSurface) HandleRequest(opcode uint32, payload []uint32, fds *wire.FDQueue) *protoerr.Error {
	dec := wire.NewDecoder(payload, fds)
	switch opcode {
	case surfaceReqDestroy:
		if !dec.Done() {
			return protoerr.TrailingBytes()
		}
		return s.core.Handler().Dispatch(func(h any) {
			if sh, ok := h.(SurfaceHandler); ok {
				sh.HandleDestroy(s)
				return
			}
			s.defaultHandleDestroy()
		})
	case surfaceReqAttach:
		buffer, err := dec.Object("buffer")
		if err != nil {
			return err
		}
		x, err := dec.Int32("x")
		if err != nil {
			return err
		}
		y, err := dec.Int32("y")
		if err != nil {
			return err
		}
		if !dec.Done() {
			return protoerr.TrailingBytes()
		}
		// buffer is nullable (wl_surface.attach(NULL) unmaps a surface):
		// id 0 means absent and is forwarded as-is, never looked up.
		var serverBuffer uint32
		if buffer != 0 {
			bufObj, ok := s.core.ClientEndpoint.Lookup(buffer)
			if !ok {
				return protoerr.NoObject(buffer)
			}
			bufCore := bufObj.Core()
			if bufCore.Iface.Name != "wl_buffer" {
				return protoerr.WrongObjectType("buffer", bufCore.Iface.Name, "wl_buffer")
			}
			if bufCore.ServerID == nil {
				return protoerr.ReceiverNoServerID()
			}
			serverBuffer = *bufCore.ServerID
		}
		enc := s.core.State().Server.NewOutgoingEncoder()
		enc.Object(serverBuffer)
		enc.Int32(x)
		enc.Int32(y)
		s.core.ForwardRequestToServer(uint16(surfaceReqAttach), enc)
		return nil
	case surfaceReqDamage:
		x, err := dec.Int32("x")
		if err != nil {
			return err
		}
		y, err := dec.Int32("y")
		if err != nil {
			return err
		}
		w, err := dec.Int32("width")
		if err != nil {
			return err
		}
		h, err := dec.Int32("height")
		if err != nil {
			return err
		}
		if !dec.Done() {
			return protoerr.TrailingBytes()
		}
		enc := s.core.State().Server.NewOutgoingEncoder()
		enc.Int32(x)
		enc.Int32(y)
		enc.Int32(w)
		enc.Int32(h)
		s.core.ForwardRequestToServer(uint16(surfaceReqDamage), enc)
		return nil
	case surfaceReqFrame:
		id, err := dec.NewID("callback")
		if err != nil {
			return err
		}
		if !dec.Done() {
			return protoerr.TrailingBytes()
		}
		callback := NewWlCallback(s.core.State(), s.core.Version)
		callback.core.CreatedByClient = true
		if berr := callback.core.BindClient(s.core.ClientEndpoint, id, callback); berr != nil {
			return berr
		}
		return s.core.Handler().Dispatch(func(h any) {
			if sh, ok := h.(SurfaceHandler); ok {
				sh.HandleFrame(s, callback)
				return
			}
			s.defaultHandleFrame(callback)
		})
	case surfaceReqCommit:
		if !dec.Done() {
			return protoerr.TrailingBytes()
		}
		enc := s.core.State().Server.NewOutgoingEncoder()
		s.core.ForwardRequestToServer(uint16(surfaceReqCommit), enc)
		return nil
	default:
		return protoerr.UnknownMessageID(opcode)
	}
}

// defaultHandleDestroy forwards the destructor to the real compositor
// and tombstones both twins: the client id stays blocked until this
// proxy's own future BindClient sees it freed by the relayed
// delete_id (state.HandleDeleteID), and the server id stays blocked
// until the compositor's ack arrives.
func (s *WlSurface) defaultHandleDestroy() {
	s.core.MarkClientDestroyed()
	if s.core.ServerID != nil {
		enc := s.core.State().Server.NewOutgoingEncoder()
		s.core.ForwardRequestToServer(uint16(surfaceReqDestroy), enc)
		if st := s.core.State(); st != nil && st.Server != nil {
			s.core.MarkServerDestroyed(st.Server)
		}
	}
}

func (s *WlSurface) defaultHandleFrame(callback *WlCallback) {
	st := s.core.State()
	if !s.core.ForwardToServer || st.Server == nil || s.core.ServerID == nil {
		return
	}
	if _, err := callback.core.GenerateServerID(st.Server, callback); err != nil {
		if st.Logger != nil {
			st.Logger.Logf("wl_surface.frame: generate server id: %v", err)
		}
		return
	}
	enc := st.Server.NewOutgoingEncoder()
	enc.NewID(*callback.core.ServerID)
	st.Server.QueueMessage(*s.core.ServerID, uint16(surfaceReqFrame), enc)
}

func (s *WlSurface) HandleEvent(opcode uint32, payload []uint32, fds *wire.FDQueue) *protoerr.Error {
	dec := wire.NewDecoder(payload, fds)
	switch opcode {
	case surfaceEvtEnter, surfaceEvtLeave:
		output, err := dec.Object("output")
		if err != nil {
			return err
		}
		if !dec.Done() {
			return protoerr.TrailingBytes()
		}
		st := s.core.State()
		if st.Server == nil {
			return protoerr.NoObject(output)
		}
		outputObj, ok := st.Server.Lookup(output)
		if !ok {
			return protoerr.NoObject(output)
		}
		outputCore := outputObj.Core()
		if outputCore.Iface.Name != "wl_output" {
			return protoerr.WrongObjectType("output", outputCore.Iface.Name, "wl_output")
		}
		if outputCore.ClientID == nil {
			return protoerr.ReceiverNoClient()
		}
		enc := s.core.ClientEndpoint.NewOutgoingEncoder()
		enc.Object(*outputCore.ClientID)
		s.core.ForwardEventToClient(uint16(opcode), enc)
		return nil
	default:
		return protoerr.UnknownMessageID(opcode)
	}
}
