package wayland

import (
	"github.com/waylab/wlproxy/core"
	"github.com/waylab/wlproxy/protoerr"
	"github.com/waylab/wlproxy/wire"
)

const (
	seatReqGetPointer  uint32 = 0
	seatReqGetKeyboard uint32 = 1
	seatReqGetTouch    uint32 = 2
	seatReqRelease     uint32 = 3
)

const (
	seatEvtCapabilities uint32 = 0
	seatEvtName         uint32 = 1
)

const (
	MsgSeatGetPointerSince  = 1
	MsgSeatGetKeyboardSince = 1
	MsgSeatGetTouchSince    = 1
	MsgSeatReleaseSince     = 5
	MsgSeatCapabilitiesSince = 1
	MsgSeatNameSince        = 2
)

// seatInterface hand-decodes the three input-device factory requests
// (each new_id targets a catalogue-only interface — wl_pointer,
// wl_keyboard, wl_touch — so the returned object is an OpaqueObject)
// plus release and the two informational events. §9 Supplemental 6.
var seatInterface = &core.Interface{
	Name:       "wl_seat",
	MaxVersion: 9,
	Requests: []core.MessageSpec{
		{Name: "get_pointer", Opcode: seatReqGetPointer, Since: 1, Args: []core.ArgSpec{
			{Name: "id", Kind: core.ArgNewID, WireInterface: "wl_pointer"},
		}},
		{Name: "get_keyboard", Opcode: seatReqGetKeyboard, Since: 1, Args: []core.ArgSpec{
			{Name: "id", Kind: core.ArgNewID, WireInterface: "wl_keyboard"},
		}},
		{Name: "get_touch", Opcode: seatReqGetTouch, Since: 1, Args: []core.ArgSpec{
			{Name: "id", Kind: core.ArgNewID, WireInterface: "wl_touch"},
		}},
		{Name: "release", Opcode: seatReqRelease, Since: 5, Destructor: true},
	},
	Events: []core.MessageSpec{
		{Name: "capabilities", Opcode: seatEvtCapabilities, Since: 1, Args: []core.ArgSpec{
			{Name: "capabilities", Kind: core.ArgUint},
		}},
		{Name: "name", Opcode: seatEvtName, Since: 2, Args: []core.ArgSpec{
			{Name: "name", Kind: core.ArgString},
		}},
	},
}

func init() {
	core.RegisterInterface(seatInterface, func(st *core.State, version uint32) core.Dispatcher {
		return NewWlSeat(st, version)
	})
}

// SeatHandler lets a caller observe which input device factory a
// client invoked; the bound object itself is always opaque (wl_seat's
// children aren't hand-authored), so there is nothing further to
// intercept on them.
type SeatHandler interface {
	HandleGetDevice(s *WlSeat, ifaceName string, bound core.Dispatcher)
}

type WlSeat struct {
	core *core.Core
}

func NewWlSeat(st *core.State, version uint32) *WlSeat {
	return &WlSeat{core: core.NewCore(st, seatInterface, version)}
}

func (s *WlSeat) Core() *core.Core { return s.core }

func (s *WlSeat) HandleRequest(opcode uint32, payload []uint32, fds *wire.FDQueue) *protoerr.Error {
	dec := wire.NewDecoder(payload, fds)
	switch opcode {
	case seatReqGetPointer:
		return s.bindDevice(dec, "wl_pointer", seatReqGetPointer)
	case seatReqGetKeyboard:
		return s.bindDevice(dec, "wl_keyboard", seatReqGetKeyboard)
	case seatReqGetTouch:
		return s.bindDevice(dec, "wl_touch", seatReqGetTouch)
	case seatReqRelease:
		if !dec.Done() {
			return protoerr.TrailingBytes()
		}
		s.core.MarkClientDestroyed()
		if s.core.ServerID != nil {
			enc := s.core.State().Server.NewOutgoingEncoder()
			s.core.ForwardRequestToServer(uint16(seatReqRelease), enc)
			if st := s.core.State(); st != nil && st.Server != nil {
				s.core.MarkServerDestroyed(st.Server)
			}
		}
		return nil
	default:
		return protoerr.UnknownMessageID(opcode)
	}
}

func (s *WlSeat) bindDevice(dec *wire.Decoder, ifaceName string, opcode uint32) *protoerr.Error {
	id, err := dec.NewID("id")
	if err != nil {
		return err
	}
	if !dec.Done() {
		return protoerr.TrailingBytes()
	}
	dev := core.NewOpaqueObject(s.core.State(), ifaceName, s.core.Version)
	dev.Core().CreatedByClient = true
	if berr := dev.Core().BindClient(s.core.ClientEndpoint, id, dev); berr != nil {
		return berr
	}
	return s.core.Handler().Dispatch(func(h any) {
		if sh, ok := h.(SeatHandler); ok {
			sh.HandleGetDevice(s, ifaceName, dev)
			return
		}
		s.forwardGetDevice(dev, opcode)
	})
}

func (s *WlSeat) forwardGetDevice(dev *core.OpaqueObject, opcode uint32) {
	st := s.core.State()
	if !s.core.ForwardToServer || st.Server == nil || s.core.ServerID == nil {
		return
	}
	devCore := dev.Core()
	if _, err := devCore.GenerateServerID(st.Server, dev); err != nil {
		if st.Logger != nil {
			st.Logger.Logf("wl_seat get device: generate server id: %v", err)
		}
		return
	}
	enc := st.Server.NewOutgoingEncoder()
	enc.NewID(*devCore.ServerID)
	st.Server.QueueMessage(*s.core.ServerID, uint16(opcode), enc)
}

func (s *WlSeat) HandleEvent(opcode uint32, payload []uint32, fds *wire.FDQueue) *protoerr.Error {
	dec := wire.NewDecoder(payload, fds)
	switch opcode {
	case seatEvtCapabilities:
		caps, err := dec.Uint32("capabilities")
		if err != nil {
			return err
		}
		if !dec.Done() {
			return protoerr.TrailingBytes()
		}
		enc := s.core.ClientEndpoint.NewOutgoingEncoder()
		enc.Uint32(caps)
		s.core.ForwardEventToClient(uint16(seatEvtCapabilities), enc)
		return nil
	case seatEvtName:
		name, err := dec.String("name")
		if err != nil {
			return err
		}
		if !dec.Done() {
			return protoerr.TrailingBytes()
		}
		enc := s.core.ClientEndpoint.NewOutgoingEncoder()
		enc.String(name)
		s.core.ForwardEventToClient(uint16(seatEvtName), enc)
		return nil
	default:
		return protoerr.UnknownMessageID(opcode)
	}
}
