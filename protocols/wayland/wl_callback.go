package wayland

import (
	"github.com/waylab/wlproxy/core"
	"github.com/waylab/wlproxy/protoerr"
	"github.com/waylab/wlproxy/wire"
)

const callbackEvtDone uint32 = 0

const MsgCallbackDoneSince = 1

var callbackInterface = &core.Interface{
	Name:       "wl_callback",
	MaxVersion: 1,
	Events: []core.MessageSpec{
		{Name: "done", Opcode: callbackEvtDone, Since: 1, Args: []core.ArgSpec{
			{Name: "callback_data", Kind: core.ArgUint},
		}},
	},
}

func init() {
	core.RegisterInterface(callbackInterface, func(st *core.State, version uint32) core.Dispatcher {
		return NewWlCallback(st, version)
	})
}

// CallbackHandler lets a caller take over the one-shot done event: an
// installed handler implementing it runs in place of the default
// handling, so the event is not forwarded on to the client.
type CallbackHandler interface {
	HandleDone(c *WlCallback, callbackData uint32)
}

// WlCallback has no requests: it exists purely to carry the one
// "done" event a sync roundtrip (or any request documented to use
// one) fires exactly once, after which the compositor destroys it
// implicitly — no client-sent destructor ever arrives for it.
type WlCallback struct {
	core *core.Core
}

func NewWlCallback(st *core.State, version uint32) *WlCallback {
	return &WlCallback{core: core.NewCore(st, callbackInterface, version)}
}

func (c *WlCallback) Core() *core.Core { return c.core }

func (c *WlCallback) HandleRequest(opcode uint32, payload []uint32, fds *wire.FDQueue) *protoerr.Error {
	return protoerr.UnknownMessageID(opcode)
}

func (c *WlCallback) HandleEvent(opcode uint32, payload []uint32, fds *wire.FDQueue) *protoerr.Error {
	dec := wire.NewDecoder(payload, fds)
	switch opcode {
	case callbackEvtDone:
		data, err := dec.Uint32("callback_data")
		if err != nil {
			return err
		}
		if !dec.Done() {
			return protoerr.TrailingBytes()
		}
		return c.core.Handler().Dispatch(func(h any) {
			if ch, ok := h.(CallbackHandler); ok {
				ch.HandleDone(c, data)
				return
			}
			c.defaultHandleDone(data)
		})
	default:
		return protoerr.UnknownMessageID(opcode)
	}
}

func (c *WlCallback) defaultHandleDone(data uint32) {
	if c.core.ForwardToClient && c.core.ClientEndpoint != nil && c.core.ClientID != nil {
		enc := c.core.ClientEndpoint.NewOutgoingEncoder()
		enc.Uint32(data)
		c.core.ClientEndpoint.QueueMessage(*c.core.ClientID, uint16(callbackEvtDone), enc)
	}
	// The compositor considers the callback gone the moment done
	// fires; mark this side destroyed so a stray follow-up delete_id
	// (or a misbehaving compositor resending done) tombstones cleanly
	// instead of racing a live dispatch.
	if st := c.core.State(); st != nil && st.Server != nil {
		c.core.MarkServerDestroyed(st.Server)
	}
}
