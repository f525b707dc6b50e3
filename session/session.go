// Package session bootstraps the one piece of bookkeeping spec.md
// leaves to "whatever drives the State" (§2: "out of scope... concrete
// transport setup"): binding wl_display at its fixed id 1 on the
// upstream endpoint and on every accepted client endpoint, the step
// that has to happen before any other object can exist at all. It is
// the seam between core (which knows nothing about protocols/wayland)
// and cmd/wlproxyd (which wires the two together).
package session

import (
	"fmt"

	"github.com/waylab/wlproxy/core"
	"github.com/waylab/wlproxy/protocols/wayland"
	"github.com/waylab/wlproxy/transport"
)

// displayObjectID is the one id the Wayland wire protocol fixes by
// convention rather than negotiation: wl_display is always id 1, on
// every endpoint, client or server.
const displayObjectID uint32 = 1

// Session owns the process-wide core.State plus the one upstream
// wl_display every client's own wl_display forwards through. Unlike
// every other Object, that upstream wl_display is shared: one real
// compositor connection backs however many proxied clients are
// attached, so its server id is handed out by pointer rather than
// minted per client via Core.BindServer.
type Session struct {
	State        *core.State
	upstreamDisp *wayland.WlDisplay
}

// New builds a Session around a fresh core.State.
func New(cfg core.Config, logger core.Logger, metrics core.Metrics) *Session {
	st := core.NewState(cfg)
	st.Logger = logger
	st.Metrics = metrics
	return &Session{State: st}
}

// ConnectUpstream wraps conn as the State's single server endpoint and
// binds the upstream wl_display at id 1, the anchor every client's own
// wl_display forwards sync/get_registry through.
func (s *Session) ConnectUpstream(conn *transport.Conn, version uint32) error {
	ep := s.State.NewServerEndpoint(conn)
	disp := wayland.NewWlDisplay(s.State, version)
	if err := disp.Core().BindServer(ep, displayObjectID, disp); err != nil {
		return fmt.Errorf("session: bind upstream wl_display: %w", err)
	}
	s.upstreamDisp = disp
	return nil
}

// AcceptClient wraps conn as a new client endpoint and binds that
// client's own wl_display at id 1. Its ServerID is pointed directly at
// the shared upstream display's id rather than minted, since id 1 on
// the server endpoint is already occupied by ConnectUpstream's bind —
// every client's display is a distinct Go object forwarding to the
// same upstream object.
func (s *Session) AcceptClient(conn *transport.Conn, version uint32) (*core.Endpoint, error) {
	if s.upstreamDisp == nil || s.State.Server == nil {
		return nil, fmt.Errorf("session: accept client before upstream connected")
	}
	ep := s.State.NewClientEndpoint(conn)
	disp := wayland.NewWlDisplay(s.State, version)
	if err := disp.Core().BindClient(ep, displayObjectID, disp); err != nil {
		return nil, fmt.Errorf("session: bind client wl_display: %w", err)
	}
	serverID := *s.upstreamDisp.Core().ServerID
	disp.Core().ServerID = &serverID
	return ep, nil
}
