package wayland

import (
	"testing"

	"github.com/waylab/wlproxy/core"
	"github.com/waylab/wlproxy/transport"
)

func newSeatSession(t *testing.T) (st *core.State, seat *WlSeat, peer *transport.Conn) {
	t.Helper()
	st = core.NewState(core.Config{})
	srvConn, cliConn := newConnPair(t)
	serverEP := st.NewServerEndpoint(srvConn)
	clientEP := st.NewClientEndpoint(nil)

	seat = NewWlSeat(st, 1)
	seat.core.CreatedByClient = true
	if err := seat.core.BindClient(clientEP, 4, seat); err != nil {
		t.Fatalf("bind client: %v", err)
	}
	if _, err := seat.core.GenerateServerID(serverEP, seat); err != nil {
		t.Fatalf("generate server id: %v", err)
	}
	return st, seat, cliConn
}

func TestSeatGetPointerBindsOpaqueDeviceAndForwards(t *testing.T) {
	st, seat, peer := newSeatSession(t)

	if err := seat.HandleRequest(seatReqGetPointer, []uint32{7}, nil); err != nil {
		t.Fatalf("handle get_pointer: %v", err)
	}
	if err := st.FlushAll(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	dev, ok := seat.core.ClientEndpoint.Lookup(7)
	if !ok {
		t.Fatal("expected a device bound at client id 7")
	}
	if dev.Core().Iface.Name != "wl_pointer" {
		t.Fatalf("expected wl_pointer, got %s", dev.Core().Iface.Name)
	}

	objID, opcode, payload := recvMessage(t, peer)
	if objID != *seat.core.ServerID || opcode != uint16(seatReqGetPointer) {
		t.Fatalf("got object %d opcode %d, want seat.get_pointer", objID, opcode)
	}
	if len(payload) != 1 || payload[0] == 0 {
		t.Fatalf("expected a minted server device id, got %v", payload)
	}
}

func TestSeatReleaseIsDestructorAndForwards(t *testing.T) {
	st, seat, peer := newSeatSession(t)

	if err := seat.HandleRequest(seatReqRelease, nil, nil); err != nil {
		t.Fatalf("handle release: %v", err)
	}
	if err := st.FlushAll(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if !seat.core.ClientDestroyed {
		t.Fatal("expected release to mark client destroyed")
	}

	_, opcode, _ := recvMessage(t, peer)
	if opcode != uint16(seatReqRelease) {
		t.Fatalf("got opcode %d, want release (%d)", opcode, seatReqRelease)
	}
}
