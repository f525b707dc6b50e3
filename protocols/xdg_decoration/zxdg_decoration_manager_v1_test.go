package xdg_decoration

import (
	"testing"

	"github.com/waylab/wlproxy/core"
	"github.com/waylab/wlproxy/protoerr"
	"github.com/waylab/wlproxy/transport"
)

// newManagerSession wires an opaque xdg_toplevel stand-in alongside
// the manager under test, since get_toplevel_decoration's toplevel
// argument must resolve through the client endpoint's id map exactly
// like any other object-typed request argument (§4.4).
func newManagerSession(t *testing.T) (st *core.State, mgr *ZxdgDecorationManagerV1, toplevelClientID uint32, peer *transport.Conn) {
	t.Helper()
	st = core.NewState(core.Config{})
	srvConn, cliConn := newConnPair(t)
	serverEP := st.NewServerEndpoint(srvConn)
	clientEP := st.NewClientEndpoint(nil)

	toplevel := core.NewOpaqueObject(st, "xdg_toplevel", 1)
	toplevel.Core().CreatedByClient = true
	toplevelClientID = 6
	if err := toplevel.Core().BindClient(clientEP, toplevelClientID, toplevel); err != nil {
		t.Fatalf("bind toplevel client: %v", err)
	}
	if _, err := toplevel.Core().GenerateServerID(serverEP, toplevel); err != nil {
		t.Fatalf("generate toplevel server id: %v", err)
	}

	mgr = NewZxdgDecorationManagerV1(st, 1)
	mgr.core.CreatedByClient = true
	if err := mgr.core.BindClient(clientEP, 8, mgr); err != nil {
		t.Fatalf("bind manager client: %v", err)
	}
	if _, err := mgr.core.GenerateServerID(serverEP, mgr); err != nil {
		t.Fatalf("generate manager server id: %v", err)
	}
	return st, mgr, toplevelClientID, cliConn
}

func TestManagerGetToplevelDecorationBindsAndForwards(t *testing.T) {
	st, mgr, toplevelClientID, peer := newManagerSession(t)

	if err := mgr.HandleRequest(managerReqGetToplevelDecoration, []uint32{55, toplevelClientID}, nil); err != nil {
		t.Fatalf("handle get_toplevel_decoration: %v", err)
	}
	if err := st.FlushAll(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	dec, ok := mgr.core.ClientEndpoint.Lookup(55)
	if !ok {
		t.Fatal("expected decoration bound at client id 55")
	}
	if _, ok := dec.(*ZxdgToplevelDecorationV1); !ok {
		t.Fatalf("expected *ZxdgToplevelDecorationV1, got %T", dec)
	}

	toplevel, _ := mgr.core.ClientEndpoint.Lookup(toplevelClientID)
	objID, opcode, payload := recvMessage(t, peer)
	if objID != *mgr.core.ServerID || opcode != uint16(managerReqGetToplevelDecoration) {
		t.Fatalf("got object %d opcode %d, want get_toplevel_decoration", objID, opcode)
	}
	if len(payload) != 2 {
		t.Fatalf("expected (id, toplevel) args, got %v", payload)
	}
	if payload[0] == 0 {
		t.Fatal("expected a minted server decoration id")
	}
	if payload[1] != *toplevel.Core().ServerID {
		t.Fatalf("expected toplevel arg translated to its server id %d, got %d", *toplevel.Core().ServerID, payload[1])
	}
}

func TestManagerGetToplevelDecorationUnknownToplevelIsRejected(t *testing.T) {
	_, mgr, _, _ := newManagerSession(t)

	err := mgr.HandleRequest(managerReqGetToplevelDecoration, []uint32{55, 404}, nil)
	if !protoerr.Is(err, protoerr.KindNoObject) {
		t.Fatalf("expected NoObject for a decoration request against an unbound toplevel id, got %v", err)
	}
}

func TestManagerGetToplevelDecorationWrongObjectTypeIsRejected(t *testing.T) {
	st, mgr, _, _ := newManagerSession(t)

	notAToplevel := core.NewOpaqueObject(st, "wl_seat", 1)
	notAToplevel.Core().CreatedByClient = true
	if err := notAToplevel.Core().BindClient(mgr.core.ClientEndpoint, 61, notAToplevel); err != nil {
		t.Fatalf("bind: %v", err)
	}

	err := mgr.HandleRequest(managerReqGetToplevelDecoration, []uint32{55, 61}, nil)
	if !protoerr.Is(err, protoerr.KindWrongObjectType) {
		t.Fatalf("expected WrongObjectType for a wl_seat id passed as toplevel, got %v", err)
	}
}

func TestManagerDestroyMarksClientDestroyed(t *testing.T) {
	st, mgr, _, peer := newManagerSession(t)

	if err := mgr.HandleRequest(managerReqDestroy, nil, nil); err != nil {
		t.Fatalf("handle destroy: %v", err)
	}
	if err := st.FlushAll(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if !mgr.core.ClientDestroyed {
		t.Fatal("expected destroy to mark client destroyed")
	}

	_, opcode, _ := recvMessage(t, peer)
	if opcode != uint16(managerReqDestroy) {
		t.Fatalf("got opcode %d, want destroy (%d)", opcode, managerReqDestroy)
	}
}
