package core

import (
	"testing"

	"github.com/waylab/wlproxy/protoerr"
)

// decodeQueued pulls the single message buffered on ep.outgoing,
// using a throwaway Endpoint so NextMessage's framing logic can be
// reused without touching a real socket.
func decodeQueued(t *testing.T, ep *Endpoint) (objID uint32, opcode uint16, payload []uint32) {
	t.Helper()
	tmp := newEndpoint(nil, nil, 0)
	tmp.incoming = append(tmp.incoming, ep.outgoing...)
	objID, opcode, payload, ok, err := tmp.NextMessage()
	if err != nil {
		t.Fatalf("decode queued message: %v", err)
	}
	if !ok {
		t.Fatalf("expected a fully buffered message on %v", ep.outgoing)
	}
	return objID, opcode, payload
}

func TestHandleDeleteIDRelaysToOriginatingClient(t *testing.T) {
	st := NewState(Config{})
	serverEP := st.NewServerEndpoint(nil)
	clientEP := st.NewClientEndpoint(nil)

	c := NewCore(st, testInterface(), 1)
	c.CreatedByClient = true
	obj := &recordingDispatcher{core: c}

	if err := c.BindClient(clientEP, 5, obj); err != nil {
		t.Fatalf("bind client: %v", err)
	}
	serverID, err := c.GenerateServerID(serverEP, obj)
	if err != nil {
		t.Fatalf("generate server id: %v", err)
	}

	// Compositor's destructor roundtrip: tombstone, then the ack.
	c.MarkServerDestroyed(serverEP)
	st.HandleDeleteID(serverID)

	if c.ServerID != nil {
		t.Fatal("expected ServerID cleared after delete_id ack")
	}
	if _, ok := serverEP.LookupAny(serverID); ok {
		t.Fatal("expected server id slot forgotten, not merely tombstoned")
	}

	objID, opcode, payload := decodeQueued(t, clientEP)
	if objID != wlDisplayObjectID || opcode != wlDisplayEventDeleteID {
		t.Fatalf("got object %d opcode %d, want wl_display.delete_id", objID, opcode)
	}
	if len(payload) != 1 || payload[0] != 5 {
		t.Fatalf("expected delete_id(5) translated to the client's own id, got %v", payload)
	}
}

func TestHandleDeleteIDUnknownIDIsIgnored(t *testing.T) {
	st := NewState(Config{})
	st.NewServerEndpoint(nil)

	// Must not panic on an id nothing was ever installed at.
	st.HandleDeleteID(999)
}

func TestHandleServerErrorReplaysByDefault(t *testing.T) {
	st := NewState(Config{ReplayServerErrors: true})
	serverEP := st.NewServerEndpoint(nil)
	clientEP := st.NewClientEndpoint(nil)

	c := NewCore(st, testInterface(), 1)
	obj := &recordingDispatcher{core: c}
	if err := c.BindClient(clientEP, 9, obj); err != nil {
		t.Fatalf("bind client: %v", err)
	}
	if err := c.BindServer(serverEP, 0xff000001, obj); err != nil {
		t.Fatalf("bind server: %v", err)
	}

	// The compositor has already decided to terminate (§7, §9): even
	// on the successful-replay path, the server endpoint must still
	// close. HandleServerError signals that by always returning the
	// fatal error — the replay is queued as a side effect, not an
	// alternative to closing.
	perr := st.HandleServerError(0xff000001, 3, "boom")
	if !protoerr.Is(perr, protoerr.KindServerError) {
		t.Fatalf("expected a fatal ServerError even after a successful replay, got %v", perr)
	}

	objID, opcode, payload := decodeQueued(t, clientEP)
	if objID != wlDisplayObjectID || opcode != wlDisplayEventError {
		t.Fatalf("got object %d opcode %d, want wl_display.error", objID, opcode)
	}
	if len(payload) < 2 || payload[0] != 9 || payload[1] != 3 {
		t.Fatalf("expected (object=9, code=3, ...), got %v", payload)
	}
}

func TestHandleServerErrorTerminatesWhenReplayDisabled(t *testing.T) {
	st := NewState(Config{ReplayServerErrors: false})
	st.NewServerEndpoint(nil)

	perr := st.HandleServerError(42, 1, "fatal")
	if !protoerr.Is(perr, protoerr.KindServerError) {
		t.Fatalf("expected a fatal ServerError, got %v", perr)
	}
}
