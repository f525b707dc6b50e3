package core

import (
	"testing"

	"github.com/waylab/wlproxy/wire"
)

func TestNextMessageWaitsForFullBuffer(t *testing.T) {
	ep := newEndpoint(nil, nil, 1)

	hdr := make([]byte, 8)
	wire.EncodeHeader(hdr, 7, 2, 12)
	ep.incoming = append(ep.incoming, hdr...)
	ep.incoming = append(ep.incoming, []byte{1, 2, 3}...) // short by one word

	_, _, _, ok, err := ep.NextMessage()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected NextMessage to wait for the rest of the payload")
	}

	ep.incoming = append(ep.incoming, 4) // completes the missing word
	objID, opcode, payload, ok, err := ep.NextMessage()
	if err != nil || !ok {
		t.Fatalf("expected a complete message, got ok=%v err=%v", ok, err)
	}
	if objID != 7 || opcode != 2 {
		t.Fatalf("got (%d,%d)", objID, opcode)
	}
	if len(payload) != 1 || payload[0] != 0x04030201 {
		t.Fatalf("got payload %v", payload)
	}
	if len(ep.incoming) != 0 {
		t.Fatalf("expected incoming buffer drained, %d bytes remain", len(ep.incoming))
	}
}

func TestQueueMessageSchedulesFlush(t *testing.T) {
	st := NewState(Config{})
	ep := newEndpoint(st, nil, 1)

	enc := ep.NewOutgoingEncoder()
	enc.Uint32(42)
	ep.QueueMessage(1, 1, enc)

	if !ep.flushQueued {
		t.Fatal("expected QueueMessage to mark the endpoint flush-pending")
	}
	if len(st.flushQueue) != 1 || st.flushQueue[0] != ep {
		t.Fatalf("expected endpoint registered on state's flush queue, got %v", st.flushQueue)
	}
	if len(ep.outgoing) != 12 { // 8-byte header + 1 payload word
		t.Fatalf("expected 12 buffered bytes, got %d", len(ep.outgoing))
	}
}
