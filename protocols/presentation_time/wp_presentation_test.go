package presentation_time

import (
	"testing"
	"time"

	"github.com/waylab/wlproxy/core"
	"github.com/waylab/wlproxy/protocols/wayland"
	"github.com/waylab/wlproxy/protoerr"
	"github.com/waylab/wlproxy/transport"
	"github.com/waylab/wlproxy/wire"
)

func newConnPair(t *testing.T) (a, b *transport.Conn) {
	t.Helper()
	path := t.TempDir() + "/sock"
	ln, err := transport.Listen(path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan *transport.Conn, 1)
	acceptErr := make(chan error, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			acceptErr <- err
			return
		}
		accepted <- c
	}()

	client, err := transport.Dial(path)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	select {
	case server := <-accepted:
		return server, client
	case err := <-acceptErr:
		t.Fatalf("accept: %v", err)
	}
	return nil, nil
}

func recvMessage(t *testing.T, peer *transport.Conn) (objectID uint32, opcode uint16, payload []uint32) {
	t.Helper()
	buf := make([]byte, 4096)
	var n int
	var err error
	for i := 0; i < 200; i++ {
		n, _, err = peer.Recv(buf)
		if err == nil && n > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if err != nil || n == 0 {
		t.Fatalf("recv: n=%d err=%v", n, err)
	}
	objectID, opcode, size, herr := wire.DecodeHeader(buf[:n])
	if herr != nil {
		t.Fatalf("decode header: %v", herr)
	}
	body := buf[8:size]
	words := make([]uint32, len(body)/4)
	for i := range words {
		words[i] = uint32(body[4*i]) | uint32(body[4*i+1])<<8 | uint32(body[4*i+2])<<16 | uint32(body[4*i+3])<<24
	}
	return objectID, opcode, words
}

// newPresentationSession wires a bound wl_surface alongside the
// wp_presentation object under test, since feedback's first argument
// must resolve through the client endpoint's own id map (§4.4).
func newPresentationSession(t *testing.T) (st *core.State, p *WpPresentation, surface *wayland.WlSurface, peer *transport.Conn) {
	t.Helper()
	st = core.NewState(core.Config{})
	srvConn, cliConn := newConnPair(t)
	serverEP := st.NewServerEndpoint(srvConn)
	clientEP := st.NewClientEndpoint(nil)

	surface = wayland.NewWlSurface(st, 1)
	surface.Core().CreatedByClient = true
	if err := surface.Core().BindClient(clientEP, 3, surface); err != nil {
		t.Fatalf("bind surface client: %v", err)
	}
	if _, err := surface.Core().GenerateServerID(serverEP, surface); err != nil {
		t.Fatalf("generate surface server id: %v", err)
	}

	p = NewWpPresentation(st, 1)
	p.core.CreatedByClient = true
	if err := p.core.BindClient(clientEP, 5, p); err != nil {
		t.Fatalf("bind presentation client: %v", err)
	}
	if _, err := p.core.GenerateServerID(serverEP, p); err != nil {
		t.Fatalf("generate presentation server id: %v", err)
	}
	return st, p, surface, cliConn
}

func TestPresentationFeedbackForwardsSurfaceAndMintsCallback(t *testing.T) {
	st, p, surface, peer := newPresentationSession(t)

	if err := p.HandleRequest(presentationReqFeedback, []uint32{3, 99}, nil); err != nil {
		t.Fatalf("handle feedback: %v", err)
	}
	if err := st.FlushAll(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	cb, ok := p.core.ClientEndpoint.Lookup(99)
	if !ok {
		t.Fatal("expected feedback callback bound at client id 99")
	}
	if cb.Core().Iface.Name != "wp_presentation_feedback" {
		t.Fatalf("expected wp_presentation_feedback, got %s", cb.Core().Iface.Name)
	}

	objID, opcode, payload := recvMessage(t, peer)
	if objID != *p.core.ServerID || opcode != uint16(presentationReqFeedback) {
		t.Fatalf("got object %d opcode %d, want presentation.feedback", objID, opcode)
	}
	if len(payload) != 2 {
		t.Fatalf("expected (surface, callback) args, got %v", payload)
	}
	if payload[0] != *surface.Core().ServerID {
		t.Fatalf("expected surface arg translated to its server id %d, got %d", *surface.Core().ServerID, payload[0])
	}
	if payload[1] == 0 {
		t.Fatal("expected a minted server callback id")
	}
}

func TestPresentationFeedbackUnknownSurfaceIsRejected(t *testing.T) {
	_, p, _, _ := newPresentationSession(t)

	err := p.HandleRequest(presentationReqFeedback, []uint32{404, 99}, nil)
	if !protoerr.Is(err, protoerr.KindNoObject) {
		t.Fatalf("expected NoObject for a feedback request against an unbound surface id, got %v", err)
	}
}

func TestPresentationFeedbackWrongObjectTypeIsRejected(t *testing.T) {
	st, p, _, _ := newPresentationSession(t)

	notASurface := core.NewOpaqueObject(st, "wl_seat", 1)
	notASurface.Core().CreatedByClient = true
	if err := notASurface.Core().BindClient(p.core.ClientEndpoint, 40, notASurface); err != nil {
		t.Fatalf("bind: %v", err)
	}

	err := p.HandleRequest(presentationReqFeedback, []uint32{40, 99}, nil)
	if !protoerr.Is(err, protoerr.KindWrongObjectType) {
		t.Fatalf("expected WrongObjectType for a wl_seat id passed as surface, got %v", err)
	}
}
