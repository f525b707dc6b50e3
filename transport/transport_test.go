package transport

import (
	"testing"
	"time"
)

func dialPair(t *testing.T) (server, client *Conn, ln *Listener) {
	t.Helper()
	path := t.TempDir() + "/sock"
	ln, err := Listen(path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	accepted := make(chan *Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		accepted <- c
	}()

	client, err = Dial(path)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	server = <-accepted
	return server, client, ln
}

func TestRecvWithoutDataReturnsErrWouldBlock(t *testing.T) {
	server, client, ln := dialPair(t)
	defer ln.Close()
	defer server.Close()
	defer client.Close()

	buf := make([]byte, 16)
	_, _, err := server.Recv(buf)
	if err != ErrWouldBlock {
		t.Fatalf("expected ErrWouldBlock on an idle non-blocking socket, got %v", err)
	}
}

func TestSendRecvRoundTrip(t *testing.T) {
	server, client, ln := dialPair(t)
	defer ln.Close()
	defer server.Close()
	defer client.Close()

	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if err := client.Send(payload, nil); err != nil {
		t.Fatalf("send: %v", err)
	}

	buf := make([]byte, 64)
	var n int
	var err error
	for i := 0; i < 200; i++ {
		n, _, err = server.Recv(buf)
		if err == nil && n > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if string(buf[:n]) != string(payload) {
		t.Fatalf("got %v, want %v", buf[:n], payload)
	}
}

func TestPollAllReportsListenerReadyOnPendingAccept(t *testing.T) {
	path := t.TempDir() + "/sock"
	ln, err := Listen(path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	dialDone := make(chan struct{})
	go func() {
		c, err := Dial(path)
		if err == nil {
			c.Close()
		}
		close(dialDone)
	}()

	listenerReady, readyConns, err := PollAll(ln, nil, 2000)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if !listenerReady {
		t.Fatal("expected listener to report ready once a peer dials in")
	}
	if len(readyConns) != 0 {
		t.Fatalf("expected no ready data conns, got %d", len(readyConns))
	}
	<-dialDone
}

func TestPollAllReportsDataReady(t *testing.T) {
	server, client, ln := dialPair(t)
	defer ln.Close()
	defer server.Close()
	defer client.Close()

	if err := client.Send([]byte{9, 9, 9, 9}, nil); err != nil {
		t.Fatalf("send: %v", err)
	}

	listenerReady, ready, err := PollAll(nil, []*Conn{server, client}, 2000)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if listenerReady {
		t.Fatal("expected no listener readiness when l is nil")
	}
	if len(ready) != 1 || ready[0] != server {
		t.Fatalf("expected only server conn to be ready, got %v", ready)
	}
}

func TestPollAllTimesOutWithNoActivity(t *testing.T) {
	server, client, ln := dialPair(t)
	defer ln.Close()
	defer server.Close()
	defer client.Close()

	listenerReady, ready, err := PollAll(nil, []*Conn{server, client}, 50)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if listenerReady || len(ready) != 0 {
		t.Fatalf("expected a quiet timeout, got listenerReady=%v ready=%v", listenerReady, ready)
	}
}
