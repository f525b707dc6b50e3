package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// newTestSink builds a Sink around an in-memory writer at trace
// level, bypassing New's os.Stdout — the formatting this package
// owns is independent of where zerolog ultimately writes.
func newTestSink(buf *bytes.Buffer, prefix string) *Sink {
	l := zerolog.New(buf).Level(zerolog.TraceLevel)
	return &Sink{log: l, prefix: prefix}
}

func TestParseLevelKnownNames(t *testing.T) {
	cases := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		"debug":   zerolog.DebugLevel,
		"info":    zerolog.InfoLevel,
		"warn":    zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"fatal":   zerolog.FatalLevel,
		"panic":   zerolog.PanicLevel,
		"":        zerolog.InfoLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for name, want := range cases {
		if got := parseLevel(name); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestTraceEmitsWireFormatLine(t *testing.T) {
	var buf bytes.Buffer
	s := newTestSink(&buf, "client_1 ")

	s.Trace("client_1", DirClientToServer, "wl_surface", 3, "frame", "callback=42")

	out := buf.String()
	if !strings.Contains(out, "client_1") {
		t.Fatalf("expected output to contain endpoint label, got %q", out)
	}
	if !strings.Contains(out, string(DirClientToServer)) {
		t.Fatalf("expected output to contain direction arrow, got %q", out)
	}
	if !strings.Contains(out, "wl_surface#3.frame(callback=42)") {
		t.Fatalf("expected output to contain formatted message, got %q", out)
	}
}

func TestTraceSilentBelowTraceLevel(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf).Level(zerolog.DebugLevel)
	s := &Sink{log: l, prefix: ""}

	s.Trace("client_1", DirServerToClient, "wl_surface", 3, "enter", "")

	if buf.Len() != 0 {
		t.Fatalf("expected no output below trace level, got %q", buf.String())
	}
}

func TestLogfEmitsMessage(t *testing.T) {
	var buf bytes.Buffer
	s := newTestSink(&buf, "")

	s.Logf("client %d disconnected: %v", 7, "EOF")

	if !strings.Contains(buf.String(), "client 7 disconnected: EOF") {
		t.Fatalf("expected formatted message, got %q", buf.String())
	}
}

func TestWithPrefixSharesLoggerDifferentPrefix(t *testing.T) {
	var buf bytes.Buffer
	s := newTestSink(&buf, "a ")
	child := s.WithPrefix("b ")

	if child.prefix != "b " {
		t.Fatalf("expected child prefix %q, got %q", "b ", child.prefix)
	}

	child.Trace("ep", DirClientToServer, "wl_seat", 1, "get_pointer", "")
	if buf.Len() == 0 {
		t.Fatal("expected child sink to write through the shared logger")
	}
}
