// Package transport owns the one piece of this engine that is
// genuinely platform-specific: moving bytes and file descriptors
// across a Unix domain socket via SCM_RIGHTS. It is the only package
// allowed to import golang.org/x/sys/unix.
package transport

import (
	"errors"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock signals that a non-blocking read found nothing
// waiting. Callers treat it the same way Conn's examples treat
// EAGAIN: not an error, just "nothing to do this tick".
var ErrWouldBlock = errors.New("transport: would block")

// maxOOB is sized for up to 28 fds in a single control message
// (16-byte cmsghdr + 28*4 bytes of rights), rounded up generously —
// wl_keyboard.keymap is the only core message that ever ships an fd,
// and never more than one per message, but a compositor-facing proxy
// has no business assuming that holds for every extension.
const maxOOB = 512

// Conn wraps one end of a Unix domain socket carrying the Wayland
// wire protocol: plain bytes on the wire, with out-of-band file
// descriptors riding alongside specific messages via SCM_RIGHTS.
type Conn struct {
	file *fileHandle
}

// fileHandle is the raw fd plus whatever keeps it alive (a
// *net.UnixConn's backing *os.File has its own finalizer semantics,
// so we hold it explicitly rather than re-deriving it per call).
type fileHandle struct {
	fd int
	nc *net.UnixConn
	f  netFile
}

type netFile interface {
	Fd() uintptr
	Close() error
}

// Dial connects to a listening Unix socket at path (the role a proxy
// plays toward the real compositor).
func Dial(path string) (*Conn, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", path, err)
	}
	return wrap(conn)
}

// Listener accepts client connections on a Unix socket the proxy
// itself listens on (the role a proxy plays toward Wayland clients).
type Listener struct {
	ln *net.UnixListener
	f  netFile
	fd int
}

func Listen(path string) (*Listener, error) {
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", path, err)
	}
	uln, ok := ln.(*net.UnixListener)
	if !ok {
		ln.Close()
		return nil, fmt.Errorf("transport: listen %s: not a unix listener", path)
	}
	f, err := uln.File()
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("transport: listener fd: %w", err)
	}
	return &Listener{ln: uln, f: f, fd: int(f.Fd())}, nil
}

func (l *Listener) Accept() (*Conn, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return wrap(conn)
}

func (l *Listener) Close() error {
	l.f.Close()
	return l.ln.Close()
}

// Fd exposes the listening socket's descriptor so the caller can fold
// accept-readiness into the same Poll call as the data connections.
func (l *Listener) Fd() int { return l.fd }

func wrap(conn net.Conn) (*Conn, error) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("transport: expected unix socket, got %T", conn)
	}
	// File() hands back a dup'd fd in blocking mode (and knocks the
	// original out of the runtime poller) — the cooperative single-task
	// loop in core.State needs every endpoint's fd non-blocking so one
	// idle peer never stalls the others (§5).
	f, err := uc.File()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: dup socket fd: %w", err)
	}
	if err := unix.SetNonblock(int(f.Fd()), true); err != nil {
		f.Close()
		conn.Close()
		return nil, fmt.Errorf("transport: set nonblocking: %w", err)
	}
	return &Conn{file: &fileHandle{fd: int(f.Fd()), nc: uc, f: f}}, nil
}

// Fd exposes the raw descriptor for poll/epoll integration.
func (c *Conn) Fd() int { return c.file.fd }

// Close closes both the duplicated file and the original connection.
func (c *Conn) Close() error {
	c.file.f.Close()
	return c.file.nc.Close()
}

// Send writes data, passing rights for each fd in fds via SCM_RIGHTS
// when there are any.
func (c *Conn) Send(data []byte, fds []int) error {
	var oob []byte
	if len(fds) > 0 {
		oob = unix.UnixRights(fds...)
	}
	return unix.Sendmsg(c.file.fd, data, oob, nil, 0)
}

// Recv reads into buf, returning the bytes read and any fds that
// arrived alongside them via SCM_RIGHTS.
func (c *Conn) Recv(buf []byte) (n int, fds []int, err error) {
	oob := make([]byte, maxOOB)
	n, oobn, _, _, err := unix.Recvmsg(c.file.fd, buf, oob, 0)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return 0, nil, ErrWouldBlock
		}
		return 0, nil, fmt.Errorf("transport: recvmsg: %w", err)
	}
	if oobn > 0 {
		fds, err = parseRights(oob[:oobn])
		if err != nil {
			return n, nil, err
		}
	}
	return n, fds, nil
}

// PollAll blocks up to timeoutMs (negative means forever) for
// activity on l (a pending accept) and/or any of conns (bytes
// ready), in a single syscall. This is the one piece of the
// cooperative single-task loop (§5) that needs a real syscall rather
// than per-Conn bookkeeping, so it lives here rather than forcing
// core or cmd/wlproxyd to import x/sys/unix themselves. l may be nil
// if the proxy isn't currently accepting (e.g. already at one client
// and single-client mode).
func PollAll(l *Listener, conns []*Conn, timeoutMs int) (listenerReady bool, readyConns []*Conn, err error) {
	offset := 0
	fds := make([]unix.PollFd, 0, len(conns)+1)
	if l != nil {
		fds = append(fds, unix.PollFd{Fd: int32(l.fd), Events: unix.POLLIN})
		offset = 1
	}
	for _, c := range conns {
		fds = append(fds, unix.PollFd{Fd: int32(c.file.fd), Events: unix.POLLIN})
	}
	for {
		n, perr := unix.Poll(fds, timeoutMs)
		if perr != nil {
			if errors.Is(perr, unix.EINTR) {
				continue
			}
			return false, nil, fmt.Errorf("transport: poll: %w", perr)
		}
		if n == 0 {
			return false, nil, nil
		}
		break
	}
	if l != nil && fds[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
		listenerReady = true
	}
	for i, c := range conns {
		if fds[offset+i].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			readyConns = append(readyConns, c)
		}
	}
	return listenerReady, readyConns, nil
}

func parseRights(oob []byte) ([]int, error) {
	scms, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("transport: parse control message: %w", err)
	}
	var fds []int
	for _, scm := range scms {
		if scm.Header.Level != unix.SOL_SOCKET || scm.Header.Type != unix.SCM_RIGHTS {
			continue
		}
		got, err := unix.ParseUnixRights(&scm)
		if err != nil {
			return nil, fmt.Errorf("transport: parse unix rights: %w", err)
		}
		fds = append(fds, got...)
	}
	return fds, nil
}
