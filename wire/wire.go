// Package wire implements the Wayland wire format: 32-bit little-endian
// word framing, length-prefixed NUL-terminated strings, length-prefixed
// byte arrays and 24.8 fixed-point numbers. File descriptors never
// occupy payload words; they are threaded alongside the byte stream in
// an FDQueue and consumed/appended in signature order.
//
// This package has no knowledge of interfaces or objects — it only
// knows how to turn words into Go values and back. The per-interface
// decode/encode tables in protocols/ call into it.
package wire

import (
	"encoding/binary"

	"github.com/waylab/wlproxy/protoerr"
)

// HeaderWords is the number of 32-bit words in every message header.
const HeaderWords = 2

// Fixed is a 24.8 signed fixed-point wire quantity used for sub-pixel
// coordinates.
type Fixed int32

func FixedFromFloat64(v float64) Fixed { return Fixed(v * 256) }

func (f Fixed) Float64() float64 { return float64(f) / 256 }

// FD is a ref-counted file descriptor queued alongside a message.
// Multiple in-flight references (e.g. a message parsed from the client
// then re-encoded toward the server) share one FD and one count. FD
// has no method that releases a reference or closes the descriptor.
type FD struct {
	raw  int
	refs *int32
}

// NewFD wraps a raw, already-owned file descriptor with a single
// reference.
func NewFD(raw int) *FD {
	n := int32(1)
	return &FD{raw: raw, refs: &n}
}

func (f *FD) Raw() int { return f.raw }

// Retain returns a new reference to the same underlying fd and
// increments the shared count.
func (f *FD) Retain() *FD {
	*f.refs++
	return &FD{raw: f.raw, refs: f.refs}
}

// FDQueue is a FIFO of file descriptors threaded alongside a byte
// buffer: one appended per fd-typed argument encoded, one popped per
// fd-typed argument decoded, always in signature order (P3).
type FDQueue struct {
	fds []*FD
}

func (q *FDQueue) Push(fd *FD) { q.fds = append(q.fds, fd) }

// Pop removes and returns the first queued fd, or nil if the queue is
// empty — callers treat an empty pop as protoerr.MissingFD.
func (q *FDQueue) Pop() *FD {
	if len(q.fds) == 0 {
		return nil
	}
	fd := q.fds[0]
	q.fds = q.fds[1:]
	return fd
}

func (q *FDQueue) Len() int { return len(q.fds) }

// Drain removes and returns up to n queued fds, in order. Used by the
// transport layer to attach ancillary data to an outgoing byte batch.
func (q *FDQueue) Drain(n int) []*FD {
	if n > len(q.fds) {
		n = len(q.fds)
	}
	out := q.fds[:n]
	q.fds = q.fds[n:]
	return out
}

func pad4(n int) int { return (4 - n%4) % 4 }

// DecodeHeader reads the two-word message header from buf. It reports
// protoerr.TruncatedHeader if fewer than 8 bytes are available.
func DecodeHeader(buf []byte) (objectID uint32, opcode uint16, size uint32, err *protoerr.Error) {
	if len(buf) < 8 {
		return 0, 0, 0, protoerr.TruncatedHeader()
	}
	objectID = binary.LittleEndian.Uint32(buf[0:4])
	sizeOpcode := binary.LittleEndian.Uint32(buf[4:8])
	size = sizeOpcode >> 16
	opcode = uint16(sizeOpcode & 0xffff)
	return objectID, opcode, size, nil
}

// EncodeHeader writes the two-word message header into buf[0:8].
func EncodeHeader(buf []byte, objectID uint32, opcode uint16, size uint32) {
	binary.LittleEndian.PutUint32(buf[0:4], objectID)
	binary.LittleEndian.PutUint32(buf[4:8], (size<<16)|uint32(opcode))
}

// Decoder walks a message's payload words (header already stripped),
// decoding typed arguments in signature order.
type Decoder struct {
	words []uint32
	pos   int
	fds   *FDQueue
}

// NewDecoder builds a Decoder over payload (post-header words) and the
// endpoint's incoming fd queue.
func NewDecoder(payload []uint32, fds *FDQueue) *Decoder {
	return &Decoder{words: payload, fds: fds}
}

func (d *Decoder) Remaining() int { return len(d.words) - d.pos }

// Done reports whether every payload word has been consumed;
// false indicates protoerr.TrailingBytes for fixed-size opcodes.
func (d *Decoder) Done() bool { return d.pos >= len(d.words) }

func (d *Decoder) next(arg string) (uint32, *protoerr.Error) {
	if d.pos >= len(d.words) {
		return 0, protoerr.MissingArgument(arg)
	}
	v := d.words[d.pos]
	d.pos++
	return v, nil
}

func (d *Decoder) Uint32(arg string) (uint32, *protoerr.Error) { return d.next(arg) }

func (d *Decoder) Int32(arg string) (int32, *protoerr.Error) {
	v, err := d.next(arg)
	return int32(v), err
}

func (d *Decoder) Fixed(arg string) (Fixed, *protoerr.Error) {
	v, err := d.next(arg)
	return Fixed(v), err
}

// Object decodes a (possibly nullable) object-id argument; 0 means
// null. Interface-type checking against the declared argument
// interface happens in the caller (protocols/ package), which has
// access to the endpoint's id->object map.
func (d *Decoder) Object(arg string) (uint32, *protoerr.Error) { return d.next(arg) }

// NewID decodes a new-id argument's wire id.
func (d *Decoder) NewID(arg string) (uint32, *protoerr.Error) { return d.next(arg) }

// String decodes a length-prefixed, NUL-terminated, 4-byte-padded
// string argument.
func (d *Decoder) String(arg string) (string, *protoerr.Error) {
	n, err := d.next(arg)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	nWords := (int(n) + pad4(int(n))) / 4
	if d.pos+nWords > len(d.words) {
		return "", protoerr.OversizedArgument(arg)
	}
	raw := wordsToBytes(d.words[d.pos : d.pos+nWords])
	d.pos += nWords
	if int(n) > len(raw) || raw[n-1] != 0 {
		return "", protoerr.StringNotTerminated(arg)
	}
	return string(raw[:n-1]), nil
}

// Array decodes a length-prefixed, 4-byte-padded opaque byte array.
func (d *Decoder) Array(arg string) ([]byte, *protoerr.Error) {
	n, err := d.next(arg)
	if err != nil {
		return nil, err
	}
	nWords := (int(n) + pad4(int(n))) / 4
	if d.pos+nWords > len(d.words) {
		return nil, protoerr.OversizedArgument(arg)
	}
	raw := wordsToBytes(d.words[d.pos : d.pos+nWords])
	d.pos += nWords
	out := make([]byte, n)
	copy(out, raw[:n])
	return out, nil
}

// FD pops the next ancillary file descriptor for an fd-typed argument.
func (d *Decoder) FD(arg string) (*FD, *protoerr.Error) {
	fd := d.fds.Pop()
	if fd == nil {
		return nil, protoerr.MissingFD(arg)
	}
	return fd, nil
}

func wordsToBytes(words []uint32) []byte {
	out := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

// Encoder builds the payload words (and fd queue entries) of an
// outgoing message. The caller prefixes the two header words once the
// final size is known (see core.Endpoint.QueueMessage).
type Encoder struct {
	words []uint32
	fds   *FDQueue
}

func NewEncoder(fds *FDQueue) *Encoder { return &Encoder{fds: fds} }

func (e *Encoder) Words() []uint32 { return e.words }

func (e *Encoder) Uint32(v uint32) { e.words = append(e.words, v) }
func (e *Encoder) Int32(v int32)   { e.words = append(e.words, uint32(v)) }
func (e *Encoder) Fixed(v Fixed)   { e.words = append(e.words, uint32(v)) }
func (e *Encoder) Object(id uint32) { e.words = append(e.words, id) }
func (e *Encoder) NewID(id uint32)  { e.words = append(e.words, id) }

func (e *Encoder) String(s string) {
	n := len(s) + 1
	e.words = append(e.words, uint32(n))
	buf := make([]byte, n+pad4(n))
	copy(buf, s)
	e.appendBytes(buf)
}

func (e *Encoder) Array(b []byte) {
	e.words = append(e.words, uint32(len(b)))
	buf := make([]byte, len(b)+pad4(len(b)))
	copy(buf, b)
	e.appendBytes(buf)
}

func (e *Encoder) appendBytes(buf []byte) {
	for i := 0; i < len(buf); i += 4 {
		e.words = append(e.words, binary.LittleEndian.Uint32(buf[i:i+4]))
	}
}

// FD appends a file descriptor to the outgoing ancillary queue. It
// consumes no payload word.
func (e *Encoder) FD(fd *FD) { e.fds.Push(fd) }
