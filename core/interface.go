// Package core implements the protocol engine: the Interface
// catalogue, the Object lifecycle, Endpoint id maps and flush
// scheduling, and the process-wide State — the components spec.md
// calls out as hand-written, as opposed to the generated per-interface
// dispatch tables in protocols/.
package core

import "sync"

// ArgKind enumerates the wire argument shapes a MessageSpec slot can
// take (spec §4.1).
type ArgKind int

const (
	ArgInt ArgKind = iota
	ArgUint
	ArgFixed
	ArgString
	ArgArray
	ArgFD
	ArgObject
	ArgNewID
	ArgNullableObject
)

// ArgSpec describes one argument slot of a request or event.
type ArgSpec struct {
	Name string
	Kind ArgKind
	// WireInterface is the interface an ArgObject/ArgNewID/
	// ArgNullableObject argument must implement. Empty means the
	// argument's interface is carried dynamically in the payload
	// (wl_registry.bind is the only such case in the core set).
	WireInterface string
}

// MessageSpec describes one request or event: its opcode, the version
// it was introduced in (advisory at the codec layer per §4.5), whether
// it destroys the object, and its argument list.
type MessageSpec struct {
	Name       string
	Opcode     uint32
	Since      uint32
	Destructor bool
	Args       []ArgSpec
}

// FixedSize reports the exact payload byte size the opcode requires,
// and whether the message instead has a variable size (any
// string/array argument makes it variable).
func (m MessageSpec) FixedSize() (size uint32, variable bool) {
	for _, a := range m.Args {
		switch a.Kind {
		case ArgString, ArgArray:
			return 0, true
		case ArgFD:
			// fds occupy no payload words
		default:
			size += 4
		}
	}
	return size, false
}

// Interface is the immutable descriptor of a family of Objects: a
// stable name, its request/event tables and the highest version this
// engine understands.
type Interface struct {
	Name       string
	MaxVersion uint32
	Requests   []MessageSpec
	Events     []MessageSpec
}

func (i *Interface) RequestByOpcode(opcode uint32) (MessageSpec, bool) {
	if int(opcode) < len(i.Requests) {
		return i.Requests[opcode], true
	}
	return MessageSpec{}, false
}

func (i *Interface) EventByOpcode(opcode uint32) (MessageSpec, bool) {
	if int(opcode) < len(i.Events) {
		return i.Events[opcode], true
	}
	return MessageSpec{}, false
}

// GetRequestName and GetEventName are the name-lookup helpers §4.5
// requires for logging and error formatting.
func (i *Interface) GetRequestName(opcode uint32) (string, bool) {
	m, ok := i.RequestByOpcode(opcode)
	if !ok {
		return "", false
	}
	return m.Name, true
}

func (i *Interface) GetEventName(opcode uint32) (string, bool) {
	m, ok := i.EventByOpcode(opcode)
	if !ok {
		return "", false
	}
	return m.Name, true
}

// Factory constructs a fresh Dispatcher for an interface at a given
// version. Every generated protocols/ package registers one per
// interface in its init(), which is the engine's stand-in for "derive
// dispatch tables from the catalogue" (§6, §9).
type Factory func(st *State, version uint32) Dispatcher

var catalogue = struct {
	mu    sync.RWMutex
	byName map[string]*Interface
	newFn  map[string]Factory
}{
	byName: make(map[string]*Interface),
	newFn:  make(map[string]Factory),
}

// RegisterInterface adds an Interface and its Dispatcher factory to
// the process-wide catalogue. Called from protocols/ package init()
// functions.
func RegisterInterface(iface *Interface, newFn Factory) {
	catalogue.mu.Lock()
	defer catalogue.mu.Unlock()
	catalogue.byName[iface.Name] = iface
	catalogue.newFn[iface.Name] = newFn
}

// LookupInterface returns the catalogue entry for a name, if known.
func LookupInterface(name string) (*Interface, bool) {
	catalogue.mu.RLock()
	defer catalogue.mu.RUnlock()
	i, ok := catalogue.byName[name]
	return i, ok
}

// NewDispatcher instantiates a fresh Object of the named interface at
// the given version, via its registered Factory.
func NewDispatcher(name string, st *State, version uint32) (Dispatcher, bool) {
	catalogue.mu.RLock()
	fn, ok := catalogue.newFn[name]
	catalogue.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return fn(st, version), true
}
