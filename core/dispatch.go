package core

import (
	"fmt"
	"strings"

	"github.com/waylab/wlproxy/logging"
	"github.com/waylab/wlproxy/protoerr"
)

// DispatchRequests drains every fully-buffered message sitting on a
// client endpoint and routes each to its target object's
// HandleRequest. It stops (returning nil) once the buffer holds less
// than one complete message, letting the next Pump top it back up.
func (st *State) DispatchRequests(ep *Endpoint) *protoerr.Error {
	for {
		objID, opcode, payload, ok, err := ep.NextMessage()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		obj, found := ep.Lookup(objID)
		if !found {
			if st.Metrics != nil {
				st.Metrics.MessageDropped("request")
			}
			if st.Logger != nil {
				st.Logger.Logf("request for unknown or destroyed client id %d", objID)
			}
			return protoerr.NoObject(objID)
		}
		if err := obj.HandleRequest(uint32(opcode), payload, ep.IncomingFDs()); err != nil {
			return err
		}
		st.trace(ep, logging.DirClientToServer, obj, objID, uint32(opcode), payload, true)
		if st.Metrics != nil {
			st.Metrics.MessageForwarded("request")
		}
	}
}

// DispatchEvents is DispatchRequests' mirror for the single server
// endpoint: it routes fully-buffered messages to HandleEvent. wl_display
// itself intercepts its own two events (error, delete_id) inside its
// HandleEvent implementation by calling back into State — this loop
// has no special knowledge of object id 1.
func (st *State) DispatchEvents(ep *Endpoint) *protoerr.Error {
	for {
		objID, opcode, payload, ok, err := ep.NextMessage()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		obj, found := ep.Lookup(objID)
		if !found {
			if st.Metrics != nil {
				st.Metrics.MessageDropped("event")
			}
			if st.Logger != nil {
				st.Logger.Logf("event for unknown or destroyed server id %d", objID)
			}
			return protoerr.NoObject(objID)
		}
		if err := obj.HandleEvent(uint32(opcode), payload, ep.IncomingFDs()); err != nil {
			return err
		}
		st.trace(ep, logging.DirServerToClient, obj, objID, uint32(opcode), payload, false)
		if st.Metrics != nil {
			st.Metrics.MessageForwarded("event")
		}
	}
}

// trace emits the §6 wire-trace line for one successfully dispatched
// message, if the engine's Logger additionally implements Tracer.
// Silent no-op otherwise — tracing is strictly observational and never
// affects dispatch.
func (st *State) trace(ep *Endpoint, dir logging.Direction, obj Dispatcher, objID, opcode uint32, payload []uint32, isRequest bool) {
	tr, ok := st.Logger.(Tracer)
	if !ok {
		return
	}
	iface := obj.Core().Iface
	var name string
	var found bool
	if isRequest {
		name, found = iface.GetRequestName(opcode)
	} else {
		name, found = iface.GetEventName(opcode)
	}
	if !found {
		name = fmt.Sprintf("op%d", opcode)
	}
	tr.Trace(fmt.Sprintf("ep%d", ep.NumericID), dir, iface.Name, objID, name, formatTraceArgs(iface, opcode, payload, isRequest))
}

// formatTraceArgs renders a best-effort "name=value, ..." argument
// list from a message's declared ArgSpecs and its raw payload words.
// Fixed-width arguments (object/uint/int/fixed/new_id) map one word
// each; variable-width arguments (string, array) and fds are shown by
// name only, since decoding them generically here would duplicate each
// handler's own wire.Decoder walk for a trace line's sake.
func formatTraceArgs(iface *Interface, opcode uint32, payload []uint32, isRequest bool) string {
	var spec MessageSpec
	var ok bool
	if isRequest {
		spec, ok = iface.RequestByOpcode(opcode)
	} else {
		spec, ok = iface.EventByOpcode(opcode)
	}
	if !ok {
		return ""
	}
	parts := make([]string, 0, len(spec.Args))
	word := 0
	for _, a := range spec.Args {
		switch a.Kind {
		case ArgString:
			parts = append(parts, a.Name+"=<string>")
		case ArgArray:
			parts = append(parts, a.Name+"=<array>")
		case ArgFD:
			parts = append(parts, a.Name+"=<fd>")
		default:
			if word < len(payload) {
				parts = append(parts, fmt.Sprintf("%s=%d", a.Name, payload[word]))
				word++
			} else {
				parts = append(parts, a.Name+"=?")
			}
		}
	}
	return strings.Join(parts, ", ")
}
