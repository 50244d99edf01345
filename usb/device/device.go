// {{{ Copyright (c) Paul R. Tagliamonte <paul@k3xec.com>, 2020
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE. }}}

package device

import (
	"flag"
	"fmt"

	logictrace "github.com/ithinuel/logic-trace-parser"
	"github.com/ithinuel/logic-trace-parser/usb/protocol"
)

// EventType identifies which variant of Event is populated.
type EventType uint8

const (
	Reset EventType = iota
	Control
	Class
)

// Event is the tagged-variant DeviceEvent.
type Event struct {
	Type EventType

	Request       Request                 // Control
	RawResponse   []byte                  // Control
	Configuration *ConfigurationDescriptor // Control, only for GetDescriptor(Configuration)

	Class ClassPayload // Class
}

func (e Event) String() string {
	switch e.Type {
	case Reset:
		return "Reset"
	case Control:
		return fmt.Sprintf("Control{request: %+v, response(%d)}", e.Request, len(e.RawResponse))
	case Class:
		return fmt.Sprintf("Class{endpoint: %d, kind: %v, data(%d)}", e.Class.Endpoint, e.Class.Kind, len(e.Class.Data))
	default:
		return "Event(?)"
	}
}

type endpointHandler interface {
	update(tx protocol.Event) (*Event, error)
}

// Decoder assembles a usb/protocol transaction stream into device-level
// events. Endpoint 0 runs the control-transfer state machine; other
// endpoints are dispatched to a class handler that this decoder
// registers itself, once it observes a GetDescriptor(Configuration)
// response describing them -- a capture with no enumeration never
// gets endpoints assigned, and its non-zero-endpoint transactions
// surface as errors instead of being silently guessed at.
type Decoder struct {
	upstream logictrace.Stage

	control   *controlEndpoint
	endpoints map[uint8]endpointHandler

	stopped bool
}

// New builds a Decoder consuming upstream.
func New(upstream logictrace.Stage) (*Decoder, error) {
	if upstream.Kind() != logictrace.KindUsbTransaction {
		return nil, &logictrace.ErrKindMismatch{Expected: logictrace.KindUsbTransaction, Actual: upstream.Kind()}
	}
	return &Decoder{
		upstream:  upstream,
		control:   newControlEndpoint(),
		endpoints: map[uint8]endpointHandler{},
	}, nil
}

// Kind implements logictrace.Stage.
func (d *Decoder) Kind() logictrace.Kind {
	return logictrace.KindDeviceEvent
}

func (d *Decoder) registerEndpoints(cfg ConfigurationDescriptor) {
	for _, iface := range cfg.Interfaces {
		switch iface.Class {
		case 2, 10: // Communication Device Class, and its CDC Data companion
			for _, ep := range iface.Endpoints {
				d.endpoints[ep.Number] = &cdcEndpoint{id: ep.Number}
			}
		case 8: // Mass Storage
			for _, ep := range iface.Endpoints {
				d.endpoints[ep.Number] = msdEndpoint{}
			}
		}
	}
}

// Next implements logictrace.Stage.
func (d *Decoder) Next() (logictrace.Event, bool) {
	if d.stopped {
		return logictrace.Event{}, false
	}
	for {
		ev, ok := d.upstream.Next()
		if !ok {
			d.stopped = true
			return logictrace.Event{}, false
		}
		if ev.Err != nil {
			return logictrace.Event{Timestamp: ev.Timestamp, Err: ev.Err}, true
		}
		pe, ok := ev.Payload.(protocol.Event)
		if !ok {
			d.stopped = true
			return logictrace.Event{Timestamp: ev.Timestamp, Err: fmt.Errorf("device: expected a usb/protocol Event payload")}, true
		}

		switch pe.Type {
		case protocol.SoF:
			continue

		case protocol.Reset:
			d.control = newControlEndpoint()
			d.endpoints = map[uint8]endpointHandler{}
			return logictrace.Event{Timestamp: ev.Timestamp, Payload: Event{Type: Reset}}, true

		case protocol.Transaction:
			var out *Event
			var err error

			if endpt := pe.Token.Endpoint; endpt == 0 {
				out, err = d.control.update(pe)
				if out != nil && out.Configuration != nil {
					d.registerEndpoints(*out.Configuration)
				}
			} else if h, ok := d.endpoints[endpt]; ok {
				out, err = h.update(pe)
			} else {
				err = fmt.Errorf("device: transaction on unregistered endpoint %d", endpt)
			}

			if err != nil {
				return logictrace.Event{Timestamp: ev.Timestamp, Err: err}, true
			}
			if out != nil {
				return logictrace.Event{Timestamp: ev.Timestamp, Payload: *out}, true
			}
		}
	}
}

// Build implements the CLI stage-builder contract for the "usb::device"
// stage name. It auto-inserts a usb/protocol stage when the pipeline
// does not already have one.
func Build(stack *logictrace.Stack, args []string) error {
	fs := flag.NewFlagSet("usb::device", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	upstream, err := stack.RequireKind(logictrace.KindUsbTransaction, func(s *logictrace.Stack) error {
		return protocol.Build(s, nil)
	})
	if err != nil {
		return err
	}
	dec, err := New(upstream)
	if err != nil {
		return err
	}
	stack.Push(dec)
	return nil
}

// vim: foldmethod=marker
