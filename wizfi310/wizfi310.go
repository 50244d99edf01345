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

// Package wizfi310 decodes the WizFi310 serial AT-command dialect on top
// of a serial.Event stream: outbound AT commands, inline data sends,
// "[...]" status lines and "{socket,ip,port,len}" inbound data headers
// followed by their payload.
package wizfi310

import (
	"flag"
	"fmt"
	"net"
	"strconv"
	"strings"

	logictrace "github.com/ithinuel/logic-trace-parser"
	"github.com/ithinuel/logic-trace-parser/serial"
)

// EventType identifies which variant of Event is populated.
type EventType uint8

const (
	// Command is a complete outbound AT command line, up to and
	// excluding the terminating '\r'.
	Command EventType = iota
	// Sent is the inline payload of a data send, once the byte count
	// announced by the last field of a preceding "[...,n]" response has
	// been seen on Tx.
	Sent
	// Recv is an inbound data payload following a "{...}" header.
	Recv
	// Resp is any other complete inbound line, up to and including
	// the terminating '\n'.
	Resp
)

// RecvHeader is the socket/peer addressing that precedes an inbound
// data payload.
type RecvHeader struct {
	SocketID uint8
	IP       net.IP
	Port     uint16
}

// Event is the tagged-variant WizFi310 event.
type Event struct {
	Type   EventType
	Line   string
	Header RecvHeader // Recv
}

func (e Event) String() string {
	switch e.Type {
	case Command:
		return fmt.Sprintf("Command(%q)", e.Line)
	case Sent:
		return fmt.Sprintf("Sent(%q)", e.Line)
	case Recv:
		return fmt.Sprintf("Recv(%+v, %q)", e.Header, e.Line)
	case Resp:
		return fmt.Sprintf("Resp(%q)", e.Line)
	default:
		return "Event(?)"
	}
}

// Decoder reassembles serial Tx/Rx byte events into WizFi310 protocol
// events. Other serial.Event variants (Cts, Rts, RxError, TxError) are
// ignored, mirroring the source's bare `_ => {}` arm.
type Decoder struct {
	upstream logictrace.Stage

	dataToSend, dataToReceive int
	recvHeader                *RecvHeader

	tx, rx strings.Builder

	stopped bool
}

// New builds a Decoder consuming upstream.
func New(upstream logictrace.Stage) (*Decoder, error) {
	if upstream.Kind() != logictrace.KindSerialEvent {
		return nil, &logictrace.ErrKindMismatch{Expected: logictrace.KindSerialEvent, Actual: upstream.Kind()}
	}
	return &Decoder{upstream: upstream}, nil
}

// Kind implements logictrace.Stage.
func (d *Decoder) Kind() logictrace.Kind {
	return logictrace.KindWizFi310Event
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
		se, ok := ev.Payload.(serial.Event)
		if !ok {
			d.stopped = true
			return logictrace.Event{Timestamp: ev.Timestamp, Err: fmt.Errorf("wizfi310: expected a serial.Event payload")}, true
		}

		switch se.Type {
		case serial.Tx:
			if out, ok := d.onTx(se.Byte); ok {
				return logictrace.Event{Timestamp: ev.Timestamp, Payload: out}, true
			}
		case serial.Rx:
			out, ok, err := d.onRx(se.Byte)
			if err != nil {
				return logictrace.Event{Timestamp: ev.Timestamp, Err: err}, true
			}
			if ok {
				return logictrace.Event{Timestamp: ev.Timestamp, Payload: out}, true
			}
		}
	}
}

func (d *Decoder) onTx(c byte) (Event, bool) {
	d.tx.WriteByte(c)

	if d.dataToSend != 0 {
		if d.dataToSend == d.tx.Len() {
			v := d.tx.String()
			d.dataToSend = 0
			d.tx.Reset()
			return Event{Type: Sent, Line: v}, true
		}
		return Event{}, false
	}
	if c == '\r' {
		v := strings.TrimSuffix(d.tx.String(), "\r")
		d.tx.Reset()
		return Event{Type: Command, Line: v}, true
	}
	return Event{}, false
}

func (d *Decoder) onRx(c byte) (Event, bool, error) {
	d.rx.WriteByte(c)

	if d.dataToReceive != 0 {
		if d.dataToReceive == d.rx.Len() {
			v := d.rx.String()
			d.dataToReceive = 0
			d.rx.Reset()
			header := d.recvHeader
			d.recvHeader = nil
			if header == nil {
				return Event{}, false, fmt.Errorf("wizfi310: data payload with no preceding recv header")
			}
			return Event{Type: Recv, Line: v, Header: *header}, true, nil
		}
		return Event{}, false, nil
	}

	switch c {
	case '\n':
		line := d.rx.String()
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]\r\n") {
			if strings.Contains(line, ",") {
				body := line[1 : len(line)-3]
				fields := strings.Split(body, ",")
				n, err := strconv.Atoi(fields[len(fields)-1])
				if err != nil {
					return Event{}, false, fmt.Errorf("wizfi310: invalid send-length field %q: %w", fields[len(fields)-1], err)
				}
				d.dataToSend = n
			}
		}
		d.rx.Reset()
		return Event{Type: Resp, Line: line}, true, nil

	case '}':
		line := d.rx.String()
		header := line[1 : len(line)-1]
		fields := strings.Split(header, ",")
		if len(fields) != 4 {
			return Event{}, false, fmt.Errorf("wizfi310: malformed recv header %q", header)
		}
		socketID, err := strconv.ParseUint(fields[0], 10, 8)
		if err != nil {
			return Event{}, false, fmt.Errorf("wizfi310: invalid socket id in header %q: %w", header, err)
		}
		ip := net.ParseIP(fields[1]).To4()
		if ip == nil {
			return Event{}, false, fmt.Errorf("wizfi310: invalid address in header %q", header)
		}
		port, err := strconv.ParseUint(fields[2], 10, 16)
		if err != nil {
			return Event{}, false, fmt.Errorf("wizfi310: invalid port in header %q: %w", header, err)
		}
		n, err := strconv.Atoi(fields[3])
		if err != nil {
			return Event{}, false, fmt.Errorf("wizfi310: invalid payload length in header %q: %w", header, err)
		}
		d.recvHeader = &RecvHeader{SocketID: uint8(socketID), IP: ip, Port: uint16(port)}
		d.dataToReceive = n
		d.rx.Reset()
		return Event{}, false, nil
	}
	return Event{}, false, nil
}

// Build implements the CLI stage-builder contract for the "wizfi310"
// stage name. It consumes the serial.Event stage on top of the pipeline
// stack, auto-inserting one built by serial.Build from args when the top
// of the stack is not already a serial.Event stage.
func Build(stack *logictrace.Stack, args []string) error {
	fs := flag.NewFlagSet("wizfi310", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	upstream, err := stack.RequireKind(logictrace.KindSerialEvent, func(s *logictrace.Stack) error {
		return serial.Build(s, args)
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
