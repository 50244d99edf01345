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

// Package protocol assembles USB 1.x packets into transactions: a
// Token, an optional Data packet, and the HandShake that closes it.
package protocol

import (
	"flag"
	"fmt"

	logictrace "github.com/ithinuel/logic-trace-parser"
	"github.com/ithinuel/logic-trace-parser/usb/packet"
)

// EventType identifies which variant of Event is populated.
type EventType uint8

const (
	Reset EventType = iota
	SoF
	Transaction
)

// Event is the tagged-variant usb/protocol event.
type Event struct {
	Type EventType

	Frame uint16 // SoF

	Token     packet.Packet  // Transaction: the Token packet
	Data      *packet.Packet // Transaction: the optional Data packet
	HandShake packet.Packet  // Transaction: the closing HandShake packet
}

func (e Event) String() string {
	switch e.Type {
	case Reset:
		return "Reset"
	case SoF:
		return fmt.Sprintf("Sof(%d)", e.Frame)
	case Transaction:
		return fmt.Sprintf("Transaction{token: %v, data: %v, handshake: %v}", e.Token, e.Data, e.HandShake)
	default:
		return "Event(?)"
	}
}

type txState uint8

const (
	stIdle txState = iota
	stToken
	stData
)

// Decoder assembles a usb/packet stream into transactions.
type Decoder struct {
	upstream logictrace.Stage

	state token
	st    txState

	stopped bool
}

type token struct {
	tok  packet.Packet
	data *packet.Packet
}

// New builds a Decoder consuming upstream.
func New(upstream logictrace.Stage) (*Decoder, error) {
	if upstream.Kind() != logictrace.KindUsbPacket {
		return nil, &logictrace.ErrKindMismatch{Expected: logictrace.KindUsbPacket, Actual: upstream.Kind()}
	}
	return &Decoder{upstream: upstream}, nil
}

// Kind implements logictrace.Stage.
func (d *Decoder) Kind() logictrace.Kind {
	return logictrace.KindUsbTransaction
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
		pkt, ok := ev.Payload.(packet.Packet)
		if !ok {
			d.stopped = true
			return logictrace.Event{Timestamp: ev.Timestamp, Err: fmt.Errorf("usb/protocol: expected a Packet payload")}, true
		}

		switch pkt.Kind {
		case packet.Reset:
			d.st = stIdle
			return logictrace.Event{Timestamp: ev.Timestamp, Payload: Event{Type: Reset}}, true

		case packet.SoF:
			return logictrace.Event{Timestamp: ev.Timestamp, Payload: Event{Type: SoF, Frame: pkt.Frame}}, true

		case packet.Token:
			if d.st != stIdle {
				d.st = stIdle
				return logictrace.Event{Timestamp: ev.Timestamp, Err: fmt.Errorf("usb/protocol: unexpected token packet")}, true
			}
			d.state = token{tok: pkt}
			d.st = stToken

		case packet.Data:
			if d.st != stToken {
				d.st = stIdle
				return logictrace.Event{Timestamp: ev.Timestamp, Err: fmt.Errorf("usb/protocol: unexpected data packet")}, true
			}
			p := pkt
			d.state.data = &p
			d.st = stData

		case packet.HandShake:
			if d.st != stToken && d.st != stData {
				d.st = stIdle
				return logictrace.Event{Timestamp: ev.Timestamp, Err: fmt.Errorf("usb/protocol: unexpected handshake packet")}, true
			}
			tok, data := d.state.tok, d.state.data
			d.st = stIdle
			d.state = token{}
			return logictrace.Event{Timestamp: ev.Timestamp, Payload: Event{
				Type:      Transaction,
				Token:     tok,
				Data:      data,
				HandShake: pkt,
			}}, true
		}
	}
}

// Build implements the CLI stage-builder contract for the
// "usb::protocol" stage name. It auto-inserts a usb/packet stage when
// the pipeline does not already have one.
func Build(stack *logictrace.Stack, args []string) error {
	fs := flag.NewFlagSet("usb::protocol", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	upstream, err := stack.RequireKind(logictrace.KindUsbPacket, func(s *logictrace.Stack) error {
		return packet.Build(s, nil)
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
