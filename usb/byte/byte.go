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

// Package usbbyte recovers NRZI-decoded, destuffed bytes (plus Reset,
// Idle and Eop markers) from a stream of USB line states. It is ported
// bit-for-bit from the reference decoder's shift-register arithmetic:
// a run of ulen bit-periods at the same line level encodes one NRZI
// transition bit (0) followed by ulen-1 held bits (1), with a stuffed
// zero dropped whenever the previous run held exactly six ones.
package usbbyte

import (
	"flag"
	"fmt"
	"math"

	logictrace "github.com/ithinuel/logic-trace-parser"
	"github.com/ithinuel/logic-trace-parser/usb/signal"
)

// EventType identifies which variant of Event is populated.
type EventType uint8

const (
	Reset EventType = iota
	Idle
	Byte
	Eop
)

// Event is the tagged-variant Byte event.
type Event struct {
	Type EventType
	Data byte
}

func (e Event) String() string {
	switch e.Type {
	case Reset:
		return "Reset"
	case Idle:
		return "Idle"
	case Byte:
		return fmt.Sprintf("Byte(%#02x)", e.Data)
	case Eop:
		return "Eop"
	default:
		return "?"
	}
}

type busState uint8

const (
	stReset busState = iota
	stIdle
	stEopStart
	stReceiving
	stSuspended
)

type sigSample struct {
	ts  float64
	sig signal.State
	err error
}

type queued struct {
	ts  float64
	ev  Event
	err error
}

// Decoder turns a usb/signal line-state stream into Event values.
type Decoder struct {
	upstream logictrace.Stage
	bitLen   float64

	haveLookAhead bool
	lookAhead     sigSample

	st              busState
	counter         uint16
	shiftReg        uint16
	consecutiveOnes uint8

	queue []queued

	stopped bool
}

// New builds a Decoder consuming upstream. fullSpeed selects the
// 12Mbit/s full-speed bit rate; otherwise the 1.5Mbit/s low-speed rate
// is used.
func New(upstream logictrace.Stage, fullSpeed bool) (*Decoder, error) {
	if upstream.Kind() != logictrace.KindUsbSignal {
		return nil, &logictrace.ErrKindMismatch{Expected: logictrace.KindUsbSignal, Actual: upstream.Kind()}
	}
	bitRate := 1_500_000.0
	if fullSpeed {
		bitRate = 12_000_000.0
	}
	return &Decoder{upstream: upstream, bitLen: 1.0 / bitRate, st: stIdle}, nil
}

// Kind implements logictrace.Stage.
func (d *Decoder) Kind() logictrace.Kind {
	return logictrace.KindUsbByte
}

func (d *Decoder) fetch() (sigSample, bool) {
	ev, ok := d.upstream.Next()
	if !ok {
		return sigSample{}, false
	}
	if ev.Err != nil {
		return sigSample{ts: ev.Timestamp, err: ev.Err}, true
	}
	st, ok := ev.Payload.(signal.State)
	if !ok {
		return sigSample{ts: ev.Timestamp, err: fmt.Errorf("usb/byte: expected a Signal payload")}, true
	}
	return sigSample{ts: ev.Timestamp, sig: st}, true
}

func (d *Decoder) pushBits(ulen uint64) {
	consecutiveOnes := ulen - 1
	bits := ulen
	if uint64(d.consecutiveOnes) == 6 {
		bits = ulen - 1
	}
	d.counter += uint16(bits)
	d.shiftReg >>= uint16(bits)
	if consecutiveOnes != 0 {
		mask := uint16((uint64(1) << consecutiveOnes) - 1)
		d.shiftReg |= mask << uint(16-consecutiveOnes)
	}
	d.consecutiveOnes = uint8(consecutiveOnes)
}

// fill runs the state machine until at least one event is queued, or
// returns true once the upstream is exhausted with nothing left to
// report.
func (d *Decoder) fill() bool {
	for len(d.queue) == 0 {
		var current sigSample
		if d.haveLookAhead {
			current = d.lookAhead
			d.haveLookAhead = false
		} else {
			s, ok := d.fetch()
			if !ok {
				return true
			}
			if s.err != nil {
				d.queue = append(d.queue, queued{ts: s.ts, err: s.err})
				return false
			}
			current = s
		}

		next, ok := d.fetch()
		if !ok {
			return true
		}
		if next.err != nil {
			d.queue = append(d.queue, queued{ts: next.ts, err: next.err})
			return false
		}

		// Cover for D+/D- slightly de-synchronized, generating a
		// spurious, very short SE0/SE1 glitch.
		spurious := 0.0
		if (current.sig == signal.SE0 || current.sig == signal.SE1) && (next.ts-current.ts) <= d.bitLen/2 {
			spurious = next.ts - current.ts
			current = next
			next2, ok := d.fetch()
			if !ok {
				return true
			}
			if next2.err != nil {
				d.queue = append(d.queue, queued{ts: next2.ts, err: next2.err})
				return false
			}
			next = next2
		}
		d.lookAhead, d.haveLookAhead = next, true

		ts, sig := current.ts, current.sig
		ulen := uint64(math.Round((next.ts - ts + spurious) / d.bitLen))
		length := next.ts - ts
		nts := next.ts

		switch {
		case sig == signal.SE1:
			d.queue = append(d.queue, queued{ts: ts, err: fmt.Errorf("usb/byte: unexpected bus state")})
		case sig == signal.SE0 && length > 0.010:
			d.queue = append(d.queue, queued{ts: ts, ev: Event{Type: Reset}})
			d.st, d.counter = stReset, 0
		default:
			d.advance(ts, sig, ulen)
		}

		if d.counter >= 8 {
			b := byte((d.shiftReg >> (16 - d.counter)) & 0xFF)
			d.queue = append(d.queue, queued{ts: nts, ev: Event{Type: Byte, Data: b}})
			d.counter -= 8
		}
	}
	return false
}

func (d *Decoder) advance(ts float64, sig signal.State, ulen uint64) {
	switch d.st {
	case stReset:
		if sig == signal.J {
			d.queue = append(d.queue, queued{ts: ts, ev: Event{Type: Idle}})
		} else {
			d.queue = append(d.queue, queued{ts: ts, err: fmt.Errorf("usb/byte: unexpected bus state after reset")})
		}
		d.st = stIdle
	case stIdle:
		switch sig {
		case signal.K:
			if ulen >= 7 {
				d.st = stSuspended
			} else {
				d.st = stReceiving
				d.pushBits(ulen)
			}
		case signal.J, signal.SE0:
			// stays idle
		}
	case stReceiving:
		switch {
		case sig == signal.SE0 && ulen == 2:
			d.st = stEopStart
		case ulen <= 7 && (sig == signal.K || sig == signal.J):
			d.pushBits(ulen)
		default:
			d.st = stIdle
			d.queue = append(d.queue, queued{ts: ts, err: fmt.Errorf("usb/byte: framing error")})
		}
	case stEopStart:
		if sig == signal.J && ulen >= 1 {
			d.queue = append(d.queue, queued{ts: ts - 2*d.bitLen, ev: Event{Type: Eop}})
			d.st = stIdle
			if ulen > 1 {
				d.queue = append(d.queue, queued{ts: ts + d.bitLen, ev: Event{Type: Idle}})
			}
		} else {
			d.st = stIdle
			d.queue = append(d.queue, queued{ts: ts, err: fmt.Errorf("usb/byte: unexpected bus state after start of end of packet")})
		}
	case stSuspended:
		if sig == signal.SE0 && ulen == 2 {
			d.st = stEopStart
		} else {
			d.st = stIdle
			d.queue = append(d.queue, queued{ts: ts, err: fmt.Errorf("usb/byte: unexpected bus state after suspended state")})
		}
	}
}

// Next implements logictrace.Stage.
func (d *Decoder) Next() (logictrace.Event, bool) {
	for len(d.queue) == 0 {
		if d.stopped {
			return logictrace.Event{}, false
		}
		if d.fill() {
			d.stopped = true
			if len(d.queue) == 0 {
				return logictrace.Event{}, false
			}
		}
	}
	q := d.queue[0]
	d.queue = d.queue[1:]
	if q.err != nil {
		return logictrace.Event{Timestamp: q.ts, Err: q.err}, true
	}
	return logictrace.Event{Timestamp: q.ts, Payload: q.ev}, true
}

// Build implements the CLI stage-builder contract for the "usb::byte"
// stage name. It auto-inserts a usb/signal stage, reusing its flags,
// exactly as the tool this package is modeled on re-exposes
// usb::signal's own argument set under usb::byte.
func Build(stack *logictrace.Stack, args []string) error {
	fs := flag.NewFlagSet("usb::byte", flag.ContinueOnError)
	fs.Uint("dp", 0, "channel used for the d+ pin")
	fs.Uint("dm", 1, "channel used for the d- pin")
	fullSpeed := fs.Bool("fs", false, "the capture is of a full-speed USB device")
	if err := fs.Parse(args); err != nil {
		return err
	}

	upstream, err := stack.RequireKind(logictrace.KindUsbSignal, func(s *logictrace.Stack) error {
		return signal.Build(s, args)
	})
	if err != nil {
		return err
	}
	dec, err := New(upstream, *fullSpeed)
	if err != nil {
		return err
	}
	stack.Push(dec)
	return nil
}

// vim: foldmethod=marker
