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

// Package serial decodes an asynchronous UART stream (8 data bits, one
// optional parity bit, one stop bit, optional RTS/CTS flow control) out
// of a logictrace.Sample stream.
//
// Two identical monitors run in parallel, one tracking the Rx channel and
// one tracking the Tx channel. Each advances an internal clock in whole
// bit-duration steps, catching up to the incoming sample's timestamp one
// bit period at a time, the same way a UART receiver free-runs off its own
// baud clock between edges.
package serial

import (
	"flag"
	"fmt"
	"math/bits"
	"sort"
	"strconv"

	logictrace "github.com/ithinuel/logic-trace-parser"
)

// Parity selects how the optional parity bit is interpreted.
type Parity uint8

const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
	ParitySet
	ParityClear
)

// ParseParity parses the CLI's -p/--parity argument.
func ParseParity(s string) (Parity, error) {
	switch s {
	case "none":
		return ParityNone, nil
	case "even":
		return ParityEven, nil
	case "odd":
		return ParityOdd, nil
	case "set":
		return ParitySet, nil
	case "clear":
		return ParityClear, nil
	default:
		return 0, fmt.Errorf("serial: unknown parity %q", s)
	}
}

// FramingKind distinguishes the two ways a byte can fail to decode.
type FramingKind uint8

const (
	// Framing is reported when the stop bit is not high.
	Framing FramingKind = iota
	// Parity is reported when the received parity bit does not match
	// the configured parity mode.
	Parity
)

func (f FramingKind) String() string {
	if f == Parity {
		return "parity"
	}
	return "framing"
}

// EventType identifies which variant of Event is populated.
type EventType uint8

const (
	Rx EventType = iota
	Tx
	Cts
	Rts
	RxError
	TxError
)

// Event is the tagged-variant SerialEvent: Rx/Tx carry Byte, Cts/Rts
// carry Level, RxError/TxError carry Error.
type Event struct {
	Type  EventType
	Byte  byte
	Level bool
	Error FramingKind
}

func (e Event) String() string {
	switch e.Type {
	case Rx:
		return fmt.Sprintf("Rx(%#02x)", e.Byte)
	case Tx:
		return fmt.Sprintf("Tx(%#02x)", e.Byte)
	case Cts:
		return fmt.Sprintf("Cts(%v)", e.Level)
	case Rts:
		return fmt.Sprintf("Rts(%v)", e.Level)
	case RxError:
		return fmt.Sprintf("RxError(%s)", e.Error)
	case TxError:
		return fmt.Sprintf("TxError(%s)", e.Error)
	default:
		return "Event(?)"
	}
}

type phase uint8

const (
	phaseIdle phase = iota
	phaseStart
	phaseData
	phaseParity
	phaseStop
)

type pendingEvent struct {
	ts float64
	ev Event
}

type monitor struct {
	phase       phase
	ts          float64
	data        bool
	lastFC      bool
	bitDuration float64
	parity      Parity
	reg         byte
	shift       int

	makeData func(byte) Event
	makeErr  func(FramingKind) Event
	makeFC   func(bool) Event
}

func newMonitor(baud float64, parity Parity, makeData func(byte) Event, makeErr func(FramingKind) Event, makeFC func(bool) Event) *monitor {
	return &monitor{
		phase:       phaseIdle,
		ts:          -0.1,
		data:        true,
		bitDuration: 1 / baud,
		parity:      parity,
		makeData:    makeData,
		makeErr:     makeErr,
		makeFC:      makeFC,
	}
}

func expectedParityBit(reg byte, p Parity) bool {
	ones := bits.OnesCount8(reg)
	switch p {
	case ParityEven:
		return ones%2 != 0
	case ParityOdd:
		return ones%2 == 0
	case ParitySet:
		return true
	case ParityClear:
		return false
	default:
		return false
	}
}

func (m *monitor) update(ts float64, data, fc bool) []pendingEvent {
	var out []pendingEvent
	if m.lastFC != fc {
		m.lastFC = fc
		out = append(out, pendingEvent{ts, m.makeFC(fc)})
	}

	for m.ts < ts {
		var newTS float64
		advanced := false

		switch m.phase {
		case phaseIdle:
			newTS = ts
			advanced = true
			if !data {
				m.phase = phaseStart
			}
		case phaseStart:
			if m.ts+m.bitDuration*1.5 < ts {
				newTS = m.ts + m.bitDuration*1.5
				if m.data {
					m.reg = 0x80
				} else {
					m.reg = 0
				}
				m.shift = 1
				m.phase = phaseData
				advanced = true
			}
		case phaseData:
			if m.ts+m.bitDuration < ts {
				m.shift++
				m.reg >>= 1
				if m.data {
					m.reg |= 0x80
				}
				newTS = m.ts + m.bitDuration
				if m.shift == 8 {
					if m.parity != ParityNone {
						m.phase = phaseParity
					} else {
						m.phase = phaseStop
					}
				}
				advanced = true
			}
		case phaseParity:
			if m.ts+m.bitDuration < ts {
				if expectedParityBit(m.reg, m.parity) != m.data {
					out = append(out, pendingEvent{m.ts, m.makeErr(Parity)})
				}
				newTS = m.ts + m.bitDuration
				m.phase = phaseStop
				advanced = true
			}
		case phaseStop:
			if m.ts+m.bitDuration < ts {
				if !m.data {
					out = append(out, pendingEvent{m.ts, m.makeErr(Framing)})
				} else {
					out = append(out, pendingEvent{m.ts, m.makeData(m.reg)})
				}
				newTS = m.ts + m.bitDuration
				m.phase = phaseIdle
				advanced = true
			}
		}

		if !advanced {
			break
		}
		m.ts = newTS
	}

	m.data = data
	return out
}

func (m *monitor) finalize() (pendingEvent, bool) {
	var ev pendingEvent
	ok := true
	switch m.phase {
	case phaseIdle:
		ok = false
	case phaseStart, phaseData, phaseParity:
		ev = pendingEvent{m.ts, m.makeErr(Framing)}
	case phaseStop:
		ev = pendingEvent{m.ts, m.makeData(m.reg)}
	}
	m.phase = phaseIdle
	return ev, ok
}

// Config configures a Decoder.
type Config struct {
	TxChannel  uint
	RxChannel  uint
	RtsChannel *uint
	CtsChannel *uint
	Baud       float64
	Parity     Parity
	// StopBits is accepted for compatibility with the CLI surface but,
	// like the source this package is grounded on, only a single
	// bit-duration stop period is modeled; multi-bit stop periods are
	// not distinguished from a single one.
	StopBits float64
}

// Decoder turns a logictrace.Sample stream into serial.Event values.
type Decoder struct {
	upstream logictrace.Stage
	pending  []pendingEvent

	rxMask, rtsMask uint64
	txMask, ctsMask uint64
	rx, tx          *monitor

	stopped bool
}

func maskOf(ch *uint) uint64 {
	if ch == nil {
		return 0
	}
	return 1 << *ch
}

// New builds a Decoder consuming upstream.
func New(upstream logictrace.Stage, cfg Config) (*Decoder, error) {
	if upstream.Kind() != logictrace.KindSample {
		return nil, &logictrace.ErrKindMismatch{Expected: logictrace.KindSample, Actual: upstream.Kind()}
	}
	if cfg.Baud <= 0 {
		return nil, fmt.Errorf("serial: baud rate must be positive")
	}
	d := &Decoder{
		upstream: upstream,
		rxMask:   1 << cfg.RxChannel,
		txMask:   1 << cfg.TxChannel,
		rtsMask:  maskOf(cfg.RtsChannel),
		ctsMask:  maskOf(cfg.CtsChannel),
	}
	d.rx = newMonitor(cfg.Baud, cfg.Parity,
		func(b byte) Event { return Event{Type: Rx, Byte: b} },
		func(f FramingKind) Event { return Event{Type: RxError, Error: f} },
		func(v bool) Event { return Event{Type: Rts, Level: v} },
	)
	d.tx = newMonitor(cfg.Baud, cfg.Parity,
		func(b byte) Event { return Event{Type: Tx, Byte: b} },
		func(f FramingKind) Event { return Event{Type: TxError, Error: f} },
		func(v bool) Event { return Event{Type: Cts, Level: v} },
	)
	return d, nil
}

// Kind implements logictrace.Stage.
func (d *Decoder) Kind() logictrace.Kind {
	return logictrace.KindSerialEvent
}

// Next implements logictrace.Stage.
func (d *Decoder) Next() (logictrace.Event, bool) {
	for len(d.pending) == 0 {
		if d.stopped {
			return logictrace.Event{}, false
		}

		ev, ok := d.upstream.Next()
		if !ok {
			d.stopped = true
			if fin, ok := d.tx.finalize(); ok {
				d.pending = append(d.pending, fin)
			}
			if fin, ok := d.rx.finalize(); ok {
				d.pending = append(d.pending, fin)
			}
			if len(d.pending) == 0 {
				return logictrace.Event{}, false
			}
			break
		}
		if ev.Err != nil {
			return logictrace.Event{Timestamp: ev.Timestamp, Err: ev.Err}, true
		}
		smp, ok := ev.Payload.(logictrace.Sample)
		if !ok {
			return logictrace.Event{Timestamp: ev.Timestamp, Err: fmt.Errorf("serial: expected a Sample payload")}, true
		}
		s := uint64(smp)

		d.pending = append(d.pending, d.rx.update(ev.Timestamp, s&d.rxMask == d.rxMask, s&d.rtsMask == d.rtsMask)...)
		d.pending = append(d.pending, d.tx.update(ev.Timestamp, s&d.txMask == d.txMask, s&d.ctsMask == d.ctsMask)...)

		sort.SliceStable(d.pending, func(i, j int) bool { return d.pending[i].ts < d.pending[j].ts })
	}

	p := d.pending[0]
	d.pending = d.pending[1:]
	return logictrace.Event{Timestamp: p.ts, Payload: p.ev}, true
}

// Build implements the CLI stage-builder contract for the "serial" stage
// name. It consumes the Sample stage on top of the pipeline stack.
func Build(stack *logictrace.Stack, args []string) error {
	fs := flag.NewFlagSet("serial", flag.ContinueOnError)
	tx := fs.Uint("tx", 0, "channel used for the tx pin")
	rx := fs.Uint("rx", 1, "channel used for the rx pin")
	rts := fs.String("rts", "", "channel used for the rts pin")
	cts := fs.String("cts", "", "channel used for the cts pin")
	baud := fs.Float64("baud", 0, "serial line baudrate")
	fs.Float64Var(baud, "b", 0, "shorthand for -baud")
	parity := fs.String("parity", "none", "serial line parity: even, odd, set, clear, none")
	fs.StringVar(parity, "p", "none", "shorthand for -parity")
	stop := fs.Float64("stop", 1, "serial line stop bit length")
	fs.Float64Var(stop, "s", 1, "shorthand for -stop")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *baud <= 0 {
		return fmt.Errorf("serial: -baud is required and must be positive")
	}

	p, err := ParseParity(*parity)
	if err != nil {
		return err
	}

	cfg := Config{
		TxChannel: *tx,
		RxChannel: *rx,
		Baud:      *baud,
		Parity:    p,
		StopBits:  *stop,
	}
	if *rts != "" {
		v, err := strconv.ParseUint(*rts, 10, 8)
		if err != nil {
			return fmt.Errorf("serial: invalid -rts channel %q: %w", *rts, err)
		}
		u := uint(v)
		cfg.RtsChannel = &u
	}
	if *cts != "" {
		v, err := strconv.ParseUint(*cts, 10, 8)
		if err != nil {
			return fmt.Errorf("serial: invalid -cts channel %q: %w", *cts, err)
		}
		u := uint(v)
		cfg.CtsChannel = &u
	}

	upstream, err := stack.RequireKind(logictrace.KindSample, nil)
	if err != nil {
		return err
	}
	dec, err := New(upstream, cfg)
	if err != nil {
		return err
	}
	stack.Push(dec)
	return nil
}

// vim: foldmethod=marker
