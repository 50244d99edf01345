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

// Package signal decodes the differential D+/D- lines of a USB 1.x bus
// into the four line states (J, K, SE0, SE1), collapsing runs of
// identical state into a single change event.
package signal

import (
	"flag"
	"fmt"

	logictrace "github.com/ithinuel/logic-trace-parser"
)

// State is one of the four USB line states.
type State uint8

const (
	SE0 State = iota
	J
	K
	SE1
)

func (s State) String() string {
	switch s {
	case SE0:
		return "SE0"
	case J:
		return "J"
	case K:
		return "K"
	case SE1:
		return "SE1"
	default:
		return "?"
	}
}

// Decoder turns a logictrace.Sample stream into line-state change events.
type Decoder struct {
	upstream logictrace.Stage

	fullSpeed       bool
	dpMask, dmMask  uint64
	haveCurrent     bool
	current         State
	stopped         bool
}

// New builds a Decoder consuming upstream. fullSpeed selects the J/K
// mapping for full-speed (idle=J=D+ high) vs low-speed (idle=J=D- high)
// devices.
func New(upstream logictrace.Stage, dpChannel, dmChannel uint, fullSpeed bool) (*Decoder, error) {
	if upstream.Kind() != logictrace.KindSample {
		return nil, &logictrace.ErrKindMismatch{Expected: logictrace.KindSample, Actual: upstream.Kind()}
	}
	return &Decoder{
		upstream:  upstream,
		fullSpeed: fullSpeed,
		dpMask:    1 << dpChannel,
		dmMask:    1 << dmChannel,
	}, nil
}

// Kind implements logictrace.Stage.
func (d *Decoder) Kind() logictrace.Kind {
	return logictrace.KindUsbSignal
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
		smp, ok := ev.Payload.(logictrace.Sample)
		if !ok {
			d.stopped = true
			return logictrace.Event{Timestamp: ev.Timestamp, Err: fmt.Errorf("usb/signal: expected a Sample payload")}, true
		}
		s := uint64(smp)
		dp := s&d.dpMask == d.dpMask
		dm := s&d.dmMask == d.dmMask

		var st State
		switch {
		case dp && dm:
			st = SE1
		case (dp && !dm && d.fullSpeed) || (!dp && dm && !d.fullSpeed):
			st = J
		case (dp && !dm && !d.fullSpeed) || (!dp && dm && d.fullSpeed):
			st = K
		default:
			st = SE0
		}

		if d.haveCurrent && st == d.current {
			continue
		}
		d.haveCurrent = true
		d.current = st
		return logictrace.Event{Timestamp: ev.Timestamp, Payload: st}, true
	}
}

// Build implements the CLI stage-builder contract for the "usb::signal"
// stage name.
func Build(stack *logictrace.Stack, args []string) error {
	fs := flag.NewFlagSet("usb::signal", flag.ContinueOnError)
	dp := fs.Uint("dp", 0, "channel used for the d+ pin")
	dm := fs.Uint("dm", 1, "channel used for the d- pin")
	fullSpeed := fs.Bool("fs", false, "the capture is of a full-speed USB device")
	if err := fs.Parse(args); err != nil {
		return err
	}

	upstream, err := stack.RequireKind(logictrace.KindSample, nil)
	if err != nil {
		return err
	}
	dec, err := New(upstream, *dp, *dm, *fullSpeed)
	if err != nil {
		return err
	}
	stack.Push(dec)
	return nil
}

// vim: foldmethod=marker
