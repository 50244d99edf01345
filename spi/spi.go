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

// Package spi decodes a 4-wire SPI bus (chip select, clock, MOSI, MISO)
// out of a logictrace.Sample stream into ChipSelect/Data events.
//
// This decoder is built fresh from the SpiEvent contract: the capture
// tool this repo is modeled on shipped this stage as an empty file, so
// there is no source to port, only the downstream (SPI-NOR-Flash) stage's
// expectations to satisfy.
package spi

import (
	"flag"
	"fmt"

	logictrace "github.com/ithinuel/logic-trace-parser"
)

// Polarity is the SPI clock polarity (CPOL): the bus-idle clock level.
type Polarity uint8

const (
	PolarityLow Polarity = iota
	PolarityHigh
)

// Phase is the SPI clock phase (CPHA): which clock edge data is sampled on.
type Phase uint8

const (
	PhaseLeading Phase = iota
	PhaseTrailing
)

// BitOrder selects whether the first bit shifted in each word is the MSB
// or the LSB.
type BitOrder uint8

const (
	MSBFirst BitOrder = iota
	LSBFirst
)

// EventType identifies which variant of Event is populated.
type EventType uint8

const (
	// ChipSelect reports a change of the CS line.
	ChipSelect EventType = iota
	// Data reports one fully shifted 8-bit word on MOSI/MISO.
	Data
)

// Event is the tagged-variant SpiEvent.
type Event struct {
	Type EventType
	// CS is true while the device is selected (the CS line is
	// asserted).
	CS         bool
	MOSI, MISO byte
}

func (e Event) String() string {
	if e.Type == ChipSelect {
		return fmt.Sprintf("ChipSelect(%v)", e.CS)
	}
	return fmt.Sprintf("Data{mosi: %#02x, miso: %#02x}", e.MOSI, e.MISO)
}

// Config configures a Decoder.
type Config struct {
	CSChannel   uint
	SCKChannel  uint
	MOSIChannel uint
	MISOChannel uint
	CPOL        Polarity
	CPHA        Phase
	BitOrder    BitOrder
}

// Decoder turns a logictrace.Sample stream into spi.Event values.
type Decoder struct {
	upstream logictrace.Stage
	cfg      Config

	csMask, sckMask, mosiMask, misoMask uint64
	sampleOnRising                      bool

	havePrev      bool
	prevCS        bool
	prevSCK       bool
	selected      bool
	mosiReg       byte
	misoReg       byte
	bitCount      int
	stopped       bool
}

// New builds a Decoder consuming upstream.
func New(upstream logictrace.Stage, cfg Config) (*Decoder, error) {
	if upstream.Kind() != logictrace.KindSample {
		return nil, &logictrace.ErrKindMismatch{Expected: logictrace.KindSample, Actual: upstream.Kind()}
	}
	sampleOnRising := (cfg.CPOL == PolarityLow && cfg.CPHA == PhaseLeading) ||
		(cfg.CPOL == PolarityHigh && cfg.CPHA == PhaseTrailing)
	return &Decoder{
		upstream:       upstream,
		cfg:            cfg,
		csMask:         1 << cfg.CSChannel,
		sckMask:        1 << cfg.SCKChannel,
		mosiMask:       1 << cfg.MOSIChannel,
		misoMask:       1 << cfg.MISOChannel,
		sampleOnRising: sampleOnRising,
	}, nil
}

// Kind implements logictrace.Stage.
func (d *Decoder) Kind() logictrace.Kind {
	return logictrace.KindSpiEvent
}

func (d *Decoder) shiftBit(mosiBit, misoBit bool) {
	switch d.cfg.BitOrder {
	case LSBFirst:
		d.mosiReg >>= 1
		d.misoReg >>= 1
		if mosiBit {
			d.mosiReg |= 0x80
		}
		if misoBit {
			d.misoReg |= 0x80
		}
	default:
		d.mosiReg <<= 1
		d.misoReg <<= 1
		if mosiBit {
			d.mosiReg |= 0x01
		}
		if misoBit {
			d.misoReg |= 0x01
		}
	}
	d.bitCount++
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
			return logictrace.Event{Timestamp: ev.Timestamp, Err: fmt.Errorf("spi: expected a Sample payload")}, true
		}
		s := uint64(smp)

		cs := s&d.csMask != d.csMask // active low: bit clear means asserted
		sck := s&d.sckMask == d.sckMask

		if !d.havePrev {
			d.havePrev = true
			d.prevCS = cs
			d.prevSCK = sck
			d.selected = cs
			continue
		}

		if cs != d.prevCS {
			d.prevCS = cs
			d.selected = cs
			d.mosiReg, d.misoReg, d.bitCount = 0, 0, 0
			return logictrace.Event{Timestamp: ev.Timestamp, Payload: Event{Type: ChipSelect, CS: cs}}, true
		}

		if d.selected && sck != d.prevSCK {
			edgeIsRising := sck && !d.prevSCK
			d.prevSCK = sck
			if edgeIsRising == d.sampleOnRising {
				d.shiftBit(s&d.mosiMask == d.mosiMask, s&d.misoMask == d.misoMask)
				if d.bitCount == 8 {
					mosi, miso := d.mosiReg, d.misoReg
					d.mosiReg, d.misoReg, d.bitCount = 0, 0, 0
					return logictrace.Event{Timestamp: ev.Timestamp, Payload: Event{Type: Data, MOSI: mosi, MISO: miso}}, true
				}
			}
			continue
		}
		d.prevSCK = sck
	}
}

// Build implements the CLI stage-builder contract for the "spi" stage
// name.
func Build(stack *logictrace.Stack, args []string) error {
	fs := flag.NewFlagSet("spi", flag.ContinueOnError)
	cs := fs.Uint("cs", 0, "channel used for chip select")
	sck := fs.Uint("sck", 1, "channel used for the clock")
	mosi := fs.Uint("mosi", 2, "channel used for mosi")
	miso := fs.Uint("miso", 3, "channel used for miso")
	cpol := fs.Uint("cpol", 0, "clock polarity (0 or 1)")
	cpha := fs.Uint("cpha", 0, "clock phase (0 or 1)")
	lsbFirst := fs.Bool("lsb-first", false, "shift the least significant bit in first")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := Config{
		CSChannel:   *cs,
		SCKChannel:  *sck,
		MOSIChannel: *mosi,
		MISOChannel: *miso,
	}
	if *cpol != 0 {
		cfg.CPOL = PolarityHigh
	}
	if *cpha != 0 {
		cfg.CPHA = PhaseTrailing
	}
	if *lsbFirst {
		cfg.BitOrder = LSBFirst
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
