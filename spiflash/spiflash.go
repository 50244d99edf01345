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

// Package spiflash decodes SPI-NOR-Flash commands out of a spi.Event
// stream, accumulating one FlashCommand per chip-select assertion window.
package spiflash

import (
	"fmt"

	logictrace "github.com/ithinuel/logic-trace-parser"
	"github.com/ithinuel/logic-trace-parser/spi"
)

// CommandType identifies which NOR-flash command a Command represents.
type CommandType uint8

const (
	Read CommandType = iota
	WriteEnable
	ResetEnable
	Reset
	PageProgram
	BlockErase64K
	BlockErase32K
	SectorErase
	ReadSFDP
	ReadStatusRegister
	ReadDeviceID
)

// Command is the tagged-variant FlashCommand.
type Command struct {
	Type           CommandType
	Addr           uint32
	Data           []byte
	StatusRegister byte
	Manufacturer   byte
	DeviceID       uint16
}

func (c Command) String() string {
	switch c.Type {
	case Read:
		return fmt.Sprintf("Read{addr: %#06x, data(%d): %x}", c.Addr, len(c.Data), c.Data)
	case WriteEnable:
		return "WriteEnable"
	case ResetEnable:
		return "ResetEnable"
	case Reset:
		return "Reset"
	case PageProgram:
		return fmt.Sprintf("PageProgram{addr: %#06x, data(%d): %x}", c.Addr, len(c.Data), c.Data)
	case BlockErase64K:
		return fmt.Sprintf("BlockErase64K(%#x)", c.Addr)
	case BlockErase32K:
		return fmt.Sprintf("BlockErase32K(%#x)", c.Addr)
	case SectorErase:
		return fmt.Sprintf("SectorErase(%#x)", c.Addr)
	case ReadSFDP:
		return fmt.Sprintf("ReadSFDP{addr: %#06x, data(%d): %x}", c.Addr, len(c.Data), c.Data)
	case ReadStatusRegister:
		return fmt.Sprintf("ReadStatusRegister(%#02x)", c.StatusRegister)
	case ReadDeviceID:
		return fmt.Sprintf("ReadDeviceID{manufacturer: %#02x, device: %#04x}", c.Manufacturer, c.DeviceID)
	default:
		return "Command(?)"
	}
}

type partialKind uint8

const (
	partialNone partialKind = iota
	partialRead
	partialReadStatusRegister
	partialPageProgram
	partialBlockErase
	partialBlockErase32
	partialSectorErase
	partialReadSFDP
	partialReadDeviceID
)

// Decoder turns a spi.Event stream into spiflash.Command values.
type Decoder struct {
	upstream logictrace.Stage

	selected bool
	kind     partialKind
	idx      int
	startTS  float64
	addr     uint32
	data     []byte

	manufacturer byte
	deviceID     uint16

	stopped bool
}

// New builds a Decoder consuming upstream.
func New(upstream logictrace.Stage) (*Decoder, error) {
	if upstream.Kind() != logictrace.KindSpiEvent {
		return nil, &logictrace.ErrKindMismatch{Expected: logictrace.KindSpiEvent, Actual: upstream.Kind()}
	}
	return &Decoder{upstream: upstream}, nil
}

// Kind implements logictrace.Stage.
func (d *Decoder) Kind() logictrace.Kind {
	return logictrace.KindFlashCommand
}

func mk(ts float64, c Command) logictrace.Event {
	return logictrace.Event{Timestamp: ts, Payload: c}
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
		se, ok := ev.Payload.(spi.Event)
		if !ok {
			d.stopped = true
			return logictrace.Event{Timestamp: ev.Timestamp, Err: fmt.Errorf("spiflash: expected a spi.Event payload")}, true
		}
		if out, produced := d.update(ev.Timestamp, se); produced {
			return out, true
		}
	}
}

func (d *Decoder) update(ts float64, se spi.Event) (logictrace.Event, bool) {
	switch se.Type {
	case spi.ChipSelect:
		if se.CS {
			d.selected = true
			return logictrace.Event{}, false
		}
		d.selected = false
		kind, startTS, addr, data := d.kind, d.startTS, d.addr, d.data
		d.kind, d.idx, d.data = partialNone, 0, nil
		switch kind {
		case partialRead:
			return mk(startTS, Command{Type: Read, Addr: addr, Data: data}), true
		case partialPageProgram:
			return mk(startTS, Command{Type: PageProgram, Addr: addr, Data: data}), true
		case partialReadSFDP:
			return mk(startTS, Command{Type: ReadSFDP, Addr: addr, Data: data}), true
		default:
			return logictrace.Event{}, false
		}
	case spi.Data:
		if !d.selected {
			return logictrace.Event{}, false
		}
		return d.consume(ts, se.MOSI, se.MISO)
	default:
		return logictrace.Event{}, false
	}
}

func (d *Decoder) consume(ts float64, mosi, miso byte) (logictrace.Event, bool) {
	switch d.kind {
	case partialNone:
		d.idx = 0
		d.startTS = ts
		switch mosi {
		case 0x02:
			d.kind, d.addr, d.data = partialPageProgram, 0, nil
		case 0x03:
			d.kind, d.addr, d.data = partialRead, 0, nil
		case 0x05:
			d.kind = partialReadStatusRegister
		case 0x06:
			return mk(ts, Command{Type: WriteEnable}), true
		case 0x20:
			d.kind, d.addr = partialSectorErase, 0
		case 0x52:
			d.kind, d.addr = partialBlockErase32, 0
		case 0x5A:
			d.kind, d.addr, d.data = partialReadSFDP, 0, nil
		case 0x66:
			return mk(ts, Command{Type: ResetEnable}), true
		case 0x99:
			return mk(ts, Command{Type: Reset}), true
		case 0x9F:
			d.kind = partialReadDeviceID
		case 0xD8:
			d.kind, d.addr = partialBlockErase, 0
		default:
			d.kind = partialNone
			return logictrace.Event{Timestamp: ts, Err: fmt.Errorf("spiflash: unsupported command %#02x", mosi)}, true
		}
		return logictrace.Event{}, false

	case partialRead:
		if d.idx < 3 {
			d.addr = (d.addr << 8) | uint32(mosi)
			d.idx++
		} else {
			d.data = append(d.data, miso)
		}
		return logictrace.Event{}, false

	case partialReadStatusRegister:
		d.kind = partialNone
		return mk(d.startTS, Command{Type: ReadStatusRegister, StatusRegister: miso}), true

	case partialBlockErase:
		if d.idx < 2 {
			d.addr = (d.addr << 8) | uint32(mosi)
			d.idx++
			return logictrace.Event{}, false
		}
		addr := (d.addr << 8) | uint32(mosi)
		d.kind = partialNone
		return mk(d.startTS, Command{Type: BlockErase64K, Addr: addr}), true

	case partialBlockErase32:
		if d.idx < 2 {
			d.addr = (d.addr << 8) | uint32(mosi)
			d.idx++
			return logictrace.Event{}, false
		}
		addr := (d.addr << 8) | uint32(mosi)
		d.kind = partialNone
		return mk(d.startTS, Command{Type: BlockErase32K, Addr: addr}), true

	case partialSectorErase:
		if d.idx < 2 {
			d.addr = (d.addr << 8) | uint32(mosi)
			d.idx++
			return logictrace.Event{}, false
		}
		addr := (d.addr << 8) | uint32(mosi)
		d.kind = partialNone
		return mk(d.startTS, Command{Type: SectorErase, Addr: addr}), true

	case partialPageProgram:
		if d.idx < 3 {
			d.addr = (d.addr << 8) | uint32(mosi)
			d.idx++
		} else {
			d.data = append(d.data, mosi)
		}
		return logictrace.Event{}, false

	case partialReadSFDP:
		if d.idx < 3 {
			d.addr = (d.addr << 8) | uint32(mosi)
			d.idx++
		} else {
			d.data = append(d.data, miso)
		}
		return logictrace.Event{}, false

	case partialReadDeviceID:
		switch d.idx {
		case 0:
			d.manufacturer = miso
			d.idx++
		case 1:
			d.deviceID = uint16(miso) << 8
			d.idx++
		case 2:
			d.deviceID |= uint16(miso)
			man, dev := d.manufacturer, d.deviceID
			d.kind = partialNone
			return mk(d.startTS, Command{Type: ReadDeviceID, Manufacturer: man, DeviceID: dev}), true
		}
		return logictrace.Event{}, false

	default:
		return logictrace.Event{}, false
	}
}

// Build implements the CLI stage-builder contract for the "spif" stage
// name. It reuses the spi stage's flags to auto-insert an spi.Decoder
// when the pipeline does not already have one, exactly as the tool this
// package is modeled on re-exposes spi's own argument set under "spif".
func Build(stack *logictrace.Stack, args []string) error {
	upstream, err := stack.RequireKind(logictrace.KindSpiEvent, func(s *logictrace.Stack) error {
		return spi.Build(s, args)
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
