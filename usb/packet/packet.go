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

// Package packet buffers decoded bytes between Eop markers and parses
// each buffer into a USB 1.x packet: SoF, Token, Data or HandShake,
// validating the CRC5/CRC16 that protects it.
package packet

import (
	"flag"
	"fmt"

	logictrace "github.com/ithinuel/logic-trace-parser"
	usbbyte "github.com/ithinuel/logic-trace-parser/usb/byte"
)

// CRC5 computes the 5-bit USB token CRC over v, as specified for SoF and
// Token packets (PID byte excluded).
func CRC5(v []byte) byte {
	acc := byte(0x1F)
	for _, b := range v {
		for i := 0; i < 8; i++ {
			doXor := (b & 1) != ((acc >> 4) & 1)
			acc <<= 1
			if doXor {
				acc ^= 5
			}
			acc &= 0x1F
			b >>= 1
		}
	}
	return acc
}

// CRC16 computes the 16-bit USB data CRC over v (PID byte excluded).
func CRC16(v []byte) uint16 {
	acc := uint16(0xFFFF)
	for _, b := range v {
		bb := b
		for i := 0; i < 8; i++ {
			doXor := (uint16(bb) & 1) != ((acc >> 15) & 1)
			acc <<= 1
			if doXor {
				acc ^= 0x8005
			}
			bb >>= 1
		}
	}
	return acc
}

// Kind identifies which variant of Packet is populated.
type Kind uint8

const (
	Reset Kind = iota
	SoF
	HandShake
	Token
	Data
)

// TokenType identifies a Token packet's PID.
type TokenType uint8

const (
	TokenSetup TokenType = iota
	TokenOut
	TokenIn
	TokenPing
)

// DataPID identifies a Data packet's toggle PID.
type DataPID uint8

const (
	Data0 DataPID = iota
	Data1
	Data2
	MData
)

// HandShakeType identifies a HandShake packet's PID.
type HandShakeType uint8

const (
	Ack HandShakeType = iota
	NAck
	Stall
	NYet
	Err
)

// Packet is the tagged-variant USB packet.
type Packet struct {
	Kind Kind

	Frame uint16 // SoF

	HandShake HandShakeType // HandShake

	TokenType         TokenType // Token
	Address, Endpoint byte      // Token

	DataPID DataPID // Data
	Payload []byte  // Data
}

func (p Packet) String() string {
	switch p.Kind {
	case Reset:
		return "Reset"
	case SoF:
		return fmt.Sprintf("SoF(%d)", p.Frame)
	case HandShake:
		return fmt.Sprintf("HandShake(%v)", p.HandShake)
	case Token:
		return fmt.Sprintf("Token{type: %v, address: %d, endpoint: %d}", p.TokenType, p.Address, p.Endpoint)
	case Data:
		return fmt.Sprintf("Data{pid: %v, payload(%d): %x}", p.DataPID, len(p.Payload), p.Payload)
	default:
		return "Packet(?)"
	}
}

// Parse decodes buf (sync byte included) into a Packet, verifying the
// CRC that protects it.
func Parse(buf []byte) (Packet, error) {
	if len(buf) == 0 || buf[0] != 0x80 {
		return Packet{}, fmt.Errorf("usb/packet: invalid sync byte")
	}
	body := buf[1:]

	switch {
	case len(body) == 3 && body[0] == 0xA5:
		if CRC5(body[1:]) != 0x0C {
			return Packet{}, fmt.Errorf("usb/packet: crc error")
		}
		frame := ((uint16(body[2]) << 8) | uint16(body[1])) & 0x7FF
		return Packet{Kind: SoF, Frame: frame}, nil

	case len(body) == 3 && (body[0] == 0xE1 || body[0] == 0x69 || body[0] == 0x2D || body[0] == 0xB4):
		if CRC5(body[1:]) != 0x0C {
			return Packet{}, fmt.Errorf("usb/packet: crc error")
		}
		var tt TokenType
		switch body[0] {
		case 0xE1:
			tt = TokenOut
		case 0x69:
			tt = TokenIn
		case 0x2D:
			tt = TokenSetup
		default:
			tt = TokenPing
		}
		lsb, msb := body[1], body[2]
		return Packet{
			Kind:      Token,
			TokenType: tt,
			Address:   lsb & 0x7F,
			Endpoint:  ((msb & 0x7) << 1) | (lsb >> 7),
		}, nil

	case len(body) == 4 && body[0] == 0x78:
		return Packet{}, fmt.Errorf("usb/packet: split tokens are not supported")

	case len(body) >= 3 && (body[0] == 0xC3 || body[0] == 0x4B || body[0] == 0x17 || body[0] == 0x0F):
		if CRC16(body[1:]) != 0x800D {
			return Packet{}, fmt.Errorf("usb/packet: crc error")
		}
		var pid DataPID
		switch body[0] {
		case 0xC3:
			pid = Data0
		case 0x4B:
			pid = Data1
		case 0x17:
			pid = Data2
		default:
			pid = MData
		}
		payload := append([]byte(nil), body[1:len(body)-2]...)
		return Packet{Kind: Data, DataPID: pid, Payload: payload}, nil

	case len(body) == 1 && body[0] == 0xD2:
		return Packet{Kind: HandShake, HandShake: Ack}, nil
	case len(body) == 1 && body[0] == 0x5A:
		return Packet{Kind: HandShake, HandShake: NAck}, nil
	case len(body) == 1 && body[0] == 0x1E:
		return Packet{Kind: HandShake, HandShake: Stall}, nil
	case len(body) == 1 && body[0] == 0x96:
		return Packet{Kind: HandShake, HandShake: NYet}, nil
	case len(body) == 1 && body[0] == 0x3C:
		return Packet{Kind: HandShake, HandShake: Err}, nil

	default:
		return Packet{}, fmt.Errorf("usb/packet: unknown packet %x", buf)
	}
}

// Decoder groups a usb/byte stream into Packet values, buffering bytes
// between Eop markers.
type Decoder struct {
	upstream logictrace.Stage
	stopped  bool
}

// New builds a Decoder consuming upstream.
func New(upstream logictrace.Stage) (*Decoder, error) {
	if upstream.Kind() != logictrace.KindUsbByte {
		return nil, &logictrace.ErrKindMismatch{Expected: logictrace.KindUsbByte, Actual: upstream.Kind()}
	}
	return &Decoder{upstream: upstream}, nil
}

// Kind implements logictrace.Stage.
func (d *Decoder) Kind() logictrace.Kind {
	return logictrace.KindUsbPacket
}

// Next implements logictrace.Stage.
func (d *Decoder) Next() (logictrace.Event, bool) {
	if d.stopped {
		return logictrace.Event{}, false
	}
	var buf []byte
	for {
		ev, ok := d.upstream.Next()
		if !ok {
			d.stopped = true
			return logictrace.Event{}, false
		}
		if ev.Err != nil {
			return logictrace.Event{Timestamp: ev.Timestamp, Err: ev.Err}, true
		}
		b, ok := ev.Payload.(usbbyte.Event)
		if !ok {
			d.stopped = true
			return logictrace.Event{Timestamp: ev.Timestamp, Err: fmt.Errorf("usb/packet: expected a Byte event payload")}, true
		}
		switch b.Type {
		case usbbyte.Reset:
			return logictrace.Event{Timestamp: ev.Timestamp, Payload: Packet{Kind: Reset}}, true
		case usbbyte.Idle:
			continue
		case usbbyte.Byte:
			buf = append(buf, b.Data)
		case usbbyte.Eop:
			pkt, err := Parse(buf)
			if err != nil {
				return logictrace.Event{Timestamp: ev.Timestamp, Err: err}, true
			}
			return logictrace.Event{Timestamp: ev.Timestamp, Payload: pkt}, true
		}
	}
}

// Build implements the CLI stage-builder contract for the "usb::packet"
// stage name. It auto-inserts a usb/byte stage when the pipeline does
// not already have one.
func Build(stack *logictrace.Stack, args []string) error {
	fs := flag.NewFlagSet("usb::packet", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	upstream, err := stack.RequireKind(logictrace.KindUsbByte, func(s *logictrace.Stack) error {
		return usbbyte.Build(s, nil)
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
