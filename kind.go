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

package logictrace

import "fmt"

// Kind identifies the concrete payload type a Stage's events carry. It
// plays the same role sdr.SampleFormat plays for IQ readers: a stage
// advertises its Kind so that the next stage in a dynamically assembled
// pipeline can check compatibility before it starts pulling events.
type Kind uint8

const (
	// KindSample tags a Stage that yields Sample payloads.
	KindSample Kind = iota + 1
	// KindSerialEvent tags a Stage that yields serial.Event payloads.
	KindSerialEvent
	// KindSpiEvent tags a Stage that yields spi.Event payloads.
	KindSpiEvent
	// KindFlashCommand tags a Stage that yields spiflash.Command payloads.
	KindFlashCommand
	// KindUsbSignal tags a Stage that yields signal.State payloads.
	KindUsbSignal
	// KindUsbByte tags a Stage that yields usbbyte.Event payloads.
	KindUsbByte
	// KindUsbPacket tags a Stage that yields packet.Packet payloads.
	KindUsbPacket
	// KindUsbTransaction tags a Stage that yields protocol.Event payloads.
	KindUsbTransaction
	// KindDeviceEvent tags a Stage that yields device.Event payloads.
	KindDeviceEvent
	// KindWizFi310Event tags a Stage that yields wizfi310.Event payloads.
	KindWizFi310Event
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindSample:
		return "sample"
	case KindSerialEvent:
		return "serial-event"
	case KindSpiEvent:
		return "spi-event"
	case KindFlashCommand:
		return "flash-command"
	case KindUsbSignal:
		return "usb-signal"
	case KindUsbByte:
		return "usb-byte"
	case KindUsbPacket:
		return "usb-packet"
	case KindUsbTransaction:
		return "usb-transaction"
	case KindDeviceEvent:
		return "device-event"
	case KindWizFi310Event:
		return "wizfi310-event"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// vim: foldmethod=marker
