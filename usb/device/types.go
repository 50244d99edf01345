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

// Package device decodes USB control transfers and class data on top of
// a usb/protocol transaction stream: Setup/Data/Status staging on
// endpoint 0, and a descriptor walk that discovers the data endpoints
// a capture actually uses instead of assuming a fixed layout.
package device

import "fmt"

// Direction is the control-transfer data phase direction.
type Direction uint8

const (
	Out Direction = iota
	In
)

// RequestType is bits 5..6 of bmRequestType.
type RequestType uint8

const (
	Standard RequestType = iota
	ClassRequest
	Vendor
	ReservedRequestType
)

// Recipient is the low 5 bits of bmRequestType.
type Recipient uint8

const (
	RecipientDevice Recipient = iota
	RecipientInterface
	RecipientEndpoint
	RecipientOther
	RecipientReserved
)

// StandardRequest enumerates bRequest values meaningful when
// RequestType is Standard. The values match the wire encoding.
type StandardRequest uint8

const (
	GetStatus        StandardRequest = 0
	ClearFeature     StandardRequest = 1
	SetFeature       StandardRequest = 3
	SetAddress       StandardRequest = 5
	GetDescriptor    StandardRequest = 6
	SetDescriptor    StandardRequest = 7
	GetConfiguration StandardRequest = 8
	SetConfiguration StandardRequest = 9
	GetInterface     StandardRequest = 10
	SetInterface     StandardRequest = 11
	SyncFrame        StandardRequest = 12
)

// DescriptorType enumerates the wValue high byte of a GetDescriptor
// request.
type DescriptorType uint8

const (
	DescriptorDevice DescriptorType = iota + 1
	DescriptorConfiguration
	DescriptorString
	DescriptorInterface
	DescriptorEndpoint
)

// Request is a decoded 8-byte Setup packet.
type Request struct {
	Direction   Direction
	Type        RequestType
	Recipient   Recipient
	RequestCode byte

	IsStandard     bool
	Standard       StandardRequest
	DescriptorType DescriptorType
	DescriptorIdx  byte

	Value, Index, Length uint16
}

func le16(lo, hi byte) uint16 {
	return uint16(hi)<<8 | uint16(lo)
}

// ParseRequest decodes an 8-byte Setup packet payload.
func ParseRequest(payload []byte) (Request, error) {
	if len(payload) != 8 {
		return Request{}, fmt.Errorf("device: invalid setup packet length %d", len(payload))
	}
	bmRequestType := payload[0]

	req := Request{
		RequestCode: payload[1],
		Value:       le16(payload[2], payload[3]),
		Index:       le16(payload[4], payload[5]),
		Length:      le16(payload[6], payload[7]),
	}
	if bmRequestType&0x80 != 0 {
		req.Direction = In
	}
	switch (bmRequestType >> 5) & 3 {
	case 0:
		req.Type = Standard
	case 1:
		req.Type = ClassRequest
	case 2:
		req.Type = Vendor
	default:
		req.Type = ReservedRequestType
	}
	switch bmRequestType & 0x1F {
	case 0:
		req.Recipient = RecipientDevice
	case 1:
		req.Recipient = RecipientInterface
	case 2:
		req.Recipient = RecipientEndpoint
	case 3:
		req.Recipient = RecipientOther
	default:
		req.Recipient = RecipientReserved
	}

	if req.Type == Standard {
		if std, ok := standardRequestFromByte(req.RequestCode); ok {
			req.IsStandard = true
			req.Standard = std
			if std == GetDescriptor {
				req.DescriptorType = DescriptorType(req.Value >> 8)
				req.DescriptorIdx = byte(req.Value)
			}
		}
	}
	return req, nil
}

func standardRequestFromByte(b byte) (StandardRequest, bool) {
	switch b {
	case 0, 1, 3, 5, 6, 7, 8, 9, 10, 11, 12:
		return StandardRequest(b), true
	default:
		return 0, false
	}
}

// EndpointDirection is the direction field of an endpoint address.
type EndpointDirection uint8

const (
	EndpointOut EndpointDirection = iota
	EndpointIn
)

// TransferType is an endpoint's bmAttributes transfer type.
type TransferType uint8

const (
	TransferControl TransferType = iota
	TransferIsochronous
	TransferBulk
	TransferInterrupt
)

// EndpointDescriptor is a parsed standard endpoint descriptor.
type EndpointDescriptor struct {
	Number        uint8
	Direction     EndpointDirection
	Transfer      TransferType
	MaxPacketSize uint16
	Interval      uint8
}

func parseEndpointDescriptor(b []byte) (EndpointDescriptor, error) {
	if len(b) != 7 || b[1] != 5 {
		return EndpointDescriptor{}, fmt.Errorf("device: invalid endpoint descriptor")
	}
	addr := b[2]
	dir := EndpointOut
	if addr&0x80 != 0 {
		dir = EndpointIn
	}
	return EndpointDescriptor{
		Number:        addr & 0x0F,
		Direction:     dir,
		Transfer:      TransferType(b[3] & 0x03),
		MaxPacketSize: le16(b[4], b[5]),
		Interval:      b[6],
	}, nil
}

// InterfaceDescriptor is a parsed standard interface descriptor, with
// its endpoints. Class-specific descriptors between the interface
// descriptor and its endpoints are skipped rather than decoded.
type InterfaceDescriptor struct {
	Number, AlternateSetting  uint8
	Class, SubClass, Protocol uint8
	Endpoints                 []EndpointDescriptor
}

func parseInterfaceDescriptor(buf []byte) (InterfaceDescriptor, []byte, error) {
	if len(buf) < 9 || buf[1] != 4 {
		return InterfaceDescriptor{}, nil, fmt.Errorf("device: invalid interface descriptor")
	}
	iface := InterfaceDescriptor{
		Number:           buf[2],
		AlternateSetting: buf[3],
		Class:            buf[5],
		SubClass:         buf[6],
		Protocol:         buf[7],
	}
	numEndpoints := int(buf[4])
	rest := buf[9:]

	for len(rest) >= 2 && rest[1] != 5 && rest[1] != 4 {
		l := int(rest[0])
		if l == 0 || l > len(rest) {
			return iface, nil, fmt.Errorf("device: truncated class-specific descriptor")
		}
		rest = rest[l:]
	}
	for i := 0; i < numEndpoints; i++ {
		if len(rest) < 2 {
			return iface, nil, fmt.Errorf("device: truncated endpoint descriptor")
		}
		l := int(rest[0])
		if l == 0 || l > len(rest) {
			return iface, nil, fmt.Errorf("device: truncated endpoint descriptor")
		}
		ep, err := parseEndpointDescriptor(rest[:l])
		if err != nil {
			return iface, nil, err
		}
		iface.Endpoints = append(iface.Endpoints, ep)
		rest = rest[l:]
	}
	return iface, rest, nil
}

// ConfigurationDescriptor is a parsed configuration descriptor together
// with every interface (and their endpoints) it contains.
type ConfigurationDescriptor struct {
	Value                     uint8
	SelfPowered, RemoteWakeup bool
	MaxPowerMilliAmps         uint16
	Interfaces                []InterfaceDescriptor
}

// ParseConfigurationDescriptor decodes the response to a
// GetDescriptor(Configuration) request: the configuration descriptor
// followed by its interface and endpoint descriptors back to back.
func ParseConfigurationDescriptor(buf []byte) (ConfigurationDescriptor, error) {
	if len(buf) < 9 || buf[1] != 2 {
		return ConfigurationDescriptor{}, fmt.Errorf("device: invalid configuration descriptor")
	}
	totalLength := le16(buf[2], buf[3])
	if int(totalLength) != len(buf) {
		return ConfigurationDescriptor{}, fmt.Errorf("device: truncated configuration descriptor (want %d got %d)", totalLength, len(buf))
	}

	cfg := ConfigurationDescriptor{
		Value:             buf[5],
		SelfPowered:       buf[7]&0x40 != 0,
		RemoteWakeup:      buf[7]&0x20 != 0,
		MaxPowerMilliAmps: uint16(buf[8]) * 2,
	}
	rest := buf[9:]
	for len(rest) > 0 {
		iface, next, err := parseInterfaceDescriptor(rest)
		if err != nil {
			return cfg, err
		}
		cfg.Interfaces = append(cfg.Interfaces, iface)
		rest = next
	}
	return cfg, nil
}

// vim: foldmethod=marker
