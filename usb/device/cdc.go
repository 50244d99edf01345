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

package device

import (
	"github.com/ithinuel/logic-trace-parser/usb/packet"
	"github.com/ithinuel/logic-trace-parser/usb/protocol"
)

// ClassKind identifies which variant of ClassPayload is populated.
type ClassKind uint8

const (
	CdcRx ClassKind = iota
	CdcTx
)

// ClassPayload is a class-specific data event, keyed by endpoint.
type ClassPayload struct {
	Kind     ClassKind
	Endpoint uint8
	Data     []byte
}

// cdcEndpoint reports each acknowledged data transaction on a CDC data
// endpoint as an Rx (device to host, i.e. a TokenIn transaction) or Tx
// (host to device) class event.
type cdcEndpoint struct {
	id uint8
}

func (e *cdcEndpoint) update(tx protocol.Event) (*Event, error) {
	if tx.HandShake.HandShake != packet.Ack || tx.Data == nil {
		return nil, nil
	}
	kind := CdcTx
	if tx.Token.TokenType == packet.TokenIn {
		kind = CdcRx
	}
	return &Event{Type: Class, Class: ClassPayload{Kind: kind, Endpoint: e.id, Data: tx.Data.Payload}}, nil
}

// vim: foldmethod=marker
