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
	"fmt"

	"github.com/ithinuel/logic-trace-parser/usb/packet"
	"github.com/ithinuel/logic-trace-parser/usb/protocol"
)

type requestState uint8

const (
	reqIdle requestState = iota
	reqData
	reqStatus
)

type pendingRequest struct {
	req         Request
	buf         []byte
	earlyStatus bool
}

// controlEndpoint implements the Setup/Data/Status staging of control
// channel 0.
type controlEndpoint struct {
	state   requestState
	pending pendingRequest
}

func newControlEndpoint() *controlEndpoint {
	return &controlEndpoint{}
}

func (c *controlEndpoint) update(tx protocol.Event) (*Event, error) {
	switch tx.HandShake.HandShake {
	case packet.NAck:
		return nil, nil
	case packet.Stall:
		c.state = reqIdle
		return nil, fmt.Errorf("device: control endpoint stalled")
	case packet.Ack:
	default:
		c.state = reqIdle
		return nil, fmt.Errorf("device: unexpected handshake on control endpoint")
	}

	for {
		switch c.state {
		case reqIdle:
			if tx.Token.TokenType != packet.TokenSetup {
				return nil, fmt.Errorf("device: expected a setup transaction while idle")
			}
			if tx.Data == nil {
				return nil, fmt.Errorf("device: missing device request")
			}
			req, err := ParseRequest(tx.Data.Payload)
			if err != nil {
				return nil, err
			}
			c.pending = pendingRequest{req: req}
			if req.Length != 0 {
				c.state = reqData
			} else {
				c.state = reqStatus
			}
			return nil, nil

		case reqData:
			if tx.Token.TokenType == packet.TokenSetup {
				c.state = reqIdle
				return nil, fmt.Errorf("device: unexpected setup transaction mid data stage")
			}
			wantIn, gotIn := c.pending.req.Direction == In, tx.Token.TokenType == packet.TokenIn
			if wantIn != gotIn {
				c.pending.earlyStatus = true
				c.state = reqStatus
				continue
			}
			if tx.Data == nil {
				c.state = reqIdle
				return nil, fmt.Errorf("device: empty data transaction mid data stage")
			}
			if len(c.pending.buf)+len(tx.Data.Payload) > int(c.pending.req.Length) {
				c.state = reqIdle
				return nil, fmt.Errorf("device: combined payload exceeds expected size")
			}
			isZLP := len(tx.Data.Payload) == 0
			c.pending.buf = append(c.pending.buf, tx.Data.Payload...)
			if isZLP || len(c.pending.buf) == int(c.pending.req.Length) {
				c.state = reqStatus
			}
			return nil, nil

		case reqStatus:
			if c.pending.req.Direction == Out && c.pending.earlyStatus {
				c.state = reqIdle
				return nil, fmt.Errorf("device: unexpected early status")
			}
			if tx.Data == nil {
				c.state = reqIdle
				return nil, fmt.Errorf("device: missing status data phase")
			}
			if len(tx.Data.Payload) != 0 {
				c.state = reqIdle
				return nil, fmt.Errorf("device: unexpected payload in status data phase")
			}
			if tx.Data.DataPID != packet.Data1 {
				c.state = reqIdle
				return nil, fmt.Errorf("device: invalid PID for status data phase")
			}

			req, buf := c.pending.req, c.pending.buf
			c.state = reqIdle
			c.pending = pendingRequest{}

			ev := &Event{Type: Control, Request: req, RawResponse: buf}
			if req.IsStandard && req.Standard == GetDescriptor && req.DescriptorType == DescriptorConfiguration && len(buf) > 0 {
				if cfg, err := ParseConfigurationDescriptor(buf); err == nil {
					ev.Configuration = &cfg
				}
			}
			return ev, nil
		}
	}
}

// vim: foldmethod=marker
