package device

import (
	"testing"

	"github.com/stretchr/testify/require"

	logictrace "github.com/ithinuel/logic-trace-parser"
	"github.com/ithinuel/logic-trace-parser/usb/packet"
	"github.com/ithinuel/logic-trace-parser/usb/protocol"
)

type fakeSource struct {
	events []logictrace.Event
	pos    int
}

func (f *fakeSource) Kind() logictrace.Kind { return logictrace.KindUsbTransaction }

func (f *fakeSource) Next() (logictrace.Event, bool) {
	if f.pos >= len(f.events) {
		return logictrace.Event{}, false
	}
	ev := f.events[f.pos]
	f.pos++
	return ev, true
}

func tx(ts float64, tok packet.Packet, data *packet.Packet, hs packet.HandShakeType) logictrace.Event {
	return logictrace.Event{Timestamp: ts, Payload: protocol.Event{
		Type:      protocol.Transaction,
		Token:     tok,
		Data:      data,
		HandShake: packet.Packet{Kind: packet.HandShake, HandShake: hs},
	}}
}

func dataPkt(pid packet.DataPID, payload []byte) *packet.Packet {
	return &packet.Packet{Kind: packet.Data, DataPID: pid, Payload: payload}
}

// configurationDescriptor builds a minimal GetDescriptor(Configuration)
// response: one CDC Data interface with a single IN bulk endpoint.
func configurationDescriptor() []byte {
	cfg := []byte{9, 2, 25, 0, 1, 1, 0, 0x40, 25}
	iface := []byte{9, 4, 0, 0, 1, 10, 0, 0, 0}
	ep := []byte{7, 5, 0x81, 0x02, 64, 0, 0}
	buf := append([]byte{}, cfg...)
	buf = append(buf, iface...)
	buf = append(buf, ep...)
	return buf
}

func TestControlTransferYieldsDecodedRequest(t *testing.T) {
	setup := []byte{0x80, 6, 0, 2, 0, 0, 25, 0}
	cfgBuf := configurationDescriptor()

	src := &fakeSource{events: []logictrace.Event{
		tx(0, packet.Packet{Kind: packet.Token, TokenType: packet.TokenSetup, Endpoint: 0}, dataPkt(packet.Data0, setup), packet.Ack),
		tx(1, packet.Packet{Kind: packet.Token, TokenType: packet.TokenIn, Endpoint: 0}, dataPkt(packet.Data1, cfgBuf), packet.Ack),
		tx(2, packet.Packet{Kind: packet.Token, TokenType: packet.TokenOut, Endpoint: 0}, dataPkt(packet.Data1, nil), packet.Ack),
	}}
	dec, err := New(src)
	require.NoError(t, err)

	ev, ok := dec.Next()
	require.True(t, ok)
	require.NoError(t, ev.Err)
	got := ev.Payload.(Event)
	require.Equal(t, Control, got.Type)
	require.True(t, got.Request.IsStandard)
	require.Equal(t, GetDescriptor, got.Request.Standard)
	require.Equal(t, DescriptorConfiguration, got.Request.DescriptorType)
	require.NotNil(t, got.Configuration)
	require.Len(t, got.Configuration.Interfaces, 1)
	require.Equal(t, uint8(10), got.Configuration.Interfaces[0].Class)
	require.Len(t, got.Configuration.Interfaces[0].Endpoints, 1)
	require.Equal(t, uint8(1), got.Configuration.Interfaces[0].Endpoints[0].Number)

	_, ok = dec.Next()
	require.False(t, ok)
}

func TestEnumeratedCdcEndpointEmitsClassEvents(t *testing.T) {
	setup := []byte{0x80, 6, 0, 2, 0, 0, 25, 0}
	cfgBuf := configurationDescriptor()

	src := &fakeSource{events: []logictrace.Event{
		tx(0, packet.Packet{Kind: packet.Token, TokenType: packet.TokenSetup, Endpoint: 0}, dataPkt(packet.Data0, setup), packet.Ack),
		tx(1, packet.Packet{Kind: packet.Token, TokenType: packet.TokenIn, Endpoint: 0}, dataPkt(packet.Data1, cfgBuf), packet.Ack),
		tx(2, packet.Packet{Kind: packet.Token, TokenType: packet.TokenOut, Endpoint: 0}, dataPkt(packet.Data1, nil), packet.Ack),
		tx(3, packet.Packet{Kind: packet.Token, TokenType: packet.TokenIn, Endpoint: 1}, dataPkt(packet.Data0, []byte("hello")), packet.Ack),
	}}
	dec, err := New(src)
	require.NoError(t, err)

	ev, ok := dec.Next()
	require.True(t, ok)
	require.Equal(t, Control, ev.Payload.(Event).Type)

	ev, ok = dec.Next()
	require.True(t, ok)
	require.NoError(t, ev.Err)
	got := ev.Payload.(Event)
	require.Equal(t, Class, got.Type)
	require.Equal(t, CdcRx, got.Class.Kind)
	require.Equal(t, uint8(1), got.Class.Endpoint)
	require.Equal(t, []byte("hello"), got.Class.Data)
}

func TestTransactionOnUnregisteredEndpointIsAnError(t *testing.T) {
	src := &fakeSource{events: []logictrace.Event{
		tx(0, packet.Packet{Kind: packet.Token, TokenType: packet.TokenIn, Endpoint: 3}, dataPkt(packet.Data0, []byte{1}), packet.Ack),
	}}
	dec, err := New(src)
	require.NoError(t, err)

	ev, ok := dec.Next()
	require.True(t, ok)
	require.Error(t, ev.Err)
}

func TestStallOnControlEndpointIsAnError(t *testing.T) {
	setup := []byte{0x80, 6, 0, 2, 0, 0, 25, 0}
	src := &fakeSource{events: []logictrace.Event{
		tx(0, packet.Packet{Kind: packet.Token, TokenType: packet.TokenSetup, Endpoint: 0}, dataPkt(packet.Data0, setup), packet.Stall),
	}}
	dec, err := New(src)
	require.NoError(t, err)

	ev, ok := dec.Next()
	require.True(t, ok)
	require.Error(t, ev.Err)
}

func TestResetClearsEndpointRegistrations(t *testing.T) {
	src := &fakeSource{events: []logictrace.Event{
		{Timestamp: 0, Payload: protocol.Event{Type: protocol.Reset}},
	}}
	dec, err := New(src)
	require.NoError(t, err)
	dec.endpoints[1] = &cdcEndpoint{id: 1}

	ev, ok := dec.Next()
	require.True(t, ok)
	require.Equal(t, Reset, ev.Payload.(Event).Type)
	require.Empty(t, dec.endpoints)
}
