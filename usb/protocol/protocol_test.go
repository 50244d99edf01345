package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"

	logictrace "github.com/ithinuel/logic-trace-parser"
	"github.com/ithinuel/logic-trace-parser/usb/packet"
)

type fakeSource struct {
	events []logictrace.Event
	pos    int
}

func (f *fakeSource) Kind() logictrace.Kind { return logictrace.KindUsbPacket }

func (f *fakeSource) Next() (logictrace.Event, bool) {
	if f.pos >= len(f.events) {
		return logictrace.Event{}, false
	}
	ev := f.events[f.pos]
	f.pos++
	return ev, true
}

func pk(ts float64, p packet.Packet) logictrace.Event {
	return logictrace.Event{Timestamp: ts, Payload: p}
}

func TestTokenDataHandshakeFormsATransaction(t *testing.T) {
	src := &fakeSource{events: []logictrace.Event{
		pk(0, packet.Packet{Kind: packet.Token, TokenType: packet.TokenOut, Address: 5, Endpoint: 1}),
		pk(1, packet.Packet{Kind: packet.Data, DataPID: packet.Data0, Payload: []byte{1, 2, 3}}),
		pk(2, packet.Packet{Kind: packet.HandShake, HandShake: packet.Ack}),
	}}
	dec, err := New(src)
	require.NoError(t, err)

	ev, ok := dec.Next()
	require.True(t, ok)
	require.NoError(t, ev.Err)
	got := ev.Payload.(Event)
	require.Equal(t, Transaction, got.Type)
	require.Equal(t, byte(5), got.Token.Address)
	require.NotNil(t, got.Data)
	require.Equal(t, []byte{1, 2, 3}, got.Data.Payload)
	require.Equal(t, packet.Ack, got.HandShake.HandShake)
}

func TestTokenHandshakeWithNoDataStage(t *testing.T) {
	src := &fakeSource{events: []logictrace.Event{
		pk(0, packet.Packet{Kind: packet.Token, TokenType: packet.TokenIn, Address: 5, Endpoint: 2}),
		pk(1, packet.Packet{Kind: packet.HandShake, HandShake: packet.NAck}),
	}}
	dec, err := New(src)
	require.NoError(t, err)

	ev, ok := dec.Next()
	require.True(t, ok)
	require.NoError(t, ev.Err)
	got := ev.Payload.(Event)
	require.Nil(t, got.Data)
}

func TestUnexpectedDataPacketIsAnError(t *testing.T) {
	src := &fakeSource{events: []logictrace.Event{
		pk(0, packet.Packet{Kind: packet.Data, Payload: []byte{1}}),
	}}
	dec, err := New(src)
	require.NoError(t, err)

	ev, ok := dec.Next()
	require.True(t, ok)
	require.Error(t, ev.Err)
}

func TestResetClearsState(t *testing.T) {
	src := &fakeSource{events: []logictrace.Event{
		pk(0, packet.Packet{Kind: packet.Token}),
		pk(1, packet.Packet{Kind: packet.Reset}),
	}}
	dec, err := New(src)
	require.NoError(t, err)

	ev, ok := dec.Next()
	require.True(t, ok)
	require.NoError(t, ev.Err)
	require.Equal(t, Reset, ev.Payload.(Event).Type)
	require.Equal(t, stIdle, dec.st)
}
