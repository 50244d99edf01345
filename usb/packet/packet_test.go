package packet

import (
	"testing"

	"github.com/stretchr/testify/require"

	logictrace "github.com/ithinuel/logic-trace-parser"
	usbbyte "github.com/ithinuel/logic-trace-parser/usb/byte"
)

func TestCRC5OfSingleZeroByte(t *testing.T) {
	require.Equal(t, byte(0x0F), CRC5([]byte{0x00}))
}

func TestCRC16OfSingleZeroByte(t *testing.T) {
	require.Equal(t, uint16(0xFD02), CRC16([]byte{0x00}))
}

func TestParseRejectsBadSyncByte(t *testing.T) {
	_, err := Parse([]byte{0x00, 0xD2})
	require.Error(t, err)
}

func TestParseAckHandShake(t *testing.T) {
	pkt, err := Parse([]byte{0x80, 0xD2})
	require.NoError(t, err)
	require.Equal(t, HandShake, pkt.Kind)
	require.Equal(t, Ack, pkt.HandShake)
}

func TestParseUnknownPacketIsAnError(t *testing.T) {
	_, err := Parse([]byte{0x80, 0xFF, 0xFF})
	require.Error(t, err)
}

type fakeSource struct {
	events []logictrace.Event
	pos    int
}

func (f *fakeSource) Kind() logictrace.Kind { return logictrace.KindUsbByte }

func (f *fakeSource) Next() (logictrace.Event, bool) {
	if f.pos >= len(f.events) {
		return logictrace.Event{}, false
	}
	ev := f.events[f.pos]
	f.pos++
	return ev, true
}

func b(ts float64, ev usbbyte.Event) logictrace.Event {
	return logictrace.Event{Timestamp: ts, Payload: ev}
}

func TestDecoderGroupsBytesBetweenEop(t *testing.T) {
	src := &fakeSource{events: []logictrace.Event{
		b(0, usbbyte.Event{Type: usbbyte.Byte, Data: 0x80}),
		b(1, usbbyte.Event{Type: usbbyte.Byte, Data: 0xD2}),
		b(2, usbbyte.Event{Type: usbbyte.Eop}),
	}}
	dec, err := New(src)
	require.NoError(t, err)

	ev, ok := dec.Next()
	require.True(t, ok)
	require.NoError(t, ev.Err)
	pkt := ev.Payload.(Packet)
	require.Equal(t, HandShake, pkt.Kind)
	require.Equal(t, Ack, pkt.HandShake)
}

func TestDecoderPassesResetThrough(t *testing.T) {
	src := &fakeSource{events: []logictrace.Event{
		b(0, usbbyte.Event{Type: usbbyte.Reset}),
	}}
	dec, err := New(src)
	require.NoError(t, err)

	ev, ok := dec.Next()
	require.True(t, ok)
	require.NoError(t, ev.Err)
	require.Equal(t, Reset, ev.Payload.(Packet).Kind)
}
