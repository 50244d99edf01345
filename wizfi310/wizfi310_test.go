package wizfi310

import (
	"testing"

	"github.com/stretchr/testify/require"

	logictrace "github.com/ithinuel/logic-trace-parser"
	"github.com/ithinuel/logic-trace-parser/serial"
)

type fakeSource struct {
	events []logictrace.Event
	pos    int
}

func (f *fakeSource) Kind() logictrace.Kind { return logictrace.KindSerialEvent }

func (f *fakeSource) Next() (logictrace.Event, bool) {
	if f.pos >= len(f.events) {
		return logictrace.Event{}, false
	}
	ev := f.events[f.pos]
	f.pos++
	return ev, true
}

func tx(ts float64, c byte) logictrace.Event {
	return logictrace.Event{Timestamp: ts, Payload: serial.Event{Type: serial.Tx, Byte: c}}
}

func rx(ts float64, c byte) logictrace.Event {
	return logictrace.Event{Timestamp: ts, Payload: serial.Event{Type: serial.Rx, Byte: c}}
}

func feed(t *testing.T, dec *Decoder, n int) []Event {
	t.Helper()
	var out []Event
	for i := 0; i < n; i++ {
		ev, ok := dec.Next()
		require.True(t, ok)
		require.NoError(t, ev.Err)
		out = append(out, ev.Payload.(Event))
	}
	return out
}

func TestOutboundCommandTerminatesOnCR(t *testing.T) {
	var events []logictrace.Event
	for i, c := range []byte("AT\r") {
		events = append(events, tx(float64(i), c))
	}
	dec, err := New(&fakeSource{events: events})
	require.NoError(t, err)

	got := feed(t, dec, 1)
	require.Equal(t, Command, got[0].Type)
	require.Equal(t, "AT", got[0].Line)
}

func TestBracketedResponseArmsDataToSend(t *testing.T) {
	var events []logictrace.Event
	ts := 0.0
	for _, c := range []byte("[OK,3]\r\n") {
		events = append(events, rx(ts, c))
		ts++
	}
	for _, c := range []byte("abc") {
		events = append(events, tx(ts, c))
		ts++
	}
	dec, err := New(&fakeSource{events: events})
	require.NoError(t, err)

	got := feed(t, dec, 2)
	require.Equal(t, Resp, got[0].Type)
	require.Equal(t, "[OK,3]\r\n", got[0].Line)
	require.Equal(t, Sent, got[1].Type)
	require.Equal(t, "abc", got[1].Line)
}

func TestRecvHeaderThenPayload(t *testing.T) {
	var events []logictrace.Event
	ts := 0.0
	for _, c := range []byte("{0,192.168.1.1,80,5}") {
		events = append(events, rx(ts, c))
		ts++
	}
	for _, c := range []byte("hello") {
		events = append(events, rx(ts, c))
		ts++
	}
	dec, err := New(&fakeSource{events: events})
	require.NoError(t, err)

	got := feed(t, dec, 1)
	require.Equal(t, Recv, got[0].Type)
	require.Equal(t, "hello", got[0].Line)
	require.Equal(t, uint8(0), got[0].Header.SocketID)
	require.Equal(t, "192.168.1.1", got[0].Header.IP.String())
	require.Equal(t, uint16(80), got[0].Header.Port)
}

func TestUnheaderedPayloadIsAnError(t *testing.T) {
	dec, err := New(&fakeSource{})
	require.NoError(t, err)
	dec.dataToReceive = 2

	src := &fakeSource{events: []logictrace.Event{rx(0, 'h'), rx(1, 'i')}}
	dec.upstream = src

	ev, ok := dec.Next()
	require.True(t, ok)
	require.Error(t, ev.Err)
}
