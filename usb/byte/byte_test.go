package usbbyte

import (
	"testing"

	"github.com/stretchr/testify/require"

	logictrace "github.com/ithinuel/logic-trace-parser"
	"github.com/ithinuel/logic-trace-parser/usb/signal"
)

type fakeSource struct {
	events []logictrace.Event
	pos    int
}

func (f *fakeSource) Kind() logictrace.Kind { return logictrace.KindUsbSignal }

func (f *fakeSource) Next() (logictrace.Event, bool) {
	if f.pos >= len(f.events) {
		return logictrace.Event{}, false
	}
	ev := f.events[f.pos]
	f.pos++
	return ev, true
}

func sig(ts float64, st signal.State) logictrace.Event {
	return logictrace.Event{Timestamp: ts, Payload: st}
}

func TestSE0LongerThan10msIsAReset(t *testing.T) {
	src := &fakeSource{events: []logictrace.Event{
		sig(0, signal.SE0),
		sig(0.025, signal.J), // 25ms of SE0: a bus reset
		sig(0.026, signal.K),
	}}
	dec, err := New(src, true)
	require.NoError(t, err)

	ev, ok := dec.Next()
	require.True(t, ok)
	require.NoError(t, ev.Err)
	require.Equal(t, Reset, ev.Payload.(Event).Type)

	ev, ok = dec.Next()
	require.True(t, ok)
	require.NoError(t, ev.Err)
	require.Equal(t, Idle, ev.Payload.(Event).Type)
}

func TestSE1IsUnexpectedBusState(t *testing.T) {
	src := &fakeSource{events: []logictrace.Event{
		sig(0, signal.SE1),
		sig(0.0001, signal.J),
		sig(0.0002, signal.K),
	}}
	dec, err := New(src, true)
	require.NoError(t, err)

	ev, ok := dec.Next()
	require.True(t, ok)
	require.Error(t, ev.Err)
}
