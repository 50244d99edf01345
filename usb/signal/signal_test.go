package signal

import (
	"testing"

	"github.com/stretchr/testify/require"

	logictrace "github.com/ithinuel/logic-trace-parser"
)

type fakeSource struct {
	samples []logictrace.Sample
	pos     int
}

func (f *fakeSource) Kind() logictrace.Kind { return logictrace.KindSample }

func (f *fakeSource) Next() (logictrace.Event, bool) {
	if f.pos >= len(f.samples) {
		return logictrace.Event{}, false
	}
	s := f.samples[f.pos]
	f.pos++
	return logictrace.Event{Timestamp: float64(f.pos), Payload: s}, true
}

func mk(dp, dm bool) logictrace.Sample {
	var s logictrace.Sample
	if dp {
		s |= 1
	}
	if dm {
		s |= 2
	}
	return s
}

func TestCollapsesRepeatedState(t *testing.T) {
	src := &fakeSource{samples: []logictrace.Sample{
		mk(true, false),
		mk(true, false),
		mk(false, true),
		mk(false, true),
		mk(false, false),
	}}
	dec, err := New(src, 0, 1, true)
	require.NoError(t, err)

	var states []State
	for {
		ev, ok := dec.Next()
		if !ok {
			break
		}
		require.NoError(t, ev.Err)
		states = append(states, ev.Payload.(State))
	}
	require.Equal(t, []State{J, K, SE0}, states)
}

func TestFullSpeedVsLowSpeedPolarity(t *testing.T) {
	src := &fakeSource{samples: []logictrace.Sample{mk(true, false)}}
	dec, err := New(src, 0, 1, false)
	require.NoError(t, err)
	ev, ok := dec.Next()
	require.True(t, ok)
	require.Equal(t, K, ev.Payload.(State))
}

func TestBothLinesHighIsSE1(t *testing.T) {
	src := &fakeSource{samples: []logictrace.Sample{mk(true, true)}}
	dec, err := New(src, 0, 1, true)
	require.NoError(t, err)
	ev, ok := dec.Next()
	require.True(t, ok)
	require.Equal(t, SE1, ev.Payload.(State))
}
