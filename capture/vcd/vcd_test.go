package vcd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	logictrace "github.com/ithinuel/logic-trace-parser"
)

const sampleVCD = `$timescale 1ns $end
$var wire 1 ! chan_0 $end
$var wire 1 " chan_1 $end
$enddefinitions $end
$dumpvars
0!
0"
$end
#0
1!
#10
0!
1"
#5
`

func TestFirstTimestampIsPreTrigger(t *testing.T) {
	src := New(strings.NewReader(sampleVCD))

	ev, ok := src.Next()
	require.True(t, ok)
	require.NoError(t, ev.Err)
	require.InDelta(t, -0.1, ev.Timestamp, 1e-12)
}

func TestScalarChangesUpdateState(t *testing.T) {
	src := New(strings.NewReader(sampleVCD))

	ev, ok := src.Next() // initial dumpvars 0!
	require.True(t, ok)
	require.Equal(t, logictrace.Sample(0), ev.Payload)

	ev, ok = src.Next() // dumpvars 0"
	require.True(t, ok)
	require.Equal(t, logictrace.Sample(0), ev.Payload)

	ev, ok = src.Next() // #0 then 1!
	require.True(t, ok)
	require.Equal(t, logictrace.Sample(1), ev.Payload)
}

func TestNonMonotonicTimestampStopsTheStream(t *testing.T) {
	src := New(strings.NewReader(sampleVCD))
	var last logictrace.Event
	var sawErr bool
	for {
		ev, ok := src.Next()
		if !ok {
			break
		}
		last = ev
		if ev.Err != nil {
			sawErr = true
			break
		}
	}
	require.True(t, sawErr)
	require.Error(t, last.Err)

	_, ok := src.Next()
	require.False(t, ok)
}

func TestUnsupportedVarTypeIsAnError(t *testing.T) {
	const vcd = `$timescale 1ns $end
$var reg 8 ! chan_0 $end
$enddefinitions $end
#0
`
	src := New(strings.NewReader(vcd))
	ev, ok := src.Next()
	require.True(t, ok)
	require.Error(t, ev.Err)
}

func TestKind(t *testing.T) {
	src := New(strings.NewReader(sampleVCD))
	require.Equal(t, logictrace.KindSample, src.Kind())
}
