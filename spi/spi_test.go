package spi

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

// bit layout: cs=0 sck=1 mosi=2 miso=3
func mk(cs, sck, mosi, miso bool) logictrace.Sample {
	var s logictrace.Sample
	if cs {
		s |= 1
	}
	if sck {
		s |= 2
	}
	if mosi {
		s |= 4
	}
	if miso {
		s |= 8
	}
	return s
}

func TestChipSelectAndOneByteMode0(t *testing.T) {
	var samples []logictrace.Sample
	samples = append(samples, mk(true, false, false, false))  // deselected idle
	samples = append(samples, mk(false, false, false, false)) // CS asserted (active low)

	// Mode 0 (CPOL=0, CPHA=0): sample on rising edge. Shift 0xA5 MSB-first
	// on MOSI, with MISO held low.
	bitsOut := []bool{true, false, true, false, false, true, false, true}
	for _, b := range bitsOut {
		samples = append(samples, mk(false, false, b, false)) // clock low, set up data
		samples = append(samples, mk(false, true, b, false))  // rising edge: sample
	}
	samples = append(samples, mk(true, true, false, false)) // deselect

	src := &fakeSource{samples: samples}
	dec, err := New(src, Config{CSChannel: 0, SCKChannel: 1, MOSIChannel: 2, MISOChannel: 3})
	require.NoError(t, err)

	var sawCSAssert, sawData bool
	var data Event
	for {
		ev, ok := dec.Next()
		if !ok {
			break
		}
		require.NoError(t, ev.Err)
		se := ev.Payload.(Event)
		if se.Type == ChipSelect && se.CS {
			sawCSAssert = true
		}
		if se.Type == Data {
			sawData = true
			data = se
		}
	}
	require.True(t, sawCSAssert)
	require.True(t, sawData)
	require.Equal(t, byte(0xA5), data.MOSI)
}
