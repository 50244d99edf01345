package serial

import (
	"testing"

	"github.com/stretchr/testify/require"

	logictrace "github.com/ithinuel/logic-trace-parser"
)

type fakeSource struct {
	events []logictrace.Event
	pos    int
}

func (f *fakeSource) Kind() logictrace.Kind { return logictrace.KindSample }

func (f *fakeSource) Next() (logictrace.Event, bool) {
	if f.pos >= len(f.events) {
		return logictrace.Event{}, false
	}
	ev := f.events[f.pos]
	f.pos++
	return ev, true
}

func sampleEvents(bit uint, pairs [][2]float64) []logictrace.Event {
	var out []logictrace.Event
	for _, p := range pairs {
		var s logictrace.Sample
		if p[1] != 0 {
			s = 1 << bit
		}
		out = append(out, logictrace.Event{Timestamp: p[0], Payload: s})
	}
	return out
}

// TestSerialFraming reproduces the spec's literal seed scenario: baud=1,
// tx=channel 0, a start bit followed by the bit pattern for 0x55 (LSB
// first: 1,0,1,0,1,0,1,0) eventually decodes to Tx(0x55).
func TestSerialFraming(t *testing.T) {
	pairs := [][2]float64{
		{0.0, 1}, // idle high
		{1.0, 0}, // start bit
		{2.5, 1}, // data bit 0 = 1
		{3.5, 0}, // data bit 1 = 0
		{4.5, 1}, // data bit 2 = 1
		{5.5, 0}, // data bit 3 = 0
		{6.5, 1}, // data bit 4 = 1
		{7.5, 0}, // data bit 5 = 0
		{8.5, 1}, // data bit 6 = 1
		{9.5, 0}, // data bit 7 = 0
		{10.5, 1}, // stop bit
		{12.0, 1}, // trailing idle to flush
	}
	src := &fakeSource{events: sampleEvents(0, pairs)}

	dec, err := New(src, Config{TxChannel: 0, RxChannel: 1, Baud: 1, Parity: ParityNone})
	require.NoError(t, err)

	var gotTx *Event
	for {
		ev, ok := dec.Next()
		if !ok {
			break
		}
		require.NoError(t, ev.Err)
		if se, ok := ev.Payload.(Event); ok && se.Type == Tx {
			e := se
			gotTx = &e
		}
	}
	require.NotNil(t, gotTx)
	require.Equal(t, byte(0x55), gotTx.Byte)
}

func TestEvenParityMismatchIsReported(t *testing.T) {
	// 0x01 has one set bit; even parity requires the parity bit to be 1.
	// Transmit a (wrong) 0 parity bit instead.
	pairs := [][2]float64{
		{0.0, 1},
		{1.0, 0},  // start
		{2.5, 1},  // bit0 = 1
		{3.5, 0},  // bit1 = 0
		{4.5, 0},  // bit2 = 0
		{5.5, 0},  // bit3 = 0
		{6.5, 0},  // bit4 = 0
		{7.5, 0},  // bit5 = 0
		{8.5, 0},  // bit6 = 0
		{9.5, 0},  // bit7 = 0
		{10.5, 0}, // parity bit (wrong: should be 1 for even parity of 0x01)
		{11.5, 1}, // stop bit
		{13.0, 1}, // flush
	}
	src := &fakeSource{events: sampleEvents(0, pairs)}
	dec, err := New(src, Config{TxChannel: 0, RxChannel: 1, Baud: 1, Parity: ParityEven})
	require.NoError(t, err)

	var sawParityError bool
	for {
		ev, ok := dec.Next()
		if !ok {
			break
		}
		if se, ok := ev.Payload.(Event); ok && se.Type == TxError && se.Error == Parity {
			sawParityError = true
		}
	}
	require.True(t, sawParityError)
}

func TestUnknownParityIsRejected(t *testing.T) {
	_, err := ParseParity("bogus")
	require.Error(t, err)
}
