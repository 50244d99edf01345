package logicbin

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	logictrace "github.com/ithinuel/logic-trace-parser"
)

func record(tick int64, sample byte) []byte {
	buf := make([]byte, 9)
	binary.LittleEndian.PutUint64(buf, uint64(tick))
	buf[8] = sample
	return buf
}

func TestDecodesTicksAtGivenFrequency(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(record(0, 0x01))
	buf.Write(record(10, 0x02))

	src := New(&buf, 10)

	ev, ok := src.Next()
	require.True(t, ok)
	require.NoError(t, ev.Err)
	require.Equal(t, 0.0, ev.Timestamp)
	require.Equal(t, logictrace.Sample(1), ev.Payload)

	ev, ok = src.Next()
	require.True(t, ok)
	require.Equal(t, 1.0, ev.Timestamp)
	require.Equal(t, logictrace.Sample(2), ev.Payload)

	_, ok = src.Next()
	require.False(t, ok)
}

func TestZeroFrequencyIsTreatedAsOne(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(record(5, 0x00))
	src := New(&buf, 0)

	ev, ok := src.Next()
	require.True(t, ok)
	require.Equal(t, 5.0, ev.Timestamp)
}

func TestTruncatedRecordIsAnError(t *testing.T) {
	buf := bytes.NewBuffer(record(0, 1)[:5])
	src := New(buf, 1)

	ev, ok := src.Next()
	require.True(t, ok)
	require.Error(t, ev.Err)
}
