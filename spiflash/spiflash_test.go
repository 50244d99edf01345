package spiflash

import (
	"testing"

	"github.com/stretchr/testify/require"

	logictrace "github.com/ithinuel/logic-trace-parser"
	"github.com/ithinuel/logic-trace-parser/spi"
)

type fakeSource struct {
	events []logictrace.Event
	pos    int
}

func (f *fakeSource) Kind() logictrace.Kind { return logictrace.KindSpiEvent }

func (f *fakeSource) Next() (logictrace.Event, bool) {
	if f.pos >= len(f.events) {
		return logictrace.Event{}, false
	}
	ev := f.events[f.pos]
	f.pos++
	return ev, true
}

func cs(ts float64, selected bool) logictrace.Event {
	return logictrace.Event{Timestamp: ts, Payload: spi.Event{Type: spi.ChipSelect, CS: selected}}
}

func data(ts float64, mosi, miso byte) logictrace.Event {
	return logictrace.Event{Timestamp: ts, Payload: spi.Event{Type: spi.Data, MOSI: mosi, MISO: miso}}
}

func drain(t *testing.T, dec *Decoder) []Command {
	t.Helper()
	var out []Command
	for {
		ev, ok := dec.Next()
		if !ok {
			break
		}
		require.NoError(t, ev.Err)
		out = append(out, ev.Payload.(Command))
	}
	return out
}

func TestWriteEnableCompletesImmediately(t *testing.T) {
	src := &fakeSource{events: []logictrace.Event{
		cs(0, true),
		data(1, 0x06, 0x00),
		cs(2, false),
	}}
	dec, err := New(src)
	require.NoError(t, err)

	got := drain(t, dec)
	require.Len(t, got, 1)
	require.Equal(t, WriteEnable, got[0].Type)
}

func TestReadCompletesOnDeselect(t *testing.T) {
	src := &fakeSource{events: []logictrace.Event{
		cs(0, true),
		data(1, 0x03, 0x00), // command
		data(2, 0x00, 0x00), // addr hi
		data(3, 0x01, 0x00), // addr mid
		data(4, 0x00, 0x00), // addr lo
		data(5, 0x00, 0xAB), // data byte 0
		data(6, 0x00, 0xCD), // data byte 1
		cs(7, false),
	}}
	dec, err := New(src)
	require.NoError(t, err)

	got := drain(t, dec)
	require.Len(t, got, 1)
	require.Equal(t, Read, got[0].Type)
	require.Equal(t, uint32(0x000100), got[0].Addr)
	require.Equal(t, []byte{0xAB, 0xCD}, got[0].Data)
}

func TestSectorEraseCompletesOnThirdAddressByte(t *testing.T) {
	src := &fakeSource{events: []logictrace.Event{
		cs(0, true),
		data(1, 0x20, 0x00),
		data(2, 0x12, 0x00),
		data(3, 0x34, 0x00),
		data(4, 0x56, 0x00),
		cs(5, false),
	}}
	dec, err := New(src)
	require.NoError(t, err)

	got := drain(t, dec)
	require.Len(t, got, 1)
	require.Equal(t, SectorErase, got[0].Type)
	require.Equal(t, uint32(0x123456), got[0].Addr)
}

func TestReadDeviceIDCompletesAfterThreeMisoBytes(t *testing.T) {
	src := &fakeSource{events: []logictrace.Event{
		cs(0, true),
		data(1, 0x9F, 0x00),
		data(2, 0x00, 0xEF), // manufacturer
		data(3, 0x00, 0x40), // device id hi
		data(4, 0x00, 0x18), // device id lo
		cs(5, false),
	}}
	dec, err := New(src)
	require.NoError(t, err)

	got := drain(t, dec)
	require.Len(t, got, 1)
	require.Equal(t, ReadDeviceID, got[0].Type)
	require.Equal(t, byte(0xEF), got[0].Manufacturer)
	require.Equal(t, uint16(0x4018), got[0].DeviceID)
}

func TestUnknownCommandByteIsAnError(t *testing.T) {
	src := &fakeSource{events: []logictrace.Event{
		cs(0, true),
		data(1, 0xFF, 0x00),
	}}
	dec, err := New(src)
	require.NoError(t, err)

	ev, ok := dec.Next()
	require.True(t, ok)
	require.Error(t, ev.Err)
}

func TestDataIgnoredWhileDeselected(t *testing.T) {
	src := &fakeSource{events: []logictrace.Event{
		data(0, 0x06, 0x00), // no chip select asserted yet: ignored
		cs(1, true),
		data(2, 0x66, 0x00),
		cs(3, false),
	}}
	dec, err := New(src)
	require.NoError(t, err)

	got := drain(t, dec)
	require.Len(t, got, 1)
	require.Equal(t, ResetEnable, got[0].Type)
}
