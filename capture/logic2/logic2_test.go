package logic2

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanParseCommonHeader(t *testing.T) {
	version, fileType, err := parseCommonHeader([]byte("<SALEAE>\x01\x00\x00\x00\x02\x00\x00\x00"))
	require.NoError(t, err)
	require.Equal(t, uint32(1), version)
	require.Equal(t, uint32(2), fileType)
}

func TestIncompleteTagIsAnError(t *testing.T) {
	_, _, err := parseCommonHeader([]byte("<SAL"))
	require.Error(t, err)
}

func TestCanParseDigitalHeader(t *testing.T) {
	raw := []byte{
		1, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 55, 64,
		0, 0, 0, 0, 0, 128, 70, 64,
		67, 0, 0, 0, 0, 0, 0, 0,
	}
	initialState, begin, end, numTransitions, err := parseDigitalHeader(raw)
	require.NoError(t, err)
	require.Equal(t, uint32(1), initialState)
	require.Equal(t, 23.0, begin)
	require.Equal(t, 45.0, end)
	require.Equal(t, uint64(67), numTransitions)
}

func TestChannelIDFromFilename(t *testing.T) {
	id, ok := channelID("digital_3.bin")
	require.True(t, ok)
	require.Equal(t, uint(3), id)

	_, ok = channelID("not_a_channel.bin")
	require.False(t, ok)
}
