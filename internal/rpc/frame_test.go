package rpc

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	body := []byte(`{"jsonrpc":"2.0","method":"ping","id":1}`)

	require.NoError(t, WriteFrame(&buf, body))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestFrame_EmptyBodyRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte{}))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFrame_WriteRejectsOversizeBody(t *testing.T) {
	var buf bytes.Buffer
	oversize := make([]byte, MaxFrameSize+1)

	err := WriteFrame(&buf, oversize)
	require.Error(t, err)
	assert.Zero(t, buf.Len(), "oversize body must not be written at all")
}

func TestFrame_ReadRejectsOversizeLengthWithoutConsumingBody(t *testing.T) {
	var buf bytes.Buffer
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], MaxFrameSize+1)
	buf.Write(header[:])
	buf.WriteString("trailing garbage that must be left alone")

	_, err := ReadFrame(&buf)
	require.Error(t, err)
	assert.Equal(t, "trailing garbage that must be left alone", buf.String(),
		"a rejected oversize frame must not consume any body bytes")
}

func TestFrame_ReadReturnsErrOnTruncatedHeader(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0x00, 0x01}))
	require.Error(t, err)
}

func TestFrame_ReadReturnsErrOnTruncatedBody(t *testing.T) {
	var buf bytes.Buffer
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], 10)
	buf.Write(header[:])
	buf.WriteString("short")

	_, err := ReadFrame(&buf)
	require.Error(t, err)
}
