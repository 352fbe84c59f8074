package wire

import (
	"bytes"
	"testing"

	"github.com/ayanrajpoot10/sshagent-core/agenterr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobRoundTrip(t *testing.T) {
	enc := NewEncoder()
	require.NoError(t, enc.Blob([]byte("hello")))
	dec := NewDecoder(enc.Bytes())
	got, err := dec.Blob()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
	assert.Equal(t, 0, dec.Remaining())
}

func TestStringRoundTrip(t *testing.T) {
	enc := NewEncoder()
	require.NoError(t, enc.String("ssh-ed25519"))
	dec := NewDecoder(enc.Bytes())
	got, err := dec.String()
	require.NoError(t, err)
	assert.Equal(t, "ssh-ed25519", got)
}

func TestMPIntPadsHighBit(t *testing.T) {
	enc := NewEncoder()
	require.NoError(t, enc.MPInt([]byte{0x80, 0x01}))
	dec := NewDecoder(enc.Bytes())
	n, err := dec.Uint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(3), n, "leading zero byte must be inserted")
	rest, err := dec.Slice(3)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x80, 0x01}, rest)
}

func TestMPIntRoundTripStripsPadding(t *testing.T) {
	enc := NewEncoder()
	require.NoError(t, enc.MPInt([]byte{0x80, 0x01}))
	dec := NewDecoder(enc.Bytes())
	got, err := dec.MPInt()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x80, 0x01}, got)
}

func TestMPIntZeroEncodesAsEmptyBlob(t *testing.T) {
	enc := NewEncoder()
	require.NoError(t, enc.MPInt(nil))
	assert.Equal(t, []byte{0, 0, 0, 0}, enc.Bytes())
}

func TestBlobTooLarge(t *testing.T) {
	enc := NewEncoder()
	err := enc.Blob(make([]byte, MaxBlobSize+1))
	require.Error(t, err)
	assert.True(t, agenterr.Is(err, agenterr.TooLarge))
}

func TestDecoderShortRead(t *testing.T) {
	dec := NewDecoder([]byte{0, 0, 0, 5, 'h', 'i'})
	_, err := dec.Blob()
	require.Error(t, err)
	assert.True(t, agenterr.Is(err, agenterr.ShortRead))
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte{1, 2, 3}))
	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	_, err := ReadFrame(&buf)
	require.Error(t, err)
	assert.True(t, agenterr.Is(err, agenterr.TooLarge))
}
