// File: protocol/chunk_test.go
package protocol

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeChunkHeaderLayout(t *testing.T) {
	data := []byte{0xAA, 0xBB, 0xCC}
	frame := EncodeChunk(42, 7, data)

	require.Len(t, frame, ChunkHeaderSize+3)
	assert.Equal(t, uint32(42), binary.LittleEndian.Uint32(frame[0:4]))
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(frame[4:8]))
	assert.Equal(t, data, frame[8:])

	jingleID, index, payload, err := DecodeChunk(frame)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), jingleID)
	assert.Equal(t, uint32(7), index)
	assert.Equal(t, data, payload)
}

func TestDecodeChunkRejectsShortFrame(t *testing.T) {
	_, _, _, err := DecodeChunk([]byte{1, 2, 3})
	assert.Error(t, err)

	// A header with no audio bytes is still a valid frame.
	_, _, payload, err := DecodeChunk(EncodeChunk(1, 0, nil))
	require.NoError(t, err)
	assert.Empty(t, payload)
}
