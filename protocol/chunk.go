// File: protocol/chunk.go
package protocol

import (
	"encoding/binary"
	"fmt"
)

// ChunkHeaderSize is the fixed binary prefix on every jingle frame:
// [uint32 jingleId LE][uint32 chunkIndex LE].
const ChunkHeaderSize = 8

// MaxChunkPayload is the largest audio slice carried by one frame.
const MaxChunkPayload = 4096

// EncodeChunk frames one slice of jingle audio for the wire.
func EncodeChunk(jingleID, chunkIndex uint32, data []byte) []byte {
	frame := make([]byte, ChunkHeaderSize+len(data))
	binary.LittleEndian.PutUint32(frame[0:4], jingleID)
	binary.LittleEndian.PutUint32(frame[4:8], chunkIndex)
	copy(frame[ChunkHeaderSize:], data)
	return frame
}

// DecodeChunk splits a binary frame back into its header and audio bytes.
func DecodeChunk(frame []byte) (jingleID, chunkIndex uint32, data []byte, err error) {
	if len(frame) < ChunkHeaderSize {
		return 0, 0, nil, fmt.Errorf("chunk frame too short: %d bytes", len(frame))
	}
	jingleID = binary.LittleEndian.Uint32(frame[0:4])
	chunkIndex = binary.LittleEndian.Uint32(frame[4:8])
	return jingleID, chunkIndex, frame[ChunkHeaderSize:], nil
}
