// File: jingle/streamer_test.go
package jingle

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quizzbox/quizzbox/protocol"
	"github.com/quizzbox/quizzbox/store"
)

// fakeSink records everything the streamer sends and signals stream end.
type fakeSink struct {
	mu            sync.Mutex
	buzzerMsgs    []sinkMsg
	consoleMsgs   []sinkMsg
	binaryFrames  [][]byte
	writable      bool
	failBinaryAt  int // frame index to fail at, -1 to never fail
	consoleSignal chan string
}

type sinkMsg struct {
	msgType string
	payload interface{}
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		writable:      true,
		failBinaryAt:  -1,
		consoleSignal: make(chan string, 16),
	}
}

func (f *fakeSink) SendToBuzzer(buzzerID, msgType string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buzzerMsgs = append(f.buzzerMsgs, sinkMsg{msgType, payload})
	return nil
}

func (f *fakeSink) SendBinaryToBuzzer(buzzerID string, frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failBinaryAt >= 0 && len(f.binaryFrames) == f.failBinaryAt {
		return assert.AnError
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	f.binaryFrames = append(f.binaryFrames, cp)
	return nil
}

func (f *fakeSink) SendToConsole(msgType string, payload interface{}) {
	f.mu.Lock()
	f.consoleMsgs = append(f.consoleMsgs, sinkMsg{msgType, payload})
	f.mu.Unlock()
	f.consoleSignal <- msgType
}

func (f *fakeSink) BuzzerWritable(buzzerID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writable
}

func (f *fakeSink) waitConsole(t *testing.T, msgType string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-f.consoleSignal:
			if got == msgType {
				return
			}
		case <-deadline:
			t.Fatalf("console message %s not seen within 2s", msgType)
		}
	}
}

func (f *fakeSink) lastConsole(t *testing.T) sinkMsg {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.consoleMsgs)
	return f.consoleMsgs[len(f.consoleMsgs)-1]
}

func writeJingleFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func newStreamerFixture(t *testing.T, fileSize int) (*Streamer, *fakeSink, string) {
	t.Helper()
	dir := t.TempDir()
	writeJingleFile(t, dir, "buzz.mp3", fileSize)

	memory := store.NewMemory()
	memory.AddJingle(&store.Jingle{ID: 7, Name: "Buzz", Path: "buzz.mp3"})

	sink := newFakeSink()
	streamer := NewStreamer(memory, sink, dir, 4096, zap.NewNop())
	return streamer, sink, dir
}

func TestStreamChunksWholeFileInOrder(t *testing.T) {
	streamer, sink, _ := newStreamerFixture(t, 10000)

	streamer.Play("ESP-1", 7)
	sink.waitConsole(t, protocol.TypeJingleCompleted)

	// 10000 bytes in 4096-byte chunks: 4096, 4096, 1808.
	require.Len(t, sink.binaryFrames, 3)
	sizes := []int{4096, 4096, 1808}
	for i, frame := range sink.binaryFrames {
		jingleID, index, data, err := protocol.DecodeChunk(frame)
		require.NoError(t, err)
		assert.Equal(t, uint32(7), jingleID)
		assert.Equal(t, uint32(i), index)
		assert.Len(t, data, sizes[i])
	}

	require.Len(t, sink.buzzerMsgs, 2)
	assert.Equal(t, protocol.TypeJingleStart, sink.buzzerMsgs[0].msgType)
	start := sink.buzzerMsgs[0].payload.(protocol.JingleStartBuzzerPayload)
	assert.Equal(t, "mp3", start.Format)
	assert.Equal(t, int64(10000), start.FileSize)

	assert.Equal(t, protocol.TypeJingleEnd, sink.buzzerMsgs[1].msgType)
	end := sink.buzzerMsgs[1].payload.(protocol.JingleEndPayload)
	assert.Equal(t, 3, end.TotalChunks)
	assert.Equal(t, int64(10000), end.FileSize)

	assert.False(t, streamer.Active("ESP-1"))
}

func TestPlayRejectsSecondStreamToSameBuzzer(t *testing.T) {
	streamer, sink, _ := newStreamerFixture(t, 10000)

	// Hold the active slot open by hand; Play must refuse a second stream.
	streamer.mu.Lock()
	streamer.active["ESP-1"] = 3
	streamer.mu.Unlock()

	streamer.Play("ESP-1", 7)
	sink.waitConsole(t, protocol.TypeJingleError)
	msg := sink.lastConsole(t)
	assert.Equal(t, "already playing", msg.payload.(protocol.JingleErrorPayload).Error)
	assert.Empty(t, sink.binaryFrames)
}

func TestPlayRejectsUnknownJingleAndDeadBuzzer(t *testing.T) {
	streamer, sink, _ := newStreamerFixture(t, 100)

	streamer.Play("ESP-1", 99)
	sink.waitConsole(t, protocol.TypeJingleError)
	assert.Equal(t, "jingle not found", sink.lastConsole(t).payload.(protocol.JingleErrorPayload).Error)

	sink.mu.Lock()
	sink.writable = false
	sink.mu.Unlock()
	streamer.Play("ESP-1", 7)
	sink.waitConsole(t, protocol.TypeJingleError)
	assert.Equal(t, "not connected", sink.lastConsole(t).payload.(protocol.JingleErrorPayload).Error)
}

func TestPlayRejectsPathOutsideRoot(t *testing.T) {
	streamer, sink, _ := newStreamerFixture(t, 100)

	memory := store.NewMemory()
	memory.AddJingle(&store.Jingle{ID: 8, Name: "Escape", Path: "../escape.mp3"})
	memory.AddJingle(&store.Jingle{ID: 9, Name: "Nested", Path: "sub/../buzz.mp3"})
	streamer.jingles = memory

	streamer.Play("ESP-1", 8)
	sink.waitConsole(t, protocol.TypeJingleError)
	assert.Equal(t, "invalid file path", sink.lastConsole(t).payload.(protocol.JingleErrorPayload).Error)

	// Cleaning back inside the root is fine.
	streamer.Play("ESP-1", 9)
	sink.waitConsole(t, protocol.TypeJingleCompleted)
}

func TestStreamAbortsWithoutEndFrameOnWriteFailure(t *testing.T) {
	streamer, sink, _ := newStreamerFixture(t, 10000)
	sink.failBinaryAt = 1

	streamer.Play("ESP-1", 7)
	sink.waitConsole(t, protocol.TypeJingleStarted)

	// The stream dies on the failing chunk; no JINGLE_END reaches the buzzer.
	require.Eventually(t, func() bool {
		return !streamer.Active("ESP-1")
	}, 2*time.Second, 10*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.binaryFrames, 1)
	for _, m := range sink.buzzerMsgs {
		assert.NotEqual(t, protocol.TypeJingleEnd, m.msgType)
	}
}
