// File: jingle/streamer.go
package jingle

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/quizzbox/quizzbox/protocol"
	"github.com/quizzbox/quizzbox/store"
)

// Sink is the slice of the network layer the streamer needs: targeted sends
// and a writability probe. The broadcaster implements it.
type Sink interface {
	SendToBuzzer(buzzerID, msgType string, payload interface{}) error
	SendBinaryToBuzzer(buzzerID string, frame []byte) error
	SendToConsole(msgType string, payload interface{})
	BuzzerWritable(buzzerID string) bool
}

// Streamer pushes jingle files to buzzers as ordered binary chunks. One
// stream per buzzer at a time; a stream dies with its buzzer's transport.
type Streamer struct {
	mu     sync.Mutex
	active map[string]uint32 // buzzerID -> jingleID

	jingles   store.JingleStore
	sink      Sink
	root      string
	chunkSize int
	logger    *zap.Logger
}

func NewStreamer(jingles store.JingleStore, sink Sink, root string, chunkSize int, logger *zap.Logger) *Streamer {
	if chunkSize <= 0 || chunkSize > protocol.MaxChunkPayload {
		chunkSize = protocol.MaxChunkPayload
	}
	return &Streamer{
		active:    make(map[string]uint32),
		jingles:   jingles,
		sink:      sink,
		root:      root,
		chunkSize: chunkSize,
		logger:    logger.Named("jingle"),
	}
}

// Active reports whether a stream is in flight for the buzzer.
func (s *Streamer) Active(buzzerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[buzzerID]
	return ok
}

func (s *Streamer) fail(buzzerID string, jingleID uint32, msg string) {
	s.logger.Warn("jingle rejected",
		zap.String("buzzer_id", buzzerID),
		zap.Uint32("jingle_id", jingleID),
		zap.String("error", msg))
	s.sink.SendToConsole(protocol.TypeJingleError, protocol.JingleErrorPayload{
		BuzzerID: buzzerID,
		JingleID: jingleID,
		Error:    msg,
	})
}

// resolvePath confines the stored path under the jingle root. Anything whose
// cleaned absolute form escapes the root is rejected.
func (s *Streamer) resolvePath(stored string) (string, bool) {
	root, err := filepath.Abs(s.root)
	if err != nil {
		return "", false
	}
	p := stored
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	resolved, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return "", false
	}
	if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		return "", false
	}
	return resolved, true
}

// Play validates the request and, when accepted, starts the chunked transfer
// in its own goroutine. All rejections surface as JINGLE_ERROR to the console
// and never send a partial completion signal to the buzzer.
func (s *Streamer) Play(buzzerID string, jingleID uint32) {
	s.mu.Lock()
	if _, busy := s.active[buzzerID]; busy {
		s.mu.Unlock()
		s.fail(buzzerID, jingleID, "already playing")
		return
	}
	s.mu.Unlock()

	if !s.sink.BuzzerWritable(buzzerID) {
		s.fail(buzzerID, jingleID, "not connected")
		return
	}

	j, ok := s.jingles.Jingle(jingleID)
	if !ok {
		s.fail(buzzerID, jingleID, "jingle not found")
		return
	}

	path, ok := s.resolvePath(j.Path)
	if !ok {
		s.fail(buzzerID, jingleID, "invalid file path")
		return
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		s.fail(buzzerID, jingleID, "file not found")
		return
	}
	fileSize := info.Size()

	format := strings.TrimPrefix(filepath.Ext(path), ".")

	if err := s.sink.SendToBuzzer(buzzerID, protocol.TypeJingleStart, protocol.JingleStartBuzzerPayload{
		JingleID: jingleID,
		Name:     j.Name,
		Format:   format,
		FileSize: fileSize,
	}); err != nil {
		s.fail(buzzerID, jingleID, "not connected")
		return
	}
	s.sink.SendToConsole(protocol.TypeJingleStarted, protocol.JingleStartedPayload{
		BuzzerID: buzzerID,
		JingleID: jingleID,
		Name:     j.Name,
		FileSize: fileSize,
	})

	s.mu.Lock()
	s.active[buzzerID] = jingleID
	s.mu.Unlock()

	go s.stream(buzzerID, jingleID, path, fileSize)
}

// stream reads the file sequentially and writes one framed chunk at a time,
// so chunk order on the wire matches chunk index by construction.
func (s *Streamer) stream(buzzerID string, jingleID uint32, path string, fileSize int64) {
	defer func() {
		s.mu.Lock()
		delete(s.active, buzzerID)
		s.mu.Unlock()
	}()

	f, err := os.Open(path)
	if err != nil {
		s.fail(buzzerID, jingleID, err.Error())
		return
	}
	defer f.Close()

	buf := make([]byte, s.chunkSize)
	var index uint32
	for {
		n, readErr := io.ReadFull(f, buf)
		if n > 0 {
			if !s.sink.BuzzerWritable(buzzerID) {
				s.logger.Warn("jingle stream aborted, buzzer gone",
					zap.String("buzzer_id", buzzerID),
					zap.Uint32("jingle_id", jingleID),
					zap.Uint32("chunks_sent", index))
				return
			}
			frame := protocol.EncodeChunk(jingleID, index, buf[:n])
			if err := s.sink.SendBinaryToBuzzer(buzzerID, frame); err != nil {
				s.logger.Warn("jingle chunk write failed, aborting stream",
					zap.String("buzzer_id", buzzerID),
					zap.Uint32("jingle_id", jingleID),
					zap.Uint32("chunk_index", index),
					zap.Error(err))
				return
			}
			index++
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			s.fail(buzzerID, jingleID, readErr.Error())
			return
		}
	}

	total := int(index)
	if err := s.sink.SendToBuzzer(buzzerID, protocol.TypeJingleEnd, protocol.JingleEndPayload{
		JingleID:    jingleID,
		TotalChunks: total,
		FileSize:    fileSize,
	}); err != nil {
		s.logger.Warn("jingle end frame failed",
			zap.String("buzzer_id", buzzerID),
			zap.Uint32("jingle_id", jingleID),
			zap.Error(err))
		return
	}
	s.sink.SendToConsole(protocol.TypeJingleCompleted, protocol.JingleCompletedPayload{
		BuzzerID:    buzzerID,
		JingleID:    jingleID,
		TotalChunks: total,
	})
	s.logger.Info("jingle stream completed",
		zap.String("buzzer_id", buzzerID),
		zap.Uint32("jingle_id", jingleID),
		zap.Int("total_chunks", total),
		zap.Int64("file_size", fileSize))
}
