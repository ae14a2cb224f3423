// File: test/e2e_setup_test.go
package test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	mb "github.com/vardius/message-bus"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"

	"github.com/quizzbox/quizzbox/game"
	"github.com/quizzbox/quizzbox/jingle"
	"github.com/quizzbox/quizzbox/protocol"
	"github.com/quizzbox/quizzbox/server"
	"github.com/quizzbox/quizzbox/store"
	"github.com/quizzbox/quizzbox/utils"
)

// E2ESetupResult holds everything a scenario needs to talk to a live server.
type E2ESetupResult struct {
	Server *httptest.Server
	WsURL  string
	Origin string
	Cfg    utils.Config
	Memory *store.Memory
}

// SetupE2ETest wires the full stack against an httptest listener. The store
// is preloaded with one MCQ question, one rapidity question and one jingle.
func SetupE2ETest(t *testing.T, cfg utils.Config) E2ESetupResult {
	t.Helper()

	memory := store.NewMemory()
	memory.AddQuestion(&store.Question{
		ID:            1,
		Text:          "Capital of France?",
		Type:          protocol.QuestionTypeMCQ,
		Points:        20,
		Answers:       []string{"Paris", "Lyon", "Nice", "Lille"},
		CorrectAnswer: "Paris",
	})
	memory.AddQuestion(&store.Question{
		ID:   2,
		Text: "First to buzz!",
		Type: protocol.QuestionTypeBuzzer,
	})

	jingleDir := t.TempDir()
	audio := make([]byte, 10000)
	for i := range audio {
		audio[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(filepath.Join(jingleDir, "buzz.mp3"), audio, 0o644))
	memory.AddJingle(&store.Jingle{ID: 7, Name: "Buzz", Path: "buzz.mp3"})
	cfg.JingleDir = jingleDir

	logger := zap.NewNop()
	clock := clockwork.NewRealClock()
	bus := mb.New(64)

	engine := game.NewService(cfg, memory, memory, bus, clock, logger)
	registry := server.NewRegistry(cfg.MaxBuzzers, cfg.HeartbeatInterval, clock, logger)
	bcast := server.NewBroadcaster(registry, clock, logger)
	streamer := jingle.NewStreamer(memory, bcast, cfg.JingleDir, cfg.JingleChunkSize, logger)
	srv := server.New(cfg, registry, engine, memory, streamer, bcast, bus, clock, logger)

	mux := http.NewServeMux()
	mux.Handle("/subscribe", websocket.Handler(srv.HandleSubscribe()))
	mux.HandleFunc("/state", srv.HandleState())
	s := httptest.NewServer(mux)
	t.Cleanup(s.Close)

	wsURL := "ws" + strings.TrimPrefix(s.URL, "http") + "/subscribe"

	return E2ESetupResult{
		Server: s,
		WsURL:  wsURL,
		Origin: "http://localhost/",
		Cfg:    cfg,
		Memory: memory,
	}
}

// DialWs opens one raw client connection to the test server.
func DialWs(t *testing.T, setup E2ESetupResult) *websocket.Conn {
	t.Helper()
	ws, err := websocket.Dial(setup.WsURL, "", setup.Origin)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

// ConnectConsole dials and identifies a console, consuming the handshake.
func ConnectConsole(t *testing.T, setup E2ESetupResult) *websocket.Conn {
	t.Helper()
	ws := DialWs(t, setup)
	SendClientEnvelope(t, ws, protocol.SenderConsole, protocol.TypeAngularConnect, struct{}{})
	WaitForMessage(t, ws, protocol.TypeConnected, 2*time.Second)
	WaitForMessage(t, ws, protocol.TypeBuzzerListUpdate, 2*time.Second)
	return ws
}

// ConnectBuzzer dials and registers a buzzer, consuming the ack.
func ConnectBuzzer(t *testing.T, setup E2ESetupResult, buzzerID, name string) *websocket.Conn {
	t.Helper()
	ws := DialWs(t, setup)
	SendClientEnvelope(t, ws, protocol.SenderBuzzer, protocol.TypeBuzzerRegister, protocol.BuzzerRegisterPayload{
		BuzzerID: buzzerID,
		Name:     name,
	})
	WaitForMessage(t, ws, protocol.TypeConnectionAck, 2*time.Second)
	return ws
}
