// File: server/server.go
package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/jonboulle/clockwork"
	mb "github.com/vardius/message-bus"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"

	"github.com/quizzbox/quizzbox/game"
	"github.com/quizzbox/quizzbox/jingle"
	"github.com/quizzbox/quizzbox/protocol"
	"github.com/quizzbox/quizzbox/store"
	"github.com/quizzbox/quizzbox/utils"
)

// Server owns the WebSocket accept path and the per-connection read loops.
// It subscribes to the engine's bus topics and turns events into wire frames.
type Server struct {
	cfg       utils.Config
	registry  *Registry
	engine    *game.Service
	questions store.QuestionStore
	streamer  *jingle.Streamer
	bcast     *Broadcaster
	bus       mb.MessageBus
	clock     clockwork.Clock
	logger    *zap.Logger
}

func New(cfg utils.Config, registry *Registry, engine *game.Service, questions store.QuestionStore, streamer *jingle.Streamer, bcast *Broadcaster, bus mb.MessageBus, clock clockwork.Clock, logger *zap.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		registry:  registry,
		engine:    engine,
		questions: questions,
		streamer:  streamer,
		bcast:     bcast,
		bus:       bus,
		clock:     clock,
		logger:    logger.Named("server"),
	}
	s.subscribeEvents()
	return s
}

func (s *Server) now() int64 { return s.clock.Now().UnixMilli() }

// subscribeEvents binds the engine's published events to their wire messages.
func (s *Server) subscribeEvents() {
	_ = s.bus.Subscribe(game.TopicBuzzWinner, func(ev game.BuzzWinnerEvent) {
		s.onBuzzWinner(ev)
	})
	_ = s.bus.Subscribe(game.TopicGameEnded, func(ev game.GameEndedEvent) {
		s.onGameEnded(ev)
	})
}

func (s *Server) onBuzzWinner(ev game.BuzzWinnerEvent) {
	s.bcast.BroadcastToBuzzers(protocol.TypeBuzzerLocked, protocol.BuzzerLockedPayload{
		GameID:     ev.GameID,
		QuestionID: ev.QuestionID,
		WinnerID:   ev.BuzzerID,
	})
	s.bcast.SendToConsole(protocol.TypeBuzzWinner, protocol.BuzzWinnerPayload{
		BuzzerID:     ev.BuzzerID,
		PlayerName:   ev.PlayerName,
		QuestionID:   ev.QuestionID,
		GameID:       ev.GameID,
		ResponseTime: ev.ResponseTime,
	})
}

func (s *Server) onGameEnded(ev game.GameEndedEvent) {
	payload := protocol.GameEndedPayload{GameID: ev.GameID, Ranking: ev.Ranking}
	s.bcast.SendToConsole(protocol.TypeGameEnded, payload)
	s.bcast.BroadcastToBuzzers(protocol.TypeGameEnded, payload)
}

// HandleSubscribe accepts one WebSocket connection and runs its read loop.
// The identification clock starts ticking immediately.
func (s *Server) HandleSubscribe() func(ws *websocket.Conn) {
	return func(ws *websocket.Conn) {
		peer := newPeer(ws)
		s.logger.Info("connection accepted", zap.String("remote", peer.remoteAddr))

		timer := s.clock.AfterFunc(s.cfg.IdentificationTimeout, func() {
			if !peer.Identified() {
				s.logger.Warn("identification timeout",
					zap.String("remote", peer.remoteAddr))
				peer.CloseWithCode(protocol.CloseIdentificationTimeout)
			}
		})
		peer.armIdentificationTimer(timer)

		s.readLoop(peer)
		s.cleanup(peer)
	}
}

// readLoop delivers frames to the router in arrival order. Parse failures
// are logged and dropped; the connection stays up.
func (s *Server) readLoop(peer *Peer) {
	for {
		var raw string
		err := websocket.Message.Receive(peer.ws, &raw)
		if err != nil {
			if err != io.EOF && !isClosedConnError(err) {
				s.logger.Warn("read error",
					zap.String("remote", peer.remoteAddr),
					zap.Error(err))
			}
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			s.logger.Warn("frame parse failed, dropping",
				zap.String("remote", peer.remoteAddr),
				zap.Error(err))
			continue
		}
		s.dispatch(peer, &env)
	}
}

// cleanup deregisters the peer and announces buzzer departures.
func (s *Server) cleanup(peer *Peer) {
	peer.Close()
	buzzerID, wasBuzzer := s.registry.Remove(peer)
	switch {
	case wasBuzzer:
		s.logger.Info("buzzer disconnected",
			zap.String("buzzer_id", buzzerID),
			zap.Int("total", s.registry.BuzzerCount()))
		s.bcast.SendToConsole(protocol.TypeBuzzerDisconnected, protocol.BuzzerDisconnectedPayload{
			BuzzerID:     buzzerID,
			TotalBuzzers: s.registry.BuzzerCount(),
		})
		s.bcast.SendBuzzerList()
	case peer.Class() == ClassConsole:
		s.logger.Info("console disconnected", zap.String("remote", peer.remoteAddr))
	default:
		s.logger.Info("unidentified connection closed", zap.String("remote", peer.remoteAddr))
	}
}

// HandleState is the read-only HTTP snapshot of registry and sessions.
func (s *Server) HandleState() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		snapshot := struct {
			Buzzers protocol.BuzzerListUpdatePayload `json:"buzzers"`
			Games   []game.Snapshot                  `json:"games"`
		}{
			Buzzers: s.registry.BuzzerList(),
			Games:   s.engine.Snapshots(),
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snapshot); err != nil {
			s.logger.Warn("state encode failed", zap.Error(err))
		}
	}
}

func isClosedConnError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "closed")
}
