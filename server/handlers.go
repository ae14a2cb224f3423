// File: server/handlers.go
package server

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quizzbox/quizzbox/protocol"
	"github.com/quizzbox/quizzbox/utils"
)

// dispatch routes one parsed envelope. Unidentified peers only reach the
// identification handler; identified ones are routed by class.
func (s *Server) dispatch(peer *Peer, env *protocol.Envelope) {
	if !peer.Identified() {
		s.handlePreIdentification(peer, env)
		return
	}
	switch peer.Class() {
	case ClassConsole:
		s.handleConsoleMessage(peer, env)
	case ClassBuzzer:
		s.handleBuzzerMessage(peer, env)
	}
}

// handlePreIdentification accepts only time sync, ping and the two
// identification frames. Everything else is logged and dropped.
func (s *Server) handlePreIdentification(peer *Peer, env *protocol.Envelope) {
	switch env.Type {
	case protocol.TypeTimeSyncReq:
		s.replyTimeSync(peer, env)
	case protocol.TypePing:
		s.replyPing(peer, env)
	case protocol.TypeAngularConnect:
		s.identifyConsole(peer)
	case protocol.TypeBuzzerRegister:
		s.registerBuzzer(peer, env)
	default:
		s.logger.Warn("message before identification dropped",
			zap.String("type", env.Type),
			zap.String("remote", peer.remoteAddr))
	}
}

// identifyConsole promotes the peer to the console slot. A previous console
// loses the slot and is closed with the admin code: last writer wins.
func (s *Server) identifyConsole(peer *Peer) {
	sessionID := uuid.NewString()
	peer.identifyConsole(sessionID)
	prev := s.registry.SetConsole(peer)
	if prev != nil && prev != peer {
		s.logger.Warn("console replaced", zap.String("remote", prev.remoteAddr))
		prev.CloseWithCode(protocol.CloseAdminDisconnect)
	}
	s.logger.Info("console identified",
		zap.String("session_id", sessionID),
		zap.String("remote", peer.remoteAddr))

	s.bcast.SendToPeer(peer, protocol.TypeConnected, protocol.ConnectedPayload{
		SessionID:  sessionID,
		ServerTime: s.now(),
		Config: protocol.ServerConfig{
			MaxBuzzers: s.cfg.MaxBuzzers,
			Version:    utils.Version,
		},
	})
	s.bcast.SendBuzzerList()
}

// registerBuzzer inserts the peer into the registry. Duplicate IDs are
// rejected and closed with 4002; the registry size stays unchanged.
func (s *Server) registerBuzzer(peer *Peer, env *protocol.Envelope) {
	var p protocol.BuzzerRegisterPayload
	if err := env.DecodePayload(&p); err != nil {
		s.logger.Warn("invalid BUZZER_REGISTER payload", zap.Error(err))
		return
	}
	if p.BuzzerID == "" {
		s.logger.Warn("BUZZER_REGISTER without buzzerID dropped",
			zap.String("remote", peer.remoteAddr))
		return
	}

	playerNumber, err := s.registry.RegisterBuzzer(peer, p.BuzzerID)
	if err != nil {
		reason := "duplicate buzzer ID"
		if err == ErrRegistryFull {
			reason = "server full"
		}
		s.logger.Warn("buzzer registration rejected",
			zap.String("buzzer_id", p.BuzzerID),
			zap.String("reason", reason))
		s.bcast.SendToPeer(peer, protocol.TypeConnectionRejected, protocol.ConnectionRejectedPayload{Reason: reason})
		if err == ErrDuplicateBuzzerID {
			peer.CloseWithCode(protocol.CloseDuplicateBuzzer)
		} else {
			peer.Close()
		}
		return
	}

	name := p.Name
	if name == "" {
		name = fmt.Sprintf("Buzzer %d", playerNumber)
	}
	now := s.now()
	peer.identifyBuzzer(p.BuzzerID, name, p.MacAddress, playerNumber, now)
	peer.markAlive(s.clock.Now(), -1)
	s.logger.Info("buzzer registered",
		zap.String("buzzer_id", p.BuzzerID),
		zap.Int("player_number", playerNumber))

	s.bcast.SendToPeer(peer, protocol.TypeConnectionAck, protocol.ConnectionAckPayload{
		BuzzerID:     p.BuzzerID,
		PlayerNumber: playerNumber,
		ServerTime:   now,
	})
	s.bcast.SendToConsole(protocol.TypeBuzzerConnected, protocol.BuzzerConnectedPayload{
		Buzzer:       peer.Info(),
		TotalBuzzers: s.registry.BuzzerCount(),
	})
	s.bcast.SendBuzzerList()
}

// handleConsoleMessage routes post-identification console traffic. Unknown
// types are logged and dropped, never closed.
func (s *Server) handleConsoleMessage(peer *Peer, env *protocol.Envelope) {
	switch env.Type {
	case protocol.TypeRequestBuzzerList:
		s.bcast.SendBuzzerList()
	case protocol.TypePlayerRename:
		s.handlePlayerRename(env)
	case protocol.TypeQuestionSend:
		s.handleQuestionSend(env)
	case protocol.TypeGameStart:
		s.handleGameStart(env)
	case protocol.TypeGameEnd:
		s.handleGameEnd(env)
	case protocol.TypeBuzzerDisconnect:
		s.handleBuzzerDisconnect(env)
	case protocol.TypeBuzzCorrect:
		s.handleBuzzCorrect(env)
	case protocol.TypeBuzzReopen:
		s.handleBuzzReopen(env)
	case protocol.TypeJinglePlay:
		s.handleJinglePlay(env)
	case protocol.TypeTimeSyncReq:
		s.replyTimeSync(peer, env)
	case protocol.TypePing:
		s.replyPing(peer, env)
	case protocol.TypePong:
		s.handlePong(peer, env)
	default:
		s.logger.Warn("unknown console message dropped", zap.String("type", env.Type))
	}
}

// handleBuzzerMessage routes post-identification buzzer traffic.
func (s *Server) handleBuzzerMessage(peer *Peer, env *protocol.Envelope) {
	switch env.Type {
	case protocol.TypeAnswerMCQ:
		s.handleAnswerMCQ(peer, env)
	case protocol.TypeAnswerBuzzer:
		s.handleAnswerBuzzer(peer, env)
	case protocol.TypeTimeSyncReq:
		s.replyTimeSync(peer, env)
	case protocol.TypePing:
		s.replyPing(peer, env)
	case protocol.TypePong:
		s.handlePong(peer, env)
	case protocol.TypeStatusUpdate:
		s.handleStatusUpdate(peer, env)
	default:
		s.logger.Warn("unknown buzzer message dropped",
			zap.String("type", env.Type),
			zap.String("buzzer_id", peer.BuzzerID()))
	}
}

// replyTimeSync echoes T1 and stamps the receive/transmit instants.
func (s *Server) replyTimeSync(peer *Peer, env *protocol.Envelope) {
	var p protocol.TimeSyncPayload
	if err := env.DecodePayload(&p); err != nil {
		s.logger.Warn("invalid TIME_SYNC_REQ payload", zap.Error(err))
		return
	}
	now := s.now()
	s.bcast.SendToPeer(peer, protocol.TypeTimeSyncRes, protocol.TimeSyncPayload{
		T1: p.T1,
		T2: now,
		T3: now,
	})
}

func (s *Server) replyPing(peer *Peer, env *protocol.Envelope) {
	var p protocol.PingPayload
	if err := env.DecodePayload(&p); err != nil {
		s.logger.Warn("invalid PING payload", zap.Error(err))
		return
	}
	s.bcast.SendToPeer(peer, protocol.TypePong, protocol.PongPayload{
		TSend:    p.TSend,
		TReceive: s.now(),
	})
}

// handlePong answers the heartbeat: liveness flag set, round trip measured
// against the echoed send instant.
func (s *Server) handlePong(peer *Peer, env *protocol.Envelope) {
	var p protocol.PongPayload
	latency := int64(-1)
	if err := env.DecodePayload(&p); err == nil && p.TSend > 0 {
		latency = s.now() - p.TSend
		if latency < 0 {
			latency = 0
		}
	}
	peer.markAlive(s.clock.Now(), latency)
}

func (s *Server) handlePlayerRename(env *protocol.Envelope) {
	var p protocol.PlayerRenamePayload
	if err := env.DecodePayload(&p); err != nil {
		s.logger.Warn("invalid PLAYER_RENAME payload", zap.Error(err))
		return
	}
	buzzer, ok := s.registry.Buzzer(p.BuzzerID)
	if !ok {
		s.sendError(fmt.Sprintf("buzzer %s not connected", p.BuzzerID))
		return
	}
	buzzer.setName(p.NewName)
	s.engine.RenamePlayer(p.BuzzerID, p.NewName)
	s.bcast.SendToBuzzer(p.BuzzerID, protocol.TypePlayerNameUpdate, protocol.PlayerNameUpdatePayload{Name: p.NewName})
	s.bcast.SendBuzzerList()
}

// handleQuestionSend resets the question runtime and fans QUESTION_START out
// to every buzzer, then confirms to the console.
func (s *Server) handleQuestionSend(env *protocol.Envelope) {
	var p protocol.QuestionSendPayload
	if err := env.DecodePayload(&p); err != nil {
		s.logger.Warn("invalid QUESTION_SEND payload", zap.Error(err))
		return
	}
	q, ok := s.questions.Question(p.QuestionID)
	if !ok {
		s.sendError(fmt.Sprintf("question %d not found", p.QuestionID))
		return
	}

	startTime := s.engine.DispatchQuestion(p.GameID, q)

	points := q.Points
	if points <= 0 {
		points = s.cfg.DefaultPoints
	}
	payload := protocol.QuestionStartPayload{
		GameID:    p.GameID,
		ID:        q.ID,
		Text:      q.Text,
		Type:      q.Type,
		Category:  q.Category,
		Points:    points,
		StartTime: startTime,
	}
	if q.Type == protocol.QuestionTypeMCQ {
		payload.Answers = q.Answers
		payload.CorrectAnswer = q.CorrectAnswer
	}
	s.bcast.BroadcastToBuzzers(protocol.TypeQuestionStart, payload)

	s.bcast.SendToConsole(protocol.TypeQuestionSent, protocol.QuestionSentPayload{
		QuestionID: q.ID,
		SentTo:     s.registry.BuzzerCount(),
		Timestamp:  startTime,
	})
}

func (s *Server) handleGameStart(env *protocol.Envelope) {
	var p protocol.GameStartPayload
	if err := env.DecodePayload(&p); err != nil {
		s.logger.Warn("invalid GAME_START payload", zap.Error(err))
		return
	}
	s.engine.StartGame(p)
	// Seed the roster so the ranking covers silent players too.
	for _, buzzer := range s.registry.Buzzers() {
		s.engine.EnsurePlayer(p.GameID, buzzer.BuzzerID(), buzzer.Name())
	}
	s.bcast.BroadcastToBuzzers(protocol.TypeGameStarted, protocol.GameStartedPayload{
		GameID:         p.GameID,
		Name:           p.Name,
		TotalQuestions: p.TotalQuestions,
	})
}

func (s *Server) handleGameEnd(env *protocol.Envelope) {
	var p protocol.GameEndPayload
	if err := env.DecodePayload(&p); err != nil {
		s.logger.Warn("invalid GAME_END payload", zap.Error(err))
		return
	}
	if _, err := s.engine.EndGame(p.GameID); err != nil {
		s.sendError(err.Error())
	}
}

// handleBuzzerDisconnect is the administrative kick from the console.
func (s *Server) handleBuzzerDisconnect(env *protocol.Envelope) {
	var p protocol.BuzzerDisconnectPayload
	if err := env.DecodePayload(&p); err != nil {
		s.logger.Warn("invalid BUZZER_DISCONNECT payload", zap.Error(err))
		return
	}
	buzzer, ok := s.registry.Buzzer(p.BuzzerID)
	if !ok {
		s.sendError(fmt.Sprintf("buzzer %s not connected", p.BuzzerID))
		return
	}
	s.logger.Info("admin disconnect", zap.String("buzzer_id", p.BuzzerID))
	buzzer.CloseWithCode(protocol.CloseAdminDisconnect)
}

// handleBuzzCorrect settles the current winner as right: points awarded,
// everyone unlocked.
func (s *Server) handleBuzzCorrect(env *protocol.Envelope) {
	var p protocol.BuzzCommandPayload
	if err := env.DecodePayload(&p); err != nil {
		s.logger.Warn("invalid BUZZ_CORRECT payload", zap.Error(err))
		return
	}
	out, err := s.engine.ValidateBuzz(p.GameID, p.QuestionID, p.BuzzerID, true)
	if err != nil {
		s.sendError(err.Error())
		return
	}
	s.bcast.SendToBuzzer(p.BuzzerID, protocol.TypeAnswerResult, protocol.AnswerResultPayload{
		QuestionID:   p.QuestionID,
		IsCorrect:    true,
		Points:       out.Points,
		ResponseTime: out.ResponseTime,
	})
	s.bcast.SendToConsole(protocol.TypeBuzzValidated, protocol.BuzzValidatedPayload{
		BuzzerID:     p.BuzzerID,
		IsCorrect:    true,
		Points:       out.Points,
		ResponseTime: out.ResponseTime,
	})
	s.bcast.BroadcastToBuzzers(protocol.TypeBuzzerUnlocked, protocol.BuzzerUnlockedPayload{
		GameID:     p.GameID,
		QuestionID: p.QuestionID,
	})
	s.maybeSendRanking(p.GameID)
}

// handleBuzzReopen declares the winner wrong: the player is excluded for the
// rest of the question and the remaining buzzers are unlocked.
func (s *Server) handleBuzzReopen(env *protocol.Envelope) {
	var p protocol.BuzzCommandPayload
	if err := env.DecodePayload(&p); err != nil {
		s.logger.Warn("invalid BUZZ_REOPEN payload", zap.Error(err))
		return
	}
	if _, err := s.engine.ValidateBuzz(p.GameID, p.QuestionID, p.BuzzerID, false); err != nil {
		s.sendError(err.Error())
		return
	}
	excluded, err := s.engine.ExcludePlayer(p.GameID, p.QuestionID, p.BuzzerID)
	if err != nil {
		s.sendError(err.Error())
		return
	}

	excludedSet := make(map[string]struct{}, len(excluded))
	for _, id := range excluded {
		excludedSet[id] = struct{}{}
	}
	remaining := make([]string, 0)
	for _, buzzer := range s.registry.Buzzers() {
		id := buzzer.BuzzerID()
		if _, isExcluded := excludedSet[id]; isExcluded {
			s.bcast.SendToPeer(buzzer, protocol.TypeBuzzerExcluded, protocol.BuzzerExcludedPayload{
				GameID:     p.GameID,
				QuestionID: p.QuestionID,
				Reason:     "wrong answer",
			})
			continue
		}
		remaining = append(remaining, id)
		s.bcast.SendToPeer(buzzer, protocol.TypeBuzzerUnlocked, protocol.BuzzerUnlockedPayload{
			GameID:     p.GameID,
			QuestionID: p.QuestionID,
		})
	}
	s.bcast.SendToConsole(protocol.TypeBuzzReopened, protocol.BuzzReopenedPayload{
		ExcludedPlayers:  excluded,
		RemainingPlayers: remaining,
	})
}

func (s *Server) handleJinglePlay(env *protocol.Envelope) {
	var p protocol.JinglePlayPayload
	if err := env.DecodePayload(&p); err != nil {
		s.logger.Warn("invalid JINGLE_PLAY payload", zap.Error(err))
		return
	}
	s.streamer.Play(p.BuzzerID, p.JingleID)
}

// handleAnswerMCQ scores the answer. Duplicates die silently: no result to
// the buzzer, no ANSWER_RECEIVED to the console.
func (s *Server) handleAnswerMCQ(peer *Peer, env *protocol.Envelope) {
	var p protocol.AnswerMCQPayload
	if err := env.DecodePayload(&p); err != nil {
		s.logger.Warn("invalid ANSWER_MCQ payload", zap.Error(err))
		return
	}
	out, err := s.engine.RecordAnswer(p.GameID, p.QuestionID, peer.BuzzerID(), peer.Name(), p.Answer, p.Timestamps)
	if err != nil {
		s.sendError(err.Error())
		return
	}
	if out.Duplicate {
		return
	}
	s.bcast.SendToPeer(peer, protocol.TypeAnswerResult, protocol.AnswerResultPayload{
		QuestionID:   p.QuestionID,
		IsCorrect:    out.IsCorrect,
		Points:       out.Points,
		ResponseTime: out.ResponseTime,
	})
	s.bcast.SendToConsole(protocol.TypeAnswerReceived, protocol.AnswerReceivedPayload{
		BuzzerID:     peer.BuzzerID(),
		QuestionID:   p.QuestionID,
		Answer:       p.Answer,
		IsCorrect:    out.IsCorrect,
		Points:       out.Points,
		ResponseTime: out.ResponseTime,
		Timestamps:   p.Timestamps,
	})
	if out.IsCorrect {
		s.maybeSendRanking(p.GameID)
	}
}

// handleAnswerBuzzer queues the buzz; the arbiter decides later. Rejections
// go back to the buzzer with their reason.
func (s *Server) handleAnswerBuzzer(peer *Peer, env *protocol.Envelope) {
	var p protocol.AnswerBuzzerPayload
	if err := env.DecodePayload(&p); err != nil {
		s.logger.Warn("invalid ANSWER_BUZZER payload", zap.Error(err))
		return
	}
	out := s.engine.RecordBuzz(p.GameID, p.QuestionID, peer.BuzzerID(), peer.Name(), p.Timestamps)
	if out.Ignored {
		s.bcast.SendToPeer(peer, protocol.TypeBuzzIgnored, protocol.BuzzIgnoredPayload{Reason: out.Reason})
	}
}

func (s *Server) handleStatusUpdate(peer *Peer, env *protocol.Envelope) {
	var p protocol.StatusUpdatePayload
	if err := env.DecodePayload(&p); err != nil {
		s.logger.Warn("invalid STATUS_UPDATE payload", zap.Error(err))
		return
	}
	peer.setStatus(p.Battery, p.WifiRSSI, p.FreeHeap)
	s.bcast.SendToConsole(protocol.TypeBuzzerStatusUpdate, protocol.BuzzerStatusUpdatePayload{
		BuzzerID: peer.BuzzerID(),
		Battery:  p.Battery,
		WifiRSSI: p.WifiRSSI,
		FreeHeap: p.FreeHeap,
	})
}

func (s *Server) maybeSendRanking(gameID string) {
	if !s.engine.ShowIntermediateRanking(gameID) {
		return
	}
	s.bcast.SendToConsole(protocol.TypeRankingUpdate, protocol.RankingUpdatePayload{
		GameID:  gameID,
		Ranking: s.engine.Ranking(gameID),
	})
}

func (s *Server) sendError(message string) {
	s.logger.Warn("reporting error to console", zap.String("message", message))
	s.bcast.SendToConsole(protocol.TypeError, protocol.ErrorPayload{Message: message})
}
