// File: game/service.go
package game

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	mb "github.com/vardius/message-bus"
	"go.uber.org/zap"

	"github.com/quizzbox/quizzbox/protocol"
	"github.com/quizzbox/quizzbox/store"
	"github.com/quizzbox/quizzbox/utils"
)

// Service owns every in-memory game session. Sessions are created on demand
// and die with the process; there is no persistence of live state.
type Service struct {
	mu    sync.RWMutex
	games map[string]*Game

	questions store.QuestionStore
	results   store.ResultWriter
	bus       mb.MessageBus
	clock     clockwork.Clock
	logger    *zap.Logger

	window        time.Duration
	clampMs       int64
	defaultPoints int
}

// NewService wires the engine with its external collaborators. The bus is the
// only channel back to the network layer.
func NewService(cfg utils.Config, questions store.QuestionStore, results store.ResultWriter, bus mb.MessageBus, clock clockwork.Clock, logger *zap.Logger) *Service {
	return &Service{
		games:         make(map[string]*Game),
		questions:     questions,
		results:       results,
		bus:           bus,
		clock:         clock,
		logger:        logger.Named("game"),
		window:        cfg.BuzzWindow,
		clampMs:       cfg.AnswerClampMs,
		defaultPoints: cfg.DefaultPoints,
	}
}

func (s *Service) now() int64 { return s.clock.Now().UnixMilli() }

// ensureGame returns the session, creating it when the console references a
// game the engine has not seen yet.
func (s *Service) ensureGame(gameID string) *Game {
	s.mu.RLock()
	g, ok := s.games[gameID]
	s.mu.RUnlock()
	if ok {
		return g
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok = s.games[gameID]; ok {
		return g
	}
	g = newGame(gameID)
	s.games[gameID] = g
	return g
}

func (s *Service) game(gameID string) (*Game, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[gameID]
	return g, ok
}

// StartGame creates or restarts a session from a console GAME_START.
func (s *Service) StartGame(p protocol.GameStartPayload) *Game {
	g := s.ensureGame(p.GameID)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Name = p.Name
	g.TotalQuestions = p.TotalQuestions
	g.Settings = p.Settings
	g.Status = StatusStarted
	s.logger.Info("game started",
		zap.String("game_id", p.GameID),
		zap.String("name", p.Name),
		zap.Int("total_questions", p.TotalQuestions))
	return g
}

// EndGame closes the session and publishes the final ranking.
func (s *Service) EndGame(gameID string) ([]protocol.RankingEntry, error) {
	g, ok := s.game(gameID)
	if !ok {
		return nil, fmt.Errorf("game %s not found", gameID)
	}
	g.mu.Lock()
	g.Status = StatusEnded
	g.epoch++
	if g.evalTimer != nil {
		g.evalTimer.Stop()
		g.evalTimer = nil
	}
	ranking := g.rankingLocked()
	g.mu.Unlock()

	s.logger.Info("game ended", zap.String("game_id", gameID))
	s.bus.Publish(TopicGameEnded, GameEndedEvent{GameID: gameID, Ranking: ranking})
	return ranking, nil
}

// EnsurePlayer registers a buzzer in the game roster without touching scores.
func (s *Service) EnsurePlayer(gameID, buzzerID, name string) {
	g := s.ensureGame(gameID)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.playerLocked(buzzerID, name)
}

// RenamePlayer updates the display name in every session holding the buzzer.
func (s *Service) RenamePlayer(buzzerID, newName string) {
	s.mu.RLock()
	games := make([]*Game, 0, len(s.games))
	for _, g := range s.games {
		games = append(games, g)
	}
	s.mu.RUnlock()
	for _, g := range games {
		g.mu.Lock()
		if p, ok := g.players[buzzerID]; ok {
			p.Name = newName
		}
		g.mu.Unlock()
	}
}

// Ranking returns the current leaderboard of a game.
func (s *Service) Ranking(gameID string) []protocol.RankingEntry {
	g, ok := s.game(gameID)
	if !ok {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rankingLocked()
}

// ShowIntermediateRanking reports whether the game wants the console fed a
// ranking after each scored answer.
func (s *Service) ShowIntermediateRanking(gameID string) bool {
	g, ok := s.game(gameID)
	if !ok {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Settings.ShowIntermediateRanking
}

// Snapshots lists every live session, sorted by ID, for the state endpoint.
func (s *Service) Snapshots() []Snapshot {
	s.mu.RLock()
	games := make([]*Game, 0, len(s.games))
	for _, g := range s.games {
		games = append(games, g)
	}
	s.mu.RUnlock()
	out := make([]Snapshot, 0, len(games))
	for _, g := range games {
		out = append(out, g.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DispatchQuestion resets the question runtime state and stamps the start
// instant. Any armed evaluation timer from the previous question is cancelled.
func (s *Service) DispatchQuestion(gameID string, q *store.Question) int64 {
	g := s.ensureGame(gameID)
	now := s.now()

	g.mu.Lock()
	defer g.mu.Unlock()
	g.epoch++
	if g.evalTimer != nil {
		g.evalTimer.Stop()
		g.evalTimer = nil
	}
	g.question = newQuestionState(q.ID, now)
	g.CurrentIndex++
	if g.Status == StatusCreated {
		g.Status = StatusStarted
	}
	s.logger.Info("question dispatched",
		zap.String("game_id", gameID),
		zap.Int64("question_id", q.ID),
		zap.Int("index", g.CurrentIndex))
	return now
}

// questionStateLocked returns the runtime state for questionID, creating one
// stamped "now" when the engine has no state for it (a console restart mid
// question leaves buzzers answering a question the engine never dispatched).
// Callers hold g.mu.
func (s *Service) questionStateLocked(g *Game, questionID int64) *questionState {
	if g.question == nil || g.question.id != questionID {
		g.question = newQuestionState(questionID, s.now())
	}
	return g.question
}

// responseTime prefers the client's synced timestamp over arrival time.
func (s *Service) responseTime(st *questionState, ts protocol.Timestamps) int64 {
	var rt int64
	if ts.Synced > 0 {
		rt = ts.Synced - st.startTime
	} else {
		rt = s.now() - st.startTime
	}
	if rt < 0 {
		rt = 0
	}
	return rt
}

func (s *Service) questionPoints(q *store.Question) int {
	if q == nil || q.Points <= 0 {
		return s.defaultPoints
	}
	return q.Points
}

// persist hands a result row to the external writer. Failures are logged;
// in-memory state stays authoritative.
func (s *Service) persist(r *store.Result) {
	if s.results == nil {
		return
	}
	if err := s.results.WriteResult(r); err != nil {
		s.logger.Error("result write failed",
			zap.String("game_id", r.GameID),
			zap.Int64("question_id", r.QuestionID),
			zap.String("buzzer_id", r.BuzzerID),
			zap.Error(err))
	}
}

// AnswerOutcome is the verdict on one ANSWER_MCQ frame.
type AnswerOutcome struct {
	Duplicate    bool
	IsCorrect    bool
	Points       int
	ResponseTime int64
}

// RecordAnswer scores one answer against the current question. Duplicates
// from the same buzzer are dropped without side effects.
func (s *Service) RecordAnswer(gameID string, questionID int64, buzzerID, playerName, answer string, ts protocol.Timestamps) (AnswerOutcome, error) {
	q, found := s.questions.Question(questionID)
	if !found {
		return AnswerOutcome{}, fmt.Errorf("question %d not found", questionID)
	}

	g := s.ensureGame(gameID)
	g.mu.Lock()
	st := s.questionStateLocked(g, questionID)

	if _, dup := st.answers[buzzerID]; dup {
		g.mu.Unlock()
		s.logger.Debug("duplicate answer dropped",
			zap.String("game_id", gameID),
			zap.Int64("question_id", questionID),
			zap.String("buzzer_id", buzzerID))
		return AnswerOutcome{Duplicate: true}, nil
	}

	var isCorrect bool
	if q.Type == protocol.QuestionTypeBuzzer {
		// Rapidity question posted through the answer path: first in wins.
		isCorrect = len(st.answers) == 0
	} else {
		isCorrect = answer == q.CorrectAnswer
	}

	rt := s.responseTime(st, ts)
	if rt > s.clampMs {
		rt = s.clampMs
	}

	points := 0
	if isCorrect {
		points = s.questionPoints(q)
	}

	st.answers[buzzerID] = &answerRecord{
		Answer:       answer,
		IsCorrect:    isCorrect,
		Points:       points,
		ResponseTime: rt,
	}
	p := g.playerLocked(buzzerID, playerName)
	p.recordAnswer(isCorrect, points, rt)
	recordedAt := s.now()
	g.mu.Unlock()

	s.persist(&store.Result{
		GameID:         gameID,
		QuestionID:     questionID,
		BuzzerID:       buzzerID,
		PlayerName:     playerName,
		Answer:         answer,
		IsCorrect:      isCorrect,
		Points:         points,
		ResponseTimeMs: rt,
		RecordedAt:     recordedAt,
	})

	return AnswerOutcome{IsCorrect: isCorrect, Points: points, ResponseTime: rt}, nil
}

// BuzzOutcome is the verdict on one ANSWER_BUZZER frame.
type BuzzOutcome struct {
	Ignored      bool
	Reason       string
	IsPending    bool
	ResponseTime int64
}

// RecordBuzz queues a buzz candidate and arms the simultaneity window on the
// first eligible one. The winner is decided when the window fires, not here.
func (s *Service) RecordBuzz(gameID string, questionID int64, buzzerID, playerName string, ts protocol.Timestamps) BuzzOutcome {
	g := s.ensureGame(gameID)

	g.mu.Lock()
	defer g.mu.Unlock()
	st := s.questionStateLocked(g, questionID)

	if _, excluded := st.excluded[buzzerID]; excluded {
		return BuzzOutcome{Ignored: true, Reason: "excluded"}
	}
	if st.hasUnprocessedBuzz(buzzerID) {
		return BuzzOutcome{Ignored: true, Reason: "already buzzed"}
	}
	if st.locked {
		return BuzzOutcome{Ignored: true, Reason: "buzzers locked"}
	}

	// Lower bound only; buzz response times keep their raw magnitude.
	rt := s.responseTime(st, ts)

	st.pending = append(st.pending, &pendingBuzz{
		BuzzerID:     buzzerID,
		ResponseTime: rt,
		Timestamps:   ts,
		ReceivedAt:   s.now(),
	})
	g.playerLocked(buzzerID, playerName)

	if !st.timerArmed {
		st.timerArmed = true
		epoch := g.epoch
		g.evalTimer = s.clock.AfterFunc(s.window, func() {
			s.evaluateBuzzes(g, questionID, epoch)
		})
	}

	return BuzzOutcome{IsPending: true, ResponseTime: rt}
}

// evaluateBuzzes fires when the simultaneity window closes. It elects the
// lowest response time among unprocessed, non-excluded candidates and locks
// the buzzers. A question dispatched after arming bumps the epoch and turns
// this into a no-op.
func (s *Service) evaluateBuzzes(g *Game, questionID int64, epoch uint64) {
	g.mu.Lock()
	st := g.question
	if st == nil || st.id != questionID || g.epoch != epoch {
		g.mu.Unlock()
		return
	}
	st.timerArmed = false
	if st.locked {
		g.mu.Unlock()
		return
	}

	pending := make([]*pendingBuzz, 0, len(st.pending))
	for _, b := range st.pending {
		if b.Processed {
			continue
		}
		if _, excluded := st.excluded[b.BuzzerID]; excluded {
			continue
		}
		pending = append(pending, b)
	}
	if len(pending) == 0 {
		g.mu.Unlock()
		return
	}

	// Stable sort: equal response times fall back to arrival order.
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].ResponseTime < pending[j].ResponseTime
	})
	winner := pending[0]
	for _, b := range pending {
		b.Processed = true
	}
	st.locked = true
	st.winner = winner.BuzzerID
	name := ""
	if p, ok := g.players[winner.BuzzerID]; ok {
		name = p.Name
	}
	gameID := g.ID
	g.mu.Unlock()

	s.logger.Info("buzz winner elected",
		zap.String("game_id", gameID),
		zap.Int64("question_id", questionID),
		zap.String("buzzer_id", winner.BuzzerID),
		zap.Int64("response_time_ms", winner.ResponseTime),
		zap.Int("candidates", len(pending)))

	s.bus.Publish(TopicBuzzWinner, BuzzWinnerEvent{
		GameID:       gameID,
		QuestionID:   questionID,
		BuzzerID:     winner.BuzzerID,
		PlayerName:   name,
		ResponseTime: winner.ResponseTime,
	})
}

// ValidateOutcome reports the console's verdict on the current winner.
type ValidateOutcome struct {
	BuzzerID     string
	PlayerName   string
	IsCorrect    bool
	Points       int
	ResponseTime int64
}

// ValidateBuzz settles the buzz of the current winner. A correct verdict
// awards the question's points and releases the lock; a wrong verdict only
// books the failed attempt (the caller excludes the player next).
func (s *Service) ValidateBuzz(gameID string, questionID int64, buzzerID string, isCorrect bool) (ValidateOutcome, error) {
	g, ok := s.game(gameID)
	if !ok {
		return ValidateOutcome{}, fmt.Errorf("game %s not found", gameID)
	}

	g.mu.Lock()
	st := s.questionStateLocked(g, questionID)

	var rt int64
	if b := st.buzzFor(buzzerID); b != nil {
		rt = b.ResponseTime
	}

	points := 0
	if isCorrect {
		if q, found := s.questions.Question(questionID); found {
			points = s.questionPoints(q)
		} else {
			points = s.defaultPoints
		}
		st.answers[buzzerID] = &answerRecord{
			IsCorrect:    true,
			Points:       points,
			ResponseTime: rt,
		}
		// Question resolved; release the lock.
		st.locked = false
		st.winner = ""
	}

	p := g.playerLocked(buzzerID, "")
	p.recordAnswer(isCorrect, points, rt)
	name := p.Name
	recordedAt := s.now()
	g.mu.Unlock()

	s.persist(&store.Result{
		GameID:         gameID,
		QuestionID:     questionID,
		BuzzerID:       buzzerID,
		PlayerName:     name,
		IsCorrect:      isCorrect,
		Points:         points,
		ResponseTimeMs: rt,
		RecordedAt:     recordedAt,
	})

	return ValidateOutcome{
		BuzzerID:     buzzerID,
		PlayerName:   name,
		IsCorrect:    isCorrect,
		Points:       points,
		ResponseTime: rt,
	}, nil
}

// ExcludePlayer bars a buzzer from re-buzzing on the current question and
// reopens the floor. The next incoming buzz arms a fresh window.
func (s *Service) ExcludePlayer(gameID string, questionID int64, buzzerID string) ([]string, error) {
	g, ok := s.game(gameID)
	if !ok {
		return nil, fmt.Errorf("game %s not found", gameID)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	st := s.questionStateLocked(g, questionID)
	st.excluded[buzzerID] = struct{}{}
	st.locked = false
	st.winner = ""

	excluded := make([]string, 0, len(st.excluded))
	for id := range st.excluded {
		excluded = append(excluded, id)
	}
	sort.Strings(excluded)
	return excluded, nil
}

// Winner reports the current winner of a question, if any.
func (s *Service) Winner(gameID string, questionID int64) (string, bool) {
	g, ok := s.game(gameID)
	if !ok {
		return "", false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.question == nil || g.question.id != questionID || g.question.winner == "" {
		return "", false
	}
	return g.question.winner, true
}
