// File: game/game.go
package game

import (
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/quizzbox/quizzbox/protocol"
)

// Status is the lifecycle state of a game session.
type Status string

const (
	StatusCreated Status = "created"
	StatusStarted Status = "started"
	StatusPaused  Status = "paused"
	StatusEnded   Status = "ended"
)

// Player is the per-game record for one buzzer. Identity is the buzzerID, so
// a device that reconnects keeps its score.
type Player struct {
	BuzzerID        string `json:"buzzerID"`
	Name            string `json:"name"`
	Score           int    `json:"score"`
	CorrectAnswers  int    `json:"correctAnswers"`
	TotalAnswers    int    `json:"totalAnswers"`
	TotalResponseMs int64  `json:"totalResponseMs"`
	FastestMs       int64  `json:"fastestMs"`
	SlowestMs       int64  `json:"slowestMs"`
}

func (p *Player) recordAnswer(isCorrect bool, points int, responseTime int64) {
	p.TotalAnswers++
	if isCorrect {
		p.CorrectAnswers++
	}
	p.Score += points
	p.TotalResponseMs += responseTime
	if p.FastestMs < 0 || responseTime < p.FastestMs {
		p.FastestMs = responseTime
	}
	if responseTime > p.SlowestMs {
		p.SlowestMs = responseTime
	}
}

// answerRecord is one entry of the per-question answer map.
type answerRecord struct {
	Answer       string
	IsCorrect    bool
	Points       int
	ResponseTime int64
}

// pendingBuzz is one candidate collected during the simultaneity window.
type pendingBuzz struct {
	BuzzerID     string
	ResponseTime int64
	Timestamps   protocol.Timestamps
	ReceivedAt   int64
	Processed    bool
}

// questionState is the runtime state of the question currently on the floor.
// Reset on every dispatch.
type questionState struct {
	id         int64
	startTime  int64 // ms since epoch, server clock
	answers    map[string]*answerRecord
	excluded   map[string]struct{}
	pending    []*pendingBuzz
	locked     bool
	winner     string
	timerArmed bool
}

func newQuestionState(id, startTime int64) *questionState {
	return &questionState{
		id:        id,
		startTime: startTime,
		answers:   make(map[string]*answerRecord),
		excluded:  make(map[string]struct{}),
	}
}

// hasUnprocessedBuzz reports whether the buzzer already has a live candidate.
func (st *questionState) hasUnprocessedBuzz(buzzerID string) bool {
	for _, b := range st.pending {
		if !b.Processed && b.BuzzerID == buzzerID {
			return true
		}
	}
	return false
}

// buzzFor returns the most recent pending entry for a buzzer, processed or not.
func (st *questionState) buzzFor(buzzerID string) *pendingBuzz {
	for i := len(st.pending) - 1; i >= 0; i-- {
		if st.pending[i].BuzzerID == buzzerID {
			return st.pending[i]
		}
	}
	return nil
}

// Game is one in-memory session. All mutable state is guarded by mu; the
// service never touches fields directly without it.
type Game struct {
	mu sync.Mutex

	ID             string
	Name           string
	Status         Status
	Settings       protocol.GameSettings
	TotalQuestions int

	// CurrentIndex starts at -1 and counts dispatched questions.
	CurrentIndex int

	players  map[string]*Player
	question *questionState

	// epoch increments on every dispatch so a stale evaluation timer
	// observes the change and no-ops.
	epoch     uint64
	evalTimer clockwork.Timer
}

func newGame(id string) *Game {
	return &Game{
		ID:           id,
		Status:       StatusCreated,
		CurrentIndex: -1,
		players:      make(map[string]*Player),
	}
}

// playerLocked returns the player record, creating it on demand. Callers hold g.mu.
func (g *Game) playerLocked(buzzerID, name string) *Player {
	p, ok := g.players[buzzerID]
	if !ok {
		p = &Player{BuzzerID: buzzerID, Name: name, FastestMs: -1}
		g.players[buzzerID] = p
	}
	if name != "" && p.Name == "" {
		p.Name = name
	}
	return p
}

// rankingLocked builds the leaderboard. Callers hold g.mu.
func (g *Game) rankingLocked() []protocol.RankingEntry {
	entries := make([]protocol.RankingEntry, 0, len(g.players))
	for _, p := range g.players {
		avg := int64(0)
		if p.TotalAnswers > 0 {
			avg = p.TotalResponseMs / int64(p.TotalAnswers)
		}
		entries = append(entries, protocol.RankingEntry{
			BuzzerID:       p.BuzzerID,
			Name:           p.Name,
			Score:          p.Score,
			CorrectAnswers: p.CorrectAnswers,
			TotalAnswers:   p.TotalAnswers,
			AvgResponseMs:  avg,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if entries[i].CorrectAnswers != entries[j].CorrectAnswers {
			return entries[i].CorrectAnswers > entries[j].CorrectAnswers
		}
		return entries[i].Name < entries[j].Name
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// Snapshot is the read-only view exposed on the HTTP state endpoint.
type Snapshot struct {
	ID             string                  `json:"id"`
	Name           string                  `json:"name"`
	Status         Status                  `json:"status"`
	TotalQuestions int                     `json:"totalQuestions"`
	CurrentIndex   int                     `json:"currentQuestionIndex"`
	Players        []protocol.RankingEntry `json:"players"`
}

func (g *Game) snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Snapshot{
		ID:             g.ID,
		Name:           g.Name,
		Status:         g.Status,
		TotalQuestions: g.TotalQuestions,
		CurrentIndex:   g.CurrentIndex,
		Players:        g.rankingLocked(),
	}
}
