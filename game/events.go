// File: game/events.go
package game

import "github.com/quizzbox/quizzbox/protocol"

// Bus topics published by the session engine. The network layer subscribes;
// the engine never imports it.
const (
	TopicBuzzWinner = "game.buzz.winner"
	TopicGameEnded  = "game.ended"
)

// BuzzWinnerEvent is published when the simultaneity window closes and a
// winner has been elected.
type BuzzWinnerEvent struct {
	GameID       string
	QuestionID   int64
	BuzzerID     string
	PlayerName   string
	ResponseTime int64
}

// GameEndedEvent is published when a game reaches its final state.
type GameEndedEvent struct {
	GameID  string
	Ranking []protocol.RankingEntry
}
