// File: protocol/messages.go
package protocol

import (
	"encoding/json"
	"fmt"
)

// Sender tags carried in every text envelope.
const (
	SenderServer  = "SERVER"
	SenderConsole = "ANGULAR"
	SenderBuzzer  = "BUZZER"
)

// WebSocket close codes.
const (
	CloseIdentificationTimeout = 4001
	CloseDuplicateBuzzer       = 4002
	CloseAdminDisconnect       = 4003
)

// Message types exchanged with the console.
const (
	TypeAngularConnect     = "ANGULAR_CONNECT"
	TypeConnected          = "CONNECTED"
	TypeBuzzerListUpdate   = "BUZZER_LIST_UPDATE"
	TypeBuzzerConnected    = "BUZZER_CONNECTED"
	TypeBuzzerDisconnected = "BUZZER_DISCONNECTED"
	TypeRequestBuzzerList  = "REQUEST_BUZZER_LIST"
	TypePlayerRename       = "PLAYER_RENAME"
	TypeQuestionSend       = "QUESTION_SEND"
	TypeQuestionSent       = "QUESTION_SENT"
	TypeGameStart          = "GAME_START"
	TypeGameEnd            = "GAME_END"
	TypeGameEnded          = "GAME_ENDED"
	TypeBuzzerDisconnect   = "BUZZER_DISCONNECT"
	TypeBuzzCorrect        = "BUZZ_CORRECT"
	TypeBuzzReopen         = "BUZZ_REOPEN"
	TypeBuzzWinner         = "BUZZ_WINNER"
	TypeBuzzValidated      = "BUZZ_VALIDATED"
	TypeBuzzReopened       = "BUZZ_REOPENED"
	TypeJinglePlay         = "JINGLE_PLAY"
	TypeJingleStarted      = "JINGLE_STARTED"
	TypeJingleCompleted    = "JINGLE_COMPLETED"
	TypeJingleError        = "JINGLE_ERROR"
	TypeAnswerReceived     = "ANSWER_RECEIVED"
	TypeBuzzerStatusUpdate = "BUZZER_STATUS_UPDATE"
	TypeRankingUpdate      = "RANKING_UPDATE"
	TypeError              = "ERROR"
)

// Message types exchanged with buzzers.
const (
	TypeBuzzerRegister     = "BUZZER_REGISTER"
	TypeConnectionAck      = "CONNECTION_ACK"
	TypeConnectionRejected = "CONNECTION_REJECTED"
	TypePlayerNameUpdate   = "PLAYER_NAME_UPDATE"
	TypeQuestionStart      = "QUESTION_START"
	TypeGameStarted        = "GAME_STARTED"
	TypeAnswerMCQ          = "ANSWER_MCQ"
	TypeAnswerBuzzer       = "ANSWER_BUZZER"
	TypeAnswerResult       = "ANSWER_RESULT"
	TypeBuzzIgnored        = "BUZZ_IGNORED"
	TypeBuzzerLocked       = "BUZZER_LOCKED"
	TypeBuzzerUnlocked     = "BUZZER_UNLOCKED"
	TypeBuzzerExcluded     = "BUZZER_EXCLUDED"
	TypeTimeSyncReq        = "TIME_SYNC_REQ"
	TypeTimeSyncRes        = "TIME_SYNC_RES"
	TypePing               = "PING"
	TypePong               = "PONG"
	TypeStatusUpdate       = "STATUS_UPDATE"
	TypeJingleStart        = "JINGLE_START"
	TypeJingleEnd          = "JINGLE_END"
)

// Question kinds as stored alongside the question text.
const (
	QuestionTypeMCQ    = "MCQ"
	QuestionTypeBuzzer = "BUZZER"
)

// Envelope is the text frame wrapper shared by every peer.
type Envelope struct {
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Sender    string          `json:"sender"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope builds a server-sent envelope around a payload struct.
func NewEnvelope(msgType string, timestamp int64, payload interface{}) (*Envelope, error) {
	env := &Envelope{
		Type:      msgType,
		Timestamp: timestamp,
		Sender:    SenderServer,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
		}
		env.Payload = raw
	}
	return env, nil
}

// DecodePayload unmarshals the envelope payload into v.
func (e *Envelope) DecodePayload(v interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// Timestamps accompany answers and buzzes so the server can prefer the
// clock-synchronized instant over its own arrival time.
type Timestamps struct {
	Local             int64 `json:"local,omitempty"`
	Synced            int64 `json:"synced,omitempty"`
	CalibratedLatency int64 `json:"calibratedLatency,omitempty"`
}

// --- Console payloads ---

type ServerConfig struct {
	MaxBuzzers int    `json:"maxBuzzers"`
	Version    string `json:"version"`
}

type ConnectedPayload struct {
	SessionID  string       `json:"sessionID"`
	ServerTime int64        `json:"serverTime"`
	Config     ServerConfig `json:"config"`
}

// BuzzerInfo is the console-facing view of one registered buzzer.
type BuzzerInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MacAddress   string `json:"macAddress,omitempty"`
	PlayerNumber int    `json:"playerNumber"`
	ConnectedAt  int64  `json:"connectedAt"`
	Battery      int    `json:"battery"`
	WifiRSSI     int    `json:"wifiRSSI"`
	Latency      int64  `json:"latency"`
	Connected    bool   `json:"connected"`
}

type BuzzerListUpdatePayload struct {
	Buzzers []BuzzerInfo `json:"buzzers"`
	Total   int          `json:"total"`
}

type BuzzerConnectedPayload struct {
	Buzzer       BuzzerInfo `json:"buzzer"`
	TotalBuzzers int        `json:"totalBuzzers"`
}

type BuzzerDisconnectedPayload struct {
	BuzzerID     string `json:"buzzerID"`
	TotalBuzzers int    `json:"totalBuzzers"`
}

type PlayerRenamePayload struct {
	BuzzerID string `json:"buzzerID"`
	NewName  string `json:"newName"`
}

type QuestionSendPayload struct {
	GameID     string `json:"gameId"`
	QuestionID int64  `json:"questionId"`
}

type QuestionSentPayload struct {
	QuestionID int64 `json:"questionId"`
	SentTo     int   `json:"sentTo"`
	Timestamp  int64 `json:"timestamp"`
}

type GameStartPayload struct {
	GameID         string       `json:"gameId"`
	Name           string       `json:"name"`
	TotalQuestions int          `json:"totalQuestions"`
	Settings       GameSettings `json:"settings,omitempty"`
}

type GameSettings struct {
	McqDuration             int  `json:"mcqDuration,omitempty"`
	BuzzerDuration          int  `json:"buzzerDuration,omitempty"`
	ShowCorrectAnswer       bool `json:"showCorrectAnswer,omitempty"`
	ShowIntermediateRanking bool `json:"showIntermediateRanking,omitempty"`
}

type GameEndPayload struct {
	GameID string `json:"gameId"`
}

type RankingEntry struct {
	Rank           int    `json:"rank"`
	BuzzerID       string `json:"buzzerID"`
	Name           string `json:"name"`
	Score          int    `json:"score"`
	CorrectAnswers int    `json:"correctAnswers"`
	TotalAnswers   int    `json:"totalAnswers"`
	AvgResponseMs  int64  `json:"avgResponseMs"`
}

type RankingUpdatePayload struct {
	GameID  string         `json:"gameId"`
	Ranking []RankingEntry `json:"ranking"`
}

type GameEndedPayload struct {
	GameID  string         `json:"gameId"`
	Ranking []RankingEntry `json:"ranking"`
}

type BuzzerDisconnectPayload struct {
	BuzzerID string `json:"buzzerID"`
}

// BuzzCommandPayload covers BUZZ_CORRECT and BUZZ_REOPEN from the console.
type BuzzCommandPayload struct {
	GameID     string `json:"gameId"`
	QuestionID int64  `json:"questionId"`
	BuzzerID   string `json:"buzzerID"`
}

type BuzzWinnerPayload struct {
	BuzzerID     string `json:"buzzerID"`
	PlayerName   string `json:"playerName"`
	QuestionID   int64  `json:"questionId"`
	GameID       string `json:"gameId"`
	ResponseTime int64  `json:"responseTime"`
}

type BuzzValidatedPayload struct {
	BuzzerID     string `json:"buzzerID"`
	IsCorrect    bool   `json:"isCorrect"`
	Points       int    `json:"points"`
	ResponseTime int64  `json:"responseTime"`
}

type BuzzReopenedPayload struct {
	ExcludedPlayers  []string `json:"excludedPlayers"`
	RemainingPlayers []string `json:"remainingPlayers"`
}

type JinglePlayPayload struct {
	BuzzerID string `json:"buzzerID"`
	JingleID uint32 `json:"jingleId"`
}

type JingleStartedPayload struct {
	BuzzerID string `json:"buzzerID"`
	JingleID uint32 `json:"jingleId"`
	Name     string `json:"name,omitempty"`
	FileSize int64  `json:"fileSize,omitempty"`
}

type JingleCompletedPayload struct {
	BuzzerID    string `json:"buzzerID"`
	JingleID    uint32 `json:"jingleId"`
	TotalChunks int    `json:"totalChunks"`
}

type JingleErrorPayload struct {
	BuzzerID string `json:"buzzerID,omitempty"`
	JingleID uint32 `json:"jingleId,omitempty"`
	Error    string `json:"error"`
}

type AnswerReceivedPayload struct {
	BuzzerID     string     `json:"buzzerID"`
	QuestionID   int64      `json:"questionId"`
	Answer       string     `json:"answer"`
	IsCorrect    bool       `json:"isCorrect"`
	Points       int        `json:"points"`
	ResponseTime int64      `json:"responseTime"`
	Timestamps   Timestamps `json:"timestamps"`
}

type BuzzerStatusUpdatePayload struct {
	BuzzerID string `json:"buzzerID"`
	Battery  int    `json:"battery"`
	WifiRSSI int    `json:"wifiRSSI"`
	FreeHeap int    `json:"freeHeap"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// --- Buzzer payloads ---

type BuzzerRegisterPayload struct {
	BuzzerID   string `json:"buzzerID"`
	Name       string `json:"name,omitempty"`
	MacAddress string `json:"macAddress,omitempty"`
}

type ConnectionAckPayload struct {
	BuzzerID     string `json:"buzzerID"`
	PlayerNumber int    `json:"playerNumber"`
	ServerTime   int64  `json:"serverTime"`
}

type ConnectionRejectedPayload struct {
	Reason string `json:"reason"`
}

type PlayerNameUpdatePayload struct {
	Name string `json:"name"`
}

type QuestionStartPayload struct {
	GameID        string   `json:"gameId"`
	ID            int64    `json:"id"`
	Text          string   `json:"text"`
	Type          string   `json:"type"`
	Category      string   `json:"category,omitempty"`
	Points        int      `json:"points"`
	StartTime     int64    `json:"startTime"`
	Answers       []string `json:"answers,omitempty"`
	CorrectAnswer string   `json:"correct_answer,omitempty"`
}

type GameStartedPayload struct {
	GameID         string `json:"gameId"`
	Name           string `json:"name"`
	TotalQuestions int    `json:"totalQuestions"`
}

type AnswerMCQPayload struct {
	GameID     string     `json:"gameId"`
	QuestionID int64      `json:"questionId"`
	Answer     string     `json:"answer"`
	Timestamps Timestamps `json:"timestamps"`
}

type AnswerBuzzerPayload struct {
	GameID     string     `json:"gameId"`
	QuestionID int64      `json:"questionId"`
	Timestamps Timestamps `json:"timestamps"`
}

type AnswerResultPayload struct {
	QuestionID   int64 `json:"questionId"`
	IsCorrect    bool  `json:"isCorrect"`
	Points       int   `json:"points"`
	ResponseTime int64 `json:"responseTime"`
}

type BuzzIgnoredPayload struct {
	Reason string `json:"reason"`
}

type BuzzerLockedPayload struct {
	GameID     string `json:"gameId"`
	QuestionID int64  `json:"questionId"`
	WinnerID   string `json:"winnerID"`
}

type BuzzerUnlockedPayload struct {
	GameID     string `json:"gameId"`
	QuestionID int64  `json:"questionId"`
}

type BuzzerExcludedPayload struct {
	GameID     string `json:"gameId"`
	QuestionID int64  `json:"questionId"`
	Reason     string `json:"reason,omitempty"`
}

// TimeSyncPayload carries the three-timestamp exchange: the client sets T1,
// the server echoes it and stamps T2/T3 so the client can derive its offset.
type TimeSyncPayload struct {
	T1 int64 `json:"T1"`
	T2 int64 `json:"T2,omitempty"`
	T3 int64 `json:"T3,omitempty"`
}

type PingPayload struct {
	TSend int64 `json:"T_send"`
}

type PongPayload struct {
	TSend    int64 `json:"T_send"`
	TReceive int64 `json:"T_receive"`
}

type StatusUpdatePayload struct {
	Battery  int `json:"battery"`
	WifiRSSI int `json:"wifiRSSI"`
	FreeHeap int `json:"freeHeap"`
}

type JingleStartBuzzerPayload struct {
	JingleID uint32 `json:"jingleId"`
	Name     string `json:"name"`
	Format   string `json:"format"`
	FileSize int64  `json:"fileSize"`
}

type JingleEndPayload struct {
	JingleID    uint32 `json:"jingleId"`
	TotalChunks int    `json:"totalChunks"`
	FileSize    int64  `json:"fileSize"`
}
