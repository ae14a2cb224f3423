// File: store/store.go
//
// External collaborators of the realtime core. The durable question/jingle
// catalogue and the historical results table live in another service; the
// engine only needs lookup and append capabilities.
package store

import (
	"encoding/json"
	"strings"
)

// Question is one quiz question as served to the session engine.
type Question struct {
	ID            int64    `json:"id"`
	Text          string   `json:"text"`
	Type          string   `json:"type"`
	Category      string   `json:"category,omitempty"`
	Points        int      `json:"points,omitempty"`
	Answers       []string `json:"answers,omitempty"`
	CorrectAnswer string   `json:"correct_answer,omitempty"`
}

// UnmarshalJSON accepts answers either as a JSON array or as the legacy
// JSON-string-encoded array form kept by the CRUD service.
func (q *Question) UnmarshalJSON(data []byte) error {
	type alias Question
	var raw struct {
		alias
		RawAnswers json.RawMessage `json:"answers,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*q = Question(raw.alias)
	q.Answers = nil
	if len(raw.RawAnswers) == 0 {
		return nil
	}
	trimmed := strings.TrimSpace(string(raw.RawAnswers))
	if strings.HasPrefix(trimmed, "\"") {
		var encoded string
		if err := json.Unmarshal(raw.RawAnswers, &encoded); err != nil {
			return err
		}
		return json.Unmarshal([]byte(encoded), &q.Answers)
	}
	return json.Unmarshal(raw.RawAnswers, &q.Answers)
}

// Jingle is the metadata of one stored audio clip.
type Jingle struct {
	ID   uint32 `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// Result is one scored answer row handed to the persistent writer.
type Result struct {
	GameID         string `json:"gameId"`
	QuestionID     int64  `json:"questionId"`
	BuzzerID       string `json:"buzzerID"`
	PlayerName     string `json:"playerName"`
	Answer         string `json:"answer,omitempty"`
	IsCorrect      bool   `json:"isCorrect"`
	Points         int    `json:"points"`
	ResponseTimeMs int64  `json:"responseTimeMs"`
	RecordedAt     int64  `json:"recordedAt"`
}

// QuestionStore resolves question IDs for dispatch and scoring.
type QuestionStore interface {
	Question(id int64) (*Question, bool)
}

// JingleStore resolves jingle IDs to metadata and file paths.
type JingleStore interface {
	Jingle(id uint32) (*Jingle, bool)
}

// ResultWriter appends scored answers to the durable results store. Write
// failures are reported but never block the live session.
type ResultWriter interface {
	WriteResult(r *Result) error
}
