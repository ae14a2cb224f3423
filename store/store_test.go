// File: store/store_test.go
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuestionUnmarshalAnswersArray(t *testing.T) {
	raw := `{"id":1,"text":"Capital?","type":"MCQ","points":20,"answers":["Paris","Lyon"],"correct_answer":"Paris"}`
	var q Question
	require.NoError(t, json.Unmarshal([]byte(raw), &q))
	assert.Equal(t, int64(1), q.ID)
	assert.Equal(t, []string{"Paris", "Lyon"}, q.Answers)
	assert.Equal(t, "Paris", q.CorrectAnswer)
}

func TestQuestionUnmarshalLegacyStringAnswers(t *testing.T) {
	// The CRUD service historically stored the answers array JSON-encoded
	// inside a string field.
	raw := `{"id":2,"text":"Capital?","type":"MCQ","answers":"[\"Paris\",\"Lyon\"]","correct_answer":"Paris"}`
	var q Question
	require.NoError(t, json.Unmarshal([]byte(raw), &q))
	assert.Equal(t, []string{"Paris", "Lyon"}, q.Answers)
}

func TestQuestionUnmarshalNoAnswers(t *testing.T) {
	raw := `{"id":3,"text":"Buzz!","type":"BUZZER"}`
	var q Question
	require.NoError(t, json.Unmarshal([]byte(raw), &q))
	assert.Nil(t, q.Answers)
}

func TestMemoryLoadsCatalogueFiles(t *testing.T) {
	dir := t.TempDir()
	questionsPath := filepath.Join(dir, "questions.json")
	jinglesPath := filepath.Join(dir, "jingles.json")
	require.NoError(t, os.WriteFile(questionsPath, []byte(
		`[{"id":1,"text":"Q1","type":"MCQ","answers":["a","b"],"correct_answer":"a"},
		  {"id":2,"text":"Q2","type":"BUZZER"}]`), 0o644))
	require.NoError(t, os.WriteFile(jinglesPath, []byte(
		`[{"id":7,"name":"Buzz","path":"buzz.mp3"}]`), 0o644))

	m := NewMemory()
	require.NoError(t, m.LoadQuestions(questionsPath))
	require.NoError(t, m.LoadJingles(jinglesPath))

	q, ok := m.Question(2)
	require.True(t, ok)
	assert.Equal(t, "BUZZER", q.Type)

	j, ok := m.Jingle(7)
	require.True(t, ok)
	assert.Equal(t, "buzz.mp3", j.Path)

	_, ok = m.Question(99)
	assert.False(t, ok)

	err := m.LoadQuestions(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
