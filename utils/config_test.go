// File: utils/config_test.go
package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ":3001", cfg.ListenAddr)
	assert.Equal(t, 10, cfg.MaxBuzzers)
	assert.Equal(t, 30*time.Second, cfg.IdentificationTimeout)
	assert.Equal(t, 200*time.Millisecond, cfg.BuzzWindow)
	assert.Equal(t, int64(120000), cfg.AnswerClampMs)
	assert.Equal(t, 4096, cfg.JingleChunkSize)
}

func TestFromEnvOverlay(t *testing.T) {
	t.Setenv("QUIZZBOX_ADDR", ":9090")
	t.Setenv("QUIZZBOX_MAX_BUZZERS", "4")
	t.Setenv("QUIZZBOX_JINGLE_DIR", "/srv/jingles")
	t.Setenv("QUIZZBOX_QUESTIONS", "/srv/questions.json")

	cfg := DefaultConfig()
	cfg.FromEnv()
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, 4, cfg.MaxBuzzers)
	assert.Equal(t, "/srv/jingles", cfg.JingleDir)
	assert.Equal(t, "/srv/questions.json", cfg.QuestionsFile)
}

func TestFromEnvIgnoresInvalidNumbers(t *testing.T) {
	t.Setenv("QUIZZBOX_MAX_BUZZERS", "not-a-number")
	cfg := DefaultConfig()
	cfg.FromEnv()
	assert.Equal(t, 10, cfg.MaxBuzzers)
}
