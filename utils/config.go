// File: utils/config.go
package utils

import (
	"os"
	"strconv"
	"time"
)

// Version is reported to the console in the CONNECTED handshake.
const Version = "1.3.0"

// Config holds all configurable server parameters.
type Config struct {
	// Network
	ListenAddr string `json:"listenAddr"` // host:port for the HTTP/WebSocket listener

	// Peers
	MaxBuzzers int `json:"maxBuzzers"` // Hard cap on registered buzzers

	// Timing
	IdentificationTimeout time.Duration `json:"identificationTimeout"` // Close 4001 if no identification frame
	HeartbeatInterval     time.Duration `json:"heartbeatInterval"`     // Ping period and liveness window
	BuzzWindow            time.Duration `json:"buzzWindow"`            // Simultaneity window before electing a winner

	// Scoring
	AnswerClampMs int64 `json:"answerClampMs"` // Upper bound on answer response times
	DefaultPoints int   `json:"defaultPoints"` // Awarded when a question carries no points

	// Jingles
	JingleDir       string `json:"jingleDir"`       // Root directory jingle paths must resolve under
	JingleChunkSize int    `json:"jingleChunkSize"` // Audio bytes per binary frame

	// Catalogue files (optional; empty means start with an empty store)
	QuestionsFile string `json:"questionsFile"`
	JinglesFile   string `json:"jinglesFile"`
}

// DefaultConfig returns a Config struct with default values.
func DefaultConfig() Config {
	return Config{
		ListenAddr: ":3001",

		MaxBuzzers: 10,

		IdentificationTimeout: 30 * time.Second,
		HeartbeatInterval:     30 * time.Second,
		BuzzWindow:            200 * time.Millisecond,

		AnswerClampMs: 120000,
		DefaultPoints: 10,

		JingleDir:       "jingles",
		JingleChunkSize: 4096,
	}
}

// FromEnv overlays QUIZZBOX_* environment variables on the config.
func (c *Config) FromEnv() {
	if v := os.Getenv("QUIZZBOX_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("QUIZZBOX_MAX_BUZZERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MaxBuzzers = n
		}
	}
	if v := os.Getenv("QUIZZBOX_JINGLE_DIR"); v != "" {
		c.JingleDir = v
	}
	if v := os.Getenv("QUIZZBOX_QUESTIONS"); v != "" {
		c.QuestionsFile = v
	}
	if v := os.Getenv("QUIZZBOX_JINGLES"); v != "" {
		c.JinglesFile = v
	}
}
