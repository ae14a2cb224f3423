// File: main.go
package main

import (
	"net/http"
	"os"

	"github.com/jonboulle/clockwork"
	mb "github.com/vardius/message-bus"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"

	"github.com/quizzbox/quizzbox/game"
	"github.com/quizzbox/quizzbox/jingle"
	"github.com/quizzbox/quizzbox/server"
	"github.com/quizzbox/quizzbox/store"
	"github.com/quizzbox/quizzbox/utils"
)

func newLogger() *zap.Logger {
	if os.Getenv("QUIZZBOX_DEV") == "1" {
		logger, err := zap.NewDevelopment()
		if err != nil {
			panic(err)
		}
		return logger
	}
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	return logger
}

func main() {
	cfg := utils.DefaultConfig()
	cfg.FromEnv()

	logger := newLogger()
	defer logger.Sync()

	memory := store.NewMemory()
	if cfg.QuestionsFile != "" {
		if err := memory.LoadQuestions(cfg.QuestionsFile); err != nil {
			logger.Fatal("loading questions", zap.String("path", cfg.QuestionsFile), zap.Error(err))
		}
	}
	if cfg.JinglesFile != "" {
		if err := memory.LoadJingles(cfg.JinglesFile); err != nil {
			logger.Fatal("loading jingles", zap.String("path", cfg.JinglesFile), zap.Error(err))
		}
	}

	clock := clockwork.NewRealClock()
	bus := mb.New(64)

	engine := game.NewService(cfg, memory, memory, bus, clock, logger)
	registry := server.NewRegistry(cfg.MaxBuzzers, cfg.HeartbeatInterval, clock, logger)
	bcast := server.NewBroadcaster(registry, clock, logger)
	streamer := jingle.NewStreamer(memory, bcast, cfg.JingleDir, cfg.JingleChunkSize, logger)
	srv := server.New(cfg, registry, engine, memory, streamer, bcast, bus, clock, logger)

	stop := make(chan struct{})
	defer close(stop)
	go registry.RunHeartbeat(stop)

	http.Handle("/subscribe", websocket.Handler(srv.HandleSubscribe()))
	http.HandleFunc("/state", srv.HandleState())

	logger.Info("listening",
		zap.String("addr", cfg.ListenAddr),
		zap.String("version", utils.Version),
		zap.Int("max_buzzers", cfg.MaxBuzzers))
	if err := http.ListenAndServe(cfg.ListenAddr, nil); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
