// File: server/broadcaster.go
package server

import (
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/quizzbox/quizzbox/protocol"
)

// Broadcaster is the typed fan-out helper over the registry: one console,
// one buzzer, or all buzzers. Sends to dead peers are dropped and logged.
// It also implements jingle.Sink.
type Broadcaster struct {
	registry *Registry
	clock    clockwork.Clock
	logger   *zap.Logger
}

func NewBroadcaster(registry *Registry, clock clockwork.Clock, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		clock:    clock,
		logger:   logger.Named("broadcast"),
	}
}

func (b *Broadcaster) envelope(msgType string, payload interface{}) (*protocol.Envelope, bool) {
	env, err := protocol.NewEnvelope(msgType, b.clock.Now().UnixMilli(), payload)
	if err != nil {
		b.logger.Error("envelope build failed", zap.String("type", msgType), zap.Error(err))
		return nil, false
	}
	return env, true
}

// SendToConsole delivers a typed message to the console, if one is connected.
func (b *Broadcaster) SendToConsole(msgType string, payload interface{}) {
	console := b.registry.Console()
	if console == nil {
		b.logger.Warn("no console connected, dropping message", zap.String("type", msgType))
		return
	}
	env, ok := b.envelope(msgType, payload)
	if !ok {
		return
	}
	if err := console.SendEnvelope(env); err != nil {
		b.logger.Warn("console send failed", zap.String("type", msgType), zap.Error(err))
	}
}

// SendToPeer delivers a typed message to one specific peer.
func (b *Broadcaster) SendToPeer(p *Peer, msgType string, payload interface{}) error {
	env, ok := b.envelope(msgType, payload)
	if !ok {
		return nil
	}
	if err := p.SendEnvelope(env); err != nil {
		b.logger.Warn("peer send failed",
			zap.String("type", msgType),
			zap.String("class", p.Class().String()),
			zap.Error(err))
		return err
	}
	return nil
}

// SendToBuzzer delivers a typed message to one registered buzzer.
func (b *Broadcaster) SendToBuzzer(buzzerID, msgType string, payload interface{}) error {
	p, ok := b.registry.Buzzer(buzzerID)
	if !ok {
		b.logger.Warn("buzzer not registered, dropping message",
			zap.String("buzzer_id", buzzerID),
			zap.String("type", msgType))
		return errPeerClosed
	}
	return b.SendToPeer(p, msgType, payload)
}

// SendBinaryToBuzzer delivers one jingle chunk frame to a buzzer.
func (b *Broadcaster) SendBinaryToBuzzer(buzzerID string, frame []byte) error {
	p, ok := b.registry.Buzzer(buzzerID)
	if !ok {
		return errPeerClosed
	}
	return p.SendBinary(frame)
}

// BuzzerWritable reports whether the buzzer's transport accepts frames.
func (b *Broadcaster) BuzzerWritable(buzzerID string) bool {
	p, ok := b.registry.Buzzer(buzzerID)
	return ok && p.Writable()
}

// BroadcastToBuzzers delivers a typed message to every registered buzzer.
func (b *Broadcaster) BroadcastToBuzzers(msgType string, payload interface{}) {
	env, ok := b.envelope(msgType, payload)
	if !ok {
		return
	}
	for _, p := range b.registry.Buzzers() {
		if err := p.SendEnvelope(env); err != nil {
			b.logger.Warn("broadcast send failed",
				zap.String("buzzer_id", p.BuzzerID()),
				zap.String("type", msgType),
				zap.Error(err))
		}
	}
}

// SendBuzzerList pushes the current BUZZER_LIST_UPDATE to the console.
func (b *Broadcaster) SendBuzzerList() {
	b.SendToConsole(protocol.TypeBuzzerListUpdate, b.registry.BuzzerList())
}
