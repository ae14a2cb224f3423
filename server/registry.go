// File: server/registry.go
package server

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/quizzbox/quizzbox/protocol"
)

var (
	errPeerClosed        = errors.New("peer connection closed")
	ErrDuplicateBuzzerID = errors.New("buzzer ID already registered")
	ErrRegistryFull      = errors.New("buzzer registry full")
)

// Registry tracks the single console slot and the buzzer map. Key uniqueness
// on buzzerID is enforced here; violations close the offender with 4002.
type Registry struct {
	mu      sync.RWMutex
	console *Peer
	buzzers map[string]*Peer

	maxBuzzers int
	interval   time.Duration
	clock      clockwork.Clock
	logger     *zap.Logger
}

func NewRegistry(maxBuzzers int, heartbeatInterval time.Duration, clock clockwork.Clock, logger *zap.Logger) *Registry {
	return &Registry{
		buzzers:    make(map[string]*Peer),
		maxBuzzers: maxBuzzers,
		interval:   heartbeatInterval,
		clock:      clock,
		logger:     logger.Named("registry"),
	}
}

// SetConsole installs the console peer, returning the one it displaced.
// Last writer wins.
func (r *Registry) SetConsole(p *Peer) *Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.console
	r.console = p
	return prev
}

// Console returns the current console peer, or nil.
func (r *Registry) Console() *Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.console
}

// RegisterBuzzer inserts the peer under its buzzerID and assigns the next
// player number in connection order.
func (r *Registry) RegisterBuzzer(p *Peer, buzzerID string) (playerNumber int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.buzzers[buzzerID]; exists {
		return 0, ErrDuplicateBuzzerID
	}
	if len(r.buzzers) >= r.maxBuzzers {
		return 0, ErrRegistryFull
	}
	playerNumber = len(r.buzzers) + 1
	r.buzzers[buzzerID] = p
	return playerNumber, nil
}

// Buzzer resolves a registered buzzer peer.
func (r *Registry) Buzzer(buzzerID string) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.buzzers[buzzerID]
	return p, ok
}

// Buzzers lists registered buzzer peers in player-number order.
func (r *Registry) Buzzers() []*Peer {
	r.mu.RLock()
	peers := make([]*Peer, 0, len(r.buzzers))
	for _, p := range r.buzzers {
		peers = append(peers, p)
	}
	r.mu.RUnlock()
	sort.Slice(peers, func(i, j int) bool {
		return peers[i].Info().PlayerNumber < peers[j].Info().PlayerNumber
	})
	return peers
}

// BuzzerCount returns the registry size.
func (r *Registry) BuzzerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.buzzers)
}

// Remove drops the peer from whichever slot it occupies. Returns the removed
// buzzerID when the peer was a registered buzzer.
func (r *Registry) Remove(p *Peer) (buzzerID string, wasBuzzer bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.console == p {
		r.console = nil
		return "", false
	}
	for id, peer := range r.buzzers {
		if peer == p {
			delete(r.buzzers, id)
			return id, true
		}
	}
	return "", false
}

// BuzzerList builds the BUZZER_LIST_UPDATE payload.
func (r *Registry) BuzzerList() protocol.BuzzerListUpdatePayload {
	peers := r.Buzzers()
	infos := make([]protocol.BuzzerInfo, 0, len(peers))
	for _, p := range peers {
		infos = append(infos, p.Info())
	}
	return protocol.BuzzerListUpdatePayload{Buzzers: infos, Total: len(infos)}
}

// RunHeartbeat pings every peer each interval and terminates the ones that
// missed the previous one. Blocks until stop is closed.
func (r *Registry) RunHeartbeat(stop <-chan struct{}) {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			r.heartbeatPass()
		}
	}
}

// heartbeatPass sweeps liveness flags. A peer that never ponged since the
// last pass is closed; the read loop handles deregistration.
func (r *Registry) heartbeatPass() {
	r.mu.RLock()
	peers := make([]*Peer, 0, len(r.buzzers)+1)
	if r.console != nil {
		peers = append(peers, r.console)
	}
	for _, p := range r.buzzers {
		peers = append(peers, p)
	}
	r.mu.RUnlock()

	now := r.clock.Now().UnixMilli()
	for _, p := range peers {
		if !p.sweepAlive() {
			r.logger.Warn("peer missed heartbeat, terminating",
				zap.String("class", p.Class().String()),
				zap.String("buzzer_id", p.BuzzerID()))
			p.Close()
			continue
		}
		env, err := protocol.NewEnvelope(protocol.TypePing, now, protocol.PingPayload{TSend: now})
		if err != nil {
			continue
		}
		if err := p.SendEnvelope(env); err != nil {
			r.logger.Warn("heartbeat ping failed",
				zap.String("class", p.Class().String()),
				zap.String("buzzer_id", p.BuzzerID()),
				zap.Error(err))
		}
	}
}
