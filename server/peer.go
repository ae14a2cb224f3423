// File: server/peer.go
package server

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/net/websocket"

	"github.com/quizzbox/quizzbox/protocol"
)

// PeerClass distinguishes the two identified peer kinds.
type PeerClass int

const (
	ClassUnidentified PeerClass = iota
	ClassConsole
	ClassBuzzer
)

func (c PeerClass) String() string {
	switch c {
	case ClassConsole:
		return "console"
	case ClassBuzzer:
		return "buzzer"
	default:
		return "unidentified"
	}
}

// Peer wraps one WebSocket connection and its identification state. The
// mutex serializes writes to the transport and guards the mutable fields, so
// jingle chunks and text frames never interleave mid-frame.
type Peer struct {
	mu sync.Mutex
	ws *websocket.Conn

	class      PeerClass
	identified bool
	closed     bool
	alive      bool
	lastPong   time.Time
	remoteAddr string

	// Console
	sessionID string

	// Buzzer
	buzzerID     string
	name         string
	macAddress   string
	playerNumber int
	connectedAt  int64
	battery      int
	wifiRSSI     int
	freeHeap     int
	latencyMs    int64

	idTimer clockwork.Timer
}

func newPeer(ws *websocket.Conn) *Peer {
	addr := "unknown"
	if ws.Request() != nil {
		addr = ws.Request().RemoteAddr
	} else if ws.RemoteAddr() != nil {
		addr = ws.RemoteAddr().String()
	}
	return &Peer{
		ws:         ws,
		class:      ClassUnidentified,
		alive:      true,
		remoteAddr: addr,
	}
}

// SendEnvelope writes one JSON text frame. Writes to a closed peer are
// dropped with an error the caller may log.
func (p *Peer) SendEnvelope(env *protocol.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errPeerClosed
	}
	return websocket.JSON.Send(p.ws, env)
}

// SendBinary writes one binary frame (jingle chunks only).
func (p *Peer) SendBinary(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errPeerClosed
	}
	return websocket.Message.Send(p.ws, frame)
}

// CloseWithCode sends a close frame carrying the status code, then tears the
// transport down. Idempotent.
func (p *Peer) CloseWithCode(code int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if p.idTimer != nil {
		p.idTimer.Stop()
		p.idTimer = nil
	}
	_ = p.ws.WriteClose(code)
	_ = p.ws.Close()
}

// Close tears the transport down without a status code. Idempotent.
func (p *Peer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if p.idTimer != nil {
		p.idTimer.Stop()
		p.idTimer = nil
	}
	_ = p.ws.Close()
}

// Writable reports whether the transport still accepts frames.
func (p *Peer) Writable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed
}

// Class returns the identified peer class.
func (p *Peer) Class() PeerClass {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.class
}

// Identified reports whether the peer completed identification.
func (p *Peer) Identified() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.identified
}

// identifyConsole promotes the peer to the console class.
func (p *Peer) identifyConsole(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.class = ClassConsole
	p.identified = true
	p.sessionID = sessionID
	p.stopIDTimerLocked()
}

// identifyBuzzer promotes the peer to the buzzer class.
func (p *Peer) identifyBuzzer(buzzerID, name, mac string, playerNumber int, connectedAt int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.class = ClassBuzzer
	p.identified = true
	p.buzzerID = buzzerID
	p.name = name
	p.macAddress = mac
	p.playerNumber = playerNumber
	p.connectedAt = connectedAt
	p.stopIDTimerLocked()
}

func (p *Peer) stopIDTimerLocked() {
	if p.idTimer != nil {
		p.idTimer.Stop()
		p.idTimer = nil
	}
}

func (p *Peer) armIdentificationTimer(t clockwork.Timer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idTimer = t
}

// BuzzerID returns the registered buzzer identifier, empty for other classes.
func (p *Peer) BuzzerID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buzzerID
}

// Name returns the buzzer display name.
func (p *Peer) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

func (p *Peer) setName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.name = name
}

// markAlive records a heartbeat pong and its measured round trip.
func (p *Peer) markAlive(now time.Time, latencyMs int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alive = true
	p.lastPong = now
	if latencyMs >= 0 {
		p.latencyMs = latencyMs
	}
}

// sweepAlive clears the liveness flag and reports its previous value.
func (p *Peer) sweepAlive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	was := p.alive
	p.alive = false
	return was
}

func (p *Peer) setStatus(battery, wifiRSSI, freeHeap int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.battery = battery
	p.wifiRSSI = wifiRSSI
	p.freeHeap = freeHeap
}

// Info builds the console-facing view of a buzzer peer.
func (p *Peer) Info() protocol.BuzzerInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return protocol.BuzzerInfo{
		ID:           p.buzzerID,
		Name:         p.name,
		MacAddress:   p.macAddress,
		PlayerNumber: p.playerNumber,
		ConnectedAt:  p.connectedAt,
		Battery:      p.battery,
		WifiRSSI:     p.wifiRSSI,
		Latency:      p.latencyMs,
		Connected:    !p.closed,
	}
}
