// File: test/helpers_test.go
package test

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"github.com/quizzbox/quizzbox/protocol"
)

// ReadWsJSONMessage reads a JSON message from the WebSocket with a timeout.
// It handles setting/clearing read deadlines and checks for common errors.
func ReadWsJSONMessage(t *testing.T, ws *websocket.Conn, timeout time.Duration, v interface{}) error {
	t.Helper()
	if ws == nil {
		return errors.New("websocket connection is nil")
	}

	readDone := make(chan error, 1)
	go func() {
		if err := ws.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			if errors.Is(err, net.ErrClosed) || strings.Contains(err.Error(), "use of closed network connection") {
				readDone <- errors.New("connection closed")
				return
			}
			readDone <- fmt.Errorf("failed to set read deadline: %w", err)
			return
		}
		err := websocket.JSON.Receive(ws, v)
		_ = ws.SetReadDeadline(time.Time{})
		readDone <- err
	}()

	select {
	case err := <-readDone:
		return err
	case <-time.After(timeout + 500*time.Millisecond):
		_ = ws.Close()
		return fmt.Errorf("websocket read timeout after %v (Receive call blocked)", timeout)
	}
}

// SendClientEnvelope writes one client-side envelope to the connection.
func SendClientEnvelope(t *testing.T, ws *websocket.Conn, sender, msgType string, payload interface{}) {
	t.Helper()
	env, err := protocol.NewEnvelope(msgType, time.Now().UnixMilli(), payload)
	if err != nil {
		t.Fatalf("building %s envelope: %v", msgType, err)
	}
	env.Sender = sender
	if err := websocket.JSON.Send(ws, env); err != nil {
		t.Fatalf("sending %s: %v", msgType, err)
	}
}

// WaitForMessage reads envelopes until one of the wanted type arrives,
// skipping heartbeats and any other interleaved traffic.
func WaitForMessage(t *testing.T, ws *websocket.Conn, msgType string, timeout time.Duration) *protocol.Envelope {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		remaining := time.Until(deadline)
		var env protocol.Envelope
		if err := ReadWsJSONMessage(t, ws, remaining, &env); err != nil {
			t.Fatalf("waiting for %s: %v", msgType, err)
		}
		if env.Type == msgType {
			return &env
		}
	}
	t.Fatalf("no %s within %v", msgType, timeout)
	return nil
}

// ExpectConnectionClosed asserts the server tears the connection down.
func ExpectConnectionClosed(t *testing.T, ws *websocket.Conn, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		var env protocol.Envelope
		if err := ReadWsJSONMessage(t, ws, time.Until(deadline), &env); err != nil {
			return // EOF or reset, either way the server hung up
		}
	}
	t.Fatal("connection still open, expected server-side close")
}
