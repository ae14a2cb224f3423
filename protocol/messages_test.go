// File: protocol/messages_test.go
package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelopeCarriesServerSender(t *testing.T) {
	env, err := NewEnvelope(TypeBuzzWinner, 1700000000000, BuzzWinnerPayload{
		BuzzerID:   "ESP-1",
		PlayerName: "Alice",
		QuestionID: 3,
		GameID:     "g1",
	})
	require.NoError(t, err)
	assert.Equal(t, SenderServer, env.Sender)
	assert.Equal(t, int64(1700000000000), env.Timestamp)

	var decoded BuzzWinnerPayload
	require.NoError(t, env.DecodePayload(&decoded))
	assert.Equal(t, "ESP-1", decoded.BuzzerID)
	assert.Equal(t, int64(3), decoded.QuestionID)
}

func TestDecodePayloadEmpty(t *testing.T) {
	env := &Envelope{Type: TypePing}
	var p PingPayload
	assert.Error(t, env.DecodePayload(&p))
}

func TestEnvelopeWireFieldNames(t *testing.T) {
	env, err := NewEnvelope(TypePong, 123, PongPayload{TSend: 1, TReceive: 2})
	require.NoError(t, err)
	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Contains(t, m, "type")
	assert.Contains(t, m, "timestamp")
	assert.Contains(t, m, "sender")
	assert.Contains(t, m, "payload")

	// The firmware reads T_send/T_receive verbatim.
	var pong map[string]int64
	require.NoError(t, json.Unmarshal(m["payload"], &pong))
	assert.Equal(t, int64(1), pong["T_send"])
	assert.Equal(t, int64(2), pong["T_receive"])
}
