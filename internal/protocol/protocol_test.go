package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEnvelope(TypeCursorMove, "session-1", "peer-abc", CursorMove{
		PeerID: "peer-abc",
		X:      100,
		Y:      200,
	})
	require.NoError(t, err)
	require.NotEmpty(t, env.MsgID)

	frame, err := Encode(env)
	require.NoError(t, err)

	decoded, err := Decode(frame)
	require.NoError(t, err)
	require.Equal(t, TypeCursorMove, decoded.Type)
	require.Equal(t, "session-1", decoded.SessionID)
	require.Equal(t, "peer-abc", decoded.SenderPeerID)

	var cursor CursorMove
	require.NoError(t, json.Unmarshal(decoded.Payload, &cursor))
	require.Equal(t, 100.0, cursor.X)
	require.Equal(t, 200.0, cursor.Y)
}

func TestDecodeRejectsMalformedFrames(t *testing.T) {
	cases := map[string]string{
		"not json":           `{{{`,
		"missing type":       `{"sessionId":"s1","senderPeerId":"peer-a"}`,
		"missing session id": `{"type":"cursor-move","senderPeerId":"peer-a"}`,
	}
	for name, frame := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(frame))
			require.Error(t, err)
		})
	}
}

func TestDecodeAcceptsUnknownType(t *testing.T) {
	// Forward compatibility: newer message kinds must survive decoding
	// so dispatch can skip them.
	env, err := Decode([]byte(`{"type":"hologram-sync","sessionId":"s1","senderPeerId":"peer-a"}`))
	require.NoError(t, err)
	require.Equal(t, MessageType("hologram-sync"), env.Type)
}

func TestMsgIDsAreSortableAndUnique(t *testing.T) {
	a := NewMsgID()
	b := NewMsgID()
	require.NotEqual(t, a, b)
	require.LessOrEqual(t, a, b)
}
