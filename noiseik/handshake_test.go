package noiseik

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamlink/beamlink/crypto"
)

func makePeers(t *testing.T) (*Handshake, *Handshake) {
	t.Helper()

	initiatorKeys, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	responderKeys, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	initiator, err := New(initiatorKeys.Private, responderKeys.Public[:], Initiator)
	require.NoError(t, err)
	responder, err := New(responderKeys.Private, nil, Responder)
	require.NoError(t, err)

	return initiator, responder
}

func TestReestablishmentHandshake(t *testing.T) {
	initiator, responder := makePeers(t)

	opening, done, err := initiator.WriteMessage(nil, nil)
	require.NoError(t, err)
	assert.False(t, done, "initiator waits for the reply")

	reply, done, err := responder.WriteMessage(nil, opening)
	require.NoError(t, err)
	assert.True(t, done, "responder completes after replying")

	_, done, err = initiator.ReadMessage(reply)
	require.NoError(t, err)
	assert.True(t, done)

	require.True(t, initiator.IsComplete())
	require.True(t, responder.IsComplete())

	// Transport encryption works in both directions.
	iSend, iRecv, err := initiator.CipherStates()
	require.NoError(t, err)
	rSend, rRecv, err := responder.CipherStates()
	require.NoError(t, err)

	ciphertext, err := iSend.Encrypt(nil, nil, []byte("resume"))
	require.NoError(t, err)
	plaintext, err := rRecv.Decrypt(nil, nil, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, []byte("resume"), plaintext)

	ciphertext, err = rSend.Encrypt(nil, nil, []byte("resumed"))
	require.NoError(t, err)
	plaintext, err = iRecv.Decrypt(nil, nil, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, []byte("resumed"), plaintext)
}

func TestRemoteStaticKeyMatchesSnapshot(t *testing.T) {
	initiatorKeys, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	responderKeys, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	initiator, err := New(initiatorKeys.Private, responderKeys.Public[:], Initiator)
	require.NoError(t, err)
	responder, err := New(responderKeys.Private, nil, Responder)
	require.NoError(t, err)

	opening, _, err := initiator.WriteMessage(nil, nil)
	require.NoError(t, err)
	reply, _, err := responder.WriteMessage(nil, opening)
	require.NoError(t, err)
	_, _, err = initiator.ReadMessage(reply)
	require.NoError(t, err)

	remote, err := initiator.RemoteStaticKey()
	require.NoError(t, err)
	assert.Equal(t, responderKeys.Public[:], remote,
		"re-established channel must belong to the snapshotted peer")
}

func TestHandshakeGuards(t *testing.T) {
	t.Run("initiator requires peer key", func(t *testing.T) {
		keys, err := crypto.GenerateKeyPair()
		require.NoError(t, err)
		_, err = New(keys.Private, nil, Initiator)
		assert.Error(t, err)
	})

	t.Run("cipher states unavailable before completion", func(t *testing.T) {
		initiator, _ := makePeers(t)
		_, _, err := initiator.CipherStates()
		assert.ErrorIs(t, err, ErrHandshakeNotComplete)
	})

	t.Run("no writes after completion", func(t *testing.T) {
		initiator, responder := makePeers(t)
		opening, _, err := initiator.WriteMessage(nil, nil)
		require.NoError(t, err)
		_, _, err = responder.WriteMessage(nil, opening)
		require.NoError(t, err)

		_, _, err = responder.WriteMessage(nil, opening)
		assert.ErrorIs(t, err, ErrHandshakeComplete)
	})
}
