package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeyPairAndSignVerify(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	der, err := kp.PublicKeyBytes()
	require.NoError(t, err)

	pub, err := ParsePublicKey(der)
	require.NoError(t, err)

	msg := []byte("challenge-nonce")
	sig, err := kp.Sign(msg)
	require.NoError(t, err)

	assert.NoError(t, VerifySignature(pub, msg, sig))
	assert.Error(t, VerifySignature(pub, []byte("tampered"), sig))
}

func TestSameKey(t *testing.T) {
	kp1, err := GenerateKeyPair()
	require.NoError(t, err)
	kp2, err := GenerateKeyPair()
	require.NoError(t, err)

	der1, _ := kp1.PublicKeyBytes()
	der1Copy := append([]byte(nil), der1...)
	der2, _ := kp2.PublicKeyBytes()

	assert.True(t, SameKey(der1, der1Copy))
	assert.False(t, SameKey(der1, der2))
}
