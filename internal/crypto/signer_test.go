package crypto

import (
	"encoding/hex"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

type testAction struct {
	Type  string `msgpack:"type"`
	Asset int    `msgpack:"asset"`
}

func TestActionHashIsCompactAndNonceSensitive(t *testing.T) {
	a := testAction{Type: "updateLeverage", Asset: 1}

	h1, err := ActionHash(a, "", 1)
	require.NoError(t, err)
	h2, err := ActionHash(a, "", 1)
	require.NoError(t, err)
	h3, err := ActionHash(a, "", 2)
	require.NoError(t, err)
	h4, err := ActionHash(a, "0x0000000000000000000000000000000000000001", 1)
	require.NoError(t, err)

	assert.Len(t, h1, 32)
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.NotEqual(t, h1, h4)
}

func TestActionHashMatchesManualEncoding(t *testing.T) {
	type one struct {
		A int `msgpack:"a"`
	}
	// fixmap(1) "a" positive fixint 1, nonce 0, no vault.
	raw := []byte{0x81, 0xa1, 'a', 0x01, 0, 0, 0, 0, 0, 0, 0, 0, 0x00}

	got, err := ActionHash(one{A: 1}, "", 0)
	require.NoError(t, err)
	assert.Equal(t, ethcrypto.Keccak256(raw), got)
}

func TestSignL1ActionRecoversSigner(t *testing.T) {
	s, err := NewSigner(testKey, true)
	require.NoError(t, err)

	action := testAction{Type: "updateLeverage", Asset: 3}
	sig, err := s.SignL1Action(action, "", 1700000000000)
	require.NoError(t, err)
	assert.Contains(t, []int{27, 28}, sig.V)

	connectionID, err := ActionHash(action, "", 1700000000000)
	require.NoError(t, err)
	structHash := ethcrypto.Keccak256(concatBytes(agentTypeHash, ethcrypto.Keccak256([]byte("a")), connectionID))
	digest := eip712Hash(s.domainSep, structHash)

	r, err := hex.DecodeString(sig.R[2:])
	require.NoError(t, err)
	ss, err := hex.DecodeString(sig.S[2:])
	require.NoError(t, err)
	raw := append(append(r, ss...), byte(sig.V-27))

	pub, err := ethcrypto.SigToPub(digest, raw)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), ethcrypto.PubkeyToAddress(*pub))
}

func TestSignerNetworkChangesSignature(t *testing.T) {
	main, err := NewSigner(testKey, true)
	require.NoError(t, err)
	test, err := NewSigner(testKey, false)
	require.NoError(t, err)

	action := testAction{Type: "x", Asset: 0}
	a, err := main.SignL1Action(action, "", 5)
	require.NoError(t, err)
	b, err := test.SignL1Action(action, "", 5)
	require.NoError(t, err)
	assert.NotEqual(t, a.R, b.R)
}

func TestNewSignerRejectsBadKey(t *testing.T) {
	_, err := NewSigner("0xzz", true)
	require.Error(t, err)
	_, err = NewSigner("0xabcd", true)
	require.Error(t, err)
}
