package cachekey

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"zfscrypt/algorithm"
	"zfscrypt/blockcrypt"
	"zfscrypt/crypto/aead"
	"zfscrypt/ivgen"
)

func TestNew_UsesDefaultAlgorithm(t *testing.T) {
	k, err := New()
	require.NoError(t, err)
	defer k.Close()

	require.Equal(t, algorithm.Default, k.AlgoID)
	desc, err := algorithm.Lookup(algorithm.Default)
	require.NoError(t, err)
	require.Len(t, k.Raw, desc.KeyLen)
}

func TestNewWithAlgorithm_DrawsKeyOfRequestedLength(t *testing.T) {
	k, err := NewWithAlgorithm(algorithm.AES128GCM)
	require.NoError(t, err)
	defer k.Close()

	require.Len(t, k.Raw, 16)
}

func TestNew_NeverReusesKeyMaterial(t *testing.T) {
	k1, err := New()
	require.NoError(t, err)
	defer k1.Close()
	k2, err := New()
	require.NoError(t, err)
	defer k2.Close()

	require.NotEqual(t, k1.Raw, k2.Raw)
}

func TestClose_ZeroesKeyMaterial(t *testing.T) {
	k, err := New()
	require.NoError(t, err)
	raw := k.Raw
	k.Close()

	require.Equal(t, make([]byte, len(raw)), raw)
}

// end-to-end: a cache key adapted to dataset.Key, used with ivgen.L2ARC
// through blockcrypt, exactly the path an L2ARC implementation would take.
func TestDataset_L2ARCRoundTrip(t *testing.T) {
	k, err := New()
	require.NoError(t, err)
	defer k.Close()

	dk, err := k.Dataset(aead.StdProvider{})
	require.NoError(t, err)
	defer dk.Destroy()

	var fixedSalt [8]byte
	dva := [16]byte{1, 2, 3}
	iv := ivgen.L2ARC(7, dva, 100, 200)

	plaintext := bytes.Repeat([]byte{0x77}, 512)
	ciphertext := make([]byte, 512)

	tag, err := blockcrypt.Encrypt(dk, blockcrypt.ObjectRegular, fixedSalt, iv, plaintext, ciphertext, len(plaintext))
	require.NoError(t, err)
	require.NotEqual(t, plaintext, ciphertext)

	recovered := make([]byte, 512)
	err = blockcrypt.Decrypt(dk, blockcrypt.ObjectRegular, fixedSalt, iv, ciphertext, recovered, tag, len(ciphertext))
	require.NoError(t, err)
	require.Equal(t, plaintext, recovered)
}

func TestDataset_SaltNeverRotates(t *testing.T) {
	k, err := New()
	require.NoError(t, err)
	defer k.Close()

	dk, err := k.Dataset(aead.StdProvider{})
	require.NoError(t, err)
	defer dk.Destroy()

	initialSalt, _, _ := dk.Current()
	for i := 0; i < 10; i++ {
		_, err := dk.GetSalt()
		require.NoError(t, err)
	}
	laterSalt, _, _ := dk.Current()
	require.Equal(t, initialSalt, laterSalt)
}
