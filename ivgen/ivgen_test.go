package ivgen

import (
	"bytes"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestRegular_Deterministic(t *testing.T) {
	identity := [16]byte{1, 2, 3}
	salt := [8]byte{4, 5, 6}

	iv1 := Regular(identity, 42, salt)
	iv2 := Regular(identity, 42, salt)
	require.Equal(t, iv1, iv2)
}

func TestRegular_DiffersByEpoch(t *testing.T) {
	identity := [16]byte{1}
	salt := [8]byte{2}

	iv1 := Regular(identity, 1, salt)
	iv2 := Regular(identity, 2, salt)
	require.NotEqual(t, iv1, iv2)
}

func TestRegular_DiffersBySalt(t *testing.T) {
	identity := [16]byte{1}

	iv1 := Regular(identity, 1, [8]byte{0})
	iv2 := Regular(identity, 1, [8]byte{1})
	require.NotEqual(t, iv1, iv2)
}

func TestIntentLog_DiffersFromRegularEvenWithZeroEpoch(t *testing.T) {
	identity := [16]byte{9}
	salt := [8]byte{9}

	regular := Regular(identity, 0, salt)
	intentLog := IntentLog(identity, Bookmark{ObjSet: 1, Object: 2, Level: -1, Blkid: 3}, salt)
	require.NotEqual(t, regular, intentLog)
}

func TestDedup_DeterministicOnEqualPlaintext(t *testing.T) {
	hmacKey := [32]byte{}
	copy(hmacKey[:], bytes.Repeat([]byte{0x7}, 32))

	plaintext := []byte("identical block contents")

	salt1, iv1 := Dedup(hmacKey, plaintext)
	salt2, iv2 := Dedup(hmacKey, plaintext)
	require.Equal(t, salt1, salt2)
	require.Equal(t, iv1, iv2)
}

func TestDedup_DiffersOnDifferentPlaintext(t *testing.T) {
	hmacKey := [32]byte{}
	_, iv1 := Dedup(hmacKey, []byte("block a"))
	_, iv2 := Dedup(hmacKey, []byte("block b"))
	require.NotEqual(t, iv1, iv2)
}

func TestL2ARC_Deterministic(t *testing.T) {
	dva := [16]byte{1, 1, 1}
	iv1 := L2ARC(7, dva, 100, 200)
	iv2 := L2ARC(7, dva, 100, 200)
	require.Equal(t, iv1, iv2)
}

func TestL2ARC_DiffersByDeviceAddress(t *testing.T) {
	dva := [16]byte{1}
	iv1 := L2ARC(7, dva, 100, 200)
	iv2 := L2ARC(7, dva, 100, 201)
	require.NotEqual(t, iv1, iv2)
}

func TestIVGenInvariants(t *testing.T) {
	t.Parallel()
	properties := gopter.NewProperties(nil)

	properties.Property("Dedup is a deterministic function of plaintext", prop.ForAll(
		func(plaintext []byte) bool {
			hmacKey := [32]byte{}
			salt1, iv1 := Dedup(hmacKey, plaintext)
			salt2, iv2 := Dedup(hmacKey, plaintext)
			return salt1 == salt2 && iv1 == iv2
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}
