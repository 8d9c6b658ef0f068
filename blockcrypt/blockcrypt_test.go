package blockcrypt

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"zfscrypt/algorithm"
	"zfscrypt/crypto/aead"
	"zfscrypt/dataset"
	"zfscrypt/ivgen"
	"zfscrypt/scatter"
)

func newTestKey(t *testing.T, algoID algorithm.ID, threshold uint64) *dataset.Key {
	t.Helper()
	k, err := dataset.NewWithThreshold(aead.StdProvider{}, algoID, threshold)
	require.NoError(t, err)
	return k
}

func TestRegularBlock_RoundTrip(t *testing.T) {
	for _, id := range []algorithm.ID{algorithm.AES128CCM, algorithm.AES256GCM} {
		k := newTestKey(t, id, dataset.DefaultRotationThreshold)
		defer k.Destroy()

		salt, err := k.GetSalt()
		require.NoError(t, err)

		var identity [16]byte
		copy(identity[:], []byte("block-identity-1"))
		iv := ivgen.Regular(identity, 7, salt)

		plaintext := bytes.Repeat([]byte{0xCD}, 4096)
		ciphertext := make([]byte, 4096)

		tag, err := Encrypt(k, ObjectRegular, salt, iv, plaintext, ciphertext, len(plaintext))
		require.NoError(t, err)
		require.Len(t, tag, scatter.DataMACLen)
		require.NotEqual(t, plaintext, ciphertext)

		recovered := make([]byte, 4096)
		err = Decrypt(k, ObjectRegular, salt, iv, ciphertext, recovered, tag, len(ciphertext))
		require.NoError(t, err)
		require.Equal(t, plaintext, recovered)
	}
}

// scenario 3: regular block rotation.
func TestRotation_BlocksEncryptedUnderOldSaltStillDecrypt(t *testing.T) {
	k := newTestKey(t, algorithm.AES256GCM, 4)
	defer k.Destroy()

	var identity [16]byte
	copy(identity[:], []byte("rotation-block"))

	salt, err := k.GetSalt()
	require.NoError(t, err)

	iv := ivgen.Regular(identity, 1, salt)
	plaintext := bytes.Repeat([]byte{0x11}, 128)
	ciphertext := make([]byte, 128)
	tag, err := Encrypt(k, ObjectRegular, salt, iv, plaintext, ciphertext, 128)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := k.GetSalt()
		require.NoError(t, err)
	}

	newSalt, _, _ := k.Current()
	require.NotEqual(t, salt, newSalt)

	recovered := make([]byte, 128)
	err = Decrypt(k, ObjectRegular, salt, iv, ciphertext, recovered, tag, 128)
	require.NoError(t, err)
	require.Equal(t, plaintext, recovered)
}

// scenario 4: dedup equality.
func TestDedup_IdenticalPlaintextProducesIdenticalCiphertext(t *testing.T) {
	k := newTestKey(t, algorithm.AES256CCM, dataset.DefaultRotationThreshold)
	defer k.Destroy()

	plaintext := bytes.Repeat([]byte{0x42}, 4096)
	hmacKey := k.HMACKey()

	salt1, iv1 := ivgen.Dedup(hmacKey, plaintext)
	salt2, iv2 := ivgen.Dedup(hmacKey, plaintext)
	require.Equal(t, salt1, salt2)
	require.Equal(t, iv1, iv2)

	ciphertext1 := make([]byte, len(plaintext))
	tag1, err := Encrypt(k, ObjectRegular, salt1, iv1, plaintext, ciphertext1, len(plaintext))
	require.NoError(t, err)

	ciphertext2 := make([]byte, len(plaintext))
	tag2, err := Encrypt(k, ObjectRegular, salt2, iv2, plaintext, ciphertext2, len(plaintext))
	require.NoError(t, err)

	require.Equal(t, ciphertext1, ciphertext2)
	require.Equal(t, tag1, tag2)
}

// scenario 6: tamper detection.
func TestDecrypt_TamperedTagLeavesPlaintextUntouched(t *testing.T) {
	k := newTestKey(t, algorithm.AES256GCM, dataset.DefaultRotationThreshold)
	defer k.Destroy()

	salt, err := k.GetSalt()
	require.NoError(t, err)
	var identity [16]byte
	iv := ivgen.Regular(identity, 1, salt)

	plaintext := bytes.Repeat([]byte{0x5}, 64)
	ciphertext := make([]byte, 64)
	tag, err := Encrypt(k, ObjectRegular, salt, iv, plaintext, ciphertext, 64)
	require.NoError(t, err)

	tag[0] ^= 0xff

	sentinel := bytes.Repeat([]byte{0x99}, 64)
	recovered := make([]byte, 64)
	copy(recovered, sentinel)

	err = Decrypt(k, ObjectRegular, salt, iv, ciphertext, recovered, tag, 64)
	require.Error(t, err)
	require.Equal(t, sentinel, recovered, "plaintext buffer must be untouched on auth failure")
}

func TestIntentLog_EmptyLog_RoundTrip(t *testing.T) {
	k := newTestKey(t, algorithm.AES256GCM, dataset.DefaultRotationThreshold)
	defer k.Destroy()

	salt, err := k.GetSalt()
	require.NoError(t, err)
	var identity [16]byte
	bookmark := ivgen.Bookmark{ObjSet: 1, Object: 2, Blkid: 3}
	iv := ivgen.IntentLog(identity, bookmark, salt)

	used := scatter.HeaderLen
	plaintext := make([]byte, used)
	scatter.PutChainHeader(plaintext, scatter.ChainHeader{Nused: uint64(used)})
	ciphertext := make([]byte, used)

	tag, err := Encrypt(k, ObjectIntentLog, salt, iv, plaintext, ciphertext, used)
	require.NoError(t, err)
	require.Equal(t, make([]byte, scatter.ZilMACLen), tag)
	require.Equal(t, plaintext, ciphertext)

	recovered := make([]byte, used)
	err = Decrypt(k, ObjectIntentLog, salt, iv, ciphertext, recovered, tag, used)
	require.NoError(t, err)
	require.Equal(t, plaintext, recovered)
}

// scenario 2: single write record end-to-end.
func TestIntentLog_SingleWriteRecord_RoundTrip(t *testing.T) {
	k := newTestKey(t, algorithm.AES256GCM, dataset.DefaultRotationThreshold)
	defer k.Destroy()

	salt, err := k.GetSalt()
	require.NoError(t, err)
	var identity [16]byte
	iv := ivgen.IntentLog(identity, ivgen.Bookmark{Blkid: 1}, salt)

	used := scatter.HeaderLen + scatter.WriteRecordLen
	plaintext := make([]byte, used)
	scatter.PutChainHeader(plaintext, scatter.ChainHeader{Nused: uint64(used)})

	recOffset := scatter.HeaderLen
	binary.LittleEndian.PutUint32(plaintext[recOffset:recOffset+4], scatter.RecordTypeWrite)
	binary.LittleEndian.PutUint32(plaintext[recOffset+4:recOffset+8], uint32(scatter.WriteRecordLen))

	body := bytes.Repeat([]byte{0x01}, scatter.WriteBodyLen)
	copy(plaintext[recOffset+scatter.RecordHeaderLen:], body)

	bp := bytes.Repeat([]byte{0xBB}, scatter.BlockPointerLen)
	bpOffset := recOffset + scatter.WriteRecordLen - scatter.BlockPointerLen
	copy(plaintext[bpOffset:], bp)

	ciphertext := make([]byte, used)
	tag, err := Encrypt(k, ObjectIntentLog, salt, iv, plaintext, ciphertext, used)
	require.NoError(t, err)

	require.Equal(t, plaintext[:scatter.HeaderLen], ciphertext[:scatter.HeaderLen])
	require.Equal(t, plaintext[bpOffset:bpOffset+scatter.BlockPointerLen], ciphertext[bpOffset:bpOffset+scatter.BlockPointerLen])
	require.NotEqual(t,
		plaintext[recOffset+scatter.RecordHeaderLen:bpOffset],
		ciphertext[recOffset+scatter.RecordHeaderLen:bpOffset])

	recovered := make([]byte, used)
	err = Decrypt(k, ObjectIntentLog, salt, iv, ciphertext, recovered, tag, used)
	require.NoError(t, err)
	require.Equal(t, plaintext, recovered)
}

func TestBlockcryptInvariants(t *testing.T) {
	t.Parallel()
	properties := gopter.NewProperties(nil)

	properties.Property("regular block round-trips for any plaintext length", prop.ForAll(
		func(n int) bool {
			if n == 0 {
				return true
			}
			k, err := dataset.New(aead.StdProvider{}, algorithm.AES256GCM)
			if err != nil {
				return false
			}
			defer k.Destroy()

			salt, err := k.GetSalt()
			if err != nil {
				return false
			}
			var identity [16]byte
			iv := ivgen.Regular(identity, 1, salt)

			plaintext := bytes.Repeat([]byte{0xEE}, n)
			ciphertext := make([]byte, n)
			tag, err := Encrypt(k, ObjectRegular, salt, iv, plaintext, ciphertext, n)
			if err != nil {
				return false
			}

			recovered := make([]byte, n)
			err = Decrypt(k, ObjectRegular, salt, iv, ciphertext, recovered, tag, n)
			if err != nil {
				return false
			}
			return bytes.Equal(plaintext, recovered)
		},
		gen.IntRange(1, 8192),
	))

	properties.TestingRun(t)
}
