// Package keywrap wraps and unwraps a dataset.Key's master and HMAC keys
// under a caller-supplied wrapping key, the way a dataset's key is persisted
// encrypted under its parent's (or a user's) key rather than in the clear.
package keywrap

import (
	"crypto/rand"

	"zfscrypt/algorithm"
	"zfscrypt/crypto/aead"
	"zfscrypt/dataset"
	"zfscrypt/zerr"
)

// WrapIVLen is the nonce length used to seal a Blob.
const WrapIVLen = 12

// WrapMACLen is the AEAD tag length used to seal a Blob.
const WrapMACLen = 16

// Blob is a wrapped dataset key: master key and HMAC key sealed together
// under a wrapping key.
type Blob struct {
	IV            [WrapIVLen]byte
	WrappedMaster []byte
	WrappedHMAC   [dataset.HMACKeyLen]byte
	Tag           [WrapMACLen]byte
}

// Wrap seals w's master and HMAC keys under wrappingKey using w's own
// algorithm (wrappingKey must be exactly w.Descriptor().KeyLen bytes). The
// plaintext laid out to the AEAD is masterKey || hmacKey. The IV is drawn
// fresh from crypto/rand on every call.
func Wrap(w *dataset.Key, wrappingKey []byte) (Blob, error) {
	var iv [WrapIVLen]byte
	if _, err := rand.Read(iv[:]); err != nil {
		return Blob{}, zerr.Wrap(zerr.RNGFailure, "keywrap: failed to draw iv", err)
	}
	return WrapWithIV(w, wrappingKey, iv)
}

// WrapWithIV is Wrap with the IV supplied by the caller instead of drawn from
// crypto/rand, so tests can assert a fixed ciphertext+tag fixture for a fixed
// (wrappingKey, masterKey, hmacKey, iv) tuple. Production callers must use
// Wrap: reusing an IV under the same wrapping key breaks AEAD's security
// guarantee.
func WrapWithIV(w *dataset.Key, wrappingKey []byte, iv [WrapIVLen]byte) (Blob, error) {
	desc := w.Descriptor()

	a, err := aead.StdProvider{}.New(desc, wrappingKey, WrapMACLen)
	if err != nil {
		return Blob{}, err
	}

	hmacKey := w.HMACKey()
	masterKey := w.ExportMasterKey()
	plaintext := make([]byte, 0, len(masterKey)+len(hmacKey))
	plaintext = append(plaintext, masterKey...)
	plaintext = append(plaintext, hmacKey[:]...)
	defer zero(plaintext)
	defer zero(masterKey)

	ciphertext, tag, err := a.Seal(iv[:], plaintext, nil)
	if err != nil {
		return Blob{}, zerr.Wrap(zerr.CryptoIOError, "keywrap: seal failed", err)
	}

	var blob Blob
	blob.IV = iv
	blob.WrappedMaster = ciphertext[:len(masterKey)]
	copy(blob.WrappedHMAC[:], ciphertext[len(masterKey):])
	copy(blob.Tag[:], tag)
	return blob, nil
}

// Unwrap opens blob, recovers the dataset key's master and HMAC keys, and
// rebuilds a fresh dataset.Key from them exactly as dataset.New does, except
// using the recovered keys rather than fresh random material: a new random
// salt, a freshly derived subkey, and a zeroed use count. wrappingKey is the
// same key Wrap was called with, for the same algoID.
func Unwrap(blob Blob, algoID algorithm.ID, wrappingKey []byte, rotationThreshold uint64) (*dataset.Key, error) {
	desc, err := algorithm.Lookup(algoID)
	if err != nil {
		return nil, err
	}

	a, err := aead.StdProvider{}.New(desc, wrappingKey, WrapMACLen)
	if err != nil {
		return nil, err
	}

	ciphertext := make([]byte, 0, len(blob.WrappedMaster)+len(blob.WrappedHMAC))
	ciphertext = append(ciphertext, blob.WrappedMaster...)
	ciphertext = append(ciphertext, blob.WrappedHMAC[:]...)

	plaintext, err := a.Open(blob.IV[:], ciphertext, blob.Tag[:], nil)
	if err != nil {
		return nil, zerr.Wrap(zerr.AuthenticationFailed, "keywrap: unwrap failed", err)
	}
	defer zero(plaintext)

	if len(plaintext) != desc.KeyLen+dataset.HMACKeyLen {
		return nil, zerr.New(zerr.InvalidArgument, "keywrap: recovered key material has wrong length for algorithm")
	}

	masterKey := plaintext[:desc.KeyLen]
	var hmacKey [dataset.HMACKeyLen]byte
	copy(hmacKey[:], plaintext[desc.KeyLen:])

	return dataset.NewFromRecovered(aead.StdProvider{}, algoID, masterKey, hmacKey, rotationThreshold)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
