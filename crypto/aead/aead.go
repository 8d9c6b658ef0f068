// Package aead is the cryptographic primitive provider this module's crypto
// core treats as a black box: AES-GCM and AES-CCM encrypt/decrypt, HMAC-SHA-256,
// and a streaming SHA-256 digest. The rest of the module never touches
// crypto/aes or crypto/cipher directly; it goes through this package.
package aead

import (
	"crypto/hmac"
	"crypto/sha256"
	"hash"

	"zfscrypt/algorithm"
	"zfscrypt/zerr"
)

// AEAD runs one algorithm/key/tag-length combination.
type AEAD interface {
	// Seal encrypts plaintext and returns ciphertext and the authentication
	// tag. aad may be nil; this module never passes associated data.
	Seal(nonce, plaintext, aad []byte) (ciphertext, tag []byte, err error)
	// Open decrypts ciphertext and verifies tag. On mismatch it returns
	// zerr.AuthenticationFailed and does not return the attempted plaintext.
	Open(nonce, ciphertext, tag, aad []byte) (plaintext []byte, err error)
	// Overhead is the configured tag length in bytes.
	Overhead() int
}

// Provider constructs an AEAD for a given algorithm, key, and tag length.
type Provider interface {
	New(algo algorithm.Descriptor, key []byte, tagLen int) (AEAD, error)
}

// StdProvider is the default Provider: AES-GCM via crypto/cipher, AES-CCM
// hand-built on crypto/aes (see ccm.go). No third-party AEAD library is used
// for either — see DESIGN.md for why CCM has no ecosystem candidate.
type StdProvider struct{}

func (StdProvider) New(algo algorithm.Descriptor, key []byte, tagLen int) (AEAD, error) {
	if len(key) != algo.KeyLen {
		return nil, zerr.New(zerr.InvalidArgument, "aead: key length does not match algorithm")
	}
	switch algo.Family {
	case algorithm.GCM:
		return newGCM(key, tagLen)
	case algorithm.CCM:
		return newCCM(key, tagLen)
	default:
		return nil, zerr.New(zerr.InvalidArgument, "aead: algorithm has no runnable cipher")
	}
}

// HMAC returns HMAC-SHA-256(key, msg).
func HMAC(key, msg []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	return mac.Sum(nil)
}

// SHA256 returns the SHA-256 digest of data.
func SHA256(data []byte) []byte {
	h := sha256.New()
	h.Write(data)
	return h.Sum(nil)
}

// SHA256Digest is a streaming SHA-256 accumulator for IV derivations that
// hash several discontiguous fields in sequence (block identity, epoch,
// salt, and so on) without concatenating them into one buffer first.
type SHA256Digest struct {
	h hash.Hash
}

func NewSHA256Digest() *SHA256Digest {
	return &SHA256Digest{h: sha256.New()}
}

func (d *SHA256Digest) Update(p []byte) { d.h.Write(p) }

func (d *SHA256Digest) Sum() [sha256.Size]byte {
	var out [sha256.Size]byte
	copy(out[:], d.h.Sum(nil))
	return out
}
