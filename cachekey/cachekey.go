// Package cachekey generates the ephemeral, process-lifetime key a
// second-level cache encrypts its blocks under. Unlike a dataset key, it is
// never persisted and never rotates: it lives exactly as long as the process
// that drew it, so reuse across process restarts is the one thing that must
// never happen — crypto/rand already guarantees that.
package cachekey

import (
	"crypto/rand"

	"zfscrypt/algorithm"
	"zfscrypt/crypto/aead"
	"zfscrypt/dataset"
	"zfscrypt/zerr"
)

// Key is a raw, never-persisted cache key.
type Key struct {
	AlgoID algorithm.ID
	Raw    []byte
}

// New draws a fresh Key under algorithm.Default (the catalog's aes-256-ccm
// entry, the same cipher the "on" alias selects).
func New() (*Key, error) {
	return NewWithAlgorithm(algorithm.Default)
}

// NewWithAlgorithm is New with an explicit algorithm, for callers that want
// a different cipher than the catalog default.
func NewWithAlgorithm(algoID algorithm.ID) (*Key, error) {
	desc, err := algorithm.Lookup(algoID)
	if err != nil {
		return nil, err
	}

	raw := make([]byte, desc.KeyLen)
	if _, err := rand.Read(raw); err != nil {
		return nil, zerr.Wrap(zerr.RNGFailure, "cachekey: failed to draw key", err)
	}

	return &Key{AlgoID: algoID, Raw: raw}, nil
}

// Dataset adapts k to the *dataset.Key shape blockcrypt expects, so
// encrypting a cache block takes the same Encrypt/Decrypt path as a regular
// dataset block: a fixed, never-rotating salt stands in for the rolling one,
// since the cache key has no on-disk salt property to rotate.
func (k *Key) Dataset(provider aead.Provider) (*dataset.Key, error) {
	return dataset.FromCacheKey(provider, k.AlgoID, k.Raw)
}

// Close zeroes k's key material. k must not be used afterward.
func (k *Key) Close() {
	for i := range k.Raw {
		k.Raw[i] = 0
	}
	k.Raw = nil
}
