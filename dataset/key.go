// Package dataset holds the per-dataset encryption key state: a master key,
// an HMAC key, a rolling salt, and the subkey currently derived from them.
// The salt is reissued to every caller that asks for one and rotates once it
// has been handed out too many times, bounding AES-GCM/AES-CCM IV reuse.
package dataset

import (
	"crypto/rand"
	"sync"
	"sync/atomic"

	"zfscrypt/algorithm"
	"zfscrypt/crypto/aead"
	"zfscrypt/crypto/hkdf"
	"zfscrypt/zerr"
)

// DefaultRotationThreshold is the number of times a salt may be handed out
// via GetSalt before Key rotates it, bounding reuse of a 96-bit IV under one
// subkey to a safe margin.
const DefaultRotationThreshold = 1 << 20

// HMACKeyLen is the size of the dedup-IV HMAC key in bytes.
const HMACKeyLen = 32

// SaltLen is the size of the rolling salt in bytes.
const SaltLen = 8

const hmacKeyLen = HMACKeyLen
const saltLen = SaltLen

// Key is a dataset's resident encryption state. Zero value is not usable;
// construct with New or NewWithThreshold.
type Key struct {
	AlgoID algorithm.ID
	desc   algorithm.Descriptor

	provider aead.Provider

	masterKey []byte
	hmacKey   [hmacKeyLen]byte

	mu            sync.RWMutex
	salt          [saltLen]byte
	currentSubkey []byte
	currentAEAD   aead.AEAD

	saltUseCount uint64 // atomic

	rotationThreshold uint64
}

// New builds a fresh Key for algoID, drawing master key, HMAC key, and salt
// material from crypto/rand, using DefaultRotationThreshold.
func New(provider aead.Provider, algoID algorithm.ID) (*Key, error) {
	return NewWithThreshold(provider, algoID, DefaultRotationThreshold)
}

// NewWithThreshold is New with an explicit rotation threshold.
func NewWithThreshold(provider aead.Provider, algoID algorithm.ID, rotationThreshold uint64) (*Key, error) {
	desc, err := algorithm.Lookup(algoID)
	if err != nil {
		return nil, err
	}

	k := &Key{
		AlgoID:            algoID,
		desc:              desc,
		provider:          provider,
		rotationThreshold: rotationThreshold,
	}

	k.masterKey = make([]byte, desc.KeyLen)
	if _, err := rand.Read(k.masterKey); err != nil {
		k.Destroy()
		return nil, zerr.Wrap(zerr.RNGFailure, "dataset: failed to draw master key", err)
	}
	if _, err := rand.Read(k.hmacKey[:]); err != nil {
		k.Destroy()
		return nil, zerr.Wrap(zerr.RNGFailure, "dataset: failed to draw hmac key", err)
	}
	if _, err := rand.Read(k.salt[:]); err != nil {
		k.Destroy()
		return nil, zerr.Wrap(zerr.RNGFailure, "dataset: failed to draw salt", err)
	}

	if err := k.deriveLocked(); err != nil {
		k.Destroy()
		return nil, err
	}

	return k, nil
}

// NewFromRecovered rebuilds a Key from master/HMAC key material recovered by
// keywrap.Unwrap, drawing a fresh salt exactly as New does.
func NewFromRecovered(provider aead.Provider, algoID algorithm.ID, masterKey []byte, hmacKey [hmacKeyLen]byte, rotationThreshold uint64) (*Key, error) {
	desc, err := algorithm.Lookup(algoID)
	if err != nil {
		return nil, err
	}
	if len(masterKey) != desc.KeyLen {
		return nil, zerr.New(zerr.InvalidArgument, "dataset: recovered master key length does not match algorithm")
	}

	k := &Key{
		AlgoID:            algoID,
		desc:              desc,
		provider:          provider,
		rotationThreshold: rotationThreshold,
		hmacKey:           hmacKey,
	}
	k.masterKey = make([]byte, desc.KeyLen)
	copy(k.masterKey, masterKey)

	if _, err := rand.Read(k.salt[:]); err != nil {
		k.Destroy()
		return nil, zerr.Wrap(zerr.RNGFailure, "dataset: failed to draw salt", err)
	}
	if err := k.deriveLocked(); err != nil {
		k.Destroy()
		return nil, err
	}
	return k, nil
}

// FromCacheKey wraps an ephemeral cache key (see package cachekey) in a Key
// with a fixed salt and no rotation, so blockcrypt needs no cache-specific
// branch: callers just pass salt = [8]byte{} and never call GetSalt again
// for the lifetime of the cache key.
func FromCacheKey(provider aead.Provider, algoID algorithm.ID, rawKey []byte) (*Key, error) {
	desc, err := algorithm.Lookup(algoID)
	if err != nil {
		return nil, err
	}
	if len(rawKey) != desc.KeyLen {
		return nil, zerr.New(zerr.InvalidArgument, "dataset: cache key length does not match algorithm")
	}

	k := &Key{
		AlgoID:            algoID,
		desc:              desc,
		provider:          provider,
		rotationThreshold: 0, // never rotates
	}
	k.masterKey = make([]byte, desc.KeyLen)
	copy(k.masterKey, rawKey)
	// hmacKey stays zero: cache keys are never used for dedup IV derivation.

	if err := k.deriveLocked(); err != nil {
		k.Destroy()
		return nil, err
	}
	return k, nil
}

// deriveLocked re-derives currentSubkey and currentAEAD from masterKey and
// salt. Caller must hold mu for writing (or be the exclusive constructor).
func (k *Key) deriveLocked() error {
	subkey, err := hkdf.Derive(k.masterKey, nil, k.salt[:], k.desc.KeyLen)
	if err != nil {
		return err
	}
	a, err := k.provider.New(k.desc, subkey, dataTagLen(k.desc))
	if err != nil {
		for i := range subkey {
			subkey[i] = 0
		}
		return err
	}
	k.currentSubkey = subkey
	k.currentAEAD = a
	return nil
}

func dataTagLen(desc algorithm.Descriptor) int {
	return 16
}

// GetSalt returns the current salt and bumps the use counter. Once the
// counter reaches the rotation threshold, the salt is rotated before
// returning; the call that triggers the rotation still returns the salt it
// read before rotating, and the next call returns the new one.
func (k *Key) GetSalt() (salt [saltLen]byte, err error) {
	k.mu.RLock()
	salt = k.salt
	count := atomic.AddUint64(&k.saltUseCount, 1)
	k.mu.RUnlock()

	if k.rotationThreshold != 0 && count >= k.rotationThreshold {
		if err := k.rotate(); err != nil {
			return salt, err
		}
	}
	return salt, nil
}

// rotate draws a new salt, re-derives the subkey and cached AEAD instance
// under the write lock, and resets the use counter. Safe to call
// concurrently: only one rotation's work is kept, the rest is redundant but
// harmless.
func (k *Key) rotate() error {
	var newSalt [saltLen]byte
	if _, err := rand.Read(newSalt[:]); err != nil {
		return zerr.Wrap(zerr.RNGFailure, "dataset: failed to draw rotation salt", err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	subkey, err := hkdf.Derive(k.masterKey, nil, newSalt[:], k.desc.KeyLen)
	if err != nil {
		return err
	}
	a, err := k.provider.New(k.desc, subkey, dataTagLen(k.desc))
	if err != nil {
		for i := range subkey {
			subkey[i] = 0
		}
		return err
	}

	for i := range k.currentSubkey {
		k.currentSubkey[i] = 0
	}
	k.salt = newSalt
	k.currentSubkey = subkey
	k.currentAEAD = a
	atomic.StoreUint64(&k.saltUseCount, 0)
	return nil
}

// Current returns the salt, subkey, and cached AEAD instance currently
// installed, for callers (blockcrypt) that already hold a salt obtained from
// GetSalt and need to check whether it is still the live one.
func (k *Key) Current() (salt [saltLen]byte, subkey []byte, a aead.AEAD) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.salt, k.currentSubkey, k.currentAEAD
}

// Descriptor returns the algorithm catalog entry this key was built for.
func (k *Key) Descriptor() algorithm.Descriptor { return k.desc }

// HMACKey returns a copy of the dedup-IV HMAC key.
func (k *Key) HMACKey() [hmacKeyLen]byte { return k.hmacKey }

// ExportMasterKey returns a copy of the master key, for keywrap.Wrap. The
// caller owns the returned slice and must zero it when done.
func (k *Key) ExportMasterKey() []byte {
	k.mu.RLock()
	defer k.mu.RUnlock()
	cp := make([]byte, len(k.masterKey))
	copy(cp, k.masterKey)
	return cp
}

// Provider returns the AEAD provider this key was constructed with, so
// blockcrypt can build throwaway AEAD instances for non-current salts.
func (k *Key) Provider() aead.Provider { return k.provider }

// Destroy zeroes every secret field. The Key must not be used afterward.
func (k *Key) Destroy() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for i := range k.masterKey {
		k.masterKey[i] = 0
	}
	k.masterKey = nil
	for i := range k.hmacKey {
		k.hmacKey[i] = 0
	}
	for i := range k.currentSubkey {
		k.currentSubkey[i] = 0
	}
	k.currentSubkey = nil
	k.currentAEAD = nil
	k.salt = [saltLen]byte{}
	atomic.StoreUint64(&k.saltUseCount, 0)
}
