// Package blockcrypt runs the per-block authenticated encrypt/decrypt
// pipeline: plan the byte ranges to touch, pick the right subkey, run the
// AEAD cipher over the plan's segments.
package blockcrypt

import (
	"zfscrypt/crypto/hkdf"
	"zfscrypt/dataset"
	"zfscrypt/scatter"
	"zfscrypt/zerr"
)

// ObjectType distinguishes a regular block from an intent-log block, which
// take different scatter plans.
type ObjectType int

const (
	ObjectRegular ObjectType = iota
	ObjectIntentLog
)

// Encrypt encrypts plaintext into ciphertext (datalen bytes for a
// regular block, used bytes for an intent-log block) under k, and returns
// the authentication tag. Callers must have obtained salt from k.GetSalt and
// iv from the ivgen package, and must persist (salt, iv, tag) with the block.
func Encrypt(k *dataset.Key, objType ObjectType, salt [dataset.SaltLen]byte, iv [12]byte, plaintext, ciphertext []byte, datalen int) (tag []byte, err error) {
	plan, err := buildPlan(objType, true, plaintext, ciphertext, datalen)
	if err == scatter.ErrNoEncryptionNeeded {
		copy(ciphertext[:datalen], plaintext[:datalen])
		return make([]byte, zilOrDataTagLen(objType)), nil
	}
	if err != nil {
		return nil, err
	}

	// Establish the verbatim baseline (header and any embedded block
	// pointers) before overwriting just the plan's segments; the planner
	// itself never touches ciphertext outside those segments.
	if objType == ObjectIntentLog {
		copy(ciphertext[:datalen], plaintext[:datalen])
	}

	a, cleanup, err := selectAEAD(k, salt, plan.TagLen)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if len(plan.Segments) == 1 {
		seg := plan.Segments[0]
		ct, tag, err := a.Seal(iv[:], seg.Src, nil)
		if err != nil {
			return nil, zerr.Wrap(zerr.CryptoIOError, "blockcrypt: seal failed", err)
		}
		copy(seg.Dst, ct)
		return tag, nil
	}

	// A scatter plan with more than one segment (an intent-log write record
	// with an inline data tail) still represents one logical AEAD operation
	// over the concatenation of its segments, not one seal per segment.
	return sealConcatenated(a, iv, plan.Segments)
}

// Decrypt is Encrypt's inverse: it recovers plaintext from ciphertext and
// verifies tag, failing with zerr.AuthenticationFailed on mismatch without
// writing any recovered bytes into plaintext.
func Decrypt(k *dataset.Key, objType ObjectType, salt [dataset.SaltLen]byte, iv [12]byte, ciphertext, plaintext []byte, tag []byte, datalen int) error {
	plan, err := buildPlan(objType, false, plaintext, ciphertext, datalen)
	if err == scatter.ErrNoEncryptionNeeded {
		copy(plaintext[:datalen], ciphertext[:datalen])
		return nil
	}
	if err != nil {
		return err
	}

	a, cleanup, err := selectAEAD(k, salt, plan.TagLen)
	if err != nil {
		return err
	}
	defer cleanup()

	// Verify (and recover into a fresh buffer, not the caller's plaintext)
	// before writing anything: a tampered tag must leave plaintext
	// untouched.
	var recovered []byte
	if len(plan.Segments) == 1 {
		recovered, err = a.Open(iv[:], plan.Segments[0].Src, tag, nil)
	} else {
		recovered, err = openConcatenated(a, iv, plan.Segments, tag)
	}
	if err != nil {
		return err
	}

	if objType == ObjectIntentLog {
		copy(plaintext[:datalen], ciphertext[:datalen])
	}
	pos := 0
	for _, seg := range plan.Segments {
		n := copy(seg.Dst, recovered[pos:pos+len(seg.Src)])
		pos += n
	}
	return nil
}

func zilOrDataTagLen(objType ObjectType) int {
	if objType == ObjectIntentLog {
		return scatter.ZilMACLen
	}
	return scatter.DataMACLen
}

// buildPlan builds the scatter plan, passing src/dst in the order the
// requested direction reads and writes them: encrypting reads plaintext and
// writes ciphertext, decrypting reads ciphertext and writes plaintext.
func buildPlan(objType ObjectType, encrypt bool, plaintext, ciphertext []byte, datalen int) (scatter.Plan, error) {
	src, dst := plaintext, ciphertext
	if !encrypt {
		src, dst = ciphertext, plaintext
	}
	switch objType {
	case ObjectIntentLog:
		return scatter.PlanIntentLog(src, dst, datalen)
	default:
		return scatter.PlanRegular(src, dst, datalen)
	}
}

// selectAEAD builds an AEAD instance for tagLen (regular blocks and
// intent-log blocks use different tag lengths, so the instance is always
// built fresh — cheap key scheduling, not a fresh key derivation). If salt
// matches k's live salt, the already-derived current subkey is reused and
// nothing needs zeroing afterward; otherwise a throwaway subkey is derived
// via HKDF and must be zeroed by the returned cleanup.
func selectAEAD(k *dataset.Key, salt [dataset.SaltLen]byte, tagLen int) (aeadInstance aeadLike, cleanup func(), err error) {
	desc := k.Descriptor()

	currentSalt, currentSubkey, _ := k.Current()
	if currentSalt == salt {
		a, err := k.Provider().New(desc, currentSubkey, tagLen)
		if err != nil {
			return nil, func() {}, err
		}
		return a, func() {}, nil
	}

	masterKey := k.ExportMasterKey()
	defer zeroBytes(masterKey)

	subkey, err := hkdf.Derive(masterKey, nil, salt[:], desc.KeyLen)
	if err != nil {
		return nil, func() {}, err
	}

	a, err := k.Provider().New(desc, subkey, tagLen)
	if err != nil {
		zeroBytes(subkey)
		return nil, func() {}, err
	}

	return a, func() { zeroBytes(subkey) }, nil
}

// aeadLike is the subset of crypto/aead.AEAD this package calls; named here
// to avoid importing crypto/aead just for the interface type, since
// dataset.Key.Current already returns it as crypto/aead.AEAD — Go's
// structural typing lets selectAEAD's return value satisfy both.
type aeadLike interface {
	Seal(nonce, plaintext, aad []byte) (ciphertext, tag []byte, err error)
	Open(nonce, ciphertext, tag, aad []byte) (plaintext []byte, err error)
	Overhead() int
}

func sealConcatenated(a aeadLike, iv [12]byte, segments []scatter.Segment) ([]byte, error) {
	total := 0
	for _, s := range segments {
		total += len(s.Src)
	}
	concatenated := make([]byte, 0, total)
	for _, s := range segments {
		concatenated = append(concatenated, s.Src...)
	}

	ct, tag, err := a.Seal(iv[:], concatenated, nil)
	if err != nil {
		return nil, zerr.Wrap(zerr.CryptoIOError, "blockcrypt: seal failed", err)
	}

	pos := 0
	for _, s := range segments {
		n := copy(s.Dst, ct[pos:pos+len(s.Src)])
		pos += n
	}
	return tag, nil
}

// openConcatenated verifies tag and returns the recovered plaintext as one
// contiguous buffer; it does not write into any segment's Dst, so a
// verification failure leaves every caller buffer untouched.
func openConcatenated(a aeadLike, iv [12]byte, segments []scatter.Segment, tag []byte) ([]byte, error) {
	total := 0
	for _, s := range segments {
		total += len(s.Src)
	}
	concatenated := make([]byte, 0, total)
	for _, s := range segments {
		concatenated = append(concatenated, s.Src...)
	}

	return a.Open(iv[:], concatenated, tag, nil)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
