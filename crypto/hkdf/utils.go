// Package hkdf implements HKDF-SHA-256 (RFC 5869) for deriving dataset
// subkeys from a master key plus a rolling salt.
package hkdf

import (
	"crypto/hmac"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	"zfscrypt/zerr"
)

// hashLen is the SHA-256 digest size in bytes.
const hashLen = sha256.Size

// maxOutputLen is the largest output HKDF-SHA-256 can produce: 255 rounds
// of HMAC, each hashLen bytes.
const maxOutputLen = 255 * hashLen

// Extract is the HKDF extract step: prk = HMAC-SHA256(key=salt, msg=ikm).
// An empty salt is treated as hashLen zero bytes, per RFC 5869.
func Extract(salt, ikm []byte) []byte {
	if len(salt) == 0 {
		salt = make([]byte, hashLen)
	}
	mac := hmac.New(sha256.New, salt)
	mac.Write(ikm)
	return mac.Sum(nil)
}

// Expand is the HKDF expand step, producing length bytes from prk and info.
// It fails with zerr.InvalidArgument if length would require more than 255
// HMAC iterations.
func Expand(prk, info []byte, length int) ([]byte, error) {
	if length > maxOutputLen {
		return nil, zerr.New(zerr.InvalidArgument, "hkdf: requested output exceeds 255*32 bytes")
	}

	out := make([]byte, length)
	t := make([]byte, 0, hashLen)
	mac := hmac.New(sha256.New, prk)
	for pos, counter := 0, byte(1); pos < length; counter++ {
		mac.Reset()
		mac.Write(t)
		mac.Write(info)
		mac.Write([]byte{counter})
		t = mac.Sum(t[:0])
		pos += copy(out[pos:], t)
	}
	return out, nil
}

// Derive runs extract-then-expand in one call. This is the function the
// dataset key state and blockcrypt use on the hot path; it is built on
// golang.org/x/crypto/hkdf rather than the hand-rolled Extract/Expand above,
// matching the library the rest of this module's HKDF consumers expect.
func Derive(ikm, salt, info []byte, length int) ([]byte, error) {
	if length > maxOutputLen {
		return nil, zerr.New(zerr.InvalidArgument, "hkdf: requested output exceeds 255*32 bytes")
	}

	reader := hkdf.New(sha256.New, ikm, salt, info)
	out := make([]byte, length)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, zerr.Wrap(zerr.CryptoIOError, "hkdf: expand failed", err)
	}
	return out, nil
}
