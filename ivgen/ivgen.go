// Package ivgen derives the 96-bit IVs this module's AEAD layer runs under.
// Regular and intent-log blocks hash a block's identity plus either its
// birth transaction (a simple counter epoch) or its log bookmark, plus the
// dataset's current salt. Dedup blocks use an HMAC of the plaintext itself,
// so identical plaintexts always encrypt to identical ciphertexts. L2ARC
// cache entries hash the pool/device address that names them instead of a
// dataset salt, since the cache key has no rolling salt of its own.
package ivgen

import (
	"encoding/binary"

	"zfscrypt/crypto/aead"
)

// IVLen is the length of every IV this package produces.
const IVLen = 12

// Bookmark is the globally-unique-sequence-number tuple a ZIL entry carries
// in place of a birth transaction, since log blocks are preallocated with a
// birth of zero and only acquire a real transaction number on replay.
type Bookmark struct {
	ObjSet  uint64
	Object  uint64
	Level   int64
	Blkid   uint64
}

// Bytes serializes b in the fixed little-endian layout this module hashes.
func (b Bookmark) Bytes() []byte {
	buf := make([]byte, 32)
	binary.LittleEndian.PutUint64(buf[0:8], b.ObjSet)
	binary.LittleEndian.PutUint64(buf[8:16], b.Object)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(b.Level))
	binary.LittleEndian.PutUint64(buf[24:32], b.Blkid)
	return buf
}

// Regular derives the IV for an ordinary block: identity, birth epoch
// (little-endian), and the dataset's current salt, SHA-256'd and truncated.
func Regular(identity [16]byte, birthEpoch uint64, salt [8]byte) [IVLen]byte {
	d := aead.NewSHA256Digest()
	d.Update(identity[:])
	var epochBuf [8]byte
	binary.LittleEndian.PutUint64(epochBuf[:], birthEpoch)
	d.Update(epochBuf[:])
	d.Update(salt[:])
	return truncate(d.Sum())
}

// IntentLog derives the IV for an intent-log (ZIL) block: identity, log
// bookmark, and the dataset's current salt, replacing the birth epoch with
// the bookmark because ZIL blocks are preallocated with a birth of zero.
func IntentLog(identity [16]byte, bookmark Bookmark, salt [8]byte) [IVLen]byte {
	d := aead.NewSHA256Digest()
	d.Update(identity[:])
	d.Update(bookmark.Bytes())
	d.Update(salt[:])
	return truncate(d.Sum())
}

// Dedup derives the salt/IV pair for a dedup block directly from its
// plaintext, so that two blocks with identical contents always produce the
// same ciphertext: HMAC-SHA256(hmacKey, plaintext) is split into an 8-byte
// salt and the 12-byte IV that follows it.
func Dedup(hmacKey [32]byte, plaintext []byte) (salt [8]byte, iv [IVLen]byte) {
	digest := aead.HMAC(hmacKey[:], plaintext)
	copy(salt[:], digest[:8])
	copy(iv[:], digest[8:8+IVLen])
	return salt, iv
}

// L2ARC derives the IV for a second-level cache block from the pool id and
// device-relative address that name it, since cache entries have no dataset
// salt of their own.
func L2ARC(poolID uint64, dva [16]byte, birth, deviceAddr uint64) [IVLen]byte {
	d := aead.NewSHA256Digest()
	var poolBuf, birthBuf, addrBuf [8]byte
	binary.LittleEndian.PutUint64(poolBuf[:], poolID)
	binary.LittleEndian.PutUint64(birthBuf[:], birth)
	binary.LittleEndian.PutUint64(addrBuf[:], deviceAddr)

	d.Update(poolBuf[:])
	d.Update(dva[:])
	d.Update(birthBuf[:])
	d.Update(addrBuf[:])
	return truncate(d.Sum())
}

func truncate(digest [32]byte) [IVLen]byte {
	var iv [IVLen]byte
	copy(iv[:], digest[:IVLen])
	return iv
}
