package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"

	"zfscrypt/zerr"
)

// AES-CCM (RFC 3610) has no third-party Go implementation anywhere in this
// module's reference corpus; it is hand-built here on crypto/aes, the same
// way the surrounding code already reaches for crypto/aes/crypto/cipher
// directly rather than a wrapper library. See DESIGN.md.
//
// This implementation is fixed to a 12-byte nonce (q=3 length-field bytes,
// L=3), which is the only nonce size this module's IV generators produce.

const ccmNonceLen = 12
const ccmBlockLen = aes.BlockSize
const ccmL = 15 - ccmNonceLen // length-field size, 3 bytes

type ccmAEAD struct {
	block  cipher.Block
	tagLen int
}

func newCCM(key []byte, tagLen int) (AEAD, error) {
	if tagLen != 8 && tagLen != 16 {
		return nil, zerr.New(zerr.InvalidArgument, "aead: ccm tag length must be 8 or 16")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, zerr.Wrap(zerr.CryptoIOError, "aead: aes.NewCipher failed", err)
	}
	return &ccmAEAD{block: block, tagLen: tagLen}, nil
}

func (c *ccmAEAD) Overhead() int { return c.tagLen }

func (c *ccmAEAD) Seal(nonce, plaintext, aad []byte) ([]byte, []byte, error) {
	if len(nonce) != ccmNonceLen {
		return nil, nil, zerr.New(zerr.InvalidArgument, "aead: ccm nonce must be 12 bytes")
	}

	mac := c.cbcMAC(nonce, plaintext, aad)

	ciphertext := make([]byte, len(plaintext))
	keystream := c.counterKeystream(nonce, 1, len(plaintext))
	xorBytes(ciphertext, plaintext, keystream)

	s0 := c.counterBlock(nonce, 0)
	tag := make([]byte, c.tagLen)
	xorBytes(tag, mac[:c.tagLen], s0[:c.tagLen])

	return ciphertext, tag, nil
}

func (c *ccmAEAD) Open(nonce, ciphertext, tag, aad []byte) ([]byte, error) {
	if len(nonce) != ccmNonceLen {
		return nil, zerr.New(zerr.InvalidArgument, "aead: ccm nonce must be 12 bytes")
	}
	if len(tag) != c.tagLen {
		return nil, zerr.New(zerr.AuthenticationFailed, "aead: ccm tag length mismatch")
	}

	plaintext := make([]byte, len(ciphertext))
	keystream := c.counterKeystream(nonce, 1, len(ciphertext))
	xorBytes(plaintext, ciphertext, keystream)

	mac := c.cbcMAC(nonce, plaintext, aad)

	s0 := c.counterBlock(nonce, 0)
	expectedTag := make([]byte, c.tagLen)
	xorBytes(expectedTag, mac[:c.tagLen], s0[:c.tagLen])

	if subtle.ConstantTimeCompare(expectedTag, tag) != 1 {
		for i := range plaintext {
			plaintext[i] = 0
		}
		return nil, zerr.New(zerr.AuthenticationFailed, "aead: ccm tag verification failed")
	}
	return plaintext, nil
}

// counterBlock encrypts the counter-mode input block A_i = flags(q-1) ||
// nonce || counter(i), i in [0, 2^(8*L)).
func (c *ccmAEAD) counterBlock(nonce []byte, i uint64) [ccmBlockLen]byte {
	var a [ccmBlockLen]byte
	a[0] = byte(ccmL - 1)
	copy(a[1:1+ccmNonceLen], nonce)
	putUintL(a[1+ccmNonceLen:], i, ccmL)

	var out [ccmBlockLen]byte
	c.block.Encrypt(out[:], a[:])
	return out
}

func (c *ccmAEAD) counterKeystream(nonce []byte, startCounter uint64, n int) []byte {
	out := make([]byte, n)
	pos := 0
	counter := startCounter
	for pos < n {
		s := c.counterBlock(nonce, counter)
		pos += copy(out[pos:], s[:])
		counter++
	}
	return out[:n]
}

// cbcMAC computes the CCM authentication value T over (aad, plaintext) using
// the B_0 .. B_n CBC-MAC chain defined in RFC 3610 section 2.2. This
// implementation's exclusive caller passes aad == nil; the associated-data
// length field and padding are still computed generally.
func (c *ccmAEAD) cbcMAC(nonce, plaintext, aad []byte) []byte {
	var b0 [ccmBlockLen]byte
	flags := byte(((c.tagLen-2)/2)<<3) | byte(ccmL-1)
	if len(aad) > 0 {
		flags |= 0x40
	}
	b0[0] = flags
	copy(b0[1:1+ccmNonceLen], nonce)
	putUintL(b0[1+ccmNonceLen:], uint64(len(plaintext)), ccmL)

	mac := make([]byte, ccmBlockLen)
	c.block.Encrypt(mac, b0[:])

	if len(aad) > 0 {
		aLen := encodeAADLen(len(aad))
		chain := append(aLen, aad...)
		mac = cbcMACChain(c.block, mac, chain)
	}

	mac = cbcMACChain(c.block, mac, plaintext)
	return mac
}

// cbcMACChain feeds data through the CBC-MAC chain starting from prev,
// zero-padding the final partial block as RFC 3610 requires.
func cbcMACChain(block cipher.Block, prev []byte, data []byte) []byte {
	var buf [ccmBlockLen]byte
	for len(data) > 0 {
		n := copy(buf[:], data)
		for i := n; i < ccmBlockLen; i++ {
			buf[i] = 0
		}
		xorBytes(buf[:], buf[:], prev)
		block.Encrypt(prev, buf[:])
		data = data[n:]
	}
	return prev
}

// encodeAADLen encodes the associated-data length per RFC 3610 2.2: 2 bytes
// for lengths under 2^16-2^8, else a 2-byte 0xfffe marker plus 4 bytes.
func encodeAADLen(n int) []byte {
	if n < 0xff00 {
		return []byte{byte(n >> 8), byte(n)}
	}
	return []byte{0xff, 0xfe, byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}
}

// putUintL writes v as an L-byte big-endian integer into dst.
func putUintL(dst []byte, v uint64, l int) {
	for i := l - 1; i >= 0; i-- {
		dst[i] = byte(v)
		v >>= 8
	}
}

func xorBytes(dst, a, b []byte) {
	for i := range dst {
		dst[i] = a[i] ^ b[i]
	}
}
