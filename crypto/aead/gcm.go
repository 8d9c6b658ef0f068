package aead

import (
	"crypto/aes"
	"crypto/cipher"

	"zfscrypt/zerr"
)

type gcmAEAD struct {
	gcm    cipher.AEAD
	tagLen int
}

func newGCM(key []byte, tagLen int) (AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, zerr.Wrap(zerr.CryptoIOError, "aead: aes.NewCipher failed", err)
	}
	gcm, err := cipher.NewGCMWithTagSize(block, tagLen)
	if err != nil {
		return nil, zerr.Wrap(zerr.CryptoIOError, "aead: NewGCMWithTagSize failed", err)
	}
	return &gcmAEAD{gcm: gcm, tagLen: tagLen}, nil
}

func (g *gcmAEAD) Seal(nonce, plaintext, aad []byte) (ciphertext, tag []byte, err error) {
	sealed := g.gcm.Seal(nil, nonce, plaintext, aad)
	n := len(sealed) - g.tagLen
	ciphertext = sealed[:n]
	tag = sealed[n:]
	return ciphertext, tag, nil
}

func (g *gcmAEAD) Open(nonce, ciphertext, tag, aad []byte) ([]byte, error) {
	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)
	plaintext, err := g.gcm.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, zerr.Wrap(zerr.AuthenticationFailed, "aead: gcm tag verification failed", err)
	}
	return plaintext, nil
}

func (g *gcmAEAD) Overhead() int { return g.tagLen }
