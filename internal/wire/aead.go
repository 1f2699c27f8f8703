package wire

import (
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// NonceSize is the size of the packed (ssrc, epoch, seq) nonce.
const NonceSize = chacha20poly1305.NonceSize // 12 bytes; ssrc(4) epoch(1) seq(2) + 5 zero pad

// CryptoError reports an AEAD failure distinct from protocol/header errors.
type CryptoError struct {
	Reason string
}

func (e *CryptoError) Error() string { return "wire: " + e.Reason }

// ErrAuthenticationFailed is returned when the AEAD tag does not verify.
var ErrAuthenticationFailed = &CryptoError{Reason: "authentication failed"}

// Cipher seals and opens frame payloads with a single symmetric key. One
// Cipher instance corresponds to one (sender, epoch) key in the E2EE
// sender-key model; the relay never holds one.
type Cipher struct {
	aead chacha20poly1305.AEAD
}

// NewCipher builds a Cipher from a 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, &CryptoError{Reason: fmt.Sprintf("bad key: %v", err)}
	}
	return &Cipher{aead: aead}, nil
}

// packNonce packs ssrc, epoch and seq into the 96-bit nonce. The low
// bytes vary per frame (seq); ssrc and epoch separate senders and
// rotations so the (ssrc, epoch, seq) triple is unique per key.
func packNonce(ssrc uint32, epoch uint8, seq uint16) [NonceSize]byte {
	var n [NonceSize]byte
	n[0] = byte(ssrc >> 24)
	n[1] = byte(ssrc >> 16)
	n[2] = byte(ssrc >> 8)
	n[3] = byte(ssrc)
	n[4] = epoch
	n[5] = byte(seq >> 8)
	n[6] = byte(seq)
	// remaining bytes stay zero
	return n
}

// Encrypt seals plaintext, using headerBytes (the 16-byte cleartext
// header) as associated data. The returned ciphertext is
// len(plaintext)+aead.Overhead() bytes, matching PayloadLength.
func (c *Cipher) Encrypt(headerBytes []byte, ssrc uint32, epoch uint8, seq uint16, plaintext []byte) []byte {
	nonce := packNonce(ssrc, epoch, seq)
	return c.aead.Seal(nil, nonce[:], plaintext, headerBytes)
}

// Decrypt opens ciphertext sealed by Encrypt with the same header bytes,
// ssrc, epoch and seq. Any mismatch in any of those yields
// ErrAuthenticationFailed.
func (c *Cipher) Decrypt(headerBytes []byte, ssrc uint32, epoch uint8, seq uint16, ciphertext []byte) ([]byte, error) {
	nonce := packNonce(ssrc, epoch, seq)
	plaintext, err := c.aead.Open(nil, nonce[:], ciphertext, headerBytes)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

// Overhead is the number of bytes Encrypt adds beyond the plaintext.
func (c *Cipher) Overhead() int { return c.aead.Overhead() }
