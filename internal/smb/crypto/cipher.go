package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"

	"github.com/marmos91/smbclient/internal/smb/types"
)

// NonceSize is the transform-header nonce field size. Ciphers use a prefix
// of it: CCM the first 11 bytes, GCM the first 12; the rest must be zero.
const NonceSize = 16

// ErrCrypto wraps cipher construction and parameter failures.
var ErrCrypto = errors.New("crypto: cipher failure")

// ErrSignatureVerification is returned when an AEAD tag does not
// authenticate. It is fatal to the connection.
var ErrSignatureVerification = errors.New("crypto: signature verification failed")

// Cipher seals and opens SMB2 transform payloads. The 16-byte
// authentication tag doubles as the transform header's signature field.
type Cipher interface {
	// Seal encrypts plaintext with the given nonce and additional data,
	// returning ciphertext and the 16-byte tag.
	Seal(plaintext, nonce, aad []byte) (ciphertext []byte, tag [16]byte, err error)

	// Open authenticates and decrypts ciphertext.
	// Returns ErrSignatureVerification if the tag does not match.
	Open(ciphertext []byte, tag [16]byte, nonce, aad []byte) ([]byte, error)
}

// NewCipher constructs the negotiated AEAD from a cipher id and key.
// Key length must match the cipher (16 bytes for AES-128, 32 for AES-256).
func NewCipher(cipherID uint16, key []byte) (Cipher, error) {
	switch cipherID {
	case types.CipherAES128CCM, types.CipherAES256CCM:
		return newCCMCipher(key)
	case types.CipherAES128GCM, types.CipherAES256GCM:
		return newGCMCipher(key)
	default:
		return nil, fmt.Errorf("%w: unsupported cipher id 0x%04X", ErrCrypto, cipherID)
	}
}

// gcmCipher wraps the stdlib GCM with the SMB2 12-byte nonce prefix.
type gcmCipher struct {
	aead cipher.AEAD
}

func newGCMCipher(key []byte) (*gcmCipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	return &gcmCipher{aead: aead}, nil
}

func (c *gcmCipher) Seal(plaintext, nonce, aad []byte) ([]byte, [16]byte, error) {
	var tag [16]byte
	if len(nonce) < 12 {
		return nil, tag, fmt.Errorf("%w: GCM nonce too short", ErrCrypto)
	}
	out := c.aead.Seal(nil, nonce[:12], plaintext, aad)
	ct := out[:len(plaintext)]
	copy(tag[:], out[len(plaintext):])
	return ct, tag, nil
}

func (c *gcmCipher) Open(ciphertext []byte, tag [16]byte, nonce, aad []byte) ([]byte, error) {
	if len(nonce) < 12 {
		return nil, fmt.Errorf("%w: GCM nonce too short", ErrCrypto)
	}
	in := make([]byte, 0, len(ciphertext)+16)
	in = append(in, ciphertext...)
	in = append(in, tag[:]...)
	plain, err := c.aead.Open(nil, nonce[:12], in, aad)
	if err != nil {
		return nil, ErrSignatureVerification
	}
	return plain, nil
}

// ccmCipher implements AES-CCM per NIST SP 800-38C with the SMB2 parameter
// set: 11-byte nonce (L=4) and 16-byte tag. The standard library has no CCM
// mode, so the CBC-MAC and CTR halves are built directly on cipher.Block.
type ccmCipher struct {
	block cipher.Block
}

const (
	ccmNonceLen = 11
	ccmTagLen   = 16
	ccmL        = 15 - ccmNonceLen // 4-byte length field
)

func newCCMCipher(key []byte) (*ccmCipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	return &ccmCipher{block: block}, nil
}

// cbcMAC computes the CCM authentication tag input over B0, the encoded
// AAD, and the plaintext.
func (c *ccmCipher) cbcMAC(nonce, aad, plaintext []byte) [16]byte {
	var x [16]byte

	// B0: flags || nonce || message length (L bytes BE).
	var b0 [16]byte
	flags := byte((ccmTagLen-2)/2)<<3 | byte(ccmL-1)
	if len(aad) > 0 {
		flags |= 1 << 6
	}
	b0[0] = flags
	copy(b0[1:1+ccmNonceLen], nonce)
	n := len(plaintext)
	for i := 0; i < ccmL; i++ {
		b0[15-i] = byte(n)
		n >>= 8
	}
	xorBlockEncrypt(c.block, &x, b0[:])

	// AAD with 2-byte length prefix (the SMB2 AAD is always < 2^16-2^8),
	// zero-padded to the block boundary.
	if len(aad) > 0 {
		var block [16]byte
		block[0] = byte(len(aad) >> 8)
		block[1] = byte(len(aad))
		filled := 2
		for _, b := range aad {
			block[filled] = b
			filled++
			if filled == 16 {
				xorBlockEncrypt(c.block, &x, block[:])
				block = [16]byte{}
				filled = 0
			}
		}
		if filled > 0 {
			xorBlockEncrypt(c.block, &x, block[:])
		}
	}

	// Plaintext, zero-padded.
	for off := 0; off < len(plaintext); off += 16 {
		var block [16]byte
		copy(block[:], plaintext[off:])
		xorBlockEncrypt(c.block, &x, block[:])
	}

	return x
}

func xorBlockEncrypt(b cipher.Block, x *[16]byte, in []byte) {
	for i := 0; i < 16; i++ {
		x[i] ^= in[i]
	}
	b.Encrypt(x[:], x[:])
}

// ctrBlock returns A_i = E(K, flags || nonce || i).
func (c *ccmCipher) ctrBlock(nonce []byte, i uint32) [16]byte {
	var a [16]byte
	a[0] = byte(ccmL - 1)
	copy(a[1:1+ccmNonceLen], nonce)
	a[12] = byte(i >> 24)
	a[13] = byte(i >> 16)
	a[14] = byte(i >> 8)
	a[15] = byte(i)
	c.block.Encrypt(a[:], a[:])
	return a
}

func (c *ccmCipher) ctrXor(nonce, data []byte) []byte {
	out := make([]byte, len(data))
	for off := 0; off < len(data); off += 16 {
		s := c.ctrBlock(nonce, uint32(off/16)+1)
		for i := 0; i < 16 && off+i < len(data); i++ {
			out[off+i] = data[off+i] ^ s[i]
		}
	}
	return out
}

func (c *ccmCipher) Seal(plaintext, nonce, aad []byte) ([]byte, [16]byte, error) {
	var tag [16]byte
	if len(nonce) < ccmNonceLen {
		return nil, tag, fmt.Errorf("%w: CCM nonce too short", ErrCrypto)
	}
	nonce = nonce[:ccmNonceLen]

	mac := c.cbcMAC(nonce, aad, plaintext)
	s0 := c.ctrBlock(nonce, 0)
	for i := 0; i < ccmTagLen; i++ {
		tag[i] = mac[i] ^ s0[i]
	}
	return c.ctrXor(nonce, plaintext), tag, nil
}

func (c *ccmCipher) Open(ciphertext []byte, tag [16]byte, nonce, aad []byte) ([]byte, error) {
	if len(nonce) < ccmNonceLen {
		return nil, fmt.Errorf("%w: CCM nonce too short", ErrCrypto)
	}
	nonce = nonce[:ccmNonceLen]

	plaintext := c.ctrXor(nonce, ciphertext)
	mac := c.cbcMAC(nonce, aad, plaintext)
	s0 := c.ctrBlock(nonce, 0)
	var diff byte
	for i := 0; i < ccmTagLen; i++ {
		diff |= tag[i] ^ mac[i] ^ s0[i]
	}
	if diff != 0 {
		return nil, ErrSignatureVerification
	}
	return plaintext, nil
}
