package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"

	"github.com/marmos91/smbclient/internal/smb/types"
)

// Header geometry the signers depend on.
const (
	headerSize      = 64
	signatureOffset = 48
	signatureSize   = 16
	flagsOffset     = 16
	messageIDOffset = 24
)

const flagSigned uint32 = 0x00000008

// Signer provides signing and verification for SMB2 messages.
// All implementations produce a 16-byte signature computed over the whole
// message with the signature field zeroed.
type Signer interface {
	// Sign computes the signature for an SMB2 message.
	Sign(message []byte) [signatureSize]byte

	// Verify checks the message's embedded signature.
	Verify(message []byte) bool
}

// NewSigner creates the appropriate Signer for the negotiated dialect and
// signing algorithm.
//
// Dispatch:
//   - dialect < 3.0: HMACSigner (HMAC-SHA256)
//   - algorithm AES-GMAC: GMACSigner (3.1.1 only)
//   - otherwise: CMACSigner
func NewSigner(dialect types.Dialect, signingAlgorithmID uint16, key []byte) Signer {
	if dialect < types.Dialect0300 {
		return NewHMACSigner(key)
	}
	if signingAlgorithmID == types.SigningAESGMAC {
		return NewGMACSigner(key)
	}
	return NewCMACSigner(key)
}

// SignMessage signs an SMB2 message in place: sets the signed flag and
// writes the computed signature into bytes 48-63.
func SignMessage(signer Signer, message []byte) {
	if signer == nil || len(message) < headerSize {
		return
	}

	flags := binary.LittleEndian.Uint32(message[flagsOffset : flagsOffset+4])
	flags |= flagSigned
	binary.LittleEndian.PutUint32(message[flagsOffset:flagsOffset+4], flags)

	sig := signer.Sign(message)
	copy(message[signatureOffset:], sig[:])
}

// zeroedSignatureCopy returns the message with its signature field zeroed,
// without mutating the input.
func zeroedSignatureCopy(message []byte) []byte {
	m := make([]byte, len(message))
	copy(m, message)
	for i := signatureOffset; i < signatureOffset+signatureSize && i < len(m); i++ {
		m[i] = 0
	}
	return m
}

// HMACSigner implements Signer using HMAC-SHA256, used for SMB 2.x sessions.
// The signature is the first 16 bytes of the MAC.
type HMACSigner struct {
	key []byte
}

// NewHMACSigner creates an HMACSigner from the raw session key.
// Per [MS-SMB2] 3.1.4.1 the key is the first 16 bytes of the session key,
// zero-padded when the session key is shorter.
func NewHMACSigner(sessionKey []byte) *HMACSigner {
	if len(sessionKey) == 0 {
		return nil
	}
	key := make([]byte, 16)
	copy(key, sessionKey)
	return &HMACSigner{key: key}
}

// Sign computes the HMAC-SHA256 signature for an SMB2 message.
func (s *HMACSigner) Sign(message []byte) [signatureSize]byte {
	var sig [signatureSize]byte
	mac := hmac.New(sha256.New, s.key)
	mac.Write(zeroedSignatureCopy(message))
	copy(sig[:], mac.Sum(nil))
	return sig
}

// Verify checks if the message signature is valid.
func (s *HMACSigner) Verify(message []byte) bool {
	if len(message) < headerSize {
		return false
	}
	want := s.Sign(message)
	return subtle.ConstantTimeCompare(want[:], message[signatureOffset:signatureOffset+signatureSize]) == 1
}

// CMACSigner implements Signer using AES-128-CMAC per RFC 4493, used for
// SMB 3.x sessions.
type CMACSigner struct {
	block cipher.Block
	k1    [16]byte
	k2    [16]byte
}

// NewCMACSigner creates a CMACSigner from a 16-byte signing key.
func NewCMACSigner(key []byte) *CMACSigner {
	if len(key) != 16 {
		return nil
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil
	}
	s := &CMACSigner{block: block}

	// Subkey generation, RFC 4493 section 2.3: L = AES(K, 0^128);
	// K1 = L<<1 (xor Rb on carry); K2 = K1<<1 (xor Rb on carry).
	var l [16]byte
	block.Encrypt(l[:], l[:])
	s.k1 = shiftLeftXorRb(l)
	s.k2 = shiftLeftXorRb(s.k1)
	return s
}

const cmacRb = 0x87

func shiftLeftXorRb(in [16]byte) [16]byte {
	var out [16]byte
	var carry byte
	for i := 15; i >= 0; i-- {
		out[i] = in[i]<<1 | carry
		carry = in[i] >> 7
	}
	if carry != 0 {
		out[15] ^= cmacRb
	}
	return out
}

// mac computes the raw AES-CMAC over data, RFC 4493 section 2.4.
func (s *CMACSigner) mac(data []byte) [16]byte {
	n := (len(data) + 15) / 16
	var lastComplete bool
	if n == 0 {
		n = 1
	} else {
		lastComplete = len(data)%16 == 0
	}

	var last [16]byte
	if lastComplete {
		copy(last[:], data[(n-1)*16:])
		for i := range last {
			last[i] ^= s.k1[i]
		}
	} else {
		rem := data[(n-1)*16:]
		copy(last[:], rem)
		last[len(rem)] = 0x80
		for i := range last {
			last[i] ^= s.k2[i]
		}
	}

	var x [16]byte
	var y [16]byte
	for i := 0; i < n-1; i++ {
		for j := 0; j < 16; j++ {
			y[j] = x[j] ^ data[i*16+j]
		}
		s.block.Encrypt(x[:], y[:])
	}
	for j := 0; j < 16; j++ {
		y[j] = x[j] ^ last[j]
	}
	s.block.Encrypt(x[:], y[:])
	return x
}

// Sign computes the AES-CMAC signature for an SMB2 message.
func (s *CMACSigner) Sign(message []byte) [signatureSize]byte {
	return s.mac(zeroedSignatureCopy(message))
}

// Verify checks if the message signature is valid.
func (s *CMACSigner) Verify(message []byte) bool {
	if len(message) < headerSize {
		return false
	}
	want := s.Sign(message)
	return subtle.ConstantTimeCompare(want[:], message[signatureOffset:signatureOffset+signatureSize]) == 1
}

// GMACSigner implements Signer using AES-128-GMAC, negotiable on SMB 3.1.1.
//
// GMAC is AES-GCM with empty plaintext and the message as AAD. The nonce is
// derived from the header: MessageID (8 bytes LE) followed by 4 bytes whose
// lowest bit is set for server-to-client messages and second bit for CANCEL
// requests, per [MS-SMB2] 3.1.4.1.
type GMACSigner struct {
	aead cipher.AEAD
}

// NewGMACSigner creates a GMACSigner from a 16-byte signing key.
func NewGMACSigner(key []byte) *GMACSigner {
	if len(key) != 16 {
		return nil
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil
	}
	return &GMACSigner{aead: aead}
}

func gmacNonce(message []byte) [12]byte {
	var nonce [12]byte
	copy(nonce[:8], message[messageIDOffset:messageIDOffset+8])

	flags := binary.LittleEndian.Uint32(message[flagsOffset : flagsOffset+4])
	command := binary.LittleEndian.Uint16(message[12:14])
	var role uint32
	if flags&0x00000001 != 0 { // server-to-client
		role |= 0x1
	}
	if types.Command(command) == types.CommandCancel {
		role |= 0x2
	}
	binary.LittleEndian.PutUint32(nonce[8:], role)
	return nonce
}

// Sign computes the GMAC signature for an SMB2 message.
func (s *GMACSigner) Sign(message []byte) [signatureSize]byte {
	var sig [signatureSize]byte
	if len(message) < headerSize {
		return sig
	}
	nonce := gmacNonce(message)
	tag := s.aead.Seal(nil, nonce[:], nil, zeroedSignatureCopy(message))
	copy(sig[:], tag)
	return sig
}

// Verify checks if the message signature is valid.
func (s *GMACSigner) Verify(message []byte) bool {
	if len(message) < headerSize {
		return false
	}
	want := s.Sign(message)
	return subtle.ConstantTimeCompare(want[:], message[signatureOffset:signatureOffset+signatureSize]) == 1
}
