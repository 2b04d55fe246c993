// Package crypto implements the cryptographic primitives of the SMB3
// security stack: SP800-108 counter-mode key derivation, message signing
// (HMAC-SHA256, AES-CMAC, AES-GMAC), and transform encryption
// (AES-128/256-CCM, AES-128/256-GCM).
//
// Reference: [SP800-108] Section 5.1, [MS-SMB2] Sections 3.1.4.1, 3.1.4.2.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"

	"github.com/marmos91/smbclient/internal/smb/types"
)

// KeyPurpose identifies the purpose of a derived key.
type KeyPurpose uint8

const (
	// SigningKeyPurpose derives the session signing key.
	SigningKeyPurpose KeyPurpose = iota
	// EncryptionKeyPurpose derives the client-to-server cipher key.
	EncryptionKeyPurpose
	// DecryptionKeyPurpose derives the server-to-client cipher key.
	DecryptionKeyPurpose
	// ApplicationKeyPurpose derives the application key for higher-layer
	// protocols.
	ApplicationKeyPurpose
)

// String returns a human-readable name for the key purpose.
func (p KeyPurpose) String() string {
	switch p {
	case SigningKeyPurpose:
		return "Signing"
	case EncryptionKeyPurpose:
		return "Encryption"
	case DecryptionKeyPurpose:
		return "Decryption"
	case ApplicationKeyPurpose:
		return "Application"
	default:
		return "Unknown"
	}
}

// DeriveKey implements SP800-108 Counter Mode KDF with HMAC-SHA256 PRF.
//
// Wire format: counter(4 bytes BE) || label || 0x00 || context || L(4 bytes BE)
//
// For SMB3, a single iteration (counter=1) with HMAC-SHA256 produces 256
// bits, which covers both 128-bit and 256-bit keys.
func DeriveKey(ki, label, context []byte, keyLenBits uint32) []byte {
	h := hmac.New(sha256.New, ki)

	var counter [4]byte
	binary.BigEndian.PutUint32(counter[:], 1)
	h.Write(counter[:])

	// Label includes its null terminator as part of the byte literal.
	h.Write(label)

	h.Write([]byte{0x00})
	h.Write(context)

	var length [4]byte
	binary.BigEndian.PutUint32(length[:], keyLenBits)
	h.Write(length[:])

	result := h.Sum(nil)
	return result[:keyLenBits/8]
}

// Label/context constants per [MS-SMB2] Section 3.1.4.2. Each label includes
// its null terminator.
var (
	// SMB 3.0/3.0.2 labels and contexts
	label30Signing    = []byte("SMB2AESCMAC\x00")
	label30Encryption = []byte("SMB2AESCCM\x00")
	label30Decryption = []byte("SMB2AESCCM\x00")
	label30App        = []byte("SMB2APP\x00")

	ctx30Signing    = []byte("SmbSign\x00")
	ctx30Encryption = []byte("ServerIn \x00") // note trailing space before null
	ctx30Decryption = []byte("ServerOut\x00")
	ctx30App        = []byte("SmbRpc\x00")

	// SMB 3.1.1 labels (context is always the preauth integrity hash)
	label311Signing    = []byte("SMBSigningKey\x00")
	label311Encryption = []byte("SMBC2SCipherKey\x00")
	label311Decryption = []byte("SMBS2CCipherKey\x00")
	label311App        = []byte("SMBAppKey\x00")
)

// LabelAndContext returns the label and context byte slices for the given
// key purpose and dialect.
//
// For SMB 3.0/3.0.2 constant label/context strings are used; for SMB 3.1.1
// the frozen preauth integrity hash is the context for every purpose.
func LabelAndContext(purpose KeyPurpose, dialect types.Dialect, preauthHash [64]byte) (label, context []byte) {
	if dialect == types.Dialect0311 {
		ctx := make([]byte, 64)
		copy(ctx, preauthHash[:])

		switch purpose {
		case SigningKeyPurpose:
			return label311Signing, ctx
		case EncryptionKeyPurpose:
			return label311Encryption, ctx
		case DecryptionKeyPurpose:
			return label311Decryption, ctx
		case ApplicationKeyPurpose:
			return label311App, ctx
		}
	}

	switch purpose {
	case SigningKeyPurpose:
		return label30Signing, ctx30Signing
	case EncryptionKeyPurpose:
		return label30Encryption, ctx30Encryption
	case DecryptionKeyPurpose:
		return label30Decryption, ctx30Decryption
	case ApplicationKeyPurpose:
		return label30App, ctx30App
	}

	return nil, nil
}

// SessionKeys holds the full set of keys derived for one session.
type SessionKeys struct {
	SigningKey     []byte
	EncryptionKey  []byte
	DecryptionKey  []byte
	ApplicationKey []byte
}

// DeriveSessionKeys derives all four session keys from the authentication
// session key for the given dialect, cipher, and frozen preauth hash.
//
// For dialects below 3.0 only the signing key is populated (the raw session
// key; HMAC-SHA256 needs no KDF). Cipher key length follows the negotiated
// cipher: 256 bits for the AES-256 ciphers, 128 otherwise.
func DeriveSessionKeys(sessionKey []byte, dialect types.Dialect, preauthHash [64]byte, cipherID uint16) *SessionKeys {
	keys := &SessionKeys{}

	if dialect < types.Dialect0300 {
		keys.SigningKey = make([]byte, len(sessionKey))
		copy(keys.SigningKey, sessionKey)
		return keys
	}

	sigLabel, sigCtx := LabelAndContext(SigningKeyPurpose, dialect, preauthHash)
	keys.SigningKey = DeriveKey(sessionKey, sigLabel, sigCtx, 128)

	encKeyBits := uint32(128)
	if cipherID == types.CipherAES256CCM || cipherID == types.CipherAES256GCM {
		encKeyBits = 256
	}

	encLabel, encCtx := LabelAndContext(EncryptionKeyPurpose, dialect, preauthHash)
	keys.EncryptionKey = DeriveKey(sessionKey, encLabel, encCtx, encKeyBits)

	decLabel, decCtx := LabelAndContext(DecryptionKeyPurpose, dialect, preauthHash)
	keys.DecryptionKey = DeriveKey(sessionKey, decLabel, decCtx, encKeyBits)

	appLabel, appCtx := LabelAndContext(ApplicationKeyPurpose, dialect, preauthHash)
	keys.ApplicationKey = DeriveKey(sessionKey, appLabel, appCtx, 128)

	return keys
}

// Destroy zeros all key material.
func (k *SessionKeys) Destroy() {
	if k == nil {
		return
	}
	clear(k.SigningKey)
	clear(k.EncryptionKey)
	clear(k.DecryptionKey)
	clear(k.ApplicationKey)
}
