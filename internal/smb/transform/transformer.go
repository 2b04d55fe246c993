package transform

import (
	"errors"
	"fmt"
	"sync"

	"github.com/marmos91/smbclient/internal/logger"
	"github.com/marmos91/smbclient/internal/metrics"
	"github.com/marmos91/smbclient/internal/smb/crypto"
	"github.com/marmos91/smbclient/internal/smb/header"
	"github.com/marmos91/smbclient/internal/smb/smbenc"
	"github.com/marmos91/smbclient/internal/smb/types"
)

// ErrSignatureVerificationFailed is returned when an incoming frame fails
// signature or AEAD verification. It is fatal to the connection.
var ErrSignatureVerificationFailed = errors.New("transform: signature verification failed")

// compressionThreshold is the minimum payload size worth compressing.
const compressionThreshold = 4096

// Options adjusts the handling of a single outgoing message.
type Options struct {
	// Sign forces signing of this message once keys are installed, even when
	// signing is turned off for the session (unused by the client today;
	// session state drives signing).
	Sign bool

	// Encrypt forces encryption of this message (e.g. per-tree encryption).
	Encrypt bool

	// SkipSign suppresses signing (negotiate and first session-setup).
	SkipSign bool
}

// Transformer holds the session-bound cryptographic state and converts
// between plain SMB2 messages and the frames that travel on the wire.
//
// The zero value is a transformer with no keys: it passes messages through
// and accumulates the pre-auth hash once armed. State transitions happen in
// lockstep with the connection FSM: ArmPreauth at 3.1.1 negotiate,
// InstallKeys at session establishment.
type Transformer struct {
	mu sync.Mutex

	dialect types.Dialect

	// Pre-auth integrity chain; accumulating is true between the 3.1.1
	// NEGOTIATE and session establishment.
	preauth      PreauthHash
	accumulating bool

	// Session state, installed once by InstallKeys.
	sessionID    uint64
	signer       crypto.Signer
	encryptor    crypto.Cipher
	decryptor    crypto.Cipher
	cipherID     uint16
	nonces       crypto.NonceGenerator
	signingOn    bool
	encryptAll   bool

	// Compression state (3.1.1 only).
	compressionAlgs []uint16
}

// SetDialect records the negotiated dialect.
func (t *Transformer) SetDialect(d types.Dialect) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dialect = d
}

// ArmPreauth starts pre-auth hash accumulation (dialect 3.1.1 selected).
// The chain starts at H(0) = 64 zero bytes.
func (t *Transformer) ArmPreauth() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.preauth = PreauthHash{}
	t.accumulating = true
}

// DisarmPreauth stops accumulation without installing keys (the server
// selected a pre-3.1.1 dialect, or the session ends up guest).
func (t *Transformer) DisarmPreauth() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.accumulating = false
}

// AccumulatePreauth folds one raw negotiate/session-setup frame into the
// chain. Outgoing frames accumulate inside TransformOutgoing; incoming
// negotiate and non-final session-setup responses are folded in explicitly
// by the connection, which knows which legs belong to the chain. No-op
// unless armed.
func (t *Transformer) AccumulatePreauth(message []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.accumulating {
		t.preauth = t.preauth.Update(message)
	}
}

// PreauthValue returns the current chain value.
func (t *Transformer) PreauthValue() PreauthHash {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.preauth
}

// SetCompression enables outbound compression with the negotiated
// algorithms.
func (t *Transformer) SetCompression(algs []uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.compressionAlgs = algs
}

// InstallKeys freezes the pre-auth hash, installs the signer and cipher
// pair for the session, and enables signing. Derived keys are read-only
// afterwards; rotation is not supported.
func (t *Transformer) InstallKeys(sessionID uint64, keys *crypto.SessionKeys, signingAlgID, cipherID uint16, encryptAll bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.accumulating = false
	t.sessionID = sessionID
	t.signer = crypto.NewSigner(t.dialect, signingAlgID, keys.SigningKey)
	t.signingOn = t.signer != nil
	t.cipherID = cipherID
	t.encryptAll = encryptAll

	if t.dialect.SupportsEncryption() && cipherID != 0 && len(keys.EncryptionKey) > 0 {
		enc, err := crypto.NewCipher(cipherID, keys.EncryptionKey)
		if err != nil {
			return fmt.Errorf("install encryptor: %w", err)
		}
		dec, err := crypto.NewCipher(cipherID, keys.DecryptionKey)
		if err != nil {
			return fmt.Errorf("install decryptor: %w", err)
		}
		t.encryptor = enc
		t.decryptor = dec
	}
	return nil
}

// DisableSigning turns signing off (unsigned guest access, explicitly
// configured).
func (t *Transformer) DisableSigning() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.signingOn = false
}

// SessionReady returns true once keys are installed.
func (t *Transformer) SessionReady() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.signer != nil
}

// CanEncrypt returns true if an encryptor is installed.
func (t *Transformer) CanEncrypt() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.encryptor != nil
}

// TransformOutgoing converts one serialized plain message into the frame to
// put on the wire, applying (in order) pre-auth accumulation, signing,
// encryption, and compression.
func (t *Transformer) TransformOutgoing(message []byte, opts Options) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.accumulating {
		t.preauth = t.preauth.Update(message)
	}

	encrypt := t.encryptor != nil && !opts.SkipSign && (t.encryptAll || opts.Encrypt)

	// An encrypted message is authenticated by the AEAD; no separate
	// signature is applied.
	if t.signer != nil && (t.signingOn || opts.Sign) && !encrypt && !opts.SkipSign {
		crypto.SignMessage(t.signer, message)
	}

	out := message
	if encrypt {
		frame, err := t.encryptLocked(message)
		if err != nil {
			return nil, err
		}
		out = frame
		metrics.FramesEncrypted.Inc()
	}

	if t.shouldCompressLocked(len(out)) {
		if compressed, ok := t.compressLocked(out); ok {
			out = compressed
			metrics.FramesCompressed.Inc()
		}
	}

	return out, nil
}

func (t *Transformer) encryptLocked(message []byte) ([]byte, error) {
	nonce := t.nonces.Next()
	hdr := &TransformHeader{
		OriginalMessageSize: uint32(len(message)),
		SessionID:           t.sessionID,
	}
	copy(hdr.Nonce[:], nonce[:])
	if t.dialect == types.Dialect0311 {
		hdr.Flags = types.TransformFlagEncrypted
	} else {
		hdr.Flags = t.cipherID
	}

	// GCM reads one byte past the 11-byte nonce; keep the padding zero.
	encoded := hdr.Encode()
	aad := encoded[aadOffset:TransformHeaderSize]
	ciphertext, tag, err := t.encryptor.Seal(message, hdr.Nonce[:], aad)
	if err != nil {
		return nil, fmt.Errorf("encrypt outgoing: %w", err)
	}
	hdr.Signature = tag

	w := smbenc.NewWriter(TransformHeaderSize + len(ciphertext))
	w.WriteBytes(hdr.Encode())
	w.WriteBytes(ciphertext)
	return w.Bytes(), nil
}

func (t *Transformer) shouldCompressLocked(size int) bool {
	return t.dialect.SupportsCompression() &&
		len(t.compressionAlgs) > 0 &&
		size > compressionThreshold
}

// compressLocked wraps data in a compressed envelope when it actually
// shrinks. Only LZNT1 is produced; the other negotiated algorithms are
// accepted inbound.
func (t *Transformer) compressLocked(data []byte) ([]byte, bool) {
	if !containsAlg(t.compressionAlgs, types.CompressionLZNT1) {
		return nil, false
	}
	compressed := CompressLZNT1(data)
	if len(compressed)+CompressionHeaderSize >= len(data) {
		return nil, false
	}
	hdr := &CompressionHeader{
		OriginalSize: uint32(len(data)),
		Algorithm:    types.CompressionLZNT1,
	}
	w := smbenc.NewWriter(CompressionHeaderSize + len(compressed))
	w.WriteBytes(hdr.Encode())
	w.WriteBytes(compressed)
	return w.Bytes(), true
}

func containsAlg(algs []uint16, alg uint16) bool {
	for _, a := range algs {
		if a == alg {
			return true
		}
	}
	return false
}

// TransformIncoming converts one received frame back into plain messages.
// A decrypted payload may be a compound chain, so the result is a slice.
func (t *Transformer) TransformIncoming(frame []byte) ([][]byte, error) {
	magic, err := MagicOf(frame)
	if err != nil {
		return nil, err
	}

	switch magic {
	case 0xFC:
		plain, err := t.decompress(frame)
		if err != nil {
			return nil, err
		}
		return t.TransformIncoming(plain)

	case 0xFD:
		plain, err := t.decrypt(frame)
		if err != nil {
			return nil, err
		}
		return t.splitAndVerify(plain, false)

	default:
		return t.splitAndVerify(frame, true)
	}
}

// splitAndVerify walks a possible compound chain and verifies signatures on
// plain (non-decrypted) messages.
func (t *Transformer) splitAndVerify(frame []byte, verify bool) ([][]byte, error) {
	parts, err := walkCompound(frame)
	if err != nil {
		return nil, err
	}
	if verify {
		for _, part := range parts {
			if err := t.verifySignature(part); err != nil {
				return nil, err
			}
		}
	}
	return parts, nil
}

func (t *Transformer) verifySignature(message []byte) error {
	t.mu.Lock()
	signer := t.signer
	signingOn := t.signingOn
	t.mu.Unlock()

	if signer == nil || !signingOn {
		return nil
	}
	hdr, err := header.Parse(message)
	if err != nil {
		return err
	}
	// Session-setup responses before establishment and error interim
	// responses arrive unsigned; everything else must verify.
	if !hdr.IsSigned() {
		if hdr.Command == types.CommandSessionSetup || hdr.Status == types.StatusPending {
			return nil
		}
		if hdr.SessionID == 0 {
			return nil
		}
		logger.Warn("unsigned message on signed session",
			"command", hdr.Command.String(), "messageId", hdr.MessageID)
		return ErrSignatureVerificationFailed
	}
	if !signer.Verify(message) {
		logger.Warn("signature verification failed",
			"command", hdr.Command.String(), "messageId", hdr.MessageID)
		return ErrSignatureVerificationFailed
	}
	return nil
}

func (t *Transformer) decrypt(frame []byte) ([]byte, error) {
	if len(frame) < TransformHeaderSize {
		return nil, fmt.Errorf("transform frame too short: %d bytes", len(frame))
	}
	hdr, err := DecodeTransformHeader(frame[:TransformHeaderSize])
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	decryptor := t.decryptor
	sessionID := t.sessionID
	t.mu.Unlock()

	if decryptor == nil {
		return nil, fmt.Errorf("received encrypted frame with no decryption key")
	}
	if hdr.SessionID != sessionID {
		return nil, fmt.Errorf("encrypted frame for unknown session 0x%X", hdr.SessionID)
	}

	aad := frame[aadOffset:TransformHeaderSize]
	plain, err := decryptor.Open(frame[TransformHeaderSize:], hdr.Signature, hdr.Nonce[:], aad)
	if err != nil {
		return nil, ErrSignatureVerificationFailed
	}
	if len(plain) != int(hdr.OriginalMessageSize) {
		return nil, fmt.Errorf("decrypted size %d does not match declared %d", len(plain), hdr.OriginalMessageSize)
	}
	return plain, nil
}

// decompress unwraps a compressed envelope, chained or not.
func (t *Transformer) decompress(frame []byte) ([]byte, error) {
	if len(frame) < CompressionHeaderSize {
		return nil, fmt.Errorf("compression frame too short: %d bytes", len(frame))
	}
	hdr, err := DecodeCompressionHeader(frame[:CompressionHeaderSize])
	if err != nil {
		return nil, err
	}

	if hdr.IsChained() {
		return t.decompressChained(frame, hdr)
	}

	// Unchained: Offset bytes of raw prefix follow the header (before the
	// compressed remainder).
	payload := frame[CompressionHeaderSize:]
	if int(hdr.Offset) > len(payload) {
		return nil, fmt.Errorf("compression offset %d beyond payload %d", hdr.Offset, len(payload))
	}
	prefix := payload[:hdr.Offset]
	rest, err := decompressOne(hdr.Algorithm, payload[hdr.Offset:], int(hdr.OriginalSize))
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(prefix)+len(rest))
	out = append(out, prefix...)
	out = append(out, rest...)
	return out, nil
}

// decompressChained walks the per-segment headers after the 8-byte chained
// prologue: each segment is Algorithm(2) Flags(2) Length(4) then, for
// algorithms other than NONE and pattern-v1, OriginalPayloadSize(4), and
// the payload.
func (t *Transformer) decompressChained(frame []byte, hdr *CompressionHeader) ([]byte, error) {
	r := smbenc.NewReader(frame)
	r.Skip(8) // ProtocolID + OriginalCompressedSegmentSize

	var out []byte
	for r.Remaining() > 0 {
		alg := r.ReadUint16()
		r.Skip(2) // Flags
		length := r.ReadUint32()
		if r.Err() != nil {
			return nil, fmt.Errorf("chained compression segment: %w", r.Err())
		}
		payload := r.ReadBytes(int(length))
		if r.Err() != nil {
			return nil, fmt.Errorf("chained compression segment: %w", r.Err())
		}

		switch alg {
		case types.CompressionNone:
			out = append(out, payload...)
		case types.CompressionPatternV1:
			expanded, err := DecodePatternV1(payload, int(hdr.OriginalSize))
			if err != nil {
				return nil, err
			}
			out = append(out, expanded...)
		default:
			if len(payload) < 4 {
				return nil, fmt.Errorf("chained segment missing original size")
			}
			origSize := int(uint32(payload[0]) | uint32(payload[1])<<8 | uint32(payload[2])<<16 | uint32(payload[3])<<24)
			expanded, err := decompressOne(alg, payload[4:], origSize)
			if err != nil {
				return nil, err
			}
			out = append(out, expanded...)
		}
		if len(out) > int(hdr.OriginalSize) {
			return nil, fmt.Errorf("chained output exceeds declared size %d", hdr.OriginalSize)
		}
	}
	return out, nil
}

func decompressOne(alg uint16, data []byte, originalSize int) ([]byte, error) {
	switch alg {
	case types.CompressionNone:
		return data, nil
	case types.CompressionLZNT1:
		return DecompressLZNT1(data, originalSize)
	default:
		return nil, fmt.Errorf("unsupported compression algorithm %s", types.CompressionName(alg))
	}
}

// walkCompound mirrors msg.WalkChain without importing it (transform sits
// below msg in the package graph).
func walkCompound(frame []byte) ([][]byte, error) {
	var out [][]byte
	rest := frame
	for {
		if len(rest) < header.Size {
			return nil, fmt.Errorf("compound chain: element shorter than header: %d bytes", len(rest))
		}
		hdr, err := header.Parse(rest)
		if err != nil {
			return nil, err
		}
		if hdr.NextCommand == 0 {
			return append(out, rest), nil
		}
		if hdr.NextCommand < header.Size || int(hdr.NextCommand) > len(rest) {
			return nil, fmt.Errorf("compound chain: next-command offset %d out of bounds", hdr.NextCommand)
		}
		out = append(out, rest[:hdr.NextCommand])
		rest = rest[hdr.NextCommand:]
	}
}
