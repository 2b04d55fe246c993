package transform

import (
	"bytes"
	"testing"

	"github.com/marmos91/smbclient/internal/smb/crypto"
	"github.com/marmos91/smbclient/internal/smb/header"
	"github.com/marmos91/smbclient/internal/smb/types"
)

func plainMessage(id uint64, bodyLen int) []byte {
	h := &header.Header{Command: types.CommandWrite, MessageID: id, SessionID: 0x1234}
	body := make([]byte, bodyLen)
	for i := range body {
		body[i] = byte(i % 251)
	}
	return append(h.Encode(), body...)
}

func readyTransformer(t *testing.T, dialect types.Dialect, cipherID uint16, encryptAll bool) *Transformer {
	t.Helper()
	tr := &Transformer{}
	tr.SetDialect(dialect)
	if dialect == types.Dialect0311 {
		tr.ArmPreauth()
	}
	sessionKey := bytes.Repeat([]byte{0x33}, 16)
	keys := crypto.DeriveSessionKeys(sessionKey, dialect, [64]byte(tr.PreauthValue()), cipherID)
	if err := tr.InstallKeys(0x1234, keys, types.SigningAESCMAC, cipherID, encryptAll); err != nil {
		t.Fatalf("install keys: %v", err)
	}
	return tr
}

func TestTransformHeaderRoundTrip(t *testing.T) {
	h := &TransformHeader{
		OriginalMessageSize: 512,
		Flags:               types.TransformFlagEncrypted,
		SessionID:           0xCAFEBABE,
	}
	h.Nonce[0] = 7
	h.Signature[15] = 9
	got, err := DecodeTransformHeader(h.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if *got != *h {
		t.Errorf("round trip:\n got  %+v\n want %+v", got, h)
	}
}

func TestCompressionHeaderRoundTrip(t *testing.T) {
	h := &CompressionHeader{OriginalSize: 9000, Algorithm: types.CompressionLZNT1, Offset: 64}
	got, err := DecodeCompressionHeader(h.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if *got != *h {
		t.Errorf("round trip: %+v", got)
	}
}

func TestPreauthHashDeterministic(t *testing.T) {
	var h PreauthHash
	m1 := []byte("negotiate request")
	m2 := []byte("negotiate response")

	a := h.Update(m1).Update(m2)
	b := h.Update(m1).Update(m2)
	if a != b {
		t.Error("hash chain must be deterministic")
	}
	if a == h.Update(m2).Update(m1) {
		t.Error("hash chain must be order-sensitive")
	}
	if h == (PreauthHash{}.Update(m1)) {
		t.Error("update must change the value")
	}
}

func TestEncryptDecryptRoundTripAllCiphers(t *testing.T) {
	for _, cipherID := range []uint16{
		types.CipherAES128CCM, types.CipherAES128GCM,
		types.CipherAES256CCM, types.CipherAES256GCM,
	} {
		t.Run(types.CipherName(cipherID), func(t *testing.T) {
			tr := readyTransformer(t, types.Dialect0311, cipherID, true)
			// The peer decrypts with our encryption key: give the test
			// transformer mirrored keys.
			peer := &Transformer{}
			peer.SetDialect(types.Dialect0311)
			sessionKey := bytes.Repeat([]byte{0x33}, 16)
			keys := crypto.DeriveSessionKeys(sessionKey, types.Dialect0311, [64]byte(tr.PreauthValue()), cipherID)
			mirrored := &crypto.SessionKeys{
				SigningKey:    keys.SigningKey,
				EncryptionKey: keys.DecryptionKey,
				DecryptionKey: keys.EncryptionKey,
			}
			if err := peer.InstallKeys(0x1234, mirrored, types.SigningAESCMAC, cipherID, true); err != nil {
				t.Fatalf("peer keys: %v", err)
			}

			msg := plainMessage(7, 200)
			frame, err := tr.TransformOutgoing(append([]byte{}, msg...), Options{})
			if err != nil {
				t.Fatalf("outgoing: %v", err)
			}
			if frame[0] != 0xFD {
				t.Fatalf("expected encrypted envelope, got magic 0x%02X", frame[0])
			}

			parts, err := peer.TransformIncoming(frame)
			if err != nil {
				t.Fatalf("incoming: %v", err)
			}
			if len(parts) != 1 || !bytes.Equal(parts[0], msg) {
				t.Error("decrypted payload differs from original")
			}

			// Tampering any byte must surface signature verification failure.
			for i := 0; i < len(frame); i += 13 {
				frame[i] ^= 0x01
				if _, err := peer.TransformIncoming(frame); err == nil {
					t.Errorf("tamper at %d accepted", i)
				}
				frame[i] ^= 0x01
			}
		})
	}
}

func TestSigningRoundTrip(t *testing.T) {
	tr := readyTransformer(t, types.Dialect0302, 0, false)

	msg := plainMessage(9, 64)
	frame, err := tr.TransformOutgoing(append([]byte{}, msg...), Options{})
	if err != nil {
		t.Fatalf("outgoing: %v", err)
	}
	if frame[0] != 0xFE {
		t.Fatalf("plain message expected, got 0x%02X", frame[0])
	}
	hdr, _ := header.Parse(frame)
	if !hdr.IsSigned() {
		t.Fatal("signed flag not set")
	}

	// The same keys verify the inbound direction.
	if _, err := tr.TransformIncoming(frame); err != nil {
		t.Fatalf("verify: %v", err)
	}

	frame[70] ^= 0xFF
	if _, err := tr.TransformIncoming(frame); err != ErrSignatureVerificationFailed {
		t.Errorf("tampered frame: err = %v", err)
	}
}

func TestSkipSignLeavesNegotiateClean(t *testing.T) {
	tr := readyTransformer(t, types.Dialect0311, types.CipherAES128GCM, true)
	msg := plainMessage(1, 32)
	frame, err := tr.TransformOutgoing(append([]byte{}, msg...), Options{SkipSign: true})
	if err != nil {
		t.Fatalf("outgoing: %v", err)
	}
	if frame[0] != 0xFE {
		t.Error("SkipSign must bypass encryption")
	}
	hdr, _ := header.Parse(frame)
	if hdr.IsSigned() {
		t.Error("SkipSign must bypass signing")
	}
}

func TestLZNT1RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"Empty", nil},
		{"Tiny", []byte("abc")},
		{"Repetitive", bytes.Repeat([]byte("SMB2 compression test pattern. "), 400)},
		{"AllSame", bytes.Repeat([]byte{0x00}, 10000)},
		{"MultiChunk", bytes.Repeat([]byte("0123456789abcdef"), 1024)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compressed := CompressLZNT1(tt.data)
			got, err := DecompressLZNT1(compressed, len(tt.data))
			if err != nil {
				t.Fatalf("decompress: %v", err)
			}
			if !bytes.Equal(got, tt.data) {
				t.Errorf("round trip mismatch: got %d bytes, want %d", len(got), len(tt.data))
			}
		})
	}
}

func TestLZNT1Incompressible(t *testing.T) {
	data := make([]byte, 3000)
	seed := uint32(0x12345678)
	for i := range data {
		seed = seed*1664525 + 1013904223
		data[i] = byte(seed >> 24)
	}
	compressed := CompressLZNT1(data)
	got, err := DecompressLZNT1(compressed, len(data))
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("incompressible data must still round trip")
	}
}

func TestPatternV1(t *testing.T) {
	payload := EncodePatternV1(0xAB, 500)
	out, err := DecodePatternV1(payload, 1000)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 500 || out[0] != 0xAB || out[499] != 0xAB {
		t.Errorf("expansion wrong: %d bytes", len(out))
	}
	if _, err := DecodePatternV1(payload, 100); err == nil {
		t.Error("oversized expansion must fail")
	}
	if _, err := DecodePatternV1([]byte{1, 2, 3}, 100); err == nil {
		t.Error("short payload must fail")
	}
}

func TestCompressedEnvelopeRoundTrip(t *testing.T) {
	tr := &Transformer{}
	tr.SetDialect(types.Dialect0311)
	tr.SetCompression([]uint16{types.CompressionLZNT1})

	// Compressible payload above the threshold.
	msg := plainMessage(3, 8000)
	frame, err := tr.TransformOutgoing(append([]byte{}, msg...), Options{})
	if err != nil {
		t.Fatalf("outgoing: %v", err)
	}
	if frame[0] != 0xFC {
		t.Fatalf("expected compressed envelope, got 0x%02X", frame[0])
	}
	if len(frame) >= len(msg) {
		t.Error("compression did not shrink the frame")
	}

	parts, err := tr.TransformIncoming(frame)
	if err != nil {
		t.Fatalf("incoming: %v", err)
	}
	if len(parts) != 1 || !bytes.Equal(parts[0], msg) {
		t.Error("decompressed payload differs")
	}
}

func TestSmallPayloadNotCompressed(t *testing.T) {
	tr := &Transformer{}
	tr.SetDialect(types.Dialect0311)
	tr.SetCompression([]uint16{types.CompressionLZNT1})

	msg := plainMessage(4, 100)
	frame, err := tr.TransformOutgoing(append([]byte{}, msg...), Options{})
	if err != nil {
		t.Fatalf("outgoing: %v", err)
	}
	if frame[0] != 0xFE {
		t.Error("small payloads must not be compressed")
	}
}

func TestPre311NoCompression(t *testing.T) {
	tr := &Transformer{}
	tr.SetDialect(types.Dialect0302)
	tr.SetCompression([]uint16{types.CompressionLZNT1})

	msg := plainMessage(5, 8000)
	frame, err := tr.TransformOutgoing(append([]byte{}, msg...), Options{})
	if err != nil {
		t.Fatalf("outgoing: %v", err)
	}
	if frame[0] != 0xFE {
		t.Error("compression requires dialect 3.1.1")
	}
}

func TestChainedPatternDecompress(t *testing.T) {
	tr := &Transformer{}
	tr.SetDialect(types.Dialect0311)

	// Hand-build a chained frame: NONE segment "head" + pattern run.
	hdr := &CompressionHeader{
		OriginalSize: 4 + 100,
		Flags:        types.CompressionTransformFlagChained,
	}
	frame := hdr.Encode()[:8] // chained prologue: magic + original size
	// Segment 1: NONE, chained flag (it sits at the header Flags offset), 4 bytes.
	frame = append(frame, 0x00, 0x00, 0x01, 0x00, 0x04, 0x00, 0x00, 0x00)
	frame = append(frame, 0xFE, 'S', 'M', 'B')
	// Segment 2: PATTERN_V1, 8 bytes payload, 100 repetitions of 0x00.
	frame = append(frame, 0x04, 0x00, 0x00, 0x00, 0x08, 0x00, 0x00, 0x00)
	frame = append(frame, EncodePatternV1(0x00, 100)...)

	out, err := tr.decompress(frame)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if len(out) != 104 {
		t.Errorf("output = %d bytes, want 104", len(out))
	}
	if !bytes.Equal(out[:4], []byte{0xFE, 'S', 'M', 'B'}) {
		t.Error("NONE segment corrupted")
	}
}

func TestMagicOf(t *testing.T) {
	if _, err := MagicOf([]byte{0xFE}); err == nil {
		t.Error("short frame must error")
	}
	if _, err := MagicOf([]byte{0xFB, 'S', 'M', 'B'}); err == nil {
		t.Error("unknown magic must error")
	}
	for _, m := range []byte{0xFE, 0xFD, 0xFC} {
		got, err := MagicOf([]byte{m, 'S', 'M', 'B'})
		if err != nil || got != m {
			t.Errorf("magic 0x%02X: got 0x%02X err %v", m, got, err)
		}
	}
}
