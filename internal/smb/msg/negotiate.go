// Package msg provides request building and response parsing for every SMB2
// command this client issues, plus compound chain assembly and the SMB1
// multi-protocol negotiation probe.
//
// Each request type serializes its command body with Encode; each response
// type is produced by a Decode function that validates the leading
// structure-size constant and every offset/length pair against the bounded
// message buffer. Offset fields are relative to the start of the SMB2
// header; bodies begin at offset 64.
package msg

import (
	"fmt"

	"github.com/marmos91/smbclient/internal/smb/header"
	"github.com/marmos91/smbclient/internal/smb/smbenc"
	"github.com/marmos91/smbclient/internal/smb/types"
)

// NegotiateRequest is the SMB2 NEGOTIATE request.
// [MS-SMB2] Section 2.2.3
type NegotiateRequest struct {
	SecurityMode SecurityModeField
	Capabilities types.Capabilities
	ClientGUID   [16]byte
	Dialects     []types.Dialect

	// Contexts are appended for 3.1.1 negotiation only.
	Contexts []NegotiateContext
}

// SecurityModeField is the 2-byte security mode as carried in NEGOTIATE.
type SecurityModeField = types.SecurityMode

const negotiateRequestStructureSize = 36

// Encode serializes the NEGOTIATE request body.
func (r *NegotiateRequest) Encode() []byte {
	w := smbenc.NewWriter(negotiateRequestStructureSize + len(r.Dialects)*2 + 128)
	w.WriteUint16(negotiateRequestStructureSize)
	w.WriteUint16(uint16(len(r.Dialects)))
	w.WriteUint16(uint16(r.SecurityMode))
	w.WriteUint16(0) // Reserved
	w.WriteUint32(uint32(r.Capabilities))
	w.WriteBytes(r.ClientGUID[:])

	// NegotiateContextOffset/Count share bytes with ClientStartTime for
	// pre-3.1.1 dialects; patched below when contexts are present.
	ctxOffsetPos := w.Len()
	w.WriteUint32(0) // NegotiateContextOffset
	w.WriteUint16(uint16(len(r.Contexts)))
	w.WriteUint16(0) // Reserved2

	for _, d := range r.Dialects {
		w.WriteUint16(uint16(d))
	}

	if len(r.Contexts) > 0 {
		w.Pad(8)
		w.PatchUint32(ctxOffsetPos, uint32(header.Size+w.Len()))
		encodeNegotiateContexts(w, r.Contexts)
	}

	return w.Bytes()
}

// NegotiateResponse is the SMB2 NEGOTIATE response.
// [MS-SMB2] Section 2.2.4
type NegotiateResponse struct {
	SecurityMode    types.SecurityMode
	DialectRevision types.Dialect
	ServerGUID      [16]byte
	Capabilities    types.Capabilities
	MaxTransactSize uint32
	MaxReadSize     uint32
	MaxWriteSize    uint32
	SystemTime      uint64
	ServerStartTime uint64
	SecurityBuffer  []byte
	Contexts        []NegotiateContext
}

const negotiateResponseStructureSize = 65

// DecodeNegotiateResponse parses a NEGOTIATE response body. The full
// message (header included) is required to resolve header-relative offsets.
func DecodeNegotiateResponse(message []byte) (*NegotiateResponse, error) {
	if len(message) < header.Size {
		return nil, smbenc.ErrShortRead
	}
	r := smbenc.NewReader(message)
	r.Skip(header.Size)

	r.ExpectStructureSize("NEGOTIATE response", negotiateResponseStructureSize)
	resp := &NegotiateResponse{}
	resp.SecurityMode = types.SecurityMode(r.ReadUint16())
	resp.DialectRevision = types.Dialect(r.ReadUint16())
	ctxCount := r.ReadUint16()
	guid := r.ReadBytes(16)
	resp.Capabilities = types.Capabilities(r.ReadUint32())
	resp.MaxTransactSize = r.ReadUint32()
	resp.MaxReadSize = r.ReadUint32()
	resp.MaxWriteSize = r.ReadUint32()
	resp.SystemTime = r.ReadUint64()
	resp.ServerStartTime = r.ReadUint64()
	secOffset := r.ReadUint16()
	secLength := r.ReadUint16()
	ctxOffset := r.ReadUint32()
	if r.Err() != nil {
		return nil, fmt.Errorf("negotiate response: %w", r.Err())
	}
	copy(resp.ServerGUID[:], guid)

	if secLength > 0 {
		sub := r.Sub(int(secOffset), int(secLength))
		resp.SecurityBuffer = sub.ReadBytes(int(secLength))
		if r.Err() != nil {
			return nil, fmt.Errorf("negotiate response security buffer: %w", r.Err())
		}
	}

	if resp.DialectRevision == types.Dialect0311 && ctxCount > 0 {
		sub := r.Sub(int(ctxOffset), len(message)-int(ctxOffset))
		ctxs, err := decodeNegotiateContexts(sub, int(ctxCount))
		if err != nil {
			return nil, fmt.Errorf("negotiate response contexts: %w", err)
		}
		resp.Contexts = ctxs
	}

	return resp, nil
}

// NegotiateContext is a single SMB2 negotiate context.
// [MS-SMB2] Section 2.2.3.1
type NegotiateContext struct {
	ContextType uint16
	Data        []byte
}

// encodeNegotiateContexts emits contexts with 8-byte alignment between them.
func encodeNegotiateContexts(w *smbenc.Writer, ctxs []NegotiateContext) {
	for i, ctx := range ctxs {
		if i > 0 {
			w.Pad(8)
		}
		w.WriteUint16(ctx.ContextType)
		w.WriteUint16(uint16(len(ctx.Data)))
		w.WriteUint32(0) // Reserved
		w.WriteBytes(ctx.Data)
	}
}

// decodeNegotiateContexts walks count contexts within the bounded reader.
func decodeNegotiateContexts(r *smbenc.Reader, count int) ([]NegotiateContext, error) {
	ctxs := make([]NegotiateContext, 0, count)
	for i := 0; i < count; i++ {
		if i > 0 {
			r.Align(8)
		}
		ctxType := r.ReadUint16()
		dataLen := r.ReadUint16()
		r.Skip(4) // Reserved
		data := r.ReadBytes(int(dataLen))
		if r.Err() != nil {
			return nil, r.Err()
		}
		ctxs = append(ctxs, NegotiateContext{ContextType: ctxType, Data: data})
	}
	return ctxs, nil
}

// FindContext returns the first context of the given type, or nil.
func FindContext(ctxs []NegotiateContext, ctxType uint16) *NegotiateContext {
	for i := range ctxs {
		if ctxs[i].ContextType == ctxType {
			return &ctxs[i]
		}
	}
	return nil
}

// PreauthIntegrityCaps is SMB2_PREAUTH_INTEGRITY_CAPABILITIES.
// [MS-SMB2] Section 2.2.3.1.1
type PreauthIntegrityCaps struct {
	HashAlgorithms []uint16
	Salt           []byte
}

// Encode serializes the capabilities to wire format.
func (p PreauthIntegrityCaps) Encode() []byte {
	w := smbenc.NewWriter(4 + len(p.HashAlgorithms)*2 + len(p.Salt))
	w.WriteUint16(uint16(len(p.HashAlgorithms)))
	w.WriteUint16(uint16(len(p.Salt)))
	for _, alg := range p.HashAlgorithms {
		w.WriteUint16(alg)
	}
	w.WriteBytes(p.Salt)
	return w.Bytes()
}

// DecodePreauthIntegrityCaps parses the capabilities from wire data.
func DecodePreauthIntegrityCaps(data []byte) (PreauthIntegrityCaps, error) {
	r := smbenc.NewReader(data)
	algCount := r.ReadUint16()
	saltLen := r.ReadUint16()
	if r.Err() != nil {
		return PreauthIntegrityCaps{}, fmt.Errorf("preauth integrity caps: %w", r.Err())
	}

	algs := make([]uint16, algCount)
	for i := range algs {
		algs[i] = r.ReadUint16()
	}
	salt := r.ReadBytes(int(saltLen))
	if r.Err() != nil {
		return PreauthIntegrityCaps{}, fmt.Errorf("preauth integrity caps: %w", r.Err())
	}

	return PreauthIntegrityCaps{HashAlgorithms: algs, Salt: salt}, nil
}

// EncryptionCaps is SMB2_ENCRYPTION_CAPABILITIES.
// [MS-SMB2] Section 2.2.3.1.2
type EncryptionCaps struct {
	Ciphers []uint16
}

// Encode serializes the capabilities to wire format.
func (e EncryptionCaps) Encode() []byte {
	w := smbenc.NewWriter(2 + len(e.Ciphers)*2)
	w.WriteUint16(uint16(len(e.Ciphers)))
	for _, c := range e.Ciphers {
		w.WriteUint16(c)
	}
	return w.Bytes()
}

// DecodeEncryptionCaps parses the capabilities from wire data.
func DecodeEncryptionCaps(data []byte) (EncryptionCaps, error) {
	r := smbenc.NewReader(data)
	count := r.ReadUint16()
	if r.Err() != nil {
		return EncryptionCaps{}, fmt.Errorf("encryption caps: %w", r.Err())
	}
	ciphers := make([]uint16, count)
	for i := range ciphers {
		ciphers[i] = r.ReadUint16()
	}
	if r.Err() != nil {
		return EncryptionCaps{}, fmt.Errorf("encryption caps: %w", r.Err())
	}
	return EncryptionCaps{Ciphers: ciphers}, nil
}

// CompressionCaps is SMB2_COMPRESSION_CAPABILITIES.
// [MS-SMB2] Section 2.2.3.1.3
type CompressionCaps struct {
	Flags      uint32
	Algorithms []uint16
}

// Encode serializes the capabilities to wire format.
func (c CompressionCaps) Encode() []byte {
	w := smbenc.NewWriter(8 + len(c.Algorithms)*2)
	w.WriteUint16(uint16(len(c.Algorithms)))
	w.WriteUint16(0) // Padding
	w.WriteUint32(c.Flags)
	for _, a := range c.Algorithms {
		w.WriteUint16(a)
	}
	return w.Bytes()
}

// DecodeCompressionCaps parses the capabilities from wire data.
func DecodeCompressionCaps(data []byte) (CompressionCaps, error) {
	r := smbenc.NewReader(data)
	count := r.ReadUint16()
	r.Skip(2) // Padding
	flags := r.ReadUint32()
	if r.Err() != nil {
		return CompressionCaps{}, fmt.Errorf("compression caps: %w", r.Err())
	}
	algs := make([]uint16, count)
	for i := range algs {
		algs[i] = r.ReadUint16()
	}
	if r.Err() != nil {
		return CompressionCaps{}, fmt.Errorf("compression caps: %w", r.Err())
	}
	return CompressionCaps{Flags: flags, Algorithms: algs}, nil
}

// SigningCaps is SMB2_SIGNING_CAPABILITIES.
// [MS-SMB2] Section 2.2.3.1.7
type SigningCaps struct {
	Algorithms []uint16
}

// Encode serializes the capabilities to wire format.
func (s SigningCaps) Encode() []byte {
	w := smbenc.NewWriter(2 + len(s.Algorithms)*2)
	w.WriteUint16(uint16(len(s.Algorithms)))
	for _, a := range s.Algorithms {
		w.WriteUint16(a)
	}
	return w.Bytes()
}

// DecodeSigningCaps parses the capabilities from wire data.
func DecodeSigningCaps(data []byte) (SigningCaps, error) {
	r := smbenc.NewReader(data)
	count := r.ReadUint16()
	if r.Err() != nil {
		return SigningCaps{}, fmt.Errorf("signing caps: %w", r.Err())
	}
	algs := make([]uint16, count)
	for i := range algs {
		algs[i] = r.ReadUint16()
	}
	if r.Err() != nil {
		return SigningCaps{}, fmt.Errorf("signing caps: %w", r.Err())
	}
	return SigningCaps{Algorithms: algs}, nil
}

// NetnameContext is SMB2_NETNAME_NEGOTIATE_CONTEXT_ID: the UTF-16LE server
// name the client intends to connect to.
// [MS-SMB2] Section 2.2.3.1.4
type NetnameContext struct {
	NetName string
}

// Encode serializes the netname to wire format.
func (n NetnameContext) Encode() []byte {
	return smbenc.EncodeUTF16(n.NetName)
}
