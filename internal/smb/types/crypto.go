package types

// Negotiate context types carried in SMB 3.1.1 NEGOTIATE.
// [MS-SMB2] Section 2.2.3.1
const (
	NegCtxPreauthIntegrity uint16 = 0x0001
	NegCtxEncryption       uint16 = 0x0002
	NegCtxCompression      uint16 = 0x0003
	NegCtxNetname          uint16 = 0x0005
	NegCtxTransport        uint16 = 0x0006
	NegCtxSigning          uint16 = 0x0008
)

// HashSHA512 is the only pre-auth integrity hash algorithm defined.
// [MS-SMB2] Section 2.2.3.1.1
const HashSHA512 uint16 = 0x0001

// Encryption cipher identifiers.
// [MS-SMB2] Section 2.2.3.1.2
const (
	CipherAES128CCM uint16 = 0x0001
	CipherAES128GCM uint16 = 0x0002
	CipherAES256CCM uint16 = 0x0003
	CipherAES256GCM uint16 = 0x0004
)

// CipherName returns a human-readable name for a cipher id.
func CipherName(id uint16) string {
	switch id {
	case CipherAES128CCM:
		return "AES-128-CCM"
	case CipherAES128GCM:
		return "AES-128-GCM"
	case CipherAES256CCM:
		return "AES-256-CCM"
	case CipherAES256GCM:
		return "AES-256-GCM"
	default:
		return "Unknown"
	}
}

// Signing algorithm identifiers.
// [MS-SMB2] Section 2.2.3.1.7
const (
	SigningHMACSHA256 uint16 = 0x0000
	SigningAESCMAC    uint16 = 0x0001
	SigningAESGMAC    uint16 = 0x0002
)

// SigningName returns a human-readable name for a signing algorithm id.
func SigningName(id uint16) string {
	switch id {
	case SigningHMACSHA256:
		return "HMAC-SHA256"
	case SigningAESCMAC:
		return "AES-CMAC"
	case SigningAESGMAC:
		return "AES-GMAC"
	default:
		return "Unknown"
	}
}

// Compression algorithm identifiers.
// [MS-SMB2] Section 2.2.3.1.3
const (
	CompressionNone        uint16 = 0x0000
	CompressionLZNT1       uint16 = 0x0001
	CompressionLZ77        uint16 = 0x0002
	CompressionLZ77Huffman uint16 = 0x0003
	CompressionPatternV1   uint16 = 0x0004
)

// CompressionName returns a human-readable name for a compression id.
func CompressionName(id uint16) string {
	switch id {
	case CompressionNone:
		return "NONE"
	case CompressionLZNT1:
		return "LZNT1"
	case CompressionLZ77:
		return "LZ77"
	case CompressionLZ77Huffman:
		return "LZ77+Huffman"
	case CompressionPatternV1:
		return "Pattern_V1"
	default:
		return "Unknown"
	}
}

// Compression capability flags in the negotiate context.
// [MS-SMB2] Section 2.2.3.1.3
const (
	CompressionCapFlagNone    uint32 = 0x00000000
	CompressionCapFlagChained uint32 = 0x00000001
)

// Transform header encryption flag (dialect 3.1.1). For 3.0/3.0.2 the same
// field carries the cipher id directly.
// [MS-SMB2] Section 2.2.41
const TransformFlagEncrypted uint16 = 0x0001

// Compression transform flags.
// [MS-SMB2] Section 2.2.42
const (
	CompressionTransformFlagNone    uint16 = 0x0000
	CompressionTransformFlagChained uint16 = 0x0001
)
