package msg

import (
	"github.com/marmos91/smbclient/internal/smb/smbenc"
	"github.com/marmos91/smbclient/internal/smb/types"
)

// SMB1 multi-protocol negotiation probe. The only SMB1 message this client
// ever sends is SMB_COM_NEGOTIATE listing the SMB2 dialect strings; any
// modern server answers with an SMB2 NEGOTIATE response.
// [MS-CIFS] Section 2.2.4.52, [MS-SMB2] Section 3.2.4.2.1

const (
	smb1HeaderSize       = 32
	smb1CommandNegotiate = 0x72

	smb1Flags2Unicode        = 0x8000
	smb1Flags2NTStatus       = 0x4000
	smb1Flags2ExtendedSec    = 0x0800
	smb1Flags2LongNames      = 0x0001
	smb1Flags2EasAware       = 0x0002
	smb1Flags2SignSupported  = 0x0004
)

// smb1DialectStrings are offered in order; index selects SMB 2.0.2 directly
// while the wildcard requires a follow-up SMB2 NEGOTIATE.
var smb1DialectStrings = []string{"SMB 2.002", "SMB 2.???"}

// EncodeSMB1NegotiateRequest builds the complete SMB1 COM_NEGOTIATE probe
// message (header + parameter/data blocks).
func EncodeSMB1NegotiateRequest() []byte {
	w := smbenc.NewWriter(smb1HeaderSize + 32)

	// SMB1 header
	w.WriteUint32(types.SMB1ProtocolID)
	w.WriteUint8(smb1CommandNegotiate)
	w.WriteUint32(0) // Status
	w.WriteUint8(0x18) // Flags: canonicalized paths, case insensitive
	w.WriteUint16(smb1Flags2Unicode | smb1Flags2NTStatus | smb1Flags2ExtendedSec | smb1Flags2LongNames | smb1Flags2EasAware | smb1Flags2SignSupported)
	w.WriteUint16(0)  // PIDHigh
	w.WriteZeros(8)   // SecurityFeatures
	w.WriteUint16(0)  // Reserved
	w.WriteUint16(0)  // TID
	w.WriteUint16(0)  // PIDLow
	w.WriteUint16(0)  // UID
	w.WriteUint16(0)  // MID

	// Parameter block: WordCount = 0
	w.WriteUint8(0)

	// Data block: ByteCount then dialect entries (0x02 + ASCIIZ)
	byteCountPos := w.Len()
	w.WriteUint16(0)
	start := w.Len()
	for _, d := range smb1DialectStrings {
		w.WriteUint8(0x02)
		w.WriteBytes([]byte(d))
		w.WriteUint8(0)
	}
	w.PatchUint16(byteCountPos, uint16(w.Len()-start))

	return w.Bytes()
}
