package types

// HeaderFlags represents SMB2 header flags.
// [MS-SMB2] Section 2.2.1.1
type HeaderFlags uint32

const (
	// FlagResponse indicates a response from server to client.
	// Clients never set this flag.
	FlagResponse HeaderFlags = 0x00000001

	// FlagAsync selects the async header form: the Reserved+TreeID fields
	// are replaced by a 64-bit AsyncID.
	FlagAsync HeaderFlags = 0x00000002

	// FlagRelated marks a related operation in a compound chain; the FileID
	// from the previous operation applies.
	FlagRelated HeaderFlags = 0x00000004

	// FlagSigned indicates the Signature field carries a valid signature.
	FlagSigned HeaderFlags = 0x00000008

	// FlagPriorityMask masks the I/O priority value (bits 4-6, SMB 3.1.1).
	FlagPriorityMask HeaderFlags = 0x00000070

	// FlagDFS marks a DFS (Distributed File System) operation.
	FlagDFS HeaderFlags = 0x10000000

	// FlagReplay marks an idempotent request replay (SMB 3.x).
	FlagReplay HeaderFlags = 0x20000000
)

// Has returns true if the flags contain the specified flag.
func (f HeaderFlags) Has(flag HeaderFlags) bool {
	return f&flag != 0
}

// IsResponse returns true if this is a response message.
func (f HeaderFlags) IsResponse() bool { return f.Has(FlagResponse) }

// IsAsync returns true if the header is in async form.
func (f HeaderFlags) IsAsync() bool { return f.Has(FlagAsync) }

// IsRelated returns true if this is a related compound operation.
func (f HeaderFlags) IsRelated() bool { return f.Has(FlagRelated) }

// IsSigned returns true if the message is signed.
func (f HeaderFlags) IsSigned() bool { return f.Has(FlagSigned) }

// Capabilities represents SMB2 global capabilities.
// [MS-SMB2] Section 2.2.3
type Capabilities uint32

const (
	// CapDFS indicates DFS (Distributed File System) support.
	CapDFS Capabilities = 0x00000001

	// CapLeasing indicates file leasing support (SMB 2.1+).
	CapLeasing Capabilities = 0x00000002

	// CapLargeMTU allows read/write operations larger than 64KB (SMB 2.1+).
	CapLargeMTU Capabilities = 0x00000004

	// CapMultiChannel indicates multichannel support (SMB 3.0+).
	CapMultiChannel Capabilities = 0x00000008

	// CapPersistentHandles indicates persistent handle support (SMB 3.0+).
	CapPersistentHandles Capabilities = 0x00000010

	// CapDirectoryLeasing indicates directory leasing support (SMB 3.0+).
	CapDirectoryLeasing Capabilities = 0x00000020

	// CapEncryption indicates encryption support (SMB 3.0+).
	CapEncryption Capabilities = 0x00000040

	// CapNotifications indicates server-to-client notification support
	// (SMB 3.1.1 over QUIC).
	CapNotifications Capabilities = 0x00000080
)

// Has returns true if the capabilities contain the specified capability.
func (c Capabilities) Has(cap Capabilities) bool {
	return c&cap != 0
}

// SecurityMode represents the signing policy advertised in NEGOTIATE and
// SESSION_SETUP.
// [MS-SMB2] Section 2.2.3
type SecurityMode uint16

const (
	// SecuritySigningEnabled indicates signing is supported.
	SecuritySigningEnabled SecurityMode = 0x0001

	// SecuritySigningRequired indicates signing is mandatory.
	SecuritySigningRequired SecurityMode = 0x0002
)

// SigningRequired returns true if the mode requires signing.
func (m SecurityMode) SigningRequired() bool {
	return m&SecuritySigningRequired != 0
}

// SessionFlags represents SMB2 SESSION_SETUP response flags.
// [MS-SMB2] Section 2.2.6
type SessionFlags uint16

const (
	// SessionFlagIsGuest indicates the session was granted as guest.
	SessionFlagIsGuest SessionFlags = 0x0001

	// SessionFlagIsNull indicates a null/anonymous session.
	SessionFlagIsNull SessionFlags = 0x0002

	// SessionFlagEncryptData indicates all session traffic must be
	// encrypted (SMB 3.x).
	SessionFlagEncryptData SessionFlags = 0x0004
)

// ShareType represents the type of a connected share.
// [MS-SMB2] Section 2.2.10
type ShareType uint8

const (
	// ShareTypeDisk is a regular file share.
	ShareTypeDisk ShareType = 0x01

	// ShareTypePipe is a named pipe share (IPC$).
	ShareTypePipe ShareType = 0x02

	// ShareTypePrint is a print share.
	ShareTypePrint ShareType = 0x03
)

// ShareFlags represents TREE_CONNECT response share flags.
// [MS-SMB2] Section 2.2.10
type ShareFlags uint32

const (
	// ShareFlagEncryptData requires encryption for all traffic on this tree.
	ShareFlagEncryptData ShareFlags = 0x00008000

	// ShareFlagDFS marks the share as part of a DFS namespace.
	ShareFlagDFS ShareFlags = 0x00000001

	// ShareFlagDFSRoot marks the share as a DFS root.
	ShareFlagDFSRoot ShareFlags = 0x00000002
)

// ShareCapabilities represents TREE_CONNECT response share capabilities.
// [MS-SMB2] Section 2.2.10
type ShareCapabilities uint32

const (
	ShareCapDFS                    ShareCapabilities = 0x00000008
	ShareCapContinuousAvailability ShareCapabilities = 0x00000010
	ShareCapScaleout               ShareCapabilities = 0x00000020
	ShareCapCluster                ShareCapabilities = 0x00000040
	ShareCapAsymmetric             ShareCapabilities = 0x00000080
)
