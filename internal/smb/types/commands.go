// Package types contains SMB2 protocol constants and elementary types shared
// by the codec, crypto, worker, and client packages.
//
// This package provides type-safe definitions for SMB2 protocol elements
// including:
//   - Command codes (NEGOTIATE, SESSION_SETUP, CREATE, READ, WRITE, etc.)
//   - Header flags (response, async, signed, related operations)
//   - Dialects (SMB 2.0.2, 2.1, 3.0, 3.0.2, 3.1.1)
//   - NT status codes, file attributes, access masks, and create options
//   - Negotiated algorithm identifiers (ciphers, signing, compression)
//
// All types use explicit Go types (e.g., Command, HeaderFlags) to prevent
// mixing incompatible values.
//
// Reference: [MS-SMB2] - Server Message Block (SMB) Protocol Versions 2 and 3
// https://docs.microsoft.com/en-us/openspecs/windows_protocols/ms-smb2/
package types

// SMB1ProtocolID is the SMB1 protocol identifier (little-endian: 0xFF 'S' 'M' 'B').
// Only seen during the initial multi-protocol negotiation probe.
const SMB1ProtocolID uint32 = 0x424D53FF

// SMB2ProtocolID is the SMB2 protocol identifier (little-endian: 0xFE 'S' 'M' 'B').
// All plain SMB2/3 messages begin with this 4-byte signature.
const SMB2ProtocolID uint32 = 0x424D53FE

// TransformProtocolID is the encrypted transform identifier (0xFD 'S' 'M' 'B').
const TransformProtocolID uint32 = 0x424D53FD

// CompressionProtocolID is the compressed transform identifier (0xFC 'S' 'M' 'B').
const CompressionProtocolID uint32 = 0x424D53FC

// Command represents an SMB2 command code.
// [MS-SMB2] Section 2.2.1
type Command uint16

const (
	// CommandNegotiate initiates protocol negotiation. Always the first
	// SMB2 command on a connection.
	CommandNegotiate Command = 0x0000

	// CommandSessionSetup authenticates the client and establishes a
	// session, carrying SPNEGO tokens (NTLM or Kerberos).
	CommandSessionSetup Command = 0x0001

	// CommandLogoff terminates a session established by SESSION_SETUP.
	CommandLogoff Command = 0x0002

	// CommandTreeConnect connects to a share (e.g., \\server\share).
	CommandTreeConnect Command = 0x0003

	// CommandTreeDisconnect disconnects from a share.
	CommandTreeDisconnect Command = 0x0004

	// CommandCreate opens or creates a file or directory.
	CommandCreate Command = 0x0005

	// CommandClose closes a file handle opened by CREATE.
	CommandClose Command = 0x0006

	// CommandFlush flushes cached data for a file to stable storage.
	CommandFlush Command = 0x0007

	// CommandRead reads data from a file.
	CommandRead Command = 0x0008

	// CommandWrite writes data to a file.
	CommandWrite Command = 0x0009

	// CommandLock requests byte-range locks on a file.
	CommandLock Command = 0x000A

	// CommandIoctl sends a control code to a device or filesystem.
	CommandIoctl Command = 0x000B

	// CommandCancel cancels a pending request.
	CommandCancel Command = 0x000C

	// CommandEcho tests connectivity (ping/pong).
	CommandEcho Command = 0x000D

	// CommandQueryDirectory enumerates directory contents.
	CommandQueryDirectory Command = 0x000E

	// CommandChangeNotify registers for directory change notifications.
	CommandChangeNotify Command = 0x000F

	// CommandQueryInfo retrieves file/filesystem/security information.
	CommandQueryInfo Command = 0x0010

	// CommandSetInfo sets file/filesystem/security information.
	CommandSetInfo Command = 0x0011

	// CommandOplockBreak carries oplock and lease break notifications
	// and acknowledgements.
	CommandOplockBreak Command = 0x0012
)

// String returns the human-readable name of the command.
func (c Command) String() string {
	switch c {
	case CommandNegotiate:
		return "NEGOTIATE"
	case CommandSessionSetup:
		return "SESSION_SETUP"
	case CommandLogoff:
		return "LOGOFF"
	case CommandTreeConnect:
		return "TREE_CONNECT"
	case CommandTreeDisconnect:
		return "TREE_DISCONNECT"
	case CommandCreate:
		return "CREATE"
	case CommandClose:
		return "CLOSE"
	case CommandFlush:
		return "FLUSH"
	case CommandRead:
		return "READ"
	case CommandWrite:
		return "WRITE"
	case CommandLock:
		return "LOCK"
	case CommandIoctl:
		return "IOCTL"
	case CommandCancel:
		return "CANCEL"
	case CommandEcho:
		return "ECHO"
	case CommandQueryDirectory:
		return "QUERY_DIRECTORY"
	case CommandChangeNotify:
		return "CHANGE_NOTIFY"
	case CommandQueryInfo:
		return "QUERY_INFO"
	case CommandSetInfo:
		return "SET_INFO"
	case CommandOplockBreak:
		return "OPLOCK_BREAK"
	default:
		return "UNKNOWN"
	}
}
