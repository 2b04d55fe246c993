package logger

// Standard field keys for structured logging. Used consistently across the
// client so logs aggregate and query cleanly.
const (
	// Connection identity
	KeyServer  = "server"  // server host[:port]
	KeyShare   = "share"   // UNC share path
	KeySession = "session" // session id (hex)
	KeyTree    = "tree"    // tree id

	// Protocol
	KeyCommand   = "command"    // SMB2 command name
	KeyMessageID = "message_id" // message id
	KeyStatus    = "status"     // NT status name
	KeyDialect   = "dialect"    // negotiated dialect

	// Operations
	KeyPath         = "path"          // share-relative path
	KeyOffset       = "offset"        // read/write offset
	KeyCount        = "count"         // bytes requested
	KeyBytesRead    = "bytes_read"    // bytes returned
	KeyBytesWritten = "bytes_written" // bytes accepted

	// Flow control
	KeyCredits      = "credits"       // credits available
	KeyCreditCharge = "credit_charge" // charge of the message

	// Security
	KeyCipher      = "cipher"       // negotiated cipher name
	KeySigningAlg  = "signing_alg"  // negotiated signing algorithm name
	KeyAuthMech    = "auth_mech"    // ntlm or kerberos
	KeyGuest       = "guest"        // guest session flag

	// Errors and timing
	KeyError    = "error"
	KeyDuration = "duration_ms"
)
