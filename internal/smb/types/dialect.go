package types

// Dialect represents an SMB2/3 protocol dialect revision.
// Comparisons use the numeric value; higher is newer.
// [MS-SMB2] Section 2.2.3
type Dialect uint16

const (
	// Dialect0202 is SMB 2.0.2 (Windows Vista/Server 2008).
	Dialect0202 Dialect = 0x0202

	// Dialect0210 is SMB 2.1 (Windows 7/Server 2008 R2).
	// Adds leasing and large MTU support.
	Dialect0210 Dialect = 0x0210

	// Dialect0300 is SMB 3.0 (Windows 8/Server 2012).
	// Adds multichannel, encryption, and persistent handles.
	Dialect0300 Dialect = 0x0300

	// Dialect0302 is SMB 3.0.2 (Windows 8.1/Server 2012 R2).
	Dialect0302 Dialect = 0x0302

	// Dialect0311 is SMB 3.1.1 (Windows 10/Server 2016+).
	// Adds pre-auth integrity, negotiate contexts, and AES-GCM encryption.
	Dialect0311 Dialect = 0x0311

	// DialectWildcard (0x02FF) is returned by a server answering the SMB1
	// multi-protocol probe when it supports more than SMB 2.0.2; the client
	// must follow up with a real SMB2 NEGOTIATE.
	DialectWildcard Dialect = 0x02FF
)

// AllDialects lists every concrete dialect this client can negotiate,
// in ascending order.
var AllDialects = []Dialect{Dialect0202, Dialect0210, Dialect0300, Dialect0302, Dialect0311}

// String returns a human-readable dialect name.
func (d Dialect) String() string {
	switch d {
	case Dialect0202:
		return "SMB 2.0.2"
	case Dialect0210:
		return "SMB 2.1"
	case Dialect0300:
		return "SMB 3.0"
	case Dialect0302:
		return "SMB 3.0.2"
	case Dialect0311:
		return "SMB 3.1.1"
	case DialectWildcard:
		return "SMB 2.x (wildcard)"
	default:
		return "Unknown"
	}
}

// IsSMB3 returns true for the 3.x dialect family.
func (d Dialect) IsSMB3() bool {
	return d >= Dialect0300 && d != DialectWildcard
}

// SupportsEncryption returns true if the dialect supports transform encryption.
func (d Dialect) SupportsEncryption() bool {
	return d.IsSMB3()
}

// SupportsNegotiateContexts returns true if the dialect carries negotiate
// contexts in NEGOTIATE request/response.
func (d Dialect) SupportsNegotiateContexts() bool {
	return d == Dialect0311
}

// SupportsCompression returns true if the dialect supports the compression
// transform.
func (d Dialect) SupportsCompression() bool {
	return d == Dialect0311
}
