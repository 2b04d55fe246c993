package transform

import "crypto/sha512"

// PreauthHash is the pre-auth integrity hash chain value:
//
//	H(i) = SHA-512(H(i-1) || Message(i))
//
// where H(0) is 64 zero bytes and each Message(i) is a complete NEGOTIATE or
// SESSION_SETUP request/response. It is a value type updated through pure
// functions; the transformer owns the current value and freezes it at
// session establishment.
//
// [MS-SMB2] Section 3.2.5.2
type PreauthHash [64]byte

// Update returns the next hash in the chain. The receiver is not modified.
func (h PreauthHash) Update(message []byte) PreauthHash {
	s := sha512.New()
	s.Write(h[:])
	s.Write(message)
	var next PreauthHash
	copy(next[:], s.Sum(nil))
	return next
}
