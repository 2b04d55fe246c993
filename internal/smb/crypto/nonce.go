package crypto

import (
	"encoding/binary"
	"sync/atomic"
)

// NonceGenerator produces unique transform-header nonce fields for one
// cipher key. A monotonic counter occupies the first 8 bytes little-endian
// and the remaining bytes stay zero; a
// counter can never repeat under one key because keys are never rotated
// within a session.
type NonceGenerator struct {
	counter atomic.Uint64
}

// Next returns the next nonce.
func (g *NonceGenerator) Next() [NonceSize]byte {
	var nonce [NonceSize]byte
	n := g.counter.Add(1)
	binary.LittleEndian.PutUint64(nonce[:8], n)
	return nonce
}
