package msg

import (
	"fmt"

	"github.com/marmos91/smbclient/internal/smb/header"
	"github.com/marmos91/smbclient/internal/smb/smbenc"
)

// Pack concatenates a header and command body into one plain SMB2 message.
func Pack(hdr *header.Header, body []byte) []byte {
	out := make([]byte, 0, header.Size+len(body))
	out = append(out, hdr.Encode()...)
	out = append(out, body...)
	return out
}

// AssembleChain packs multiple plain messages into a single compound frame.
// Each element but the last is padded to 8-byte alignment and has its
// NextCommand field patched with the distance to the next message start.
// A single message passes through unchanged.
func AssembleChain(messages [][]byte) []byte {
	if len(messages) == 1 {
		return messages[0]
	}
	w := smbenc.NewWriter(totalLen(messages))
	for i, m := range messages {
		start := w.Len()
		w.WriteBytes(m)
		if i < len(messages)-1 {
			w.Pad(8)
			w.PatchUint32(start+20, uint32(w.Len()-start))
		}
	}
	return w.Bytes()
}

func totalLen(messages [][]byte) int {
	n := 0
	for _, m := range messages {
		n += len(m) + 7
	}
	return n
}

// WalkChain splits a received frame into its individual messages by
// following NextCommand offsets. A frame holding a single message yields one
// element. A non-zero NextCommand pointing past the frame bound is a fatal
// parse error.
func WalkChain(frame []byte) ([][]byte, error) {
	var out [][]byte
	rest := frame
	for {
		if len(rest) < header.Size {
			return nil, fmt.Errorf("compound chain: element shorter than header: %d bytes", len(rest))
		}
		hdr, err := header.Parse(rest)
		if err != nil {
			return nil, fmt.Errorf("compound chain: %w", err)
		}
		next := hdr.NextCommand
		if next == 0 {
			out = append(out, rest)
			return out, nil
		}
		if next < header.Size || int(next) > len(rest) {
			return nil, fmt.Errorf("compound chain: next-command offset %d out of bounds (%d remaining)", next, len(rest))
		}
		out = append(out, rest[:next])
		rest = rest[next:]
	}
}
