package auth

import (
	"errors"
	"fmt"

	"github.com/jcmturner/gofork/encoding/asn1"
	"github.com/jcmturner/gokrb5/v8/spnego"
)

// OID is a mechanism object identifier.
type OID = asn1.ObjectIdentifier

// Well-known mechanism OIDs used in SPNEGO negotiation.
var (
	// OIDSPNEGO identifies the outer GSS-API wrapper (1.3.6.1.5.5.2).
	OIDSPNEGO = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 2}

	// OIDNTLMSSP is the NTLM SSP OID (1.3.6.1.4.1.311.2.2.10).
	OIDNTLMSSP = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 2, 10}

	// OIDKerberosV5 is the RFC 4121 Kerberos 5 OID (1.2.840.113554.1.2.2).
	OIDKerberosV5 = asn1.ObjectIdentifier{1, 2, 840, 113554, 1, 2, 2}

	// OIDMSKerberosV5 is Microsoft's Kerberos 5 OID (1.2.840.48018.1.2.2).
	OIDMSKerberosV5 = asn1.ObjectIdentifier{1, 2, 840, 48018, 1, 2, 2}
)

// NegState is the negotiation state in a NegTokenResp.
// [RFC 4178] Section 4.2.2
type NegState int

const (
	NegStateAcceptCompleted  NegState = 0
	NegStateAcceptIncomplete NegState = 1
	NegStateReject           NegState = 2
	NegStateRequestMIC       NegState = 3
)

// ErrInvalidToken is returned for malformed SPNEGO tokens.
var ErrInvalidToken = errors.New("spnego: invalid token format")

// ParsedToken is the decoded form of a server SPNEGO token.
type ParsedToken struct {
	State         NegState
	SupportedMech asn1.ObjectIdentifier
	MechToken     []byte
}

// ParseToken decodes a server NegTokenResp (or a bare NegTokenInit, which
// some servers send as the initial hint).
func ParseToken(data []byte) (*ParsedToken, error) {
	if len(data) < 2 {
		return nil, ErrInvalidToken
	}

	// Strip the GSS-API wrapper if present (initial server hints).
	if data[0] == 0x60 {
		inner, err := gssUnwrap(data)
		if err != nil {
			return nil, err
		}
		data = inner
	}

	isInit, token, err := spnego.UnmarshalNegToken(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if isInit {
		initToken, ok := token.(spnego.NegTokenInit)
		if !ok {
			return nil, ErrInvalidToken
		}
		return &ParsedToken{
			State:     NegStateAcceptIncomplete,
			MechToken: initToken.MechTokenBytes,
		}, nil
	}

	respToken, ok := token.(spnego.NegTokenResp)
	if !ok {
		return nil, ErrInvalidToken
	}
	return &ParsedToken{
		State:         NegState(respToken.NegState),
		SupportedMech: respToken.SupportedMech,
		MechToken:     respToken.ResponseToken,
	}, nil
}

// EncodeInit builds the client's first token: a GSS-API wrapped
// NegTokenInit offering the given mechanisms with the first mechanism's
// initial token inlined.
func EncodeInit(mechs []OID, mechToken []byte) ([]byte, error) {
	init := spnego.NegTokenInit{
		MechTypes:      mechs,
		MechTokenBytes: mechToken,
	}
	inner, err := init.Marshal()
	if err != nil {
		return nil, fmt.Errorf("spnego: marshal NegTokenInit: %w", err)
	}
	return gssWrap(OIDSPNEGO, inner)
}

// EncodeResp builds a continuation NegTokenResp carrying the next
// mechanism token.
func EncodeResp(mechToken []byte) ([]byte, error) {
	resp := spnego.NegTokenResp{
		NegState:      asn1.Enumerated(NegStateAcceptIncomplete),
		ResponseToken: mechToken,
	}
	out, err := resp.Marshal()
	if err != nil {
		return nil, fmt.Errorf("spnego: marshal NegTokenResp: %w", err)
	}
	return out, nil
}

// gssWrap applies the RFC 2743 initial context token framing:
// [APPLICATION 0] IMPLICIT SEQUENCE { thisMech OID, innerToken }.
func gssWrap(mech OID, inner []byte) ([]byte, error) {
	oidDER, err := asn1.Marshal(mech)
	if err != nil {
		return nil, fmt.Errorf("spnego: marshal mech OID: %w", err)
	}
	content := append(oidDER, inner...)
	out := make([]byte, 0, len(content)+4)
	out = append(out, 0x60)
	out = append(out, derLength(len(content))...)
	out = append(out, content...)
	return out, nil
}

// gssUnwrap strips the RFC 2743 framing, returning the inner token.
func gssUnwrap(data []byte) ([]byte, error) {
	if len(data) < 2 || data[0] != 0x60 {
		return nil, ErrInvalidToken
	}
	contentLen, lenBytes, err := parseDERLength(data[1:])
	if err != nil {
		return nil, err
	}
	content := data[1+lenBytes:]
	if len(content) < contentLen {
		return nil, ErrInvalidToken
	}
	content = content[:contentLen]

	// Skip the mechanism OID (tag 0x06).
	if len(content) < 2 || content[0] != 0x06 {
		return nil, ErrInvalidToken
	}
	oidLen := int(content[1])
	if len(content) < 2+oidLen {
		return nil, ErrInvalidToken
	}
	return content[2+oidLen:], nil
}

func derLength(n int) []byte {
	if n < 0x80 {
		return []byte{byte(n)}
	}
	var tmp []byte
	for v := n; v > 0; v >>= 8 {
		tmp = append([]byte{byte(v)}, tmp...)
	}
	return append([]byte{0x80 | byte(len(tmp))}, tmp...)
}

func parseDERLength(data []byte) (length, consumed int, err error) {
	if len(data) == 0 {
		return 0, 0, ErrInvalidToken
	}
	if data[0] < 0x80 {
		return int(data[0]), 1, nil
	}
	n := int(data[0] & 0x7F)
	if n == 0 || n > 4 || len(data) < 1+n {
		return 0, 0, ErrInvalidToken
	}
	v := 0
	for i := 0; i < n; i++ {
		v = v<<8 | int(data[1+i])
	}
	return v, 1 + n, nil
}
