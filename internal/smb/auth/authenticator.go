// Package auth drives the SESSION_SETUP authentication exchange: SPNEGO
// negotiation wrapping either NTLMv2 or Kerberos mechanism tokens.
//
// SPNEGO is defined in RFC 4178. The SMB server wraps the mechanism
// exchange: the client's first token is a GSS-API wrapped NegTokenInit, and
// every following leg is a NegTokenResp in each direction until the server
// reports acceptance.
package auth

import (
	"errors"
	"fmt"
)

// Credentials selects and parameterizes the authentication mechanisms.
type Credentials struct {
	Username string
	Password string
	Domain   string

	// Workstation is sent in NTLM messages; optional.
	Workstation string

	// KerberosConfigPath points at krb5.conf for the Kerberos provider.
	KerberosConfigPath string

	// SPN overrides the service principal (default cifs/<host>).
	SPN string
}

// Mechanism is one SSP the SPNEGO exchange can select.
type Mechanism interface {
	// OID returns the mechanism's object identifier.
	OID() []int

	// InitialToken produces the first mechanism token.
	InitialToken() ([]byte, error)

	// AcceptChallenge consumes a server mechanism token and produces the
	// next client token. done reports mechanism completion.
	AcceptChallenge(token []byte) (next []byte, done bool, err error)

	// SessionKey is valid once the mechanism completed.
	SessionKey() []byte
}

// ErrAuthFailed is returned when the exchange cannot continue.
var ErrAuthFailed = errors.New("auth: authentication failed")

// ErrNoMechanism is returned when no configured mechanism is usable.
var ErrNoMechanism = errors.New("auth: no usable authentication mechanism")

// Authenticator runs the SPNEGO exchange over a single mechanism.
type Authenticator struct {
	mech     Mechanism
	started  bool
	complete bool
}

// NewAuthenticator wraps a mechanism.
func NewAuthenticator(mech Mechanism) *Authenticator {
	return &Authenticator{mech: mech}
}

// Next consumes the server's SPNEGO token (nil for the first leg) and
// returns the next token to embed in a SESSION_SETUP request.
func (a *Authenticator) Next(serverToken []byte) ([]byte, error) {
	if !a.started {
		a.started = true
		mechToken, err := a.mech.InitialToken()
		if err != nil {
			return nil, err
		}
		return EncodeInit([]OID{OID(a.mech.OID())}, mechToken)
	}

	parsed, err := ParseToken(serverToken)
	if err != nil {
		return nil, err
	}
	if parsed.State == NegStateReject {
		return nil, fmt.Errorf("%w: server rejected the negotiation", ErrAuthFailed)
	}

	next, done, err := a.mech.AcceptChallenge(parsed.MechToken)
	if err != nil {
		return nil, err
	}
	a.complete = done
	if next == nil {
		return nil, nil
	}
	return EncodeResp(next)
}

// Complete reports whether the mechanism finished its exchange.
func (a *Authenticator) Complete() bool {
	return a.complete
}

// SessionKey returns the mechanism session key after completion.
func (a *Authenticator) SessionKey() []byte {
	return a.mech.SessionKey()
}
