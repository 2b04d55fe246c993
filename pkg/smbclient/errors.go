package smbclient

import (
	"errors"
	"fmt"

	"github.com/marmos91/smbclient/internal/smb/msg"
	"github.com/marmos91/smbclient/internal/smb/transform"
	"github.com/marmos91/smbclient/internal/smb/types"
	"github.com/marmos91/smbclient/internal/smb/worker"
)

// Sentinel errors of the client surface.
var (
	// ErrNotConnected is returned for operations on a closed or failed
	// connection.
	ErrNotConnected = errors.New("smbclient: not connected")

	// ErrInvalidAddress is returned for unparseable server addresses or
	// UNC paths.
	ErrInvalidAddress = errors.New("smbclient: invalid address")

	// ErrInvalidConfiguration is returned when the configuration rejects
	// an operation (e.g. guest access without the explicit opt-in).
	ErrInvalidConfiguration = errors.New("smbclient: invalid configuration")

	// ErrInvalidArgument is returned for malformed call arguments.
	ErrInvalidArgument = errors.New("smbclient: invalid argument")

	// ErrInvalidState is returned when an operation does not fit the
	// connection state (e.g. tree connect before authentication).
	ErrInvalidState = errors.New("smbclient: invalid state")

	// ErrUnsupportedOperation is returned for operations the negotiated
	// dialect cannot express.
	ErrUnsupportedOperation = errors.New("smbclient: unsupported operation")

	// ErrMissingPermissions is returned when a handle lacks the access
	// required for an operation.
	ErrMissingPermissions = errors.New("smbclient: missing permissions")

	// ErrCancelled is returned when an operation was cancelled.
	ErrCancelled = errors.New("smbclient: operation cancelled")

	// ErrNotFound is returned when a resource does not exist.
	ErrNotFound = errors.New("smbclient: not found")

	// ErrDfsReferralConnectionFail is returned by the DFS resolution hook
	// when no referral target could be connected.
	ErrDfsReferralConnectionFail = errors.New("smbclient: DFS referral connection failed")

	// ErrSignatureVerificationFailed mirrors the transformer's fatal
	// verification failure.
	ErrSignatureVerificationFailed = transform.ErrSignatureVerificationFailed
)

// NegotiationError reports a client-side protocol mismatch during
// negotiation: dialect out of range, missing or inconsistent negotiate
// contexts, or algorithm selections outside the advertised sets.
type NegotiationError struct {
	Detail string
}

func (e *NegotiationError) Error() string {
	return "smbclient: negotiation failed: " + e.Detail
}

// UnsupportedDialectError reports a server dialect selection the client
// cannot accept.
type UnsupportedDialectError struct {
	Dialect types.Dialect
}

func (e *UnsupportedDialectError) Error() string {
	return fmt.Sprintf("smbclient: unsupported dialect 0x%04X", uint16(e.Dialect))
}

// StatusError reports a server-returned non-success status, with the
// decoded error response body when the server sent one.
type StatusError struct {
	Status   types.Status
	Response *msg.ErrorResponse
}

func (e *StatusError) Error() string {
	return "smbclient: server returned " + e.Status.String()
}

// Is lets errors.Is match a StatusError against sentinel translations.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == types.StatusObjectNameNotFound ||
			e.Status == types.StatusNoSuchFile ||
			e.Status == types.StatusObjectPathNotFound
	case ErrMissingPermissions:
		return e.Status == types.StatusAccessDenied
	case ErrCancelled:
		return e.Status == types.StatusCancelled
	}
	return false
}

// InvalidMessageError reports a malformed or inconsistent message.
type InvalidMessageError struct {
	Detail string
	Err    error
}

func (e *InvalidMessageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("smbclient: invalid message: %s: %v", e.Detail, e.Err)
	}
	return "smbclient: invalid message: " + e.Detail
}

func (e *InvalidMessageError) Unwrap() error { return e.Err }

// UnexpectedCommandError reports a response carrying the wrong command.
type UnexpectedCommandError struct {
	Command types.Command
}

func (e *UnexpectedCommandError) Error() string {
	return "smbclient: unexpected message command " + e.Command.String()
}

// Re-exported worker error types, part of the public error surface.
type (
	// OperationTimeoutError reports an operation that exceeded the
	// configured timeout; the request stays outstanding until its
	// response arrives or the connection closes.
	OperationTimeoutError = worker.OperationTimeoutError

	// UnexpectedMessageIDError reports a correlation failure in the
	// single-threaded worker flavor.
	UnexpectedMessageIDError = worker.UnexpectedMessageIDError
)