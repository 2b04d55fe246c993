// Package smbclient is the public surface of the SMB2/SMB3 client: dialing
// and negotiating a connection, authenticating sessions, connecting trees,
// and operating on file and directory handles.
//
// A minimal session:
//
//	conn, err := smbclient.Dial(ctx, "fileserver", smbclient.DefaultConfig())
//	sess, err := conn.Authenticate(ctx, auth.Credentials{Username: "u", Password: "p"})
//	tree, err := sess.TreeConnect(ctx, "share")
//	f, err := tree.OpenFile(ctx, "dir\\file.txt")
package smbclient

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/marmos91/smbclient/internal/logger"
	"github.com/marmos91/smbclient/internal/smb/auth"
	"github.com/marmos91/smbclient/internal/smb/crypto"
	"github.com/marmos91/smbclient/internal/smb/header"
	"github.com/marmos91/smbclient/internal/smb/msg"
	"github.com/marmos91/smbclient/internal/smb/transform"
	"github.com/marmos91/smbclient/internal/smb/transport"
	"github.com/marmos91/smbclient/internal/smb/types"
	"github.com/marmos91/smbclient/internal/smb/worker"
)

// State is the connection lifecycle state.
type State int

const (
	StateFresh State = iota
	StateNegotiating
	StateNegotiated
	StateAuthenticating
	StateSessionEstablished
	StateTreeConnected
	StateDisconnected
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateFresh:
		return "Fresh"
	case StateNegotiating:
		return "Negotiating"
	case StateNegotiated:
		return "Negotiated"
	case StateAuthenticating:
		return "Authenticating"
	case StateSessionEstablished:
		return "SessionEstablished"
	case StateTreeConnected:
		return "TreeConnected"
	case StateDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// Connection is one negotiated SMB2/SMB3 connection to a server.
type Connection struct {
	cfg        Config
	serverName string

	mu      sync.Mutex
	state   State
	worker  worker.Worker
	session *Session

	// Negotiated connection state.
	dialect            types.Dialect
	serverGUID         [16]byte
	serverCapabilities types.Capabilities
	serverSecurityMode types.SecurityMode
	maxTransactSize    uint32
	maxReadSize        uint32
	maxWriteSize       uint32
	signingAlgorithm   uint16
	cipher             uint16
	compressionAlgs    []uint16

	breaks breakRegistry
}

// Dial connects to server (host or host:port), negotiates, and returns the
// connection in the Negotiated state.
func Dial(ctx context.Context, server string, cfg Config) (*Connection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if server == "" {
		return nil, fmt.Errorf("%w: empty server", ErrInvalidAddress)
	}
	if cfg.Logging != (logger.Config{}) {
		if err := logger.Init(cfg.Logging); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
		}
	}

	host, address, err := resolveAddress(server, &cfg)
	if err != nil {
		return nil, err
	}

	c := &Connection{cfg: cfg, serverName: host, state: StateFresh}
	c.breaks.bind(c)
	if err := c.connect(ctx, address); err != nil {
		return nil, err
	}
	return c, nil
}

// resolveAddress splits an optional port off the server string and applies
// the transport default.
func resolveAddress(server string, cfg *Config) (host, address string, err error) {
	host = server
	port := cfg.Port
	if h, p, splitErr := net.SplitHostPort(server); splitErr == nil {
		host = h
		parsed, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return "", "", fmt.Errorf("%w: port %q", ErrInvalidAddress, p)
		}
		port = uint16(parsed)
	}
	if port == 0 {
		port = cfg.dialer().DefaultPort()
	}
	return host, net.JoinHostPort(host, strconv.FormatUint(uint64(port), 10)), nil
}

func (c *Config) dialer() transport.Dialer {
	if c.testDialer != nil {
		return c.testDialer
	}
	if c.Transport == TransportNetBIOS {
		return transport.NetBIOSDialer{CallingName: c.ClientName}
	}
	return transport.TCPDialer{}
}

func (c *Connection) newWorker(t transport.Transport) worker.Worker {
	if c.cfg.Worker == WorkerSingle {
		return worker.NewSingleWorker(t, c.cfg.Timeout, c.cfg.CreditsBacklog)
	}
	return worker.NewParallelWorker(t, c.cfg.Timeout, c.cfg.CreditsBacklog)
}

// connect dials the transport and drives negotiation.
func (c *Connection) connect(ctx context.Context, address string) error {
	c.state = StateNegotiating

	t, err := c.cfg.dialer().Dial(ctx, address)
	if err != nil {
		c.state = StateDisconnected
		return err
	}

	var negotiated *msg.NegotiateResponse
	if c.cfg.SMB2OnlyNegotiate {
		c.worker = c.newWorker(t)
		c.worker.SetNotificationSink(&c.breaks)
		negotiated, err = c.negotiateSMB2(ctx)
	} else {
		negotiated, err = c.multiProtocolNegotiate(ctx, t)
	}
	if err != nil {
		if c.worker != nil {
			c.worker.Stop()
		} else {
			t.Close()
		}
		c.state = StateDisconnected
		return err
	}

	if err := c.applyNegotiation(negotiated); err != nil {
		c.worker.Stop()
		c.state = StateDisconnected
		return err
	}
	c.state = StateNegotiated
	logger.Info("connection negotiated",
		logger.KeyServer, address,
		logger.KeyDialect, c.dialect.String(),
		logger.KeyCipher, types.CipherName(c.cipher),
		logger.KeySigningAlg, types.SigningName(c.signingAlgorithm))
	return nil
}

// multiProtocolNegotiate sends the SMB1 COM_NEGOTIATE probe on the raw
// transport. Servers answer with an SMB2 NEGOTIATE response selecting
// either 2.0.2 or the wildcard; the wildcard demands a real SMB2 NEGOTIATE
// which consumes message id 1.
func (c *Connection) multiProtocolNegotiate(ctx context.Context, t transport.Transport) (*msg.NegotiateResponse, error) {
	if err := t.Send(msg.EncodeSMB1NegotiateRequest()); err != nil {
		return nil, err
	}
	if c.cfg.Timeout > 0 {
		t.SetReadTimeout(c.cfg.Timeout)
	}
	frame, err := t.Receive()
	if err != nil {
		if transport.IsTimeout(err) {
			return nil, &OperationTimeoutError{Task: "multi-protocol negotiate", Duration: c.cfg.Timeout}
		}
		return nil, err
	}

	hdr, err := header.Parse(frame)
	if err != nil {
		return nil, &InvalidMessageError{Detail: "multi-protocol negotiate response", Err: err}
	}
	if hdr.Command != types.CommandNegotiate {
		return nil, &UnexpectedCommandError{Command: hdr.Command}
	}
	if !hdr.Status.IsSuccess() {
		return nil, &StatusError{Status: hdr.Status}
	}
	resp, err := msg.DecodeNegotiateResponse(frame)
	if err != nil {
		return nil, &InvalidMessageError{Detail: "negotiate response", Err: err}
	}

	// The probe consumed message id 0.
	c.worker = c.newWorker(t)
	c.worker.SetNotificationSink(&c.breaks)
	c.worker.SetNextMessageID(1)

	if resp.DialectRevision == types.DialectWildcard {
		return c.negotiateSMB2(ctx)
	}
	return resp, nil
}

// negotiateSMB2 sends the SMB2 NEGOTIATE through the worker.
func (c *Connection) negotiateSMB2(ctx context.Context) (*msg.NegotiateResponse, error) {
	dialects := c.cfg.Dialects()
	if len(dialects) == 0 {
		return nil, &NegotiationError{Detail: "no dialects in configured range"}
	}

	req := &msg.NegotiateRequest{
		SecurityMode: types.SecuritySigningEnabled,
		Capabilities: types.CapDFS | types.CapLargeMTU,
		ClientGUID:   c.cfg.ClientGUIDBytes(),
		Dialects:     dialects,
	}
	if !c.cfg.EncryptionMode.IsDisabled() {
		req.Capabilities |= types.CapEncryption
	}
	if c.cfg.MultiChannel.Enabled {
		req.Capabilities |= types.CapMultiChannel
	}

	offers311 := dialects[len(dialects)-1] == types.Dialect0311
	if offers311 {
		req.Contexts = c.negotiateContexts()
		// The pre-auth chain covers this request even before the server
		// commits to 3.1.1.
		c.worker.Transformer().ArmPreauth()
	}

	in, err := c.roundTrip(ctx, &request{
		command: types.CommandNegotiate,
		body:    req.Encode(),
		options: transform.Options{SkipSign: true},
	})
	if err != nil {
		return nil, err
	}

	resp, err := msg.DecodeNegotiateResponse(in.Raw)
	if err != nil {
		return nil, &InvalidMessageError{Detail: "negotiate response", Err: err}
	}
	if offers311 {
		if resp.DialectRevision == types.Dialect0311 {
			c.worker.Transformer().AccumulatePreauth(in.Raw)
		} else {
			c.worker.Transformer().DisarmPreauth()
		}
	}
	return resp, nil
}

// negotiateContexts builds the 3.1.1 negotiate context list.
func (c *Connection) negotiateContexts() []msg.NegotiateContext {
	salt := make([]byte, 32)
	rand.Read(salt)

	ctxs := []msg.NegotiateContext{
		{ContextType: types.NegCtxPreauthIntegrity, Data: msg.PreauthIntegrityCaps{
			HashAlgorithms: []uint16{types.HashSHA512},
			Salt:           salt,
		}.Encode()},
		{ContextType: types.NegCtxSigning, Data: msg.SigningCaps{
			Algorithms: []uint16{types.SigningAESGMAC, types.SigningAESCMAC, types.SigningHMACSHA256},
		}.Encode()},
	}
	if !c.cfg.EncryptionMode.IsDisabled() {
		ctxs = append(ctxs, msg.NegotiateContext{
			ContextType: types.NegCtxEncryption,
			Data: msg.EncryptionCaps{Ciphers: []uint16{
				types.CipherAES128GCM, types.CipherAES256GCM,
				types.CipherAES128CCM, types.CipherAES256CCM,
			}}.Encode(),
		})
	}
	if c.cfg.CompressionEnabled {
		ctxs = append(ctxs, msg.NegotiateContext{
			ContextType: types.NegCtxCompression,
			Data: msg.CompressionCaps{Algorithms: []uint16{
				types.CompressionLZNT1, types.CompressionPatternV1,
			}}.Encode(),
		})
	}
	if c.serverName != "" {
		ctxs = append(ctxs, msg.NegotiateContext{
			ContextType: types.NegCtxNetname,
			Data:        msg.NetnameContext{NetName: c.serverName}.Encode(),
		})
	}
	return ctxs
}

// applyNegotiation validates the server's selections and installs them.
func (c *Connection) applyNegotiation(resp *msg.NegotiateResponse) error {
	minD, maxD := c.cfg.DialectRange()
	d := resp.DialectRevision
	if d < minD || d > maxD || !containsDialect(c.cfg.Dialects(), d) {
		return &UnsupportedDialectError{Dialect: d}
	}

	c.dialect = d
	c.serverGUID = resp.ServerGUID
	c.serverCapabilities = resp.Capabilities
	c.serverSecurityMode = resp.SecurityMode
	c.maxTransactSize = resp.MaxTransactSize
	c.maxReadSize = resp.MaxReadSize
	c.maxWriteSize = resp.MaxWriteSize
	c.signingAlgorithm = types.SigningHMACSHA256
	if d >= types.Dialect0300 {
		c.signingAlgorithm = types.SigningAESCMAC
	}
	if d >= types.Dialect0300 && d < types.Dialect0311 {
		// Pre-context dialects imply AES-128-CCM when both sides can
		// encrypt.
		if resp.Capabilities.Has(types.CapEncryption) && !c.cfg.EncryptionMode.IsDisabled() {
			c.cipher = types.CipherAES128CCM
		}
	}

	if d == types.Dialect0311 {
		if err := c.applyContexts(resp.Contexts); err != nil {
			return err
		}
	}

	if c.cfg.EncryptionMode.IsRequired() && c.cipher == 0 {
		return &NegotiationError{Detail: "encryption required but no cipher negotiated"}
	}

	tr := c.worker.Transformer()
	tr.SetDialect(d)
	if len(c.compressionAlgs) > 0 {
		tr.SetCompression(c.compressionAlgs)
	}
	return nil
}

// applyContexts validates the 3.1.1 negotiate context selections against
// what the client advertised.
func (c *Connection) applyContexts(ctxs []msg.NegotiateContext) error {
	pre := msg.FindContext(ctxs, types.NegCtxPreauthIntegrity)
	if pre == nil {
		return &NegotiationError{Detail: "missing pre-auth integrity context"}
	}
	caps, err := msg.DecodePreauthIntegrityCaps(pre.Data)
	if err != nil {
		return &InvalidMessageError{Detail: "pre-auth integrity context", Err: err}
	}
	if len(caps.HashAlgorithms) != 1 || caps.HashAlgorithms[0] != types.HashSHA512 {
		return &NegotiationError{Detail: "server selected an unknown pre-auth hash algorithm"}
	}

	if enc := msg.FindContext(ctxs, types.NegCtxEncryption); enc != nil {
		caps, err := msg.DecodeEncryptionCaps(enc.Data)
		if err != nil {
			return &InvalidMessageError{Detail: "encryption context", Err: err}
		}
		if len(caps.Ciphers) == 1 && caps.Ciphers[0] != 0 {
			switch caps.Ciphers[0] {
			case types.CipherAES128CCM, types.CipherAES128GCM,
				types.CipherAES256CCM, types.CipherAES256GCM:
				c.cipher = caps.Ciphers[0]
			default:
				return &NegotiationError{Detail: "server selected an unadvertised cipher"}
			}
		}
	}

	if sign := msg.FindContext(ctxs, types.NegCtxSigning); sign != nil {
		caps, err := msg.DecodeSigningCaps(sign.Data)
		if err != nil {
			return &InvalidMessageError{Detail: "signing context", Err: err}
		}
		if len(caps.Algorithms) != 1 {
			return &NegotiationError{Detail: "server must select exactly one signing algorithm"}
		}
		switch caps.Algorithms[0] {
		case types.SigningHMACSHA256, types.SigningAESCMAC, types.SigningAESGMAC:
			c.signingAlgorithm = caps.Algorithms[0]
		default:
			return &NegotiationError{Detail: "server selected an unadvertised signing algorithm"}
		}
	}

	if comp := msg.FindContext(ctxs, types.NegCtxCompression); comp != nil && c.cfg.CompressionEnabled {
		caps, err := msg.DecodeCompressionCaps(comp.Data)
		if err != nil {
			return &InvalidMessageError{Detail: "compression context", Err: err}
		}
		for _, alg := range caps.Algorithms {
			switch alg {
			case types.CompressionLZNT1, types.CompressionPatternV1:
				c.compressionAlgs = append(c.compressionAlgs, alg)
			}
		}
	}
	return nil
}

func containsDialect(ds []types.Dialect, d types.Dialect) bool {
	for _, x := range ds {
		if x == d {
			return true
		}
	}
	return false
}

// Authenticate establishes a session by driving the SPNEGO exchange.
func (c *Connection) Authenticate(ctx context.Context, creds auth.Credentials) (*Session, error) {
	c.mu.Lock()
	if c.state != StateNegotiated {
		state := c.state
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: authenticate in state %s", ErrInvalidState, state)
	}
	c.state = StateAuthenticating
	c.mu.Unlock()

	sess, err := c.authenticate(ctx, creds)
	c.mu.Lock()
	if err != nil {
		c.state = StateNegotiated
	} else {
		c.state = StateSessionEstablished
		c.session = sess
	}
	c.mu.Unlock()
	return sess, err
}

func (c *Connection) selectMechanism(creds auth.Credentials) (auth.Mechanism, error) {
	if c.cfg.AuthMethods.Kerberos {
		mech, err := auth.NewKerberosProvider(creds, c.serverName)
		if err == nil {
			return mech, nil
		}
		logger.Warn("kerberos unavailable, falling back",
			logger.KeyError, err, "ntlm_enabled", c.cfg.AuthMethods.NTLM)
		if !c.cfg.AuthMethods.NTLM {
			return nil, err
		}
	}
	if c.cfg.AuthMethods.NTLM {
		return auth.NewNTLMProvider(creds), nil
	}
	return nil, auth.ErrNoMechanism
}

func (c *Connection) authenticate(ctx context.Context, creds auth.Credentials) (*Session, error) {
	mech, err := c.selectMechanism(creds)
	if err != nil {
		return nil, err
	}
	authenticator := auth.NewAuthenticator(mech)

	securityMode := types.SecuritySigningEnabled
	var sessionID uint64
	var serverToken []byte
	var finalResp *msg.SessionSetupResponse

	for {
		token, err := authenticator.Next(serverToken)
		if err != nil {
			return nil, err
		}
		if token == nil {
			return nil, fmt.Errorf("%w: mechanism produced no token", auth.ErrAuthFailed)
		}

		body := (&msg.SessionSetupRequest{
			SecurityMode:   securityMode,
			Capabilities:   types.CapDFS,
			SecurityBuffer: token,
		}).Encode()

		in, err := c.roundTrip(ctx, &request{
			command:   types.CommandSessionSetup,
			sessionID: sessionID,
			body:      body,
			options:   transform.Options{SkipSign: true},
			allowed:   []types.Status{types.StatusMoreProcessingRequired},
		})
		if err != nil {
			return nil, err
		}

		resp, err := msg.DecodeSessionSetupResponse(in.Raw)
		if err != nil {
			return nil, &InvalidMessageError{Detail: "session setup response", Err: err}
		}
		sessionID = in.Header.SessionID

		if in.Header.Status == types.StatusMoreProcessingRequired {
			// Expected transitional status; fold the leg into the
			// pre-auth chain and continue the exchange.
			c.worker.Transformer().AccumulatePreauth(in.Raw)
			serverToken = resp.SecurityBuffer
			continue
		}

		// Success: the final response is NOT part of the pre-auth chain.
		if len(resp.SecurityBuffer) > 0 && !authenticator.Complete() {
			if _, err := authenticator.Next(resp.SecurityBuffer); err != nil {
				return nil, err
			}
		}
		finalResp = resp
		break
	}

	sess := &Session{
		conn:  c,
		id:    sessionID,
		flags: finalResp.SessionFlags,
	}

	if finalResp.IsGuest() || finalResp.IsNull() {
		if !c.cfg.AllowUnsignedGuestAccess {
			return nil, fmt.Errorf("%w: server granted guest access; set allow_unsigned_guest_access to accept it",
				ErrInvalidConfiguration)
		}
		// Guest sessions have no key material worth installing.
		c.worker.Transformer().DisarmPreauth()
		logger.Warn("guest session established without signing",
			logger.KeySession, fmt.Sprintf("0x%x", sessionID))
		return sess, nil
	}

	sessionKey := authenticator.SessionKey()
	if len(sessionKey) == 0 {
		return nil, fmt.Errorf("%w: no session key from authentication", auth.ErrAuthFailed)
	}

	preauth := [64]byte(c.worker.Transformer().PreauthValue())
	keys := crypto.DeriveSessionKeys(sessionKey, c.dialect, preauth, c.cipher)
	encryptAll := c.cfg.EncryptionMode.IsRequired() || finalResp.EncryptData()
	if err := c.worker.Transformer().InstallKeys(sessionID, keys, c.signingAlgorithm, c.cipher, encryptAll); err != nil {
		return nil, err
	}

	logger.Info("session established",
		logger.KeySession, fmt.Sprintf("0x%x", sessionID),
		logger.KeyAuthMech, mechName(mech),
		logger.KeyGuest, false,
		"encrypt_all", encryptAll)
	return sess, nil
}

func mechName(m auth.Mechanism) string {
	if _, ok := m.(*auth.KerberosProvider); ok {
		return "kerberos"
	}
	return "ntlm"
}

// Echo round-trips an SMB2 ECHO to verify the connection is alive.
func (c *Connection) Echo(ctx context.Context) error {
	sess := c.currentSession()
	var sessionID uint64
	if sess != nil {
		sessionID = sess.id
	}
	_, err := c.roundTrip(ctx, &request{
		command:   types.CommandEcho,
		sessionID: sessionID,
		body:      msg.EchoRequest{}.Encode(),
	})
	return err
}

func (c *Connection) currentSession() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Dialect returns the negotiated dialect.
func (c *Connection) Dialect() types.Dialect {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dialect
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// MaxReadSize returns the server's read size bound.
func (c *Connection) MaxReadSize() uint32 { return c.maxReadSize }

// MaxWriteSize returns the server's write size bound.
func (c *Connection) MaxWriteSize() uint32 { return c.maxWriteSize }

// Close tears the connection down gracefully: handles, trees, session
// logoff, then the transport. Handle, tree and logoff failures are logged,
// not returned; the returned error is that of stopping the worker and its
// transport.
func (c *Connection) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	sess := c.session
	c.state = StateDisconnected
	c.mu.Unlock()

	if sess != nil {
		sess.shutdown(ctx)
	}
	if c.worker != nil {
		return c.worker.Stop()
	}
	return nil
}

// request is one client request for roundTrip.
type request struct {
	command   types.Command
	sessionID uint64
	treeID    uint32
	body      []byte

	// payloadHint drives the credit charge: the larger of request and
	// expected response payload sizes.
	payloadHint uint32

	options transform.Options

	// allowed lists non-success statuses the caller handles itself.
	allowed []types.Status
}

// roundTrip sends one request and awaits its response, translating error
// statuses and driving cancellation.
func (c *Connection) roundTrip(ctx context.Context, req *request) (*worker.Incoming, error) {
	w := c.workerRef()
	if w == nil {
		return nil, ErrNotConnected
	}

	hdr := &header.Header{
		Command:   req.command,
		SessionID: req.sessionID,
		TreeID:    req.treeID,
	}
	pending, err := w.Send(&worker.Outgoing{
		Header:      hdr,
		Body:        req.body,
		PayloadHint: req.payloadHint,
		Options:     req.options,
	})
	if err != nil {
		return nil, err
	}

	in, err := w.Receive(ctx, pending)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			c.sendCancel(pending.MessageID(), req.sessionID)
			return nil, fmt.Errorf("%w: %s", ErrCancelled, req.command)
		}
		return nil, err
	}

	if in.Header.Command != req.command {
		return nil, &UnexpectedCommandError{Command: in.Header.Command}
	}

	status := in.Header.Status
	if status.IsSuccess() || containsStatus(req.allowed, status) {
		return in, nil
	}
	se := &StatusError{Status: status}
	if resp, err := msg.DecodeErrorResponse(in.Raw); err == nil {
		se.Response = resp
	}
	return nil, se
}

// sendCancel issues a best-effort SMB2 CANCEL for an outstanding request.
// The original request still produces a response, which retires its id.
func (c *Connection) sendCancel(messageID, sessionID uint64) {
	w := c.workerRef()
	if w == nil {
		return
	}
	err := w.SendControl(&worker.Outgoing{
		Header: &header.Header{
			Command:   types.CommandCancel,
			MessageID: messageID,
			SessionID: sessionID,
		},
		Body: msg.CancelRequest{}.Encode(),
	})
	if err != nil {
		logger.Debug("cancel send failed", logger.KeyError, err)
	}
}

func (c *Connection) workerRef() worker.Worker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.worker
}

func containsStatus(list []types.Status, s types.Status) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// creditPayloadHint bounds a transfer payload for credit calculation.
func creditPayloadHint(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > 1<<30 {
		return 1 << 30
	}
	return uint32(n)
}
