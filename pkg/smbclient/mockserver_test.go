package smbclient

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/rc4"
	"encoding/binary"
	"sync"
	"time"

	"golang.org/x/crypto/md4"

	"github.com/marmos91/smbclient/internal/smb/auth"
	"github.com/marmos91/smbclient/internal/smb/crypto"
	"github.com/marmos91/smbclient/internal/smb/fscc"
	"github.com/marmos91/smbclient/internal/smb/header"
	"github.com/marmos91/smbclient/internal/smb/msg"
	"github.com/marmos91/smbclient/internal/smb/smbenc"
	"github.com/marmos91/smbclient/internal/smb/transform"
	"github.com/marmos91/smbclient/internal/smb/transport"
	"github.com/marmos91/smbclient/internal/smb/types"
)

// memTransport is the client end of an in-memory framed pipe.
type memTransport struct {
	toServer   chan []byte
	fromServer chan []byte
	closeOnce  sync.Once
	closed     chan struct{}
	timeout    time.Duration
}

func (m *memTransport) Send(frame []byte) error {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	select {
	case m.toServer <- cp:
		return nil
	case <-m.closed:
		return transport.ErrNotConnected
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "receive timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func (m *memTransport) Receive() ([]byte, error) {
	var timeoutCh <-chan time.Time
	if m.timeout > 0 {
		t := time.NewTimer(m.timeout)
		defer t.Stop()
		timeoutCh = t.C
	}
	select {
	case frame, ok := <-m.fromServer:
		if !ok {
			return nil, transport.ErrNotConnected
		}
		return frame, nil
	case <-timeoutCh:
		return nil, timeoutError{}
	case <-m.closed:
		return nil, transport.ErrNotConnected
	}
}

func (m *memTransport) SetReadTimeout(d time.Duration) error {
	m.timeout = d
	return nil
}

func (m *memTransport) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}

func (m *memTransport) RemoteAddr() string { return "mock:445" }

// mockDialer hands the client end to Dial and starts the server loop.
type mockDialer struct {
	server *mockServer
}

func (d *mockDialer) DefaultPort() uint16 { return 445 }

func (d *mockDialer) Dial(ctx context.Context, address string) (transport.Transport, error) {
	mt := &memTransport{
		toServer:   make(chan []byte, 64),
		fromServer: make(chan []byte, 64),
		closed:     make(chan struct{}),
	}
	d.server.start(mt)
	return mt, nil
}

// mockFile is one file stored by the mock server.
type mockFile struct {
	data          []byte
	deletePending bool
}

// mockServer speaks just enough server-side SMB2 to exercise the client:
// negotiate (3.0..3.1.1), NTLMv2 session setup with real key derivation,
// signing and encryption via the shared transformer, and a small
// in-memory filesystem.
type mockServer struct {
	dialect  types.Dialect
	cipher   uint16
	signAlg  uint16
	password string
	user     string
	domain   string

	grantGuest   bool
	requireEnc   bool
	treeEnc      bool
	failTreeOnce bool

	mu          sync.Mutex
	files       map[string]*mockFile
	handles     map[types.FileID]string
	nextHandle  byte
	established bool
	sessionID   uint64

	tr              *transform.Transformer
	serverChallenge [8]byte
	notifyDelay     time.Duration
	notifyEvents    []fscc.FileNotifyInformation

	sawEncrypted bool
	sawSigned    bool
}

func newMockServer(dialect types.Dialect, cipher uint16) *mockServer {
	s := &mockServer{
		dialect:         dialect,
		cipher:          cipher,
		signAlg:         types.SigningAESCMAC,
		password:        "secret",
		user:            "user",
		domain:          "WORKGROUP",
		files:           map[string]*mockFile{},
		handles:         map[types.FileID]string{},
		serverChallenge: [8]byte{1, 2, 3, 4, 5, 6, 7, 8},
		tr:              &transform.Transformer{},
	}
	// The share root always exists for directory opens.
	s.files[""] = &mockFile{}
	return s
}

func (s *mockServer) dialer() *mockDialer { return &mockDialer{server: s} }

func (s *mockServer) start(mt *memTransport) {
	s.tr.SetDialect(s.dialect)
	go s.loop(mt)
}

func (s *mockServer) loop(mt *memTransport) {
	for {
		var frame []byte
		select {
		case frame = <-mt.toServer:
		case <-mt.closed:
			return
		}

		if frame[0] == 0xFD {
			s.mu.Lock()
			s.sawEncrypted = true
			s.mu.Unlock()
		}
		parts, err := s.tr.TransformIncoming(frame)
		if err != nil {
			continue
		}
		for _, part := range parts {
			resp := s.handle(part)
			if resp == nil {
				continue
			}
			select {
			case mt.fromServer <- resp:
			case <-mt.closed:
				return
			}
		}
	}
}

// respond packs, transforms, and returns one response.
func (s *mockServer) respond(req *header.Header, status types.Status, body []byte) []byte {
	return s.respondOpts(req, status, body, transform.Options{})
}

func (s *mockServer) respondOpts(req *header.Header, status types.Status, body []byte, opts transform.Options) []byte {
	hdr := &header.Header{
		CreditCharge: req.CreditCharge,
		Status:       status,
		Command:      req.Command,
		Credits:      64,
		Flags:        types.FlagResponse,
		MessageID:    req.MessageID,
		TreeID:       req.TreeID,
		SessionID:    req.SessionID,
	}
	out, err := s.tr.TransformOutgoing(msg.Pack(hdr, body), opts)
	if err != nil {
		return nil
	}
	return out
}

func (s *mockServer) respondError(req *header.Header, status types.Status) []byte {
	w := smbenc.NewWriter(9)
	w.WriteUint16(9)
	w.WriteUint8(0)
	w.WriteUint8(0)
	w.WriteUint32(0)
	w.WriteUint8(0)
	return s.respond(req, status, w.Bytes())
}

func (s *mockServer) handle(raw []byte) []byte {
	hdr, err := header.Parse(raw)
	if err != nil {
		return nil
	}
	if hdr.IsSigned() {
		s.mu.Lock()
		s.sawSigned = true
		s.mu.Unlock()
	}

	switch hdr.Command {
	case types.CommandNegotiate:
		return s.handleNegotiate(hdr, raw)
	case types.CommandSessionSetup:
		return s.handleSessionSetup(hdr, raw)
	case types.CommandTreeConnect:
		return s.handleTreeConnect(hdr)
	case types.CommandCreate:
		return s.handleCreate(hdr, raw)
	case types.CommandWrite:
		return s.handleWrite(hdr, raw)
	case types.CommandRead:
		return s.handleRead(hdr, raw)
	case types.CommandSetInfo:
		return s.handleSetInfo(hdr, raw)
	case types.CommandClose:
		return s.handleClose(hdr, raw)
	case types.CommandEcho:
		return s.respond(hdr, types.StatusSuccess, echoBody())
	case types.CommandLogoff:
		return s.respond(hdr, types.StatusSuccess, echoBody())
	case types.CommandTreeDisconnect:
		return s.respond(hdr, types.StatusSuccess, echoBody())
	case types.CommandFlush:
		return s.respond(hdr, types.StatusSuccess, echoBody())
	case types.CommandChangeNotify:
		return s.handleChangeNotify(hdr)
	default:
		return s.respondError(hdr, types.StatusNotSupported)
	}
}

func echoBody() []byte {
	w := smbenc.NewWriter(4)
	w.WriteUint16(4)
	w.WriteUint16(0)
	return w.Bytes()
}

func (s *mockServer) handleNegotiate(hdr *header.Header, raw []byte) []byte {
	if s.dialect == types.Dialect0311 {
		s.tr.ArmPreauth()
		s.tr.AccumulatePreauth(raw)
	}

	w := smbenc.NewWriter(256)
	w.WriteUint16(65)
	w.WriteUint16(uint16(types.SecuritySigningEnabled))
	w.WriteUint16(uint16(s.dialect))
	ctxCountPos := w.Len()
	w.WriteUint16(0)
	w.WriteBytes(bytes.Repeat([]byte{0x42}, 16)) // ServerGuid
	caps := types.CapDFS | types.CapLargeMTU
	if s.cipher != 0 {
		caps |= types.CapEncryption
	}
	w.WriteUint32(uint32(caps))
	w.WriteUint32(0x100000)
	w.WriteUint32(0x100000)
	w.WriteUint32(0x100000)
	w.WriteUint64(0)
	w.WriteUint64(0)
	w.WriteUint16(0) // SecurityBufferOffset
	w.WriteUint16(0) // SecurityBufferLength
	ctxOffsetPos := w.Len()
	w.WriteUint32(0)

	if s.dialect == types.Dialect0311 {
		var ctxs []msg.NegotiateContext
		ctxs = append(ctxs, msg.NegotiateContext{
			ContextType: types.NegCtxPreauthIntegrity,
			Data: msg.PreauthIntegrityCaps{
				HashAlgorithms: []uint16{types.HashSHA512},
				Salt:           []byte{9, 9},
			}.Encode(),
		})
		if s.cipher != 0 {
			ctxs = append(ctxs, msg.NegotiateContext{
				ContextType: types.NegCtxEncryption,
				Data:        msg.EncryptionCaps{Ciphers: []uint16{s.cipher}}.Encode(),
			})
		}
		ctxs = append(ctxs, msg.NegotiateContext{
			ContextType: types.NegCtxSigning,
			Data:        msg.SigningCaps{Algorithms: []uint16{s.signAlg}}.Encode(),
		})
		w.Pad(8)
		// Offset is relative to the header start.
		w.PatchUint32(ctxOffsetPos, uint32(header.Size+w.Len()))
		w.PatchUint16(ctxCountPos, uint16(len(ctxs)))
		encodeContextsForTest(w, ctxs)
	}

	// TransformOutgoing folds the response into the armed pre-auth chain.
	return s.respond(hdr, types.StatusSuccess, w.Bytes())
}

// encodeContextsForTest mirrors the request-side context framing.
func encodeContextsForTest(w *smbenc.Writer, ctxs []msg.NegotiateContext) {
	for i, ctx := range ctxs {
		if i > 0 {
			w.Pad(8)
		}
		w.WriteUint16(ctx.ContextType)
		w.WriteUint16(uint16(len(ctx.Data)))
		w.WriteUint32(0)
		w.WriteBytes(ctx.Data)
	}
}

func (s *mockServer) handleSessionSetup(hdr *header.Header, raw []byte) []byte {
	req, err := msg.DecodeSessionSetupRequest(raw)
	if err != nil {
		return s.respondError(hdr, types.StatusInvalidParameter)
	}
	token := req.SecurityBuffer

	// First leg: NTLM NEGOTIATE inside a wrapped NegTokenInit.
	if ntlmType(token) == 1 || bytes.Contains(token, []byte("NTLMSSP\x00\x01")) {
		if s.dialect == types.Dialect0311 {
			s.tr.AccumulatePreauth(raw)
		}
		s.sessionID = 0x00001234
		hdr.SessionID = s.sessionID
		body := sessionSetupBody(0, buildNTLMChallengeForTest(s.serverChallenge))
		return s.respond(hdr, types.StatusMoreProcessingRequired, body)
	}

	// Second leg: NTLM AUTHENTICATE.
	if s.grantGuest {
		return s.respond(hdr, types.StatusSuccess, sessionSetupBody(types.SessionFlagIsGuest, nil))
	}

	sessionKey, ok := s.verifyAuthenticate(token)
	if !ok {
		return s.respondError(hdr, types.StatusLogonFailure)
	}

	if s.dialect == types.Dialect0311 {
		s.tr.AccumulatePreauth(raw)
	}

	// Derive and install mirrored keys before signing the final response.
	preauth := [64]byte(s.tr.PreauthValue())
	keys := crypto.DeriveSessionKeys(sessionKey, s.dialect, preauth, s.cipher)
	mirrored := &crypto.SessionKeys{
		SigningKey:    keys.SigningKey,
		EncryptionKey: keys.DecryptionKey,
		DecryptionKey: keys.EncryptionKey,
	}
	encryptAll := s.requireEnc
	if err := s.tr.InstallKeys(s.sessionID, mirrored, s.signAlg, s.cipher, encryptAll); err != nil {
		return s.respondError(hdr, types.StatusInsufficientResources)
	}
	s.mu.Lock()
	s.established = true
	s.mu.Unlock()

	// The final response travels before the client installs its keys:
	// plain and unverified on the client side.
	return s.respondOpts(hdr, types.StatusSuccess,
		sessionSetupBody(0, nil), transform.Options{SkipSign: true})
}

// verifyAuthenticate checks the NTLMv2 proof and recovers the session key.
func (s *mockServer) verifyAuthenticate(token []byte) ([]byte, bool) {
	// Find the embedded NTLM message inside the SPNEGO NegTokenResp.
	idx := bytes.Index(token, []byte("NTLMSSP\x00"))
	if idx < 0 {
		return nil, false
	}
	m := token[idx:]
	if binary.LittleEndian.Uint32(m[8:12]) != 3 || len(m) < 64 {
		return nil, false
	}

	field := func(off int) []byte {
		l := binary.LittleEndian.Uint16(m[off : off+2])
		o := binary.LittleEndian.Uint32(m[off+4 : off+8])
		if int(o)+int(l) > len(m) {
			return nil
		}
		return m[o : o+uint32(l)]
	}
	ntResponse := field(20)
	encryptedKey := field(52)
	flags := binary.LittleEndian.Uint32(m[60:64])
	if len(ntResponse) < 16 {
		return nil, false
	}
	ntProof := ntResponse[:16]
	temp := ntResponse[16:]

	ntowf := serverNTOWFv2(s.user, s.password, s.domain)
	expected := serverHMACMD5(ntowf, append(s.serverChallenge[:], temp...))
	if !bytes.Equal(expected, ntProof) {
		return nil, false
	}

	base := serverHMACMD5(ntowf, ntProof)
	if flags&0x40000000 != 0 && len(encryptedKey) == 16 {
		c, err := rc4.NewCipher(base)
		if err != nil {
			return nil, false
		}
		out := make([]byte, 16)
		c.XORKeyStream(out, encryptedKey)
		return out, true
	}
	return base, true
}

func serverNTOWFv2(user, password, domain string) []byte {
	h := md4.New()
	h.Write(smbenc.EncodeUTF16(password))
	return serverHMACMD5(h.Sum(nil), smbenc.EncodeUTF16(upperForTest(user)+domain))
}

func upperForTest(s string) string {
	out := []rune(s)
	for i, r := range out {
		if r >= 'a' && r <= 'z' {
			out[i] = r - 32
		}
	}
	return string(out)
}

func serverHMACMD5(key, data []byte) []byte {
	mac := hmac.New(md5.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func ntlmType(token []byte) uint32 {
	idx := bytes.Index(token, []byte("NTLMSSP\x00"))
	if idx < 0 || len(token) < idx+12 {
		return 0
	}
	return binary.LittleEndian.Uint32(token[idx+8 : idx+12])
}

// buildNTLMChallengeForTest wraps an NTLM CHALLENGE in a NegTokenResp.
func buildNTLMChallengeForTest(challenge [8]byte) []byte {
	w := smbenc.NewWriter(64)
	w.WriteBytes([]byte("NTLMSSP\x00"))
	w.WriteUint32(2)
	w.WriteUint16(0)
	w.WriteUint16(0)
	w.WriteUint32(0)
	w.WriteUint32(0x00000001 | 0x00080000 | 0x40000000) // unicode, extended security, key exch
	w.WriteBytes(challenge[:])
	w.WriteZeros(8)
	w.WriteUint16(0)
	w.WriteUint16(0)
	w.WriteUint32(48)
	out, _ := auth.EncodeResp(w.Bytes())
	return out
}

func sessionSetupBody(flags types.SessionFlags, token []byte) []byte {
	w := smbenc.NewWriter(16 + len(token))
	w.WriteUint16(9)
	w.WriteUint16(uint16(flags))
	offPos := w.Len()
	w.WriteUint16(0)
	w.WriteUint16(uint16(len(token)))
	if len(token) > 0 {
		w.PatchUint16(offPos, uint16(header.Size+w.Len()))
		w.WriteBytes(token)
	}
	return w.Bytes()
}

func (s *mockServer) handleTreeConnect(hdr *header.Header) []byte {
	if s.failTreeOnce {
		s.failTreeOnce = false
		return s.respondError(hdr, types.StatusBadNetworkName)
	}
	hdr.TreeID = 3
	w := smbenc.NewWriter(16)
	w.WriteUint16(16)
	w.WriteUint8(uint8(types.ShareTypeDisk))
	w.WriteUint8(0)
	var flags types.ShareFlags
	if s.treeEnc {
		flags |= types.ShareFlagEncryptData
	}
	w.WriteUint32(uint32(flags))
	w.WriteUint32(0)
	w.WriteUint32(uint32(types.GenericAll))
	return s.respond(hdr, types.StatusSuccess, w.Bytes())
}

func (s *mockServer) handleCreate(hdr *header.Header, raw []byte) []byte {
	rr := smbenc.NewReader(raw[header.Size:])
	rr.Skip(36)
	disposition := types.CreateDisposition(rr.ReadUint32())
	rr.Skip(4) // CreateOptions
	nameOffset := rr.ReadUint16()
	nameLength := rr.ReadUint16()
	if rr.Err() != nil {
		return s.respondError(hdr, types.StatusInvalidParameter)
	}
	name := ""
	if nameLength > 0 && int(nameOffset)+int(nameLength) <= len(raw) {
		name = smbenc.DecodeUTF16(raw[nameOffset : nameOffset+nameLength])
	}

	s.mu.Lock()
	f, exists := s.files[name]
	var status types.Status
	action := types.FileOpened
	switch disposition {
	case types.FileCreate:
		if exists {
			status = types.StatusObjectNameCollision
		} else {
			f = &mockFile{}
			s.files[name] = f
			action = types.FileCreated
		}
	case types.FileOpen:
		if !exists || f.deletePending {
			status = types.StatusObjectNameNotFound
		}
	case types.FileOpenIf:
		if !exists {
			f = &mockFile{}
			s.files[name] = f
			action = types.FileCreated
		}
	default:
		f = &mockFile{}
		s.files[name] = f
		action = types.FileCreated
	}
	var fid types.FileID
	if status == types.StatusSuccess {
		s.nextHandle++
		fid[0] = s.nextHandle
		s.handles[fid] = name
	}
	var eof uint64
	if f != nil {
		eof = uint64(len(f.data))
	}
	s.mu.Unlock()

	if status != types.StatusSuccess {
		return s.respondError(hdr, status)
	}

	w := smbenc.NewWriter(96)
	w.WriteUint16(89)
	w.WriteUint8(0)
	w.WriteUint8(0)
	w.WriteUint32(uint32(action))
	w.WriteUint64(0)
	w.WriteUint64(0)
	w.WriteUint64(0)
	w.WriteUint64(0)
	w.WriteUint64(4096)
	w.WriteUint64(eof)
	w.WriteUint32(uint32(types.FileAttributeNormal))
	w.WriteUint32(0)
	w.WriteBytes(fid[:])
	w.WriteUint32(0)
	w.WriteUint32(0)
	return s.respond(hdr, types.StatusSuccess, w.Bytes())
}

func (s *mockServer) fileFor(raw []byte, fidOffset int) (*mockFile, types.FileID, bool) {
	var fid types.FileID
	copy(fid[:], raw[fidOffset:fidOffset+16])
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.handles[fid]
	if !ok {
		return nil, fid, false
	}
	f, ok := s.files[name]
	return f, fid, ok
}

func (s *mockServer) handleWrite(hdr *header.Header, raw []byte) []byte {
	body := raw[header.Size:]
	r := smbenc.NewReader(body)
	r.Skip(2)
	dataOffset := r.ReadUint16()
	length := r.ReadUint32()
	offset := r.ReadUint64()
	f, _, ok := s.fileFor(raw, header.Size+16)
	if !ok || r.Err() != nil {
		return s.respondError(hdr, types.StatusInvalidHandle)
	}
	if int(dataOffset)+int(length) > len(raw) {
		return s.respondError(hdr, types.StatusInvalidParameter)
	}
	data := raw[int(dataOffset) : int(dataOffset)+int(length)]

	s.mu.Lock()
	need := int(offset) + len(data)
	if need > len(f.data) {
		grown := make([]byte, need)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[offset:], data)
	s.mu.Unlock()

	w := smbenc.NewWriter(17)
	w.WriteUint16(17)
	w.WriteUint16(0)
	w.WriteUint32(length)
	w.WriteUint32(0)
	w.WriteUint16(0)
	w.WriteUint16(0)
	return s.respond(hdr, types.StatusSuccess, w.Bytes())
}

func (s *mockServer) handleRead(hdr *header.Header, raw []byte) []byte {
	body := raw[header.Size:]
	r := smbenc.NewReader(body)
	r.Skip(4)
	length := r.ReadUint32()
	offset := r.ReadUint64()
	f, _, ok := s.fileFor(raw, header.Size+16)
	if !ok || r.Err() != nil {
		return s.respondError(hdr, types.StatusInvalidHandle)
	}

	s.mu.Lock()
	var data []byte
	if int(offset) < len(f.data) {
		end := int(offset) + int(length)
		if end > len(f.data) {
			end = len(f.data)
		}
		data = append([]byte{}, f.data[offset:end]...)
	}
	s.mu.Unlock()

	if len(data) == 0 {
		return s.respondError(hdr, types.StatusEndOfFile)
	}

	w := smbenc.NewWriter(24 + len(data))
	w.WriteUint16(17)
	offPos := w.Len()
	w.WriteUint8(0)
	w.WriteUint8(0)
	w.WriteUint32(uint32(len(data)))
	w.WriteUint32(0)
	w.WriteUint32(0)
	w.WriteAt(offPos, []byte{uint8(header.Size + w.Len())})
	w.WriteBytes(data)
	return s.respond(hdr, types.StatusSuccess, w.Bytes())
}

func (s *mockServer) handleSetInfo(hdr *header.Header, raw []byte) []byte {
	body := raw[header.Size:]
	r := smbenc.NewReader(body)
	r.Skip(2)
	infoType := r.ReadUint8()
	infoClass := r.ReadUint8()
	bufLen := r.ReadUint32()
	bufOffset := r.ReadUint16()
	r.Skip(2)
	r.Skip(4)
	f, _, ok := s.fileFor(raw, header.Size+16)
	if !ok || r.Err() != nil {
		return s.respondError(hdr, types.StatusInvalidHandle)
	}

	if infoType == uint8(types.InfoTypeFile) && types.FileInfoClass(infoClass) == types.FileDispositionInformationClass {
		if bufLen > 0 && int(bufOffset) < len(raw) && raw[bufOffset] == 1 {
			s.mu.Lock()
			f.deletePending = true
			s.mu.Unlock()
		}
	}

	w := smbenc.NewWriter(2)
	w.WriteUint16(2)
	return s.respond(hdr, types.StatusSuccess, w.Bytes())
}

func (s *mockServer) handleClose(hdr *header.Header, raw []byte) []byte {
	var fid types.FileID
	copy(fid[:], raw[header.Size+8:header.Size+24])
	s.mu.Lock()
	if name, ok := s.handles[fid]; ok {
		delete(s.handles, fid)
		if f := s.files[name]; f != nil && f.deletePending {
			delete(s.files, name)
		}
	}
	s.mu.Unlock()

	w := smbenc.NewWriter(60)
	w.WriteUint16(60)
	w.WriteUint16(0)
	w.WriteUint32(0)
	w.WriteZeros(52)
	return s.respond(hdr, types.StatusSuccess, w.Bytes())
}

func (s *mockServer) handleChangeNotify(hdr *header.Header) []byte {
	s.mu.Lock()
	events := s.notifyEvents
	s.notifyEvents = nil
	delay := s.notifyDelay
	s.mu.Unlock()

	if events == nil {
		// No more scripted events: end the watch.
		return s.respondError(hdr, types.StatusNotifyCleanup)
	}
	if delay > 0 {
		time.Sleep(delay)
	}

	buf := fscc.EncodeNotifyRecords(events)
	w := smbenc.NewWriter(9 + len(buf))
	w.WriteUint16(9)
	offPos := w.Len()
	w.WriteUint16(0)
	w.WriteUint32(uint32(len(buf)))
	w.PatchUint16(offPos, uint16(header.Size+w.Len()))
	w.WriteBytes(buf)
	return s.respond(hdr, types.StatusSuccess, w.Bytes())
}
