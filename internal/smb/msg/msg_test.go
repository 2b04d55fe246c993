package msg

import (
	"bytes"
	"errors"
	"testing"

	"github.com/marmos91/smbclient/internal/smb/header"
	"github.com/marmos91/smbclient/internal/smb/smbenc"
	"github.com/marmos91/smbclient/internal/smb/types"
)

// respond builds a full response message: a response header followed by body.
func respond(cmd types.Command, body []byte) []byte {
	h := &header.Header{
		Command: cmd,
		Flags:   types.FlagResponse,
	}
	return Pack(h, body)
}

func TestNegotiateRequestEncode(t *testing.T) {
	req := &NegotiateRequest{
		SecurityMode: types.SecuritySigningEnabled,
		Capabilities: types.CapDFS | types.CapEncryption,
		Dialects:     []types.Dialect{types.Dialect0202, types.Dialect0210, types.Dialect0300, types.Dialect0302, types.Dialect0311},
		Contexts: []NegotiateContext{
			{ContextType: types.NegCtxPreauthIntegrity, Data: PreauthIntegrityCaps{
				HashAlgorithms: []uint16{types.HashSHA512},
				Salt:           bytes.Repeat([]byte{0x5A}, 32),
			}.Encode()},
			{ContextType: types.NegCtxEncryption, Data: EncryptionCaps{
				Ciphers: []uint16{types.CipherAES128GCM, types.CipherAES128CCM},
			}.Encode()},
		},
	}
	body := req.Encode()

	r := smbenc.NewReader(body)
	r.ExpectStructureSize("NEGOTIATE request", 36)
	if got := r.ReadUint16(); got != 5 {
		t.Errorf("dialect count = %d, want 5", got)
	}
	if got := r.ReadUint16(); got != uint16(types.SecuritySigningEnabled) {
		t.Errorf("security mode = 0x%04X", got)
	}
	r.Skip(2)
	if got := r.ReadUint32(); got != uint32(types.CapDFS|types.CapEncryption) {
		t.Errorf("capabilities = 0x%08X", got)
	}
	r.Skip(16)
	ctxOffset := r.ReadUint32()
	ctxCount := r.ReadUint16()
	if ctxCount != 2 {
		t.Fatalf("context count = %d, want 2", ctxCount)
	}
	if r.Err() != nil {
		t.Fatalf("parse error: %v", r.Err())
	}

	// Context area is header-relative and 8-byte aligned.
	bodyOffset := int(ctxOffset) - header.Size
	if bodyOffset%8 != 0 || (bodyOffset+header.Size)%8 != 0 {
		t.Errorf("context offset %d not 8-byte aligned", ctxOffset)
	}
	ctxs, err := decodeNegotiateContexts(smbenc.NewReader(body[bodyOffset:]), 2)
	if err != nil {
		t.Fatalf("decode contexts: %v", err)
	}
	pre, err := DecodePreauthIntegrityCaps(ctxs[0].Data)
	if err != nil {
		t.Fatalf("decode preauth caps: %v", err)
	}
	if len(pre.HashAlgorithms) != 1 || pre.HashAlgorithms[0] != types.HashSHA512 {
		t.Errorf("hash algorithms = %v", pre.HashAlgorithms)
	}
	if len(pre.Salt) != 32 {
		t.Errorf("salt length = %d", len(pre.Salt))
	}
	enc, err := DecodeEncryptionCaps(ctxs[1].Data)
	if err != nil {
		t.Fatalf("decode encryption caps: %v", err)
	}
	if len(enc.Ciphers) != 2 || enc.Ciphers[0] != types.CipherAES128GCM {
		t.Errorf("ciphers = %v", enc.Ciphers)
	}
}

func TestDecodeNegotiateResponse311(t *testing.T) {
	// Hand-build a 3.1.1 server response with preauth + encryption contexts.
	w := smbenc.NewWriter(256)
	w.WriteUint16(65) // StructureSize
	w.WriteUint16(uint16(types.SecuritySigningEnabled))
	w.WriteUint16(uint16(types.Dialect0311))
	w.WriteUint16(2) // NegotiateContextCount
	w.WriteBytes(bytes.Repeat([]byte{0x11}, 16))
	w.WriteUint32(uint32(types.CapDFS | types.CapEncryption))
	w.WriteUint32(0x800000) // MaxTransactSize
	w.WriteUint32(0x800000) // MaxReadSize
	w.WriteUint32(0x800000) // MaxWriteSize
	w.WriteUint64(0)        // SystemTime
	w.WriteUint64(0)        // ServerStartTime
	secOffsetPos := w.Len()
	w.WriteUint16(0) // SecurityBufferOffset
	w.WriteUint16(4) // SecurityBufferLength
	ctxOffsetPos := w.Len()
	w.WriteUint32(0)
	w.PatchUint16(secOffsetPos, uint16(header.Size+w.Len()))
	w.WriteBytes([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	w.Pad(8)
	w.PatchUint32(ctxOffsetPos, uint32(header.Size+w.Len()))
	encodeNegotiateContexts(w, []NegotiateContext{
		{ContextType: types.NegCtxPreauthIntegrity, Data: PreauthIntegrityCaps{HashAlgorithms: []uint16{types.HashSHA512}, Salt: []byte{1, 2}}.Encode()},
		{ContextType: types.NegCtxEncryption, Data: EncryptionCaps{Ciphers: []uint16{types.CipherAES128GCM}}.Encode()},
	})

	message := respond(types.CommandNegotiate, w.Bytes())
	resp, err := DecodeNegotiateResponse(message)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.DialectRevision != types.Dialect0311 {
		t.Errorf("dialect = %v", resp.DialectRevision)
	}
	if !bytes.Equal(resp.SecurityBuffer, []byte{0xDE, 0xAD, 0xBE, 0xEF}) {
		t.Errorf("security buffer = % X", resp.SecurityBuffer)
	}
	if len(resp.Contexts) != 2 {
		t.Fatalf("contexts = %d, want 2", len(resp.Contexts))
	}
	encCtx := FindContext(resp.Contexts, types.NegCtxEncryption)
	if encCtx == nil {
		t.Fatal("missing encryption context")
	}
	caps, err := DecodeEncryptionCaps(encCtx.Data)
	if err != nil {
		t.Fatalf("decode encryption caps: %v", err)
	}
	if len(caps.Ciphers) != 1 || caps.Ciphers[0] != types.CipherAES128GCM {
		t.Errorf("ciphers = %v", caps.Ciphers)
	}
}

func TestDecodeNegotiateResponseBadStructureSize(t *testing.T) {
	w := smbenc.NewWriter(80)
	w.WriteUint16(64) // wrong
	w.WriteZeros(70)
	_, err := DecodeNegotiateResponse(respond(types.CommandNegotiate, w.Bytes()))
	var sizeErr *smbenc.StructureSizeError
	if !errors.As(err, &sizeErr) {
		t.Fatalf("expected StructureSizeError, got %v", err)
	}
	if sizeErr.Want != 65 || sizeErr.Got != 64 {
		t.Errorf("unexpected error contents: %+v", sizeErr)
	}
}

func TestSessionSetupRoundTrip(t *testing.T) {
	req := &SessionSetupRequest{
		SecurityMode:   types.SecuritySigningEnabled,
		Capabilities:   types.CapDFS,
		SecurityBuffer: []byte("spnego-token"),
	}
	body := req.Encode()

	r := smbenc.NewReader(body)
	r.ExpectStructureSize("SESSION_SETUP request", 25)
	r.Skip(2) // Flags, SecurityMode
	r.Skip(4) // Capabilities
	r.Skip(4) // Channel
	secOffset := r.ReadUint16()
	secLength := r.ReadUint16()
	if r.Err() != nil {
		t.Fatalf("parse: %v", r.Err())
	}
	start := int(secOffset) - header.Size
	if got := body[start : start+int(secLength)]; !bytes.Equal(got, []byte("spnego-token")) {
		t.Errorf("token = %q", got)
	}

	// Response with a continue token.
	w := smbenc.NewWriter(32)
	w.WriteUint16(9)
	w.WriteUint16(uint16(types.SessionFlagIsGuest))
	tokOffsetPos := w.Len()
	w.WriteUint16(0)
	w.WriteUint16(5)
	w.PatchUint16(tokOffsetPos, uint16(header.Size+w.Len()))
	w.WriteBytes([]byte("reply"))
	resp, err := DecodeSessionSetupResponse(respond(types.CommandSessionSetup, w.Bytes()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.IsGuest() {
		t.Error("guest flag lost")
	}
	if !bytes.Equal(resp.SecurityBuffer, []byte("reply")) {
		t.Errorf("buffer = %q", resp.SecurityBuffer)
	}
}

func TestTreeConnect(t *testing.T) {
	req := &TreeConnectRequest{Path: `\\srv\share`}
	body := req.Encode()
	r := smbenc.NewReader(body)
	r.ExpectStructureSize("TREE_CONNECT request", 9)
	r.Skip(2)
	pathOffset := r.ReadUint16()
	pathLength := r.ReadUint16()
	if r.Err() != nil {
		t.Fatalf("parse: %v", r.Err())
	}
	start := int(pathOffset) - header.Size
	if got := smbenc.DecodeUTF16(body[start : start+int(pathLength)]); got != `\\srv\share` {
		t.Errorf("path = %q", got)
	}

	w := smbenc.NewWriter(16)
	w.WriteUint16(16)
	w.WriteUint8(uint8(types.ShareTypeDisk))
	w.WriteUint8(0)
	w.WriteUint32(uint32(types.ShareFlagEncryptData))
	w.WriteUint32(uint32(types.ShareCapDFS))
	w.WriteUint32(uint32(types.GenericAll))
	resp, err := DecodeTreeConnectResponse(respond(types.CommandTreeConnect, w.Bytes()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.EncryptData() {
		t.Error("encrypt-data flag lost")
	}
	if resp.ShareType != types.ShareTypeDisk {
		t.Errorf("share type = %v", resp.ShareType)
	}
}

func TestCreateRequestWithContexts(t *testing.T) {
	var leaseKey [16]byte
	copy(leaseKey[:], bytes.Repeat([]byte{0x77}, 16))
	req := &CreateRequest{
		OplockLevel:       types.OplockLevelLease,
		DesiredAccess:     types.FileReadData | types.FileWriteData,
		ShareAccess:       types.FileShareRead,
		CreateDisposition: types.FileCreate,
		CreateOptions:     types.FileNonDirectoryFile,
		Name:              "dir\\basic.txt",
		Contexts: []CreateContext{
			{Name: CreateCtxLeaseV1, Data: LeaseContext{LeaseKey: leaseKey, LeaseState: types.LeaseStateRead | types.LeaseStateHandle}.Encode()},
			{Name: CreateCtxQueryOnDiskID},
		},
	}
	body := req.Encode()

	r := smbenc.NewReader(body)
	r.ExpectStructureSize("CREATE request", 57)
	r.Skip(2)  // SecurityFlags, OplockLevel
	r.Skip(4)  // ImpersonationLevel
	r.Skip(16) // SmbCreateFlags, Reserved
	r.Skip(20) // access, attrs, share, disposition, options
	nameOffset := r.ReadUint16()
	nameLength := r.ReadUint16()
	ctxOffset := r.ReadUint32()
	ctxLength := r.ReadUint32()
	if r.Err() != nil {
		t.Fatalf("parse: %v", r.Err())
	}
	nameStart := int(nameOffset) - header.Size
	if got := smbenc.DecodeUTF16(body[nameStart : nameStart+int(nameLength)]); got != "dir\\basic.txt" {
		t.Errorf("name = %q", got)
	}
	if (int(ctxOffset))%8 != 0 {
		t.Errorf("context offset %d not aligned", ctxOffset)
	}
	ctxStart := int(ctxOffset) - header.Size
	ctxs, err := decodeCreateContexts(smbenc.NewReader(body[ctxStart : ctxStart+int(ctxLength)]))
	if err != nil {
		t.Fatalf("decode contexts: %v", err)
	}
	if len(ctxs) != 2 {
		t.Fatalf("context count = %d", len(ctxs))
	}
	if ctxs[0].Name != CreateCtxLeaseV1 || ctxs[1].Name != CreateCtxQueryOnDiskID {
		t.Errorf("context names = %q, %q", ctxs[0].Name, ctxs[1].Name)
	}
	lease, err := DecodeLeaseContext(ctxs[0].Data)
	if err != nil {
		t.Fatalf("decode lease: %v", err)
	}
	if lease.LeaseKey != leaseKey {
		t.Error("lease key mismatch")
	}
	if lease.LeaseState != types.LeaseStateRead|types.LeaseStateHandle {
		t.Errorf("lease state = 0x%X", lease.LeaseState)
	}
}

func TestDecodeCreateResponse(t *testing.T) {
	var fid types.FileID
	copy(fid[:], bytes.Repeat([]byte{0xCD}, 16))
	w := smbenc.NewWriter(96)
	w.WriteUint16(89)
	w.WriteUint8(0) // OplockLevel
	w.WriteUint8(0) // Flags
	w.WriteUint32(uint32(types.FileCreated))
	w.WriteUint64(1) // CreationTime
	w.WriteUint64(2)
	w.WriteUint64(3)
	w.WriteUint64(4)
	w.WriteUint64(4096)
	w.WriteUint64(13)
	w.WriteUint32(uint32(types.FileAttributeNormal))
	w.WriteUint32(0)
	w.WriteBytes(fid[:])
	w.WriteUint32(0)
	w.WriteUint32(0)
	resp, err := DecodeCreateResponse(respond(types.CommandCreate, w.Bytes()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.FileID != fid {
		t.Error("file id mismatch")
	}
	if resp.CreateAction != types.FileCreated {
		t.Errorf("create action = %v", resp.CreateAction)
	}
	if resp.EndOfFile != 13 {
		t.Errorf("eof = %d", resp.EndOfFile)
	}
}

func TestReadWriteFlush(t *testing.T) {
	var fid types.FileID
	fid[0] = 1

	rr := &ReadRequest{Length: 15, Offset: 0, FileID: fid}
	body := rr.Encode()
	if len(body) != 49 {
		t.Errorf("read request length = %d, want 49", len(body))
	}

	// READ response carrying "Hello, World!".
	data := []byte("Hello, World!")
	w := smbenc.NewWriter(32 + len(data))
	w.WriteUint16(17)
	offPos := w.Len()
	w.WriteUint8(0) // DataOffset
	w.WriteUint8(0)
	w.WriteUint32(uint32(len(data)))
	w.WriteUint32(0)
	w.WriteUint32(0)
	w.WriteAt(offPos, []byte{uint8(header.Size + w.Len())})
	w.WriteBytes(data)
	resp, err := DecodeReadResponse(respond(types.CommandRead, w.Bytes()))
	if err != nil {
		t.Fatalf("decode read: %v", err)
	}
	if !bytes.Equal(resp.Data, data) {
		t.Errorf("data = %q", resp.Data)
	}

	wr := &WriteRequest{Offset: 0, FileID: fid, Data: data}
	wbody := wr.Encode()
	r := smbenc.NewReader(wbody)
	r.ExpectStructureSize("WRITE request", 49)
	dataOffset := r.ReadUint16()
	dataLength := r.ReadUint32()
	if r.Err() != nil {
		t.Fatalf("parse: %v", r.Err())
	}
	start := int(dataOffset) - header.Size
	if got := wbody[start : start+int(dataLength)]; !bytes.Equal(got, data) {
		t.Errorf("write payload = %q", got)
	}

	ww := smbenc.NewWriter(17)
	ww.WriteUint16(17)
	ww.WriteUint16(0)
	ww.WriteUint32(13)
	ww.WriteUint32(0)
	ww.WriteUint16(0)
	ww.WriteUint16(0)
	wresp, err := DecodeWriteResponse(respond(types.CommandWrite, ww.Bytes()))
	if err != nil {
		t.Fatalf("decode write: %v", err)
	}
	if wresp.Count != 13 {
		t.Errorf("count = %d", wresp.Count)
	}

	fr := &FlushRequest{FileID: fid}
	if len(fr.Encode()) != 24 {
		t.Error("flush request must be 24 bytes")
	}
}

func TestQueryDirectoryRequest(t *testing.T) {
	req := &QueryDirectoryRequest{
		FileInfoClass:      types.FileIdBothDirectoryInformationClass,
		Flags:              types.RestartScans,
		Pattern:            "*",
		OutputBufferLength: 65536,
	}
	body := req.Encode()
	r := smbenc.NewReader(body)
	r.ExpectStructureSize("QUERY_DIRECTORY request", 33)
	if got := r.ReadUint8(); got != uint8(types.FileIdBothDirectoryInformationClass) {
		t.Errorf("class = %d", got)
	}
	if got := r.ReadUint8(); got != uint8(types.RestartScans) {
		t.Errorf("flags = 0x%X", got)
	}
	if r.Err() != nil {
		t.Fatalf("parse: %v", r.Err())
	}
}

func TestErrorResponseDecode(t *testing.T) {
	w := smbenc.NewWriter(16)
	w.WriteUint16(9)
	w.WriteUint8(0)
	w.WriteUint8(0)
	w.WriteUint32(0)
	// Servers commonly send one pad byte of error data with ByteCount 0.
	w.WriteUint8(0)
	resp, err := DecodeErrorResponse(respond(types.CommandCreate, w.Bytes()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.ErrorData) != 0 {
		t.Errorf("error data = % X", resp.ErrorData)
	}
}

func TestCompoundChainRoundTrip(t *testing.T) {
	mk := func(id uint64, cmd types.Command, bodyLen int) []byte {
		h := &header.Header{Command: cmd, MessageID: id}
		return Pack(h, make([]byte, bodyLen))
	}
	m1 := mk(1, types.CommandCreate, 57)
	m2 := mk(2, types.CommandQueryInfo, 41)
	m3 := mk(3, types.CommandClose, 24)

	frame := AssembleChain([][]byte{m1, m2, m3})
	parts, err := WalkChain(frame)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(parts) != 3 {
		t.Fatalf("parts = %d, want 3", len(parts))
	}
	for i, want := range []uint64{1, 2, 3} {
		hdr, err := header.Parse(parts[i])
		if err != nil {
			t.Fatalf("parse part %d: %v", i, err)
		}
		if hdr.MessageID != want {
			t.Errorf("part %d message id = %d, want %d", i, hdr.MessageID, want)
		}
		// Every element but the last starts 8-byte aligned.
		if i < 2 && len(parts[i])%8 != 0 {
			t.Errorf("part %d length %d not 8-byte aligned", i, len(parts[i]))
		}
	}
}

func TestWalkChainOutOfBounds(t *testing.T) {
	h := &header.Header{Command: types.CommandEcho}
	m := Pack(h, make([]byte, 4))
	// Corrupt NextCommand to point past the frame.
	m[20] = 0xFF
	m[21] = 0xFF
	if _, err := WalkChain(m); err == nil {
		t.Fatal("expected out-of-bounds error")
	}
}

func TestSMB1NegotiateProbe(t *testing.T) {
	probe := EncodeSMB1NegotiateRequest()
	if len(probe) < 33 {
		t.Fatalf("probe too short: %d", len(probe))
	}
	if probe[0] != 0xFF || probe[1] != 'S' || probe[2] != 'M' || probe[3] != 'B' {
		t.Errorf("bad SMB1 magic: % X", probe[:4])
	}
	if probe[4] != 0x72 {
		t.Errorf("command = 0x%02X, want 0x72", probe[4])
	}
	if !bytes.Contains(probe, []byte("SMB 2.002")) || !bytes.Contains(probe, []byte("SMB 2.???")) {
		t.Error("dialect strings missing")
	}
}
