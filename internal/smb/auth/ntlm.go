package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/rc4"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/md4"

	"github.com/marmos91/smbclient/internal/smb/smbenc"
)

// NTLM message types.
const (
	ntlmNegotiate    uint32 = 1
	ntlmChallenge    uint32 = 2
	ntlmAuthenticate uint32 = 3
)

// ntlmSignature prefixes every NTLM message.
var ntlmSignature = []byte{'N', 'T', 'L', 'M', 'S', 'S', 'P', 0}

// NTLM negotiate flags, [MS-NLMP] Section 2.2.2.5.
const (
	ntlmNegotiateUnicode          uint32 = 0x00000001
	ntlmRequestTarget             uint32 = 0x00000004
	ntlmNegotiateSign             uint32 = 0x00000010
	ntlmNegotiateSeal             uint32 = 0x00000020
	ntlmNegotiateNTLM             uint32 = 0x00000200
	ntlmNegotiateAlwaysSign       uint32 = 0x00008000
	ntlmNegotiateExtendedSecurity uint32 = 0x00080000
	ntlmNegotiateTargetInfo       uint32 = 0x00800000
	ntlmNegotiateVersion          uint32 = 0x02000000
	ntlmNegotiate128              uint32 = 0x20000000
	ntlmNegotiateKeyExch          uint32 = 0x40000000
	ntlmNegotiate56               uint32 = 0x80000000
)

// Target info AvId values, [MS-NLMP] Section 2.2.2.1.
const (
	avIDEOL       uint16 = 0x0000
	avIDTimestamp uint16 = 0x0007
)

// NTLMProvider implements the NTLMv2 client side of the exchange.
// [MS-NLMP]
type NTLMProvider struct {
	creds      Credentials
	sessionKey []byte

	// testing hooks; production paths use crypto/rand and time.Now
	clientChallenge func() [8]byte
	exportedKey     func() [16]byte
	now             func() time.Time
}

// NewNTLMProvider builds the NTLMv2 mechanism for the given credentials.
func NewNTLMProvider(creds Credentials) *NTLMProvider {
	return &NTLMProvider{
		creds: creds,
		clientChallenge: func() [8]byte {
			var c [8]byte
			rand.Read(c[:])
			return c
		},
		exportedKey: func() [16]byte {
			var k [16]byte
			rand.Read(k[:])
			return k
		},
		now: time.Now,
	}
}

// OID implements Mechanism.
func (p *NTLMProvider) OID() []int { return OIDNTLMSSP }

// SessionKey implements Mechanism.
func (p *NTLMProvider) SessionKey() []byte { return p.sessionKey }

// InitialToken builds the NEGOTIATE (type 1) message.
func (p *NTLMProvider) InitialToken() ([]byte, error) {
	w := smbenc.NewWriter(40)
	w.WriteBytes(ntlmSignature)
	w.WriteUint32(ntlmNegotiate)
	w.WriteUint32(ntlmNegotiateUnicode | ntlmRequestTarget | ntlmNegotiateSign |
		ntlmNegotiateNTLM | ntlmNegotiateAlwaysSign | ntlmNegotiateExtendedSecurity |
		ntlmNegotiateTargetInfo | ntlmNegotiate128 | ntlmNegotiateKeyExch | ntlmNegotiate56)
	// Domain and workstation fields: empty, offsets point past the header.
	w.WriteUint16(0)
	w.WriteUint16(0)
	w.WriteUint32(40)
	w.WriteUint16(0)
	w.WriteUint16(0)
	w.WriteUint32(40)
	return w.Bytes(), nil
}

// challengeMessage is the parsed CHALLENGE (type 2) message.
type challengeMessage struct {
	flags           uint32
	serverChallenge [8]byte
	targetInfo      []byte
}

func parseChallenge(token []byte) (*challengeMessage, error) {
	if len(token) < 48 || !bytes.Equal(token[:8], ntlmSignature) {
		return nil, fmt.Errorf("%w: malformed NTLM challenge", ErrAuthFailed)
	}
	if binary.LittleEndian.Uint32(token[8:12]) != ntlmChallenge {
		return nil, fmt.Errorf("%w: expected NTLM CHALLENGE", ErrAuthFailed)
	}

	c := &challengeMessage{}
	c.flags = binary.LittleEndian.Uint32(token[20:24])
	copy(c.serverChallenge[:], token[24:32])

	tiLen := binary.LittleEndian.Uint16(token[40:42])
	tiOffset := binary.LittleEndian.Uint32(token[44:48])
	if tiLen > 0 {
		if int(tiOffset)+int(tiLen) > len(token) {
			return nil, fmt.Errorf("%w: target info out of bounds", ErrAuthFailed)
		}
		c.targetInfo = token[tiOffset : tiOffset+uint32(tiLen)]
	}
	return c, nil
}

// AcceptChallenge consumes the CHALLENGE and produces the AUTHENTICATE
// (type 3) message; the exchange completes in this single step.
func (p *NTLMProvider) AcceptChallenge(token []byte) ([]byte, bool, error) {
	challenge, err := parseChallenge(token)
	if err != nil {
		return nil, false, err
	}

	ntowf := ntowfv2(p.creds.Username, p.creds.Password, p.creds.Domain)
	clientChallenge := p.clientChallenge()
	timestamp := p.challengeTimestamp(challenge)

	temp := buildTemp(timestamp, clientChallenge, challenge.targetInfo)
	ntProof := hmacMD5(ntowf, append(challenge.serverChallenge[:], temp...))
	ntResponse := append(ntProof, temp...)

	sessionBaseKey := hmacMD5(ntowf, ntProof)

	var sessionKey, encryptedSessionKey []byte
	if challenge.flags&ntlmNegotiateKeyExch != 0 {
		exported := p.exportedKey()
		cipher, err := rc4.NewCipher(sessionBaseKey)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrAuthFailed, err)
		}
		encryptedSessionKey = make([]byte, 16)
		cipher.XORKeyStream(encryptedSessionKey, exported[:])
		sessionKey = exported[:]
	} else {
		sessionKey = sessionBaseKey
	}
	p.sessionKey = sessionKey

	return p.buildAuthenticate(challenge.flags, ntResponse, encryptedSessionKey), true, nil
}

// challengeTimestamp prefers the server's timestamp from target info to
// avoid clock-skew rejections.
func (p *NTLMProvider) challengeTimestamp(c *challengeMessage) uint64 {
	ti := c.targetInfo
	for len(ti) >= 4 {
		avID := binary.LittleEndian.Uint16(ti[0:2])
		avLen := binary.LittleEndian.Uint16(ti[2:4])
		if avID == avIDEOL {
			break
		}
		if int(avLen)+4 > len(ti) {
			break
		}
		if avID == avIDTimestamp && avLen == 8 {
			return binary.LittleEndian.Uint64(ti[4:12])
		}
		ti = ti[4+avLen:]
	}
	// FILETIME from wall clock.
	return uint64(p.now().UnixNano()/100) + 116444736000000000
}

// buildTemp assembles the NTLMv2 client challenge blob.
// [MS-NLMP] Section 2.2.2.7
func buildTemp(timestamp uint64, clientChallenge [8]byte, targetInfo []byte) []byte {
	w := smbenc.NewWriter(32 + len(targetInfo))
	w.WriteUint8(1) // RespType
	w.WriteUint8(1) // HiRespType
	w.WriteZeros(6)
	w.WriteUint64(timestamp)
	w.WriteBytes(clientChallenge[:])
	w.WriteZeros(4)
	w.WriteBytes(targetInfo)
	w.WriteZeros(4)
	return w.Bytes()
}

// buildAuthenticate assembles the AUTHENTICATE (type 3) message.
func (p *NTLMProvider) buildAuthenticate(flags uint32, ntResponse, encryptedSessionKey []byte) []byte {
	domain := smbenc.EncodeUTF16(p.creds.Domain)
	user := smbenc.EncodeUTF16(p.creds.Username)
	workstation := smbenc.EncodeUTF16(p.creds.Workstation)
	lmResponse := make([]byte, 24) // Z(24): LMv2 is not sent with NTLMv2

	const headerLen = 64
	w := smbenc.NewWriter(headerLen + len(domain) + len(user) + len(workstation) + len(ntResponse) + len(encryptedSessionKey) + 24)
	w.WriteBytes(ntlmSignature)
	w.WriteUint32(ntlmAuthenticate)

	offset := headerLen
	writeField := func(length int) {
		w.WriteUint16(uint16(length))
		w.WriteUint16(uint16(length))
		w.WriteUint32(uint32(offset))
		offset += length
	}
	writeField(len(lmResponse))
	writeField(len(ntResponse))
	writeField(len(domain))
	writeField(len(user))
	writeField(len(workstation))
	writeField(len(encryptedSessionKey))

	authFlags := flags &^ ntlmNegotiateVersion
	if len(encryptedSessionKey) == 0 {
		authFlags &^= ntlmNegotiateKeyExch
	}
	w.WriteUint32(authFlags)

	w.WriteBytes(lmResponse)
	w.WriteBytes(ntResponse)
	w.WriteBytes(domain)
	w.WriteBytes(user)
	w.WriteBytes(workstation)
	w.WriteBytes(encryptedSessionKey)
	return w.Bytes()
}

// ntowfv2 computes the NTLMv2 hash:
// HMAC-MD5(MD4(UTF16LE(password)), UTF16LE(UPPER(user) + domain)).
// [MS-NLMP] Section 3.3.2
func ntowfv2(user, password, domain string) []byte {
	h := md4.New()
	h.Write(smbenc.EncodeUTF16(password))
	ntHash := h.Sum(nil)
	return hmacMD5(ntHash, smbenc.EncodeUTF16(strings.ToUpper(user)+domain))
}

func hmacMD5(key, data []byte) []byte {
	mac := hmac.New(md5.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}
