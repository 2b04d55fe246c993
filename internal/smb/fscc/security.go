package fscc

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/marmos91/smbclient/internal/smb/smbenc"
	"github.com/marmos91/smbclient/internal/smb/types"
)

// Security descriptor structures per [MS-DTYP] Section 2.4. Only the
// self-relative form travels on the wire.

// Security descriptor control flags.
// [MS-DTYP] Section 2.4.6
const (
	SDControlDaclPresent       uint16 = 0x0004
	SDControlSaclPresent       uint16 = 0x0010
	SDControlDaclAutoInherited uint16 = 0x0400
	SDControlSaclAutoInherited uint16 = 0x0800
	SDControlSelfRelative      uint16 = 0x8000
)

// SID is a Windows security identifier.
// [MS-DTYP] Section 2.4.2.2
type SID struct {
	Revision            uint8
	IdentifierAuthority uint64 // 48-bit, big-endian on the wire
	SubAuthorities      []uint32
}

// ParseSID parses the "S-1-5-21-..." string form.
func ParseSID(s string) (SID, error) {
	parts := strings.Split(s, "-")
	if len(parts) < 3 || parts[0] != "S" {
		return SID{}, fmt.Errorf("fscc: invalid SID string %q", s)
	}
	rev, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return SID{}, fmt.Errorf("fscc: invalid SID revision in %q: %w", s, err)
	}
	auth, err := strconv.ParseUint(parts[2], 10, 48)
	if err != nil {
		return SID{}, fmt.Errorf("fscc: invalid SID authority in %q: %w", s, err)
	}
	sid := SID{Revision: uint8(rev), IdentifierAuthority: auth}
	for _, p := range parts[3:] {
		sub, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return SID{}, fmt.Errorf("fscc: invalid SID sub-authority in %q: %w", s, err)
		}
		sid.SubAuthorities = append(sid.SubAuthorities, uint32(sub))
	}
	return sid, nil
}

// String returns the "S-1-..." form.
func (s SID) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "S-%d-%d", s.Revision, s.IdentifierAuthority)
	for _, sub := range s.SubAuthorities {
		fmt.Fprintf(&b, "-%d", sub)
	}
	return b.String()
}

// Size returns the wire size of the SID.
func (s SID) Size() int {
	return 8 + 4*len(s.SubAuthorities)
}

// Encode serializes the SID.
func (s SID) Encode() []byte {
	w := smbenc.NewWriter(s.Size())
	w.WriteUint8(s.Revision)
	w.WriteUint8(uint8(len(s.SubAuthorities)))
	var auth [8]byte
	binary.BigEndian.PutUint64(auth[:], s.IdentifierAuthority)
	w.WriteBytes(auth[2:8])
	for _, sub := range s.SubAuthorities {
		w.WriteUint32(sub)
	}
	return w.Bytes()
}

// decodeSID reads a SID at the reader's current position.
func decodeSID(r *smbenc.Reader) (SID, error) {
	var s SID
	s.Revision = r.ReadUint8()
	count := r.ReadUint8()
	auth := r.ReadBytes(6)
	if r.Err() != nil {
		return SID{}, fmt.Errorf("sid: %w", r.Err())
	}
	var full [8]byte
	copy(full[2:], auth)
	s.IdentifierAuthority = binary.BigEndian.Uint64(full[:])
	for i := 0; i < int(count); i++ {
		s.SubAuthorities = append(s.SubAuthorities, r.ReadUint32())
	}
	if r.Err() != nil {
		return SID{}, fmt.Errorf("sid: %w", r.Err())
	}
	return s, nil
}

// DecodeSID parses a SID from the start of data.
func DecodeSID(data []byte) (SID, error) {
	return decodeSID(smbenc.NewReader(data))
}

// ACE types.
// [MS-DTYP] Section 2.4.4.1
const (
	AceTypeAccessAllowed uint8 = 0x00
	AceTypeAccessDenied  uint8 = 0x01
	AceTypeSystemAudit   uint8 = 0x02
)

// ACE flags.
// [MS-DTYP] Section 2.4.4.1
const (
	AceFlagObjectInherit    uint8 = 0x01
	AceFlagContainerInherit uint8 = 0x02
	AceFlagNoPropagate      uint8 = 0x04
	AceFlagInheritOnly      uint8 = 0x08
	AceFlagInherited        uint8 = 0x10
)

// ACE is one access control entry. Only the access-allowed/denied/audit
// shapes (mask + SID) are modeled.
// [MS-DTYP] Section 2.4.4
type ACE struct {
	Type       uint8
	Flags      uint8
	AccessMask types.AccessMask
	SID        SID
}

// Size returns the wire size of the ACE.
func (a ACE) Size() int {
	return 8 + a.SID.Size()
}

// Encode serializes the ACE.
func (a ACE) Encode() []byte {
	w := smbenc.NewWriter(a.Size())
	w.WriteUint8(a.Type)
	w.WriteUint8(a.Flags)
	w.WriteUint16(uint16(a.Size()))
	w.WriteUint32(uint32(a.AccessMask))
	w.WriteBytes(a.SID.Encode())
	return w.Bytes()
}

// ACL revisions.
// [MS-DTYP] Section 2.4.5
const (
	AclRevisionNT4 uint8 = 0x02
	AclRevisionDS  uint8 = 0x04
)

// ACL is an access control list.
// [MS-DTYP] Section 2.4.5
type ACL struct {
	Revision uint8
	ACEs     []ACE
}

// Size returns the wire size of the ACL.
func (a ACL) Size() int {
	n := 8
	for _, ace := range a.ACEs {
		n += ace.Size()
	}
	return n
}

// Encode serializes the ACL.
func (a ACL) Encode() []byte {
	w := smbenc.NewWriter(a.Size())
	w.WriteUint8(a.Revision)
	w.WriteUint8(0) // Sbz1
	w.WriteUint16(uint16(a.Size()))
	w.WriteUint16(uint16(len(a.ACEs)))
	w.WriteUint16(0) // Sbz2
	for _, ace := range a.ACEs {
		w.WriteBytes(ace.Encode())
	}
	return w.Bytes()
}

// decodeACL reads an ACL from the bounded reader.
func decodeACL(r *smbenc.Reader) (*ACL, error) {
	acl := &ACL{}
	acl.Revision = r.ReadUint8()
	r.Skip(1) // Sbz1
	r.Skip(2) // AclSize
	aceCount := r.ReadUint16()
	r.Skip(2) // Sbz2
	if r.Err() != nil {
		return nil, fmt.Errorf("acl: %w", r.Err())
	}
	for i := 0; i < int(aceCount); i++ {
		var ace ACE
		ace.Type = r.ReadUint8()
		ace.Flags = r.ReadUint8()
		r.Skip(2) // AceSize
		ace.AccessMask = types.AccessMask(r.ReadUint32())
		sid, err := decodeSID(r)
		if err != nil {
			return nil, fmt.Errorf("acl ace %d: %w", i, err)
		}
		ace.SID = sid
		if r.Err() != nil {
			return nil, fmt.Errorf("acl ace %d: %w", i, r.Err())
		}
		acl.ACEs = append(acl.ACEs, ace)
	}
	return acl, nil
}

// SecurityDescriptor is the self-relative security descriptor.
// [MS-DTYP] Section 2.4.6
type SecurityDescriptor struct {
	Revision uint8
	Sbz1     uint8
	Control  uint16
	Owner    *SID
	Group    *SID
	SACL     *ACL
	DACL     *ACL
}

// Encode serializes the descriptor in self-relative form, components in
// owner, group, SACL, DACL order.
func (sd SecurityDescriptor) Encode() []byte {
	w := smbenc.NewWriter(64)
	w.WriteUint8(sd.Revision)
	w.WriteUint8(sd.Sbz1)
	w.WriteUint16(sd.Control)
	ownerPos := w.Len()
	w.WriteUint32(0)
	groupPos := w.Len()
	w.WriteUint32(0)
	saclPos := w.Len()
	w.WriteUint32(0)
	daclPos := w.Len()
	w.WriteUint32(0)

	if sd.Owner != nil {
		w.PatchUint32(ownerPos, uint32(w.Len()))
		w.WriteBytes(sd.Owner.Encode())
	}
	if sd.Group != nil {
		w.PatchUint32(groupPos, uint32(w.Len()))
		w.WriteBytes(sd.Group.Encode())
	}
	if sd.SACL != nil {
		w.PatchUint32(saclPos, uint32(w.Len()))
		w.WriteBytes(sd.SACL.Encode())
	}
	if sd.DACL != nil {
		w.PatchUint32(daclPos, uint32(w.Len()))
		w.WriteBytes(sd.DACL.Encode())
	}
	return w.Bytes()
}

// DecodeSecurityDescriptor parses a self-relative security descriptor.
func DecodeSecurityDescriptor(data []byte) (*SecurityDescriptor, error) {
	r := smbenc.NewReader(data)
	sd := &SecurityDescriptor{}
	sd.Revision = r.ReadUint8()
	sd.Sbz1 = r.ReadUint8()
	sd.Control = r.ReadUint16()
	ownerOffset := r.ReadUint32()
	groupOffset := r.ReadUint32()
	saclOffset := r.ReadUint32()
	daclOffset := r.ReadUint32()
	if r.Err() != nil {
		return nil, fmt.Errorf("security descriptor: %w", r.Err())
	}

	if ownerOffset != 0 {
		sub := r.Sub(int(ownerOffset), len(data)-int(ownerOffset))
		sid, err := decodeSID(sub)
		if err != nil {
			return nil, fmt.Errorf("security descriptor owner: %w", err)
		}
		sd.Owner = &sid
	}
	if groupOffset != 0 {
		sub := r.Sub(int(groupOffset), len(data)-int(groupOffset))
		sid, err := decodeSID(sub)
		if err != nil {
			return nil, fmt.Errorf("security descriptor group: %w", err)
		}
		sd.Group = &sid
	}
	if saclOffset != 0 {
		sub := r.Sub(int(saclOffset), len(data)-int(saclOffset))
		acl, err := decodeACL(sub)
		if err != nil {
			return nil, fmt.Errorf("security descriptor sacl: %w", err)
		}
		sd.SACL = acl
	}
	if daclOffset != 0 {
		sub := r.Sub(int(daclOffset), len(data)-int(daclOffset))
		acl, err := decodeACL(sub)
		if err != nil {
			return nil, fmt.Errorf("security descriptor dacl: %w", err)
		}
		sd.DACL = acl
	}
	if r.Err() != nil {
		return nil, fmt.Errorf("security descriptor: %w", r.Err())
	}
	return sd, nil
}
