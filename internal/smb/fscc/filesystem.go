package fscc

import (
	"fmt"

	"github.com/marmos91/smbclient/internal/smb/smbenc"
	"github.com/marmos91/smbclient/internal/smb/types"
)

// FsInfo is implemented by every filesystem information class value.
type FsInfo interface {
	FsClass() types.FsInfoClass
}

// FileFsSizeInformation, [MS-FSCC] 2.5.8.
type FileFsSizeInformation struct {
	TotalAllocationUnits     uint64
	AvailableAllocationUnits uint64
	SectorsPerAllocationUnit uint32
	BytesPerSector           uint32
}

// FsClass implements FsInfo.
func (FileFsSizeInformation) FsClass() types.FsInfoClass { return types.FileFsSizeInformationClass }

// Encode serializes the structure (24 bytes).
func (i FileFsSizeInformation) Encode() []byte {
	w := smbenc.NewWriter(24)
	w.WriteUint64(i.TotalAllocationUnits)
	w.WriteUint64(i.AvailableAllocationUnits)
	w.WriteUint32(i.SectorsPerAllocationUnit)
	w.WriteUint32(i.BytesPerSector)
	return w.Bytes()
}

// DecodeFileFsSizeInformation parses the structure.
func DecodeFileFsSizeInformation(data []byte) (FileFsSizeInformation, error) {
	r := smbenc.NewReader(data)
	i := FileFsSizeInformation{
		TotalAllocationUnits:     r.ReadUint64(),
		AvailableAllocationUnits: r.ReadUint64(),
		SectorsPerAllocationUnit: r.ReadUint32(),
		BytesPerSector:           r.ReadUint32(),
	}
	if r.Err() != nil {
		return FileFsSizeInformation{}, fmt.Errorf("fs size information: %w", r.Err())
	}
	return i, nil
}

// FileFsFullSizeInformation, [MS-FSCC] 2.5.4.
type FileFsFullSizeInformation struct {
	TotalAllocationUnits           uint64
	CallerAvailableAllocationUnits uint64
	ActualAvailableAllocationUnits uint64
	SectorsPerAllocationUnit       uint32
	BytesPerSector                 uint32
}

// FsClass implements FsInfo.
func (FileFsFullSizeInformation) FsClass() types.FsInfoClass {
	return types.FileFsFullSizeInformationClass
}

// Encode serializes the structure (32 bytes).
func (i FileFsFullSizeInformation) Encode() []byte {
	w := smbenc.NewWriter(32)
	w.WriteUint64(i.TotalAllocationUnits)
	w.WriteUint64(i.CallerAvailableAllocationUnits)
	w.WriteUint64(i.ActualAvailableAllocationUnits)
	w.WriteUint32(i.SectorsPerAllocationUnit)
	w.WriteUint32(i.BytesPerSector)
	return w.Bytes()
}

// DecodeFileFsFullSizeInformation parses the structure.
func DecodeFileFsFullSizeInformation(data []byte) (FileFsFullSizeInformation, error) {
	r := smbenc.NewReader(data)
	i := FileFsFullSizeInformation{
		TotalAllocationUnits:           r.ReadUint64(),
		CallerAvailableAllocationUnits: r.ReadUint64(),
		ActualAvailableAllocationUnits: r.ReadUint64(),
		SectorsPerAllocationUnit:       r.ReadUint32(),
		BytesPerSector:                 r.ReadUint32(),
	}
	if r.Err() != nil {
		return FileFsFullSizeInformation{}, fmt.Errorf("fs full size information: %w", r.Err())
	}
	return i, nil
}

// FileFsAttributeInformation, [MS-FSCC] 2.5.1.
type FileFsAttributeInformation struct {
	FileSystemAttributes       uint32
	MaximumComponentNameLength uint32
	FileSystemName             string
}

// FsClass implements FsInfo.
func (FileFsAttributeInformation) FsClass() types.FsInfoClass {
	return types.FileFsAttributeInformationClass
}

// Encode serializes the structure.
func (i FileFsAttributeInformation) Encode() []byte {
	name := smbenc.EncodeUTF16(i.FileSystemName)
	w := smbenc.NewWriter(12 + len(name))
	w.WriteUint32(i.FileSystemAttributes)
	w.WriteUint32(i.MaximumComponentNameLength)
	w.WriteUint32(uint32(len(name)))
	w.WriteBytes(name)
	return w.Bytes()
}

// DecodeFileFsAttributeInformation parses the structure.
func DecodeFileFsAttributeInformation(data []byte) (FileFsAttributeInformation, error) {
	r := smbenc.NewReader(data)
	attrs := r.ReadUint32()
	maxName := r.ReadUint32()
	nameLen := r.ReadUint32()
	name := r.ReadUTF16String(int(nameLen))
	if r.Err() != nil {
		return FileFsAttributeInformation{}, fmt.Errorf("fs attribute information: %w", r.Err())
	}
	return FileFsAttributeInformation{
		FileSystemAttributes:       attrs,
		MaximumComponentNameLength: maxName,
		FileSystemName:             name,
	}, nil
}

// FileFsVolumeInformation, [MS-FSCC] 2.5.9.
type FileFsVolumeInformation struct {
	VolumeCreationTime uint64
	VolumeSerialNumber uint32
	SupportsObjects    bool
	VolumeLabel        string
}

// FsClass implements FsInfo.
func (FileFsVolumeInformation) FsClass() types.FsInfoClass {
	return types.FileFsVolumeInformationClass
}

// Encode serializes the structure.
func (i FileFsVolumeInformation) Encode() []byte {
	label := smbenc.EncodeUTF16(i.VolumeLabel)
	w := smbenc.NewWriter(18 + len(label))
	w.WriteUint64(i.VolumeCreationTime)
	w.WriteUint32(i.VolumeSerialNumber)
	w.WriteUint32(uint32(len(label)))
	w.WriteUint8(boolByte(i.SupportsObjects))
	w.WriteUint8(0) // Reserved
	w.WriteBytes(label)
	return w.Bytes()
}

// DecodeFileFsVolumeInformation parses the structure.
func DecodeFileFsVolumeInformation(data []byte) (FileFsVolumeInformation, error) {
	r := smbenc.NewReader(data)
	created := r.ReadUint64()
	serial := r.ReadUint32()
	labelLen := r.ReadUint32()
	supportsObjects := r.ReadUint8() != 0
	r.Skip(1) // Reserved
	label := r.ReadUTF16String(int(labelLen))
	if r.Err() != nil {
		return FileFsVolumeInformation{}, fmt.Errorf("fs volume information: %w", r.Err())
	}
	return FileFsVolumeInformation{
		VolumeCreationTime: created,
		VolumeSerialNumber: serial,
		SupportsObjects:    supportsObjects,
		VolumeLabel:        label,
	}, nil
}

// FileFsDeviceInformation, [MS-FSCC] 2.5.10.
type FileFsDeviceInformation struct {
	DeviceType      uint32
	Characteristics uint32
}

// FsClass implements FsInfo.
func (FileFsDeviceInformation) FsClass() types.FsInfoClass {
	return types.FileFsDeviceInformationClass
}

// Encode serializes the structure (8 bytes).
func (i FileFsDeviceInformation) Encode() []byte {
	w := smbenc.NewWriter(8)
	w.WriteUint32(i.DeviceType)
	w.WriteUint32(i.Characteristics)
	return w.Bytes()
}

// DecodeFileFsDeviceInformation parses the structure.
func DecodeFileFsDeviceInformation(data []byte) (FileFsDeviceInformation, error) {
	r := smbenc.NewReader(data)
	i := FileFsDeviceInformation{
		DeviceType:      r.ReadUint32(),
		Characteristics: r.ReadUint32(),
	}
	if r.Err() != nil {
		return FileFsDeviceInformation{}, fmt.Errorf("fs device information: %w", r.Err())
	}
	return i, nil
}

// DecodeFsInfo dispatches a filesystem query-info output buffer by class.
func DecodeFsInfo(class types.FsInfoClass, data []byte) (FsInfo, error) {
	switch class {
	case types.FileFsSizeInformationClass:
		return DecodeFileFsSizeInformation(data)
	case types.FileFsFullSizeInformationClass:
		return DecodeFileFsFullSizeInformation(data)
	case types.FileFsAttributeInformationClass:
		return DecodeFileFsAttributeInformation(data)
	case types.FileFsVolumeInformationClass:
		return DecodeFileFsVolumeInformation(data)
	case types.FileFsDeviceInformationClass:
		return DecodeFileFsDeviceInformation(data)
	default:
		return nil, fmt.Errorf("fscc: no decoder for filesystem info class %d", class)
	}
}
