// Package fscc implements the [MS-FSCC] structures carried inside SMB2
// QUERY_INFO, SET_INFO, QUERY_DIRECTORY, and CHANGE_NOTIFY payloads: file
// and filesystem information classes, chained directory entries, change
// notify records, and security descriptors.
//
// Every structure encodes and decodes through the same field list so that
// decode(encode(x)) == x holds for all of them.
package fscc

import (
	"fmt"

	"github.com/marmos91/smbclient/internal/smb/smbenc"
	"github.com/marmos91/smbclient/internal/smb/types"
)

// UnexpectedInformationTypeError reports an attempt to interpret a parsed
// information buffer as a class it does not belong to.
type UnexpectedInformationTypeError struct {
	Expected types.FileInfoClass
	Got      types.FileInfoClass
}

func (e *UnexpectedInformationTypeError) Error() string {
	return fmt.Sprintf("fscc: unexpected information type: expected class %d, got %d", e.Expected, e.Got)
}

// FileInfo is implemented by every file information class value.
type FileInfo interface {
	Class() types.FileInfoClass
}

// FileBasicInformation, [MS-FSCC] 2.4.7.
type FileBasicInformation struct {
	CreationTime   uint64
	LastAccessTime uint64
	LastWriteTime  uint64
	ChangeTime     uint64
	FileAttributes types.FileAttributes
}

// Class implements FileInfo.
func (FileBasicInformation) Class() types.FileInfoClass { return types.FileBasicInformationClass }

// Encode serializes the structure (40 bytes).
func (i FileBasicInformation) Encode() []byte {
	w := smbenc.NewWriter(40)
	w.WriteUint64(i.CreationTime)
	w.WriteUint64(i.LastAccessTime)
	w.WriteUint64(i.LastWriteTime)
	w.WriteUint64(i.ChangeTime)
	w.WriteUint32(uint32(i.FileAttributes))
	w.WriteUint32(0) // Reserved
	return w.Bytes()
}

// DecodeFileBasicInformation parses the structure.
func DecodeFileBasicInformation(data []byte) (FileBasicInformation, error) {
	r := smbenc.NewReader(data)
	i := FileBasicInformation{
		CreationTime:   r.ReadUint64(),
		LastAccessTime: r.ReadUint64(),
		LastWriteTime:  r.ReadUint64(),
		ChangeTime:     r.ReadUint64(),
		FileAttributes: types.FileAttributes(r.ReadUint32()),
	}
	if r.Err() != nil {
		return FileBasicInformation{}, fmt.Errorf("file basic information: %w", r.Err())
	}
	return i, nil
}

// FileStandardInformation, [MS-FSCC] 2.4.41.
type FileStandardInformation struct {
	AllocationSize uint64
	EndOfFile      uint64
	NumberOfLinks  uint32
	DeletePending  bool
	Directory      bool
}

// Class implements FileInfo.
func (FileStandardInformation) Class() types.FileInfoClass {
	return types.FileStandardInformationClass
}

// Encode serializes the structure (24 bytes).
func (i FileStandardInformation) Encode() []byte {
	w := smbenc.NewWriter(24)
	w.WriteUint64(i.AllocationSize)
	w.WriteUint64(i.EndOfFile)
	w.WriteUint32(i.NumberOfLinks)
	w.WriteUint8(boolByte(i.DeletePending))
	w.WriteUint8(boolByte(i.Directory))
	w.WriteUint16(0) // Reserved
	return w.Bytes()
}

// DecodeFileStandardInformation parses the structure.
func DecodeFileStandardInformation(data []byte) (FileStandardInformation, error) {
	r := smbenc.NewReader(data)
	i := FileStandardInformation{
		AllocationSize: r.ReadUint64(),
		EndOfFile:      r.ReadUint64(),
		NumberOfLinks:  r.ReadUint32(),
		DeletePending:  r.ReadUint8() != 0,
		Directory:      r.ReadUint8() != 0,
	}
	if r.Err() != nil {
		return FileStandardInformation{}, fmt.Errorf("file standard information: %w", r.Err())
	}
	return i, nil
}

// FileInternalInformation, [MS-FSCC] 2.4.22.
type FileInternalInformation struct {
	IndexNumber uint64
}

// Class implements FileInfo.
func (FileInternalInformation) Class() types.FileInfoClass {
	return types.FileInternalInformationClass
}

// Encode serializes the structure (8 bytes).
func (i FileInternalInformation) Encode() []byte {
	w := smbenc.NewWriter(8)
	w.WriteUint64(i.IndexNumber)
	return w.Bytes()
}

// DecodeFileInternalInformation parses the structure.
func DecodeFileInternalInformation(data []byte) (FileInternalInformation, error) {
	r := smbenc.NewReader(data)
	i := FileInternalInformation{IndexNumber: r.ReadUint64()}
	if r.Err() != nil {
		return FileInternalInformation{}, fmt.Errorf("file internal information: %w", r.Err())
	}
	return i, nil
}

// FileEaInformation, [MS-FSCC] 2.4.12.
type FileEaInformation struct {
	EaSize uint32
}

// Class implements FileInfo.
func (FileEaInformation) Class() types.FileInfoClass { return types.FileEaInformationClass }

// Encode serializes the structure (4 bytes).
func (i FileEaInformation) Encode() []byte {
	w := smbenc.NewWriter(4)
	w.WriteUint32(i.EaSize)
	return w.Bytes()
}

// DecodeFileEaInformation parses the structure.
func DecodeFileEaInformation(data []byte) (FileEaInformation, error) {
	r := smbenc.NewReader(data)
	i := FileEaInformation{EaSize: r.ReadUint32()}
	if r.Err() != nil {
		return FileEaInformation{}, fmt.Errorf("file ea information: %w", r.Err())
	}
	return i, nil
}

// FileAccessInformation, [MS-FSCC] 2.4.1.
type FileAccessInformation struct {
	AccessFlags types.AccessMask
}

// Class implements FileInfo.
func (FileAccessInformation) Class() types.FileInfoClass { return types.FileAccessInformationClass }

// Encode serializes the structure (4 bytes).
func (i FileAccessInformation) Encode() []byte {
	w := smbenc.NewWriter(4)
	w.WriteUint32(uint32(i.AccessFlags))
	return w.Bytes()
}

// DecodeFileAccessInformation parses the structure.
func DecodeFileAccessInformation(data []byte) (FileAccessInformation, error) {
	r := smbenc.NewReader(data)
	i := FileAccessInformation{AccessFlags: types.AccessMask(r.ReadUint32())}
	if r.Err() != nil {
		return FileAccessInformation{}, fmt.Errorf("file access information: %w", r.Err())
	}
	return i, nil
}

// FilePositionInformation, [MS-FSCC] 2.4.35.
type FilePositionInformation struct {
	CurrentByteOffset uint64
}

// Class implements FileInfo.
func (FilePositionInformation) Class() types.FileInfoClass {
	return types.FilePositionInformationClass
}

// Encode serializes the structure (8 bytes).
func (i FilePositionInformation) Encode() []byte {
	w := smbenc.NewWriter(8)
	w.WriteUint64(i.CurrentByteOffset)
	return w.Bytes()
}

// DecodeFilePositionInformation parses the structure.
func DecodeFilePositionInformation(data []byte) (FilePositionInformation, error) {
	r := smbenc.NewReader(data)
	i := FilePositionInformation{CurrentByteOffset: r.ReadUint64()}
	if r.Err() != nil {
		return FilePositionInformation{}, fmt.Errorf("file position information: %w", r.Err())
	}
	return i, nil
}

// FileModeInformation, [MS-FSCC] 2.4.26.
type FileModeInformation struct {
	Mode uint32
}

// Class implements FileInfo.
func (FileModeInformation) Class() types.FileInfoClass { return types.FileModeInformationClass }

// Encode serializes the structure (4 bytes).
func (i FileModeInformation) Encode() []byte {
	w := smbenc.NewWriter(4)
	w.WriteUint32(i.Mode)
	return w.Bytes()
}

// DecodeFileModeInformation parses the structure.
func DecodeFileModeInformation(data []byte) (FileModeInformation, error) {
	r := smbenc.NewReader(data)
	i := FileModeInformation{Mode: r.ReadUint32()}
	if r.Err() != nil {
		return FileModeInformation{}, fmt.Errorf("file mode information: %w", r.Err())
	}
	return i, nil
}

// FileAlignmentInformation, [MS-FSCC] 2.4.3.
type FileAlignmentInformation struct {
	AlignmentRequirement uint32
}

// Class implements FileInfo.
func (FileAlignmentInformation) Class() types.FileInfoClass {
	return types.FileAlignmentInformationClass
}

// Encode serializes the structure (4 bytes).
func (i FileAlignmentInformation) Encode() []byte {
	w := smbenc.NewWriter(4)
	w.WriteUint32(i.AlignmentRequirement)
	return w.Bytes()
}

// DecodeFileAlignmentInformation parses the structure.
func DecodeFileAlignmentInformation(data []byte) (FileAlignmentInformation, error) {
	r := smbenc.NewReader(data)
	i := FileAlignmentInformation{AlignmentRequirement: r.ReadUint32()}
	if r.Err() != nil {
		return FileAlignmentInformation{}, fmt.Errorf("file alignment information: %w", r.Err())
	}
	return i, nil
}

// FileNameInformation, [MS-FSCC] 2.1.7.
type FileNameInformation struct {
	FileName string
}

// Class implements FileInfo.
func (FileNameInformation) Class() types.FileInfoClass { return types.FileNameInformationClass }

// Encode serializes the structure.
func (i FileNameInformation) Encode() []byte {
	name := smbenc.EncodeUTF16(i.FileName)
	w := smbenc.NewWriter(4 + len(name))
	w.WriteUint32(uint32(len(name)))
	w.WriteBytes(name)
	return w.Bytes()
}

// DecodeFileNameInformation parses the structure.
func DecodeFileNameInformation(data []byte) (FileNameInformation, error) {
	r := smbenc.NewReader(data)
	nameLen := r.ReadUint32()
	name := r.ReadUTF16String(int(nameLen))
	if r.Err() != nil {
		return FileNameInformation{}, fmt.Errorf("file name information: %w", r.Err())
	}
	return FileNameInformation{FileName: name}, nil
}

// FileNetworkOpenInformation, [MS-FSCC] 2.4.29.
type FileNetworkOpenInformation struct {
	CreationTime   uint64
	LastAccessTime uint64
	LastWriteTime  uint64
	ChangeTime     uint64
	AllocationSize uint64
	EndOfFile      uint64
	FileAttributes types.FileAttributes
}

// Class implements FileInfo.
func (FileNetworkOpenInformation) Class() types.FileInfoClass {
	return types.FileNetworkOpenInformationClass
}

// Encode serializes the structure (56 bytes).
func (i FileNetworkOpenInformation) Encode() []byte {
	w := smbenc.NewWriter(56)
	w.WriteUint64(i.CreationTime)
	w.WriteUint64(i.LastAccessTime)
	w.WriteUint64(i.LastWriteTime)
	w.WriteUint64(i.ChangeTime)
	w.WriteUint64(i.AllocationSize)
	w.WriteUint64(i.EndOfFile)
	w.WriteUint32(uint32(i.FileAttributes))
	w.WriteUint32(0) // Reserved
	return w.Bytes()
}

// DecodeFileNetworkOpenInformation parses the structure.
func DecodeFileNetworkOpenInformation(data []byte) (FileNetworkOpenInformation, error) {
	r := smbenc.NewReader(data)
	i := FileNetworkOpenInformation{
		CreationTime:   r.ReadUint64(),
		LastAccessTime: r.ReadUint64(),
		LastWriteTime:  r.ReadUint64(),
		ChangeTime:     r.ReadUint64(),
		AllocationSize: r.ReadUint64(),
		EndOfFile:      r.ReadUint64(),
		FileAttributes: types.FileAttributes(r.ReadUint32()),
	}
	if r.Err() != nil {
		return FileNetworkOpenInformation{}, fmt.Errorf("file network open information: %w", r.Err())
	}
	return i, nil
}

// FileAttributeTagInformation, [MS-FSCC] 2.4.6.
type FileAttributeTagInformation struct {
	FileAttributes types.FileAttributes
	ReparseTag     uint32
}

// Class implements FileInfo.
func (FileAttributeTagInformation) Class() types.FileInfoClass {
	return types.FileAttributeTagInformationClass
}

// Encode serializes the structure (8 bytes).
func (i FileAttributeTagInformation) Encode() []byte {
	w := smbenc.NewWriter(8)
	w.WriteUint32(uint32(i.FileAttributes))
	w.WriteUint32(i.ReparseTag)
	return w.Bytes()
}

// DecodeFileAttributeTagInformation parses the structure.
func DecodeFileAttributeTagInformation(data []byte) (FileAttributeTagInformation, error) {
	r := smbenc.NewReader(data)
	i := FileAttributeTagInformation{
		FileAttributes: types.FileAttributes(r.ReadUint32()),
		ReparseTag:     r.ReadUint32(),
	}
	if r.Err() != nil {
		return FileAttributeTagInformation{}, fmt.Errorf("file attribute tag information: %w", r.Err())
	}
	return i, nil
}

// FileEndOfFileInformation, [MS-FSCC] 2.4.13. Set-only.
type FileEndOfFileInformation struct {
	EndOfFile uint64
}

// Class implements FileInfo.
func (FileEndOfFileInformation) Class() types.FileInfoClass {
	return types.FileEndOfFileInformationClass
}

// Encode serializes the structure (8 bytes).
func (i FileEndOfFileInformation) Encode() []byte {
	w := smbenc.NewWriter(8)
	w.WriteUint64(i.EndOfFile)
	return w.Bytes()
}

// FileDispositionInformation, [MS-FSCC] 2.4.11. Set-only.
type FileDispositionInformation struct {
	DeletePending bool
}

// Class implements FileInfo.
func (FileDispositionInformation) Class() types.FileInfoClass {
	return types.FileDispositionInformationClass
}

// Encode serializes the structure (1 byte).
func (i FileDispositionInformation) Encode() []byte {
	return []byte{boolByte(i.DeletePending)}
}

// FileRenameInformation, [MS-FSCC] 2.4.37 (type 2, SMB2 flavor). Set-only.
type FileRenameInformation struct {
	ReplaceIfExists bool
	FileName        string
}

// Class implements FileInfo.
func (FileRenameInformation) Class() types.FileInfoClass {
	return types.FileRenameInformationClass
}

// Encode serializes the structure.
func (i FileRenameInformation) Encode() []byte {
	name := smbenc.EncodeUTF16(i.FileName)
	w := smbenc.NewWriter(20 + len(name))
	w.WriteUint8(boolByte(i.ReplaceIfExists))
	w.WriteZeros(7)  // Reserved
	w.WriteUint64(0) // RootDirectory
	w.WriteUint32(uint32(len(name)))
	w.WriteBytes(name)
	return w.Bytes()
}

// FileAllInformation, [MS-FSCC] 2.4.2. Query-only aggregate.
type FileAllInformation struct {
	Basic     FileBasicInformation
	Standard  FileStandardInformation
	Internal  FileInternalInformation
	Ea        FileEaInformation
	Access    FileAccessInformation
	Position  FilePositionInformation
	Mode      FileModeInformation
	Alignment FileAlignmentInformation
	Name      FileNameInformation
}

// Class implements FileInfo.
func (FileAllInformation) Class() types.FileInfoClass { return types.FileAllInformationClass }

// DecodeFileAllInformation parses the aggregate structure.
func DecodeFileAllInformation(data []byte) (FileAllInformation, error) {
	r := smbenc.NewReader(data)
	var i FileAllInformation
	i.Basic.CreationTime = r.ReadUint64()
	i.Basic.LastAccessTime = r.ReadUint64()
	i.Basic.LastWriteTime = r.ReadUint64()
	i.Basic.ChangeTime = r.ReadUint64()
	i.Basic.FileAttributes = types.FileAttributes(r.ReadUint32())
	r.Skip(4) // Reserved
	i.Standard.AllocationSize = r.ReadUint64()
	i.Standard.EndOfFile = r.ReadUint64()
	i.Standard.NumberOfLinks = r.ReadUint32()
	i.Standard.DeletePending = r.ReadUint8() != 0
	i.Standard.Directory = r.ReadUint8() != 0
	r.Skip(2) // Reserved
	i.Internal.IndexNumber = r.ReadUint64()
	i.Ea.EaSize = r.ReadUint32()
	i.Access.AccessFlags = types.AccessMask(r.ReadUint32())
	i.Position.CurrentByteOffset = r.ReadUint64()
	i.Mode.Mode = r.ReadUint32()
	i.Alignment.AlignmentRequirement = r.ReadUint32()
	nameLen := r.ReadUint32()
	i.Name.FileName = r.ReadUTF16String(int(nameLen))
	if r.Err() != nil {
		return FileAllInformation{}, fmt.Errorf("file all information: %w", r.Err())
	}
	return i, nil
}

// DecodeFileInfo dispatches a query-info output buffer by class.
func DecodeFileInfo(class types.FileInfoClass, data []byte) (FileInfo, error) {
	switch class {
	case types.FileBasicInformationClass:
		return DecodeFileBasicInformation(data)
	case types.FileStandardInformationClass:
		return DecodeFileStandardInformation(data)
	case types.FileInternalInformationClass:
		return DecodeFileInternalInformation(data)
	case types.FileEaInformationClass:
		return DecodeFileEaInformation(data)
	case types.FileAccessInformationClass:
		return DecodeFileAccessInformation(data)
	case types.FilePositionInformationClass:
		return DecodeFilePositionInformation(data)
	case types.FileModeInformationClass:
		return DecodeFileModeInformation(data)
	case types.FileAlignmentInformationClass:
		return DecodeFileAlignmentInformation(data)
	case types.FileNameInformationClass:
		return DecodeFileNameInformation(data)
	case types.FileNetworkOpenInformationClass:
		return DecodeFileNetworkOpenInformation(data)
	case types.FileAttributeTagInformationClass:
		return DecodeFileAttributeTagInformation(data)
	case types.FileAllInformationClass:
		return DecodeFileAllInformation(data)
	case types.FileStreamInformationClass:
		return DecodeFileStreamInformation(data)
	case types.FileFullEaInformationClass:
		return DecodeFileFullEaInformation(data)
	default:
		return nil, fmt.Errorf("fscc: no decoder for file info class %d", class)
	}
}

// Require returns fi unchanged after checking it carries the wanted class;
// otherwise it reports UnexpectedInformationTypeError.
func Require(fi FileInfo, want types.FileInfoClass) (FileInfo, error) {
	if fi.Class() != want {
		return nil, &UnexpectedInformationTypeError{Expected: want, Got: fi.Class()}
	}
	return fi, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
