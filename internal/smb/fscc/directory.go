package fscc

import (
	"fmt"

	"github.com/marmos91/smbclient/internal/smb/smbenc"
	"github.com/marmos91/smbclient/internal/smb/types"
)

// DirectoryEntry is the decoded form of one directory information record.
// Which fields are populated depends on the information class the query was
// issued with; FileName is always present.
// [MS-FSCC] Sections 2.4.8, 2.4.14, 2.4.17, 2.4.18, 2.4.28
type DirectoryEntry struct {
	FileIndex      uint32
	CreationTime   uint64
	LastAccessTime uint64
	LastWriteTime  uint64
	ChangeTime     uint64
	EndOfFile      uint64
	AllocationSize uint64
	FileAttributes types.FileAttributes
	EaSize         uint32
	ShortName      string
	FileID         uint64
	FileName       string
}

// IsDirectory returns true if the entry describes a directory.
func (e *DirectoryEntry) IsDirectory() bool {
	return e.FileAttributes.IsDirectory()
}

// directoryClassShape describes which optional field groups a class carries.
type directoryClassShape struct {
	times     bool
	eaSize    bool
	shortName bool
	fileID    bool
}

func shapeFor(class types.FileInfoClass) (directoryClassShape, error) {
	switch class {
	case types.FileDirectoryInformationClass:
		return directoryClassShape{times: true}, nil
	case types.FileFullDirectoryInformationClass:
		return directoryClassShape{times: true, eaSize: true}, nil
	case types.FileBothDirectoryInformationClass:
		return directoryClassShape{times: true, eaSize: true, shortName: true}, nil
	case types.FileIdBothDirectoryInformationClass:
		return directoryClassShape{times: true, eaSize: true, shortName: true, fileID: true}, nil
	case types.FileIdFullDirectoryInformationClass:
		return directoryClassShape{times: true, eaSize: true, fileID: true}, nil
	case types.FileNamesInformationClass:
		return directoryClassShape{}, nil
	default:
		return directoryClassShape{}, fmt.Errorf("fscc: class %d is not a directory information class", class)
	}
}

// DecodeDirectoryEntries walks a QUERY_DIRECTORY output buffer for the given
// information class.
func DecodeDirectoryEntries(class types.FileInfoClass, buf []byte) ([]DirectoryEntry, error) {
	shape, err := shapeFor(class)
	if err != nil {
		return nil, err
	}
	if len(buf) == 0 {
		return nil, nil
	}

	var entries []DirectoryEntry
	err = walkChained(buf, func(r *smbenc.Reader) error {
		var e DirectoryEntry
		e.FileIndex = r.ReadUint32()
		if shape.times {
			e.CreationTime = r.ReadUint64()
			e.LastAccessTime = r.ReadUint64()
			e.LastWriteTime = r.ReadUint64()
			e.ChangeTime = r.ReadUint64()
			e.EndOfFile = r.ReadUint64()
			e.AllocationSize = r.ReadUint64()
			e.FileAttributes = types.FileAttributes(r.ReadUint32())
		}
		nameLen := r.ReadUint32()
		if shape.eaSize {
			e.EaSize = r.ReadUint32()
		}
		if shape.shortName {
			shortLen := r.ReadUint8()
			r.Skip(1) // Reserved
			short := r.ReadBytes(24)
			if int(shortLen) <= len(short) {
				e.ShortName = smbenc.DecodeUTF16(short[:shortLen])
			}
		}
		if shape.fileID {
			if shape.shortName {
				r.Skip(2) // Reserved2 in FileIdBothDirectoryInformation
			} else {
				r.Skip(4) // Reserved in FileIdFullDirectoryInformation
			}
			e.FileID = r.ReadUint64()
		}
		e.FileName = r.ReadUTF16String(int(nameLen))
		if r.Err() != nil {
			return fmt.Errorf("directory entry (%d): %w", class, r.Err())
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// EncodeDirectoryEntries serializes entries for the given class as a chained
// list, 8-byte aligned. The write direction mirrors DecodeDirectoryEntries
// field for field so the round-trip invariant holds.
func EncodeDirectoryEntries(class types.FileInfoClass, entries []DirectoryEntry) ([]byte, error) {
	shape, err := shapeFor(class)
	if err != nil {
		return nil, err
	}
	w := smbenc.NewWriter(len(entries) * 128)
	c := newChainWriter(w, 8)
	for _, e := range entries {
		c.begin()
		name := smbenc.EncodeUTF16(e.FileName)
		w.WriteUint32(e.FileIndex)
		if shape.times {
			w.WriteUint64(e.CreationTime)
			w.WriteUint64(e.LastAccessTime)
			w.WriteUint64(e.LastWriteTime)
			w.WriteUint64(e.ChangeTime)
			w.WriteUint64(e.EndOfFile)
			w.WriteUint64(e.AllocationSize)
			w.WriteUint32(uint32(e.FileAttributes))
		}
		w.WriteUint32(uint32(len(name)))
		if shape.eaSize {
			w.WriteUint32(e.EaSize)
		}
		if shape.shortName {
			short := smbenc.EncodeUTF16(e.ShortName)
			if len(short) > 24 {
				short = short[:24]
			}
			w.WriteUint8(uint8(len(short)))
			w.WriteUint8(0) // Reserved
			w.WriteBytes(short)
			w.WriteZeros(24 - len(short))
		}
		if shape.fileID {
			if shape.shortName {
				w.WriteUint16(0) // Reserved2
			} else {
				w.WriteUint32(0) // Reserved
			}
			w.WriteUint64(e.FileID)
		}
		w.WriteBytes(name)
	}
	if w.Err() != nil {
		return nil, w.Err()
	}
	return w.Bytes(), nil
}
