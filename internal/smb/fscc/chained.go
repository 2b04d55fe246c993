package fscc

import (
	"fmt"

	"github.com/marmos91/smbclient/internal/smb/smbenc"
	"github.com/marmos91/smbclient/internal/smb/types"
)

// Chained variable-length lists (directory entries, EA lists, notify
// records) share one framing: each entry leads with a NextEntryOffset field
// giving the distance to the next entry start; zero terminates the list.
// On write, entries are emitted sequentially and each prior offset is
// back-patched once the aligned start of the next entry is known. On read,
// the walk stops at a zero offset or the end of the bounded buffer; a
// non-zero offset past the bound is a fatal parse error.

// walkChained iterates entries in buf, calling decode with a bounded reader
// positioned after the NextEntryOffset field of each entry.
func walkChained(buf []byte, decode func(r *smbenc.Reader) error) error {
	base := 0
	for {
		if base >= len(buf) {
			return fmt.Errorf("fscc: chained entry offset %d beyond buffer (%d bytes)", base, len(buf))
		}
		r := smbenc.NewReader(buf[base:])
		next := r.ReadUint32()
		if r.Err() != nil {
			return r.Err()
		}
		if next != 0 && (int(next) > len(buf)-base) {
			return fmt.Errorf("fscc: chained next-entry offset %d out of bounds (%d remaining)", next, len(buf)-base)
		}
		if err := decode(r); err != nil {
			return err
		}
		if next == 0 {
			return nil
		}
		base += int(next)
		if base == len(buf) {
			return nil
		}
	}
}

// chainWriter emits chained entries with alignment, back-patching the
// previous entry's NextEntryOffset.
type chainWriter struct {
	w         *smbenc.Writer
	alignment int
	lastStart int
	count     int
}

func newChainWriter(w *smbenc.Writer, alignment int) *chainWriter {
	return &chainWriter{w: w, alignment: alignment, lastStart: -1}
}

// begin starts a new entry: aligns, patches the previous entry's next
// pointer, and writes this entry's placeholder NextEntryOffset.
func (c *chainWriter) begin() {
	if c.count > 0 {
		c.w.Pad(c.alignment)
		c.w.PatchUint32(c.lastStart, uint32(c.w.Len()-c.lastStart))
	}
	c.lastStart = c.w.Len()
	c.w.WriteUint32(0) // NextEntryOffset: zero unless another entry follows
	c.count++
}

// FileNotifyInformation is one change-notify record.
// [MS-FSCC] Section 2.7.1
type FileNotifyInformation struct {
	Action   types.NotifyAction
	FileName string
}

// EncodeNotifyRecords serializes records as a chained list, 4-byte aligned.
func EncodeNotifyRecords(records []FileNotifyInformation) []byte {
	w := smbenc.NewWriter(len(records) * 32)
	c := newChainWriter(w, 4)
	for _, rec := range records {
		c.begin()
		name := smbenc.EncodeUTF16(rec.FileName)
		w.WriteUint32(uint32(rec.Action))
		w.WriteUint32(uint32(len(name)))
		w.WriteBytes(name)
	}
	return w.Bytes()
}

// DecodeNotifyRecords walks a change-notify output buffer. An empty buffer
// yields no records (the server signals an overflow that way).
func DecodeNotifyRecords(buf []byte) ([]FileNotifyInformation, error) {
	if len(buf) == 0 {
		return nil, nil
	}
	var records []FileNotifyInformation
	err := walkChained(buf, func(r *smbenc.Reader) error {
		action := r.ReadUint32()
		nameLen := r.ReadUint32()
		name := r.ReadUTF16String(int(nameLen))
		if r.Err() != nil {
			return fmt.Errorf("notify record: %w", r.Err())
		}
		records = append(records, FileNotifyInformation{
			Action:   types.NotifyAction(action),
			FileName: name,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// FileFullEaEntry is one extended-attribute entry.
// [MS-FSCC] Section 2.4.15
type FileFullEaEntry struct {
	Flags uint8
	Name  string
	Value []byte
}

// FileFullEaInformation is the chained EA list.
type FileFullEaInformation struct {
	Entries []FileFullEaEntry
}

// Class implements FileInfo.
func (FileFullEaInformation) Class() types.FileInfoClass {
	return types.FileFullEaInformationClass
}

// Encode serializes the EA list as a chained list, 4-byte aligned.
func (i FileFullEaInformation) Encode() []byte {
	w := smbenc.NewWriter(len(i.Entries) * 32)
	c := newChainWriter(w, 4)
	for _, e := range i.Entries {
		c.begin()
		w.WriteUint8(e.Flags)
		w.WriteUint8(uint8(len(e.Name)))
		w.WriteUint16(uint16(len(e.Value)))
		w.WriteBytes([]byte(e.Name))
		w.WriteUint8(0) // null terminator after the EA name
		w.WriteBytes(e.Value)
	}
	return w.Bytes()
}

// DecodeFileFullEaInformation walks a chained EA list.
func DecodeFileFullEaInformation(data []byte) (FileFullEaInformation, error) {
	var info FileFullEaInformation
	if len(data) == 0 {
		return info, nil
	}
	err := walkChained(data, func(r *smbenc.Reader) error {
		flags := r.ReadUint8()
		nameLen := r.ReadUint8()
		valueLen := r.ReadUint16()
		name := r.ReadBytes(int(nameLen))
		r.Skip(1) // null terminator
		value := r.ReadBytes(int(valueLen))
		if r.Err() != nil {
			return fmt.Errorf("full ea entry: %w", r.Err())
		}
		info.Entries = append(info.Entries, FileFullEaEntry{
			Flags: flags,
			Name:  string(name),
			Value: value,
		})
		return nil
	})
	if err != nil {
		return FileFullEaInformation{}, err
	}
	return info, nil
}

// FileStreamEntry is one alternate-data-stream entry of FileStreamInformation.
// [MS-FSCC] Section 2.4.43
type FileStreamEntry struct {
	StreamSize           uint64
	StreamAllocationSize uint64
	StreamName           string
}

// FileStreamInformation is the chained stream list.
type FileStreamInformation struct {
	Entries []FileStreamEntry
}

// Class implements FileInfo.
func (FileStreamInformation) Class() types.FileInfoClass {
	return types.FileStreamInformationClass
}

// Encode serializes the stream list as a chained list, 8-byte aligned.
func (i FileStreamInformation) Encode() []byte {
	w := smbenc.NewWriter(len(i.Entries) * 48)
	c := newChainWriter(w, 8)
	for _, e := range i.Entries {
		c.begin()
		name := smbenc.EncodeUTF16(e.StreamName)
		w.WriteUint32(uint32(len(name)))
		w.WriteUint64(e.StreamSize)
		w.WriteUint64(e.StreamAllocationSize)
		w.WriteBytes(name)
	}
	return w.Bytes()
}

// DecodeFileStreamInformation walks a chained stream list.
func DecodeFileStreamInformation(data []byte) (FileStreamInformation, error) {
	var info FileStreamInformation
	if len(data) == 0 {
		return info, nil
	}
	err := walkChained(data, func(r *smbenc.Reader) error {
		nameLen := r.ReadUint32()
		size := r.ReadUint64()
		alloc := r.ReadUint64()
		name := r.ReadUTF16String(int(nameLen))
		if r.Err() != nil {
			return fmt.Errorf("stream entry: %w", r.Err())
		}
		info.Entries = append(info.Entries, FileStreamEntry{
			StreamSize:           size,
			StreamAllocationSize: alloc,
			StreamName:           name,
		})
		return nil
	})
	if err != nil {
		return FileStreamInformation{}, err
	}
	return info, nil
}
