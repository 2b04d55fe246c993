package fscc

import (
	"errors"
	"reflect"
	"testing"

	"github.com/marmos91/smbclient/internal/smb/types"
)

func TestFileBasicInformationRoundTrip(t *testing.T) {
	in := FileBasicInformation{
		CreationTime:   116444736000000000,
		LastAccessTime: 116444736000000001,
		LastWriteTime:  116444736000000002,
		ChangeTime:     116444736000000003,
		FileAttributes: types.FileAttributeArchive | types.FileAttributeReadonly,
	}
	got, err := DecodeFileBasicInformation(in.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != in {
		t.Errorf("round trip:\n got  %+v\n want %+v", got, in)
	}
}

func TestFileStandardInformationRoundTrip(t *testing.T) {
	in := FileStandardInformation{
		AllocationSize: 4096,
		EndOfFile:      13,
		NumberOfLinks:  1,
		DeletePending:  true,
		Directory:      false,
	}
	got, err := DecodeFileStandardInformation(in.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != in {
		t.Errorf("round trip:\n got  %+v\n want %+v", got, in)
	}
}

func TestFileNameInformationRoundTrip(t *testing.T) {
	for _, name := range []string{"", "a.txt", `dir\naïve ☃.dat`} {
		in := FileNameInformation{FileName: name}
		got, err := DecodeFileNameInformation(in.Encode())
		if err != nil {
			t.Fatalf("decode %q: %v", name, err)
		}
		if got != in {
			t.Errorf("round trip %q: got %+v", name, got)
		}
	}
}

func TestDecodeFileInfoDispatch(t *testing.T) {
	in := FileNetworkOpenInformation{EndOfFile: 42, FileAttributes: types.FileAttributeNormal}
	fi, err := DecodeFileInfo(types.FileNetworkOpenInformationClass, in.Encode())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if fi.Class() != types.FileNetworkOpenInformationClass {
		t.Errorf("class = %d", fi.Class())
	}

	if _, err := Require(fi, types.FileBasicInformationClass); err == nil {
		t.Fatal("expected class mismatch error")
	} else {
		var typeErr *UnexpectedInformationTypeError
		if !errors.As(err, &typeErr) {
			t.Fatalf("expected UnexpectedInformationTypeError, got %v", err)
		}
		if typeErr.Expected != types.FileBasicInformationClass || typeErr.Got != types.FileNetworkOpenInformationClass {
			t.Errorf("unexpected error contents: %+v", typeErr)
		}
	}
}

func TestNotifyRecordsRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		records []FileNotifyInformation
	}{
		{"Empty", nil},
		{"Single", []FileNotifyInformation{
			{Action: types.NotifyActionRemoved, FileName: "basic.txt"},
		}},
		{"Multiple", []FileNotifyInformation{
			{Action: types.NotifyActionRenamedOldName, FileName: "old.txt"},
			{Action: types.NotifyActionRenamedNewName, FileName: "brand new name.txt"},
			{Action: types.NotifyActionAdded, FileName: "x"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := EncodeNotifyRecords(tt.records)
			got, err := DecodeNotifyRecords(buf)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !reflect.DeepEqual(got, tt.records) {
				t.Errorf("round trip:\n got  %+v\n want %+v", got, tt.records)
			}
		})
	}
}

func TestNotifyRecordsOutOfBoundsOffset(t *testing.T) {
	buf := EncodeNotifyRecords([]FileNotifyInformation{
		{Action: types.NotifyActionAdded, FileName: "a"},
		{Action: types.NotifyActionAdded, FileName: "b"},
	})
	// Corrupt the first NextEntryOffset to point past the buffer.
	buf[0] = 0xF0
	buf[1] = 0xFF
	if _, err := DecodeNotifyRecords(buf); err == nil {
		t.Fatal("expected out-of-bounds error")
	}
}

func TestDirectoryEntriesRoundTrip(t *testing.T) {
	entries := []DirectoryEntry{
		{
			CreationTime:   1,
			LastAccessTime: 2,
			LastWriteTime:  3,
			ChangeTime:     4,
			EndOfFile:      100,
			AllocationSize: 4096,
			FileAttributes: types.FileAttributeDirectory,
			FileName:       ".",
		},
		{
			FileAttributes: types.FileAttributeNormal,
			EndOfFile:      13,
			EaSize:         7,
			FileID:         0xABCDEF,
			FileName:       "basic.txt",
		},
		{
			FileAttributes: types.FileAttributeNormal,
			FileName:       "a much longer file name to unalign things.dat",
		},
	}
	classes := []types.FileInfoClass{
		types.FileDirectoryInformationClass,
		types.FileFullDirectoryInformationClass,
		types.FileBothDirectoryInformationClass,
		types.FileIdBothDirectoryInformationClass,
		types.FileIdFullDirectoryInformationClass,
	}
	for _, class := range classes {
		buf, err := EncodeDirectoryEntries(class, entries)
		if err != nil {
			t.Fatalf("class %d encode: %v", class, err)
		}
		got, err := DecodeDirectoryEntries(class, buf)
		if err != nil {
			t.Fatalf("class %d decode: %v", class, err)
		}
		if len(got) != len(entries) {
			t.Fatalf("class %d entries = %d", class, len(got))
		}
		for i := range got {
			if got[i].FileName != entries[i].FileName {
				t.Errorf("class %d entry %d name = %q", class, i, got[i].FileName)
			}
		}
		shape, _ := shapeFor(class)
		if shape.fileID && got[1].FileID != entries[1].FileID {
			t.Errorf("class %d file id = 0x%X", class, got[1].FileID)
		}
		if shape.eaSize && got[1].EaSize != entries[1].EaSize {
			t.Errorf("class %d ea size = %d", class, got[1].EaSize)
		}
	}
}

func TestDirectoryEntriesNamesOnly(t *testing.T) {
	entries := []DirectoryEntry{{FileName: "one"}, {FileName: "two"}}
	buf, err := EncodeDirectoryEntries(types.FileNamesInformationClass, entries)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeDirectoryEntries(types.FileNamesInformationClass, buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].FileName != "one" || got[1].FileName != "two" {
		t.Errorf("entries = %+v", got)
	}
}

func TestFullEaRoundTrip(t *testing.T) {
	in := FileFullEaInformation{Entries: []FileFullEaEntry{
		{Name: "user.comment", Value: []byte("hello")},
		{Name: "EMPTY", Value: []byte{}},
	}}
	got, err := DecodeFileFullEaInformation(in.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Entries) != 2 {
		t.Fatalf("entries = %d", len(got.Entries))
	}
	if got.Entries[0].Name != "user.comment" || string(got.Entries[0].Value) != "hello" {
		t.Errorf("entry 0 = %+v", got.Entries[0])
	}
}

func TestStreamInformationRoundTrip(t *testing.T) {
	in := FileStreamInformation{Entries: []FileStreamEntry{
		{StreamName: "::$DATA", StreamSize: 13, StreamAllocationSize: 4096},
		{StreamName: ":alt:$DATA", StreamSize: 7, StreamAllocationSize: 4096},
	}}
	got, err := DecodeFileStreamInformation(in.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got, in) {
		t.Errorf("round trip:\n got  %+v\n want %+v", got, in)
	}
}

func TestFsInfoRoundTrip(t *testing.T) {
	size := FileFsSizeInformation{TotalAllocationUnits: 1000, AvailableAllocationUnits: 500, SectorsPerAllocationUnit: 8, BytesPerSector: 512}
	gotSize, err := DecodeFileFsSizeInformation(size.Encode())
	if err != nil || gotSize != size {
		t.Errorf("fs size round trip: %v %+v", err, gotSize)
	}

	attr := FileFsAttributeInformation{FileSystemAttributes: 0x00CF, MaximumComponentNameLength: 255, FileSystemName: "NTFS"}
	gotAttr, err := DecodeFileFsAttributeInformation(attr.Encode())
	if err != nil || gotAttr != attr {
		t.Errorf("fs attribute round trip: %v %+v", err, gotAttr)
	}

	vol := FileFsVolumeInformation{VolumeCreationTime: 5, VolumeSerialNumber: 0xCAFE, VolumeLabel: "data"}
	gotVol, err := DecodeFileFsVolumeInformation(vol.Encode())
	if err != nil || gotVol != vol {
		t.Errorf("fs volume round trip: %v %+v", err, gotVol)
	}
}

func TestFileAllInformationDecode(t *testing.T) {
	// FileAllInformation is assembled from its parts on the wire.
	basic := FileBasicInformation{CreationTime: 1, FileAttributes: types.FileAttributeNormal}
	standard := FileStandardInformation{EndOfFile: 13, NumberOfLinks: 1}
	name := FileNameInformation{FileName: `\dir\file.txt`}

	buf := append([]byte{}, basic.Encode()...)
	buf = append(buf, standard.Encode()...)
	buf = append(buf, FileInternalInformation{IndexNumber: 9}.Encode()...)
	buf = append(buf, FileEaInformation{}.Encode()...)
	buf = append(buf, FileAccessInformation{AccessFlags: types.GenericRead}.Encode()...)
	buf = append(buf, FilePositionInformation{}.Encode()...)
	buf = append(buf, FileModeInformation{}.Encode()...)
	buf = append(buf, FileAlignmentInformation{}.Encode()...)
	buf = append(buf, name.Encode()...)

	all, err := DecodeFileAllInformation(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if all.Standard.EndOfFile != 13 {
		t.Errorf("eof = %d", all.Standard.EndOfFile)
	}
	if all.Internal.IndexNumber != 9 {
		t.Errorf("index = %d", all.Internal.IndexNumber)
	}
	if all.Name.FileName != `\dir\file.txt` {
		t.Errorf("name = %q", all.Name.FileName)
	}
}
