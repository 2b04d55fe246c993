package smbclient

import (
	"context"
	"fmt"

	"github.com/marmos91/smbclient/internal/smb/fscc"
	"github.com/marmos91/smbclient/internal/smb/msg"
	"github.com/marmos91/smbclient/internal/smb/types"
)

// File is an opened regular file.
type File struct {
	*Handle
}

// defaultChunk bounds a single READ/WRITE when the server's negotiated
// maximum is unknown or absurd.
const defaultChunk = 1 << 20

// ReadAt reads up to len(p) bytes at the given offset. Short reads happen
// at end of file; io semantics follow the server's EndOfFile status.
func (f *File) ReadAt(ctx context.Context, p []byte, offset uint64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	maxChunk := int(f.tree.session.conn.MaxReadSize())
	if maxChunk == 0 || maxChunk > defaultChunk*16 {
		maxChunk = defaultChunk
	}

	total := 0
	for total < len(p) {
		n := len(p) - total
		if n > maxChunk {
			n = maxChunk
		}
		body := (&msg.ReadRequest{
			Length: uint32(n),
			Offset: offset + uint64(total),
			FileID: f.fileID,
		}).Encode()

		env, err := f.roundTrip(ctx, types.CommandRead, body,
			creditPayloadHint(n), types.StatusBufferOverflow, types.StatusEndOfFile)
		if err != nil {
			return total, err
		}
		if env.status == types.StatusEndOfFile {
			return total, nil
		}
		resp, err := msg.DecodeReadResponse(env.raw)
		if err != nil {
			return total, &InvalidMessageError{Detail: "read response", Err: err}
		}
		if len(resp.Data) == 0 {
			return total, nil
		}
		copied := copy(p[total:], resp.Data)
		total += copied
		if copied < len(resp.Data) {
			return total, fmt.Errorf("%w: read returned more than requested", ErrInvalidArgument)
		}
		// A short chunk means end of data.
		if len(resp.Data) < n {
			return total, nil
		}
	}
	return total, nil
}

// WriteAt writes p at the given offset, splitting against the server's
// maximum write size, and returns the bytes the server accepted.
func (f *File) WriteAt(ctx context.Context, p []byte, offset uint64) (int, error) {
	maxChunk := int(f.tree.session.conn.MaxWriteSize())
	if maxChunk == 0 || maxChunk > defaultChunk*16 {
		maxChunk = defaultChunk
	}

	total := 0
	for total < len(p) {
		n := len(p) - total
		if n > maxChunk {
			n = maxChunk
		}
		body := (&msg.WriteRequest{
			Offset: offset + uint64(total),
			FileID: f.fileID,
			Data:   p[total : total+n],
		}).Encode()

		env, err := f.roundTrip(ctx, types.CommandWrite, body, creditPayloadHint(n))
		if err != nil {
			return total, err
		}
		resp, err := msg.DecodeWriteResponse(env.raw)
		if err != nil {
			return total, &InvalidMessageError{Detail: "write response", Err: err}
		}
		if resp.Count == 0 {
			return total, fmt.Errorf("%w: server accepted zero bytes", ErrInvalidState)
		}
		total += int(resp.Count)
	}
	return total, nil
}

// Flush commits buffered data for the file to stable storage.
func (f *File) Flush(ctx context.Context) error {
	env, err := f.roundTrip(ctx, types.CommandFlush,
		(&msg.FlushRequest{FileID: f.fileID}).Encode(), 0)
	if err != nil {
		return err
	}
	return msg.DecodeFlushResponse(env.raw)
}

// Stat queries basic and standard information.
func (f *File) Stat(ctx context.Context) (*FileInfo, error) {
	out, err := f.QueryInfo(ctx, types.FileAllInformationClass)
	if err != nil {
		return nil, err
	}
	all, err := fscc.DecodeFileAllInformation(out)
	if err != nil {
		return nil, &InvalidMessageError{Detail: "file all information", Err: err}
	}
	return &FileInfo{
		Name:           f.path,
		Size:           all.Standard.EndOfFile,
		AllocationSize: all.Standard.AllocationSize,
		Attributes:     all.Basic.FileAttributes,
		CreationTime:   types.FiletimeToTime(all.Basic.CreationTime),
		LastWriteTime:  types.FiletimeToTime(all.Basic.LastWriteTime),
		ChangeTime:     types.FiletimeToTime(all.Basic.ChangeTime),
		DeletePending:  all.Standard.DeletePending,
		Directory:      all.Standard.Directory,
	}, nil
}

// Truncate sets the file's end-of-file marker.
func (f *File) Truncate(ctx context.Context, size uint64) error {
	return f.SetInfo(ctx, types.FileEndOfFileInformationClass,
		fscc.FileEndOfFileInformation{EndOfFile: size}.Encode())
}

// Delete marks the file delete-pending; deletion happens at last close.
func (f *File) Delete(ctx context.Context) error {
	return f.SetInfo(ctx, types.FileDispositionInformationClass,
		fscc.FileDispositionInformation{DeletePending: true}.Encode())
}

// Rename moves the file within the share.
func (f *File) Rename(ctx context.Context, newPath string, replace bool) error {
	return f.SetInfo(ctx, types.FileRenameInformationClass,
		fscc.FileRenameInformation{ReplaceIfExists: replace, FileName: newPath}.Encode())
}
