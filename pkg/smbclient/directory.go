package smbclient

import (
	"context"
	"errors"
	"time"

	"github.com/marmos91/smbclient/internal/logger"
	"github.com/marmos91/smbclient/internal/smb/fscc"
	"github.com/marmos91/smbclient/internal/smb/msg"
	"github.com/marmos91/smbclient/internal/smb/types"
)

// Directory is an opened directory handle.
type Directory struct {
	*Handle
}

// FileInfo is the decoded metadata of one file or directory.
type FileInfo struct {
	Name           string
	Size           uint64
	AllocationSize uint64
	Attributes     types.FileAttributes
	CreationTime   time.Time
	LastWriteTime  time.Time
	ChangeTime     time.Time
	DeletePending  bool
	Directory      bool
}

// DirIterator lazily walks a directory listing: each Next that exhausts
// the current batch re-issues QUERY_DIRECTORY without the restart flag.
type DirIterator struct {
	dir     *Directory
	pattern string
	class   types.FileInfoClass
	batch   []fscc.DirectoryEntry
	pos     int
	started bool
	done    bool
	err     error
}

// Query starts a directory enumeration with the given pattern ("*" lists
// everything).
func (d *Directory) Query(pattern string) *DirIterator {
	if pattern == "" {
		pattern = "*"
	}
	return &DirIterator{
		dir:     d,
		pattern: pattern,
		class:   types.FileIdBothDirectoryInformationClass,
	}
}

// Next returns the next entry, or nil when the listing is exhausted.
// Check Err afterwards.
func (it *DirIterator) Next(ctx context.Context) *fscc.DirectoryEntry {
	if it.err != nil || it.done && it.pos >= len(it.batch) {
		return nil
	}
	if it.pos < len(it.batch) {
		e := &it.batch[it.pos]
		it.pos++
		return e
	}
	if it.done {
		return nil
	}
	if err := it.fetch(ctx); err != nil {
		if errors.Is(err, errNoMoreFiles) {
			it.done = true
		} else {
			it.err = err
		}
		return nil
	}
	return it.Next(ctx)
}

// Err returns the error that terminated the iteration, if any.
func (it *DirIterator) Err() error { return it.err }

var errNoMoreFiles = errors.New("no more files")

func (it *DirIterator) fetch(ctx context.Context) error {
	flags := types.QueryDirectoryFlags(0)
	if !it.started {
		flags = types.RestartScans
		it.started = true
	}

	body := (&msg.QueryDirectoryRequest{
		FileInfoClass:      it.class,
		Flags:              flags,
		FileID:             it.dir.fileID,
		Pattern:            it.pattern,
		OutputBufferLength: 64 * 1024,
	}).Encode()

	env, err := it.dir.roundTrip(ctx, types.CommandQueryDirectory, body, 64*1024)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Status == types.StatusNoMoreFiles {
			return errNoMoreFiles
		}
		return err
	}

	resp, err := msg.DecodeQueryDirectoryResponse(env.raw)
	if err != nil {
		return &InvalidMessageError{Detail: "query directory response", Err: err}
	}
	entries, err := fscc.DecodeDirectoryEntries(it.class, resp.Buffer)
	if err != nil {
		return &InvalidMessageError{Detail: "directory entries", Err: err}
	}
	if len(entries) == 0 {
		return errNoMoreFiles
	}
	it.batch = entries
	it.pos = 0
	return nil
}

// ChangeEvent is one delivered change notification.
type ChangeEvent struct {
	Action   types.NotifyAction
	FileName string
}

// Watch registers a CHANGE_NOTIFY loop and streams events until the
// context is cancelled, the handle closes, or the server fails the watch.
// The returned channel closes when the loop ends; Err-style failures are
// delivered through the second channel (at most one).
func (d *Directory) Watch(ctx context.Context, filter types.NotifyFilter, recursive bool) (<-chan ChangeEvent, <-chan error) {
	events := make(chan ChangeEvent, 16)
	errc := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errc)
		for {
			records, status, err := d.notifyOnce(ctx, filter, recursive)
			if err == nil && (status == types.StatusNotifyCleanup || status == types.StatusFileClosed) {
				// The watched handle went away; the watch ends cleanly.
				return
			}
			if err != nil {
				// A closed handle or cancelled watch ends the loop
				// silently; everything else surfaces.
				var se *StatusError
				if errors.As(err, &se) &&
					(se.Status == types.StatusCancelled ||
						se.Status == types.StatusNotifyCleanup ||
						se.Status == types.StatusFileClosed) {
					return
				}
				if errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled) {
					return
				}
				errc <- err
				return
			}
			for _, rec := range records {
				select {
				case events <- ChangeEvent{Action: rec.Action, FileName: rec.FileName}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return events, errc
}

// notifyOnce issues one long-lived CHANGE_NOTIFY and decodes its records.
// An empty buffer (overflow or enum-dir hint) yields no records; callers
// re-enumerate. Cleanup statuses are success-class and reported via status.
func (d *Directory) notifyOnce(ctx context.Context, filter types.NotifyFilter, recursive bool) ([]fscc.FileNotifyInformation, types.Status, error) {
	body := (&msg.ChangeNotifyRequest{
		Recursive:          recursive,
		OutputBufferLength: 64 * 1024,
		FileID:             d.fileID,
		CompletionFilter:   filter,
	}).Encode()

	in, err := d.tree.session.conn.roundTrip(ctx, &request{
		command:     types.CommandChangeNotify,
		sessionID:   d.tree.session.id,
		treeID:      d.tree.id,
		body:        body,
		payloadHint: 64 * 1024,
		options:     d.tree.session.treeOptions(d.tree),
	})
	if err != nil {
		return nil, 0, err
	}
	status := in.Header.Status
	if status == types.StatusNotifyCleanup || status == types.StatusFileClosed {
		return nil, status, nil
	}

	resp, err := msg.DecodeChangeNotifyResponse(in.Raw)
	if err != nil {
		return nil, status, &InvalidMessageError{Detail: "change notify response", Err: err}
	}
	records, err := fscc.DecodeNotifyRecords(resp.Buffer)
	if err != nil {
		return nil, status, &InvalidMessageError{Detail: "notify records", Err: err}
	}
	if len(records) == 0 {
		logger.Debug("change notify overflow; caller should re-enumerate",
			logger.KeyPath, d.path)
	}
	return records, status, nil
}
