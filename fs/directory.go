package fs

import (
	"io"

	"github.com/dargueta/fatfs/errors"
)

// Directory is an open handle to a directory's entry listing.
type Directory struct {
	objectHandle
	entries []DirEntry
	cursor  int
}

// OpenDir opens the directory at path for listing.
func OpenDir(vol *Volume, path string) (*Directory, error) {
	handle, err := lookupPath(vol, path)
	if err != nil {
		return nil, err
	}
	if !handle.entry.IsDir() {
		return nil, errors.New(errors.InvalidParameter).WithMessage("path does not name a directory")
	}
	if err := handle.acquireShare(readAccess); err != nil {
		return nil, err
	}

	entries, err := listEntries(vol, handle.location())
	if err != nil {
		handle.releaseShare()
		return nil, err
	}

	return &Directory{objectHandle: *handle, entries: entries}, nil
}

// ReadDir returns up to n entries starting from the cursor; n<=0 reads
// every remaining entry and returns a nil error even when none remain.
// With n>0, a call made once the listing is exhausted returns no entries
// and io.EOF, matching os.File.ReadDir's contract.
func (d *Directory) ReadDir(n int) ([]DirEntry, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}

	remaining := len(d.entries) - d.cursor
	if remaining <= 0 {
		if n <= 0 {
			return nil, nil
		}
		return nil, io.EOF
	}

	count := remaining
	if n > 0 && n < remaining {
		count = n
	}
	out := make([]DirEntry, count)
	copy(out, d.entries[d.cursor:d.cursor+count])
	d.cursor += count

	if n <= 0 {
		return out, nil
	}
	return out, nil
}

// Rewind resets the read cursor to the beginning of the listing.
func (d *Directory) Rewind() { d.cursor = 0 }

// Close releases the directory's share-lock.
func (d *Directory) Close() error {
	return d.releaseShare()
}
