package fs

import (
	"io"

	"github.com/dargueta/fatfs/errors"
	"github.com/dargueta/fatfs/share"
)

const (
	readAccess   = share.AccessRead
	writeAccess  = share.AccessWrite
	deleteAccess = share.AccessDelete
)

// File is an open handle to a regular file's data.
type File struct {
	objectHandle
	pos      int64
	readOnly bool
}

// Open opens the file at path. If the file does not exist, errors.NoFile
// is returned; use Create to make a new one.
func Open(vol *Volume, path string) (*File, error) {
	handle, err := lookupPath(vol, path)
	if err != nil {
		return nil, err
	}
	if handle.entry.IsDir() {
		return nil, errors.New(errors.InvalidParameter).WithMessage("path names a directory, not a file")
	}
	if err := handle.acquireShare(readAccess); err != nil {
		return nil, err
	}
	return &File{objectHandle: *handle, readOnly: true}, nil
}

// OpenForWrite opens an existing file for reading and writing.
func OpenForWrite(vol *Volume, path string) (*File, error) {
	handle, err := lookupPath(vol, path)
	if err != nil {
		return nil, err
	}
	if handle.entry.IsDir() {
		return nil, errors.New(errors.InvalidParameter).WithMessage("path names a directory, not a file")
	}
	if err := handle.acquireShare(writeAccess); err != nil {
		return nil, err
	}
	return &File{objectHandle: *handle}, nil
}

// Name returns the file's long (or, lacking one, short) name.
func (f *File) Name() string { return f.entry.Name }

// Size returns the file's current length in bytes, including writes and
// truncations not yet flushed by Sync or Close.
func (f *File) Size() int64 { return int64(f.entry.Size) }

// clusterFor returns the cluster holding byte offset off, extending the
// file's chain (and, for the first cluster, registering it in the
// directory entry) when grow is true and the offset runs past the
// current allocation.
func (f *File) clusterFor(off int64, grow bool) (uint32, error) {
	bpc := int64(f.volume.bytesPerCluster())
	clusterIdx := uint32(off / bpc)

	if f.entry.FirstCluster == 0 {
		if !grow {
			return 0, errors.New(errors.IntError).WithMessage("read past end of empty file")
		}
		cluster, err := f.volume.fatEngine.ChainCreate()
		if err != nil {
			return 0, err
		}
		f.entry.FirstCluster = cluster
		if err := f.writeBack(); err != nil {
			return 0, err
		}
	}

	cluster, err := f.volume.fatEngine.Nth(f.entry.FirstCluster, clusterIdx)
	if err == nil {
		return cluster, nil
	}
	if !grow {
		return 0, err
	}

	last := f.entry.FirstCluster
	count := uint32(0)
	if walkErr := f.volume.fatEngine.Walk(f.entry.FirstCluster, func(c uint32) error {
		last = c
		count++
		return nil
	}); walkErr != nil {
		return 0, walkErr
	}
	for count <= clusterIdx {
		next, err := f.volume.fatEngine.ChainStretch(last)
		if err != nil {
			return 0, err
		}
		last = next
		count++
	}
	return f.volume.fatEngine.Nth(f.entry.FirstCluster, clusterIdx)
}

// Read implements io.Reader, reading from the current offset and stopping
// at the file's recorded size.
func (f *File) Read(p []byte) (int, error) {
	if err := f.validate(); err != nil {
		return 0, err
	}
	if f.pos >= int64(f.entry.Size) {
		return 0, io.EOF
	}

	bytesPerSector := int64(f.volume.geometry.BytesPerSector)
	bpc := bytesPerSector * int64(f.volume.geometry.SectorsPerCluster)

	total := 0
	for total < len(p) && f.pos < int64(f.entry.Size) {
		cluster, err := f.clusterFor(f.pos, false)
		if err != nil {
			return total, err
		}
		byteInCluster := f.pos % bpc
		sectorInCluster := uint32(byteInCluster / bytesPerSector)
		offsetInSector := int(byteInCluster % bytesPerSector)
		lba := f.volume.fatEngine.ClusterToSector(cluster) + sectorInCluster

		remaining := len(p) - total
		if int64(remaining) > int64(f.entry.Size)-f.pos {
			remaining = int(int64(f.entry.Size) - f.pos)
		}
		chunk := int(bytesPerSector) - offsetInSector
		if chunk > remaining {
			chunk = remaining
		}

		err = f.volume.win.Access(lba, func(sector []byte) error {
			copy(p[total:total+chunk], sector[offsetInSector:offsetInSector+chunk])
			return nil
		})
		if err != nil {
			return total, err
		}
		total += chunk
		f.pos += int64(chunk)
	}
	return total, nil
}

// Write implements io.Writer, extending the file's cluster chain and
// recorded size as needed.
func (f *File) Write(p []byte) (int, error) {
	if err := f.validate(); err != nil {
		return 0, err
	}
	if f.readOnly {
		return 0, errors.New(errors.Denied).WithMessage("file opened read-only")
	}

	bytesPerSector := int64(f.volume.geometry.BytesPerSector)
	bpc := bytesPerSector * int64(f.volume.geometry.SectorsPerCluster)

	total := 0
	for total < len(p) {
		cluster, err := f.clusterFor(f.pos, true)
		if err != nil {
			return total, err
		}
		byteInCluster := f.pos % bpc
		sectorInCluster := uint32(byteInCluster / bytesPerSector)
		offsetInSector := int(byteInCluster % bytesPerSector)
		lba := f.volume.fatEngine.ClusterToSector(cluster) + sectorInCluster

		chunk := int(bytesPerSector) - offsetInSector
		if chunk > len(p)-total {
			chunk = len(p) - total
		}

		err = f.volume.win.AccessForWrite(lba, func(sector []byte) error {
			copy(sector[offsetInSector:offsetInSector+chunk], p[total:total+chunk])
			return nil
		})
		if err != nil {
			return total, err
		}
		total += chunk
		f.pos += int64(chunk)
		if f.pos > int64(f.entry.Size) {
			f.entry.Size = uint32(f.pos)
		}
	}
	return total, f.writeBack()
}

// Seek implements io.Seeker.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = f.pos
	case io.SeekEnd:
		base = int64(f.entry.Size)
	default:
		return 0, errors.New(errors.InvalidParameter).WithMessage("bad whence value")
	}
	newPos := base + offset
	if newPos < 0 {
		return 0, errors.New(errors.InvalidParameter).WithMessage("negative seek position")
	}
	f.pos = newPos
	return newPos, nil
}

// Truncate sets the file's size, freeing now-unreferenced clusters when
// shrinking. Growing past the current allocation is deferred to the next
// Write.
func (f *File) Truncate(size int64) error {
	if err := f.validate(); err != nil {
		return err
	}
	if size >= int64(f.entry.Size) {
		f.entry.Size = uint32(size)
		return f.writeBack()
	}
	if size == 0 {
		if f.entry.FirstCluster != 0 {
			if err := f.volume.fatEngine.ChainRemove(f.entry.FirstCluster, 0); err != nil {
				return err
			}
			f.entry.FirstCluster = 0
		}
		f.entry.Size = 0
		return f.writeBack()
	}

	bpc := int64(f.volume.bytesPerCluster())
	lastIdx := uint32((size - 1) / bpc)
	lastCluster, err := f.volume.fatEngine.Nth(f.entry.FirstCluster, lastIdx)
	if err != nil {
		return err
	}
	next, err := f.volume.fatEngine.Get(lastCluster)
	if err != nil {
		return err
	}
	if !f.volume.fatEngine.IsEndOfChain(next) {
		if err := f.volume.fatEngine.ChainRemove(next, lastCluster); err != nil {
			return err
		}
	}
	f.entry.Size = uint32(size)
	return f.writeBack()
}

// Sync flushes the file's directory entry and the window cache.
func (f *File) Sync() error {
	if err := f.writeBack(); err != nil {
		return err
	}
	return f.volume.win.Sync()
}

// Close releases the file's share-lock and flushes pending writes.
func (f *File) Close() error {
	if err := f.Sync(); err != nil {
		return err
	}
	return f.releaseShare()
}
