// Package directory implements the directory engine: walking a linear
// sequence of 32-byte entries that lives either in a fixed sector range
// (the FAT12/16 root directory) or across a cluster chain (every
// subdirectory, and the FAT32 root), finding and registering entries, and
// tombstoning removed ones.
package directory

import (
	"github.com/dargueta/fatfs/dirent"
	"github.com/dargueta/fatfs/errors"
	"github.com/dargueta/fatfs/fat"
	"github.com/dargueta/fatfs/window"
)

// Location identifies where a directory's entries live. A fixed-region
// directory (ChainStart == 0) cannot grow past FixedSectorCount; a
// chain-based directory grows by asking the FAT engine for another
// cluster.
type Location struct {
	FixedFirstSector uint32
	FixedSectorCount uint32
	ChainStart       uint32
}

func (l Location) isFixed() bool { return l.ChainStart == 0 }

// Engine is the directory-entry reader/writer shared by every mounted
// volume, layered on the FAT engine for chain-based directories and the
// window cache for sector I/O.
type Engine struct {
	win               *window.Window
	fatEngine         *fat.Engine
	bytesPerSector    uint32
	sectorsPerCluster uint32
}

// New builds a directory Engine.
func New(win *window.Window, fatEngine *fat.Engine, bytesPerSector, sectorsPerCluster uint32) *Engine {
	return &Engine{win: win, fatEngine: fatEngine, bytesPerSector: bytesPerSector, sectorsPerCluster: sectorsPerCluster}
}

func (e *Engine) entriesPerSector() uint32 { return e.bytesPerSector / dirent.Size }

// EntryLBA returns the sector and intra-sector byte offset holding the
// entry at linear index idx within loc, extending the chain first if idx
// falls past the currently allocated region and grow is true.
func (e *Engine) EntryLBA(loc Location, idx uint32, grow bool) (lba uint32, offset uint32, err error) {
	entriesPerSector := e.entriesPerSector()

	if loc.isFixed() {
		sectorIdx := idx / entriesPerSector
		if sectorIdx >= loc.FixedSectorCount {
			return 0, 0, errors.New(errors.FatFull).WithMessage("root directory is full")
		}
		return loc.FixedFirstSector + sectorIdx, (idx % entriesPerSector) * dirent.Size, nil
	}

	entriesPerCluster := entriesPerSector * e.sectorsPerCluster
	clusterIdx := idx / entriesPerCluster
	withinCluster := idx % entriesPerCluster
	sectorWithinCluster := withinCluster / entriesPerSector

	cluster, err := e.fatEngine.Nth(loc.ChainStart, clusterIdx)
	if err != nil {
		if !grow {
			return 0, 0, err
		}
		cluster, err = e.growChainTo(loc.ChainStart, clusterIdx)
		if err != nil {
			return 0, 0, err
		}
	}

	return e.fatEngine.ClusterToSector(cluster) + sectorWithinCluster, (idx % entriesPerSector) * dirent.Size, nil
}

// growChainTo stretches the chain starting at start until it has at least
// targetIdx+1 clusters, returning the cluster at targetIdx.
func (e *Engine) growChainTo(start uint32, targetIdx uint32) (uint32, error) {
	last := start
	count := uint32(0)
	err := e.fatEngine.Walk(start, func(c uint32) error {
		last = c
		count++
		return nil
	})
	if err != nil {
		return 0, err
	}
	for count <= targetIdx {
		next, err := e.fatEngine.ChainStretch(last)
		if err != nil {
			return 0, err
		}
		if err := e.ClusterClear(next); err != nil {
			return 0, err
		}
		last = next
		count++
	}
	return e.fatEngine.Nth(start, targetIdx)
}

// ReadAt reads the raw entry at index idx, returning nil (no error) once
// the end-of-directory marker is reached.
func (e *Engine) ReadAt(loc Location, idx uint32) (*dirent.Raw, error) {
	return e.readAt(loc, idx, false)
}

// ReadRawBytesAt returns the undecoded 32-byte slot at idx, or nil (no
// error) at the end-of-directory marker. Callers that need to tell a
// short entry from an LFN slot before picking which of dirent.UnpackRaw
// or dirent.UnpackLFNSlot to apply use this instead of ReadAt.
func (e *Engine) ReadRawBytesAt(loc Location, idx uint32) ([]byte, error) {
	lba, off, err := e.EntryLBA(loc, idx, false)
	if err != nil {
		if !loc.isFixed() && errors.Is(err, errors.FatError) {
			return nil, nil
		}
		return nil, err
	}

	buf := make([]byte, dirent.Size)
	if err := e.win.Access(lba, func(sector []byte) error {
		copy(buf, sector[off:off+dirent.Size])
		return nil
	}); err != nil {
		return nil, err
	}
	if dirent.IsEnd(buf[0]) {
		return nil, nil
	}
	return buf, nil
}

// readAt is ReadAt's implementation; grow controls whether a chain-based
// directory is extended (with the new cluster cleared first) when idx
// falls past the end of the currently allocated clusters, or whether that
// condition is instead treated as having reached the end of a directory
// that just hasn't been fully written yet.
func (e *Engine) readAt(loc Location, idx uint32, grow bool) (*dirent.Raw, error) {
	lba, off, err := e.EntryLBA(loc, idx, grow)
	if err != nil {
		if !grow && !loc.isFixed() && errors.Is(err, errors.FatError) {
			return nil, nil
		}
		return nil, err
	}

	var buf [dirent.Size]byte
	if err := e.win.Access(lba, func(sector []byte) error {
		copy(buf[:], sector[off:off+dirent.Size])
		return nil
	}); err != nil {
		return nil, err
	}

	if dirent.IsEnd(buf[0]) {
		return nil, nil
	}
	if buf[0] == dirent.FreeMarker {
		return &dirent.Raw{Name: [8]byte{dirent.FreeMarker}}, nil
	}
	return dirent.UnpackRaw(buf[:])
}

// WriteAt writes raw to index idx, growing the chain if necessary.
func (e *Engine) WriteAt(loc Location, idx uint32, raw *dirent.Raw) error {
	lba, off, err := e.EntryLBA(loc, idx, true)
	if err != nil {
		return err
	}
	packed, err := dirent.PackRaw(raw)
	if err != nil {
		return err
	}
	return e.win.AccessForWrite(lba, func(sector []byte) error {
		copy(sector[off:off+dirent.Size], packed)
		return nil
	})
}

// WriteLFNAt writes a raw LFN slot to index idx.
func (e *Engine) WriteLFNAt(loc Location, idx uint32, slot *dirent.LFNSlot) error {
	lba, off, err := e.EntryLBA(loc, idx, true)
	if err != nil {
		return err
	}
	packed, err := dirent.PackLFNSlot(slot)
	if err != nil {
		return err
	}
	return e.win.AccessForWrite(lba, func(sector []byte) error {
		copy(sector[off:off+dirent.Size], packed)
		return nil
	})
}

// Remove tombstones the entry at idx by overwriting its first byte with
// the free marker.
func (e *Engine) Remove(loc Location, idx uint32) error {
	lba, off, err := e.EntryLBA(loc, idx, false)
	if err != nil {
		return err
	}
	return e.win.AccessForWrite(lba, func(sector []byte) error {
		sector[off] = dirent.FreeMarker
		return nil
	})
}

// Find scans loc from the beginning for an entry whose short name matches
// target, returning its index and decoded entry. found is false (with a
// nil error) if the directory ends without a match.
func (e *Engine) Find(loc Location, target [11]byte) (idx uint32, entry *dirent.Raw, found bool, err error) {
	for i := uint32(0); ; i++ {
		raw, err := e.ReadAt(loc, i)
		if err != nil {
			return 0, nil, false, err
		}
		if raw == nil {
			return 0, nil, false, nil
		}
		if raw.Name[0] == dirent.FreeMarker {
			continue
		}
		if dirent.IsLFN(raw.Attributes) {
			continue
		}
		combined := [11]byte{}
		copy(combined[:8], raw.Name[:])
		copy(combined[8:], raw.Extension[:])
		if combined == target {
			return i, raw, true, nil
		}
	}
}

// Allocate finds count contiguous free (or past-end) slots, growing a
// chain-based directory if the existing region runs out, and returns the
// index of the first slot.
func (e *Engine) Allocate(loc Location, count int) (uint32, error) {
	run := 0
	var start uint32
	for i := uint32(0); ; i++ {
		raw, err := e.readAt(loc, i, !loc.isFixed())
		if err != nil {
			if loc.isFixed() {
				return 0, errors.New(errors.FatFull).WithMessage("root directory is full")
			}
			return 0, err
		}
		isFree := raw == nil || raw.Name[0] == dirent.FreeMarker
		if isFree {
			if run == 0 {
				start = i
			}
			run++
			if run == count {
				return start, nil
			}
		} else {
			run = 0
		}
	}
}

// ClusterClear zeroes every sector of cluster (used when extending a
// directory's chain, so new entries start as all-zero "never written"
// slots rather than stale data).
func (e *Engine) ClusterClear(cluster uint32) error {
	base := e.fatEngine.ClusterToSector(cluster)
	zero := make([]byte, e.bytesPerSector)
	for s := uint32(0); s < e.sectorsPerCluster; s++ {
		if err := e.win.AccessForWrite(base+s, func(sector []byte) error {
			copy(sector, zero)
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}
