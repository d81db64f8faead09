// Package fat implements the FAT12/16/32 cluster-chain engine: reading and
// writing individual FAT entries through the shared sector window,
// locating free clusters, and building/extending/truncating chains.
//
// FAT12 packs two 12-bit entries into three bytes, with the odd entry's
// bits straddling a byte boundary; this package hides that from callers
// behind the same Get/Set API used for FAT16 and FAT32.
package fat

import (
	"github.com/dargueta/fatfs/errors"
	"github.com/dargueta/fatfs/gateway"
	"github.com/dargueta/fatfs/internal/codec"
	"github.com/dargueta/fatfs/window"
)

// Kind identifies which FAT entry width a volume uses.
type Kind int

const (
	Kind12 Kind = 12
	Kind16 Kind = 16
	Kind32 Kind = 32
)

const endOfChain32 = 0x0FFFFFFF

// eocFor returns the canonical end-of-chain marker for the engine's Kind.
func eocFor(k Kind) uint32 {
	switch k {
	case Kind12:
		return 0x0FFF
	case Kind16:
		return 0xFFFF
	default:
		return endOfChain32
	}
}

// FreeSpaceTracker lets the engine consult and update a volume's free
// cluster count and allocation hint without importing the fs package
// (which imports fat), avoiding an import cycle.
type FreeSpaceTracker interface {
	FreeClusterHint() uint32
	SetFreeClusterHint(cluster uint32)
	AdjustFreeClusters(delta int64)
}

// Layout describes the geometry the engine needs to locate FAT entries
// and translate clusters to sectors.
type Layout struct {
	Kind            Kind
	BytesPerSector  uint32
	FATFirstSector  uint32
	SectorsPerFAT   uint32
	NumFATs         int
	FirstDataSector uint32
	SectorsPerCluster uint32
	// TotalClusters is the count of valid data clusters (cluster 2 is the
	// first one); clusters [2, TotalClusters+2) are addressable.
	TotalClusters uint32
}

// Engine is the FAT access layer for one mounted volume.
type Engine struct {
	win     *window.Window
	layout  Layout
	tracker FreeSpaceTracker
}

// New builds an Engine over win using the given layout. tracker may be nil
// if free-space hinting isn't wired up (e.g. read-only mounts).
func New(win *window.Window, layout Layout, tracker FreeSpaceTracker) *Engine {
	win.SetFATRegion(window.FATRegion{
		FirstSector: layout.FATFirstSector,
		SectorsEach: layout.SectorsPerFAT,
		Copies:      layout.NumFATs,
	})
	return &Engine{win: win, layout: layout, tracker: tracker}
}

// IsValidCluster reports whether n addresses a real data cluster.
func (e *Engine) IsValidCluster(n uint32) bool {
	return n >= 2 && n < e.layout.TotalClusters+2
}

// EndOfChainMarker returns the canonical end-of-chain value for the
// engine's Kind, for callers (e.g. truncation) that need to terminate a
// chain at a cluster earlier than its previous end.
func (e *Engine) EndOfChainMarker() uint32 {
	return eocFor(e.layout.Kind)
}

// IsEndOfChain reports whether value marks the end of a cluster chain.
func (e *Engine) IsEndOfChain(value uint32) bool {
	switch e.layout.Kind {
	case Kind12:
		return value >= 0x0FF8
	case Kind16:
		return value >= 0xFFF8
	default:
		return value >= 0x0FFFFFF8
	}
}

// IsFree reports whether value marks a cluster as unallocated.
func (e *Engine) IsFree(value uint32) bool { return value == 0 }

// IsBad reports whether value marks a cluster as a bad sector.
func (e *Engine) IsBad(value uint32) bool {
	switch e.layout.Kind {
	case Kind12:
		return value == 0x0FF7
	case Kind16:
		return value == 0xFFF7
	default:
		return value == 0x0FFFFFF7
	}
}

// entryByteOffset returns the byte offset of cluster n's entry from the
// start of the FAT.
func (e *Engine) entryByteOffset(n uint32) uint32 {
	switch e.layout.Kind {
	case Kind12:
		return codec.FAT12EntryByteOffset(n)
	case Kind16:
		return n * 2
	default:
		return n * 4
	}
}

func (e *Engine) sectorAndOffset(n uint32) (lba uint32, offset uint32) {
	byteOff := e.entryByteOffset(n)
	sectorIndex := byteOff / e.layout.BytesPerSector
	offset = byteOff % e.layout.BytesPerSector
	lba = e.layout.FATFirstSector + sectorIndex
	return lba, offset
}

// Get reads the raw FAT entry for cluster n.
func (e *Engine) Get(n uint32) (uint32, error) {
	if !e.IsValidCluster(n) {
		return 0, errors.Newf(errors.FatClusterOver, "cluster %d out of range", n)
	}

	lba, off := e.sectorAndOffset(n)

	if e.layout.Kind == Kind12 && off == e.layout.BytesPerSector-1 {
		// The 12-bit entry straddles into the next sector.
		var pair [2]byte
		if err := e.win.Access(lba, func(buf []byte) error {
			pair[0] = buf[off]
			return nil
		}); err != nil {
			return 0, err
		}
		if err := e.win.Access(lba+1, func(buf []byte) error {
			pair[1] = buf[0]
			return nil
		}); err != nil {
			return 0, err
		}
		return uint32(codec.GetFAT12Entry(n, pair)), nil
	}

	var value uint32
	err := e.win.Access(lba, func(buf []byte) error {
		switch e.layout.Kind {
		case Kind12:
			value = uint32(codec.GetFAT12Entry(n, [2]byte{buf[off], buf[off+1]}))
		case Kind16:
			value = uint32(codec.LoadU16(buf, int(off)))
		default:
			value = codec.LoadU32(buf, int(off)) & 0x0FFFFFFF
		}
		return nil
	})
	return value, err
}

// Set writes the raw FAT entry for cluster n.
func (e *Engine) Set(n uint32, value uint32) error {
	if !e.IsValidCluster(n) {
		return errors.Newf(errors.FatClusterOver, "cluster %d out of range", n)
	}

	lba, off := e.sectorAndOffset(n)

	if e.layout.Kind == Kind12 && off == e.layout.BytesPerSector-1 {
		var pair [2]byte
		if err := e.win.Access(lba, func(buf []byte) error {
			pair[0] = buf[off]
			return nil
		}); err != nil {
			return err
		}
		if err := e.win.Access(lba+1, func(buf []byte) error {
			pair[1] = buf[0]
			return nil
		}); err != nil {
			return err
		}
		packed := codec.SetFAT12Entry(n, pair, uint16(value))
		if err := e.win.AccessForWrite(lba, func(buf []byte) error {
			buf[off] = packed[0]
			return nil
		}); err != nil {
			return err
		}
		return e.win.AccessForWrite(lba+1, func(buf []byte) error {
			buf[0] = packed[1]
			return nil
		})
	}

	return e.win.AccessForWrite(lba, func(buf []byte) error {
		switch e.layout.Kind {
		case Kind12:
			packed := codec.SetFAT12Entry(n, [2]byte{buf[off], buf[off+1]}, uint16(value))
			buf[off], buf[off+1] = packed[0], packed[1]
		case Kind16:
			codec.StoreU16(buf, int(off), uint16(value))
		default:
			existing := codec.LoadU32(buf, int(off))
			merged := (existing & 0xF0000000) | (value & 0x0FFFFFFF)
			codec.StoreU32(buf, int(off), merged)
		}
		return nil
	})
}

// ClusterToSector converts a cluster number to its first LBA in the data
// region.
func (e *Engine) ClusterToSector(n uint32) uint32 {
	return e.layout.FirstDataSector + (n-2)*e.layout.SectorsPerCluster
}

// FindFree scans starting at startHint (wrapping around) for an
// unallocated cluster and returns its number.
func (e *Engine) FindFree(startHint uint32) (uint32, error) {
	if startHint < 2 || startHint >= e.layout.TotalClusters+2 {
		startHint = 2
	}
	last := e.layout.TotalClusters + 2
	for n := startHint; n < last; n++ {
		v, err := e.Get(n)
		if err != nil {
			return 0, err
		}
		if e.IsFree(v) {
			return n, nil
		}
	}
	for n := uint32(2); n < startHint; n++ {
		v, err := e.Get(n)
		if err != nil {
			return 0, err
		}
		if e.IsFree(v) {
			return n, nil
		}
	}
	return 0, errors.New(errors.FatFull)
}

// ChainCreate allocates a single fresh cluster, marks it end-of-chain, and
// returns its number. Used to start a new file or directory's chain.
func (e *Engine) ChainCreate() (uint32, error) {
	hint := uint32(2)
	if e.tracker != nil {
		hint = e.tracker.FreeClusterHint()
	}
	n, err := e.FindFree(hint)
	if err != nil {
		return 0, err
	}
	if err := e.Set(n, eocFor(e.layout.Kind)); err != nil {
		return 0, err
	}
	if e.tracker != nil {
		e.tracker.SetFreeClusterHint(n + 1)
		e.tracker.AdjustFreeClusters(-1)
	}
	return n, nil
}

// ChainStretch links a fresh cluster after lastCluster and returns it. If
// lastCluster already points to a successor (it isn't actually the chain's
// end), that successor is returned unchanged instead of being overwritten,
// matching the read-modify-write discipline every other chain_* operation
// follows: never clobber a live link.
func (e *Engine) ChainStretch(lastCluster uint32) (uint32, error) {
	current, err := e.Get(lastCluster)
	if err != nil {
		return 0, err
	}
	if !e.IsEndOfChain(current) && !e.IsFree(current) {
		return current, nil
	}

	next, err := e.ChainCreate()
	if err != nil {
		return 0, err
	}
	if err := e.Set(lastCluster, next); err != nil {
		return 0, err
	}
	return next, nil
}

// ChainRemove frees every cluster in the chain starting at start,
// inclusive, following next-pointers until end-of-chain. When prev is
// nonzero, it is first overwritten with the end-of-chain marker so the
// surviving chain it belongs to is properly terminated before start's
// clusters are freed; pass 0 when start is itself a chain's first cluster
// (there's no predecessor link to fix up).
//
// Once every cluster is freed, the underlying device is given a chance to
// TRIM the vacated data region: if the window's device implements
// gateway.Trimmer and the freed clusters form one contiguous sector range,
// ChainRemove issues one Trim call covering that range. A chain whose
// clusters are not contiguous is not trimmed. Devices that don't
// implement it (the common case for file-backed images) are silently
// skipped.
func (e *Engine) ChainRemove(start uint32, prev uint32) error {
	if prev != 0 {
		if err := e.Set(prev, eocFor(e.layout.Kind)); err != nil {
			return err
		}
	}

	n := start
	freed := int64(0)
	var minSector, maxSector uint32
	haveRange := false
	for e.IsValidCluster(n) {
		next, err := e.Get(n)
		if err != nil {
			return err
		}
		if err := e.Set(n, 0); err != nil {
			return err
		}
		freed++

		sector := e.ClusterToSector(n)
		last := sector + e.layout.SectorsPerCluster
		if !haveRange {
			minSector, maxSector, haveRange = sector, last, true
		} else {
			if sector < minSector {
				minSector = sector
			}
			if last > maxSector {
				maxSector = last
			}
		}

		if e.IsEndOfChain(next) || e.IsBad(next) {
			break
		}
		n = next
	}
	if e.tracker != nil && freed > 0 {
		e.tracker.AdjustFreeClusters(freed)
	}
	if haveRange && maxSector-minSector == uint32(freed)*e.layout.SectorsPerCluster {
		if trimmer, ok := e.win.Device().(gateway.Trimmer); ok {
			if err := trimmer.Trim(minSector, maxSector); err != nil {
				return err
			}
		}
	}
	return nil
}

// Walk calls fn for every cluster in the chain starting at start, in
// order, stopping at end-of-chain or when fn returns an error.
func (e *Engine) Walk(start uint32, fn func(cluster uint32) error) error {
	n := start
	for e.IsValidCluster(n) {
		if err := fn(n); err != nil {
			return err
		}
		next, err := e.Get(n)
		if err != nil {
			return err
		}
		if e.IsEndOfChain(next) || e.IsBad(next) {
			return nil
		}
		n = next
	}
	return nil
}

// Nth returns the cluster at zero-based index idx in the chain starting
// at start, stopping early with errors.FatError if the chain ends first.
func (e *Engine) Nth(start uint32, idx uint32) (uint32, error) {
	n := start
	for i := uint32(0); i < idx; i++ {
		next, err := e.Get(n)
		if err != nil {
			return 0, err
		}
		if e.IsEndOfChain(next) || e.IsBad(next) {
			return 0, errors.New(errors.FatError).WithMessage("chain shorter than requested index")
		}
		n = next
	}
	return n, nil
}
