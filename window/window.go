// Package window implements the single-sector cache each mounted volume
// keeps in front of its gateway.Device: at most one sector is buffered at
// a time, dirty writes are deferred until the window needs to move or is
// explicitly synced, and a write landing in the FAT region is mirrored to
// every FAT copy on sync.
//
// Access to the buffer is always scoped through a closure (Access /
// AccessForWrite) so no caller can retain a slice across a reload, per
// the design note this package is built to satisfy.
package window

import (
	"github.com/dargueta/fatfs/errors"
	"github.com/dargueta/fatfs/gateway"
)

// FATRegion describes where the FAT copies live, so a dirty write to a
// sector inside the FAT can be mirrored to every copy on sync, matching
// the original's dual-FAT write-through behavior.
type FATRegion struct {
	FirstSector uint32
	SectorsEach uint32
	Copies      int
}

func (r FATRegion) contains(lba uint32) bool {
	if r.Copies <= 0 || r.SectorsEach == 0 {
		return false
	}
	total := r.SectorsEach * uint32(r.Copies)
	return lba >= r.FirstSector && lba < r.FirstSector+total
}

// mirrors returns the LBA of lba in every other FAT copy besides the
// one it's already in.
func (r FATRegion) mirrors(lba uint32) []uint32 {
	offsetWithinFATs := lba - r.FirstSector
	copyIndex := offsetWithinFATs / r.SectorsEach
	offsetWithinCopy := offsetWithinFATs % r.SectorsEach
	out := make([]uint32, 0, r.Copies-1)
	for i := 0; i < r.Copies; i++ {
		if uint32(i) == copyIndex {
			continue
		}
		out = append(out, r.FirstSector+uint32(i)*r.SectorsEach+offsetWithinCopy)
	}
	return out
}

// Window is a one-sector read-through, write-back cache over a
// gateway.Device.
type Window struct {
	dev    gateway.Device
	fat    FATRegion
	buf    []byte
	lba    uint32
	valid  bool
	dirty  bool
}

// New creates a Window over dev. fat describes the FAT region for dual-copy
// write-through; pass a zero-value FATRegion if the volume has no FAT
// mirroring to do (e.g. before a mount completes).
func New(dev gateway.Device, fat FATRegion) *Window {
	return &Window{
		dev: dev,
		fat: fat,
		buf: make([]byte, dev.SectorSize()),
	}
}

// SetFATRegion updates the FAT mirroring geometry once a volume has been
// mounted and its layout is known.
func (w *Window) SetFATRegion(fat FATRegion) {
	w.fat = fat
}

// Device returns the gateway.Device backing this window, so a layer above
// (e.g. fat.Engine) can type-assert it for optional capabilities such as
// gateway.Trimmer without the window needing to know about them itself.
func (w *Window) Device() gateway.Device { return w.dev }

// move loads lba into the buffer, flushing a dirty buffer for a different
// sector first. It is a no-op if lba is already resident.
func (w *Window) move(lba uint32) error {
	if w.valid && w.lba == lba {
		return nil
	}
	if w.dirty {
		if err := w.flush(); err != nil {
			return err
		}
	}
	if err := w.dev.ReadSectors(lba, 1, w.buf); err != nil {
		return err
	}
	w.lba = lba
	w.valid = true
	w.dirty = false
	return nil
}

// flush writes the buffer back if dirty, mirroring to every other FAT
// copy when the resident sector lies in the FAT region.
func (w *Window) flush() error {
	if !w.dirty {
		return nil
	}
	if err := w.dev.WriteSectors(w.lba, 1, w.buf); err != nil {
		return err
	}
	if w.fat.contains(w.lba) {
		for _, mirror := range w.fat.mirrors(w.lba) {
			if err := w.dev.WriteSectors(mirror, 1, w.buf); err != nil {
				return err
			}
		}
	}
	w.dirty = false
	return nil
}

// Access loads sector lba and invokes fn with its contents. The slice
// passed to fn must not be retained past the call.
func (w *Window) Access(lba uint32, fn func(buf []byte) error) error {
	if err := w.move(lba); err != nil {
		return err
	}
	return fn(w.buf)
}

// AccessForWrite loads sector lba, invokes fn to mutate its contents, and
// marks the sector dirty. The write is not forced to the device until
// Sync is called or the window moves to a different sector.
func (w *Window) AccessForWrite(lba uint32, fn func(buf []byte) error) error {
	if err := w.move(lba); err != nil {
		return err
	}
	if err := fn(w.buf); err != nil {
		return err
	}
	w.dirty = true
	return nil
}

// Sync forces a dirty buffer to the device without invalidating it.
func (w *Window) Sync() error {
	return w.flush()
}

// Invalidate discards the resident sector without writing it back. Used
// when a caller knows the on-disk contents changed out from under the
// cache (e.g. after a raw device write bypassing the window).
func (w *Window) Invalidate() {
	w.valid = false
	w.dirty = false
}

// Dirty reports whether the resident sector has unflushed writes.
func (w *Window) Dirty() bool { return w.dirty }

// ResidentLBA returns the LBA currently buffered and whether it is valid.
func (w *Window) ResidentLBA() (uint32, bool) { return w.lba, w.valid }

// guardReload returns an error if asked to load a different sector while
// the current one is dirty with write still pending confirmation from the
// caller; it is unexported, for code in this package that wants to assert
// the invariant explicitly instead of relying on the implicit
// flush-on-move behavior.
func (w *Window) guardReload(lba uint32) error {
	if w.dirty && w.valid && w.lba != lba {
		return errors.New(errors.IntError).WithMessage("window moved away from a dirty sector without an explicit sync")
	}
	return nil
}
