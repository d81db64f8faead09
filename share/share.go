// Package share implements the file sharing-policy table: a bounded set
// of slots, each recording which open object (identified by the volume it
// lives on and its directory entry's location) is held with which access
// mode, so that conflicting opens can be rejected rather than corrupting
// each other's view of the file.
//
// Access modes mirror the original's three classes: 0 read, 1 write,
// 2 delete/rename.
package share

import (
	"github.com/boljen/go-bitmap"

	"github.com/dargueta/fatfs/errors"
)

const (
	AccessRead = iota
	AccessWrite
	AccessDelete
)

// EntryKey identifies an open directory entry: which volume it's on and
// where its short entry lives (first cluster of the containing directory
// plus linear offset within it), matching the original's
// {filesystem, directory offset} pairing.
type EntryKey struct {
	VolumeID    uint32
	DirCluster  uint32
	EntryOffset uint32
}

type slot struct {
	key        EntryKey
	readers    int
	writers    int
	deleters   int
}

// Table is a bounded share-lock table for one process-wide set of
// volumes. A single Table can be shared across every mounted volume
// because EntryKey already disambiguates by VolumeID.
type Table struct {
	slots    []slot
	occupied bitmap.Bitmap
	capacity int
}

// New creates a Table with room for capacity simultaneously-open entries.
func New(capacity int) *Table {
	return &Table{
		slots:    make([]slot, capacity),
		occupied: bitmap.New(capacity),
		capacity: capacity,
	}
}

func (t *Table) find(key EntryKey) int {
	for i := 0; i < t.capacity; i++ {
		if t.occupied.Get(i) && t.slots[i].key == key {
			return i
		}
	}
	return -1
}

// Check reports whether opening key with the given access mode is
// permitted under the current sharing state, without modifying the
// table: a second writer, or any access while a delete is pending, is
// rejected, matching the original's LockCheck semantics.
func (t *Table) Check(key EntryKey, access int) error {
	idx := t.find(key)
	if idx < 0 {
		return nil
	}
	s := &t.slots[idx]

	switch access {
	case AccessRead:
		if s.writers > 0 || s.deleters > 0 {
			return errors.New(errors.Locked)
		}
	case AccessWrite:
		if s.writers > 0 || s.readers > 0 || s.deleters > 0 {
			return errors.New(errors.Locked)
		}
	case AccessDelete:
		if s.readers > 0 || s.writers > 0 || s.deleters > 0 {
			return errors.New(errors.Locked)
		}
	}
	return nil
}

// Acquire checks and then registers an open of key with the given access
// mode, returning the slot index to later pass to Release. It allocates a
// fresh slot on first use and fails with TooManyOpenFiles if the table is
// full.
func (t *Table) Acquire(key EntryKey, access int) (int, error) {
	if err := t.Check(key, access); err != nil {
		return -1, err
	}

	idx := t.find(key)
	if idx < 0 {
		idx = t.allocateSlot(key)
		if idx < 0 {
			return -1, errors.New(errors.TooManyOpenFiles)
		}
	}

	s := &t.slots[idx]
	switch access {
	case AccessRead:
		s.readers++
	case AccessWrite:
		s.writers++
	case AccessDelete:
		s.deleters++
	}
	return idx, nil
}

func (t *Table) allocateSlot(key EntryKey) int {
	for i := 0; i < t.capacity; i++ {
		if !t.occupied.Get(i) {
			t.occupied.Set(i, true)
			t.slots[i] = slot{key: key}
			return i
		}
	}
	return -1
}

// Release decrements the access-mode count registered at idx, freeing the
// slot entirely once no reader, writer, or deleter remains.
func (t *Table) Release(idx int, access int) error {
	if idx < 0 || idx >= t.capacity || !t.occupied.Get(idx) {
		return errors.New(errors.IntError).WithMessage("release of unheld share-lock slot")
	}
	s := &t.slots[idx]
	switch access {
	case AccessRead:
		if s.readers > 0 {
			s.readers--
		}
	case AccessWrite:
		if s.writers > 0 {
			s.writers--
		}
	case AccessDelete:
		if s.deleters > 0 {
			s.deleters--
		}
	}
	if s.readers == 0 && s.writers == 0 && s.deleters == 0 {
		t.occupied.Set(idx, false)
		t.slots[idx] = slot{}
	}
	return nil
}

// ClearForVolume force-releases every slot belonging to volumeID,
// matching the original's force-unlock-on-unmount behavior.
func (t *Table) ClearForVolume(volumeID uint32) {
	for i := 0; i < t.capacity; i++ {
		if t.occupied.Get(i) && t.slots[i].key.VolumeID == volumeID {
			t.occupied.Set(i, false)
			t.slots[i] = slot{}
		}
	}
}
