// Package registry is the process-wide table of mounted volumes: a bounded
// array of drive-letter slots, each pairing a *fs.Volume with the
// SyncObject serializing access to it, plus the path-to-volume resolution
// "X:PATH" syntax depends on.
package registry

import (
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/dargueta/fatfs/errors"
	"github.com/dargueta/fatfs/fs"
	"github.com/dargueta/fatfs/gateway"
	"github.com/dargueta/fatfs/share"
)

// MaxMountedVolumes bounds the registry to drive letters A through Z.
const MaxMountedVolumes = 26

// DefaultTimeout is how long Resolve's caller should wait to acquire a
// volume's SyncObject before giving up, absent a more specific deadline.
const DefaultTimeout = 5 * time.Second

type slotEntry struct {
	volume *fs.Volume
	sync   SyncObject
}

// Registry is a bounded set of mounted volumes addressed by drive letter.
// The zero value is not usable; construct with New.
type Registry struct {
	mu   sync.Mutex
	slots [MaxMountedVolumes]*slotEntry

	// relativePaths controls what a path with no "X:" prefix resolves
	// against: the currently-selected drive when true, slot 0 otherwise.
	relativePaths bool
	currentDrive  byte
}

// New creates an empty Registry. relativePaths mirrors the mount-time
// option of the same name but applies to path resolution at the registry
// level: whether a prefix-less path follows the "current drive" or is
// always pinned to slot 0 ('A').
func New(relativePaths bool) *Registry {
	return &Registry{relativePaths: relativePaths, currentDrive: 'A'}
}

func driveIndex(drive byte) (int, error) {
	d := drive
	if d >= 'a' && d <= 'z' {
		d -= 'a' - 'A'
	}
	if d < 'A' || int(d-'A') >= MaxMountedVolumes {
		return 0, errors.New(errors.InvalidDrive).WithMessage("drive letter out of range")
	}
	return int(d - 'A'), nil
}

// Mount opens dev as a fresh volume in drive's slot, failing with
// errors.Exist if the slot is already occupied.
func (r *Registry) Mount(drive byte, dev gateway.Device, shares *share.Table, cfg fs.MountConfig) (*fs.Volume, error) {
	idx, err := driveIndex(drive)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.slots[idx] != nil {
		return nil, errors.New(errors.Exist).WithMessage("drive already mounted")
	}

	vol, err := fs.MountWithConfig(dev, shares, uint32(idx+1), cfg)
	if err != nil {
		return nil, err
	}

	r.slots[idx] = &slotEntry{volume: vol, sync: NewSyncObject()}
	return vol, nil
}

// Unmount flushes and unmounts the volume in drive's slot, destroying its
// sync object and freeing the slot for reuse.
func (r *Registry) Unmount(drive byte) error {
	idx, err := driveIndex(drive)
	if err != nil {
		return err
	}

	r.mu.Lock()
	entry := r.slots[idx]
	r.mu.Unlock()
	if entry == nil {
		return errors.New(errors.InvalidDrive).WithMessage("drive not mounted")
	}

	if !entry.sync.Acquire(DefaultTimeout) {
		return errors.New(errors.Timeout)
	}
	defer entry.sync.Release()

	unmountErr := entry.volume.Unmount()
	closeErr := entry.sync.Close()

	r.mu.Lock()
	r.slots[idx] = nil
	r.mu.Unlock()

	if unmountErr != nil {
		return unmountErr
	}
	return closeErr
}

// UnmountAll unmounts every currently-mounted volume, collecting every
// per-slot failure into a single *multierror.Error rather than stopping
// at the first one.
func (r *Registry) UnmountAll() error {
	var result *multierror.Error
	for i := 0; i < MaxMountedVolumes; i++ {
		r.mu.Lock()
		occupied := r.slots[i] != nil
		r.mu.Unlock()
		if !occupied {
			continue
		}
		if err := r.Unmount(byte('A' + i)); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// SyncAll flushes every mounted volume's window cache, collecting
// per-volume failures the same way UnmountAll does.
func (r *Registry) SyncAll() error {
	var result *multierror.Error
	r.mu.Lock()
	entries := make([]*slotEntry, 0, MaxMountedVolumes)
	for _, e := range r.slots {
		if e != nil {
			entries = append(entries, e)
		}
	}
	r.mu.Unlock()

	for _, e := range entries {
		if !e.sync.Acquire(DefaultTimeout) {
			result = multierror.Append(result, errors.New(errors.Timeout))
			continue
		}
		err := e.volume.Sync()
		e.sync.Release()
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Get returns the volume mounted in drive's slot.
func (r *Registry) Get(drive byte) (*fs.Volume, error) {
	idx, err := driveIndex(drive)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	entry := r.slots[idx]
	r.mu.Unlock()
	if entry == nil {
		return nil, errors.New(errors.InvalidDrive).WithMessage("drive not mounted")
	}
	return entry.volume, nil
}

// syncObjectFor returns the SyncObject guarding drive's slot, for callers
// that need to bracket a multi-step operation in the volume's coarse
// lock themselves.
func (r *Registry) syncObjectFor(drive byte) (SyncObject, error) {
	idx, err := driveIndex(drive)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	entry := r.slots[idx]
	r.mu.Unlock()
	if entry == nil {
		return nil, errors.New(errors.InvalidDrive).WithMessage("drive not mounted")
	}
	return entry.sync, nil
}

// SetCurrentDrive changes which slot a prefix-less path resolves against
// when the registry was constructed with relativePaths enabled.
func (r *Registry) SetCurrentDrive(drive byte) error {
	if _, err := driveIndex(drive); err != nil {
		return err
	}
	r.mu.Lock()
	r.currentDrive = upperASCIILetter(drive)
	r.mu.Unlock()
	return nil
}

// CurrentDrive reports the registry's current default drive letter.
func (r *Registry) CurrentDrive() byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentDrive
}

func upperASCIILetter(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}

// Resolve parses an "X:PATH"-style path, returning the volume it
// addresses (acquiring its SyncObject for the duration of fn) along with
// the remaining path text to hand to the fs package. Without a drive
// prefix, it targets the current drive (if the registry enables relative
// paths) or slot 0 ('A') otherwise, matching "X:PATH" path syntax.
func (r *Registry) Resolve(path string, fn func(vol *fs.Volume, rest string) error) error {
	parsed := fs.ParsePath(path)

	drive := byte('A')
	if parsed.HasDrive {
		drive = parsed.Drive
	} else if r.relativePaths {
		drive = r.CurrentDrive()
	}

	sync, err := r.syncObjectFor(drive)
	if err != nil {
		return err
	}
	if !sync.Acquire(DefaultTimeout) {
		return errors.New(errors.Timeout)
	}
	defer sync.Release()

	vol, err := r.Get(drive)
	if err != nil {
		return err
	}
	return fn(vol, parsed.Rest)
}
