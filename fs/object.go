package fs

import (
	"github.com/dargueta/fatfs/directory"
	"github.com/dargueta/fatfs/dirent"
	"github.com/dargueta/fatfs/errors"
	"github.com/dargueta/fatfs/name"
	"github.com/dargueta/fatfs/share"
)

// objectHandle is the state every open File or Directory carries: which
// volume (and mount generation) it belongs to, where its short entry
// lives so it can be updated or removed, and the entry's last-known
// contents.
type objectHandle struct {
	volume     *Volume
	generation uint32

	parentLoc  directory.Location
	entryIndex uint32

	entry DirEntry

	// isDot is set when the handle was reached by resolving "." or ".."
	// rather than a real directory slot: parentLoc/entryIndex don't name an
	// entry that can be rewritten or removed.
	isDot bool

	shareSlot   int
	shareAccess int
	shareHeld   bool
}

func (h *objectHandle) validate() error {
	if h.volume == nil || h.generation != h.volume.generation {
		return errInvalidObject()
	}
	return nil
}

func (h *objectHandle) shareKey() share.EntryKey {
	return share.EntryKey{
		VolumeID:    h.volume.VolumeID,
		DirCluster:  h.parentLoc.ChainStart,
		EntryOffset: h.entryIndex,
	}
}

// location returns this object's own contents as a directory.Location,
// valid only when the object is a directory. The root directory's
// FirstCluster is always geometry.RootCluster (0 for the FAT12/16 fixed
// root, the BPB-given cluster for FAT32); no subdirectory can ever be
// allocated that same cluster, so this single comparison correctly
// recognizes root however it was reached — directly, via ".", or via ".."
// from a top-level subdirectory.
func (h *objectHandle) location() directory.Location {
	if h.entry.IsDir() && h.entry.FirstCluster == h.volume.geometry.RootCluster {
		return h.volume.rootLocation()
	}
	return directory.Location{ChainStart: h.entry.FirstCluster}
}

// dirEntryForLoc synthesizes the DirEntry describing the directory located
// at loc itself, used when a path resolves to "." or "..": there's no
// parent slot to read attributes from since the directory's own identity
// is the location, not an entry within one.
func dirEntryForLoc(loc directory.Location, displayName string) DirEntry {
	return DirEntry{
		Name:         displayName,
		Attributes:   dirent.AttrDirectory,
		FirstCluster: loc.ChainStart,
	}
}

// parentOf returns the location of the directory that contains loc, read
// directly from the ".." bookkeeping entry Mkdir writes at index 1,
// bypassing listEntries' usual filter that hides dot entries from regular
// listings. The root directory has no parent and is returned unchanged.
func parentOf(vol *Volume, loc directory.Location) (directory.Location, error) {
	if loc.ChainStart == vol.geometry.RootCluster {
		return loc, nil
	}
	buf, err := vol.dirEngine.ReadRawBytesAt(loc, 1)
	if err != nil {
		return directory.Location{}, err
	}
	if buf == nil {
		return directory.Location{}, errors.New(errors.IntError).WithMessage(`directory is missing its ".." entry`)
	}
	raw, err := dirent.UnpackRaw(buf)
	if err != nil {
		return directory.Location{}, err
	}
	parentCluster := raw.FirstCluster()
	if parentCluster == vol.geometry.RootCluster {
		return vol.rootLocation(), nil
	}
	return directory.Location{ChainStart: parentCluster}, nil
}

// acquireShare registers this handle's access mode in the volume's
// share-lock table.
func (h *objectHandle) acquireShare(access int) error {
	idx, err := h.volume.shares.Acquire(h.shareKey(), access)
	if err != nil {
		return err
	}
	h.shareSlot = idx
	h.shareAccess = access
	h.shareHeld = true
	return nil
}

func (h *objectHandle) releaseShare() error {
	if !h.shareHeld {
		return nil
	}
	h.shareHeld = false
	return h.volume.shares.Release(h.shareSlot, h.shareAccess)
}

// writeBack re-encodes the handle's current entry state to its short
// directory entry slot.
func (h *objectHandle) writeBack() error {
	raw := &dirent.Raw{
		Name:       h.entry.ShortName11Name(),
		Extension:  h.entry.ShortName11Ext(),
		Attributes: h.entry.Attributes,
		FileSize:   h.entry.Size,
	}
	raw.SetFirstCluster(h.entry.FirstCluster)
	return h.volume.dirEngine.WriteAt(h.parentLoc, h.entryIndex, raw)
}

// ShortName11Name and ShortName11Ext split the packed 11-byte short name
// back into its 8-byte name and 3-byte extension fields.
func (d DirEntry) ShortName11Name() [8]byte {
	var out [8]byte
	copy(out[:], d.ShortName11[:8])
	return out
}

func (d DirEntry) ShortName11Ext() [3]byte {
	var out [3]byte
	copy(out[:], d.ShortName11[8:])
	return out
}

// lookupPath walks path's components from vol's root and returns the final
// component's objectHandle. When vol.cfg.RelativePaths is set, "." (stay
// put) and ".." (go to the parent via its bookkeeping entry) are
// special-cased at every position; otherwise they are looked up as
// ordinary names. If the
// final component does not exist, lookupPath returns errors.NoFile; if an
// intermediate component does not exist or is not a directory, it returns
// errors.NoPath.
func lookupPath(vol *Volume, path string) (*objectHandle, error) {
	tokens := name.Tokenize(path)
	loc := vol.rootLocation()

	if len(tokens) == 0 {
		return &objectHandle{
			volume:     vol,
			generation: vol.generation,
			parentLoc:  loc,
			entry:      dirEntryForLoc(loc, "/"),
			isDot:      true,
		}, nil
	}

	var (
		found    *DirEntry
		foundLoc directory.Location
		isDot    bool
	)

	for i, tok := range tokens {
		last := i == len(tokens)-1

		if vol.cfg.RelativePaths {
			switch tok {
			case ".":
				if last {
					entry := dirEntryForLoc(loc, ".")
					found, foundLoc, isDot = &entry, loc, true
				}
				continue

			case "..":
				parent, err := parentOf(vol, loc)
				if err != nil {
					return nil, err
				}
				if last {
					entry := dirEntryForLoc(parent, "..")
					found, foundLoc, isDot = &entry, parent, true
				} else {
					loc = parent
				}
				continue
			}
		}

		entry, err := findByComponent(vol, loc, tok, vol.page)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			if last {
				return nil, errors.New(errors.NoFile)
			}
			return nil, errors.New(errors.NoPath)
		}
		if !last && !entry.IsDir() {
			return nil, errors.New(errors.NoPath)
		}
		found, foundLoc, isDot = entry, loc, false
		if !last {
			loc = directory.Location{ChainStart: entry.FirstCluster}
		}
	}

	handle := &objectHandle{
		volume:     vol,
		generation: vol.generation,
		parentLoc:  foundLoc,
		entry:      *found,
		isDot:      isDot,
	}
	if !isDot {
		handle.entryIndex = found.EntryIndex
	}
	return handle, nil
}

// parentLocation resolves every path component but the last (special-
// casing "." and ".." along the way, same as lookupPath), returning the
// location of the directory that should contain it plus the final
// component's name. "." and ".." are rejected as the final component:
// they name an existing directory, not something that can be created.
func parentLocation(vol *Volume, path string) (directory.Location, string, error) {
	tokens := name.Tokenize(path)
	if len(tokens) == 0 {
		return directory.Location{}, "", errors.New(errors.InvalidName).WithMessage("empty path")
	}
	leaf := tokens[len(tokens)-1]
	if vol.cfg.RelativePaths && (leaf == "." || leaf == "..") {
		return directory.Location{}, "", errors.New(errors.InvalidName).WithMessage(`"." and ".." are not valid names to create`)
	}

	loc := vol.rootLocation()
	for _, tok := range tokens[:len(tokens)-1] {
		if vol.cfg.RelativePaths {
			switch tok {
			case ".":
				continue
			case "..":
				parent, err := parentOf(vol, loc)
				if err != nil {
					return directory.Location{}, "", err
				}
				loc = parent
				continue
			}
		}
		entry, err := findByComponent(vol, loc, tok, vol.page)
		if err != nil {
			return directory.Location{}, "", err
		}
		if entry == nil || !entry.IsDir() {
			return directory.Location{}, "", errors.New(errors.NoPath)
		}
		loc = directory.Location{ChainStart: entry.FirstCluster}
	}
	return loc, leaf, nil
}
