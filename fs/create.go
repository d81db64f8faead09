package fs

import (
	"github.com/dargueta/fatfs/dirent"
	"github.com/dargueta/fatfs/directory"
	"github.com/dargueta/fatfs/errors"
	"github.com/dargueta/fatfs/name"
)

// lfnSlotsNeeded returns how many 32-byte LFN slots are needed to store
// longName, 13 UTF-16 units (plus terminator) per slot.
func lfnSlotsNeeded(longName string) int {
	units := name.ToUTF16Units(longName)
	return (len(units) + 12) / 13
}

// registerEntry allocates room in loc for longName (writing LFN slots
// ahead of the short entry when the name doesn't fit 8.3), canonicalizing
// against the directory's existing short names for collision avoidance,
// and returns the index of the short entry plus the chosen short name.
func registerEntry(vol *Volume, loc directory.Location, longName string, attrs uint8, firstCluster uint32) (uint32, [11]byte, error) {
	existing, err := listEntries(vol, loc)
	if err != nil {
		return 0, [11]byte{}, err
	}
	exists := func(candidate [11]byte) bool {
		for _, e := range existing {
			if e.ShortName11 == candidate {
				return true
			}
		}
		return false
	}

	canon, err := name.Canonicalize(longName, vol.page, exists)
	if err != nil {
		return 0, [11]byte{}, err
	}
	if canon.NeedsLFN && !vol.cfg.LongNames {
		return 0, [11]byte{}, errors.New(errors.InvalidName).WithMessage("long names are disabled for this mount and the name doesn't fit 8.3")
	}

	slotCount := 1
	if canon.NeedsLFN {
		slotCount += lfnSlotsNeeded(canon.LongName)
	}

	start, err := vol.dirEngine.Allocate(loc, slotCount)
	if err != nil {
		return 0, [11]byte{}, err
	}

	if canon.NeedsLFN {
		units := name.ToUTF16Units(canon.LongName)
		checksum := dirent.Checksum(canon.ShortName11)
		numSlots := (len(units) + 12) / 13
		for i := 0; i < numSlots; i++ {
			order := uint8(numSlots - i)
			if i == 0 {
				order |= dirent.LastLFNOrderBit
			}
			var chunk [13]uint16
			for j := 0; j < 13; j++ {
				pos := (numSlots-1-i)*13 + j
				if pos < len(units) {
					chunk[j] = units[pos]
				} else if pos == len(units) {
					chunk[j] = 0
				} else {
					chunk[j] = 0xFFFF
				}
			}
			slot := &dirent.LFNSlot{
				Order:      order,
				Attributes: dirent.AttrLongName,
				Checksum:   checksum,
			}
			slot.SetUnits(chunk)
			if err := vol.dirEngine.WriteLFNAt(loc, start+uint32(i), slot); err != nil {
				return 0, [11]byte{}, err
			}
		}
	}

	shortIndex := start + uint32(slotCount-1)
	raw := &dirent.Raw{
		Attributes: attrs,
	}
	copy(raw.Name[:], canon.ShortName11[:8])
	copy(raw.Extension[:], canon.ShortName11[8:])
	raw.SetFirstCluster(firstCluster)
	if err := vol.dirEngine.WriteAt(loc, shortIndex, raw); err != nil {
		return 0, [11]byte{}, err
	}

	return shortIndex, canon.ShortName11, nil
}

// Create makes a new, empty regular file at path and opens it for
// read/write.
func Create(vol *Volume, path string) (*File, error) {
	parentLoc, leaf, err := parentLocation(vol, path)
	if err != nil {
		return nil, err
	}
	if existing, err := findByComponent(vol, parentLoc, leaf, vol.page); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, errors.New(errors.Exist)
	}

	idx, short, err := registerEntry(vol, parentLoc, leaf, dirent.AttrArchive, 0)
	if err != nil {
		return nil, err
	}

	handle := &objectHandle{
		volume:     vol,
		generation: vol.generation,
		parentLoc:  parentLoc,
		entryIndex: idx,
		entry: DirEntry{
			Name:        leaf,
			ShortName11: short,
			Attributes:  dirent.AttrArchive,
		},
	}
	if err := handle.acquireShare(writeAccess); err != nil {
		return nil, err
	}
	return &File{objectHandle: *handle}, nil
}

// Mkdir creates a new subdirectory at path, including its "." and ".."
// entries, and returns once it has been fully written.
func Mkdir(vol *Volume, path string) error {
	parentLoc, leaf, err := parentLocation(vol, path)
	if err != nil {
		return err
	}
	if existing, err := findByComponent(vol, parentLoc, leaf, vol.page); err != nil {
		return err
	} else if existing != nil {
		return errors.New(errors.Exist)
	}

	cluster, err := vol.fatEngine.ChainCreate()
	if err != nil {
		return err
	}
	if err := vol.dirEngine.ClusterClear(cluster); err != nil {
		return err
	}

	newLoc := directory.Location{ChainStart: cluster}
	parentCluster := parentLoc.ChainStart // 0 for the FAT12/16 fixed root, matching "." / ".." conventions

	dot := &dirent.Raw{Attributes: dirent.AttrDirectory}
	copy(dot.Name[:], ".       ")
	dot.SetFirstCluster(cluster)
	if err := vol.dirEngine.WriteAt(newLoc, 0, dot); err != nil {
		return err
	}

	dotdot := &dirent.Raw{Attributes: dirent.AttrDirectory}
	copy(dotdot.Name[:], "..      ")
	dotdot.SetFirstCluster(parentCluster)
	if err := vol.dirEngine.WriteAt(newLoc, 1, dotdot); err != nil {
		return err
	}

	_, _, err = registerEntry(vol, parentLoc, leaf, dirent.AttrDirectory, cluster)
	return err
}

// Remove deletes the file or empty directory at path. A non-empty
// directory is rejected with errors.Denied.
func Remove(vol *Volume, path string) error {
	handle, err := lookupPath(vol, path)
	if err != nil {
		return err
	}
	if handle.isDot {
		return errors.New(errors.Denied).WithMessage(`"." and ".." cannot be removed`)
	}

	if handle.entry.IsDir() {
		children, err := listEntries(vol, handle.location())
		if err != nil {
			return err
		}
		if len(children) > 0 {
			return errors.New(errors.Denied).WithMessage("directory not empty")
		}
		if err := vol.fatEngine.ChainRemove(handle.entry.FirstCluster, 0); err != nil {
			return err
		}
	} else if handle.entry.FirstCluster != 0 {
		if err := vol.fatEngine.ChainRemove(handle.entry.FirstCluster, 0); err != nil {
			return err
		}
	}

	if err := vol.shares.Check(handle.shareKey(), deleteAccess); err != nil {
		return err
	}
	return vol.dirEngine.Remove(handle.parentLoc, handle.entryIndex)
}
