package fs

import (
	"github.com/dargueta/fatfs/dirent"
	"github.com/dargueta/fatfs/errors"
)

// Rename moves the entry at oldPath to newPath, preserving its attributes,
// size, and cluster chain. Moving a directory across parents updates the
// moved directory's ".." entry to point at the new parent.
func Rename(vol *Volume, oldPath, newPath string) error {
	src, err := lookupPath(vol, oldPath)
	if err != nil {
		return err
	}
	if src.isDot {
		return errors.New(errors.Denied).WithMessage(`"." and ".." cannot be renamed`)
	}

	newParentLoc, newLeaf, err := parentLocation(vol, newPath)
	if err != nil {
		return err
	}
	if existing, err := findByComponent(vol, newParentLoc, newLeaf, vol.page); err != nil {
		return err
	} else if existing != nil {
		return errors.New(errors.Exist)
	}

	if err := vol.shares.Check(src.shareKey(), deleteAccess); err != nil {
		return err
	}

	snapshot := &dirent.Raw{
		Attributes: src.entry.Attributes,
		FileSize:   src.entry.Size,
	}
	snapshot.SetFirstCluster(src.entry.FirstCluster)

	newIdx, newShort, err := registerEntry(vol, newParentLoc, newLeaf, snapshot.Attributes, snapshot.FirstCluster())
	if err != nil {
		return err
	}
	// registerEntry writes a fresh entry with FileSize 0; carry over the
	// source's real size now that the slot exists.
	if snapshot.FileSize != 0 {
		resized := &dirent.Raw{
			Attributes: snapshot.Attributes,
			FileSize:   snapshot.FileSize,
		}
		resized.SetFirstCluster(snapshot.FirstCluster())
		copy(resized.Name[:], newShort[:8])
		copy(resized.Extension[:], newShort[8:])
		if err := vol.dirEngine.WriteAt(newParentLoc, newIdx, resized); err != nil {
			return err
		}
	}

	if src.entry.IsDir() && newParentLoc.ChainStart != src.parentLoc.ChainStart {
		childLoc := src.location()
		parentCluster := newParentLoc.ChainStart
		dotdot := &dirent.Raw{Attributes: dirent.AttrDirectory}
		copy(dotdot.Name[:], "..      ")
		dotdot.SetFirstCluster(parentCluster)
		if err := vol.dirEngine.WriteAt(childLoc, 1, dotdot); err != nil {
			return err
		}
	}

	return vol.dirEngine.Remove(src.parentLoc, src.entryIndex)
}
