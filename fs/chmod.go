package fs

import "github.com/dargueta/fatfs/dirent"

// ChmodMask is the set of attribute bits Chmod is allowed to touch:
// read-only, hidden, system, and archive. Directory and volume-label bits
// are never altered by Chmod.
const ChmodMask = dirent.AttrReadOnly | dirent.AttrHidden | dirent.AttrSystem | dirent.AttrArchive

// Chmod sets path's read-only/hidden/system/archive attribute bits to
// exactly those set in attrs (bits outside ChmodMask are ignored), then
// flushes the change to the device.
func Chmod(vol *Volume, path string, attrs uint8) error {
	handle, err := lookupPath(vol, path)
	if err != nil {
		return err
	}
	if handle.isDot {
		return errInvalidObject()
	}

	handle.entry.Attributes = (handle.entry.Attributes &^ ChmodMask) | (attrs & ChmodMask)
	if err := handle.writeBack(); err != nil {
		return err
	}
	return vol.Sync()
}
