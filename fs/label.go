package fs

import (
	"strings"

	"github.com/dargueta/fatfs/dirent"
	"github.com/dargueta/fatfs/errors"
)

// forbiddenLabelChars mirrors the punctuation short names also reject:
// a volume label is stored the same way a short name is (11 bytes,
// upper-folded), so it inherits the same restrictions.
const forbiddenLabelChars = `"*+,./:;<=>?[\]|`

// findLabelEntry scans the root directory for the volume-label entry
// (attribute VOLUME_ID, not an LFN slot), returning its index or found
// == false if the volume has none.
func findLabelEntry(vol *Volume) (idx uint32, found bool, err error) {
	loc := vol.rootLocation()
	for i := uint32(0); ; i++ {
		raw, err := vol.dirEngine.ReadAt(loc, i)
		if err != nil {
			return 0, false, err
		}
		if raw == nil {
			return 0, false, nil
		}
		if raw.Name[0] == dirent.FreeMarker {
			continue
		}
		if raw.Attributes&dirent.AttrLongNameMask == dirent.AttrVolumeID {
			return i, true, nil
		}
	}
}

// Label returns the volume's label, or the empty string if it has none.
func Label(vol *Volume) (string, error) {
	idx, found, err := findLabelEntry(vol)
	if err != nil {
		return "", err
	}
	if !found {
		return "", nil
	}
	raw, err := vol.dirEngine.ReadAt(vol.rootLocation(), idx)
	if err != nil {
		return "", err
	}
	combined := append(append([]byte{}, raw.Name[:]...), raw.Extension[:]...)
	return strings.TrimRight(string(combined), " "), nil
}

// SetLabel writes label as the volume's label entry, replacing any
// existing one. An empty label deletes the entry instead. label is
// upper-folded and must fit in 11 bytes once space-padded; it may not
// contain any of forbiddenLabelChars.
func SetLabel(vol *Volume, label string) error {
	idx, found, err := findLabelEntry(vol)
	if err != nil {
		return err
	}

	if label == "" {
		if found {
			return vol.dirEngine.Remove(vol.rootLocation(), idx)
		}
		return nil
	}

	if len(label) > 11 {
		return errors.New(errors.InvalidName).WithMessage("volume label longer than 11 characters")
	}
	for _, r := range label {
		if strings.ContainsRune(forbiddenLabelChars, r) {
			return errors.New(errors.InvalidName).WithMessage("volume label contains a forbidden character")
		}
	}

	var packed [11]byte
	upper := strings.ToUpper(label)
	copy(packed[:], upper)
	for i := len(upper); i < 11; i++ {
		packed[i] = ' '
	}

	raw := &dirent.Raw{Attributes: dirent.AttrVolumeID}
	copy(raw.Name[:], packed[:8])
	copy(raw.Extension[:], packed[8:])

	loc := vol.rootLocation()
	if found {
		return vol.dirEngine.WriteAt(loc, idx, raw)
	}
	newIdx, err := vol.dirEngine.Allocate(loc, 1)
	if err != nil {
		return err
	}
	return vol.dirEngine.WriteAt(loc, newIdx, raw)
}
