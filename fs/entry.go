package fs

import (
	"os"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/dargueta/fatfs/cp"
	"github.com/dargueta/fatfs/directory"
	"github.com/dargueta/fatfs/dirent"
)

// DirEntry is one decoded directory entry: its long name (reconstructed
// from any preceding LFN slots, or the space-trimmed short name if it has
// none), the short entry itself, and where it lives so it can be reopened
// or removed.
type DirEntry struct {
	Name         string
	ShortName11  [11]byte
	Attributes   uint8
	FirstCluster uint32
	Size         uint32
	ModTime      time.Time
	EntryIndex   uint32 // index of the short entry within its parent
}

// IsDir reports whether the entry is a subdirectory.
func (d DirEntry) IsDir() bool { return d.Attributes&dirent.AttrDirectory != 0 }

// Mode maps the entry's FAT attributes to an os.FileMode.
func (d DirEntry) Mode() os.FileMode { return dirent.FileModeFromAttributes(d.Attributes) }

// listEntries walks loc from the start, pairing each short entry with any
// LFN slots immediately preceding it and skipping free slots, the dot and
// dot-dot entries, and the FAT32 volume-label entry.
func listEntries(vol *Volume, loc directory.Location) ([]DirEntry, error) {
	var out []DirEntry
	var pendingLFN []*dirent.LFNSlot

	for i := uint32(0); ; i++ {
		buf, err := vol.dirEngine.ReadRawBytesAt(loc, i)
		if err != nil {
			return nil, err
		}
		if buf == nil {
			break
		}
		if buf[0] == dirent.FreeMarker {
			pendingLFN = nil
			continue
		}

		attrs := buf[11]
		if dirent.IsLFN(attrs) {
			slot, err := dirent.UnpackLFNSlot(buf)
			if err != nil {
				return nil, err
			}
			pendingLFN = append(pendingLFN, slot)
			continue
		}

		raw, err := dirent.UnpackRaw(buf)
		if err != nil {
			return nil, err
		}
		slots := pendingLFN
		pendingLFN = nil

		if raw.Attributes&dirent.AttrVolumeID != 0 {
			continue
		}
		shortName := shortNameString(raw)
		if shortName == "." || shortName == ".." {
			continue
		}

		longName := reconstructLFN(slots, dirent.Checksum(combinedShortName(raw)))
		name := longName
		if name == "" {
			name = shortName
		}

		out = append(out, DirEntry{
			Name:         name,
			ShortName11:  combinedShortName(raw),
			Attributes:   raw.Attributes,
			FirstCluster: raw.FirstCluster(),
			Size:         raw.FileSize,
			ModTime:      dirent.TimeFromFAT(raw.WriteDate, raw.WriteTime, 0),
			EntryIndex:   i,
		})
	}
	return out, nil
}

func combinedShortName(raw *dirent.Raw) [11]byte {
	var out [11]byte
	copy(out[:8], raw.Name[:])
	copy(out[8:], raw.Extension[:])
	return out
}

func shortNameString(raw *dirent.Raw) string {
	base := strings.TrimRight(string(raw.Name[:]), " ")
	ext := strings.TrimRight(string(raw.Extension[:]), " ")
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// reconstructLFN rebuilds the long name from its slots, which are stored
// on disk in descending order (highest sequence number first, holding the
// tail of the name) immediately before the short entry. A checksum
// mismatch against any slot, or no slots at all, yields an empty string
// so the caller falls back to the short name.
func reconstructLFN(slots []*dirent.LFNSlot, expectedChecksum uint8) string {
	if len(slots) == 0 {
		return ""
	}
	maxOrder := 0
	for _, s := range slots {
		if s.Checksum != expectedChecksum {
			return ""
		}
		order := int(s.Order &^ dirent.LastLFNOrderBit)
		if order > maxOrder {
			maxOrder = order
		}
	}

	units := make([]uint16, maxOrder*13)
	for _, s := range slots {
		order := int(s.Order &^ dirent.LastLFNOrderBit)
		if order == 0 || order > maxOrder {
			return ""
		}
		copy(units[(order-1)*13:order*13], s.Units()[:])
	}

	// Trim at the first NUL/padding (0xFFFF) terminator.
	for i, u := range units {
		if u == 0 || u == 0xFFFF {
			units = units[:i]
			break
		}
	}
	return string(utf16.Decode(units))
}

// findByComponent scans loc for an entry whose reconstructed long name or
// short name matches component case-insensitively under page.
func findByComponent(vol *Volume, loc directory.Location, component string, page *cp.CodePage) (*DirEntry, error) {
	entries, err := listEntries(vol, loc)
	if err != nil {
		return nil, err
	}
	target := foldName(component, page)
	for i := range entries {
		if foldName(entries[i].Name, page) == target {
			return &entries[i], nil
		}
		var raw dirent.Raw
		copy(raw.Name[:], entries[i].ShortName11[:8])
		copy(raw.Extension[:], entries[i].ShortName11[8:])
		if foldName(shortNameString(&raw), page) == target {
			return &entries[i], nil
		}
	}
	return nil, nil
}

func foldName(s string, page *cp.CodePage) string {
	var b strings.Builder
	for _, r := range s {
		b.WriteRune(cp.ToUpperRune(r))
	}
	return b.String()
}
