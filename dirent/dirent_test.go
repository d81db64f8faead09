package dirent_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dargueta/fatfs/dirent"
)

func TestRaw_PackUnpackRoundTrip(t *testing.T) {
	r := &dirent.Raw{
		Name:       [8]byte{'R', 'E', 'A', 'D', 'M', 'E', ' ', ' '},
		Extension:  [3]byte{'T', 'X', 'T'},
		Attributes: dirent.AttrArchive,
		FileSize:   4096,
	}
	r.SetFirstCluster(0x00012345)

	buf, err := dirent.PackRaw(r)
	require.NoError(t, err)
	require.Len(t, buf, dirent.Size)

	back, err := dirent.UnpackRaw(buf)
	require.NoError(t, err)
	require.Equal(t, r.Name, back.Name)
	require.Equal(t, uint32(0x00012345), back.FirstCluster())
	require.Equal(t, uint32(4096), back.FileSize)
}

func TestLFNSlot_UnitsRoundTrip(t *testing.T) {
	var units [13]uint16
	name := "longname.txt"
	for i := 0; i < 13 && i < len(name); i++ {
		units[i] = uint16(name[i])
	}
	units[len(name)] = 0x0000

	s := &dirent.LFNSlot{Order: 1 | dirent.LastLFNOrderBit, Attributes: dirent.AttrLongName}
	s.SetUnits(units)

	buf, err := dirent.PackLFNSlot(s)
	require.NoError(t, err)

	back, err := dirent.UnpackLFNSlot(buf)
	require.NoError(t, err)
	require.Equal(t, units, back.Units())
}

func TestChecksum_MatchesKnownValue(t *testing.T) {
	// "README  TXT" is a commonly cited worked example for the VFAT
	// checksum algorithm.
	name := [11]byte{'R', 'E', 'A', 'D', 'M', 'E', ' ', ' ', 'T', 'X', 'T'}
	sum := dirent.Checksum(name)

	require.Equal(t, uint8(0x73), sum)

	// Checksum must be stable and deterministic for the same input.
	require.Equal(t, sum, dirent.Checksum(name))
}

func TestDateTimeRoundTrip(t *testing.T) {
	when := time.Date(2021, time.March, 4, 13, 45, 30, 0, time.UTC)
	date := dirent.DateFromParts(when)
	clock := dirent.TimeFromParts(when)

	back := dirent.TimeFromFAT(date, clock, 0)
	require.Equal(t, when.Year(), back.Year())
	require.Equal(t, when.Month(), back.Month())
	require.Equal(t, when.Day(), back.Day())
	require.Equal(t, when.Hour(), back.Hour())
	require.Equal(t, when.Minute(), back.Minute())
}

func TestIsFreeAndIsLFN(t *testing.T) {
	require.True(t, dirent.IsFree(dirent.FreeMarker))
	require.True(t, dirent.IsFree(dirent.EndMarker))
	require.False(t, dirent.IsFree('R'))

	require.True(t, dirent.IsLFN(dirent.AttrLongName))
	require.False(t, dirent.IsLFN(dirent.AttrArchive))
}
