package format_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/dargueta/fatfs/format"
	"github.com/dargueta/fatfs/gateway"
	"github.com/dargueta/fatfs/mount"
)

func TestFormat_FAT16_ProducesMountableBootSector(t *testing.T) {
	sectors := uint32(4096)
	raw := make([]byte, int(sectors)*512)
	dev := gateway.NewStreamDevice(bytesextra.NewReadWriteSeeker(raw), 512, sectors)

	require.NoError(t, format.Format(dev, sectors, format.Options{VolumeID: 0xABCD1234}))

	require.Equal(t, uint16(0xAA55), binary.LittleEndian.Uint16(raw[510:]))

	geometry, err := mount.ReadGeometry(dev, 0)
	require.NoError(t, err)
	require.EqualValues(t, 512, geometry.BytesPerSector)
	require.EqualValues(t, 0xABCD1234, geometry.VolumeID)
}

func TestFormat_FAT32_SetsRootClusterAndFSInfo(t *testing.T) {
	sectors := uint32(600000)
	raw := make([]byte, int(sectors)*512)
	dev := gateway.NewStreamDevice(bytesextra.NewReadWriteSeeker(raw), 512, sectors)

	require.NoError(t, format.Format(dev, sectors, format.Options{}))

	geometry, err := mount.ReadGeometry(dev, 0)
	require.NoError(t, err)
	require.EqualValues(t, 2, geometry.RootCluster)

	fsInfo := raw[512 : 512+512]
	require.Equal(t, uint32(0x41615252), binary.LittleEndian.Uint32(fsInfo[0:]))
}

func TestFormat_RejectsTooSmallDevice(t *testing.T) {
	dev := gateway.NewStreamDevice(bytesextra.NewReadWriteSeeker(make([]byte, 512)), 512, 1)
	err := format.Format(dev, 1, format.Options{BytesPerSector: 0 /* falls back to dev.SectorSize() */, SectorsPerCluster: 0})
	// A 1-sector device is too small to hold reserved+FAT+root regions;
	// Format must fail rather than write a corrupt image.
	require.Error(t, err)
}
