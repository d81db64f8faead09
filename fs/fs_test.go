package fs_test

import (
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/dargueta/fatfs/fs"
	"github.com/dargueta/fatfs/gateway"
	"github.com/dargueta/fatfs/share"
)

func buildFAT12VBR(buf []byte) {
	binary.LittleEndian.PutUint16(buf[11:], 512)
	buf[13] = 4
	binary.LittleEndian.PutUint16(buf[14:], 4)
	buf[16] = 2
	binary.LittleEndian.PutUint16(buf[17:], 512)
	binary.LittleEndian.PutUint16(buf[19:], 4096)
	buf[21] = 0xF8
	binary.LittleEndian.PutUint16(buf[22:], 16)
	binary.LittleEndian.PutUint16(buf[510:], 0xAA55)
}

func newVolume(t *testing.T) *fs.Volume {
	t.Helper()
	sectors := uint32(4096)
	raw := make([]byte, int(sectors)*512)
	buildFAT12VBR(raw)
	dev := gateway.NewStreamDevice(bytesextra.NewReadWriteSeeker(raw), 512, sectors)

	vol, err := fs.Mount(dev, share.New(16), 1)
	require.NoError(t, err)
	return vol
}

func TestCreateWriteReadRoundTrip(t *testing.T) {
	vol := newVolume(t)

	f, err := fs.Create(vol, "/HELLO.TXT")
	require.NoError(t, err)

	payload := []byte("hello, fat world")
	n, err := f.Write(payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.NoError(t, f.Close())

	rf, err := fs.Open(vol, "/HELLO.TXT")
	require.NoError(t, err)
	defer rf.Close()

	got := make([]byte, len(payload))
	_, err = io.ReadFull(rf, got)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestMkdirAndNestedFile(t *testing.T) {
	vol := newVolume(t)

	require.NoError(t, fs.Mkdir(vol, "/SUBDIR"))

	f, err := fs.Create(vol, "/SUBDIR/A.TXT")
	require.NoError(t, err)
	_, err = f.Write([]byte("nested"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	rf, err := fs.Open(vol, "/SUBDIR/A.TXT")
	require.NoError(t, err)
	got := make([]byte, 6)
	_, err = io.ReadFull(rf, got)
	require.NoError(t, err)
	require.Equal(t, "nested", string(got))
	require.NoError(t, rf.Close())
}

func TestReadDirListsCreatedEntries(t *testing.T) {
	vol := newVolume(t)

	f, err := fs.Create(vol, "/A_LONG_FILE_NAME.TXT")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	d, err := fs.OpenDir(vol, "/")
	require.NoError(t, err)
	defer d.Close()

	entries, err := d.ReadDir(0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "A_LONG_FILE_NAME.TXT", entries[0].Name)
}

func TestRemoveFile(t *testing.T) {
	vol := newVolume(t)

	f, err := fs.Create(vol, "/GONE.TXT")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, fs.Remove(vol, "/GONE.TXT"))

	_, err = fs.Open(vol, "/GONE.TXT")
	require.Error(t, err)
}

func TestRemoveNonEmptyDirectoryFails(t *testing.T) {
	vol := newVolume(t)
	require.NoError(t, fs.Mkdir(vol, "/DIR"))

	f, err := fs.Create(vol, "/DIR/FILE.TXT")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Error(t, fs.Remove(vol, "/DIR"))
}

func TestOpenDirDotAndDotDot(t *testing.T) {
	vol := newVolume(t)
	require.NoError(t, fs.Mkdir(vol, "/SUBDIR"))

	f, err := fs.Create(vol, "/SUBDIR/A.TXT")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	here, err := fs.OpenDir(vol, "/SUBDIR/.")
	require.NoError(t, err)
	entries, err := here.ReadDir(0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "A.TXT", entries[0].Name)
	require.NoError(t, here.Close())

	up, err := fs.OpenDir(vol, "/SUBDIR/..")
	require.NoError(t, err)
	rootEntries, err := up.ReadDir(0)
	require.NoError(t, err)
	require.Len(t, rootEntries, 1)
	require.Equal(t, "SUBDIR", rootEntries[0].Name)
	require.NoError(t, up.Close())

	rootUp, err := fs.OpenDir(vol, "/..")
	require.NoError(t, err)
	rootUpEntries, err := rootUp.ReadDir(0)
	require.NoError(t, err)
	require.Equal(t, rootEntries, rootUpEntries)
	require.NoError(t, rootUp.Close())
}

func TestCreateRejectsDotAsLeafName(t *testing.T) {
	vol := newVolume(t)
	_, err := fs.Create(vol, "/.")
	require.Error(t, err)
	_, err = fs.Create(vol, "/..")
	require.Error(t, err)
}

func TestRemoveRejectsDotEntries(t *testing.T) {
	vol := newVolume(t)
	require.NoError(t, fs.Mkdir(vol, "/SUBDIR"))
	require.Error(t, fs.Remove(vol, "/SUBDIR/."))
	require.Error(t, fs.Remove(vol, "/SUBDIR/.."))
}

func TestMountWithConfig_LongNamesDisabledRejectsLossyName(t *testing.T) {
	sectors := uint32(4096)
	raw := make([]byte, int(sectors)*512)
	buildFAT12VBR(raw)
	dev := gateway.NewStreamDevice(bytesextra.NewReadWriteSeeker(raw), 512, sectors)

	cfg := fs.DefaultMountConfig()
	cfg.LongNames = false
	vol, err := fs.MountWithConfig(dev, share.New(16), 1, cfg)
	require.NoError(t, err)

	_, err = fs.Create(vol, "/a long name.txt")
	require.Error(t, err)

	f, err := fs.Create(vol, "/SHORT.TXT")
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestMountWithConfig_RelativePathsDisabled(t *testing.T) {
	sectors := uint32(4096)
	raw := make([]byte, int(sectors)*512)
	buildFAT12VBR(raw)
	dev := gateway.NewStreamDevice(bytesextra.NewReadWriteSeeker(raw), 512, sectors)

	cfg := fs.DefaultMountConfig()
	cfg.RelativePaths = false
	vol, err := fs.MountWithConfig(dev, share.New(16), 1, cfg)
	require.NoError(t, err)

	require.NoError(t, fs.Mkdir(vol, "/SUBDIR"))
	_, err = fs.OpenDir(vol, "/SUBDIR/.")
	require.Error(t, err, "\".\" must not resolve when relative paths are disabled")
}

func TestVolume_DecodePathBytes(t *testing.T) {
	vol := newVolume(t)
	s, err := vol.DecodePathBytes([]byte("/HELLO.TXT"))
	require.NoError(t, err)
	require.Equal(t, "/HELLO.TXT", s)
}

func TestUnmountInvalidatesOpenHandle(t *testing.T) {
	vol := newVolume(t)

	f, err := fs.Create(vol, "/X.TXT")
	require.NoError(t, err)

	require.NoError(t, vol.Unmount())

	_, err = f.Write([]byte("x"))
	require.Error(t, err)
}
