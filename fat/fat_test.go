package fat_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/dargueta/fatfs/fat"
	"github.com/dargueta/fatfs/gateway"
	"github.com/dargueta/fatfs/window"
)

type hintTracker struct {
	hint uint32
	free int64
}

func (h *hintTracker) FreeClusterHint() uint32         { return h.hint }
func (h *hintTracker) SetFreeClusterHint(c uint32)     { h.hint = c }
func (h *hintTracker) AdjustFreeClusters(delta int64)  { h.free += delta }

func newEngine(t *testing.T, kind fat.Kind) (*fat.Engine, *hintTracker) {
	t.Helper()
	sectors := uint32(32)
	buf := make([]byte, int(sectors)*512)
	dev := gateway.NewStreamDevice(bytesextra.NewReadWriteSeeker(buf), 512, sectors)
	win := window.New(dev, window.FATRegion{})

	layout := fat.Layout{
		Kind:              kind,
		BytesPerSector:    512,
		FATFirstSector:    1,
		SectorsPerFAT:     2,
		NumFATs:           2,
		FirstDataSector:   5,
		SectorsPerCluster: 1,
		TotalClusters:     100,
	}
	tracker := &hintTracker{hint: 2}
	return fat.New(win, layout, tracker), tracker
}

func TestEngine_FAT16_GetSetRoundTrip(t *testing.T) {
	e, _ := newEngine(t, fat.Kind16)
	require.NoError(t, e.Set(10, 0x1234))
	v, err := e.Get(10)
	require.NoError(t, err)
	require.Equal(t, uint32(0x1234), v)
}

func TestEngine_FAT12_OddEvenRoundTrip(t *testing.T) {
	e, _ := newEngine(t, fat.Kind12)
	require.NoError(t, e.Set(2, 0x345))
	require.NoError(t, e.Set(3, 0x678))

	v2, err := e.Get(2)
	require.NoError(t, err)
	require.Equal(t, uint32(0x345), v2)

	v3, err := e.Get(3)
	require.NoError(t, err)
	require.Equal(t, uint32(0x678), v3)
}

func TestEngine_ChainCreateAndStretch(t *testing.T) {
	e, _ := newEngine(t, fat.Kind16)

	first, err := e.ChainCreate()
	require.NoError(t, err)
	require.True(t, e.IsValidCluster(first))

	second, err := e.ChainStretch(first)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	var visited []uint32
	require.NoError(t, e.Walk(first, func(c uint32) error {
		visited = append(visited, c)
		return nil
	}))
	require.Equal(t, []uint32{first, second}, visited)
}

func TestEngine_ChainRemoveFreesAllClusters(t *testing.T) {
	e, tracker := newEngine(t, fat.Kind16)

	first, err := e.ChainCreate()
	require.NoError(t, err)
	_, err = e.ChainStretch(first)
	require.NoError(t, err)

	before := tracker.free
	require.NoError(t, e.ChainRemove(first, 0))
	require.Equal(t, before+2, tracker.free)

	v, err := e.Get(first)
	require.NoError(t, err)
	require.True(t, e.IsFree(v))
}

func TestEngine_ChainStretch_ReturnsExistingSuccessor(t *testing.T) {
	e, _ := newEngine(t, fat.Kind16)

	first, err := e.ChainCreate()
	require.NoError(t, err)
	second, err := e.ChainStretch(first)
	require.NoError(t, err)

	again, err := e.ChainStretch(first)
	require.NoError(t, err)
	require.Equal(t, second, again, "stretching a cluster that already has a successor must return it, not allocate a new one")
}

func TestEngine_ChainRemove_TerminatesPredecessor(t *testing.T) {
	e, tracker := newEngine(t, fat.Kind16)

	first, err := e.ChainCreate()
	require.NoError(t, err)
	second, err := e.ChainStretch(first)
	require.NoError(t, err)

	before := tracker.free
	require.NoError(t, e.ChainRemove(second, first))
	require.Equal(t, before+1, tracker.free)

	v, err := e.Get(first)
	require.NoError(t, err)
	require.True(t, e.IsEndOfChain(v), "prev cluster must be left pointing at end-of-chain once its successor is freed")
}

type trimmingDevice struct {
	gateway.Device
	trimmed [][2]uint32
}

func (d *trimmingDevice) Trim(startLBA, endLBA uint32) error {
	d.trimmed = append(d.trimmed, [2]uint32{startLBA, endLBA})
	return nil
}

func TestEngine_ChainRemove_TrimsWhenDeviceSupportsIt(t *testing.T) {
	sectors := uint32(32)
	buf := make([]byte, int(sectors)*512)
	base := gateway.NewStreamDevice(bytesextra.NewReadWriteSeeker(buf), 512, sectors)
	dev := &trimmingDevice{Device: base}
	win := window.New(dev, window.FATRegion{})

	layout := fat.Layout{
		Kind:              fat.Kind16,
		BytesPerSector:    512,
		FATFirstSector:    1,
		SectorsPerFAT:     2,
		NumFATs:           2,
		FirstDataSector:   5,
		SectorsPerCluster: 1,
		TotalClusters:     100,
	}
	e := fat.New(win, layout, &hintTracker{hint: 2})

	first, err := e.ChainCreate()
	require.NoError(t, err)
	require.NoError(t, e.ChainRemove(first, 0))
	require.NoError(t, win.Sync())
	require.Len(t, dev.trimmed, 1)
}

func TestEngine_FindFree_SkipsAllocated(t *testing.T) {
	e, _ := newEngine(t, fat.Kind16)
	require.NoError(t, e.Set(2, 0xFFFF))
	require.NoError(t, e.Set(3, 0xFFFF))

	free, err := e.FindFree(2)
	require.NoError(t, err)
	require.Equal(t, uint32(4), free)
}
