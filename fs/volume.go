// Package fs is the object model layered on top of the window cache, FAT
// engine, directory engine, and name pipeline: mounting a device into a
// Volume, and opening File and Directory handles against it.
//
// Every handle opened against a Volume carries the generation number the
// Volume had when it was opened; Unmount bumps the generation so handles
// opened before it start failing validate() instead of touching a device
// out from under a remount, mirroring soypat-fat's objid.validate()
// pattern of invalidating open objects via an incrementing filesystem ID.
package fs

import (
	"github.com/dargueta/fatfs/cp"
	"github.com/dargueta/fatfs/directory"
	"github.com/dargueta/fatfs/errors"
	"github.com/dargueta/fatfs/fat"
	"github.com/dargueta/fatfs/gateway"
	"github.com/dargueta/fatfs/mount"
	"github.com/dargueta/fatfs/name"
	"github.com/dargueta/fatfs/share"
	"github.com/dargueta/fatfs/window"
)

// MountConfig controls the parts of a mount that aren't determined by the
// boot sector itself: how callers' path text is decoded at the API
// boundary, whether "." and ".." are resolved as relative-path
// references, and whether names that don't fit 8.3 get LFN slots or are
// rejected outright.
type MountConfig struct {
	// APIEncoding is how raw path bytes handed to DecodePathBytes are
	// interpreted before they reach the name pipeline. It has no effect on
	// the path strings passed directly to Open/Create/Mkdir/etc., which are
	// always plain Go (UTF-8) strings.
	APIEncoding name.APIEncoding
	// CodePage is the OEM code page short names are folded against.
	CodePage *cp.CodePage
	// RelativePaths enables "." and ".." resolution in path lookups; when
	// false they're treated as literal (and thus never-matching) component
	// names, same as any other path piece.
	RelativePaths bool
	// LongNames controls whether a component that doesn't fit 8.3 gets LFN
	// slots (true) or is rejected with errors.InvalidName (false), for
	// builds that want to guarantee every on-disk name stays short-only.
	LongNames bool
	// ShareLockSlots is not consulted by Mount, MountWithCodePage or
	// MountWithConfig: the volume always uses the *share.Table the caller
	// passes in.
	ShareLockSlots int
}

// DefaultMountConfig returns the configuration Mount and MountWithCodePage
// use: UTF-8 API text, CP437, relative paths and long names both enabled.
func DefaultMountConfig() MountConfig {
	return MountConfig{
		APIEncoding:    name.APIEncodingUTF8,
		CodePage:       cp.CP437,
		RelativePaths:  true,
		LongNames:      true,
		ShareLockSlots: 16,
	}
}

// Volume is a single mounted FAT filesystem.
type Volume struct {
	VolumeID   uint32
	generation uint32

	dev       gateway.Device
	win       *window.Window
	geometry  *mount.Geometry
	fatEngine *fat.Engine
	dirEngine *directory.Engine
	shares    *share.Table
	page      *cp.CodePage
	cfg       MountConfig

	freeHint     uint32
	freeClusters int64
}

// Mount discovers the FAT partition on dev (trying GPT, then MBR, then a
// bare VBR), parses its boot sector, and wires up the window/FAT/directory
// engines, using DefaultMountConfig. shares is the process-wide share-lock
// table; volumeID disambiguates this volume's entries within it.
func Mount(dev gateway.Device, shares *share.Table, volumeID uint32) (*Volume, error) {
	return MountWithConfig(dev, shares, volumeID, DefaultMountConfig())
}

// MountWithCodePage is Mount with an explicit OEM code page, for volumes
// that were written under something other than CP437.
func MountWithCodePage(dev gateway.Device, shares *share.Table, volumeID uint32, page *cp.CodePage) (*Volume, error) {
	cfg := DefaultMountConfig()
	cfg.CodePage = page
	return MountWithConfig(dev, shares, volumeID, cfg)
}

// MountWithConfig is Mount with full control over the API-encoding,
// relative-path, and long-name behavior described by MountConfig.
func MountWithConfig(dev gateway.Device, shares *share.Table, volumeID uint32, cfg MountConfig) (*Volume, error) {
	if cfg.CodePage == nil {
		cfg.CodePage = cp.CP437
	}

	partitionStart, err := mount.FindPartitionStart(dev)
	if err != nil {
		return nil, err
	}
	geometry, err := mount.ReadGeometry(dev, partitionStart)
	if err != nil {
		return nil, err
	}

	win := window.New(dev, window.FATRegion{
		FirstSector: geometry.FATFirstSector,
		SectorsEach: geometry.SectorsPerFAT,
		Copies:      geometry.NumFATs,
	})

	v := &Volume{
		VolumeID: volumeID,
		dev:      dev,
		win:      win,
		geometry: geometry,
		shares:   shares,
		page:     cfg.CodePage,
		cfg:      cfg,
		freeHint: 2,
	}

	v.fatEngine = fat.New(win, fat.Layout{
		Kind:              geometry.Kind,
		BytesPerSector:    geometry.BytesPerSector,
		FATFirstSector:    geometry.FATFirstSector,
		SectorsPerFAT:     geometry.SectorsPerFAT,
		NumFATs:           geometry.NumFATs,
		FirstDataSector:   geometry.FirstDataSector,
		SectorsPerCluster: geometry.SectorsPerCluster,
		TotalClusters:     geometry.TotalClusters,
	}, v)
	v.dirEngine = directory.New(win, v.fatEngine, geometry.BytesPerSector, geometry.SectorsPerCluster)

	return v, nil
}

// FreeClusterHint, SetFreeClusterHint, and AdjustFreeClusters implement
// fat.FreeSpaceTracker so the FAT engine can hand this volume's own state
// back to itself rather than needing a separate bookkeeping object.
func (v *Volume) FreeClusterHint() uint32     { return v.freeHint }
func (v *Volume) SetFreeClusterHint(c uint32) { v.freeHint = c }
func (v *Volume) AdjustFreeClusters(delta int64) {
	v.freeClusters += delta
}

// Generation returns the volume's current mount generation, for handles
// to compare themselves against.
func (v *Volume) Generation() uint32 { return v.generation }

// Geometry exposes the parsed boot-sector layout.
func (v *Volume) Geometry() *mount.Geometry { return v.geometry }

// Config returns the mount-time configuration this volume was opened with.
func (v *Volume) Config() MountConfig { return v.cfg }

// DecodePathBytes translates raw path text from the volume's configured
// API encoding into a Go string suitable for Open/Create/Mkdir/etc.,
// rejecting malformed input with errors.InvalidName. Callers that already
// have a UTF-8 Go string (the common case) don't need this; it exists for
// callers receiving path text as encoded bytes, e.g. read directly off a
// wire protocol or a non-UTF-8 command-line argument.
func (v *Volume) DecodePathBytes(raw []byte) (string, error) {
	return name.DecodeAPIString(raw, v.cfg.APIEncoding, v.cfg.CodePage)
}

func (v *Volume) bytesPerCluster() uint32 {
	return v.geometry.BytesPerSector * v.geometry.SectorsPerCluster
}

// rootLocation returns the directory.Location of the volume's root
// directory: a fixed sector range for FAT12/16, a cluster chain starting
// at RootCluster for FAT32.
func (v *Volume) rootLocation() directory.Location {
	if v.geometry.Kind == fat.Kind32 {
		return directory.Location{ChainStart: v.geometry.RootCluster}
	}
	return directory.Location{
		FixedFirstSector: v.geometry.RootDirFirstSector,
		FixedSectorCount: v.geometry.RootDirSectors,
	}
}

// Sync flushes the window cache to the underlying device without
// invalidating any open handle.
func (v *Volume) Sync() error {
	return v.win.Sync()
}

// Unmount flushes pending writes, releases every share-lock this volume
// holds, and bumps the generation counter so any handle still open
// against it starts failing validation.
func (v *Volume) Unmount() error {
	if err := v.win.Sync(); err != nil {
		return err
	}
	if v.shares != nil {
		v.shares.ClearForVolume(v.VolumeID)
	}
	v.generation++
	return nil
}

// errInvalidObject is returned by a handle whose volume has since been
// unmounted (and possibly remounted under the same Volume value).
func errInvalidObject() error {
	return errors.New(errors.InvalidObject).WithMessage("object handle outlived its volume's mount generation")
}
