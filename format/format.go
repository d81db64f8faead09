// Package format builds a fresh FAT12/16/32 filesystem image on a
// gateway.Device: boot sector, reserved FSInfo sector (FAT32 only), FAT
// copies, and an empty root directory, grounded on the original's
// ef_mkfs volume-layout sequence (compute geometry, zero the metadata
// regions, write the boot sector last).
package format

import (
	"encoding/binary"

	"github.com/go-restruct/restruct"
	"github.com/noxer/bytewriter"

	"github.com/dargueta/fatfs/errors"
	"github.com/dargueta/fatfs/fat"
	"github.com/dargueta/fatfs/gateway"
	"github.com/dargueta/fatfs/mount"
)

// Options controls the geometry of the volume Format writes. A zero-value
// Options is accepted: Format replaces each zero field with the default
// described on that field.
type Options struct {
	// Kind selects which FAT width to format for. If zero, Format picks
	// Kind12 for volumes under 4085 clusters, Kind16 under 65525, and
	// Kind32 otherwise, mirroring the original's cluster-count thresholds.
	Kind fat.Kind
	// BytesPerSector is the device's logical sector size; Format reads it
	// from dev.SectorSize() when zero.
	BytesPerSector uint32
	// SectorsPerCluster is forced to 1 when zero.
	SectorsPerCluster uint32
	// NumFATs is forced to 2 when zero, the universal default.
	NumFATs uint32
	// ReservedSectors is forced to 1 (FAT12/16) or 32 (FAT32) when zero.
	ReservedSectors uint32
	// RootEntryCount is the FAT12/16 fixed root directory's capacity in
	// 32-byte entries; forced to 512 when zero. Ignored for FAT32.
	RootEntryCount uint32
	// VolumeLabel is up to 11 bytes, space-padded; left blank if empty.
	VolumeLabel string
	// VolumeID stamps the volume serial number; a caller-supplied value
	// makes output deterministic for tests.
	VolumeID uint32
	// Media is the BPB media descriptor byte; forced to 0xF8 (fixed disk)
	// when zero.
	Media uint8
}

const (
	defaultRootEntryCount   = 512
	defaultFixedMediaByte   = 0xF8
	fat12MaxClusters        = 4084
	fat16MaxClusters        = 65524
	bootSignatureOffset     = 510
	bootSignature           = 0xAA55
	fsInfoLeadSignature     = 0x41615252
	fsInfoStructSignature   = 0x61417272
	fsInfoTrailSignatureOff = 508
)

// Format writes a fresh, empty filesystem to dev covering totalSectors
// sectors starting at LBA 0 (callers that need a partitioned image handle
// the partition table separately and pass a device view starting at the
// partition's first sector).
func Format(dev gateway.Device, totalSectors uint32, opts Options) error {
	sectorSize := opts.BytesPerSector
	if sectorSize == 0 {
		sectorSize = uint32(dev.SectorSize())
	}
	if sectorSize == 0 {
		return errors.New(errors.InvalidParameter).WithMessage("sector size must be nonzero")
	}

	sectorsPerCluster := opts.SectorsPerCluster
	if sectorsPerCluster == 0 {
		sectorsPerCluster = 1
	}
	numFATs := opts.NumFATs
	if numFATs == 0 {
		numFATs = 2
	}
	rootEntryCount := opts.RootEntryCount
	media := opts.Media
	if media == 0 {
		media = defaultFixedMediaByte
	}

	kind := opts.Kind
	approxClusters := totalSectors / sectorsPerCluster
	if kind == 0 {
		switch {
		case approxClusters <= fat12MaxClusters:
			kind = fat.Kind12
		case approxClusters <= fat16MaxClusters:
			kind = fat.Kind16
		default:
			kind = fat.Kind32
		}
	}

	reservedSectors := opts.ReservedSectors
	if reservedSectors == 0 {
		if kind == fat.Kind32 {
			reservedSectors = 32
		} else {
			reservedSectors = 1
		}
	}
	if kind == fat.Kind32 {
		rootEntryCount = 0
	} else if rootEntryCount == 0 {
		rootEntryCount = defaultRootEntryCount
	}

	rootDirSectors := (rootEntryCount*32 + sectorSize - 1) / sectorSize
	sectorsPerFAT, err := sectorsPerFATFor(kind, totalSectors, reservedSectors, numFATs, rootDirSectors, sectorsPerCluster, sectorSize)
	if err != nil {
		return err
	}

	fatFirstSector := reservedSectors
	rootDirFirstSector := fatFirstSector + numFATs*sectorsPerFAT
	firstDataSector := rootDirFirstSector + rootDirSectors
	if kind == fat.Kind32 {
		firstDataSector = fatFirstSector + numFATs*sectorsPerFAT
	}

	if err := zeroRegion(dev, 0, reservedSectors+numFATs*sectorsPerFAT+rootDirSectors, sectorSize); err != nil {
		return err
	}

	if err := writeInitialFATEntries(dev, kind, fatFirstSector, sectorsPerFAT, numFATs, sectorSize); err != nil {
		return err
	}

	rootCluster := uint32(0)
	if kind == fat.Kind32 {
		rootCluster = 2
		if err := clearCluster(dev, firstDataSector, sectorsPerCluster, sectorSize); err != nil {
			return err
		}
	}

	if err := writeBootSector(dev, kind, sectorSize, sectorsPerCluster, reservedSectors, numFATs, rootEntryCount, totalSectors, media, sectorsPerFAT, rootCluster, opts); err != nil {
		return err
	}

	if kind == fat.Kind32 {
		if err := writeFSInfo(dev, sectorSize, totalSectors, sectorsPerCluster, numFATs); err != nil {
			return err
		}
	}

	return nil
}

func sectorsPerFATFor(kind fat.Kind, totalSectors, reservedSectors, numFATs, rootDirSectors, sectorsPerCluster, sectorSize uint32) (uint32, error) {
	dataSectors := totalSectors - reservedSectors - rootDirSectors
	entrySize := uint32(2)
	if kind == fat.Kind32 {
		entrySize = 4
	} else if kind == fat.Kind12 {
		// FAT12 entries are 1.5 bytes; approximate with 2 and let the
		// resulting table be slightly larger than strictly required,
		// same margin the original's mkfs leaves.
		entrySize = 2
	}

	// totalClusters*entrySize bytes of FAT, replicated numFATs times, must
	// fit alongside the data region itself; solve iteratively since the
	// FAT's own size subtracts from the sectors available to clusters.
	sectorsPerFAT := uint32(1)
	for i := 0; i < 32; i++ {
		clusterSectors := dataSectors - numFATs*sectorsPerFAT
		clusters := clusterSectors / sectorsPerCluster
		needed := (clusters*entrySize + sectorSize - 1) / sectorSize
		if needed == sectorsPerFAT {
			if sectorsPerFAT == 0 {
				return 0, errors.New(errors.InvalidParameter).WithMessage("volume too small to hold a FAT")
			}
			return sectorsPerFAT, nil
		}
		sectorsPerFAT = needed
	}
	return 0, errors.New(errors.IntError).WithMessage("FAT size computation did not converge")
}

func zeroRegion(dev gateway.Device, firstSector, count, sectorSize uint32) error {
	zero := make([]byte, sectorSize)
	for i := uint32(0); i < count; i++ {
		if err := dev.WriteSectors(firstSector+i, 1, zero); err != nil {
			return err
		}
	}
	return nil
}

func clearCluster(dev gateway.Device, firstSector, sectorsPerCluster, sectorSize uint32) error {
	return zeroRegion(dev, firstSector, sectorsPerCluster, sectorSize)
}

// writeInitialFATEntries stamps the media-descriptor entry (cluster 0) and
// the fixed end-of-chain marker (cluster 1) into every FAT copy, and for
// FAT32 marks the root directory's single starting cluster (2) as the end
// of its chain.
func writeInitialFATEntries(dev gateway.Device, kind fat.Kind, fatFirstSector, sectorsPerFAT, numFATs, sectorSize uint32) error {
	buf := make([]byte, sectorSize)
	switch kind {
	case fat.Kind12:
		buf[0], buf[1], buf[2] = 0xF8, 0xFF, 0xFF
	case fat.Kind16:
		binary.LittleEndian.PutUint16(buf[0:], 0xFFF8)
		binary.LittleEndian.PutUint16(buf[2:], 0xFFFF)
	case fat.Kind32:
		binary.LittleEndian.PutUint32(buf[0:], 0x0FFFFFF8)
		binary.LittleEndian.PutUint32(buf[4:], 0x0FFFFFFF)
		binary.LittleEndian.PutUint32(buf[8:], 0x0FFFFFFF)
	}

	for copyIdx := uint32(0); copyIdx < numFATs; copyIdx++ {
		if err := dev.WriteSectors(fatFirstSector+copyIdx*sectorsPerFAT, 1, buf); err != nil {
			return err
		}
	}
	return nil
}

func writeBootSector(dev gateway.Device, kind fat.Kind, sectorSize, sectorsPerCluster, reservedSectors, numFATs, rootEntryCount, totalSectors uint32, media uint8, sectorsPerFAT, rootCluster uint32, opts Options) error {
	bpb := mount.BPB{
		JumpBoot:          [3]byte{0xEB, 0x3C, 0x90},
		BytesPerSector:    uint16(sectorSize),
		SectorsPerCluster: uint8(sectorsPerCluster),
		ReservedSectors:   uint16(reservedSectors),
		NumFATs:           uint8(numFATs),
		RootEntryCount:    uint16(rootEntryCount),
		Media:             media,
		SectorsPerTrack:   63,
		NumHeads:          255,
	}
	copy(bpb.OEMName[:], "FATFS   ")

	if totalSectors <= 0xFFFF {
		bpb.TotalSectors16 = uint16(totalSectors)
	} else {
		bpb.TotalSectors32 = totalSectors
	}
	if kind != fat.Kind32 {
		bpb.SectorsPerFAT16 = uint16(sectorsPerFAT)
	}

	head, err := restruct.Pack(binary.LittleEndian, &bpb)
	if err != nil {
		return errors.New(errors.IntError).WrapError(err)
	}

	sector := make([]byte, sectorSize)
	w := bytewriter.New(sector)
	if _, err := w.Write(head); err != nil {
		return errors.New(errors.IntError).WrapError(err)
	}

	tailOffset := len(head)
	var label [11]byte
	copy(label[:], opts.VolumeLabel)
	for i := range label {
		if label[i] == 0 {
			label[i] = ' '
		}
	}

	if kind == fat.Kind32 {
		ebpb := mount.EBPB32{
			SectorsPerFAT32: sectorsPerFAT,
			RootCluster:     rootCluster,
			FSInfoSector:    1,
			DriveNumber:     0x80,
			BootSignature:   0x29,
			VolumeID:        opts.VolumeID,
			VolumeLabel:     label,
		}
		copy(ebpb.FilesystemType[:], "FAT32   ")
		tail, err := restruct.Pack(binary.LittleEndian, &ebpb)
		if err != nil {
			return errors.New(errors.IntError).WrapError(err)
		}
		copy(sector[tailOffset:], tail)
	} else {
		ebpb := mount.EBPB1216{
			DriveNumber:   0x80,
			BootSignature: 0x29,
			VolumeID:      opts.VolumeID,
			VolumeLabel:   label,
		}
		switch kind {
		case fat.Kind12:
			copy(ebpb.FilesystemType[:], "FAT12   ")
		default:
			copy(ebpb.FilesystemType[:], "FAT16   ")
		}
		tail, err := restruct.Pack(binary.LittleEndian, &ebpb)
		if err != nil {
			return errors.New(errors.IntError).WrapError(err)
		}
		copy(sector[tailOffset:], tail)
	}

	binary.LittleEndian.PutUint16(sector[bootSignatureOffset:], bootSignature)
	return dev.WriteSectors(0, 1, sector)
}

func writeFSInfo(dev gateway.Device, sectorSize, totalSectors, sectorsPerCluster, numFATs uint32) error {
	sector := make([]byte, sectorSize)
	binary.LittleEndian.PutUint32(sector[0:], fsInfoLeadSignature)
	binary.LittleEndian.PutUint32(sector[484:], fsInfoStructSignature)
	binary.LittleEndian.PutUint32(sector[488:], 0xFFFFFFFF) // free-cluster count unknown until first sync
	binary.LittleEndian.PutUint32(sector[492:], 2)           // last-allocated cluster: the root's own
	binary.LittleEndian.PutUint16(sector[fsInfoTrailSignatureOff:], bootSignature)
	return dev.WriteSectors(1, 1, sector)
}
