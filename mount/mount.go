// Package mount discovers and parses a FAT volume's boot sector, handling
// the three ways one can be found: directly at sector 0 (a VBR), behind an
// MBR partition table, or behind a GPT protective MBR and header.
package mount

import (
	"encoding/binary"

	"github.com/go-restruct/restruct"

	"github.com/dargueta/fatfs/errors"
	"github.com/dargueta/fatfs/fat"
	"github.com/dargueta/fatfs/gateway"
)

// BPB is the on-disk BIOS Parameter Block common to FAT12/16/32, decoded
// with go-restruct the same way dirent decodes directory entries.
type BPB struct {
	JumpBoot           [3]byte
	OEMName            [8]byte
	BytesPerSector     uint16
	SectorsPerCluster  uint8
	ReservedSectors    uint16
	NumFATs            uint8
	RootEntryCount     uint16
	TotalSectors16     uint16
	Media              uint8
	SectorsPerFAT16    uint16
	SectorsPerTrack    uint16
	NumHeads           uint16
	HiddenSectors      uint32
	TotalSectors32     uint32
}

// EBPB1216 is the FAT12/16 extended BPB tail.
type EBPB1216 struct {
	DriveNumber    uint8
	Reserved1      uint8
	BootSignature  uint8
	VolumeID       uint32
	VolumeLabel    [11]byte
	FilesystemType [8]byte
}

// EBPB32 is the FAT32 extended BPB tail.
type EBPB32 struct {
	SectorsPerFAT32    uint32
	ExtFlags           uint16
	FSVersion          uint16
	RootCluster        uint32
	FSInfoSector       uint16
	BackupBootSector   uint16
	Reserved           [12]byte
	DriveNumber        uint8
	Reserved1          uint8
	BootSignature      uint8
	VolumeID           uint32
	VolumeLabel        [11]byte
	FilesystemType     [8]byte
}

// BPBSize is the fixed size of the common BPB header.
const BPBSize = 36

// Geometry is the fully resolved layout of a mounted volume, derived from
// its boot sector, ready to hand to fat.Layout and the directory engine.
type Geometry struct {
	Kind              fat.Kind
	BytesPerSector    uint32
	SectorsPerCluster uint32
	ReservedSectors   uint32
	NumFATs           int
	RootEntryCount    uint32
	SectorsPerFAT     uint32
	FATFirstSector    uint32
	RootDirFirstSector uint32
	RootDirSectors    uint32
	FirstDataSector   uint32
	TotalSectors      uint32
	TotalClusters     uint32
	RootCluster       uint32 // FAT32 only
	FSInfoSector      uint32 // FAT32 only, 0 if none
	VolumeLabel       string
	VolumeID          uint32
	PartitionStartLBA uint32
}

// partitionTableEntry is one of the four MBR partition records.
type partitionTableEntry struct {
	Status       uint8
	FirstCHS     [3]byte
	PartitionType uint8
	LastCHS      [3]byte
	FirstLBA     uint32
	SectorCount  uint32
}

const (
	mbrSignatureOffset = 510
	mbrPartitionOffset = 446
	mbrSignature       = 0xAA55
	gptProtectiveType  = 0xEE
)

// gptHeaderSignature is "EFI PART" as a little-endian uint64.
const gptHeaderSignature = 0x5452415020494645

// basicDataPartitionGUID is the well-known "Microsoft basic data" GPT
// partition type GUID, stored in its on-disk mixed-endian byte order.
var basicDataPartitionGUID = [16]byte{
	0xA2, 0xA0, 0xD0, 0xEB, 0xE5, 0xB9, 0x33, 0x44,
	0x87, 0xC0, 0x68, 0xB6, 0xB7, 0x26, 0x99, 0xC7,
}

// FindPartitionStart locates the first LBA of the FAT partition on dev,
// trying, in order: a GPT protective MBR + header, an ordinary MBR, and
// finally assuming the device itself is a bare VBR at LBA 0.
func FindPartitionStart(dev gateway.Device) (uint32, error) {
	sector := make([]byte, dev.SectorSize())
	if err := dev.ReadSectors(0, 1, sector); err != nil {
		return 0, err
	}

	if binary.LittleEndian.Uint16(sector[mbrSignatureOffset:]) != mbrSignature {
		// No MBR signature at all: treat as a bare VBR.
		return 0, nil
	}

	firstEntry := sector[mbrPartitionOffset : mbrPartitionOffset+16]
	if firstEntry[4] == gptProtectiveType {
		return findGPTPartitionStart(dev)
	}

	for i := 0; i < 4; i++ {
		raw := sector[mbrPartitionOffset+i*16 : mbrPartitionOffset+i*16+16]
		var entry partitionTableEntry
		if err := restruct.Unpack(raw, binary.LittleEndian, &entry); err != nil {
			return 0, errors.New(errors.IntError).WrapError(err)
		}
		if isFATPartitionType(entry.PartitionType) {
			return entry.FirstLBA, nil
		}
	}

	// No recognized partition entries: fall back to treating sector 0 as
	// the VBR itself (common for superfloppy-formatted media).
	return 0, nil
}

func isFATPartitionType(t uint8) bool {
	switch t {
	case 0x01, 0x04, 0x06, 0x0B, 0x0C, 0x0E:
		return true
	default:
		return false
	}
}

func findGPTPartitionStart(dev gateway.Device) (uint32, error) {
	header := make([]byte, dev.SectorSize())
	if err := dev.ReadSectors(1, 1, header); err != nil {
		return 0, err
	}
	if binary.LittleEndian.Uint64(header[0:8]) != gptHeaderSignature {
		return 0, errors.New(errors.NoFilesystem).WithMessage("GPT protective MBR present but header signature missing")
	}

	partitionEntryLBA := binary.LittleEndian.Uint64(header[72:80])
	numEntries := binary.LittleEndian.Uint32(header[80:84])
	entrySize := binary.LittleEndian.Uint32(header[84:88])

	entriesPerSector := uint32(dev.SectorSize()) / entrySize
	entryBuf := make([]byte, dev.SectorSize())

	for i := uint32(0); i < numEntries; i += entriesPerSector {
		lba := uint32(partitionEntryLBA) + i/entriesPerSector
		if err := dev.ReadSectors(lba, 1, entryBuf); err != nil {
			return 0, err
		}
		for j := uint32(0); j < entriesPerSector && i+j < numEntries; j++ {
			off := j * entrySize
			var typeGUID [16]byte
			copy(typeGUID[:], entryBuf[off:off+16])
			if typeGUID == basicDataPartitionGUID {
				firstLBA := binary.LittleEndian.Uint64(entryBuf[off+32 : off+40])
				return uint32(firstLBA), nil
			}
		}
	}

	return 0, errors.New(errors.NoFilesystem).WithMessage("no basic data partition found in GPT")
}

// ReadGeometry parses the BPB (and FAT12/16 or FAT32 extended BPB) at
// partitionStart and computes the full volume geometry, validating the
// fields the original's mount sequence checks.
func ReadGeometry(dev gateway.Device, partitionStart uint32) (*Geometry, error) {
	sectorSize := dev.SectorSize()
	sector := make([]byte, sectorSize)
	if err := dev.ReadSectors(partitionStart, 1, sector); err != nil {
		return nil, err
	}

	if binary.LittleEndian.Uint16(sector[mbrSignatureOffset:]) != mbrSignature {
		return nil, errors.New(errors.NoFilesystem).WithMessage("missing boot sector signature")
	}

	var bpb BPB
	if err := restruct.Unpack(sector[:BPBSize], binary.LittleEndian, &bpb); err != nil {
		return nil, errors.New(errors.IntError).WrapError(err)
	}

	if err := validateBPB(&bpb); err != nil {
		return nil, err
	}

	rootDirSectors := (uint32(bpb.RootEntryCount)*32 + uint32(bpb.BytesPerSector) - 1) / uint32(bpb.BytesPerSector)

	var sectorsPerFAT uint32
	var rootCluster uint32
	var fsInfoSector uint32
	var volumeLabel [11]byte
	var volumeID uint32

	if bpb.SectorsPerFAT16 != 0 {
		sectorsPerFAT = uint32(bpb.SectorsPerFAT16)
		var ebpb EBPB1216
		if err := restruct.Unpack(sector[BPBSize:BPBSize+26], binary.LittleEndian, &ebpb); err != nil {
			return nil, errors.New(errors.IntError).WrapError(err)
		}
		volumeLabel = ebpb.VolumeLabel
		volumeID = ebpb.VolumeID
	} else {
		var ebpb EBPB32
		if err := restruct.Unpack(sector[BPBSize:BPBSize+54], binary.LittleEndian, &ebpb); err != nil {
			return nil, errors.New(errors.IntError).WrapError(err)
		}
		sectorsPerFAT = ebpb.SectorsPerFAT32
		rootCluster = ebpb.RootCluster
		fsInfoSector = uint32(ebpb.FSInfoSector)
		volumeLabel = ebpb.VolumeLabel
		volumeID = ebpb.VolumeID
	}

	totalSectors := uint32(bpb.TotalSectors16)
	if totalSectors == 0 {
		totalSectors = bpb.TotalSectors32
	}

	totalFATSectors := uint32(bpb.NumFATs) * sectorsPerFAT
	fatFirstSector := partitionStart + uint32(bpb.ReservedSectors)
	rootDirFirstSector := fatFirstSector + totalFATSectors
	firstDataSector := rootDirFirstSector + rootDirSectors

	dataSectors := totalSectors - (uint32(bpb.ReservedSectors) + totalFATSectors + rootDirSectors)
	totalClusters := dataSectors / uint32(bpb.SectorsPerCluster)

	kind := fat.Kind12
	switch fat.Kind(classifyFATVersion(totalClusters)) {
	case fat.Kind16:
		kind = fat.Kind16
	case fat.Kind32:
		kind = fat.Kind32
	}

	if kind == fat.Kind32 && rootDirSectors != 0 {
		return nil, errors.New(errors.NoFilesystem).WithMessage("FAT32 volume has nonzero root directory sectors")
	}
	if kind != fat.Kind32 && rootCluster != 0 {
		return nil, errors.New(errors.NoFilesystem).WithMessage("non-FAT32 volume specifies a FAT32-only root cluster")
	}

	return &Geometry{
		Kind:               kind,
		BytesPerSector:     uint32(bpb.BytesPerSector),
		SectorsPerCluster:  uint32(bpb.SectorsPerCluster),
		ReservedSectors:    uint32(bpb.ReservedSectors),
		NumFATs:            int(bpb.NumFATs),
		RootEntryCount:     uint32(bpb.RootEntryCount),
		SectorsPerFAT:      sectorsPerFAT,
		FATFirstSector:     fatFirstSector,
		RootDirFirstSector: rootDirFirstSector,
		RootDirSectors:     rootDirSectors,
		FirstDataSector:    firstDataSector,
		TotalSectors:       totalSectors,
		TotalClusters:      totalClusters,
		RootCluster:        rootCluster,
		FSInfoSector:       fsInfoSector,
		VolumeLabel:        trimLabel(volumeLabel),
		VolumeID:           volumeID,
		PartitionStartLBA:  partitionStart,
	}, nil
}

func trimLabel(raw [11]byte) string {
	n := len(raw)
	for n > 0 && raw[n-1] == ' ' {
		n--
	}
	return string(raw[:n])
}

// classifyFATVersion applies the cluster-count cutoffs from the Microsoft
// FAT specification (the same values used by the teacher's
// DetermineFATVersion and reproduced in hex form in the specification:
// 0x0FF5 == 4085, 0xFFF5 == 65525).
func classifyFATVersion(totalClusters uint32) int {
	if totalClusters < 4085 {
		return 12
	}
	if totalClusters < 65525 {
		return 16
	}
	return 32
}

func validateBPB(bpb *BPB) error {
	switch bpb.BytesPerSector {
	case 512, 1024, 2048, 4096:
	default:
		return errors.Newf(errors.NoFilesystem, "invalid bytes per sector: %d", bpb.BytesPerSector)
	}

	switch bpb.SectorsPerCluster {
	case 1, 2, 4, 8, 16, 32, 64, 128:
	default:
		return errors.Newf(errors.NoFilesystem, "invalid sectors per cluster: %d", bpb.SectorsPerCluster)
	}

	if bpb.NumFATs == 0 {
		return errors.New(errors.NoFilesystem).WithMessage("zero FAT copies")
	}
	if bpb.ReservedSectors == 0 {
		return errors.New(errors.NoFilesystem).WithMessage("zero reserved sectors")
	}

	bytesPerCluster := uint32(bpb.BytesPerSector) * uint32(bpb.SectorsPerCluster)
	if bytesPerCluster > 32768 {
		return errors.Newf(errors.NoFilesystem, "cluster size %d exceeds 32768 bytes", bytesPerCluster)
	}

	return nil
}
