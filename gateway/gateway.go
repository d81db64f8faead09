// Package gateway defines the block-device vtable that the rest of this
// module talks to instead of a concrete storage medium: a drive
// implements Device, and everything above it (window, mount, fat) only
// ever calls through the interface.
package gateway

import (
	"io"

	"github.com/dargueta/fatfs/errors"
)

// Status bits returned by Device.Status, mirroring the disk_status()
// result bits of the original port layer.
type Status uint8

const (
	StatusOK          Status = 0
	StatusNoDisk      Status = 1 << 0
	StatusNotReady    Status = 1 << 1
	StatusWriteProtect Status = 1 << 2
)

// Ioctl identifies a control request passed to Device.Ioctl, mirroring
// the generic/ATA/SD command codes of the original disk_ioctl() vtable.
type Ioctl int

const (
	// IoctlSync flushes any write-back cache the device itself holds.
	IoctlSync Ioctl = iota
	// IoctlGetSectorCount reports the total addressable sector count; the
	// response buffer must hold a uint64.
	IoctlGetSectorCount
	// IoctlGetSectorSize reports the physical sector size in bytes; the
	// response buffer must hold a uint32.
	IoctlGetSectorSize
	// IoctlGetBlockSize reports the erase-block size in sectors, used by
	// the formatter to align cluster boundaries; the response buffer must
	// hold a uint32.
	IoctlGetBlockSize
	// IoctlTrim hints that the sector range [arg0, arg1) is no longer in
	// use and may be erased; only meaningful if the device also
	// implements Trimmer.
	IoctlTrim
)

// Device is the narrow interface every volume operation is built on: a
// sector-addressable random access device plus a small number of control
// requests. Concrete implementations wrap anything from a raw block
// device to an in-memory byte slice (see the testing package).
type Device interface {
	// Initialize prepares the device for use, returning its status bits.
	Initialize() (Status, error)
	// Status returns the device's current status bits without attempting
	// re-initialization.
	Status() Status
	// ReadSectors reads count sectors starting at lba into buf, which
	// must be exactly count*SectorSize() bytes.
	ReadSectors(lba uint32, count int, buf []byte) error
	// WriteSectors writes count sectors starting at lba from buf, which
	// must be exactly count*SectorSize() bytes.
	WriteSectors(lba uint32, count int, buf []byte) error
	// Ioctl issues a control request; arg and the return value's meaning
	// depend on the request code.
	Ioctl(req Ioctl, arg []uint64) (uint64, error)
	// SectorSize reports the device's physical sector size in bytes.
	SectorSize() int
}

// Trimmer is an optional capability: devices that can usefully discard
// unused sector ranges implement it, and fat.Engine type-asserts for it
// rather than requiring every Device to support TRIM.
type Trimmer interface {
	Trim(startLBA, endLBA uint32) error
}

// StreamDevice adapts any io.ReadWriteSeeker (as produced by
// bytesextra.NewReadWriteSeeker in tests, or an os.File in production)
// into a gateway.Device with a fixed sector size, grounded on the
// teacher's BlockDevice seek/bounds-check pattern.
type StreamDevice struct {
	stream     io.ReadWriteSeeker
	sectorSize int
	sectors    uint32
}

// NewStreamDevice wraps stream as a Device with the given sector size and
// total sector count.
func NewStreamDevice(stream io.ReadWriteSeeker, sectorSize int, sectors uint32) *StreamDevice {
	return &StreamDevice{stream: stream, sectorSize: sectorSize, sectors: sectors}
}

func (d *StreamDevice) SectorSize() int { return d.sectorSize }

func (d *StreamDevice) Initialize() (Status, error) { return StatusOK, nil }

func (d *StreamDevice) Status() Status { return StatusOK }

func (d *StreamDevice) checkBounds(lba uint32, count int) error {
	if count < 0 || uint64(lba)+uint64(count) > uint64(d.sectors) {
		return errors.Newf(errors.InvalidParameter,
			"sector range [%d, %d) out of bounds (device has %d sectors)",
			lba, uint64(lba)+uint64(count), d.sectors)
	}
	return nil
}

func (d *StreamDevice) seek(lba uint32) error {
	_, err := d.stream.Seek(int64(lba)*int64(d.sectorSize), io.SeekStart)
	if err != nil {
		return errors.New(errors.DiskError).WrapError(err)
	}
	return nil
}

func (d *StreamDevice) ReadSectors(lba uint32, count int, buf []byte) error {
	if err := d.checkBounds(lba, count); err != nil {
		return err
	}
	if len(buf) != count*d.sectorSize {
		return errors.New(errors.InvalidParameter).WithMessage("buffer size mismatch")
	}
	if err := d.seek(lba); err != nil {
		return err
	}
	if _, err := io.ReadFull(d.stream, buf); err != nil {
		return errors.New(errors.DiskError).WrapError(err)
	}
	return nil
}

func (d *StreamDevice) WriteSectors(lba uint32, count int, buf []byte) error {
	if err := d.checkBounds(lba, count); err != nil {
		return err
	}
	if len(buf) != count*d.sectorSize {
		return errors.New(errors.InvalidParameter).WithMessage("buffer size mismatch")
	}
	if err := d.seek(lba); err != nil {
		return err
	}
	if _, err := d.stream.Write(buf); err != nil {
		return errors.New(errors.DiskError).WrapError(err)
	}
	return nil
}

func (d *StreamDevice) Ioctl(req Ioctl, arg []uint64) (uint64, error) {
	switch req {
	case IoctlSync:
		return 0, nil
	case IoctlGetSectorCount:
		return uint64(d.sectors), nil
	case IoctlGetSectorSize:
		return uint64(d.sectorSize), nil
	case IoctlGetBlockSize:
		return 1, nil
	default:
		return 0, errors.New(errors.NotEnabled).WithMessage("ioctl not supported")
	}
}
