// Package block provides the fixed-geometry, block-addressable storage
// abstraction the SFS engine is layered on top of. The engine only ever
// talks to the Disk interface; these two implementations (MemoryDisk and
// FileDisk) are collaborators, not part of the engine's own invariants.
package block

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/xaionaro-go/bytesextra"
	"golang.org/x/sys/unix"
)

// Size is the fixed block size, in bytes, every Disk implementation must
// honor. The SFS engine assumes every Read/Write call moves exactly one
// block of this size.
const Size = 4096

// Disk is a fixed-geometry, block-indexed backing store. Implementations
// must make Read and Write synchronous and durable on return, and must
// allow at most one concurrent Mount.
type Disk interface {
	// Blocks returns the total number of fixed-size blocks on the device.
	Blocks() uint32

	// Mounted reports whether Mount has succeeded without a matching
	// Unmount.
	Mounted() bool

	// Mount claims exclusive use of the device. It fails if the device is
	// already mounted.
	Mount() error

	// Unmount releases the device so it can be mounted again.
	Unmount() error

	// ReadBlock reads block number `block` into buf, which must be exactly
	// Size bytes.
	ReadBlock(block uint32, buf []byte) error

	// WriteBlock writes buf, which must be exactly Size bytes, to block
	// number `block`.
	WriteBlock(block uint32, buf []byte) error
}

func checkBuffer(buf []byte) error {
	if len(buf) != Size {
		return fmt.Errorf("buffer must be exactly %d bytes, got %d", Size, len(buf))
	}
	return nil
}

func checkRange(block, total uint32) error {
	if block >= total {
		return fmt.Errorf("block %d not in range [0, %d)", block, total)
	}
	return nil
}

// MemoryDisk is an in-memory Disk backed by a byte slice, used by tests and
// by the snapshot tool when staging a disk image entirely in memory.
type MemoryDisk struct {
	data    []byte
	stream  io.ReadWriteSeeker
	blocks  uint32
	mounted bool
}

// NewMemoryDisk allocates a zero-filled in-memory disk of the given size.
func NewMemoryDisk(totalBlocks uint32) *MemoryDisk {
	data := make([]byte, uint64(totalBlocks)*Size)
	return &MemoryDisk{
		data:   data,
		stream: bytesextra.NewReadWriteSeeker(data),
		blocks: totalBlocks,
	}
}

// NewMemoryDiskFromImage wraps an existing raw disk image (its length must
// be an exact multiple of Size) as a MemoryDisk without copying it.
func NewMemoryDiskFromImage(image []byte) (*MemoryDisk, error) {
	if len(image)%Size != 0 {
		return nil, fmt.Errorf(
			"image length %d is not a multiple of the block size %d", len(image), Size)
	}
	return &MemoryDisk{
		data:   image,
		stream: bytesextra.NewReadWriteSeeker(image),
		blocks: uint32(len(image) / Size),
	}, nil
}

func (d *MemoryDisk) Blocks() uint32 { return d.blocks }
func (d *MemoryDisk) Mounted() bool  { return d.mounted }

func (d *MemoryDisk) Mount() error {
	if d.mounted {
		return fmt.Errorf("memory disk is already mounted")
	}
	d.mounted = true
	return nil
}

func (d *MemoryDisk) Unmount() error {
	d.mounted = false
	return nil
}

func (d *MemoryDisk) ReadBlock(block uint32, buf []byte) error {
	if err := checkBuffer(buf); err != nil {
		return err
	}
	if err := checkRange(block, d.blocks); err != nil {
		return err
	}
	if _, err := d.stream.Seek(int64(block)*Size, 0); err != nil {
		return err
	}
	_, err := d.stream.Read(buf)
	return err
}

func (d *MemoryDisk) WriteBlock(block uint32, buf []byte) error {
	if err := checkBuffer(buf); err != nil {
		return err
	}
	if err := checkRange(block, d.blocks); err != nil {
		return err
	}
	if _, err := d.stream.Seek(int64(block)*Size, 0); err != nil {
		return err
	}
	_, err := d.stream.Write(buf)
	return err
}

// Bytes returns the raw underlying image. The returned slice aliases the
// disk's storage; callers must not write to it concurrently with Disk
// operations.
func (d *MemoryDisk) Bytes() []byte {
	return d.data
}

// FileDisk is a Disk backed by a regular file on the host filesystem.
//
// Because the in-process mounted flag only protects against double-mounting
// within a single FileDisk value, Mount also takes an advisory exclusive
// flock on the file descriptor so two separate process-level instances of
// the engine can't mount the same image file at once. This is a courtesy on
// top of the mounted-state guard the engine already requires; it has no
// bearing on the engine's own invariants.
type FileDisk struct {
	file    *os.File
	blocks  uint32
	mounted bool
	locked  bool
}

// OpenFileDisk opens an existing file as a Disk. The file's size must be an
// exact multiple of Size.
func OpenFileDisk(path string) (*FileDisk, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.Size()%Size != 0 {
		file.Close()
		return nil, fmt.Errorf(
			"file size %d is not a multiple of the block size %d", info.Size(), Size)
	}

	return &FileDisk{file: file, blocks: uint32(info.Size() / Size)}, nil
}

// CreateFileDisk creates a new zero-filled file of totalBlocks*Size bytes
// and opens it as a Disk.
func CreateFileDisk(path string, totalBlocks uint32) (*FileDisk, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	if err := file.Truncate(int64(totalBlocks) * Size); err != nil {
		file.Close()
		return nil, err
	}
	return &FileDisk{file: file, blocks: totalBlocks}, nil
}

func (d *FileDisk) Blocks() uint32 { return d.blocks }
func (d *FileDisk) Mounted() bool  { return d.mounted }

func (d *FileDisk) Mount() error {
	if d.mounted {
		return fmt.Errorf("file disk %q is already mounted", d.file.Name())
	}

	err := unix.Flock(int(d.file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		return fmt.Errorf("another process holds %q mounted: %w", d.file.Name(), err)
	}
	d.locked = true
	d.mounted = true
	logrus.WithField("path", d.file.Name()).Debug("file disk mounted")
	return nil
}

func (d *FileDisk) Unmount() error {
	if d.locked {
		if err := unix.Flock(int(d.file.Fd()), unix.LOCK_UN); err != nil {
			return err
		}
		d.locked = false
	}
	d.mounted = false
	return nil
}

// Close releases the underlying file handle. The disk must be unmounted
// first.
func (d *FileDisk) Close() error {
	return d.file.Close()
}

func (d *FileDisk) ReadBlock(block uint32, buf []byte) error {
	if err := checkBuffer(buf); err != nil {
		return err
	}
	if err := checkRange(block, d.blocks); err != nil {
		return err
	}
	_, err := d.file.ReadAt(buf, int64(block)*Size)
	return err
}

func (d *FileDisk) WriteBlock(block uint32, buf []byte) error {
	if err := checkBuffer(buf); err != nil {
		return err
	}
	if err := checkRange(block, d.blocks); err != nil {
		return err
	}
	_, err := d.file.WriteAt(buf, int64(block)*Size)
	return err
}
