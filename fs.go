// Package sfs implements a simple block-structured file system layered over
// a fixed-geometry block device: a packed superblock, an inode table with
// direct and single-indirect pointers, and a free-block bitmap that is
// always reconstructed from the inode table at mount time rather than
// persisted.
package sfs

import (
	"fmt"
	"io"

	"github.com/boljen/go-bitmap"
	"github.com/sirupsen/logrus"

	"github.com/csci3600/simplefs/block"
)

// FileSystem is a mounted SFS instance. Its lifetime is scoped to a single
// Mount/Unmount pair: it owns the Disk exclusively and keeps the free-block
// bitmap in memory, never on disk.
//
// FileSystem is not safe for concurrent use; the engine is single-threaded
// by design (see the package's design notes).
type FileSystem struct {
	disk        block.Disk
	inodeBlocks uint32
	dataBlocks  uint32
	totalBlocks uint32

	// free[i] is true when block i is an unallocated data block. Blocks
	// covering the superblock and inode table are permanently false.
	free bitmap.Bitmap
}

// maxInodeBlocks returns ceil(blocks/10), the cap Format and Mount both
// enforce on InodeBlocks.
func maxInodeBlocks(blocks uint32) uint32 {
	return (blocks + 9) / 10
}

// Format writes a fresh superblock and zeroes every other block of disk. It
// fails if disk is already mounted. Format never mounts the disk itself.
func Format(disk block.Disk) error {
	if disk.Mounted() {
		return ErrAlreadyMounted
	}

	totalBlocks := disk.Blocks()
	inodeBlocks := maxInodeBlocks(totalBlocks)

	super := superblock{
		MagicNumber: MagicNumber,
		Blocks:      totalBlocks,
		InodeBlocks: inodeBlocks,
		Inodes:      inodeBlocks * InodesPerBlock,
	}
	if err := disk.WriteBlock(0, super.encode()); err != nil {
		return fmt.Errorf("writing superblock: %w", err)
	}

	empty := make([]byte, BlockSize)
	for b := uint32(1); b < totalBlocks; b++ {
		if err := disk.WriteBlock(b, empty); err != nil {
			return fmt.Errorf("zeroing block %d: %w", b, err)
		}
	}

	logrus.WithFields(logrus.Fields{
		"blocks":       totalBlocks,
		"inode_blocks": inodeBlocks,
		"inodes":       super.Inodes,
	}).Info("formatted disk")
	return nil
}

// Debug performs a read-only inspection of disk's on-disk structures,
// writing a human-readable report to w. It never modifies the disk or
// mounts it.
func Debug(disk block.Disk, w io.Writer) error {
	raw := make([]byte, BlockSize)
	if err := disk.ReadBlock(0, raw); err != nil {
		return fmt.Errorf("reading superblock: %w", err)
	}
	super := decodeSuperblock(raw)

	if super.MagicNumber != MagicNumber {
		fmt.Fprintln(w, "SuperBlock: invalid magic number")
		logrus.Warn("debug: invalid magic number")
		return nil
	}

	fmt.Fprintln(w, "SuperBlock:")
	fmt.Fprintln(w, "    magic number is valid")
	fmt.Fprintf(w, "    %d blocks\n", super.Blocks)
	fmt.Fprintf(w, "    %d inode blocks\n", super.InodeBlocks)
	fmt.Fprintf(w, "    %d inodes\n", super.Inodes)

	inodeBlockBuf := make([]byte, BlockSize)
	indirectBuf := make([]byte, BlockSize)

	for b := uint32(1); b < 1+super.InodeBlocks && b < super.Blocks; b++ {
		if err := disk.ReadBlock(b, inodeBlockBuf); err != nil {
			return fmt.Errorf("reading inode block %d: %w", b, err)
		}

		for slot := uint32(0); slot < InodesPerBlock; slot++ {
			ri := readInodeFromBlock(inodeBlockBuf, slot)
			if ri.Valid == 0 {
				continue
			}
			inumber := (b-1)*InodesPerBlock + slot

			fmt.Fprintf(w, "Inode %d:\n", inumber)
			fmt.Fprintf(w, "    size: %d bytes\n", ri.Size)

			fmt.Fprint(w, "    direct blocks:")
			for _, p := range ri.Direct {
				if p != 0 {
					fmt.Fprintf(w, " %d", p)
				}
			}
			fmt.Fprintln(w)

			if ri.Indirect != 0 {
				fmt.Fprintf(w, "    indirect block: %d\n", ri.Indirect)
				fmt.Fprint(w, "    indirect data blocks:")
				if err := disk.ReadBlock(ri.Indirect, indirectBuf); err != nil {
					return fmt.Errorf("reading indirect block %d: %w", ri.Indirect, err)
				}
				for i := uint32(0); i < PointersPerBlock; i++ {
					p := readPointer(indirectBuf, i)
					if p != 0 {
						fmt.Fprintf(w, " %d", p)
					}
				}
				fmt.Fprintln(w)
			}
		}
	}

	return nil
}

// Mount validates the superblock and reconstructs the in-memory free-block
// bitmap by scanning every valid inode and its indirect block, if any.
func Mount(disk block.Disk) (*FileSystem, error) {
	if disk.Mounted() {
		return nil, ErrAlreadyMounted
	}

	raw := make([]byte, BlockSize)
	if err := disk.ReadBlock(0, raw); err != nil {
		return nil, fmt.Errorf("reading superblock: %w", err)
	}
	super := decodeSuperblock(raw)

	if super.MagicNumber != MagicNumber {
		return nil, ErrCorruptSuperblock
	}
	if super.Blocks <= 1 {
		return nil, fmt.Errorf("%w: blocks <= 1", ErrCorruptSuperblock)
	}
	if super.InodeBlocks > maxInodeBlocks(super.Blocks) {
		return nil, fmt.Errorf("%w: inode blocks exceed 10%% cap", ErrCorruptSuperblock)
	}
	if super.InodeBlocks*InodesPerBlock != super.Inodes {
		return nil, fmt.Errorf("%w: inode count doesn't match inode blocks", ErrCorruptSuperblock)
	}

	if err := disk.Mount(); err != nil {
		return nil, err
	}

	fs := &FileSystem{
		disk:        disk,
		inodeBlocks: super.InodeBlocks,
		totalBlocks: super.Blocks,
		dataBlocks:  super.Blocks - (1 + super.InodeBlocks),
		free:        bitmap.New(int(super.Blocks)),
	}

	// Step 1: every block up to and including the inode table starts out
	// permanently allocated; everything past it starts free.
	for b := uint32(0); b < 1+fs.inodeBlocks; b++ {
		fs.free.Set(int(b), false)
	}
	for b := 1 + fs.inodeBlocks; b < fs.totalBlocks; b++ {
		fs.free.Set(int(b), true)
	}

	inodeBlockBuf := make([]byte, BlockSize)
	indirectBuf := make([]byte, BlockSize)

	for b := uint32(1); b < 1+fs.inodeBlocks; b++ {
		if err := disk.ReadBlock(b, inodeBlockBuf); err != nil {
			disk.Unmount()
			return nil, fmt.Errorf("reading inode block %d: %w", b, err)
		}

		for slot := uint32(0); slot < InodesPerBlock; slot++ {
			ri := readInodeFromBlock(inodeBlockBuf, slot)
			if ri.Valid == 0 {
				continue
			}

			// Step 2: mark every non-zero direct pointer allocated. An
			// out-of-range direct pointer is corruption; skip it rather
			// than panicking, matching the source's silent-skip behavior.
			for i := 0; i < PointersPerInode; i++ {
				p := ri.Direct[i]
				if p != 0 && p < fs.totalBlocks {
					fs.free.Set(int(p), false)
				}
			}

			// Step 3: the indirect block, if present, is itself a data
			// block and must be marked allocated explicitly -- it is not
			// implied by anything else in this loop.
			if ri.Indirect != 0 && ri.Indirect < fs.totalBlocks {
				fs.free.Set(int(ri.Indirect), false)

				if err := disk.ReadBlock(ri.Indirect, indirectBuf); err != nil {
					disk.Unmount()
					return nil, fmt.Errorf("reading indirect block %d: %w", ri.Indirect, err)
				}
				for i := uint32(0); i < PointersPerBlock; i++ {
					p := readPointer(indirectBuf, i)
					if p != 0 && p < fs.totalBlocks {
						fs.free.Set(int(p), false)
					}
				}
			}
		}
	}

	logrus.WithFields(logrus.Fields{
		"blocks":       fs.totalBlocks,
		"inode_blocks": fs.inodeBlocks,
		"free_blocks":  fs.countFree(),
	}).Info("mounted disk")

	return fs, nil
}

// Unmount releases the underlying disk. The FileSystem value must not be
// used again afterward.
func (fs *FileSystem) Unmount() error {
	return fs.disk.Unmount()
}

// Info is a point-in-time snapshot of filesystem-wide statistics, the kind
// a debug or monitoring tool would want without having to re-derive it from
// the inode table itself.
type Info struct {
	TotalBlocks uint32
	DataBlocks  uint32
	FreeBlocks  uint32
	TotalInodes uint32
	UsedInodes  uint32
}

// Info reports filesystem-wide usage statistics.
func (fs *FileSystem) Info() (Info, error) {
	usedInodes := uint32(0)
	buf := make([]byte, BlockSize)
	for b := uint32(1); b < 1+fs.inodeBlocks; b++ {
		if err := fs.disk.ReadBlock(b, buf); err != nil {
			return Info{}, err
		}
		for slot := uint32(0); slot < InodesPerBlock; slot++ {
			if readInodeFromBlock(buf, slot).Valid != 0 {
				usedInodes++
			}
		}
	}

	return Info{
		TotalBlocks: fs.totalBlocks,
		DataBlocks:  fs.dataBlocks,
		FreeBlocks:  uint32(fs.countFree()),
		TotalInodes: fs.totalInodes(),
		UsedInodes:  usedInodes,
	}, nil
}

func (fs *FileSystem) countFree() int {
	n := 0
	for i := int(1 + fs.inodeBlocks); i < int(fs.totalBlocks); i++ {
		if fs.free.Get(i) {
			n++
		}
	}
	return n
}

func (fs *FileSystem) totalInodes() uint32 {
	return fs.inodeBlocks * InodesPerBlock
}

func (fs *FileSystem) readInode(inumber uint32) (rawInode, error) {
	if inumber >= fs.totalInodes() {
		return rawInode{}, ErrInvalidInode
	}
	blk, slot := inodeInBlock(inumber)
	buf := make([]byte, BlockSize)
	if err := fs.disk.ReadBlock(blk, buf); err != nil {
		return rawInode{}, err
	}
	return readInodeFromBlock(buf, slot), nil
}

func (fs *FileSystem) writeInode(inumber uint32, ri rawInode) error {
	blk, slot := inodeInBlock(inumber)
	buf := make([]byte, BlockSize)
	if err := fs.disk.ReadBlock(blk, buf); err != nil {
		return err
	}
	writeInodeIntoBlock(buf, slot, ri)
	return fs.disk.WriteBlock(blk, buf)
}

// allocateBlock finds the first free data block, marks it allocated, zeroes
// it on disk, and returns its block number. Zeroing on allocation (rather
// than on free) is what lets a freshly-allocated indirect block be read back
// as an all-zero pointer array, the signal for "unassigned".
func (fs *FileSystem) allocateBlock() (uint32, error) {
	for b := int(1 + fs.inodeBlocks); b < int(fs.totalBlocks); b++ {
		if fs.free.Get(b) {
			fs.free.Set(b, false)
			empty := make([]byte, BlockSize)
			if err := fs.disk.WriteBlock(uint32(b), empty); err != nil {
				fs.free.Set(b, true)
				return 0, err
			}
			return uint32(b), nil
		}
	}
	return 0, ErrNoFreeBlocks
}

// Create allocates the first invalid inode slot, writes a fresh zeroed
// inode into it, and returns its inumber.
func (fs *FileSystem) Create() (uint32, error) {
	buf := make([]byte, BlockSize)
	for b := uint32(1); b < 1+fs.inodeBlocks; b++ {
		if err := fs.disk.ReadBlock(b, buf); err != nil {
			return 0, err
		}
		for slot := uint32(0); slot < InodesPerBlock; slot++ {
			ri := readInodeFromBlock(buf, slot)
			if ri.Valid != 0 {
				continue
			}

			fresh := rawInode{Valid: 1}
			writeInodeIntoBlock(buf, slot, fresh)
			if err := fs.disk.WriteBlock(b, buf); err != nil {
				return 0, err
			}
			return (b-1)*InodesPerBlock + slot, nil
		}
	}
	return 0, ErrNoFreeInodes
}

// Remove frees every block owned by inumber's inode (direct, indirect, and
// the indirect block itself) and marks the inode invalid. Data block
// contents are not zeroed here; zeroing happens lazily on the next
// allocation.
func (fs *FileSystem) Remove(inumber uint32) error {
	ri, err := fs.readInode(inumber)
	if err != nil {
		return err
	}
	if ri.Valid == 0 {
		return ErrInvalidInode
	}

	for i := range ri.Direct {
		if ri.Direct[i] != 0 {
			fs.free.Set(int(ri.Direct[i]), true)
			ri.Direct[i] = 0
		}
	}

	if ri.Indirect != 0 {
		buf := make([]byte, BlockSize)
		if err := fs.disk.ReadBlock(ri.Indirect, buf); err != nil {
			return err
		}
		for i := uint32(0); i < PointersPerBlock; i++ {
			p := readPointer(buf, i)
			if p != 0 {
				fs.free.Set(int(p), true)
			}
		}
		fs.free.Set(int(ri.Indirect), true)
		ri.Indirect = 0
	}

	ri.Valid = 0
	ri.Size = 0
	return fs.writeInode(inumber, ri)
}

// Stat returns the size, in bytes, of the file held by inumber.
func (fs *FileSystem) Stat(inumber uint32) (uint32, error) {
	ri, err := fs.readInode(inumber)
	if err != nil {
		return 0, err
	}
	if ri.Valid == 0 {
		return 0, ErrInvalidInode
	}
	return ri.Size, nil
}

// pointerAt resolves the data block number backing logical block index k of
// an inode, given its already-decoded direct pointers and (if read) its
// indirect block contents. It returns 0 for an unassigned pointer.
func pointerAt(ri rawInode, indirectBuf []byte, k uint32) uint32 {
	if k < PointersPerInode {
		return ri.Direct[k]
	}
	return readPointer(indirectBuf, k-PointersPerInode)
}

// Read copies up to length bytes starting at offset out of inumber's file
// into buf (which must be at least length bytes), returning the number of
// bytes actually read. A request that runs past the end of the file is
// clamped silently; a read starting exactly at EOF returns 0 bytes read.
// A read starting past EOF is an error, the same distinction Write makes
// via ErrOffsetBeyondEOF.
func (fs *FileSystem) Read(inumber uint32, buf []byte, length int, offset int) (int, error) {
	ri, err := fs.readInode(inumber)
	if err != nil {
		return 0, err
	}
	if ri.Valid == 0 {
		return 0, ErrInvalidInode
	}
	if offset > int(ri.Size) {
		return 0, ErrOffsetBeyondEOF
	}

	if offset+length > int(ri.Size) {
		length = int(ri.Size) - offset
	}
	if length <= 0 {
		return 0, nil
	}

	var indirectBuf []byte
	highestBlock := uint32((offset + length - 1) / BlockSize)
	if highestBlock >= PointersPerInode {
		if ri.Indirect == 0 {
			return 0, ErrCorruptPointer
		}
		indirectBuf = make([]byte, BlockSize)
		if err := fs.disk.ReadBlock(ri.Indirect, indirectBuf); err != nil {
			return 0, err
		}
	}

	dataBuf := make([]byte, BlockSize)
	bytesRead := 0
	for bytesRead < length {
		pos := offset + bytesRead
		k := uint32(pos / BlockSize)

		blockNum := pointerAt(ri, indirectBuf, k)
		if blockNum == 0 {
			return bytesRead, ErrCorruptPointer
		}
		if err := fs.disk.ReadBlock(blockNum, dataBuf); err != nil {
			return bytesRead, err
		}

		withinBlock := pos % BlockSize
		n := BlockSize - withinBlock
		if remaining := length - bytesRead; n > remaining {
			n = remaining
		}
		copy(buf[bytesRead:bytesRead+n], dataBuf[withinBlock:withinBlock+n])
		bytesRead += n
	}

	return bytesRead, nil
}

// Write copies up to length bytes from buf into inumber's file starting at
// offset, lazily allocating direct, indirect, and data blocks as needed. If
// allocation is exhausted partway through, Write stops and returns the
// number of bytes actually written with a nil error -- a short write is
// never reported as a failure as long as some progress could be made (and
// even if none could: the source does not distinguish the two cases).
//
// Write fails outright only if inumber is invalid or offset is beyond the
// current end of file; it never creates sparse files.
func (fs *FileSystem) Write(inumber uint32, buf []byte, length int, offset int) (int, error) {
	ri, err := fs.readInode(inumber)
	if err != nil {
		return 0, err
	}
	if ri.Valid == 0 {
		return 0, ErrInvalidInode
	}
	if offset > int(ri.Size) {
		return 0, ErrOffsetBeyondEOF
	}

	if offset+length > MaxFileSize {
		length = MaxFileSize - offset
	}
	if length < 0 {
		length = 0
	}

	var indirectBuf []byte
	indirectRead := false
	inodeDirty := false
	indirectDirty := false

	dataBuf := make([]byte, BlockSize)
	bytesWritten := 0

	for k := uint32(offset / BlockSize); bytesWritten < length && k < PointersPerInode+PointersPerBlock; k++ {
		var blockNum uint32

		if k < PointersPerInode {
			if ri.Direct[k] == 0 {
				b, err := fs.allocateBlock()
				if err != nil {
					break
				}
				ri.Direct[k] = b
				inodeDirty = true
			}
			blockNum = ri.Direct[k]
		} else {
			if ri.Indirect == 0 {
				b, err := fs.allocateBlock()
				if err != nil {
					break
				}
				ri.Indirect = b
				inodeDirty = true
			}
			if !indirectRead {
				indirectBuf = make([]byte, BlockSize)
				if err := fs.disk.ReadBlock(ri.Indirect, indirectBuf); err != nil {
					return bytesWritten, err
				}
				indirectRead = true
			}

			idx := k - PointersPerInode
			if readPointer(indirectBuf, idx) == 0 {
				b, err := fs.allocateBlock()
				if err != nil {
					break
				}
				writePointer(indirectBuf, idx, b)
				indirectDirty = true
			}
			blockNum = readPointer(indirectBuf, idx)
		}

		pos := offset + bytesWritten
		withinBlock := pos % BlockSize
		n := BlockSize - withinBlock
		if remaining := length - bytesWritten; n > remaining {
			n = remaining
		}

		if n < BlockSize {
			if err := fs.disk.ReadBlock(blockNum, dataBuf); err != nil {
				return bytesWritten, err
			}
		}
		copy(dataBuf[withinBlock:withinBlock+n], buf[bytesWritten:bytesWritten+n])
		if err := fs.disk.WriteBlock(blockNum, dataBuf); err != nil {
			return bytesWritten, err
		}

		bytesWritten += n
	}

	newSize := ri.Size
	if got := uint32(offset + bytesWritten); got > newSize {
		newSize = got
	}
	if newSize != ri.Size {
		ri.Size = newSize
		inodeDirty = true
	}

	if inodeDirty {
		if err := fs.writeInode(inumber, ri); err != nil {
			return bytesWritten, err
		}
	}
	if indirectDirty {
		if err := fs.disk.WriteBlock(ri.Indirect, indirectBuf); err != nil {
			return bytesWritten, err
		}
	}

	return bytesWritten, nil
}
