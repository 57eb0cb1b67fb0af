package sfs

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Fsck performs a read-only consistency sweep over a mounted file system,
// checking invariants the engine itself relies on but does not otherwise
// verify on every call (see invariant 3 in the design notes: "the source
// relies on this but does not explicitly detect violations"). It never
// mutates the disk or the in-memory bitmap.
//
// Every violation found is collected rather than returned on the first
// failure, so a single Fsck run surfaces the full scope of corruption.
func (fs *FileSystem) Fsck() error {
	var result *multierror.Error

	owner := make(map[uint32]uint32) // data block -> owning inumber
	inodeBlockBuf := make([]byte, BlockSize)
	indirectBuf := make([]byte, BlockSize)

	checkPointer := func(inumber, p uint32) {
		if p == 0 {
			return
		}
		if p < 1+fs.inodeBlocks {
			result = multierror.Append(result, fmt.Errorf(
				"inode %d: pointer %d falls inside the superblock/inode region", inumber, p))
			return
		}
		if p >= fs.totalBlocks {
			result = multierror.Append(result, fmt.Errorf(
				"inode %d: pointer %d is out of range [0, %d)", inumber, p, fs.totalBlocks))
			return
		}
		if prev, ok := owner[p]; ok {
			result = multierror.Append(result, fmt.Errorf(
				"block %d is claimed by both inode %d and inode %d", p, prev, inumber))
			return
		}
		owner[p] = inumber
	}

	for b := uint32(1); b < 1+fs.inodeBlocks; b++ {
		if err := fs.disk.ReadBlock(b, inodeBlockBuf); err != nil {
			result = multierror.Append(result, fmt.Errorf("reading inode block %d: %w", b, err))
			continue
		}

		for slot := uint32(0); slot < InodesPerBlock; slot++ {
			ri := readInodeFromBlock(inodeBlockBuf, slot)
			if ri.Valid == 0 {
				continue
			}
			inumber := (b-1)*InodesPerBlock + slot

			if ri.Size > MaxFileSize {
				result = multierror.Append(result, fmt.Errorf(
					"inode %d: size %d exceeds maximum file size %d", inumber, ri.Size, MaxFileSize))
			}

			for _, p := range ri.Direct {
				checkPointer(inumber, p)
			}

			if ri.Indirect != 0 {
				checkPointer(inumber, ri.Indirect)
				if ri.Indirect < fs.totalBlocks {
					if err := fs.disk.ReadBlock(ri.Indirect, indirectBuf); err != nil {
						result = multierror.Append(result, fmt.Errorf(
							"inode %d: reading indirect block %d: %w", inumber, ri.Indirect, err))
						continue
					}
					for i := uint32(0); i < PointersPerBlock; i++ {
						checkPointer(inumber, readPointer(indirectBuf, i))
					}
				}
			}
		}
	}

	return result.ErrorOrNil()
}
