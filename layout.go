package sfs

import (
	"encoding/binary"

	"github.com/noxer/bytewriter"
)

// On-disk geometry constants. These satisfy sizeof(inode) == 32 and
// sizeof(block) == BlockSize, and must never change: they are baked into
// every image this package has ever formatted.
const (
	// MagicNumber identifies a block 0 as a valid SFS superblock.
	MagicNumber uint32 = 0xF0F03410

	// BlockSize is the fixed size, in bytes, of every block on an SFS disk.
	BlockSize = 4096

	// InodesPerBlock is the number of 32-byte inodes packed into one block
	// of the inode table.
	InodesPerBlock = 128

	// PointersPerInode is the number of direct block pointers stored
	// inline in an inode.
	PointersPerInode = 5

	// PointersPerBlock is the number of 32-bit block pointers that fit in
	// one indirect block.
	PointersPerBlock = BlockSize / 4

	// inodeSize is sizeof(Inode) on disk: Valid, Size, 5 direct pointers,
	// Indirect, all as little-endian uint32.
	inodeSize = 4 + 4 + (PointersPerInode * 4) + 4

	// MaxFileSize is the largest file size representable with only direct
	// and single-level indirect pointers.
	MaxFileSize = BlockSize * (PointersPerInode + PointersPerBlock)
)

// superblock mirrors the 16 significant bytes of block 0. The remaining
// BlockSize-16 bytes of the block are reserved and must read back as zero.
type superblock struct {
	MagicNumber uint32
	Blocks      uint32
	InodeBlocks uint32
	Inodes      uint32
}

func (s *superblock) encode() []byte {
	buf := make([]byte, BlockSize)
	w := bytewriter.New(buf)
	binary.Write(w, binary.LittleEndian, s.MagicNumber)
	binary.Write(w, binary.LittleEndian, s.Blocks)
	binary.Write(w, binary.LittleEndian, s.InodeBlocks)
	binary.Write(w, binary.LittleEndian, s.Inodes)
	return buf
}

func decodeSuperblock(buf []byte) superblock {
	return superblock{
		MagicNumber: binary.LittleEndian.Uint32(buf[0:4]),
		Blocks:      binary.LittleEndian.Uint32(buf[4:8]),
		InodeBlocks: binary.LittleEndian.Uint32(buf[8:12]),
		Inodes:      binary.LittleEndian.Uint32(buf[12:16]),
	}
}

// rawInode is the on-disk, fixed-size representation of one inode.
type rawInode struct {
	Valid   uint32
	Size    uint32
	Direct  [PointersPerInode]uint32
	Indirect uint32
}

func (ri *rawInode) encodeInto(buf []byte) {
	w := bytewriter.New(buf)
	binary.Write(w, binary.LittleEndian, ri.Valid)
	binary.Write(w, binary.LittleEndian, ri.Size)
	binary.Write(w, binary.LittleEndian, ri.Direct)
	binary.Write(w, binary.LittleEndian, ri.Indirect)
}

func decodeRawInode(buf []byte) rawInode {
	var ri rawInode
	ri.Valid = binary.LittleEndian.Uint32(buf[0:4])
	ri.Size = binary.LittleEndian.Uint32(buf[4:8])
	for i := 0; i < PointersPerInode; i++ {
		off := 8 + i*4
		ri.Direct[i] = binary.LittleEndian.Uint32(buf[off : off+4])
	}
	indirectOff := 8 + PointersPerInode*4
	ri.Indirect = binary.LittleEndian.Uint32(buf[indirectOff : indirectOff+4])
	return ri
}

// inodeInBlock returns the inode-table block holding inumber, and the slot
// within that block.
func inodeInBlock(inumber uint32) (block uint32, slot uint32) {
	return 1 + inumber/InodesPerBlock, inumber % InodesPerBlock
}

// readInodeFromBlock decodes the inode at `slot` out of a raw inode-table
// block buffer.
func readInodeFromBlock(blockBuf []byte, slot uint32) rawInode {
	start := slot * inodeSize
	return decodeRawInode(blockBuf[start : start+inodeSize])
}

// writeInodeIntoBlock encodes ri into `slot` of a raw inode-table block
// buffer, leaving the rest of the block untouched.
func writeInodeIntoBlock(blockBuf []byte, slot uint32, ri rawInode) {
	start := slot * inodeSize
	ri.encodeInto(blockBuf[start : start+inodeSize])
}

// readPointer reads the pointer at logical index idx out of a raw indirect
// block buffer.
func readPointer(blockBuf []byte, idx uint32) uint32 {
	off := idx * 4
	return binary.LittleEndian.Uint32(blockBuf[off : off+4])
}

// writePointer writes the pointer at logical index idx into a raw indirect
// block buffer.
func writePointer(blockBuf []byte, idx uint32, value uint32) {
	off := idx * 4
	binary.LittleEndian.PutUint32(blockBuf[off:off+4], value)
}
