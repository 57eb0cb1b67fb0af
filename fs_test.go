package sfs

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csci3600/simplefs/block"
)

// newMountedDisk formats and mounts a fresh totalBlocks-block disk, per the
// N=100 scenario in the design notes (InodeBlocks=10, data blocks 11..99).
func newMountedDisk(t *testing.T, totalBlocks uint32) *FileSystem {
	t.Helper()
	disk := block.NewMemoryDisk(totalBlocks)
	require.NoError(t, Format(disk))

	fs, err := Mount(disk)
	require.NoError(t, err)
	t.Cleanup(func() { fs.Unmount() })
	return fs
}

func TestFormat_Idempotent(t *testing.T) {
	disk := block.NewMemoryDisk(100)
	require.NoError(t, Format(disk))
	first := append([]byte(nil), disk.Bytes()[:BlockSize]...)

	require.NoError(t, Format(disk))
	second := disk.Bytes()[:BlockSize]

	assert.Equal(t, first, second)
}

func TestFormat_FailsWhenMounted(t *testing.T) {
	disk := block.NewMemoryDisk(100)
	require.NoError(t, Format(disk))
	fs, err := Mount(disk)
	require.NoError(t, err)
	defer fs.Unmount()

	err = Format(disk)
	assert.ErrorIs(t, err, ErrAlreadyMounted)
}

func TestFormat_InodeBlockRule(t *testing.T) {
	disk := block.NewMemoryDisk(100)
	require.NoError(t, Format(disk))

	raw := make([]byte, BlockSize)
	require.NoError(t, disk.ReadBlock(0, raw))
	super := decodeSuperblock(raw)

	assert.Equal(t, MagicNumber, super.MagicNumber)
	assert.EqualValues(t, 100, super.Blocks)
	assert.EqualValues(t, 10, super.InodeBlocks)
	assert.EqualValues(t, 1280, super.Inodes)
}

func TestMount_RejectsBadMagic(t *testing.T) {
	disk := block.NewMemoryDisk(10)
	_, err := Mount(disk)
	assert.ErrorIs(t, err, ErrCorruptSuperblock)
}

func TestMount_RejectsAlreadyMounted(t *testing.T) {
	fs := newMountedDisk(t, 100)
	_, err := Mount(fs.disk)
	assert.ErrorIs(t, err, ErrAlreadyMounted)
}

func TestScenario1_CreateFirstInode(t *testing.T) {
	fs := newMountedDisk(t, 100)

	inumber, err := fs.Create()
	require.NoError(t, err)
	assert.EqualValues(t, 0, inumber)

	size, err := fs.Stat(inumber)
	require.NoError(t, err)
	assert.EqualValues(t, 0, size)
}

func TestCreate_ReturnsIncreasingInumbers(t *testing.T) {
	fs := newMountedDisk(t, 100)

	for expected := uint32(0); expected < 5; expected++ {
		got, err := fs.Create()
		require.NoError(t, err)
		assert.Equal(t, expected, got)
	}
}

func TestScenario2_WriteThenReadHello(t *testing.T) {
	fs := newMountedDisk(t, 100)
	inumber, err := fs.Create()
	require.NoError(t, err)

	n, err := fs.Write(inumber, []byte("hello"), 5, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	size, err := fs.Stat(inumber)
	require.NoError(t, err)
	assert.EqualValues(t, 5, size)

	buf := make([]byte, 5)
	n, err = fs.Read(inumber, buf, 5, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf))

	assert.False(t, fs.free.Get(11), "first data block must now be allocated")
}

func TestScenario3_ReadPastEOFClampsAndExactEOFReturnsZero(t *testing.T) {
	fs := newMountedDisk(t, 100)
	inumber, err := fs.Create()
	require.NoError(t, err)
	_, err = fs.Write(inumber, []byte("hello"), 5, 0)
	require.NoError(t, err)

	buf := make([]byte, 10)
	n, err := fs.Read(inumber, buf, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = fs.Read(inumber, buf, 5, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRead_FailsPastEOFOffset(t *testing.T) {
	fs := newMountedDisk(t, 100)
	inumber, err := fs.Create()
	require.NoError(t, err)
	_, err = fs.Write(inumber, []byte("hello"), 5, 0)
	require.NoError(t, err)

	buf := make([]byte, 5)
	_, err = fs.Read(inumber, buf, 5, 6)
	assert.ErrorIs(t, err, ErrOffsetBeyondEOF)
}

func TestScenario4_LargeWriteUsesIndirectBlock(t *testing.T) {
	fs := newMountedDisk(t, 100)
	inumber, err := fs.Create()
	require.NoError(t, err)

	length := BlockSize * 6
	data := make([]byte, length)
	for i := range data {
		data[i] = byte(i)
	}

	n, err := fs.Write(inumber, data, length, 0)
	require.NoError(t, err)
	assert.Equal(t, length, n)

	size, err := fs.Stat(inumber)
	require.NoError(t, err)
	assert.EqualValues(t, 24576, size)

	ri, err := fs.readInode(inumber)
	require.NoError(t, err)
	for _, p := range ri.Direct {
		assert.NotZero(t, p)
	}
	assert.NotZero(t, ri.Indirect)

	indirectBuf := make([]byte, BlockSize)
	require.NoError(t, fs.disk.ReadBlock(ri.Indirect, indirectBuf))
	nonZero := 0
	for i := uint32(0); i < PointersPerBlock; i++ {
		if readPointer(indirectBuf, i) != 0 {
			nonZero++
		}
	}
	assert.Equal(t, 1, nonZero)

	readBack := make([]byte, length)
	n, err = fs.Read(inumber, readBack, length, 0)
	require.NoError(t, err)
	assert.Equal(t, length, n)
	assert.Equal(t, data, readBack)
}

func TestScenario5_RemoveFreesBlocksAndReusesInumber(t *testing.T) {
	fs := newMountedDisk(t, 100)
	inumber, err := fs.Create()
	require.NoError(t, err)

	length := BlockSize * 6
	_, err = fs.Write(inumber, make([]byte, length), length, 0)
	require.NoError(t, err)

	freeBefore := fs.countFree()
	require.NoError(t, fs.Remove(inumber))
	freeAfter := fs.countFree()
	assert.Equal(t, freeBefore+7, freeAfter) // 6 data blocks + 1 indirect block

	_, err = fs.Stat(inumber)
	assert.ErrorIs(t, err, ErrInvalidInode)

	next, err := fs.Create()
	require.NoError(t, err)
	assert.Equal(t, inumber, next)
}

func TestScenario6_ExhaustionYieldsShortWrite(t *testing.T) {
	fs := newMountedDisk(t, 100)
	inumber, err := fs.Create()
	require.NoError(t, err)

	// Drain every data block (11..99 inclusive is 89 blocks).
	for {
		_, err := fs.allocateBlock()
		if err != nil {
			break
		}
	}

	sizeBefore, err := fs.Stat(inumber)
	require.NoError(t, err)

	n, err := fs.Write(inumber, make([]byte, BlockSize), BlockSize, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	sizeAfter, err := fs.Stat(inumber)
	require.NoError(t, err)
	assert.Equal(t, sizeBefore, sizeAfter)
}

func TestMaxFileSize_FullWriteSucceedsOneByteMoreIsClamped(t *testing.T) {
	fs := newMountedDisk(t, 2000)
	inumber, err := fs.Create()
	require.NoError(t, err)

	data := bytes.Repeat([]byte{0xAB}, MaxFileSize)
	n, err := fs.Write(inumber, data, MaxFileSize, 0)
	require.NoError(t, err)
	assert.Equal(t, MaxFileSize, n)

	second, err := fs.Create()
	require.NoError(t, err)
	oneMore := bytes.Repeat([]byte{0x01}, MaxFileSize+1)
	n, err = fs.Write(second, oneMore, MaxFileSize+1, 0)
	require.NoError(t, err)
	assert.Equal(t, MaxFileSize, n)
}

func TestWrite_FailsPastEOFOffset(t *testing.T) {
	fs := newMountedDisk(t, 100)
	inumber, err := fs.Create()
	require.NoError(t, err)

	_, err = fs.Write(inumber, []byte("x"), 1, 10)
	assert.ErrorIs(t, err, ErrOffsetBeyondEOF)
}

func TestRead_MidFileHoleIsCorruption(t *testing.T) {
	fs := newMountedDisk(t, 100)
	inumber, err := fs.Create()
	require.NoError(t, err)

	ri, err := fs.readInode(inumber)
	require.NoError(t, err)
	ri.Size = BlockSize * 2
	require.NoError(t, fs.writeInode(inumber, ri))

	buf := make([]byte, BlockSize*2)
	_, err = fs.Read(inumber, buf, BlockSize*2, 0)
	assert.ErrorIs(t, err, ErrCorruptPointer)
}

func TestInvalidInumber(t *testing.T) {
	fs := newMountedDisk(t, 100)

	_, err := fs.Stat(9999)
	assert.ErrorIs(t, err, ErrInvalidInode)

	err = fs.Remove(9999)
	assert.ErrorIs(t, err, ErrInvalidInode)
}

func TestBitmapReconstruction_MatchesInodePointers(t *testing.T) {
	disk := block.NewMemoryDisk(100)
	require.NoError(t, Format(disk))
	fs, err := Mount(disk)
	require.NoError(t, err)

	inumber, err := fs.Create()
	require.NoError(t, err)
	_, err = fs.Write(inumber, make([]byte, BlockSize*6), BlockSize*6, 0)
	require.NoError(t, err)
	require.NoError(t, fs.Unmount())

	remounted, err := Mount(disk)
	require.NoError(t, err)
	defer remounted.Unmount()

	ri, err := remounted.readInode(inumber)
	require.NoError(t, err)
	for _, p := range ri.Direct {
		require.NotZero(t, p)
		assert.False(t, remounted.free.Get(int(p)))
	}
	assert.False(t, remounted.free.Get(int(ri.Indirect)), "indirect block itself must be marked allocated")
}

func TestDebug_ReportsValidInodes(t *testing.T) {
	fs := newMountedDisk(t, 100)
	inumber, err := fs.Create()
	require.NoError(t, err)
	_, err = fs.Write(inumber, []byte("hello"), 5, 0)
	require.NoError(t, err)
	require.NoError(t, fs.Unmount())

	var out bytes.Buffer
	require.NoError(t, Debug(fs.disk, &out))

	report := out.String()
	assert.Contains(t, report, "magic number is valid")
	assert.Contains(t, report, "Inode 0:")
	assert.Contains(t, report, "size: 5 bytes")
}

func TestDebug_InvalidMagic(t *testing.T) {
	disk := block.NewMemoryDisk(10)
	var out bytes.Buffer
	require.NoError(t, Debug(disk, &out))
	assert.Contains(t, out.String(), "invalid magic number")
}

func TestInfo_ReportsUsageCounts(t *testing.T) {
	fs := newMountedDisk(t, 100)
	a, err := fs.Create()
	require.NoError(t, err)
	_, err = fs.Write(a, []byte("hello"), 5, 0)
	require.NoError(t, err)

	info, err := fs.Info()
	require.NoError(t, err)
	assert.EqualValues(t, 100, info.TotalBlocks)
	assert.EqualValues(t, 1, info.UsedInodes)
	assert.EqualValues(t, 1280, info.TotalInodes)
	assert.Equal(t, uint32(fs.countFree()), info.FreeBlocks)
}
