package sfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csci3600/simplefs/block"
)

func TestFsck_CleanFileSystemHasNoFindings(t *testing.T) {
	fs := newMountedDisk(t, 100)
	inumber, err := fs.Create()
	require.NoError(t, err)
	_, err = fs.Write(inumber, make([]byte, BlockSize*6), BlockSize*6, 0)
	require.NoError(t, err)

	assert.NoError(t, fs.Fsck())
}

func TestFsck_DetectsAliasedBlock(t *testing.T) {
	fs := newMountedDisk(t, 100)

	a, err := fs.Create()
	require.NoError(t, err)
	_, err = fs.Write(a, []byte("a"), 1, 0)
	require.NoError(t, err)

	b, err := fs.Create()
	require.NoError(t, err)
	_, err = fs.Write(b, []byte("b"), 1, 0)
	require.NoError(t, err)

	riA, err := fs.readInode(a)
	require.NoError(t, err)
	riB, err := fs.readInode(b)
	require.NoError(t, err)

	// Force inode b's first direct pointer to alias inode a's block.
	riB.Direct[0] = riA.Direct[0]
	require.NoError(t, fs.writeInode(b, riB))

	err = fs.Fsck()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "claimed by both")
}

func TestFsck_DetectsOutOfRangePointer(t *testing.T) {
	fs := newMountedDisk(t, 100)
	inumber, err := fs.Create()
	require.NoError(t, err)

	ri, err := fs.readInode(inumber)
	require.NoError(t, err)
	ri.Direct[0] = 9999
	require.NoError(t, fs.writeInode(inumber, ri))

	err = fs.Fsck()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestFsck_DetectsPointerIntoInodeRegion(t *testing.T) {
	fs := newMountedDisk(t, 100)
	inumber, err := fs.Create()
	require.NoError(t, err)

	ri, err := fs.readInode(inumber)
	require.NoError(t, err)
	ri.Direct[0] = 3 // inside the inode table, not the data region
	require.NoError(t, fs.writeInode(inumber, ri))

	err = fs.Fsck()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "superblock/inode region")
}

func TestFsck_NeverMutatesDisk(t *testing.T) {
	fs := newMountedDisk(t, 100)
	inumber, err := fs.Create()
	require.NoError(t, err)
	_, err = fs.Write(inumber, []byte("hello"), 5, 0)
	require.NoError(t, err)

	before := append([]byte(nil), fs.disk.(*block.MemoryDisk).Bytes()...)
	require.NoError(t, fs.Fsck())
	after := fs.disk.(*block.MemoryDisk).Bytes()

	assert.Equal(t, before, after)
}
