package sfs

// SFSError is a sentinel error type, mirroring the pattern of a small,
// comparable set of well-known failure modes that callers can check with
// errors.Is instead of string matching.
type SFSError string

func (e SFSError) Error() string {
	return string(e)
}

const (
	// ErrAlreadyMounted is returned by Mount when the disk is already mounted.
	ErrAlreadyMounted = SFSError("disk is already mounted")

	// ErrNotMounted names the condition of a disk that is not mounted. The
	// engine's operations do not check for that condition, and none of them
	// returns this error.
	ErrNotMounted = SFSError("disk is not mounted")

	// ErrCorruptSuperblock is returned by Mount when the superblock's magic
	// number or geometry fields don't pass validation.
	ErrCorruptSuperblock = SFSError("superblock is corrupt or not formatted")

	// ErrInvalidInode is returned whenever an inumber is out of range or
	// names an inode that is not currently valid (allocated).
	ErrInvalidInode = SFSError("inode number is invalid or out of range")

	// ErrNoFreeInodes is returned by Create when every inode slot is valid.
	ErrNoFreeInodes = SFSError("no free inodes remain")

	// ErrNoFreeBlocks is returned by internal allocation helpers when the
	// free-block bitmap has no unallocated data blocks left. Write never
	// surfaces this directly -- it degrades to a short write instead.
	ErrNoFreeBlocks = SFSError("no free data blocks remain")

	// ErrCorruptPointer is returned by Read when it encounters a zero
	// pointer before reaching the requested length: a hole in the middle of
	// a file is treated as corruption, never as a run of zero bytes.
	ErrCorruptPointer = SFSError("encountered unassigned block pointer mid-file")

	// ErrOffsetBeyondEOF is returned by Read and Write when offset > Size:
	// the engine never creates sparse files by writing past the current end
	// of file, and never reads from past it.
	ErrOffsetBeyondEOF = SFSError("offset is beyond end of file")

	// ErrBlockOutOfRange names a block number outside [0, N). The block
	// package's Disk adapters report that condition with their own error
	// values, not with this one.
	ErrBlockOutOfRange = SFSError("block number out of range")
)
