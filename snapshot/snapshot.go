// Package snapshot compresses and decompresses whole disk images for backup
// and transport, the way embedded test fixtures and CLI export commands in
// this corpus package disk images: an empty SFS image is mostly null bytes,
// and compresses extremely well.
//
// Each codec has its own export/import pair: Export and ImportXz use xz,
// ExportToZstd and Import use zstd. An archive written by one codec's
// exporter can only be read back by the same codec's importer.
package snapshot

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/csci3600/simplefs/block"
)

// Export reads every block of disk and writes an xz-compressed copy of the
// raw image to w. disk must not be mounted.
func Export(disk block.Disk, w io.Writer) error {
	if disk.Mounted() {
		return fmt.Errorf("snapshot: disk must be unmounted before export")
	}

	xzWriter, err := xz.NewWriter(w)
	if err != nil {
		return fmt.Errorf("snapshot: creating xz writer: %w", err)
	}

	buf := make([]byte, block.Size)
	for b := uint32(0); b < disk.Blocks(); b++ {
		if err := disk.ReadBlock(b, buf); err != nil {
			xzWriter.Close()
			return fmt.Errorf("snapshot: reading block %d: %w", b, err)
		}
		if _, err := xzWriter.Write(buf); err != nil {
			xzWriter.Close()
			return fmt.Errorf("snapshot: writing compressed block %d: %w", b, err)
		}
	}

	return xzWriter.Close()
}

// ExportToZstd behaves like Export but compresses with zstd instead of xz;
// it exists so Import's zstd path has a matching producer in tests.
func ExportToZstd(disk block.Disk, w io.Writer) error {
	if disk.Mounted() {
		return fmt.Errorf("snapshot: disk must be unmounted before export")
	}

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("snapshot: creating zstd writer: %w", err)
	}

	buf := make([]byte, block.Size)
	for b := uint32(0); b < disk.Blocks(); b++ {
		if err := disk.ReadBlock(b, buf); err != nil {
			enc.Close()
			return fmt.Errorf("snapshot: reading block %d: %w", b, err)
		}
		if _, err := enc.Write(buf); err != nil {
			enc.Close()
			return fmt.Errorf("snapshot: writing compressed block %d: %w", b, err)
		}
	}

	return enc.Close()
}

// Import reads a zstd-compressed raw disk image from r and returns it as an
// in-memory disk.
func Import(r io.Reader) (*block.MemoryDisk, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("snapshot: creating zstd reader: %w", err)
	}
	defer dec.Close()

	var out bytes.Buffer
	if _, err := io.Copy(&out, dec); err != nil {
		return nil, fmt.Errorf("snapshot: decompressing image: %w", err)
	}

	disk, err := block.NewMemoryDiskFromImage(out.Bytes())
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return disk, nil
}

// ImportXz is the xz-compressed counterpart to Import, used to read back
// archives produced by Export.
func ImportXz(r io.Reader) (*block.MemoryDisk, error) {
	xzReader, err := xz.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("snapshot: creating xz reader: %w", err)
	}

	var out bytes.Buffer
	if _, err := io.Copy(&out, xzReader); err != nil {
		return nil, fmt.Errorf("snapshot: decompressing image: %w", err)
	}

	disk, err := block.NewMemoryDiskFromImage(out.Bytes())
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return disk, nil
}
