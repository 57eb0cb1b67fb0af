// Command sfsutil is a debug and operations tool for SFS disk images. It is
// a thin wrapper around the engine's public API -- it has no knowledge of
// file contents beyond what format/debug/fsck/snapshot already expose.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/csci3600/simplefs"
	"github.com/csci3600/simplefs/block"
	"github.com/csci3600/simplefs/geometry"
	"github.com/csci3600/simplefs/snapshot"
)

func main() {
	app := &cli.App{
		Name:  "sfsutil",
		Usage: "format, inspect, and check simple block-structured file system images",
		Commands: []*cli.Command{
			formatCommand(),
			debugCommand(),
			fsckCommand(),
			geometriesCommand(),
			snapshotCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func formatCommand() *cli.Command {
	return &cli.Command{
		Name:      "format",
		Usage:     "create or wipe an image",
		ArgsUsage: "IMAGE_PATH",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "preset", Usage: "named geometry preset (see 'sfsutil geometries')"},
			&cli.UintFlag{Name: "blocks", Usage: "explicit total block count (overrides --preset)"},
		},
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return fmt.Errorf("format: IMAGE_PATH is required")
			}

			totalBlocks := uint32(c.Uint("blocks"))
			if totalBlocks == 0 {
				presetName := c.String("preset")
				if presetName == "" {
					return fmt.Errorf("format: one of --preset or --blocks is required")
				}
				preset, err := geometry.Lookup(presetName)
				if err != nil {
					return err
				}
				totalBlocks = preset.TotalBlocks
			}

			disk, err := block.CreateFileDisk(path, totalBlocks)
			if err != nil {
				return err
			}
			defer disk.Close()

			if err := sfs.Format(disk); err != nil {
				return err
			}
			fmt.Printf("formatted %s (%d blocks)\n", path, totalBlocks)
			return nil
		},
	}
}

func debugCommand() *cli.Command {
	return &cli.Command{
		Name:      "debug",
		Usage:     "print the superblock and every valid inode",
		ArgsUsage: "IMAGE_PATH",
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return fmt.Errorf("debug: IMAGE_PATH is required")
			}

			disk, err := block.OpenFileDisk(path)
			if err != nil {
				return err
			}
			defer disk.Close()

			return sfs.Debug(disk, os.Stdout)
		},
	}
}

func fsckCommand() *cli.Command {
	return &cli.Command{
		Name:      "fsck",
		Usage:     "mount the image read-only and report inode/pointer inconsistencies",
		ArgsUsage: "IMAGE_PATH",
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return fmt.Errorf("fsck: IMAGE_PATH is required")
			}

			disk, err := block.OpenFileDisk(path)
			if err != nil {
				return err
			}
			defer disk.Close()

			fs, err := sfs.Mount(disk)
			if err != nil {
				return err
			}
			defer fs.Unmount()

			if err := fs.Fsck(); err != nil {
				fmt.Fprintln(os.Stderr, err)
				return cli.Exit("fsck found inconsistencies", 1)
			}
			fmt.Println("no inconsistencies found")
			return nil
		},
	}
}

func geometriesCommand() *cli.Command {
	return &cli.Command{
		Name:  "geometries",
		Usage: "list named disk geometry presets",
		Action: func(c *cli.Context) error {
			for _, p := range geometry.Catalog() {
				fmt.Printf("%-14s %10d blocks   %s\n", p.Name, p.TotalBlocks, p.Description)
			}
			return nil
		},
	}
}

func snapshotCommand() *cli.Command {
	return &cli.Command{
		Name:  "snapshot",
		Usage: "export or import a compressed disk image",
		Subcommands: []*cli.Command{
			{
				Name:      "export",
				ArgsUsage: "IMAGE_PATH ARCHIVE_PATH",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "codec", Value: "xz", Usage: "compression codec: xz or zstd"},
				},
				Action: func(c *cli.Context) error {
					imagePath := c.Args().Get(0)
					archivePath := c.Args().Get(1)
					if imagePath == "" || archivePath == "" {
						return fmt.Errorf("snapshot export: IMAGE_PATH and ARCHIVE_PATH are required")
					}

					disk, err := block.OpenFileDisk(imagePath)
					if err != nil {
						return err
					}
					defer disk.Close()

					out, err := os.Create(archivePath)
					if err != nil {
						return err
					}
					defer out.Close()

					switch c.String("codec") {
					case "xz":
						return snapshot.Export(disk, out)
					case "zstd":
						return snapshot.ExportToZstd(disk, out)
					default:
						return fmt.Errorf("snapshot export: unknown codec %q (want xz or zstd)", c.String("codec"))
					}
				},
			},
			{
				Name:      "import",
				ArgsUsage: "ARCHIVE_PATH IMAGE_PATH",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "codec", Value: "xz", Usage: "compression codec: xz or zstd"},
				},
				Action: func(c *cli.Context) error {
					archivePath := c.Args().Get(0)
					imagePath := c.Args().Get(1)
					if archivePath == "" || imagePath == "" {
						return fmt.Errorf("snapshot import: ARCHIVE_PATH and IMAGE_PATH are required")
					}

					in, err := os.Open(archivePath)
					if err != nil {
						return err
					}
					defer in.Close()

					var disk *block.MemoryDisk
					switch c.String("codec") {
					case "xz":
						disk, err = snapshot.ImportXz(in)
					case "zstd":
						disk, err = snapshot.Import(in)
					default:
						return fmt.Errorf("snapshot import: unknown codec %q (want xz or zstd)", c.String("codec"))
					}
					if err != nil {
						return err
					}

					return os.WriteFile(imagePath, disk.Bytes(), 0o644)
				},
			},
		},
	}
}
