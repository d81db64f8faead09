// Command fatutil is a thin CLI wrapper around the core filesystem
// package: format a fresh image, list a directory, or dump a file's
// contents, mirroring the teacher's cmd/main.go shape (a urfave/cli App
// with one subcommand per operation) but against this module's own
// public API instead of disko's.
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/dargueta/fatfs/fat"
	"github.com/dargueta/fatfs/format"
	"github.com/dargueta/fatfs/fs"
	"github.com/dargueta/fatfs/gateway"
	"github.com/dargueta/fatfs/share"
)

func main() {
	app := &cli.App{
		Name:  "fatutil",
		Usage: "Inspect and build FAT12/16/32 disk images",
		Commands: []*cli.Command{
			formatCommand(),
			lsCommand(),
			catCommand(),
			extractCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fatal error: %s", err)
	}
}

func formatCommand() *cli.Command {
	return &cli.Command{
		Name:      "format",
		Usage:     "Create (or overwrite) a FAT image file",
		ArgsUsage: "IMAGE_FILE",
		Flags: []cli.Flag{
			&cli.Uint64Flag{Name: "sectors", Value: 4096, Usage: "total 512-byte sectors in the image"},
			&cli.IntFlag{Name: "kind", Value: 0, Usage: "12, 16, or 32; 0 picks automatically from size"},
			&cli.StringFlag{Name: "label", Value: "", Usage: "volume label, up to 11 characters"},
		},
		Action: func(c *cli.Context) error {
			if c.Args().Len() != 1 {
				return cli.Exit("expected exactly one argument: IMAGE_FILE", 1)
			}
			path := c.Args().First()
			sectors := uint32(c.Uint64("sectors"))

			f, err := os.Create(path)
			if err != nil {
				return cli.Exit(fmt.Sprintf("failed to create %s: %s", path, err), 1)
			}
			defer f.Close()
			if err := f.Truncate(int64(sectors) * 512); err != nil {
				return cli.Exit(err.Error(), 1)
			}

			dev := gateway.NewStreamDevice(f, 512, sectors)

			var kind fat.Kind
			switch c.Int("kind") {
			case 12:
				kind = fat.Kind12
			case 16:
				kind = fat.Kind16
			case 32:
				kind = fat.Kind32
			case 0:
				kind = 0
			default:
				return cli.Exit("kind must be 12, 16, or 32", 1)
			}

			if err := format.Format(dev, sectors, format.Options{Kind: kind, VolumeLabel: c.String("label")}); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			log.Printf("formatted %s: %d sectors", path, sectors)
			return nil
		},
	}
}

// openVolume mounts the image at path read-write with a private
// share-lock table, since fatutil never has two handles open on the same
// entry at once.
func openVolume(path string) (*fs.Volume, *os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	sectors := uint32(info.Size() / 512)

	dev := gateway.NewStreamDevice(f, 512, sectors)
	vol, err := fs.Mount(dev, share.New(16), 1)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return vol, f, nil
}

func lsCommand() *cli.Command {
	return &cli.Command{
		Name:      "ls",
		Usage:     "List a directory's entries",
		ArgsUsage: "IMAGE_FILE [PATH]",
		Action: func(c *cli.Context) error {
			if c.Args().Len() < 1 {
				return cli.Exit("expected at least IMAGE_FILE", 1)
			}
			path := "/"
			if c.Args().Len() >= 2 {
				path = c.Args().Get(1)
			}

			vol, f, err := openVolume(c.Args().First())
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer f.Close()
			defer vol.Unmount()

			d, err := fs.OpenDir(vol, path)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer d.Close()

			entries, err := d.ReadDir(0)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			for _, e := range entries {
				marker := "-"
				if e.IsDir() {
					marker = "d"
				}
				fmt.Printf("%s %10d  %s\n", marker, e.Size, e.Name)
			}
			return nil
		},
	}
}

func catCommand() *cli.Command {
	return &cli.Command{
		Name:      "cat",
		Usage:     "Print a file's contents to stdout",
		ArgsUsage: "IMAGE_FILE PATH",
		Action: func(c *cli.Context) error {
			if c.Args().Len() != 2 {
				return cli.Exit("expected IMAGE_FILE and PATH", 1)
			}

			vol, f, err := openVolume(c.Args().First())
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer f.Close()
			defer vol.Unmount()

			file, err := fs.Open(vol, c.Args().Get(1))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer file.Close()

			if _, err := io.Copy(os.Stdout, file); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
	}
}

func extractCommand() *cli.Command {
	return &cli.Command{
		Name:      "extract",
		Usage:     "Copy a file out of the image onto the local filesystem",
		ArgsUsage: "IMAGE_FILE SRC_PATH DEST_PATH",
		Action: func(c *cli.Context) error {
			if c.Args().Len() != 3 {
				return cli.Exit("expected IMAGE_FILE, SRC_PATH, and DEST_PATH", 1)
			}

			vol, f, err := openVolume(c.Args().First())
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer f.Close()
			defer vol.Unmount()

			src, err := fs.Open(vol, c.Args().Get(1))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer src.Close()

			dest, err := os.Create(c.Args().Get(2))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer dest.Close()

			n, err := io.Copy(dest, src)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			log.Printf("extracted %s bytes to %s", strconv.FormatInt(n, 10), c.Args().Get(2))
			return nil
		},
	}
}
