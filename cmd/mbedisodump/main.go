// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Command mbedisodump opens an ISO 9660/Joliet archive (optionally
// LZ4-wrapped) and walks it, printing each entry's path, kind, and size.
package main

import (
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/ds-sloth/mbediso"
)

func main() {
	fullScan := flag.Bool("full-scan", false, "read and promote the whole directory tree up front")
	indexCache := flag.String("index-cache", "", "directory for a persistent full-scan index cache")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: mbedisodump [-full-scan] [-index-cache dir] <archive>")
		os.Exit(2)
	}

	var opts []mbediso.Option
	if *fullScan {
		opts = append(opts, mbediso.WithFullScan())
	}
	if *indexCache != "" {
		opts = append(opts, mbediso.WithIndexCache(*indexCache))
	}

	fsys, err := mbediso.OpenFS(flag.Arg(0), opts...)
	if err != nil {
		slog.Error("open failed", "archive", flag.Arg(0), "error", err)
		os.Exit(1)
	}
	defer fsys.Close()

	dumpFS(fsys)
}

func dumpFS(fsys *mbediso.FS) {
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			fmt.Printf("%q: walk error: %v\n", p, err)
			return nil
		}

		info, err := d.Info()
		if err != nil {
			fmt.Printf("%q: stat error: %v\n", p, err)
			return nil
		}

		fmt.Printf("%s %10d %s\n", info.Mode(), info.Size(), p)
		return nil
	})
	if err != nil {
		slog.Error("walk failed", "error", err)
		os.Exit(1)
	}
}
