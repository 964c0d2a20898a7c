// Copyright (c) 2019 kestrel3d
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/kestrel3d/kestrel/pak"
)

func init() {
	u, err := user.Current()
	if err != nil {
		currentUserName = "unknown"
		return
	}
	currentUserName = u.Name
}

var (
	currentUserName string
	author          = flag.String("author", currentUserName, "Set the author of the package when compressing")
	version         = flag.Int64("version", 1, "Archive version number to create it with")
	extract         = flag.String("e", "", "Extract the given archive into the current directory")
	compress        = flag.String("c", "", "Compress the given file/folder")
	dstFile         = flag.String("f", "out.kpak", "Destination file")
	list            = flag.String("l", "", "List the contents of the given archive")
)

func main() {
	var opMade bool
	flag.Parse()

	if *extract != "" && *compress != "" {
		panic(errors.New("only one operation at a time"))
	}

	if *extract != "" {
		opMade = true
		if err := extractFiles(); err != nil {
			panic(err)
		}
	}

	if *compress != "" {
		opMade = true
		if err := compressFiles(); err != nil {
			panic(err)
		}
	}

	if *list != "" {
		opMade = true
		if err := listFiles(); err != nil {
			panic(err)
		}
	}

	if !opMade {
		flag.PrintDefaults()
	}
}

func compressFiles() error {
	if _, err := os.Stat(*dstFile); err == nil {
		return errors.New("destination file exists, will not overwrite")
	}

	dst, err := os.Create(*dstFile)
	if err != nil {
		return err
	}
	defer dst.Close()

	var filesToCompress []string
	if err := filepath.Walk(*compress, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		filesToCompress = append(filesToCompress, path)
		return nil
	}); err != nil {
		return err
	}

	builder, err := pak.NewBuilder(pak.Header{
		Author:      *author,
		DateCreated: time.Now().Unix(),
		Version:     *version,
	})
	if err != nil {
		return err
	}

	for _, ftc := range filesToCompress {
		f, err := os.Open(ftc)
		if err != nil {
			return err
		}
		err = builder.Add(ftc, f)
		f.Close()
		if err != nil {
			return err
		}
	}

	_, err = builder.WriteTo(dst)
	return err
}

func extractFiles() error {
	src, err := os.Open(*extract)
	if err != nil {
		return err
	}
	defer src.Close()

	archive, err := pak.Open(src)
	if err != nil {
		return err
	}

	for _, entry := range archive.Header().Index {
		r, err := archive.Open(entry.Name)
		if err != nil {
			return err
		}

		if dir := filepath.Dir(entry.Name); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}
		}
		f, err := os.Create(entry.Name)
		if err != nil {
			return err
		}
		_, err = io.Copy(f, r)
		f.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func listFiles() error {
	src, err := os.Open(*list)
	if err != nil {
		return err
	}
	defer src.Close()

	archive, err := pak.Open(src)
	if err != nil {
		return err
	}

	header := archive.Header()
	fmt.Printf("%s, version %d, created %s\n", header.Author, header.Version,
		time.Unix(header.DateCreated, 0).Format(time.RFC1123))
	for _, entry := range header.Index {
		fmt.Printf("%12d %12d %s\n", entry.Size, entry.CompressedSize, entry.Name)
	}
	return nil
}
