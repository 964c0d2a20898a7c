// Copyright (c) 2019 kestrel3d
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package pak is an api for an lz4 backed archive format. Its purpose
// is to be well suited for streaming resources out of it. It is designed
// to be memory mapped, so (unlike tar) it knows where all the files are
// located before they're read. The archive itself is not compressed in
// any form, rather every file is individually compressed, so it can be
// read from its place and decompressed on the fly. This somewhat
// compromises space efficiency, which is not the goal of this package:
// it focuses on getting resources from disk to a usable state as fast
// as possible. It can be read from concurrently.
package pak

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
)

// package errors
var (
	ErrFileFormat = errors.New("corrupted or not a pak archive")
	ErrTempFail   = errors.New("temporary folder or file operation failed")
	ErrNotFound   = errors.New("no file with that name in the archive")
)

// Sizes relevant to the header of file
const (
	MagicLength            = 4
	HeaderSizeNumberLength = 8
)

var magic = [MagicLength]byte{'K', 'P', 'A', 'K'}

// IndexEntry is info for one file in the file index. Offset is relative
// to the end of the header, so the header does not need to know its own
// size while being built.
type IndexEntry struct {
	Name           string
	Offset         int64
	Size           int64
	CompressedSize int64
}

// Header is the file header for pak files.
type Header struct {
	Author      string
	DateCreated int64
	Version     int64
	Index       []IndexEntry
}

func int64ToBinary(num int64) []byte {
	buf := make([]byte, HeaderSizeNumberLength)
	binary.LittleEndian.PutUint64(buf, uint64(num))
	return buf
}

func binaryToInt64(bts []byte) (int64, error) {
	if len(bts) < HeaderSizeNumberLength {
		return 0, ErrFileFormat
	}
	return int64(binary.LittleEndian.Uint64(bts)), nil
}

func gobEncode(data interface{}) ([]byte, error) {
	var encoded bytes.Buffer
	enc := gob.NewEncoder(&encoded)
	if err := enc.Encode(data); err != nil {
		return nil, err
	}
	return encoded.Bytes(), nil
}

func gobDecode(obj interface{}, bts []byte) error {
	dec := gob.NewDecoder(bytes.NewBuffer(bts))
	if err := dec.Decode(obj); err != nil {
		return err
	}
	return nil
}
