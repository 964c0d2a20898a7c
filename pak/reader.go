// Copyright (c) 2019 kestrel3d
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package pak

import (
	"bytes"
	"io"
	"io/ioutil"

	"github.com/pierrec/lz4"
)

// Open opens the pak archive from r. It will also check
// if the file is actually a pak archive, will return an error
// when file incorrect.
func Open(r io.ReaderAt) (*Archive, error) {
	ar := Archive{
		reader: r,
	}

	magicBytes := make([]byte, MagicLength)
	if num, err := r.ReadAt(magicBytes, 0); err != nil {
		return nil, err
	} else if num < MagicLength || !bytes.Equal(magicBytes, magic[:]) {
		return nil, ErrFileFormat
	}

	headerSizeBytes := make([]byte, HeaderSizeNumberLength)
	if num, err := r.ReadAt(headerSizeBytes, MagicLength); err != nil {
		return nil, err
	} else if num < HeaderSizeNumberLength {
		return nil, ErrFileFormat
	}

	headerSize, err := binaryToInt64(headerSizeBytes)
	if err != nil {
		return nil, ErrFileFormat
	}

	headerBytes := make([]byte, headerSize)
	if num, err := r.ReadAt(headerBytes, MagicLength+HeaderSizeNumberLength); err != nil {
		return nil, err
	} else if int64(num) < headerSize {
		return nil, ErrFileFormat
	}

	if err := gobDecode(&ar.header, headerBytes); err != nil {
		return nil, ErrFileFormat
	}
	ar.dataStart = MagicLength + HeaderSizeNumberLength + headerSize

	return &ar, nil
}

// Archive provides concurrent io for a pak file, and can provide
// an io.Reader for each file separately to perform actions on.
type Archive struct {
	reader    io.ReaderAt
	header    Header
	dataStart int64
}

// Header returns the decoded archive header.
func (a *Archive) Header() Header {
	return a.header
}

// Open returns a Reader for a file in the Archive. Readers are
// independent, any number of them can be open at once.
func (a *Archive) Open(name string) (*Reader, error) {
	for _, entry := range a.header.Index {
		if entry.Name == name {
			section := io.NewSectionReader(a.reader, a.dataStart+entry.Offset, entry.CompressedSize)
			return &Reader{
				decoder: lz4.NewReader(section),
				size:    entry.Size,
			}, nil
		}
	}
	return nil, ErrNotFound
}

// ReadAll returns the entire contents of a file with a given name
func (a *Archive) ReadAll(name string) ([]byte, error) {
	r, err := a.Open(name)
	if err != nil {
		return nil, err
	}
	return ioutil.ReadAll(r)
}

// Reader is a reader for a single file in an Archive.
// Abstracts away the location that needs to be known.
type Reader struct {
	decoder io.Reader
	size    int64
}

// Size returns the decompressed size of the file.
func (r *Reader) Size() int64 {
	return r.size
}

// Read reads already decompressed data
func (r *Reader) Read(p []byte) (n int, err error) {
	return r.decoder.Read(p)
}
