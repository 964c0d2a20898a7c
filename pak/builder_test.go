// Copyright (c) 2019 kestrel3d
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package pak

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestAddAndWrite(t *testing.T) {
	builder, err := NewBuilder(Header{
		Author:      "kestrel3d",
		DateCreated: time.Now().Unix(),
		Version:     1,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := builder.Add("test", strings.NewReader("idunvovkjnreovmegihjbrqlkmfrjnb")); err != nil {
		t.Error(err)
	}
	if err := builder.Add("test2", strings.NewReader("idunvovkjnreovmsdvwrvnervnreegihjbrqlkmfrjnb")); err != nil {
		t.Error(err)
	}

	if len(builder.files) != 2 {
		t.Error("incorrect number of files present")
	}

	buf := bytes.NewBuffer([]byte{})
	num, err := builder.WriteTo(buf)
	if err != nil {
		t.Error(err)
	}
	t.Logf("written %d \n", num)

	if len(builder.files) != 0 {
		t.Error("builder not drained after WriteTo")
	}
}

func TestOffsetsAreContiguous(t *testing.T) {
	builder, err := NewBuilder(Header{Author: "kestrel3d", Version: 1})
	if err != nil {
		t.Fatal(err)
	}
	builder.Add("a", strings.NewReader(strings.Repeat("a", 512)))
	builder.Add("b", strings.NewReader(strings.Repeat("b", 512)))

	buf := bytes.NewBuffer([]byte{})
	if _, err := builder.WriteTo(buf); err != nil {
		t.Fatal(err)
	}

	ar, err := Open(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	index := ar.Header().Index
	if index[0].Offset != 0 {
		t.Errorf("first offset: got %d, want 0", index[0].Offset)
	}
	if index[1].Offset != index[0].CompressedSize {
		t.Errorf("second offset %d does not follow first file of %d bytes", index[1].Offset, index[0].CompressedSize)
	}
}
