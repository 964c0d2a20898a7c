// Copyright (c) 2019 kestrel3d
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package pak_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/kestrel3d/kestrel/pak"
)

var (
	testString1 = "idunvovkjnreovmegihjbrqlkmfrjnb"
	testString2 = "idunvovkjnreovmsdvwrvnervnreegihjbrqlkmfrjnb"
)

func buildTestArchive(t *testing.T) []byte {
	t.Helper()
	builder, err := pak.NewBuilder(pak.Header{
		Author:      "kestrel3d",
		DateCreated: time.Now().Unix(),
		Version:     1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := builder.Add("test", strings.NewReader(testString1)); err != nil {
		t.Fatal(err)
	}
	if err := builder.Add("test2", strings.NewReader(testString2)); err != nil {
		t.Fatal(err)
	}

	buf := bytes.NewBuffer([]byte{})
	written, err := builder.WriteTo(buf)
	if err != nil {
		t.Fatal(err)
	}
	if written != int64(buf.Len()) {
		t.Errorf("reported %d written bytes, buffer has %d", written, buf.Len())
	}
	return buf.Bytes()
}

func TestCreateAndRead(t *testing.T) {
	ar, err := pak.Open(bytes.NewReader(buildTestArchive(t)))
	if err != nil {
		t.Fatal(err)
	}

	f, err := ar.Open("test")
	if err != nil {
		t.Fatal(err)
	}
	if f.Size() != int64(len(testString1)) {
		t.Errorf("size: got %d, want %d", f.Size(), len(testString1))
	}

	result := make([]byte, len(testString1))
	if _, err := f.Read(result); err != nil {
		t.Error(err)
	}
	if strings.Compare(string(result), testString1) != 0 {
		t.Error("test string does not match up")
	}
}

func TestCreateAndReadAll(t *testing.T) {
	ar, err := pak.Open(bytes.NewReader(buildTestArchive(t)))
	if err != nil {
		t.Fatal(err)
	}

	for name, expected := range map[string]string{
		"test":  testString1,
		"test2": testString2,
	} {
		f, err := ar.ReadAll(name)
		if err != nil {
			t.Error(err)
			continue
		}
		if strings.Compare(string(f), expected) != 0 {
			t.Errorf("%s: content does not match up", name)
		}
	}
}

func TestOpenRejectsGarbage(t *testing.T) {
	if _, err := pak.Open(bytes.NewReader([]byte("not an archive at all"))); err == nil {
		t.Error("garbage input opened without error")
	}
}

func TestOpenMissingFile(t *testing.T) {
	ar, err := pak.Open(bytes.NewReader(buildTestArchive(t)))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ar.Open("no-such-file"); err != pak.ErrNotFound {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestHeaderSurvivesRoundTrip(t *testing.T) {
	ar, err := pak.Open(bytes.NewReader(buildTestArchive(t)))
	if err != nil {
		t.Fatal(err)
	}
	header := ar.Header()
	if header.Author != "kestrel3d" {
		t.Errorf("author: got %q", header.Author)
	}
	if header.Version != 1 {
		t.Errorf("version: got %d", header.Version)
	}
	if len(header.Index) != 2 {
		t.Errorf("index length: got %d, want 2", len(header.Index))
	}
}
