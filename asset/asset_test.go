package asset

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	glm "github.com/go-gl/mathgl/mgl32"
)

func TestVertexBytesLayout(t *testing.T) {
	vertices := []Vertex{
		{Pos: glm.Vec3{1, 2, 3}, TexCoord: glm.Vec2{4, 5}},
	}
	raw := VertexBytes(vertices)
	if len(raw) != 20 {
		t.Fatalf("vertex byte length: got %d, want 20", len(raw))
	}

	for idx, want := range []float32{1, 2, 3, 4, 5} {
		got := math.Float32frombits(binary.LittleEndian.Uint32(raw[idx*4:]))
		if got != want {
			t.Errorf("float %d: got %f, want %f", idx, got, want)
		}
	}
}

func TestIndexBytes(t *testing.T) {
	raw := IndexBytes([]uint32{7, 8, 9})
	if len(raw) != 12 {
		t.Fatalf("index byte length: got %d, want 12", len(raw))
	}
	if got := binary.LittleEndian.Uint32(raw[4:]); got != 8 {
		t.Errorf("second index: got %d, want 8", got)
	}
}

func TestNewGeometryConfig(t *testing.T) {
	vertices := []Vertex{{}, {}, {}}
	cfg := NewGeometryConfig("triangle", vertices, []uint32{0, 1, 2})

	if cfg.Name != "triangle" {
		t.Errorf("name: got %q", cfg.Name)
	}
	if cfg.VertexCount != 3 || cfg.VertexSize != 20 {
		t.Errorf("vertex dimensions: got count %d size %d", cfg.VertexCount, cfg.VertexSize)
	}
	if cfg.IndexCount != 3 || cfg.IndexSize != 4 {
		t.Errorf("index dimensions: got count %d size %d", cfg.IndexCount, cfg.IndexSize)
	}
	if len(cfg.Vertices) != 60 || len(cfg.Indices) != 12 {
		t.Errorf("buffer lengths: vertices %d indices %d", len(cfg.Vertices), len(cfg.Indices))
	}
}

func TestNewGeometryConfigWithoutIndices(t *testing.T) {
	cfg := NewGeometryConfig("cloud", []Vertex{{}, {}, {}}, nil)
	if cfg.IndexCount != 0 || len(cfg.Indices) != 0 {
		t.Error("indexless geometry carries index data")
	}
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDecodeImage(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			src.Set(x, y, color.RGBA{R: 0x10, G: 0x20, B: 0x30, A: 0xff})
		}
	}

	decoded, err := DecodeImage("flat", bytes.NewReader(encodePNG(t, src)))
	if err != nil {
		t.Fatal(err)
	}

	if decoded.Config.Width != 4 || decoded.Config.Height != 2 {
		t.Errorf("dimensions: got %dx%d", decoded.Config.Width, decoded.Config.Height)
	}
	if decoded.Config.ChannelCount != 4 {
		t.Errorf("channel count: got %d", decoded.Config.ChannelCount)
	}
	if decoded.Config.HasTransparency {
		t.Error("opaque image reported as transparent")
	}
	if len(decoded.Pixels) != 4*2*4 {
		t.Errorf("pixel buffer length: got %d", len(decoded.Pixels))
	}
	if decoded.Pixels[0] != 0x10 || decoded.Pixels[1] != 0x20 || decoded.Pixels[2] != 0x30 {
		t.Errorf("first pixel: got %v", decoded.Pixels[:4])
	}
}

func TestDecodeImageTransparency(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	src.Set(0, 0, color.RGBA{A: 0x80})

	decoded, err := DecodeImage("holey", bytes.NewReader(encodePNG(t, src)))
	if err != nil {
		t.Fatal(err)
	}
	if !decoded.Config.HasTransparency {
		t.Error("transparent image reported as opaque")
	}
}

func TestDecodeImageRejectsGarbage(t *testing.T) {
	if _, err := DecodeImage("noise", bytes.NewReader([]byte("definitely not an image"))); err == nil {
		t.Error("garbage decoded without error")
	}
}
