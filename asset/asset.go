// Package asset prepares CPU-side data for upload through the renderer:
// vertex layouts, decoded images and geometry buffers. Nothing in here
// touches the GPU.
package asset

import (
	"image"
	"image/draw"
	"io"
	"unsafe"

	glm "github.com/go-gl/mathgl/mgl32"
	vk "github.com/vulkan-go/vulkan"

	// Extra image codecs beyond the stdlib png and jpeg.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "image/jpeg"
	_ "image/png"

	"github.com/kestrel3d/kestrel/resource"
)

// Vertex is the vertex layout every pipeline consumes.
type Vertex struct {
	Pos      glm.Vec3
	TexCoord glm.Vec2
}

// VertexBindingDescriptions return Vulkan vertex binding descriptors.
func VertexBindingDescriptions() []vk.VertexInputBindingDescription {
	return []vk.VertexInputBindingDescription{{
		Binding:   0,
		Stride:    uint32(unsafe.Sizeof(Vertex{})),
		InputRate: vk.VertexInputRateVertex,
	}}
}

// VertexAttributeDescriptions return Vulkan attribute descriptors.
func VertexAttributeDescriptions() []vk.VertexInputAttributeDescription {
	return []vk.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   vk.FormatR32g32b32Sfloat,
			Offset:   uint32(unsafe.Offsetof(Vertex{}.Pos)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   vk.FormatR32g32Sfloat,
			Offset:   uint32(unsafe.Offsetof(Vertex{}.TexCoord)),
		},
	}
}

type sliceHeader struct {
	Data uintptr
	Len  int
	Cap  int
}

// VertexBytes reslices vertices into the byte view a geometry upload
// takes. The returned slice aliases the input.
func VertexBytes(vertices []Vertex) []byte {
	size := int(unsafe.Sizeof(Vertex{}))
	header := sliceHeader{
		Data: (*sliceHeader)(unsafe.Pointer(&vertices)).Data,
		Len:  len(vertices) * size,
		Cap:  len(vertices) * size,
	}
	return *(*[]byte)(unsafe.Pointer(&header))
}

// IndexBytes reslices indices into their byte view. The returned slice
// aliases the input.
func IndexBytes(indices []uint32) []byte {
	header := sliceHeader{
		Data: (*sliceHeader)(unsafe.Pointer(&indices)).Data,
		Len:  len(indices) * 4,
		Cap:  len(indices) * 4,
	}
	return *(*[]byte)(unsafe.Pointer(&header))
}

// NewGeometryConfig assembles an upload-ready geometry description from
// typed vertex and index slices. Indices may be empty for a non-indexed
// draw.
func NewGeometryConfig(name string, vertices []Vertex, indices []uint32) resource.GeometryConfig {
	cfg := resource.GeometryConfig{
		Name:        name,
		VertexSize:  uint32(unsafe.Sizeof(Vertex{})),
		VertexCount: uint32(len(vertices)),
		Vertices:    VertexBytes(vertices),
	}
	if len(indices) > 0 {
		cfg.IndexSize = 4
		cfg.IndexCount = uint32(len(indices))
		cfg.Indices = IndexBytes(indices)
	}
	return cfg
}

// Image is a decoded texture: tightly packed RGBA pixels plus the
// configuration a backend needs to create it.
type Image struct {
	Pixels []uint8
	Config resource.TextureConfig
}

// DecodeImage reads any registered image format and converts it to the
// RGBA arrangement textures are uploaded in.
func DecodeImage(name string, r io.Reader) (*Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	pixels, err := GetPixels(img, 4*bounds.Dx())
	if err != nil {
		return nil, err
	}

	return &Image{
		Pixels: pixels,
		Config: resource.TextureConfig{
			Name:            name,
			Width:           uint32(bounds.Dx()),
			Height:          uint32(bounds.Dy()),
			ChannelCount:    4,
			HasTransparency: hasTransparency(pixels),
		},
	}, nil
}

// GetPixels transforms a given image into right arrangement of pixels
// by drawing the decoded image onto a controlled RGBA canvas
func GetPixels(img image.Image, rowPitch int) ([]uint8, error) {
	newImg := image.NewRGBA(img.Bounds())
	if rowPitch <= 4*img.Bounds().Dy() {
		// apply the proposed row pitch only if supported,
		// as we're using only optimal textures.
		newImg.Stride = rowPitch
	}
	draw.Draw(newImg, newImg.Bounds(), img, image.ZP, draw.Src)
	return newImg.Pix, nil
}

func hasTransparency(pixels []uint8) bool {
	for idx := 3; idx < len(pixels); idx += 4 {
		if pixels[idx] < 0xff {
			return true
		}
	}
	return false
}
