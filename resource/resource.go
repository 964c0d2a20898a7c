// Package resource defines the opaque GPU resource handles shared between
// the rendering frontend and the backends: textures, materials and
// geometries. Handles are created and owned by a backend; everything else
// only holds references to them. The raw pixel and vertex data a handle is
// created from always stays with the caller, backends copy or upload it.
package resource

import (
	glm "github.com/go-gl/mathgl/mgl32"
)

// InvalidID marks a handle or internal slot that does not refer
// to a live resource.
const InvalidID = ^uint32(0)

// InvalidGeneration marks a resource that has never been uploaded.
const InvalidGeneration = ^uint32(0)

// Texture is an opaque handle to a GPU image. The backend owns the
// GPU-side resources reachable through Internal; the struct itself is
// owned by whoever asked for its creation.
type Texture struct {
	ID           uint32
	Generation   uint32
	Width        uint32
	Height       uint32
	ChannelCount uint8

	HasTransparency bool
	Name            string

	// Internal is backend specific data, populated on creation
	// and released on destruction. Not for frontend use.
	Internal interface{}
}

// TextureConfig carries everything needed to create a Texture besides
// the pixel buffer itself. Dimensions and format are assumed to be
// validated by the asset pipeline before they get here.
type TextureConfig struct {
	Name            string
	Width           uint32
	Height          uint32
	ChannelCount    uint8
	HasTransparency bool
}

// Material is an opaque handle bundling shader parameters with the
// textures they sample from. A material references its textures without
// owning them, the same texture may be shared by any number of materials.
type Material struct {
	ID         uint32
	Generation uint32

	// InternalID maps to backend-side per-material state.
	InternalID uint32

	Name          string
	DiffuseColour glm.Vec4
	DiffuseMap    *Texture
}

// MaterialConfig describes a material to be created.
type MaterialConfig struct {
	Name          string
	DiffuseColour glm.Vec4
	DiffuseMap    *Texture
}

// Geometry is an opaque handle to GPU-resident vertex and index buffers.
// Valid for drawing only between a successful create and the matching
// destroy.
type Geometry struct {
	ID         uint32
	InternalID uint32
	Generation uint32

	Name     string
	Material *Material
}

// GeometryConfig carries the raw buffers for a geometry upload. Vertices
// and Indices are caller-owned byte ranges with caller-declared element
// sizes and counts; the backend uploads both in one atomic operation.
type GeometryConfig struct {
	Name string

	VertexSize  uint32
	VertexCount uint32
	Vertices    []byte

	IndexSize  uint32
	IndexCount uint32
	Indices    []byte
}
