package collada

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	glm "github.com/go-gl/mathgl/mgl32"

	"github.com/kestrel3d/kestrel/asset"
	"github.com/kestrel3d/kestrel/resource"
)

// ImportGeometry reads a Collada document and flattens its first
// geometry into the engine vertex layout. Triangles are emitted
// unindexed, the shared-index schemes Collada uses do not map onto a
// single index buffer.
func ImportGeometry(fileContents []byte) (resource.GeometryConfig, error) {
	var doc Collada
	if err := xml.Unmarshal(fileContents, &doc); err != nil {
		return resource.GeometryConfig{}, err
	}
	if len(doc.Geometries) == 0 {
		return resource.GeometryConfig{}, errors.New("collada: document carries no geometries")
	}

	geometry := doc.Geometries[0]
	mesh := geometry.Mesh

	positions, err := findSource(mesh.Source, "positions")
	if err != nil {
		return resource.GeometryConfig{}, err
	}

	// TEXCOORD is optional, meshes without it get zeroed coordinates.
	texcoords, texErr := findSource(mesh.Source, "map-0")

	stride := 0
	var positionOffset, texcoordOffset uint
	hasTexcoords := false
	for _, input := range mesh.Triangles.Inputs {
		if int(input.Offset) >= stride {
			stride = int(input.Offset) + 1
		}
		switch input.Semantic {
		case "VERTEX":
			positionOffset = input.Offset
		case "TEXCOORD":
			if texErr == nil {
				texcoordOffset = input.Offset
				hasTexcoords = true
			}
		}
	}
	if stride == 0 {
		return resource.GeometryConfig{}, errors.New("collada: triangles carry no inputs")
	}
	if len(mesh.Triangles.Index)%stride != 0 {
		return resource.GeometryConfig{}, fmt.Errorf("collada: index count %d does not divide by stride %d", len(mesh.Triangles.Index), stride)
	}

	var vertices []asset.Vertex
	for idx := 0; idx < len(mesh.Triangles.Index)/stride; idx++ {
		indices := mesh.Triangles.Index[stride*idx : stride*(idx+1)]

		var vert asset.Vertex
		pi := indices[positionOffset]
		if pi < 0 || pi*3+2 >= len(positions.Floats.Data) {
			return resource.GeometryConfig{}, fmt.Errorf("collada: position index %d out of range", pi)
		}
		vert.Pos = glm.Vec3{
			positions.Floats.Data[pi*3],
			positions.Floats.Data[pi*3+1],
			positions.Floats.Data[pi*3+2],
		}
		if hasTexcoords {
			ti := indices[texcoordOffset]
			if ti < 0 || ti*2+1 >= len(texcoords.Floats.Data) {
				return resource.GeometryConfig{}, fmt.Errorf("collada: texcoord index %d out of range", ti)
			}
			vert.TexCoord = glm.Vec2{
				texcoords.Floats.Data[ti*2],
				texcoords.Floats.Data[ti*2+1],
			}
		}
		vertices = append(vertices, vert)
	}

	name := geometry.Name
	if name == "" {
		name = geometry.ID
	}
	return asset.NewGeometryConfig(name, vertices, nil), nil
}

func findSource(sources []Source, dataType string) (Source, error) {
	for _, s := range sources {
		if strings.HasSuffix(s.ID, fmt.Sprintf("-%s", dataType)) {
			return s, nil
		}
	}
	return Source{}, fmt.Errorf("collada: source type %s not found", dataType)
}
