package renderer

import (
	glm "github.com/go-gl/mathgl/mgl32"

	"github.com/kestrel3d/kestrel/resource"
)

// RenderpassID identifies a logical rendering phase. The values are bit
// flags so that future phases can be combined; only two are defined.
type RenderpassID uint8

// Built-in renderpasses.
const (
	// RenderpassWorld is the phase that renders world geometry.
	RenderpassWorld RenderpassID = 0x01

	// RenderpassUI is the phase that renders the UI overlay, by
	// convention after the world pass.
	RenderpassUI RenderpassID = 0x02
)

func (id RenderpassID) String() string {
	switch id {
	case RenderpassWorld:
		return "world"
	case RenderpassUI:
		return "ui"
	default:
		return "unknown"
	}
}

// GeometryRenderData is a single draw instruction: a model transform
// paired with a non-owning reference to the geometry to draw with it.
type GeometryRenderData struct {
	Model    glm.Mat4
	Geometry *resource.Geometry
}

// RenderPacket is the per-frame bundle of draw instructions handed from
// the frontend to a backend. It is caller-owned and transient: the
// slices are read-only for the duration of one frame's draw calls and
// backends must not retain references into them past EndFrame.
type RenderPacket struct {
	DeltaTime float32

	Geometries   []GeometryRenderData
	UIGeometries []GeometryRenderData
}
