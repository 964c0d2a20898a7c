// Package renderer defines the contract between the graphics-agnostic
// rendering frontend and the swappable graphics backends. The frontend
// is written once against the Backend interface and drives it through a
// strict frame/renderpass lifecycle; a concrete backend (Vulkan,
// headless, ...) decides how GPU commands are actually issued, the
// contract here only decides when it may be called, in what order, and
// what each call must guarantee.
package renderer

import (
	"errors"

	glm "github.com/go-gl/mathgl/mgl32"

	"github.com/kestrel3d/kestrel/resource"
)

// BackendType selects a concrete Backend implementation at startup.
type BackendType int

// Known backend types.
const (
	BackendVulkan BackendType = iota
	BackendHeadless
)

func (t BackendType) String() string {
	switch t {
	case BackendVulkan:
		return "vulkan"
	case BackendHeadless:
		return "headless"
	default:
		return "unknown"
	}
}

// Contract violation errors. These indicate caller bugs, not conditions
// to recover from; the frontend surfaces them so misuse is detectable.
var (
	ErrNotInitialized = errors.New("renderer: backend not initialized")
	ErrFrameActive    = errors.New("renderer: a frame is already active")
	ErrNoFrameActive  = errors.New("renderer: no frame is active")
	ErrPassActive     = errors.New("renderer: a renderpass is already active")
	ErrNoPassActive   = errors.New("renderer: no renderpass is active")
	ErrPassMismatch   = errors.New("renderer: renderpass id does not match the active pass")
	ErrWrongPass      = errors.New("renderer: global state does not belong to the active renderpass")
	ErrNoVertexData   = errors.New("renderer: geometry requires vertex data")
	ErrInvalidHandle  = errors.New("renderer: resource handle is not valid")
)

// Backend is the full set of operations every graphics API binding must
// implement. One instance exists per process; it exclusively owns the
// underlying device/context and is not safe for concurrent calls, the
// caller serializes everything onto a single render thread.
type Backend interface {

	// Initialize allocates all device-level resources. It must be the
	// first call made on a backend; calling it twice without a Shutdown
	// in between is undefined. Failure is reported once and leaves the
	// backend unusable, it is not retried.
	Initialize(applicationName string) error

	// Shutdown releases all device-level resources. All textures,
	// materials and geometries created through this backend must have
	// been destroyed before the call.
	Shutdown()

	// Resized notifies the backend of a surface size change. Must not
	// be called between BeginFrame and EndFrame.
	Resized(width, height uint16)

	// BeginFrame performs setup required at the start of a frame.
	// A (false, nil) result is not an error: the backend is transiently
	// unable to render this tick (a swapchain resize in flight, for
	// example) and the caller must skip the rest of the frame, without
	// calling EndFrame, and try again next tick.
	BeginFrame(deltaTime float32) (bool, error)

	// EndFrame performs presentation and increments the frame number.
	// Only valid after a successful BeginFrame.
	EndFrame(deltaTime float32) error

	// FrameNumber reports the number of completed frames. It increases
	// by exactly one per successful BeginFrame/EndFrame pair and is
	// unchanged by skipped frames.
	FrameNumber() uint64

	// BeginRenderpass begins the renderpass with the given id. Only
	// valid inside a frame while no other pass is active.
	BeginRenderpass(id RenderpassID) error

	// EndRenderpass ends the currently active renderpass; id must match
	// the pass that was begun.
	EndRenderpass(id RenderpassID) error

	// UpdateGlobalWorldState sets the projection and view matrices, the
	// view position, the ambient colour and the render mode used by all
	// subsequent draws of the world renderpass. Only valid while the
	// world pass is active.
	UpdateGlobalWorldState(projection, view glm.Mat4, viewPosition glm.Vec3, ambientColour glm.Vec4, mode int32)

	// UpdateGlobalUIState is the UI pass counterpart of
	// UpdateGlobalWorldState.
	UpdateGlobalUIState(projection, view glm.Mat4, mode int32)

	// DrawGeometry draws the given geometry with the current global
	// state. Only valid while a renderpass is active. An invalid
	// geometry handle is a programming error, not a recoverable
	// condition.
	DrawGeometry(data GeometryRenderData)

	// CreateTexture uploads pixel data and returns an owned texture
	// handle. It fails only on unrecoverable device errors.
	CreateTexture(pixels []uint8, cfg resource.TextureConfig) (*resource.Texture, error)

	// DestroyTexture releases the texture's backend resources. Not
	// idempotent, destroying a handle twice is undefined.
	DestroyTexture(t *resource.Texture)

	// CreateMaterial acquires per-material backend resources. It may
	// fail recoverably and is atomic on failure: no partial resource is
	// left behind.
	CreateMaterial(cfg resource.MaterialConfig) (*resource.Material, error)

	// DestroyMaterial releases the material's backend resources. It is
	// unconditional and never touches the textures the material
	// references, those are separately owned and may be shared.
	DestroyMaterial(m *resource.Material)

	// CreateGeometry uploads the vertex and index buffers as one atomic
	// operation and returns an owned geometry handle. On failure no
	// GPU-side allocation remains. A zero vertex count is rejected with
	// ErrNoVertexData; a zero index count is legal and produces a
	// geometry that draws non-indexed.
	CreateGeometry(cfg resource.GeometryConfig) (*resource.Geometry, error)

	// DestroyGeometry releases the geometry's backend resources.
	DestroyGeometry(g *resource.Geometry)
}
