package renderer

import (
	glm "github.com/go-gl/mathgl/mgl32"
	log "github.com/sirupsen/logrus"

	"github.com/kestrel3d/kestrel/resource"
)

// WorldState is the global shader state applied to all draws of the
// world renderpass.
type WorldState struct {
	Projection    glm.Mat4
	View          glm.Mat4
	ViewPosition  glm.Vec3
	AmbientColour glm.Vec4
	Mode          int32
}

// UIState is the global shader state applied to all draws of the UI
// renderpass.
type UIState struct {
	Projection glm.Mat4
	View       glm.Mat4
	Mode       int32
}

// New creates a frontend driving the given backend. The backend is not
// initialized yet, call Initialize before anything else.
func New(backend Backend) *Frontend {
	return &Frontend{
		backend: backend,
		world: WorldState{
			Projection:    glm.Ident4(),
			View:          glm.Ident4(),
			AmbientColour: glm.Vec4{1, 1, 1, 1},
		},
		ui: UIState{
			Projection: glm.Ident4(),
			View:       glm.Ident4(),
		},
	}
}

// Frontend drives a Backend through the frame and renderpass lifecycle
// and enforces its ordering rules. All calls must come from a single
// render thread; the frontend does no locking of its own.
type Frontend struct {
	backend Backend

	world WorldState
	ui    UIState

	initialized bool
	frameActive bool
	activePass  RenderpassID

	resizePending bool
	pendingWidth  uint16
	pendingHeight uint16
}

// Initialize initializes the backend. Must be the first call.
func (f *Frontend) Initialize(applicationName string) error {
	if err := f.backend.Initialize(applicationName); err != nil {
		log.WithError(err).Error("renderer backend failed to initialize")
		return err
	}
	f.initialized = true
	return nil
}

// Shutdown shuts the backend down. All resources created through the
// frontend must have been destroyed before the call.
func (f *Frontend) Shutdown() {
	if f.frameActive {
		log.Warn("renderer shutdown requested with a frame still active")
	}
	f.backend.Shutdown()
	f.initialized = false
}

// FrameNumber reports the backend's completed frame count.
func (f *Frontend) FrameNumber() uint64 {
	return f.backend.FrameNumber()
}

// SetWorldState replaces the global state applied during the world pass
// of subsequent frames.
func (f *Frontend) SetWorldState(state WorldState) {
	f.world = state
}

// SetUIState replaces the global state applied during the UI pass of
// subsequent frames.
func (f *Frontend) SetUIState(state UIState) {
	f.ui = state
}

// OnResized reports a surface size change. The backend is only told
// about it outside of an active frame: mid-frame the new size is cached
// and applied right before the next frame begins.
func (f *Frontend) OnResized(width, height uint16) {
	if f.frameActive {
		f.resizePending = true
		f.pendingWidth = width
		f.pendingHeight = height
		return
	}
	f.backend.Resized(width, height)
}

// BeginFrame transitions into an active frame. The boolean follows the
// backend contract: (false, nil) means skip this tick and retry on the
// next one.
func (f *Frontend) BeginFrame(deltaTime float32) (bool, error) {
	if !f.initialized {
		return false, ErrNotInitialized
	}
	if f.frameActive {
		return false, ErrFrameActive
	}
	if f.resizePending {
		f.backend.Resized(f.pendingWidth, f.pendingHeight)
		f.resizePending = false
	}
	ok, err := f.backend.BeginFrame(deltaTime)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	f.frameActive = true
	return true, nil
}

// EndFrame presents the frame and transitions back to idle. Calling it
// without a successful BeginFrame is a caller error.
func (f *Frontend) EndFrame(deltaTime float32) error {
	if !f.frameActive {
		return ErrNoFrameActive
	}
	if f.activePass != 0 {
		log.Errorf("frame ended with renderpass %s still active", f.activePass)
		return ErrPassActive
	}
	f.frameActive = false
	return f.backend.EndFrame(deltaTime)
}

// BeginRenderpass begins the given renderpass. At most one pass may be
// active at a time, nested inside an active frame.
func (f *Frontend) BeginRenderpass(id RenderpassID) error {
	if !f.frameActive {
		return ErrNoFrameActive
	}
	if f.activePass != 0 {
		return ErrPassActive
	}
	if err := f.backend.BeginRenderpass(id); err != nil {
		return err
	}
	f.activePass = id
	return nil
}

// EndRenderpass ends the active renderpass; id must name it exactly.
func (f *Frontend) EndRenderpass(id RenderpassID) error {
	if f.activePass == 0 {
		return ErrNoPassActive
	}
	if f.activePass != id {
		log.Errorf("end of renderpass %s requested while %s is active", id, f.activePass)
		return ErrPassMismatch
	}
	if err := f.backend.EndRenderpass(id); err != nil {
		return err
	}
	f.activePass = 0
	return nil
}

// UpdateGlobalWorldState forwards the world global state to the
// backend. Valid only while the world renderpass is active.
func (f *Frontend) UpdateGlobalWorldState(state WorldState) error {
	if f.activePass != RenderpassWorld {
		return ErrWrongPass
	}
	f.world = state
	f.backend.UpdateGlobalWorldState(state.Projection, state.View, state.ViewPosition, state.AmbientColour, state.Mode)
	return nil
}

// UpdateGlobalUIState forwards the UI global state to the backend.
// Valid only while the UI renderpass is active.
func (f *Frontend) UpdateGlobalUIState(state UIState) error {
	if f.activePass != RenderpassUI {
		return ErrWrongPass
	}
	f.ui = state
	f.backend.UpdateGlobalUIState(state.Projection, state.View, state.Mode)
	return nil
}

// DrawGeometry issues a single draw with the current global state.
// Destroyed or never-created geometry handles are rejected here so they
// never reach a backend.
func (f *Frontend) DrawGeometry(data GeometryRenderData) error {
	if f.activePass == 0 {
		return ErrNoPassActive
	}
	if data.Geometry == nil || data.Geometry.Generation == resource.InvalidGeneration {
		log.Error("draw requested with an invalid geometry handle")
		return ErrInvalidHandle
	}
	f.backend.DrawGeometry(data)
	return nil
}

// DrawFrame runs one whole frame from the given packet: world pass with
// packet.Geometries, then UI pass with packet.UIGeometries. A frame the
// backend asks to skip is not an error, the packet is simply dropped.
func (f *Frontend) DrawFrame(packet *RenderPacket) error {
	ok, err := f.BeginFrame(packet.DeltaTime)
	if err != nil {
		return err
	}
	if !ok {
		// Transient, retry with the next packet.
		return nil
	}

	if err := f.BeginRenderpass(RenderpassWorld); err != nil {
		return err
	}
	f.backend.UpdateGlobalWorldState(f.world.Projection, f.world.View, f.world.ViewPosition, f.world.AmbientColour, f.world.Mode)
	for _, data := range packet.Geometries {
		if err := f.DrawGeometry(data); err != nil {
			return err
		}
	}
	if err := f.EndRenderpass(RenderpassWorld); err != nil {
		return err
	}

	if err := f.BeginRenderpass(RenderpassUI); err != nil {
		return err
	}
	f.backend.UpdateGlobalUIState(f.ui.Projection, f.ui.View, f.ui.Mode)
	for _, data := range packet.UIGeometries {
		if err := f.DrawGeometry(data); err != nil {
			return err
		}
	}
	if err := f.EndRenderpass(RenderpassUI); err != nil {
		return err
	}

	return f.EndFrame(packet.DeltaTime)
}

// CreateTexture uploads pixel data through the backend.
func (f *Frontend) CreateTexture(pixels []uint8, cfg resource.TextureConfig) (*resource.Texture, error) {
	return f.backend.CreateTexture(pixels, cfg)
}

// DestroyTexture releases a texture.
func (f *Frontend) DestroyTexture(t *resource.Texture) {
	f.backend.DestroyTexture(t)
}

// CreateMaterial acquires material resources through the backend.
func (f *Frontend) CreateMaterial(cfg resource.MaterialConfig) (*resource.Material, error) {
	return f.backend.CreateMaterial(cfg)
}

// DestroyMaterial releases a material without touching its textures.
func (f *Frontend) DestroyMaterial(m *resource.Material) {
	f.backend.DestroyMaterial(m)
}

// CreateGeometry uploads geometry buffers through the backend. The zero
// vertex count policy is enforced here as well so that every backend
// behaves identically.
func (f *Frontend) CreateGeometry(cfg resource.GeometryConfig) (*resource.Geometry, error) {
	if cfg.VertexCount == 0 || len(cfg.Vertices) == 0 {
		return nil, ErrNoVertexData
	}
	return f.backend.CreateGeometry(cfg)
}

// DestroyGeometry releases a geometry.
func (f *Frontend) DestroyGeometry(g *resource.Geometry) {
	f.backend.DestroyGeometry(g)
}
