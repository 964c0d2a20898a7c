// Package headless implements the renderer backend contract without a
// GPU. It keeps the full frame/renderpass state machine and resource
// bookkeeping but issues no device commands, which makes it the backend
// of choice for tests, CI and servers without a display.
package headless

import (
	"fmt"

	glm "github.com/go-gl/mathgl/mgl32"
	log "github.com/sirupsen/logrus"

	"github.com/kestrel3d/kestrel/renderer"
	"github.com/kestrel3d/kestrel/resource"
)

// Default resource pool sizes, same limits the Vulkan backend uses.
const (
	DefaultMaxTextures   = 1024
	DefaultMaxMaterials  = 1024
	DefaultMaxGeometries = 4096
)

// Config bounds the backend's resource pools. Zero values fall back to
// the defaults.
type Config struct {
	MaxTextures   uint32
	MaxMaterials  uint32
	MaxGeometries uint32
}

// New creates an uninitialized headless backend.
func New(cfg Config) *Backend {
	if cfg.MaxTextures == 0 {
		cfg.MaxTextures = DefaultMaxTextures
	}
	if cfg.MaxMaterials == 0 {
		cfg.MaxMaterials = DefaultMaxMaterials
	}
	if cfg.MaxGeometries == 0 {
		cfg.MaxGeometries = DefaultMaxGeometries
	}
	return &Backend{configuration: cfg}
}

// Backend is a headless renderer.Backend. Besides the contract itself
// it records what happened to it (draw counts, global state, surface
// size) so tests can assert against the record.
type Backend struct {
	configuration Config

	initialized bool
	frameActive bool
	activePass  renderer.RenderpassID
	frameNumber uint64

	width  uint16
	height uint16

	// skipFrames makes the next n BeginFrame calls report a transient
	// inability to render, mimicking a swapchain resize in flight.
	skipFrames int

	textures   map[uint32]*resource.Texture
	materials  map[uint32]*resource.Material
	geometries map[uint32]*resource.Geometry
	nextID     uint32

	worldState renderer.WorldState
	uiState    renderer.UIState

	worldDraws uint64
	uiDraws    uint64
}

// Initialize implements renderer.Backend.
func (b *Backend) Initialize(applicationName string) error {
	if b.initialized {
		return fmt.Errorf("headless: initialize called twice for %s", applicationName)
	}
	b.textures = make(map[uint32]*resource.Texture)
	b.materials = make(map[uint32]*resource.Material)
	b.geometries = make(map[uint32]*resource.Geometry)
	b.initialized = true
	log.Debugf("headless renderer initialized for %s", applicationName)
	return nil
}

// Shutdown implements renderer.Backend.
func (b *Backend) Shutdown() {
	if len(b.textures)+len(b.materials)+len(b.geometries) > 0 {
		log.Warnf("headless renderer shut down with %d textures, %d materials, %d geometries alive",
			len(b.textures), len(b.materials), len(b.geometries))
	}
	b.textures = nil
	b.materials = nil
	b.geometries = nil
	b.initialized = false
}

// Resized implements renderer.Backend.
func (b *Backend) Resized(width, height uint16) {
	if b.frameActive {
		log.Error("headless renderer resized during an active frame")
		return
	}
	b.width = width
	b.height = height
}

// BeginFrame implements renderer.Backend.
func (b *Backend) BeginFrame(deltaTime float32) (bool, error) {
	if !b.initialized {
		return false, renderer.ErrNotInitialized
	}
	if b.frameActive {
		return false, renderer.ErrFrameActive
	}
	if b.skipFrames > 0 {
		b.skipFrames--
		return false, nil
	}
	b.frameActive = true
	return true, nil
}

// EndFrame implements renderer.Backend.
func (b *Backend) EndFrame(deltaTime float32) error {
	if !b.frameActive {
		return renderer.ErrNoFrameActive
	}
	if b.activePass != 0 {
		return renderer.ErrPassActive
	}
	b.frameActive = false
	b.frameNumber++
	return nil
}

// FrameNumber implements renderer.Backend.
func (b *Backend) FrameNumber() uint64 {
	return b.frameNumber
}

// BeginRenderpass implements renderer.Backend.
func (b *Backend) BeginRenderpass(id renderer.RenderpassID) error {
	if !b.frameActive {
		return renderer.ErrNoFrameActive
	}
	if b.activePass != 0 {
		return renderer.ErrPassActive
	}
	b.activePass = id
	return nil
}

// EndRenderpass implements renderer.Backend.
func (b *Backend) EndRenderpass(id renderer.RenderpassID) error {
	if b.activePass == 0 {
		return renderer.ErrNoPassActive
	}
	if b.activePass != id {
		return renderer.ErrPassMismatch
	}
	b.activePass = 0
	return nil
}

// UpdateGlobalWorldState implements renderer.Backend.
func (b *Backend) UpdateGlobalWorldState(projection, view glm.Mat4, viewPosition glm.Vec3, ambientColour glm.Vec4, mode int32) {
	if b.activePass != renderer.RenderpassWorld {
		log.Error("world state update outside the world renderpass")
		return
	}
	b.worldState = renderer.WorldState{
		Projection:    projection,
		View:          view,
		ViewPosition:  viewPosition,
		AmbientColour: ambientColour,
		Mode:          mode,
	}
}

// UpdateGlobalUIState implements renderer.Backend.
func (b *Backend) UpdateGlobalUIState(projection, view glm.Mat4, mode int32) {
	if b.activePass != renderer.RenderpassUI {
		log.Error("ui state update outside the ui renderpass")
		return
	}
	b.uiState = renderer.UIState{
		Projection: projection,
		View:       view,
		Mode:       mode,
	}
}

// DrawGeometry implements renderer.Backend.
func (b *Backend) DrawGeometry(data renderer.GeometryRenderData) {
	if b.activePass == 0 {
		log.Error("draw outside of a renderpass")
		return
	}
	if data.Geometry == nil {
		log.Error("draw with a nil geometry handle")
		return
	}
	if _, ok := b.geometries[data.Geometry.ID]; !ok {
		log.Errorf("draw with a destroyed or unknown geometry handle %d", data.Geometry.ID)
		return
	}
	switch b.activePass {
	case renderer.RenderpassWorld:
		b.worldDraws++
	case renderer.RenderpassUI:
		b.uiDraws++
	}
}

// CreateTexture implements renderer.Backend.
func (b *Backend) CreateTexture(pixels []uint8, cfg resource.TextureConfig) (*resource.Texture, error) {
	if !b.initialized {
		return nil, renderer.ErrNotInitialized
	}
	if uint32(len(b.textures)) >= b.configuration.MaxTextures {
		return nil, fmt.Errorf("headless: texture pool exhausted (%d)", b.configuration.MaxTextures)
	}
	t := &resource.Texture{
		ID:              b.allocID(),
		Generation:      0,
		Width:           cfg.Width,
		Height:          cfg.Height,
		ChannelCount:    cfg.ChannelCount,
		HasTransparency: cfg.HasTransparency,
		Name:            cfg.Name,
	}
	b.textures[t.ID] = t
	return t, nil
}

// DestroyTexture implements renderer.Backend.
func (b *Backend) DestroyTexture(t *resource.Texture) {
	if t == nil {
		return
	}
	if _, ok := b.textures[t.ID]; !ok {
		log.Errorf("double destroy of texture %d", t.ID)
		return
	}
	delete(b.textures, t.ID)
	t.Generation = resource.InvalidGeneration
	t.Internal = nil
}

// CreateMaterial implements renderer.Backend.
func (b *Backend) CreateMaterial(cfg resource.MaterialConfig) (*resource.Material, error) {
	if !b.initialized {
		return nil, renderer.ErrNotInitialized
	}
	if uint32(len(b.materials)) >= b.configuration.MaxMaterials {
		return nil, fmt.Errorf("headless: material pool exhausted (%d)", b.configuration.MaxMaterials)
	}
	m := &resource.Material{
		ID:            b.allocID(),
		Generation:    0,
		InternalID:    uint32(len(b.materials)),
		Name:          cfg.Name,
		DiffuseColour: cfg.DiffuseColour,
		DiffuseMap:    cfg.DiffuseMap,
	}
	b.materials[m.ID] = m
	return m, nil
}

// DestroyMaterial implements renderer.Backend. The referenced textures
// are left alone, whatever state they are in.
func (b *Backend) DestroyMaterial(m *resource.Material) {
	if m == nil {
		return
	}
	if _, ok := b.materials[m.ID]; !ok {
		log.Errorf("double destroy of material %d", m.ID)
		return
	}
	delete(b.materials, m.ID)
	m.Generation = resource.InvalidGeneration
	m.InternalID = resource.InvalidID
	m.DiffuseMap = nil
}

// CreateGeometry implements renderer.Backend.
func (b *Backend) CreateGeometry(cfg resource.GeometryConfig) (*resource.Geometry, error) {
	if !b.initialized {
		return nil, renderer.ErrNotInitialized
	}
	if cfg.VertexCount == 0 || len(cfg.Vertices) == 0 {
		return nil, renderer.ErrNoVertexData
	}
	if uint32(len(b.geometries)) >= b.configuration.MaxGeometries {
		return nil, fmt.Errorf("headless: geometry pool exhausted (%d)", b.configuration.MaxGeometries)
	}
	g := &resource.Geometry{
		ID:         b.allocID(),
		InternalID: uint32(len(b.geometries)),
		Generation: 0,
		Name:       cfg.Name,
	}
	b.geometries[g.ID] = g
	return g, nil
}

// DestroyGeometry implements renderer.Backend.
func (b *Backend) DestroyGeometry(g *resource.Geometry) {
	if g == nil {
		return
	}
	if _, ok := b.geometries[g.ID]; !ok {
		log.Errorf("double destroy of geometry %d", g.ID)
		return
	}
	delete(b.geometries, g.ID)
	g.Generation = resource.InvalidGeneration
	g.InternalID = resource.InvalidID
}

// SkipNextFrames makes the following n BeginFrame calls return the
// skip-this-tick result, for exercising the backpressure contract.
func (b *Backend) SkipNextFrames(n int) {
	b.skipFrames = n
}

// DrawCount reports how many draws the given pass has seen.
func (b *Backend) DrawCount(id renderer.RenderpassID) uint64 {
	switch id {
	case renderer.RenderpassWorld:
		return b.worldDraws
	case renderer.RenderpassUI:
		return b.uiDraws
	default:
		return 0
	}
}

// WorldState reports the last world global state set on the backend.
func (b *Backend) WorldState() renderer.WorldState {
	return b.worldState
}

// UIState reports the last UI global state set on the backend.
func (b *Backend) UIState() renderer.UIState {
	return b.uiState
}

// SurfaceSize reports the last size passed through Resized.
func (b *Backend) SurfaceSize() (uint16, uint16) {
	return b.width, b.height
}

func (b *Backend) allocID() uint32 {
	id := b.nextID
	b.nextID++
	return id
}
