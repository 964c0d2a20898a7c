package renderer_test

import (
	"testing"

	glm "github.com/go-gl/mathgl/mgl32"

	"github.com/kestrel3d/kestrel/renderer"
	"github.com/kestrel3d/kestrel/renderer/headless"
	"github.com/kestrel3d/kestrel/resource"
)

func newTestFrontend(t *testing.T) (*renderer.Frontend, *headless.Backend) {
	t.Helper()
	backend := headless.New(headless.Config{})
	frontend := renderer.New(backend)
	if err := frontend.Initialize("frontend test"); err != nil {
		t.Fatal(err)
	}
	return frontend, backend
}

func testGeometry(t *testing.T, f *renderer.Frontend, name string) *resource.Geometry {
	t.Helper()
	g, err := f.CreateGeometry(resource.GeometryConfig{
		Name:        name,
		VertexSize:  20,
		VertexCount: 3,
		Vertices:    make([]byte, 60),
	})
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestFullFrameScenario(t *testing.T) {
	frontend, backend := newTestFrontend(t)
	geometry := testGeometry(t, frontend, "triangle")
	uiGeometry := testGeometry(t, frontend, "panel")

	packet := renderer.RenderPacket{
		DeltaTime: 0.016,
		Geometries: []renderer.GeometryRenderData{
			{Model: glm.Ident4(), Geometry: geometry},
			{Model: glm.Translate3D(1, 0, 0), Geometry: geometry},
		},
		UIGeometries: []renderer.GeometryRenderData{
			{Model: glm.Ident4(), Geometry: uiGeometry},
		},
	}
	if err := frontend.DrawFrame(&packet); err != nil {
		t.Fatal(err)
	}

	if got := frontend.FrameNumber(); got != 1 {
		t.Errorf("frame number after one frame: got %d, want 1", got)
	}
	if got := backend.DrawCount(renderer.RenderpassWorld); got != 2 {
		t.Errorf("world draws: got %d, want 2", got)
	}
	if got := backend.DrawCount(renderer.RenderpassUI); got != 1 {
		t.Errorf("ui draws: got %d, want 1", got)
	}

	frontend.DestroyGeometry(geometry)
	frontend.DestroyGeometry(uiGeometry)
	frontend.Shutdown()
}

func TestBeginFrameRequiresInitialize(t *testing.T) {
	frontend := renderer.New(headless.New(headless.Config{}))
	if _, err := frontend.BeginFrame(0.016); err != renderer.ErrNotInitialized {
		t.Errorf("got %v, want ErrNotInitialized", err)
	}
}

func TestDoubleBeginFrame(t *testing.T) {
	frontend, _ := newTestFrontend(t)
	if _, err := frontend.BeginFrame(0.016); err != nil {
		t.Fatal(err)
	}
	if _, err := frontend.BeginFrame(0.016); err != renderer.ErrFrameActive {
		t.Errorf("got %v, want ErrFrameActive", err)
	}
}

func TestEndFrameWithoutBegin(t *testing.T) {
	frontend, _ := newTestFrontend(t)
	if err := frontend.EndFrame(0.016); err != renderer.ErrNoFrameActive {
		t.Errorf("got %v, want ErrNoFrameActive", err)
	}
}

func TestRenderpassOutsideFrame(t *testing.T) {
	frontend, _ := newTestFrontend(t)
	if err := frontend.BeginRenderpass(renderer.RenderpassWorld); err != renderer.ErrNoFrameActive {
		t.Errorf("got %v, want ErrNoFrameActive", err)
	}
}

func TestNestedRenderpassesRejected(t *testing.T) {
	frontend, _ := newTestFrontend(t)
	if _, err := frontend.BeginFrame(0.016); err != nil {
		t.Fatal(err)
	}
	if err := frontend.BeginRenderpass(renderer.RenderpassWorld); err != nil {
		t.Fatal(err)
	}
	if err := frontend.BeginRenderpass(renderer.RenderpassUI); err != renderer.ErrPassActive {
		t.Errorf("got %v, want ErrPassActive", err)
	}
}

func TestEndMismatchedRenderpass(t *testing.T) {
	frontend, _ := newTestFrontend(t)
	if _, err := frontend.BeginFrame(0.016); err != nil {
		t.Fatal(err)
	}
	if err := frontend.BeginRenderpass(renderer.RenderpassWorld); err != nil {
		t.Fatal(err)
	}
	if err := frontend.EndRenderpass(renderer.RenderpassUI); err != renderer.ErrPassMismatch {
		t.Errorf("got %v, want ErrPassMismatch", err)
	}
	// The world pass must still be endable after the bad call.
	if err := frontend.EndRenderpass(renderer.RenderpassWorld); err != nil {
		t.Error(err)
	}
}

func TestEndFrameWithPassActive(t *testing.T) {
	frontend, _ := newTestFrontend(t)
	if _, err := frontend.BeginFrame(0.016); err != nil {
		t.Fatal(err)
	}
	if err := frontend.BeginRenderpass(renderer.RenderpassWorld); err != nil {
		t.Fatal(err)
	}
	if err := frontend.EndFrame(0.016); err != renderer.ErrPassActive {
		t.Errorf("got %v, want ErrPassActive", err)
	}
	if got := frontend.FrameNumber(); got != 0 {
		t.Errorf("failed frame must not count: got frame number %d", got)
	}
}

func TestEmptyWorldPassIsLegal(t *testing.T) {
	frontend, _ := newTestFrontend(t)
	packet := renderer.RenderPacket{DeltaTime: 0.016}
	if err := frontend.DrawFrame(&packet); err != nil {
		t.Fatal(err)
	}
	if got := frontend.FrameNumber(); got != 1 {
		t.Errorf("frame number: got %d, want 1", got)
	}
}

func TestSkippedFrameIsNotAnError(t *testing.T) {
	frontend, backend := newTestFrontend(t)
	backend.SkipNextFrames(1)

	packet := renderer.RenderPacket{DeltaTime: 0.016}
	if err := frontend.DrawFrame(&packet); err != nil {
		t.Fatalf("skipped frame reported as error: %v", err)
	}
	if got := frontend.FrameNumber(); got != 0 {
		t.Errorf("skipped frame must not count: got frame number %d", got)
	}

	if err := frontend.DrawFrame(&packet); err != nil {
		t.Fatal(err)
	}
	if got := frontend.FrameNumber(); got != 1 {
		t.Errorf("frame number after retry: got %d, want 1", got)
	}
}

func TestGlobalStateRequiresMatchingPass(t *testing.T) {
	frontend, _ := newTestFrontend(t)
	if _, err := frontend.BeginFrame(0.016); err != nil {
		t.Fatal(err)
	}
	if err := frontend.BeginRenderpass(renderer.RenderpassUI); err != nil {
		t.Fatal(err)
	}
	if err := frontend.UpdateGlobalWorldState(renderer.WorldState{}); err != renderer.ErrWrongPass {
		t.Errorf("world update during ui pass: got %v, want ErrWrongPass", err)
	}
	if err := frontend.UpdateGlobalUIState(renderer.UIState{}); err != nil {
		t.Error(err)
	}
}

func TestCreateGeometryRejectsZeroVertices(t *testing.T) {
	frontend, _ := newTestFrontend(t)
	_, err := frontend.CreateGeometry(resource.GeometryConfig{Name: "empty"})
	if err != renderer.ErrNoVertexData {
		t.Errorf("got %v, want ErrNoVertexData", err)
	}
}

func TestIndexlessGeometryIsLegal(t *testing.T) {
	frontend, _ := newTestFrontend(t)
	g, err := frontend.CreateGeometry(resource.GeometryConfig{
		Name:        "unindexed",
		VertexSize:  20,
		VertexCount: 3,
		Vertices:    make([]byte, 60),
	})
	if err != nil {
		t.Fatal(err)
	}
	if g.Generation == resource.InvalidGeneration {
		t.Error("created geometry carries an invalid generation")
	}
}

func TestDrawDestroyedGeometryRejected(t *testing.T) {
	frontend, backend := newTestFrontend(t)
	geometry := testGeometry(t, frontend, "doomed")
	frontend.DestroyGeometry(geometry)

	if _, err := frontend.BeginFrame(0.016); err != nil {
		t.Fatal(err)
	}
	if err := frontend.BeginRenderpass(renderer.RenderpassWorld); err != nil {
		t.Fatal(err)
	}
	err := frontend.DrawGeometry(renderer.GeometryRenderData{Model: glm.Ident4(), Geometry: geometry})
	if err != renderer.ErrInvalidHandle {
		t.Errorf("got %v, want ErrInvalidHandle", err)
	}
	if got := backend.DrawCount(renderer.RenderpassWorld); got != 0 {
		t.Errorf("invalid draw reached the backend: %d draws recorded", got)
	}
}

func TestResizeDeferredDuringFrame(t *testing.T) {
	frontend, backend := newTestFrontend(t)

	if _, err := frontend.BeginFrame(0.016); err != nil {
		t.Fatal(err)
	}
	frontend.OnResized(1024, 768)
	if w, h := backend.SurfaceSize(); w != 0 || h != 0 {
		t.Errorf("resize reached the backend mid-frame: %dx%d", w, h)
	}
	if err := frontend.EndFrame(0.016); err != nil {
		t.Fatal(err)
	}

	// The deferred size is applied right before the next frame begins.
	if _, err := frontend.BeginFrame(0.016); err != nil {
		t.Fatal(err)
	}
	if w, h := backend.SurfaceSize(); w != 1024 || h != 768 {
		t.Errorf("deferred resize not applied: %dx%d", w, h)
	}
}

func TestDestroyMaterialLeavesTextures(t *testing.T) {
	frontend, _ := newTestFrontend(t)
	texture, err := frontend.CreateTexture(make([]uint8, 4), resource.TextureConfig{
		Name: "pixel", Width: 1, Height: 1, ChannelCount: 4,
	})
	if err != nil {
		t.Fatal(err)
	}
	material, err := frontend.CreateMaterial(resource.MaterialConfig{
		Name:       "basic",
		DiffuseMap: texture,
	})
	if err != nil {
		t.Fatal(err)
	}

	frontend.DestroyMaterial(material)
	if texture.Generation == resource.InvalidGeneration {
		t.Error("destroying a material invalidated its texture")
	}
	frontend.DestroyTexture(texture)
	if texture.Generation != resource.InvalidGeneration {
		t.Error("destroyed texture still carries a live generation")
	}
}

func TestDestroyMaterialAfterItsTexture(t *testing.T) {
	frontend, _ := newTestFrontend(t)
	texture, err := frontend.CreateTexture(make([]uint8, 4), resource.TextureConfig{
		Name: "pixel", Width: 1, Height: 1, ChannelCount: 4,
	})
	if err != nil {
		t.Fatal(err)
	}
	material, err := frontend.CreateMaterial(resource.MaterialConfig{
		Name:       "orphaned",
		DiffuseMap: texture,
	})
	if err != nil {
		t.Fatal(err)
	}

	// Destroying in the wrong order leaves the material pointing at a
	// dead texture; destroying it then must not crash and must leave
	// the dead texture exactly as it is.
	frontend.DestroyTexture(texture)
	deadGeneration := texture.Generation
	frontend.DestroyMaterial(material)

	if texture.Generation != deadGeneration {
		t.Error("destroying the material touched the already-destroyed texture")
	}
	if material.Generation != resource.InvalidGeneration {
		t.Error("destroyed material still carries a live generation")
	}
}
