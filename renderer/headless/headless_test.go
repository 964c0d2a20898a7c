package headless

import (
	"testing"

	glm "github.com/go-gl/mathgl/mgl32"

	"github.com/kestrel3d/kestrel/renderer"
	"github.com/kestrel3d/kestrel/resource"
)

func newInitialized(t *testing.T, cfg Config) *Backend {
	t.Helper()
	b := New(cfg)
	if err := b.Initialize("headless test"); err != nil {
		t.Fatal(err)
	}
	return b
}

func TestDoubleInitialize(t *testing.T) {
	b := newInitialized(t, Config{})
	if err := b.Initialize("again"); err == nil {
		t.Error("second initialize did not fail")
	}
}

func TestCreateBeforeInitialize(t *testing.T) {
	b := New(Config{})

	if _, err := b.CreateTexture(make([]uint8, 4), resource.TextureConfig{
		Name: "early", Width: 1, Height: 1, ChannelCount: 4,
	}); err != renderer.ErrNotInitialized {
		t.Errorf("texture create: got %v, want ErrNotInitialized", err)
	}
	if _, err := b.CreateMaterial(resource.MaterialConfig{Name: "early"}); err != renderer.ErrNotInitialized {
		t.Errorf("material create: got %v, want ErrNotInitialized", err)
	}
	if _, err := b.CreateGeometry(resource.GeometryConfig{
		Name:        "early",
		VertexSize:  20,
		VertexCount: 3,
		Vertices:    make([]byte, 60),
	}); err != renderer.ErrNotInitialized {
		t.Errorf("geometry create: got %v, want ErrNotInitialized", err)
	}
}

func TestCreateAfterShutdown(t *testing.T) {
	b := newInitialized(t, Config{})
	b.Shutdown()

	if _, err := b.CreateGeometry(resource.GeometryConfig{
		Name:        "late",
		VertexSize:  20,
		VertexCount: 3,
		Vertices:    make([]byte, 60),
	}); err != renderer.ErrNotInitialized {
		t.Errorf("geometry create: got %v, want ErrNotInitialized", err)
	}
}

func TestFrameNumberCountsOnlyCompletedFrames(t *testing.T) {
	b := newInitialized(t, Config{})
	b.SkipNextFrames(2)

	for i := 0; i < 5; i++ {
		ok, err := b.BeginFrame(0.016)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			continue
		}
		if err := b.EndFrame(0.016); err != nil {
			t.Fatal(err)
		}
	}

	if got := b.FrameNumber(); got != 3 {
		t.Errorf("frame number: got %d, want 3 (2 of 5 ticks skipped)", got)
	}
}

func TestBeginFrameWhileActive(t *testing.T) {
	b := newInitialized(t, Config{})
	if _, err := b.BeginFrame(0.016); err != nil {
		t.Fatal(err)
	}
	if _, err := b.BeginFrame(0.016); err != renderer.ErrFrameActive {
		t.Errorf("got %v, want ErrFrameActive", err)
	}
}

func TestRenderpassStateMachine(t *testing.T) {
	b := newInitialized(t, Config{})
	if _, err := b.BeginFrame(0.016); err != nil {
		t.Fatal(err)
	}

	if err := b.BeginRenderpass(renderer.RenderpassWorld); err != nil {
		t.Fatal(err)
	}
	if err := b.BeginRenderpass(renderer.RenderpassWorld); err != renderer.ErrPassActive {
		t.Errorf("got %v, want ErrPassActive", err)
	}
	if err := b.EndRenderpass(renderer.RenderpassUI); err != renderer.ErrPassMismatch {
		t.Errorf("got %v, want ErrPassMismatch", err)
	}
	if err := b.EndRenderpass(renderer.RenderpassWorld); err != nil {
		t.Fatal(err)
	}
	if err := b.EndRenderpass(renderer.RenderpassWorld); err != renderer.ErrNoPassActive {
		t.Errorf("got %v, want ErrNoPassActive", err)
	}
}

func TestGlobalStateRecordedPerPass(t *testing.T) {
	b := newInitialized(t, Config{})
	if _, err := b.BeginFrame(0.016); err != nil {
		t.Fatal(err)
	}

	// Updates outside their pass are dropped.
	b.UpdateGlobalWorldState(glm.Ident4(), glm.Ident4(), glm.Vec3{}, glm.Vec4{}, 7)
	if got := b.WorldState().Mode; got != 0 {
		t.Errorf("world update outside the world pass was recorded, mode %d", got)
	}

	if err := b.BeginRenderpass(renderer.RenderpassWorld); err != nil {
		t.Fatal(err)
	}
	b.UpdateGlobalWorldState(glm.Ident4(), glm.Ident4(), glm.Vec3{1, 2, 3}, glm.Vec4{1, 1, 1, 1}, 7)
	if got := b.WorldState().Mode; got != 7 {
		t.Errorf("world state mode: got %d, want 7", got)
	}
}

func TestGeometryPoolExhaustion(t *testing.T) {
	b := newInitialized(t, Config{MaxGeometries: 2})
	cfg := resource.GeometryConfig{
		Name:        "filler",
		VertexSize:  20,
		VertexCount: 3,
		Vertices:    make([]byte, 60),
	}
	for i := 0; i < 2; i++ {
		if _, err := b.CreateGeometry(cfg); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := b.CreateGeometry(cfg); err == nil {
		t.Error("pool exhaustion did not fail")
	}
}

func TestDestroyInvalidatesHandle(t *testing.T) {
	b := newInitialized(t, Config{})
	g, err := b.CreateGeometry(resource.GeometryConfig{
		Name:        "short lived",
		VertexSize:  20,
		VertexCount: 3,
		Vertices:    make([]byte, 60),
	})
	if err != nil {
		t.Fatal(err)
	}
	b.DestroyGeometry(g)
	if g.Generation != resource.InvalidGeneration {
		t.Error("destroyed geometry still carries a live generation")
	}
	if g.InternalID != resource.InvalidID {
		t.Error("destroyed geometry still carries an internal id")
	}
}

func TestDrawRequiresActivePass(t *testing.T) {
	b := newInitialized(t, Config{})
	g, err := b.CreateGeometry(resource.GeometryConfig{
		Name:        "quad",
		VertexSize:  20,
		VertexCount: 6,
		Vertices:    make([]byte, 120),
	})
	if err != nil {
		t.Fatal(err)
	}

	b.DrawGeometry(renderer.GeometryRenderData{Model: glm.Ident4(), Geometry: g})
	if got := b.DrawCount(renderer.RenderpassWorld) + b.DrawCount(renderer.RenderpassUI); got != 0 {
		t.Errorf("draw outside a pass was recorded, %d draws", got)
	}

	if _, err := b.BeginFrame(0.016); err != nil {
		t.Fatal(err)
	}
	if err := b.BeginRenderpass(renderer.RenderpassUI); err != nil {
		t.Fatal(err)
	}
	b.DrawGeometry(renderer.GeometryRenderData{Model: glm.Ident4(), Geometry: g})
	if got := b.DrawCount(renderer.RenderpassUI); got != 1 {
		t.Errorf("ui draws: got %d, want 1", got)
	}
}
