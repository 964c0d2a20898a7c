package main

import (
	"runtime"

	glm "github.com/go-gl/mathgl/mgl32"
	log "github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"
	vk "github.com/vulkan-go/vulkan"

	"github.com/kestrel3d/kestrel/asset"
	"github.com/kestrel3d/kestrel/config"
	"github.com/kestrel3d/kestrel/renderer"
	"github.com/kestrel3d/kestrel/renderer/headless"
	"github.com/kestrel3d/kestrel/renderer/vulkan"
	"github.com/kestrel3d/kestrel/resource"
	"github.com/kestrel3d/kestrel/timing"
)

func init() {
	runtime.LockOSThread()
}

func newWindow(cfg config.RendererConfiguration) *sdl.Window {
	window, err := sdl.CreateWindow("Kestrel3D",
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(cfg.ScreenWidth),
		int32(cfg.ScreenHeight),
		sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		panic(err)
	}
	return window
}

func newBackend(cfg config.RendererConfiguration, window *sdl.Window) renderer.Backend {
	switch cfg.Backend {
	case "headless":
		return headless.New(headless.Config{})
	case "vulkan":
		return vulkan.New(vulkan.Config{
			ScreenWidth:        cfg.ScreenWidth,
			ScreenHeight:       cfg.ScreenHeight,
			SwapchainSize:      cfg.SwapchainSize,
			ShaderDirectory:    cfg.ShaderDirectory,
			DebugMode:          cfg.DebugMode,
			ProcAddr:           sdl.VulkanGetVkGetInstanceProcAddr(),
			InstanceExtensions: window.VulkanGetInstanceExtensions(),
			CreateSurface: func(instance vk.Instance) (uintptr, error) {
				surface, err := window.VulkanCreateSurface(instance)
				if err != nil {
					return 0, err
				}
				return uintptr(surface), nil
			},
		})
	default:
		panic("unknown renderer backend: " + cfg.Backend)
	}
}

// checkerTexture builds a procedural 256x256 black and magenta checker.
func checkerTexture() asset.Image {
	const size = 256
	pixels := make([]uint8, size*size*4)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			idx := (y*size + x) * 4
			if (x/32+y/32)%2 == 0 {
				pixels[idx] = 0xff
				pixels[idx+2] = 0xff
			}
			pixels[idx+3] = 0xff
		}
	}
	return asset.Image{
		Pixels: pixels,
		Config: resource.TextureConfig{
			Name:         "checker",
			Width:        size,
			Height:       size,
			ChannelCount: 4,
		},
	}
}

func quadVertices(half float32) []asset.Vertex {
	return []asset.Vertex{
		{Pos: glm.Vec3{-half, -half, 0}, TexCoord: glm.Vec2{0, 0}},
		{Pos: glm.Vec3{half, -half, 0}, TexCoord: glm.Vec2{1, 0}},
		{Pos: glm.Vec3{half, half, 0}, TexCoord: glm.Vec2{1, 1}},
		{Pos: glm.Vec3{-half, half, 0}, TexCoord: glm.Vec2{0, 1}},
	}
}

var quadIndices = []uint32{0, 1, 2, 2, 3, 0}

func main() {
	cfg := config.FromEnvironment()

	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		panic(err)
	}
	defer sdl.Quit()

	if err := sdl.VulkanLoadLibrary(""); err != nil {
		panic(err)
	}
	defer sdl.VulkanUnloadLibrary()

	window := newWindow(cfg.Renderer)
	defer window.Destroy()

	frontend := renderer.New(newBackend(cfg.Renderer, window))
	if err := frontend.Initialize("Kestrel3D"); err != nil {
		panic(err)
	}

	img := checkerTexture()
	texture, err := frontend.CreateTexture(img.Pixels, img.Config)
	if err != nil {
		panic(err)
	}

	material, err := frontend.CreateMaterial(resource.MaterialConfig{
		Name:          "checker",
		DiffuseColour: glm.Vec4{1, 1, 1, 1},
		DiffuseMap:    texture,
	})
	if err != nil {
		panic(err)
	}

	geometry, err := frontend.CreateGeometry(asset.NewGeometryConfig("quad", quadVertices(0.5), quadIndices))
	if err != nil {
		panic(err)
	}
	geometry.Material = material

	aspect := float32(cfg.Renderer.ScreenWidth) / float32(cfg.Renderer.ScreenHeight)
	frontend.SetWorldState(renderer.WorldState{
		Projection:    glm.Perspective(glm.DegToRad(45), aspect, 0.1, 1000),
		View:          glm.Translate3D(0, 0, -2),
		ViewPosition:  glm.Vec3{0, 0, 2},
		AmbientColour: glm.Vec4{1, 1, 1, 1},
	})
	frontend.SetUIState(renderer.UIState{
		Projection: glm.Ortho(0, float32(cfg.Renderer.ScreenWidth), float32(cfg.Renderer.ScreenHeight), 0, -1, 1),
		View:       glm.Ident4(),
	})

	time := timing.NewTime(cfg.Time)
	defer time.Stop()
	clock := timing.NewClock()

	var angle float32
	exitC := make(chan struct{}, 2)

EventLoop:
	for {
		select {
		case <-exitC:
			log.Info("event loop exited")
			break EventLoop
		case <-time.FpsTicker().C:
			var event sdl.Event
			for event = sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
				switch et := event.(type) {
				case *sdl.KeyboardEvent:
					if et.Keysym.Sym == sdl.K_ESCAPE {
						exitC <- struct{}{}
						continue EventLoop
					}
				case *sdl.WindowEvent:
					if et.Event == sdl.WINDOWEVENT_SIZE_CHANGED {
						frontend.OnResized(uint16(et.Data1), uint16(et.Data2))
					}
				case *sdl.QuitEvent:
					exitC <- struct{}{}
					continue EventLoop
				}
			}

			delta := clock.Delta()
			angle += delta

			packet := renderer.RenderPacket{
				DeltaTime: delta,
				Geometries: []renderer.GeometryRenderData{{
					Model:    glm.HomogRotate3DZ(angle),
					Geometry: geometry,
				}},
			}
			if err := frontend.DrawFrame(&packet); err != nil {
				log.WithError(err).Error("frame draw failed")
				exitC <- struct{}{}
			}
		}
	}

	frontend.DestroyGeometry(geometry)
	frontend.DestroyMaterial(material)
	frontend.DestroyTexture(texture)
	frontend.Shutdown()
}
