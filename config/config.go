// Package config carries the engine configuration and its environment
// overrides. Defaults come from the embedder, KESTREL_* environment
// variables (or a .env file) win over them.
package config

import (
	"strconv"

	"github.com/gobuffalo/envy"
)

// Configuration defines a global engine configuration setting
type Configuration struct {
	Time     TimeConfiguration
	Renderer RendererConfiguration
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// FramesPerSecond caps frames per second that is put out
	// To unlimit, set to 0
	FramesPerSecond int

	// EventPollDelay is the window event poll interval in milliseconds.
	EventPollDelay int
}

// RendererConfiguration is used to configure the renderer
type RendererConfiguration struct {
	// Backend selects the renderer backend, "vulkan" or "headless".
	Backend string

	SwapchainSize    uint32
	DeviceExtensions []string

	ScreenWidth  uint32
	ScreenHeight uint32

	// ShaderDirectory overrides the built-in shaders when set.
	ShaderDirectory string

	// DebugMode enables backend validation where supported.
	DebugMode bool
}

// Default returns the configuration used when nothing overrides it.
func Default() Configuration {
	return Configuration{
		Time: TimeConfiguration{
			FramesPerSecond: 0,
			EventPollDelay:  10,
		},
		Renderer: RendererConfiguration{
			Backend:       "vulkan",
			SwapchainSize: 3,
			ScreenWidth:   800,
			ScreenHeight:  600,
		},
	}
}

// FromEnvironment applies KESTREL_* environment overrides on top of the
// defaults. envy also reads a .env file when one is present.
func FromEnvironment() Configuration {
	cfg := Default()
	cfg.Renderer.Backend = envy.Get("KESTREL_BACKEND", cfg.Renderer.Backend)
	cfg.Renderer.ShaderDirectory = envy.Get("KESTREL_SHADER_DIR", cfg.Renderer.ShaderDirectory)
	cfg.Renderer.ScreenWidth = uintVar("KESTREL_WIDTH", cfg.Renderer.ScreenWidth)
	cfg.Renderer.ScreenHeight = uintVar("KESTREL_HEIGHT", cfg.Renderer.ScreenHeight)
	cfg.Renderer.SwapchainSize = uintVar("KESTREL_SWAPCHAIN_SIZE", cfg.Renderer.SwapchainSize)
	cfg.Renderer.DebugMode = boolVar("KESTREL_DEBUG", cfg.Renderer.DebugMode)
	cfg.Time.FramesPerSecond = intVar("KESTREL_FPS_CAP", cfg.Time.FramesPerSecond)
	return cfg
}

func uintVar(key string, fallback uint32) uint32 {
	raw := envy.Get(key, "")
	if raw == "" {
		return fallback
	}
	num, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return fallback
	}
	return uint32(num)
}

func intVar(key string, fallback int) int {
	raw := envy.Get(key, "")
	if raw == "" {
		return fallback
	}
	num, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return num
}

func boolVar(key string, fallback bool) bool {
	raw := envy.Get(key, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}
