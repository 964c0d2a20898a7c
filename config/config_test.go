package config

import (
	"testing"

	"github.com/gobuffalo/envy"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Renderer.Backend != "vulkan" {
		t.Errorf("default backend: got %q", cfg.Renderer.Backend)
	}
	if cfg.Renderer.ScreenWidth == 0 || cfg.Renderer.ScreenHeight == 0 {
		t.Error("default screen size is zero")
	}
	if cfg.Renderer.SwapchainSize == 0 {
		t.Error("default swapchain size is zero")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	envy.Temp(func() {
		envy.Set("KESTREL_BACKEND", "headless")
		envy.Set("KESTREL_WIDTH", "1920")
		envy.Set("KESTREL_DEBUG", "true")

		cfg := FromEnvironment()
		if cfg.Renderer.Backend != "headless" {
			t.Errorf("backend override: got %q", cfg.Renderer.Backend)
		}
		if cfg.Renderer.ScreenWidth != 1920 {
			t.Errorf("width override: got %d", cfg.Renderer.ScreenWidth)
		}
		if !cfg.Renderer.DebugMode {
			t.Error("debug override not applied")
		}
	})
}

func TestMalformedOverridesFallBack(t *testing.T) {
	envy.Temp(func() {
		envy.Set("KESTREL_HEIGHT", "not a number")

		cfg := FromEnvironment()
		if cfg.Renderer.ScreenHeight != Default().Renderer.ScreenHeight {
			t.Errorf("malformed value did not fall back: got %d", cfg.Renderer.ScreenHeight)
		}
	})
}
