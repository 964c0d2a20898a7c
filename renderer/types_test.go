package renderer

import "testing"

func TestRenderpassIDsAreDistinctFlags(t *testing.T) {
	if RenderpassWorld&RenderpassUI != 0 {
		t.Error("renderpass ids overlap as bit flags")
	}
	if RenderpassWorld == 0 || RenderpassUI == 0 {
		t.Error("renderpass ids must be non-zero, zero marks no active pass")
	}
}

func TestRenderpassIDString(t *testing.T) {
	if got := RenderpassWorld.String(); got != "world" {
		t.Errorf("got %q, want world", got)
	}
	if got := RenderpassUI.String(); got != "ui" {
		t.Errorf("got %q, want ui", got)
	}
	if got := RenderpassID(0x80).String(); got != "unknown" {
		t.Errorf("got %q, want unknown", got)
	}
}

func TestBackendTypeString(t *testing.T) {
	if got := BackendVulkan.String(); got == "" || got == "unknown" {
		t.Errorf("vulkan backend type has no name, got %q", got)
	}
	if got := BackendHeadless.String(); got == "" || got == "unknown" {
		t.Errorf("headless backend type has no name, got %q", got)
	}
}
