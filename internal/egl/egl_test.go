package egl

import "testing"

func TestHasExtension(t *testing.T) {
	c := &Context{extensions: "EGL_KHR_image_base EGL_EXT_image_dma_buf_import EGL_KHR_fence_sync"}

	if !c.HasExtension("EGL_EXT_image_dma_buf_import") {
		t.Error("listed extension not found")
	}
	if c.HasExtension("EGL_EXT_image_dma_buf") {
		t.Error("prefix must not match a full extension name")
	}
	if c.HasExtension("EGL_MESA_image_dma_buf_export") {
		t.Error("absent extension reported present")
	}
}
