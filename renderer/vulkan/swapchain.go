package vulkan

import (
	"errors"

	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

func (b *Backend) createSwapchain(oldSwapchain vk.Swapchain) error {
	var surfaceCapabilities vk.SurfaceCapabilities
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceCapabilities(b.physicalDevice, b.surface, &surfaceCapabilities)); err != nil {
		return errors.New("vk.GetPhysicalDeviceSurfaceCapabilities(): " + err.Error())
	}

	surfaceCapabilities.Deref()
	if oldSwapchain != nil {
		surfaceCapabilities.CurrentExtent.Deref()
		b.surfaceWidth = surfaceCapabilities.CurrentExtent.Width
		b.surfaceHeight = surfaceCapabilities.CurrentExtent.Height
	}

	compositeAlpha := vk.CompositeAlphaOpaqueBit
	compositeAlphaFlags := []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	}
	for i := 0; i < len(compositeAlphaFlags); i++ {
		alphaFlags := vk.CompositeAlphaFlags(compositeAlphaFlags[i])
		if surfaceCapabilities.SupportedCompositeAlpha&alphaFlags != 0 {
			compositeAlpha = compositeAlphaFlags[i]
			break
		}
	}

	var swapchain vk.Swapchain
	scci := vk.SwapchainCreateInfo{
		SType:           vk.StructureTypeSwapchainCreateInfo,
		Surface:         b.surface,
		MinImageCount:   b.configuration.SwapchainSize,
		ImageFormat:     b.imageFormat,
		ImageColorSpace: b.imageColorspace,
		ImageExtent: vk.Extent2D{
			Width:  b.surfaceWidth,
			Height: b.surfaceHeight,
		},
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     vk.SurfaceTransformIdentityBit,
		CompositeAlpha:   compositeAlpha,
		PresentMode:      vk.PresentModeFifo,
		Clipped:          vk.True,
		ImageArrayLayers: 1,
		ImageSharingMode: vk.SharingModeExclusive,
		OldSwapchain:     oldSwapchain,
	}
	if err := vk.Error(vk.CreateSwapchain(b.logicalDevice, &scci, nil, &swapchain)); err != nil {
		return errors.New("vk.CreateSwapchain(): " + err.Error())
	}
	b.swapchain = swapchain

	var numImages uint32
	if err := vk.Error(vk.GetSwapchainImages(b.logicalDevice, b.swapchain, &numImages, nil)); err != nil {
		return errors.New("vk.GetSwapchainImages(num): " + err.Error())
	}
	b.swapchainImages = make([]vk.Image, numImages)
	if err := vk.Error(vk.GetSwapchainImages(b.logicalDevice, b.swapchain, &numImages, b.swapchainImages)); err != nil {
		return errors.New("vk.GetSwapchainImages(images): " + err.Error())
	}

	return b.createSwapchainViews()
}

func (b *Backend) createSwapchainViews() error {
	b.swapchainImageViews = make([]vk.ImageView, 0, len(b.swapchainImages))
	for idx := range b.swapchainImages {
		ivci := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    b.swapchainImages[idx],
			ViewType: vk.ImageViewType2d,
			Format:   b.imageFormat,
			Components: vk.ComponentMapping{
				R: vk.ComponentSwizzleIdentity,
				G: vk.ComponentSwizzleIdentity,
				B: vk.ComponentSwizzleIdentity,
				A: vk.ComponentSwizzleIdentity,
			},
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		}
		var imageView vk.ImageView
		if err := vk.Error(vk.CreateImageView(b.logicalDevice, &ivci, nil, &imageView)); err != nil {
			return errors.New("vk.CreateImageView(): " + err.Error())
		}
		b.swapchainImageViews = append(b.swapchainImageViews, imageView)
	}
	return nil
}

func (b *Backend) destroySwapchainViews() {
	for _, iv := range b.swapchainImageViews {
		vk.DestroyImageView(b.logicalDevice, iv, nil)
	}
	b.swapchainImageViews = nil
}

func (b *Backend) createDepthImage() error {
	ici := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    depthFormat,
		Extent: vk.Extent3D{
			Width:  b.surfaceWidth,
			Height: b.surfaceHeight,
			Depth:  1,
		},
		MipLevels:   1,
		ArrayLayers: 1,
		Samples:     vk.SampleCount1Bit,
		Tiling:      vk.ImageTilingOptimal,
		Usage:       vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
	}

	var image vk.Image
	if err := vk.Error(vk.CreateImage(b.logicalDevice, &ici, nil, &image)); err != nil {
		return errors.New("vk.CreateImage(): " + err.Error())
	}

	var memoryRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(b.logicalDevice, image, &memoryRequirements)
	memoryRequirements.Deref()

	memory, err := b.allocator.malloc(memoryRequirements, vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		return err
	}
	if err := vk.Error(vk.BindImageMemory(b.logicalDevice, image, memory, 0)); err != nil {
		return errors.New("vk.BindImageMemory(): " + err.Error())
	}

	ivci := vk.ImageViewCreateInfo{
		SType:  vk.StructureTypeImageViewCreateInfo,
		Format: depthFormat,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectDepthBit),
			LevelCount: 1,
			LayerCount: 1,
		},
		ViewType: vk.ImageViewType2d,
		Image:    image,
	}
	var view vk.ImageView
	if err := vk.Error(vk.CreateImageView(b.logicalDevice, &ivci, nil, &view)); err != nil {
		return errors.New("vk.CreateImageView(): " + err.Error())
	}

	b.depthImage = image
	b.depthImageView = view
	b.depthImageMemory = memory
	return nil
}

func (b *Backend) destroyDepthImage() {
	vk.DestroyImageView(b.logicalDevice, b.depthImageView, nil)
	vk.DestroyImage(b.logicalDevice, b.depthImage, nil)
	vk.FreeMemory(b.logicalDevice, b.depthImageMemory, nil)
}

func (b *Backend) createFramebuffers() error {
	for _, view := range b.swapchainImageViews {
		worldAttachments := []vk.ImageView{view, b.depthImageView}
		fci := vk.FramebufferCreateInfo{
			SType:           vk.StructureTypeFramebufferCreateInfo,
			RenderPass:      b.worldRenderPass,
			AttachmentCount: uint32(len(worldAttachments)),
			PAttachments:    worldAttachments,
			Width:           b.surfaceWidth,
			Height:          b.surfaceHeight,
			Layers:          1,
		}
		var worldFramebuffer vk.Framebuffer
		if err := vk.Error(vk.CreateFramebuffer(b.logicalDevice, &fci, nil, &worldFramebuffer)); err != nil {
			return errors.New("vk.CreateFramebuffer(world): " + err.Error())
		}
		b.worldFramebuffers = append(b.worldFramebuffers, worldFramebuffer)

		uiAttachments := []vk.ImageView{view}
		fci = vk.FramebufferCreateInfo{
			SType:           vk.StructureTypeFramebufferCreateInfo,
			RenderPass:      b.uiRenderPass,
			AttachmentCount: uint32(len(uiAttachments)),
			PAttachments:    uiAttachments,
			Width:           b.surfaceWidth,
			Height:          b.surfaceHeight,
			Layers:          1,
		}
		var uiFramebuffer vk.Framebuffer
		if err := vk.Error(vk.CreateFramebuffer(b.logicalDevice, &fci, nil, &uiFramebuffer)); err != nil {
			return errors.New("vk.CreateFramebuffer(ui): " + err.Error())
		}
		b.uiFramebuffers = append(b.uiFramebuffers, uiFramebuffer)
	}
	return nil
}

func (b *Backend) destroyFramebuffers() {
	for _, fb := range b.worldFramebuffers {
		vk.DestroyFramebuffer(b.logicalDevice, fb, nil)
	}
	for _, fb := range b.uiFramebuffers {
		vk.DestroyFramebuffer(b.logicalDevice, fb, nil)
	}
	b.worldFramebuffers = nil
	b.uiFramebuffers = nil
}

func (b *Backend) createCommandPool() error {
	cpci := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: b.graphicsQueueIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var commandPool vk.CommandPool
	if err := vk.Error(vk.CreateCommandPool(b.logicalDevice, &cpci, nil, &commandPool)); err != nil {
		return errors.New("vk.CreateCommandPool(): " + err.Error())
	}
	b.commandPool = commandPool
	return nil
}

func (b *Backend) allocateCommandBuffers() error {
	cbai := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        b.commandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(len(b.swapchainImageViews)),
	}
	commandBuffers := make([]vk.CommandBuffer, len(b.swapchainImageViews))
	if err := vk.Error(vk.AllocateCommandBuffers(b.logicalDevice, &cbai, commandBuffers)); err != nil {
		return errors.New("vk.AllocateCommandBuffers(): " + err.Error())
	}
	b.commandBuffers = commandBuffers
	return nil
}

func (b *Backend) createSynchronization() error {
	sci := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	// The fence starts signaled so the first frame does not wait on a
	// submission that never happened.
	fci := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
		Flags: vk.FenceCreateFlags(vk.FenceCreateSignaledBit),
	}

	var (
		imageAvailableSemaphore vk.Semaphore
		renderFinishedSemphore  vk.Semaphore
		fence                   vk.Fence
	)
	if err := vk.Error(vk.CreateSemaphore(b.logicalDevice, &sci, nil, &imageAvailableSemaphore)); err != nil {
		return errors.New("vk.CreateSemaphore(): " + err.Error())
	}
	if err := vk.Error(vk.CreateSemaphore(b.logicalDevice, &sci, nil, &renderFinishedSemphore)); err != nil {
		return errors.New("vk.CreateSemaphore(): " + err.Error())
	}
	if err := vk.Error(vk.CreateFence(b.logicalDevice, &fci, nil, &fence)); err != nil {
		return errors.New("vk.CreateFence(): " + err.Error())
	}

	b.imageAvailableSemaphore = imageAvailableSemaphore
	b.renderFinishedSemphore = renderFinishedSemphore
	b.imageFence = fence
	return nil
}

// recreateSwapchain rebuilds the swapchain and everything sized with it
// after a surface size change. Returns false when the window cannot be
// drawn to (a dimension is zero) or a recreate is already running.
func (b *Backend) recreateSwapchain() bool {
	if b.recreatingSwapchain {
		log.Debug("swapchain recreate requested while already recreating, booting")
		return false
	}
	// Recreates driven by the presentation engine (out of date,
	// suboptimal) arrive without a resize event, so no cached size.
	// Keep the current dimensions then; createSwapchain re-reads the
	// surface extent anyway.
	width, height := recreateExtent(b.cachedWidth, b.cachedHeight, b.surfaceWidth, b.surfaceHeight)
	if width == 0 || height == 0 {
		log.Debug("swapchain recreate requested with a zero dimension, booting")
		return false
	}
	b.recreatingSwapchain = true

	vk.DeviceWaitIdle(b.logicalDevice)

	b.destroyFramebuffers()
	b.destroyDepthImage()
	b.destroySwapchainViews()

	b.surfaceWidth = width
	b.surfaceHeight = height
	b.cachedWidth = 0
	b.cachedHeight = 0

	oldSwapchain := b.swapchain
	if err := b.createSwapchain(oldSwapchain); err != nil {
		log.WithError(err).Error("swapchain recreate failed")
		b.recreatingSwapchain = false
		return false
	}
	vk.DestroySwapchain(b.logicalDevice, oldSwapchain, nil)

	if err := b.createDepthImage(); err != nil {
		log.WithError(err).Error("depth image recreate failed")
		b.recreatingSwapchain = false
		return false
	}
	if err := b.createFramebuffers(); err != nil {
		log.WithError(err).Error("framebuffer recreate failed")
		b.recreatingSwapchain = false
		return false
	}

	b.lastSizeGeneration = b.sizeGeneration
	b.recreatingSwapchain = false
	return true
}

// recreateExtent picks the dimensions for a swapchain recreate: the
// size cached by Resized when there is one, the current surface size
// otherwise.
func recreateExtent(cachedWidth, cachedHeight, surfaceWidth, surfaceHeight uint32) (uint32, uint32) {
	if cachedWidth == 0 || cachedHeight == 0 {
		return surfaceWidth, surfaceHeight
	}
	return cachedWidth, cachedHeight
}
