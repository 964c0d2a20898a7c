// Package vulkan implements the renderer backend contract on top of the
// Vulkan API. It owns the instance, device, swapchain and every GPU
// resource created through it; the embedder only supplies a surface
// through the configuration callback.
package vulkan

import (
	"errors"
	"fmt"
	"math"
	"unsafe"

	glm "github.com/go-gl/mathgl/mgl32"
	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"

	"github.com/kestrel3d/kestrel/renderer"
	"github.com/kestrel3d/kestrel/resource"
)

// Resource pool limits.
const (
	maxGeometryCount = 4096
	maxMaterialCount = 1024
)

// Device-local buffer sizes for the geometry pool.
const (
	vertexBufferSize = vk.DeviceSize(64 * 1024 * 1024)
	indexBufferSize  = vk.DeviceSize(16 * 1024 * 1024)
)

// Config configures the Vulkan backend. The backend has no knowledge of
// windows: the embedder passes the loader address, the instance
// extensions its windowing system requires and a callback that turns
// the created instance into a surface.
type Config struct {
	ScreenWidth   uint32
	ScreenHeight  uint32
	SwapchainSize uint32

	// ShaderDirectory overrides the built-in shader box when set.
	ShaderDirectory string

	// DebugMode enables the standard validation layer.
	DebugMode bool

	// ProcAddr is the vkGetInstanceProcAddr pointer from the window
	// library. Leave nil to use the system loader.
	ProcAddr unsafe.Pointer

	// InstanceExtensions lists the instance extensions required by the
	// surface provider.
	InstanceExtensions []string

	// CreateSurface creates a presentable surface for the instance and
	// returns its handle.
	CreateSurface func(instance vk.Instance) (uintptr, error)
}

// New creates a not yet initialized Vulkan backend.
func New(cfg Config) *Backend {
	if cfg.SwapchainSize == 0 {
		cfg.SwapchainSize = 3
	}
	return &Backend{
		configuration: cfg,
		surfaceWidth:  cfg.ScreenWidth,
		surfaceHeight: cfg.ScreenHeight,
	}
}

// Backend is the Vulkan implementation of renderer.Backend.
type Backend struct {
	configuration Config

	instance       vk.Instance
	surface        vk.Surface
	physicalDevice vk.PhysicalDevice
	logicalDevice  vk.Device
	deviceQueue    vk.Queue

	graphicsQueueIndex uint32

	allocator *memoryAllocator

	imageFormat     vk.Format
	imageColorspace vk.ColorSpace

	surfaceWidth  uint32
	surfaceHeight uint32

	swapchain           vk.Swapchain
	swapchainImages     []vk.Image
	swapchainImageViews []vk.ImageView

	depthImage       vk.Image
	depthImageView   vk.ImageView
	depthImageMemory vk.DeviceMemory

	worldRenderPass vk.RenderPass
	uiRenderPass    vk.RenderPass

	worldFramebuffers []vk.Framebuffer
	uiFramebuffers    []vk.Framebuffer

	commandPool    vk.CommandPool
	commandBuffers []vk.CommandBuffer

	imageFence              vk.Fence
	imageAvailableSemaphore vk.Semaphore
	renderFinishedSemphore  vk.Semaphore

	shaders   *shaderSet
	pipelines struct {
		layout vk.PipelineLayout
		cache  vk.PipelineCache
		world  vk.Pipeline
		ui     vk.Pipeline
	}

	globalDescriptorSetLayout   vk.DescriptorSetLayout
	materialDescriptorSetLayout vk.DescriptorSetLayout
	globalDescriptorPool        vk.DescriptorPool
	materialDescriptorPool      vk.DescriptorPool
	globalDescriptorSets        []vk.DescriptorSet
	globalUniformBuffers        []hostBuffer

	geometryPool struct {
		vertexBuffer deviceBuffer
		indexBuffer  deviceBuffer
		vertexOffset vk.DeviceSize
		indexOffset  vk.DeviceSize
		slots        [maxGeometryCount]geometryData
	}

	materialSlots [maxMaterialCount]materialData

	textureCount uint32

	frameNumber uint64
	imageIndex  uint32
	frameActive bool
	activePass  renderer.RenderpassID

	initialized bool

	// Framebuffer size generations. Resized bumps the first; the frame
	// loop recreates the swapchain once they differ.
	sizeGeneration     uint64
	lastSizeGeneration uint64
	cachedWidth        uint32
	cachedHeight       uint32
	recreatingSwapchain bool
}

// Initialize implements renderer.Backend. It brings up the whole device
// stack and must be the first call on the backend.
func (b *Backend) Initialize(applicationName string) error {
	if b.initialized {
		return errors.New("vulkan: initialize called twice without shutdown")
	}
	if b.configuration.CreateSurface == nil {
		return errors.New("vulkan: no surface provider configured")
	}

	if b.configuration.ProcAddr == nil {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			return errors.New("vk.SetDefaultGetInstanceProcAddr(): " + err.Error())
		}
	} else {
		vk.SetGetInstanceProcAddr(b.configuration.ProcAddr)
	}

	if err := vk.Init(); err != nil {
		return errors.New("vk.Init(): " + err.Error())
	}

	if err := b.createInstance(applicationName); err != nil {
		return err
	}

	surface, err := b.configuration.CreateSurface(b.instance)
	if err != nil {
		return errors.New("vulkan: surface creation failed: " + err.Error())
	}
	b.surface = vk.SurfaceFromPointer(surface)

	if err := b.pickPhysicalDevice(); err != nil {
		return err
	}
	if err := b.createLogicalDevice(); err != nil {
		return err
	}

	allocator, err := newMemoryAllocator(b.logicalDevice, b.physicalDevice)
	if err != nil {
		return err
	}
	b.allocator = allocator

	if err := b.pickSurfaceFormat(); err != nil {
		return err
	}
	if err := b.createSwapchain(nil); err != nil {
		return err
	}
	if err := b.createDepthImage(); err != nil {
		return err
	}
	if err := b.createRenderPasses(); err != nil {
		return err
	}
	if err := b.createFramebuffers(); err != nil {
		return err
	}
	if err := b.createCommandPool(); err != nil {
		return err
	}
	if err := b.allocateCommandBuffers(); err != nil {
		return err
	}
	if err := b.createSynchronization(); err != nil {
		return err
	}
	if err := b.createDescriptorLayouts(); err != nil {
		return err
	}
	if err := b.createGlobalUniforms(); err != nil {
		return err
	}
	if err := b.loadShaders(); err != nil {
		return err
	}
	if err := b.createPipelines(); err != nil {
		return err
	}
	if err := b.createGeometryBuffers(); err != nil {
		return err
	}

	for i := range b.geometryPool.slots {
		b.geometryPool.slots[i].id = resource.InvalidID
	}
	for i := range b.materialSlots {
		b.materialSlots[i].id = resource.InvalidID
	}

	b.initialized = true
	log.Infof("vulkan renderer initialized for %s", applicationName)
	return nil
}

func (b *Backend) createInstance(applicationName string) error {
	extensions := append([]string{}, b.configuration.InstanceExtensions...)
	layers := []string{}
	if b.configuration.DebugMode {
		layers = append(layers, "VK_LAYER_KHRONOS_validation\x00")
		extensions = append(extensions, "VK_EXT_debug_report\x00")
	}

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         vk.MakeVersion(1, 0, 0),
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PApplicationName:   safeString(applicationName),
		PEngineName:        "Kestrel3D\x00",
	}

	instanceInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}

	var instance vk.Instance
	if err := vk.Error(vk.CreateInstance(&instanceInfo, nil, &instance)); err != nil {
		return errors.New("vk.CreateInstance(): " + err.Error())
	}
	vk.InitInstance(instance)
	b.instance = instance
	return nil
}

func (b *Backend) pickPhysicalDevice() error {
	var deviceCount uint32
	if err := vk.Error(vk.EnumeratePhysicalDevices(b.instance, &deviceCount, nil)); err != nil {
		return fmt.Errorf("vulkan physical device enumeration failed: %s", err)
	}
	if deviceCount == 0 {
		return errors.New("vulkan: no physical devices present")
	}
	devices := make([]vk.PhysicalDevice, deviceCount)
	if err := vk.Error(vk.EnumeratePhysicalDevices(b.instance, &deviceCount, devices)); err != nil {
		return fmt.Errorf("vulkan physical device enumeration failed: %s", err)
	}
	b.physicalDevice = devices[0]
	return nil
}

func (b *Backend) createLogicalDevice() error {
	var (
		queueFamilyCount uint32
		queueFamilies    []vk.QueueFamilyProperties
	)
	vk.GetPhysicalDeviceQueueFamilyProperties(b.physicalDevice, &queueFamilyCount, nil)
	if queueFamilyCount == 0 {
		return errors.New("vk.GetPhysicalDeviceQueueFamilyProperties(): no queue families on GPU")
	}
	queueFamilies = make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(b.physicalDevice, &queueFamilyCount, queueFamilies)

	found := false
	for i := uint32(0); i < queueFamilyCount; i++ {
		var supportsPresent vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(b.physicalDevice, i, b.surface, &supportsPresent)
		queueFamilies[i].Deref()
		if queueFamilies[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 && supportsPresent.B() {
			b.graphicsQueueIndex = i
			found = true
			break
		}
	}
	if !found {
		return errors.New("vulkan error: no queue family with graphics and present support")
	}

	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: b.graphicsQueueIndex,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}

	dci := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   1,
		PpEnabledExtensionNames: []string{vk.KhrSwapchainExtensionName + "\x00"},
	}

	var device vk.Device
	if err := vk.Error(vk.CreateDevice(b.physicalDevice, &dci, nil, &device)); err != nil {
		return errors.New("vk.CreateDevice(): " + err.Error())
	}
	b.logicalDevice = device

	var queue vk.Queue
	vk.GetDeviceQueue(device, b.graphicsQueueIndex, 0, &queue)
	b.deviceQueue = queue
	return nil
}

func (b *Backend) pickSurfaceFormat() error {
	var formatCount uint32
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(b.physicalDevice, b.surface, &formatCount, nil)); err != nil {
		return errors.New("vk.GetPhysicalDeviceSurfaceFormats(): " + err.Error())
	}
	formats := make([]vk.SurfaceFormat, formatCount)
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(b.physicalDevice, b.surface, &formatCount, formats)); err != nil {
		return errors.New("vk.GetPhysicalDeviceSurfaceFormats(): " + err.Error())
	}
	formats[0].Deref()
	b.imageFormat = formats[0].Format
	b.imageColorspace = formats[0].ColorSpace
	return nil
}

// Shutdown implements renderer.Backend. Destroys everything in the
// opposite order of creation. The caller must have destroyed all
// textures, materials and geometries first.
func (b *Backend) Shutdown() {
	if !b.initialized {
		return
	}
	vk.DeviceWaitIdle(b.logicalDevice)

	for i := range b.geometryPool.slots {
		if b.geometryPool.slots[i].id != resource.InvalidID {
			log.Warnf("vulkan renderer shut down with geometry slot %d still alive", i)
		}
	}

	b.geometryPool.vertexBuffer.destroy(b.logicalDevice)
	b.geometryPool.indexBuffer.destroy(b.logicalDevice)

	vk.DestroyPipeline(b.logicalDevice, b.pipelines.world, nil)
	vk.DestroyPipeline(b.logicalDevice, b.pipelines.ui, nil)
	vk.DestroyPipelineCache(b.logicalDevice, b.pipelines.cache, nil)
	vk.DestroyPipelineLayout(b.logicalDevice, b.pipelines.layout, nil)
	b.shaders.destroy(b.logicalDevice)

	for i := range b.globalUniformBuffers {
		b.globalUniformBuffers[i].destroy(b.logicalDevice)
	}
	vk.DestroyDescriptorPool(b.logicalDevice, b.globalDescriptorPool, nil)
	vk.DestroyDescriptorPool(b.logicalDevice, b.materialDescriptorPool, nil)
	vk.DestroyDescriptorSetLayout(b.logicalDevice, b.globalDescriptorSetLayout, nil)
	vk.DestroyDescriptorSetLayout(b.logicalDevice, b.materialDescriptorSetLayout, nil)

	vk.DestroySemaphore(b.logicalDevice, b.imageAvailableSemaphore, nil)
	vk.DestroySemaphore(b.logicalDevice, b.renderFinishedSemphore, nil)
	vk.DestroyFence(b.logicalDevice, b.imageFence, nil)

	vk.DestroyCommandPool(b.logicalDevice, b.commandPool, nil)

	b.destroyFramebuffers()
	vk.DestroyRenderPass(b.logicalDevice, b.worldRenderPass, nil)
	vk.DestroyRenderPass(b.logicalDevice, b.uiRenderPass, nil)
	b.destroyDepthImage()
	b.destroySwapchainViews()
	vk.DestroySwapchain(b.logicalDevice, b.swapchain, nil)

	vk.DestroyDevice(b.logicalDevice, nil)
	vk.DestroySurface(b.instance, b.surface, nil)
	vk.DestroyInstance(b.instance, nil)

	b.initialized = false
	log.Info("vulkan renderer shut down")
}

// Resized implements renderer.Backend. Only records the new size and
// bumps the size generation; the swapchain is recreated lazily by the
// next BeginFrame.
func (b *Backend) Resized(width, height uint16) {
	if b.frameActive {
		log.Error("vulkan renderer resized during an active frame")
		return
	}
	b.cachedWidth = uint32(width)
	b.cachedHeight = uint32(height)
	b.sizeGeneration++
	log.Debugf("vulkan renderer resized: %d/%d gen %d", width, height, b.sizeGeneration)
}

// FrameNumber implements renderer.Backend.
func (b *Backend) FrameNumber() uint64 {
	return b.frameNumber
}

// BeginFrame implements renderer.Backend. Returns (false, nil) while a
// swapchain recreate is in flight or required, which tells the frontend
// to drop this tick and retry.
func (b *Backend) BeginFrame(deltaTime float32) (bool, error) {
	if !b.initialized {
		return false, renderer.ErrNotInitialized
	}
	if b.frameActive {
		return false, renderer.ErrFrameActive
	}

	if b.recreatingSwapchain {
		if err := vk.Error(vk.DeviceWaitIdle(b.logicalDevice)); err != nil {
			return false, errors.New("vk.DeviceWaitIdle(): " + err.Error())
		}
		return false, nil
	}

	if b.sizeGeneration != b.lastSizeGeneration {
		if err := vk.Error(vk.DeviceWaitIdle(b.logicalDevice)); err != nil {
			return false, errors.New("vk.DeviceWaitIdle(): " + err.Error())
		}
		if !b.recreateSwapchain() {
			// Window minimized or recreate already running, retry later.
			return false, nil
		}
		log.Debug("swapchain recreated after resize, booting frame")
		return false, nil
	}

	if err := vk.Error(vk.WaitForFences(b.logicalDevice, 1, []vk.Fence{b.imageFence}, vk.True, math.MaxUint64)); err != nil {
		return false, errors.New("vk.WaitForFences(): " + err.Error())
	}

	result := vk.AcquireNextImage(b.logicalDevice, b.swapchain, math.MaxUint64, b.imageAvailableSemaphore, nil, &b.imageIndex)
	if result == vk.ErrorOutOfDate || result == vk.Suboptimal {
		if !b.recreateSwapchain() {
			return false, nil
		}
		return false, nil
	}
	if err := vk.Error(result); err != nil {
		return false, errors.New("vk.AcquireNextImage(): " + err.Error())
	}

	commandBuffer := b.commandBuffers[b.imageIndex]
	if err := vk.Error(vk.ResetCommandBuffer(commandBuffer, 0)); err != nil {
		return false, errors.New("vk.ResetCommandBuffer(): " + err.Error())
	}
	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if err := vk.Error(vk.BeginCommandBuffer(commandBuffer, &cbbi)); err != nil {
		return false, errors.New("vk.BeginCommandBuffer(): " + err.Error())
	}

	viewport := vk.Viewport{
		X:        0,
		Y:        0,
		Width:    float32(b.surfaceWidth),
		Height:   float32(b.surfaceHeight),
		MinDepth: 0,
		MaxDepth: 1,
	}
	scissor := vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: vk.Extent2D{Width: b.surfaceWidth, Height: b.surfaceHeight},
	}
	vk.CmdSetViewport(commandBuffer, 0, 1, []vk.Viewport{viewport})
	vk.CmdSetScissor(commandBuffer, 0, 1, []vk.Rect2D{scissor})

	b.frameActive = true
	return true, nil
}

// EndFrame implements renderer.Backend. Submits the recorded commands,
// presents and increments the frame number.
func (b *Backend) EndFrame(deltaTime float32) error {
	if !b.frameActive {
		return renderer.ErrNoFrameActive
	}
	if b.activePass != 0 {
		log.Errorf("frame ended with renderpass %s still active", b.activePass)
		return renderer.ErrPassActive
	}
	b.frameActive = false

	commandBuffer := b.commandBuffers[b.imageIndex]
	if err := vk.Error(vk.EndCommandBuffer(commandBuffer)); err != nil {
		return errors.New("vk.EndCommandBuffer(): " + err.Error())
	}

	if err := vk.Error(vk.ResetFences(b.logicalDevice, 1, []vk.Fence{b.imageFence})); err != nil {
		return errors.New("vk.ResetFences(): " + err.Error())
	}

	submit := []vk.SubmitInfo{{
		SType:              vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{b.imageAvailableSemaphore},
		PWaitDstStageMask: []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{commandBuffer},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{b.renderFinishedSemphore},
	}}
	if err := vk.Error(vk.QueueSubmit(b.deviceQueue, 1, submit, b.imageFence)); err != nil {
		return errors.New("vk.QueueSubmit(): " + err.Error())
	}

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{b.renderFinishedSemphore},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{b.swapchain},
		PImageIndices:      []uint32{b.imageIndex},
	}
	presentResult := vk.QueuePresent(b.deviceQueue, &presentInfo)
	if presentResult == vk.ErrorOutOfDate || presentResult == vk.Suboptimal {
		b.recreateSwapchain()
	} else if err := vk.Error(presentResult); err != nil {
		return errors.New("vk.QueuePresent(): " + err.Error())
	}

	b.frameNumber++
	return nil
}

// BeginRenderpass implements renderer.Backend.
func (b *Backend) BeginRenderpass(id renderer.RenderpassID) error {
	if !b.frameActive {
		return renderer.ErrNoFrameActive
	}
	if b.activePass != 0 {
		return renderer.ErrPassActive
	}

	var (
		renderPass  vk.RenderPass
		framebuffer vk.Framebuffer
		pipeline    vk.Pipeline
		clearValues []vk.ClearValue
	)
	switch id {
	case renderer.RenderpassWorld:
		renderPass = b.worldRenderPass
		framebuffer = b.worldFramebuffers[b.imageIndex]
		pipeline = b.pipelines.world
		clearValues = make([]vk.ClearValue, 2)
		clearValues[0].SetColor([]float32{0.0, 0.0, 0.2, 1.0})
		clearValues[1].SetDepthStencil(1, 0)
	case renderer.RenderpassUI:
		renderPass = b.uiRenderPass
		framebuffer = b.uiFramebuffers[b.imageIndex]
		pipeline = b.pipelines.ui
	default:
		return fmt.Errorf("vulkan: unknown renderpass id %#x", uint8(id))
	}

	commandBuffer := b.commandBuffers[b.imageIndex]
	rpbi := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  renderPass,
		Framebuffer: framebuffer,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: b.surfaceWidth, Height: b.surfaceHeight},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(commandBuffer, &rpbi, vk.SubpassContentsInline)
	vk.CmdBindPipeline(commandBuffer, vk.PipelineBindPointGraphics, pipeline)
	vk.CmdBindDescriptorSets(commandBuffer, vk.PipelineBindPointGraphics, b.pipelines.layout,
		0, 1, []vk.DescriptorSet{b.globalDescriptorSets[b.imageIndex]}, 0, nil)

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
	vk.CmdEndRenderPass(b.commandBuffers[b.imageIndex])
	b.activePass = 0
	return nil
}

// UpdateGlobalWorldState implements renderer.Backend. Writes the global
// uniform for the in-flight image; all world draws recorded after it
// use the new state.
func (b *Backend) UpdateGlobalWorldState(projection, view glm.Mat4, viewPosition glm.Vec3, ambientColour glm.Vec4, mode int32) {
	if b.activePass != renderer.RenderpassWorld {
		log.Error("world state update outside the world renderpass")
		return
	}
	b.writeGlobalUniform(globalUniform{
		Projection:    projection,
		View:          view,
		ViewPosition:  viewPosition.Vec4(0),
		AmbientColour: ambientColour,
		Mode:          mode,
	})
}

// UpdateGlobalUIState implements renderer.Backend.
func (b *Backend) UpdateGlobalUIState(projection, view glm.Mat4, mode int32) {
	if b.activePass != renderer.RenderpassUI {
		log.Error("ui state update outside the ui renderpass")
		return
	}
	b.writeGlobalUniform(globalUniform{
		Projection: projection,
		View:       view,
		Mode:       mode,
	})
}

func safeString(s string) string {
	return fmt.Sprintf("%s\x00", s)
}

func safeStrings(sgs []string) []string {
	safe := make([]string, 0, len(sgs))
	for _, s := range sgs {
		if len(s) > 0 && s[len(s)-1] == '\x00' {
			safe = append(safe, s)
			continue
		}
		safe = append(safe, fmt.Sprintf("%s\x00", s))
	}
	return safe
}
