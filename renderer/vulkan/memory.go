package vulkan

import (
	"errors"
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// newMemoryAllocator creates a memory allocator for the logical device,
// reading the physical device's memory properties to steer allocation.
func newMemoryAllocator(device vk.Device, phyDevice vk.PhysicalDevice) (*memoryAllocator, error) {
	var memProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(phyDevice, &memProperties)
	memProperties.Deref()

	return &memoryAllocator{
		device:        device,
		memProperties: memProperties,
	}, nil
}

// memoryAllocator hands out device memory for any resource that needs it.
type memoryAllocator struct {
	device        vk.Device
	memProperties vk.PhysicalDeviceMemoryProperties
}

func (ma *memoryAllocator) malloc(req vk.MemoryRequirements, prop vk.MemoryPropertyFlagBits) (vk.DeviceMemory, error) {
	memTypeIdx, err := ma.findMemoryType(req.MemoryTypeBits, vk.MemoryPropertyFlags(prop))
	if err != nil {
		return nil, err
	}

	mai := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: memTypeIdx,
	}

	var memory vk.DeviceMemory
	if err := vk.Error(vk.AllocateMemory(ma.device, &mai, nil, &memory)); err != nil {
		return nil, fmt.Errorf("vk.AllocateMemory(): %s", err.Error())
	}
	return memory, nil
}

func (ma *memoryAllocator) findMemoryType(filter uint32, prop vk.MemoryPropertyFlags) (uint32, error) {
	for idx := uint32(0); idx < ma.memProperties.MemoryTypeCount; idx++ {
		ma.memProperties.MemoryTypes[idx].Deref()
		if filter&(1<<idx) != 0 && (ma.memProperties.MemoryTypes[idx].PropertyFlags&prop) == prop {
			return idx, nil
		}
	}
	return 0, errors.New("suitable memory type not found")
}

// hostBuffer is a host-visible buffer kept alive for repeated writes,
// used for uniforms and staging.
type hostBuffer struct {
	buffer vk.Buffer
	memory vk.DeviceMemory
	size   vk.DeviceSize
}

func (h *hostBuffer) write(device vk.Device, offset vk.DeviceSize, data []byte) error {
	var pData unsafe.Pointer
	if err := vk.Error(vk.MapMemory(device, h.memory, offset, vk.DeviceSize(len(data)), 0, &pData)); err != nil {
		return errors.New("vk.MapMemory(): " + err.Error())
	}
	vk.Memcopy(pData, data)
	vk.UnmapMemory(device, h.memory)
	return nil
}

func (h *hostBuffer) destroy(device vk.Device) {
	vk.DestroyBuffer(device, h.buffer, nil)
	vk.FreeMemory(device, h.memory, nil)
}

// deviceBuffer is a device-local buffer filled through staging copies.
type deviceBuffer struct {
	buffer vk.Buffer
	memory vk.DeviceMemory
	size   vk.DeviceSize
}

func (d *deviceBuffer) destroy(device vk.Device) {
	vk.DestroyBuffer(device, d.buffer, nil)
	vk.FreeMemory(device, d.memory, nil)
}

func (b *Backend) createBuffer(size vk.DeviceSize, usage vk.BufferUsageFlagBits, props vk.MemoryPropertyFlagBits) (vk.Buffer, vk.DeviceMemory, error) {
	bci := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}

	var buffer vk.Buffer
	if err := vk.Error(vk.CreateBuffer(b.logicalDevice, &bci, nil, &buffer)); err != nil {
		return nil, nil, errors.New("vk.CreateBuffer(): " + err.Error())
	}

	var memoryRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(b.logicalDevice, buffer, &memoryRequirements)
	memoryRequirements.Deref()

	memory, err := b.allocator.malloc(memoryRequirements, props)
	if err != nil {
		vk.DestroyBuffer(b.logicalDevice, buffer, nil)
		return nil, nil, err
	}
	if err := vk.Error(vk.BindBufferMemory(b.logicalDevice, buffer, memory, 0)); err != nil {
		vk.DestroyBuffer(b.logicalDevice, buffer, nil)
		vk.FreeMemory(b.logicalDevice, memory, nil)
		return nil, nil, errors.New("vk.BindBufferMemory(): " + err.Error())
	}
	return buffer, memory, nil
}

// uploadToBuffer copies data into a device-local buffer at dstOffset
// through a throwaway staging buffer, blocking until the copy finished.
func (b *Backend) uploadToBuffer(dst vk.Buffer, dstOffset vk.DeviceSize, data []byte) error {
	staging, stagingMemory, err := b.createBuffer(vk.DeviceSize(len(data)),
		vk.BufferUsageTransferSrcBit,
		vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit)
	if err != nil {
		return err
	}
	defer func() {
		vk.DestroyBuffer(b.logicalDevice, staging, nil)
		vk.FreeMemory(b.logicalDevice, stagingMemory, nil)
	}()

	var pData unsafe.Pointer
	if err := vk.Error(vk.MapMemory(b.logicalDevice, stagingMemory, 0, vk.DeviceSize(len(data)), 0, &pData)); err != nil {
		return errors.New("vk.MapMemory(): " + err.Error())
	}
	vk.Memcopy(pData, data)
	vk.UnmapMemory(b.logicalDevice, stagingMemory)

	commandBuffer, err := b.beginOneTimeCommands()
	if err != nil {
		return err
	}
	region := vk.BufferCopy{
		SrcOffset: 0,
		DstOffset: dstOffset,
		Size:      vk.DeviceSize(len(data)),
	}
	vk.CmdCopyBuffer(commandBuffer, staging, dst, 1, []vk.BufferCopy{region})
	return b.endOneTimeCommands(commandBuffer)
}

// beginOneTimeCommands allocates and begins a throwaway command buffer
// for a synchronous transfer.
func (b *Backend) beginOneTimeCommands() (vk.CommandBuffer, error) {
	cbai := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        b.commandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	commandBuffers := make([]vk.CommandBuffer, 1)
	if err := vk.Error(vk.AllocateCommandBuffers(b.logicalDevice, &cbai, commandBuffers)); err != nil {
		return nil, errors.New("vk.AllocateCommandBuffers(): " + err.Error())
	}

	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := vk.Error(vk.BeginCommandBuffer(commandBuffers[0], &cbbi)); err != nil {
		vk.FreeCommandBuffers(b.logicalDevice, b.commandPool, 1, commandBuffers)
		return nil, errors.New("vk.BeginCommandBuffer(): " + err.Error())
	}
	return commandBuffers[0], nil
}

// endOneTimeCommands submits the command buffer and waits for the queue
// to drain, which makes the uploaded resource safe to use immediately.
func (b *Backend) endOneTimeCommands(commandBuffer vk.CommandBuffer) error {
	defer vk.FreeCommandBuffers(b.logicalDevice, b.commandPool, 1, []vk.CommandBuffer{commandBuffer})

	if err := vk.Error(vk.EndCommandBuffer(commandBuffer)); err != nil {
		return errors.New("vk.EndCommandBuffer(): " + err.Error())
	}
	submit := []vk.SubmitInfo{{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{commandBuffer},
	}}
	if err := vk.Error(vk.QueueSubmit(b.deviceQueue, 1, submit, nil)); err != nil {
		return errors.New("vk.QueueSubmit(): " + err.Error())
	}
	if err := vk.Error(vk.QueueWaitIdle(b.deviceQueue)); err != nil {
		return errors.New("vk.QueueWaitIdle(): " + err.Error())
	}
	return nil
}
