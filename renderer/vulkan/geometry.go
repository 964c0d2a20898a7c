package vulkan

import (
	"errors"
	"fmt"
	"unsafe"

	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"

	"github.com/kestrel3d/kestrel/renderer"
	"github.com/kestrel3d/kestrel/resource"
)

// geometryData is the backend-side record of one uploaded geometry:
// ranges inside the shared vertex and index buffers.
type geometryData struct {
	id         uint32
	generation uint32

	vertexCount        uint32
	vertexSize         uint32
	vertexBufferOffset vk.DeviceSize

	indexCount        uint32
	indexSize         uint32
	indexBufferOffset vk.DeviceSize
}

func (b *Backend) createGeometryBuffers() error {
	buffer, memory, err := b.createBuffer(vertexBufferSize,
		vk.BufferUsageVertexBufferBit|vk.BufferUsageTransferDstBit,
		vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		return errors.New("vertex buffer: " + err.Error())
	}
	b.geometryPool.vertexBuffer = deviceBuffer{buffer: buffer, memory: memory, size: vertexBufferSize}

	buffer, memory, err = b.createBuffer(indexBufferSize,
		vk.BufferUsageIndexBufferBit|vk.BufferUsageTransferDstBit,
		vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		b.geometryPool.vertexBuffer.destroy(b.logicalDevice)
		return errors.New("index buffer: " + err.Error())
	}
	b.geometryPool.indexBuffer = deviceBuffer{buffer: buffer, memory: memory, size: indexBufferSize}
	return nil
}

// CreateGeometry implements renderer.Backend. Vertex and index data are
// uploaded into candidate ranges first; the pool offsets and the slot
// are only committed once both uploads succeeded, so a failed upload
// leaves no allocation behind.
func (b *Backend) CreateGeometry(cfg resource.GeometryConfig) (*resource.Geometry, error) {
	if cfg.VertexCount == 0 || len(cfg.Vertices) == 0 {
		return nil, renderer.ErrNoVertexData
	}

	slot := resource.InvalidID
	for i := uint32(0); i < maxGeometryCount; i++ {
		if b.geometryPool.slots[i].id == resource.InvalidID {
			slot = i
			break
		}
	}
	if slot == resource.InvalidID {
		return nil, fmt.Errorf("vulkan: geometry pool exhausted (%d)", maxGeometryCount)
	}

	vertexTotal := vk.DeviceSize(len(cfg.Vertices))
	if b.geometryPool.vertexOffset+vertexTotal > b.geometryPool.vertexBuffer.size {
		return nil, errors.New("vulkan: vertex buffer exhausted")
	}
	indexTotal := vk.DeviceSize(len(cfg.Indices))
	if b.geometryPool.indexOffset+indexTotal > b.geometryPool.indexBuffer.size {
		return nil, errors.New("vulkan: index buffer exhausted")
	}

	if err := b.uploadToBuffer(b.geometryPool.vertexBuffer.buffer, b.geometryPool.vertexOffset, cfg.Vertices); err != nil {
		return nil, errors.New("vulkan: vertex upload failed: " + err.Error())
	}
	if cfg.IndexCount > 0 && len(cfg.Indices) > 0 {
		if err := b.uploadToBuffer(b.geometryPool.indexBuffer.buffer, b.geometryPool.indexOffset, cfg.Indices); err != nil {
			return nil, errors.New("vulkan: index upload failed: " + err.Error())
		}
	}

	data := &b.geometryPool.slots[slot]
	data.id = slot
	data.generation = 0
	data.vertexCount = cfg.VertexCount
	data.vertexSize = cfg.VertexSize
	data.vertexBufferOffset = b.geometryPool.vertexOffset
	data.indexCount = cfg.IndexCount
	data.indexSize = cfg.IndexSize
	data.indexBufferOffset = b.geometryPool.indexOffset

	b.geometryPool.vertexOffset += vertexTotal
	b.geometryPool.indexOffset += indexTotal

	return &resource.Geometry{
		ID:         slot,
		InternalID: slot,
		Generation: 0,
		Name:       cfg.Name,
	}, nil
}

// DestroyGeometry implements renderer.Backend. The buffer ranges are
// not reclaimed, only the slot is released; range reuse is a freelist
// concern this pool does not have yet.
func (b *Backend) DestroyGeometry(g *resource.Geometry) {
	if g == nil || g.InternalID >= maxGeometryCount {
		log.Error("destroy of an invalid geometry handle")
		return
	}
	data := &b.geometryPool.slots[g.InternalID]
	if data.id == resource.InvalidID {
		log.Errorf("double destroy of geometry %d", g.InternalID)
		return
	}
	vk.DeviceWaitIdle(b.logicalDevice)
	data.id = resource.InvalidID
	g.Generation = resource.InvalidGeneration
	g.InternalID = resource.InvalidID
}

// DrawGeometry implements renderer.Backend. Invalid handles are logged
// and dropped, they indicate a frontend bug.
func (b *Backend) DrawGeometry(data renderer.GeometryRenderData) {
	if b.activePass == 0 {
		log.Error("draw outside of a renderpass")
		return
	}
	geometry := data.Geometry
	if geometry == nil || geometry.InternalID >= maxGeometryCount {
		log.Error("draw with an invalid geometry handle")
		return
	}
	internal := &b.geometryPool.slots[geometry.InternalID]
	if internal.id == resource.InvalidID {
		log.Errorf("draw with destroyed geometry %d", geometry.InternalID)
		return
	}

	commandBuffer := b.commandBuffers[b.imageIndex]

	model := data.Model
	vk.CmdPushConstants(commandBuffer, b.pipelines.layout,
		vk.ShaderStageFlags(vk.ShaderStageVertexBit), 0,
		uint32(unsafe.Sizeof(model)), unsafe.Pointer(&model[0]))

	if geometry.Material != nil {
		b.bindMaterial(commandBuffer, geometry.Material)
	}

	vk.CmdBindVertexBuffers(commandBuffer, 0, 1,
		[]vk.Buffer{b.geometryPool.vertexBuffer.buffer},
		[]vk.DeviceSize{internal.vertexBufferOffset})

	if internal.indexCount > 0 {
		indexType := vk.IndexTypeUint32
		if internal.indexSize == 2 {
			indexType = vk.IndexTypeUint16
		}
		vk.CmdBindIndexBuffer(commandBuffer, b.geometryPool.indexBuffer.buffer, internal.indexBufferOffset, indexType)
		vk.CmdDrawIndexed(commandBuffer, internal.indexCount, 1, 0, 0, 0)
		return
	}
	vk.CmdDraw(commandBuffer, internal.vertexCount, 1, 0, 0)
}
