package vulkan

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"

	"github.com/kestrel3d/kestrel/resource"
)

// materialData is the backend side of a material: one descriptor set
// sampling the diffuse map.
type materialData struct {
	id            uint32
	generation    uint32
	descriptorSet vk.DescriptorSet
}

// CreateMaterial implements renderer.Backend. The referenced diffuse map
// must be a live texture created by this backend; the material samples
// it without taking ownership.
func (b *Backend) CreateMaterial(cfg resource.MaterialConfig) (*resource.Material, error) {
	if !b.initialized {
		return nil, errors.New("vulkan: material created before initialization")
	}
	if cfg.DiffuseMap == nil {
		return nil, errors.New("vulkan: material requires a diffuse map")
	}
	texture, ok := cfg.DiffuseMap.Internal.(*vulkanTexture)
	if !ok || texture == nil {
		return nil, fmt.Errorf("vulkan: material %s references a dead or foreign texture", cfg.Name)
	}

	slot := resource.InvalidID
	for i := uint32(0); i < maxMaterialCount; i++ {
		if b.materialSlots[i].id == resource.InvalidID {
			slot = i
			break
		}
	}
	if slot == resource.InvalidID {
		return nil, fmt.Errorf("vulkan: material pool exhausted (%d)", maxMaterialCount)
	}

	dsai := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     b.materialDescriptorPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{b.materialDescriptorSetLayout},
	}
	var descriptorSet vk.DescriptorSet
	if err := vk.Error(vk.AllocateDescriptorSets(b.logicalDevice, &dsai, &descriptorSet)); err != nil {
		return nil, fmt.Errorf("vk.AllocateDescriptorSets(): %s", err.Error())
	}

	dii := vk.DescriptorImageInfo{
		ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
		ImageView:   texture.view,
		Sampler:     texture.sampler,
	}
	wds := []vk.WriteDescriptorSet{{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          descriptorSet,
		DstBinding:      0,
		DstArrayElement: 0,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		DescriptorCount: 1,
		PImageInfo:      []vk.DescriptorImageInfo{dii},
	}}
	vk.UpdateDescriptorSets(b.logicalDevice, uint32(len(wds)), wds, 0, nil)

	data := &b.materialSlots[slot]
	data.id = slot
	data.generation = 0
	data.descriptorSet = descriptorSet

	log.Debugf("material %s created as id %d", cfg.Name, slot)
	return &resource.Material{
		ID:            slot,
		InternalID:    slot,
		Generation:    0,
		Name:          cfg.Name,
		DiffuseColour: cfg.DiffuseColour,
		DiffuseMap:    cfg.DiffuseMap,
	}, nil
}

// DestroyMaterial implements renderer.Backend. Releases only the
// per-material state, the referenced textures stay alive.
func (b *Backend) DestroyMaterial(m *resource.Material) {
	if m == nil || m.InternalID >= maxMaterialCount {
		log.Error("destroy of an invalid material handle")
		return
	}
	data := &b.materialSlots[m.InternalID]
	if data.id == resource.InvalidID {
		log.Errorf("double destroy of material %d", m.InternalID)
		return
	}
	vk.DeviceWaitIdle(b.logicalDevice)
	if err := vk.Error(vk.FreeDescriptorSets(b.logicalDevice, b.materialDescriptorPool, 1, &data.descriptorSet)); err != nil {
		log.Errorf("vk.FreeDescriptorSets(): %s", err)
	}
	data.id = resource.InvalidID
	data.descriptorSet = nil
	m.Generation = resource.InvalidGeneration
	m.InternalID = resource.InvalidID
}

func (b *Backend) bindMaterial(commandBuffer vk.CommandBuffer, material *resource.Material) {
	if material.InternalID >= maxMaterialCount {
		log.Errorf("draw with an invalid material handle %d", material.InternalID)
		return
	}
	data := &b.materialSlots[material.InternalID]
	if data.id == resource.InvalidID {
		log.Errorf("draw with destroyed material %d", material.InternalID)
		return
	}
	vk.CmdBindDescriptorSets(commandBuffer, vk.PipelineBindPointGraphics, b.pipelines.layout,
		1, 1, []vk.DescriptorSet{data.descriptorSet}, 0, nil)
}
