package vulkan

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"

	"github.com/kestrel3d/kestrel/resource"
)

const textureFormat = vk.FormatR8g8b8a8Unorm

// vulkanTexture is the backend side of a texture handle, stored in
// resource.Texture.Internal.
type vulkanTexture struct {
	image   vk.Image
	memory  vk.DeviceMemory
	view    vk.ImageView
	sampler vk.Sampler
}

func (t *vulkanTexture) destroy(device vk.Device) {
	vk.DestroySampler(device, t.sampler, nil)
	vk.DestroyImageView(device, t.view, nil)
	vk.DestroyImage(device, t.image, nil)
	vk.FreeMemory(device, t.memory, nil)
}

// CreateTexture implements renderer.Backend. Pixels are expected tightly
// packed RGBA; the upload goes through a staging buffer and the image
// ends up in shader read only layout. Nothing is recorded in the backend
// on failure.
func (b *Backend) CreateTexture(pixels []uint8, cfg resource.TextureConfig) (*resource.Texture, error) {
	if !b.initialized {
		return nil, errors.New("vulkan: texture created before initialization")
	}
	expected := int(cfg.Width) * int(cfg.Height) * 4
	if len(pixels) < expected {
		return nil, fmt.Errorf("vulkan: texture %s pixel buffer too small: %d < %d", cfg.Name, len(pixels), expected)
	}

	stagingBuffer, stagingMemory, err := b.createBuffer(vk.DeviceSize(expected),
		vk.BufferUsageTransferSrcBit,
		vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit)
	if err != nil {
		return nil, errors.New("vulkan: texture staging buffer: " + err.Error())
	}
	staging := hostBuffer{buffer: stagingBuffer, memory: stagingMemory, size: vk.DeviceSize(expected)}
	defer staging.destroy(b.logicalDevice)

	if err := staging.write(b.logicalDevice, 0, pixels[:expected]); err != nil {
		return nil, err
	}

	ici := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  cfg.Width,
			Height: cfg.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        textureFormat,
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         vk.ImageUsageFlags(vk.ImageUsageTransferDstBit | vk.ImageUsageSampledBit),
		SharingMode:   vk.SharingModeExclusive,
		Samples:       vk.SampleCount1Bit,
	}
	var image vk.Image
	if err := vk.Error(vk.CreateImage(b.logicalDevice, &ici, nil, &image)); err != nil {
		return nil, errors.New("vk.CreateImage(): " + err.Error())
	}

	var memoryRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(b.logicalDevice, image, &memoryRequirements)
	memoryRequirements.Deref()

	memory, err := b.allocator.malloc(memoryRequirements, vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		vk.DestroyImage(b.logicalDevice, image, nil)
		return nil, err
	}
	if err := vk.Error(vk.BindImageMemory(b.logicalDevice, image, memory, 0)); err != nil {
		vk.DestroyImage(b.logicalDevice, image, nil)
		vk.FreeMemory(b.logicalDevice, memory, nil)
		return nil, errors.New("vk.BindImageMemory(): " + err.Error())
	}

	texture := &vulkanTexture{image: image, memory: memory}
	if err := b.uploadTexture(texture, staging.buffer, cfg.Width, cfg.Height); err != nil {
		texture.destroy(b.logicalDevice)
		return nil, err
	}
	if err := b.createTextureView(texture); err != nil {
		texture.destroy(b.logicalDevice)
		return nil, err
	}
	if err := b.createTextureSampler(texture); err != nil {
		texture.destroy(b.logicalDevice)
		return nil, err
	}

	id := b.textureCount
	b.textureCount++

	log.Debugf("texture %s created as %dx%d id %d", cfg.Name, cfg.Width, cfg.Height, id)
	return &resource.Texture{
		ID:              id,
		Generation:      0,
		Width:           cfg.Width,
		Height:          cfg.Height,
		ChannelCount:    cfg.ChannelCount,
		HasTransparency: cfg.HasTransparency,
		Name:            cfg.Name,
		Internal:        texture,
	}, nil
}

// DestroyTexture implements renderer.Backend. The texture must not be
// referenced by any live material.
func (b *Backend) DestroyTexture(t *resource.Texture) {
	if t == nil || t.Internal == nil {
		log.Error("destroy of an invalid texture handle")
		return
	}
	internal, ok := t.Internal.(*vulkanTexture)
	if !ok {
		log.Errorf("texture %s does not belong to the vulkan backend", t.Name)
		return
	}
	vk.DeviceWaitIdle(b.logicalDevice)
	internal.destroy(b.logicalDevice)
	t.Internal = nil
	t.Generation = resource.InvalidGeneration
}

func (b *Backend) uploadTexture(texture *vulkanTexture, staging vk.Buffer, width, height uint32) error {
	if err := b.transitionLayout(texture.image, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal); err != nil {
		return err
	}
	if err := b.copyBufferToImage(staging, texture.image, width, height); err != nil {
		return err
	}
	return b.transitionLayout(texture.image, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal)
}

func (b *Backend) createTextureView(texture *vulkanTexture) error {
	ivci := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    texture.image,
		ViewType: vk.ImageViewType2d,
		Format:   textureFormat,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	var view vk.ImageView
	if err := vk.Error(vk.CreateImageView(b.logicalDevice, &ivci, nil, &view)); err != nil {
		return fmt.Errorf("vk.CreateImageView(): %s", err.Error())
	}
	texture.view = view
	return nil
}

func (b *Backend) createTextureSampler(texture *vulkanTexture) error {
	sci := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterLinear,
		MinFilter:               vk.FilterLinear,
		AddressModeU:            vk.SamplerAddressModeRepeat,
		AddressModeV:            vk.SamplerAddressModeRepeat,
		AddressModeW:            vk.SamplerAddressModeRepeat,
		AnisotropyEnable:        vk.True,
		MaxAnisotropy:           16,
		BorderColor:             vk.BorderColorFloatOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              vk.SamplerMipmapModeLinear,
	}

	var sampler vk.Sampler
	if err := vk.Error(vk.CreateSampler(b.logicalDevice, &sci, nil, &sampler)); err != nil {
		return fmt.Errorf("vk.CreateSampler(): %s", err.Error())
	}
	texture.sampler = sampler
	return nil
}

func (b *Backend) transitionLayout(img vk.Image, oldLayout, newLayout vk.ImageLayout) error {
	cmd, err := b.beginOneTimeCommands()
	if err != nil {
		return err
	}

	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img,
		SubresourceRange: vk.ImageSubresourceRange{
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
		},
	}

	var srcStage, dstStage vk.PipelineStageFlags
	if oldLayout == vk.ImageLayoutUndefined && newLayout == vk.ImageLayoutTransferDstOptimal {
		barrier.SrcAccessMask = 0
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	} else if oldLayout == vk.ImageLayoutTransferDstOptimal && newLayout == vk.ImageLayoutShaderReadOnlyOptimal {
		barrier.SrcAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessShaderReadBit)
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
	} else {
		return fmt.Errorf("unsupported layout transition %d to %d", oldLayout, newLayout)
	}

	vk.CmdPipelineBarrier(cmd, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
	return b.endOneTimeCommands(cmd)
}

func (b *Backend) copyBufferToImage(buf vk.Buffer, img vk.Image, width, height uint32) error {
	cmd, err := b.beginOneTimeCommands()
	if err != nil {
		return err
	}

	bic := vk.BufferImageCopy{
		ImageOffset: vk.Offset3D{},
		ImageExtent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			MipLevel:       0,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	vk.CmdCopyBufferToImage(cmd, buf, img, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{bic})
	return b.endOneTimeCommands(cmd)
}
