package vulkan

import (
	"errors"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"unsafe"

	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/gobuffalo/packr"
	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"

	"github.com/kestrel3d/kestrel/asset"
)

// builtinShaders holds the precompiled SPIR-V for the world and ui
// pipelines so a bare binary renders without a shader directory.
var builtinShaders = packr.NewBox("../../shaders")

var shaderNames = []string{
	"world.vert.spv",
	"world.frag.spv",
	"ui.vert.spv",
	"ui.frag.spv",
}

// shaderSet holds the compiled modules for both pipelines.
type shaderSet struct {
	worldVertex   vk.ShaderModule
	worldFragment vk.ShaderModule
	uiVertex      vk.ShaderModule
	uiFragment    vk.ShaderModule
}

func (s *shaderSet) destroy(device vk.Device) {
	if s == nil {
		return
	}
	vk.DestroyShaderModule(device, s.worldVertex, nil)
	vk.DestroyShaderModule(device, s.worldFragment, nil)
	vk.DestroyShaderModule(device, s.uiVertex, nil)
	vk.DestroyShaderModule(device, s.uiFragment, nil)
}

// globalUniform is the per-pass global state laid out for std140. Mode
// is padded out to a 16 byte boundary.
type globalUniform struct {
	Projection    glm.Mat4
	View          glm.Mat4
	ViewPosition  glm.Vec4
	AmbientColour glm.Vec4
	Mode          int32
	_             [3]int32
}

func (b *Backend) writeGlobalUniform(u globalUniform) {
	size := unsafe.Sizeof(u)
	data := (*[1 << 10]byte)(unsafe.Pointer(&u))[:size:size]
	if err := b.globalUniformBuffers[b.imageIndex].write(b.logicalDevice, 0, data); err != nil {
		log.Errorf("global uniform write failed: %s", err)
	}
}

func (b *Backend) loadShaders() error {
	modules := make([]vk.ShaderModule, len(shaderNames))
	for idx, name := range shaderNames {
		var (
			contents []byte
			err      error
		)
		if dir := b.configuration.ShaderDirectory; dir != "" {
			contents, err = ioutil.ReadFile(filepath.Join(dir, name))
		} else {
			contents, err = builtinShaders.Find(name)
		}
		if err != nil {
			return fmt.Errorf("shader %s: %s", name, err.Error())
		}

		smci := vk.ShaderModuleCreateInfo{
			SType:    vk.StructureTypeShaderModuleCreateInfo,
			CodeSize: uint(len(contents)),
			PCode:    sliceUint32(contents),
		}
		var module vk.ShaderModule
		if err := vk.Error(vk.CreateShaderModule(b.logicalDevice, &smci, nil, &module)); err != nil {
			return fmt.Errorf("vk.CreateShaderModule(%s): %s", name, err.Error())
		}
		modules[idx] = module
	}
	b.shaders = &shaderSet{
		worldVertex:   modules[0],
		worldFragment: modules[1],
		uiVertex:      modules[2],
		uiFragment:    modules[3],
	}
	return nil
}

func (b *Backend) createDescriptorLayouts() error {
	globalInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: 1,
		PBindings: []vk.DescriptorSetLayoutBinding{{
			Binding:         0,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit),
		}},
	}
	var globalLayout vk.DescriptorSetLayout
	if err := vk.Error(vk.CreateDescriptorSetLayout(b.logicalDevice, &globalInfo, nil, &globalLayout)); err != nil {
		return errors.New("vk.CreateDescriptorSetLayout(): " + err.Error())
	}
	b.globalDescriptorSetLayout = globalLayout

	materialInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: 1,
		PBindings: []vk.DescriptorSetLayoutBinding{{
			Binding:         0,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
		}},
	}
	var materialLayout vk.DescriptorSetLayout
	if err := vk.Error(vk.CreateDescriptorSetLayout(b.logicalDevice, &materialInfo, nil, &materialLayout)); err != nil {
		return errors.New("vk.CreateDescriptorSetLayout(): " + err.Error())
	}
	b.materialDescriptorSetLayout = materialLayout

	plci := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 2,
		PSetLayouts: []vk.DescriptorSetLayout{
			b.globalDescriptorSetLayout,
			b.materialDescriptorSetLayout,
		},
		PushConstantRangeCount: 1,
		PPushConstantRanges: []vk.PushConstantRange{{
			StageFlags: vk.ShaderStageFlags(vk.ShaderStageVertexBit),
			Offset:     0,
			Size:       16 * 4, // model matrix
		}},
	}
	var pipelineLayout vk.PipelineLayout
	if err := vk.Error(vk.CreatePipelineLayout(b.logicalDevice, &plci, nil, &pipelineLayout)); err != nil {
		return errors.New("vk.CreatePipelineLayout(): " + err.Error())
	}
	b.pipelines.layout = pipelineLayout
	return nil
}

func (b *Backend) createGlobalUniforms() error {
	uniformSize := vk.DeviceSize(unsafe.Sizeof(globalUniform{}))

	b.globalUniformBuffers = make([]hostBuffer, len(b.swapchainImages))
	for idx := range b.swapchainImages {
		buffer, memory, err := b.createBuffer(uniformSize,
			vk.BufferUsageUniformBufferBit,
			vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit)
		if err != nil {
			return errors.New("global uniform buffer: " + err.Error())
		}
		b.globalUniformBuffers[idx] = hostBuffer{buffer: buffer, memory: memory, size: uniformSize}
	}

	dpci := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       uint32(len(b.swapchainImages)),
		PoolSizeCount: 1,
		PPoolSizes: []vk.DescriptorPoolSize{{
			Type:            vk.DescriptorTypeUniformBuffer,
			DescriptorCount: uint32(len(b.swapchainImages)),
		}},
	}
	var globalPool vk.DescriptorPool
	if err := vk.Error(vk.CreateDescriptorPool(b.logicalDevice, &dpci, nil, &globalPool)); err != nil {
		return errors.New("vk.CreateDescriptorPool(): " + err.Error())
	}
	b.globalDescriptorPool = globalPool

	b.globalDescriptorSets = make([]vk.DescriptorSet, len(b.swapchainImages))
	dsai := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     b.globalDescriptorPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{b.globalDescriptorSetLayout},
	}
	for idx := range b.swapchainImages {
		if err := vk.Error(vk.AllocateDescriptorSets(b.logicalDevice, &dsai, &b.globalDescriptorSets[idx])); err != nil {
			return fmt.Errorf("vk.AllocateDescriptorSets(): %s", err.Error())
		}

		dbi := vk.DescriptorBufferInfo{
			Buffer: b.globalUniformBuffers[idx].buffer,
			Offset: 0,
			Range:  uniformSize,
		}
		wds := []vk.WriteDescriptorSet{{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          b.globalDescriptorSets[idx],
			DstBinding:      0,
			DstArrayElement: 0,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,
			PBufferInfo:     []vk.DescriptorBufferInfo{dbi},
		}}
		vk.UpdateDescriptorSets(b.logicalDevice, uint32(len(wds)), wds, 0, nil)
	}

	// Material sets are allocated and freed individually as materials
	// come and go, so this pool needs the free bit.
	mpci := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       maxMaterialCount,
		PoolSizeCount: 1,
		PPoolSizes: []vk.DescriptorPoolSize{{
			Type:            vk.DescriptorTypeCombinedImageSampler,
			DescriptorCount: maxMaterialCount,
		}},
	}
	var materialPool vk.DescriptorPool
	if err := vk.Error(vk.CreateDescriptorPool(b.logicalDevice, &mpci, nil, &materialPool)); err != nil {
		return errors.New("vk.CreateDescriptorPool(): " + err.Error())
	}
	b.materialDescriptorPool = materialPool
	return nil
}

func (b *Backend) createPipelines() error {
	pcci := vk.PipelineCacheCreateInfo{
		SType: vk.StructureTypePipelineCacheCreateInfo,
	}
	var pipelineCache vk.PipelineCache
	if err := vk.Error(vk.CreatePipelineCache(b.logicalDevice, &pcci, nil, &pipelineCache)); err != nil {
		return errors.New("vk.CreatePipelineCache(): " + err.Error())
	}
	b.pipelines.cache = pipelineCache

	world, err := b.createGraphicsPipeline(b.shaders.worldVertex, b.shaders.worldFragment, b.worldRenderPass, true)
	if err != nil {
		return err
	}
	b.pipelines.world = world

	ui, err := b.createGraphicsPipeline(b.shaders.uiVertex, b.shaders.uiFragment, b.uiRenderPass, false)
	if err != nil {
		return err
	}
	b.pipelines.ui = ui
	return nil
}

func (b *Backend) createGraphicsPipeline(vertex, fragment vk.ShaderModule, renderPass vk.RenderPass, depthTest bool) (vk.Pipeline, error) {
	stages := []vk.PipelineShaderStageCreateInfo{{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageVertexBit,
		Module: vertex,
		PName:  "main\x00",
	}, {
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageFragmentBit,
		Module: fragment,
		PName:  "main\x00",
	}}

	var depthStencil *vk.PipelineDepthStencilStateCreateInfo
	if depthTest {
		depthStencil = &vk.PipelineDepthStencilStateCreateInfo{
			SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
			DepthTestEnable:       vk.True,
			DepthWriteEnable:      vk.True,
			DepthCompareOp:        vk.CompareOpLessOrEqual,
			DepthBoundsTestEnable: vk.False,
			StencilTestEnable:     vk.False,
			Back: vk.StencilOpState{
				FailOp:    vk.StencilOpKeep,
				PassOp:    vk.StencilOpKeep,
				CompareOp: vk.CompareOpAlways,
			},
			Front: vk.StencilOpState{
				FailOp:    vk.StencilOpKeep,
				PassOp:    vk.StencilOpKeep,
				CompareOp: vk.CompareOpAlways,
			},
		}
	}

	gpci := []vk.GraphicsPipelineCreateInfo{{
		SType:      vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount: uint32(len(stages)),
		PStages:    stages,
		PVertexInputState: &vk.PipelineVertexInputStateCreateInfo{
			SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
			VertexBindingDescriptionCount:   1,
			PVertexBindingDescriptions:      asset.VertexBindingDescriptions(),
			VertexAttributeDescriptionCount: uint32(len(asset.VertexAttributeDescriptions())),
			PVertexAttributeDescriptions:    asset.VertexAttributeDescriptions(),
		},
		PInputAssemblyState: &vk.PipelineInputAssemblyStateCreateInfo{
			SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: vk.PrimitiveTopologyTriangleList,
		},
		PViewportState: &vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			ScissorCount:  1,
		},
		PRasterizationState: &vk.PipelineRasterizationStateCreateInfo{
			SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
			PolygonMode: vk.PolygonModeFill,
			CullMode:    vk.CullModeFlags(vk.CullModeBackBit),
			FrontFace:   vk.FrontFaceCounterClockwise,
			LineWidth:   1.0,
		},
		PDepthStencilState: depthStencil,
		PMultisampleState: &vk.PipelineMultisampleStateCreateInfo{
			SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples: vk.SampleCount1Bit,
		},
		PColorBlendState: &vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			AttachmentCount: 1,
			PAttachments: []vk.PipelineColorBlendAttachmentState{{
				ColorWriteMask:      0xF,
				BlendEnable:         vk.True,
				SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
				DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
				ColorBlendOp:        vk.BlendOpAdd,
				SrcAlphaBlendFactor: vk.BlendFactorSrcAlpha,
				DstAlphaBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
				AlphaBlendOp:        vk.BlendOpAdd,
			}},
		},
		PDynamicState: &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: 2,
			PDynamicStates: []vk.DynamicState{
				vk.DynamicStateScissor,
				vk.DynamicStateViewport,
			},
		},
		Layout:     b.pipelines.layout,
		RenderPass: renderPass,
	}}

	pipelines := make([]vk.Pipeline, len(gpci))
	if err := vk.Error(vk.CreateGraphicsPipelines(b.logicalDevice, b.pipelines.cache, uint32(len(gpci)), gpci, nil, pipelines)); err != nil {
		return nil, errors.New("vk.CreateGraphicsPipelines(): " + err.Error())
	}
	return pipelines[0], nil
}

type sliceHeader struct {
	Data uintptr
	Len  int
	Cap  int
}

// sliceUint32 reslices bytes into uint32 words for SPIR-V submission.
func sliceUint32(data []byte) []uint32 {
	const m = 0x7fffffff
	return (*[m / 4]uint32)(unsafe.Pointer((*sliceHeader)(unsafe.Pointer(&data)).Data))[:len(data)/4]
}
