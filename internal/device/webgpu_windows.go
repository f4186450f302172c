//go:build windows

package device

import (
	"encoding/binary"
	"fmt"
	"sync"
	"unsafe"

	"github.com/born-ml/resnet/internal/tensor"
	"github.com/go-webgpu/webgpu/wgpu"
)

// gemmShader computes result = A @ B for row-major A [M, K] and B [K, N].
const gemmShader = `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;

struct Params {
    M: u32,
    K: u32,
    N: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size(16, 16)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let row = global_id.y;
    let col = global_id.x;

    if (row >= params.M || col >= params.N) {
        return;
    }

    var sum: f32 = 0.0;
    for (var k: u32 = 0u; k < params.K; k = k + 1u) {
        sum = sum + a[row * params.K + k] * b[k * params.N + col];
    }
    result[row * params.N + col] = sum;
}
`

// WebGPUDevice offloads products to a GPU compute shader. Operands are uploaded per call;
// the rest of the pipeline stays on the host.
type WebGPUDevice struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	shader   *wgpu.ShaderModule
	pipeline *wgpu.ComputePipeline
	name     string
	mu       sync.Mutex
}

// NewWebGPU initializes the first high-performance adapter.
func NewWebGPU() (dev *WebGPUDevice, err error) {
	// The native library panics when it cannot be loaded.
	defer func() {
		if r := recover(); r != nil {
			dev = nil
			err = fmt.Errorf("%w: webgpu native library: %v", ErrUnavailable, r)
		}
	}()

	if err := wgpu.Init(); err != nil {
		return nil, fmt.Errorf("%w: webgpu init: %v", ErrUnavailable, err)
	}
	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: webgpu instance: %v", ErrUnavailable, err)
	}
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("%w: webgpu adapter: %v", ErrUnavailable, err)
	}
	device, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: webgpu device: %v", ErrUnavailable, err)
	}
	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: webgpu queue", ErrUnavailable)
	}

	shader := device.CreateShaderModuleWGSL(gemmShader)
	pipeline := device.CreateComputePipelineSimple(nil, shader, "main")

	return &WebGPUDevice{
		instance: instance,
		adapter:  adapter,
		device:   device,
		queue:    queue,
		shader:   shader,
		pipeline: pipeline,
		name:     "WebGPU",
	}, nil
}

// Kind returns KindWebGPU.
func (d *WebGPUDevice) Kind() Kind { return KindWebGPU }

// Name returns the adapter description.
func (d *WebGPUDevice) Name() string { return d.name }

// Tag returns the tensor device tag.
func (d *WebGPUDevice) Tag() tensor.Device { return tensor.WebGPU }

// Gemm computes C = alpha * op(A) @ op(B) + beta * C on the GPU.
func (d *WebGPUDevice) Gemm(transA, transB bool, m, n, k int, alpha float32, a, b []float32, beta float32, c []float32) error {
	if err := checkGemm(m, n, k, a, b, c); err != nil {
		return err
	}
	if transA {
		a = transpose(a, k, m)
	}
	if transB {
		b = transpose(b, n, k)
	}

	d.mu.Lock()
	product, err := d.matmul(a[:m*k], b[:k*n], m, n, k)
	d.mu.Unlock()
	if err != nil {
		return err
	}

	for i := 0; i < m*n; i++ {
		if beta == 0 {
			c[i] = alpha * product[i]
		} else {
			c[i] = alpha*product[i] + beta*c[i]
		}
	}
	return nil
}

func (d *WebGPUDevice) matmul(a, b []float32, m, n, k int) ([]float32, error) {
	bufferA := d.upload(float32Bytes(a), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
	defer bufferA.Release()
	bufferB := d.upload(float32Bytes(b), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
	defer bufferB.Release()

	//nolint:gosec // G115: matrix dimensions are positive
	resultSize := uint64(m * n * 4)
	bufferResult := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  resultSize,
	})
	defer bufferResult.Release()

	params := make([]byte, 16)
	//nolint:gosec // G115: matrix dimensions are positive
	binary.LittleEndian.PutUint32(params[0:4], uint32(m))
	//nolint:gosec // G115: matrix dimensions are positive
	binary.LittleEndian.PutUint32(params[4:8], uint32(k))
	//nolint:gosec // G115: matrix dimensions are positive
	binary.LittleEndian.PutUint32(params[8:12], uint32(n))
	bufferParams := d.upload(params, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)
	defer bufferParams.Release()

	layout := d.pipeline.GetBindGroupLayout(0)
	//nolint:gosec // G115: byte sizes are positive
	bindGroup := d.device.CreateBindGroupSimple(layout, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, bufferA, 0, uint64(len(a)*4)),
		wgpu.BufferBindingEntry(1, bufferB, 0, uint64(len(b)*4)),
		wgpu.BufferBindingEntry(2, bufferResult, 0, resultSize),
		wgpu.BufferBindingEntry(3, bufferParams, 0, 16),
	})
	defer bindGroup.Release()

	encoder := d.device.CreateCommandEncoder(nil)
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(d.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	//nolint:gosec // G115: workgroup counts are positive
	pass.DispatchWorkgroups(uint32((n+15)/16), uint32((m+15)/16), 1)
	pass.End()
	d.queue.Submit(encoder.Finish(nil))

	raw, err := d.read(bufferResult, resultSize)
	if err != nil {
		return nil, err
	}
	out := make([]float32, m*n)
	copy(float32Bytes(out), raw)
	return out, nil
}

func (d *WebGPUDevice) upload(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := (uint64(len(data)) + 15) &^ 15
	buffer := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mapped := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice over the mapped range
	copy(unsafe.Slice((*byte)(mapped), size), data)
	buffer.Unmap()
	return buffer
}

func (d *WebGPUDevice) read(src *wgpu.Buffer, size uint64) ([]byte, error) {
	staging := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := d.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, staging, 0, size)
	d.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(d.device, wgpu.MapModeRead, 0, size); err != nil {
		return nil, fmt.Errorf("webgpu: map staging buffer: %w", err)
	}
	mapped := staging.GetMappedRange(0, size)
	out := make([]byte, size)
	//nolint:gosec // unsafe.Slice over the mapped range
	copy(out, unsafe.Slice((*byte)(mapped), size))
	staging.Unmap()
	return out, nil
}

// Release frees all GPU objects.
func (d *WebGPUDevice) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pipeline != nil {
		d.pipeline.Release()
		d.pipeline = nil
	}
	if d.shader != nil {
		d.shader.Release()
		d.shader = nil
	}
	if d.queue != nil {
		d.queue.Release()
		d.queue = nil
	}
	if d.device != nil {
		d.device.Release()
		d.device = nil
	}
	if d.adapter != nil {
		d.adapter.Release()
		d.adapter = nil
	}
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
}

func float32Bytes(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	//nolint:gosec // reinterpret float32 storage as bytes
	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*4)
}
