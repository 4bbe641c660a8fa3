//go:build metal && darwin && arm64 && cgo

package accel

/*
#cgo CFLAGS: -x objective-c -fobjc-arc
#cgo LDFLAGS: -framework Foundation -framework Metal -framework MetalPerformanceShaders
#include <stdlib.h>
#import <Foundation/Foundation.h>
#import <Metal/Metal.h>
#import <MetalPerformanceShaders/MetalPerformanceShaders.h>

typedef struct {
	void *device;
	void *queue;
	void *kernel;
	void *result;
	void *pending;
	int n;
} hw_mps;

static int hw_mps_open(hw_mps *ctx) {
	id<MTLDevice> device = MTLCreateSystemDefaultDevice();
	if (device == nil) {
		return 1;
	}
	if (!MPSSupportsMTLDevice(device)) {
		return 2;
	}
	id<MTLCommandQueue> queue = [device newCommandQueue];
	if (queue == nil) {
		return 3;
	}
	ctx->device = (__bridge_retained void *)device;
	ctx->queue = (__bridge_retained void *)queue;
	ctx->kernel = NULL;
	ctx->result = NULL;
	ctx->pending = NULL;
	ctx->n = 0;
	return 0;
}

static const char *hw_mps_name(hw_mps *ctx) {
	id<MTLDevice> device = (__bridge id<MTLDevice>)ctx->device;
	return [[device name] UTF8String];
}

static MPSMatrix *hw_mps_matrix(id<MTLDevice> device, id<MTLBuffer> buffer, int n) {
	MPSMatrixDescriptor *desc = [MPSMatrixDescriptor matrixDescriptorWithRows:n
	                                                                 columns:n
	                                                                rowBytes:n * sizeof(float)
	                                                                dataType:MPSDataTypeFloat32];
	return [[MPSMatrix alloc] initWithBuffer:buffer descriptor:desc];
}

static void *hw_mps_upload(hw_mps *ctx, const float *data, int n) {
	id<MTLDevice> device = (__bridge id<MTLDevice>)ctx->device;
	id<MTLBuffer> buffer = [device newBufferWithBytes:data
	                                           length:(NSUInteger)n * n * sizeof(float)
	                                          options:MTLResourceStorageModeShared];
	if (buffer == nil) {
		return NULL;
	}
	return (__bridge_retained void *)hw_mps_matrix(device, buffer, n);
}

static void hw_mps_release(void *obj) {
	if (obj != NULL) {
		CFBridgingRelease(obj);
	}
}

static int hw_mps_prepare(hw_mps *ctx, int n) {
	if (ctx->kernel != NULL && ctx->n == n) {
		return 0;
	}
	hw_mps_release(ctx->kernel);
	hw_mps_release(ctx->result);
	ctx->kernel = NULL;
	ctx->result = NULL;

	id<MTLDevice> device = (__bridge id<MTLDevice>)ctx->device;
	id<MTLBuffer> out = [device newBufferWithLength:(NSUInteger)n * n * sizeof(float)
	                                        options:MTLResourceStorageModePrivate];
	if (out == nil) {
		return 1;
	}
	MPSMatrixMultiplication *kernel = [[MPSMatrixMultiplication alloc] initWithDevice:device
	                                                                    transposeLeft:NO
	                                                                   transposeRight:NO
	                                                                       resultRows:n
	                                                                    resultColumns:n
	                                                                  interiorColumns:n
	                                                                            alpha:1.0
	                                                                             beta:0.0];
	ctx->kernel = (__bridge_retained void *)kernel;
	ctx->result = (__bridge_retained void *)hw_mps_matrix(device, out, n);
	ctx->n = n;
	return 0;
}

static int hw_mps_matmul(hw_mps *ctx, void *left, void *right, int n) {
	if (hw_mps_prepare(ctx, n) != 0) {
		return 1;
	}
	id<MTLCommandQueue> queue = (__bridge id<MTLCommandQueue>)ctx->queue;
	id<MTLCommandBuffer> cmd = [queue commandBuffer];
	if (cmd == nil) {
		return 2;
	}
	MPSMatrixMultiplication *kernel = (__bridge MPSMatrixMultiplication *)ctx->kernel;
	[kernel encodeToCommandBuffer:cmd
	                   leftMatrix:(__bridge MPSMatrix *)left
	                  rightMatrix:(__bridge MPSMatrix *)right
	                 resultMatrix:(__bridge MPSMatrix *)ctx->result];
	[cmd commit];
	hw_mps_release(ctx->pending);
	ctx->pending = (__bridge_retained void *)cmd;
	return 0;
}

static int hw_mps_sync(hw_mps *ctx) {
	if (ctx->pending == NULL) {
		return 0;
	}
	id<MTLCommandBuffer> cmd = (__bridge id<MTLCommandBuffer>)ctx->pending;
	[cmd waitUntilCompleted];
	int failed = [cmd status] == MTLCommandBufferStatusError;
	hw_mps_release(ctx->pending);
	ctx->pending = NULL;
	return failed;
}

static void hw_mps_close(hw_mps *ctx) {
	hw_mps_sync(ctx);
	hw_mps_release(ctx->result);
	hw_mps_release(ctx->kernel);
	hw_mps_release(ctx->queue);
	hw_mps_release(ctx->device);
	ctx->result = ctx->kernel = ctx->queue = ctx->device = NULL;
}
*/
import "C"

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/skobkin/hwbench/internal/workload"
)

type mpsBuffer struct {
	matrix unsafe.Pointer
	n      int
}

func (b *mpsBuffer) Release() {
	if b.matrix != nil {
		C.hw_mps_release(b.matrix)
		b.matrix = nil
	}
}

type mpsDevice struct {
	ctx  *C.hw_mps
	name string
}

// OpenUnified opens the integrated GPU through Metal Performance Shaders.
func OpenUnified() (Device, error) {
	ctx := (*C.hw_mps)(C.calloc(1, C.size_t(unsafe.Sizeof(C.hw_mps{}))))
	if ctx == nil {
		return nil, errors.New("mps: allocate context")
	}
	if code := C.hw_mps_open(ctx); code != 0 {
		C.free(unsafe.Pointer(ctx))
		return nil, fmt.Errorf("%w: metal device open failed (code %d)", ErrDriverUnavailable, int(code))
	}
	return &mpsDevice{ctx: ctx, name: C.GoString(C.hw_mps_name(ctx))}, nil
}

func (d *mpsDevice) Name() string {
	return d.name
}

func (d *mpsDevice) Upload(m workload.Matrix32) (Buffer, error) {
	if len(m.Data) == 0 {
		return nil, errors.New("upload empty matrix")
	}
	matrix := C.hw_mps_upload(d.ctx, (*C.float)(unsafe.Pointer(&m.Data[0])), C.int(m.N))
	if matrix == nil {
		return nil, errors.New("mps: allocate buffer")
	}
	return &mpsBuffer{matrix: matrix, n: m.N}, nil
}

func (d *mpsDevice) MatMul(a, b Buffer) error {
	left, ok := a.(*mpsBuffer)
	if !ok {
		return fmt.Errorf("matmul: foreign buffer %T", a)
	}
	right, ok := b.(*mpsBuffer)
	if !ok {
		return fmt.Errorf("matmul: foreign buffer %T", b)
	}
	if left.n != right.n {
		return fmt.Errorf("matmul: dimension mismatch %d != %d", left.n, right.n)
	}
	if code := C.hw_mps_matmul(d.ctx, left.matrix, right.matrix, C.int(left.n)); code != 0 {
		return fmt.Errorf("mps matmul: code %d", int(code))
	}
	return nil
}

func (d *mpsDevice) Synchronize() error {
	if C.hw_mps_sync(d.ctx) != 0 {
		return errors.New("mps: command buffer failed")
	}
	return nil
}

func (d *mpsDevice) Close() error {
	if d.ctx == nil {
		return nil
	}
	C.hw_mps_close(d.ctx)
	C.free(unsafe.Pointer(d.ctx))
	d.ctx = nil
	return nil
}
