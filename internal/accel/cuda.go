//go:build cuda && linux && cgo

package accel

/*
#cgo LDFLAGS: -lcublas -lcudart
#include <cuda_runtime.h>
#include <cublas_v2.h>
*/
import "C"

import (
	"errors"
	"fmt"
	"os"
	"unsafe"

	"github.com/skobkin/hwbench/internal/workload"
)

type cudaBuffer struct {
	ptr unsafe.Pointer
	n   int
}

func (b *cudaBuffer) Release() {
	if b.ptr != nil {
		C.cudaFree(b.ptr)
		b.ptr = nil
	}
}

type cudaDevice struct {
	ordinal int
	name    string
	handle  C.cublasHandle_t
	out     *cudaBuffer
}

func openCUDA(index int) (Device, error) {
	// Keep CUDA ordinals in the same order NVML enumerates devices.
	if os.Getenv("CUDA_DEVICE_ORDER") == "" {
		_ = os.Setenv("CUDA_DEVICE_ORDER", "PCI_BUS_ID")
	}

	if err := cudaCheck(C.cudaSetDevice(C.int(index)), "set device"); err != nil {
		return nil, err
	}

	var props C.struct_cudaDeviceProp
	name := fmt.Sprintf("cuda:%d", index)
	if C.cudaGetDeviceProperties(&props, C.int(index)) == C.cudaSuccess {
		name = C.GoString(&props.name[0])
	}

	var handle C.cublasHandle_t
	if status := C.cublasCreate(&handle); status != C.CUBLAS_STATUS_SUCCESS {
		return nil, fmt.Errorf("cublas create: status %d", int(status))
	}

	return &cudaDevice{ordinal: index, name: name, handle: handle}, nil
}

func (d *cudaDevice) Name() string {
	return d.name
}

func (d *cudaDevice) Upload(m workload.Matrix32) (Buffer, error) {
	if len(m.Data) == 0 {
		return nil, errors.New("upload empty matrix")
	}
	if err := cudaCheck(C.cudaSetDevice(C.int(d.ordinal)), "set device"); err != nil {
		return nil, err
	}

	size := C.size_t(m.Bytes())
	var ptr unsafe.Pointer
	if err := cudaCheck(C.cudaMalloc(&ptr, size), "malloc"); err != nil {
		return nil, err
	}
	buf := &cudaBuffer{ptr: ptr, n: m.N}
	if err := cudaCheck(C.cudaMemcpy(buf.ptr, unsafe.Pointer(&m.Data[0]), size, C.cudaMemcpyHostToDevice), "memcpy"); err != nil {
		buf.Release()
		return nil, err
	}
	return buf, nil
}

func (d *cudaDevice) MatMul(a, b Buffer) error {
	left, ok := a.(*cudaBuffer)
	if !ok {
		return fmt.Errorf("matmul: foreign buffer %T", a)
	}
	right, ok := b.(*cudaBuffer)
	if !ok {
		return fmt.Errorf("matmul: foreign buffer %T", b)
	}
	if left.n != right.n {
		return fmt.Errorf("matmul: dimension mismatch %d != %d", left.n, right.n)
	}

	n := left.n
	if d.out == nil || d.out.n != n {
		if d.out != nil {
			d.out.Release()
		}
		var ptr unsafe.Pointer
		if err := cudaCheck(C.cudaMalloc(&ptr, C.size_t(n*n*4)), "malloc result"); err != nil {
			return err
		}
		d.out = &cudaBuffer{ptr: ptr, n: n}
	}

	alpha := C.float(1)
	beta := C.float(0)
	status := C.cublasSgemm(
		d.handle, C.CUBLAS_OP_N, C.CUBLAS_OP_N,
		C.int(n), C.int(n), C.int(n),
		&alpha,
		(*C.float)(left.ptr), C.int(n),
		(*C.float)(right.ptr), C.int(n),
		&beta,
		(*C.float)(d.out.ptr), C.int(n),
	)
	if status != C.CUBLAS_STATUS_SUCCESS {
		return fmt.Errorf("cublas sgemm: status %d", int(status))
	}
	return nil
}

func (d *cudaDevice) Synchronize() error {
	return cudaCheck(C.cudaDeviceSynchronize(), "synchronize")
}

func (d *cudaDevice) Close() error {
	if d.out != nil {
		d.out.Release()
		d.out = nil
	}
	if status := C.cublasDestroy(d.handle); status != C.CUBLAS_STATUS_SUCCESS {
		return fmt.Errorf("cublas destroy: status %d", int(status))
	}
	return nil
}

func cudaCheck(code C.cudaError_t, op string) error {
	if code == C.cudaSuccess {
		return nil
	}
	return fmt.Errorf("cuda %s: %s", op, C.GoString(C.cudaGetErrorString(code)))
}
