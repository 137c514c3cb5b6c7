//go:build windows

package main

import (
	"github.com/born-ml/convcore/backend/webgpu"
	"github.com/born-ml/convcore/tensor"
)

func openAccelerator() (tensor.Backend, func(), error) {
	gpu, err := webgpu.New()
	if err != nil {
		return nil, nil, err
	}
	return gpu, gpu.Release, nil
}
