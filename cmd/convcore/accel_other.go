//go:build !windows

package main

import (
	"errors"

	"github.com/born-ml/convcore/tensor"
)

func openAccelerator() (tensor.Backend, func(), error) {
	return nil, nil, errors.New("WebGPU backend is built on windows only")
}
