// Package main provides the convcore CLI.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"

	"github.com/born-ml/convcore/backend/cpu"
	"github.com/born-ml/convcore/nn"
	"github.com/born-ml/convcore/tensor"
)

const version = "v0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	var err error
	switch os.Args[1] {
	case "version":
		fmt.Printf("convcore %s\n", version)
	case "backends":
		err = listBackends()
	case "smoke":
		err = smoke(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "convcore: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("convcore - grouped convolution and deconvolution layers")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  version              Show version")
	fmt.Println("  backends             List available compute backends")
	fmt.Println("  smoke [-accel] [-v]  Run a 3x3 convolution on the host or accelerator")
}

func listBackends() error {
	host := cpu.New()
	fmt.Printf("%-8s %-8s available\n", host.Name(), host.Device())

	accel, release, err := openAccelerator()
	if err != nil {
		fmt.Printf("%-8s %-8s unavailable (%v)\n", "WebGPU", tensor.WebGPU, err)
		return nil
	}
	defer release()
	fmt.Printf("%-8s %-8s available\n", accel.Name(), accel.Device())
	return nil
}

// smoke runs a (1, 3, 5, 5) input through a 3x3, pad 1 convolution with two
// output channels, once without and once with bias [1, 2], and reports the
// output shape and the per-channel difference.
func smoke(args []string) error {
	fs := flag.NewFlagSet("smoke", flag.ContinueOnError)
	useAccel := fs.Bool("accel", false, "require the accelerator backend")
	verbose := fs.Bool("v", false, "debug logging")
	seed := fs.Int64("seed", 1, "random seed for weights and input")
	if err := fs.Parse(args); err != nil {
		return err
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := nn.DefaultConfig(nn.Square(3))
	cfg.Pad = nn.Square(1)
	cfg.Logger = logger

	var accel tensor.Backend
	device := tensor.CPU
	if *useAccel {
		a, release, err := openAccelerator()
		if err != nil {
			return fmt.Errorf("accelerator: %w", err)
		}
		defer release()
		accel, device = a, tensor.WebGPU
		cfg.Backend = nn.BackendAccelerator
	} else {
		cfg.Backend = nn.BackendHost
	}

	rng := rand.New(rand.NewSource(*seed))
	weight, err := randomTensor(rng, tensor.Shape{2, 3, 3, 3}, tensor.CPU)
	if err != nil {
		return err
	}
	bias, err := tensor.FromSlice([]float32{1, 2}, tensor.Shape{2}, tensor.CPU)
	if err != nil {
		return err
	}
	input, err := randomTensor(rng, tensor.Shape{1, 3, 5, 5}, device)
	if err != nil {
		return err
	}

	plain, err := runConv(cfg, accel, weight, nil, input)
	if err != nil {
		return err
	}
	biased, err := runConv(cfg, accel, weight, bias, input)
	if err != nil {
		return err
	}

	fmt.Printf("output shape: %v\n", biased.Shape())
	p, q := plain.AsFloat32(), biased.AsFloat32()
	plane := biased.Dim(2) * biased.Dim(3)
	for c := 0; c < biased.Dim(1); c++ {
		lo, hi := float32(0), float32(0)
		for k := c * plane; k < (c+1)*plane; k++ {
			d := q[k] - p[k]
			if k == c*plane || d < lo {
				lo = d
			}
			if k == c*plane || d > hi {
				hi = d
			}
		}
		fmt.Printf("channel %d: bias delta min %.6g max %.6g\n", c, lo, hi)
	}
	return nil
}

func runConv(cfg nn.Config, accel tensor.Backend, weight, bias, input *tensor.RawTensor) (*tensor.RawTensor, error) {
	conv, err := nn.NewConvolution(cfg, cpu.New(), accel)
	if err != nil {
		return nil, err
	}
	if err := conv.Bind(weight, bias); err != nil {
		return nil, err
	}
	if _, err := conv.Allocate([]tensor.Shape{input.Shape()}); err != nil {
		return nil, err
	}
	outs, err := conv.Forward([]*tensor.RawTensor{input})
	if err != nil {
		return nil, err
	}
	return outs[0], nil
}

func randomTensor(rng *rand.Rand, shape tensor.Shape, device tensor.Device) (*tensor.RawTensor, error) {
	data := make([]float32, shape.NumElements())
	for i := range data {
		data[i] = rng.Float32()*2 - 1
	}
	return tensor.FromSlice(data, shape, device)
}
