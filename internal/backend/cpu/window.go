package cpu

import (
	"fmt"

	"github.com/born-ml/convcore/internal/parallel"
	"github.com/born-ml/convcore/internal/tensor"
)

// Im2Col gathers every receptive field of src [C, H, W] into one column of
// dst [C*kH*kW, GridH*GridW].
//
// Row (c*kH + i)*kW + j of dst holds kernel tap (c, i, j) for every window
// position; taps that fall into the padding read as zero.
//
// Reference: "High Performance Convolutional Neural Networks for Document Processing"
// (Chellapilla et al., 2006).
func (cpu *CPUBackend) Im2Col(src *tensor.RawTensor, w tensor.Window, dst *tensor.RawTensor) error {
	if err := cpu.checkWindow("im2col", src, dst, w, w.ColShape()); err != nil {
		return err
	}
	switch src.DType() {
	case tensor.Float32:
		im2col(src.AsFloat32(), w, dst.AsFloat32(), cpu.par)
	case tensor.Float64:
		im2col(src.AsFloat64(), w, dst.AsFloat64(), cpu.par)
	default:
		return fmt.Errorf("im2col: unsupported dtype %s", src.DType())
	}
	return nil
}

// Im2Row gathers every receptive field of src [C, H, W] into one row of
// dst [GridH*GridW, C*kH*kW]. It is the transpose of Im2Col.
func (cpu *CPUBackend) Im2Row(src *tensor.RawTensor, w tensor.Window, dst *tensor.RawTensor) error {
	if err := cpu.checkWindow("im2row", src, dst, w, w.RowShape()); err != nil {
		return err
	}
	switch src.DType() {
	case tensor.Float32:
		im2row(src.AsFloat32(), w, dst.AsFloat32(), cpu.par)
	case tensor.Float64:
		im2row(src.AsFloat64(), w, dst.AsFloat64(), cpu.par)
	default:
		return fmt.Errorf("im2row: unsupported dtype %s", src.DType())
	}
	return nil
}

// Col2Im overwrites dst [C, H, W] with the scatter-add of src
// [C*kH*kW, GridH*GridW]. Contributions of overlapping windows are summed;
// contributions that land in the padding are dropped.
func (cpu *CPUBackend) Col2Im(src *tensor.RawTensor, w tensor.Window, dst *tensor.RawTensor) error {
	if err := cpu.checkWindow("col2im", dst, src, w, w.ColShape()); err != nil {
		return err
	}
	switch src.DType() {
	case tensor.Float32:
		col2im(src.AsFloat32(), w, dst.AsFloat32(), cpu.par)
	case tensor.Float64:
		col2im(src.AsFloat64(), w, dst.AsFloat64(), cpu.par)
	default:
		return fmt.Errorf("col2im: unsupported dtype %s", src.DType())
	}
	return nil
}

func (cpu *CPUBackend) checkWindow(op string, image, matrix *tensor.RawTensor, w tensor.Window, matShape tensor.Shape) error {
	if err := cpu.checkDevice(op, image, matrix); err != nil {
		return err
	}
	return tensor.CheckWindowOperands(op, image, matrix, w, matShape)
}

// im2col fills dst channel by channel; channel c owns rows
// [c*kH*kW, (c+1)*kH*kW) so chunks never write the same element.
func im2col[T tensor.Float](src []T, w tensor.Window, dst []T, cfg parallel.Config) {
	positions := w.Positions()
	kernelArea := w.KernelH * w.KernelW

	parallel.For(w.Channels, kernelArea*positions, func(c int) {
		plane := src[c*w.Height*w.Width : (c+1)*w.Height*w.Width]
		for i := 0; i < w.KernelH; i++ {
			for j := 0; j < w.KernelW; j++ {
				row := (c*w.KernelH+i)*w.KernelW + j
				out := dst[row*positions : (row+1)*positions]
				for y := 0; y < w.GridH; y++ {
					ih := y*w.StrideH - w.PadH + i*w.DilationH
					line := out[y*w.GridW : (y+1)*w.GridW]
					if ih < 0 || ih >= w.Height {
						clear(line)
						continue
					}
					for x := range line {
						iw := x*w.StrideW - w.PadW + j*w.DilationW
						if iw >= 0 && iw < w.Width {
							line[x] = plane[ih*w.Width+iw]
						} else {
							line[x] = 0
						}
					}
				}
			}
		}
	}, cfg)
}

// im2row writes the transpose of im2col: position p owns row p, and tap t
// of channel c lands in column c*kH*kW + t.
func im2row[T tensor.Float](src []T, w tensor.Window, dst []T, cfg parallel.Config) {
	taps := w.Taps()
	kernelArea := w.KernelH * w.KernelW

	parallel.For(w.GridH, w.GridW*taps, func(y int) {
		for x := 0; x < w.GridW; x++ {
			out := dst[(y*w.GridW+x)*taps : (y*w.GridW+x+1)*taps]
			for c := 0; c < w.Channels; c++ {
				plane := src[c*w.Height*w.Width : (c+1)*w.Height*w.Width]
				for i := 0; i < w.KernelH; i++ {
					ih := y*w.StrideH - w.PadH + i*w.DilationH
					base := c*kernelArea + i*w.KernelW
					for j := 0; j < w.KernelW; j++ {
						iw := x*w.StrideW - w.PadW + j*w.DilationW
						if ih >= 0 && ih < w.Height && iw >= 0 && iw < w.Width {
							out[base+j] = plane[ih*w.Width+iw]
						} else {
							out[base+j] = 0
						}
					}
				}
			}
		}
	}, cfg)
}

// col2im zeroes each destination plane and accumulates into it. Taps are
// visited in a fixed order per channel, so the result does not depend on the
// parallel split.
func col2im[T tensor.Float](src []T, w tensor.Window, dst []T, cfg parallel.Config) {
	positions := w.Positions()
	kernelArea := w.KernelH * w.KernelW

	parallel.For(w.Channels, kernelArea*positions, func(c int) {
		plane := dst[c*w.Height*w.Width : (c+1)*w.Height*w.Width]
		clear(plane)
		for i := 0; i < w.KernelH; i++ {
			for j := 0; j < w.KernelW; j++ {
				row := (c*w.KernelH+i)*w.KernelW + j
				in := src[row*positions : (row+1)*positions]
				for y := 0; y < w.GridH; y++ {
					ih := y*w.StrideH - w.PadH + i*w.DilationH
					if ih < 0 || ih >= w.Height {
						continue
					}
					line := in[y*w.GridW : (y+1)*w.GridW]
					for x, v := range line {
						iw := x*w.StrideW - w.PadW + j*w.DilationW
						if iw >= 0 && iw < w.Width {
							plane[ih*w.Width+iw] += v
						}
					}
				}
			}
		}
	}, cfg)
}
