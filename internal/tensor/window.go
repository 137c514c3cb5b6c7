package tensor

import "fmt"

// Window describes the sliding-window geometry shared by the gather
// (im2col, im2row) and scatter-add (col2im) kernels.
//
// The image is [Channels, Height, Width]. The window grid has GridH x GridW
// positions; position (y, x) reads image rows y*StrideH - PadH + i*DilationH
// for kernel row i, and likewise for columns. Only the leading pad is needed:
// taps past the trailing edge are out of bounds and contribute zero.
type Window struct {
	Channels  int
	Height    int
	Width     int
	KernelH   int
	KernelW   int
	PadH      int
	PadW      int
	StrideH   int
	StrideW   int
	DilationH int
	DilationW int
	GridH     int
	GridW     int
}

// Validate checks that every extent is positive and pads are non-negative.
func (w Window) Validate() error {
	if w.Channels <= 0 || w.Height <= 0 || w.Width <= 0 {
		return fmt.Errorf("window: invalid image [%d, %d, %d]", w.Channels, w.Height, w.Width)
	}
	if w.KernelH <= 0 || w.KernelW <= 0 {
		return fmt.Errorf("window: invalid kernel %dx%d", w.KernelH, w.KernelW)
	}
	if w.StrideH <= 0 || w.StrideW <= 0 || w.DilationH <= 0 || w.DilationW <= 0 {
		return fmt.Errorf("window: invalid stride %dx%d or dilation %dx%d",
			w.StrideH, w.StrideW, w.DilationH, w.DilationW)
	}
	if w.PadH < 0 || w.PadW < 0 {
		return fmt.Errorf("window: invalid padding %dx%d", w.PadH, w.PadW)
	}
	if w.GridH <= 0 || w.GridW <= 0 {
		return fmt.Errorf("window: invalid grid %dx%d", w.GridH, w.GridW)
	}
	return nil
}

// Taps returns the number of elements in one receptive field (C*kH*kW).
func (w Window) Taps() int {
	return w.Channels * w.KernelH * w.KernelW
}

// Positions returns the number of window positions (GridH*GridW).
func (w Window) Positions() int {
	return w.GridH * w.GridW
}

// ImageSize returns the element count of the [C, H, W] image side.
func (w Window) ImageSize() int {
	return w.Channels * w.Height * w.Width
}

// ColShape returns the im2col matrix shape [C*kH*kW, GridH*GridW].
func (w Window) ColShape() Shape {
	return Shape{w.Taps(), w.Positions()}
}

// RowShape returns the im2row matrix shape [GridH*GridW, C*kH*kW].
func (w Window) RowShape() Shape {
	return Shape{w.Positions(), w.Taps()}
}
