package nn

// EffectiveKernel returns the extent covered by a dilated kernel.
func EffectiveKernel(kernel, dilation int) int {
	return dilation*(kernel-1) + 1
}

// ConvOutputSize returns the output extent of a convolution along one axis
// and the leading pad the window kernels must apply.
//
//	explicit: out = floor((in + 2*pad - effK) / stride) + 1, lead = pad
//	same:     out = ceil(in / stride), lead = total/2 where
//	          total = max(0, (out-1)*stride + effK - in)
//	valid:    out = ceil((in - effK + 1) / stride), lead = 0
//
// A non-positive out means no window fits.
func ConvOutputSize(in, kernel, stride, dilation, pad int, mode PadMode) (out, lead int) {
	effK := EffectiveKernel(kernel, dilation)
	switch mode {
	case PadSame:
		out = ceilDiv(in, stride)
		total := max(0, (out-1)*stride+effK-in)
		return out, total / 2
	case PadValid:
		if in < effK {
			return 0, 0
		}
		return ceilDiv(in-effK+1, stride), 0
	default:
		span := in + 2*pad - effK
		if span < 0 {
			return 0, pad
		}
		return span/stride + 1, pad
	}
}

// DeconvOutputSize returns the output extent of a deconvolution along one
// axis: stride*(in-1) + effK - 2*pad + adjust.
func DeconvOutputSize(in, kernel, stride, dilation, pad, adjust int) int {
	return stride*(in-1) + EffectiveKernel(kernel, dilation) - 2*pad + adjust
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
