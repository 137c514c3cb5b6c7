package nn_test

import (
	"testing"

	"github.com/born-ml/convcore/backend/cpu"
	"github.com/born-ml/convcore/nn"
	"github.com/born-ml/convcore/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A 2x2 box filter over a 3x3 ramp, checked by hand.
func TestConvolution_BoxFilter(t *testing.T) {
	conv, err := nn.NewConvolution(nn.DefaultConfig(nn.Square(2)), cpu.New(), nil)
	require.NoError(t, err)

	w, err := tensor.FromSlice([]float32{1, 1, 1, 1}, tensor.Shape{1, 1, 2, 2}, tensor.CPU)
	require.NoError(t, err)
	b, err := tensor.FromSlice([]float32{10}, tensor.Shape{1}, tensor.CPU)
	require.NoError(t, err)
	require.NoError(t, conv.Bind(w, b))

	outs, err := conv.Allocate([]tensor.Shape{{1, 1, 3, 3}})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 1, 2, 2}, outs[0].Shape())
	assert.Equal(t, nn.Ready, conv.State())

	x, err := tensor.FromSlice([]float32{0, 1, 2, 3, 4, 5, 6, 7, 8}, tensor.Shape{1, 1, 3, 3}, tensor.CPU)
	require.NoError(t, err)
	outs, err = conv.Forward([]*tensor.RawTensor{x})
	require.NoError(t, err)
	assert.Equal(t, []float32{18, 22, 30, 34}, outs[0].AsFloat32())
}

// A stride-2 deconvolution with a 2x2 kernel of ones replicates each input
// pixel into a 2x2 block.
func TestDeconvolution_NearestUpsample(t *testing.T) {
	cfg := nn.DefaultConfig(nn.Square(2))
	cfg.Stride = nn.Square(2)
	up, err := nn.NewDeconvolution(cfg, cpu.New(), nil)
	require.NoError(t, err)

	w, err := tensor.FromSlice([]float64{1, 1, 1, 1}, tensor.Shape{1, 1, 2, 2}, tensor.CPU)
	require.NoError(t, err)
	require.NoError(t, up.Bind(w, nil))
	_, err = up.Allocate([]tensor.Shape{{1, 1, 2, 2}})
	require.NoError(t, err)

	x, err := tensor.FromSlice([]float64{1, 2, 3, 4}, tensor.Shape{1, 1, 2, 2}, tensor.CPU)
	require.NoError(t, err)
	outs, err := up.Forward([]*tensor.RawTensor{x})
	require.NoError(t, err)
	assert.Equal(t, []float64{
		1, 1, 2, 2,
		1, 1, 2, 2,
		3, 3, 4, 4,
		3, 3, 4, 4,
	}, outs[0].AsFloat64())
}

func TestErrorKinds(t *testing.T) {
	cfg := nn.DefaultConfig(nn.Square(3))
	cfg.Backend = nn.BackendAccelerator
	_, err := nn.NewConvolution(cfg, cpu.New(), nil)
	assert.ErrorIs(t, err, nn.ErrUnsupportedBackend)

	var le *nn.LayerError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, nn.ErrUnsupportedBackend, le.Kind)

	_, err = nn.InferConvolution(nn.DefaultConfig(nn.Square(3)), tensor.Shape{2, 3, 3, 3}, tensor.Shape{1, 3, 1, 1})
	assert.ErrorIs(t, err, nn.ErrInvalidConfiguration)
}

func TestConvOutputSize(t *testing.T) {
	out, lead := nn.ConvOutputSize(224, 7, 2, 1, 3, nn.PadExplicit)
	assert.Equal(t, 112, out)
	assert.Equal(t, 3, lead)

	assert.Equal(t, 224, nn.DeconvOutputSize(112, 7, 2, 1, 3, 1))
}
