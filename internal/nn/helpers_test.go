package nn

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/born-ml/convcore/internal/backend/cpu"
	"github.com/born-ml/convcore/internal/tensor"
	"github.com/stretchr/testify/require"
)

func randValues(rng *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.Float64()*2 - 1
	}
	return out
}

// newTensor builds a tensor of the given dtype from float64 values.
func newTensor(t testing.TB, data []float64, shape tensor.Shape, dtype tensor.DataType, device tensor.Device) *tensor.RawTensor {
	t.Helper()
	var (
		r   *tensor.RawTensor
		err error
	)
	if dtype == tensor.Float32 {
		f := make([]float32, len(data))
		for i, v := range data {
			f[i] = float32(v)
		}
		r, err = tensor.FromSlice(f, shape, device)
	} else {
		r, err = tensor.FromSlice(data, shape, device)
	}
	require.NoError(t, err)
	return r
}

// values returns the elements of r widened to float64.
func values(r *tensor.RawTensor) []float64 {
	if r.DType() == tensor.Float64 {
		return append([]float64(nil), r.AsFloat64()...)
	}
	f := r.AsFloat32()
	out := make([]float64, len(f))
	for i, v := range f {
		out[i] = float64(v)
	}
	return out
}

// naiveConv is the direct seven-loop grouped convolution.
func naiveConv(x []float64, xs tensor.Shape, w []float64, ws tensor.Shape, bias []float64, cfg Config, l LayerState) []float64 {
	n := xs[0]
	out := make([]float64, n*l.OutC*l.OutH*l.OutW)
	kh, kw := ws[2], ws[3]
	for b := 0; b < n; b++ {
		for o := 0; o < l.OutC; o++ {
			g := o / l.OutGroupCn
			for oy := 0; oy < l.OutH; oy++ {
				for ox := 0; ox < l.OutW; ox++ {
					var sum float64
					if bias != nil {
						sum = bias[o]
					}
					for ic := 0; ic < l.InpGroupCn; ic++ {
						c := g*l.InpGroupCn + ic
						for i := 0; i < kh; i++ {
							iy := oy*cfg.Stride.H - l.PadH + i*cfg.Dilation.H
							if iy < 0 || iy >= l.InpH {
								continue
							}
							for j := 0; j < kw; j++ {
								ix := ox*cfg.Stride.W - l.PadW + j*cfg.Dilation.W
								if ix < 0 || ix >= l.InpW {
									continue
								}
								sum += w[((o*l.InpGroupCn+ic)*kh+i)*kw+j] * x[((b*l.InpC+c)*l.InpH+iy)*l.InpW+ix]
							}
						}
					}
					out[((b*l.OutC+o)*l.OutH+oy)*l.OutW+ox] = sum
				}
			}
		}
	}
	return out
}

// naiveDeconv scatters every input element through the kernel.
func naiveDeconv(x []float64, xs tensor.Shape, w []float64, ws tensor.Shape, bias []float64, cfg Config, l LayerState) []float64 {
	n := xs[0]
	out := make([]float64, n*l.OutC*l.OutH*l.OutW)
	kh, kw := ws[2], ws[3]
	for b := 0; b < n; b++ {
		for c := 0; c < l.InpC; c++ {
			g, ic := c/l.InpGroupCn, c%l.InpGroupCn
			for y := 0; y < l.InpH; y++ {
				for xx := 0; xx < l.InpW; xx++ {
					v := x[((b*l.InpC+c)*l.InpH+y)*l.InpW+xx]
					for oc := 0; oc < l.OutGroupCn; oc++ {
						o := g*l.OutGroupCn + oc
						for i := 0; i < kh; i++ {
							oy := y*cfg.Stride.H - cfg.Pad.H + i*cfg.Dilation.H
							if oy < 0 || oy >= l.OutH {
								continue
							}
							for j := 0; j < kw; j++ {
								ox := xx*cfg.Stride.W - cfg.Pad.W + j*cfg.Dilation.W
								if ox < 0 || ox >= l.OutW {
									continue
								}
								out[((b*l.OutC+o)*l.OutH+oy)*l.OutW+ox] += w[((o*l.InpGroupCn+ic)*kh+i)*kw+j] * v
							}
						}
					}
				}
			}
		}
		if bias != nil {
			plane := l.OutH * l.OutW
			for o := 0; o < l.OutC; o++ {
				for k := 0; k < plane; k++ {
					out[(b*l.OutC+o)*plane+k] += bias[o]
				}
			}
		}
	}
	return out
}

// layer is the surface shared by Convolution and Deconvolution.
type layer interface {
	Bind(weight, bias *tensor.RawTensor) error
	Allocate(inputs []tensor.Shape) ([]*tensor.RawTensor, error)
	Forward(inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error)
	LayerState() (LayerState, bool)
	Backend() tensor.Backend
}

func newLayer(t testing.TB, d direction, cfg Config, host, accel tensor.Backend) layer {
	t.Helper()
	if d == forwardConv {
		l, err := NewConvolution(cfg, host, accel)
		require.NoError(t, err)
		return l
	}
	l, err := NewDeconvolution(cfg, host, accel)
	require.NoError(t, err)
	return l
}

// countingBackend counts buffer allocations made through it.
type countingBackend struct {
	tensor.Backend
	allocs int
}

func (c *countingBackend) Alloc(shape tensor.Shape, dtype tensor.DataType) (*tensor.RawTensor, error) {
	c.allocs++
	return c.Backend.Alloc(shape, dtype)
}

func (c *countingBackend) Upload(t *tensor.RawTensor) (*tensor.RawTensor, error) {
	c.allocs++
	return c.Backend.Upload(t)
}

// fakeAccelerator behaves like the WebGPU backend (float32 only, no im2row,
// tensors tagged WebGPU) but computes on the host.
type fakeAccelerator struct {
	host  *cpu.CPUBackend
	calls map[string]int
	fail  map[string]error
}

func newFakeAccelerator() *fakeAccelerator {
	return &fakeAccelerator{
		host:  cpu.New(),
		calls: make(map[string]int),
		fail:  make(map[string]error),
	}
}

func (f *fakeAccelerator) Name() string          { return "FakeAccelerator" }
func (f *fakeAccelerator) Device() tensor.Device { return tensor.WebGPU }

func (f *fakeAccelerator) enter(op string, ts ...*tensor.RawTensor) error {
	f.calls[op]++
	if err := f.fail[op]; err != nil {
		return err
	}
	for _, t := range ts {
		if t.DType() != tensor.Float32 {
			return fmt.Errorf("fake: %s: %w", t.DType(), tensor.ErrNotImplemented)
		}
		if t.Device() != tensor.WebGPU {
			return fmt.Errorf("fake: %s: tensor on %s", op, t.Device())
		}
	}
	return nil
}

func (f *fakeAccelerator) Alloc(shape tensor.Shape, dtype tensor.DataType) (*tensor.RawTensor, error) {
	if dtype != tensor.Float32 {
		return nil, fmt.Errorf("fake: %s: %w", dtype, tensor.ErrNotImplemented)
	}
	return tensor.NewRaw(shape, dtype, tensor.WebGPU)
}

func (f *fakeAccelerator) Upload(t *tensor.RawTensor) (*tensor.RawTensor, error) {
	if t.Device() == tensor.WebGPU {
		return t, nil
	}
	dev, err := f.Alloc(t.Shape(), t.DType())
	if err != nil {
		return nil, err
	}
	return dev, dev.CopyFrom(t)
}

func (f *fakeAccelerator) Fill(t *tensor.RawTensor, v float64) error {
	if err := f.enter("fill", t); err != nil {
		return err
	}
	h := toHost(t)
	if err := f.host.Fill(h, v); err != nil {
		return err
	}
	return t.CopyFrom(h)
}

func (f *fakeAccelerator) Gemm(transA, transB bool, alpha float64, a, b *tensor.RawTensor, beta float64, c *tensor.RawTensor) error {
	if err := f.enter("gemm", a, b, c); err != nil {
		return err
	}
	hc := toHost(c)
	if err := f.host.Gemm(transA, transB, alpha, toHost(a), toHost(b), beta, hc); err != nil {
		return err
	}
	return c.CopyFrom(hc)
}

func (f *fakeAccelerator) Im2Col(src *tensor.RawTensor, w tensor.Window, dst *tensor.RawTensor) error {
	if err := f.enter("im2col", src, dst); err != nil {
		return err
	}
	hd := toHost(dst)
	if err := f.host.Im2Col(toHost(src), w, hd); err != nil {
		return err
	}
	return dst.CopyFrom(hd)
}

func (f *fakeAccelerator) Im2Row(_ *tensor.RawTensor, _ tensor.Window, _ *tensor.RawTensor) error {
	f.calls["im2row"]++
	return fmt.Errorf("fake: im2row: %w", tensor.ErrNotImplemented)
}

func (f *fakeAccelerator) Col2Im(src *tensor.RawTensor, w tensor.Window, dst *tensor.RawTensor) error {
	if err := f.enter("col2im", src, dst); err != nil {
		return err
	}
	hd := toHost(dst)
	if err := f.host.Col2Im(toHost(src), w, hd); err != nil {
		return err
	}
	return dst.CopyFrom(hd)
}

func (f *fakeAccelerator) Synchronize() error {
	f.calls["sync"]++
	return f.fail["sync"]
}

func toHost(t *tensor.RawTensor) *tensor.RawTensor {
	h, err := tensor.NewRaw(t.Shape(), t.DType(), tensor.CPU)
	if err != nil {
		panic(err)
	}
	if err := h.CopyFrom(t); err != nil {
		panic(err)
	}
	return h
}
