package nn

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/born-ml/convcore/internal/backend/cpu"
	"github.com/born-ml/convcore/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectBackend(t *testing.T) {
	host := cpu.New()
	accel := newFakeAccelerator()

	tests := []struct {
		name     string
		pref     BackendPreference
		accel    tensor.Backend
		host     tensor.Backend
		dilation int
		want     string
		err      error
	}{
		{"auto without accelerator", BackendAuto, nil, host, 1, "CPU", nil},
		{"auto with accelerator", BackendAuto, accel, host, 1, "FakeAccelerator", nil},
		{"auto dilated", BackendAuto, accel, host, 2, "CPU", nil},
		{"host with accelerator", BackendHost, accel, host, 1, "CPU", nil},
		{"accelerator", BackendAccelerator, accel, host, 1, "FakeAccelerator", nil},
		{"accelerator missing", BackendAccelerator, nil, host, 1, "", ErrUnsupportedBackend},
		{"accelerator dilated", BackendAccelerator, accel, host, 2, "", ErrUnsupportedBackend},
		{"no host", BackendHost, accel, nil, 1, "", ErrInvalidConfiguration},
	}

	for _, tt := range tests {
		for _, d := range []direction{forwardConv, transposedConv} {
			t.Run(tt.name+"/"+d.String(), func(t *testing.T) {
				cfg := DefaultConfig(Square(3))
				cfg.Backend = tt.pref
				cfg.Dilation = Square(tt.dilation)

				var (
					p   *pipeline
					err error
				)
				if d == forwardConv {
					var c *Convolution
					if c, err = NewConvolution(cfg, tt.host, tt.accel); err == nil {
						p = c.pipeline
					}
				} else {
					var dc *Deconvolution
					if dc, err = NewDeconvolution(cfg, tt.host, tt.accel); err == nil {
						p = dc.pipeline
					}
				}

				if tt.err != nil {
					assert.ErrorIs(t, err, tt.err)
					return
				}
				require.NoError(t, err)
				assert.Equal(t, tt.want, p.Backend().Name())
				assert.Equal(t, d == forwardConv && tt.want == "CPU", p.rowLayout)
			})
		}
	}
}

func TestSelectBackend_Logs(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig(Square(3))
	cfg.Logger = slog.New(slog.NewJSONHandler(&buf, nil))

	_, err := NewConvolution(cfg, cpu.New(), newFakeAccelerator())
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "layer backend selected", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "conv", entry["layer"])
	assert.Equal(t, "FakeAccelerator", entry["backend"])
	assert.Equal(t, "WebGPU", entry["device"])
	assert.Equal(t, "accelerator available", entry["reason"])
}

// An accelerator layer gathers with im2col (never im2row) and matches the
// host layer numerically.
func TestAccelerator_MatchesHost(t *testing.T) {
	rng := rand.New(rand.NewSource(37))

	cases := []struct {
		dir   direction
		cfg   Config
		w, x  tensor.Shape
		calls []string
	}{
		{forwardConv, func() Config {
			c := DefaultConfig(Square(3))
			c.Pad = Square(1)
			c.Stride = Size2{H: 2, W: 1}
			return c
		}(), tensor.Shape{4, 2, 3, 3}, tensor.Shape{2, 4, 6, 5}, []string{"im2col", "gemm"}},
		{forwardConv, DefaultConfig(Square(1)), tensor.Shape{3, 2, 1, 1}, tensor.Shape{1, 2, 4, 4}, []string{"gemm"}},
		{transposedConv, func() Config {
			c := DefaultConfig(Square(4))
			c.Stride = Square(2)
			c.Pad = Square(1)
			return c
		}(), tensor.Shape{6, 2, 4, 4}, tensor.Shape{1, 4, 3, 3}, []string{"gemm", "col2im"}},
	}

	for _, tc := range cases {
		t.Run(tc.dir.String()+"/"+tc.cfg.Kernel.String(), func(t *testing.T) {
			wData := randValues(rng, tc.w.NumElements())
			bData := randValues(rng, tc.w[0])
			xData := randValues(rng, tc.x.NumElements())

			run := func(host, accel tensor.Backend, device tensor.Device) []float64 {
				l := newLayer(t, tc.dir, tc.cfg, host, accel)
				require.NoError(t, l.Bind(
					newTensor(t, wData, tc.w, tensor.Float32, tensor.CPU),
					newTensor(t, bData, tensor.Shape{tc.w[0]}, tensor.Float32, tensor.CPU),
				))
				_, err := l.Allocate([]tensor.Shape{tc.x})
				require.NoError(t, err)
				outs, err := l.Forward([]*tensor.RawTensor{newTensor(t, xData, tc.x, tensor.Float32, device)})
				require.NoError(t, err)
				assert.Equal(t, device, outs[0].Device())
				return values(outs[0])
			}

			accel := newFakeAccelerator()
			want := run(cpu.New(), nil, tensor.CPU)
			got := run(cpu.New(), accel, tensor.WebGPU)

			assert.InDeltaSlice(t, want, got, 1e-5)
			for _, op := range tc.calls {
				assert.Positive(t, accel.calls[op], op)
			}
			assert.Zero(t, accel.calls["im2row"])
			assert.Equal(t, 1, accel.calls["sync"])
		})
	}
}

func TestAccelerator_Float64Unsupported(t *testing.T) {
	for _, d := range []direction{forwardConv, transposedConv} {
		t.Run(d.String(), func(t *testing.T) {
			cfg := DefaultConfig(Square(3))
			cfg.Backend = BackendAccelerator
			l := newLayer(t, d, cfg, cpu.New(), newFakeAccelerator())
			w, err := tensor.NewRaw(tensor.Shape{2, 2, 3, 3}, tensor.Float64, tensor.CPU)
			require.NoError(t, err)
			require.NoError(t, l.Bind(w, nil))
			assert.Equal(t, "FakeAccelerator", l.Backend().Name())

			_, err = l.Allocate([]tensor.Shape{{1, 2, 5, 5}})
			assert.ErrorIs(t, err, ErrUnsupportedBackend)
			assert.ErrorIs(t, err, tensor.ErrNotImplemented)
		})
	}
}

// Under BackendAuto a float64 layer binds onto the host instead of an
// accelerator that cannot hold it, and computes what a host-only layer does.
func TestAccelerator_Float64AutoUsesHost(t *testing.T) {
	rng := rand.New(rand.NewSource(41))
	ws, xs := tensor.Shape{2, 2, 3, 3}, tensor.Shape{1, 2, 5, 5}
	wData := randValues(rng, ws.NumElements())
	xData := randValues(rng, xs.NumElements())

	for _, d := range []direction{forwardConv, transposedConv} {
		t.Run(d.String(), func(t *testing.T) {
			var buf bytes.Buffer
			cfg := DefaultConfig(Square(3))
			cfg.Logger = slog.New(slog.NewJSONHandler(&buf, nil))

			run := func(accel tensor.Backend) (layer, []float64) {
				l := newLayer(t, d, cfg, cpu.New(), accel)
				require.NoError(t, l.Bind(newTensor(t, wData, ws, tensor.Float64, tensor.CPU), nil))
				_, err := l.Allocate([]tensor.Shape{xs})
				require.NoError(t, err)
				outs, err := l.Forward([]*tensor.RawTensor{newTensor(t, xData, xs, tensor.Float64, tensor.CPU)})
				require.NoError(t, err)
				return l, values(outs[0])
			}

			accel := newFakeAccelerator()
			l, got := run(accel)
			assert.Equal(t, "CPU", l.Backend().Name())
			_, want := run(nil)
			assert.Equal(t, want, got)
			assert.Zero(t, accel.calls["gemm"])

			switch p := l.(type) {
			case *Convolution:
				assert.True(t, p.rowLayout)
			case *Deconvolution:
				assert.False(t, p.rowLayout)
			}

			var reasons []any
			dec := json.NewDecoder(&buf)
			for dec.More() {
				var entry map[string]any
				require.NoError(t, dec.Decode(&entry))
				if entry["msg"] == "layer backend selected" {
					reasons = append(reasons, entry["reason"])
				}
			}
			assert.Equal(t, []any{"accelerator available", "float64 unsupported on accelerator", "no accelerator"}, reasons)
		})
	}
}

// A float32 layer under BackendAuto keeps the accelerator after Bind.
func TestAccelerator_Float32AutoKeepsAccelerator(t *testing.T) {
	l := newLayer(t, forwardConv, DefaultConfig(Square(3)), cpu.New(), newFakeAccelerator())
	w, err := tensor.NewRaw(tensor.Shape{2, 2, 3, 3}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	require.NoError(t, l.Bind(w, nil))
	assert.Equal(t, "FakeAccelerator", l.Backend().Name())
}

func TestAccelerator_Failures(t *testing.T) {
	deviceLost := errors.New("device lost")

	tests := []struct {
		name string
		dir  direction
		op   string
		err  error
		kind error
	}{
		{"col2im not implemented", transposedConv, "col2im", fmt.Errorf("col2im: %w", tensor.ErrNotImplemented), ErrUnsupportedBackend},
		{"col2im device lost", transposedConv, "col2im", deviceLost, ErrBackend},
		{"im2col device lost", forwardConv, "im2col", deviceLost, ErrBackend},
		{"gemm device lost", forwardConv, "gemm", deviceLost, ErrBackend},
		{"synchronize", forwardConv, "sync", deviceLost, ErrBackend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(Square(3))
			cfg.Stride = Square(2)
			accel := newFakeAccelerator()
			l := newLayer(t, tt.dir, cfg, cpu.New(), accel)

			w, err := tensor.NewRaw(tensor.Shape{2, 2, 3, 3}, tensor.Float32, tensor.CPU)
			require.NoError(t, err)
			require.NoError(t, l.Bind(w, nil))
			xs := tensor.Shape{1, 2, 5, 5}
			_, err = l.Allocate([]tensor.Shape{xs})
			require.NoError(t, err)

			accel.fail[tt.op] = tt.err
			x, err := tensor.NewRaw(xs, tensor.Float32, tensor.WebGPU)
			require.NoError(t, err)
			_, err = l.Forward([]*tensor.RawTensor{x})
			assert.ErrorIs(t, err, tt.kind)
			assert.ErrorIs(t, err, tt.err)

			var le *LayerError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, tt.dir.String()+".forward", le.Op)
		})
	}
}

func TestAccelerator_HostInputRejected(t *testing.T) {
	conv, err := NewConvolution(DefaultConfig(Square(3)), cpu.New(), newFakeAccelerator())
	require.NoError(t, err)
	w, err := tensor.NewRaw(tensor.Shape{2, 2, 3, 3}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	require.NoError(t, conv.Bind(w, nil))
	_, err = conv.Allocate([]tensor.Shape{{1, 2, 5, 5}})
	require.NoError(t, err)

	x, err := tensor.NewRaw(tensor.Shape{1, 2, 5, 5}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	_, err = conv.Forward([]*tensor.RawTensor{x})
	assert.ErrorIs(t, err, ErrUnsupportedBackend)
}
