package nn

import (
	"errors"
	"log/slog"

	"github.com/born-ml/convcore/internal/tensor"
)

// direction parameterizes the shared pipeline.
type direction int

const (
	// forwardConv gathers windows, then multiplies.
	forwardConv direction = iota
	// transposedConv multiplies, then scatters windows back.
	transposedConv
)

func (d direction) String() string {
	if d == transposedConv {
		return "deconv"
	}
	return "conv"
}

// selectBackend picks the backend a layer runs on. Only fitDType may revise
// the choice, once, at Bind.
//
// accel is nil when no accelerator is available. The accelerator window
// kernels have no dilation support, so dilated layers stay on the host under
// BackendAuto and are rejected under BackendAccelerator.
func selectBackend(d direction, cfg Config, host, accel tensor.Backend) (tensor.Backend, error) {
	op := d.String() + ".dispatch"
	logger := cfg.logger()

	var chosen tensor.Backend
	reason := "requested"
	switch cfg.Backend {
	case BackendHost:
		chosen = host
	case BackendAccelerator:
		if accel == nil {
			return nil, newError(op, ErrUnsupportedBackend, "accelerator requested but not available")
		}
		if !cfg.unitDilation() {
			return nil, newError(op, ErrUnsupportedBackend, "accelerator does not support dilation %s", cfg.Dilation)
		}
		chosen = accel
	default:
		switch {
		case accel == nil:
			chosen, reason = host, "no accelerator"
		case !cfg.unitDilation():
			chosen, reason = host, "dilation unsupported on accelerator"
		default:
			chosen, reason = accel, "accelerator available"
		}
	}
	if chosen == nil {
		return nil, newError(op, ErrInvalidConfiguration, "no host backend supplied")
	}

	logSelection(logger, d, chosen, reason)
	return chosen, nil
}

func logSelection(logger *slog.Logger, d direction, chosen tensor.Backend, reason string) {
	logger.Info("layer backend selected",
		slog.String("layer", d.String()),
		slog.String("backend", chosen.Name()),
		slog.String("device", chosen.Device().String()),
		slog.String("reason", reason))
}

// fitDType moves a BackendAuto layer from the accelerator to the host when
// the accelerator cannot allocate the bound element type. Any other
// allocation error is left for Allocate to report. Callers hold p.mu.
func (p *pipeline) fitDType(dtype tensor.DataType) {
	if p.cfg.Backend != BackendAuto || p.host == nil || p.backend == p.host {
		return
	}
	if _, err := p.backend.Alloc(tensor.Shape{1}, dtype); !errors.Is(err, tensor.ErrNotImplemented) {
		return
	}
	p.backend = p.host
	p.rowLayout = p.dir == forwardConv && p.host.Device() == tensor.CPU
	logSelection(p.cfg.logger(), p.dir, p.host, dtype.String()+" unsupported on accelerator")
}
