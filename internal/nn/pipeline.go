package nn

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/born-ml/convcore/internal/tensor"
)

// pipeline is the shape-infer, transform, multiply, bias-add sequence shared
// by Convolution and Deconvolution. The direction swaps the order of
// transform and multiply and mirrors the GEMM transpose flag.
//
// Buffers (packed weights, bias column, ones row, scratch column matrix and
// outputs) live on the selected backend and are rebuilt only when the input
// geometry changes.
type pipeline struct {
	dir     direction
	cfg     Config
	backend tensor.Backend
	host    tensor.Backend
	logger  *slog.Logger

	// rowLayout selects im2row + GEMM(transB) for convolution. Accelerators
	// only gather columns, so they use im2col + GEMM.
	rowLayout bool

	// backend and rowLayout change only in Bind, under mu.

	// mu guards everything below. Forward holds it exclusively because it
	// writes the shared scratch; ForwardWith only reads.
	mu sync.RWMutex

	state  State
	weight *tensor.RawTensor // (outC, inC/group, kH, kW) as bound
	bias   *tensor.RawTensor // (outC) or nil

	layer    LayerState
	window   tensor.Window
	inShapes []tensor.Shape

	weightMat *tensor.RawTensor // conv: (outC, KSize); deconv: (InpC, KSize)
	biasMat   *tensor.RawTensor // (outC, 1) or nil
	ones      *tensor.RawTensor // (1, OutH*OutW) or nil
	scratch   *Scratch
	outputs   []*tensor.RawTensor
}

// Scratch is a column buffer owned by one caller of ForwardWith. Layers on
// the 1x1 fast path need none and leave it untouched.
type Scratch struct {
	col *tensor.RawTensor
}

// Column returns the scratch column matrix, or nil on the 1x1 fast path.
func (s *Scratch) Column() *tensor.RawTensor {
	if s == nil {
		return nil
	}
	return s.col
}

func newPipeline(d direction, cfg Config, host, accel tensor.Backend) (*pipeline, error) {
	if err := cfg.validateFor(d); err != nil {
		return nil, err
	}
	backend, err := selectBackend(d, cfg, host, accel)
	if err != nil {
		return nil, err
	}
	return &pipeline{
		dir:       d,
		cfg:       cfg,
		backend:   backend,
		host:      host,
		logger:    cfg.logger().With(slog.String("layer", d.String())),
		rowLayout: d == forwardConv && backend.Device() == tensor.CPU,
		state:     Unconfigured,
	}, nil
}

// Backend returns the backend selected for the layer.
func (p *pipeline) Backend() tensor.Backend {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.backend
}

// State returns the current lifecycle stage.
func (p *pipeline) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// LayerState returns the derived scalars of the last Allocate. ok is false
// before the input shape is known.
func (p *pipeline) LayerState() (s LayerState, ok bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.layer, p.state >= ShapeKnown
}

// Bind attaches the weight tensor (outC, inC/group, kH, kW) and an optional
// bias vector (outC). Both are read-only from then on and may be shared by
// several layers. Bind may be called once.
func (p *pipeline) Bind(weight, bias *tensor.RawTensor) error {
	op := p.dir.String() + ".bind"
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Unconfigured {
		return newError(op, ErrInvalidConfiguration, "weights already bound")
	}
	if weight == nil {
		return newError(op, ErrInvalidConfiguration, "weight is required")
	}
	if err := checkWeightShape(op, p.cfg, weight.Shape()); err != nil {
		return err
	}
	if bias != nil {
		if bias.Rank() != 1 || bias.Dim(0) != weight.Dim(0) {
			return newError(op, ErrInvalidConfiguration,
				"bias shape %v does not match %d output channels", bias.Shape(), weight.Dim(0))
		}
		if bias.DType() != weight.DType() {
			return newError(op, ErrInvalidConfiguration,
				"bias dtype %s differs from weight dtype %s", bias.DType(), weight.DType())
		}
	}

	p.fitDType(weight.DType())
	p.weight, p.bias = weight, bias
	p.state = Configured
	p.logger.Debug("weights bound",
		slog.Any("weight", weight.Shape()),
		slog.Bool("bias", bias != nil),
		slog.String("dtype", weight.DType().String()))
	return nil
}

// Allocate infers the layer state for the given input shapes and
// (re)allocates every buffer, returning one output tensor per input. Inputs
// must agree in channels and spatial size; each may have its own batch size.
// Calling Allocate again with unchanged shapes returns the same outputs.
func (p *pipeline) Allocate(inputs []tensor.Shape) ([]*tensor.RawTensor, error) {
	op := p.dir.String() + ".allocate"
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == Unconfigured {
		return nil, newError(op, ErrInvalidConfiguration, "no weights bound")
	}
	if len(inputs) == 0 {
		return nil, newError(op, ErrShapeMismatch, "no inputs")
	}
	for i, s := range inputs {
		if len(s) != 4 || s.Validate() != nil {
			return nil, newError(op, ErrShapeMismatch, "input %d: want positive (N, C, H, W), got %v", i, s)
		}
		if !s[1:].Equal(inputs[0][1:]) {
			return nil, newError(op, ErrShapeMismatch, "input %d: shape %v disagrees with %v", i, s, inputs[0])
		}
	}

	layer, err := infer(p.dir, p.cfg, p.weight.Shape(), inputs[0])
	if err != nil {
		return nil, err
	}

	if p.state == Ready && layer == p.layer && shapesEqual(inputs, p.inShapes) {
		return append([]*tensor.RawTensor(nil), p.outputs...), nil
	}

	reuse := p.state == Ready && layer == p.layer
	p.state = ShapeKnown
	p.layer = layer
	p.window = layer.window(p.dir, p.cfg)

	if !reuse {
		if err := p.prepare(op); err != nil {
			return nil, err
		}
	}

	outputs := make([]*tensor.RawTensor, len(inputs))
	for i, s := range inputs {
		want := layer.OutputShape(s[0])
		if reuse && i < len(p.outputs) && p.outputs[i].Shape().Equal(want) {
			outputs[i] = p.outputs[i]
			continue
		}
		out, err := p.backend.Alloc(want, p.weight.DType())
		if err != nil {
			return nil, backendError(op, fmt.Sprintf("output %d", i), err)
		}
		outputs[i] = out
	}

	p.inShapes = cloneShapes(inputs)
	p.outputs = outputs
	p.state = Ready
	p.logger.Debug("layer allocated",
		slog.Any("inputs", inputs),
		slog.Any("output", layer.OutputShape(inputs[0][0])),
		slog.Int("group", layer.Group),
		slog.Bool("fast_path", layer.FastPath),
		slog.Bool("reused", reuse))
	return append([]*tensor.RawTensor(nil), outputs...), nil
}

// prepare builds the weight matrix, bias column, ones row and shared scratch
// for p.layer. Fields are assigned only once every allocation succeeded.
func (p *pipeline) prepare(op string) error {
	l := p.layer
	dtype := p.weight.DType()

	var weightMat *tensor.RawTensor
	switch p.dir {
	case forwardConv:
		w, err := p.backend.Upload(p.weight)
		if err != nil {
			return backendError(op, "upload weight", err)
		}
		if weightMat, err = w.Reshape(tensor.Shape{l.OutC, l.KSize}); err != nil {
			return newError(op, ErrInvalidConfiguration, "weight matrix: %v", err)
		}
	case transposedConv:
		packed, err := packTransposed(p.weight, l)
		if err != nil {
			return newError(op, ErrInvalidConfiguration, "pack weight: %v", err)
		}
		if weightMat, err = p.backend.Upload(packed); err != nil {
			return backendError(op, "upload weight", err)
		}
	}

	var biasMat, ones *tensor.RawTensor
	if p.bias != nil {
		b, err := p.backend.Upload(p.bias)
		if err != nil {
			return backendError(op, "upload bias", err)
		}
		if biasMat, err = b.Reshape(tensor.Shape{l.OutC, 1}); err != nil {
			return newError(op, ErrInvalidConfiguration, "bias column: %v", err)
		}
		if ones, err = p.backend.Alloc(tensor.Shape{1, l.OutH * l.OutW}, dtype); err != nil {
			return backendError(op, "ones row", err)
		}
		if err := p.backend.Fill(ones, 1); err != nil {
			return backendError(op, "ones row", err)
		}
	}

	scratch, err := p.newScratch(op)
	if err != nil {
		return err
	}

	p.weightMat, p.biasMat, p.ones, p.scratch = weightMat, biasMat, ones, scratch
	return nil
}

// colShape returns the column matrix shape for the current layer state, or
// nil on the fast path.
func (p *pipeline) colShape() tensor.Shape {
	l := p.layer
	switch {
	case l.FastPath:
		return nil
	case p.dir == transposedConv:
		return tensor.Shape{l.KSize, l.InpH * l.InpW}
	case p.rowLayout:
		return tensor.Shape{l.OutH * l.OutW, l.KSize}
	default:
		return tensor.Shape{l.KSize, l.OutH * l.OutW}
	}
}

func (p *pipeline) newScratch(op string) (*Scratch, error) {
	shape := p.colShape()
	if shape == nil {
		return &Scratch{}, nil
	}
	col, err := p.backend.Alloc(shape, p.weight.DType())
	if err != nil {
		return nil, backendError(op, "column buffer", err)
	}
	return &Scratch{col: col}, nil
}

// NewScratch allocates a column buffer for ForwardWith, sized for the
// current input geometry. A new Allocate with a different geometry
// invalidates it.
func (p *pipeline) NewScratch() (*Scratch, error) {
	op := p.dir.String() + ".scratch"
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.state != Ready {
		return nil, newError(op, ErrShapeMismatch, "layer is %s, not ready", p.state)
	}
	return p.newScratch(op)
}

// Forward runs the layer on inputs matching the last Allocate and returns the
// layer-owned outputs. Calls on one layer are serialized.
func (p *pipeline) Forward(inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	op := p.dir.String() + ".forward"
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkReady(op); err != nil {
		return nil, err
	}
	if err := p.checkOperands(op, inputs, p.outputs, p.scratch); err != nil {
		return nil, err
	}
	if err := p.run(op, p.scratch.Column(), inputs, p.outputs); err != nil {
		return nil, err
	}
	return append([]*tensor.RawTensor(nil), p.outputs...), nil
}

// ForwardWith runs the layer using a caller-owned scratch and writes into
// caller-owned outputs. Concurrent calls are safe as long as each caller uses
// its own scratch and outputs.
func (p *pipeline) ForwardWith(s *Scratch, inputs, outputs []*tensor.RawTensor) error {
	op := p.dir.String() + ".forward"
	p.mu.RLock()
	defer p.mu.RUnlock()

	if err := p.checkReady(op); err != nil {
		return err
	}
	if err := p.checkOperands(op, inputs, outputs, s); err != nil {
		return err
	}
	return p.run(op, s.Column(), inputs, outputs)
}

func (p *pipeline) checkReady(op string) error {
	if p.state != Ready {
		return newError(op, ErrShapeMismatch, "layer is %s; call Allocate first", p.state)
	}
	return nil
}

// checkOperands validates every operand of a forward call before any buffer
// is written.
func (p *pipeline) checkOperands(op string, inputs, outputs []*tensor.RawTensor, s *Scratch) error {
	dtype, device := p.weight.DType(), p.backend.Device()

	if len(inputs) != len(p.inShapes) {
		return newError(op, ErrShapeMismatch, "got %d inputs, allocated for %d", len(inputs), len(p.inShapes))
	}
	if len(outputs) != len(inputs) {
		return newError(op, ErrShapeMismatch, "got %d outputs for %d inputs", len(outputs), len(inputs))
	}

	for i, in := range inputs {
		if in == nil {
			return newError(op, ErrShapeMismatch, "input %d is nil", i)
		}
		if !in.Shape().Equal(p.inShapes[i]) {
			return newError(op, ErrShapeMismatch, "input %d: shape %v, allocated for %v", i, in.Shape(), p.inShapes[i])
		}
		if in.DType() != dtype {
			return newError(op, ErrShapeMismatch, "input %d: dtype %s, weights are %s", i, in.DType(), dtype)
		}
		if in.Device() != device {
			return newError(op, ErrUnsupportedBackend, "input %d on %s, layer runs on %s", i, in.Device(), device)
		}
	}

	col := s.Column()
	if want := p.colShape(); want != nil {
		if col == nil || !col.Shape().Equal(want) || col.DType() != dtype || col.Device() != device {
			return newError(op, ErrShapeMismatch, "scratch does not fit column shape %v", want)
		}
	}

	for i, out := range outputs {
		want := p.layer.OutputShape(p.inShapes[i][0])
		if out == nil || !out.Shape().Equal(want) {
			return newError(op, ErrShapeMismatch, "output %d: want %v", i, want)
		}
		if out.DType() != dtype {
			return newError(op, ErrShapeMismatch, "output %d: dtype %s, weights are %s", i, out.DType(), dtype)
		}
		if out.Device() != device {
			return newError(op, ErrUnsupportedBackend, "output %d on %s, layer runs on %s", i, out.Device(), device)
		}
		for j, in := range inputs {
			if out.Overlaps(in) {
				return newError(op, ErrInvalidConfiguration, "output %d aliases input %d", i, j)
			}
		}
		for j := 0; j < i; j++ {
			if out.Overlaps(outputs[j]) {
				return newError(op, ErrInvalidConfiguration, "output %d aliases output %d", i, j)
			}
		}
		if col != nil && out.Overlaps(col) {
			return newError(op, ErrInvalidConfiguration, "output %d aliases the scratch buffer", i)
		}
		switch {
		case out.Overlaps(p.weightMat):
			return newError(op, ErrInvalidConfiguration, "output %d aliases the weight", i)
		case out.Overlaps(p.biasMat):
			return newError(op, ErrInvalidConfiguration, "output %d aliases the bias", i)
		case out.Overlaps(p.ones):
			return newError(op, ErrInvalidConfiguration, "output %d aliases the ones row", i)
		}
	}
	return nil
}

// run processes every batch item and group in order and synchronizes the
// backend before returning.
func (p *pipeline) run(op string, col *tensor.RawTensor, inputs, outputs []*tensor.RawTensor) error {
	l := p.layer
	inHW, outHW := l.InpH*l.InpW, l.OutH*l.OutW

	for i, in := range inputs {
		n := in.Dim(0)
		src := reshape(in, tensor.Shape{n * l.InpC, inHW})
		dst := reshape(outputs[i], tensor.Shape{n * l.OutC, outHW})

		for b := 0; b < n; b++ {
			for g := 0; g < l.Group; g++ {
				inSlice := rows(src, (b*l.Group+g)*l.InpGroupCn, l.InpGroupCn)
				outSlice := rows(dst, (b*l.Group+g)*l.OutGroupCn, l.OutGroupCn)

				var err error
				if p.dir == forwardConv {
					err = p.convStep(op, g, inSlice, outSlice, col)
				} else {
					err = p.deconvStep(op, g, inSlice, outSlice, col)
				}
				if err != nil {
					return err
				}
			}
		}
	}

	if err := p.backend.Synchronize(); err != nil {
		return backendError(op, "synchronize", err)
	}
	return nil
}

// convStep computes one (batch item, group) slice of a convolution:
// out[OutGroupCn, OutH*OutW] = W_g[OutGroupCn, KSize] * cols + bias.
func (p *pipeline) convStep(op string, g int, in, out, col *tensor.RawTensor) error {
	l := p.layer
	w := rows(p.weightMat, g*l.OutGroupCn, l.OutGroupCn)

	var err error
	switch {
	case l.FastPath:
		// The input slice [InpGroupCn, H*W] already is the column matrix.
		err = p.backend.Gemm(false, false, 1, w, in, 0, out)
	case p.rowLayout:
		if err := p.backend.Im2Row(in, p.window, col); err != nil {
			return backendError(op, "im2row", err)
		}
		err = p.backend.Gemm(false, true, 1, w, col, 0, out)
	default:
		if err := p.backend.Im2Col(in, p.window, col); err != nil {
			return backendError(op, "im2col", err)
		}
		err = p.backend.Gemm(false, false, 1, w, col, 0, out)
	}
	if err != nil {
		return backendError(op, "gemm", err)
	}
	return p.addBias(op, g, out)
}

// deconvStep computes one (batch item, group) slice of a deconvolution:
// cols[KSize, InpH*InpW] = M_g^T * in, then out = col2im(cols) + bias.
func (p *pipeline) deconvStep(op string, g int, in, out, col *tensor.RawTensor) error {
	l := p.layer
	m := rows(p.weightMat, g*l.InpGroupCn, l.InpGroupCn)

	if l.FastPath {
		// The column matrix is the destination slice itself.
		if want := (tensor.Shape{l.KSize, l.InpH * l.InpW}); !out.Shape().Equal(want) {
			return newError(op, ErrShapeMismatch, "1x1 aliasing needs destination %v, got %v", want, out.Shape())
		}
		if err := p.backend.Gemm(true, false, 1, m, in, 0, out); err != nil {
			return backendError(op, "gemm", err)
		}
		return p.addBias(op, g, out)
	}

	if err := p.backend.Gemm(true, false, 1, m, in, 0, col); err != nil {
		return backendError(op, "gemm", err)
	}
	if err := p.backend.Col2Im(col, p.window, out); err != nil {
		return backendError(op, "col2im", err)
	}
	return p.addBias(op, g, out)
}

// addBias adds bias_g[OutGroupCn, 1] * ones[1, OutH*OutW] to out in place.
func (p *pipeline) addBias(op string, g int, out *tensor.RawTensor) error {
	if p.biasMat == nil {
		return nil
	}
	b := rows(p.biasMat, g*p.layer.OutGroupCn, p.layer.OutGroupCn)
	if err := p.backend.Gemm(false, false, 1, b, p.ones, 1, out); err != nil {
		return backendError(op, "bias", err)
	}
	return nil
}

// reshape and rows build views whose bounds were established by Allocate and
// checkOperands; a failure is a bug in this package.
func reshape(t *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	v, err := t.Reshape(shape)
	if err != nil {
		panic(fmt.Sprintf("nn: %v", err))
	}
	return v
}

func rows(t *tensor.RawTensor, start, n int) *tensor.RawTensor {
	v, err := t.RowRange(start, n)
	if err != nil {
		panic(fmt.Sprintf("nn: %v", err))
	}
	return v
}

func shapesEqual(a, b []tensor.Shape) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func cloneShapes(shapes []tensor.Shape) []tensor.Shape {
	out := make([]tensor.Shape, len(shapes))
	for i, s := range shapes {
		out[i] = s.Clone()
	}
	return out
}
