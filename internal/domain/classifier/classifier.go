// Package classifier implements the compact binary classifier behind a
// forecast: a fully-connected network with one ReLU hidden layer and a single
// sigmoid output, trained from scratch with Adam on binary cross-entropy.
//
// A Model is request-scoped. It is built by Train, evaluated with Predict and
// must be released with Release as soon as inference is done.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/okian/admitcast/internal/domain/model"
)

// Default training configuration constants.
const (
	defaultSeed         = 42
	defaultEpochs       = 20
	defaultHiddenUnits  = 16
	defaultBatchSize    = 32
	defaultLearningRate = 0.001

	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-7

	// probabilities are clipped to [lossEpsilon, 1-lossEpsilon] inside the loss.
	lossEpsilon = 1e-7

	inputDim = model.NumFeatures
)

// Sentinel errors.
var (
	ErrEmptyTrainingSet = errors.New("empty training set")
	ErrShapeMismatch    = errors.New("samples and labels length mismatch")
	ErrReleased         = errors.New("model already released")
)

// Option applies a configuration option to training.
type Option func(*config)

type config struct {
	seed         int64
	epochs       int
	hidden       int
	batchSize    int
	learningRate float64
}

// WithSeed sets the seed of the Glorot-uniform kernel initializer.
func WithSeed(seed int64) Option {
	return func(c *config) {
		c.seed = seed
	}
}

// WithEpochs sets the number of passes over the training set.
func WithEpochs(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.epochs = n
		}
	}
}

// WithHiddenUnits sets the width of the hidden layer.
func WithHiddenUnits(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.hidden = n
		}
	}
}

// WithBatchSize sets the mini-batch size. Batches are taken in stored order.
func WithBatchSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithLearningRate sets the Adam learning rate.
func WithLearningRate(lr float64) Option {
	return func(c *config) {
		if lr > 0 {
			c.learningRate = lr
		}
	}
}

// Stats summarizes a training run.
type Stats struct {
	Samples int
	Epochs  int
	Steps   int
	// Loss is the mean binary cross-entropy over the last epoch.
	Loss float64
}

// Model is a trained two-layer network.
type Model struct {
	hidden int
	stats  Stats

	slab *[]float64
	// views into slab
	w1, b1, w2, b2 []float64

	mu       sync.Mutex
	released bool
}

// slabs recycles parameter, gradient and optimizer buffers between requests.
var slabs = sync.Pool{
	New: func() any {
		s := make([]float64, 0)
		return &s
	},
}

func getSlab(n int) *[]float64 {
	p, _ := slabs.Get().(*[]float64)
	if p == nil || cap(*p) < n {
		s := make([]float64, n)
		return &s
	}
	*p = (*p)[:n]
	clear(*p)
	return p
}

func paramCount(hidden int) int {
	return inputDim*hidden + hidden + hidden + 1
}

// Train builds a fresh network and fits it to samples and labels (0 or 1).
// Training is deterministic for a given seed, data and order.
func Train(ctx context.Context, samples []model.Features, labels []float64, opts ...Option) (*Model, error) {
	if len(samples) != len(labels) {
		return nil, fmt.Errorf("%w: %d samples, %d labels", ErrShapeMismatch, len(samples), len(labels))
	}
	if len(samples) == 0 {
		return nil, ErrEmptyTrainingSet
	}

	cfg := config{
		seed:         defaultSeed,
		epochs:       defaultEpochs,
		hidden:       defaultHiddenUnits,
		batchSize:    defaultBatchSize,
		learningRate: defaultLearningRate,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	h := cfg.hidden
	p := paramCount(h)
	// params | grads | adam m | adam v | hidden pre-activations | hidden activations
	slab := getSlab(4*p + 2*h)
	buf := *slab

	m := &Model{hidden: h, slab: slab}
	params := buf[0:p]
	grads := buf[p : 2*p]
	moment1 := buf[2*p : 3*p]
	moment2 := buf[3*p : 4*p]
	z1 := buf[4*p : 4*p+h]
	a1 := buf[4*p+h : 4*p+2*h]

	m.w1 = params[0 : inputDim*h]
	m.b1 = params[inputDim*h : inputDim*h+h]
	m.w2 = params[inputDim*h+h : inputDim*h+2*h]
	m.b2 = params[inputDim*h+2*h : p]

	gw1 := grads[0 : inputDim*h]
	gb1 := grads[inputDim*h : inputDim*h+h]
	gw2 := grads[inputDim*h+h : inputDim*h+2*h]
	gb2 := grads[inputDim*h+2*h : p]

	rng := rand.New(rand.NewPCG(uint64(cfg.seed), uint64(cfg.seed)^0x9e3779b97f4a7c15)) //nolint:gosec // deterministic seeded init
	glorotUniform(rng, m.w1, inputDim, h)
	glorotUniform(rng, m.w2, h, 1)

	n := len(samples)
	step := 0
	var epochLoss float64
	for epoch := 0; epoch < cfg.epochs; epoch++ {
		epochLoss = 0
		for start := 0; start < n; start += cfg.batchSize {
			if err := ctx.Err(); err != nil {
				m.Release()
				return nil, fmt.Errorf("training cancelled: %w", err)
			}
			end := min(start+cfg.batchSize, n)
			batch := float64(end - start)
			clear(grads)

			for s := start; s < end; s++ {
				x := samples[s]
				y := labels[s]

				// forward
				out := m.b2[0]
				for j := 0; j < h; j++ {
					z := m.b1[j]
					row := m.w1[j*inputDim : (j+1)*inputDim]
					for i := 0; i < inputDim; i++ {
						z += row[i] * x[i]
					}
					z1[j] = z
					a1[j] = relu(z)
					out += m.w2[j] * a1[j]
				}
				prob := sigmoid(out)
				epochLoss += crossEntropy(prob, y)

				// backward: d(bce∘sigmoid)/dz = p - y
				dz2 := (prob - y) / batch
				gb2[0] += dz2
				for j := 0; j < h; j++ {
					gw2[j] += dz2 * a1[j]
					if z1[j] <= 0 {
						continue
					}
					dz1 := dz2 * m.w2[j]
					gb1[j] += dz1
					row := gw1[j*inputDim : (j+1)*inputDim]
					for i := 0; i < inputDim; i++ {
						row[i] += dz1 * x[i]
					}
				}
			}

			step++
			adamUpdate(params, grads, moment1, moment2, cfg.learningRate, step)
		}
	}

	m.stats = Stats{
		Samples: n,
		Epochs:  cfg.epochs,
		Steps:   step,
		Loss:    epochLoss / float64(n),
	}
	return m, nil
}

// Predict returns the admission probability for one normalized vector.
func (m *Model) Predict(x model.Features) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.released {
		return 0, ErrReleased
	}
	out := m.b2[0]
	for j := 0; j < m.hidden; j++ {
		z := m.b1[j]
		row := m.w1[j*inputDim : (j+1)*inputDim]
		for i := 0; i < inputDim; i++ {
			z += row[i] * x[i]
		}
		out += m.w2[j] * relu(z)
	}
	return sigmoid(out), nil
}

// Stats returns the summary of the training run.
func (m *Model) Stats() Stats {
	return m.stats
}

// Release returns the model's buffers to the pool. It is safe to call more
// than once; Predict fails with ErrReleased afterwards.
func (m *Model) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.released {
		return
	}
	m.released = true
	m.w1, m.b1, m.w2, m.b2 = nil, nil, nil, nil
	slabs.Put(m.slab)
	m.slab = nil
}

// glorotUniform fills w with samples from U(-limit, limit),
// limit = sqrt(6 / (fanIn + fanOut)).
func glorotUniform(rng *rand.Rand, w []float64, fanIn, fanOut int) {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	for i := range w {
		w[i] = (rng.Float64()*2 - 1) * limit
	}
}

func adamUpdate(params, grads, m, v []float64, lr float64, step int) {
	t := float64(step)
	c1 := 1 - math.Pow(adamBeta1, t)
	c2 := 1 - math.Pow(adamBeta2, t)
	for i, g := range grads {
		m[i] = adamBeta1*m[i] + (1-adamBeta1)*g
		v[i] = adamBeta2*v[i] + (1-adamBeta2)*g*g
		mHat := m[i] / c1
		vHat := v[i] / c2
		params[i] -= lr * mHat / (math.Sqrt(vHat) + adamEpsilon)
	}
}

func relu(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

func crossEntropy(p, y float64) float64 {
	p = math.Min(math.Max(p, lossEpsilon), 1-lossEpsilon)
	return -(y*math.Log(p) + (1-y)*math.Log(1-p))
}
