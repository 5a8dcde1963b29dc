package neural

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"CandleSense/internal/domain/models"
)

// Class indexes the output layer.
type Class int

const (
	ClassUp Class = iota
	ClassDown
	ClassNeutral
	NumClasses
)

// Direction maps a class to its label.
func (c Class) Direction() models.Direction {
	switch c {
	case ClassUp:
		return models.DirectionUp
	case ClassDown:
		return models.DirectionDown
	default:
		return models.DirectionNeutral
	}
}

// ClassOf maps an outcome label to its class.
func ClassOf(d models.Direction) (Class, bool) {
	switch d {
	case models.DirectionUp:
		return ClassUp, true
	case models.DirectionDown:
		return ClassDown, true
	case models.DirectionNeutral:
		return ClassNeutral, true
	}
	return 0, false
}

type activation struct {
	name  string
	f     func(float64) float64
	deriv func(z, a float64) float64
}

func activationByName(name string) (activation, error) {
	switch name {
	case "relu", "":
		return activation{"relu",
			func(z float64) float64 { return math.Max(0, z) },
			func(z, _ float64) float64 {
				if z > 0 {
					return 1
				}
				return 0
			}}, nil
	case "tanh":
		return activation{"tanh", math.Tanh, func(_, a float64) float64 { return 1 - a*a }}, nil
	case "sigmoid":
		return activation{"sigmoid",
			func(z float64) float64 { return 1 / (1 + math.Exp(-z)) },
			func(_, a float64) float64 { return a * (1 - a) }}, nil
	}
	return activation{}, fmt.Errorf("neural: unknown activation %q", name)
}

// layer is a dense layer; W is out x in.
type layer struct {
	W       [][]float64
	B       []float64
	Dropout float64
}

func newLayer(in, out int, dropout float64, rng *rand.Rand) *layer {
	l := &layer{W: make([][]float64, out), B: make([]float64, out), Dropout: dropout}
	scale := math.Sqrt(2 / float64(in))
	for i := range l.W {
		l.W[i] = make([]float64, in)
		for j := range l.W[i] {
			l.W[i][j] = rng.NormFloat64() * scale
		}
	}
	return l
}

func (l *layer) clone() *layer {
	c := &layer{W: make([][]float64, len(l.W)), B: append([]float64(nil), l.B...), Dropout: l.Dropout}
	for i := range l.W {
		c.W[i] = append([]float64(nil), l.W[i]...)
	}
	return c
}

// Network is one immutable-once-published model version. Training always works on a Clone.
type Network struct {
	Version   int64
	TrainedAt time.Time
	Accuracy  float64

	inputSize int
	act       activation
	layers    []*layer
	norm      *Normalizer
}

// NewNetwork initialises weights for cfg's shape.
func NewNetwork(cfg Config, rng *rand.Rand) (*Network, error) {
	act, err := activationByName(cfg.Activation)
	if err != nil {
		return nil, err
	}
	n := &Network{inputSize: cfg.InputSize, act: act, norm: NewNormalizer(cfg.InputSize)}
	in := cfg.InputSize
	for i, width := range cfg.Hidden {
		n.layers = append(n.layers, newLayer(in, width, cfg.dropoutAt(i), rng))
		in = width
	}
	n.layers = append(n.layers, newLayer(in, int(NumClasses), 0, rng))
	return n, nil
}

// Clone deep-copies parameters so training never touches a published network.
func (n *Network) Clone() *Network {
	c := &Network{
		Version:   n.Version,
		TrainedAt: n.TrainedAt,
		Accuracy:  n.Accuracy,
		inputSize: n.inputSize,
		act:       n.act,
		layers:    make([]*layer, len(n.layers)),
		norm:      n.norm.Clone(),
	}
	for i, l := range n.layers {
		c.layers[i] = l.clone()
	}
	return c
}

func (n *Network) InputSize() int { return n.inputSize }

// Probabilities runs inference; dropout is inactive.
func (n *Network) Probabilities(x []float64) ([]float64, error) {
	if len(x) != n.inputSize {
		return nil, fmt.Errorf("neural: input width %d, want %d", len(x), n.inputSize)
	}
	f := n.forward(n.norm.Transform(x), nil)
	return f.acts[len(f.acts)-1], nil
}

// pass holds per-layer pre-activations, activations and dropout masks of one forward pass.
type pass struct {
	zs    [][]float64
	acts  [][]float64 // acts[0] is the input
	masks [][]float64
}

// forward with rng != nil applies inverted dropout.
func (n *Network) forward(x []float64, rng *rand.Rand) pass {
	p := pass{acts: [][]float64{x}}
	a := x
	last := len(n.layers) - 1
	for li, l := range n.layers {
		z := make([]float64, len(l.W))
		for i, row := range l.W {
			s := l.B[i]
			for j, w := range row {
				s += w * a[j]
			}
			z[i] = s
		}
		var out []float64
		var mask []float64
		if li == last {
			out = softmax(z)
		} else {
			out = make([]float64, len(z))
			for i, v := range z {
				out[i] = n.act.f(v)
			}
			if rng != nil && l.Dropout > 0 {
				keep := 1 - l.Dropout
				mask = make([]float64, len(out))
				for i := range out {
					if rng.Float64() < keep {
						mask[i] = 1 / keep
					}
					out[i] *= mask[i]
				}
			}
		}
		p.zs = append(p.zs, z)
		p.acts = append(p.acts, out)
		p.masks = append(p.masks, mask)
		a = out
	}
	return p
}

// gradients mirrors the layer shapes.
type gradients struct {
	W [][][]float64
	B [][]float64
}

func newGradients(n *Network) *gradients {
	g := &gradients{W: make([][][]float64, len(n.layers)), B: make([][]float64, len(n.layers))}
	for li, l := range n.layers {
		g.W[li] = make([][]float64, len(l.W))
		for i := range l.W {
			g.W[li][i] = make([]float64, len(l.W[i]))
		}
		g.B[li] = make([]float64, len(l.B))
	}
	return g
}

// backward accumulates cross-entropy gradients of one sample into g.
func (n *Network) backward(p pass, target []float64, g *gradients) {
	last := len(n.layers) - 1
	probs := p.acts[last+1]
	delta := make([]float64, len(probs))
	for i := range probs {
		delta[i] = probs[i] - target[i]
	}
	for li := last; li >= 0; li-- {
		l := n.layers[li]
		in := p.acts[li]
		for i, d := range delta {
			g.B[li][i] += d
			row := g.W[li][i]
			for j, a := range in {
				row[j] += d * a
			}
		}
		if li == 0 {
			return
		}
		prev := make([]float64, len(in))
		for i, d := range delta {
			for j, w := range l.W[i] {
				prev[j] += w * d
			}
		}
		below := li - 1
		mask := p.masks[below]
		z := p.zs[below]
		for j := range prev {
			if mask != nil {
				prev[j] *= mask[j]
			}
			// derivative is taken on the pre-dropout activation
			prev[j] *= n.act.deriv(z[j], n.act.f(z[j]))
		}
		delta = prev
	}
}

func softmax(z []float64) []float64 {
	maxZ := math.Inf(-1)
	for _, v := range z {
		maxZ = math.Max(maxZ, v)
	}
	out := make([]float64, len(z))
	sum := 0.0
	for i, v := range z {
		out[i] = math.Exp(v - maxZ)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func crossEntropy(probs, target []float64) float64 {
	loss := 0.0
	for i, t := range target {
		if t > 0 {
			loss -= t * math.Log(math.Max(probs[i], 1e-12))
		}
	}
	return loss
}

func argmax(xs []float64) int {
	best := 0
	for i, v := range xs {
		if v > xs[best] {
			best = i
		}
	}
	return best
}
