package neural

import "math"

const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-8
)

// adam keeps first and second moment estimates for every parameter of one network.
type adam struct {
	lr   float64
	step int
	m, v *gradients
}

func newAdam(n *Network, lr float64) *adam {
	return &adam{lr: lr, m: newGradients(n), v: newGradients(n)}
}

// apply updates n in place with the batch-mean gradient g.
func (o *adam) apply(n *Network, g *gradients, batch int) {
	o.step++
	scale := 1 / float64(batch)
	c1 := 1 - math.Pow(adamBeta1, float64(o.step))
	c2 := 1 - math.Pow(adamBeta2, float64(o.step))
	update := func(param *float64, grad float64, m, v *float64) {
		grad *= scale
		*m = adamBeta1**m + (1-adamBeta1)*grad
		*v = adamBeta2**v + (1-adamBeta2)*grad*grad
		mh := *m / c1
		vh := *v / c2
		*param -= o.lr * mh / (math.Sqrt(vh) + adamEpsilon)
	}
	for li, l := range n.layers {
		for i := range l.W {
			for j := range l.W[i] {
				update(&l.W[i][j], g.W[li][i][j], &o.m.W[li][i][j], &o.v.W[li][i][j])
			}
			update(&l.B[i], g.B[li][i], &o.m.B[li][i], &o.v.B[li][i])
		}
	}
}

func (g *gradients) reset() {
	for li := range g.W {
		for i := range g.W[li] {
			clear(g.W[li][i])
		}
		clear(g.B[li])
	}
}
