package neural

import (
	"context"
	"math/rand"
	"time"
)

// EpochProgress is emitted once per completed epoch.
type EpochProgress struct {
	Epoch       int     `json:"epoch"`
	Loss        float64 `json:"loss"`
	Accuracy    float64 `json:"accuracy"`
	ValLoss     float64 `json:"val_loss"`
	ValAccuracy float64 `json:"val_accuracy"`
}

// TrainingResult summarises a finished run.
type TrainingResult struct {
	Version      int64         `json:"version"`
	Epochs       int           `json:"epochs"`
	TrainSamples int           `json:"train_samples"`
	ValSamples   int           `json:"val_samples"`
	Loss         float64       `json:"loss"`
	Accuracy     float64       `json:"accuracy"`
	ValLoss      float64       `json:"val_loss"`
	ValAccuracy  float64       `json:"val_accuracy"`
	Duration     time.Duration `json:"duration"`
}

// TrainingRun is a single in-flight training job. Its progress channel is buffered for
// every epoch and closed when the run ends, so callers may read it or ignore it.
type TrainingRun struct {
	progress  chan EpochProgress
	done      chan struct{}
	base      *Network
	candidate *Network
	result    TrainingResult
	err       error
}

func newTrainingRun(base *Network, epochs int) *TrainingRun {
	return &TrainingRun{
		progress: make(chan EpochProgress, epochs),
		done:     make(chan struct{}),
		base:     base,
	}
}

// Progress yields per-epoch records; it cannot be restarted.
func (r *TrainingRun) Progress() <-chan EpochProgress { return r.progress }

// Done is closed when the run has finished, successfully or not.
func (r *TrainingRun) Done() <-chan struct{} { return r.done }

// Wait blocks until the run ends or ctx is done. A ctx expiry does not stop the run.
func (r *TrainingRun) Wait(ctx context.Context) (TrainingResult, error) {
	select {
	case <-r.done:
		return r.result, r.err
	case <-ctx.Done():
		return TrainingResult{}, ctx.Err()
	}
}

// Candidate is the trained network, nil until the run has succeeded.
func (r *TrainingRun) Candidate() *Network {
	select {
	case <-r.done:
		if r.err == nil {
			return r.candidate
		}
	default:
	}
	return nil
}

func (r *TrainingRun) finish(cand *Network, res TrainingResult, err error) {
	r.candidate, r.result, r.err = cand, res, err
	close(r.progress)
	close(r.done)
}

// fit trains net in place. val may be empty, in which case no validation metrics are reported.
func fit(ctx context.Context, net *Network, cfg Config, train, val []Sample, rng *rand.Rand, progress chan<- EpochProgress) (TrainingResult, error) {
	start := time.Now()
	res := TrainingResult{Epochs: cfg.Epochs, TrainSamples: len(train), ValSamples: len(val)}

	inputs := make([][]float64, len(train))
	for i, s := range train {
		inputs[i] = s.Input
	}
	net.norm.Fit(inputs)
	xs := make([][]float64, len(train))
	for i, in := range inputs {
		xs[i] = net.norm.Transform(in)
	}

	opt := newAdam(net, cfg.LearningRate)
	grads := newGradients(net)
	order := make([]int, len(train))
	for i := range order {
		order[i] = i
	}

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var lossSum float64
		var correct int
		for bStart := 0; bStart < len(order); bStart += cfg.BatchSize {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			bEnd := min(bStart+cfg.BatchSize, len(order))
			grads.reset()
			for _, idx := range order[bStart:bEnd] {
				p := net.forward(xs[idx], rng)
				probs := p.acts[len(p.acts)-1]
				lossSum += crossEntropy(probs, train[idx].Target)
				if Class(argmax(probs)) == train[idx].Label {
					correct++
				}
				net.backward(p, train[idx].Target, grads)
			}
			opt.apply(net, grads, bEnd-bStart)
		}

		ep := EpochProgress{
			Epoch:    epoch,
			Loss:     lossSum / float64(len(train)),
			Accuracy: float64(correct) / float64(len(train)),
		}
		if len(val) > 0 {
			ev := EvaluateNetwork(net, val)
			ep.ValLoss, ep.ValAccuracy = ev.Loss, ev.Accuracy
		}
		res.Loss, res.Accuracy, res.ValLoss, res.ValAccuracy = ep.Loss, ep.Accuracy, ep.ValLoss, ep.ValAccuracy

		select {
		case progress <- ep:
		default:
		}
	}

	res.Duration = time.Since(start)
	return res, nil
}

// Evaluation is loss and accuracy on a held-out set.
type Evaluation struct {
	Loss     float64 `json:"loss"`
	Accuracy float64 `json:"accuracy"`
	Samples  int     `json:"samples"`
}

// EvaluateNetwork scores n without dropout.
func EvaluateNetwork(n *Network, samples []Sample) Evaluation {
	ev := Evaluation{Samples: len(samples)}
	if len(samples) == 0 {
		return ev
	}
	var correct int
	for _, s := range samples {
		probs, err := n.Probabilities(s.Input)
		if err != nil {
			continue
		}
		ev.Loss += crossEntropy(probs, s.Target)
		if Class(argmax(probs)) == s.Label {
			correct++
		}
	}
	ev.Loss /= float64(len(samples))
	ev.Accuracy = float64(correct) / float64(len(samples))
	return ev
}
