package neural

import (
	"encoding/json"
	"fmt"
	"time"
)

type persistedLayer struct {
	W       [][]float64 `json:"w"`
	B       []float64   `json:"b"`
	Dropout float64     `json:"dropout"`
}

type persistedNetwork struct {
	Version    int64            `json:"version"`
	TrainedAt  time.Time        `json:"trained_at"`
	Accuracy   float64          `json:"accuracy"`
	InputSize  int              `json:"input_size"`
	Activation string           `json:"activation"`
	Layers     []persistedLayer `json:"layers"`
	Normalizer *Normalizer      `json:"normalizer"`
}

// Encode serialises n as JSON weights plus normaliser statistics.
func Encode(n *Network) ([]byte, error) {
	p := persistedNetwork{
		Version:    n.Version,
		TrainedAt:  n.TrainedAt,
		Accuracy:   n.Accuracy,
		InputSize:  n.inputSize,
		Activation: n.act.name,
		Normalizer: n.norm,
	}
	for _, l := range n.layers {
		p.Layers = append(p.Layers, persistedLayer{W: l.W, B: l.B, Dropout: l.Dropout})
	}
	return json.Marshal(p)
}

// Decode rebuilds a network and checks that consecutive layers fit together.
func Decode(b []byte) (*Network, error) {
	var p persistedNetwork
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	act, err := activationByName(p.Activation)
	if err != nil {
		return nil, err
	}
	if len(p.Layers) < 2 {
		return nil, fmt.Errorf("decode model: %d layers", len(p.Layers))
	}
	n := &Network{
		Version:   p.Version,
		TrainedAt: p.TrainedAt,
		Accuracy:  p.Accuracy,
		inputSize: p.InputSize,
		act:       act,
		norm:      p.Normalizer,
	}
	in := p.InputSize
	for i, l := range p.Layers {
		if len(l.W) == 0 || len(l.W) != len(l.B) {
			return nil, fmt.Errorf("decode model: layer %d malformed", i)
		}
		for _, row := range l.W {
			if len(row) != in {
				return nil, fmt.Errorf("decode model: layer %d expects %d inputs", i, in)
			}
		}
		n.layers = append(n.layers, &layer{W: l.W, B: l.B, Dropout: l.Dropout})
		in = len(l.W)
	}
	if in != int(NumClasses) {
		return nil, fmt.Errorf("decode model: output width %d", in)
	}
	if n.norm == nil || len(n.norm.Means) != p.InputSize || len(n.norm.Stddevs) != p.InputSize {
		n.norm = NewNormalizer(p.InputSize)
	}
	return n, nil
}
