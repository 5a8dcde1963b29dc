package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"CandleSense/internal/domain/models"
	domrepo "CandleSense/internal/domain/repository"
)

// MemoryPredictionStore is the in-process prediction store used by the memory backend and tests.
type MemoryPredictionStore struct {
	mu    sync.RWMutex
	byID  map[string]models.Prediction
	order []string
}

func NewMemoryPredictionStore() *MemoryPredictionStore {
	return &MemoryPredictionStore{byID: make(map[string]models.Prediction)}
}

func (s *MemoryPredictionStore) AppendPrediction(_ context.Context, p models.Prediction) error {
	if p.ID == "" {
		return fmt.Errorf("append prediction: empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[p.ID]; ok {
		return fmt.Errorf("append prediction %s: duplicate id", p.ID)
	}
	s.byID[p.ID] = clonePrediction(p)
	s.order = append(s.order, p.ID)
	return nil
}

func (s *MemoryPredictionStore) GetPrediction(_ context.Context, id string) (models.Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return models.Prediction{}, fmt.Errorf("prediction %s: %w", id, models.ErrNotFound)
	}
	return clonePrediction(p), nil
}

func (s *MemoryPredictionStore) ResolvePrediction(_ context.Context, id string, r models.Resolution) (models.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return models.Prediction{}, fmt.Errorf("prediction %s: %w", id, models.ErrNotFound)
	}
	if err := p.Resolve(r); err != nil {
		return models.Prediction{}, err
	}
	s.byID[id] = p
	return clonePrediction(p), nil
}

func (s *MemoryPredictionStore) ListPredictions(_ context.Context, f models.PredictionFilter) ([]models.Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Prediction, 0)
	for _, id := range s.order {
		p := s.byID[id]
		if matchesFilter(p, f) {
			out = append(out, p)
		}
	}
	sortNewestFirst(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	for i := range out {
		out[i] = clonePrediction(out[i])
	}
	return out, nil
}

// CountValidated counts predictions resolved strictly after resolvedAfter and not before
// resolvedSince.
func (s *MemoryPredictionStore) CountValidated(_ context.Context, resolvedAfter, resolvedSince time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.byID {
		if !p.Validated || p.ValidationTimestamp == nil {
			continue
		}
		at := *p.ValidationTimestamp
		if at.After(resolvedAfter) && !at.Before(resolvedSince) {
			n++
		}
	}
	return n, nil
}

// History returns validated predictions that carry a feature set, newest first.
func (s *MemoryPredictionStore) History(ctx context.Context, symbol string, limit int) ([]models.HistoricalRecord, error) {
	preds, err := s.ListPredictions(ctx, models.PredictionFilter{Symbol: symbol, Validated: models.BoolPtr(true)})
	if err != nil {
		return nil, err
	}
	out := make([]models.HistoricalRecord, 0, len(preds))
	for _, p := range preds {
		if p.FeatureSet.IsZero() {
			continue
		}
		out = append(out, p.HistoricalRecord())
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryPredictionStore) PredictionStats(context.Context) (models.StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st models.StoreStats
	var correct int64
	for _, p := range s.byID {
		st.TotalPredictions++
		if p.Validated {
			st.ValidatedPredictions++
			if p.Correct() {
				correct++
			}
		}
	}
	if st.ValidatedPredictions > 0 {
		st.WinRate = float64(correct) / float64(st.ValidatedPredictions)
	}
	return st, nil
}

func (s *MemoryPredictionStore) DeletePredictionsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	kept := s.order[:0]
	for _, id := range s.order {
		if s.byID[id].Timestamp.Before(cutoff) {
			delete(s.byID, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return removed, nil
}

func matchesFilter(p models.Prediction, f models.PredictionFilter) bool {
	if f.Symbol != "" && p.Symbol != f.Symbol {
		return false
	}
	if f.Validated != nil && p.Validated != *f.Validated {
		return false
	}
	if !f.From.IsZero() && p.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && p.Timestamp.After(f.To) {
		return false
	}
	if !f.ValidatedAfter.IsZero() || !f.ValidatedBefore.IsZero() {
		if p.ValidationTimestamp == nil {
			return false
		}
		if !f.ValidatedAfter.IsZero() && !p.ValidationTimestamp.After(f.ValidatedAfter) {
			return false
		}
		if !f.ValidatedBefore.IsZero() && p.ValidationTimestamp.After(f.ValidatedBefore) {
			return false
		}
	}
	return true
}

func sortNewestFirst(preds []models.Prediction) {
	sort.SliceStable(preds, func(i, j int) bool { return preds[i].Timestamp.After(preds[j].Timestamp) })
}

// clonePrediction detaches the pointer and slice fields so callers cannot mutate stored state.
func clonePrediction(p models.Prediction) models.Prediction {
	if p.WasCorrect != nil {
		v := *p.WasCorrect
		p.WasCorrect = &v
	}
	if p.ValidationTimestamp != nil {
		v := *p.ValidationTimestamp
		p.ValidationTimestamp = &v
	}
	if p.Enrichment != nil {
		v := *p.Enrichment
		p.Enrichment = &v
	}
	p.Patterns = append([]string(nil), p.Patterns...)
	return p
}

// MemoryPatternScoreStore keeps pattern scores in process.
type MemoryPatternScoreStore struct {
	mu     sync.RWMutex
	scores map[string]models.PatternScore
}

func NewMemoryPatternScoreStore() *MemoryPatternScoreStore {
	return &MemoryPatternScoreStore{scores: make(map[string]models.PatternScore)}
}

func (s *MemoryPatternScoreStore) GetPatternScore(_ context.Context, signature string) (models.PatternScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scores[signature]
	if !ok {
		return models.PatternScore{}, fmt.Errorf("pattern score %q: %w", signature, models.ErrNotFound)
	}
	return sc, nil
}

func (s *MemoryPatternScoreStore) PutPatternScore(_ context.Context, sc models.PatternScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[sc.Signature] = sc
	return nil
}

var (
	_ domrepo.PredictionStore   = (*MemoryPredictionStore)(nil)
	_ domrepo.PatternScoreStore = (*MemoryPatternScoreStore)(nil)
)
