package repository

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"CandleSense/internal/domain/models"
	domrepo "CandleSense/internal/domain/repository"
)

type candleSnapshot map[string][]models.Candle

// MemoryCandleStore keeps candles per symbol in ascending time order. Writers publish a new
// snapshot through an atomic pointer, so readers never wait on ingestion and never see a
// half-applied batch.
type MemoryCandleStore struct {
	wmu     sync.Mutex
	snap    atomic.Pointer[candleSnapshot]
	maxKeep int
}

// NewMemoryCandleStore keeps at most maxPerSymbol candles per symbol; 0 keeps everything.
func NewMemoryCandleStore(maxPerSymbol int) *MemoryCandleStore {
	s := &MemoryCandleStore{maxKeep: maxPerSymbol}
	empty := candleSnapshot{}
	s.snap.Store(&empty)
	return s
}

// UpsertCandles merges candles; a repeated timestamp replaces the stored candle.
func (s *MemoryCandleStore) UpsertCandles(_ context.Context, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	bySymbol := make(map[string][]models.Candle)
	for _, c := range candles {
		bySymbol[c.Symbol] = append(bySymbol[c.Symbol], c)
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	cur := *s.snap.Load()
	next := make(candleSnapshot, len(cur)+len(bySymbol))
	for k, v := range cur {
		next[k] = v
	}
	for sym, batch := range bySymbol {
		next[sym] = mergeCandles(cur[sym], batch, s.maxKeep)
	}
	s.snap.Store(&next)
	return nil
}

// mergeCandles returns a new slice; existing is never modified.
func mergeCandles(existing, batch []models.Candle, maxKeep int) []models.Candle {
	idx := make(map[int64]int, len(existing)+len(batch))
	out := make([]models.Candle, 0, len(existing)+len(batch))
	for _, c := range existing {
		idx[c.Timestamp.UnixNano()] = len(out)
		out = append(out, c)
	}
	sorted := true
	for _, c := range batch {
		key := c.Timestamp.UnixNano()
		if i, ok := idx[key]; ok {
			out[i] = c
			continue
		}
		if n := len(out); n > 0 && c.Timestamp.Before(out[n-1].Timestamp) {
			sorted = false
		}
		idx[key] = len(out)
		out = append(out, c)
	}
	if !sorted {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	}
	if maxKeep > 0 && len(out) > maxKeep {
		out = append([]models.Candle(nil), out[len(out)-maxKeep:]...)
	}
	return out
}

func (s *MemoryCandleStore) LatestCandles(_ context.Context, symbol string, n int) ([]models.Candle, error) {
	all := (*s.snap.Load())[symbol]
	if n <= 0 || n > len(all) {
		n = len(all)
	}
	return append([]models.Candle(nil), all[len(all)-n:]...), nil
}

func (s *MemoryCandleStore) CandlesBetween(_ context.Context, symbol string, from, to time.Time) ([]models.Candle, error) {
	all := (*s.snap.Load())[symbol]
	lo := sort.Search(len(all), func(i int) bool { return !all[i].Timestamp.Before(from) })
	hi := sort.Search(len(all), func(i int) bool { return all[i].Timestamp.After(to) })
	if lo >= hi {
		return nil, nil
	}
	return append([]models.Candle(nil), all[lo:hi]...), nil
}

func (s *MemoryCandleStore) CountCandles(context.Context) (int64, error) {
	var n int64
	for _, v := range *s.snap.Load() {
		n += int64(len(v))
	}
	return n, nil
}

func (s *MemoryCandleStore) DeleteCandlesBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	cur := *s.snap.Load()
	next := make(candleSnapshot, len(cur))
	var removed int64
	for sym, all := range cur {
		lo := sort.Search(len(all), func(i int) bool { return !all[i].Timestamp.Before(cutoff) })
		removed += int64(lo)
		if lo < len(all) {
			next[sym] = all[lo:]
		}
	}
	s.snap.Store(&next)
	return removed, nil
}

// Symbols lists the symbols that currently hold candles.
func (s *MemoryCandleStore) Symbols() []string {
	cur := *s.snap.Load()
	out := make([]string, 0, len(cur))
	for k := range cur {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var _ domrepo.CandleStore = (*MemoryCandleStore)(nil)
