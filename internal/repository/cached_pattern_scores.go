package repository

import (
	"context"
	"errors"
	"time"

	"CandleSense/internal/domain/models"
	domrepo "CandleSense/internal/domain/repository"
	"CandleSense/pkg/cache"
	applogger "CandleSense/pkg/logger"
)

const patternScoreKeyPrefix = "pattern_score"

// CachedPatternScoreStore is a read-through cache in front of a PatternScoreStore. Writes go
// to the backing store first and then refresh the cache entry. Cache failures only cost a
// backing-store read.
type CachedPatternScoreStore struct {
	inner domrepo.PatternScoreStore
	cache cache.Store
	ttl   time.Duration
	l     *applogger.Logger
}

func NewCachedPatternScoreStore(inner domrepo.PatternScoreStore, c cache.Store, ttl time.Duration, l *applogger.Logger) *CachedPatternScoreStore {
	return &CachedPatternScoreStore{inner: inner, cache: c, ttl: ttl, l: applogger.OrNop(l)}
}

func (s *CachedPatternScoreStore) GetPatternScore(ctx context.Context, signature string) (models.PatternScore, error) {
	key := cache.Key(patternScoreKeyPrefix, signature)
	var sc models.PatternScore
	err := s.cache.Get(ctx, key, &sc)
	if err == nil {
		return sc, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.l.Warn("pattern score cache get", applogger.String("signature", signature), applogger.Error(err))
	}
	sc, err = s.inner.GetPatternScore(ctx, signature)
	if err != nil {
		return sc, err
	}
	if err := s.cache.Set(ctx, key, sc, s.ttl); err != nil {
		s.l.Warn("pattern score cache set", applogger.String("signature", signature), applogger.Error(err))
	}
	return sc, nil
}

func (s *CachedPatternScoreStore) PutPatternScore(ctx context.Context, sc models.PatternScore) error {
	if err := s.inner.PutPatternScore(ctx, sc); err != nil {
		return err
	}
	key := cache.Key(patternScoreKeyPrefix, sc.Signature)
	if err := s.cache.Set(ctx, key, sc, s.ttl); err != nil {
		s.l.Warn("pattern score cache refresh", applogger.String("signature", sc.Signature), applogger.Error(err))
		_ = s.cache.Delete(ctx, key)
	}
	return nil
}

var _ domrepo.PatternScoreStore = (*CachedPatternScoreStore)(nil)
