package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CandleSense/internal/domain/models"
	"CandleSense/internal/repository"
)

type failingCandleStore struct {
	*repository.MemoryCandleStore
}

func (failingCandleStore) UpsertCandles(context.Context, []models.Candle) error {
	return errors.New("disk full")
}

func TestIngestSkipsInvalidCandles(t *testing.T) {
	store := repository.NewMemoryCandleStore(0)
	in := NewCandleIngestor(store, nil, nil)

	candles := risingCandles(3)
	bad := candles[1]
	bad.High = bad.Low - 1
	noSymbol := candles[2]
	noSymbol.Symbol = ""

	rep, err := in.Ingest(context.Background(), "http", []models.Candle{candles[0], bad, noSymbol})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Accepted)
	assert.Equal(t, 2, rep.Rejected)
	assert.Len(t, rep.Errors, 2)

	n, err := store.CountCandles(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestIngestWrapsStoreFailure(t *testing.T) {
	in := NewCandleIngestor(failingCandleStore{repository.NewMemoryCandleStore(0)}, nil, nil)
	_, err := in.Ingest(context.Background(), "http", risingCandles(2))
	assert.ErrorIs(t, err, models.ErrPersistenceFailure)
}

func TestKafkaCandleHandler(t *testing.T) {
	store := repository.NewMemoryCandleStore(0)
	h := NewKafkaCandleHandler("candles", NewCandleIngestor(store, nil, nil), nil)
	assert.Equal(t, "candles", h.Topic())
	ctx := context.Background()

	one, err := json.Marshal(models.CandleEventOf(risingCandles(1)[0]))
	require.NoError(t, err)
	require.NoError(t, h.Handle(ctx, one))

	events := []models.CandleEvent{
		models.CandleEventOf(risingCandles(2)[1]),
		{Symbol: "", CandleDTO: models.CandleDTO{Timestamp: base.UnixMilli(), Open: 1, High: 1, Low: 1, Close: 1}},
	}
	many, err := json.Marshal(events)
	require.NoError(t, err)
	require.NoError(t, h.Handle(ctx, many))

	got, err := store.LatestCandles(ctx, symbol, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, base.Add(time.Minute), got[1].Timestamp)

	assert.Error(t, h.Handle(ctx, []byte("{not json")))
}
