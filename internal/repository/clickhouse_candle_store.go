package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"CandleSense/internal/domain/models"
	domrepo "CandleSense/internal/domain/repository"
	pkgch "CandleSense/pkg/clickhouse"
	applogger "CandleSense/pkg/logger"
)

// CHCandleStore implements CandleStore backed by ClickHouse.
type CHCandleStore struct {
	chBase
}

func NewCHCandleStore(ch *pkgch.Client, database string, l *applogger.Logger) *CHCandleStore {
	return &CHCandleStore{chBase: newCHBase(ch, database, l)}
}

// UpsertCandles inserts in chunks of multi-row VALUES. ingested_at decides which duplicate survives.
func (s *CHCandleStore) UpsertCandles(ctx context.Context, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	const chunkSize = 2000
	now := time.Now().UTC()
	for start := 0; start < len(candles); start += chunkSize {
		end := start + chunkSize
		if end > len(candles) {
			end = len(candles)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*8)
		for i, c := range candles[start:end] {
			if c.Symbol == "" || c.Timestamp.IsZero() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
			// later rows of the same batch win
			args = append(args, c.Symbol, c.Timestamp.UTC(), c.Open, c.High, c.Low, c.Close, c.Volume,
				now.Add(time.Duration(start+i)*time.Microsecond))
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (symbol, ts, open, high, low, close, volume, ingested_at) VALUES %s",
			s.table("candles"), strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse upsert_candles error", applogger.Int("rows", len(values)), applogger.Error(err))
			return fmt.Errorf("upsert candles: %w", err)
		}
	}
	return nil
}

func (s *CHCandleStore) CandlesBetween(ctx context.Context, symbol string, from, to time.Time) ([]models.Candle, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT symbol, ts, open, high, low, close, volume
        FROM %s FINAL
        WHERE symbol = ? AND ts >= ? AND ts <= ?
        ORDER BY ts ASC`, s.table("candles"))
	out, err := s.query(ctx, q, symbol, from.UTC(), to.UTC())
	if err != nil {
		s.l.Error("clickhouse candles_between error", applogger.String("symbol", symbol), applogger.Error(err))
		return nil, fmt.Errorf("candles between: %w", err)
	}
	s.l.Debug("clickhouse candles_between ok",
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)))
	return out, nil
}

func (s *CHCandleStore) LatestCandles(ctx context.Context, symbol string, n int) ([]models.Candle, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT symbol, ts, open, high, low, close, volume
        FROM %s FINAL
        WHERE symbol = ?
        ORDER BY ts DESC
        LIMIT ?`, s.table("candles"))
	tmp, err := s.query(ctx, q, symbol, n)
	if err != nil {
		s.l.Error("clickhouse latest_candles error", applogger.String("symbol", symbol), applogger.Int("limit", n), applogger.Error(err))
		return nil, fmt.Errorf("latest candles: %w", err)
	}
	// reverse to ASC
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	s.l.Debug("clickhouse latest_candles ok",
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(tmp)),
		applogger.Duration("duration_ms", time.Since(start)))
	return tmp, nil
}

func (s *CHCandleStore) query(ctx context.Context, q string, args ...interface{}) ([]models.Candle, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Candle, 0, 256)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Symbol, &c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.Timestamp = c.Timestamp.UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *CHCandleStore) CountCandles(ctx context.Context) (int64, error) {
	var n uint64
	q := fmt.Sprintf("SELECT count() FROM %s FINAL", s.table("candles"))
	if err := s.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("count candles: %w", err)
	}
	return int64(n), nil
}

func (s *CHCandleStore) DeleteCandlesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return deleteBefore(ctx, s.chBase, "candles", cutoff)
}

// deleteBefore counts and then removes rows with ts < cutoff through a mutation.
func deleteBefore(ctx context.Context, b chBase, table string, cutoff time.Time) (int64, error) {
	var n uint64
	if err := b.db.QueryRowContext(ctx, fmt.Sprintf("SELECT count() FROM %s WHERE ts < ?", b.table(table)), cutoff.UTC()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s before cutoff: %w", table, err)
	}
	if n == 0 {
		return 0, nil
	}
	if _, err := b.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s DELETE WHERE ts < ?", b.table(table)), cutoff.UTC()); err != nil {
		b.l.Error("clickhouse retention delete error", applogger.String("table", table), applogger.Error(err))
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	return int64(n), nil
}

var _ domrepo.CandleStore = (*CHCandleStore)(nil)
