package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"CandleSense/internal/domain/models"
	domrepo "CandleSense/internal/domain/repository"
	pkgch "CandleSense/pkg/clickhouse"
	applogger "CandleSense/pkg/logger"
)

const predictionColumns = `id, symbol, ts, direction, confidence, raw_confidence, method, meets_threshold,
            features, patterns, model_version, manipulation_warning, enrichment,
            validated, was_correct, actual_outcome, validated_at, row_version`

// CHPredictionStore implements PredictionStore backed by ClickHouse. Resolving a prediction
// writes a new row with a higher row_version; FINAL reads collapse to the latest one.
// Resolution is serialised by the validation job lock, so read-then-insert is safe.
type CHPredictionStore struct {
	chBase
}

func NewCHPredictionStore(ch *pkgch.Client, database string, l *applogger.Logger) *CHPredictionStore {
	return &CHPredictionStore{chBase: newCHBase(ch, database, l)}
}

func (s *CHPredictionStore) AppendPrediction(ctx context.Context, p models.Prediction) error {
	if p.ID == "" {
		return fmt.Errorf("append prediction: empty id")
	}
	if _, err := s.getRow(ctx, p.ID); err == nil {
		return fmt.Errorf("append prediction %s: duplicate id", p.ID)
	} else if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("append prediction %s: %w", p.ID, err)
	}
	return s.insert(ctx, p, 1)
}

func (s *CHPredictionStore) insert(ctx context.Context, p models.Prediction, version uint64) error {
	features, err := json.Marshal(p.FeatureSet)
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}
	enrichment := ""
	if p.Enrichment != nil {
		b, err := json.Marshal(p.Enrichment)
		if err != nil {
			return fmt.Errorf("encode enrichment: %w", err)
		}
		enrichment = string(b)
	}
	var validatedAt *time.Time
	if p.ValidationTimestamp != nil {
		t := p.ValidationTimestamp.UTC()
		validatedAt = &t
	}
	patterns := p.Patterns
	if patterns == nil {
		patterns = []string{}
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		s.table("predictions"), predictionColumns)
	_, err = s.db.ExecContext(ctx, q,
		p.ID, p.Symbol, p.Timestamp.UTC(), string(p.Direction), p.Confidence, p.RawConfidence, string(p.Method), p.MeetsThreshold,
		string(features), patterns, p.ModelVersion, p.ManipulationWarning, enrichment,
		p.Validated, p.Correct(), string(p.ActualOutcome), validatedAt, version)
	if err != nil {
		s.l.Error("clickhouse insert_prediction error", applogger.String("id", p.ID), applogger.Error(err))
		return fmt.Errorf("insert prediction: %w", err)
	}
	return nil
}

type predictionRow struct {
	p       models.Prediction
	version uint64
}

func (s *CHPredictionStore) getRow(ctx context.Context, id string) (predictionRow, error) {
	q := fmt.Sprintf("SELECT %s FROM %s FINAL WHERE id = ? LIMIT 1", predictionColumns, s.table("predictions"))
	rows, err := s.db.QueryContext(ctx, q, id)
	if err != nil {
		return predictionRow{}, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return predictionRow{}, err
		}
		return predictionRow{}, fmt.Errorf("prediction %s: %w", id, models.ErrNotFound)
	}
	return scanPrediction(rows)
}

func (s *CHPredictionStore) GetPrediction(ctx context.Context, id string) (models.Prediction, error) {
	row, err := s.getRow(ctx, id)
	if err != nil {
		return models.Prediction{}, err
	}
	return row.p, nil
}

func (s *CHPredictionStore) ResolvePrediction(ctx context.Context, id string, r models.Resolution) (models.Prediction, error) {
	row, err := s.getRow(ctx, id)
	if err != nil {
		return models.Prediction{}, err
	}
	if err := row.p.Resolve(r); err != nil {
		return models.Prediction{}, err
	}
	if err := s.insert(ctx, row.p, row.version+1); err != nil {
		return models.Prediction{}, err
	}
	return row.p, nil
}

func (s *CHPredictionStore) ListPredictions(ctx context.Context, f models.PredictionFilter) ([]models.Prediction, error) {
	start := time.Now()
	where, args := predictionWhere(f)
	q := fmt.Sprintf("SELECT %s FROM %s FINAL%s ORDER BY ts DESC", predictionColumns, s.table("predictions"), where)
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}
	out, err := s.list(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse list_predictions error", applogger.String("symbol", f.Symbol), applogger.Error(err))
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	s.l.Debug("clickhouse list_predictions ok",
		applogger.String("symbol", f.Symbol),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)))
	return out, nil
}

func (s *CHPredictionStore) list(ctx context.Context, q string, args ...interface{}) ([]models.Prediction, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.Prediction, 0, 64)
	for rows.Next() {
		row, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row.p)
	}
	return out, rows.Err()
}

func predictionWhere(f models.PredictionFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	if f.Symbol != "" {
		conds = append(conds, "symbol = ?")
		args = append(args, f.Symbol)
	}
	if f.Validated != nil {
		conds = append(conds, "validated = ?")
		args = append(args, *f.Validated)
	}
	if !f.From.IsZero() {
		conds = append(conds, "ts >= ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		conds = append(conds, "ts <= ?")
		args = append(args, f.To.UTC())
	}
	if !f.ValidatedAfter.IsZero() {
		conds = append(conds, "validated_at > ?")
		args = append(args, f.ValidatedAfter.UTC())
	}
	if !f.ValidatedBefore.IsZero() {
		conds = append(conds, "validated_at <= ?")
		args = append(args, f.ValidatedBefore.UTC())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *CHPredictionStore) CountValidated(ctx context.Context, resolvedAfter, resolvedSince time.Time) (int, error) {
	var n uint64
	q := fmt.Sprintf("SELECT count() FROM %s FINAL WHERE validated AND validated_at > ? AND validated_at >= ?", s.table("predictions"))
	if err := s.db.QueryRowContext(ctx, q, resolvedAfter.UTC(), resolvedSince.UTC()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count validated: %w", err)
	}
	return int(n), nil
}

func (s *CHPredictionStore) History(ctx context.Context, symbol string, limit int) ([]models.HistoricalRecord, error) {
	where, args := predictionWhere(models.PredictionFilter{Symbol: symbol, Validated: models.BoolPtr(true)})
	where += " AND features != '' AND features != '{}'"
	q := fmt.Sprintf("SELECT %s FROM %s FINAL%s ORDER BY ts DESC", predictionColumns, s.table("predictions"), where)
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	preds, err := s.list(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	out := make([]models.HistoricalRecord, 0, len(preds))
	for _, p := range preds {
		if p.FeatureSet.IsZero() {
			continue
		}
		out = append(out, p.HistoricalRecord())
	}
	return out, nil
}

func (s *CHPredictionStore) PredictionStats(ctx context.Context) (models.StoreStats, error) {
	var total, validated, correct uint64
	q := fmt.Sprintf("SELECT count(), countIf(validated), countIf(validated AND was_correct) FROM %s FINAL", s.table("predictions"))
	if err := s.db.QueryRowContext(ctx, q).Scan(&total, &validated, &correct); err != nil {
		return models.StoreStats{}, fmt.Errorf("prediction stats: %w", err)
	}
	st := models.StoreStats{TotalPredictions: int64(total), ValidatedPredictions: int64(validated)}
	if validated > 0 {
		st.WinRate = float64(correct) / float64(validated)
	}
	return st, nil
}

func (s *CHPredictionStore) DeletePredictionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return deleteBefore(ctx, s.chBase, "predictions", cutoff)
}

func scanPrediction(rows *sql.Rows) (predictionRow, error) {
	var (
		row                        predictionRow
		direction, method, outcome string
		features, enrichment       string
		wasCorrect                 bool
		validatedAt                *time.Time
	)
	p := &row.p
	if err := rows.Scan(&p.ID, &p.Symbol, &p.Timestamp, &direction, &p.Confidence, &p.RawConfidence, &method, &p.MeetsThreshold,
		&features, &p.Patterns, &p.ModelVersion, &p.ManipulationWarning, &enrichment,
		&p.Validated, &wasCorrect, &outcome, &validatedAt, &row.version); err != nil {
		return predictionRow{}, fmt.Errorf("scan prediction: %w", err)
	}
	p.Timestamp = p.Timestamp.UTC()
	p.Direction = models.Direction(direction)
	p.Method = models.Method(method)
	p.ActualOutcome = models.Direction(outcome)
	if features != "" {
		if err := json.Unmarshal([]byte(features), &p.FeatureSet); err != nil {
			return predictionRow{}, fmt.Errorf("decode features %s: %w", p.ID, err)
		}
	}
	if enrichment != "" {
		var note models.EnrichmentNote
		if err := json.Unmarshal([]byte(enrichment), &note); err != nil {
			return predictionRow{}, fmt.Errorf("decode enrichment %s: %w", p.ID, err)
		}
		p.Enrichment = &note
	}
	if p.Validated {
		p.WasCorrect = &wasCorrect
		if validatedAt != nil {
			t := validatedAt.UTC()
			p.ValidationTimestamp = &t
		}
	}
	return row, nil
}

// CHPatternScoreStore implements PatternScoreStore backed by ClickHouse.
type CHPatternScoreStore struct {
	chBase
}

func NewCHPatternScoreStore(ch *pkgch.Client, database string, l *applogger.Logger) *CHPatternScoreStore {
	return &CHPatternScoreStore{chBase: newCHBase(ch, database, l)}
}

func (s *CHPatternScoreStore) GetPatternScore(ctx context.Context, signature string) (models.PatternScore, error) {
	var sc models.PatternScore
	q := fmt.Sprintf(`SELECT signature, success_count, failure_count, success_rate, last_seen
        FROM %s FINAL WHERE signature = ? LIMIT 1`, s.table("pattern_scores"))
	err := s.db.QueryRowContext(ctx, q, signature).Scan(&sc.Signature, &sc.SuccessCount, &sc.FailureCount, &sc.SuccessRate, &sc.LastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PatternScore{}, fmt.Errorf("pattern score %q: %w", signature, models.ErrNotFound)
	}
	if err != nil {
		return models.PatternScore{}, fmt.Errorf("get pattern score: %w", err)
	}
	sc.LastSeen = sc.LastSeen.UTC()
	return sc, nil
}

func (s *CHPatternScoreStore) PutPatternScore(ctx context.Context, sc models.PatternScore) error {
	q := fmt.Sprintf(`INSERT INTO %s (signature, success_count, failure_count, success_rate, last_seen, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)`, s.table("pattern_scores"))
	if _, err := s.db.ExecContext(ctx, q, sc.Signature, sc.SuccessCount, sc.FailureCount, sc.SuccessRate, sc.LastSeen.UTC(), time.Now().UTC()); err != nil {
		s.l.Error("clickhouse put_pattern_score error", applogger.String("signature", sc.Signature), applogger.Error(err))
		return fmt.Errorf("put pattern score: %w", err)
	}
	return nil
}

// CHModelStore keeps every saved snapshot; LoadModel returns the newest.
type CHModelStore struct {
	chBase
}

func NewCHModelStore(ch *pkgch.Client, database string, l *applogger.Logger) *CHModelStore {
	return &CHModelStore{chBase: newCHBase(ch, database, l)}
}

func (s *CHModelStore) SaveModel(ctx context.Context, snap domrepo.ModelSnapshot) error {
	q := fmt.Sprintf("INSERT INTO %s (version, trained_at, accuracy, payload, saved_at) VALUES (?, ?, ?, ?, ?)", s.table("model_weights"))
	if _, err := s.db.ExecContext(ctx, q, snap.Version, snap.TrainedAt.UTC(), snap.Accuracy, string(snap.Payload), time.Now().UTC()); err != nil {
		s.l.Error("clickhouse save_model error", applogger.Int64("version", snap.Version), applogger.Error(err))
		return fmt.Errorf("save model: %w", err)
	}
	return nil
}

func (s *CHModelStore) LoadModel(ctx context.Context) (domrepo.ModelSnapshot, error) {
	var (
		snap    domrepo.ModelSnapshot
		payload string
	)
	q := fmt.Sprintf("SELECT version, trained_at, accuracy, payload FROM %s ORDER BY version DESC, saved_at DESC LIMIT 1", s.table("model_weights"))
	err := s.db.QueryRowContext(ctx, q).Scan(&snap.Version, &snap.TrainedAt, &snap.Accuracy, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domrepo.ModelSnapshot{}, fmt.Errorf("model snapshot: %w", models.ErrNotFound)
	}
	if err != nil {
		return domrepo.ModelSnapshot{}, fmt.Errorf("load model: %w", err)
	}
	snap.TrainedAt = snap.TrainedAt.UTC()
	snap.Payload = []byte(payload)
	return snap, nil
}

var (
	_ domrepo.PredictionStore   = (*CHPredictionStore)(nil)
	_ domrepo.PatternScoreStore = (*CHPatternScoreStore)(nil)
	_ domrepo.ModelStore        = (*CHModelStore)(nil)
)
