package repository

import (
	"database/sql"
	"fmt"

	pkgch "CandleSense/pkg/clickhouse"
	applogger "CandleSense/pkg/logger"
)

// ClickHouseSchema returns the idempotent DDL for every engine table in database.
// Candles, predictions and pattern scores use ReplacingMergeTree so a rewrite of the same
// key replaces the previous row; reads use FINAL.
func ClickHouseSchema(database string) []string {
	return []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.candles (
            symbol      LowCardinality(String),
            ts          DateTime64(3, 'UTC'),
            open        Float64,
            high        Float64,
            low         Float64,
            close       Float64,
            volume      Float64,
            ingested_at DateTime64(6, 'UTC')
        ) ENGINE = ReplacingMergeTree(ingested_at)
        ORDER BY (symbol, ts)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.predictions (
            id                   String,
            symbol               LowCardinality(String),
            ts                   DateTime64(3, 'UTC'),
            direction            LowCardinality(String),
            confidence           Float64,
            raw_confidence       Float64,
            method               LowCardinality(String),
            meets_threshold      Bool,
            features             String,
            patterns             Array(String),
            model_version        Int64,
            manipulation_warning Bool,
            enrichment           String,
            validated            Bool,
            was_correct          Bool,
            actual_outcome       LowCardinality(String),
            validated_at         Nullable(DateTime64(3, 'UTC')),
            row_version          UInt64
        ) ENGINE = ReplacingMergeTree(row_version)
        ORDER BY (symbol, ts, id)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.pattern_scores (
            signature     String,
            success_count Int64,
            failure_count Int64,
            success_rate  Float64,
            last_seen     DateTime64(3, 'UTC'),
            updated_at    DateTime64(6, 'UTC')
        ) ENGINE = ReplacingMergeTree(updated_at)
        ORDER BY signature`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.model_weights (
            version    Int64,
            trained_at DateTime64(3, 'UTC'),
            accuracy   Float64,
            payload    String,
            saved_at   DateTime64(6, 'UTC')
        ) ENGINE = MergeTree
        ORDER BY (version, saved_at)`, database),
	}
}

// chBase is what every ClickHouse store shares.
type chBase struct {
	db       *sql.DB
	database string
	l        *applogger.Logger
}

func newCHBase(ch *pkgch.Client, database string, l *applogger.Logger) chBase {
	return chBase{db: ch.DB(), database: database, l: applogger.OrNop(l)}
}

func (b chBase) table(name string) string { return b.database + "." + name }
