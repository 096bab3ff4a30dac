// Package store persists market snapshots in Postgres.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"polyops/internal/market"
)

const schema = `
CREATE TABLE IF NOT EXISTS market_snapshots (
	ts             timestamptz      NOT NULL,
	condition_id   text             NOT NULL,
	question       text             NOT NULL,
	yes_price      double precision NOT NULL,
	no_price       double precision NOT NULL,
	best_bid       double precision NOT NULL,
	best_ask       double precision NOT NULL,
	spread         double precision NOT NULL,
	volume_24h     double precision NOT NULL,
	liquidity      double precision NOT NULL,
	end_date       timestamptz,
	PRIMARY KEY (ts, condition_id)
);
CREATE INDEX IF NOT EXISTS market_snapshots_condition_ts
	ON market_snapshots (condition_id, ts);
`

// MarketSnapshot is one row of the market_snapshots table.
type MarketSnapshot struct {
	Timestamp   time.Time
	ConditionID string
	Question    string
	YesPrice    float64
	NoPrice     float64
	BestBid     float64
	BestAsk     float64
	Spread      float64
	Volume24h   float64
	Liquidity   float64
	EndDate     time.Time
}

// FromMarket flattens a fetched market into a snapshot row.
func FromMarket(ts time.Time, m market.Market) MarketSnapshot {
	return MarketSnapshot{
		Timestamp:   ts,
		ConditionID: m.ConditionID,
		Question:    m.Question,
		YesPrice:    m.YesPrice.InexactFloat64(),
		NoPrice:     m.NoPrice.InexactFloat64(),
		BestBid:     m.BestBid.InexactFloat64(),
		BestAsk:     m.BestAsk.InexactFloat64(),
		Spread:      m.Spread.InexactFloat64(),
		Volume24h:   m.Volume24h.InexactFloat64(),
		Liquidity:   m.Liquidity.InexactFloat64(),
		EndDate:     m.EndDate,
	}
}

// Store wraps the pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to Postgres, pings it, and ensures the schema exists.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ensure schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// InsertSnapshots bulk-inserts one cycle of snapshots via CopyFrom.
func (s *Store) InsertSnapshots(ctx context.Context, snapshots []MarketSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	rows := make([][]any, len(snapshots))
	for i, snap := range snapshots {
		rows[i] = []any{
			snap.Timestamp, snap.ConditionID, snap.Question,
			snap.YesPrice, snap.NoPrice,
			snap.BestBid, snap.BestAsk, snap.Spread,
			snap.Volume24h, snap.Liquidity,
			snap.EndDate,
		}
	}

	copyCount, err := s.pool.CopyFrom(
		ctx,
		pgx.Identifier{"market_snapshots"},
		[]string{
			"ts", "condition_id", "question",
			"yes_price", "no_price",
			"best_bid", "best_ask", "spread",
			"volume_24h", "liquidity",
			"end_date",
		},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("CopyFrom failed: %w", err)
	}
	if int(copyCount) != len(snapshots) {
		return fmt.Errorf("expected to insert %d rows, CopyFrom returned %d", len(snapshots), copyCount)
	}
	return nil
}

// SnapshotsSince returns all snapshots recorded at or after since, ordered
// by timestamp then condition id. The optimizer replays these as a price
// history.
func (s *Store) SnapshotsSince(ctx context.Context, since time.Time) ([]MarketSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ts, condition_id, question,
		       yes_price, no_price,
		       best_bid, best_ask, spread,
		       volume_24h, liquidity,
		       COALESCE(end_date, 'epoch'::timestamptz)
		FROM market_snapshots
		WHERE ts >= $1
		ORDER BY ts, condition_id`, since)
	if err != nil {
		return nil, fmt.Errorf("snapshot query failed: %w", err)
	}
	defer rows.Close()

	var snaps []MarketSnapshot
	for rows.Next() {
		var snap MarketSnapshot
		if err := rows.Scan(
			&snap.Timestamp, &snap.ConditionID, &snap.Question,
			&snap.YesPrice, &snap.NoPrice,
			&snap.BestBid, &snap.BestAsk, &snap.Spread,
			&snap.Volume24h, &snap.Liquidity,
			&snap.EndDate,
		); err != nil {
			return nil, fmt.Errorf("snapshot scan failed: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("snapshot rows failed: %w", err)
	}
	return snaps, nil
}
