package expectancy

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tradeedge/signalcore/internal/domain"
)

const outcomesSchema = `
CREATE TABLE IF NOT EXISTS trade_outcomes (
	id         BIGSERIAL PRIMARY KEY,
	strategy   TEXT NOT NULL,
	regime     TEXT NOT NULL,
	class      TEXT NOT NULL,
	symbol     TEXT NOT NULL,
	won        BOOLEAN NOT NULL,
	r_multiple DOUBLE PRECISION NOT NULL,
	closed_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trade_outcomes_lookup
	ON trade_outcomes (strategy, regime, class, closed_at DESC);`

// PGJournal is the postgres-backed outcome journal.
type PGJournal struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPGJournal creates the journal and ensures its schema exists.
func NewPGJournal(db *sqlx.DB, timeout time.Duration) (*PGJournal, error) {
	if _, err := db.Exec(outcomesSchema); err != nil {
		return nil, fmt.Errorf("failed to ensure trade_outcomes schema: %w", err)
	}
	return &PGJournal{db: db, timeout: timeout}, nil
}

func (j *PGJournal) Append(ctx context.Context, o domain.TradeOutcome) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO trade_outcomes (strategy, regime, class, symbol, won, r_multiple, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		o.Key.Strategy, o.Key.Regime, o.Key.Class, o.Symbol, o.Won, o.RMultiple, o.ClosedAt)
	if err != nil {
		return fmt.Errorf("failed to insert trade outcome: %w", err)
	}
	return nil
}

// RecentByKey returns, for each key, up to `window` outcomes ordered
// oldest-first, matching the in-memory window layout.
func (j *PGJournal) RecentByKey(ctx context.Context, window int) (map[domain.ExpectancyKey][]domain.TradeOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	// Window per key via a ranked subquery, newest first within each key.
	rows, err := j.db.QueryxContext(ctx, `
		SELECT strategy, regime, class, symbol, won, r_multiple, closed_at FROM (
			SELECT *, ROW_NUMBER() OVER (
				PARTITION BY strategy, regime, class ORDER BY closed_at DESC, id DESC
			) AS rn
			FROM trade_outcomes
		) ranked
		WHERE rn <= $1
		ORDER BY closed_at ASC, symbol ASC`, window)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade outcomes: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.ExpectancyKey][]domain.TradeOutcome)
	for rows.Next() {
		var o domain.TradeOutcome
		if err := rows.Scan(&o.Key.Strategy, &o.Key.Regime, &o.Key.Class,
			&o.Symbol, &o.Won, &o.RMultiple, &o.ClosedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trade outcome: %w", err)
		}
		out[o.Key] = append(out[o.Key], o)
	}
	return out, rows.Err()
}

func (j *PGJournal) Prune(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	res, err := j.db.ExecContext(ctx,
		`DELETE FROM trade_outcomes WHERE closed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune trade outcomes: %w", err)
	}
	return res.RowsAffected()
}
