package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/solrun/internal/config"
	"github.com/sawpanic/solrun/internal/domain"
)

const tradesSchema = `
CREATE TABLE IF NOT EXISTS trades (
	id          TEXT PRIMARY KEY,
	pair        TEXT NOT NULL,
	type        TEXT NOT NULL,
	price       DOUBLE PRECISION NOT NULL,
	amount      DOUBLE PRECISION NOT NULL,
	value_usd   DOUBLE PRECISION NOT NULL DEFAULT 0,
	tx_sig      TEXT NOT NULL DEFAULT '',
	executed_at TIMESTAMPTZ NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_trades_executed_at ON trades (executed_at DESC);
`

const queryTimeout = 10 * time.Second

// PostgresStore journals trades in a trades table, surviving restarts.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore opens the pool, verifies connectivity, and ensures
// the schema exists.
func NewPostgresStore(cfg config.DBConfig) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, tradesSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure trades schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Record(ctx context.Context, trade domain.Trade) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO trades (id, pair, type, price, amount, value_usd, tx_sig, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		trade.ID, trade.Pair, string(trade.Type), trade.Price, trade.Amount,
		trade.ValueUSD, trade.TxSig, trade.Time)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

func (p *PostgresStore) Recent(ctx context.Context, limit int) ([]domain.Trade, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	if limit <= 0 {
		limit = 50
	}

	rows, err := p.db.QueryxContext(ctx, `
		SELECT id, pair, type, price, amount, value_usd, tx_sig, executed_at
		FROM trades
		ORDER BY executed_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		var (
			t        domain.Trade
			kindText string
		)
		if err := rows.Scan(&t.ID, &t.Pair, &kindText, &t.Price, &t.Amount, &t.ValueUSD, &t.TxSig, &t.Time); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Type = domain.TradeAction(kindText)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Close() error {
	log.Debug().Msg("Closing trade journal pool")
	return p.db.Close()
}
