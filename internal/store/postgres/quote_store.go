package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tomvane/edgebot/internal/domain"
)

// QuoteStore implements domain.QuoteStore using PostgreSQL.
type QuoteStore struct {
	pool *pgxpool.Pool
}

// NewQuoteStore creates a new QuoteStore backed by the given connection pool.
func NewQuoteStore(pool *pgxpool.Pool) *QuoteStore {
	return &QuoteStore{pool: pool}
}

// AppendBatch inserts a batch of quotes in one round trip. Re-inserting a
// quote ID already on record is a no-op; quotes are immutable.
func (s *QuoteStore) AppendBatch(ctx context.Context, quotes []domain.OddsQuote) error {
	if len(quotes) == 0 {
		return nil
	}

	const query = `
		INSERT INTO quotes (id, event_id, provider, market, selection, odds, captured_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, q := range quotes {
		var meta []byte
		if len(q.Metadata) > 0 {
			var err error
			meta, err = json.Marshal(q.Metadata)
			if err != nil {
				return fmt.Errorf("postgres: marshal quote metadata %s: %w", q.ID, err)
			}
		}
		batch.Queue(query,
			q.ID, q.EventID, q.Provider, string(q.Market), q.Selection,
			q.Odds.String(), q.CapturedAt, meta,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range quotes {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("postgres: append quotes: %w", err)
		}
	}
	return nil
}

const quoteSelectCols = `id, event_id, provider, market, selection, odds::text, captured_at, metadata`

func scanQuoteRows(rows pgx.Rows) ([]domain.OddsQuote, error) {
	var quotes []domain.OddsQuote
	for rows.Next() {
		var q domain.OddsQuote
		var market, odds string
		var meta []byte

		if err := rows.Scan(&q.ID, &q.EventID, &q.Provider, &market, &q.Selection, &odds, &q.CapturedAt, &meta); err != nil {
			return nil, err
		}

		q.Market = domain.MarketType(market)
		parsed, err := decimal.NewFromString(odds)
		if err != nil {
			return nil, fmt.Errorf("parse odds %q: %w", odds, err)
		}
		q.Odds = parsed

		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &q.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal quote metadata %s: %w", q.ID, err)
			}
		}
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

// ListBefore returns up to limit quotes captured before the cutoff, oldest
// first. The archiver drains retention batches through this.
func (s *QuoteStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.OddsQuote, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+quoteSelectCols+` FROM quotes
		 WHERE captured_at < $1
		 ORDER BY captured_at ASC
		 LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list quotes before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	defer rows.Close()

	quotes, err := scanQuoteRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan quotes: %w", err)
	}
	return quotes, nil
}

// DeleteBefore removes quotes captured before the cutoff and reports how many
// rows went away.
func (s *QuoteStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM quotes WHERE captured_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete quotes before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

var _ domain.QuoteStore = (*QuoteStore)(nil)
