package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tomvane/edgebot/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore backed by the given pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

// Append records one opportunity. Opportunity IDs are deterministic, so a
// replayed insert for the same detection is a no-op rather than a duplicate.
func (s *OpportunityStore) Append(ctx context.Context, opp domain.BettingOpportunity) error {
	legs, err := json.Marshal(opp.Legs)
	if err != nil {
		return fmt.Errorf("postgres: marshal opportunity legs %s: %w", opp.ID, err)
	}

	const query = `
		INSERT INTO opportunities (
			id, strategy, config_version, event_id, sport, market,
			legs, edge, stake, quote_ids, detected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`

	_, err = s.pool.Exec(ctx, query,
		opp.ID, opp.Strategy, opp.ConfigVersion, opp.EventID, opp.Sport,
		string(opp.Market), legs, opp.Edge.String(), opp.Stake.String(),
		opp.QuoteIDs, opp.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// ListRecent returns the most recently detected opportunities, newest first.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.BettingOpportunity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, strategy, config_version, event_id, sport, market,
		        legs, edge::text, stake::text, quote_ids, detected_at
		 FROM opportunities
		 ORDER BY detected_at DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent opportunities: %w", err)
	}
	defer rows.Close()

	opps, err := scanOpportunityRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan opportunities: %w", err)
	}
	return opps, nil
}

func scanOpportunityRows(rows pgx.Rows) ([]domain.BettingOpportunity, error) {
	var opps []domain.BettingOpportunity
	for rows.Next() {
		var o domain.BettingOpportunity
		var market, edge, stake string
		var legs []byte

		err := rows.Scan(&o.ID, &o.Strategy, &o.ConfigVersion, &o.EventID, &o.Sport,
			&market, &legs, &edge, &stake, &o.QuoteIDs, &o.DetectedAt)
		if err != nil {
			return nil, err
		}

		o.Market = domain.MarketType(market)
		if o.Edge, err = decimal.NewFromString(edge); err != nil {
			return nil, fmt.Errorf("parse edge %q: %w", edge, err)
		}
		if o.Stake, err = decimal.NewFromString(stake); err != nil {
			return nil, fmt.Errorf("parse stake %q: %w", stake, err)
		}
		if err := json.Unmarshal(legs, &o.Legs); err != nil {
			return nil, fmt.Errorf("unmarshal opportunity legs %s: %w", o.ID, err)
		}
		opps = append(opps, o)
	}
	return opps, rows.Err()
}

var _ domain.OpportunityStore = (*OpportunityStore)(nil)
