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

// BetStore implements domain.BetStore using PostgreSQL. The rolling-window
// sum queries run against (event_id, created_at), (sport, created_at) and
// settled_at indexes so they stay cheap as history grows.
type BetStore struct {
	pool *pgxpool.Pool
}

// NewBetStore creates a new BetStore backed by the given connection pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

// Create inserts a new bet order.
func (s *BetStore) Create(ctx context.Context, o domain.BetOrder) error {
	legs, err := json.Marshal(o.Legs)
	if err != nil {
		return fmt.Errorf("postgres: marshal bet legs %s: %w", o.ID, err)
	}

	const query = `
		INSERT INTO bets (
			id, opportunity_id, event_id, sport, market, legs,
			stake, odds, status, result, profit_loss, reason,
			created_at, placed_at, settled_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15, NOW()
		)`

	_, err = s.pool.Exec(ctx, query,
		o.ID, o.OpportunityID, o.EventID, o.Sport, string(o.Market), legs,
		o.Stake.String(), o.Odds.String(), string(o.Status), string(o.Result),
		o.ProfitLoss.String(), o.Reason,
		o.CreatedAt, o.PlacedAt, o.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create bet %s: %w", o.ID, err)
	}
	return nil
}

// UpdateStatus changes the status of an existing bet and sets the matching
// timestamp field where the transition implies one.
func (s *BetStore) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, reason string) error {
	var query string
	switch status {
	case domain.OrderPlaced:
		query = `UPDATE bets SET status = $1, reason = $2, placed_at = NOW(), updated_at = NOW() WHERE id = $3`
	default:
		query = `UPDATE bets SET status = $1, reason = $2, updated_at = NOW() WHERE id = $3`
	}

	tag, err := s.pool.Exec(ctx, query, string(status), reason, id)
	if err != nil {
		return fmt.Errorf("postgres: update bet status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Settle records the outcome and realized profit or loss of a placed bet.
func (s *BetStore) Settle(ctx context.Context, id string, result domain.BetResult, profitLoss decimal.Decimal) error {
	const query = `
		UPDATE bets
		SET status = $1, result = $2, profit_loss = $3, settled_at = NOW(), updated_at = NOW()
		WHERE id = $4`

	tag, err := s.pool.Exec(ctx, query,
		string(domain.OrderSettled), string(result), profitLoss.String(), id)
	if err != nil {
		return fmt.Errorf("postgres: settle bet %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const betSelectCols = `id, opportunity_id, event_id, sport, market, legs,
	stake::text, odds::text, status, result, profit_loss::text, reason,
	created_at, placed_at, settled_at`

func scanBetFromRow(scanner interface{ Scan(dest ...any) error }) (domain.BetOrder, error) {
	var o domain.BetOrder
	var market, stake, odds, status, result, pl string
	var legs []byte

	err := scanner.Scan(
		&o.ID, &o.OpportunityID, &o.EventID, &o.Sport, &market, &legs,
		&stake, &odds, &status, &result, &pl, &o.Reason,
		&o.CreatedAt, &o.PlacedAt, &o.SettledAt,
	)
	if err != nil {
		return domain.BetOrder{}, err
	}

	o.Market = domain.MarketType(market)
	o.Status = domain.OrderStatus(status)
	o.Result = domain.BetResult(result)

	if o.Stake, err = decimal.NewFromString(stake); err != nil {
		return domain.BetOrder{}, fmt.Errorf("parse stake %q: %w", stake, err)
	}
	if o.Odds, err = decimal.NewFromString(odds); err != nil {
		return domain.BetOrder{}, fmt.Errorf("parse odds %q: %w", odds, err)
	}
	if o.ProfitLoss, err = decimal.NewFromString(pl); err != nil {
		return domain.BetOrder{}, fmt.Errorf("parse profit_loss %q: %w", pl, err)
	}
	if err := json.Unmarshal(legs, &o.Legs); err != nil {
		return domain.BetOrder{}, fmt.Errorf("unmarshal bet legs %s: %w", o.ID, err)
	}
	return o, nil
}

// GetByID retrieves a single bet by ID.
func (s *BetStore) GetByID(ctx context.Context, id string) (domain.BetOrder, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+betSelectCols+` FROM bets WHERE id = $1`, id)

	o, err := scanBetFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.BetOrder{}, domain.ErrNotFound
		}
		return domain.BetOrder{}, fmt.Errorf("postgres: get bet %s: %w", id, err)
	}
	return o, nil
}

// ListSettledBetween returns bets settled in [from, to), oldest first. The
// archiver exports these before retention trimming.
func (s *BetStore) ListSettledBetween(ctx context.Context, from, to time.Time) ([]domain.BetOrder, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+betSelectCols+` FROM bets
		 WHERE settled_at >= $1 AND settled_at < $2
		 ORDER BY settled_at ASC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled bets: %w", err)
	}
	defer rows.Close()

	var bets []domain.BetOrder
	for rows.Next() {
		o, err := scanBetFromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan settled bets: %w", err)
		}
		bets = append(bets, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: scan settled bets: %w", err)
	}
	return bets, nil
}

func (s *BetStore) sumQuery(ctx context.Context, query string, args ...any) (decimal.Decimal, error) {
	var sum string
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&sum); err != nil {
		return decimal.Zero, err
	}
	parsed, err := decimal.NewFromString(sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse sum %q: %w", sum, err)
	}
	return parsed, nil
}

// StakeSumForEvent sums open committed stake for one event recorded in
// [from, to). Rejected bets never committed money and settled bets have
// resolved, so both are excluded.
func (s *BetStore) StakeSumForEvent(ctx context.Context, eventID string, from, to time.Time) (decimal.Decimal, error) {
	sum, err := s.sumQuery(ctx,
		`SELECT COALESCE(SUM(stake), 0)::text FROM bets
		 WHERE event_id = $1 AND created_at >= $2 AND created_at < $3
		   AND status NOT IN ($4, $5)`,
		eventID, from, to, string(domain.OrderRejected), string(domain.OrderSettled))
	if err != nil {
		return decimal.Zero, fmt.Errorf("postgres: stake sum for event %s: %w", eventID, err)
	}
	return sum, nil
}

// StakeSumForSport sums open committed stake for one sport recorded in
// [from, to).
func (s *BetStore) StakeSumForSport(ctx context.Context, sport string, from, to time.Time) (decimal.Decimal, error) {
	sum, err := s.sumQuery(ctx,
		`SELECT COALESCE(SUM(stake), 0)::text FROM bets
		 WHERE sport = $1 AND created_at >= $2 AND created_at < $3
		   AND status NOT IN ($4, $5)`,
		sport, from, to, string(domain.OrderRejected), string(domain.OrderSettled))
	if err != nil {
		return decimal.Zero, fmt.Errorf("postgres: stake sum for sport %s: %w", sport, err)
	}
	return sum, nil
}

// LossSumWithin sums realized losses settled since the cutoff, returned as a
// non-negative magnitude.
func (s *BetStore) LossSumWithin(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	sum, err := s.sumQuery(ctx,
		`SELECT COALESCE(SUM(-profit_loss), 0)::text FROM bets
		 WHERE settled_at >= $1 AND profit_loss < 0`, since)
	if err != nil {
		return decimal.Zero, fmt.Errorf("postgres: loss sum: %w", err)
	}
	return sum, nil
}

var _ domain.BetStore = (*BetStore)(nil)
