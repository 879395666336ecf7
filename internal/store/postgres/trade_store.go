package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tkarev/futguard/internal/domain"
)

const tradeCols = `id, order_id, symbol, side, trade_type, price, quantity, leverage, pnl, fee, status, executed_at`

// TradeStore persists the append-only trade log.
type TradeStore struct {
	pool *pgxpool.Pool
}

var _ domain.TradeStore = (*TradeStore)(nil)

func NewTradeStore(client *Client) *TradeStore {
	return &TradeStore{pool: client.Pool()}
}

func (s *TradeStore) Insert(ctx context.Context, t domain.TradeRecord) error {
	const q = `
		INSERT INTO trades (` + tradeCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := s.pool.Exec(ctx, q,
		t.ID, t.OrderID, t.Symbol, string(t.Side), string(t.Type),
		t.Price, t.Quantity, t.Leverage, t.PnL, t.Fee, string(t.Status), t.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", t.ID, err)
	}
	return nil
}

func (s *TradeStore) ListBySymbol(ctx context.Context, symbol string, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	q := `SELECT ` + tradeCols + ` FROM trades WHERE symbol = $1`
	args := []any{symbol}

	if opts.Since != nil {
		args = append(args, *opts.Since)
		q += fmt.Sprintf(" AND executed_at >= $%d", len(args))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		q += fmt.Sprintf(" AND executed_at < $%d", len(args))
	}
	q += " ORDER BY executed_at DESC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades for %s: %w", symbol, err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

func (s *TradeStore) ListUnreconciled(ctx context.Context) ([]domain.TradeRecord, error) {
	const q = `
		SELECT ` + tradeCols + ` FROM trades
		WHERE status = $1
		ORDER BY executed_at ASC`
	rows, err := s.pool.Query(ctx, q, string(domain.TradeStatusReconcile))
	if err != nil {
		return nil, fmt.Errorf("postgres: list unreconciled trades: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

func (s *TradeStore) Reconcile(ctx context.Context, orderID string, price float64) error {
	const q = `
		UPDATE trades SET price = $1, status = $2
		WHERE order_id = $3 AND status = $4`
	tag, err := s.pool.Exec(ctx, q,
		price, string(domain.TradeStatusFilled), orderID, string(domain.TradeStatusReconcile))
	if err != nil {
		return fmt.Errorf("postgres: reconcile trade %s: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: reconcile trade %s: %w", orderID, domain.ErrNotFound)
	}
	return nil
}

func (s *TradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.TradeRecord, error) {
	const q = `
		SELECT ` + tradeCols + ` FROM trades
		WHERE executed_at < $1
		ORDER BY executed_at ASC`
	rows, err := s.pool.Query(ctx, q, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

func (s *TradeStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trades WHERE executed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trades before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

func scanTrades(rows pgx.Rows) ([]domain.TradeRecord, error) {
	var out []domain.TradeRecord
	for rows.Next() {
		var (
			t            domain.TradeRecord
			side, typ, s string
		)
		if err := rows.Scan(
			&t.ID, &t.OrderID, &t.Symbol, &side, &typ,
			&t.Price, &t.Quantity, &t.Leverage, &t.PnL, &t.Fee, &s, &t.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		t.Side = domain.Side(side)
		t.Type = domain.TradeType(typ)
		t.Status = domain.TradeStatus(s)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate trades: %w", err)
	}
	return out, nil
}
