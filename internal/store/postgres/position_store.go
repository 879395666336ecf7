package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tkarev/futguard/internal/domain"
)

// PositionStore persists open position snapshots keyed by symbol.
type PositionStore struct {
	pool *pgxpool.Pool
}

var _ domain.PositionStore = (*PositionStore)(nil)

func NewPositionStore(client *Client) *PositionStore {
	return &PositionStore{pool: client.Pool()}
}

func (s *PositionStore) Upsert(ctx context.Context, p domain.Position) error {
	const q = `
		INSERT INTO positions (
			symbol, size, entry_price, leverage, margin, reserved_margin,
			realized_pnl, peak_pnl_percent, partial_close_pct, original_qty,
			opened_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (symbol) DO UPDATE SET
			size = EXCLUDED.size,
			entry_price = EXCLUDED.entry_price,
			leverage = EXCLUDED.leverage,
			margin = EXCLUDED.margin,
			reserved_margin = EXCLUDED.reserved_margin,
			realized_pnl = EXCLUDED.realized_pnl,
			peak_pnl_percent = EXCLUDED.peak_pnl_percent,
			partial_close_pct = EXCLUDED.partial_close_pct,
			original_qty = EXCLUDED.original_qty,
			updated_at = EXCLUDED.updated_at`
	_, err := s.pool.Exec(ctx, q,
		p.Symbol, p.Size, p.EntryPrice, p.Leverage, p.Margin, p.ReservedMargin,
		p.RealizedPnL, p.PeakPnLPercent, p.PartialClosePct, p.OriginalQty,
		p.OpenedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s: %w", p.Symbol, err)
	}
	return nil
}

func (s *PositionStore) Delete(ctx context.Context, symbol string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM positions WHERE symbol = $1`, symbol); err != nil {
		return fmt.Errorf("postgres: delete position %s: %w", symbol, err)
	}
	return nil
}

func (s *PositionStore) ListOpen(ctx context.Context) ([]domain.Position, error) {
	const q = `
		SELECT symbol, size, entry_price, leverage, margin, reserved_margin,
		       realized_pnl, peak_pnl_percent, partial_close_pct, original_qty,
		       opened_at, updated_at
		FROM positions
		WHERE size <> 0
		ORDER BY symbol`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		var p domain.Position
		if err := rows.Scan(
			&p.Symbol, &p.Size, &p.EntryPrice, &p.Leverage, &p.Margin, &p.ReservedMargin,
			&p.RealizedPnL, &p.PeakPnLPercent, &p.PartialClosePct, &p.OriginalQty,
			&p.OpenedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate positions: %w", err)
	}
	return out, nil
}
