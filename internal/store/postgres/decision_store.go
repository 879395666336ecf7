package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tkarev/futguard/internal/domain"
)

const decisionCols = `id, decided_at, trigger_kind, symbol, pnl_percent, threshold, level, description`

// DecisionStore persists the append-only risk decision audit log.
type DecisionStore struct {
	pool *pgxpool.Pool
}

var _ domain.DecisionStore = (*DecisionStore)(nil)

func NewDecisionStore(client *Client) *DecisionStore {
	return &DecisionStore{pool: client.Pool()}
}

func (s *DecisionStore) Insert(ctx context.Context, d domain.DecisionRecord) error {
	const q = `
		INSERT INTO decisions (` + decisionCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.pool.Exec(ctx, q,
		d.ID, d.Timestamp, string(d.Trigger), d.Symbol,
		d.PnLPercent, d.Threshold, d.Level, d.Description,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert decision %s: %w", d.ID, err)
	}
	return nil
}

func (s *DecisionStore) ListRecent(ctx context.Context, limit int) ([]domain.DecisionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
		SELECT ` + decisionCols + ` FROM decisions
		ORDER BY decided_at DESC
		LIMIT $1`
	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent decisions: %w", err)
	}
	defer rows.Close()
	return scanDecisions(rows)
}

func (s *DecisionStore) ListBefore(ctx context.Context, before time.Time) ([]domain.DecisionRecord, error) {
	const q = `
		SELECT ` + decisionCols + ` FROM decisions
		WHERE decided_at < $1
		ORDER BY decided_at ASC`
	rows, err := s.pool.Query(ctx, q, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list decisions before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()
	return scanDecisions(rows)
}

func (s *DecisionStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM decisions WHERE decided_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete decisions before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

func scanDecisions(rows pgx.Rows) ([]domain.DecisionRecord, error) {
	var out []domain.DecisionRecord
	for rows.Next() {
		var (
			d       domain.DecisionRecord
			trigger string
		)
		if err := rows.Scan(
			&d.ID, &d.Timestamp, &trigger, &d.Symbol,
			&d.PnLPercent, &d.Threshold, &d.Level, &d.Description,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan decision: %w", err)
		}
		d.Trigger = domain.TriggerKind(trigger)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate decisions: %w", err)
	}
	return out, nil
}
