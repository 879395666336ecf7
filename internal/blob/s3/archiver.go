package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/tkarev/futguard/internal/domain"
)

// BlobWriter is the upload surface the archiver needs.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver moves aged trade and decision records out of Postgres into
// month-partitioned JSONL objects. Records are deleted from the primary
// store only after the upload succeeds, so a failed upload leaves everything
// queryable and the next run retries.
type Archiver struct {
	writer    BlobWriter
	trades    domain.TradeStore
	decisions domain.DecisionStore
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewArchiver creates an Archiver. retention is how long records stay in the
// primary store; interval is how often the archive pass runs.
func NewArchiver(writer BlobWriter, trades domain.TradeStore, decisions domain.DecisionStore, retention, interval time.Duration, logger *slog.Logger) *Archiver {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Archiver{
		writer:    writer,
		trades:    trades,
		decisions: decisions,
		retention: retention,
		interval:  interval,
		logger:    logger.With("component", "archiver"),
		now:       time.Now,
	}
}

// Run archives on a fixed interval until the context is cancelled.
func (a *Archiver) Run(ctx context.Context) error {
	a.logger.Info("archiver started",
		"retention", a.retention.String(),
		"interval", a.interval.String())

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("archiver stopped")
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().Add(-a.retention)
			if n, err := a.ArchiveTrades(ctx, cutoff); err != nil {
				a.logger.Error("trade archive failed", "error", err)
			} else if n > 0 {
				a.logger.Info("trades archived", "count", n)
			}
			if n, err := a.ArchiveDecisions(ctx, cutoff); err != nil {
				a.logger.Error("decision archive failed", "error", err)
			} else if n > 0 {
				a.logger.Info("decisions archived", "count", n)
			}
		}
	}
}

// ArchiveTrades uploads all trades recorded before the cutoff to
// archive/trades/YYYY-MM.jsonl and deletes them from the store. Returns the
// number of records archived.
func (a *Archiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}
	path := a.archivePath("trades", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	if _, err := a.trades.DeleteBefore(ctx, before); err != nil {
		return int64(len(trades)), fmt.Errorf("s3blob: archive trades cleanup: %w", err)
	}
	return int64(len(trades)), nil
}

// ArchiveDecisions uploads all decision records before the cutoff to
// archive/decisions/YYYY-MM.jsonl and deletes them from the store. Returns
// the number of records archived.
func (a *Archiver) ArchiveDecisions(ctx context.Context, before time.Time) (int64, error) {
	decisions, err := a.decisions.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive decisions query: %w", err)
	}
	if len(decisions) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(decisions)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive decisions marshal: %w", err)
	}
	path := a.archivePath("decisions", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive decisions upload: %w", err)
	}

	if _, err := a.decisions.DeleteBefore(ctx, before); err != nil {
		return int64(len(decisions)), fmt.Errorf("s3blob: archive decisions cleanup: %w", err)
	}
	return int64(len(decisions)), nil
}

// archivePath builds the object key, partitioned by the year-month of the
// cutoff with the pass timestamp as the object name:
//
//	archive/trades/2026-08/20260829T120000Z.jsonl
//	archive/decisions/2026-08/20260829T120000Z.jsonl
//
// Each pass writes a fresh object, so a pass never overwrites the batch a
// previous pass already archived and deleted from the primary store.
func (a *Archiver) archivePath(kind string, before time.Time) string {
	stamp := a.now().UTC().Format("20060102T150405Z")
	return fmt.Sprintf("archive/%s/%s/%s.jsonl", kind, before.Format("2006-01"), stamp)
}

// marshalJSONL serialises records as newline-delimited JSON, one compact
// object per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
