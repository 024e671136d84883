package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/openpredict/marketd/internal/domain"
)

// JournalSource provides the completed journal entries the archiver copies
// to cold storage. The journal service satisfies it.
type JournalSource interface {
	CompletedBefore(ctx context.Context, cutoff time.Time) ([]domain.Transaction, error)
}

// Archiver copies completed journal entries older than the retention window
// to S3 as JSONL, one file per run, partitioned by cutoff month.
//
// The archive is a copy, not a move. The journal stays authoritative;
// pruning archived rows from the primary store is a separate, explicit
// operation to run after the archive has been verified.
type Archiver struct {
	writer        *Writer
	source        JournalSource
	retentionDays int
	logger        *slog.Logger
}

// NewArchiver creates an Archiver reading from source and writing through
// the given Writer.
func NewArchiver(writer *Writer, source JournalSource, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:        writer,
		source:        source,
		retentionDays: retentionDays,
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// Run executes a single archive pass: entries completed before the retention
// cutoff are serialized to JSONL and uploaded. It returns the number of
// archived entries.
func (a *Archiver) Run(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)

	txs, err := a.source.CompletedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}
	if len(txs) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(txs)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	path := archivePath(cutoff)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}

	count := int64(len(txs))
	a.logger.InfoContext(ctx, "journal archived",
		slog.String("path", path),
		slog.Int64("count", count),
		slog.Time("cutoff", cutoff),
	)
	return count, nil
}

// RunEvery repeats Run on the given interval until ctx is cancelled. Errors
// are logged; one failed pass does not stop the loop.
func (a *Archiver) RunEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.Run(ctx); err != nil {
				a.logger.ErrorContext(ctx, "archive pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/journal/2026-08.jsonl
func archivePath(cutoff time.Time) string {
	return fmt.Sprintf("archive/journal/%s.jsonl", cutoff.Format("2006-01"))
}

// marshalJSONL serializes entries as newline-delimited JSON.
func marshalJSONL(txs []domain.Transaction) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, tx := range txs {
		if err := enc.Encode(tx); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
