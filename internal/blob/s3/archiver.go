package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/tomvane/edgebot/internal/domain"
)

// Archiver drains aged records out of the hot store into JSONL objects.
// Quotes are deleted from Postgres only after the archive upload succeeded;
// settled bets are exported but kept, since the risk window still reads them.
type Archiver struct {
	writer    *Writer
	quotes    domain.QuoteStore
	bets      domain.BetStore
	batchSize int
	logger    *slog.Logger
}

// NewArchiver creates an Archiver draining quote batches of batchSize.
func NewArchiver(writer *Writer, quotes domain.QuoteStore, bets domain.BetStore, batchSize int, logger *slog.Logger) *Archiver {
	if batchSize <= 0 {
		batchSize = 5000
	}
	return &Archiver{
		writer:    writer,
		quotes:    quotes,
		bets:      bets,
		batchSize: batchSize,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveQuotes exports quotes captured before the cutoff and deletes them
// from the hot store once the upload is durable. Returns the archived count.
func (a *Archiver) ArchiveQuotes(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for {
		batch, err := a.quotes.ListBefore(ctx, before, a.batchSize)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive quotes query: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		buf, err := marshalJSONL(batch)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive quotes marshal: %w", err)
		}

		path := archivePath("quotes", batch[0].CapturedAt)
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
			return total, fmt.Errorf("s3blob: archive quotes upload: %w", err)
		}

		// Delete only what the uploaded batch covered.
		cutoff := batch[len(batch)-1].CapturedAt.Add(time.Nanosecond)
		if cutoff.After(before) {
			cutoff = before
		}
		deleted, err := a.quotes.DeleteBefore(ctx, cutoff)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive quotes trim: %w", err)
		}

		total += int64(len(batch))
		a.logger.InfoContext(ctx, "quote batch archived",
			slog.String("path", path),
			slog.Int("count", len(batch)),
			slog.Int64("deleted", deleted),
		)

		if len(batch) < a.batchSize {
			break
		}
	}
	return total, nil
}

// ArchiveSettledBets exports bets settled in [from, to) to one JSONL object.
func (a *Archiver) ArchiveSettledBets(ctx context.Context, from, to time.Time) (int64, error) {
	bets, err := a.bets.ListSettledBetween(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settled bets query: %w", err)
	}
	if len(bets) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(bets)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settled bets marshal: %w", err)
	}

	path := archivePath("bets", from)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive settled bets upload: %w", err)
	}

	a.logger.InfoContext(ctx, "settled bets archived",
		slog.String("path", path),
		slog.Int("count", len(bets)),
	)
	return int64(len(bets)), nil
}

// archivePath partitions archive objects by day:
//
//	archive/quotes/2026-08-30.jsonl
//	archive/bets/2026-08-30.jsonl
func archivePath(kind string, at time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, at.UTC().Format("2006-01-02"))
}

// marshalJSONL serialises records as newline-delimited JSON.
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
