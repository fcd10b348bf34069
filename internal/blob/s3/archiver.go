package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pricepoolhq/poolbot/internal/domain"
)

// multipartThreshold is the payload size above which the archiver switches
// from a single PutObject to a multipart upload.
const multipartThreshold = 8 * 1024 * 1024

// SettlementArchiveStore provides read access to settled stakes for
// archival. The postgres SettlementStore satisfies it through
// ListSettledBefore.
type SettlementArchiveStore interface {
	ListSettledBefore(ctx context.Context, before time.Time) ([]domain.StakeRecord, error)
}

// SettlementArchiver implements domain.Archiver by querying settled stake
// records, serializing them to JSONL, and uploading the result to blob
// storage partitioned by year-month.
//
// Deletion of the archived rows from the primary store is intentionally not
// performed here; that is a separate, explicit step after the archive has
// been verified.
type SettlementArchiver struct {
	writer      domain.BlobWriter
	settlements SettlementArchiveStore
	audit       domain.AuditStore
}

// NewSettlementArchiver creates a SettlementArchiver.
func NewSettlementArchiver(writer domain.BlobWriter, settlements SettlementArchiveStore, audit domain.AuditStore) *SettlementArchiver {
	return &SettlementArchiver{
		writer:      writer,
		settlements: settlements,
		audit:       audit,
	}
}

// Archive snapshots every stake settled strictly before the cutoff to
// archive/settlements/YYYY-MM.jsonl and records the run in the audit log.
func (a *SettlementArchiver) Archive(ctx context.Context, before time.Time) (domain.ArchiveResult, error) {
	recs, err := a.settlements.ListSettledBefore(ctx, before)
	if err != nil {
		return domain.ArchiveResult{}, fmt.Errorf("s3blob: archive settlements query: %w", err)
	}
	if len(recs) == 0 {
		return domain.ArchiveResult{}, nil
	}

	buf, err := marshalJSONL(recs)
	if err != nil {
		return domain.ArchiveResult{}, fmt.Errorf("s3blob: archive settlements marshal: %w", err)
	}

	path := archivePath("settlements", before)
	if int64(len(buf)) >= multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return domain.ArchiveResult{}, fmt.Errorf("s3blob: archive settlements upload: %w", err)
	}

	result := domain.ArchiveResult{
		Path:    path,
		Records: len(recs),
		Bytes:   int64(len(buf)),
	}

	if err := a.audit.Log(ctx, "archive.settlements", map[string]any{
		"path":   result.Path,
		"count":  result.Records,
		"bytes":  result.Bytes,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return result, fmt.Errorf("s3blob: archive settlements audit log: %w", err)
	}

	return result, nil
}

// archivePath builds the blob key for an archive file, partitioned by the
// year-month of the cutoff time.
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
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
