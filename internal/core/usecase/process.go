package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mkravets/docveil/internal/core/domain"
	"github.com/mkravets/docveil/internal/core/ports"
)

// ProcessDocumentUseCase runs the worker-side pipeline for one uploaded
// document: extract text, then ingest it into the owning session where it is
// anonymized, chunked, embedded, and indexed.
type ProcessDocumentUseCase struct {
	repo      ports.DocumentRepository
	extractor ports.TextExtractor
	sessions  ports.SessionService
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	extractor ports.TextExtractor,
	sessions ports.SessionService,
) *ProcessDocumentUseCase {
	return &ProcessDocumentUseCase{
		repo:      repo,
		extractor: extractor,
		sessions:  sessions,
	}
}

func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	if err := uc.markStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	doc, result, err := uc.processPipeline(ctx, documentID)
	if err != nil {
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.SaveIngestResult(ctx, doc.ID, result); err != nil {
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			return fmt.Errorf("save ingest result: %w; mark failed status: %v", err, failErr)
		}
		return fmt.Errorf("save ingest result: %w", err)
	}

	if err := uc.markStatus(ctx, documentID, domain.StatusReady, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}

	return nil
}

func (uc *ProcessDocumentUseCase) processPipeline(ctx context.Context, documentID string) (*domain.Document, domain.IngestResult, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, domain.IngestResult{}, fmt.Errorf("fetch document by id: %w", err)
	}

	text, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		return nil, domain.IngestResult{}, fmt.Errorf("extract text: %w", err)
	}
	// An empty extraction means there is nothing to anonymize or index. The
	// document still becomes ready, with zero chunks.
	if text == "" {
		slog.Warn("document_has_no_indexable_text", "document_id", doc.ID, "session_id", doc.SessionID)
		return doc, domain.IngestResult{}, nil
	}

	result, err := uc.sessions.Ingest(ctx, doc.SessionID, doc.ID, text)
	if err != nil {
		return nil, domain.IngestResult{}, fmt.Errorf("ingest into session: %w", err)
	}

	return doc, result, nil
}

func (uc *ProcessDocumentUseCase) markStatus(ctx context.Context, documentID string, status domain.DocumentStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, documentID, status, errMessage)
}

func (uc *ProcessDocumentUseCase) markFailed(ctx context.Context, documentID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.markStatus(ctx, documentID, domain.StatusFailed, processErr.Error())
}
