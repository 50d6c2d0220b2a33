package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hisync/hisync/internal/platform/db"
	"github.com/hisync/hisync/internal/platform/wire"
)

// CascadeConfig carries the terminal working-state ids the cascade promotes
// an export document to. An empty id disables promotion for that kind.
type CascadeConfig struct {
	AllExportedStateID       string
	AllActualExportedStateID string
}

// Service synchronizes HIS export documents into the local store and drives
// the irreversible export transitions on medicine lines.
type Service struct {
	docs    ExportDocumentRepository
	slips   ExportSlipRepository
	lines   MedicineLineRepository
	txm     db.TxManager
	cascade CascadeConfig
	logger  zerolog.Logger
}

func NewService(
	docs ExportDocumentRepository,
	slips ExportSlipRepository,
	lines MedicineLineRepository,
	txm db.TxManager,
	cascade CascadeConfig,
	logger zerolog.Logger,
) *Service {
	return &Service{
		docs:    docs,
		slips:   slips,
		lines:   lines,
		txm:     txm,
		cascade: cascade,
		logger:  logger,
	}
}

// SyncAllRequest is one HIS synchronization call: a parent document payload,
// its slips, and their medicine lines, all as raw HIS objects.
type SyncAllRequest struct {
	Document       wire.Payload
	Slips          []wire.Payload
	Lines          []wire.Payload
	ActorID        string
	WorkingStateID *string
}

// SyncAllResult mirrors the three persisted levels.
type SyncAllResult struct {
	Document *ExportDocument `json:"document"`
	Slips    []*ExportSlip   `json:"slips"`
	Lines    []*MedicineLine `json:"lines"`
}

type slipEntry struct {
	slip    *ExportSlip
	payload wire.Payload
}

// SyncAll upserts the parent document, its slips, and their lines as one
// atomic unit. Any error aborts the whole transaction. Lines whose owner
// reference matches no slip in the call are skipped; when the call carries
// no slips at all, a single self-referential default slip is synthesized
// from the parent payload so lines still have an owner to attach to.
func (s *Service) SyncAll(ctx context.Context, req SyncAllRequest) (*SyncAllResult, error) {
	if req.Document == nil {
		return nil, fmt.Errorf("document payload is required: %w", ErrInvalidArgument)
	}
	docHISID := req.Document.Int64(FieldHISID)
	if docHISID == nil {
		return nil, fmt.Errorf("document payload has no decodable id: %w", ErrInvalidArgument)
	}

	var result *SyncAllResult
	err := s.txm.InTx(ctx, func(txCtx context.Context) error {
		doc, err := s.upsertDocument(txCtx, *docHISID, req.Document, req.ActorID, req.WorkingStateID)
		if err != nil {
			return err
		}

		index, slips, err := s.syncSlips(txCtx, doc, req)
		if err != nil {
			return err
		}

		lines, err := s.syncLines(txCtx, index, req)
		if err != nil {
			return err
		}

		result = &SyncAllResult{Document: doc, Slips: slips, Lines: lines}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("document_his_id", *docHISID).
		Int("slips", len(result.Slips)).
		Int("lines", len(result.Lines)).
		Str("actor", req.ActorID).
		Msg("sync completed")
	return result, nil
}

func (s *Service) syncSlips(ctx context.Context, doc *ExportDocument, req SyncAllRequest) (map[int64]slipEntry, []*ExportSlip, error) {
	index := make(map[int64]slipEntry, len(req.Slips))
	var slips []*ExportSlip

	if len(req.Slips) == 0 {
		// Degenerate single-document case: the parent payload stands in for
		// its only slip, referencing itself as owner. Failure here is not
		// fatal to the rest of the sync.
		slip, err := s.upsertSlip(ctx, doc.HISID, req.Document, doc, req.ActorID)
		if err != nil {
			s.logger.Warn().Err(err).
				Int64("document_his_id", doc.HISID).
				Msg("default slip synthesis failed")
			return index, slips, nil
		}
		index[slip.HISID] = slipEntry{slip: slip, payload: req.Document}
		return index, append(slips, slip), nil
	}

	for _, payload := range req.Slips {
		hisID := payload.Int64(FieldHISID)
		if hisID == nil {
			return nil, nil, fmt.Errorf("slip payload has no decodable id: %w", ErrInvalidArgument)
		}
		slip, err := s.upsertSlip(ctx, *hisID, payload, doc, req.ActorID)
		if err != nil {
			return nil, nil, err
		}
		index[slip.HISID] = slipEntry{slip: slip, payload: payload}
		slips = append(slips, slip)
	}
	return index, slips, nil
}

func (s *Service) syncLines(ctx context.Context, index map[int64]slipEntry, req SyncAllRequest) ([]*MedicineLine, error) {
	var lines []*MedicineLine
	for _, payload := range req.Lines {
		hisID := payload.Int64(FieldHISID)
		if hisID == nil {
			return nil, fmt.Errorf("medicine line payload has no decodable id: %w", ErrInvalidArgument)
		}

		ownerID := payload.Int64(FieldExportSlipID)
		if ownerID == nil {
			s.logger.Debug().Int64("line_his_id", *hisID).Msg("line has no owner reference, skipped")
			continue
		}
		owner, ok := index[*ownerID]
		if !ok {
			s.logger.Debug().
				Int64("line_his_id", *hisID).
				Int64("owner_his_id", *ownerID).
				Msg("line owner not in sync set, skipped")
			continue
		}

		enriched := enrichLinePayload(payload, owner.payload)
		line, err := s.upsertLine(ctx, *hisID, enriched, owner.slip, req.ActorID)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// ---- upsert-by-HIS-id resolvers ----

func (s *Service) upsertDocument(ctx context.Context, hisID int64, payload wire.Payload, actor string, workingStateID *string) (*ExportDocument, error) {
	now := time.Now().UTC()

	doc, err := s.docs.GetByHISID(ctx, hisID)
	switch {
	case err == nil:
		applyDocumentPayload(doc, payload)
		if workingStateID != nil {
			doc.WorkingStateID = workingStateID
		}
		doc.VersionID++
		doc.UpdatedBy = &actor
		doc.UpdatedAt = now
		if err := s.docs.Update(ctx, doc); err != nil {
			return nil, err
		}
	case errors.Is(err, ErrNotFound):
		doc = &ExportDocument{
			HISID:     hisID,
			VersionID: 1,
			IsActive:  true,
			CreatedBy: &actor,
			UpdatedBy: &actor,
			CreatedAt: now,
			UpdatedAt: now,
		}
		applyDocumentPayload(doc, payload)
		if workingStateID != nil {
			doc.WorkingStateID = workingStateID
		}
		if err := s.docs.Create(ctx, doc); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	return s.rereadDocument(ctx, hisID)
}

func (s *Service) upsertSlip(ctx context.Context, hisID int64, payload wire.Payload, parent *ExportDocument, actor string) (*ExportSlip, error) {
	now := time.Now().UTC()
	parentID := parent.ID

	slip, err := s.slips.GetByHISID(ctx, hisID)
	switch {
	case err == nil:
		applySlipPayload(slip, payload)
		slip.DocumentHISID = parent.HISID
		slip.DocumentID = &parentID
		slip.VersionID++
		slip.UpdatedBy = &actor
		slip.UpdatedAt = now
		if err := s.slips.Update(ctx, slip); err != nil {
			return nil, err
		}
	case errors.Is(err, ErrNotFound):
		slip = &ExportSlip{
			HISID:         hisID,
			DocumentHISID: parent.HISID,
			DocumentID:    &parentID,
			VersionID:     1,
			IsActive:      true,
			CreatedBy:     &actor,
			UpdatedBy:     &actor,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		applySlipPayload(slip, payload)
		if err := s.slips.Create(ctx, slip); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	persisted, err := s.slips.GetByHISID(ctx, hisID)
	if err != nil {
		return nil, fmt.Errorf("export slip %d unreadable after write: %w", hisID, ErrInternal)
	}
	return persisted, nil
}

func (s *Service) upsertLine(ctx context.Context, hisID int64, payload wire.Payload, owner *ExportSlip, actor string) (*MedicineLine, error) {
	now := time.Now().UTC()
	ownerID := owner.ID

	line, err := s.lines.GetByHISID(ctx, hisID)
	switch {
	case err == nil:
		applyLinePayload(line, payload)
		line.SlipHISID = owner.HISID
		line.SlipID = &ownerID
		line.VersionID++
		line.UpdatedBy = &actor
		line.UpdatedAt = now
		if err := s.lines.Update(ctx, line); err != nil {
			return nil, err
		}
	case errors.Is(err, ErrNotFound):
		line = &MedicineLine{
			HISID:     hisID,
			SlipHISID: owner.HISID,
			SlipID:    &ownerID,
			VersionID: 1,
			IsActive:  true,
			CreatedBy: &actor,
			UpdatedBy: &actor,
			CreatedAt: now,
			UpdatedAt: now,
		}
		applyLinePayload(line, payload)
		if err := s.lines.Create(ctx, line); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	persisted, err := s.lines.GetByHISID(ctx, hisID)
	if err != nil {
		return nil, fmt.Errorf("medicine line %d unreadable after write: %w", hisID, ErrInternal)
	}
	return persisted, nil
}

func (s *Service) rereadDocument(ctx context.Context, hisID int64) (*ExportDocument, error) {
	doc, err := s.docs.GetByHISID(ctx, hisID)
	if err != nil {
		return nil, fmt.Errorf("export document %d unreadable after write: %w", hisID, ErrInternal)
	}
	return doc, nil
}

// DocumentTree is an export document with its slips and lines.
type DocumentTree struct {
	Document *ExportDocument `json:"document"`
	Slips    []*ExportSlip   `json:"slips"`
	Lines    []*MedicineLine `json:"lines"`
}

// GetDocumentTree loads a document and everything beneath it.
func (s *Service) GetDocumentTree(ctx context.Context, hisID int64) (*DocumentTree, error) {
	doc, err := s.docs.GetByHISID(ctx, hisID)
	if err != nil {
		return nil, err
	}
	slips, err := s.slips.ListByDocumentHISID(ctx, hisID)
	if err != nil {
		return nil, err
	}
	slipIDs := make([]int64, len(slips))
	for i, sl := range slips {
		slipIDs[i] = sl.HISID
	}
	var lines []*MedicineLine
	if len(slipIDs) > 0 {
		lines, err = s.lines.ListBySlipHISIDs(ctx, slipIDs)
		if err != nil {
			return nil, err
		}
	}
	return &DocumentTree{Document: doc, Slips: slips, Lines: lines}, nil
}
