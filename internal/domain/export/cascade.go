package export

import (
	"context"
	"fmt"
	"time"

	"github.com/hisync/hisync/internal/platform/wire"
)

// TransitionKind selects which of the two irreversible export transitions a
// batch operation applies.
type TransitionKind int

const (
	TransitionExport TransitionKind = iota
	TransitionActualExport
)

func (k TransitionKind) String() string {
	if k == TransitionActualExport {
		return "actual-export"
	}
	return "export"
}

// BatchTransitionRequest carries raw wire values: line ids (and the optional
// timestamp) may arrive as native numbers or split-word objects.
type BatchTransitionRequest struct {
	LineIDs   []interface{}
	Timestamp interface{}
	ActorID   string
}

// BatchTransitionResult reports how many rows the conditional update
// actually changed, and the decoded id set it targeted.
type BatchTransitionResult struct {
	UpdatedCount int64   `json:"updated_count"`
	LineHISIDs   []int64 `json:"line_his_ids"`
}

// BatchExport applies the export transition to a set of medicine lines.
func (s *Service) BatchExport(ctx context.Context, req BatchTransitionRequest) (*BatchTransitionResult, error) {
	return s.batchTransition(ctx, req, TransitionExport)
}

// BatchActualExport applies the actual-export transition. Every targeted
// line must already be exported.
func (s *Service) BatchActualExport(ctx context.Context, req BatchTransitionRequest) (*BatchTransitionResult, error) {
	return s.batchTransition(ctx, req, TransitionActualExport)
}

// batchTransition validates the full requested set before any mutation, then
// applies a conditional update restricted to rows still in the
// pre-transition state. After its own transaction commits it evaluates the
// working-state cascade best-effort; cascade failures never reach the caller.
func (s *Service) batchTransition(ctx context.Context, req BatchTransitionRequest, kind TransitionKind) (*BatchTransitionResult, error) {
	hisIDs := decodeLineIDs(req.LineIDs)
	if len(hisIDs) == 0 {
		return nil, fmt.Errorf("no decodable medicine line ids: %w", ErrInvalidArgument)
	}

	var at *time.Time
	if req.Timestamp != nil {
		if ms, ok := wire.DecodeInt64(req.Timestamp); ok {
			t := time.UnixMilli(ms).UTC()
			at = &t
		} else {
			return nil, fmt.Errorf("timestamp is not a decodable integer: %w", ErrInvalidArgument)
		}
	}

	var updated int64
	err := s.txm.InTx(ctx, func(txCtx context.Context) error {
		loaded, err := s.lines.ListByHISIDs(txCtx, hisIDs)
		if err != nil {
			return err
		}
		if err := validateTransition(hisIDs, loaded, kind); err != nil {
			return err
		}

		switch kind {
		case TransitionActualExport:
			updated, err = s.lines.MarkActualExported(txCtx, hisIDs, req.ActorID, at)
		default:
			updated, err = s.lines.MarkExported(txCtx, hisIDs, req.ActorID, at)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if updated > 0 {
		s.cascadeWorkingState(ctx, kind, hisIDs, req.ActorID)
	}

	return &BatchTransitionResult{UpdatedCount: updated, LineHISIDs: hisIDs}, nil
}

// decodeLineIDs decodes and de-duplicates the requested ids, dropping
// values that fail to decode.
func decodeLineIDs(raw []interface{}) []int64 {
	seen := make(map[int64]struct{}, len(raw))
	ids := make([]int64, 0, len(raw))
	for _, v := range raw {
		id, ok := wire.DecodeInt64(v)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// validateTransition checks the full requested set before any row is
// touched. For actual-export the never-exported precondition is checked
// before the already-actually-exported guard.
func validateTransition(requested []int64, loaded []*MedicineLine, kind TransitionKind) error {
	byID := make(map[int64]*MedicineLine, len(loaded))
	for _, m := range loaded {
		byID[m.HISID] = m
	}

	var missing []int64
	for _, id := range requested {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return linesNotFound(missing)
	}

	switch kind {
	case TransitionActualExport:
		var notExported, already []int64
		for _, id := range requested {
			m := byID[id]
			if !m.Exported() {
				notExported = append(notExported, id)
			} else if m.ActuallyExported() {
				already = append(already, id)
			}
		}
		if len(notExported) > 0 {
			return invalidTransition("medicine lines not yet exported", notExported)
		}
		if len(already) > 0 {
			return invalidTransition("medicine lines already actually exported", already)
		}
	default:
		var already []int64
		for _, id := range requested {
			if byID[id].Exported() {
				already = append(already, id)
			}
		}
		if len(already) > 0 {
			return invalidTransition("medicine lines already exported", already)
		}
	}
	return nil
}

// cascadeWorkingState promotes each affected parent document whose lines
// have all completed the transition. It is best-effort by design: every
// failure is logged and swallowed, each parent independently, so a stuck
// cascade surfaces in the logs rather than failing the committed batch.
//
// The sibling reads here are not isolated against concurrent transitions; a
// stale snapshot can under- or over-promote. Known and accepted.
func (s *Service) cascadeWorkingState(ctx context.Context, kind TransitionKind, lineHISIDs []int64, actor string) {
	stateID := s.cascade.AllExportedStateID
	if kind == TransitionActualExport {
		stateID = s.cascade.AllActualExportedStateID
	}
	if stateID == "" {
		s.logger.Info().
			Str("kind", kind.String()).
			Msg("cascade_skipped: no terminal working state configured")
		return
	}

	docIDs, err := s.affectedDocuments(ctx, lineHISIDs)
	if err != nil {
		s.logger.Error().Err(err).Str("kind", kind.String()).Msg("cascade_error: resolving parents")
		return
	}

	for _, docID := range docIDs {
		if err := s.promoteIfComplete(ctx, docID, kind, stateID, actor); err != nil {
			s.logger.Error().Err(err).
				Int64("document_his_id", docID).
				Str("kind", kind.String()).
				Msg("cascade_error")
		}
	}
}

// affectedDocuments maps the updated lines to the distinct set of parent
// document HIS ids, via their owning slips.
func (s *Service) affectedDocuments(ctx context.Context, lineHISIDs []int64) ([]int64, error) {
	lines, err := s.lines.ListByHISIDs(ctx, lineHISIDs)
	if err != nil {
		return nil, err
	}
	slipIDSet := make(map[int64]struct{})
	for _, m := range lines {
		slipIDSet[m.SlipHISID] = struct{}{}
	}
	slipIDs := make([]int64, 0, len(slipIDSet))
	for id := range slipIDSet {
		slipIDs = append(slipIDs, id)
	}

	slips, err := s.slips.ListByHISIDs(ctx, slipIDs)
	if err != nil {
		return nil, err
	}
	docIDSet := make(map[int64]struct{})
	var docIDs []int64
	for _, sl := range slips {
		if _, dup := docIDSet[sl.DocumentHISID]; dup {
			continue
		}
		docIDSet[sl.DocumentHISID] = struct{}{}
		docIDs = append(docIDs, sl.DocumentHISID)
	}
	return docIDs, nil
}

func (s *Service) promoteIfComplete(ctx context.Context, docHISID int64, kind TransitionKind, stateID, actor string) error {
	slips, err := s.slips.ListByDocumentHISID(ctx, docHISID)
	if err != nil {
		return err
	}
	if len(slips) == 0 {
		return nil
	}
	slipIDs := make([]int64, len(slips))
	for i, sl := range slips {
		slipIDs[i] = sl.HISID
	}
	lines, err := s.lines.ListBySlipHISIDs(ctx, slipIDs)
	if err != nil {
		return err
	}

	for _, m := range lines {
		done := m.Exported()
		if kind == TransitionActualExport {
			done = m.ActuallyExported()
		}
		if !done {
			return nil
		}
	}

	if err := s.docs.UpdateWorkingState(ctx, docHISID, stateID, actor); err != nil {
		return err
	}
	s.logger.Info().
		Int64("document_his_id", docHISID).
		Str("kind", kind.String()).
		Str("working_state_id", stateID).
		Msg("cascade_promoted")
	return nil
}
