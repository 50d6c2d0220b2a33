package export

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// -- Mock store and repositories --
//
// Entities are stored by value keyed on HIS id so reads hand out copies,
// which keeps the rollback simulation honest.

type mockStore struct {
	docs  map[int64]ExportDocument
	slips map[int64]ExportSlip
	lines map[int64]MedicineLine

	// afterDocGet runs after a document read, letting a test interleave a
	// racing write between read and update.
	afterDocGet func()
}

func newMockStore() *mockStore {
	return &mockStore{
		docs:  make(map[int64]ExportDocument),
		slips: make(map[int64]ExportSlip),
		lines: make(map[int64]MedicineLine),
	}
}

func (st *mockStore) snapshot() *mockStore {
	snap := newMockStore()
	for k, v := range st.docs {
		snap.docs[k] = v
	}
	for k, v := range st.slips {
		snap.slips[k] = v
	}
	for k, v := range st.lines {
		snap.lines[k] = v
	}
	return snap
}

func (st *mockStore) restore(snap *mockStore) {
	st.docs = snap.docs
	st.slips = snap.slips
	st.lines = snap.lines
}

// mockTxManager preserves the commit/rollback contract over the mock store:
// an error from fn restores the pre-transaction snapshot.
type mockTxManager struct{ st *mockStore }

func (m *mockTxManager) InTx(_ context.Context, fn func(ctx context.Context) error) error {
	snap := m.st.snapshot()
	if err := fn(context.Background()); err != nil {
		m.st.restore(snap)
		return err
	}
	return nil
}

type mockDocRepo struct{ st *mockStore }

func (r *mockDocRepo) Create(_ context.Context, d *ExportDocument) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	r.st.docs[d.HISID] = *d
	return nil
}

func (r *mockDocRepo) Update(_ context.Context, d *ExportDocument) error {
	stored, ok := r.st.docs[d.HISID]
	if !ok {
		return fmt.Errorf("export document %d: %w", d.HISID, ErrNotFound)
	}
	if stored.VersionID != d.VersionID-1 {
		return fmt.Errorf("export document %d at version %d: %w", d.HISID, d.VersionID-1, ErrConflict)
	}
	r.st.docs[d.HISID] = *d
	return nil
}

func (r *mockDocRepo) GetByHISID(_ context.Context, hisID int64) (*ExportDocument, error) {
	d, ok := r.st.docs[hisID]
	if !ok {
		return nil, fmt.Errorf("export document %d: %w", hisID, ErrNotFound)
	}
	if r.st.afterDocGet != nil {
		r.st.afterDocGet()
	}
	return &d, nil
}

func (r *mockDocRepo) UpdateWorkingState(_ context.Context, hisID int64, stateID, actor string) error {
	d, ok := r.st.docs[hisID]
	if !ok {
		return fmt.Errorf("export document %d: %w", hisID, ErrNotFound)
	}
	d.WorkingStateID = &stateID
	d.VersionID++
	d.UpdatedBy = &actor
	d.UpdatedAt = time.Now().UTC()
	r.st.docs[hisID] = d
	return nil
}

type mockSlipRepo struct {
	st            *mockStore
	failCreateFor int64
}

func (r *mockSlipRepo) Create(_ context.Context, s *ExportSlip) error {
	if r.failCreateFor != 0 && s.HISID == r.failCreateFor {
		return fmt.Errorf("simulated slip insert failure")
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	r.st.slips[s.HISID] = *s
	return nil
}

func (r *mockSlipRepo) Update(_ context.Context, s *ExportSlip) error {
	stored, ok := r.st.slips[s.HISID]
	if !ok {
		return fmt.Errorf("export slip %d: %w", s.HISID, ErrNotFound)
	}
	if stored.VersionID != s.VersionID-1 {
		return fmt.Errorf("export slip %d at version %d: %w", s.HISID, s.VersionID-1, ErrConflict)
	}
	r.st.slips[s.HISID] = *s
	return nil
}

func (r *mockSlipRepo) GetByHISID(_ context.Context, hisID int64) (*ExportSlip, error) {
	s, ok := r.st.slips[hisID]
	if !ok {
		return nil, fmt.Errorf("export slip %d: %w", hisID, ErrNotFound)
	}
	return &s, nil
}

func (r *mockSlipRepo) ListByHISIDs(_ context.Context, hisIDs []int64) ([]*ExportSlip, error) {
	var out []*ExportSlip
	for _, id := range hisIDs {
		if s, ok := r.st.slips[id]; ok {
			c := s
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *mockSlipRepo) ListByDocumentHISID(_ context.Context, docHISID int64) ([]*ExportSlip, error) {
	var out []*ExportSlip
	for _, s := range r.st.slips {
		if s.DocumentHISID == docHISID {
			c := s
			out = append(out, &c)
		}
	}
	return out, nil
}

type mockLineRepo struct {
	st            *mockStore
	failCreateFor int64
}

func (r *mockLineRepo) Create(_ context.Context, m *MedicineLine) error {
	if r.failCreateFor != 0 && m.HISID == r.failCreateFor {
		return fmt.Errorf("simulated line insert failure")
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	r.st.lines[m.HISID] = *m
	return nil
}

func (r *mockLineRepo) Update(_ context.Context, m *MedicineLine) error {
	stored, ok := r.st.lines[m.HISID]
	if !ok {
		return fmt.Errorf("medicine line %d: %w", m.HISID, ErrNotFound)
	}
	if stored.VersionID != m.VersionID-1 {
		return fmt.Errorf("medicine line %d at version %d: %w", m.HISID, m.VersionID-1, ErrConflict)
	}
	r.st.lines[m.HISID] = *m
	return nil
}

func (r *mockLineRepo) GetByHISID(_ context.Context, hisID int64) (*MedicineLine, error) {
	m, ok := r.st.lines[hisID]
	if !ok {
		return nil, fmt.Errorf("medicine line %d: %w", hisID, ErrNotFound)
	}
	return &m, nil
}

func (r *mockLineRepo) ListByHISIDs(_ context.Context, hisIDs []int64) ([]*MedicineLine, error) {
	var out []*MedicineLine
	for _, id := range hisIDs {
		if m, ok := r.st.lines[id]; ok {
			c := m
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *mockLineRepo) ListBySlipHISIDs(_ context.Context, slipHISIDs []int64) ([]*MedicineLine, error) {
	want := make(map[int64]bool, len(slipHISIDs))
	for _, id := range slipHISIDs {
		want[id] = true
	}
	var out []*MedicineLine
	for _, m := range r.st.lines {
		if want[m.SlipHISID] {
			c := m
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *mockLineRepo) MarkExported(_ context.Context, hisIDs []int64, actor string, at *time.Time) (int64, error) {
	var n int64
	for _, id := range hisIDs {
		m, ok := r.st.lines[id]
		if !ok {
			continue
		}
		if m.ExportedBy != nil || m.ExportedAt != nil {
			continue
		}
		amt := m.Amount
		a := actor
		m.ExportAmount = &amt
		m.ExportedBy = &a
		m.ExportedAt = at
		m.VersionID++
		m.UpdatedBy = &a
		m.UpdatedAt = time.Now().UTC()
		r.st.lines[id] = m
		n++
	}
	return n, nil
}

func (r *mockLineRepo) MarkActualExported(_ context.Context, hisIDs []int64, actor string, at *time.Time) (int64, error) {
	var n int64
	for _, id := range hisIDs {
		m, ok := r.st.lines[id]
		if !ok {
			continue
		}
		if m.ActualExportedBy != nil || m.ActualExportedAt != nil {
			continue
		}
		if m.ExportedBy == nil && m.ExportedAt == nil {
			continue
		}
		amt := m.Amount
		a := actor
		m.ActualExportAmount = &amt
		m.ActualExportedBy = &a
		m.ActualExportedAt = at
		m.VersionID++
		m.UpdatedBy = &a
		m.UpdatedAt = time.Now().UTC()
		r.st.lines[id] = m
		n++
	}
	return n, nil
}

func newTestService(cascade CascadeConfig) (*Service, *mockStore, *mockSlipRepo, *mockLineRepo) {
	st := newMockStore()
	slipRepo := &mockSlipRepo{st: st}
	lineRepo := &mockLineRepo{st: st}
	svc := NewService(
		&mockDocRepo{st: st},
		slipRepo,
		lineRepo,
		&mockTxManager{st: st},
		cascade,
		zerolog.Nop(),
	)
	return svc, st, slipRepo, lineRepo
}
