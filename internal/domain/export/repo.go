package export

import (
	"context"
	"time"
)

// Repositories return ErrNotFound (wrapped) from the Get methods when no row
// matches. All methods honor a transaction carried on the context.

type ExportDocumentRepository interface {
	Create(ctx context.Context, d *ExportDocument) error
	Update(ctx context.Context, d *ExportDocument) error
	GetByHISID(ctx context.Context, hisID int64) (*ExportDocument, error)

	// UpdateWorkingState sets the document's working state and bumps its
	// version. Used only by the cascade and explicit administrative action.
	UpdateWorkingState(ctx context.Context, hisID int64, stateID, actor string) error
}

type ExportSlipRepository interface {
	Create(ctx context.Context, s *ExportSlip) error
	Update(ctx context.Context, s *ExportSlip) error
	GetByHISID(ctx context.Context, hisID int64) (*ExportSlip, error)
	ListByHISIDs(ctx context.Context, hisIDs []int64) ([]*ExportSlip, error)
	ListByDocumentHISID(ctx context.Context, docHISID int64) ([]*ExportSlip, error)
}

type MedicineLineRepository interface {
	Create(ctx context.Context, m *MedicineLine) error
	Update(ctx context.Context, m *MedicineLine) error
	GetByHISID(ctx context.Context, hisID int64) (*MedicineLine, error)
	ListByHISIDs(ctx context.Context, hisIDs []int64) ([]*MedicineLine, error)
	ListBySlipHISIDs(ctx context.Context, slipHISIDs []int64) ([]*MedicineLine, error)

	// MarkExported applies the export transition to the given lines. The
	// update is restricted to rows still in the pre-transition state and
	// copies each row's own amount into export_amount. Returns the number
	// of rows actually changed.
	MarkExported(ctx context.Context, hisIDs []int64, actor string, at *time.Time) (int64, error)

	// MarkActualExported applies the actual-export transition under the
	// same conditional-update rule, additionally requiring the export pair
	// to be already set.
	MarkActualExported(ctx context.Context, hisIDs []int64, actor string, at *time.Time) (int64, error)
}
